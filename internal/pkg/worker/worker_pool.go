package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"autopress/internal/pkg/composer"
	"autopress/internal/pkg/gate"
	"autopress/internal/pkg/logger"
	"autopress/internal/pkg/models"
	"autopress/internal/pkg/queue"
)

// Longest single pause after a rate-limited verdict. Longer advisory
// waits are spread over multiple drain attempts so shutdown stays
// responsive.
const maxRateLimitPause = time.Minute

// Sends composed text to the publishing platform.
type Publisher interface {
	Publish(ctx context.Context, text string) models.PublishResult
}

// Manages a pool of workers that drain the candidate queue through the
// publish gate and the platform client.
type WorkerPool struct {
	numWorkers int
	clientKey  string
	queue      *queue.Queue
	composer   *composer.Composer
	gate       *gate.Gate
	publisher  Publisher
	wg         sync.WaitGroup
}

// Creates a new worker pool with the specified number of workers
func NewWorkerPool(numWorkers int, clientKey string, q *queue.Queue, comp *composer.Composer, g *gate.Gate, pub Publisher) *WorkerPool {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	if clientKey == "" {
		clientKey = "publisher"
	}
	return &WorkerPool{
		numWorkers: numWorkers,
		clientKey:  clientKey,
		queue:      q,
		composer:   comp,
		gate:       g,
		publisher:  pub,
	}
}

// Launches the worker goroutines
func (wp *WorkerPool) Start(ctx context.Context) {
	logger.Log.Info("Starting worker pool", zap.Int("workers", wp.numWorkers))

	for i := 0; i < wp.numWorkers; i++ {
		wp.wg.Add(1)
		go wp.runWorker(ctx, i)
	}
}

// Blocks until all workers have finished
func (wp *WorkerPool) Wait() {
	wp.wg.Wait()
}

// The main loop for each worker goroutine
func (wp *WorkerPool) runWorker(ctx context.Context, id int) {
	defer wp.wg.Done()

	logger.Log.Info("Worker started", zap.Int("worker_id", id))

	for {
		select {
		case <-ctx.Done():
			logger.Log.Info("Worker received stop signal", zap.Int("worker_id", id))
			return
		default:
			candidate, err := wp.queue.Remove()
			if errors.Is(err, queue.ErrClosed) {
				logger.Log.Info("Queue closed, worker exiting", zap.Int("worker_id", id))
				return
			}
			if err != nil {
				// If queue is empty, wait a bit before trying again
				time.Sleep(200 * time.Millisecond)
				continue
			}
			wp.handle(ctx, id, candidate)
		}
	}
}

// Composes, gates, publishes, and records one candidate.
func (wp *WorkerPool) handle(ctx context.Context, id int, candidate models.Candidate) {
	if candidate.Text == "" {
		text, err := wp.composer.Compose(candidate.Article)
		if err != nil {
			logger.Log.Warn("Failed to compose post",
				zap.Int("worker_id", id),
				zap.String("link", candidate.Article.Link),
				zap.Error(err))
			return
		}
		candidate.Text = text
	}

	verdict := wp.gate.TryPublish(candidate, wp.clientKey)
	if !verdict.Allowed {
		logger.Log.Debug("Candidate blocked",
			zap.Int("worker_id", id),
			zap.String("link", candidate.Article.Link),
			zap.String("reason", verdict.Reason),
			zap.Duration("wait", verdict.WaitTime))
		// A rate verdict applies to every queued candidate, so pausing
		// here beats dropping the whole backlog against a shut gate.
		if verdict.WaitTime > 0 {
			wp.pause(ctx, verdict.WaitTime)
		}
		return
	}

	result := wp.publisher.Publish(ctx, candidate.Text)
	wp.gate.RecordOutcome(candidate, wp.clientKey, result)

	if result.Success {
		logger.Log.Info("Published candidate",
			zap.Int("worker_id", id),
			zap.String("id", result.ID),
			zap.String("link", candidate.Article.Link))
	} else {
		logger.Log.Warn("Publish attempt failed",
			zap.Int("worker_id", id),
			zap.String("link", candidate.Article.Link),
			zap.String("error", result.Error))
	}
}

func (wp *WorkerPool) pause(ctx context.Context, wait time.Duration) {
	if wait > maxRateLimitPause {
		wait = maxRateLimitPause
	}
	select {
	case <-ctx.Done():
	case <-time.After(wait):
	}
}
