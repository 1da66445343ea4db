package queue

import (
	"errors"
	"sync"

	"autopress/internal/pkg/metrics"
	"autopress/internal/pkg/models"
)

var (
	ErrFull   = errors.New("queue is full")
	ErrEmpty  = errors.New("queue is empty")
	ErrClosed = errors.New("queue is closed")
)

// Bounded FIFO buffer between the collection side and the publish
// workers.
type Queue struct {
	mu       sync.Mutex
	capacity int
	closed   bool
	q        []models.Candidate
}

// Creates an empty queue with a specified capacity
func CreateQueue(capacity int) (*Queue, error) {
	if capacity <= 0 {
		return nil, errors.New("capacity should be greater than 0")
	}
	return &Queue{
		capacity: capacity,
		q:        make([]models.Candidate, 0, capacity),
	}, nil
}

// Inserts a candidate into the queue
func (q *Queue) Insert(item models.Candidate) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrClosed
	}
	if len(q.q) >= q.capacity {
		return ErrFull
	}
	q.q = append(q.q, item)
	metrics.QueueDepth.Set(float64(len(q.q)))
	return nil
}

// Removes the oldest candidate from the queue
func (q *Queue) Remove() (models.Candidate, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.q) > 0 {
		item := q.q[0]
		q.q = q.q[1:]
		metrics.QueueDepth.Set(float64(len(q.q)))
		return item, nil
	}
	if q.closed {
		return models.Candidate{}, ErrClosed
	}
	return models.Candidate{}, ErrEmpty
}

// Returns the number of candidates in the queue
func (q *Queue) Length() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.q)
}

// Returns true if the queue is empty
func (q *Queue) IsEmpty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.q) == 0
}

// Rejects further inserts. Queued candidates can still be drained;
// Remove reports ErrClosed once the queue runs dry.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
}

// Returns true once Close has been called.
func (q *Queue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}
