package administrator

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"autopress/internal/pkg/ledger"
	"autopress/internal/pkg/logger"
	"autopress/internal/pkg/models"
	"autopress/internal/pkg/ratelimit"
)

// Starts the HTTP service: article ingestion plus health, stats, and
// metrics endpoints for monitoring.
func (admin *administrator) startHTTP() {
	admin.srv = &http.Server{
		Addr:    ":" + admin.cfg.ServerPort,
		Handler: buildMux(admin),
	}

	logger.Log.Info("HTTP service listening", zap.String("address", admin.srv.Addr))
	go func() {
		if err := admin.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Error("HTTP service failed", zap.Error(err))
		}
	}()
}

func (admin *administrator) stopHTTP() {
	if admin.srv == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := admin.srv.Shutdown(shutdownCtx); err != nil {
		logger.Log.Warn("HTTP shutdown did not finish cleanly", zap.Error(err))
	}
}

func buildMux(admin *administrator) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/ingest", func(writer http.ResponseWriter, request *http.Request) {
		if request.Method != http.MethodPost {
			http.Error(writer, "expected POST", http.StatusMethodNotAllowed)
			return
		}

		var article models.Article
		if err := json.NewDecoder(request.Body).Decode(&article); err != nil {
			http.Error(writer, "failed to decode request", http.StatusBadRequest)
			logger.Log.Warn("Failed to decode incoming article", zap.Error(err))
			return
		}
		if article.Title == "" || article.Link == "" {
			http.Error(writer, "title and link are required", http.StatusBadRequest)
			return
		}

		result, err := admin.IngestArticle(request.Context(), article)
		if err != nil {
			http.Error(writer, "failed to enqueue article", http.StatusServiceUnavailable)
			logger.Log.Error("Failed to enqueue article", zap.Error(err))
			return
		}

		writer.Header().Set("Content-Type", "application/json")
		if result.Queued {
			writer.WriteHeader(http.StatusAccepted)
		}
		json.NewEncoder(writer).Encode(result)
	})

	// /metrics endpoint for Prometheus
	mux.Handle("/metrics", promhttp.Handler())

	// /health endpoint
	mux.HandleFunc("/health", func(writer http.ResponseWriter, request *http.Request) {
		health := struct {
			Status        string    `json:"status"`
			QueueDepth    int       `json:"queue_depth"`
			Workers       int       `json:"workers"`
			LedgerEntries int       `json:"ledger_entries"`
			Uptime        string    `json:"uptime"`
			StartTime     time.Time `json:"start_time"`
		}{
			Status:        "OK",
			QueueDepth:    admin.QueueDepth(),
			Workers:       admin.WorkerCount(),
			LedgerEntries: admin.ledger.Len(),
			Uptime:        time.Since(admin.StartTime()).String(),
			StartTime:     admin.StartTime(),
		}

		writer.Header().Set("Content-Type", "application/json")
		json.NewEncoder(writer).Encode(health)
	})

	// /stats endpoint for operational insight into the gate components
	mux.HandleFunc("/stats", func(writer http.ResponseWriter, request *http.Request) {
		stats := struct {
			Limiter   ratelimit.Snapshot     `json:"limiter"`
			Ledger    ledger.Summary         `json:"ledger"`
			Integrity ledger.IntegrityReport `json:"integrity"`
		}{
			Limiter:   admin.limiter.Stats(),
			Ledger:    admin.ledger.Stats(24 * time.Hour),
			Integrity: admin.ledger.Verify(),
		}

		writer.Header().Set("Content-Type", "application/json")
		json.NewEncoder(writer).Encode(stats)
	})

	return mux
}
