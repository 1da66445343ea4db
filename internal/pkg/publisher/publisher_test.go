package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"autopress/internal/pkg/logger"
)

func init() {
	logger.Log = zap.NewNop() // Set up a no-op logger to avoid nil pointer dereferences in tests.
}

func TestPublishSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("Expected method POST, got %s", r.Method)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("Expected bearer auth header, got %q", got)
		}
		if got := r.Header.Get("Content-Type"); got != "application/json" {
			t.Errorf("Expected JSON content type, got %q", got)
		}

		var req struct {
			Text string `json:"text"`
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &req); err != nil {
			t.Errorf("Expected a JSON body, got %q", body)
		}
		if req.Text != "hello world" {
			t.Errorf("Expected text %q, got %q", "hello world", req.Text)
		}

		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"data":{"id":"1777","text":"hello world"}}`)
	}))
	defer srv.Close()

	p := New(Options{BearerToken: "test-token", Endpoint: srv.URL, Timeout: 5 * time.Second})
	result := p.Publish(context.Background(), "hello world")

	if !result.Success {
		t.Fatalf("Expected success, got error %q", result.Error)
	}
	if result.ID != "1777" {
		t.Errorf("Expected platform ID 1777, got %q", result.ID)
	}
}

func TestPublishAPIError(t *testing.T) {
	// 403 is not retried, so the test does not sit through backoff.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"title":"Forbidden","detail":"not permitted to post"}`)
	}))
	defer srv.Close()

	p := New(Options{BearerToken: "test-token", Endpoint: srv.URL, Timeout: 5 * time.Second})
	result := p.Publish(context.Background(), "hello world")

	if result.Success {
		t.Fatal("Expected failure for a rejected post")
	}
	if !strings.Contains(result.Error, "403") {
		t.Errorf("Expected the status code in the error, got %q", result.Error)
	}
	if !strings.Contains(result.Error, "not permitted to post") {
		t.Errorf("Expected the API detail in the error, got %q", result.Error)
	}
}

func TestPublishDryRun(t *testing.T) {
	p := New(Options{BearerToken: "test-token", DryRun: true})
	result := p.Publish(context.Background(), "hello world")

	if !result.Success {
		t.Fatalf("Expected dry-run success, got error %q", result.Error)
	}
	if !strings.HasPrefix(result.ID, "dry-") {
		t.Errorf("Expected a synthetic dry-run ID, got %q", result.ID)
	}
}

func TestPublishWithoutTokenStaysLocal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("Expected no API call without a bearer token")
	}))
	defer srv.Close()

	p := New(Options{Endpoint: srv.URL})
	result := p.Publish(context.Background(), "hello world")

	if !result.Success {
		t.Fatalf("Expected dry-run success, got error %q", result.Error)
	}
	if !strings.HasPrefix(result.ID, "dry-") {
		t.Errorf("Expected a synthetic dry-run ID, got %q", result.ID)
	}
}

func TestPublishEmptyText(t *testing.T) {
	p := New(Options{DryRun: true})
	result := p.Publish(context.Background(), "   ")

	if result.Success {
		t.Fatal("Expected failure for empty text")
	}
	if result.Error != "empty post text" {
		t.Errorf("Expected error %q, got %q", "empty post text", result.Error)
	}
}

func TestPublishCircuitOpensAfterRepeatedFailures(t *testing.T) {
	var mu sync.Mutex
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits++
		mu.Unlock()
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"title":"Forbidden"}`)
	}))
	defer srv.Close()

	p := New(Options{BearerToken: "test-token", Endpoint: srv.URL, Timeout: 5 * time.Second})

	for i := 0; i < breakerThreshold; i++ {
		result := p.Publish(context.Background(), "hello world")
		if result.Success {
			t.Fatalf("Expected failure on call %d", i+1)
		}
		if !strings.Contains(result.Error, "403") {
			t.Fatalf("Expected an API rejection on call %d, got %q", i+1, result.Error)
		}
	}

	result := p.Publish(context.Background(), "hello world")
	if result.Success {
		t.Fatal("Expected failure while the circuit is open")
	}
	if !strings.Contains(result.Error, "circuit") {
		t.Errorf("Expected a circuit breaker error, got %q", result.Error)
	}

	mu.Lock()
	defer mu.Unlock()
	if hits != breakerThreshold {
		t.Errorf("Expected %d API calls before the circuit opened, got %d", breakerThreshold, hits)
	}
}

func TestPublishPacing(t *testing.T) {
	p := New(Options{DryRun: true, MinInterval: 50 * time.Millisecond})

	start := time.Now()
	p.Publish(context.Background(), "first")
	p.Publish(context.Background(), "second")
	elapsed := time.Since(start)

	if elapsed < 50*time.Millisecond {
		t.Errorf("Expected the second post to wait for the pacing slot, elapsed %v", elapsed)
	}
}
