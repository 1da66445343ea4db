package config

import (
	"os"
	"testing"
)

func TestLoadConfigDefaults(t *testing.T) {
	// Clear environment variables that might interfere.
	os.Clearenv()

	config, err := LoadConfig()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	// Check a few default values.
	if config.ServerPort != "8080" {
		t.Errorf("expected ServerPort to be '8080', got %s", config.ServerPort)
	}
	if config.QueueCapacity != 500 {
		t.Errorf("expected QueueCapacity to be 500, got %d", config.QueueCapacity)
	}
	if config.NumWorkers != 1 {
		t.Errorf("expected NumWorkers to be 1, got %d", config.NumWorkers)
	}
	if config.DedupMaxEntries != 50000 {
		t.Errorf("expected DedupMaxEntries to be 50000, got %d", config.DedupMaxEntries)
	}
	if config.DedupSimilarity != 0.8 {
		t.Errorf("expected DedupSimilarity to be 0.8, got %f", config.DedupSimilarity)
	}
	if config.MaxConsecutiveFailures != 5 {
		t.Errorf("expected MaxConsecutiveFailures to be 5, got %d", config.MaxConsecutiveFailures)
	}
	if config.LedgerMaxEntries != 10000 {
		t.Errorf("expected LedgerMaxEntries to be 10000, got %d", config.LedgerMaxEntries)
	}
	if config.LedgerBackend != "file" {
		t.Errorf("expected LedgerBackend to be 'file', got %s", config.LedgerBackend)
	}
	if !config.DryRun {
		t.Errorf("expected DryRun to default to true")
	}
	if config.LogLevel != "info" {
		t.Errorf("expected LogLevel to be 'info', got %s", config.LogLevel)
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	// Set environment variables.
	os.Setenv("SERVER_PORT", "9090")
	os.Setenv("QUEUE_CAPACITY", "50")
	os.Setenv("LOG_LEVEL", "debug")
	os.Setenv("LEDGER_BACKEND", "redis")
	os.Setenv("RATE_PUBLISH_PER_DAY", "17")

	config, err := LoadConfig()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if config.ServerPort != "9090" {
		t.Errorf("expected ServerPort to be '9090', got %s", config.ServerPort)
	}
	if config.QueueCapacity != 50 {
		t.Errorf("expected QueueCapacity to be 50, got %d", config.QueueCapacity)
	}
	if config.LogLevel != "debug" {
		t.Errorf("expected LogLevel to be 'debug', got %s", config.LogLevel)
	}
	if config.LedgerBackend != "redis" {
		t.Errorf("expected LedgerBackend to be 'redis', got %s", config.LedgerBackend)
	}
	if config.RatePublishPerDay != 17 {
		t.Errorf("expected RatePublishPerDay to be 17, got %d", config.RatePublishPerDay)
	}

	// Clean up environment variables after test.
	os.Unsetenv("SERVER_PORT")
	os.Unsetenv("QUEUE_CAPACITY")
	os.Unsetenv("LOG_LEVEL")
	os.Unsetenv("LEDGER_BACKEND")
	os.Unsetenv("RATE_PUBLISH_PER_DAY")
}
