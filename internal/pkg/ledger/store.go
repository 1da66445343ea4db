package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"autopress/internal/pkg/logger"
)

// Abstracts the durable home of the ledger snapshot so the ledger
// itself never touches a file or a socket directly.
type SnapshotStore interface {
	// Save persists one complete snapshot, replacing any previous one.
	Save(data []byte) error
	// Load returns the last saved snapshot, or (nil, nil) when none
	// exists yet.
	Load() ([]byte, error)
}

// Stores the snapshot as a single JSON file owned by this process.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Writes to a temporary file first and renames it into place, so a
// crash mid-write never leaves a truncated snapshot behind.
func (s *FileStore) Save(data []byte) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}
	return nil
}

// Reads the snapshot file. A missing file means a fresh start. A file
// that is not valid JSON is moved aside to <path>.broken and treated as
// absent, so one corrupt history file never blocks publishing.
func (s *FileStore) Load() ([]byte, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	if !json.Valid(data) {
		broken := s.path + ".broken"
		logger.Log.Error("Snapshot file is corrupt, moving it aside",
			zap.String("path", s.path),
			zap.String("movedTo", broken))
		if renameErr := os.Rename(s.path, broken); renameErr != nil {
			logger.Log.Error("Failed to move corrupt snapshot", zap.Error(renameErr))
		}
		return nil, nil
	}
	return data, nil
}

// Stores the snapshot under a single Redis key, for deployments where
// local disk is ephemeral.
type RedisStore struct {
	client *redis.Client
	key    string
}

// Creates a Redis-backed snapshot store and verifies connectivity.
func NewRedisStore(host, port, password string, db int, key string) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", host, port),
		Password: password, // "" if no auth
		DB:       db,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Log.Error("Failed to connect to Redis", zap.Error(err))
		return nil, err
	}

	logger.Log.Info("Connected to Redis successfully",
		zap.String("host", host),
		zap.String("port", port),
	)

	return &RedisStore{client: rdb, key: key}, nil
}

func (s *RedisStore) Save(data []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.client.Set(ctx, s.key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to store snapshot in Redis: %w", err)
	}
	return nil
}

func (s *RedisStore) Load() ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	data, err := s.client.Get(ctx, s.key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot from Redis: %w", err)
	}
	return data, nil
}
