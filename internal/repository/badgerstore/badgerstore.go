// Package badgerstore keeps documents in an embedded Badger key-value store.
package badgerstore

import (
	"chat-gateway/internal/logger"
	"chat-gateway/internal/repository/db"
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/dgraph-io/badger/v4"
)

const keyPrefix = "doc/"

// Ensure Store implements db.DocumentStore interface
var _ db.DocumentStore = (*Store)(nil)

// Config holds configuration for a Badger instance
type Config struct {
	// Path is the directory for Badger files, ignored when InMemory is true
	Path       string
	InMemory   bool
	SyncWrites bool
}

// DefaultConfig returns a durable on-disk configuration
func DefaultConfig(path string) Config {
	return Config{Path: path, SyncWrites: true}
}

// InMemoryConfig returns a configuration for tests
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// Store implements db.DocumentStore on top of Badger
type Store struct {
	db *badger.DB
}

// Open opens or creates the Badger database described by cfg
func Open(cfg Config) (*Store, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, errors.New("badger path is required when not in memory")
		}
		if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create badger directory: %w", err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.
		WithSyncWrites(cfg.SyncWrites).
		WithNumVersionsToKeep(1).
		WithLogger(logger.Log).
		WithLoggingLevel(badger.WARNING)

	bdb, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}

	logger.Log.WithField("in_memory", cfg.InMemory).Info("Badger document store opened")
	return &Store{db: bdb}, nil
}

// Load reads the document stored under key
func (s *Store) Load(_ context.Context, key string) ([]byte, error) {
	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyPrefix + key))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, db.ErrDocumentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", key, err)
	}
	return data, nil
}

// Save replaces the document stored under key
func (s *Store) Save(_ context.Context, key string, data []byte) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(keyPrefix+key), data)
	})
	if err != nil {
		return fmt.Errorf("failed to save %s: %w", key, err)
	}
	return nil
}

// Close closes the underlying database
func (s *Store) Close() error {
	return s.db.Close()
}
