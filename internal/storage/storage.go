// Package storage provides the default bbolt-backed implementation of
// the Storage collaborator (initialize/shutdown/health_probe plus
// result persistence): a single bucket-per-entity database opened with
// bolt.Open and queried via db.Update/db.View, trimmed here to the one
// bucket this agent needs.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/cuemby/p2p-agent/pkg/types"
)

var bucketWorkResults = []byte("work_results")

// ErrNotFound is returned when a requested result does not exist.
var ErrNotFound = errors.New("storage: result not found")

// Store is the default Storage collaborator, backed by a bbolt database
// file under the configured data directory.
type Store struct {
	db *bolt.DB
}

// Open opens (creating if necessary) the database at dataDir/agent.db
// and ensures the work_results bucket exists.
func Open(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("storage: mkdir %s: %w", dataDir, err)
	}
	dbPath := filepath.Join(dataDir, "agent.db")

	db, err := bolt.Open(dbPath, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", dbPath, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketWorkResults)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: create bucket: %w", err)
	}

	return &Store{db: db}, nil
}

// Shutdown closes the underlying database, respecting ctx's deadline by
// racing the close against context cancellation.
func (s *Store) Shutdown(ctx context.Context) error {
	done := make(chan error, 1)
	go func() { done <- s.db.Close() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// HealthProbe reports whether the database is reachable by performing a
// read-only transaction.
func (s *Store) HealthProbe(ctx context.Context) error {
	return s.db.View(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketWorkResults) == nil {
			return errors.New("storage: work_results bucket missing")
		}
		return nil
	})
}

// PutResult persists a task result keyed by task ID.
func (s *Store) PutResult(result types.Result) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("storage: marshal result %s: %w", result.TaskID, err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketWorkResults).Put([]byte(result.TaskID), data)
	})
}

// GetResult retrieves a previously persisted task result.
func (s *Store) GetResult(taskID string) (types.Result, error) {
	var result types.Result
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketWorkResults).Get([]byte(taskID))
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, &result)
	})
	return result, err
}
