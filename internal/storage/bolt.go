// Package storage persists scan history in an embedded bbolt database.
//
// Scans are stored as JSON under their ID in the "scans" bucket. The
// "scan_index" bucket maps each target to the IDs of its scans in insertion
// order, which is what Recent walks backwards to return newest first.
package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	scanerr "github.com/hakim/scanwatch/internal/errors"
)

const (
	bucketScans     = "scans"
	bucketScanIndex = "scan_index"
)

// Store wraps a bbolt database for scan history persistence
type Store struct {
	db  *bbolt.DB
	now func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the clock used to timestamp saved scans.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore opens a bbolt database at the given path, creating the parent
// directory and the required buckets when missing.
func NewStore(path string, opts ...Option) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, scanerr.Wrap(scanerr.CodeStorage, "opening history database", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(bucketScans)); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(bucketScanIndex)); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, scanerr.Wrap(scanerr.CodeStorage, "initializing buckets", err)
	}

	s := &Store{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes the bbolt database
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks that the database is open and readable.
func (s *Store) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(func(tx *bbolt.Tx) error {
		if tx.Bucket([]byte(bucketScans)) == nil {
			return fmt.Errorf("bucket %q missing", bucketScans)
		}
		return nil
	})
}
