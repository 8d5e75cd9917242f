// Package boltdb opens the single bbolt file shared by the receipt log,
// category rules, pantry state and the analytics cache.
package boltdb

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

// Open opens (or creates) the database file at path
func Open(path string) (*bbolt.DB, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}
	return db, nil
}

// CreateBuckets creates the named top-level buckets if they don't exist
func CreateBuckets(db *bbolt.DB, names ...string) error {
	err := db.Update(func(tx *bbolt.Tx) error {
		for _, name := range names {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("creating buckets: %w", err)
	}
	return nil
}
