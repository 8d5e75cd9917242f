package analytics

import (
	"encoding/json"
	"errors"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/zombor/pantry-tracker/internal/boltdb"
)

const bucketName = "analysis_buckets"

// Cache stores derived reports. Entries may be dropped at any time.
type Cache interface {
	// Get returns the cached report for key, or nil if there is none
	Get(key string) (*Report, error)

	// Put stores a report under key
	Put(key string, report *Report) error

	// Clear drops every cached report
	Clear() error
}

// BoltCache implements Cache on a shared bbolt handle
type BoltCache struct {
	db *bbolt.DB
}

// NewBoltCache creates the cache bucket if needed
func NewBoltCache(db *bbolt.DB) (*BoltCache, error) {
	if err := boltdb.CreateBuckets(db, bucketName); err != nil {
		return nil, err
	}
	return &BoltCache{db: db}, nil
}

// Get returns a cached report
func (c *BoltCache) Get(key string) (*Report, error) {
	var report *Report
	err := c.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(bucketName)).Get([]byte(key))
		if data == nil {
			return nil
		}
		if err := json.Unmarshal(data, &report); err != nil {
			return fmt.Errorf("unmarshaling report: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

// Put stores a report
func (c *BoltCache) Put(key string, report *Report) error {
	return c.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(report)
		if err != nil {
			return fmt.Errorf("marshaling report: %w", err)
		}
		return tx.Bucket([]byte(bucketName)).Put([]byte(key), data)
	})
}

// Clear drops the cache bucket and recreates it empty
func (c *BoltCache) Clear() error {
	return c.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket([]byte(bucketName)); err != nil && !errors.Is(err, bbolt.ErrBucketNotFound) {
			return err
		}
		_, err := tx.CreateBucket([]byte(bucketName))
		return err
	})
}
