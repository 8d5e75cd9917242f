package pantry

import (
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/zombor/pantry-tracker/internal/boltdb"
)

const (
	bucketName           = "pantry"
	reconciledBucketName = "pantry_reconciled"
)

// DB defines the persistence operations for pantry entries
type DB interface {
	// GetEntries returns the existing entries for the given keys
	GetEntries(keys []string) (map[string]*Entry, error)

	// GetEntry retrieves one entry by product key
	GetEntry(key string) (*Entry, error)

	// ListEntries returns all entries
	ListEntries() ([]*Entry, error)

	// SaveEntry inserts or replaces one entry
	SaveEntry(e *Entry) error

	// DeleteEntries removes entries by key
	DeleteEntries(keys []string) error

	// IsReconciled reports whether a receipt has been applied
	IsReconciled(receiptID string) (bool, error)

	// Commit writes the entries and marks the receipt reconciled in one
	// transaction. It returns ErrAlreadyReconciled, writing nothing, if the
	// receipt was applied before.
	Commit(receiptID string, entries []*Entry, at time.Time) error
}

// BoltDB implements DB on a shared bbolt handle
type BoltDB struct {
	db *bbolt.DB
}

// NewBoltDB creates the pantry buckets if needed
func NewBoltDB(db *bbolt.DB) (*BoltDB, error) {
	if err := boltdb.CreateBuckets(db, bucketName, reconciledBucketName); err != nil {
		return nil, err
	}
	return &BoltDB{db: db}, nil
}

func getEntry(bucket *bbolt.Bucket, key string) (*Entry, error) {
	data := bucket.Get([]byte(key))
	if data == nil {
		return nil, nil
	}
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("unmarshaling pantry entry: %w", err)
	}
	return &e, nil
}

func putEntry(bucket *bbolt.Bucket, e *Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshaling pantry entry: %w", err)
	}
	return bucket.Put([]byte(e.Key), data)
}

// GetEntries returns the entries that exist for the given keys
func (b *BoltDB) GetEntries(keys []string) (map[string]*Entry, error) {
	entries := make(map[string]*Entry, len(keys))
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketName))
		for _, key := range keys {
			e, err := getEntry(bucket, key)
			if err != nil {
				return err
			}
			if e != nil {
				entries[key] = e
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// GetEntry retrieves one entry by product key
func (b *BoltDB) GetEntry(key string) (*Entry, error) {
	var e *Entry
	err := b.db.View(func(tx *bbolt.Tx) error {
		var err error
		e, err = getEntry(tx.Bucket([]byte(bucketName)), key)
		if err != nil {
			return err
		}
		if e == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return e, nil
}

// ListEntries returns all entries ordered by key
func (b *BoltDB) ListEntries() ([]*Entry, error) {
	entries := make([]*Entry, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).ForEach(func(k, v []byte) error {
			var e Entry
			if err := json.Unmarshal(v, &e); err != nil {
				return fmt.Errorf("unmarshaling pantry entry: %w", err)
			}
			entries = append(entries, &e)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// SaveEntry saves one entry
func (b *BoltDB) SaveEntry(e *Entry) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return putEntry(tx.Bucket([]byte(bucketName)), e)
	})
}

// DeleteEntries removes entries by key
func (b *BoltDB) DeleteEntries(keys []string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketName))
		for _, key := range keys {
			if err := bucket.Delete([]byte(key)); err != nil {
				return err
			}
		}
		return nil
	})
}

// IsReconciled reports whether a receipt has been applied
func (b *BoltDB) IsReconciled(receiptID string) (bool, error) {
	var done bool
	err := b.db.View(func(tx *bbolt.Tx) error {
		done = tx.Bucket([]byte(reconciledBucketName)).Get([]byte(receiptID)) != nil
		return nil
	})
	return done, err
}

// Commit applies a reconciliation atomically
func (b *BoltDB) Commit(receiptID string, entries []*Entry, at time.Time) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		marks := tx.Bucket([]byte(reconciledBucketName))
		if marks.Get([]byte(receiptID)) != nil {
			return ErrAlreadyReconciled
		}

		bucket := tx.Bucket([]byte(bucketName))
		for _, e := range entries {
			if err := putEntry(bucket, e); err != nil {
				return err
			}
		}
		return marks.Put([]byte(receiptID), []byte(at.UTC().Format(time.RFC3339Nano)))
	})
}
