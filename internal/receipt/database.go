package receipt

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/zombor/pantry-tracker/internal/boltdb"
)

const (
	bucketName         = "receipts"
	versionsBucketName = "receipt_versions"
	hashesBucketName   = "receipt_hashes"
)

// ErrVersionConflict is returned when a write does not follow the stored version
var ErrVersionConflict = errors.New("version conflict")

// Snapshot is a consistent view of the committed receipts at one log version
type Snapshot struct {
	Version  uint64
	Receipts []*Receipt
}

// DB defines the interface for database operations
type DB interface {
	// SaveReceipt stores the current version of a receipt, archiving the
	// version it replaces, and advances the log version
	SaveReceipt(receipt *Receipt) error

	// GetReceipt retrieves the current version of a receipt by ID
	GetReceipt(id string) (*Receipt, error)

	// FindByHash retrieves the receipt committed from a file with the given content hash
	FindByHash(hash string) (*Receipt, error)

	// ListReceipts returns the current version of all receipts
	ListReceipts() ([]*Receipt, error)

	// Versions returns every stored version of a receipt, oldest first
	Versions(id string) ([]*Receipt, error)

	// Snapshot returns all receipts and the log version in one read
	Snapshot() (*Snapshot, error)

	// LogVersion returns the number of writes made to the receipt log
	LogVersion() (uint64, error)
}

// BoltDB implements the DB interface using BoltDB
type BoltDB struct {
	db *bbolt.DB
}

// NewBoltDB creates the receipt buckets on a shared bbolt handle
func NewBoltDB(db *bbolt.DB) (*BoltDB, error) {
	if err := boltdb.CreateBuckets(db, bucketName, versionsBucketName, hashesBucketName); err != nil {
		return nil, err
	}
	return &BoltDB{db: db}, nil
}

func versionKey(id string, version int) []byte {
	return []byte(fmt.Sprintf("%s/%010d", id, version))
}

// SaveReceipt saves a receipt to the database. Replacing a stored receipt
// requires the next version number; replaying the stored record is a no-op.
func (b *BoltDB) SaveReceipt(receipt *Receipt) error {
	data, err := json.Marshal(receipt)
	if err != nil {
		return fmt.Errorf("marshaling receipt: %w", err)
	}

	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketName))

		if prev := bucket.Get([]byte(receipt.ID)); prev != nil {
			if bytes.Equal(prev, data) {
				return nil
			}
			var old Receipt
			if err := json.Unmarshal(prev, &old); err != nil {
				return fmt.Errorf("unmarshaling receipt: %w", err)
			}
			if receipt.Version != old.Version+1 {
				return fmt.Errorf("%w: receipt %s is at version %d, got %d", ErrVersionConflict, old.ID, old.Version, receipt.Version)
			}
			if err := tx.Bucket([]byte(versionsBucketName)).Put(versionKey(old.ID, old.Version), prev); err != nil {
				return fmt.Errorf("archiving version: %w", err)
			}
		}

		if err := bucket.Put([]byte(receipt.ID), data); err != nil {
			return err
		}
		if receipt.ContentHash != "" {
			if err := tx.Bucket([]byte(hashesBucketName)).Put([]byte(receipt.ContentHash), []byte(receipt.ID)); err != nil {
				return fmt.Errorf("indexing hash: %w", err)
			}
		}
		if _, err := bucket.NextSequence(); err != nil {
			return fmt.Errorf("advancing log version: %w", err)
		}
		return nil
	})
}

func getReceipt(tx *bbolt.Tx, id string) (*Receipt, error) {
	data := tx.Bucket([]byte(bucketName)).Get([]byte(id))
	if data == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	var receipt Receipt
	if err := json.Unmarshal(data, &receipt); err != nil {
		return nil, fmt.Errorf("unmarshaling receipt: %w", err)
	}
	return &receipt, nil
}

// GetReceipt retrieves a receipt by ID
func (b *BoltDB) GetReceipt(id string) (*Receipt, error) {
	var receipt *Receipt
	err := b.db.View(func(tx *bbolt.Tx) error {
		var err error
		receipt, err = getReceipt(tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

// FindByHash retrieves a receipt by the hash of its source file
func (b *BoltDB) FindByHash(hash string) (*Receipt, error) {
	var receipt *Receipt
	err := b.db.View(func(tx *bbolt.Tx) error {
		id := tx.Bucket([]byte(hashesBucketName)).Get([]byte(hash))
		if id == nil {
			return fmt.Errorf("%w: hash %s", ErrNotFound, hash)
		}
		var err error
		receipt, err = getReceipt(tx, string(id))
		return err
	})
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

func listReceipts(tx *bbolt.Tx) ([]*Receipt, error) {
	receipts := make([]*Receipt, 0)
	err := tx.Bucket([]byte(bucketName)).ForEach(func(k, v []byte) error {
		var receipt Receipt
		if err := json.Unmarshal(v, &receipt); err != nil {
			return fmt.Errorf("unmarshaling receipt: %w", err)
		}
		receipts = append(receipts, &receipt)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return receipts, nil
}

// ListReceipts returns all receipts
func (b *BoltDB) ListReceipts() ([]*Receipt, error) {
	var receipts []*Receipt
	err := b.db.View(func(tx *bbolt.Tx) error {
		var err error
		receipts, err = listReceipts(tx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return receipts, nil
}

// Versions returns archived versions followed by the current one
func (b *BoltDB) Versions(id string) ([]*Receipt, error) {
	versions := make([]*Receipt, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		current, err := getReceipt(tx, id)
		if err != nil {
			return err
		}

		prefix := []byte(id + "/")
		c := tx.Bucket([]byte(versionsBucketName)).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var receipt Receipt
			if err := json.Unmarshal(v, &receipt); err != nil {
				return fmt.Errorf("unmarshaling receipt version: %w", err)
			}
			versions = append(versions, &receipt)
		}
		versions = append(versions, current)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return versions, nil
}

// Snapshot reads all receipts and the log version in a single transaction
func (b *BoltDB) Snapshot() (*Snapshot, error) {
	snap := &Snapshot{}
	err := b.db.View(func(tx *bbolt.Tx) error {
		receipts, err := listReceipts(tx)
		if err != nil {
			return err
		}
		snap.Receipts = receipts
		snap.Version = tx.Bucket([]byte(bucketName)).Sequence()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// LogVersion reads the log version without loading receipts
func (b *BoltDB) LogVersion() (uint64, error) {
	var version uint64
	err := b.db.View(func(tx *bbolt.Tx) error {
		version = tx.Bucket([]byte(bucketName)).Sequence()
		return nil
	})
	return version, err
}
