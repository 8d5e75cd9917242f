package category

import (
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/zombor/pantry-tracker/internal/boltdb"
)

const bucketName = "categories"

// DB defines the persistence operations for categories
type DB interface {
	// SaveCategory inserts or replaces a category by ID
	SaveCategory(c *Category) error

	// GetCategory retrieves a category by ID
	GetCategory(id ID) (*Category, error)

	// ListCategories returns all categories
	ListCategories() ([]*Category, error)

	// DeleteCategory removes a category
	DeleteCategory(id ID) error
}

// BoltDB implements DB on a shared bbolt handle
type BoltDB struct {
	db *bbolt.DB
}

// NewBoltDB creates the categories bucket if needed
func NewBoltDB(db *bbolt.DB) (*BoltDB, error) {
	if err := boltdb.CreateBuckets(db, bucketName); err != nil {
		return nil, err
	}
	return &BoltDB{db: db}, nil
}

// SaveCategory saves a category to the database
func (b *BoltDB) SaveCategory(c *Category) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(c)
		if err != nil {
			return fmt.Errorf("marshaling category: %w", err)
		}
		return tx.Bucket([]byte(bucketName)).Put([]byte(c.ID), data)
	})
}

// GetCategory retrieves a category by ID
func (b *BoltDB) GetCategory(id ID) (*Category, error) {
	var c *Category
	err := b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(bucketName)).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return json.Unmarshal(data, &c)
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// ListCategories returns all categories ordered by ID
func (b *BoltDB) ListCategories() ([]*Category, error) {
	categories := make([]*Category, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).ForEach(func(k, v []byte) error {
			var c Category
			if err := json.Unmarshal(v, &c); err != nil {
				return fmt.Errorf("unmarshaling category: %w", err)
			}
			categories = append(categories, &c)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return categories, nil
}

// DeleteCategory removes a category, failing if it does not exist
func (b *BoltDB) DeleteCategory(id ID) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketName))
		if bucket.Get([]byte(id)) == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return bucket.Delete([]byte(id))
	})
}
