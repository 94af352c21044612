package unread

import (
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

var (
	bucketUnread = []byte("unread")
	keyCounts    = []byte("counts")
)

// BboltPersister stores the unread-count map as a single JSON value in a
// local bbolt database.
type BboltPersister struct {
	db *bbolt.DB
}

// NewBboltPersister opens (or creates) the database file.
func NewBboltPersister(path string) (*BboltPersister, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bbolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketUnread)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create bucket: %w", err)
	}

	return &BboltPersister{db: db}, nil
}

// Save writes the whole map, replacing the previous value.
func (p *BboltPersister) Save(counts map[string]int) error {
	data, err := json.Marshal(counts)
	if err != nil {
		return err
	}
	return p.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketUnread).Put(keyCounts, data)
	})
}

// Load reads the stored map. A missing key yields a nil map and no error.
func (p *BboltPersister) Load() (map[string]int, error) {
	var counts map[string]int
	err := p.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketUnread).Get(keyCounts)
		if data == nil {
			return nil
		}
		return json.Unmarshal(data, &counts)
	})
	return counts, err
}

func (p *BboltPersister) Close() error {
	return p.db.Close()
}
