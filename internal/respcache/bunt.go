package respcache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/tidwall/buntdb"
)

// BuntCache keeps responses in a buntdb database, in memory or on disk.
type BuntCache struct {
	db   *buntdb.DB
	path string
}

// NewBuntCache opens a cache at path, or in memory when path is empty.
func NewBuntCache(path string) (*BuntCache, error) {
	dbPath := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("creating cache directory: %w", err)
		}
		dbPath = path
	}

	db, err := buntdb.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening cache db: %w", err)
	}

	if err := db.SetConfig(buntdb.Config{
		SyncPolicy:           buntdb.EverySecond,
		AutoShrinkPercentage: 100,
		AutoShrinkMinSize:    32 * 1024 * 1024,
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("configuring cache db: %w", err)
	}

	return &BuntCache{db: db, path: dbPath}, nil
}

// Get returns the stored value; expired keys report a miss.
func (b *BuntCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	var val string
	err := b.db.View(func(tx *buntdb.Tx) error {
		v, err := tx.Get(key)
		if err != nil {
			return err
		}
		val = v
		return nil
	})
	if errors.Is(err, buntdb.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return []byte(val), true, nil
}

// Set stores value with a TTL; a non-positive ttl never expires.
func (b *BuntCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	var opts *buntdb.SetOptions
	if ttl > 0 {
		opts = &buntdb.SetOptions{Expires: true, TTL: ttl}
	}
	return b.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(key, string(value), opts)
		return err
	})
}

// Close closes the db.
func (b *BuntCache) Close() error {
	return b.db.Close()
}
