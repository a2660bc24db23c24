package cache

import (
	"encoding/binary"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
	"go.uber.org/zap"
)

var bucketName = []byte("odm-cache")

// stampSize is the length of the expiry stamp stored ahead of each value.
const stampSize = 8

// BoltBackend is a Backend persisted in a bbolt file, so cached windows
// survive restarts and can be shared by processes that open the file in
// turn.
type BoltBackend struct {
	db     *bbolt.DB
	now    func() time.Time
	logger *zap.Logger
}

var _ Backend = (*BoltBackend)(nil)

// NewBoltBackend opens or creates the cache file at path.
func NewBoltBackend(path string, opts *bbolt.Options, logger *zap.Logger) (*BoltBackend, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := bbolt.Open(path, 0o600, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache file: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create cache bucket: %w", err)
	}
	return &BoltBackend{db: db, now: time.Now, logger: logger}, nil
}

func (b *BoltBackend) expired(stamp uint64) bool {
	return stamp != 0 && uint64(b.now().UnixNano()) >= stamp
}

// Get returns the value stored under key. Expired entries are misses.
func (b *BoltBackend) Get(key string) ([]byte, error) {
	var out []byte
	err := b.db.View(func(tx *bbolt.Tx) error {
		value := tx.Bucket(bucketName).Get([]byte(key))
		if value == nil {
			return ErrMiss
		}
		if len(value) < stampSize {
			return fmt.Errorf("%w: entry %s is truncated", ErrCorrupt, key)
		}
		if b.expired(binary.BigEndian.Uint64(value[:stampSize])) {
			return ErrMiss
		}
		out = make([]byte, len(value)-stampSize)
		copy(out, value[stampSize:])
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Put stores value under key. A non-positive ttl never expires.
func (b *BoltBackend) Put(key string, value []byte, ttl time.Duration) error {
	var stamp uint64
	if ttl > 0 {
		stamp = uint64(b.now().Add(ttl).UnixNano())
	}
	data := make([]byte, stampSize+len(value))
	binary.BigEndian.PutUint64(data[:stampSize], stamp)
	copy(data[stampSize:], value)

	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketName).Put([]byte(key), data)
	})
}

// Sweep deletes expired entries and returns how many were removed.
func (b *BoltBackend) Sweep() (int, error) {
	removed := 0
	err := b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketName)
		var stale [][]byte
		err := bucket.ForEach(func(k, v []byte) error {
			if len(v) < stampSize || b.expired(binary.BigEndian.Uint64(v[:stampSize])) {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range stale {
			if err := bucket.Delete(k); err != nil {
				return err
			}
		}
		removed = len(stale)
		return nil
	})
	if err == nil && removed > 0 {
		b.logger.Debug("Swept expired cache entries", zap.Int("removed", removed))
	}
	return removed, err
}

// Close closes the cache file.
func (b *BoltBackend) Close() error {
	return b.db.Close()
}
