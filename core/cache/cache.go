// Package cache holds the result cache used by cacheable cursors: the backend
// contract, deterministic query-shape keys and the document codec.
package cache

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/vmihailenco/msgpack/v5"
)

// KeyPrefix is prepended to every generated key.
const KeyPrefix = "odm:"

var (
	// ErrMiss is returned by a backend when a key holds no value.
	ErrMiss = errors.New("cache miss")
	// ErrCorrupt is returned when a cached value cannot be decoded.
	ErrCorrupt = errors.New("corrupt cache entry")
)

// Backend stores opaque values by key. Implementations must be safe for
// concurrent use. A ttl of zero means the entry does not expire.
type Backend interface {
	Get(key string) ([]byte, error)
	Put(key string, value []byte, ttl time.Duration) error
}

// Key derives a cache key from a command name, a collection namespace and the
// command's parameters. Parameters are serialized with msgpack using sorted
// map keys, so equal inputs always produce equal keys regardless of map
// iteration order.
func Key(command, namespace string, params ...any) (string, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)

	if err := enc.EncodeString(command); err != nil {
		return "", fmt.Errorf("failed to encode cache key command: %w", err)
	}
	if err := enc.EncodeString(namespace); err != nil {
		return "", fmt.Errorf("failed to encode cache key namespace: %w", err)
	}
	for i, p := range params {
		if err := enc.Encode(p); err != nil {
			return "", fmt.Errorf("failed to encode cache key parameter %d: %w", i, err)
		}
	}

	return KeyPrefix + strconv.FormatUint(xxhash.Sum64(buf.Bytes()), 16), nil
}
