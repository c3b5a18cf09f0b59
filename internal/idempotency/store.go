// Package idempotency replays the first result of a keyed request instead of
// executing it again.
package idempotency

import (
	"context"
	"errors"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/sync/singleflight"
)

// ErrKeyReused is returned when a key comes back with a different payload
var ErrKeyReused = errors.New("idempotency key already used for a different request")

// Fingerprint identifies a request payload
type Fingerprint [blake2b.Size256]byte

func FingerprintOf(payload []byte) Fingerprint {
	return blake2b.Sum256(payload)
}

type entry[T any] struct {
	fp    Fingerprint
	value T
}

// Store remembers successful results per (scope, key) for ttl. Failed
// executions are not remembered so the client may retry them. Expired keys are
// dropped by the cache in the background.
type Store[T any] struct {
	cache *expirable.LRU[string, entry[T]]
	group singleflight.Group
}

func NewStore[T any](capacity int, ttl time.Duration) *Store[T] {
	return &Store[T]{cache: expirable.NewLRU[string, entry[T]](capacity, nil, ttl)}
}

// Do runs fn once per (scope, key). A repeated call with the same payload
// returns the stored value and replayed=true; concurrent duplicates wait for
// the first execution. An empty key always executes fn.
func (s *Store[T]) Do(ctx context.Context, scope, key string, payload []byte, fn func(context.Context) (T, error)) (value T, replayed bool, err error) {
	if key == "" {
		value, err = fn(ctx)
		return value, false, err
	}

	fp := FingerprintOf(payload)
	cacheKey := scope + "\x00" + key

	executed := false
	v, err, _ := s.group.Do(cacheKey, func() (any, error) {
		if e, ok := s.cache.Get(cacheKey); ok {
			return e, nil
		}
		res, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		executed = true
		e := entry[T]{fp: fp, value: res}
		s.cache.Add(cacheKey, e)
		return e, nil
	})
	if err != nil {
		var zero T
		return zero, false, err
	}

	e := v.(entry[T])
	if e.fp != fp {
		var zero T
		return zero, false, ErrKeyReused
	}
	return e.value, !executed, nil
}

// Len reports how many keys are remembered, counting expired ones the
// cache has not dropped yet.
func (s *Store[T]) Len() int {
	return s.cache.Len()
}
