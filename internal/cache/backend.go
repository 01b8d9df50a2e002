// Package cache holds disposable, TTL-bounded copies of catalog data. Nothing
// in here is a source of truth: callers must behave identically, only slower,
// when every lookup misses.
package cache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrMiss = errors.New("cache miss")

// Backend is a byte-oriented key/value store with per-key TTL.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	// Keys lists every live key starting with prefix. Cost is linear in the
	// number of keys held.
	Keys(ctx context.Context, prefix string) ([]string, error)
	Ping(ctx context.Context) error
}

const scanBatch = 100

type RedisBackend struct {
	rdb redis.UniversalClient
}

func NewRedisBackend(rdb redis.UniversalClient) *RedisBackend {
	return &RedisBackend{rdb: rdb}
}

func (b *RedisBackend) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := b.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	return v, err
}

func (b *RedisBackend) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	return b.rdb.Set(ctx, key, val, ttl).Err()
}

func (b *RedisBackend) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return b.rdb.Del(ctx, keys...).Err()
}

func (b *RedisBackend) Keys(ctx context.Context, prefix string) ([]string, error) {
	var out []string
	iter := b.rdb.Scan(ctx, 0, escapeGlob(prefix)+"*", scanBatch).Iterator()
	for iter.Next(ctx) {
		out = append(out, iter.Val())
	}
	return out, iter.Err()
}

func (b *RedisBackend) Ping(ctx context.Context) error {
	return b.rdb.Ping(ctx).Err()
}

func escapeGlob(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)
	return r.Replace(s)
}

type memEntry struct {
	val     []byte
	expires time.Time
}

// MemBackend is an in-process Backend. Expired entries are dropped lazily.
type MemBackend struct {
	mu  sync.Mutex
	m   map[string]memEntry
	now func() time.Time
}

func NewMemBackend() *MemBackend {
	return &MemBackend{m: make(map[string]memEntry), now: time.Now}
}

func (b *MemBackend) Get(_ context.Context, key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.m[key]
	if !ok {
		return nil, ErrMiss
	}
	if b.expired(e) {
		delete(b.m, key)
		return nil, ErrMiss
	}
	return append([]byte(nil), e.val...), nil
}

func (b *MemBackend) Set(_ context.Context, key string, val []byte, ttl time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	e := memEntry{val: append([]byte(nil), val...)}
	if ttl > 0 {
		e.expires = b.now().Add(ttl)
	}
	b.m[key] = e
	return nil
}

func (b *MemBackend) Del(_ context.Context, keys ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, k := range keys {
		delete(b.m, k)
	}
	return nil
}

func (b *MemBackend) Keys(_ context.Context, prefix string) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []string
	for k, e := range b.m {
		if b.expired(e) {
			delete(b.m, k)
			continue
		}
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	return out, nil
}

func (b *MemBackend) Ping(context.Context) error { return nil }

func (b *MemBackend) expired(e memEntry) bool {
	return !e.expires.IsZero() && !b.now().Before(e.expires)
}
