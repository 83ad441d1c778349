package kv

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"
)

type cell struct {
	raw     []byte
	expires time.Time
}

func (c cell) live(now time.Time) bool {
	return c.expires.IsZero() || now.Before(c.expires)
}

// MemoryBucket lives only as long as the process.
type MemoryBucket struct {
	name string

	mu    sync.Mutex
	cells map[string]cell
}

// NewMemoryBucket creates an empty in-memory bucket.
func NewMemoryBucket(name string) *MemoryBucket {
	return &MemoryBucket{name: name, cells: make(map[string]cell)}
}

func (b *MemoryBucket) Name() string      { return b.name }
func (b *MemoryBucket) IsPersistent() bool { return false }

func (b *MemoryBucket) Store(key string, value any, opts *StoreOptions) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", b.name, key, err)
	}
	now := time.Now()

	b.mu.Lock()
	b.cells[key] = cell{raw: raw, expires: deadline(opts, now)}
	b.mu.Unlock()
	return nil
}

func (b *MemoryBucket) Load(key string, dst any) (bool, error) {
	b.mu.Lock()
	c, ok := b.cells[key]
	if ok && !c.live(time.Now()) {
		delete(b.cells, key)
		ok = false
	}
	b.mu.Unlock()

	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(c.raw, dst); err != nil {
		return false, fmt.Errorf("decode %s/%s: %w", b.name, key, err)
	}
	return true, nil
}

func (b *MemoryBucket) Delete(key string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.cells[key]
	delete(b.cells, key)
	return ok && c.live(time.Now()), nil
}

func (b *MemoryBucket) Keys() ([]string, error) {
	now := time.Now()
	b.mu.Lock()
	keys := make([]string, 0, len(b.cells))
	for k, c := range b.cells {
		if c.live(now) {
			keys = append(keys, k)
		}
	}
	b.mu.Unlock()

	sort.Strings(keys)
	return keys, nil
}

func (b *MemoryBucket) Clear() error {
	b.mu.Lock()
	clear(b.cells)
	b.mu.Unlock()
	return nil
}

// Prune drops expired values and returns how many were dropped.
func (b *MemoryBucket) Prune(now time.Time) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := 0
	for k, c := range b.cells {
		if !c.live(now) {
			delete(b.cells, k)
			n++
		}
	}
	return n
}
