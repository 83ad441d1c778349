package kv

import (
	"database/sql"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Manager hands out buckets by name.
type Manager struct {
	db *sql.DB

	mu      sync.Mutex
	buckets map[string]Bucket
}

// NewManager creates a manager. A nil db makes every bucket in-memory.
func NewManager(db *sql.DB) *Manager {
	return &Manager{db: db, buckets: make(map[string]Bucket)}
}

// Bucket returns the named bucket, creating it on first use. Persistent
// buckets need an attached database and fall back to memory without one.
func (m *Manager) Bucket(name string, persistent bool) Bucket {
	m.mu.Lock()
	defer m.mu.Unlock()

	if b, ok := m.buckets[name]; ok {
		return b
	}

	var b Bucket = NewMemoryBucket(name)
	if persistent && m.db != nil {
		b = NewSQLiteBucket(m.db, name)
	}
	m.buckets[name] = b

	log.Debug().Str("bucket", name).Bool("persistent", b.IsPersistent()).Msg("Opened KV bucket")
	return b
}

// Prune drops expired values from the database and from every memory
// bucket handed out so far.
func (m *Manager) Prune() (int64, error) {
	now := time.Now()

	var total int64
	if m.db != nil {
		n, err := PruneExpired(m.db, now)
		if err != nil {
			return 0, err
		}
		total = n
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.buckets {
		if mb, ok := b.(*MemoryBucket); ok {
			total += int64(mb.Prune(now))
		}
	}

	if total > 0 {
		log.Debug().Int64("count", total).Msg("Pruned expired KV values")
	}
	return total, nil
}
