package kv

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// SQLiteBucket stores values as rows of kv_store keyed by (bucket, key).
// Expiry is kept in unix seconds; NULL never expires.
type SQLiteBucket struct {
	db   *sql.DB
	name string
}

// NewSQLiteBucket binds a bucket name to the database.
func NewSQLiteBucket(db *sql.DB, name string) *SQLiteBucket {
	return &SQLiteBucket{db: db, name: name}
}

func (b *SQLiteBucket) Name() string      { return b.name }
func (b *SQLiteBucket) IsPersistent() bool { return true }

func (b *SQLiteBucket) Store(key string, value any, opts *StoreOptions) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", b.name, key, err)
	}

	now := time.Now()
	var expires sql.NullInt64
	if d := deadline(opts, now); !d.IsZero() {
		expires = sql.NullInt64{Int64: d.Unix(), Valid: true}
	}

	_, err = b.db.Exec(`
		INSERT INTO kv_store (bucket, key, value, expires_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(bucket, key) DO UPDATE SET
			value = excluded.value,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at
	`, b.name, key, string(raw), expires, now.Unix(), now.Unix())
	if err != nil {
		return fmt.Errorf("store %s/%s: %w", b.name, key, err)
	}
	return nil
}

func (b *SQLiteBucket) Load(key string, dst any) (bool, error) {
	var raw string
	err := b.db.QueryRow(`
		SELECT value FROM kv_store
		WHERE bucket = ? AND key = ? AND (expires_at IS NULL OR expires_at > ?)
	`, b.name, key, time.Now().Unix()).Scan(&raw)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("load %s/%s: %w", b.name, key, err)
	}

	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return false, fmt.Errorf("decode %s/%s: %w", b.name, key, err)
	}
	return true, nil
}

func (b *SQLiteBucket) Delete(key string) (bool, error) {
	res, err := b.db.Exec(`
		DELETE FROM kv_store
		WHERE bucket = ? AND key = ? AND (expires_at IS NULL OR expires_at > ?)
	`, b.name, key, time.Now().Unix())
	if err != nil {
		return false, fmt.Errorf("delete %s/%s: %w", b.name, key, err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (b *SQLiteBucket) Keys() ([]string, error) {
	rows, err := b.db.Query(`
		SELECT key FROM kv_store
		WHERE bucket = ? AND (expires_at IS NULL OR expires_at > ?)
		ORDER BY key
	`, b.name, time.Now().Unix())
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", b.name, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (b *SQLiteBucket) Clear() error {
	if _, err := b.db.Exec(`DELETE FROM kv_store WHERE bucket = ?`, b.name); err != nil {
		return fmt.Errorf("clear %s: %w", b.name, err)
	}
	return nil
}

// PruneExpired deletes expired rows of every bucket.
func PruneExpired(db *sql.DB, now time.Time) (int64, error) {
	res, err := db.Exec(`DELETE FROM kv_store WHERE expires_at IS NOT NULL AND expires_at <= ?`, now.Unix())
	if err != nil {
		return 0, fmt.Errorf("prune kv_store: %w", err)
	}
	return res.RowsAffected()
}
