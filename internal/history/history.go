// Package history keeps an append-only record of key presses and refreshes.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// Kind distinguishes a key press from a state refresh
type Kind string

const (
	KindDispatch Kind = "dispatch"
	KindRefresh  Kind = "refresh"
)

// Entry represents one recorded outcome
type Entry struct {
	ID         int64     `json:"id"`
	DispatchID string    `json:"dispatch_id"`
	Kind       Kind      `json:"kind"`
	Context    string    `json:"context"`
	TargetType string    `json:"target_type,omitempty"`
	Target     string    `json:"target,omitempty"` // device id, comma-joined group ids or scene id
	Command    string    `json:"command,omitempty"`
	Label      string    `json:"label"`
	Error      string    `json:"error,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// History provides append-only outcome logging
type History struct {
	db *sql.DB
}

// New creates a History using the provided database connection
func New(db *sql.DB) *History {
	return &History{db: db}
}

// Record appends an entry. A zero Timestamp is set to now.
func (h *History) Record(e Entry) error {
	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	_, err := h.db.Exec(`
		INSERT INTO dispatch_history (dispatch_id, kind, context, target_type, target, command, label, error, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.DispatchID, string(e.Kind), e.Context, e.TargetType, e.Target, e.Command, e.Label, e.Error, ts.UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to record history entry: %w", err)
	}
	return nil
}

// Recent returns the newest entries, optionally filtered by key context
func (h *History) Recent(keyContext string, limit int) ([]*Entry, error) {
	if limit <= 0 {
		limit = 50
	}

	var (
		rows *sql.Rows
		err  error
	)
	if keyContext == "" {
		rows, err = h.db.Query(`
			SELECT id, dispatch_id, kind, context, target_type, target, command, label, error, timestamp
			FROM dispatch_history
			ORDER BY timestamp DESC, id DESC
			LIMIT ?
		`, limit)
	} else {
		rows, err = h.db.Query(`
			SELECT id, dispatch_id, kind, context, target_type, target, command, label, error, timestamp
			FROM dispatch_history
			WHERE context = ?
			ORDER BY timestamp DESC, id DESC
			LIMIT ?
		`, keyContext, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEntries(rows)
}

// DeleteOlderThan removes entries older than the specified duration (retention policy)
func (h *History) DeleteOlderThan(retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention).UTC().UnixMilli()
	result, err := h.db.Exec(`DELETE FROM dispatch_history WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// RunCleanup deletes expired entries every interval until ctx is done.
func (h *History) RunCleanup(ctx context.Context, interval, retention time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := h.DeleteOlderThan(retention)
			if err != nil {
				log.Error().Err(err).Msg("Failed to cleanup old history entries")
			} else if deleted > 0 {
				log.Info().Int64("deleted", deleted).Dur("retention", retention).Msg("Cleaned up old history entries")
			}
		}
	}
}

func scanEntries(rows *sql.Rows) ([]*Entry, error) {
	var entries []*Entry
	for rows.Next() {
		var (
			entry                                       Entry
			kind                                        string
			targetType, target, command, label, errText sql.NullString
			timestamp                                   int64
		)

		err := rows.Scan(
			&entry.ID, &entry.DispatchID, &kind, &entry.Context,
			&targetType, &target, &command, &label, &errText, &timestamp,
		)
		if err != nil {
			return nil, err
		}

		entry.Kind = Kind(kind)
		entry.TargetType = targetType.String
		entry.Target = target.String
		entry.Command = command.String
		entry.Label = label.String
		entry.Error = errText.String
		entry.Timestamp = time.UnixMilli(timestamp).UTC()

		entries = append(entries, &entry)
	}

	return entries, rows.Err()
}
