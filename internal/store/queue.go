package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/fieldsync/internal/record"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const pendingColumns = `entry_id, record_id, table_name, action, payload, enqueued_at, retry_count, last_error, last_error_at`

// PutPending inserts or replaces a pending queue entry.
// Replacing is how the orchestrator persists an incremented retry count.
func (s *Store) PutPending(ctx context.Context, e record.QueueEntry) error {
	if err := putPending(ctx, s.db, e); err != nil {
		return fmt.Errorf("put pending: %w", err)
	}
	return nil
}

func putPending(ctx context.Context, q querier, e record.QueueEntry) error {
	payload, err := marshalPayload(e.Payload)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO pending_queue (`+pendingColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(entry_id) DO UPDATE SET
			record_id = excluded.record_id,
			table_name = excluded.table_name,
			action = excluded.action,
			payload = excluded.payload,
			enqueued_at = excluded.enqueued_at,
			retry_count = excluded.retry_count,
			last_error = excluded.last_error,
			last_error_at = excluded.last_error_at
	`,
		e.EntryID,
		e.RecordID,
		e.Table,
		string(e.Action),
		payload,
		e.EnqueuedAt,
		e.RetryCount,
		nullString(e.LastError),
		nullNanos(e.LastErrorAt),
	)
	return err
}

// GetPending returns the pending entry with the given entry id.
// Returns ErrNotFound if it does not exist.
func (s *Store) GetPending(ctx context.Context, entryID string) (record.QueueEntry, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+pendingColumns+` FROM pending_queue WHERE entry_id = ?`, entryID)
	e, err := scanQueueEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return record.QueueEntry{}, ErrNotFound
	}
	if err != nil {
		return record.QueueEntry{}, fmt.Errorf("get pending: %w", err)
	}
	return e, nil
}

// ListPending returns every pending entry ordered by enqueued_at ASC, entry_id ASC.
// Returns an empty slice (not nil) when the queue is empty.
func (s *Store) ListPending(ctx context.Context) ([]record.QueueEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+pendingColumns+`
		FROM pending_queue
		ORDER BY enqueued_at ASC, entry_id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query pending: %w", err)
	}
	defer rows.Close()

	entries := []record.QueueEntry{}
	for rows.Next() {
		e, err := scanQueueEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending: %w", err)
	}
	return entries, nil
}

// DeletePending removes a pending entry. Deleting a missing entry is not an error.
func (s *Store) DeletePending(ctx context.Context, entryID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM pending_queue WHERE entry_id = ?`, entryID); err != nil {
		return fmt.Errorf("delete pending: %w", err)
	}
	return nil
}

// ClearPending removes every pending entry.
func (s *Store) ClearPending(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM pending_queue`); err != nil {
		return fmt.Errorf("clear pending: %w", err)
	}
	return nil
}

// Complete removes a successfully replayed entry from the pending queue and,
// when clearOverlay is set, the overlay row for the same (table, record id).
// Both deletions commit together.
func (s *Store) Complete(ctx context.Context, e record.QueueEntry, clearOverlay bool) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM pending_queue WHERE entry_id = ?`, e.EntryID); err != nil {
			return err
		}
		if clearOverlay {
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM optimistic_overlay WHERE table_name = ? AND id = ?`, e.Table, e.RecordID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("complete entry: %w", err)
	}
	return nil
}

// CountPending counts pending entries whose table is in tables.
// An empty tables slice counts the whole queue.
func (s *Store) CountPending(ctx context.Context, tables []string) (int, error) {
	query := `SELECT COUNT(*) FROM pending_queue`
	args := make([]any, 0, len(tables))
	if len(tables) > 0 {
		query += ` WHERE table_name IN (` + placeholders(len(tables)) + `)`
		for _, t := range tables {
			args = append(args, t)
		}
	}

	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count pending: %w", err)
	}
	return n, nil
}

// HasPending reports whether any pending entry targets recordID in table.
func (s *Store) HasPending(ctx context.Context, recordID, table string) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM pending_queue WHERE table_name = ? AND record_id = ?)
	`, table, recordID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("has pending: %w", err)
	}
	return exists == 1, nil
}

// MaxEnqueuedAt returns the highest enqueued_at across the pending queue and
// quarantine, or 0 if both are empty. Used to seed the clock after a restart.
func (s *Store) MaxEnqueuedAt(ctx context.Context) (int64, error) {
	var max int64
	err := s.db.QueryRowContext(ctx, `
		SELECT MAX(
			COALESCE((SELECT MAX(enqueued_at) FROM pending_queue), 0),
			COALESCE((SELECT MAX(enqueued_at) FROM quarantine), 0)
		)
	`).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("max enqueued_at: %w", err)
	}
	return max, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanQueueEntry(row rowScanner) (record.QueueEntry, error) {
	var (
		e           record.QueueEntry
		action      string
		payload     string
		lastError   sql.NullString
		lastErrorAt sql.NullInt64
	)
	if err := row.Scan(
		&e.EntryID,
		&e.RecordID,
		&e.Table,
		&action,
		&payload,
		&e.EnqueuedAt,
		&e.RetryCount,
		&lastError,
		&lastErrorAt,
	); err != nil {
		return record.QueueEntry{}, err
	}

	p, err := unmarshalPayload(payload)
	if err != nil {
		return record.QueueEntry{}, err
	}
	e.Action = record.Action(action)
	e.Payload = p
	e.LastError = lastError.String
	e.LastErrorAt = timePtr(lastErrorAt)
	return e, nil
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
