package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/fieldsync/internal/record"
)

const quarantineColumns = pendingColumns + `, quarantined_at, reason, error_message, error_code`

// PutQuarantined inserts or replaces a quarantined entry.
func (s *Store) PutQuarantined(ctx context.Context, q record.QuarantinedEntry) error {
	if err := putQuarantined(ctx, s.db, q); err != nil {
		return fmt.Errorf("put quarantined: %w", err)
	}
	return nil
}

func putQuarantined(ctx context.Context, qr querier, q record.QuarantinedEntry) error {
	payload, err := marshalPayload(q.Payload)
	if err != nil {
		return err
	}
	_, err = qr.ExecContext(ctx, `
		INSERT OR REPLACE INTO quarantine (`+quarantineColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		q.EntryID,
		q.RecordID,
		q.Table,
		string(q.Action),
		payload,
		q.EnqueuedAt,
		q.RetryCount,
		nullString(q.LastError),
		nullNanos(q.LastErrorAt),
		toNanos(q.QuarantinedAt),
		string(q.Reason),
		q.ErrorMessage,
		nullString(q.ErrorCode),
	)
	return err
}

// GetQuarantined returns the quarantined entry with the given entry id.
// Returns ErrNotFound if it does not exist.
func (s *Store) GetQuarantined(ctx context.Context, entryID string) (record.QuarantinedEntry, error) {
	q, err := getQuarantined(ctx, s.db, entryID)
	if errors.Is(err, sql.ErrNoRows) {
		return record.QuarantinedEntry{}, ErrNotFound
	}
	if err != nil {
		return record.QuarantinedEntry{}, fmt.Errorf("get quarantined: %w", err)
	}
	return q, nil
}

func getQuarantined(ctx context.Context, qr querier, entryID string) (record.QuarantinedEntry, error) {
	row := qr.QueryRowContext(ctx, `SELECT `+quarantineColumns+` FROM quarantine WHERE entry_id = ?`, entryID)
	return scanQuarantinedEntry(row)
}

// ListQuarantined returns every quarantined entry ordered by quarantined_at ASC, entry_id ASC.
func (s *Store) ListQuarantined(ctx context.Context) ([]record.QuarantinedEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+quarantineColumns+`
		FROM quarantine
		ORDER BY quarantined_at ASC, entry_id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query quarantine: %w", err)
	}
	defer rows.Close()

	entries := []record.QuarantinedEntry{}
	for rows.Next() {
		q, err := scanQuarantinedEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate quarantine: %w", err)
	}
	return entries, nil
}

// DeleteQuarantined permanently removes a quarantined entry.
// Returns ErrNotFound if it does not exist.
func (s *Store) DeleteQuarantined(ctx context.Context, entryID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM quarantine WHERE entry_id = ?`, entryID)
	if err != nil {
		return fmt.Errorf("delete quarantined: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// ClearQuarantine permanently removes every quarantined entry and returns how many were removed.
func (s *Store) ClearQuarantine(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM quarantine`)
	if err != nil {
		return 0, fmt.Errorf("clear quarantine: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("clear quarantine: %w", err)
	}
	return int(n), nil
}

// CountQuarantined returns the number of quarantined entries.
func (s *Store) CountQuarantined(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM quarantine`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count quarantined: %w", err)
	}
	return n, nil
}

// Quarantine moves an entry from the pending queue into quarantine.
// The pending delete and quarantine insert commit together.
func (s *Store) Quarantine(ctx context.Context, q record.QuarantinedEntry) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM pending_queue WHERE entry_id = ?`, q.EntryID); err != nil {
			return err
		}
		return putQuarantined(ctx, tx, q)
	})
	if err != nil {
		return fmt.Errorf("quarantine entry: %w", err)
	}
	return nil
}

// Restore moves a quarantined entry back to the pending queue with its retry
// count reset and error metadata stripped. The entry keeps its original
// enqueued_at, so the next pass orders it like any other pending entry.
// Returns ErrNotFound if no quarantined entry has the given id.
func (s *Store) Restore(ctx context.Context, entryID string) (record.QueueEntry, error) {
	var restored record.QueueEntry
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		q, err := getQuarantined(ctx, tx, entryID)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM quarantine WHERE entry_id = ?`, entryID); err != nil {
			return err
		}
		restored = q.Requeued()
		return putPending(ctx, tx, restored)
	})
	if errors.Is(err, ErrNotFound) {
		return record.QueueEntry{}, ErrNotFound
	}
	if err != nil {
		return record.QueueEntry{}, fmt.Errorf("restore entry: %w", err)
	}
	return restored, nil
}

func scanQuarantinedEntry(row rowScanner) (record.QuarantinedEntry, error) {
	var (
		q             record.QuarantinedEntry
		action        string
		payload       string
		lastError     sql.NullString
		lastErrorAt   sql.NullInt64
		quarantinedAt int64
		reason        string
		errorCode     sql.NullString
	)
	if err := row.Scan(
		&q.EntryID,
		&q.RecordID,
		&q.Table,
		&action,
		&payload,
		&q.EnqueuedAt,
		&q.RetryCount,
		&lastError,
		&lastErrorAt,
		&quarantinedAt,
		&reason,
		&q.ErrorMessage,
		&errorCode,
	); err != nil {
		return record.QuarantinedEntry{}, err
	}

	p, err := unmarshalPayload(payload)
	if err != nil {
		return record.QuarantinedEntry{}, err
	}
	q.Action = record.Action(action)
	q.Payload = p
	q.LastError = lastError.String
	q.LastErrorAt = timePtr(lastErrorAt)
	q.QuarantinedAt = fromNanos(quarantinedAt)
	q.Reason = record.Reason(reason)
	q.ErrorCode = errorCode.String
	return q, nil
}
