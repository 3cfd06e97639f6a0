package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/fieldsync/internal/record"
)

const overlayColumns = `table_name, id, data, created_offline, created_at`

// PutOverlay inserts or replaces the overlay row for (table, id).
func (s *Store) PutOverlay(ctx context.Context, o record.OverlayEntry) error {
	data, err := marshalPayload(o.Data)
	if err != nil {
		return fmt.Errorf("put overlay: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO optimistic_overlay (`+overlayColumns+`)
		VALUES (?, ?, ?, ?, ?)
	`, o.Table, o.ID, data, boolInt(o.CreatedOffline), toNanos(o.CreatedAt))
	if err != nil {
		return fmt.Errorf("put overlay: %w", err)
	}
	return nil
}

// GetOverlay returns the overlay row for (table, id) or ErrNotFound.
func (s *Store) GetOverlay(ctx context.Context, table, id string) (record.OverlayEntry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+overlayColumns+` FROM optimistic_overlay WHERE table_name = ? AND id = ?`, table, id)
	o, err := scanOverlayEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return record.OverlayEntry{}, ErrNotFound
	}
	if err != nil {
		return record.OverlayEntry{}, fmt.Errorf("get overlay: %w", err)
	}
	return o, nil
}

// ListOverlay returns overlay rows for table, or for every table when table is empty.
// Rows are ordered by table_name, id.
func (s *Store) ListOverlay(ctx context.Context, table string) ([]record.OverlayEntry, error) {
	query := `SELECT ` + overlayColumns + ` FROM optimistic_overlay`
	var args []any
	if table != "" {
		query += ` WHERE table_name = ?`
		args = append(args, table)
	}
	query += ` ORDER BY table_name ASC, id COLLATE BINARY ASC`
	return s.queryOverlay(ctx, query, args...)
}

// ListOverlayByIDs returns overlay rows in any table whose id is in ids.
func (s *Store) ListOverlayByIDs(ctx context.Context, ids []string) ([]record.OverlayEntry, error) {
	if len(ids) == 0 {
		return []record.OverlayEntry{}, nil
	}
	return s.queryOverlay(ctx, `
		SELECT `+overlayColumns+`
		FROM optimistic_overlay
		WHERE id IN (`+placeholders(len(ids))+`)
		ORDER BY table_name ASC, id COLLATE BINARY ASC
	`, stringArgs(ids)...)
}

// DeleteOverlay removes the overlay row for (table, id). Missing rows are not an error.
func (s *Store) DeleteOverlay(ctx context.Context, table, id string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM optimistic_overlay WHERE table_name = ? AND id = ?`, table, id); err != nil {
		return fmt.Errorf("delete overlay: %w", err)
	}
	return nil
}

// DeleteOverlayByIDs removes overlay rows in any table whose id is in ids and
// returns how many were removed.
func (s *Store) DeleteOverlayByIDs(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM optimistic_overlay WHERE id IN (`+placeholders(len(ids))+`)`, stringArgs(ids)...)
	if err != nil {
		return 0, fmt.Errorf("delete overlay by ids: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete overlay by ids: %w", err)
	}
	return int(n), nil
}

// ClearOverlay removes every overlay row.
func (s *Store) ClearOverlay(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM optimistic_overlay`); err != nil {
		return fmt.Errorf("clear overlay: %w", err)
	}
	return nil
}

func (s *Store) queryOverlay(ctx context.Context, query string, args ...any) ([]record.OverlayEntry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query overlay: %w", err)
	}
	defer rows.Close()

	entries := []record.OverlayEntry{}
	for rows.Next() {
		o, err := scanOverlayEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate overlay: %w", err)
	}
	return entries, nil
}

func scanOverlayEntry(row rowScanner) (record.OverlayEntry, error) {
	var (
		o         record.OverlayEntry
		data      string
		offline   int
		createdAt int64
	)
	if err := row.Scan(&o.Table, &o.ID, &data, &offline, &createdAt); err != nil {
		return record.OverlayEntry{}, err
	}
	p, err := unmarshalPayload(data)
	if err != nil {
		return record.OverlayEntry{}, err
	}
	o.Data = p
	o.IsOptimistic = true
	o.CreatedOffline = offline == 1
	o.CreatedAt = fromNanos(createdAt)
	return o, nil
}

func stringArgs(ss []string) []any {
	args := make([]any, len(ss))
	for i, s := range ss {
		args[i] = s
	}
	return args
}
