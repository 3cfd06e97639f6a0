package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/fieldsync/internal/record"
)

const cacheColumns = `table_name, id, data, created_at, fetched_at`

// PutCached inserts or replaces the cached snapshot for (table, id).
func (s *Store) PutCached(ctx context.Context, c record.CachedEntry) error {
	if err := putCached(ctx, s.db, c); err != nil {
		return fmt.Errorf("put cached: %w", err)
	}
	return nil
}

func putCached(ctx context.Context, q querier, c record.CachedEntry) error {
	data, err := marshalPayload(c.Data)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, `
		INSERT OR REPLACE INTO read_cache (`+cacheColumns+`)
		VALUES (?, ?, ?, ?, ?)
	`, c.Table, c.ID, data, toNanos(c.CreatedAt), toNanos(c.FetchedAt))
	return err
}

// GetCached returns the cached snapshot for (table, id) or ErrNotFound.
func (s *Store) GetCached(ctx context.Context, table, id string) (record.CachedEntry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+cacheColumns+` FROM read_cache WHERE table_name = ? AND id = ?`, table, id)
	c, err := scanCachedEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return record.CachedEntry{}, ErrNotFound
	}
	if err != nil {
		return record.CachedEntry{}, fmt.Errorf("get cached: %w", err)
	}
	return c, nil
}

// ListCached returns the cached snapshots for table ordered by id.
func (s *Store) ListCached(ctx context.Context, table string) ([]record.CachedEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+cacheColumns+`
		FROM read_cache
		WHERE table_name = ?
		ORDER BY id COLLATE BINARY ASC
	`, table)
	if err != nil {
		return nil, fmt.Errorf("query cache: %w", err)
	}
	defer rows.Close()

	entries := []record.CachedEntry{}
	for rows.Next() {
		c, err := scanCachedEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cache: %w", err)
	}
	return entries, nil
}

// DeleteCached removes the cached snapshot for (table, id).
func (s *Store) DeleteCached(ctx context.Context, table, id string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM read_cache WHERE table_name = ? AND id = ?`, table, id); err != nil {
		return fmt.Errorf("delete cached: %w", err)
	}
	return nil
}

// ClearCache removes every cached snapshot.
func (s *Store) ClearCache(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM read_cache`); err != nil {
		return fmt.Errorf("clear cache: %w", err)
	}
	return nil
}

// ReplaceCache swaps the cached snapshots of table for entries in a single
// transaction. Readers see either the old set or the new set, never a mix.
// Every entry's Table is overwritten with table.
func (s *Store) ReplaceCache(ctx context.Context, table string, entries []record.CachedEntry) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM read_cache WHERE table_name = ?`, table); err != nil {
			return err
		}
		for _, c := range entries {
			c.Table = table
			if err := putCached(ctx, tx, c); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("replace cache: %w", err)
	}
	return nil
}

func scanCachedEntry(row rowScanner) (record.CachedEntry, error) {
	var (
		c         record.CachedEntry
		data      string
		createdAt int64
		fetchedAt int64
	)
	if err := row.Scan(&c.Table, &c.ID, &data, &createdAt, &fetchedAt); err != nil {
		return record.CachedEntry{}, err
	}
	p, err := unmarshalPayload(data)
	if err != nil {
		return record.CachedEntry{}, err
	}
	c.Data = p
	c.CreatedAt = fromNanos(createdAt)
	c.FetchedAt = fromNanos(fetchedAt)
	return c, nil
}
