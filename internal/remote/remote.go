// Package remote defines the boundary between the sync engine and the remote
// record store.
//
// Implementations translate transport failures into *Error values carrying an
// explicit Kind so that callers never inspect message text to decide whether
// a failure is an authentication problem, a conflict, or worth retrying.
package remote

import (
	"context"
	"time"

	"github.com/roach88/fieldsync/internal/record"
)

// Store is the remote record store the orchestrator replays mutations against.
type Store interface {
	// Insert creates a row in table and returns the server-assigned id.
	// The payload never contains the client-generated "id".
	Insert(ctx context.Context, table string, payload record.Payload) (string, error)

	// Exists reports whether a row with id exists in table.
	Exists(ctx context.Context, table, id string) (bool, error)

	// Update modifies the row with id in table.
	Update(ctx context.Context, table, id string, payload record.Payload) error

	// Delete removes the row with id from table. Returns ErrNotFound if no
	// such row exists.
	Delete(ctx context.Context, table, id string) error

	// List returns every row of table visible to the caller.
	List(ctx context.Context, table string) ([]Row, error)
}

// Pinger is implemented by remote stores that can answer a cheap health check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Row is one row fetched from the remote store.
type Row struct {
	ID        string
	Data      record.Payload
	CreatedAt time.Time
}
