// Package storage provides a local mirror of the remote entity collections.
//
// The engine never writes to the remote store. A mirror is a read-through copy
// that lets reports run offline or against a frozen snapshot; it implements
// fetch.Fetcher so the engine cannot tell it apart from the remote store.
package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/mmynk/cantina/internal/fetch"
)

// Mirror defines the interface for local snapshot storage.
// This abstraction allows swapping storage backends (SQLite, files, etc.)
// without changing the engine.
type Mirror interface {
	fetch.Fetcher

	// Replace atomically swaps the stored records of a collection and
	// returns the bookkeeping row written for the swap.
	Replace(ctx context.Context, collection fetch.Collection, docs []json.RawMessage) (*MirrorRun, error)

	// Runs returns the latest mirror run of each collection.
	Runs(ctx context.Context) ([]MirrorRun, error)

	// Close releases any resources held by the mirror.
	Close() error
}

// MirrorRun records one Replace of a collection.
type MirrorRun struct {
	// ID is the unique identifier for the run (UUID format).
	ID string

	// Collection is the collection that was replaced.
	Collection fetch.Collection

	// Records is the number of records stored.
	Records int

	// MirroredAt is when the swap was committed.
	MirroredAt time.Time
}
