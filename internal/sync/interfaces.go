// Package sync implements the catalog import engine for Holocron. It walks a
// remote collection to the end, resolves every raw record to its remote id,
// and asks the store to get-or-create a local record for it. Existing records
// are never modified by an import, so re-running a sync is safe and only
// reports records that are new.
//
// The package also hosts the vote counter, which bumps the popularity count
// of one stored record.
package sync

import (
	"context"

	"github.com/njoerd114/holocron/internal/model"
)

// Fetcher returns every raw record of a remote resource collection, or an
// error and no records.
// Implemented by [swapi.Client].
type Fetcher interface {
	FetchAll(ctx context.Context, resource string) ([]model.RemoteRecord, error)
}

// Store persists records. GetOrCreate must be atomic per identity and
// IncrementVotes must not lose concurrent increments.
// Implemented by [store.Store].
type Store interface {
	GetOrCreate(ctx context.Context, rec model.Record) (model.Record, model.Outcome, error)
	IncrementVotes(ctx context.Context, kind model.Kind, id int64) (model.Record, error)
}
