// Package cache is the durable local snapshot store. It keeps the last-known
// full copy of each entity table so managers can bootstrap without a network
// round trip and keep serving data when the backend is unreachable.
//
// The cache is best-effort: once the network is available it is never the
// sole source of truth, and managers log rather than fail when a cache write
// goes wrong.
package cache

import (
	"github.com/VishalT25/companion-sync/pkg/models"
)

// TableCache is the contract one operation manager holds over one table's
// snapshot.
type TableCache[T models.Record] interface {
	// StoreAll replaces the full snapshot with items.
	StoreAll(items []T) error
	// Put upserts a single record into the existing snapshot.
	Put(item T) error
	// Update is Put under the name the mutation paths use; at snapshot
	// level an update and an insert are the same upsert.
	Update(item T) error
	// Delete removes a single record from the snapshot.
	Delete(id string) error
	// Retrieve returns the current snapshot, empty if none was ever stored.
	Retrieve() ([]T, error)
}
