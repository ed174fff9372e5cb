// Package remote is the network-facing gateway to the authoritative store.
// One repository instance serves one entity table, scoped per owning user;
// the gateway holds no cross-call state and every call may run concurrently
// with any other.
package remote

import (
	"context"

	"github.com/VishalT25/companion-sync/pkg/models"
)

// Repository is the per-table CRUD contract the operation managers depend on.
// Implementations return errors from the package taxonomy: Create fails with
// NetworkError or ConstraintError, ReadAll with NetworkError, Update and
// Delete with NetworkError or NotFoundError.
type Repository[T models.Record] interface {
	// Create writes a new record and returns the canonical server copy.
	// The identifier is preserved; server-computed fields may change.
	Create(ctx context.Context, rec T, owner models.UserID) (T, error)

	// ReadAll returns every record of the table owned by owner.
	ReadAll(ctx context.Context, owner models.UserID) ([]T, error)

	// Update replaces the remote record and returns the canonical copy.
	Update(ctx context.Context, rec T, owner models.UserID) (T, error)

	// Delete removes the record stored under id.
	Delete(ctx context.Context, id string) error

	// Exists reports whether the record stored under id is visible
	// remotely. Used to confirm a parent before retrying a dependent
	// create.
	Exists(ctx context.Context, id string) (bool, error)
}
