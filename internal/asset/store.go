package asset

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned when no asset exists for the given identifier.
var ErrNotFound = errors.New("asset not found")

// ErrStaleStatus is returned when a status update loses against a concurrent
// transition; the caller re-reads and decides.
var ErrStaleStatus = errors.New("asset status changed concurrently")

// Page is a window into an owner's assets.
type Page struct {
	Assets []Asset
	Total  int64
	Limit  int64
	Offset int64
}

// Store persists asset records. Implementations must be safe for concurrent
// use.
type Store interface {
	Create(ctx context.Context, a *Asset) error
	Get(ctx context.Context, id string) (*Asset, error)
	List(ctx context.Context, ownerID string, limit, offset int64) (*Page, error)

	// UpdateStatus moves the asset from one lifecycle state to another. The
	// transition is applied only if the stored status still equals from;
	// otherwise ErrStaleStatus is returned.
	UpdateStatus(ctx context.Context, id string, from, to Status) error

	// SetProcessingResult records the external processor's output and the
	// resulting terminal status in one write.
	SetProcessingResult(ctx context.Context, id string, duration *int, thumbnailPath *string, to Status) error

	UpdateDetails(ctx context.Context, id, title, description string) (*Asset, error)

	// Delete removes the record if it exists and belongs to ownerID. It
	// reports whether a row was removed.
	Delete(ctx context.Context, id, ownerID string) (bool, error)

	Ping(ctx context.Context) error
	Close() error
}

// ValidateTransition guards a lifecycle step before it reaches the store.
func ValidateTransition(from, to Status) error {
	if !from.CanTransition(to) {
		return fmt.Errorf("illegal status transition %s -> %s", from, to)
	}
	return nil
}
