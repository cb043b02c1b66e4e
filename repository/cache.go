package repository

import "context"

// EntityCache is a read-through cache over individual documents. All methods
// are best-effort; callers treat cache failures as misses.
type EntityCache interface {
	// Get unmarshals the cached document into dst and reports whether it hit.
	Get(ctx context.Context, collection, id string, dst interface{}) (bool, error)
	Set(ctx context.Context, collection, id string, value interface{}) error
	Invalidate(ctx context.Context, collection string, ids ...string) error
}
