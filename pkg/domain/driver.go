package domain

import "context"

// Driver is the key-value storage contract consumed by the persistence core.
// Records are addressed by (type tag, id). All calls block until the backend
// answers; cancellation and timeouts are the backend's business and travel
// through ctx when it supports them.
type Driver interface {
	// Get returns the stored record or a NotFoundError.
	Get(ctx context.Context, typ string, id int64) (Record, error)
	// Put stores rec under (typ, id), replacing any previous record.
	Put(ctx context.Context, typ string, id int64, rec Record) error
	// NextKey books a fresh id for typ. Successive calls return strictly
	// increasing values and the counter is atomic at this boundary.
	NextKey(ctx context.Context, typ string) (int64, error)
	// AddKey records id in the index of live keys for typ.
	AddKey(ctx context.Context, typ string, id int64) error
	// RemoveKey drops id from the index of live keys for typ.
	RemoveKey(ctx context.Context, typ string, id int64) error
	// Keys lists the indexed ids of typ in ascending order.
	Keys(ctx context.Context, typ string) ([]int64, error)
	// Close releases backend resources.
	Close() error
}

// ModelRegistry is the read-only provider of entity schemas.
type ModelRegistry interface {
	// Resolve maps a type tag or canonical model name to its schema, or
	// fails with UnresolvedTypeError.
	Resolve(typeTag string) (*Schema, error)
}
