package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"romekv/pkg/domain"
)

// LazyRef is a deferred handle to one (type, id) record. Building it and
// rendering it never reach the driver; the first field access materializes
// the record into the scope's identity cache.
type LazyRef struct {
	key   domain.EntityKey
	scope *Scope

	mu      sync.Mutex
	session Session
	version int
}

// Key implements Object.
func (r *LazyRef) Key() domain.EntityKey { return r.key }

// String renders the reference from its key alone.
func (r *LazyRef) String() string { return fmt.Sprintf("Lazy(%s)", r.key) }

// Equal reports whether other names the same record.
func (r *LazyRef) Equal(other Object) bool {
	return other != nil && other.Key().String() == r.key.String()
}

// Scope returns the request scope the reference resolves in.
func (r *LazyRef) Scope() *Scope { return r.scope }

// Loaded reports whether the referenced entity is materialized in the scope.
func (r *LazyRef) Loaded() bool {
	_, ok := r.scope.cache.Get(r.key)
	return ok
}

// Version is -1 before the reference is first loaded through it, 0 after
// loading and incremented by every Set.
func (r *LazyRef) Version() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.version == 0 && !r.Loaded() {
		return -1
	}
	return r.version
}

// BindSession attaches a session notified on every Set through this
// reference, and on the entity itself once materialized.
func (r *LazyRef) BindSession(s Session) *LazyRef {
	r.mu.Lock()
	r.session = s
	r.mu.Unlock()
	if e, ok := r.scope.cache.Get(r.key); ok {
		e.BindSession(s)
	}
	return r
}

// Materialize implements Object: it returns the cached entity or loads it.
func (r *LazyRef) Materialize(ctx context.Context) (*Entity, error) {
	if e, ok := r.scope.cache.Get(r.key); ok {
		return e, nil
	}
	return r.load(ctx, nil, false)
}

// Load fetches the record (unless rec is supplied) and applies it onto the
// scope's entity for this key, spawning the entity if needed. A missing
// record fails with domain.NotFoundError. An unmapped type fails with
// domain.UnresolvedTypeError and returns an empty placeholder alongside.
func (r *LazyRef) Load(ctx context.Context, rec domain.Record) (*Entity, error) {
	return r.load(ctx, rec, true)
}

func (r *LazyRef) load(ctx context.Context, rec domain.Record, refresh bool) (*Entity, error) {
	e, err := r.scope.rt.load(ctx, r.scope, r.key, rec, refresh)
	if err != nil {
		return e, err
	}
	r.mu.Lock()
	s := r.session
	r.mu.Unlock()
	if s != nil {
		e.BindSession(s)
	}
	return e, nil
}

// Get implements Object, materializing the entity first.
func (r *LazyRef) Get(field string) (any, error) {
	e, err := r.Materialize(r.scope.ctx)
	if err != nil {
		return nil, err
	}
	return e.Get(field)
}

// Set implements Object. The entity is materialized and mutated at once;
// the bound session, if any, is notified with this reference.
func (r *LazyRef) Set(field string, value any) error {
	e, err := r.Materialize(r.scope.ctx)
	if err != nil {
		return err
	}
	if err := e.set(field, value); err != nil {
		return err
	}
	r.mu.Lock()
	r.version++
	s := r.session
	r.mu.Unlock()
	if s == nil {
		e.notify(r.scope.ctx, r)
		return nil
	}
	notifySession(r.scope.ctx, s, r, r.scope.rt.logger)
	return nil
}

// load materializes key in scope. With refresh unset an entity already
// cached is returned as is; otherwise rec (fetched when nil) is applied
// onto it. Relationship proxies are installed when the entity is spawned.
func (rt *runtime) load(ctx context.Context, scope *Scope, key domain.EntityKey, rec domain.Record, refresh bool) (e *Entity, err error) {
	ctx, span := rt.tracer.Start(ctx, "load")
	start := time.Now()
	defer func() {
		span.End(err)
		rt.metrics.Observe(ctx, "load", err == nil, time.Since(start))
	}()

	if rec == nil {
		if !refresh {
			if cached, ok := scope.cache.Get(key); ok {
				return cached, nil
			}
		}
		rt.metrics.DriverLoad(key.Type)
		rec, err = rt.driver.Get(ctx, key.Type, key.ID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, err
			}
			return nil, fmt.Errorf("load %s: %w", key, err)
		}
	}
	schema, err := rt.models.Resolve(key.Type)
	if err != nil {
		return newPlaceholder(key, scope), err
	}
	key = domain.NewKey(schema.Table, key.ID)
	e, created := scope.cache.getOrSpawn(key, func() *Entity { return newEntity(schema, scope) })
	if !created && !refresh {
		return e, nil
	}
	rt.apply(scope, e, rec)
	e.assignID(key.ID)
	if created {
		rt.resolver.Install(e)
	}
	return e, nil
}

// apply reconstructs every record field onto e. Relationship fields are not
// stored in records and are ignored. A field that fails to reconstruct is
// left absent.
func (rt *runtime) apply(scope *Scope, e *Entity, rec domain.Record) {
	d := Desimplifier{scope: scope}
	values := make(map[string]any, len(rec))
	for name, raw := range rec {
		if e.schema.IsRelationship(name) {
			continue
		}
		v, err := d.Value(raw)
		if err == nil {
			if spec, ok := e.schema.Field(name); ok {
				v, err = normalizeField(spec, v, scope)
			}
		}
		if err != nil {
			rt.logger.Warn("dropping unreadable field", "key", e.Key().String(), "field", name, "error", err)
			continue
		}
		values[name] = v
	}
	e.mu.Lock()
	for name := range e.fields {
		if _, keep := values[name]; !keep {
			delete(e.fields, name)
		}
	}
	for name, v := range values {
		e.fields[name] = v
	}
	e.mu.Unlock()
}
