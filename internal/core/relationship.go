package core

import (
	"context"
	"errors"
	"sync"

	"romekv/pkg/domain"
)

// Proxy is an installed relationship slot that resolves on first access.
type Proxy interface {
	Descriptor() domain.RelationshipDescriptor
	Resolved() bool
	Invalidate()
}

// Resolver installs relationship proxies on freshly materialized entities.
// Descriptor tables come from the schemas handed out by the model registry;
// nothing is inspected at call time.
type Resolver struct {
	rt *runtime
}

// Install puts one proxy per relationship descriptor into every slot the
// caller has not assigned. It is idempotent.
func (r *Resolver) Install(e *Entity) {
	if e.schema == nil {
		return
	}
	for _, desc := range e.schema.Relationships {
		var proxy any
		if desc.Cardinality == domain.CardinalityOne {
			proxy = &LazySingle{relation: relation{desc: desc, owner: e, rt: r.rt}}
		} else {
			proxy = &LazyCollection{relation: relation{desc: desc, owner: e, rt: r.rt}}
		}
		e.installProxy(desc.Name, proxy)
	}
}

type relation struct {
	desc  domain.RelationshipDescriptor
	owner *Entity
	rt    *runtime

	mu       sync.Mutex
	resolved bool
}

// Descriptor returns the relationship this proxy resolves.
func (p *relation) Descriptor() domain.RelationshipDescriptor { return p.desc }

// Resolved reports whether the query already ran and its result is cached.
func (p *relation) Resolved() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.resolved
}

// find runs the filtered lookup. ok is false when the lookup could not run
// or failed; the caller then reports an empty result without caching it.
func (p *relation) find(ctx context.Context) ([]*Entity, bool) {
	local, present := p.owner.rawField(p.desc.LocalKey)
	if !present || local == nil {
		return nil, false
	}
	if ref, isObj := local.(Object); isObj {
		local = ref.Key().ID
	}
	scope := p.owner.scope
	if scope == nil {
		return nil, false
	}
	if p.desc.RemoteKey == domain.FieldID {
		// The remote key is the primary key: load by key instead of scanning.
		id, ok := domain.AsInt64(local)
		if !ok || id <= 0 {
			return nil, true
		}
		e, err := scope.Ref(p.desc.RemoteType, id).Materialize(ctx)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, true
			}
			p.rt.logger.Warn("relationship lookup failed", "owner", p.owner.Key().String(), "relationship", p.desc.Name, "error", err)
			return nil, false
		}
		return []*Entity{e}, true
	}
	out, err := p.rt.querier.Find(ctx, scope, p.desc.RemoteType, Filter{Field: p.desc.RemoteKey, Op: OpEq, Values: []any{local}})
	if err != nil {
		p.rt.logger.Warn("relationship lookup failed", "owner", p.owner.Key().String(), "relationship", p.desc.Name, "error", err)
		return nil, false
	}
	return out, true
}

// LazyCollection resolves a many relationship on first access and caches
// the ordered result as returned by the query collaborator.
type LazyCollection struct {
	relation
	items []*Entity
}

// Entities resolves the collection, querying only on first use. Failures
// degrade to an empty result and are retried on the next access.
func (c *LazyCollection) Entities(ctx context.Context) []*Entity {
	c.mu.Lock()
	if c.resolved {
		out := append([]*Entity(nil), c.items...)
		c.mu.Unlock()
		return out
	}
	c.mu.Unlock()

	items, ok := c.find(ctx)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.resolved {
		return append([]*Entity(nil), c.items...)
	}
	if ok {
		c.items = items
		c.resolved = true
	}
	return append([]*Entity(nil), items...)
}

// Len resolves the collection and returns its size.
func (c *LazyCollection) Len(ctx context.Context) int {
	return len(c.Entities(ctx))
}

// Invalidate drops the cached result; the next access queries again.
func (c *LazyCollection) Invalidate() {
	c.mu.Lock()
	c.items = nil
	c.resolved = false
	c.mu.Unlock()
}

// LazySingle resolves a one relationship; no match resolves to nil.
type LazySingle struct {
	relation
	item *Entity
}

// Entity resolves the reference, querying only on first use.
func (s *LazySingle) Entity(ctx context.Context) *Entity {
	s.mu.Lock()
	if s.resolved {
		item := s.item
		s.mu.Unlock()
		return item
	}
	s.mu.Unlock()

	items, ok := s.find(ctx)
	var item *Entity
	if len(items) > 0 {
		item = items[0]
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.resolved {
		return s.item
	}
	if ok {
		s.item = item
		s.resolved = true
	}
	return item
}

// Invalidate drops the cached result.
func (s *LazySingle) Invalidate() {
	s.mu.Lock()
	s.item = nil
	s.resolved = false
	s.mu.Unlock()
}

var (
	_ Proxy = (*LazyCollection)(nil)
	_ Proxy = (*LazySingle)(nil)
)
