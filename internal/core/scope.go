package core

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"romekv/pkg/domain"
)

// DefaultScopeLimit bounds the number of live request scopes.
const DefaultScopeLimit = 1024

// IdentityCache maps entity keys to the single materialized instance of
// each key within one request scope. Entries are never evicted individually.
type IdentityCache struct {
	mu      sync.Mutex
	entries map[string]*Entity
}

func newIdentityCache() *IdentityCache {
	return &IdentityCache{entries: make(map[string]*Entity)}
}

// Get returns the cached entity for key.
func (c *IdentityCache) Get(key domain.EntityKey) (*Entity, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key.String()]
	return e, ok
}

// getOrSpawn returns the cached entity for key or stores the result of spawn.
// The boolean is true when spawn ran.
func (c *IdentityCache) getOrSpawn(key domain.EntityKey, spawn func() *Entity) (*Entity, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := key.String()
	if e, ok := c.entries[k]; ok {
		return e, false
	}
	e := spawn()
	c.entries[k] = e
	return e, true
}

// adopt stores e under key unless another instance already owns the key.
// It returns the owning instance.
func (c *IdentityCache) adopt(key domain.EntityKey, e *Entity) (*Entity, bool) {
	return c.getOrSpawn(key, func() *Entity { return e })
}

// Len returns the number of cached entities.
func (c *IdentityCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Keys lists cached key strings in lexical order.
func (c *IdentityCache) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clear drops every cached entity.
func (c *IdentityCache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]*Entity)
	c.mu.Unlock()
}

// Scope is a request scope: a unit of work owning exactly one identity
// cache. Lazy references are interned per scope so equal keys share one
// handle.
type Scope struct {
	id    uuid.UUID
	ctx   context.Context
	rt    *runtime
	cache *IdentityCache

	mu   sync.Mutex
	refs map[string]*LazyRef
}

func newScope(ctx context.Context, rt *runtime) *Scope {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Scope{
		id:    uuid.New(),
		ctx:   ctx,
		rt:    rt,
		cache: newIdentityCache(),
		refs:  make(map[string]*LazyRef),
	}
}

// ID returns the opaque scope identifier.
func (s *Scope) ID() uuid.UUID { return s.id }

// Context returns the context the scope was opened with. Field access
// through Object.Get/Set, which takes no context, runs under it.
func (s *Scope) Context() context.Context { return s.ctx }

// Cache exposes the scope's identity cache.
func (s *Scope) Cache() *IdentityCache { return s.cache }

// Ref returns the lazy reference for (typ, id), creating it on first use.
// It never touches the driver.
func (s *Scope) Ref(typ string, id int64) *LazyRef {
	key := domain.NewKey(s.rt.tag(typ), id)
	k := key.String()
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.refs[k]; ok {
		return r
	}
	r := &LazyRef{key: key, scope: s}
	s.refs[k] = r
	return r
}

// Lookup returns the materialized entity for key, if any.
func (s *Scope) Lookup(key domain.EntityKey) (*Entity, bool) {
	return s.cache.Get(key)
}

func (s *Scope) release() {
	s.cache.Clear()
	s.mu.Lock()
	s.refs = make(map[string]*LazyRef)
	s.mu.Unlock()
}

// ScopeRegistry creates, tracks and disposes request scopes. It holds at
// most limit scopes; opening one more evicts the least recently used scope
// together with its whole identity cache.
type ScopeRegistry struct {
	rt     *runtime
	scopes *lru.Cache[uuid.UUID, *Scope]
}

func newScopeRegistry(rt *runtime, limit int) (*ScopeRegistry, error) {
	if limit <= 0 {
		limit = DefaultScopeLimit
	}
	scopes, err := lru.NewWithEvict(limit, func(id uuid.UUID, s *Scope) {
		rt.logger.Debug("request scope released", "scope", id.String(), "entities", s.cache.Len())
		s.release()
	})
	if err != nil {
		return nil, err
	}
	return &ScopeRegistry{rt: rt, scopes: scopes}, nil
}

// Open starts a new request scope bound to ctx.
func (r *ScopeRegistry) Open(ctx context.Context) *Scope {
	s := newScope(ctx, r.rt)
	r.scopes.Add(s.id, s)
	return s
}

// Get returns a live scope by id.
func (r *ScopeRegistry) Get(id uuid.UUID) (*Scope, bool) {
	return r.scopes.Get(id)
}

// Close disposes a scope and its identity cache. It reports whether the
// scope was live.
func (r *ScopeRegistry) Close(id uuid.UUID) bool {
	return r.scopes.Remove(id)
}

// Len returns the number of live scopes.
func (r *ScopeRegistry) Len() int { return r.scopes.Len() }
