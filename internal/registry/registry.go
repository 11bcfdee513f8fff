// Package registry provides the model registry: the read-only source of
// entity schemas consumed by the persistence core.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"romekv/pkg/domain"
)

// Registry maps type tags and canonical model names onto schemas. It is
// populated once at startup and read concurrently afterwards.
type Registry struct {
	mu      sync.RWMutex
	version string
	byTable map[string]*domain.Schema
	byName  map[string]*domain.Schema
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{
		byTable: make(map[string]*domain.Schema),
		byName:  make(map[string]*domain.Schema),
	}
}

// Register adds a schema. Table tags and model names must be unique.
func (r *Registry) Register(s *domain.Schema) error {
	if s == nil {
		return fmt.Errorf("schema cannot be nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byTable[s.Table]; exists {
		return fmt.Errorf("table %q already registered", s.Table)
	}
	if _, exists := r.byName[s.Name]; exists {
		return fmt.Errorf("model %q already registered", s.Name)
	}
	r.byTable[s.Table] = s
	r.byName[s.Name] = s
	return nil
}

// Resolve accepts a table tag ("fixed_ips"), a canonical model name
// ("FixedIp") or any tag whose canonical form names a registered model.
func (r *Registry) Resolve(typeTag string) (*domain.Schema, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s, ok := r.byTable[typeTag]; ok {
		return s, nil
	}
	if s, ok := r.byName[typeTag]; ok {
		return s, nil
	}
	if s, ok := r.byName[domain.CanonicalName(typeTag)]; ok {
		return s, nil
	}
	return nil, domain.UnresolvedTypeError{Type: typeTag}
}

// Construct returns the schema an empty instance of name is built from.
func (r *Registry) Construct(name string) (*domain.Schema, error) {
	return r.Resolve(name)
}

// Schemas lists every registered schema ordered by table tag.
func (r *Registry) Schemas() []*domain.Schema {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domain.Schema, 0, len(r.byTable))
	for _, s := range r.byTable {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Table < out[j].Table })
	return out
}

// Version is the version string of the document the registry was loaded
// from, empty for registries built in code.
func (r *Registry) Version() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.version
}

// Validate checks that every relationship points at a registered type.
func (r *Registry) Validate() error {
	for _, s := range r.Schemas() {
		for _, rel := range s.Relationships {
			if _, err := r.Resolve(rel.RemoteType); err != nil {
				return fmt.Errorf("model %s relationship %s: %w", s.Name, rel.Name, err)
			}
		}
	}
	return nil
}
