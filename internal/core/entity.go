package core

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"romekv/pkg/domain"
)

// Object is the capability surface shared by materialized entities and lazy
// references. Containers hold Objects, never concrete proxies.
type Object interface {
	Key() domain.EntityKey
	Get(field string) (any, error)
	Set(field string, value any) error
	Materialize(ctx context.Context) (*Entity, error)
}

// Entity is a materialized, schema-bound record. Scalar fields hold values in
// the entity value space (see normalizeGeneric); absent fields are distinct
// from fields set to nil. Relationship slots hold either an installed proxy
// or objects assigned by the caller.
type Entity struct {
	mu        sync.RWMutex
	typ       string
	schema    *domain.Schema
	fields    map[string]any
	relations map[string]any
	scope     *Scope
	session   Session
}

func newEntity(schema *domain.Schema, scope *Scope) *Entity {
	return &Entity{
		typ:       schema.Table,
		schema:    schema,
		fields:    make(map[string]any),
		relations: make(map[string]any),
		scope:     scope,
	}
}

// newPlaceholder builds the empty stand-in returned when a type tag cannot be
// resolved. It has no schema and accepts no writes.
func newPlaceholder(key domain.EntityKey, scope *Scope) *Entity {
	return &Entity{
		typ:       key.Type,
		fields:    map[string]any{domain.FieldID: key.ID},
		relations: make(map[string]any),
		scope:     scope,
	}
}

// Schema returns the entity's schema; nil for unresolved placeholders.
func (e *Entity) Schema() *domain.Schema { return e.schema }

// Type returns the entity's type tag.
func (e *Entity) Type() string { return e.typ }

// ID returns the assigned id, or zero.
func (e *Entity) ID() int64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	id, _ := domain.AsInt64(e.fields[domain.FieldID])
	return id
}

// Key implements Object.
func (e *Entity) Key() domain.EntityKey {
	return domain.NewKey(e.typ, e.ID())
}

func (e *Entity) String() string { return e.Key().String() }

// Materialize implements Object; an entity is already materialized.
func (e *Entity) Materialize(context.Context) (*Entity, error) { return e, nil }

// Placeholder reports whether the entity stands in for an unresolved type.
func (e *Entity) Placeholder() bool { return e.schema == nil }

// Has reports whether a scalar field is present (possibly nil).
func (e *Entity) Has(field string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.fields[field]
	return ok
}

// Get implements Object. Relationship fields return the installed proxy
// (*LazyCollection or *LazySingle) or the objects assigned by the caller.
func (e *Entity) Get(field string) (any, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.schema == nil {
		return e.fields[field], nil
	}
	if e.schema.IsRelationship(field) {
		return e.relations[field], nil
	}
	if v, ok := e.fields[field]; ok {
		return v, nil
	}
	if _, ok := e.schema.Field(field); ok {
		return nil, nil
	}
	return nil, domain.UnknownFieldError{Type: e.schema.Name, Field: field}
}

// Set implements Object. The value is normalized by field kind, stored
// immediately and reported to the bound session, if any.
func (e *Entity) Set(field string, value any) error {
	if err := e.set(field, value); err != nil {
		return err
	}
	e.notify(context.Background(), e)
	return nil
}

func (e *Entity) set(field string, value any) error {
	if e.schema == nil {
		return domain.UnresolvedTypeError{Type: e.typ}
	}
	if rel, ok := e.schema.Relationship(field); ok {
		assigned, err := normalizeRelation(rel, value)
		if err != nil {
			return err
		}
		e.mu.Lock()
		if assigned == nil {
			delete(e.relations, field)
		} else {
			e.relations[field] = assigned
		}
		e.mu.Unlock()
		return nil
	}
	spec, ok := e.schema.Field(field)
	if !ok {
		return domain.UnknownFieldError{Type: e.schema.Name, Field: field}
	}
	v, err := normalizeField(spec, value, e.scope)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if field == domain.FieldID {
		current, _ := domain.AsInt64(e.fields[domain.FieldID])
		next, _ := domain.AsInt64(v)
		if current > 0 && next != current {
			return domain.ImmutableIDError{Key: domain.NewKey(e.typ, current), Attempted: value}
		}
	}
	e.fields[field] = v
	return nil
}

func (e *Entity) notify(ctx context.Context, obj Object) {
	e.mu.RLock()
	s := e.session
	e.mu.RUnlock()
	notifySession(ctx, s, obj, e.logger())
}

func notifySession(ctx context.Context, s Session, obj Object, log Logger) {
	if s == nil {
		return
	}
	if err := s.Add(ctx, obj); err != nil {
		log.Warn("session rejected mutation", "key", obj.Key().String(), "error", err)
	}
}

// BindSession attaches a session collaborator notified on every Set.
func (e *Entity) BindSession(s Session) {
	e.mu.Lock()
	e.session = s
	e.mu.Unlock()
}

// Fields returns a snapshot of the present scalar fields.
func (e *Entity) Fields() domain.Record {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(domain.Record, len(e.fields))
	for k, v := range e.fields {
		out[k] = v
	}
	return out
}

// FieldNames lists present scalar fields in lexical order.
func (e *Entity) FieldNames() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	names := make([]string, 0, len(e.fields))
	for k := range e.fields {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Related resolves a relationship field into entities: proxies are resolved
// through their query, assigned objects are materialized. Nothing assigned
// yields an empty result.
func (e *Entity) Related(ctx context.Context, field string) ([]*Entity, error) {
	v, err := e.Get(field)
	if err != nil {
		return nil, err
	}
	if e.schema == nil || !e.schema.IsRelationship(field) {
		return nil, fmt.Errorf("%s.%s is not a relationship", e.typ, field)
	}
	switch slot := v.(type) {
	case nil:
		return nil, nil
	case *LazyCollection:
		return slot.Entities(ctx), nil
	case *LazySingle:
		if one := slot.Entity(ctx); one != nil {
			return []*Entity{one}, nil
		}
		return nil, nil
	case Object:
		one, err := slot.Materialize(ctx)
		if err != nil {
			return nil, err
		}
		return []*Entity{one}, nil
	case []Object:
		out := make([]*Entity, 0, len(slot))
		for _, obj := range slot {
			one, err := obj.Materialize(ctx)
			if err != nil {
				return nil, err
			}
			out = append(out, one)
		}
		return out, nil
	}
	return nil, fmt.Errorf("%s.%s holds unexpected %T", e.typ, field, v)
}

// assigned returns caller-assigned objects of a relationship slot; installed
// proxies yield nothing.
func (e *Entity) assigned(field string) []Object {
	e.mu.RLock()
	defer e.mu.RUnlock()
	switch slot := e.relations[field].(type) {
	case Object:
		return []Object{slot}
	case []Object:
		out := make([]Object, len(slot))
		copy(out, slot)
		return out
	}
	return nil
}

// snapshot copies both maps under the read lock.
func (e *Entity) snapshot() (map[string]any, map[string]any) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	fields := make(map[string]any, len(e.fields))
	for k, v := range e.fields {
		fields[k] = v
	}
	rels := make(map[string]any, len(e.relations))
	for k, v := range e.relations {
		rels[k] = v
	}
	return fields, rels
}

func (e *Entity) setRaw(field string, v any) {
	e.mu.Lock()
	e.fields[field] = v
	e.mu.Unlock()
}

func (e *Entity) rawField(field string) (any, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	v, ok := e.fields[field]
	return v, ok
}

func (e *Entity) assignID(id int64) {
	e.setRaw(domain.FieldID, id)
}

func (e *Entity) attach(scope *Scope) {
	e.mu.Lock()
	if e.scope == nil {
		e.scope = scope
	}
	e.mu.Unlock()
}

// installProxy sets proxy unless the slot already holds something.
func (e *Entity) installProxy(field string, proxy any) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, taken := e.relations[field]; taken {
		return false
	}
	e.relations[field] = proxy
	return true
}

func (e *Entity) logger() Logger {
	e.mu.RLock()
	s := e.scope
	e.mu.RUnlock()
	if s == nil || s.rt == nil {
		return noopLogger{}
	}
	return s.rt.logger
}

// normalizeRelation validates a value assigned to a relationship field. One
// relations hold a single Object, many relations an []Object.
func normalizeRelation(rel domain.RelationshipDescriptor, value any) (any, error) {
	var objs []Object
	switch v := value.(type) {
	case nil:
		return nil, nil
	case Object:
		objs = []Object{v}
	case []Object:
		objs = v
	case []*Entity:
		for _, e := range v {
			objs = append(objs, e)
		}
	case []*LazyRef:
		for _, r := range v {
			objs = append(objs, r)
		}
	case []any:
		for _, item := range v {
			obj, ok := item.(Object)
			if !ok {
				return nil, domain.SerializationError{Field: rel.Name, Err: fmt.Errorf("%T is not an entity", item)}
			}
			objs = append(objs, obj)
		}
	default:
		return nil, domain.SerializationError{Field: rel.Name, Err: fmt.Errorf("%T cannot be assigned to a relationship", value)}
	}
	if rel.Cardinality == domain.CardinalityOne {
		if len(objs) > 1 {
			return nil, domain.SerializationError{Field: rel.Name, Err: fmt.Errorf("expected one object, got %d", len(objs))}
		}
		if len(objs) == 0 {
			return nil, nil
		}
		return objs[0], nil
	}
	out := make([]Object, len(objs))
	copy(out, objs)
	return out, nil
}
