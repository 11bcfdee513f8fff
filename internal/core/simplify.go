package core

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
	"time"

	"romekv/pkg/domain"
)

// Simplification is the result of flattening an object graph.
type Simplification struct {
	// Root is the JSON-safe form of the simplified value; a reference token
	// when the value was an entity.
	Root any
	// Records holds one record per distinct entity reached.
	Records map[domain.EntityKey]domain.Record
	// Targets maps each record back to the entity it was built from.
	Targets map[domain.EntityKey]*Entity
	// Order lists keys in discovery order, root first.
	Order []domain.EntityKey
}

type simplifier struct {
	out         *Simplification
	provisional map[*Entity]domain.EntityKey
	visited     map[string]struct{}
	nextTemp    int64
}

// Simplify flattens v into records. Entities become reference tokens and
// are visited once per key, so cyclic graphs terminate. Entities without an
// id receive a provisional negative key, stable for the duration of the call.
// Relationship slots are walked to discover assigned objects but never
// written into records. Inputs are not modified.
func Simplify(v any) (*Simplification, error) {
	s := &simplifier{
		out: &Simplification{
			Records: make(map[domain.EntityKey]domain.Record),
			Targets: make(map[domain.EntityKey]*Entity),
		},
		provisional: make(map[*Entity]domain.EntityKey),
		visited:     make(map[string]struct{}),
	}
	root, err := s.value("", v)
	if err != nil {
		return nil, err
	}
	s.out.Root = root
	return s.out, nil
}

func (s *simplifier) keyFor(e *Entity) domain.EntityKey {
	if id := e.ID(); id > 0 {
		return domain.NewKey(e.typ, id)
	}
	if k, ok := s.provisional[e]; ok {
		return k
	}
	s.nextTemp--
	k := domain.NewKey(e.typ, s.nextTemp)
	s.provisional[e] = k
	return k
}

func (s *simplifier) entity(e *Entity) (any, error) {
	if e.schema == nil {
		return nil, domain.UnresolvedTypeError{Type: e.typ}
	}
	key := s.keyFor(e)
	token := domain.Token(key)
	if _, seen := s.visited[key.String()]; seen {
		return token, nil
	}
	s.visited[key.String()] = struct{}{}
	s.out.Order = append(s.out.Order, key)
	s.out.Targets[key] = e

	fields, relations := e.snapshot()
	rec := make(domain.Record, len(fields)+1)
	for _, name := range fieldOrder(e.schema, fields) {
		if e.schema.IsRelationship(name) {
			continue
		}
		sv, err := s.value(name, fields[name])
		if err != nil {
			return nil, err
		}
		rec[name] = sv
	}
	rec[domain.FieldID] = key.ID
	s.out.Records[key] = rec

	for _, desc := range e.schema.Relationships {
		name := desc.Name
		var objs []Object
		switch assigned := relations[name].(type) {
		case Object:
			objs = []Object{assigned}
		case []Object:
			objs = assigned
		}
		for _, obj := range objs {
			if _, err := s.value(name, related(obj)); err != nil {
				return nil, err
			}
		}
	}
	return token, nil
}

// fieldOrder lists the names present in fields, declared fields first in
// declaration order and any others sorted after them. Discovery order, and
// with it the ids booked for new records, depends only on the graph.
func fieldOrder(schema *domain.Schema, fields map[string]any) []string {
	names := make([]string, 0, len(fields))
	declared := make(map[string]struct{}, len(schema.Fields))
	for _, f := range schema.Fields {
		declared[f.Name] = struct{}{}
		if _, ok := fields[f.Name]; ok {
			names = append(names, f.Name)
		}
	}
	var extra []string
	for name := range fields {
		if _, ok := declared[name]; !ok {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	return append(names, extra...)
}

// related swaps a lazy reference for its entity when the entity is already
// materialized, so foreign keys pushed into it get written.
func related(obj Object) Object {
	if ref, ok := obj.(*LazyRef); ok {
		if e, loaded := ref.scope.cache.Get(ref.key); loaded {
			return e
		}
	}
	return obj
}

func (s *simplifier) value(field string, v any) (any, error) {
	switch val := v.(type) {
	case nil, bool, string, int64:
		return val, nil
	case int, int8, int16, int32, uint, uint8, uint16, uint32, uint64:
		i, ok := domain.AsInt64(val)
		if !ok {
			return nil, domain.SerializationError{Field: field, Err: fmt.Errorf("integer %v overflows int64", val)}
		}
		return i, nil
	case float32:
		return s.float(field, float64(val))
	case float64:
		return s.float(field, val)
	case json.Number:
		nv, err := domain.NormalizeValue(val)
		if err != nil {
			return nil, domain.SerializationError{Field: field, Err: err}
		}
		return nv, nil
	case time.Time:
		return domain.EncodeTime(val), nil
	case *time.Time:
		if val == nil {
			return nil, nil
		}
		return domain.EncodeTime(*val), nil
	case *Entity:
		if val == nil {
			return nil, nil
		}
		return s.entity(val)
	case *LazyRef:
		return domain.Token(val.Key()), nil
	case *LazyCollection, *LazySingle:
		return nil, domain.SerializationError{Field: field, Err: fmt.Errorf("relationship proxy cannot be stored as a value")}
	case Object:
		return domain.Token(val.Key()), nil
	case domain.Record:
		return s.value(field, map[string]any(val))
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			sv, err := s.value(field, inner)
			if err != nil {
				return nil, err
			}
			out[i] = sv
		}
		return out, nil
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make(map[string]any, len(val))
		for _, k := range keys {
			sv, err := s.value(field, val[k])
			if err != nil {
				return nil, err
			}
			out[k] = sv
		}
		return out, nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := range out {
			sv, err := s.value(field, rv.Index(i).Interface())
			if err != nil {
				return nil, err
			}
			out[i] = sv
		}
		return out, nil
	case reflect.Map:
		if rv.Type().Key().Kind() == reflect.String {
			keys := rv.MapKeys()
			sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
			out := make(map[string]any, len(keys))
			for _, k := range keys {
				sv, err := s.value(field, rv.MapIndex(k).Interface())
				if err != nil {
					return nil, err
				}
				out[k.String()] = sv
			}
			return out, nil
		}
	}
	return nil, domain.SerializationError{Field: field, Err: fmt.Errorf("unsupported value of type %T", v)}
}

func (s *simplifier) float(field string, f float64) (any, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, domain.SerializationError{Field: field, Err: fmt.Errorf("non-finite number %v", f)}
	}
	return f, nil
}
