package core

import (
	"encoding/json"

	"romekv/pkg/domain"
)

// Desimplifier turns stored record values back into entity values:
// reference tokens become lazy references bound to the scope, timestamp
// markers become time.Time, containers are rebuilt element by element.
type Desimplifier struct {
	scope *Scope
}

// NewDesimplifier binds a desimplifier to scope.
func NewDesimplifier(scope *Scope) Desimplifier {
	return Desimplifier{scope: scope}
}

// Value reconstructs one record value. Values that are already materialized
// (entities, lazy references, times) are returned unchanged.
func (d Desimplifier) Value(v any) (any, error) {
	switch val := v.(type) {
	case nil, bool, string, int64, float64, Object:
		return val, nil
	case json.Number:
		return domain.NormalizeValue(val)
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			nv, err := d.Value(inner)
			if err != nil {
				return nil, err
			}
			out[i] = nv
		}
		return out, nil
	case map[string]any:
		if key, ok := domain.AsToken(val); ok {
			return d.scope.Ref(key.Type, key.ID), nil
		}
		if t, ok, err := domain.DecodeTime(val); ok {
			if err != nil {
				return nil, err
			}
			return t, nil
		}
		out := make(map[string]any, len(val))
		for k, inner := range val {
			nv, err := d.Value(inner)
			if err != nil {
				return nil, err
			}
			out[k] = nv
		}
		return out, nil
	case domain.Record:
		return d.Value(map[string]any(val))
	}
	return v, nil
}

// Record reconstructs every field of rec.
func (d Desimplifier) Record(rec domain.Record) (map[string]any, error) {
	out := make(map[string]any, len(rec))
	for k, v := range rec {
		nv, err := d.Value(v)
		if err != nil {
			return nil, domain.SerializationError{Field: k, Err: err}
		}
		out[k] = nv
	}
	return out, nil
}
