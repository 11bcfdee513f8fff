package core

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"time"

	"romekv/pkg/domain"
)

// normalizeField coerces v into the representation held by entities for a
// field of the given kind. nil is accepted for every kind.
func normalizeField(spec domain.FieldSpec, v any, scope *Scope) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch spec.Kind {
	case domain.KindString:
		s, ok := v.(string)
		if !ok {
			return nil, kindError(spec, v)
		}
		return s, nil
	case domain.KindInt:
		if i, ok := domain.AsInt64(v); ok {
			return i, nil
		}
		if f, ok := domain.AsFloat64(v); ok && f == math.Trunc(f) && math.Abs(f) < 1<<63 {
			return int64(f), nil
		}
		return nil, kindError(spec, v)
	case domain.KindFloat:
		f, ok := domain.AsFloat64(v)
		if !ok {
			return nil, kindError(spec, v)
		}
		return f, nil
	case domain.KindBool:
		b, ok := v.(bool)
		if !ok {
			return nil, kindError(spec, v)
		}
		return b, nil
	case domain.KindTime:
		return normalizeTime(spec, v)
	case domain.KindRef:
		switch ref := v.(type) {
		case Object:
			return ref, nil
		case map[string]any:
			key, ok := domain.AsToken(ref)
			if !ok {
				return nil, kindError(spec, v)
			}
			if scope != nil {
				return scope.Ref(key.Type, key.ID), nil
			}
			return domain.Token(key), nil
		}
		return nil, kindError(spec, v)
	case domain.KindList:
		rv := reflect.ValueOf(v)
		if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
			return nil, kindError(spec, v)
		}
		return normalizeGeneric(v)
	default:
		return normalizeGeneric(v)
	}
}

func normalizeTime(spec domain.FieldSpec, v any) (any, error) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), nil
	case *time.Time:
		if t == nil {
			return nil, nil
		}
		return t.UTC(), nil
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			return nil, domain.SerializationError{Field: spec.Name, Err: err}
		}
		return parsed.UTC(), nil
	case map[string]any:
		parsed, ok, err := domain.DecodeTime(t)
		if err != nil {
			return nil, domain.SerializationError{Field: spec.Name, Err: err}
		}
		if !ok {
			return nil, kindError(spec, v)
		}
		return parsed, nil
	}
	return nil, kindError(spec, v)
}

func kindError(spec domain.FieldSpec, v any) error {
	return domain.SerializationError{Field: spec.Name, Err: fmt.Errorf("%T is not a valid %s value", v, spec.Kind)}
}

// normalizeGeneric maps arbitrary Go values onto the entity value space:
// integers become int64, floats float64, times UTC, containers []any and
// map[string]any. Objects pass through untouched.
func normalizeGeneric(v any) (any, error) {
	switch val := v.(type) {
	case nil, bool, string, int64, float64, Object:
		return val, nil
	case int, int8, int16, int32, uint, uint8, uint16, uint32, uint64:
		i, ok := domain.AsInt64(val)
		if !ok {
			return nil, fmt.Errorf("integer %v overflows int64", val)
		}
		return i, nil
	case float32:
		return float64(val), nil
	case json.Number:
		return domain.NormalizeValue(val)
	case time.Time:
		return val.UTC(), nil
	case *time.Time:
		if val == nil {
			return nil, nil
		}
		return val.UTC(), nil
	case domain.Record:
		return normalizeGeneric(map[string]any(val))
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			nv, err := normalizeGeneric(inner)
			if err != nil {
				return nil, err
			}
			out[i] = nv
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			nv, err := normalizeGeneric(inner)
			if err != nil {
				return nil, err
			}
			out[k] = nv
		}
		return out, nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := range out {
			nv, err := normalizeGeneric(rv.Index(i).Interface())
			if err != nil {
				return nil, err
			}
			out[i] = nv
		}
		return out, nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, fmt.Errorf("map keys must be strings, got %s", rv.Type().Key())
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			nv, err := normalizeGeneric(iter.Value().Interface())
			if err != nil {
				return nil, err
			}
			out[iter.Key().String()] = nv
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported value of type %T", v)
}

// plainValue flattens an entity value for predicate evaluation: references
// collapse to their ids and timestamps to time.Time.
func plainValue(v any) any {
	if key, ok := domain.AsToken(v); ok {
		return key.ID
	}
	if t, ok, err := domain.DecodeTime(v); ok && err == nil {
		return t
	}
	switch val := v.(type) {
	case Object:
		return val.Key().ID
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = plainValue(inner)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			out[k] = plainValue(inner)
		}
		return out
	}
	return v
}
