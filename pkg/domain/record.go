package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"time"
)

// Record is the flat, JSON-safe unit of storage: field name to value. Values
// are nil, bool, int64, float64, string, []any, map[string]any, a reference
// token (see Token) or a canonical timestamp (see EncodeTime).
type Record map[string]any

const (
	refMarker  = "$ref"
	idMarker   = "$id"
	timeMarker = "$time"
)

// Token returns the reference token standing in for the record named by key.
func Token(key EntityKey) map[string]any {
	return map[string]any{refMarker: key.Type, idMarker: key.ID}
}

// AsToken reports whether v is a reference token and returns the key it names.
func AsToken(v any) (EntityKey, bool) {
	m, ok := v.(map[string]any)
	if !ok || len(m) != 2 {
		return EntityKey{}, false
	}
	typ, ok := m[refMarker].(string)
	if !ok {
		return EntityKey{}, false
	}
	id, ok := asInt64(m[idMarker])
	if !ok {
		return EntityKey{}, false
	}
	return EntityKey{Type: typ, ID: id}, true
}

// EncodeTime renders t in the single canonical representation used inside
// records. The instant is normalized to UTC and the monotonic reading dropped.
func EncodeTime(t time.Time) map[string]any {
	return map[string]any{timeMarker: t.UTC().Round(0).Format(time.RFC3339Nano)}
}

// DecodeTime reverses EncodeTime. The boolean is false when v is not an
// encoded timestamp; an error reports a marker with an unparsable payload.
func DecodeTime(v any) (time.Time, bool, error) {
	m, ok := v.(map[string]any)
	if !ok || len(m) != 1 {
		return time.Time{}, false, nil
	}
	raw, ok := m[timeMarker]
	if !ok {
		return time.Time{}, false, nil
	}
	s, ok := raw.(string)
	if !ok {
		return time.Time{}, true, SerializationError{Field: timeMarker, Err: fmt.Errorf("timestamp payload %T is not a string", raw)}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, true, SerializationError{Field: timeMarker, Err: err}
	}
	return t.UTC(), true, nil
}

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			out[k] = cloneValue(inner)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = cloneValue(inner)
		}
		return out
	default:
		return v
	}
}

// ID returns the record's id field when present and integral.
func (r Record) ID() (int64, bool) {
	return asInt64(r["id"])
}

// MergeRecords performs the right-biased merge: every incoming field
// overwrites the stored one and stored fields missing from incoming survive.
// Neither argument is modified.
func MergeRecords(stored, incoming Record) Record {
	out := make(Record, len(stored)+len(incoming))
	for k, v := range stored {
		out[k] = cloneValue(v)
	}
	for k, v := range incoming {
		out[k] = cloneValue(v)
	}
	return out
}

// SameVersion compares stored and incoming field by field over the schema's
// scalar fields. Relationship fields never take part. A field present on one
// side only counts as a difference. A nil stored record is never the same.
func SameVersion(stored, incoming Record, schema *Schema) bool {
	if stored == nil {
		return false
	}
	names := make(map[string]struct{})
	if schema != nil {
		for _, f := range schema.Fields {
			names[f.Name] = struct{}{}
		}
	} else {
		for k := range stored {
			names[k] = struct{}{}
		}
		for k := range incoming {
			names[k] = struct{}{}
		}
	}
	for name := range names {
		if schema != nil && schema.IsRelationship(name) {
			continue
		}
		a, inA := stored[name]
		b, inB := incoming[name]
		if inA != inB {
			return false
		}
		if inA && !ValuesEqual(a, b) {
			return false
		}
	}
	return true
}

// ValuesEqual compares two record values structurally. Numbers compare by
// value regardless of their Go representation so that a record decoded from
// JSON equals the record that produced it.
func ValuesEqual(a, b any) bool {
	if ai, ok := asInt64(a); ok {
		if bi, ok := asInt64(b); ok {
			return ai == bi
		}
	}
	if an, ok := asFloat(a); ok {
		bn, ok := asFloat(b)
		return ok && an == bn
	}
	switch av := a.(type) {
	case map[string]any:
		bv, ok := toPlainMap(b).(map[string]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			other, ok := bv[k]
			if !ok || !ValuesEqual(v, other) {
				return false
			}
		}
		return true
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !ValuesEqual(av[i], bv[i]) {
				return false
			}
		}
		return true
	case Record:
		return ValuesEqual(map[string]any(av), toPlainMap(b))
	default:
		if bv, ok := b.(Record); ok {
			return ValuesEqual(a, map[string]any(bv))
		}
		return reflect.DeepEqual(a, b)
	}
}

func toPlainMap(v any) any {
	if r, ok := v.(Record); ok {
		return map[string]any(r)
	}
	return v
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return int64(n), true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case float64:
		if n != math.Trunc(n) || math.Abs(n) >= 1<<63 {
			return 0, false
		}
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	default:
		return 0, false
	}
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	if i, ok := asInt64(v); ok {
		return float64(i), true
	}
	return 0, false
}

// AsInt64 converts any integral Go or JSON number to int64.
func AsInt64(v any) (int64, bool) { return asInt64(v) }

// AsFloat64 converts any Go or JSON number to float64.
func AsFloat64(v any) (float64, bool) { return asFloat(v) }
