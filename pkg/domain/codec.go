package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// EncodeRecord serializes a record to JSON after checking that every value
// belongs to the canonical value space.
func EncodeRecord(rec Record) ([]byte, error) {
	for k, v := range rec {
		if err := checkValue(v); err != nil {
			return nil, SerializationError{Field: k, Err: err}
		}
	}
	b, err := json.Marshal(map[string]any(rec))
	if err != nil {
		return nil, SerializationError{Err: err}
	}
	return b, nil
}

// DecodeRecord parses JSON produced by EncodeRecord. Integral number literals
// become int64 and the rest float64, so numbers survive the round trip.
func DecodeRecord(b []byte) (Record, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, SerializationError{Err: fmt.Errorf("decode record: %w", err)}
	}
	out := make(Record, len(raw))
	for k, v := range raw {
		nv, err := normalizeDecoded(v)
		if err != nil {
			return nil, SerializationError{Field: k, Err: err}
		}
		out[k] = nv
	}
	return out, nil
}

// NormalizeValue converts a freshly decoded JSON value (json.Number and
// friends) into the canonical value space.
func NormalizeValue(v any) (any, error) { return normalizeDecoded(v) }

func normalizeDecoded(v any) (any, error) {
	switch val := v.(type) {
	case json.Number:
		s := val.String()
		if !strings.ContainsAny(s, ".eE") {
			if i, err := val.Int64(); err == nil {
				return i, nil
			}
		}
		f, err := val.Float64()
		if err != nil {
			return nil, err
		}
		return f, nil
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			nv, err := normalizeDecoded(inner)
			if err != nil {
				return nil, err
			}
			out[i] = nv
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			nv, err := normalizeDecoded(inner)
			if err != nil {
				return nil, err
			}
			out[k] = nv
		}
		return out, nil
	default:
		return v, nil
	}
}

func checkValue(v any) error {
	switch val := v.(type) {
	case nil, bool, string, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, json.Number:
		return nil
	case float32:
		return checkFloat(float64(val))
	case float64:
		return checkFloat(val)
	case []any:
		for _, inner := range val {
			if err := checkValue(inner); err != nil {
				return err
			}
		}
		return nil
	case map[string]any:
		for _, inner := range val {
			if err := checkValue(inner); err != nil {
				return err
			}
		}
		return nil
	case Record:
		return checkValue(map[string]any(val))
	default:
		return fmt.Errorf("unsupported value of type %T", v)
	}
}

func checkFloat(f float64) error {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("non-finite number %v", f)
	}
	return nil
}
