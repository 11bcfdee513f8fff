package domain

import (
	"errors"
	"math"
	"testing"
	"time"
)

func TestRecordCodecRoundTrip(t *testing.T) {
	rec := Record{
		"id":         int64(4),
		"label":      "net",
		"ratio":      0.25,
		"whole":      float64(3),
		"enabled":    true,
		"nothing":    nil,
		"network":    Token(NewKey("networks", 1)),
		"created_at": EncodeTime(time.Date(2025, 1, 2, 3, 4, 5, 6, time.UTC)),
		"tags":       []any{"a", int64(2), Token(NewKey("tags", 9))},
	}
	b, err := EncodeRecord(rec)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := DecodeRecord(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !ValuesEqual(Record(rec), got) {
		t.Fatalf("round trip mismatch:\n%v\n%v", rec, got)
	}
	if _, ok := got["id"].(int64); !ok {
		t.Fatalf("integral numbers should decode to int64, got %T", got["id"])
	}
	if _, ok := got["ratio"].(float64); !ok {
		t.Fatalf("fractional numbers should decode to float64, got %T", got["ratio"])
	}
	if key, ok := AsToken(got["network"]); !ok || key.ID != 1 {
		t.Fatalf("token lost in round trip: %v", got["network"])
	}
}

func TestEncodeRecordRejectsUnsupported(t *testing.T) {
	_, err := EncodeRecord(Record{"bad": math.Inf(1)})
	var serr SerializationError
	if !errors.As(err, &serr) || serr.Field != "bad" {
		t.Fatalf("expected serialization error for bad, got %v", err)
	}
	if _, err := EncodeRecord(Record{"ch": make(chan int)}); err == nil {
		t.Fatalf("expected error for channel value")
	}
	if _, err := DecodeRecord([]byte("{not json")); err == nil {
		t.Fatalf("expected decode error")
	}
}
