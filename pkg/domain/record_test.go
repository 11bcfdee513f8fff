package domain

import (
	"testing"
	"time"
)

func mustSchema(t *testing.T) *Schema {
	t.Helper()
	s, err := NewSchema("Service", "services",
		[]FieldSpec{{Name: "host", Kind: KindString}, {Name: "topic", Kind: KindString}, {Name: "report_count", Kind: KindInt}},
		[]RelationshipDescriptor{{Name: "compute_nodes", LocalKey: "id", RemoteType: "compute_nodes", RemoteKey: "service_id", Cardinality: CardinalityMany}},
	)
	if err != nil {
		t.Fatalf("schema: %v", err)
	}
	return s
}

func TestTokenRoundTrip(t *testing.T) {
	tok := Token(NewKey("networks", 7))
	key, ok := AsToken(tok)
	if !ok || key.Type != "networks" || key.ID != 7 {
		t.Fatalf("token did not round trip: %v %v", key, ok)
	}
	if _, ok := AsToken(map[string]any{"$ref": "networks"}); ok {
		t.Fatalf("incomplete token accepted")
	}
	if _, ok := AsToken("networks"); ok {
		t.Fatalf("scalar accepted as token")
	}
}

func TestTimeRoundTrip(t *testing.T) {
	loc := time.FixedZone("X", 3600)
	orig := time.Date(2024, 3, 9, 10, 11, 12, 123456789, loc)
	enc := EncodeTime(orig)
	got, ok, err := DecodeTime(enc)
	if err != nil || !ok {
		t.Fatalf("decode: ok=%v err=%v", ok, err)
	}
	if !got.Equal(orig) {
		t.Fatalf("time changed: %v vs %v", got, orig)
	}
	if got.Location() != time.UTC {
		t.Fatalf("expected UTC, got %v", got.Location())
	}
	if _, ok, _ := DecodeTime(map[string]any{"other": 1}); ok {
		t.Fatalf("non-time map decoded")
	}
	if _, ok, err := DecodeTime(map[string]any{"$time": "garbage"}); !ok || err == nil {
		t.Fatalf("expected serialization error for bad timestamp")
	}
}

func TestMergeRecordsRightBiased(t *testing.T) {
	stored := Record{"id": int64(5), "host": "orion-3", "topic": "consoleauth", "report_count": int64(0)}
	incoming := Record{"id": int64(5), "report_count": int64(1)}
	merged := MergeRecords(stored, incoming)
	if merged["report_count"] != int64(1) {
		t.Fatalf("incoming field should win: %v", merged["report_count"])
	}
	if merged["host"] != "orion-3" || merged["topic"] != "consoleauth" {
		t.Fatalf("stored fields lost: %v", merged)
	}
	if stored["report_count"] != int64(0) {
		t.Fatalf("merge mutated stored record")
	}
}

func TestSameVersionIgnoresRelationships(t *testing.T) {
	s := mustSchema(t)
	a := Record{"id": int64(1), "host": "a", "compute_nodes": []any{Token(NewKey("compute_nodes", 1))}}
	b := Record{"id": 1, "host": "a"}
	if !SameVersion(a, b, s) {
		t.Fatalf("relationship field should not take part in comparison")
	}
	b["topic"] = "x"
	if SameVersion(a, b, s) {
		t.Fatalf("field present on one side must differ")
	}
	if SameVersion(nil, b, s) {
		t.Fatalf("nil stored record is never the same version")
	}
}

func TestValuesEqualNumbers(t *testing.T) {
	if !ValuesEqual(int64(1), 1) || !ValuesEqual(float64(2), int64(2)) {
		t.Fatalf("numeric comparison should ignore representation")
	}
	if ValuesEqual(int64(1), "1") {
		t.Fatalf("number should not equal string")
	}
	if !ValuesEqual([]any{int64(1), "a"}, []any{1, "a"}) {
		t.Fatalf("slices should compare element-wise")
	}
	if !ValuesEqual(Record{"a": 1}, map[string]any{"a": int64(1)}) {
		t.Fatalf("record should equal plain map")
	}
}

func TestRecordCloneIsDeep(t *testing.T) {
	r := Record{"list": []any{int64(1)}, "m": map[string]any{"k": "v"}}
	c := r.Clone()
	c["list"].([]any)[0] = int64(2)
	c["m"].(map[string]any)["k"] = "changed"
	if r["list"].([]any)[0] != int64(1) || r["m"].(map[string]any)["k"] != "v" {
		t.Fatalf("clone shares nested state")
	}
}
