package domain

import (
	"errors"
	"testing"
)

func TestNewSchemaAddsImplicitFields(t *testing.T) {
	s := mustSchema(t)
	for _, name := range []string{FieldID, FieldCreatedAt, FieldUpdatedAt, "host"} {
		if _, ok := s.Field(name); !ok {
			t.Fatalf("missing field %s", name)
		}
	}
	if f, _ := s.Field(FieldCreatedAt); f.Kind != KindTime {
		t.Fatalf("created_at should be a time field, got %s", f.Kind)
	}
	if !s.IsRelationship("compute_nodes") || s.IsRelationship("host") {
		t.Fatalf("relationship lookup mismatch")
	}
	if !s.Has("compute_nodes") || s.Has("missing") {
		t.Fatalf("Has mismatch")
	}
}

func TestNewSchemaValidation(t *testing.T) {
	if _, err := NewSchema("X", "", nil, nil); err == nil {
		t.Fatalf("expected table error")
	}
	if _, err := NewSchema("X", "xs", []FieldSpec{{Name: "a"}, {Name: "a"}}, nil); err == nil {
		t.Fatalf("expected duplicate field error")
	}
	if _, err := NewSchema("X", "xs", []FieldSpec{{Name: "a", Kind: "blob"}}, nil); err == nil {
		t.Fatalf("expected unknown kind error")
	}
	if _, err := NewSchema("X", "xs", []FieldSpec{{Name: "a"}}, []RelationshipDescriptor{{Name: "a", LocalKey: "id", RemoteKey: "x_id", RemoteType: "ys"}}); err == nil {
		t.Fatalf("expected collision error")
	}
	if _, err := NewSchema("X", "xs", nil, []RelationshipDescriptor{{Name: "ys", LocalKey: "id"}}); err == nil {
		t.Fatalf("expected incomplete relationship error")
	}
	s, err := NewSchema("", "xs", []FieldSpec{{Name: "id", Kind: KindInt}}, nil)
	if err != nil {
		t.Fatalf("redeclaring an implicit field should be tolerated: %v", err)
	}
	if s.Name != "X" {
		t.Fatalf("expected derived name X, got %s", s.Name)
	}
}

func TestRelationshipDirectionDefaults(t *testing.T) {
	many := RelationshipDescriptor{Cardinality: CardinalityMany}
	one := RelationshipDescriptor{Cardinality: CardinalityOne}
	backref := RelationshipDescriptor{Cardinality: CardinalityOne, Direction: OneToMany}
	if many.LocalOwnsKey() || !one.LocalOwnsKey() || backref.LocalOwnsKey() {
		t.Fatalf("direction defaults mismatch")
	}
}

func TestErrorsMatch(t *testing.T) {
	err := error(NotFoundError{Key: NewKey("networks", 1)})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("NotFoundError should match ErrNotFound")
	}
	pf := &PersistPartialFailureError{Root: NewKey("networks", 1), Failed: []RecordResult{{Key: NewKey("fixed_ips", 2), Err: errors.New("boom")}}}
	if pf.Error() == "" || len(pf.Unwrap()) != 1 {
		t.Fatalf("partial failure should expose record errors")
	}
}
