package domain

import "fmt"

// FieldKind classifies a scalar field so values can be normalized on write.
type FieldKind string

const (
	KindString FieldKind = "string"
	KindInt    FieldKind = "int"
	KindFloat  FieldKind = "float"
	KindBool   FieldKind = "bool"
	KindTime   FieldKind = "time"
	KindRef    FieldKind = "ref"  // single reference token
	KindList   FieldKind = "list" // ordered sequence of scalars and/or tokens
	KindJSON   FieldKind = "json" // free-form JSON-safe value
)

// Valid reports whether k is a known kind.
func (k FieldKind) Valid() bool {
	switch k {
	case KindString, KindInt, KindFloat, KindBool, KindTime, KindRef, KindList, KindJSON:
		return true
	}
	return false
}

// Cardinality of a relationship.
type Cardinality string

const (
	CardinalityOne  Cardinality = "one"
	CardinalityMany Cardinality = "many"
)

// Direction states which side of a relationship stores the foreign key.
type Direction string

const (
	// ManyToOne: the local record carries the foreign key (fixed_ip.network_id).
	ManyToOne Direction = "many_to_one"
	// OneToMany: the remote records carry the foreign key (network.fixed_ips).
	OneToMany Direction = "one_to_many"
)

// Well-known field names present on every schema.
const (
	FieldID        = "id"
	FieldCreatedAt = "created_at"
	FieldUpdatedAt = "updated_at"
)

// FieldSpec declares one scalar field.
type FieldSpec struct {
	Name    string
	Kind    FieldKind
	RefType string // target type tag for KindRef fields, informational
	Default any    // applied on save when the field is absent or nil
}

// RelationshipDescriptor is the static description of a foreign-key
// association: remote records of RemoteType whose RemoteKey equals the local
// record's LocalKey are exposed under the local field Name.
type RelationshipDescriptor struct {
	Name        string
	LocalKey    string
	RemoteType  string
	RemoteKey   string
	Cardinality Cardinality
	Direction   Direction
}

// LocalOwnsKey reports whether the foreign key lives on the local record.
func (d RelationshipDescriptor) LocalOwnsKey() bool {
	return d.EffectiveDirection() == ManyToOne
}

// EffectiveDirection applies the cardinality default when Direction is unset.
func (d RelationshipDescriptor) EffectiveDirection() Direction {
	if d.Direction != "" {
		return d.Direction
	}
	if d.Cardinality == CardinalityMany {
		return OneToMany
	}
	return ManyToOne
}

// Schema describes one entity type as supplied by the model registry.
type Schema struct {
	Name          string // canonical model name, e.g. "FixedIp"
	Table         string // type tag used in keys and by drivers, e.g. "fixed_ips"
	Fields        []FieldSpec
	Relationships []RelationshipDescriptor

	fieldIndex map[string]int
	relIndex   map[string]int
}

// NewSchema builds a schema, adding the implicit id and timestamp fields and
// indexing fields and relationships. Duplicate names are rejected.
func NewSchema(name, table string, fields []FieldSpec, rels []RelationshipDescriptor) (*Schema, error) {
	if table == "" {
		return nil, fmt.Errorf("schema %q: table required", name)
	}
	if name == "" {
		name = CanonicalName(table)
	}
	s := &Schema{Name: name, Table: table}
	implicit := []FieldSpec{{Name: FieldID, Kind: KindInt}, {Name: FieldCreatedAt, Kind: KindTime}, {Name: FieldUpdatedAt, Kind: KindTime}}
	seen := make(map[string]struct{})
	for _, f := range append(implicit, fields...) {
		if _, dup := seen[f.Name]; dup {
			if isImplicit(f.Name) {
				continue
			}
			return nil, fmt.Errorf("schema %s: duplicate field %q", name, f.Name)
		}
		if f.Name == "" {
			return nil, fmt.Errorf("schema %s: empty field name", name)
		}
		if f.Kind == "" {
			f.Kind = KindJSON
		}
		if !f.Kind.Valid() {
			return nil, fmt.Errorf("schema %s: field %s has unknown kind %q", name, f.Name, f.Kind)
		}
		seen[f.Name] = struct{}{}
		s.Fields = append(s.Fields, f)
	}
	for _, r := range rels {
		if _, dup := seen[r.Name]; dup {
			return nil, fmt.Errorf("schema %s: relationship %q collides with a field", name, r.Name)
		}
		if r.LocalKey == "" || r.RemoteKey == "" || r.RemoteType == "" {
			return nil, fmt.Errorf("schema %s: relationship %s is incomplete", name, r.Name)
		}
		if r.Cardinality == "" {
			r.Cardinality = CardinalityMany
		}
		if r.Cardinality != CardinalityOne && r.Cardinality != CardinalityMany {
			return nil, fmt.Errorf("schema %s: relationship %s has unknown cardinality %q", name, r.Name, r.Cardinality)
		}
		if r.Direction != "" && r.Direction != ManyToOne && r.Direction != OneToMany {
			return nil, fmt.Errorf("schema %s: relationship %s has unknown direction %q", name, r.Name, r.Direction)
		}
		seen[r.Name] = struct{}{}
		s.Relationships = append(s.Relationships, r)
	}
	s.reindex()
	return s, nil
}

func isImplicit(name string) bool {
	return name == FieldID || name == FieldCreatedAt || name == FieldUpdatedAt
}

func (s *Schema) reindex() {
	s.fieldIndex = make(map[string]int, len(s.Fields))
	for i, f := range s.Fields {
		s.fieldIndex[f.Name] = i
	}
	s.relIndex = make(map[string]int, len(s.Relationships))
	for i, r := range s.Relationships {
		s.relIndex[r.Name] = i
	}
}

// Field looks up a scalar field.
func (s *Schema) Field(name string) (FieldSpec, bool) {
	if s == nil {
		return FieldSpec{}, false
	}
	if s.fieldIndex == nil {
		s.reindex()
	}
	i, ok := s.fieldIndex[name]
	if !ok {
		return FieldSpec{}, false
	}
	return s.Fields[i], true
}

// Relationship looks up a relationship descriptor by its local field name.
func (s *Schema) Relationship(name string) (RelationshipDescriptor, bool) {
	if s == nil {
		return RelationshipDescriptor{}, false
	}
	if s.relIndex == nil {
		s.reindex()
	}
	i, ok := s.relIndex[name]
	if !ok {
		return RelationshipDescriptor{}, false
	}
	return s.Relationships[i], true
}

// IsRelationship reports whether name is a relationship field.
func (s *Schema) IsRelationship(name string) bool {
	_, ok := s.Relationship(name)
	return ok
}

// Has reports whether name is declared as a field or relationship.
func (s *Schema) Has(name string) bool {
	if _, ok := s.Field(name); ok {
		return true
	}
	return s.IsRelationship(name)
}
