package registry

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"romekv/pkg/domain"
)

type document struct {
	Version  string            `yaml:"version"`
	Metadata map[string]string `yaml:"metadata"`
	Models   []modelSpec       `yaml:"models"`
}

type modelSpec struct {
	Name          string             `yaml:"name"`
	Table         string             `yaml:"table"`
	Fields        []fieldSpec        `yaml:"fields"`
	Relationships []relationshipSpec `yaml:"relationships"`
}

type fieldSpec struct {
	Name    string `yaml:"name"`
	Kind    string `yaml:"kind"`
	Ref     string `yaml:"ref"`
	Default any    `yaml:"default"`
}

type relationshipSpec struct {
	Name        string `yaml:"name"`
	LocalKey    string `yaml:"local_key"`
	RemoteType  string `yaml:"remote_type"`
	RemoteKey   string `yaml:"remote_key"`
	Cardinality string `yaml:"cardinality"`
	Direction   string `yaml:"direction"`
}

// LoadFile reads a YAML model document from path.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- operator-supplied schema path
	if err != nil {
		return nil, fmt.Errorf("read schema %s: %w", path, err)
	}
	reg, err := Load(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("load schema %s: %w", path, err)
	}
	return reg, nil
}

// Load parses a YAML model document and validates cross-model references
// once every model is known.
func Load(r io.Reader) (*Registry, error) {
	var doc document
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("empty model document")
		}
		return nil, fmt.Errorf("decode models: %w", err)
	}
	reg := New()
	reg.version = doc.Version
	for _, m := range doc.Models {
		s, err := m.schema()
		if err != nil {
			return nil, err
		}
		if err := reg.Register(s); err != nil {
			return nil, err
		}
	}
	if err := reg.Validate(); err != nil {
		return nil, err
	}
	return reg, nil
}

func (m modelSpec) schema() (*domain.Schema, error) {
	fields := make([]domain.FieldSpec, 0, len(m.Fields))
	for _, f := range m.Fields {
		def, err := domain.NormalizeValue(yamlValue(f.Default))
		if err != nil {
			return nil, fmt.Errorf("model %s field %s default: %w", m.Name, f.Name, err)
		}
		fields = append(fields, domain.FieldSpec{
			Name:    f.Name,
			Kind:    domain.FieldKind(f.Kind),
			RefType: f.Ref,
			Default: def,
		})
	}
	rels := make([]domain.RelationshipDescriptor, 0, len(m.Relationships))
	for _, r := range m.Relationships {
		rels = append(rels, domain.RelationshipDescriptor{
			Name:        r.Name,
			LocalKey:    r.LocalKey,
			RemoteType:  r.RemoteType,
			RemoteKey:   r.RemoteKey,
			Cardinality: domain.Cardinality(r.Cardinality),
			Direction:   domain.Direction(r.Direction),
		})
	}
	return domain.NewSchema(m.Name, m.Table, fields, rels)
}

// yamlValue maps decoded YAML scalars onto the record value space.
func yamlValue(v any) any {
	switch val := v.(type) {
	case int:
		return int64(val)
	case uint64:
		return int64(val) // #nosec G115 -- schema defaults are small literals
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = yamlValue(inner)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			out[k] = yamlValue(inner)
		}
		return out
	default:
		return v
	}
}
