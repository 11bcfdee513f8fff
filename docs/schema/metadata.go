// Package schema exposes the embedded reference model document for runtime use.
package schema

import (
	_ "embed"
	"sync"

	"gopkg.in/yaml.v3"
)

// Metadata captures the high-level metadata block of the model document.
type Metadata struct {
	Source string `yaml:"source"`
	Status string `yaml:"status"`
}

type headerDoc struct {
	Version  string   `yaml:"version"`
	Metadata Metadata `yaml:"metadata"`
}

// Reference model document (networks, fixed ips, instances, services).
//
//go:embed models.yaml
var models []byte

var (
	headerOnce sync.Once
	header     headerDoc
	headerErr  error
)

// Models returns a copy of the embedded model document so callers can
// safely modify the slice.
func Models() []byte {
	out := make([]byte, len(models))
	copy(out, models)
	return out
}

// ModelsVersion returns the version declared by the embedded model document.
func ModelsVersion() (string, error) {
	loadHeader()
	return header.Version, headerErr
}

// ModelsMetadata returns the metadata block (source, status) of the embedded
// model document.
func ModelsMetadata() (Metadata, error) {
	loadHeader()
	return header.Metadata, headerErr
}

func loadHeader() {
	headerOnce.Do(func() {
		headerErr = yaml.Unmarshal(models, &header)
	})
}
