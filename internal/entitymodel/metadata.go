// Package entitymodel exposes the reference model document as a ready-made
// model registry.
package entitymodel

import (
	"bytes"
	"fmt"

	"romekv/docs/schema"
	"romekv/internal/registry"
)

// Version returns the version declared by the embedded model document.
func Version() string {
	version, err := schema.ModelsVersion()
	if err != nil {
		return ""
	}
	return version
}

// Default builds a registry from the embedded reference models. Every call
// returns a fresh registry.
func Default() (*registry.Registry, error) {
	reg, err := registry.Load(bytes.NewReader(schema.Models()))
	if err != nil {
		return nil, fmt.Errorf("load embedded models: %w", err)
	}
	return reg, nil
}
