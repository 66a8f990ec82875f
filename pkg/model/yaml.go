package model

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrArrayValue is returned when a model document contains a sequence.
// Arrays are not reactive and are rejected at load time rather than
// silently stored as untracked values.
var ErrArrayValue = errors.New("model: arrays are not supported in model documents")

// ParseYAML decodes a model document into a plain nested map. The
// document must be a mapping of string keys to scalars or nested
// mappings; sequences are rejected with ErrArrayValue.
func ParseYAML(data []byte) (map[string]any, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("model: parse yaml: %w", err)
	}
	if err := checkShape("", raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// FromYAML builds a model from a YAML document.
func FromYAML(data []byte, opts ...Option) (*Model, error) {
	raw, err := ParseYAML(data)
	if err != nil {
		return nil, err
	}
	return New(raw, opts...), nil
}

// FromYAMLFile builds a model from a YAML file on disk.
func FromYAMLFile(path string, opts ...Option) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("model: read %s: %w", path, err)
	}
	return FromYAML(data, opts...)
}

// checkShape rejects sequences anywhere in the document.
func checkShape(path string, v any) error {
	switch val := v.(type) {
	case map[string]any:
		for k, child := range val {
			p := k
			if path != "" {
				p = path + "." + k
			}
			if err := checkShape(p, child); err != nil {
				return err
			}
		}
		return nil
	case []any:
		return fmt.Errorf("%w (at %q)", ErrArrayValue, path)
	default:
		return nil
	}
}
