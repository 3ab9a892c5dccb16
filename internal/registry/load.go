package registry

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type file struct {
	Stages []Stage `yaml:"stages"`
}

// Parse decodes a YAML registry document. Unknown keys are rejected so a
// misspelled rule never silently disappears.
func Parse(data []byte) (*Registry, error) {
	var f file
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}
	return New(f.Stages)
}

// LoadFile reads and validates a YAML registry file.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Marshal renders stages as a YAML registry document.
func Marshal(stages []Stage) ([]byte, error) {
	return yaml.Marshal(file{Stages: stages})
}
