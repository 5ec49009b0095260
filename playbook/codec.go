package playbook

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Parse decodes a playbook from YAML, normalizes step ids, and
// validates it. Unknown fields are rejected so a typoed key fails
// loudly instead of silently dropping a condition.
func Parse(data []byte) (*Playbook, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var p Playbook
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("parse playbook: %w", err)
	}

	p.Normalize()
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// LoadFile reads and parses a playbook file. A playbook without an
// explicit id gets one derived from the file name.
func LoadFile(path string) (*Playbook, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read playbook: %w", err)
	}

	p, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	if p.ID == "" {
		base := filepath.Base(path)
		p.ID = strings.TrimSuffix(strings.TrimSuffix(base, filepath.Ext(base)), ".playbook")
	}
	return p, nil
}

// Marshal encodes a playbook back to YAML.
func Marshal(p *Playbook) ([]byte, error) {
	data, err := yaml.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal playbook: %w", err)
	}
	return data, nil
}
