// Package simulator replays a vendor registry through the rotation engine
// offline and reports how leads would be distributed.
package simulator

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Expander names accepted by fixtures and flags.
const (
	ExpanderProportional = "proportional"
	ExpanderInterval     = "interval"
)

// Fixture is a registry described in YAML.
type Fixture struct {
	Expander string          `yaml:"expander"`
	Leads    int             `yaml:"leads"`
	Vendors  []FixtureVendor `yaml:"vendors"`
}

// FixtureVendor is one registry entry. Participates defaults to true.
type FixtureVendor struct {
	Name         string `yaml:"name"`
	Order        *int   `yaml:"order"`
	Weight       int    `yaml:"weight"`
	Participates *bool  `yaml:"participates"`
}

// LoadFixture reads and validates a fixture file. Unknown fields are rejected.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture: %w", err)
	}
	return ParseFixture(data)
}

// ParseFixture decodes and validates fixture YAML.
func ParseFixture(data []byte) (*Fixture, error) {
	var fixture Fixture
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&fixture); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := fixture.validate(); err != nil {
		return nil, fmt.Errorf("invalid fixture: %w", err)
	}
	return &fixture, nil
}

func (f *Fixture) validate() error {
	if len(f.Vendors) == 0 {
		return errors.New("at least one vendor is required")
	}
	if f.Leads < 0 {
		return errors.New("leads must not be negative")
	}
	switch strings.ToLower(f.Expander) {
	case "", ExpanderProportional, ExpanderInterval:
	default:
		return fmt.Errorf("unknown expander %q", f.Expander)
	}

	seen := make(map[string]bool, len(f.Vendors))
	for i, v := range f.Vendors {
		name := strings.TrimSpace(v.Name)
		if name == "" {
			return fmt.Errorf("vendors[%d]: name is required", i)
		}
		if seen[name] {
			return fmt.Errorf("vendors[%d]: duplicate name %q", i, name)
		}
		seen[name] = true
		if v.Weight < 0 {
			return fmt.Errorf("vendors[%d]: weight must not be negative", i)
		}
	}
	return nil
}
