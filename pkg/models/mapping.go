package models

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// MappingConfig represents the root of the YAML mapping file.
type MappingConfig struct {
	Version     string                       `yaml:"version"`
	TypeField   string                       `yaml:"type_field"`
	DirectCopy  []string                     `yaml:"direct_copy"`
	Rename      map[string]string            `yaml:"rename"`
	Basic       []FieldMappingRule           `yaml:"basic"`
	Performance []FieldMappingRule           `yaml:"performance"`
	ValueMaps   map[string]map[string]string `yaml:"value_maps"`
	Types       []TypeConfig                 `yaml:"types"`
}

// Mapping strategies for a product type.
const (
	StrategyRules = "rules"
	StrategyCopy  = "copy"
)

// TypeConfig describes how one product type is recognised and restructured.
// The order of Types in the file is the keyword priority order.
type TypeConfig struct {
	Type       ProductType   `yaml:"type"`
	Label      string        `yaml:"label"`
	Key        string        `yaml:"key"`
	Aliases    []string      `yaml:"aliases"`
	Indicators []string      `yaml:"indicators"`
	Keywords   []string      `yaml:"keywords"`
	Strategy   string        `yaml:"strategy"`
	CopyFrom   string        `yaml:"copy_from"`
	Groups     []GroupConfig `yaml:"groups"`
}

type GroupConfig struct {
	Name  string             `yaml:"name"`
	Rules []FieldMappingRule `yaml:"rules"`
}

// FieldMappingRule copies the first non-empty source into To after
// applying the transform chain (e.g. "first|number", "map:suspension").
type FieldMappingRule struct {
	From      []string `yaml:"from"`
	To        string   `yaml:"to"`
	Transform string   `yaml:"transform,omitempty"`
}

// DestKey is the structured-fields key the type's groups are written under.
func (t TypeConfig) DestKey() string {
	if t.Key != "" {
		return t.Key
	}
	return string(t.Type)
}

// ForType looks up the configuration for a product type.
func (m *MappingConfig) ForType(pt ProductType) (TypeConfig, bool) {
	for _, t := range m.Types {
		if t.Type == pt {
			return t, true
		}
	}
	return TypeConfig{}, false
}

// Validate checks internal consistency of the tables.
func (m *MappingConfig) Validate() error {
	seen := make(map[ProductType]bool)
	for _, t := range m.Types {
		if t.Type == "" {
			return fmt.Errorf("type entry without a type name")
		}
		if seen[t.Type] {
			return fmt.Errorf("type %q declared twice", t.Type)
		}
		seen[t.Type] = true

		switch t.Strategy {
		case "", StrategyRules:
			for _, g := range t.Groups {
				if err := m.validateRules(g.Rules); err != nil {
					return fmt.Errorf("type %s group %s: %w", t.Type, g.Name, err)
				}
			}
		case StrategyCopy:
			if t.CopyFrom == "" {
				return fmt.Errorf("type %s uses copy strategy without copy_from", t.Type)
			}
		default:
			return fmt.Errorf("type %s: unknown strategy %q", t.Type, t.Strategy)
		}
	}
	if err := m.validateRules(m.Basic); err != nil {
		return fmt.Errorf("basic: %w", err)
	}
	if err := m.validateRules(m.Performance); err != nil {
		return fmt.Errorf("performance: %w", err)
	}
	return nil
}

func (m *MappingConfig) validateRules(rules []FieldMappingRule) error {
	for _, r := range rules {
		if len(r.From) == 0 || r.To == "" {
			return fmt.Errorf("rule %v -> %q needs both from and to", r.From, r.To)
		}
		for _, step := range SplitTransform(r.Transform) {
			if name, ok := ValueMapName(step); ok {
				if _, exists := m.ValueMaps[name]; !exists {
					return fmt.Errorf("rule -> %s references unknown value map %q", r.To, name)
				}
			}
		}
	}
	return nil
}

// SplitTransform breaks a transform chain into its steps.
func SplitTransform(chain string) []string {
	var steps []string
	for _, step := range strings.Split(chain, "|") {
		if step = strings.TrimSpace(step); step != "" {
			steps = append(steps, step)
		}
	}
	return steps
}

// ValueMapName returns the table name of a "map:<name>" step.
func ValueMapName(step string) (string, bool) {
	name, ok := strings.CutPrefix(step, "map:")
	return name, ok && name != ""
}

// LoadMapping parses YAML mapping tables.
func LoadMapping(data []byte) (*MappingConfig, error) {
	var m MappingConfig
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	if m.TypeField == "" {
		m.TypeField = "product_type"
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}
