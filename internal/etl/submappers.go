package etl

import (
	"github.com/BartekS5/catalog-migrator/pkg/models"
	"github.com/BartekS5/catalog-migrator/pkg/utils"
)

// SubMapper builds the type-specific part of the structured fields.
// An empty result means nothing was populated.
type SubMapper interface {
	Map(bag models.FieldBag) map[string]interface{}
}

// RuleMapper builds named groups from field mapping rules.
type RuleMapper struct {
	Groups    []models.GroupConfig
	ValueMaps map[string]map[string]string
}

func (m *RuleMapper) Map(bag models.FieldBag) map[string]interface{} {
	out := make(map[string]interface{})
	for _, group := range m.Groups {
		fields := make(map[string]interface{})
		for _, rule := range group.Rules {
			if val, ok := applyRule(bag, rule, m.ValueMaps); ok {
				setPath(fields, rule.To, val)
			}
		}
		if len(fields) > 0 {
			out[group.Name] = fields
		}
	}
	return out
}

// CopyMapper copies a nested legacy object as-is, for types whose layout
// did not change between schemas.
type CopyMapper struct {
	From string
}

func (m *CopyMapper) Map(bag models.FieldBag) map[string]interface{} {
	out := make(map[string]interface{})
	for k, v := range bag.Sub(m.From) {
		if !utils.IsEmpty(v) {
			out[k] = v
		}
	}
	return out
}

type registration struct {
	key    string
	mapper SubMapper
}

// SubMapperRegistry dispatches a product type to its sub-mapper.
type SubMapperRegistry struct {
	entries map[models.ProductType]registration
}

func NewSubMapperRegistry() *SubMapperRegistry {
	return &SubMapperRegistry{entries: make(map[models.ProductType]registration)}
}

// Register binds pt to mapper; its output is stored under key.
func (r *SubMapperRegistry) Register(pt models.ProductType, key string, mapper SubMapper) {
	if key == "" {
		key = string(pt)
	}
	r.entries[pt] = registration{key: key, mapper: mapper}
}

func (r *SubMapperRegistry) Lookup(pt models.ProductType) (string, SubMapper, bool) {
	reg, ok := r.entries[pt]
	return reg.key, reg.mapper, ok
}

// registryFromMapping registers one mapper per configured type.
func registryFromMapping(m *models.MappingConfig) *SubMapperRegistry {
	r := NewSubMapperRegistry()
	for _, tc := range m.Types {
		switch tc.Strategy {
		case models.StrategyCopy:
			r.Register(tc.Type, tc.DestKey(), &CopyMapper{From: tc.CopyFrom})
		default:
			if len(tc.Groups) == 0 {
				continue
			}
			r.Register(tc.Type, tc.DestKey(), &RuleMapper{Groups: tc.Groups, ValueMaps: m.ValueMaps})
		}
	}
	return r
}
