package etl

import (
	"fmt"
	"sort"

	"github.com/BartekS5/catalog-migrator/pkg/logger"
	"github.com/BartekS5/catalog-migrator/pkg/models"
	"github.com/BartekS5/catalog-migrator/pkg/utils"
)

// Transformer turns a legacy field bag into structured fields. It never
// touches a store.
type Transformer struct {
	Config   *models.MappingConfig
	registry *SubMapperRegistry
	log      logger.Logger
}

// NewTransformer builds a transformer and its sub-mapper registry from the
// mapping tables.
func NewTransformer(config *models.MappingConfig, log logger.Logger) (*Transformer, error) {
	check := func(scope string, rules []models.FieldMappingRule) error {
		for _, r := range rules {
			if err := checkTransform(r.Transform); err != nil {
				return fmt.Errorf("%s -> %s: %w", scope, r.To, err)
			}
		}
		return nil
	}
	if err := check("basic", config.Basic); err != nil {
		return nil, err
	}
	if err := check("performance", config.Performance); err != nil {
		return nil, err
	}
	for _, tc := range config.Types {
		for _, g := range tc.Groups {
			if err := check(fmt.Sprintf("%s.%s", tc.Type, g.Name), g.Rules); err != nil {
				return nil, err
			}
		}
	}

	return &Transformer{
		Config:   config,
		registry: registryFromMapping(config),
		log:      log,
	}, nil
}

// Register adds or replaces the sub-mapper for a product type.
func (t *Transformer) Register(pt models.ProductType, key string, mapper SubMapper) {
	t.registry.Register(pt, key, mapper)
}

// Transform builds the structured fields of rec for type pt. An unknown
// type is logged and only the shared fields are returned.
func (t *Transformer) Transform(rec *models.RemoteProductRecord, pt models.ProductType) map[string]interface{} {
	bag := rec.FieldBag
	out := make(map[string]interface{})

	for _, field := range t.Config.DirectCopy {
		if v, ok := bag.Get(field); ok && !utils.IsEmpty(v) {
			out[field] = v
		}
	}

	// Legacy keys are visited in sorted order; when several rename to the
	// same key the first non-empty one wins.
	renamed := make(map[string]bool)
	for _, oldName := range sortedKeys(t.Config.Rename) {
		newName := t.Config.Rename[oldName]
		if renamed[newName] {
			continue
		}
		if v, ok := bag[oldName]; ok && !utils.IsEmpty(v) {
			out[newName] = v
			renamed[newName] = true
		}
	}

	for _, rule := range t.Config.Basic {
		if v, ok := applyRule(bag, rule, t.Config.ValueMaps); ok {
			setPath(out, rule.To, v)
		}
	}

	perf := make(map[string]interface{})
	for _, rule := range t.Config.Performance {
		if v, ok := applyRule(bag, rule, t.Config.ValueMaps); ok {
			setPath(perf, rule.To, v)
		}
	}
	if len(perf) > 0 {
		out["performance"] = perf
	}

	key, mapper, ok := t.registry.Lookup(pt)
	if !ok {
		t.log.Warning("No field mapper for product type '%s' (%s); writing basic fields only", pt, rec.Slug)
		return out
	}

	groups := mapper.Map(bag)
	if len(groups) > 0 {
		out[key] = groups
	}
	t.log.Info("Mapped %d %s field groups for %s", len(groups), pt, rec.Slug)
	return out
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
