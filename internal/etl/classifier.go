package etl

import (
	"strings"

	"github.com/BartekS5/catalog-migrator/pkg/models"
	"github.com/BartekS5/catalog-migrator/pkg/utils"
)

// Classifier decides the product type of a legacy record.
//
// An explicit type field always wins. Without one, populated type-specific
// legacy data is used, then keywords in the title. The order of the types in
// the mapping tables is the priority order for both inference steps.
type Classifier struct {
	typeField string
	types     []models.TypeConfig
	aliases   map[string]models.ProductType
}

func NewClassifier(config *models.MappingConfig) *Classifier {
	aliases := make(map[string]models.ProductType)
	for _, tc := range config.Types {
		aliases[strings.ToLower(string(tc.Type))] = tc.Type
		if tc.Label != "" {
			aliases[strings.ToLower(tc.Label)] = tc.Type
		}
		for _, a := range tc.Aliases {
			aliases[strings.ToLower(strings.TrimSpace(a))] = tc.Type
		}
	}
	return &Classifier{
		typeField: config.TypeField,
		types:     config.Types,
		aliases:   aliases,
	}
}

// Classify returns the product type of rec, or false when none can be determined.
func (c *Classifier) Classify(rec *models.RemoteProductRecord) (models.ProductType, bool) {
	if pt, ok := c.explicit(rec.FieldBag); ok {
		return pt, true
	}
	if pt, ok := c.structural(rec.FieldBag); ok {
		return pt, true
	}
	return c.keyword(rec.Title)
}

func (c *Classifier) explicit(bag models.FieldBag) (models.ProductType, bool) {
	for _, v := range bag.Array(c.typeField) {
		label := strings.ToLower(utils.ToString(v))
		if pt, ok := c.aliases[label]; ok {
			return pt, true
		}
	}
	return "", false
}

func (c *Classifier) structural(bag models.FieldBag) (models.ProductType, bool) {
	for _, tc := range c.types {
		for _, path := range tc.Indicators {
			if bag.Has(path) {
				return tc.Type, true
			}
		}
	}
	return "", false
}

func (c *Classifier) keyword(title string) (models.ProductType, bool) {
	title = strings.ToLower(title)
	if title == "" {
		return "", false
	}
	for _, tc := range c.types {
		for _, kw := range tc.Keywords {
			if kw != "" && strings.Contains(title, strings.ToLower(kw)) {
				return tc.Type, true
			}
		}
	}
	return "", false
}
