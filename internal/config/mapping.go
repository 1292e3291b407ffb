package config

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/BartekS5/catalog-migrator/pkg/models"
)

//go:embed mappings/default.yaml
var defaultMapping []byte

// LoadMapping reads and parses the mapping tables at filePath. An empty
// path selects the built-in tables.
func LoadMapping(filePath string) (*models.MappingConfig, error) {
	if filePath == "" {
		m, err := models.LoadMapping(defaultMapping)
		if err != nil {
			return nil, fmt.Errorf("built-in mapping is invalid: %w", err)
		}
		return m, nil
	}

	bytes, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read mapping file '%s': %w", filePath, err)
	}

	m, err := models.LoadMapping(bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse mapping file '%s': %w", filePath, err)
	}
	return m, nil
}
