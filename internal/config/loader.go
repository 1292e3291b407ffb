package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// loadYAMLConfig overlays cfg with the YAML file at path. An empty path
// means no file; a named file that cannot be read is an error.
func loadYAMLConfig(cfg *Config, path string) error {
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file '%s': %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file '%s': %w", path, err)
	}
	return nil
}
