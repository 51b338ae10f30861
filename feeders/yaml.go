package feeders

import (
	"fmt"

	"github.com/golobby/config/v3/pkg/feeder"
	"gopkg.in/yaml.v3"
)

// YamlFeeder is a feeder that reads YAML files
type YamlFeeder struct {
	feeder.Yaml
}

// NewYamlFeeder creates a new YamlFeeder that reads from the specified YAML file
func NewYamlFeeder(filePath string) YamlFeeder {
	return YamlFeeder{feeder.Yaml{Path: filePath}}
}

// FeedKey reads a YAML file and decodes a single top-level key into target.
// A missing key leaves target untouched.
func (y YamlFeeder) FeedKey(key string, target interface{}) error {
	var allData map[string]interface{}
	if err := y.Feed(&allData); err != nil {
		return fmt.Errorf("failed to read YAML: %w", err)
	}

	value, exists := allData[key]
	if !exists {
		return nil
	}

	valueBytes, err := yaml.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}
	if err = yaml.Unmarshal(valueBytes, target); err != nil {
		return fmt.Errorf("failed to unmarshal value to target: %w", err)
	}
	return nil
}
