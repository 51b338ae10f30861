package feeders

import (
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/golobby/config/v3/pkg/feeder"
)

// TomlFeeder is a feeder that reads TOML files
type TomlFeeder struct {
	feeder.Toml
}

// NewTomlFeeder creates a new TomlFeeder that reads from the specified TOML file
func NewTomlFeeder(filePath string) TomlFeeder {
	return TomlFeeder{feeder.Toml{Path: filePath}}
}

// FeedKey reads a TOML file and decodes a single top-level key into target.
func (t TomlFeeder) FeedKey(key string, target interface{}) error {
	var allData map[string]interface{}
	if err := t.Feed(&allData); err != nil {
		return fmt.Errorf("failed to read toml: %w", err)
	}

	value, exists := allData[key]
	if !exists {
		return nil
	}

	valueBytes, err := toml.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}
	if err = toml.Unmarshal(valueBytes, target); err != nil {
		return fmt.Errorf("failed to unmarshal value to target: %w", err)
	}
	return nil
}
