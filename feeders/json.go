package feeders

import (
	"encoding/json"
	"fmt"

	"github.com/golobby/config/v3/pkg/feeder"
)

// JSONFeeder is a feeder that reads JSON files
type JSONFeeder struct {
	feeder.Json
}

// NewJSONFeeder creates a new JSONFeeder that reads from the specified JSON file
func NewJSONFeeder(filePath string) JSONFeeder {
	return JSONFeeder{feeder.Json{Path: filePath}}
}

// FeedKey reads a JSON file and decodes a single top-level key into target.
func (j JSONFeeder) FeedKey(key string, target interface{}) error {
	var allData map[string]json.RawMessage
	if err := j.Feed(&allData); err != nil {
		return fmt.Errorf("failed to read JSON: %w", err)
	}

	value, exists := allData[key]
	if !exists {
		return nil
	}
	if err := json.Unmarshal(value, target); err != nil {
		return fmt.Errorf("failed to unmarshal value to target: %w", err)
	}
	return nil
}
