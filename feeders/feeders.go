// Package feeders provides configuration feeders for reading data from
// YAML, TOML and JSON files and from prefixed environment variables.
package feeders

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Feeder fills a configuration structure from one source.
type Feeder interface {
	Feed(structure interface{}) error
}

// KeyFeeder is a file feeder that can also decode a single top-level key,
// for files shared with other tools.
type KeyFeeder interface {
	Feeder
	FeedKey(key string, target interface{}) error
}

// ForFile selects a file feeder by extension.
func ForFile(path string) (KeyFeeder, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return NewYamlFeeder(path), nil
	case ".toml":
		return NewTomlFeeder(path), nil
	case ".json":
		return NewJSONFeeder(path), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
}
