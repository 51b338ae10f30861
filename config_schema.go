package blueprint

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

const moduleConfigSchemaURL = "blueprint://schemas/module-config.json"

// moduleConfigSchema constrains the shape of the opaque config bag. Settings
// stay free-form.
const moduleConfigSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "properties": {
    "features": {
      "type": "object",
      "additionalProperties": {"type": "boolean"}
    },
    "settings": {"type": "object"},
    "ui": {
      "type": "object",
      "properties": {
        "icon": {"type": "string"},
        "color": {"type": "string"},
        "position": {"type": "integer", "minimum": 0},
        "visibility": {"enum": ["visible", "hidden", "collapsed"]}
      }
    },
    "permissions": {
      "type": "object",
      "properties": {
        "requiredRoles": {"type": "array", "items": {"type": "string", "minLength": 1}},
        "allowedActions": {"type": "array", "items": {"type": "string", "minLength": 1}}
      }
    },
    "limits": {
      "type": "object",
      "properties": {
        "maxItems": {"type": "integer", "minimum": 0},
        "maxStorage": {"type": "integer", "minimum": 0},
        "maxRequests": {"type": "integer", "minimum": 0}
      }
    }
  }
}`

var compiledConfigSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(moduleConfigSchema))
	if err != nil {
		return nil, fmt.Errorf("failed to parse module config schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(moduleConfigSchemaURL, doc); err != nil {
		return nil, fmt.Errorf("failed to add module config schema: %w", err)
	}
	schema, err := compiler.Compile(moduleConfigSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("failed to compile module config schema: %w", err)
	}
	return schema, nil
})

// ValidateModuleConfig checks a config bag against the module config schema.
func ValidateModuleConfig(cfg ModuleConfig) error {
	schema, err := compiledConfigSchema()
	if err != nil {
		return err
	}

	raw, err := json.Marshal(cfg)
	if err != nil {
		return &ValidationError{Field: "config", Reason: "not serializable", Err: err}
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return &ValidationError{Field: "config", Reason: "not serializable", Err: err}
	}

	if err := schema.Validate(inst); err != nil {
		return &ValidationError{
			Field:  "config",
			Reason: err.Error(),
			Err:    fmt.Errorf("%w: %w", ErrInvalidModuleConfig, err),
		}
	}
	return nil
}
