package feeders

import "errors"

// Static error definitions for feeders
var (
	ErrUnsupportedFormat       = errors.New("unsupported config file format")
	ErrEnvInvalidStructure     = errors.New("env: invalid structure")
	ErrEnvEmptyPrefix          = errors.New("env: prefix cannot be empty")
	ErrEnvFieldCannotBeSet     = errors.New("env: field cannot be set")
	ErrEnvUnsupportedFieldType = errors.New("env: unsupported field type")
)
