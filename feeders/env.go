package feeders

import (
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/golobby/cast"
)

// PrefixedEnvFeeder reads environment variables named PREFIX_TAG, where TAG
// is a field's `env` tag. A nested struct with an `env` tag extends the
// prefix for its fields, so Storage.DSN tagged `env:"STORAGE"` and
// `env:"DSN"` reads PREFIX_STORAGE_DSN.
type PrefixedEnvFeeder struct {
	Prefix string
}

// NewPrefixedEnvFeeder creates a feeder for the given prefix.
func NewPrefixedEnvFeeder(prefix string) PrefixedEnvFeeder {
	return PrefixedEnvFeeder{Prefix: prefix}
}

// Feed populates the structure from the environment. Unset or empty
// variables leave fields untouched.
func (f PrefixedEnvFeeder) Feed(structure interface{}) error {
	if f.Prefix == "" {
		return ErrEnvEmptyPrefix
	}
	rv := reflect.ValueOf(structure)
	if !rv.IsValid() || rv.Kind() != reflect.Ptr || rv.Elem().Kind() != reflect.Struct {
		return ErrEnvInvalidStructure
	}
	return fillStruct(rv.Elem(), strings.ToUpper(strings.TrimSuffix(f.Prefix, "_")))
}

func fillStruct(rv reflect.Value, prefix string) error {
	for i := 0; i < rv.NumField(); i++ {
		field := rv.Field(i)
		fieldType := rv.Type().Field(i)
		if !fieldType.IsExported() {
			continue
		}
		if err := processField(field, fieldType, prefix); err != nil {
			return fmt.Errorf("error in field '%s': %w", fieldType.Name, err)
		}
	}
	return nil
}

func processField(field reflect.Value, fieldType reflect.StructField, prefix string) error {
	tag, hasTag := fieldType.Tag.Lookup("env")
	if tag == "-" {
		return nil
	}

	switch field.Kind() {
	case reflect.Struct:
		nested := prefix
		if hasTag && tag != "" {
			nested = prefix + "_" + strings.ToUpper(tag)
		}
		return fillStruct(field, nested)
	case reflect.Pointer:
		if !field.IsNil() && field.Elem().Kind() == reflect.Struct {
			nested := prefix
			if hasTag && tag != "" {
				nested = prefix + "_" + strings.ToUpper(tag)
			}
			return fillStruct(field.Elem(), nested)
		}
	}

	if !hasTag || tag == "" {
		return nil
	}
	envValue := os.Getenv(prefix + "_" + strings.ToUpper(tag))
	if envValue == "" {
		return nil
	}
	return setFieldValue(field, envValue)
}

// setFieldValue converts and sets a field value
func setFieldValue(field reflect.Value, strValue string) error {
	if !field.CanSet() {
		return ErrEnvFieldCannotBeSet
	}

	switch field.Kind() {
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("%w: %v", ErrEnvUnsupportedFieldType, field.Type())
		}
		parts := strings.Split(strValue, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		field.Set(reflect.ValueOf(parts))
		return nil
	case reflect.String:
		// Named string types such as policies and levels.
		field.SetString(strValue)
		return nil
	}

	convertedValue, err := cast.FromType(strValue, field.Type())
	if err != nil {
		return fmt.Errorf("cannot convert value to type %v: %w", field.Type(), err)
	}
	field.Set(reflect.ValueOf(convertedValue).Convert(field.Type()))
	return nil
}
