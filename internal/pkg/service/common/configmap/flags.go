// Package configmap maps a configuration structure to CLI flags, ENVs and a config file.
//
// Each field tagged by the "configKey" tag is mapped to a flag.
// Nested structures are mapped to dot separated keys, for example "etcd.endpoint" -> "--etcd-endpoint".
// Field can optionally have the "configUsage" and "configShorthand" tags.
package configmap

import (
	"reflect"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/keboola/metric-duct/internal/pkg/utils/errors"
)

const (
	configKeyTag       = "configKey"
	configUsageTag     = "configUsage"
	configShorthandTag = "configShorthand"
	sensitiveTag       = "sensitive"
)

// Field is one leaf of the configuration structure.
type Field struct {
	Key       string
	FlagName  string
	Usage     string
	Shorthand string
	Sensitive bool
	Value     reflect.Value
}

func MustGenerateFlags(fs *pflag.FlagSet, v any) map[string]Field {
	fields, err := GenerateFlags(fs, v)
	if err != nil {
		panic(err)
	}
	return fields
}

// GenerateFlags generates flags from the configuration structure, the current values are used as defaults.
// The returned map is indexed by the flag name.
func GenerateFlags(fs *pflag.FlagSet, v any) (map[string]Field, error) {
	fields, err := Fields(v)
	if err != nil {
		return nil, err
	}

	out := make(map[string]Field, len(fields))
	for _, f := range fields {
		switch value := f.Value.Interface().(type) {
		case time.Duration:
			fs.DurationP(f.FlagName, f.Shorthand, value, f.Usage)
		case int:
			fs.IntP(f.FlagName, f.Shorthand, value, f.Usage)
		case int64:
			fs.Int64P(f.FlagName, f.Shorthand, value, f.Usage)
		case float64:
			fs.Float64P(f.FlagName, f.Shorthand, value, f.Usage)
		case bool:
			fs.BoolP(f.FlagName, f.Shorthand, value, f.Usage)
		case string:
			fs.StringP(f.FlagName, f.Shorthand, value, f.Usage)
		case []string:
			fs.StringSliceP(f.FlagName, f.Shorthand, value, f.Usage)
		default:
			return nil, errors.Errorf(`unexpected type "%T" of the field "%s"`, value, f.Key)
		}
		out[f.FlagName] = f
	}
	return out, nil
}

// Fields returns all leaf fields of the configuration structure in the definition order.
func Fields(v any) ([]Field, error) {
	value := reflect.ValueOf(v)
	if value.Kind() == reflect.Pointer {
		value = value.Elem()
	}
	if value.Kind() != reflect.Struct {
		return nil, errors.Errorf(`cannot generate flags from type "%s": it is not a struct or a pointer to a struct`, value.Type().String())
	}

	var out []Field
	visit(value, nil, &out)
	return out, nil
}

func visit(value reflect.Value, path []string, out *[]Field) {
	for i := range value.NumField() {
		field := value.Type().Field(i)
		key, found := field.Tag.Lookup(configKeyTag)
		if !found || key == "" || key == "-" || !field.IsExported() {
			continue
		}

		fieldPath := append(append([]string(nil), path...), key)
		fieldValue := value.Field(i)

		// Durations are leaves, other structs are iterated
		if fieldValue.Kind() == reflect.Struct && fieldValue.Type() != reflect.TypeOf(time.Duration(0)) {
			visit(fieldValue, fieldPath, out)
			continue
		}

		fullKey := strings.Join(fieldPath, ".")
		*out = append(*out, Field{
			Key:       fullKey,
			FlagName:  fieldToFlagName(fullKey),
			Usage:     field.Tag.Get(configUsageTag),
			Shorthand: field.Tag.Get(configShorthandTag),
			Sensitive: field.Tag.Get(sensitiveTag) == "true",
			Value:     fieldValue,
		})
	}
}
