// Package params decodes the "params" map of a configuration item to a typed struct.
//
// Fields are matched by the "json" tag, so params structs share tags with the configuration files.
// The decoded struct is validated by the "validate" tags.
package params

import (
	"context"

	"github.com/mitchellh/mapstructure"

	"github.com/keboola/metric-duct/internal/pkg/utils/errors"
	"github.com/keboola/metric-duct/internal/pkg/validator"
)

var validate = validator.New()

// Decode fails on an unknown key, on a type mismatch and on a failed validation rule.
func Decode(ctx context.Context, params map[string]any, target any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           target,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return err
	}

	if err := decoder.Decode(params); err != nil {
		return errors.PrefixError(err, "invalid params")
	}

	if err := validate.Validate(ctx, target); err != nil {
		return errors.PrefixError(err, "invalid params")
	}

	return nil
}
