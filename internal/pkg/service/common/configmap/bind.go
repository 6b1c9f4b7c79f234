package configmap

import (
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/keboola/metric-duct/internal/pkg/env"
	"github.com/keboola/metric-duct/internal/pkg/utils/errors"
)

type SetBy string

const (
	SetByDefault    SetBy = "default"
	SetByConfigFile SetBy = "configFile"
	SetByEnv        SetBy = "env"
	SetByFlag       SetBy = "flag"
)

type BindConfig struct {
	Flags      *pflag.FlagSet
	Fields     map[string]Field
	Envs       *env.Map
	EnvNaming  *env.NamingConvention
	ConfigFile string
}

// Bind flags, ENVs and an optional YAML/JSON config file to the target structure.
// Priority: flag > ENV > config file > default value.
// The returned map describes the source of each config key.
func Bind(cfg BindConfig, target any) (map[string]SetBy, error) {
	v := viper.New()
	setBy := make(map[string]SetBy)

	if cfg.ConfigFile != "" {
		v.SetConfigFile(cfg.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.PrefixErrorf(err, `cannot read config file "%s"`, cfg.ConfigFile)
		}
	}

	errs := errors.NewMultiError()
	cfg.Flags.VisitAll(func(flag *pflag.Flag) {
		field, ok := cfg.Fields[flag.Name]
		if !ok {
			return
		}

		if err := v.BindPFlag(field.Key, flag); err != nil {
			errs.Append(err)
			return
		}

		switch {
		case flag.Changed:
			setBy[field.Key] = SetByFlag
		case cfg.Envs != nil && cfg.EnvNaming != nil:
			if value, found := cfg.Envs.Lookup(cfg.EnvNaming.FlagToEnv(flag.Name)); found {
				v.Set(field.Key, value)
				setBy[field.Key] = SetByEnv
				return
			}
			fallthrough
		default:
			if v.InConfig(field.Key) {
				setBy[field.Key] = SetByConfigFile
			} else {
				setBy[field.Key] = SetByDefault
			}
		}
	})
	if err := errs.ErrorOrNil(); err != nil {
		return nil, err
	}

	err := v.Unmarshal(target, func(c *mapstructure.DecoderConfig) {
		c.TagName = configKeyTag
		c.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	})
	if err != nil {
		return nil, errors.PrefixError(err, "cannot decode configuration")
	}

	return setBy, nil
}
