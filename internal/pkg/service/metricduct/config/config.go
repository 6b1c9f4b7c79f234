// Package config contains configuration of the Metric Duct service.
//
// Each field is mapped to a flag, an ENV and a key of the optional config file, see the configmap package.
// For example "provider.refreshInterval" -> "--provider-refresh-interval" -> "METRIC_DUCT_PROVIDER_REFRESH_INTERVAL".
package config

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/pflag"

	"github.com/keboola/metric-duct/internal/pkg/env"
	"github.com/keboola/metric-duct/internal/pkg/log"
	"github.com/keboola/metric-duct/internal/pkg/service/common/configmap"
	"github.com/keboola/metric-duct/internal/pkg/service/common/etcdclient"
	"github.com/keboola/metric-duct/internal/pkg/service/common/httpclient"
	"github.com/keboola/metric-duct/internal/pkg/service/metricduct/intake"
	"github.com/keboola/metric-duct/internal/pkg/service/metricduct/orchestrator"
	"github.com/keboola/metric-duct/internal/pkg/service/metricduct/pipeline"
	"github.com/keboola/metric-duct/internal/pkg/service/metricduct/plugin/kafkasink"
	"github.com/keboola/metric-duct/internal/pkg/service/metricduct/plugin/s3sink"
	"github.com/keboola/metric-duct/internal/pkg/service/metricduct/plugin/sqlsource"
	"github.com/keboola/metric-duct/internal/pkg/service/metricduct/provider"
	"github.com/keboola/metric-duct/internal/pkg/utils/errors"
	"github.com/keboola/metric-duct/internal/pkg/validator"
)

const (
	EnvPrefix      = "METRIC_DUCT_"
	ConfigFileFlag = "config-file"

	RoleMaster   = "master"
	RoleFollower = "follower"

	sensitiveMask = "*****"
)

// Config of the Metric Duct service.
type Config struct {
	NodeID       string              `configKey:"nodeID" configUsage:"Unique ID of the node, the process unique ID is used if empty."`
	Verbose      bool                `configKey:"verbose" configShorthand:"v" configUsage:"Enable debug log level."`
	LogFormat    string              `configKey:"logFormat" configUsage:"Log format, \"console\" or \"json\"." validate:"required,oneof=console json"`
	Role         string              `configKey:"role" configUsage:"Role of the node if etcd is disabled, \"master\" or \"follower\"." validate:"required,oneof=master follower"`
	Metrics      Metrics             `configKey:"metrics"`
	Etcd         etcdclient.Config   `configKey:"etcd"`
	Intake       intake.Config       `configKey:"intake"`
	Provider     provider.Config     `configKey:"provider"`
	Pipeline     pipeline.Config     `configKey:"pipeline"`
	Orchestrator orchestrator.Config `configKey:"orchestrator"`
	HTTPClient   httpclient.Config   `configKey:"httpClient"`
	SQL          sqlsource.Config    `configKey:"sql"`
	Kafka        kafkasink.Config    `configKey:"kafka"`
	S3           s3sink.Config       `configKey:"s3"`
}

type Metrics struct {
	Listen string `configKey:"listen" configUsage:"Listen address of the Prometheus metrics endpoint, empty value disables the endpoint." validate:"omitempty,hostname_port"`
}

// Binder registers flags of the Config and binds values from flags, ENVs and the config file.
type Binder struct {
	flags  *pflag.FlagSet
	fields map[string]configmap.Field
}

func New() Config {
	return Config{
		LogFormat:    string(log.LogFormatConsole),
		Role:         RoleMaster,
		Metrics:      Metrics{Listen: "0.0.0.0:9000"},
		Etcd:         etcdclient.NewConfig(),
		Intake:       intake.NewConfig(),
		Provider:     provider.NewConfig(),
		Pipeline:     pipeline.NewConfig(),
		Orchestrator: orchestrator.NewConfig(),
		HTTPClient:   httpclient.NewConfig(),
		SQL:          sqlsource.NewConfig(),
		Kafka:        kafkasink.NewConfig(),
		S3:           s3sink.NewConfig(),
	}
}

func (c *Config) Normalize() {
	c.NodeID = strings.TrimSpace(c.NodeID)
	c.Intake.Dir = strings.TrimSpace(c.Intake.Dir)
	if c.Etcd.Enabled() {
		c.Etcd.Normalize()
	}
}

func (c Config) Validate(ctx context.Context) error {
	errs := errors.NewMultiError()
	if err := validator.New().Validate(ctx, c); err != nil {
		errs.Append(err)
	}
	if c.Etcd.Enabled() {
		if err := c.Etcd.Validate(); err != nil {
			errs.Append(err)
		}
	}
	return errs.ErrorOrNil()
}

// Dump returns all configuration values as "key=value" lines, sensitive values are masked.
func (c Config) Dump() string {
	fields, err := configmap.Fields(c)
	if err != nil {
		panic(err)
	}

	var out strings.Builder
	for _, f := range fields {
		value := fmt.Sprint(f.Value.Interface())
		if f.Sensitive && value != "" {
			value = sensitiveMask
		}
		out.WriteString(f.Key)
		out.WriteString("=")
		out.WriteString(value)
		out.WriteString("\n")
	}
	return out.String()
}

// NewBinder registers flags of all configuration fields to the flag set, defaults are taken from New.
func NewBinder(fs *pflag.FlagSet) *Binder {
	fs.String(ConfigFileFlag, "", "Path to an optional YAML or JSON config file.")
	return &Binder{flags: fs, fields: configmap.MustGenerateFlags(fs, New())}
}

// Bind loads the configuration, it should be called after the flags are parsed.
// Priority: flag > ENV > config file > default value.
func (b *Binder) Bind(ctx context.Context, envs *env.Map) (Config, error) {
	naming := env.NewNamingConvention(EnvPrefix)

	configFile, _ := b.flags.GetString(ConfigFileFlag)
	if !b.flags.Changed(ConfigFileFlag) {
		if value, found := envs.Lookup(naming.FlagToEnv(ConfigFileFlag)); found {
			configFile = value
		}
	}

	cfg := New()
	_, err := configmap.Bind(configmap.BindConfig{
		Flags:      b.flags,
		Fields:     b.fields,
		Envs:       envs,
		EnvNaming:  naming,
		ConfigFile: configFile,
	}, &cfg)
	if err != nil {
		return Config{}, err
	}

	cfg.Normalize()
	if err := cfg.Validate(ctx); err != nil {
		return Config{}, errors.PrefixError(err, "invalid configuration")
	}

	return cfg, nil
}
