package etcdclient

import (
	"strings"
	"time"

	"github.com/keboola/metric-duct/internal/pkg/utils/errors"
)

const (
	DefaultConnectTimeout    = 30 * time.Second
	DefaultKeepAliveTimeout  = 5 * time.Second
	DefaultKeepAliveInterval = 10 * time.Second
	DefaultSessionTTL        = 15
)

// Config of the etcd client.
// Etcd is optional, without the endpoint the node runs standalone.
type Config struct {
	Endpoint          string        `configKey:"endpoint" configUsage:"Etcd endpoint, empty value disables etcd."`
	Namespace         string        `configKey:"namespace" configUsage:"Etcd namespace."`
	Username          string        `configKey:"username" configUsage:"Etcd username."`
	Password          string        `configKey:"password" configUsage:"Etcd password." sensitive:"true"`
	ConnectTimeout    time.Duration `configKey:"connectTimeout" configUsage:"Etcd connect timeout." validate:"required"`
	KeepAliveTimeout  time.Duration `configKey:"keepAliveTimeout" configUsage:"Etcd keep alive timeout." validate:"required"`
	KeepAliveInterval time.Duration `configKey:"keepAliveInterval" configUsage:"Etcd keep alive interval." validate:"required"`
	SessionTTL        int           `configKey:"sessionTTL" configUsage:"Etcd session TTL in seconds, it determines how fast a dead master is replaced." validate:"required,min=1"`
}

func NewConfig() Config {
	return Config{
		Namespace:         "metric-duct",
		ConnectTimeout:    DefaultConnectTimeout,
		KeepAliveTimeout:  DefaultKeepAliveTimeout,
		KeepAliveInterval: DefaultKeepAliveInterval,
		SessionTTL:        DefaultSessionTTL,
	}
}

func (c Config) Enabled() bool {
	return c.Endpoint != ""
}

func (c *Config) Normalize() {
	c.Endpoint = strings.Trim(c.Endpoint, " /")
	c.Namespace = strings.Trim(c.Namespace, " /") + "/"
}

func (c *Config) Validate() error {
	if c.Endpoint == "" {
		return errors.New("etcd endpoint is not set")
	}
	if c.Namespace == "/" {
		return errors.New("etcd namespace is not set")
	}
	return nil
}
