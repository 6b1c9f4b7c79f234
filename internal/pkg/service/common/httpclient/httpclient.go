// Package httpclient provides HTTP client for connectors, with retries and logging.
package httpclient

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/keboola/metric-duct/internal/pkg/log"
)

const (
	idleConnTimeout = 90 * time.Second
	keepAlive       = 30 * time.Second
	maxIdleConns    = 64
)

type Config struct {
	Timeout          time.Duration `configKey:"timeout" configUsage:"Timeout of one HTTP request, including retries." validate:"required,min=1ms"`
	RetryCount       int           `configKey:"retryCount" configUsage:"Number of retries of a failed HTTP request." validate:"min=0,max=20"`
	RetryWaitTime    time.Duration `configKey:"retryWaitTime" configUsage:"Initial delay before a retry." validate:"required"`
	RetryMaxWaitTime time.Duration `configKey:"retryMaxWaitTime" configUsage:"Maximum delay before a retry." validate:"required,gtefield=RetryWaitTime"`
}

type options struct {
	userAgent string
	logger    log.Logger
	transport http.RoundTripper
}

type Option func(c *options)

func NewConfig() Config {
	return Config{
		Timeout:          30 * time.Second,
		RetryCount:       3,
		RetryWaitTime:    100 * time.Millisecond,
		RetryMaxWaitTime: 3 * time.Second,
	}
}

func WithUserAgent(v string) Option {
	return func(c *options) {
		c.userAgent = v
	}
}

// WithLogger logs retries as warnings and failed requests as errors.
func WithLogger(v log.Logger) Option {
	return func(c *options) {
		c.logger = v
	}
}

// WithTransport replaces the default transport, it is used by tests.
func WithTransport(v http.RoundTripper) Option {
	return func(c *options) {
		c.transport = v
	}
}

func New(cfg Config, opts ...Option) *resty.Client {
	o := options{userAgent: "metric-duct", logger: log.NewNopLogger(), transport: defaultTransport()}
	for _, opt := range opts {
		opt(&o)
	}

	logger := o.logger.WithComponent("http.client")

	c := resty.New()
	c.SetTransport(o.transport)
	c.SetHeader("User-Agent", o.userAgent)
	c.SetTimeout(cfg.Timeout)
	c.SetRetryCount(cfg.RetryCount)
	c.SetRetryWaitTime(cfg.RetryWaitTime)
	c.SetRetryMaxWaitTime(cfg.RetryMaxWaitTime)
	c.AddRetryCondition(func(response *resty.Response, err error) bool {
		if response == nil {
			return err != nil
		}
		switch response.StatusCode() {
		case
			http.StatusRequestTimeout,
			http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return true
		default:
			return false
		}
	})
	c.AddRetryHook(func(response *resty.Response, err error) {
		if response == nil || response.Request == nil {
			return
		}
		req := response.Request
		logger.Warnf(ctxOf(req), `%s %s | %d | retrying, attempt %d`, req.Method, req.URL, response.StatusCode(), req.Attempt)
	})
	c.OnError(func(req *resty.Request, err error) {
		logger.Debugf(ctxOf(req), `%s %s | %s`, req.Method, req.URL, err)
	})

	return c
}

func ctxOf(req *resty.Request) context.Context {
	if ctx := req.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func defaultTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: keepAlive,
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          maxIdleConns,
		MaxIdleConnsPerHost:   maxIdleConns,
		IdleConnTimeout:       idleConnTimeout,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}
