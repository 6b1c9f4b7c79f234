// Package httpserver starts an HTTP server bound to the lifetime of the servicectx.Process.
package httpserver

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/keboola/metric-duct/internal/pkg/log"
	"github.com/keboola/metric-duct/internal/pkg/service/common/servicectx"
	"github.com/keboola/metric-duct/internal/pkg/utils/errors"
)

const (
	readHeaderTimeout       = 10 * time.Second
	gracefulShutdownTimeout = 30 * time.Second
)

type HTTPServer struct {
	*http.Server
	logger        log.Logger
	proc          *servicectx.Process
	listenAddress string
	listener      net.Listener
}

type dependencies interface {
	Logger() log.Logger
	Process() *servicectx.Process
}

// New creates new instance of HTTP server that is not running yet.
func New(d dependencies, cfg Config) *HTTPServer {
	server := &HTTPServer{
		logger:        d.Logger().WithComponent("http-server"),
		proc:          d.Process(),
		listenAddress: cfg.ListenAddress,
	}

	mux := http.NewServeMux()
	if cfg.Mount != nil {
		cfg.Mount(mux)
	}

	server.Server = &http.Server{
		Addr:              server.listenAddress,
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
		ErrorLog:          log.NewStdErrorLogger(server.logger),
	}
	return server
}

// Start HTTP server.
// The listener is created synchronously, so an invalid or used address is reported immediately.
func (h *HTTPServer) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", h.listenAddress)
	if err != nil {
		return errors.PrefixErrorf(err, `cannot start HTTP server on "%s"`, h.listenAddress)
	}
	h.listener = listener

	// Serve in a separate goroutine
	h.proc.Add(func(_ context.Context, errCh chan<- error) {
		h.logger.Infof(ctx, `started HTTP server on "%s"`, h.Addr())
		if err := h.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	})

	// Register graceful shutdown
	h.proc.OnShutdown(func(ctx context.Context) {
		ctx, cancel := context.WithTimeoutCause(ctx, gracefulShutdownTimeout, errors.New("graceful shutdown timeout"))
		defer cancel()

		h.logger.Infof(ctx, `shutting down HTTP server at "%s"`, h.Addr())
		if err := h.Shutdown(ctx); err != nil {
			h.logger.Errorf(ctx, `HTTP server shutdown error: %s`, err)
		}
		h.logger.Info(ctx, "HTTP server shutdown finished")
	})

	return nil
}

// Addr returns the listen address, it differs from the configured address if the port is "0".
func (h *HTTPServer) Addr() string {
	if h.listener != nil {
		return h.listener.Addr().String()
	}
	return h.listenAddress
}
