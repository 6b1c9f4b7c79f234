package intake

import (
	"context"
	"slices"

	"github.com/spf13/afero"
	"go.uber.org/atomic"

	"github.com/keboola/metric-duct/internal/pkg/log"
	"github.com/keboola/metric-duct/internal/pkg/service/metricduct/model"
)

// Loader reads all configurations from the directory, each Load uses a new Intake.
//
// Once the directory has been read, it must exist in all following loads.
// A directory which disappears later, for example an unmounted volume, is a failed load,
// so the last good configurations are kept instead of being replaced by an empty set.
type Loader struct {
	fs       afero.Fs
	logger   log.Logger
	config   Config
	opts     []Option
	dirFound *atomic.Bool
}

func NewLoader(fs afero.Fs, logger log.Logger, cfg Config, opts ...Option) *Loader {
	opts = append([]Option{WithSuffixes(cfg.Suffixes...)}, opts...)
	return &Loader{fs: fs, logger: logger, config: cfg, opts: opts, dirFound: atomic.NewBool(false)}
}

// Dir returns the configuration directory.
func (l *Loader) Dir() string {
	return l.config.Dir
}

// Load returns all valid configurations and a *BootstrapError if any file is invalid
// or if the previously read directory is missing.
func (l *Loader) Load(ctx context.Context) ([]model.Configuration, error) {
	opts := l.opts
	if l.dirFound.Load() {
		opts = append(slices.Clone(opts), WithRequiredDir())
	}

	in := New(l.fs, l.logger, opts...)
	cfgs := in.ParseAll(ctx, in.ListFiles(ctx, l.config.Dir))
	if in.dirFound {
		l.dirFound.Store(true)
	}
	return cfgs, in.ErrorOrNil()
}
