// Package intake discovers configuration files in a directory and parses them.
//
// Errors are not returned immediately, they are collected in the order of occurrence,
// so one run reports all invalid files. See Intake.ErrorOrNil.
package intake

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/afero"
	"go.opentelemetry.io/otel/attribute"
	"gopkg.in/yaml.v3"

	"github.com/keboola/metric-duct/internal/pkg/encoding/json"
	"github.com/keboola/metric-duct/internal/pkg/log"
	"github.com/keboola/metric-duct/internal/pkg/service/metricduct/model"
	"github.com/keboola/metric-duct/internal/pkg/utils/errors"
	"github.com/keboola/metric-duct/internal/pkg/validator"
)

// Checker validates types used in a configuration, it is implemented by the registry.
type Checker interface {
	Check(cfg model.Configuration) error
}

type Intake struct {
	fs        afero.Fs
	logger    log.Logger
	validator *validator.Validator
	checker   Checker
	suffixes  []string
	errs      errors.MultiError
	// requireDir makes a missing directory an error
	requireDir bool
	// dirFound is set when ListFiles has read the directory
	dirFound bool
}

type Option func(i *Intake)

// WithChecker enables validation of extract, transform and load types.
func WithChecker(c Checker) Option {
	return func(i *Intake) {
		i.checker = c
	}
}

// WithRequiredDir makes a missing configuration directory an error instead of a warning.
// An unset directory is still only a warning.
func WithRequiredDir() Option {
	return func(i *Intake) {
		i.requireDir = true
	}
}

func WithSuffixes(suffixes ...string) Option {
	return func(i *Intake) {
		i.suffixes = suffixes
	}
}

func New(fs afero.Fs, logger log.Logger, opts ...Option) *Intake {
	i := &Intake{
		fs:        fs,
		logger:    logger.WithComponent("intake"),
		validator: validator.New(),
		suffixes:  []string{DefaultSuffix},
		errs:      errors.NewMultiError(),
	}
	for _, o := range opts {
		o(i)
	}
	return i
}

// ListFiles returns sorted absolute paths of configuration files directly in the dir.
// A missing or unset dir results in an empty list and a warning, see also WithRequiredDir.
// Other errors are recorded by AddError.
func (i *Intake) ListFiles(ctx context.Context, dir string) []string {
	if dir == "" {
		i.logger.Warn(ctx, "configuration directory is not set")
		return nil
	}

	absDir, err := filepath.Abs(dir)
	if err != nil {
		i.AddError(errors.PrefixErrorf(err, `cannot resolve configuration directory "%s"`, dir))
		return nil
	}

	entries, err := afero.ReadDir(i.fs, absDir)
	if err != nil {
		if os.IsNotExist(err) && !i.requireDir {
			i.logger.Warnf(ctx, `configuration directory "%s" not found`, absDir)
		} else if os.IsNotExist(err) {
			i.AddError(errors.Errorf(`configuration directory "%s" not found`, absDir))
		} else {
			i.AddError(errors.PrefixErrorf(err, `cannot read configuration directory "%s"`, absDir))
		}
		return nil
	}
	i.dirFound = true

	var files []string
	for _, entry := range entries {
		if entry.Mode().IsRegular() && i.hasSuffix(entry.Name()) {
			files = append(files, filepath.Join(absDir, entry.Name()))
		}
	}

	slices.Sort(files)
	return files
}

// ParseAll parses all files, each file independently.
// Invalid files are skipped and recorded by AddError.
// Duplicate configurations collapse to one, the result is ordered by hash.
func (i *Intake) ParseAll(ctx context.Context, files []string) []model.Configuration {
	byHash := make(map[uint64]model.Configuration)
	for _, path := range files {
		cfgs, err := i.parseOne(ctx, path)
		if err != nil {
			i.AddError(&ParseError{Path: path, Err: err})
			continue
		}
		for _, cfg := range cfgs {
			byHash[cfg.Hash()] = cfg
		}
		i.logger.With(attribute.String("file", path)).Debugf(ctx, `loaded %d configurations from "<file>"`, len(cfgs))
	}

	hashes := make([]uint64, 0, len(byHash))
	for hash := range byHash {
		hashes = append(hashes, hash)
	}
	slices.Sort(hashes)

	out := make([]model.Configuration, 0, len(hashes))
	for _, hash := range hashes {
		out = append(out, byHash[hash])
	}
	return out
}

// AddError records an error, errors are kept in the order of occurrence.
func (i *Intake) AddError(err error) {
	i.errs.Append(err)
}

// Errors returns a copy of all recorded errors.
func (i *Intake) Errors() []error {
	return i.errs.WrappedErrors()
}

// ErrorOrNil returns a *BootstrapError if there is at least one recorded error.
func (i *Intake) ErrorOrNil() error {
	errs := i.Errors()
	if len(errs) == 0 {
		return nil
	}
	return newBootstrapError(errs)
}

// parseOne reads a file with a list of configurations.
func (i *Intake) parseOne(ctx context.Context, path string) ([]model.Configuration, error) {
	content, err := afero.ReadFile(i.fs, path)
	if err != nil {
		return nil, err
	}

	var cfgs []model.Configuration
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err = decodeYAML(content, &cfgs); err == nil {
			err = normalizeYAML(&cfgs)
		}
	default:
		err = json.Decode(content, &cfgs)
	}
	if err != nil {
		return nil, errors.PrefixError(err, "cannot decode")
	}

	errs := errors.NewMultiError()
	for index, cfg := range cfgs {
		if err := i.validator.Validate(ctx, cfg); err != nil {
			errs.AppendWithPrefixf(err, "configuration [%d] is invalid", index)
		} else if i.checker != nil {
			if err := i.checker.Check(cfg); err != nil {
				errs.AppendWithPrefixf(err, "configuration [%d] is invalid", index)
			}
		}
	}
	if err := errs.ErrorOrNil(); err != nil {
		return nil, err
	}

	return cfgs, nil
}

func (i *Intake) hasSuffix(name string) bool {
	for _, suffix := range i.suffixes {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return false
}

func decodeYAML(content []byte, target any) error {
	decoder := yaml.NewDecoder(strings.NewReader(string(content)))
	decoder.KnownFields(true)
	return decoder.Decode(target)
}

// normalizeYAML converts params to the JSON form, YAML integers become float64.
// The identity of a configuration then survives the JSON encoding in the shared store.
func normalizeYAML(cfgs *[]model.Configuration) error {
	data, err := json.Encode(*cfgs, false)
	if err != nil {
		return err
	}
	*cfgs = nil
	return json.Decode(data, cfgs)
}
