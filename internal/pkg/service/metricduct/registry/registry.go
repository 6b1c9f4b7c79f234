// Package registry is the explicit extension point of metric-duct.
//
// Plugins are registered at startup by modules, there is no reflection-based discovery.
// Each model type (the "type" field of an extract, transform or load item) must have exactly one implementation.
package registry

import (
	"context"
	"slices"
	"sort"

	"github.com/keboola/metric-duct/internal/pkg/service/metricduct/model"
	"github.com/keboola/metric-duct/internal/pkg/service/metricduct/status"
	"github.com/keboola/metric-duct/internal/pkg/utils/errors"
)

// ExtractProcessor queries one data source, the result may contain multiple series.
type ExtractProcessor interface {
	Extract(ctx context.Context, item model.Extract) ([]model.Series, error)
}

// Transform modifies one series.
type Transform interface {
	Apply(ctx context.Context, series model.Series) (model.Series, error)
}

// TransformFactory creates a Transform from the item parameters.
type TransformFactory func(params map[string]any) (Transform, error)

// LoadProcessor delivers the series to one destination.
type LoadProcessor interface {
	Load(ctx context.Context, item model.Load, series []model.Series) error
}

// Module registers plugins to the Builder.
type Module func(b *Builder)

type Builder struct {
	extracts   map[string]ExtractProcessor
	transforms map[string]TransformFactory
	loads      map[string]LoadProcessor
	consumers  []status.Consumer
	errs       errors.MultiError
}

type Registry struct {
	extracts   map[string]ExtractProcessor
	transforms map[string]TransformFactory
	loads      map[string]LoadProcessor
	consumers  []status.Consumer
}

// Build runs all modules and fails if a type is registered more than once.
func Build(modules ...Module) (*Registry, error) {
	b := &Builder{
		extracts:   make(map[string]ExtractProcessor),
		transforms: make(map[string]TransformFactory),
		loads:      make(map[string]LoadProcessor),
		errs:       errors.NewMultiError(),
	}

	for _, module := range modules {
		module(b)
	}

	if err := b.errs.ErrorOrNil(); err != nil {
		return nil, errors.PrefixError(err, "invalid plugin registration")
	}

	return &Registry{
		extracts:   b.extracts,
		transforms: b.transforms,
		loads:      b.loads,
		consumers:  b.consumers,
	}, nil
}

func (b *Builder) AddExtract(typ string, p ExtractProcessor) {
	if _, found := b.extracts[typ]; found {
		b.errs.Append(errors.Errorf(`extract type "%s" is already registered`, typ))
		return
	}
	b.extracts[typ] = p
}

func (b *Builder) AddTransform(typ string, f TransformFactory) {
	if _, found := b.transforms[typ]; found {
		b.errs.Append(errors.Errorf(`transform type "%s" is already registered`, typ))
		return
	}
	b.transforms[typ] = f
}

func (b *Builder) AddLoad(typ string, p LoadProcessor) {
	if _, found := b.loads[typ]; found {
		b.errs.Append(errors.Errorf(`load type "%s" is already registered`, typ))
		return
	}
	b.loads[typ] = p
}

func (b *Builder) AddStatusConsumer(c status.Consumer) {
	b.consumers = append(b.consumers, c)
}

func (r *Registry) Extract(typ string) (ExtractProcessor, bool) {
	p, found := r.extracts[typ]
	return p, found
}

func (r *Registry) Transform(typ string) (TransformFactory, bool) {
	f, found := r.transforms[typ]
	return f, found
}

func (r *Registry) Load(typ string) (LoadProcessor, bool) {
	p, found := r.loads[typ]
	return p, found
}

func (r *Registry) StatusConsumers() []status.Consumer {
	return slices.Clone(r.consumers)
}

// Types returns sorted registered types for the help output.
func (r *Registry) Types() (extracts, transforms, loads []string) {
	return sortedKeys(r.extracts), sortedKeys(r.transforms), sortedKeys(r.loads)
}

// Check fails if the configuration references a type without an implementation.
func (r *Registry) Check(cfg model.Configuration) error {
	errs := errors.NewMultiError()
	for i, item := range cfg.Extract {
		if _, found := r.extracts[item.Type]; !found {
			errs.Append(errors.Errorf(`extract[%d]: unknown extract type "%s"`, i, item.Type))
		}
	}
	for i, item := range cfg.Transform {
		if _, found := r.transforms[item.Type]; !found {
			errs.Append(errors.Errorf(`transform[%d]: unknown transform type "%s"`, i, item.Type))
		}
	}
	for i, item := range cfg.Load {
		if _, found := r.loads[item.Type]; !found {
			errs.Append(errors.Errorf(`load[%d]: unknown load type "%s"`, i, item.Type))
		}
	}
	return errs.ErrorOrNil()
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
