// Package dependencies provides the dependency container of the Metric Duct service.
//
// The ServiceScope is created once at startup, all components receive it and use only the methods they need.
// External connections, like the etcd client, the Kafka writer or SQL handles, are closed on the process shutdown.
package dependencies

import (
	"context"
	"net/http"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/afero"
	etcd "go.etcd.io/etcd/client/v3"

	"github.com/keboola/metric-duct/internal/pkg/log"
	"github.com/keboola/metric-duct/internal/pkg/service/common/etcdclient"
	"github.com/keboola/metric-duct/internal/pkg/service/common/httpclient"
	"github.com/keboola/metric-duct/internal/pkg/service/common/membership"
	"github.com/keboola/metric-duct/internal/pkg/service/common/servicectx"
	"github.com/keboola/metric-duct/internal/pkg/service/metricduct/config"
	"github.com/keboola/metric-duct/internal/pkg/service/metricduct/intake"
	"github.com/keboola/metric-duct/internal/pkg/service/metricduct/plugin/httpsink"
	"github.com/keboola/metric-duct/internal/pkg/service/metricduct/plugin/httpsource"
	"github.com/keboola/metric-duct/internal/pkg/service/metricduct/plugin/kafkasink"
	"github.com/keboola/metric-duct/internal/pkg/service/metricduct/plugin/s3sink"
	"github.com/keboola/metric-duct/internal/pkg/service/metricduct/plugin/sqlsource"
	"github.com/keboola/metric-duct/internal/pkg/service/metricduct/plugin/transforms"
	"github.com/keboola/metric-duct/internal/pkg/service/metricduct/provider"
	"github.com/keboola/metric-duct/internal/pkg/service/metricduct/registry"
	"github.com/keboola/metric-duct/internal/pkg/service/metricduct/snapshotstore"
	"github.com/keboola/metric-duct/internal/pkg/service/metricduct/status"
	"github.com/keboola/metric-duct/internal/pkg/utils/errors"
)

const userAgent = "metric-duct"

type ServiceScope interface {
	Clock() clockwork.Clock
	Logger() log.Logger
	Process() *servicectx.Process
	Config() config.Config
	NodeID() string
	MetricsRegistry() *prometheus.Registry
	MetricsRegisterer() prometheus.Registerer
	Membership() membership.Oracle
	SnapshotStore() snapshotstore.Store
	ConfigurationLoader() provider.Loader
	PluginRegistry() *registry.Registry
	StatusReporter() *status.Reporter
}

type Option func(c *options)

type options struct {
	clock         clockwork.Clock
	fs            afero.Fs
	etcdClient    *etcd.Client
	httpTransport http.RoundTripper
	sqlOpener     sqlsource.Opener
	kafkaWriter   kafkasink.Writer
	s3Uploader    s3sink.Uploader
	modules       []registry.Module
}

// serviceScope implements the ServiceScope interface.
type serviceScope struct {
	clock           clockwork.Clock
	logger          log.Logger
	proc            *servicectx.Process
	config          config.Config
	nodeID          string
	metricsRegistry *prometheus.Registry
	membership      membership.Oracle
	snapshotStore   snapshotstore.Store
	loader          provider.Loader
	pluginRegistry  *registry.Registry
	statusReporter  *status.Reporter
}

func WithClock(v clockwork.Clock) Option {
	return func(c *options) {
		c.clock = v
	}
}

func WithFs(v afero.Fs) Option {
	return func(c *options) {
		c.fs = v
	}
}

// WithEtcdClient uses an existing etcd client instead of a new connection.
func WithEtcdClient(v *etcd.Client) Option {
	return func(c *options) {
		c.etcdClient = v
	}
}

func WithHTTPTransport(v http.RoundTripper) Option {
	return func(c *options) {
		c.httpTransport = v
	}
}

func WithSQLOpener(v sqlsource.Opener) Option {
	return func(c *options) {
		c.sqlOpener = v
	}
}

// WithKafkaWriter replaces the Kafka writer, the Kafka sink is enabled even if brokers are not configured.
func WithKafkaWriter(v kafkasink.Writer) Option {
	return func(c *options) {
		c.kafkaWriter = v
	}
}

// WithS3Uploader replaces the S3 client, the S3 sink is enabled even if the endpoint is not configured.
func WithS3Uploader(v s3sink.Uploader) Option {
	return func(c *options) {
		c.s3Uploader = v
	}
}

// WithModules registers additional plugin modules.
func WithModules(v ...registry.Module) Option {
	return func(c *options) {
		c.modules = append(c.modules, v...)
	}
}

func NewServiceScope(ctx context.Context, cfg config.Config, proc *servicectx.Process, logger log.Logger, opts ...Option) (ServiceScope, error) {
	o := options{clock: clockwork.NewRealClock(), fs: afero.NewOsFs()}
	for _, opt := range opts {
		opt(&o)
	}

	d := &serviceScope{
		clock:           o.clock,
		logger:          logger,
		proc:            proc,
		config:          cfg,
		nodeID:          cfg.NodeID,
		metricsRegistry: prometheus.NewRegistry(),
	}

	if d.nodeID == "" {
		d.nodeID = proc.UniqueID()
	}

	d.metricsRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	if err := d.setupMembership(ctx, o); err != nil {
		return nil, err
	}

	if err := d.setupPlugins(ctx, o); err != nil {
		return nil, err
	}

	if err := d.setupStatusReporter(); err != nil {
		return nil, err
	}

	d.loader = intake.NewLoader(o.fs, logger, cfg.Intake, intake.WithChecker(d.pluginRegistry))
	return d, nil
}

// setupMembership uses etcd election and the etcd snapshot store, if etcd is enabled.
// Otherwise, the node runs standalone with the configured role.
func (v *serviceScope) setupMembership(ctx context.Context, o options) error {
	client := o.etcdClient
	if client == nil && v.config.Etcd.Enabled() {
		var err error
		client, err = etcdclient.New(ctx, v.proc, v.logger, v.config.Etcd)
		if err != nil {
			return err
		}
	}

	if client == nil {
		v.logger.Infof(ctx, `etcd is disabled, the node runs standalone as "%s"`, v.config.Role)
		if v.config.Role == config.RoleFollower {
			v.membership = membership.Follower()
		} else {
			v.membership = membership.Master()
		}
		v.snapshotStore = snapshotstore.NewMemory()
		return nil
	}

	// The election runs until the process is terminated
	wg := &sync.WaitGroup{}
	election, err := membership.NewEtcdElection(v.proc.Ctx(), wg, v.logger, client, v.nodeID, v.config.Etcd.SessionTTL, membership.FirstResultTimeout)
	if err != nil {
		return errors.PrefixError(err, "cannot start master election")
	}
	v.proc.Add(func(ctx context.Context, _ chan<- error) {
		<-ctx.Done()
		wg.Wait()
	})

	v.membership = election
	v.snapshotStore = snapshotstore.NewEtcd(client)
	return nil
}

func (v *serviceScope) setupPlugins(ctx context.Context, o options) error {
	cfg := v.config

	httpOpts := []httpclient.Option{httpclient.WithUserAgent(userAgent), httpclient.WithLogger(v.logger)}
	if o.httpTransport != nil {
		httpOpts = append(httpOpts, httpclient.WithTransport(o.httpTransport))
	}
	httpClient := httpclient.New(cfg.HTTPClient, httpOpts...)

	var sqlOpts []sqlsource.Option
	if o.sqlOpener != nil {
		sqlOpts = append(sqlOpts, sqlsource.WithOpener(o.sqlOpener))
	}
	sqlSource := sqlsource.New(cfg.SQL, sqlOpts...)
	v.onShutdownClose("sql source", sqlSource.Close)

	modules := []registry.Module{
		httpsource.Module(httpClient),
		sqlSource.Module(),
		transforms.Module(),
		httpsink.Module(httpClient),
	}

	kafkaWriter := o.kafkaWriter
	if kafkaWriter == nil && cfg.Kafka.Enabled() {
		kafkaWriter = kafkasink.NewWriter(cfg.Kafka)
	}
	if kafkaWriter != nil {
		kafkaSink := kafkasink.New(cfg.Kafka, kafkaWriter)
		v.onShutdownClose("kafka writer", kafkaSink.Close)
		modules = append(modules, kafkaSink.Module())
	}

	s3Uploader := o.s3Uploader
	if s3Uploader == nil && cfg.S3.Enabled() {
		client, err := s3sink.NewClient(cfg.S3)
		if err != nil {
			return err
		}
		s3Uploader = client
	}
	if s3Uploader != nil {
		modules = append(modules, s3sink.New(v.clock, s3Uploader).Module())
	}

	modules = append(modules, o.modules...)

	reg, err := registry.Build(modules...)
	if err != nil {
		return errors.PrefixError(err, "cannot register plugins")
	}

	extracts, transformTypes, loads := reg.Types()
	v.logger.Infof(ctx, "registered plugins: extract %v, transform %v, load %v", extracts, transformTypes, loads)
	v.pluginRegistry = reg
	return nil
}

func (v *serviceScope) setupStatusReporter() error {
	metricsConsumer, err := status.NewMetricsConsumer(v.metricsRegistry)
	if err != nil {
		return err
	}

	consumers := []status.Consumer{status.NewLogConsumer(v.logger), metricsConsumer}
	consumers = append(consumers, v.pluginRegistry.StatusConsumers()...)
	v.statusReporter = status.NewReporter(v.logger, consumers...)
	return nil
}

func (v *serviceScope) onShutdownClose(name string, closeFn func() error) {
	v.proc.OnShutdown(func(ctx context.Context) {
		startTime := v.clock.Now()
		if err := closeFn(); err != nil {
			v.logger.Warnf(ctx, "cannot close %s: %s", name, err)
		} else {
			v.logger.WithDuration(v.clock.Since(startTime)).Debugf(ctx, "closed %s", name)
		}
	})
}

func (v *serviceScope) Clock() clockwork.Clock {
	return v.clock
}

func (v *serviceScope) Logger() log.Logger {
	return v.logger
}

func (v *serviceScope) Process() *servicectx.Process {
	return v.proc
}

func (v *serviceScope) Config() config.Config {
	return v.config
}

func (v *serviceScope) NodeID() string {
	return v.nodeID
}

func (v *serviceScope) MetricsRegistry() *prometheus.Registry {
	return v.metricsRegistry
}

func (v *serviceScope) MetricsRegisterer() prometheus.Registerer {
	return v.metricsRegistry
}

func (v *serviceScope) Membership() membership.Oracle {
	return v.membership
}

func (v *serviceScope) SnapshotStore() snapshotstore.Store {
	return v.snapshotStore
}

func (v *serviceScope) ConfigurationLoader() provider.Loader {
	return v.loader
}

func (v *serviceScope) PluginRegistry() *registry.Registry {
	return v.pluginRegistry
}

func (v *serviceScope) StatusReporter() *status.Reporter {
	return v.statusReporter
}
