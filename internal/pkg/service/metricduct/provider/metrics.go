package provider

import (
	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	refreshes    *prometheus.CounterVec
	failures     prometheus.Counter
	snapshotSize prometheus.Gauge
	snapshotRev  prometheus.Gauge
	masterGauge  prometheus.Gauge
}

func newMetrics(registerer prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "metric_duct",
			Name:      "configuration_refreshes_total",
			Help:      "Number of configuration refreshes by the source and result.",
		}, []string{"source", "result"}),
		failures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "metric_duct",
			Name:      "configuration_failures_total",
			Help:      "Number of failed configuration refreshes, the last good snapshot is served.",
		}),
		snapshotSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "metric_duct",
			Name:      "snapshot_configurations",
			Help:      "Number of configurations in the served snapshot.",
		}),
		snapshotRev: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "metric_duct",
			Name:      "snapshot_revision",
			Help:      "Revision of the served snapshot.",
		}),
		masterGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "metric_duct",
			Name:      "node_master",
			Help:      "1 if the node is the master.",
		}),
	}

	for _, c := range []prometheus.Collector{m.refreshes, m.failures, m.snapshotSize, m.snapshotRev, m.masterGauge} {
		if err := registerer.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}
