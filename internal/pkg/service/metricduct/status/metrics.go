package status

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsConsumer counts messages by stage and outcome and observes durations.
type MetricsConsumer struct {
	outcomes  *prometheus.CounterVec
	durations *prometheus.HistogramVec
}

func NewMetricsConsumer(registerer prometheus.Registerer) (*MetricsConsumer, error) {
	c := &MetricsConsumer{
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "metric_duct",
			Name:      "stage_outcomes_total",
			Help:      "Number of processed items by stage and outcome.",
		}, []string{"stage", "outcome"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "metric_duct",
			Name:      "stage_duration_seconds",
			Help:      "Duration of processed items by stage.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"stage"}),
	}

	for _, collector := range []prometheus.Collector{c.outcomes, c.durations} {
		if err := registerer.Register(collector); err != nil {
			return nil, err
		}
	}

	return c, nil
}

func (c *MetricsConsumer) Consume(_ context.Context, msg Message) error {
	c.outcomes.WithLabelValues(string(msg.Stage), string(msg.Outcome)).Inc()
	if msg.Outcome != OutcomeSkipped {
		c.durations.WithLabelValues(string(msg.Stage)).Observe(msg.Duration.Seconds())
	}
	return nil
}
