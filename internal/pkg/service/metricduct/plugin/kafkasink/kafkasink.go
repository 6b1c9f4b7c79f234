// Package kafkasink publishes series and status messages to Kafka topics.
//
// The Destination of the load item is the topic name, each series is one message keyed by the series name.
// If the status topic is configured, all status messages are published to it too.
package kafkasink

import (
	"context"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/keboola/metric-duct/internal/pkg/encoding/json"
	"github.com/keboola/metric-duct/internal/pkg/service/metricduct/model"
	"github.com/keboola/metric-duct/internal/pkg/service/metricduct/registry"
	"github.com/keboola/metric-duct/internal/pkg/service/metricduct/status"
	"github.com/keboola/metric-duct/internal/pkg/utils/errors"
)

const Type = "kafka"

type Config struct {
	// Brokers is a comma separated list, the sink is disabled if it is empty.
	Brokers      string        `configKey:"brokers" configUsage:"Comma separated list of Kafka brokers, the Kafka sink is disabled if empty."`
	StatusTopic  string        `configKey:"statusTopic" configUsage:"Kafka topic for status messages, disabled if empty."`
	WriteTimeout time.Duration `configKey:"writeTimeout" configUsage:"Timeout of one write to Kafka." validate:"required"`
}

// Writer is implemented by *kafka.Writer.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Sink struct {
	config Config
	writer Writer
}

func NewConfig() Config {
	return Config{WriteTimeout: 10 * time.Second}
}

func (c Config) Enabled() bool {
	return c.Brokers != ""
}

// NewWriter creates a writer without a fixed topic, each message carries its topic.
func NewWriter(cfg Config) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(strings.Split(cfg.Brokers, ",")...),
		Balancer:               &kafka.Hash{},
		WriteTimeout:           cfg.WriteTimeout,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
}

func New(cfg Config, writer Writer) *Sink {
	return &Sink{config: cfg, writer: writer}
}

func (s *Sink) Module() registry.Module {
	return func(b *registry.Builder) {
		b.AddLoad(Type, s)
		if s.config.StatusTopic != "" {
			b.AddStatusConsumer(status.ConsumerFunc(s.Consume))
		}
	}
}

func (s *Sink) Load(ctx context.Context, item model.Load, series []model.Series) error {
	msgs := make([]kafka.Message, 0, len(series))
	for _, v := range series {
		value, err := json.Encode(v, false)
		if err != nil {
			return err
		}
		msg := kafka.Message{Topic: item.Destination, Key: []byte(v.Name), Value: value}
		if item.Name != "" {
			msg.Headers = append(msg.Headers, kafka.Header{Key: "load", Value: []byte(item.Name)})
		}
		msgs = append(msgs, msg)
	}

	if err := s.writer.WriteMessages(ctx, msgs...); err != nil {
		return errors.PrefixErrorf(err, `cannot write to topic "%s"`, item.Destination)
	}
	return nil
}

// Consume publishes the status message, the configuration identity is the message key.
func (s *Sink) Consume(ctx context.Context, msg status.Message) error {
	value, err := json.Encode(msg, false)
	if err != nil {
		return err
	}
	return s.writer.WriteMessages(ctx, kafka.Message{Topic: s.config.StatusTopic, Key: []byte(msg.Identity), Value: value})
}

func (s *Sink) Close() error {
	return s.writer.Close()
}
