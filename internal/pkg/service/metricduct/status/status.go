// Package status delivers outcomes of pipeline stages to status consumers.
//
// A Message describes one attempt: an extract item, a transform of one series,
// a load destination, or a whole cycle. Consumers are independent,
// a failing consumer affects neither the pipeline nor the other consumers.
package status

import (
	"context"
	"time"

	"github.com/keboola/metric-duct/internal/pkg/encoding/json"
)

type Stage string

type Outcome string

const (
	StageExtract   Stage = "extract"
	StageTransform Stage = "transform"
	StageLoad      Stage = "load"
	StageCycle     Stage = "cycle"

	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomeSkipped Outcome = "skipped"
)

type Message struct {
	Stage Stage
	// Identity of the configuration, empty for the cycle stage.
	Identity string
	// Item describes the processed item, for example "http:cpu".
	Item     string
	Outcome  Outcome
	Cause    error
	Duration time.Duration
	Time     time.Time
}

type Consumer interface {
	Consume(ctx context.Context, msg Message) error
}

// ConsumerFunc adapts a function to the Consumer interface.
type ConsumerFunc func(ctx context.Context, msg Message) error

func (f ConsumerFunc) Consume(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}

type messageJSON struct {
	Stage    Stage   `json:"stage"`
	Identity string  `json:"identity,omitempty"`
	Item     string  `json:"item,omitempty"`
	Outcome  Outcome `json:"outcome"`
	Cause    string  `json:"cause,omitempty"`
	Duration string  `json:"duration"`
	Time     string  `json:"time"`
}

func (m Message) MarshalJSON() ([]byte, error) {
	out := messageJSON{
		Stage:    m.Stage,
		Identity: m.Identity,
		Item:     m.Item,
		Outcome:  m.Outcome,
		Duration: m.Duration.String(),
		Time:     m.Time.UTC().Format(time.RFC3339Nano),
	}
	if m.Cause != nil {
		out.Cause = m.Cause.Error()
	}
	return json.Encode(out, false)
}
