// Package transforms contains built-in transforms.
//
//   - "lastDatapoint" keeps only the latest point of the series.
//   - "threshold" compares the latest point to thresholds and sets the "status" tag.
//   - "infoStatus" downgrades a non-OK status to INFO.
//   - "expression" computes a new value of each point by an expression of "value".
package transforms

import (
	"github.com/keboola/metric-duct/internal/pkg/service/metricduct/registry"
)

const (
	TypeLastDatapoint = "lastDatapoint"
	TypeThreshold     = "threshold"
	TypeInfoStatus    = "infoStatus"
	TypeExpression    = "expression"

	StatusTag = "status"
)

func Module() registry.Module {
	return func(b *registry.Builder) {
		b.AddTransform(TypeLastDatapoint, newLastDatapoint)
		b.AddTransform(TypeThreshold, newThreshold)
		b.AddTransform(TypeInfoStatus, newInfoStatus)
		b.AddTransform(TypeExpression, newExpression)
	}
}
