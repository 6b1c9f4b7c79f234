// Package model contains configuration and data types shared by all metric-duct components.
package model

import (
	"fmt"

	"github.com/mitchellh/hashstructure/v2"

	"github.com/keboola/metric-duct/internal/pkg/service/common/duration"
)

// Configuration is one declarative extract-transform-load job.
// It is an immutable value, the identity is given by the whole content, see Hash.
type Configuration struct {
	// RepeatInterval is the minimal delay between two runs, zero means every cycle.
	RepeatInterval duration.Duration `json:"repeatInterval,omitempty" yaml:"repeatInterval,omitempty"`
	Disabled       bool              `json:"disabled,omitempty" yaml:"disabled,omitempty"`
	Extract        []Extract         `json:"extract" yaml:"extract" validate:"required,min=1,dive"`
	Transform      []Transform       `json:"transform,omitempty" yaml:"transform,omitempty" validate:"dive"`
	Load           []Load            `json:"load" yaml:"load" validate:"required,min=1,dive"`
}

// Extract describes one query against a data source.
type Extract struct {
	Type   string         `json:"type" yaml:"type" validate:"required"`
	Source string         `json:"source" yaml:"source" validate:"required"`
	Name   string         `json:"name" yaml:"name" validate:"required"`
	Params map[string]any `json:"params,omitempty" yaml:"params,omitempty"`
}

type Transform struct {
	Type   string         `json:"type" yaml:"type" validate:"required"`
	Params map[string]any `json:"params,omitempty" yaml:"params,omitempty"`
}

// Load describes one destination of the transformed series.
type Load struct {
	Type        string         `json:"type" yaml:"type" validate:"required"`
	Destination string         `json:"destination" yaml:"destination" validate:"required"`
	Name        string         `json:"name,omitempty" yaml:"name,omitempty"`
	Params      map[string]any `json:"params,omitempty" yaml:"params,omitempty"`
}

// Hash returns a structural hash of the whole configuration.
// Structurally identical configurations have the same hash.
func (c Configuration) Hash() uint64 {
	h, err := hashstructure.Hash(c, hashstructure.FormatV2, nil)
	if err != nil {
		// Only channels and functions cannot be hashed, the configuration contains none of them
		panic(err)
	}
	return h
}

// Identity returns the hash formatted for logs and status messages.
func (c Configuration) Identity() string {
	return FormatIdentity(c.Hash())
}

func FormatIdentity(hash uint64) string {
	return fmt.Sprintf("%016x", hash)
}

func (e Extract) String() string {
	return e.Type + ":" + e.Name
}

func (l Load) String() string {
	if l.Name != "" {
		return l.Type + ":" + l.Name
	}
	return l.Type + ":" + l.Destination
}
