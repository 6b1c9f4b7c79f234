package model

import (
	"time"

	"go.uber.org/atomic"
)

// ConfigurationWrapper adds runtime metadata to a Configuration.
// The Configuration itself is never modified.
type ConfigurationWrapper struct {
	configuration Configuration
	hash          uint64
	lastProcessed *atomic.Time
}

func NewConfigurationWrapper(cfg Configuration) *ConfigurationWrapper {
	return &ConfigurationWrapper{
		configuration: cfg,
		hash:          cfg.Hash(),
		lastProcessed: atomic.NewTime(time.Time{}),
	}
}

func (w *ConfigurationWrapper) Configuration() Configuration {
	return w.configuration
}

func (w *ConfigurationWrapper) Hash() uint64 {
	return w.hash
}

func (w *ConfigurationWrapper) Identity() string {
	return FormatIdentity(w.hash)
}

// LastProcessed returns zero time if the configuration has not been processed yet.
func (w *ConfigurationWrapper) LastProcessed() time.Time {
	return w.lastProcessed.Load()
}

func (w *ConfigurationWrapper) MarkProcessed(t time.Time) {
	w.lastProcessed.Store(t)
}

// Due returns true if the configuration should be processed at the time now.
func (w *ConfigurationWrapper) Due(now time.Time) bool {
	if w.configuration.Disabled {
		return false
	}
	last := w.LastProcessed()
	interval := w.configuration.RepeatInterval.Duration()
	return interval <= 0 || last.IsZero() || now.Sub(last) >= interval
}
