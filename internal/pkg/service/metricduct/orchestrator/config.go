package orchestrator

import (
	"time"
)

type Config struct {
	CycleInterval            time.Duration `configKey:"cycleInterval" configUsage:"Interval between the starts of two processing cycles." validate:"required,min=100ms"`
	ConfigurationConcurrency int           `configKey:"configurationConcurrency" configUsage:"Maximum number of configurations processed in parallel." validate:"required,min=1,max=1000"`
}

func NewConfig() Config {
	return Config{
		CycleInterval:            time.Minute,
		ConfigurationConcurrency: 4,
	}
}
