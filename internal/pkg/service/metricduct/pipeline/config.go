package pipeline

import (
	"time"
)

type Config struct {
	ExtractConcurrency int           `configKey:"extractConcurrency" configUsage:"Maximum number of extract items of one configuration processed in parallel." validate:"required,min=1,max=1000"`
	LoadConcurrency    int           `configKey:"loadConcurrency" configUsage:"Maximum number of load items of one configuration processed in parallel." validate:"required,min=1,max=1000"`
	ItemTimeout        time.Duration `configKey:"itemTimeout" configUsage:"Timeout of one extract or load item, a stalled item is reported as failed." validate:"required,min=1ms"`
}

func NewConfig() Config {
	return Config{
		ExtractConcurrency: 8,
		LoadConcurrency:    8,
		ItemTimeout:        30 * time.Second,
	}
}
