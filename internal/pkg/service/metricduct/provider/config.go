package provider

import (
	"time"
)

type CatchUpMode string

const (
	// CatchUpBlocking waits for the catch-up refresh in the tick, when the node becomes master.
	CatchUpBlocking CatchUpMode = "blocking"
	// CatchUpAsync starts the catch-up refresh in the background and returns immediately.
	CatchUpAsync CatchUpMode = "async"
)

type Config struct {
	RefreshInterval time.Duration `configKey:"refreshInterval" configUsage:"How often the master re-reads configuration files and followers read the shared snapshot." validate:"required,min=100ms"`
	CatchUp         string        `configKey:"catchUp" configUsage:"Refresh mode when the node becomes master: \"blocking\" or \"async\"." validate:"required,oneof=blocking async"`
	WatchFiles      bool          `configKey:"watchFiles" configUsage:"Refresh immediately on a change in the configuration directory."`
}

func NewConfig() Config {
	return Config{
		RefreshInterval: 30 * time.Second,
		CatchUp:         string(CatchUpBlocking),
		WatchFiles:      false,
	}
}
