package config

import "batlog-go/x/mathx"

const (
	DefaultClockHz   = 40_000_000
	DefaultDir       = "batlog-data"
	DefaultSimBlocks = 64
	DefaultQueueLen  = 16
	DefaultInterval  = 10_000
)

// Normalize fills defaults and clamps ranges.
// It MUST be called only after Validate.
func Normalize(c *Config) {
	if c == nil {
		return
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = BackendDir
	}
	if c.Storage.Dir == "" {
		c.Storage.Dir = DefaultDir
	}
	if c.Storage.SimBlocks == 0 {
		c.Storage.SimBlocks = DefaultSimBlocks
	}
	c.Storage.SimBlocks = mathx.Clamp(c.Storage.SimBlocks, 8, 1024)

	if c.Flash.ClockHz == 0 {
		c.Flash.ClockHz = DefaultClockHz
	}
	// W25N tops out at 104 MHz.
	c.Flash.ClockHz = mathx.Clamp(c.Flash.ClockHz, 1_000_000, 104_000_000)

	if c.Service.QueueLen == 0 {
		c.Service.QueueLen = DefaultQueueLen
	}
	c.Service.QueueLen = mathx.Clamp(c.Service.QueueLen, 1, 256)
	if c.Service.IntervalMs == 0 {
		c.Service.IntervalMs = DefaultInterval
	}
}
