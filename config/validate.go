package config

import (
	"batlog-go/errcode"
)

// Validate checks configuration correctness.
// It performs declarative validation only and never mutates c.
func Validate(c *Config) error {
	if c == nil {
		return errcode.New(errcode.InvalidArgument, "config.validate", "nil config")
	}

	switch c.Storage.Backend {
	case "", BackendNAND, BackendDir, BackendSim:
	default:
		return invalid("storage.backend: unknown backend " + c.Storage.Backend)
	}
	if c.Storage.SimBlocks < 0 {
		return invalid("storage.sim_blocks must not be negative")
	}

	f := c.Flash
	if f.ClockHz < 0 {
		return invalid("flash.clock_hz must not be negative")
	}
	for _, v := range []struct {
		name string
		ms   int
	}{
		{"flash.poll_interval_ms", f.PollIntervalMs},
		{"flash.ready_timeout_ms", f.ReadyTimeoutMs},
		{"flash.erase_timeout_ms", f.EraseTimeoutMs},
		{"flash.reset_delay_ms", f.ResetDelayMs},
	} {
		if v.ms < 0 {
			return invalid(v.name + " must not be negative")
		}
	}
	if f.PollIntervalMs > 0 && f.ReadyTimeoutMs > 0 && f.PollIntervalMs > f.ReadyTimeoutMs {
		return invalid("flash.poll_interval_ms exceeds ready_timeout_ms")
	}

	if c.Service.QueueLen < 0 || c.Service.IntervalMs < 0 {
		return invalid("service values must not be negative")
	}
	return nil
}

func invalid(msg string) error {
	return errcode.New(errcode.InvalidArgument, "config.validate", msg)
}
