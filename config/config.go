// Package config holds the batlog YAML configuration. The pipeline is
// Load (parse + environment overrides) → Validate → Normalize.
package config

import (
	"time"

	"batlog-go/drivers/spinand"
)

type Config struct {
	Flash   FlashConfig   `yaml:"flash"`
	Storage StorageConfig `yaml:"storage"`
	Store   StoreConfig   `yaml:"store"`
	Service ServiceConfig `yaml:"service"`
}

// ---- FLASH ----

type FlashConfig struct {
	SPI     string `yaml:"spi"`      // periph spireg name; "" = first port
	ClockHz int64  `yaml:"clock_hz"` // 0 = 40 MHz
	CS      string `yaml:"cs"`       // gpioreg pin name; "" = controller CS

	PollIntervalMs int  `yaml:"poll_interval_ms"`
	ReadyTimeoutMs int  `yaml:"ready_timeout_ms"`
	EraseTimeoutMs int  `yaml:"erase_timeout_ms"`
	ResetDelayMs   int  `yaml:"reset_delay_ms"`
	KeepProtection bool `yaml:"keep_protection"`
}

// ---- STORAGE ----

const (
	BackendNAND = "nandfs"
	BackendDir  = "dir"
	BackendSim  = "sim"
)

type StorageConfig struct {
	Backend        string `yaml:"backend"`
	Dir            string `yaml:"dir"`
	SimBlocks      int    `yaml:"sim_blocks"`
	FormatIfFailed bool   `yaml:"format_if_failed"`
	SkipBadScan    bool   `yaml:"skip_bad_scan"`
}

// ---- STORE ----

type StoreConfig struct {
	RingSize uint32 `yaml:"ring_size"`
	Verbose  bool   `yaml:"verbose"`
}

// ---- SERVICE ----

type ServiceConfig struct {
	QueueLen   int `yaml:"queue_len"`
	IntervalMs int `yaml:"interval_ms"` // demo ring sync period
}

// Driver converts the flash section into a driver configuration. Zero
// durations are left for the driver to default.
func (f FlashConfig) Driver() spinand.Config {
	ms := func(v int) time.Duration { return time.Duration(v) * time.Millisecond }
	return spinand.Config{
		PollInterval:   ms(f.PollIntervalMs),
		ReadyTimeout:   ms(f.ReadyTimeoutMs),
		EraseTimeout:   ms(f.EraseTimeoutMs),
		ResetDelay:     ms(f.ResetDelayMs),
		KeepProtection: f.KeepProtection,
	}
}

// Interval is the service sync period.
func (s ServiceConfig) Interval() time.Duration {
	return time.Duration(s.IntervalMs) * time.Millisecond
}
