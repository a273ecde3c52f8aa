package config

import (
	"bytes"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"batlog-go/errcode"
)

// Environment overrides, applied after the file is parsed.
const (
	EnvBackend = "BATLOG_BACKEND"
	EnvDir     = "BATLOG_DIR"
	EnvSPI     = "BATLOG_SPI"
)

// Load reads path (an empty path means no file), applies environment
// overrides, validates and normalizes.
func Load(path string) (*Config, error) {
	var data []byte
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, errcode.Wrapf(errcode.NotFound, "config.load", path, err)
		}
		data = b
	}
	c, err := Parse(data)
	if err != nil {
		return nil, err
	}
	applyEnvOverrides(c)
	if err := Validate(c); err != nil {
		return nil, err
	}
	Normalize(c)
	return c, nil
}

// Parse decodes YAML strictly: unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	var c Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil && err != io.EOF {
		return nil, errcode.Wrap(errcode.InvalidArgument, "config.parse", err)
	}
	return &c, nil
}

func applyEnvOverrides(c *Config) {
	if v := os.Getenv(EnvBackend); v != "" {
		c.Storage.Backend = v
	}
	if v := os.Getenv(EnvDir); v != "" {
		c.Storage.Dir = v
	}
	if v := os.Getenv(EnvSPI); v != "" {
		c.Flash.SPI = v
	}
}
