// Package config loads dispatch defaults from a YAML file and LUMEN_*
// environment variables.
package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/lumen-compute/lumen/internal/parallel"
)

// ConfigFileName is the name of the config file.
const ConfigFileName = "lumen.yaml"

// ConfigFileNameAlt is the alternate name of the config file.
const ConfigFileNameAlt = "lumen.yml"

// envPrefix namespaces the environment overrides, e.g. LUMEN_WORKERS=8.
const envPrefix = "LUMEN_"

// Config holds dispatch defaults for the CLI.
type Config struct {
	// Workers is the worker pool size; 0 means one per CPU.
	Workers int `koanf:"workers"`
	// MinChunk is the minimum items per worker chunk.
	MinChunk int `koanf:"min_chunk"`
	// ErrorCutoff stops a dispatch after this many traps; 0 disables.
	ErrorCutoff int `koanf:"error_cutoff"`
	// HazardSampleLimit bounds the hazard-detection journal.
	HazardSampleLimit int `koanf:"hazard_sample_limit"`
	// Trace enables authoring call-stack capture on built kernels.
	Trace bool `koanf:"trace"`
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	def := parallel.DefaultConfig()
	if c.Workers == 0 {
		c.Workers = def.NumWorkers
	}
	if c.MinChunk == 0 {
		c.MinChunk = def.MinChunkSize
	}
	if c.HazardSampleLimit == 0 {
		c.HazardSampleLimit = 1 << 16
	}
}

// Pool converts the config into a worker pool configuration.
func (c *Config) Pool() parallel.Config {
	return parallel.Config{
		Enabled:      c.Workers > 1,
		NumWorkers:   c.Workers,
		MinChunkSize: c.MinChunk,
	}
}

// Load reads the config: file first (explicit path, or lumen.yaml found in
// dir), then LUMEN_* environment variables on top. A missing file is not an
// error; the zero config plus defaults applies.
func Load(path, dir string) (*Config, error) {
	k := koanf.New(".")

	if path == "" {
		path = findConfigFile(dir)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, err
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, envPrefix))
	}), nil); err != nil {
		return nil, err
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	return &cfg, nil
}

// findConfigFile finds the config file in the given directory. Returns an
// empty string if none exists.
func findConfigFile(dir string) string {
	yamlPath := filepath.Join(dir, ConfigFileName)
	if _, err := os.Stat(yamlPath); err == nil {
		return yamlPath
	}
	ymlPath := filepath.Join(dir, ConfigFileNameAlt)
	if _, err := os.Stat(ymlPath); err == nil {
		return ymlPath
	}
	return ""
}
