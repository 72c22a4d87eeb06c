package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config holds runtime parameters for the service.
// Zero values mean "unspecified" and will be replaced by defaults in main.
type Config struct {
	Addr string `json:"addr" yaml:"addr" toml:"addr"`
	// Engine selects the model runtime: "replay" or "llama".
	Engine        string `json:"engine" yaml:"engine" toml:"engine"`
	CacheDir      string `json:"cache_dir" yaml:"cache_dir" toml:"cache_dir"`
	Threads       int    `json:"threads" yaml:"threads" toml:"threads"`
	ContextSize   int    `json:"context_size" yaml:"context_size" toml:"context_size"`
	DefaultModel  string `json:"default_model" yaml:"default_model" toml:"default_model"`
	DefaultDevice string `json:"default_device" yaml:"default_device" toml:"default_device"`
	DataType      string `json:"data_type" yaml:"data_type" toml:"data_type"`
	// RegistryFile overlays extra model descriptors onto the built-in table.
	RegistryFile string `json:"registry_file" yaml:"registry_file" toml:"registry_file"`

	RemoteHosts  []string `json:"remote_hosts" yaml:"remote_hosts" toml:"remote_hosts"`
	ProbePath    string   `json:"probe_path" yaml:"probe_path" toml:"probe_path"`
	ProbeTimeout string   `json:"probe_timeout" yaml:"probe_timeout" toml:"probe_timeout"`

	LogLevel  string `json:"log_level" yaml:"log_level" toml:"log_level"`
	LogFormat string `json:"log_format" yaml:"log_format" toml:"log_format"`

	CORS         CORS  `json:"cors" yaml:"cors" toml:"cors"`
	MaxBodyBytes int64 `json:"max_body_bytes" yaml:"max_body_bytes" toml:"max_body_bytes"`
	EventBuffer  int   `json:"event_buffer" yaml:"event_buffer" toml:"event_buffer"`
}

// CORS configures cross-origin access for browser hosts.
type CORS struct {
	Enabled bool     `json:"enabled" yaml:"enabled" toml:"enabled"`
	Origins []string `json:"origins" yaml:"origins" toml:"origins"`
	Methods []string `json:"methods" yaml:"methods" toml:"methods"`
	Headers []string `json:"headers" yaml:"headers" toml:"headers"`
}

// ProbeTimeoutDuration parses ProbeTimeout. An empty value yields zero.
func (c Config) ProbeTimeoutDuration() (time.Duration, error) {
	if strings.TrimSpace(c.ProbeTimeout) == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.ProbeTimeout)
	if err != nil {
		return 0, fmt.Errorf("probe_timeout: %w", err)
	}
	return d, nil
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	if _, err := cfg.ProbeTimeoutDuration(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
