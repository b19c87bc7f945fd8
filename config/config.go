package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config is the on-disk TOML configuration for the launch daemon.
type Config struct {
	ListenAddress  string `toml:"ListenAddress"`
	MetricsAddress string `toml:"MetricsAddress"`
	Env            string `toml:"Env"`
	LogLevel       string `toml:"LogLevel"`
	LogPath        string `toml:"LogPath"`

	Allocation Allocation `toml:"Allocation"`
	Valve      Valve      `toml:"Valve"`
	RateLimit  RateLimit  `toml:"RateLimit"`
	Telemetry  Telemetry  `toml:"Telemetry"`
}

// Telemetry configures the optional OTLP exporters. Both exporters stay off
// unless explicitly enabled.
type Telemetry struct {
	// Endpoint is the OTLP/HTTP collector address, host:port.
	Endpoint string `toml:"Endpoint"`
	Insecure bool   `toml:"Insecure"`
	// Headers is a comma-separated key=value list forwarded to the collector.
	Headers string `toml:"Headers"`
	Traces  bool   `toml:"Traces"`
	Metrics bool   `toml:"Metrics"`
}

// Allocation configures the mint fan-out module.
type Allocation struct {
	// MaxEntries caps the number of entries a single allocation config may
	// carry. Zero means the engine default.
	MaxEntries int `toml:"MaxEntries"`
	// Deployers are the hex addresses granted the deployer role at startup.
	Deployers []string `toml:"Deployers"`
	// DefaultSplit is applied to assets that launch without a stored config.
	DefaultSplit []SplitEntry `toml:"DefaultSplit"`
}

// SplitEntry is one slice of the default split. Kind is "vault" or "staking".
type SplitEntry struct {
	Kind            string `toml:"Kind"`
	Recipient       string `toml:"Recipient"`
	Percentage      uint32 `toml:"Percentage"`
	Cliff           int64  `toml:"Cliff"`
	VestingDuration int64  `toml:"VestingDuration"`
	LockupDuration  int64  `toml:"LockupDuration"`
	StreamDuration  int64  `toml:"StreamDuration"`
}

// Valve configures the safety-valve governor.
type Valve struct {
	// Manager is the hex address allowed to override valve transitions.
	Manager string `toml:"Manager"`
	// FloorUnits is the decimal baseline floor applied while a valve is open.
	FloorUnits string `toml:"FloorUnits"`
}

// RateLimit bounds per-client request rates at the gateway.
type RateLimit struct {
	RequestsPerMinute int `toml:"RequestsPerMinute"`
	Burst             int `toml:"Burst"`
}

// Load reads the configuration at path, creating a default file when none
// exists.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":8080"
	}
	if cfg.MetricsAddress == "" {
		cfg.MetricsAddress = cfg.ListenAddress
	}
	if cfg.Env == "" {
		cfg.Env = "local"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.RateLimit.RequestsPerMinute == 0 {
		cfg.RateLimit.RequestsPerMinute = 600
	}
	if cfg.RateLimit.Burst == 0 {
		cfg.RateLimit.Burst = 60
	}
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := &Config{}
	applyDefaults(cfg)
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
