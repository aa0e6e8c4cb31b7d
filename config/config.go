package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/wippyai/sandnet/errors"
)

// Duration is a time.Duration that unmarshals from YAML strings like
// "200ms" or "1m30s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return errors.New(errors.PhaseValidate, errors.KindInvalidArgument).
			Detail("bad duration %q", raw).
			Cause(err).
			Build()
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config holds the sandnet runtime configuration.
type Config struct {
	LocalAddress     string   `yaml:"local_address"`
	FirstPort        uint16   `yaml:"first_port"`
	LastPort         uint16   `yaml:"last_port"`
	DefaultTimeout   Duration `yaml:"default_timeout"`
	PollInterval     Duration `yaml:"poll_interval"`
	CleanupThreshold Duration `yaml:"cleanup_threshold"`
	ConflictBackoff  Duration `yaml:"conflict_backoff"`
	EventBudget      int64    `yaml:"event_budget"`
	AdvertServers    []string `yaml:"advert_servers"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		LocalAddress:     "127.0.0.1",
		FirstPort:        63100,
		LastPort:         63180,
		DefaultTimeout:   Duration(60 * time.Second),
		PollInterval:     Duration(100 * time.Millisecond),
		CleanupThreshold: Duration(time.Second),
		ConflictBackoff:  Duration(200 * time.Millisecond),
		EventBudget:      1000,
	}
}

// Load reads the configuration from the given YAML file path. A
// missing file yields the defaults with no error; fields absent from
// the file keep their default values.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, errors.New(errors.PhaseValidate, errors.KindInvalidArgument).
			Detail("read config %s", path).
			Cause(err).
			Build()
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.New(errors.PhaseValidate, errors.KindInvalidArgument).
			Detail("parse config %s", path).
			Cause(err).
			Build()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field ranges and cross-field consistency.
func (c *Config) Validate() error {
	if c.LocalAddress == "" {
		return errors.InvalidArgument(errors.PhaseValidate, "local_address must not be empty")
	}
	if c.FirstPort == 0 {
		return errors.InvalidArgument(errors.PhaseValidate, "first_port must be non-zero")
	}
	if c.LastPort < c.FirstPort {
		return errors.InvalidArgument(errors.PhaseValidate,
			"last_port %d is below first_port %d", c.LastPort, c.FirstPort)
	}
	if c.DefaultTimeout <= 0 {
		return errors.InvalidArgument(errors.PhaseValidate, "default_timeout must be positive")
	}
	if c.PollInterval <= 0 {
		return errors.InvalidArgument(errors.PhaseValidate, "poll_interval must be positive")
	}
	if c.CleanupThreshold < 0 {
		return errors.InvalidArgument(errors.PhaseValidate, "cleanup_threshold must be non-negative")
	}
	if c.ConflictBackoff < 0 {
		return errors.InvalidArgument(errors.PhaseValidate, "conflict_backoff must be non-negative")
	}
	if c.EventBudget <= 0 {
		return errors.InvalidArgument(errors.PhaseValidate, "event_budget must be positive")
	}
	return nil
}
