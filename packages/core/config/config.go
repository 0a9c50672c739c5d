package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the global configuration for one run.
type Config struct {
	Variables map[string]any `yaml:"variables"`
	Settings  Settings       `yaml:"settings"`
}

// Settings are engine knobs shared by all tests of a run.
type Settings struct {
	// Timeout is the per-request timeout in seconds. Zero means the
	// client default.
	Timeout float64 `yaml:"timeout"`

	// FollowRedirects defaults to true when unset.
	FollowRedirects *bool `yaml:"follow_redirects"`

	// InsecureSkipTLS disables TLS certificate verification.
	InsecureSkipTLS bool `yaml:"insecure_skip_tls"`

	// RateLimit caps outgoing requests per second across all stages of a
	// run. Zero means unlimited.
	RateLimit float64 `yaml:"rate_limit"`

	// Headers are sent with every HTTP request unless the stage sets the
	// same header itself.
	Headers map[string]string `yaml:"headers"`

	// NATSURL is the broker the nats plugin dials, e.g. nats://localhost:4222.
	NATSURL string `yaml:"nats_url"`

	// DatabaseURL is the connection string the sql plugin opens,
	// e.g. sqlite:///tmp/test.db or :memory:.
	DatabaseURL string `yaml:"database_url"`
}

// New returns an empty configuration ready to merge into.
func New() *Config {
	return &Config{Variables: make(map[string]any)}
}

// Load reads each path in order and merges them, later paths shadowing
// earlier ones. With no paths it returns an empty configuration.
func Load(paths ...string) (*Config, error) {
	cfg := New()
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading global config: %w", err)
		}
		var layer Config
		if err := yaml.Unmarshal(data, &layer); err != nil {
			return nil, fmt.Errorf("parsing global config %s: %w", path, err)
		}
		cfg.Merge(&layer)
	}
	return cfg, nil
}

// Merge folds other into c, other taking precedence.
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}
	for k, v := range other.Variables {
		c.Variables[k] = v
	}
	s := &other.Settings
	if s.Timeout > 0 {
		c.Settings.Timeout = s.Timeout
	}
	if s.FollowRedirects != nil {
		c.Settings.FollowRedirects = s.FollowRedirects
	}
	if s.InsecureSkipTLS {
		c.Settings.InsecureSkipTLS = true
	}
	if s.RateLimit > 0 {
		c.Settings.RateLimit = s.RateLimit
	}
	for k, v := range s.Headers {
		if c.Settings.Headers == nil {
			c.Settings.Headers = make(map[string]string)
		}
		c.Settings.Headers[k] = v
	}
	if s.NATSURL != "" {
		c.Settings.NATSURL = s.NATSURL
	}
	if s.DatabaseURL != "" {
		c.Settings.DatabaseURL = s.DatabaseURL
	}
}

// Copy returns a deep copy. Tests mutate their copy freely without
// touching the shared global configuration.
func (c *Config) Copy() *Config {
	out := &Config{Settings: c.Settings}
	out.Variables = copyMap(c.Variables)
	if c.Settings.Headers != nil {
		out.Settings.Headers = make(map[string]string, len(c.Settings.Headers))
		for k, v := range c.Settings.Headers {
			out.Settings.Headers[k] = v
		}
	}
	return out
}

// RequestTimeout returns the per-request timeout as a duration, or zero
// when unset.
func (s *Settings) RequestTimeout() time.Duration {
	return time.Duration(s.Timeout * float64(time.Second))
}

// GetFollowRedirects returns the follow-redirects setting, defaulting to
// true.
func (s *Settings) GetFollowRedirects() bool {
	if s.FollowRedirects == nil {
		return true
	}
	return *s.FollowRedirects
}

func copyMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return copyMap(val)
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = copyValue(e)
		}
		return out
	default:
		return v
	}
}
