package config

import (
	"fmt"
	"net"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultMode        = "quick"
	DefaultLinksFile   = "links.txt"
	defaultDuration    = 30 * time.Second
	defaultInterval    = time.Second
	defaultConcurrency = 50
	defaultSampleCap   = 100
	defaultTopN        = 5

	// Per-mode probe timeouts: a one-shot scan can afford patience,
	// repeated rounds cannot.
	defaultQuickTimeout    = 5 * time.Second
	defaultStableTimeout   = 3 * time.Second
	defaultRealtimeTimeout = 2 * time.Second

	defaultControlAddr = "127.0.0.1"
	defaultControlPort = 8650

	defaultHealthHost     = "1.1.1.1"
	defaultHealthInterval = 10 * time.Second
	defaultHealthTimeout  = 2 * time.Second
)

// Duration unmarshals either a bare number of seconds or a Go duration
// string.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be a scalar")
	}
	switch value.Tag {
	case "!!int", "!!float":
		var secs float64
		if err := value.Decode(&secs); err != nil {
			return err
		}
		*d = Duration(time.Duration(secs * float64(time.Second)))
		return nil
	default:
		var raw string
		if err := value.Decode(&raw); err != nil {
			return err
		}
		if raw == "" {
			*d = 0
			return nil
		}
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return err
		}
		*d = Duration(parsed)
		return nil
	}
}

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

type Config struct {
	Mode      string `yaml:"mode"`
	LinksFile string `yaml:"links_file"`

	Duration    Duration `yaml:"duration"` // stable mode window
	Interval    Duration `yaml:"interval"` // cadence between rounds
	Concurrency int      `yaml:"concurrency"`
	Timeout     Duration `yaml:"timeout"`

	BindIP string `yaml:"bind_ip"`
	NoBind bool   `yaml:"no_bind"`

	SampleWindow int `yaml:"sample_window"`
	TopN         int `yaml:"top_n"`

	GeoDB string `yaml:"geoip_db"`

	Control ControlConfig `yaml:"control"`
	Health  HealthConfig  `yaml:"health"`
}

// ControlConfig describes the HTTP/websocket surface a live dashboard
// consumes. Disabled by default; realtime runs usually enable it.
type ControlConfig struct {
	Enabled  *bool  `yaml:"enabled"`
	BindAddr string `yaml:"bind_addr"`
	BindPort int    `yaml:"bind_port"`
}

func (c ControlConfig) IsEnabled() bool {
	if c.Enabled == nil {
		return false
	}
	return *c.Enabled
}

// HealthConfig drives the ICMP uplink check that feeds the live view's
// headline network status.
type HealthConfig struct {
	Enabled  *bool    `yaml:"enabled"`
	Host     string   `yaml:"host"`
	Interval Duration `yaml:"interval"`
	Timeout  Duration `yaml:"timeout"`
}

func (h HealthConfig) IsEnabled() bool {
	if h.Enabled == nil {
		return true
	}
	return *h.Enabled
}

// Load reads a YAML config file and fills defaults. An empty path
// yields the defaults alone.
func Load(path string) (Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing %s: %w", path, err)
		}
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

func (c *Config) ApplyDefaults() {
	if c.Mode == "" {
		c.Mode = DefaultMode
	}
	if c.LinksFile == "" {
		c.LinksFile = DefaultLinksFile
	}
	if c.Duration <= 0 {
		c.Duration = Duration(defaultDuration)
	}
	if c.Interval <= 0 {
		c.Interval = Duration(defaultInterval)
	}
	if c.Concurrency <= 0 {
		c.Concurrency = defaultConcurrency
	}
	if c.Timeout <= 0 {
		switch c.Mode {
		case "stable":
			c.Timeout = Duration(defaultStableTimeout)
		case "realtime":
			c.Timeout = Duration(defaultRealtimeTimeout)
		default:
			c.Timeout = Duration(defaultQuickTimeout)
		}
	}
	if c.SampleWindow <= 0 {
		c.SampleWindow = defaultSampleCap
	}
	if c.TopN <= 0 {
		c.TopN = defaultTopN
	}
	if c.Control.BindAddr == "" {
		c.Control.BindAddr = defaultControlAddr
	}
	if c.Control.BindPort == 0 {
		c.Control.BindPort = defaultControlPort
	}
	if c.Health.Host == "" {
		c.Health.Host = defaultHealthHost
	}
	if c.Health.Interval <= 0 {
		c.Health.Interval = Duration(defaultHealthInterval)
	}
	if c.Health.Timeout <= 0 {
		c.Health.Timeout = Duration(defaultHealthTimeout)
	}
}

func (c *Config) Validate() error {
	switch c.Mode {
	case "quick", "stable", "realtime":
	default:
		return fmt.Errorf("mode must be quick, stable, or realtime, got %q", c.Mode)
	}
	if c.Concurrency <= 0 {
		return fmt.Errorf("concurrency must be positive, got %d", c.Concurrency)
	}
	if c.Mode == "stable" && c.Duration <= 0 {
		return fmt.Errorf("stable mode needs a positive duration")
	}
	if c.BindIP != "" && net.ParseIP(c.BindIP) == nil {
		return fmt.Errorf("bind_ip %q is not a valid IP address", c.BindIP)
	}
	if c.Control.BindPort < 0 || c.Control.BindPort > 65535 {
		return fmt.Errorf("control bind_port %d out of range", c.Control.BindPort)
	}
	return nil
}

// ParsedBindIP returns the effective local bind address, nil when
// binding is disabled or unset. Validate has already vetted the text.
func (c *Config) ParsedBindIP() net.IP {
	if c.NoBind || c.BindIP == "" {
		return nil
	}
	return net.ParseIP(c.BindIP)
}
