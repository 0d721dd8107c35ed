// Package config loads the fieldstate daemon configuration from YAML, with
// .env support and environment variable expansion in the config body.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the application configuration.
type Config struct {
	// DataDir holds the component state files and their backups.
	DataDir string `yaml:"data_dir"`
	// SaveInterval is the periodic persistence interval, e.g. "30s".
	SaveInterval string `yaml:"save_interval,omitempty"`
	// Watch enables the state directory watcher that journals external
	// modification of state files.
	Watch bool `yaml:"watch"`

	Journal JournalConfig `yaml:"journal"`
	Alerts  AlertsConfig  `yaml:"alerts"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// JournalConfig controls the SQLite persistence event journal.
type JournalConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path,omitempty"` // defaults to <data_dir>/journal.db
}

// AlertsConfig controls NATS degradation alerts.
type AlertsConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url,omitempty"`
	Subject string `yaml:"subject,omitempty"`
}

// MetricsConfig controls the Prometheus metrics endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen,omitempty"`
}

// Interval parses SaveInterval, falling back to the default on empty.
func (c *Config) Interval() (time.Duration, error) {
	if c.SaveInterval == "" {
		return 30 * time.Second, nil
	}
	d, err := time.ParseDuration(c.SaveInterval)
	if err != nil {
		return 0, fmt.Errorf("invalid save_interval %q: %w", c.SaveInterval, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("save_interval must be positive, got %q", c.SaveInterval)
	}
	return d, nil
}

// Load reads configuration from the specified file. Environment variables
// referenced as ${VAR} in the YAML body are expanded, so secrets like the
// NATS URL can live in the environment or a .env file.
func Load(configPath string) (*Config, error) {
	loadEnvFile()

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("configuration file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when no config file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.DataDir == "" {
		c.DataDir = "./state"
	}
	if c.SaveInterval == "" {
		c.SaveInterval = "30s"
	}
	if c.Journal.Enabled && c.Journal.Path == "" {
		c.Journal.Path = c.DataDir + "/journal.db"
	}
	if c.Alerts.Enabled {
		if c.Alerts.URL == "" {
			c.Alerts.URL = "nats://127.0.0.1:4222"
		}
		if c.Alerts.Subject == "" {
			c.Alerts.Subject = "fieldstate.alerts"
		}
	}
	if c.Metrics.Enabled && c.Metrics.Listen == "" {
		c.Metrics.Listen = ":9090"
	}
}

func (c *Config) validate() error {
	if _, err := c.Interval(); err != nil {
		return err
	}
	return nil
}

// Init writes an example configuration file.
func Init(configPath string, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", configPath)
	}

	example := Config{
		DataDir:      "./state",
		SaveInterval: "30s",
		Watch:        true,
		Journal:      JournalConfig{Enabled: true},
		Alerts:       AlertsConfig{Enabled: false, URL: "${NATS_URL}", Subject: "fieldstate.alerts"},
		Metrics:      MetricsConfig{Enabled: false, Listen: ":9090"},
	}

	data, err := yaml.Marshal(&example)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// loadEnvFile loads .env/.env.local into the process environment without
// overriding variables that are already set. Missing files are fine.
func loadEnvFile() {
	for _, path := range []string{".env", ".env.local"} {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			fmt.Fprintf(os.Stderr, "Note: could not load %s: %v\n", path, err)
			continue
		}
		return
	}
}
