package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"
)

// Config holds runtime settings for the DadMail CLI.
type Config struct {
	APIBaseURL          string
	HealthURL           string
	RequestTimeout      time.Duration
	OnlineCheckInterval time.Duration
	DataDir             string
	LogLevel            string
	LogFormat           string

	// StorageSecret, when set, seals tokens and the session snapshot at
	// rest.
	StorageSecret string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.APIBaseURL = "http://localhost:8080/api/v1"
	c.HealthURL = "http://localhost:8080/health"
	c.RequestTimeout = 10 * time.Second
	c.OnlineCheckInterval = 15 * time.Second
	c.DataDir = defaultDataDir()
	c.LogLevel = "info"
	c.LogFormat = "text"
	c.StorageSecret = ""
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "dadmail")
	}
	return ".dadmail"
}

// LoadConfig applies defaults, then the environment, a JSON file and flags
// found in args (without the program name). Later sources take precedence.
func LoadConfig(args []string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()

	lookup, err := envLookup(os.Getenv(EnvFileVar))
	if err != nil {
		return nil, err
	}
	if err := parseEnv(cfg, lookup); err != nil {
		return nil, err
	}
	if err := parseJSON(cfg, args); err != nil {
		return nil, err
	}
	if err := parseFlags(cfg, args); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the first setting the client cannot run with.
func (c *Config) Validate() error {
	u, err := url.Parse(c.APIBaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid api base url %q", c.APIBaseURL)
	}
	if c.HealthURL != "" {
		if h, err := url.Parse(c.HealthURL); err != nil || h.Host == "" {
			return fmt.Errorf("invalid health url %q", c.HealthURL)
		}
	}
	if c.RequestTimeout <= 0 {
		return errors.New("request timeout must be positive")
	}
	if c.OnlineCheckInterval <= 0 {
		return errors.New("online check interval must be positive")
	}
	if c.DataDir == "" {
		return errors.New("data dir must not be empty")
	}
	return nil
}
