package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/jay/dadmail-client/internal/flagx"
	"github.com/jay/dadmail-client/internal/timex"
)

// JSONConfig is a DTO used exclusively for JSON unmarshalling. Pointer and
// zero-value fields left out of the file keep the earlier value.
type JSONConfig struct {
	APIBaseURL          string          `json:"api_base_url"`
	HealthURL           *string         `json:"health_url"`
	RequestTimeout      *timex.Duration `json:"request_timeout"`
	OnlineCheckInterval *timex.Duration `json:"online_check_interval"`
	DataDir             string          `json:"data_dir"`
	LogLevel            string          `json:"log_level"`
	LogFormat           string          `json:"log_format"`
	StorageSecret       *string         `json:"storage_secret"`
}

// parseJSON overlays cfg with the file named by -c/-config, if any.
func parseJSON(cfg *Config, args []string) error {
	path := flagx.ConfigFile(args)
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	var jc JSONConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	setIf(&cfg.APIBaseURL, jc.APIBaseURL)
	setIf(&cfg.DataDir, jc.DataDir)
	setIf(&cfg.LogLevel, jc.LogLevel)
	setIf(&cfg.LogFormat, jc.LogFormat)
	if jc.HealthURL != nil {
		cfg.HealthURL = *jc.HealthURL
	}
	if jc.StorageSecret != nil {
		cfg.StorageSecret = *jc.StorageSecret
	}
	if jc.RequestTimeout != nil {
		cfg.RequestTimeout = jc.RequestTimeout.Duration
	}
	if jc.OnlineCheckInterval != nil {
		cfg.OnlineCheckInterval = jc.OnlineCheckInterval.Duration
	}
	return nil
}

func setIf(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
