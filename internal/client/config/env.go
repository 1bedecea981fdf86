package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Environment variables read by parseEnv.
const (
	EnvFileVar             = "DADMAIL_ENV_FILE"
	EnvAPIBaseURL          = "DADMAIL_API_URL"
	EnvHealthURL           = "DADMAIL_HEALTH_URL"
	EnvRequestTimeout      = "DADMAIL_REQUEST_TIMEOUT"
	EnvOnlineCheckInterval = "DADMAIL_ONLINE_CHECK_INTERVAL"
	EnvDataDir             = "DADMAIL_DATA_DIR"
	EnvLogLevel            = "DADMAIL_LOG_LEVEL"
	EnvLogFormat           = "DADMAIL_LOG_FORMAT"
	EnvStorageSecret       = "DADMAIL_STORAGE_SECRET"
)

const defaultEnvFile = ".env"

type lookupFunc func(key string) (string, bool)

// envLookup resolves variables from the process environment first and the
// dotenv file second. A missing default .env is not an error; a missing
// explicitly named one is.
func envLookup(path string) (lookupFunc, error) {
	explicit := path != ""
	if !explicit {
		path = defaultEnvFile
	}

	file, err := godotenv.Read(path)
	if err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read env file %s: %w", path, err)
		}
		file = map[string]string{}
	}

	return func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := file[key]
		return v, ok
	}, nil
}

// parseEnv overlays cfg with the DADMAIL_* variables that are set.
func parseEnv(cfg *Config, lookup lookupFunc) error {
	strs := map[string]*string{
		EnvAPIBaseURL:    &cfg.APIBaseURL,
		EnvHealthURL:     &cfg.HealthURL,
		EnvDataDir:       &cfg.DataDir,
		EnvLogLevel:      &cfg.LogLevel,
		EnvLogFormat:     &cfg.LogFormat,
		EnvStorageSecret: &cfg.StorageSecret,
	}
	for key, dst := range strs {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}

	durations := map[string]*time.Duration{
		EnvRequestTimeout:      &cfg.RequestTimeout,
		EnvOnlineCheckInterval: &cfg.OnlineCheckInterval,
	}
	for key, dst := range durations {
		v, ok := lookup(key)
		if !ok || v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = d
	}
	return nil
}
