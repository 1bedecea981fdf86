package config

import (
	"flag"
	"io"
	"time"

	"github.com/jay/dadmail-client/internal/flagx"
)

var knownFlags = []string{
	"-a", "-health", "-t", "-i", "-d", "-log-level", "-log-format",
}

// parseFlags populates Config fields from command-line flags. args is
// filtered with flagx.FilterArgs so flags owned by other components do not
// cause errors here.
func parseFlags(cfg *Config, args []string) error {
	fs := flag.NewFlagSet("dadmail", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.APIBaseURL, "a", cfg.APIBaseURL, "backend API base URL")
	fs.StringVar(&cfg.HealthURL, "health", cfg.HealthURL, "health check URL")
	fs.DurationVar(&cfg.RequestTimeout, "t", cfg.RequestTimeout, "per-request timeout")
	onlineCheckInterval := fs.Int("i", int(cfg.OnlineCheckInterval.Seconds()), "online check interval (in seconds)")
	fs.StringVar(&cfg.DataDir, "d", cfg.DataDir, "local data directory")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "log format")

	if err := fs.Parse(flagx.FilterArgs(args, knownFlags)); err != nil {
		return err
	}

	fs.Visit(func(f *flag.Flag) {
		if f.Name == "i" {
			cfg.OnlineCheckInterval = time.Duration(*onlineCheckInterval) * time.Second
		}
	})
	return nil
}
