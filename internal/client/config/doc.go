// Package config loads runtime configuration for the DadMail CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Environment: DADMAIL_* variables, falling back to a .env file in the
//     working directory (or the file named by DADMAIL_ENV_FILE).
//  3. Optional JSON file selected via flags: -c or -config.
//  4. Command-line flags, which override earlier values.
//
// Supported flags
//
//	-a string       backend API base URL
//	-health string  health check URL
//	-t duration     per-request timeout
//	-i int          online status check interval (seconds)
//	-d string       local data directory
//	-log-level      debug, info, warn or error
//	-log-format     text, json or console
//
// The storage secret is never taken from flags so it does not show up in
// process listings.
//
// # JSON schema
//
// Durations use timex.Duration, so values can be either strings like "10s"
// or integer nanoseconds:
//
//	{
//	  "api_base_url": "http://localhost:8080/api/v1",
//	  "health_url": "http://localhost:8080/health",
//	  "request_timeout": "10s",
//	  "online_check_interval": "15s",
//	  "data_dir": "/home/joe/.config/dadmail",
//	  "log_level": "info",
//	  "log_format": "text",
//	  "storage_secret": ""
//	}
package config
