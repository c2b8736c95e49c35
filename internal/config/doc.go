// Package config defines the watched application configuration and loads it
// from disk.
//
// Top-level types:
//   - Config — app_name, version, environment, optional server and database
//     sections, feature flags; Equal for structural comparison, Clone, and a
//     slog.LogValuer summary
//   - ServerConfig — host, port, enable_ssl (default true)
//   - DatabaseConfig — connection_string, pool_size (default 10),
//     timeout_seconds (default 30)
//   - Error — typed load failure: FileNotFound, MetadataUnavailable,
//     ReadFailure, ParseFailure, ValidationFailure, Timeout
//
// Load(path) checks the file exists, reads at most DefaultMaxSize bytes,
// decodes JSON, YAML or TOML by extension, applies defaults, then runs
// Validate. The result is all-or-nothing: a failure never returns a partial
// Config.
//
// Encode and Decode are exposed so callers can render a Config in any of the
// supported formats; decoding an encoded Config yields an equal value.
package config
