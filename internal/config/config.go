package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"maps"
	"os"
	"slices"
	"strings"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultEnvironment    = "development"
	DefaultEnableSSL      = true
	DefaultPoolSize       = 10
	DefaultTimeoutSeconds = 30

	// DefaultMaxSize bounds how many bytes Load reads from the watched file.
	DefaultMaxSize int64 = 4 << 20
)

// Environments lists the accepted values of Config.Environment, in the order
// they are reported in validation messages.
var Environments = []string{"development", "staging", "production"}

// Config is the application configuration held in the watched file.
// Values handed out by the watcher are clones; treat them as read-only.
type Config struct {
	// AppName is the application name. Required, must not be blank.
	AppName string `json:"app_name" yaml:"app_name" toml:"app_name"`

	// Version is the application version, e.g. "1.0.0".
	Version string `json:"version" yaml:"version" toml:"version"`

	// Environment is one of Environments. Defaults to DefaultEnvironment.
	Environment string `json:"environment" yaml:"environment" toml:"environment"`

	// Server is the optional listener section.
	Server *ServerConfig `json:"server,omitempty" yaml:"server,omitempty" toml:"server,omitempty"`

	// Database is the optional database section.
	Database *DatabaseConfig `json:"database,omitempty" yaml:"database,omitempty" toml:"database,omitempty"`

	// Features maps feature flag names to their enabled state. Never nil
	// on a Config returned by Load or Decode.
	Features map[string]bool `json:"features" yaml:"features" toml:"features"`
}

// ServerConfig holds the listener settings.
type ServerConfig struct {
	Host      string `json:"host" yaml:"host" toml:"host"`
	Port      int    `json:"port" yaml:"port" toml:"port"`
	EnableSSL bool   `json:"enable_ssl" yaml:"enable_ssl" toml:"enable_ssl"`
}

// DatabaseConfig holds the database connection settings.
type DatabaseConfig struct {
	ConnectionString string `json:"connection_string" yaml:"connection_string" toml:"connection_string"`
	PoolSize         int    `json:"pool_size" yaml:"pool_size" toml:"pool_size"`
	TimeoutSeconds   int    `json:"timeout_seconds" yaml:"timeout_seconds" toml:"timeout_seconds"`
}

// Equal reports whether c and o hold the same values, including the nested
// optional sections and the feature map. Two nil configs are equal.
func (c *Config) Equal(o *Config) bool {
	if c == nil || o == nil {
		return c == o
	}
	if c.AppName != o.AppName || c.Version != o.Version || c.Environment != o.Environment {
		return false
	}
	if (c.Server == nil) != (o.Server == nil) || (c.Server != nil && *c.Server != *o.Server) {
		return false
	}
	if (c.Database == nil) != (o.Database == nil) || (c.Database != nil && *c.Database != *o.Database) {
		return false
	}
	return maps.Equal(c.Features, o.Features)
}

// Clone returns a deep copy of c.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	out := *c
	if c.Server != nil {
		s := *c.Server
		out.Server = &s
	}
	if c.Database != nil {
		d := *c.Database
		out.Database = &d
	}
	out.Features = maps.Clone(c.Features)
	if out.Features == nil {
		out.Features = make(map[string]bool)
	}
	return &out
}

// EnabledFeatures returns the number of feature flags set to true.
func (c *Config) EnabledFeatures() int {
	n := 0
	for _, on := range c.Features {
		if on {
			n++
		}
	}
	return n
}

// LogValue renders a compact summary of c for structured logs.
func (c *Config) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("app", c.AppName),
		slog.String("version", c.Version),
		slog.String("environment", c.Environment),
	}
	if c.Server != nil {
		attrs = append(attrs, slog.Group("server",
			slog.String("host", c.Server.Host),
			slog.Int("port", c.Server.Port),
			slog.Bool("ssl", c.Server.EnableSSL),
		))
	}
	if c.Database != nil {
		// The connection string may carry credentials; it is never logged.
		attrs = append(attrs, slog.Group("database",
			slog.Int("pool_size", c.Database.PoolSize),
			slog.Int("timeout_seconds", c.Database.TimeoutSeconds),
		))
	}
	if len(c.Features) > 0 {
		attrs = append(attrs, slog.Int("features_enabled", c.EnabledFeatures()))
	}
	return slog.GroupValue(attrs...)
}

// Loader reads and validates configuration files.
type Loader struct {
	// MaxSize is the largest file Load accepts. Zero means DefaultMaxSize.
	MaxSize int64
}

// Load reads the config file at path with DefaultMaxSize.
func Load(path string) (*Config, error) {
	return Loader{}.Load(path)
}

// Load reads, decodes and validates the config file at path. The format is
// chosen from the file extension (see FormatFromPath).
//
// Every failure is returned as an *Error; a partially populated Config is
// never returned.
func (l Loader) Load(path string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &Error{Kind: KindFileNotFound, Path: path, Err: err}
		}
		return nil, &Error{Kind: KindReadFailure, Path: path, Err: err}
	}
	// A FIFO or device would block the read indefinitely.
	if !info.Mode().IsRegular() {
		return nil, &Error{Kind: KindReadFailure, Path: path,
			Reason: fmt.Sprintf("not a regular file (%s)", info.Mode().Type())}
	}

	data, err := l.read(path)
	if err != nil {
		return nil, err
	}

	cfg, err := Decode(data, FormatFromPath(path))
	if err != nil {
		return nil, &Error{Kind: KindParseFailure, Path: path, Err: err}
	}

	if err := Validate(cfg); err != nil {
		return nil, &Error{Kind: KindValidationFailure, Path: path, Reason: err.Error()}
	}
	return cfg, nil
}

func (l Loader) read(path string) ([]byte, error) {
	limit := l.MaxSize
	if limit <= 0 {
		limit = DefaultMaxSize
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// Removed between the stat and the open.
			return nil, &Error{Kind: KindFileNotFound, Path: path, Err: err}
		}
		return nil, &Error{Kind: KindReadFailure, Path: path, Err: err}
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return nil, &Error{Kind: KindReadFailure, Path: path, Err: err}
	}
	if int64(len(data)) > limit {
		return nil, &Error{Kind: KindReadFailure, Path: path,
			Reason: fmt.Sprintf("file exceeds %d bytes", limit)}
	}
	return data, nil
}

// Validate checks the semantic rules on a decoded Config and returns the
// first violation found.
func Validate(cfg *Config) error {
	if strings.TrimSpace(cfg.AppName) == "" {
		return errors.New("app_name cannot be empty")
	}
	if !strings.Contains(cfg.Version, ".") {
		return fmt.Errorf("version '%s' should follow semver format (e.g., 1.0.0)", cfg.Version)
	}
	if !slices.Contains(Environments, cfg.Environment) {
		return fmt.Errorf("environment must be one of: %s", strings.Join(Environments, ", "))
	}
	if s := cfg.Server; s != nil {
		if strings.TrimSpace(s.Host) == "" {
			return errors.New("server.host cannot be empty")
		}
		if s.Port <= 0 {
			return errors.New("server.port must be greater than 0")
		}
		if s.Port > 65535 {
			return fmt.Errorf("server.port %d is out of range [1, 65535]", s.Port)
		}
	}
	if d := cfg.Database; d != nil {
		if strings.TrimSpace(d.ConnectionString) == "" {
			return errors.New("database.connection_string cannot be empty")
		}
		if d.PoolSize <= 0 {
			return errors.New("database.pool_size must be greater than 0")
		}
		if d.TimeoutSeconds < 0 {
			return errors.New("database.timeout_seconds must not be negative")
		}
	}
	return nil
}
