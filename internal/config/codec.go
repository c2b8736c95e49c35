package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Format is a supported on-disk encoding of Config.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// FormatFromPath picks the decoder by file extension. Anything that is not
// YAML or TOML is read as JSON.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	case ".toml":
		return FormatTOML
	default:
		return FormatJSON
	}
}

// fileConfig mirrors Config with pointer fields so that absent keys can be
// told apart from zero values. Unknown keys are ignored by all three decoders.
type fileConfig struct {
	AppName     *string         `json:"app_name" yaml:"app_name" toml:"app_name"`
	Version     *string         `json:"version" yaml:"version" toml:"version"`
	Environment *string         `json:"environment" yaml:"environment" toml:"environment"`
	Server      *fileServer     `json:"server" yaml:"server" toml:"server"`
	Database    *fileDatabase   `json:"database" yaml:"database" toml:"database"`
	Features    map[string]bool `json:"features" yaml:"features" toml:"features"`
}

type fileServer struct {
	Host      *string `json:"host" yaml:"host" toml:"host"`
	Port      *int    `json:"port" yaml:"port" toml:"port"`
	EnableSSL *bool   `json:"enable_ssl" yaml:"enable_ssl" toml:"enable_ssl"`
}

type fileDatabase struct {
	ConnectionString *string `json:"connection_string" yaml:"connection_string" toml:"connection_string"`
	PoolSize         *int    `json:"pool_size" yaml:"pool_size" toml:"pool_size"`
	TimeoutSeconds   *int    `json:"timeout_seconds" yaml:"timeout_seconds" toml:"timeout_seconds"`
}

// Decode parses data in the given format and applies defaults. It performs
// structural checks only (types, required keys); call Validate for the
// semantic rules.
func Decode(data []byte, f Format) (*Config, error) {
	var fc fileConfig
	var err error
	switch f {
	case FormatYAML:
		err = yaml.Unmarshal(data, &fc)
	case FormatTOML:
		err = toml.Unmarshal(data, &fc)
	case FormatJSON, "":
		err = json.Unmarshal(data, &fc)
	default:
		return nil, fmt.Errorf("unsupported format %q", f)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", f, err)
	}
	return fc.build()
}

// build converts the decoded file layout into a Config, filling defaults and
// rejecting missing required keys.
func (fc *fileConfig) build() (*Config, error) {
	if fc.AppName == nil {
		return nil, fmt.Errorf("missing field `app_name`")
	}
	if fc.Version == nil {
		return nil, fmt.Errorf("missing field `version`")
	}

	cfg := defaults()
	cfg.AppName = *fc.AppName
	cfg.Version = *fc.Version
	if fc.Environment != nil {
		cfg.Environment = *fc.Environment
	}
	for name, on := range fc.Features {
		cfg.Features[name] = on
	}

	if s := fc.Server; s != nil {
		if s.Host == nil {
			return nil, fmt.Errorf("server: missing field `host`")
		}
		if s.Port == nil {
			return nil, fmt.Errorf("server: missing field `port`")
		}
		if err := inRange("server.port", *s.Port, 0, math.MaxUint16); err != nil {
			return nil, err
		}
		cfg.Server = &ServerConfig{Host: *s.Host, Port: *s.Port, EnableSSL: DefaultEnableSSL}
		if s.EnableSSL != nil {
			cfg.Server.EnableSSL = *s.EnableSSL
		}
	}

	if d := fc.Database; d != nil {
		if d.ConnectionString == nil {
			return nil, fmt.Errorf("database: missing field `connection_string`")
		}
		cfg.Database = &DatabaseConfig{
			ConnectionString: *d.ConnectionString,
			PoolSize:         DefaultPoolSize,
			TimeoutSeconds:   DefaultTimeoutSeconds,
		}
		if d.PoolSize != nil {
			if err := inRange("database.pool_size", *d.PoolSize, 0, math.MaxUint32); err != nil {
				return nil, err
			}
			cfg.Database.PoolSize = *d.PoolSize
		}
		if d.TimeoutSeconds != nil {
			if err := inRange("database.timeout_seconds", *d.TimeoutSeconds, 0, math.MaxInt64); err != nil {
				return nil, err
			}
			cfg.Database.TimeoutSeconds = *d.TimeoutSeconds
		}
	}
	return cfg, nil
}

// inRange rejects integers the field's unsigned width cannot hold. These are
// structural errors, reported before Validate runs.
func inRange(field string, v int, lo, hi int64) error {
	if int64(v) < lo || int64(v) > hi {
		return fmt.Errorf("%s: invalid value %d, expected an integer in [%d, %d]", field, v, lo, hi)
	}
	return nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Environment: DefaultEnvironment,
		Features:    make(map[string]bool),
	}
}

// Encode serializes cfg in the given format. Decode(Encode(cfg)) yields a
// Config equal to cfg.
func Encode(cfg *Config, f Format) ([]byte, error) {
	switch f {
	case FormatYAML:
		return yaml.Marshal(cfg)
	case FormatTOML:
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
			return nil, fmt.Errorf("encode toml: %w", err)
		}
		return buf.Bytes(), nil
	case FormatJSON, "":
		return json.MarshalIndent(cfg, "", "  ")
	default:
		return nil, fmt.Errorf("unsupported format %q", f)
	}
}
