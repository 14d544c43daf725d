// Package config parses predictor settings from flags and environment
// variables.
//
// Flags take precedence over environment variables, which take precedence
// over defaults. Calibration source settings are read from SOURCE_*
// variables and passed to sources.New under lower-camel keys, so
// SOURCE_VALUE_PATH becomes "valuePath".
package config

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/HatiCode/dosimap/pkg/storage"
	"github.com/HatiCode/dosimap/pkg/tls"
)

// Config holds all predictor configuration.
type Config struct {
	Listen     string
	GRPCListen string
	LogFormat  string
	LogLevel   string

	Storage       string
	MemoryTTL     time.Duration
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisTTL      time.Duration

	Source       string
	SourcePath   string
	SourceConfig map[string]string

	Profile   string
	TableName string
	Workers   int

	// TLS secures the gRPC listener with mutual TLS when set.
	TLS tls.Config
}

// ParseFlags parses os.Args and the environment, exiting on invalid input.
func ParseFlags() *Config {
	cfg, err := Parse(flag.CommandLine, os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
	return cfg
}

// Parse registers the predictor flags on fs, parses args and validates the
// result.
func Parse(fs *flag.FlagSet, args []string) (*Config, error) {
	cfg := &Config{}

	fs.StringVar(&cfg.Listen, "listen", getEnv("LISTEN", ":8081"), "HTTP listen address")
	fs.StringVar(&cfg.GRPCListen, "grpc-listen", getEnv("GRPC_LISTEN", ":50051"), "gRPC listen address")

	fs.StringVar(&cfg.LogFormat, "log-format", getEnv("LOG_FORMAT", "text"), "Log format: text or json")
	fs.StringVar(&cfg.LogLevel, "log-level", getEnv("LOG_LEVEL", "info"), "Log level: debug, info, warn, error")

	fs.StringVar(&cfg.Storage, "storage", getEnv("STORAGE", "memory"), "Table storage backend: memory or redis")
	fs.DurationVar(&cfg.MemoryTTL, "memory-ttl", getEnvDuration("MEMORY_TTL", 0), "In-memory table expiry (0 keeps tables forever)")
	fs.StringVar(&cfg.RedisAddr, "redis-addr", getEnv("REDIS_ADDR", "localhost:6379"), "Redis server address")
	fs.StringVar(&cfg.RedisPassword, "redis-password", getEnv("REDIS_PASSWORD", ""), "Redis password")
	fs.IntVar(&cfg.RedisDB, "redis-db", getEnvInt("REDIS_DB", 0), "Redis database number")
	fs.DurationVar(&cfg.RedisTTL, "redis-ttl", getEnvDuration("REDIS_TTL", 0), "Redis table TTL, refreshed while running (0 keeps tables forever)")

	fs.StringVar(&cfg.Source, "source", getEnv("SOURCE", "builtin"), "Calibration source: builtin, json, http, sqlite or columns")
	fs.StringVar(&cfg.SourcePath, "source-path", getEnv("SOURCE_PATH", ""), "Calibration file or database path")

	fs.StringVar(&cfg.Profile, "profile", getEnv("PROFILE", ""), "Dosing profile INI file (empty uses built-in defaults)")
	fs.StringVar(&cfg.TableName, "table-name", getEnv("TABLE_NAME", ""), "Name of the generated table (overrides the profile)")
	fs.IntVar(&cfg.Workers, "workers", getEnvInt("WORKERS", 0), "Table generation workers (0 uses the profile, then GOMAXPROCS)")

	fs.StringVar(&cfg.TLS.CertFile, "tls-cert", getEnv("TLS_CERT_FILE", ""), "gRPC server certificate (PEM)")
	fs.StringVar(&cfg.TLS.KeyFile, "tls-key", getEnv("TLS_KEY_FILE", ""), "gRPC server private key (PEM)")
	fs.StringVar(&cfg.TLS.CAFile, "tls-ca", getEnv("TLS_CA_FILE", ""), "CA bundle for verifying gRPC clients (PEM)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg.SourceConfig = parseSourceConfig(os.Environ())
	if cfg.SourcePath != "" {
		cfg.SourceConfig["path"] = cfg.SourcePath
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// StoreTTL returns the expiry of the selected storage backend.
func (c *Config) StoreTTL() time.Duration {
	if c.Storage == "redis" {
		return c.RedisTTL
	}
	return c.MemoryTTL
}

// Validate checks settings that do not need any I/O.
func (c *Config) Validate() error {
	switch c.Storage {
	case "memory", "redis":
	default:
		return fmt.Errorf("invalid storage %q (must be memory or redis)", c.Storage)
	}
	if c.Storage == "redis" && c.RedisAddr == "" {
		return fmt.Errorf("redis-addr is required when storage=redis")
	}
	if c.MemoryTTL < 0 || c.RedisTTL < 0 {
		return fmt.Errorf("ttl cannot be negative")
	}
	if c.Source == "" {
		return fmt.Errorf("source cannot be empty")
	}
	if c.TableName != "" {
		if err := storage.ValidateName(c.TableName); err != nil {
			return err
		}
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must be >= 0, got %d", c.Workers)
	}
	if c.Listen == c.GRPCListen {
		return fmt.Errorf("HTTP and gRPC listen addresses must differ (%s)", c.Listen)
	}
	if err := c.TLS.Validate(); err != nil {
		return err
	}
	return nil
}

// parseSourceConfig turns SOURCE_* variables into source settings. The
// -source and -source-path flags have their own variables and are skipped.
func parseSourceConfig(environ []string) map[string]string {
	config := make(map[string]string)

	for _, env := range environ {
		key, value, ok := strings.Cut(env, "=")
		if !ok || !strings.HasPrefix(key, "SOURCE_") || key == "SOURCE_PATH" {
			continue
		}
		config[toLowerCamelCase(key[len("SOURCE_"):])] = value
	}

	return config
}

func toLowerCamelCase(s string) string {
	parts := strings.Split(strings.ToLower(s), "_")
	var b strings.Builder
	for i, p := range parts {
		if p == "" {
			continue
		}
		if i > 0 && b.Len() > 0 {
			p = strings.ToUpper(p[:1]) + p[1:]
		}
		b.WriteString(p)
	}
	return b.String()
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var i int
		if _, err := fmt.Sscanf(value, "%d", &i); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
