// Package config loads gqlstream configuration.
//
// Values come from command line flags, environment variables and defaults,
// in that order of precedence. Flag names are the configuration keys
// (server.addr, log.level, ...). Environment variables use the GQLSTREAM_
// prefix with dots and dashes replaced by underscores:
//
//	GQLSTREAM_SERVER_ADDR=0.0.0.0:8080
//	GQLSTREAM_SERVER_MAX_BODY_BYTES=65536
//	GQLSTREAM_LOG_LEVEL=debug
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment variables.
const EnvPrefix = "GQLSTREAM"

// Config is the root configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	GraphQL GraphQLConfig `mapstructure:"graphql"`
	Example ExampleConfig `mapstructure:"example"`
	Log     LogConfig     `mapstructure:"log"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Otel    OtelConfig    `mapstructure:"otel"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	// Addr is the listen address.
	Addr string `mapstructure:"addr"`

	// Pretty indents JSON responses.
	Pretty bool `mapstructure:"pretty"`

	// Timeout bounds single-shot executions. Streams are not bounded.
	Timeout time.Duration `mapstructure:"timeout"`

	// MaxBodyBytes limits POST bodies.
	MaxBodyBytes int64 `mapstructure:"max-body-bytes"`

	// ShutdownTimeout bounds graceful shutdown after a signal.
	ShutdownTimeout time.Duration `mapstructure:"shutdown-timeout"`

	// CORSOrigins lists allowed origins; "*" allows any.
	CORSOrigins []string `mapstructure:"cors-origins"`

	// Playground serves the GraphQL Playground.
	Playground bool `mapstructure:"playground"`

	// KeepAlive is the idle interval between stream keep-alives. 0 disables.
	KeepAlive time.Duration `mapstructure:"keepalive"`
}

type GraphQLConfig struct {
	Introspection bool `mapstructure:"introspection"`
	// Parallelism bounds the resolver calls in flight. 0 means unlimited.
	Parallelism int `mapstructure:"parallelism"`
}

type ExampleConfig struct {
	// Interval is the tick period of Subscription.interval.
	Interval time.Duration `mapstructure:"interval"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

type OtelConfig struct {
	// Endpoint is the OTLP gRPC collector address. Empty disables tracing.
	Endpoint string `mapstructure:"endpoint"`
	Service  string `mapstructure:"service"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            "127.0.0.1:8080",
			Timeout:         10 * time.Second,
			MaxBodyBytes:    1 << 20,
			ShutdownTimeout: 10 * time.Second,
			CORSOrigins:     []string{"*"},
			Playground:      true,
			KeepAlive:       15 * time.Second,
		},
		GraphQL: GraphQLConfig{Introspection: true},
		Example: ExampleConfig{Interval: time.Second},
		Log:     LogConfig{Level: "info", Format: "text"},
		Metrics: MetricsConfig{Enabled: true},
		Otel:    OtelConfig{Service: "gqlstream"},
	}
}

// RegisterFlags defines one flag per configuration key on fs.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("server.addr", d.Server.Addr, "HTTP listen address")
	fs.Bool("server.pretty", d.Server.Pretty, "Pretty-print JSON responses")
	fs.Duration("server.timeout", d.Server.Timeout, "Timeout of single-shot operations")
	fs.Int64("server.max-body-bytes", d.Server.MaxBodyBytes, "Maximum POST body size")
	fs.Duration("server.shutdown-timeout", d.Server.ShutdownTimeout, "Graceful shutdown timeout")
	fs.StringSlice("server.cors-origins", d.Server.CORSOrigins, "Allowed CORS origins")
	fs.Bool("server.playground", d.Server.Playground, "Serve the GraphQL Playground")
	fs.Duration("server.keepalive", d.Server.KeepAlive, "Stream keep-alive interval (0 disables)")
	fs.Bool("graphql.introspection", d.GraphQL.Introspection, "Enable GraphQL introspection")
	fs.Int("graphql.parallelism", d.GraphQL.Parallelism, "Resolver calls in flight (0 is unlimited)")
	fs.Duration("example.interval", d.Example.Interval, "Tick period of Subscription.interval")
	fs.String("log.level", d.Log.Level, "Log level (debug, info, warn, error)")
	fs.String("log.format", d.Log.Format, "Log format (text, json)")
	fs.Bool("metrics.enabled", d.Metrics.Enabled, "Serve Prometheus metrics on /metrics")
	fs.String("otel.endpoint", d.Otel.Endpoint, "OTLP collector endpoint")
	fs.String("otel.service", d.Otel.Service, "OpenTelemetry service name")
}

// Load resolves the configuration from fs, the environment and defaults.
// fs may be nil.
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if fs != nil {
		if err := v.BindPFlags(fs); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.pretty", d.Server.Pretty)
	v.SetDefault("server.timeout", d.Server.Timeout)
	v.SetDefault("server.max-body-bytes", d.Server.MaxBodyBytes)
	v.SetDefault("server.shutdown-timeout", d.Server.ShutdownTimeout)
	v.SetDefault("server.cors-origins", d.Server.CORSOrigins)
	v.SetDefault("server.playground", d.Server.Playground)
	v.SetDefault("server.keepalive", d.Server.KeepAlive)
	v.SetDefault("graphql.introspection", d.GraphQL.Introspection)
	v.SetDefault("graphql.parallelism", d.GraphQL.Parallelism)
	v.SetDefault("example.interval", d.Example.Interval)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("otel.endpoint", d.Otel.Endpoint)
	v.SetDefault("otel.service", d.Otel.Service)
}

func validate(cfg *Config) error {
	if cfg.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if cfg.Server.Timeout < 0 || cfg.Server.ShutdownTimeout < 0 || cfg.Server.KeepAlive < 0 {
		return fmt.Errorf("durations must not be negative")
	}
	if cfg.Server.MaxBodyBytes < 0 {
		return fmt.Errorf("invalid server.max-body-bytes: %d", cfg.Server.MaxBodyBytes)
	}
	if cfg.GraphQL.Parallelism < 0 {
		return fmt.Errorf("invalid graphql.parallelism: %d", cfg.GraphQL.Parallelism)
	}
	if cfg.Example.Interval <= 0 {
		return fmt.Errorf("example.interval must be positive")
	}
	switch strings.ToLower(cfg.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log.format %q", cfg.Log.Format)
	}
	return nil
}
