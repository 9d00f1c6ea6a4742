package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/oshokin/alarm-relay/internal/delivery"
	domain "github.com/oshokin/alarm-relay/internal/domain/alarm"
)

// Config holds the relay settings.
type Config struct {
	// Delivery describes the alarm endpoint.
	Delivery DeliveryConfig `yaml:"delivery"`
	// Listen holds the addresses of the relay APIs.
	Listen ListenConfig `yaml:"listen"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
}

// DeliveryConfig describes the single delivery endpoint.
type DeliveryConfig struct {
	// Enabled requests delivery. Without EndpointURL the relay still runs, with delivery disabled.
	Enabled bool `yaml:"enabled"`
	// EndpointURL receives a POST per alarm.
	EndpointURL string `yaml:"endpoint_url"`
	// AuthToken is sent as a bearer token.
	AuthToken string `yaml:"auth_token,omitempty"`
	// AuthTokenEnv names an environment variable holding the token.
	AuthTokenEnv string `yaml:"auth_token_env,omitempty"`
	// MaxRetries is the number of attempts per alarm.
	MaxRetries int `yaml:"max_retries"`
	// RetryDelay is the backoff base; it doubles after every failed attempt.
	RetryDelay time.Duration `yaml:"retry_delay"`
	// RequestTimeout bounds each attempt.
	RequestTimeout time.Duration `yaml:"request_timeout"`
	// Source is stamped on every alarm.
	Source string `yaml:"source"`
}

// Token returns the bearer token, preferring the environment variable.
func (d DeliveryConfig) Token() string {
	if d.AuthTokenEnv != "" {
		if token := os.Getenv(d.AuthTokenEnv); token != "" {
			return token
		}
	}

	return d.AuthToken
}

// ListenConfig holds API listen addresses. Empty addresses get the defaults.
type ListenConfig struct {
	// GRPCAddress serves the relay gRPC API and health checks.
	GRPCAddress string `yaml:"grpc_addr"`
	// HTTPAddress serves the REST API and /metrics.
	HTTPAddress string `yaml:"http_addr"`
}

const (
	// DefaultConfigFilename is the default settings file.
	DefaultConfigFilename = "alarm-relay.yaml"

	// DefaultGRPCAddress is where the gRPC API listens by default.
	DefaultGRPCAddress = ":50051"

	// DefaultHTTPAddress is where the HTTP API listens by default.
	DefaultHTTPAddress = ":8080"

	// DefaultTimeout bounds client calls to a running relay.
	DefaultTimeout = 5 * time.Second

	// DefaultFilePermissions is used when saving settings.
	DefaultFilePermissions = 0o600
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errInvalidRetries is returned for a negative attempt count.
	errInvalidRetries = errors.New("delivery.max_retries must be at least 1")
	// errNegativeDuration is returned for negative delays and timeouts.
	errNegativeDuration = errors.New("duration must not be negative")
)

// Default returns a Config with every default applied.
func Default() *Config {
	cfg := new(Config)

	//nolint:errcheck // The zero configuration is always valid.
	_ = Validate(cfg)

	return cfg
}

// Load reads configuration from path and validates it.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes cfg to path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	// Restrict permissions, the file may hold a token.
	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate checks cfg and fills in defaults for unset fields.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	d := &cfg.Delivery

	if d.EndpointURL != "" {
		if _, err := url.ParseRequestURI(d.EndpointURL); err != nil {
			return fmt.Errorf("invalid delivery.endpoint_url: %w", err)
		}
	}

	switch {
	case d.MaxRetries < 0:
		return fmt.Errorf("%w: got %d", errInvalidRetries, d.MaxRetries)
	case d.MaxRetries == 0:
		d.MaxRetries = delivery.DefaultMaxAttempts
	}

	if d.RetryDelay < 0 || d.RequestTimeout < 0 {
		return fmt.Errorf("delivery timings: %w", errNegativeDuration)
	}

	if d.RetryDelay == 0 {
		d.RetryDelay = delivery.DefaultRetryDelay
	}

	if d.RequestTimeout == 0 {
		d.RequestTimeout = delivery.DefaultRequestTimeout
	}

	if d.Source == "" {
		d.Source = domain.DefaultSource
	}

	if cfg.Listen.GRPCAddress == "" {
		cfg.Listen.GRPCAddress = DefaultGRPCAddress
	}

	if cfg.Listen.HTTPAddress == "" {
		cfg.Listen.HTTPAddress = DefaultHTTPAddress
	}

	for _, addr := range []string{cfg.Listen.GRPCAddress, cfg.Listen.HTTPAddress} {
		if _, _, err := net.SplitHostPort(addr); err != nil {
			return fmt.Errorf("invalid listen address %q: %w", addr, err)
		}
	}

	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	return nil
}
