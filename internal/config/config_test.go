package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/alarm-relay/internal/delivery"
	domain "github.com/oshokin/alarm-relay/internal/domain/alarm"
)

// TestValidate checks required fields, defaults and format validations.
func TestValidate(t *testing.T) {
	t.Parallel()

	require.Error(t, Validate(nil))

	// Enabled without endpoint is valid; the service derives disabled delivery.
	cfg := &Config{Delivery: DeliveryConfig{Enabled: true}}
	require.NoError(t, Validate(cfg))
	require.True(t, cfg.Delivery.Enabled)
	require.Empty(t, cfg.Delivery.EndpointURL)

	// Bad endpoint.
	cfg = &Config{Delivery: DeliveryConfig{EndpointURL: "not a url"}}
	require.Error(t, Validate(cfg))

	// Negative retries and delays.
	cfg = &Config{Delivery: DeliveryConfig{MaxRetries: -1}}
	require.ErrorIs(t, Validate(cfg), errInvalidRetries)

	cfg = &Config{Delivery: DeliveryConfig{RetryDelay: -time.Second}}
	require.ErrorIs(t, Validate(cfg), errNegativeDuration)

	// Bad listen address.
	cfg = &Config{Listen: ListenConfig{HTTPAddress: "8080"}}
	require.Error(t, Validate(cfg))

	// Defaults.
	cfg = &Config{Delivery: DeliveryConfig{Enabled: true, EndpointURL: "https://alarms.example.com/hook"}}
	require.NoError(t, Validate(cfg))
	require.Equal(t, delivery.DefaultMaxAttempts, cfg.Delivery.MaxRetries)
	require.Equal(t, delivery.DefaultRetryDelay, cfg.Delivery.RetryDelay)
	require.Equal(t, delivery.DefaultRequestTimeout, cfg.Delivery.RequestTimeout)
	require.Equal(t, domain.DefaultSource, cfg.Delivery.Source)
	require.Equal(t, DefaultGRPCAddress, cfg.Listen.GRPCAddress)
	require.Equal(t, DefaultHTTPAddress, cfg.Listen.HTTPAddress)
	require.Equal(t, "info", cfg.LogLevel)
}

// TestDefault returns a disabled but valid configuration.
func TestDefault(t *testing.T) {
	t.Parallel()

	cfg := Default()
	require.False(t, cfg.Delivery.Enabled)
	require.Equal(t, 3, cfg.Delivery.MaxRetries)
	require.Equal(t, 2*time.Second, cfg.Delivery.RetryDelay)
}

// TestSaveLoadRoundtrip ensures settings are persisted and loaded back correctly.
func TestSaveLoadRoundtrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yaml")

	cfg := &Config{
		Delivery: DeliveryConfig{
			Enabled:     true,
			EndpointURL: "https://alarms.example.com/hook",
			AuthToken:   "secret",
			MaxRetries:  5,
			RetryDelay:  500 * time.Millisecond,
		},
		Listen: ListenConfig{
			GRPCAddress: "127.0.0.1:50051",
		},
	}

	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg.Delivery, loaded.Delivery)
	require.Equal(t, cfg.Listen, loaded.Listen)

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(DefaultFilePermissions), info.Mode().Perm())

	require.Error(t, Save(path, nil))
}

// TestLoad_YAML parses durations and nested sections from a hand-written file.
func TestLoad_YAML(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "alarm-relay.yaml")
	contents := `
delivery:
  enabled: true
  endpoint_url: http://127.0.0.1:9000/alarms
  max_retries: 4
  retry_delay: 1500ms
  request_timeout: 3s
listen:
  http_addr: 127.0.0.1:8081
log_level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 4, cfg.Delivery.MaxRetries)
	require.Equal(t, 1500*time.Millisecond, cfg.Delivery.RetryDelay)
	require.Equal(t, 3*time.Second, cfg.Delivery.RequestTimeout)
	require.Equal(t, "127.0.0.1:8081", cfg.Listen.HTTPAddress)
	require.Equal(t, DefaultGRPCAddress, cfg.Listen.GRPCAddress)
	require.Equal(t, "debug", cfg.LogLevel)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

// TestToken prefers the environment variable over the inline token.
func TestToken(t *testing.T) {
	t.Setenv("ALARM_RELAY_TEST_TOKEN", "from-env")

	d := DeliveryConfig{AuthToken: "inline", AuthTokenEnv: "ALARM_RELAY_TEST_TOKEN"}
	require.Equal(t, "from-env", d.Token())

	d.AuthTokenEnv = "ALARM_RELAY_TEST_TOKEN_UNSET"
	require.Equal(t, "inline", d.Token())

	require.Equal(t, "inline", DeliveryConfig{AuthToken: "inline"}.Token())
}
