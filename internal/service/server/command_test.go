package server

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/oshokin/alarm-relay/internal/api/grpc/relay"
	"github.com/oshokin/alarm-relay/internal/config"
	domain "github.com/oshokin/alarm-relay/internal/domain/alarm"
)

// endpoint records the alarms posted by the relay.
type endpoint struct {
	mu       sync.Mutex
	payloads []map[string]any
	auth     []string
}

func (e *endpoint) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	var payload map[string]any
	_ = json.Unmarshal(body, &payload)

	e.mu.Lock()
	e.payloads = append(e.payloads, payload)
	e.auth = append(e.auth, r.Header.Get("Authorization"))
	e.mu.Unlock()

	w.WriteHeader(http.StatusOK)
}

func (e *endpoint) received() []map[string]any {
	e.mu.Lock()
	defer e.mu.Unlock()

	return append([]map[string]any(nil), e.payloads...)
}

func listen(t *testing.T) net.Listener {
	t.Helper()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	return lis
}

func TestServe_EndToEnd(t *testing.T) {
	t.Parallel()

	ep := new(endpoint)
	target := httptest.NewServer(ep)
	t.Cleanup(target.Close)

	cfg := config.Default()
	cfg.Delivery.Enabled = true
	cfg.Delivery.EndpointURL = target.URL
	cfg.Delivery.AuthToken = "secret"
	cfg.Delivery.RetryDelay = time.Millisecond

	grpcLis := listen(t)
	httpLis := listen(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)

	go func() {
		errCh <- Serve(ctx, cfg, grpcLis, httpLis)
	}()

	client, err := relay.Dial(ctx, grpcLis.Addr().String())
	require.NoError(t, err)

	t.Cleanup(func() { _ = client.Close() })

	require.Eventually(t, func() bool {
		return client.Submit(ctx, &relay.Alarm{
			Type:     "intrusion",
			Message:  "person detected",
			Severity: domain.SeverityCritical,
			Metadata: map[string]any{"camera": "cam-7"},
		}) == nil
	}, 5*time.Second, 20*time.Millisecond)

	require.Eventually(t, func() bool {
		return len(ep.received()) == 1
	}, 5*time.Second, 10*time.Millisecond)

	got := ep.received()[0]
	require.Equal(t, "intrusion", got["type"])
	require.Equal(t, "critical", got["severity"])
	require.Equal(t, domain.DefaultSource, got["source"])
	require.Equal(t, "Bearer secret", ep.auth[0])

	httpBase := "http://" + httpLis.Addr().String()

	require.Eventually(t, func() bool {
		resp, err := http.Get(httpBase + "/api/v1/stats") //nolint:noctx // Test helper.
		if err != nil {
			return false
		}
		defer resp.Body.Close()

		var stats map[string]any
		if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
			return false
		}

		return stats["total_delivered"] == float64(1)
	}, 5*time.Second, 10*time.Millisecond)

	resp, err := http.Get(httpBase + "/metrics") //nolint:noctx // Test helper.
	require.NoError(t, err)

	metricsBody, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.Contains(t, string(metricsBody), "alarm_relay_queue_depth")

	conn, err := grpc.NewClient(grpcLis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)

	t.Cleanup(func() { _ = conn.Close() })

	health, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: relay.ServiceName})
	require.NoError(t, err)
	require.Equal(t, healthpb.HealthCheckResponse_SERVING, health.GetStatus())

	cancel()

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("Serve did not return after cancellation")
	}
}

func TestServe_DisabledDeliveryStillServes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		enabled bool
	}{
		{name: "not requested"},
		{name: "requested without endpoint", enabled: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := config.Default()
			cfg.Delivery.Enabled = tt.enabled
			require.NoError(t, config.Validate(cfg))

			serveDisabled(t, cfg)
		})
	}
}

// serveDisabled runs the relay and checks it accepts alarms with delivery off.
func serveDisabled(t *testing.T, cfg *config.Config) {
	t.Helper()

	grpcLis := listen(t)
	httpLis := listen(t)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)

	go func() {
		errCh <- Serve(ctx, cfg, grpcLis, httpLis)
	}()

	client, err := relay.Dial(ctx, grpcLis.Addr().String())
	require.NoError(t, err)

	t.Cleanup(func() { _ = client.Close() })

	var stats map[string]any

	require.Eventually(t, func() bool {
		stats, err = client.Stats(ctx)
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)

	require.Equal(t, false, stats["enabled"])
	require.Nil(t, stats["endpoint"])

	require.NoError(t, client.Submit(ctx, &relay.Alarm{Type: "intrusion"}))

	cancel()
	require.NoError(t, <-errCh)
}

func TestRun_MissingConfig(t *testing.T) {
	t.Parallel()

	err := Run(context.Background(), &Options{
		ConfigPath: filepath.Join(t.TempDir(), "missing.yaml"),
	})
	require.Error(t, err)
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestRun_InvalidLogLevel(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), config.DefaultConfigFilename)
	require.NoError(t, config.Save(path, config.Default()))

	err := Run(context.Background(), &Options{
		ConfigPath: path,
		LogLevel:   "loud",
	})
	require.ErrorIs(t, err, ErrInvalidLogLevel)
}

func TestApplyOverrides(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	applyOverrides(cfg, &Options{GRPCAddress: "127.0.0.1:6000", LogLevel: "debug"})

	require.Equal(t, "127.0.0.1:6000", cfg.Listen.GRPCAddress)
	require.Equal(t, config.DefaultHTTPAddress, cfg.Listen.HTTPAddress)
	require.Equal(t, "debug", cfg.LogLevel)
}

func TestSettingsFromConfig(t *testing.T) {
	t.Setenv("ALARM_RELAY_TEST_TOKEN", "from-env")

	cfg := config.Default()
	cfg.Delivery.Enabled = true
	cfg.Delivery.EndpointURL = "https://alerts.example.com/hook"
	cfg.Delivery.AuthToken = "from-file"
	cfg.Delivery.AuthTokenEnv = "ALARM_RELAY_TEST_TOKEN"

	settings := settingsFromConfig(cfg)
	require.True(t, settings.Enabled)
	require.Equal(t, "from-env", settings.AuthToken)
	require.Equal(t, cfg.Delivery.MaxRetries, settings.MaxAttempts)
	require.Equal(t, cfg.Delivery.RetryDelay, settings.RetryDelay)
	require.Equal(t, cfg.Delivery.Source, settings.Source)
}
