package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/oshokin/alarm-relay/internal/api/grpc/relay"
	httpapi "github.com/oshokin/alarm-relay/internal/api/http"
	"github.com/oshokin/alarm-relay/internal/config"
	"github.com/oshokin/alarm-relay/internal/logger"
	"github.com/oshokin/alarm-relay/internal/metrics"
	alarmsvc "github.com/oshokin/alarm-relay/internal/service/alarm"
	"github.com/oshokin/alarm-relay/internal/version"
)

// Options controls the relay process and configuration.
type Options struct {
	// ConfigPath specifies the path to settings YAML file.
	ConfigPath string
	// GRPCAddress overrides listen.grpc_addr.
	GRPCAddress string
	// HTTPAddress overrides listen.http_addr.
	HTTPAddress string
	// LogLevel overrides log_level.
	LogLevel string
}

const (
	// shutdownTimeout bounds the HTTP drain on shutdown.
	shutdownTimeout = 10 * time.Second
	// readHeaderTimeout protects the HTTP listener from slow clients.
	readHeaderTimeout = 5 * time.Second
)

// ErrInvalidLogLevel is returned for an unknown log level.
var ErrInvalidLogLevel = errors.New("invalid log level")

// Run starts the relay and blocks until ctx is canceled or a listener fails.
func Run(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "alarm-relay")

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	applyOverrides(cfg, opts)

	level, ok := logger.ParseLogLevel(cfg.LogLevel)
	if !ok {
		return fmt.Errorf("%w: %q", ErrInvalidLogLevel, cfg.LogLevel)
	}

	logger.SetLevel(level)

	lc := net.ListenConfig{}

	grpcLis, err := lc.Listen(ctx, "tcp", cfg.Listen.GRPCAddress)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.Listen.GRPCAddress, err)
	}

	httpLis, err := lc.Listen(ctx, "tcp", cfg.Listen.HTTPAddress)
	if err != nil {
		_ = grpcLis.Close()
		return fmt.Errorf("listen on %s: %w", cfg.Listen.HTTPAddress, err)
	}

	logger.InfoKV(ctx, "Alarm relay starting",
		"version", version.Short(),
		"commit", version.Commit,
		"config", opts.ConfigPath)

	return Serve(ctx, cfg, grpcLis, httpLis)
}

// applyOverrides copies non-empty command line values over the file settings.
func applyOverrides(cfg *config.Config, opts *Options) {
	if opts.GRPCAddress != "" {
		cfg.Listen.GRPCAddress = opts.GRPCAddress
	}

	if opts.HTTPAddress != "" {
		cfg.Listen.HTTPAddress = opts.HTTPAddress
	}

	if opts.LogLevel != "" {
		cfg.LogLevel = opts.LogLevel
	}
}

// Serve runs the relay on the given listeners, which it takes ownership of.
// Extra service options are applied after the defaults.
func Serve(
	ctx context.Context,
	cfg *config.Config,
	grpcLis, httpLis net.Listener,
	opts ...alarmsvc.Option,
) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := metrics.New(reg)

	svc, err := alarmsvc.New(ctx, settingsFromConfig(cfg), append([]alarmsvc.Option{alarmsvc.WithHooks(m.Hooks())}, opts...)...)
	if err != nil {
		_ = grpcLis.Close()
		_ = httpLis.Close()

		return fmt.Errorf("initialise service: %w", err)
	}

	metrics.RegisterService(reg, svc)

	svc.Start(ctx)
	defer svc.Stop(ctx)

	healthServer := health.NewServer()
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(relay.ServiceName, servingStatus(svc))

	grpcServer := grpc.NewServer()
	relay.RegisterAlarmRelayServer(grpcServer, relay.NewServer(svc))
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	httpServer := &http.Server{
		Handler:           httpapi.New(svc, reg).Handler(ctx),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	logger.InfoKV(ctx, "Alarm relay listening",
		"grpc_address", grpcLis.Addr().String(),
		"http_address", httpLis.Addr().String(),
		"delivery_enabled", svc.Enabled())

	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		if err := grpcServer.Serve(grpcLis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("serve gRPC: %w", err)
		}

		return nil
	})

	eg.Go(func() error {
		if err := httpServer.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve HTTP: %w", err)
		}

		return nil
	})

	eg.Go(func() error {
		<-egCtx.Done()
		logger.Info(ctx, "Shutting down alarm relay")

		healthServer.Shutdown()
		grpcServer.GracefulStop()

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown HTTP: %w", err)
		}

		return nil
	})

	err = eg.Wait()

	logger.InfoKV(ctx, "Alarm relay stopped", "stats", svc.Stats())

	return err
}

// settingsFromConfig maps file settings onto the service settings.
func settingsFromConfig(cfg *config.Config) alarmsvc.Settings {
	return alarmsvc.Settings{
		EndpointURL:    cfg.Delivery.EndpointURL,
		AuthToken:      cfg.Delivery.Token(),
		Enabled:        cfg.Delivery.Enabled,
		MaxAttempts:    cfg.Delivery.MaxRetries,
		RetryDelay:     cfg.Delivery.RetryDelay,
		RequestTimeout: cfg.Delivery.RequestTimeout,
		Source:         cfg.Delivery.Source,
	}
}

// servingStatus maps the worker state onto the gRPC health status of the relay service.
func servingStatus(svc *alarmsvc.Service) healthpb.HealthCheckResponse_ServingStatus {
	if svc.Enabled() && !svc.Running() {
		return healthpb.HealthCheckResponse_NOT_SERVING
	}

	return healthpb.HealthCheckResponse_SERVING
}
