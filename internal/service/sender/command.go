package sender

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/oshokin/alarm-relay/internal/api/grpc/relay"
	"github.com/oshokin/alarm-relay/internal/config"
	domain "github.com/oshokin/alarm-relay/internal/domain/alarm"
	"github.com/oshokin/alarm-relay/internal/logger"
)

// Options configures the send and stats commands.
type Options struct {
	// ConfigPath to YAML settings file. It is only read when ServerAddress is empty.
	ConfigPath string
	// ServerAddress of the relay gRPC API.
	ServerAddress string
	// Type of the alarm, required by Run.
	Type string
	// Message of the alarm.
	Message string
	// Severity of the alarm, empty means info.
	Severity string
	// Metadata holds key=value pairs. Values that parse as JSON keep their type.
	Metadata []string
	// Anonymous skips the hostname and username metadata.
	Anonymous bool
	// Timeout bounds the whole command, including reconnect attempts.
	Timeout time.Duration
}

// defaultPushInterval defines the delay between attempts while the relay is unavailable.
const defaultPushInterval = 1 * time.Second

var (
	// ErrInvalidMetadata is returned for a metadata flag without '='.
	ErrInvalidMetadata = errors.New("metadata must be key=value")
	// ErrUnknownSeverity is returned for a severity outside the documented set.
	ErrUnknownSeverity = errors.New("unknown severity")
)

// Run submits one alarm, retrying while the relay is unreachable.
func Run(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "alarm-relay-send")

	severity := domain.Severity(strings.ToLower(opts.Severity))
	if severity != "" && !severity.Known() {
		return fmt.Errorf("%w: %q", ErrUnknownSeverity, opts.Severity)
	}

	metadata, err := ParseMetadata(opts.Metadata)
	if err != nil {
		return err
	}

	if !opts.Anonymous {
		actor, err := DetectActor()
		if err != nil {
			return err
		}

		for k, v := range actor {
			if _, ok := metadata[k]; !ok {
				metadata[k] = v
			}
		}
	}

	address, err := resolveServerAddress(opts)
	if err != nil {
		return err
	}

	ctx, cancel := withTimeout(ctx, opts.Timeout)
	defer cancel()

	client, err := relay.Dial(ctx, address, relay.WithCallTimeout(opts.Timeout))
	if err != nil {
		return err
	}

	defer func() {
		_ = client.Close()
	}()

	alarm := &relay.Alarm{
		Type:     opts.Type,
		Message:  opts.Message,
		Severity: severity,
		Metadata: metadata,
	}

	logger.InfoKV(ctx, "Submitting alarm", "server_address", address, "alarm_type", alarm.Type)

	attempt := func() (bool, error) {
		err := client.Submit(ctx, alarm)
		switch {
		case err == nil:
			logger.InfoKV(ctx, "Alarm accepted", "alarm_type", alarm.Type, "severity", alarm.Severity)
			return true, nil
		case status.Code(err) == codes.Unavailable:
			logger.WarnKV(ctx, "Relay unavailable, retrying", "error", err)
			return false, nil
		default:
			return false, err
		}
	}

	if done, err := attempt(); err != nil || done {
		return err
	}

	ticker := time.NewTicker(defaultPushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("submit alarm: %w", ctx.Err())
		case <-ticker.C:
			if done, err := attempt(); err != nil || done {
				return err
			}
		}
	}
}

// Stats writes the relay stats to w as indented JSON.
func Stats(ctx context.Context, opts *Options, w io.Writer) error {
	address, err := resolveServerAddress(opts)
	if err != nil {
		return err
	}

	client, err := relay.Dial(ctx, address, relay.WithCallTimeout(opts.Timeout))
	if err != nil {
		return err
	}

	defer func() {
		_ = client.Close()
	}()

	stats, err := client.Stats(ctx)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	if err := enc.Encode(stats); err != nil {
		return fmt.Errorf("write stats: %w", err)
	}

	return nil
}

// ParseMetadata turns key=value pairs into a metadata map. A value that is
// valid JSON (number, bool, object, array, quoted string) is decoded,
// anything else is kept as a plain string.
func ParseMetadata(pairs []string) (map[string]any, error) {
	metadata := make(map[string]any, len(pairs))

	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("%w: %q", ErrInvalidMetadata, pair)
		}

		var value any
		if err := json.Unmarshal([]byte(raw), &value); err != nil {
			value = raw
		}

		metadata[key] = value
	}

	return metadata, nil
}

// resolveServerAddress picks the explicit address or derives one from the
// gRPC listen address in the settings file, dialing localhost for an empty host.
func resolveServerAddress(opts *Options) (string, error) {
	if opts.ServerAddress != "" {
		return opts.ServerAddress, nil
	}

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return "", fmt.Errorf("load settings: %w", err)
	}

	host, port, err := net.SplitHostPort(cfg.Listen.GRPCAddress)
	if err != nil {
		return "", fmt.Errorf("invalid listen address %q: %w", cfg.Listen.GRPCAddress, err)
	}

	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}

	return net.JoinHostPort(host, port), nil
}

// withTimeout bounds ctx when timeout is positive.
func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, timeout)
}
