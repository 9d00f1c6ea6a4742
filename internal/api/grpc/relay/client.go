package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oshokin/alarm-relay/internal/config"
	domain "github.com/oshokin/alarm-relay/internal/domain/alarm"
)

// Client calls the AlarmRelay service of a running relay.
type Client struct {
	// conn is the underlying gRPC connection.
	conn *grpc.ClientConn
	// callTimeout is the default timeout for individual RPC calls.
	callTimeout time.Duration
	// dialOptions are appended to the defaults when dialing.
	dialOptions []grpc.DialOption
}

// Option configures client behaviour.
type Option func(*Client)

// WithCallTimeout sets a default timeout for service calls.
func WithCallTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.callTimeout = timeout
		}
	}
}

// WithDialOptions passes extra options to grpc.NewClient.
func WithDialOptions(opts ...grpc.DialOption) Option {
	return func(c *Client) {
		c.dialOptions = append(c.dialOptions, opts...)
	}
}

// Alarm is one alarm sent through the client.
type Alarm struct {
	Type     string
	Message  string
	Severity domain.Severity
	Metadata map[string]any
}

// errAddressRequired is returned when a required address value is missing.
var errAddressRequired = errors.New("address must be provided")

// Dial creates a client for the relay at address.
// Transport is plaintext; run it on a trusted network or behind a TLS proxy.
func Dial(_ context.Context, address string, opts ...Option) (*Client, error) {
	if address == "" {
		return nil, errAddressRequired
	}

	client := &Client{
		callTimeout: config.DefaultTimeout,
	}

	for _, opt := range opts {
		opt(client)
	}

	dialOptions := append(
		[]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())},
		client.dialOptions...,
	)

	conn, err := grpc.NewClient(address, dialOptions...)
	if err != nil {
		return nil, fmt.Errorf("dial alarm relay: %w", err)
	}

	client.conn = conn

	return client, nil
}

// Close releases the underlying gRPC connection.
func (c *Client) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}

	return c.conn.Close()
}

// Submit queues an alarm on the remote relay.
func (c *Client) Submit(ctx context.Context, alarm *Alarm) error {
	fields := map[string]any{
		"type":     alarm.Type,
		"message":  alarm.Message,
		"severity": string(alarm.Severity),
	}

	if len(alarm.Metadata) > 0 {
		fields["metadata"] = alarm.Metadata
	}

	req, err := structpb.NewStruct(fields)
	if err != nil {
		return fmt.Errorf("encode alarm: %w", err)
	}

	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	if err := c.conn.Invoke(callCtx, SubmitMethod, req, new(emptypb.Empty)); err != nil {
		return fmt.Errorf("submit alarm: %w", err)
	}

	return nil
}

// Stats fetches the remote service stats as a plain map.
func (c *Client) Stats(ctx context.Context) (map[string]any, error) {
	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	resp := new(structpb.Struct)
	if err := c.conn.Invoke(callCtx, StatsMethod, new(emptypb.Empty), resp); err != nil {
		return nil, fmt.Errorf("get stats: %w", err)
	}

	return resp.AsMap(), nil
}

// callContext returns a context with the client's call timeout if configured,
// otherwise a cancellable child context without a deadline.
func (c *Client) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.callTimeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, c.callTimeout)
}
