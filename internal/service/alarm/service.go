package alarm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oshokin/alarm-relay/internal/delivery"
	domain "github.com/oshokin/alarm-relay/internal/domain/alarm"
	"github.com/oshokin/alarm-relay/internal/logger"
	"github.com/oshokin/alarm-relay/internal/queue"
	"github.com/oshokin/alarm-relay/internal/recent"
)

// DefaultRecentLimit is used by Recent when no positive limit is given.
const DefaultRecentLimit = 10

var (
	// ErrInvalidMaxAttempts is returned for a negative attempt count.
	ErrInvalidMaxAttempts = errors.New("max retry attempts must be at least 1")
	// ErrInvalidRetryDelay is returned for a negative retry delay.
	ErrInvalidRetryDelay = errors.New("retry delay must be positive")
)

// Settings are fixed for the lifetime of a Service.
type Settings struct {
	// EndpointURL receives the alarms. Empty disables the service.
	EndpointURL string
	// AuthToken is sent as a bearer token when set.
	AuthToken string
	// Enabled is the requested state; the service is enabled only if an endpoint is set too.
	Enabled bool
	// MaxAttempts per alarm, zero means delivery.DefaultMaxAttempts.
	MaxAttempts int
	// RetryDelay is the backoff base, zero means delivery.DefaultRetryDelay.
	RetryDelay time.Duration
	// RequestTimeout bounds each attempt, zero means delivery.DefaultRequestTimeout.
	RequestTimeout time.Duration
	// Source is stamped on every alarm, empty means domain.DefaultSource.
	Source string
}

// Stats is a point-in-time view of the service.
type Stats struct {
	Enabled bool `json:"enabled"`
	// Endpoint is nil while the service is disabled.
	Endpoint   *string `json:"endpoint"`
	Running    bool    `json:"running"`
	QueueDepth int     `json:"queue_depth"`
	// TotalDelivered is the number of records currently held by the recency
	// buffer, so it stops growing at the buffer capacity.
	TotalDelivered int `json:"total_delivered"`
	// LifetimeDelivered and LifetimeFailed count terminal outcomes since construction.
	LifetimeDelivered uint64 `json:"lifetime_delivered"`
	LifetimeFailed    uint64 `json:"lifetime_failed"`
}

// Service queues alarms and delivers them in the background.
type Service struct {
	settings Settings
	// enabled is derived once in New and never changes.
	enabled bool

	queue  *queue.Queue[*domain.Record]
	buffer *recent.Buffer
	engine *delivery.Engine
	now    func() time.Time

	delivered atomic.Uint64
	failed    atomic.Uint64

	// mu serializes Start and Stop.
	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// Option customizes a Service.
type Option func(*options)

type options struct {
	transport delivery.Transport
	hooks     []delivery.Hooks
	sleep     delivery.SleepFunc
	now       func() time.Time
	capacity  int
}

// WithTransport replaces the HTTP transport.
func WithTransport(transport delivery.Transport) Option {
	return func(o *options) {
		o.transport = transport
	}
}

// WithHooks adds delivery observers, e.g. metrics.
func WithHooks(hooks delivery.Hooks) Option {
	return func(o *options) {
		o.hooks = append(o.hooks, hooks)
	}
}

// WithSleep replaces the backoff sleeper.
func WithSleep(sleep delivery.SleepFunc) Option {
	return func(o *options) {
		o.sleep = sleep
	}
}

// WithClock replaces the clock used to stamp alarms.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithRecentCapacity overrides the recency buffer capacity.
func WithRecentCapacity(capacity int) Option {
	return func(o *options) {
		o.capacity = capacity
	}
}

// New validates settings and builds a stopped Service.
func New(ctx context.Context, settings Settings, opts ...Option) (*Service, error) {
	if settings.MaxAttempts < 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidMaxAttempts, settings.MaxAttempts)
	}

	if settings.RetryDelay < 0 {
		return nil, fmt.Errorf("%w: got %s", ErrInvalidRetryDelay, settings.RetryDelay)
	}

	o := &options{
		now:      time.Now,
		capacity: recent.DefaultCapacity,
	}

	for _, opt := range opts {
		opt(o)
	}

	if o.transport == nil {
		o.transport = delivery.NewHTTPTransport(nil)
	}

	if settings.Source == "" {
		settings.Source = domain.DefaultSource
	}

	s := &Service{
		settings: settings,
		enabled:  settings.Enabled && settings.EndpointURL != "",
		queue:    queue.New[*domain.Record](),
		buffer:   recent.New(o.capacity),
		now:      o.now,
	}

	counters := delivery.Hooks{
		OnDelivered: func(*domain.Record, int, time.Duration) { s.delivered.Add(1) },
		OnExhausted: func(*domain.Record, int) { s.failed.Add(1) },
	}

	s.engine = delivery.New(
		delivery.Config{
			EndpointURL:    settings.EndpointURL,
			AuthToken:      settings.AuthToken,
			MaxAttempts:    settings.MaxAttempts,
			RetryDelay:     settings.RetryDelay,
			RequestTimeout: settings.RequestTimeout,
		},
		o.transport,
		s.buffer,
		delivery.WithHooks(delivery.Merge(append([]delivery.Hooks{counters}, o.hooks...)...)),
		delivery.WithSleep(o.sleep),
	)

	switch {
	case s.enabled:
		logger.InfoKV(ctx, "Alarm service initialized", "endpoint", settings.EndpointURL)
	case settings.Enabled:
		logger.WarnKV(ctx, "Alarm service disabled: no endpoint configured")
	default:
		logger.Info(ctx, "Alarm service disabled")
	}

	return s, nil
}

// Enabled reports the derived enabled state.
func (s *Service) Enabled() bool {
	return s.enabled
}

// Submit queues an alarm for delivery and returns immediately.
// On a disabled service it does nothing. Only invalid input is reported;
// delivery problems never are.
func (s *Service) Submit(
	ctx context.Context,
	alarmType, message string,
	severity domain.Severity,
	metadata map[string]any,
) error {
	if !s.enabled {
		logger.DebugKV(ctx, "Alarm not sent (disabled)", "alarm_type", alarmType, "message", message)
		return nil
	}

	rec, err := domain.NewRecord(s.now(), alarmType, message, severity, metadata, s.settings.Source)
	if err != nil {
		return fmt.Errorf("build alarm: %w", err)
	}

	s.queue.Push(rec)
	logger.DebugKV(ctx, "Alarm queued", "alarm_id", rec.ID, "alarm_type", rec.Type, "message", rec.Message)

	return nil
}

// Start launches the delivery worker. It is a no-op when the service is
// disabled or already running. The worker keeps the logger of ctx but not its
// cancellation; use Stop to end it.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.enabled || s.cancel != nil {
		return
	}

	workerCtx, cancel := context.WithCancel(context.WithoutCancel(logger.WithName(ctx, "delivery")))
	done := make(chan struct{})

	s.cancel = cancel
	s.done = done

	go func() {
		defer close(done)

		if err := s.engine.Run(workerCtx, s.queue); err != nil {
			logger.ErrorKV(workerCtx, "Delivery worker failed", "error", err)
		}
	}()

	logger.Info(ctx, "Alarm service started")
}

// Stop cancels the worker and waits for it to exit. Queued alarms that were
// not delivered yet are abandoned. Calling Stop on a stopped service is a no-op.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		return
	}

	s.cancel()
	<-s.done

	s.cancel = nil
	s.done = nil

	logger.InfoKV(ctx, "Alarm service stopped", "abandoned", s.queue.Len())
}

// Running reports whether the worker is active.
func (s *Service) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.cancel != nil
}

// Flush waits until every submitted alarm is delivered or dropped, or ctx is done.
func (s *Service) Flush(ctx context.Context) error {
	if !s.enabled {
		return nil
	}

	if err := s.queue.Wait(ctx); err != nil {
		return fmt.Errorf("flush alarms: %w", err)
	}

	return nil
}

// Recent returns up to limit of the latest delivered alarms, oldest first.
// A non-positive limit means DefaultRecentLimit.
func (s *Service) Recent(limit int) []*domain.Record {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}

	return s.buffer.Last(limit)
}

// Stats returns the current counters.
func (s *Service) Stats() Stats {
	stats := Stats{
		Enabled:           s.enabled,
		Running:           s.Running(),
		QueueDepth:        s.queue.Len(),
		TotalDelivered:    s.buffer.Len(),
		LifetimeDelivered: s.delivered.Load(),
		LifetimeFailed:    s.failed.Load(),
	}

	if s.enabled {
		endpoint := s.settings.EndpointURL
		stats.Endpoint = &endpoint
	}

	return stats
}
