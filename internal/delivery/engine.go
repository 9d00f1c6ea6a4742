package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	domain "github.com/oshokin/alarm-relay/internal/domain/alarm"
	"github.com/oshokin/alarm-relay/internal/logger"
	"github.com/oshokin/alarm-relay/internal/version"
)

const (
	// DefaultMaxAttempts is the number of attempts per record.
	DefaultMaxAttempts = 3
	// DefaultRetryDelay is the delay before the first retry; it doubles afterwards.
	DefaultRetryDelay = 2 * time.Second
	// DefaultRequestTimeout bounds every single attempt.
	DefaultRequestTimeout = 10 * time.Second
)

// Outcome is the terminal state of one delivery cycle.
type Outcome int

// Delivery outcomes.
const (
	// OutcomeDelivered means the endpoint answered 2xx.
	OutcomeDelivered Outcome = iota + 1
	// OutcomeExhausted means every attempt failed and the record was dropped.
	OutcomeExhausted
	// OutcomeCanceled means the worker was stopped before a terminal state.
	OutcomeCanceled
)

// String returns a label suitable for logs and metrics.
func (o Outcome) String() string {
	switch o {
	case OutcomeDelivered:
		return "delivered"
	case OutcomeExhausted:
		return "exhausted"
	case OutcomeCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Config describes the single delivery endpoint.
type Config struct {
	// EndpointURL receives a POST per attempt.
	EndpointURL string
	// AuthToken, if set, is sent as a bearer token.
	AuthToken string
	// MaxAttempts is the number of attempts per record, at least 1.
	MaxAttempts int
	// RetryDelay is the backoff base.
	RetryDelay time.Duration
	// RequestTimeout bounds each attempt.
	RequestTimeout time.Duration
}

// Recorder receives successfully delivered records.
type Recorder interface {
	Add(rec *domain.Record)
}

// Source yields records to deliver. Done is called once per popped record,
// after it was delivered, dropped or abandoned by cancellation.
type Source interface {
	Pop(ctx context.Context) (*domain.Record, error)
	Done()
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Engine delivers records sequentially with exponential backoff.
type Engine struct {
	cfg       Config
	transport Transport
	recorder  Recorder
	hooks     Hooks
	sleep     SleepFunc
}

// Option configures an Engine.
type Option func(*Engine)

// WithHooks installs outcome callbacks.
func WithHooks(hooks Hooks) Option {
	return func(e *Engine) {
		e.hooks = hooks
	}
}

// WithSleep replaces the backoff sleeper.
func WithSleep(sleep SleepFunc) Option {
	return func(e *Engine) {
		if sleep != nil {
			e.sleep = sleep
		}
	}
}

// New creates an Engine. Zero values in cfg are replaced by the package defaults.
func New(cfg Config, transport Transport, recorder Recorder, opts ...Option) *Engine {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}

	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}

	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}

	e := &Engine{
		cfg:       cfg,
		transport: transport,
		recorder:  recorder,
		sleep:     sleepContext,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Backoff returns the delay after the failed attempt with 0-based index attempt:
// base, 2*base, 4*base and so on, saturating instead of overflowing.
func Backoff(base time.Duration, attempt int) time.Duration {
	if attempt <= 0 {
		return base
	}

	if attempt >= 63 || base > math.MaxInt64>>attempt {
		return time.Duration(math.MaxInt64)
	}

	return base << attempt
}

// Run pops records from src and delivers them one by one until ctx is done.
// Cancellation is the normal way to stop and is not returned as an error.
func (e *Engine) Run(ctx context.Context, src Source) error {
	logger.Info(ctx, "Delivery worker started")

	for {
		rec, err := src.Pop(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logger.Info(ctx, "Delivery worker stopped")
				return nil
			}

			return fmt.Errorf("pop alarm: %w", err)
		}

		outcome := e.deliverSafely(ctx, rec)
		src.Done()

		if outcome == OutcomeCanceled {
			logger.InfoKV(ctx, "Delivery worker stopped, in-flight alarm abandoned", "alarm_id", rec.ID)
			return nil
		}
	}
}

// deliverSafely keeps a panicking transport from killing the worker.
func (e *Engine) deliverSafely(ctx context.Context, rec *domain.Record) (outcome Outcome) {
	defer func() {
		if r := recover(); r != nil {
			logger.ErrorKV(ctx, "Alarm delivery panicked", "alarm_id", rec.ID, "panic", r)
			e.hooks.exhausted(rec, 0)

			outcome = OutcomeExhausted
		}
	}()

	return e.Deliver(ctx, rec)
}

// Deliver runs the full attempt cycle for rec and returns its terminal state.
func (e *Engine) Deliver(ctx context.Context, rec *domain.Record) Outcome {
	ctx = logger.WithKV(ctx, "alarm_id", rec.ID, "alarm_type", rec.Type)

	body, err := json.Marshal(rec)
	if err != nil {
		logger.ErrorKV(ctx, "Failed to encode alarm", "error", err)
		e.hooks.exhausted(rec, 0)

		return OutcomeExhausted
	}

	req := e.newRequest(body)
	started := time.Now()
	maxAttempts := e.cfg.MaxAttempts

	for attempt := range maxAttempts {
		if ctx.Err() != nil {
			return OutcomeCanceled
		}

		e.hooks.attempt(rec, attempt+1)

		resp, err := e.send(ctx, req)
		if err == nil && resp.OK() {
			e.recorder.Add(rec)
			logger.InfoKV(ctx, "Alarm delivered", "status", resp.StatusCode, "attempt", attempt+1)
			e.hooks.delivered(rec, attempt+1, time.Since(started))

			return OutcomeDelivered
		}

		if ctx.Err() != nil {
			return OutcomeCanceled
		}

		e.logFailure(ctx, attempt, resp, err)

		if attempt == maxAttempts-1 {
			break
		}

		delay := Backoff(e.cfg.RetryDelay, attempt)
		e.hooks.retry(rec, attempt+1, delay)

		if err := e.sleep(ctx, delay); err != nil {
			return OutcomeCanceled
		}
	}

	logger.ErrorKV(ctx, fmt.Sprintf("Failed to send alarm after %d attempts", maxAttempts),
		"message", rec.Message,
	)
	e.hooks.exhausted(rec, maxAttempts)

	return OutcomeExhausted
}

func (e *Engine) newRequest(body []byte) *Request {
	header := make(http.Header)
	header.Set("Content-Type", "application/json")
	header.Set("User-Agent", version.UserAgent())

	if e.cfg.AuthToken != "" {
		header.Set("Authorization", "Bearer "+e.cfg.AuthToken)
	}

	return &Request{
		Method: http.MethodPost,
		URL:    e.cfg.EndpointURL,
		Header: header,
		Body:   body,
	}
}

func (e *Engine) send(ctx context.Context, req *Request) (*Response, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, e.cfg.RequestTimeout)
	defer cancel()

	return e.transport.Send(attemptCtx, req)
}

func (e *Engine) logFailure(ctx context.Context, attempt int, resp *Response, err error) {
	progress := fmt.Sprintf("%d/%d", attempt+1, e.cfg.MaxAttempts)

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		logger.WarnKV(ctx, "Alarm send timeout", "attempt", progress, "timeout", e.cfg.RequestTimeout)
	case err != nil:
		logger.WarnKV(ctx, "Alarm send error", "attempt", progress, "error", err)
	default:
		logger.WarnKV(ctx, "Alarm send failed", "attempt", progress, "status", resp.StatusCode, "response", resp.Body)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
