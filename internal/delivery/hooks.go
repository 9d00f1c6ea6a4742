package delivery

import (
	"time"

	domain "github.com/oshokin/alarm-relay/internal/domain/alarm"
)

// Hooks observe delivery progress. Every field is optional.
// Callbacks run on the worker goroutine and must not block.
type Hooks struct {
	// OnAttempt fires before each attempt; attempt is 1-based.
	OnAttempt func(rec *domain.Record, attempt int)
	// OnRetry fires after a failed attempt that will be retried after delay.
	OnRetry func(rec *domain.Record, attempt int, delay time.Duration)
	// OnDelivered fires once the endpoint accepted the record.
	OnDelivered func(rec *domain.Record, attempts int, elapsed time.Duration)
	// OnExhausted fires when the record is dropped.
	OnExhausted func(rec *domain.Record, attempts int)
}

func (h Hooks) attempt(rec *domain.Record, attempt int) {
	if h.OnAttempt != nil {
		h.OnAttempt(rec, attempt)
	}
}

func (h Hooks) retry(rec *domain.Record, attempt int, delay time.Duration) {
	if h.OnRetry != nil {
		h.OnRetry(rec, attempt, delay)
	}
}

func (h Hooks) delivered(rec *domain.Record, attempts int, elapsed time.Duration) {
	if h.OnDelivered != nil {
		h.OnDelivered(rec, attempts, elapsed)
	}
}

func (h Hooks) exhausted(rec *domain.Record, attempts int) {
	if h.OnExhausted != nil {
		h.OnExhausted(rec, attempts)
	}
}

// Merge returns Hooks that call every non-nil callback of each hs in order.
func Merge(hs ...Hooks) Hooks {
	return Hooks{
		OnAttempt: func(rec *domain.Record, attempt int) {
			for _, h := range hs {
				h.attempt(rec, attempt)
			}
		},
		OnRetry: func(rec *domain.Record, attempt int, delay time.Duration) {
			for _, h := range hs {
				h.retry(rec, attempt, delay)
			}
		},
		OnDelivered: func(rec *domain.Record, attempts int, elapsed time.Duration) {
			for _, h := range hs {
				h.delivered(rec, attempts, elapsed)
			}
		},
		OnExhausted: func(rec *domain.Record, attempts int) {
			for _, h := range hs {
				h.exhausted(rec, attempts)
			}
		},
	}
}
