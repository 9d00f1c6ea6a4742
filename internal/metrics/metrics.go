// Package metrics exposes delivery outcomes as Prometheus metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/oshokin/alarm-relay/internal/delivery"
	domain "github.com/oshokin/alarm-relay/internal/domain/alarm"
	alarmsvc "github.com/oshokin/alarm-relay/internal/service/alarm"
)

// Metrics holds Prometheus metrics for the delivery pipeline.
type Metrics struct {
	AttemptsTotal    prometheus.Counter
	RetriesTotal     prometheus.Counter
	DeliveredTotal   *prometheus.CounterVec
	ExhaustedTotal   *prometheus.CounterVec
	DeliveryDuration prometheus.Histogram
	AttemptsPerAlarm *prometheus.HistogramVec
}

// New registers and returns delivery metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		AttemptsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "alarm_relay_delivery_attempts_total",
			Help: "Total delivery attempts, including retries.",
		}),
		RetriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "alarm_relay_delivery_retries_total",
			Help: "Failed attempts that were followed by a backoff and another attempt.",
		}),
		DeliveredTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "alarm_relay_alarms_delivered_total",
			Help: "Alarms accepted by the endpoint, by severity.",
		}, []string{"severity"}),
		ExhaustedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "alarm_relay_alarms_exhausted_total",
			Help: "Alarms dropped after all attempts failed, by severity.",
		}, []string{"severity"}),
		DeliveryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "alarm_relay_delivery_duration_seconds",
			Help:    "Time from the first attempt to a successful delivery, backoff included.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14), // 10ms .. ~80s
		}),
		AttemptsPerAlarm: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "alarm_relay_attempts_per_alarm",
			Help:    "Attempts used per alarm, by outcome.",
			Buckets: prometheus.LinearBuckets(1, 1, 10), // 1 .. 10
		}, []string{"outcome"}),
	}

	reg.MustRegister(
		m.AttemptsTotal,
		m.RetriesTotal,
		m.DeliveredTotal,
		m.ExhaustedTotal,
		m.DeliveryDuration,
		m.AttemptsPerAlarm,
	)

	return m
}

// Hooks returns delivery hooks that update the metrics.
func (m *Metrics) Hooks() delivery.Hooks {
	return delivery.Hooks{
		OnAttempt: func(*domain.Record, int) {
			m.AttemptsTotal.Inc()
		},
		OnRetry: func(*domain.Record, int, time.Duration) {
			m.RetriesTotal.Inc()
		},
		OnDelivered: func(rec *domain.Record, attempts int, elapsed time.Duration) {
			m.DeliveredTotal.WithLabelValues(string(rec.Severity)).Inc()
			m.DeliveryDuration.Observe(elapsed.Seconds())
			m.AttemptsPerAlarm.WithLabelValues(delivery.OutcomeDelivered.String()).Observe(float64(attempts))
		},
		OnExhausted: func(rec *domain.Record, attempts int) {
			m.ExhaustedTotal.WithLabelValues(string(rec.Severity)).Inc()
			m.AttemptsPerAlarm.WithLabelValues(delivery.OutcomeExhausted.String()).Observe(float64(attempts))
		},
	}
}

// StatsSource is what RegisterService samples on every scrape.
type StatsSource interface {
	Stats() alarmsvc.Stats
}

// RegisterService adds gauges sampled from svc at scrape time.
func RegisterService(reg prometheus.Registerer, svc StatsSource) {
	reg.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "alarm_relay_queue_depth",
			Help: "Alarms waiting for the delivery worker.",
		}, func() float64 {
			return float64(svc.Stats().QueueDepth)
		}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "alarm_relay_recent_alarms",
			Help: "Delivered alarms currently retained for introspection.",
		}, func() float64 {
			return float64(svc.Stats().TotalDelivered)
		}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "alarm_relay_worker_running",
			Help: "1 while the delivery worker is running.",
		}, func() float64 {
			if svc.Stats().Running {
				return 1
			}

			return 0
		}),
	)
}
