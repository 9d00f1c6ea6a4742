package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	domain "github.com/oshokin/alarm-relay/internal/domain/alarm"
	alarmsvc "github.com/oshokin/alarm-relay/internal/service/alarm"
)

type fixedStats alarmsvc.Stats

func (f fixedStats) Stats() alarmsvc.Stats {
	return alarmsvc.Stats(f)
}

// TestHooks_UpdateCounters drives every hook once.
func TestHooks_UpdateCounters(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := New(reg)
	h := m.Hooks()

	rec := &domain.Record{Type: "detection", Severity: domain.SeverityCritical}

	h.OnAttempt(rec, 1)
	h.OnRetry(rec, 1, time.Second)
	h.OnAttempt(rec, 2)
	h.OnDelivered(rec, 2, 3*time.Second)
	h.OnAttempt(rec, 1)
	h.OnExhausted(rec, 1)

	require.InDelta(t, 3, testutil.ToFloat64(m.AttemptsTotal), 0)
	require.InDelta(t, 1, testutil.ToFloat64(m.RetriesTotal), 0)
	require.InDelta(t, 1, testutil.ToFloat64(m.DeliveredTotal.WithLabelValues("critical")), 0)
	require.InDelta(t, 1, testutil.ToFloat64(m.ExhaustedTotal.WithLabelValues("critical")), 0)
	require.Equal(t, 2, testutil.CollectAndCount(m.AttemptsPerAlarm))
}

// TestRegisterService exposes the service gauges.
func TestRegisterService(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	RegisterService(reg, fixedStats{QueueDepth: 7, TotalDelivered: 3, Running: true})

	families, err := reg.Gather()
	require.NoError(t, err)

	got := make(map[string]float64, len(families))
	for _, f := range families {
		got[f.GetName()] = f.GetMetric()[0].GetGauge().GetValue()
	}

	require.Equal(t, map[string]float64{
		"alarm_relay_queue_depth":    7,
		"alarm_relay_recent_alarms":  3,
		"alarm_relay_worker_running": 1,
	}, got)
}
