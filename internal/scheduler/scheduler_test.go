package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/smallbiznis/pantry/internal/clock"
	"github.com/smallbiznis/pantry/internal/lease"
	obsmetrics "github.com/smallbiznis/pantry/internal/observability/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestScheduler(t *testing.T, clk clock.Clock, l lease.Lease, jobs ...Job) *Scheduler {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	s, err := New(Params{Log: zap.NewNop(), GenID: node, Clock: clk, Lease: l, Jobs: jobs})
	require.NoError(t, err)
	return s
}

func TestRunOnceHonoursJobIntervals(t *testing.T) {
	restore := swapPrometheusRegistry(prometheus.NewRegistry())
	defer restore()

	clk := clock.NewFakeClock(time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC))
	var relayRuns, sweepRuns int
	s := newTestScheduler(t, clk, nil,
		Job{Name: "outbox_relay", Interval: 5 * time.Second, Run: func(context.Context) (int, error) {
			relayRuns++
			return 0, nil
		}},
		Job{Name: "stock_sweep", Interval: 15 * time.Second, Run: func(context.Context) (int, error) {
			sweepRuns++
			return 1, nil
		}},
	)

	require.NoError(t, s.RunOnce(context.Background()))
	assert.Equal(t, 1, relayRuns)
	assert.Equal(t, 1, sweepRuns)

	clk.Advance(4 * time.Second)
	require.NoError(t, s.RunOnce(context.Background()))
	assert.Equal(t, 1, relayRuns)

	clk.Advance(time.Second)
	require.NoError(t, s.RunOnce(context.Background()))
	assert.Equal(t, 2, relayRuns)
	assert.Equal(t, 1, sweepRuns)

	clk.Advance(10 * time.Second)
	require.NoError(t, s.RunOnce(context.Background()))
	assert.Equal(t, 3, relayRuns)
	assert.Equal(t, 2, sweepRuns)
}

func TestRunJobTimeoutDoesNotReturnErrorAndIncrementsTimeout(t *testing.T) {
	registry := prometheus.NewRegistry()
	restore := swapPrometheusRegistry(registry)
	defer restore()

	obsmetrics.JobsWithConfig(obsmetrics.Config{
		ServiceName: "inventory",
		Environment: "test",
	})

	s := newTestScheduler(t, clock.NewFakeClock(time.Time{}), nil)
	err := s.runJob(context.Background(), Job{
		Name:     "timeout_job",
		Interval: time.Second,
		Timeout:  5 * time.Millisecond,
		Run: func(ctx context.Context) (int, error) {
			<-ctx.Done()
			return 0, ctx.Err()
		},
	})
	require.NoError(t, err)

	labels := map[string]string{
		"service": "inventory",
		"env":     "test",
		"job":     "timeout_job",
	}
	assert.Equal(t, 1.0, getCounterValue(t, registry, "pantry_job_timeouts_total", labels))

	errorLabels := map[string]string{
		"service": "inventory",
		"env":     "test",
		"job":     "timeout_job",
		"reason":  obsmetrics.JobReasonDeadlineExceeded,
	}
	assert.Equal(t, 1.0, getCounterValue(t, registry, "pantry_job_errors_total", errorLabels))
}

func TestRunJobWrapsFailures(t *testing.T) {
	restore := swapPrometheusRegistry(prometheus.NewRegistry())
	defer restore()

	boom := errors.New("boom")
	s := newTestScheduler(t, clock.NewFakeClock(time.Time{}), nil)
	err := s.runJob(context.Background(), Job{
		Name:     "outbox_relay",
		Interval: time.Second,
		Run:      func(context.Context) (int, error) { return 0, boom },
	})
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "outbox_relay")
}

func TestRunJobSkipsWhenLeaseHeldElsewhere(t *testing.T) {
	registry := prometheus.NewRegistry()
	restore := swapPrometheusRegistry(registry)
	defer restore()
	obsmetrics.JobsWithConfig(obsmetrics.Config{ServiceName: "order", Environment: "test"})

	shared := lease.NewLocal()
	_, ok, err := shared.Acquire(context.Background(), "stock_sweep", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ran := false
	s := newTestScheduler(t, clock.NewFakeClock(time.Time{}), shared)
	err = s.runJob(context.Background(), Job{
		Name:     "stock_sweep",
		Interval: time.Second,
		Run: func(context.Context) (int, error) {
			ran = true
			return 0, nil
		},
	})
	require.NoError(t, err)
	assert.False(t, ran)
	assert.Equal(t, 1.0, getCounterValue(t, registry, "pantry_job_skipped_total", map[string]string{
		"service": "order",
		"env":     "test",
		"job":     "stock_sweep",
	}))
}

func TestNewRejectsJobWithoutInterval(t *testing.T) {
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	_, err = New(Params{
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clock.SystemClock{},
		Jobs:  []Job{{Name: "broken", Run: func(context.Context) (int, error) { return 0, nil }}},
	})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func swapPrometheusRegistry(registry *prometheus.Registry) func() {
	oldRegisterer := prometheus.DefaultRegisterer
	oldGatherer := prometheus.DefaultGatherer
	prometheus.DefaultRegisterer = registry
	prometheus.DefaultGatherer = registry
	obsmetrics.ResetJobMetricsForTest()
	return func() {
		prometheus.DefaultRegisterer = oldRegisterer
		prometheus.DefaultGatherer = oldGatherer
		obsmetrics.ResetJobMetricsForTest()
	}
}

func getCounterValue(t *testing.T, registry *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	metricFamilies, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metricFamilies {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.Metric {
			if !labelsMatch(metric, labels) {
				continue
			}
			if metric.Counter == nil {
				t.Fatalf("metric %s is not a counter", name)
			}
			return metric.GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func labelsMatch(metric *dto.Metric, labels map[string]string) bool {
	if len(metric.Label) != len(labels) {
		return false
	}
	for _, label := range metric.Label {
		if labels[label.GetName()] != label.GetValue() {
			return false
		}
	}
	return true
}
