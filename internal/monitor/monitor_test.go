package monitor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solpulse/ingest/internal/model"
)

func TestSampleRingEvictsOldest(t *testing.T) {
	r := newSampleRing(3)
	for i := 0; i < 5; i++ {
		r.Append(model.MetricSample{Value: float64(i)})
	}
	ordered := r.Ordered()
	require.Len(t, ordered, 3)
	assert.Equal(t, []float64{2, 3, 4}, []float64{ordered[0].Value, ordered[1].Value, ordered[2].Value})
}

func TestClassifyLiquidityMonotonic(t *testing.T) {
	assert.Equal(t, model.LiquidityVeryLow, model.ClassifyLiquidity(0.5, true))
	assert.Equal(t, model.LiquidityLow, model.ClassifyLiquidity(1, true))
	assert.Equal(t, model.LiquidityMedium, model.ClassifyLiquidity(10, true))
	assert.Equal(t, model.LiquidityHigh, model.ClassifyLiquidity(100, true))
	assert.Equal(t, model.LiquidityUnknown, model.ClassifyLiquidity(0, false))
}

func TestHistogramStatsPercentilesRequireFourSamples(t *testing.T) {
	m := New(nil, nil, Config{})
	m.RecordMetric("latency_ms", 10, nil, "x")
	m.RecordMetric("latency_ms", 20, nil, "x")
	m.RecordMetric("latency_ms", 30, nil, "x")

	stats := m.histogramStats()
	assert.Equal(t, 0.0, stats["latency_ms"].P50)

	m.RecordMetric("latency_ms", 40, nil, "x")
	stats = m.histogramStats()
	assert.Greater(t, stats["latency_ms"].P50, 0.0)
}

func TestThresholdAlertEscalatesAt1_5x(t *testing.T) {
	m := New(nil, nil, Config{Thresholds: map[string]float64{"message_processing_ms": 100}})
	for i := 0; i < 4; i++ {
		m.RecordMetric("message_processing_ms", 120, nil, "dispatch")
	}
	stats := m.histogramStats()
	alerts := m.evaluateAlerts(stats)
	require.Len(t, alerts, 1)
	assert.Equal(t, HealthWarning, alerts[0].Severity)

	m2 := New(nil, nil, Config{Thresholds: map[string]float64{"message_processing_ms": 100}})
	for i := 0; i < 4; i++ {
		m2.RecordMetric("message_processing_ms", 200, nil, "dispatch")
	}
	alerts2 := m2.evaluateAlerts(m2.histogramStats())
	require.Len(t, alerts2, 1)
	assert.Equal(t, HealthCritical, alerts2[0].Severity)
}

func TestAggregateHealthWorstWins(t *testing.T) {
	components := map[string]model.ComponentHealth{
		"a": {Status: model.HealthHealthy, LastUpdate: time.Now()},
		"b": {Status: model.HealthDegraded, LastUpdate: time.Now()},
	}
	assert.Equal(t, HealthWarning, aggregateHealth(components))

	components["c"] = model.ComponentHealth{Status: model.HealthUnhealthy, LastUpdate: time.Now()}
	assert.Equal(t, HealthCritical, aggregateHealth(components))
}

func TestAggregateHealthStaleIsWarning(t *testing.T) {
	components := map[string]model.ComponentHealth{
		"a": {Status: model.HealthHealthy, LastUpdate: time.Now().Add(-10 * time.Minute)},
	}
	assert.Equal(t, HealthWarning, aggregateHealth(components))
}

func TestComputeTrend(t *testing.T) {
	assert.Equal(t, TrendStable, computeTrend([]float64{10, 10, 10, 10}))
	assert.Equal(t, TrendIncreasing, computeTrend([]float64{10, 10, 20, 20}))
	assert.Equal(t, TrendDecreasing, computeTrend([]float64{20, 20, 10, 10}))
}

func TestMonitorCountersAndGauges(t *testing.T) {
	m := New(nil, nil, Config{})
	m.IncrementCounter("dropped_events", 1)
	m.IncrementCounter("dropped_events", 2)
	assert.Equal(t, 3.0, m.CounterValue("dropped_events"))

	m.SetGauge("active_connections", 4)
	assert.Equal(t, 4.0, m.GaugeValue("active_connections"))
}
