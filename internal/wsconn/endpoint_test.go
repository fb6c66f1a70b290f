package wsconn

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solpulse/ingest/internal/model"
)

func TestEndpointPoolFailsOverAfterMaxFailures(t *testing.T) {
	pool := NewEndpointPool("wss://primary", "wss://fallback", 3, 300*time.Second)

	active := pool.Active()
	require.Equal(t, "wss://primary", active.URL)

	pool.RecordFailure("wss://primary")
	pool.RecordFailure("wss://primary")
	active = pool.Active()
	assert.Equal(t, "wss://primary", active.URL, "below threshold still uses primary")

	pool.RecordFailure("wss://primary")
	active = pool.Active()
	assert.Equal(t, "wss://fallback", active.URL, "at threshold fails over")
}

func TestEndpointPoolSuccessResetsFailures(t *testing.T) {
	pool := NewEndpointPool("wss://primary", "wss://fallback", 2, 300*time.Second)
	pool.RecordFailure("wss://primary")
	pool.RecordFailure("wss://primary")
	require.Equal(t, "wss://fallback", pool.Active().URL)

	pool.RecordSuccess("wss://primary")
	assert.Equal(t, "wss://primary", pool.Active().URL)
}

func TestEndpointPoolDecaysFailuresAfterResetWindow(t *testing.T) {
	pool := NewEndpointPool("wss://primary", "", 1, 10*time.Millisecond)
	pool.RecordFailure("wss://primary")
	require.Equal(t, "wss://primary", pool.Active().URL, "no fallback configured, stays on primary")

	time.Sleep(20 * time.Millisecond)
	primary, _ := pool.Snapshot()
	_ = primary
	pool.Active() // triggers decay check
	p, _ := pool.Snapshot()
	assert.Equal(t, 0, p.Failures)
}

func TestEndpointPoolNoFallbackConfigured(t *testing.T) {
	pool := NewEndpointPool("wss://primary", "", 1, 300*time.Second)
	pool.RecordFailure("wss://primary")
	active := pool.Active()
	assert.Equal(t, "wss://primary", active.URL)
	assert.Equal(t, model.EndpointPrimary, active.Role)
}

func TestEndpointPoolTracksAttemptsSuccessesAndReconnections(t *testing.T) {
	pool := NewEndpointPool("wss://primary", "", 3, 300*time.Second)

	pool.RecordAttempt("wss://primary")
	pool.RecordSuccess("wss://primary")
	pool.RecordAttempt("wss://primary")
	pool.RecordSuccess("wss://primary")

	primary, _ := pool.Snapshot()
	assert.Equal(t, 2, primary.Attempts)
	assert.Equal(t, 2, primary.Successes)
	assert.Equal(t, 1, primary.Reconnections, "second success after the first is a reconnection")

	attempts, successes := pool.HourlyCounts("wss://primary")
	assert.Equal(t, 2, attempts)
	assert.Equal(t, 2, successes)
}

func TestEndpointPoolHasFallback(t *testing.T) {
	withFallback := NewEndpointPool("wss://primary", "wss://fallback", 3, 300*time.Second)
	assert.True(t, withFallback.HasFallback())

	withoutFallback := NewEndpointPool("wss://primary", "", 3, 300*time.Second)
	assert.False(t, withoutFallback.HasFallback())
}
