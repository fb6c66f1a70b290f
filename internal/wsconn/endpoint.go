// Package wsconn implements the Connection Manager: resilient WebSocket
// sessions per upstream program-id with primary/fallback endpoint failover
// and per-program circuit breakers. Endpoint selection mirrors
// infrastructure/chain/rpcpool.go's RPCPool (priority-ordered failover with
// failure-count decay), adapted from polled-HTTP health to WebSocket
// session health.
package wsconn

import (
	"sync"
	"time"

	"github.com/solpulse/ingest/internal/model"
)

// EndpointPool tracks the primary/fallback WSS endpoints for one program-id
// subscription target and selects which is currently active.
type EndpointPool struct {
	mu                   sync.Mutex
	primary              *model.Endpoint
	fallback             *model.Endpoint
	maxFailures          int
	failureResetInterval time.Duration

	// hourly windows of attempt/success timestamps, keyed by endpoint URL,
	// pruned to the trailing hour on every read.
	hourlyAttempts  map[string][]time.Time
	hourlySuccesses map[string][]time.Time
}

// NewEndpointPool creates a pool. fallbackURL may be empty if no fallback is
// configured.
func NewEndpointPool(primaryURL, fallbackURL string, maxFailures int, failureResetInterval time.Duration) *EndpointPool {
	if maxFailures <= 0 {
		maxFailures = 3
	}
	if failureResetInterval <= 0 {
		failureResetInterval = 300 * time.Second
	}
	pool := &EndpointPool{
		primary:              &model.Endpoint{URL: primaryURL, Role: model.EndpointPrimary, Active: true},
		maxFailures:          maxFailures,
		failureResetInterval: failureResetInterval,
		hourlyAttempts:       make(map[string][]time.Time),
		hourlySuccesses:      make(map[string][]time.Time),
	}
	if fallbackURL != "" {
		pool.fallback = &model.Endpoint{URL: fallbackURL, Role: model.EndpointFallback, Active: true}
	}
	return pool
}

// decayLocked resets an endpoint's failure count to 0 if the reset window
// has elapsed since its last failure. Caller holds p.mu.
func (p *EndpointPool) decayLocked(ep *model.Endpoint) {
	if ep.Failures == 0 {
		return
	}
	if time.Since(ep.LastFailureTS) >= p.failureResetInterval {
		ep.Failures = 0
	}
}

// Active returns the endpoint to use for the next connection attempt: the
// primary unless its failure count has crossed maxFailures, in which case
// the fallback is used (if configured).
func (p *EndpointPool) Active() model.Endpoint {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.decayLocked(p.primary)
	if p.fallback != nil {
		p.decayLocked(p.fallback)
	}

	if p.primary.Failures < p.maxFailures || p.fallback == nil {
		return *p.primary
	}
	return *p.fallback
}

// RecordAttempt increments the attempt count of the endpoint matching url
// and its hourly attempt window, ahead of a connect attempt.
func (p *EndpointPool) RecordAttempt(url string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := time.Now()
	p.hourlyAttempts[url] = prune(append(p.hourlyAttempts[url], now), now)
	if p.primary.URL == url {
		p.primary.Attempts++
		return
	}
	if p.fallback != nil && p.fallback.URL == url {
		p.fallback.Attempts++
	}
}

// RecordSuccess resets the failure count of the endpoint matching url and
// records the success, counting it as a reconnection if this endpoint had
// already succeeded at least once before.
func (p *EndpointPool) RecordSuccess(url string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := time.Now()
	p.hourlySuccesses[url] = prune(append(p.hourlySuccesses[url], now), now)
	if p.primary.URL == url {
		p.primary.Failures = 0
		if p.primary.Successes > 0 {
			p.primary.Reconnections++
		}
		p.primary.Successes++
		return
	}
	if p.fallback != nil && p.fallback.URL == url {
		p.fallback.Failures = 0
		if p.fallback.Successes > 0 {
			p.fallback.Reconnections++
		}
		p.fallback.Successes++
	}
}

// RecordFailure increments the failure count of the endpoint matching url.
func (p *EndpointPool) RecordFailure(url string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := time.Now()
	if p.primary.URL == url {
		p.primary.Failures++
		p.primary.LastFailureTS = now
		return
	}
	if p.fallback != nil && p.fallback.URL == url {
		p.fallback.Failures++
		p.fallback.LastFailureTS = now
	}
}

// prune drops timestamps older than one hour from now.
func prune(timestamps []time.Time, now time.Time) []time.Time {
	cutoff := now.Add(-time.Hour)
	kept := timestamps[:0]
	for _, ts := range timestamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	return kept
}

// HourlyCounts returns the number of attempts and successes recorded for
// url within the trailing hour.
func (p *EndpointPool) HourlyCounts(url string) (attempts, successes int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := time.Now()
	p.hourlyAttempts[url] = prune(p.hourlyAttempts[url], now)
	p.hourlySuccesses[url] = prune(p.hourlySuccesses[url], now)
	return len(p.hourlyAttempts[url]), len(p.hourlySuccesses[url])
}

// HasFallback reports whether a fallback endpoint is configured.
func (p *EndpointPool) HasFallback() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fallback != nil
}

// Snapshot returns a copy of both endpoints' current state, for metrics.
func (p *EndpointPool) Snapshot() (primary model.Endpoint, fallback *model.Endpoint) {
	p.mu.Lock()
	defer p.mu.Unlock()
	primary = *p.primary
	if p.fallback != nil {
		fb := *p.fallback
		fallback = &fb
	}
	return primary, fallback
}
