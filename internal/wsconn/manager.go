package wsconn

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/solpulse/ingest/infrastructure/logging"
	"github.com/solpulse/ingest/infrastructure/metrics"
	"github.com/solpulse/ingest/infrastructure/redaction"
	"github.com/solpulse/ingest/infrastructure/resilience"
	"github.com/solpulse/ingest/internal/model"
)

// Outcome is the structured result of EnsureConnection's public boundary.
// Internal transient failures are retried and translated into one of these;
// they are never returned to the caller as raw exceptions.
type Outcome string

const (
	OutcomeOK          Outcome = "ok"
	OutcomeNoEndpoint  Outcome = "no_endpoint"
	OutcomeCircuitOpen Outcome = "circuit_open"
	OutcomeTimeout     Outcome = "timeout"
	OutcomeHandshake   Outcome = "handshake"
)

// Error wraps an Outcome other than OutcomeOK as an error value.
type Error struct {
	Outcome Outcome
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("wsconn: %s: %v", e.Outcome, e.Cause)
	}
	return fmt.Sprintf("wsconn: %s", e.Outcome)
}

func (e *Error) Unwrap() error { return e.Cause }

// Config configures a Manager.
type Config struct {
	ConnectTimeout        time.Duration
	PingInterval          time.Duration
	PingTimeout           time.Duration
	MaxMessageSize        int64
	MaxRetriesPerEndpoint int
	MaxEndpointFailures   int
	EndpointFailureReset  time.Duration
	CircuitMaxFailures    int
	CircuitResetAfter     time.Duration
}

// DefaultConfig returns the socket parameter defaults from spec §4.1.
func DefaultConfig() Config {
	return Config{
		ConnectTimeout:        30 * time.Second,
		PingInterval:          20 * time.Second,
		PingTimeout:           20 * time.Second,
		MaxMessageSize:        10 * 1024 * 1024,
		MaxRetriesPerEndpoint: 3,
		MaxEndpointFailures:   3,
		EndpointFailureReset:  300 * time.Second,
		CircuitMaxFailures:    5,
		CircuitResetAfter:     2 * time.Minute,
	}
}

// Manager owns every open Connection and its Endpoint state exclusively;
// other components only interact through EnsureConnection/Close/Metrics/
// HealthCheck.
type Manager struct {
	cfg    Config
	logger *logging.Logger
	prom   *metrics.Metrics
	dial   func(url string, header http.Header) (*websocket.Conn, *http.Response, error)

	mu          sync.Mutex
	connections map[string]*Connection
	endpoints   map[string]*EndpointPool
	breakers    map[string]*resilience.CircuitBreaker

	recentFailuresMu sync.Mutex
	recentFailures   []time.Time
}

// NewManager constructs a Manager. dialer may be nil to use
// websocket.DefaultDialer.Dial; tests inject a fake dialer.
func NewManager(cfg Config, logger *logging.Logger, prom *metrics.Metrics, dialer func(url string, header http.Header) (*websocket.Conn, *http.Response, error)) *Manager {
	if logger == nil {
		logger = logging.Default()
	}
	if dialer == nil {
		dialer = websocket.DefaultDialer.Dial
	}
	return &Manager{
		cfg:         cfg,
		logger:      logger,
		prom:        prom,
		dial:        dialer,
		connections: make(map[string]*Connection),
		endpoints:   make(map[string]*EndpointPool),
		breakers:    make(map[string]*resilience.CircuitBreaker),
	}
}

// RegisterEndpoints configures the primary/fallback WSS URLs for programID.
// Must be called before the first EnsureConnection for that program.
func (m *Manager) RegisterEndpoints(programID, primaryURL, fallbackURL string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.endpoints[programID] = NewEndpointPool(primaryURL, fallbackURL, m.cfg.MaxEndpointFailures, m.cfg.EndpointFailureReset)
}

// breakerFor lazily builds the per-program circuit breaker. A program whose
// EndpointPool has no fallback configured gets the strict preset; one with a
// fallback gets the lenient preset. The preset always supplies HalfOpenMax;
// its MaxFailures and Timeout are used only when Config.CircuitMaxFailures
// or Config.CircuitResetAfter is <= 0, so under DefaultConfig both kinds of
// program trip after 5 consecutive failures and reset after 2 minutes.
func (m *Manager) breakerFor(programID string) *resilience.CircuitBreaker {
	m.mu.Lock()
	defer m.mu.Unlock()
	cb, ok := m.breakers[programID]
	if ok {
		return cb
	}

	var preset resilience.Config
	if pool, ok := m.endpoints[programID]; ok && pool.HasFallback() {
		preset = resilience.LenientServiceCBConfig(m.logger)
	} else {
		preset = resilience.StrictServiceCBConfig(m.logger)
	}

	maxFailures := m.cfg.CircuitMaxFailures
	if maxFailures <= 0 {
		maxFailures = preset.MaxFailures
	}
	resetAfter := m.cfg.CircuitResetAfter
	if resetAfter <= 0 {
		resetAfter = preset.Timeout
	}

	cb = resilience.New(resilience.Config{
		MaxFailures: maxFailures,
		Timeout:     resetAfter,
		HalfOpenMax: preset.HalfOpenMax,
		OnStateChange: func(from, to resilience.State) {
			m.logger.LogCircuitBreakerTrip(context.Background(), programID, from.String(), to.String())
			if m.prom != nil {
				m.prom.SetCircuitBreakerState(programID, int(to))
			}
		},
	})
	m.breakers[programID] = cb
	return cb
}

// EnsureConnection reuses an existing open connection for programID if
// present, otherwise opens one against the currently active endpoint with
// retry/backoff and circuit-breaker protection.
func (m *Manager) EnsureConnection(ctx context.Context, programID string) (*Connection, error) {
	m.mu.Lock()
	if existing, ok := m.connections[programID]; ok && existing.State() == model.SocketOpen {
		m.mu.Unlock()
		return existing, nil
	}
	pool, ok := m.endpoints[programID]
	m.mu.Unlock()

	if !ok {
		return nil, &Error{Outcome: OutcomeNoEndpoint}
	}

	breaker := m.breakerFor(programID)
	if breaker.State() == resilience.StateOpen {
		return nil, &Error{Outcome: OutcomeCircuitOpen}
	}

	var conn *Connection
	retryCfg := resilience.RetryConfig{
		MaxAttempts:  m.cfg.MaxRetriesPerEndpoint,
		InitialDelay: 250 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		Jitter:       0.2,
	}

	err := breaker.Execute(ctx, func() error {
		return resilience.Retry(ctx, retryCfg, func() error {
			endpoint := pool.Active()
			start := time.Now()
			pool.RecordAttempt(endpoint.URL)

			dialCtx, cancel := context.WithTimeout(ctx, m.cfg.ConnectTimeout)
			defer cancel()

			c, dialErr := m.dialOne(dialCtx, programID, endpoint)
			if dialErr != nil {
				pool.RecordFailure(endpoint.URL)
				m.recordFailureForHealth()
				if m.prom != nil {
					m.prom.RecordConnectAttempt(programID, "failure")
				}
				m.logger.LogConnectionEvent(ctx, programID, redaction.MaskEndpointURL(endpoint.URL), "connect_failed", dialErr)
				return dialErr
			}

			pool.RecordSuccess(endpoint.URL)
			if m.prom != nil {
				m.prom.RecordConnectAttempt(programID, "success")
				m.prom.RecordHandshakeDuration(programID, time.Since(start))
				m.prom.SetConnectionActive(programID, true)
			}
			m.logger.LogConnectionEvent(ctx, programID, redaction.MaskEndpointURL(endpoint.URL), "connected", nil)
			conn = c
			return nil
		})
	})

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, &Error{Outcome: OutcomeTimeout, Cause: ctxErr}
		}
		if err == resilience.ErrCircuitOpen {
			return nil, &Error{Outcome: OutcomeCircuitOpen}
		}
		return nil, &Error{Outcome: OutcomeHandshake, Cause: err}
	}

	m.mu.Lock()
	m.connections[programID] = conn
	m.mu.Unlock()

	return conn, nil
}

func (m *Manager) dialOne(ctx context.Context, programID string, endpoint model.Endpoint) (*Connection, error) {
	header := http.Header{}
	conn, _, err := m.dial(endpoint.URL, header)
	if err != nil {
		return nil, err
	}
	conn.SetReadLimit(m.cfg.MaxMessageSize)

	c := newConnection(programID, endpoint, conn, m.cfg.PingInterval, m.cfg.PingTimeout)
	return c, nil
}

// Close idempotently closes the connection for programID, transitioning it
// to closed and draining any pending confirmations belonging to it via the
// caller-supplied onClose hook (typically subscription.Registry.DropForConnection).
func (m *Manager) Close(programID string, onClose func(programID string)) {
	m.mu.Lock()
	conn, ok := m.connections[programID]
	if ok {
		delete(m.connections, programID)
	}
	m.mu.Unlock()

	if !ok {
		return
	}
	conn.Close()
	if m.prom != nil {
		m.prom.SetConnectionActive(programID, false)
	}
	if onClose != nil {
		onClose(programID)
	}
}

// EndpointMetrics is a per-endpoint counter/derived-rate snapshot, per
// spec §4.1's metrics() contract: attempts, successes, failures,
// reconnections, hourly attempts/successes, and the derived success rates.
type EndpointMetrics struct {
	URL              string
	Role             model.EndpointRole
	Failures         int
	Active           bool
	Attempts         int
	Successes        int
	Reconnections    int
	HourlyAttempts   int
	HourlySuccesses  int
	SuccessRate      float64
	HourlySuccessRate float64
}

func newEndpointMetrics(ep model.Endpoint, pool *EndpointPool) EndpointMetrics {
	hourlyAttempts, hourlySuccesses := pool.HourlyCounts(ep.URL)
	m := EndpointMetrics{
		URL: ep.URL, Role: ep.Role, Failures: ep.Failures, Active: ep.Active,
		Attempts: ep.Attempts, Successes: ep.Successes, Reconnections: ep.Reconnections,
		HourlyAttempts: hourlyAttempts, HourlySuccesses: hourlySuccesses,
	}
	if ep.Attempts > 0 {
		m.SuccessRate = float64(ep.Successes) / float64(ep.Attempts)
	}
	if hourlyAttempts > 0 {
		m.HourlySuccessRate = float64(hourlySuccesses) / float64(hourlyAttempts)
	}
	return m
}

// MetricsSnapshot is the per-program-id connection metrics view.
type MetricsSnapshot struct {
	ProgramID string
	Primary   EndpointMetrics
	Fallback  *EndpointMetrics
	State     model.SocketState
}

// Metrics returns a snapshot of every tracked program's endpoint/connection
// state.
func (m *Manager) Metrics() []MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]MetricsSnapshot, 0, len(m.endpoints))
	for programID, pool := range m.endpoints {
		primary, fallback := pool.Snapshot()
		snap := MetricsSnapshot{
			ProgramID: programID,
			Primary:   newEndpointMetrics(primary, pool),
			State:     model.SocketClosed,
		}
		if fallback != nil {
			fm := newEndpointMetrics(*fallback, pool)
			snap.Fallback = &fm
		}
		if conn, ok := m.connections[programID]; ok {
			snap.State = conn.State()
		}
		out = append(out, snap)
	}
	return out
}

func (m *Manager) recordFailureForHealth() {
	m.recentFailuresMu.Lock()
	defer m.recentFailuresMu.Unlock()
	now := time.Now()
	m.recentFailures = append(m.recentFailures, now)
	cutoff := now.Add(-5 * time.Minute)
	kept := m.recentFailures[:0]
	for _, ts := range m.recentFailures {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	m.recentFailures = kept
}

func (m *Manager) recentFailureCount() int {
	m.recentFailuresMu.Lock()
	defer m.recentFailuresMu.Unlock()
	cutoff := time.Now().Add(-5 * time.Minute)
	count := 0
	for _, ts := range m.recentFailures {
		if ts.After(cutoff) {
			count++
		}
	}
	return count
}

// HealthCheck returns true iff at least one configured endpoint has an open
// connection (or no connections are required), and recent failures across
// all endpoints in the last 5 minutes are below 5.
func (m *Manager) HealthCheck() bool {
	m.mu.Lock()
	noConnectionsRequired := len(m.endpoints) == 0
	anyOpen := false
	for _, conn := range m.connections {
		if conn.State() == model.SocketOpen {
			anyOpen = true
			break
		}
	}
	m.mu.Unlock()

	if !noConnectionsRequired && !anyOpen {
		return false
	}
	return m.recentFailureCount() < 5
}
