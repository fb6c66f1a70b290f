// Package events implements the Event Router and its specialized handlers
// (pool-creation, swap, account-update) that turn dispatcher output into
// validated BlockchainEvent values, falling through to Unhandled when no
// handler accepts a message. The priority-ordered handler list with a
// fallthrough default mirrors the teacher's EventListener.On/OnAny
// handler-list-plus-fallback shape in
// infrastructure/chain/listener_core.go, generalized from "contract event
// name string match" to "acceptance predicate returns bool".
package events

import (
	"sync"
	"time"

	"github.com/solpulse/ingest/infrastructure/logging"
	"github.com/solpulse/ingest/internal/dexparsers"
	"github.com/solpulse/ingest/internal/model"
)

// Handler is one specialized event handler in the router's priority list.
type Handler interface {
	// Name identifies the handler for statistics and the emitted event's
	// Handler field.
	Name() string
	// Accepts reports whether this handler claims the input. The first
	// handler in priority order whose Accepts returns true handles it.
	Accepts(in Input) bool
	// Handle produces the enriched BlockchainEvent. Called only after
	// Accepts returned true for the same Input.
	Handle(in Input) model.BlockchainEvent
}

// Input is the normalized payload the dispatcher hands to the router: a
// logs notification, an account notification, or anything else that needs
// routing.
type Input struct {
	Source         model.EventSource
	Timestamp      time.Time
	SubscriptionID *int64
	PoolAddress    string
	DexKind        model.DexKind
	Signature      string
	Slot           *uint64
	Logs           []string
	AccountData    []byte
	RawMessage     string
}

// Stats counts handler invocations by handler class and by resulting event
// type, as spec §4.4 requires of the shared router statistics.
type Stats struct {
	mu            sync.Mutex
	byHandler     map[string]int64
	byEventType   map[model.EventType]int64
}

func newStats() *Stats {
	return &Stats{byHandler: make(map[string]int64), byEventType: make(map[model.EventType]int64)}
}

func (s *Stats) record(handler string, eventType model.EventType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byHandler[handler]++
	s.byEventType[eventType]++
}

// Snapshot returns copies of both count maps.
func (s *Stats) Snapshot() (byHandler map[string]int64, byEventType map[model.EventType]int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byHandler = make(map[string]int64, len(s.byHandler))
	for k, v := range s.byHandler {
		byHandler[k] = v
	}
	byEventType = make(map[model.EventType]int64, len(s.byEventType))
	for k, v := range s.byEventType {
		byEventType[k] = v
	}
	return byHandler, byEventType
}

// Router applies its Handlers in priority order, first acceptor wins, and
// falls through to an Unhandled event when none accept.
type Router struct {
	Handlers []Handler
	Stats    *Stats
}

// NewRouter builds a Router with the three specialized handlers in the
// priority order spec §4.4 requires: pool-creation first, then swap, then
// account-update. logger may be nil.
func NewRouter(parsers *dexparsers.Registry, priceRecorder PriceRecorder, logger *logging.Logger) *Router {
	return &Router{
		Handlers: []Handler{
			NewPoolCreationHandler(logger),
			NewSwapHandler(parsers, priceRecorder),
			NewAccountUpdateHandler(parsers, priceRecorder),
		},
		Stats: newStats(),
	}
}

// PriceRecorder is the narrow interface the Swap/AccountUpdate handlers use
// to push blockchain-derived prices into the Price Aggregator without this
// package depending on the full price.Monitor type.
type PriceRecorder interface {
	RecordBlockchainPrice(mint string, price float64, dexKind model.DexKind, confidence float64)
}

// Route runs the Input through the handler priority list and returns the
// resulting event, which is always emittable (there is no terminal error
// state per spec §4.4's state machine).
func (r *Router) Route(in Input) model.BlockchainEvent {
	for _, h := range r.Handlers {
		if h.Accepts(in) {
			ev := h.Handle(in)
			ev.ProcessingTimestamp = time.Now()
			r.Stats.record(h.Name(), ev.EventType)
			return ev
		}
	}
	ev := unhandled(in, "no handler accepted the message")
	r.Stats.record("none", ev.EventType)
	return ev
}

func unhandled(in Input, reason string) model.BlockchainEvent {
	return model.BlockchainEvent{
		EventType:           model.EventUnhandled,
		Source:              in.Source,
		Timestamp:            timestampOrNow(in.Timestamp),
		ProcessingTimestamp: time.Now(),
		Handler:             "none",
		SubscriptionID:      in.SubscriptionID,
		PoolAddress:         in.PoolAddress,
		DexKind:             in.DexKind,
		Signature:           in.Signature,
		Slot:                in.Slot,
		Reason:              reason,
		RawMessage:          in.RawMessage,
	}
}

func timestampOrNow(ts time.Time) time.Time {
	if ts.IsZero() {
		return time.Now()
	}
	return ts
}

// sentinelPoolAddress substitutes for a malformed pool address in
// PoolCreation metadata rather than failing the event, per spec §4.4.
const sentinelPoolAddress = "11111111111111111111111111111111111111111"

// isValidPoolAddress is a coarse shape check: Solana base-58 addresses are
// 32-44 characters with no 0/O/I/l.
func isValidPoolAddress(addr string) bool {
	if len(addr) < 32 || len(addr) > 44 {
		return false
	}
	for _, c := range addr {
		if c == '0' || c == 'O' || c == 'I' || c == 'l' {
			return false
		}
	}
	return true
}

// isValidSignature rejects signatures shorter than 64 characters per spec
// §8's boundary behavior for PoolCreation metadata validation.
func isValidSignature(sig string) bool {
	return len(sig) >= 64
}

// deriveMintKey builds a stable synthetic mint key for price recording when
// the event carries a pool address but no explicit mint, mirroring the
// "pool_{addr[:8]}" / "swap_{sig[:8]}" convention the original price-
// recording call sites use.
func deriveMintKey(poolAddress, signature string) string {
	switch {
	case poolAddress != "":
		return "pool_" + truncate(poolAddress, 8)
	case signature != "":
		return "swap_" + truncate(signature, 8)
	default:
		return "unknown"
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
