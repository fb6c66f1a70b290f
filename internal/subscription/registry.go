// Package subscription implements the Subscription Registry: correlating
// client request-ids with server-assigned subscription-ids, and tracking
// what each live subscription is bound to (pool, dex kind, kind).
package subscription

import (
	"sync"
	"time"

	"github.com/solpulse/ingest/internal/model"
)

// ErrNotFound is returned by Resolve when no binding exists for a
// subscription-id — either it was never bound, or DropForConnection
// invalidated it.
var ErrNotFound = notFoundError{}

type notFoundError struct{}

func (notFoundError) Error() string { return "subscription: not found" }

// PendingConfirmation is the one-shot completion primitive for a single
// outbound subscribe request: exactly one completer (the dispatcher), one
// awaiter (the caller of EnsureConnection/Subscribe).
type PendingConfirmation struct {
	requestID int64
	programID string
	done      chan model.PendingOutcome
	once      sync.Once
}

// Wait blocks until the pending is completed or the timeout elapses,
// returning a synthetic Timeout outcome in the latter case.
func (p *PendingConfirmation) Wait(timeout time.Duration) model.PendingOutcome {
	select {
	case outcome := <-p.done:
		return outcome
	case <-time.After(timeout):
		return model.PendingOutcome{Kind: model.PendingError, ErrorInfo: "timeout"}
	}
}

type binding struct {
	poolAddress string
	dexKind     model.DexKind
	kind        model.SubscriptionKind
	programID   string
}

// Registry owns all live Subscriptions and PendingConfirmations for the
// process. It is the single logical owner named in the concurrency model;
// reads are lock-free where possible via sync.Map, writes take the registry
// lock only for the pending map (a fast, short critical section).
type Registry struct {
	mu       sync.Mutex
	pending  map[int64]*PendingConfirmation
	bindings sync.Map // subscription_id (int64) -> binding
	byConn   sync.Map // program_id (string) -> map[int64]struct{} (subscription ids)
}

// NewRegistry creates an empty Subscription Registry.
func NewRegistry() *Registry {
	return &Registry{
		pending: make(map[int64]*PendingConfirmation),
	}
}

// RegisterPending creates the one PendingConfirmation a subscribe request is
// guaranteed to have until it resolves or times out.
func (r *Registry) RegisterPending(requestID int64, programID string) *PendingConfirmation {
	p := &PendingConfirmation{requestID: requestID, programID: programID, done: make(chan model.PendingOutcome, 1)}
	r.mu.Lock()
	r.pending[requestID] = p
	r.mu.Unlock()
	return p
}

// CompletePending resolves the pending created for requestID. Unknown
// request-ids are a no-op (the dispatcher logs and drops per spec §4.3).
func (r *Registry) CompletePending(requestID int64, outcome model.PendingOutcome) bool {
	r.mu.Lock()
	p, ok := r.pending[requestID]
	if ok {
		delete(r.pending, requestID)
	}
	r.mu.Unlock()
	if !ok {
		return false
	}
	p.once.Do(func() {
		p.done <- outcome
		close(p.done)
	})
	return true
}

// Bind records what a newly confirmed subscription-id means. Per the
// invariant in spec §4.2, Bind is only ever called after
// CompletePending(success).
func (r *Registry) Bind(subscriptionID int64, poolAddress string, dexKind model.DexKind, kind model.SubscriptionKind, programID string) {
	r.bindings.Store(subscriptionID, binding{poolAddress: poolAddress, dexKind: dexKind, kind: kind, programID: programID})

	existing, _ := r.byConn.LoadOrStore(programID, &sync.Map{})
	existing.(*sync.Map).Store(subscriptionID, struct{}{})
}

// Resolve returns the binding for a subscription-id, or ErrNotFound.
func (r *Registry) Resolve(subscriptionID int64) (poolAddress string, dexKind model.DexKind, kind model.SubscriptionKind, err error) {
	v, ok := r.bindings.Load(subscriptionID)
	if !ok {
		return "", "", "", ErrNotFound
	}
	b := v.(binding)
	return b.poolAddress, b.dexKind, b.kind, nil
}

// DropForConnection invalidates every subscription bound to programID. It is
// called on reconnect: all prior subscriptions for that connection are
// invalidated and must be re-requested against the new socket.
func (r *Registry) DropForConnection(programID string) {
	v, ok := r.byConn.LoadAndDelete(programID)
	if !ok {
		return
	}
	ids := v.(*sync.Map)
	ids.Range(func(key, _ interface{}) bool {
		r.bindings.Delete(key)
		return true
	})

	// Drain outstanding pendings that belonged to this connection with a
	// synthetic cancellation outcome so awaiters do not block until timeout.
	r.mu.Lock()
	for reqID, p := range r.pending {
		if p.programID != programID {
			continue
		}
		p.once.Do(func() {
			p.done <- model.PendingOutcome{Kind: model.PendingError, ErrorInfo: "connection reset"}
			close(p.done)
		})
		delete(r.pending, reqID)
	}
	r.mu.Unlock()
}
