package dispatch

import (
	"sync"

	"github.com/solpulse/ingest/infrastructure/metrics"
	"github.com/solpulse/ingest/internal/model"
)

// defaultHighWaterMark is the sink depth at which backpressure kicks in
// when NewSink is given no positive high-water-mark, per spec §5's
// "configurable high-water-mark".
const defaultHighWaterMark = 256

// Sink is the bounded downstream hand-off queue. Per spec §5, swap events
// drop the oldest/low-confidence entries once the queue exceeds its
// high-water mark; pool-creation events never drop and instead block the
// offending connection's read loop until room is available.
type Sink struct {
	mu           sync.Mutex
	events       []model.BlockchainEvent
	highWaterMark int
	prom         *metrics.Metrics

	notify chan struct{}
}

// NewSink constructs a Sink with the given high-water-mark. A value <= 0
// uses defaultHighWaterMark.
func NewSink(highWaterMark int, prom *metrics.Metrics) *Sink {
	if highWaterMark <= 0 {
		highWaterMark = defaultHighWaterMark
	}
	return &Sink{
		highWaterMark: highWaterMark,
		prom:          prom,
		notify:        make(chan struct{}, 1),
	}
}

func (s *Sink) wake() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Push enqueues event, applying the per-category backpressure policy from
// spec §5. It returns true if the event was enqueued (possibly after
// evicting an older low-priority entry), and false if it was dropped.
// Pool-creation events are never dropped by this call; the caller (the
// per-connection dispatch loop) is expected to retry/block on a full sink
// for that category rather than have Push silently succeed past the mark.
func (s *Sink) Push(event model.BlockchainEvent) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.events) < s.highWaterMark {
		s.events = append(s.events, event)
		s.wake()
		return true
	}

	if event.EventType == model.EventPoolCreation {
		// Caller must block; signal fullness by returning false without
		// dropping anything so the read loop can retry.
		return false
	}

	if idx, ok := s.findEvictionCandidate(); ok {
		s.events = append(s.events[:idx], s.events[idx+1:]...)
		s.events = append(s.events, event)
		if s.prom != nil {
			s.prom.RecordMessageDropped(string(event.EventType), "high_water_mark")
		}
		s.wake()
		return true
	}

	if s.prom != nil {
		s.prom.RecordMessageDropped(string(event.EventType), "high_water_mark")
	}
	return false
}

// findEvictionCandidate locates the oldest Unhandled entry, or else the
// lowest-confidence swap (the oldest among equal confidences), or else the
// oldest entry that is not a pool creation, to make room for a new event.
// Pool-creation entries are never chosen.
func (s *Sink) findEvictionCandidate() (int, bool) {
	for i, e := range s.events {
		if e.EventType == model.EventUnhandled {
			return i, true
		}
	}
	lowestIdx := -1
	lowestConfidence := 1.1
	for i, e := range s.events {
		if e.EventType != model.EventSwap || e.SwapInfo == nil {
			continue
		}
		if e.SwapInfo.ParsingConfidence < lowestConfidence {
			lowestConfidence = e.SwapInfo.ParsingConfidence
			lowestIdx = i
		}
	}
	if lowestIdx >= 0 {
		return lowestIdx, true
	}
	for i, e := range s.events {
		if e.EventType != model.EventPoolCreation {
			return i, true
		}
	}
	return 0, false
}

// Drain removes and returns every currently queued event, oldest first.
func (s *Sink) Drain() []model.BlockchainEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.events
	s.events = nil
	return out
}

// Depth returns the current queue length.
func (s *Sink) Depth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

// Wait returns a channel that receives a signal after Push enqueues an
// event (signals coalesce to at most one pending); the channel is never
// closed. Used by a consumer loop that wants to avoid busy-polling Drain.
func (s *Sink) Wait() <-chan struct{} {
	return s.notify
}
