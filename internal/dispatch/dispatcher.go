package dispatch

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/solpulse/ingest/infrastructure/logging"
	"github.com/solpulse/ingest/infrastructure/metrics"
	"github.com/solpulse/ingest/internal/dexparsers"
	"github.com/solpulse/ingest/internal/events"
	"github.com/solpulse/ingest/internal/model"
	"github.com/solpulse/ingest/internal/subscription"
)

// FrameSource is the narrow view of wsconn.Connection the Dispatcher reads
// from: a channel of raw frames plus the program-id they belong to, so this
// package never imports wsconn directly.
type FrameSource interface {
	ProgramIdentifier() string
	Frames() <-chan []byte
}

// PriceRecorder is the narrow interface the dispatcher hands to the Event
// Router; price.Monitor satisfies it.
type PriceRecorder = events.PriceRecorder

// Dispatcher wires the Subscription Registry, DEX Parsers (via the Event
// Router), and the bounded Sink together behind one sequential per-
// connection consume loop, per spec §4.3/§5.
type Dispatcher struct {
	registry *subscription.Registry
	parsers  *dexparsers.Registry
	router   *events.Router
	sink     *Sink
	logger   *logging.Logger
	prom     *metrics.Metrics

	unknownCount      atomic.Int64
	parseFailureCount atomic.Int64
}

// NewDispatcher constructs a Dispatcher. logger/prom may be nil.
func NewDispatcher(registry *subscription.Registry, parsers *dexparsers.Registry, router *events.Router, sink *Sink, logger *logging.Logger, prom *metrics.Metrics) *Dispatcher {
	if logger == nil {
		logger = logging.Default()
	}
	return &Dispatcher{registry: registry, parsers: parsers, router: router, sink: sink, logger: logger, prom: prom}
}

// Run consumes source.Frames() sequentially until the channel closes or ctx
// is cancelled, preserving per-connection ordering per spec §4.3/§5. It is
// intended to be launched as the single dispatch goroutine per connection.
func (d *Dispatcher) Run(ctx context.Context, source FrameSource) {
	programID := source.ProgramIdentifier()
	frames := source.Frames()
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-frames:
			if !ok {
				return
			}
			d.handleFrame(ctx, programID, raw)
		}
	}
}

// handleFrame classifies and routes a single raw frame. Parse/validation
// failures are counted and logged; the loop never terminates on a single
// bad message, per spec §4.3.
func (d *Dispatcher) handleFrame(ctx context.Context, programID string, raw []byte) {
	frame, err := Classify(raw)
	if err != nil {
		d.parseFailureCount.Add(1)
		if d.prom != nil {
			d.prom.RecordError("dispatch", "classify")
		}
		d.logger.LogParseFailure(ctx, "unknown", "classify", err)
		return
	}

	if d.prom != nil {
		d.prom.RecordMessageReceived(programID, string(frame.Kind))
	}

	switch frame.Kind {
	case FrameConfirmation:
		d.handleConfirmation(frame)
	case FrameError:
		d.handleError(frame)
	case FrameLogsNotification, FrameProgramNotification:
		d.handleLogsNotification(ctx, programID, frame, frame.Kind == FrameProgramNotification)
	case FrameAccountNotification:
		d.handleAccountNotification(ctx, programID, frame)
	default:
		d.unknownCount.Add(1)
		if d.prom != nil {
			d.prom.RecordMessageDropped("unknown", "unclassified_frame")
		}
		d.logger.Warn(ctx, "dropped unknown frame", map[string]interface{}{"program_id": programID})
	}
}

func (d *Dispatcher) handleConfirmation(frame Frame) {
	subID, err := confirmationSubscriptionID(frame.Result)
	if err != nil {
		d.parseFailureCount.Add(1)
		return
	}
	d.registry.CompletePending(frame.ID, model.PendingOutcome{Kind: model.PendingSuccess, SubscriptionID: subID})
}

func (d *Dispatcher) handleError(frame Frame) {
	info := errorInfo(frame.Error)
	if frame.HasID {
		if d.registry.CompletePending(frame.ID, model.PendingOutcome{Kind: model.PendingError, ErrorInfo: info}) {
			return
		}
	}
	d.logger.Warn(context.Background(), "upstream error response", map[string]interface{}{"info": info})
}

func (d *Dispatcher) handleLogsNotification(ctx context.Context, programID string, frame Frame, isProgram bool) {
	parsed, err := ParseLogsNotification(frame.Params)
	if err != nil {
		d.parseFailureCount.Add(1)
		if d.prom != nil {
			d.prom.RecordError("dispatch", "parse_logs_notification")
		}
		d.logger.LogParseFailure(ctx, "unknown", "parse_logs_notification", err)
		return
	}

	poolAddress, dexKind, kind, resolveErr := d.registry.Resolve(parsed.SubscriptionID)
	if resolveErr != nil {
		d.logger.Warn(ctx, "logs notification for unresolved subscription", map[string]interface{}{
			"subscription_id": parsed.SubscriptionID,
		})
		return
	}
	_ = kind

	source := model.SourceLogNotification
	if isProgram {
		source = model.SourceProgramNotification
	}

	in := events.Input{
		Source:         source,
		Timestamp:      time.Now(),
		SubscriptionID: &parsed.SubscriptionID,
		PoolAddress:    poolAddress,
		DexKind:        dexKind,
		Signature:      parsed.Signature,
		Slot:           &parsed.Slot,
		Logs:           parsed.Logs,
	}

	ev := d.router.Route(in)
	d.emit(ctx, programID, ev)
}

func (d *Dispatcher) handleAccountNotification(ctx context.Context, programID string, frame Frame) {
	parsed, err := ParseAccountNotification(frame.Params)
	if err != nil {
		d.parseFailureCount.Add(1)
		if d.prom != nil {
			d.prom.RecordError("dispatch", "parse_account_notification")
		}
		d.logger.LogParseFailure(ctx, "unknown", "parse_account_notification", err)
		return
	}

	poolAddress, dexKind, _, resolveErr := d.registry.Resolve(parsed.SubscriptionID)
	if resolveErr != nil {
		d.logger.Warn(ctx, "account notification for unresolved subscription", map[string]interface{}{
			"subscription_id": parsed.SubscriptionID,
		})
		return
	}
	if poolAddress == "" {
		poolAddress = parsed.Pubkey
	}

	in := events.Input{
		Source:         model.SourceAccountNotification,
		Timestamp:      time.Now(),
		SubscriptionID: &parsed.SubscriptionID,
		PoolAddress:    poolAddress,
		DexKind:        dexKind,
		Slot:           &parsed.Slot,
		AccountData:    parsed.AccountData,
	}

	ev := d.router.Route(in)
	d.emit(ctx, programID, ev)
}

// emit pushes ev to the bounded sink, applying the blocking retry for
// never-drop pool-creation events and logging/metering the outcome.
func (d *Dispatcher) emit(ctx context.Context, programID string, ev model.BlockchainEvent) {
	if d.prom != nil {
		d.prom.RecordEventEmitted(string(ev.EventType), string(ev.DexKind))
	}
	d.logger.LogEventEmitted(ctx, string(ev.EventType), string(ev.DexKind), ev.Signature)

	if d.sink == nil {
		return
	}

	if ok := d.sink.Push(ev); ok {
		return
	}

	if ev.EventType != model.EventPoolCreation {
		return
	}

	// Pool-creation events never drop: block the connection's read loop
	// (by blocking this dispatch goroutine, which is the same task) until
	// room opens or the context is cancelled, per spec §5.
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if d.sink.Push(ev) {
				return
			}
		}
	}
}

// UnknownFrameCount returns the running count of frames classified as
// FrameUnknown, for the System Monitor to surface.
func (d *Dispatcher) UnknownFrameCount() int64 { return d.unknownCount.Load() }

// ParseFailureCount returns the running count of frames that failed
// classification or notification decoding.
func (d *Dispatcher) ParseFailureCount() int64 { return d.parseFailureCount.Load() }
