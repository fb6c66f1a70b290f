package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solpulse/ingest/internal/dexparsers"
	"github.com/solpulse/ingest/internal/events"
	"github.com/solpulse/ingest/internal/model"
	"github.com/solpulse/ingest/internal/subscription"
)

type fakeFrameSource struct {
	programID string
	ch        chan []byte
}

func newFakeFrameSource(programID string) *fakeFrameSource {
	return &fakeFrameSource{programID: programID, ch: make(chan []byte, 16)}
}

func (f *fakeFrameSource) ProgramIdentifier() string  { return f.programID }
func (f *fakeFrameSource) Frames() <-chan []byte      { return f.ch }
func (f *fakeFrameSource) push(raw string)            { f.ch <- []byte(raw) }
func (f *fakeFrameSource) closeChannel()              { close(f.ch) }

func newTestDispatcher(sink *Sink) (*Dispatcher, *subscription.Registry) {
	reg := subscription.NewRegistry()
	parsers := dexparsers.NewDefaultRegistry()
	router := events.NewRouter(parsers, nil, nil)
	d := NewDispatcher(reg, parsers, router, sink, nil, nil)
	return d, reg
}

// TestRoundTripConfirmationThenLogsNotificationEmitsSwap exercises the full
// chain from spec §8 scenario S1: subscribe, confirm, then a swap-bearing
// logs notification reaches the sink as an Swap event.
func TestRoundTripConfirmationThenLogsNotificationEmitsSwap(t *testing.T) {
	sink := NewSink(16, nil)
	d, reg := newTestDispatcher(sink)

	pending := reg.RegisterPending(1, "prog-a")
	source := newFakeFrameSource("prog-a")

	go d.Run(context.Background(), source)

	source.push(`{"jsonrpc":"2.0","id":1,"result":555}`)

	outcome := pending.Wait(time.Second)
	require.Equal(t, model.PendingSuccess, outcome.Kind)
	reg.Bind(outcome.SubscriptionID, "PoolXYZ", model.DexConstantProduct, model.SubscriptionLogs, "prog-a")

	source.push(`{"jsonrpc":"2.0","method":"logsNotification","params":{"subscription":555,"result":{"context":{"slot":42},"value":{"signature":"sig1","logs":["Program log: instruction: Swap","Program log: amount_in=100","Program log: amount_out=50","Program log: price=0.5"]}}}}`)

	require.Eventually(t, func() bool { return sink.Depth() > 0 }, time.Second, 5*time.Millisecond)

	drained := sink.Drain()
	require.Len(t, drained, 1)
	assert.Equal(t, model.EventSwap, drained[0].EventType)
	assert.Equal(t, "PoolXYZ", drained[0].PoolAddress)

	source.closeChannel()
}

func TestUnresolvedSubscriptionLogsNotificationIsDroppedNotCrashed(t *testing.T) {
	sink := NewSink(16, nil)
	d, _ := newTestDispatcher(sink)
	source := newFakeFrameSource("prog-a")

	go d.Run(context.Background(), source)

	source.push(`{"jsonrpc":"2.0","method":"logsNotification","params":{"subscription":999,"result":{"context":{"slot":1},"value":{"signature":"s","logs":["x"]}}}}`)

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, sink.Depth())
	source.closeChannel()
}

func TestMalformedFrameIsCountedAndLoopContinues(t *testing.T) {
	sink := NewSink(16, nil)
	d, reg := newTestDispatcher(sink)
	source := newFakeFrameSource("prog-a")

	go d.Run(context.Background(), source)

	source.push(`not json at all`)
	reg.Bind(42, "PoolA", model.DexConstantProduct, model.SubscriptionLogs, "prog-a")
	source.push(`{"jsonrpc":"2.0","method":"logsNotification","params":{"subscription":42,"result":{"context":{"slot":1},"value":{"signature":"s","logs":["Program log: instruction: Swap","Program log: price=1.0"]}}}}`)

	require.Eventually(t, func() bool { return sink.Depth() > 0 }, time.Second, 5*time.Millisecond)
	assert.GreaterOrEqual(t, d.ParseFailureCount(), int64(1))
	source.closeChannel()
}
