package subscription

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solpulse/ingest/internal/model"
)

func TestRoundTripConfirmationBindsExactlyOne(t *testing.T) {
	r := NewRegistry()
	p := r.RegisterPending(42, "prog-a")

	go func() {
		r.CompletePending(42, model.PendingOutcome{Kind: model.PendingSuccess, SubscriptionID: 7})
	}()

	outcome := p.Wait(time.Second)
	require.Equal(t, model.PendingSuccess, outcome.Kind)
	assert.Equal(t, int64(7), outcome.SubscriptionID)

	r.Bind(outcome.SubscriptionID, "PoolA", model.DexConstantProduct, model.SubscriptionLogs, "prog-a")
	pool, dex, kind, err := r.Resolve(7)
	require.NoError(t, err)
	assert.Equal(t, "PoolA", pool)
	assert.Equal(t, model.DexConstantProduct, dex)
	assert.Equal(t, model.SubscriptionLogs, kind)
}

func TestSpuriousConfirmationForUnknownRequestIsDropped(t *testing.T) {
	r := NewRegistry()
	ok := r.CompletePending(999, model.PendingOutcome{Kind: model.PendingSuccess, SubscriptionID: 1})
	assert.False(t, ok)
}

func TestDropForConnectionInvalidatesBindings(t *testing.T) {
	r := NewRegistry()
	r.Bind(11, "PoolA", model.DexConstantProduct, model.SubscriptionLogs, "prog-a")

	_, _, _, err := r.Resolve(11)
	require.NoError(t, err)

	r.DropForConnection("prog-a")

	_, _, _, err = r.Resolve(11)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDropForConnectionDrainsOnlyThatConnectionsPendings(t *testing.T) {
	r := NewRegistry()
	pA := r.RegisterPending(1, "prog-a")
	pB := r.RegisterPending(2, "prog-b")

	r.DropForConnection("prog-a")

	outcomeA := pA.Wait(10 * time.Millisecond)
	assert.Equal(t, model.PendingError, outcomeA.Kind)

	select {
	case <-pB.done:
		t.Fatal("prog-b pending should not have been drained")
	default:
	}

	r.CompletePending(2, model.PendingOutcome{Kind: model.PendingSuccess, SubscriptionID: 5})
	outcomeB := pB.Wait(time.Second)
	assert.Equal(t, model.PendingSuccess, outcomeB.Kind)
}

func TestConfirmationTimeout(t *testing.T) {
	r := NewRegistry()
	p := r.RegisterPending(1, "prog-a")
	outcome := p.Wait(10 * time.Millisecond)
	assert.Equal(t, model.PendingError, outcome.Kind)
	assert.Equal(t, "timeout", outcome.ErrorInfo)
}
