package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solpulse/ingest/internal/dexparsers"
	"github.com/solpulse/ingest/internal/model"
)

type fakeRecorder struct {
	mint       string
	price      float64
	dexKind    model.DexKind
	confidence float64
	calls      int
}

func (f *fakeRecorder) RecordBlockchainPrice(mint string, price float64, dexKind model.DexKind, confidence float64) {
	f.mint = mint
	f.price = price
	f.dexKind = dexKind
	f.confidence = confidence
	f.calls++
}

func swapLogs(extra ...string) []string {
	logs := []string{"Program log: Instruction: Swap"}
	return append(logs, extra...)
}

func TestSwapHandlerAcceptsOnlyWhenParserRegistered(t *testing.T) {
	parsers := dexparsers.NewDefaultRegistry()
	h := NewSwapHandler(parsers, nil)

	assert.True(t, h.Accepts(Input{Source: model.SourceLogNotification, Logs: swapLogs(), DexKind: model.DexConstantProduct}))
	assert.False(t, h.Accepts(Input{Source: model.SourceLogNotification, Logs: swapLogs(), DexKind: model.DexUnknown}))
	assert.False(t, h.Accepts(Input{Source: model.SourceAccountNotification, Logs: swapLogs(), DexKind: model.DexConstantProduct}))
	assert.False(t, h.Accepts(Input{Source: model.SourceLogNotification, Logs: nil, DexKind: model.DexConstantProduct}))
}

func TestSwapHandlerEmitsSwapAndRecordsPrice(t *testing.T) {
	parsers := dexparsers.NewDefaultRegistry()
	recorder := &fakeRecorder{}
	h := NewSwapHandler(parsers, recorder)

	in := Input{
		Source:      model.SourceLogNotification,
		PoolAddress: "PoolXYZ",
		DexKind:     model.DexConstantProduct,
		Logs:        swapLogs("Program log: amount_in=100", "Program log: amount_out=50", "Program log: price=0.5"),
	}

	ev := h.Handle(in)

	require.Equal(t, model.EventSwap, ev.EventType)
	require.NotNil(t, ev.SwapInfo)
	require.NotNil(t, ev.Price)
	assert.Equal(t, 0.5, *ev.Price)
	require.NotNil(t, ev.VolumeInfo)
	assert.True(t, ev.VolumeInfo.IsEstimate)

	require.Equal(t, 1, recorder.calls)
	assert.Equal(t, 0.5, recorder.price)
	assert.Equal(t, model.DexConstantProduct, recorder.dexKind)
}

// TestSwapHandlerPrefersPriceOverPriceRatio exercises spec §4.4's stated
// preference order: swap_info.price wins over price_ratio when both are
// present.
func TestSwapHandlerPrefersPriceOverPriceRatio(t *testing.T) {
	parsers := dexparsers.NewDefaultRegistry()
	h := NewSwapHandler(parsers, nil)

	in := Input{
		Source:  model.SourceLogNotification,
		DexKind: model.DexConstantProduct,
		Logs:    swapLogs("Program log: price=0.5", "Program log: price_ratio=0.9"),
	}

	ev := h.Handle(in)
	require.NotNil(t, ev.Price)
	assert.Equal(t, 0.5, *ev.Price)
}

func TestSwapHandlerFallsBackToUnhandledWhenNoSwapFound(t *testing.T) {
	parsers := dexparsers.NewDefaultRegistry()
	h := NewSwapHandler(parsers, nil)

	ev := h.Handle(Input{Source: model.SourceLogNotification, DexKind: model.DexConstantProduct, Logs: []string{"Program log: nothing interesting"}})

	assert.Equal(t, model.EventUnhandled, ev.EventType)
	assert.Equal(t, "none", ev.Handler)
}

func TestSwapHandlerUnhandledWhenNoParserForDex(t *testing.T) {
	parsers := dexparsers.NewRegistry()
	h := NewSwapHandler(parsers, nil)

	ev := h.Handle(Input{Source: model.SourceLogNotification, DexKind: model.DexConstantProduct, Logs: swapLogs("Program log: price=1.0")})

	assert.Equal(t, model.EventUnhandled, ev.EventType)
}

func TestEstimateVolumeUsesNativeAssetReferenceBelowOneDollar(t *testing.T) {
	v := estimateVolume(10, 5, 0.5)
	assert.Equal(t, 10*nativeAssetReferencePrice, v)
}

func TestEstimateVolumeUsesTokenPriceAtOrAboveOneDollar(t *testing.T) {
	v := estimateVolume(10, 20, 2.0)
	assert.Equal(t, 20*2.0, v)
}
