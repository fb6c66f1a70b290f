package events

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solpulse/ingest/internal/dexparsers"
	"github.com/solpulse/ingest/internal/model"
)

// buildConstantProductAccount mirrors the 752-byte fixed-offset layout
// dexparsers.ConstantProductParser.DecodeAccount expects (base reserve at
// 8, quote reserve at 16, base decimals at 32, quote decimals at 40).
func buildConstantProductAccount(baseReserve, quoteReserve uint64, baseDecimals, quoteDecimals byte) []byte {
	data := make([]byte, 752)
	binary.LittleEndian.PutUint64(data[8:], baseReserve)
	binary.LittleEndian.PutUint64(data[16:], quoteReserve)
	data[32] = baseDecimals
	data[40] = quoteDecimals
	return data
}

func TestAccountUpdateHandlerAcceptsAccountSources(t *testing.T) {
	h := NewAccountUpdateHandler(dexparsers.NewDefaultRegistry(), nil)
	assert.True(t, h.Accepts(Input{Source: model.SourceAccountNotification}))
	assert.True(t, h.Accepts(Input{Source: model.SourceAccountUpdate}))
	assert.False(t, h.Accepts(Input{Source: model.SourceLogNotification}))
}

func TestAccountUpdateHandlerDerivesPriceAndLiquidityFromReserves(t *testing.T) {
	parsers := dexparsers.NewDefaultRegistry()
	recorder := &fakeRecorder{}
	h := NewAccountUpdateHandler(parsers, recorder)

	data := buildConstantProductAccount(1_000_000_000_000, 50_000_000_000, 6, 9)
	ev := h.Handle(Input{Source: model.SourceAccountNotification, DexKind: model.DexConstantProduct, AccountData: data})

	require.Equal(t, model.EventAccountUpdate, ev.EventType)
	require.NotNil(t, ev.Price)
	require.NotNil(t, ev.LiquidityBaseAsset)
	assert.Equal(t, model.LiquidityHigh, ev.LiquidityQuality)
	assert.Equal(t, 1, recorder.calls)
}

func TestAccountUpdateHandlerUsesDirectPriceWithoutReserveMath(t *testing.T) {
	parsers := dexparsers.NewDefaultRegistry()
	h := NewAccountUpdateHandler(parsers, nil)

	data := make([]byte, 136)
	binary.LittleEndian.PutUint64(data[8:], 1<<64-1)
	data[16] = 6
	data[17] = 6

	ev := h.Handle(Input{Source: model.SourceAccountNotification, DexKind: model.DexConcentratedLiquid, AccountData: data})

	require.Equal(t, model.EventAccountUpdate, ev.EventType)
	require.NotNil(t, ev.Price)
	assert.Equal(t, model.LiquidityUnknown, ev.LiquidityQuality, "direct-price DEXes don't expose a reserve to classify")
}

// TestAccountUpdateHandlerRejectsZeroDecimals and the sibling test below
// cover spec §8's decimals validation boundary: 0 and >18 are both invalid.
func TestAccountUpdateHandlerRejectsZeroDecimals(t *testing.T) {
	parsers := dexparsers.NewDefaultRegistry()
	h := NewAccountUpdateHandler(parsers, nil)

	data := buildConstantProductAccount(1000, 1000, 0, 9)
	ev := h.Handle(Input{Source: model.SourceAccountNotification, DexKind: model.DexConstantProduct, AccountData: data})

	assert.Equal(t, model.EventUnhandled, ev.EventType)
	assert.Contains(t, ev.Reason, "decimals")
}

func TestAccountUpdateHandlerRejectsDecimalsAboveEighteen(t *testing.T) {
	parsers := dexparsers.NewDefaultRegistry()
	h := NewAccountUpdateHandler(parsers, nil)

	data := buildConstantProductAccount(1000, 1000, 19, 9)
	ev := h.Handle(Input{Source: model.SourceAccountNotification, DexKind: model.DexConstantProduct, AccountData: data})

	assert.Equal(t, model.EventUnhandled, ev.EventType)
	assert.Contains(t, ev.Reason, "decimals")
}

func TestAccountUpdateHandlerAcceptsBoundaryDecimalValue(t *testing.T) {
	parsers := dexparsers.NewDefaultRegistry()
	h := NewAccountUpdateHandler(parsers, nil)

	data := buildConstantProductAccount(1000, 1000, 18, 18)
	ev := h.Handle(Input{Source: model.SourceAccountNotification, DexKind: model.DexConstantProduct, AccountData: data})

	assert.Equal(t, model.EventAccountUpdate, ev.EventType)
}

func TestAccountUpdateHandlerUnhandledWhenNoParserOrEmptyData(t *testing.T) {
	h := NewAccountUpdateHandler(dexparsers.NewRegistry(), nil)
	ev := h.Handle(Input{Source: model.SourceAccountNotification, DexKind: model.DexConstantProduct, AccountData: []byte{1}})
	assert.Equal(t, model.EventUnhandled, ev.EventType)

	h2 := NewAccountUpdateHandler(dexparsers.NewDefaultRegistry(), nil)
	ev2 := h2.Handle(Input{Source: model.SourceAccountNotification, DexKind: model.DexConstantProduct, AccountData: nil})
	assert.Equal(t, model.EventUnhandled, ev2.EventType)
}

func TestLiquidityConfidenceMonotonic(t *testing.T) {
	assert.Greater(t, liquidityConfidence(model.LiquidityHigh), liquidityConfidence(model.LiquidityMedium))
	assert.Greater(t, liquidityConfidence(model.LiquidityMedium), liquidityConfidence(model.LiquidityLow))
	assert.Greater(t, liquidityConfidence(model.LiquidityLow), liquidityConfidence(model.LiquidityVeryLow))
}

func TestPow10HandlesZeroAndNegativeExponents(t *testing.T) {
	assert.Equal(t, 1.0, pow10(0))
	assert.Equal(t, 100.0, pow10(2))
	assert.InDelta(t, 0.01, pow10(-2), 1e-12)
}
