package events

import (
	"github.com/solpulse/ingest/internal/dexparsers"
	"github.com/solpulse/ingest/internal/model"
)

// nativeAssetReferencePrice is the rough native-asset-to-reference-currency
// estimate used by the volume heuristic when a swap's price suggests the
// pair trades against the chain's native asset rather than the quote
// directly (spec §4.4, §9 open question 1). Its value equals the default of
// config.DefaultEntries' NATIVE_ASSET_REFERENCE_PRICE_FALLBACK, but it is a
// fixed constant: that key configures price.Config only, not this value.
const nativeAssetReferencePrice = 150.0

// SwapHandler extracts swap information from logs notifications using the
// dex-specific parser registry, and records the resulting price with the
// Price Aggregator.
type SwapHandler struct {
	parsers  *dexparsers.Registry
	recorder PriceRecorder
}

// NewSwapHandler constructs a SwapHandler. recorder may be nil in tests
// that don't exercise price recording.
func NewSwapHandler(parsers *dexparsers.Registry, recorder PriceRecorder) *SwapHandler {
	return &SwapHandler{parsers: parsers, recorder: recorder}
}

func (h *SwapHandler) Name() string { return "swap" }

func (h *SwapHandler) Accepts(in Input) bool {
	if in.Source != model.SourceLogNotification && in.Source != model.SourceLogUpdate {
		return false
	}
	if len(in.Logs) == 0 {
		return false
	}
	if h.parsers == nil {
		return false
	}
	_, ok := h.parsers.Get(in.DexKind)
	return ok
}

func (h *SwapHandler) Handle(in Input) model.BlockchainEvent {
	base := model.BlockchainEvent{
		Source:         in.Source,
		Timestamp:      timestampOrNow(in.Timestamp),
		Handler:        h.Name(),
		SubscriptionID: in.SubscriptionID,
		PoolAddress:    in.PoolAddress,
		DexKind:        in.DexKind,
		Signature:      in.Signature,
		Slot:           in.Slot,
		Logs:           in.Logs,
	}

	parser, ok := h.parsers.Get(in.DexKind)
	if !ok {
		base.EventType = model.EventUnhandled
		base.Handler = "none"
		base.Reason = "no parser registered for dex"
		return base
	}

	swapInfo, found := parser.ParseLogs(in.Logs)
	if !found || !swapInfo.FoundSwap {
		base.EventType = model.EventUnhandled
		base.Handler = "none"
		base.Reason = "No swap found in logs"
		return base
	}

	base.EventType = model.EventSwap
	base.SwapInfo = &swapInfo

	// Price preference order: swap_info.price if present, else price_ratio.
	switch {
	case swapInfo.Price != nil:
		base.Price = swapInfo.Price
	case swapInfo.PriceRatio != nil:
		base.Price = swapInfo.PriceRatio
	}

	if base.Price != nil && swapInfo.AmountIn != nil && swapInfo.AmountOut != nil {
		base.VolumeInfo = &model.VolumeInfo{
			EstimatedVolumeReferenceCurrency: estimateVolume(*swapInfo.AmountIn, *swapInfo.AmountOut, *base.Price),
			IsEstimate:                       true,
		}
	}

	if h.recorder != nil && base.Price != nil {
		mint := deriveMintKey(in.PoolAddress, in.Signature)
		h.recorder.RecordBlockchainPrice(mint, *base.Price, in.DexKind, swapInfo.ParsingConfidence)
	}

	return base
}

// estimateVolume applies the coarse heuristic from spec §4.4: when the
// per-token price is below 1.0, treat the pair as trading against the
// chain's native asset and multiply the larger amount by the native-asset
// reference price; otherwise multiply by the token's own price. This is
// explicitly an estimate (VolumeInfo.IsEstimate is always true here).
func estimateVolume(amountIn, amountOut, price float64) float64 {
	larger := amountIn
	if amountOut > larger {
		larger = amountOut
	}
	if price < 1.0 {
		return larger * nativeAssetReferencePrice
	}
	return larger * price
}
