package events

import (
	"github.com/solpulse/ingest/internal/dexparsers"
	"github.com/solpulse/ingest/internal/model"
)

// AccountUpdateHandler decodes per-DEX account-state blobs into reserves,
// computes a price where sufficient fields are present, and attaches a
// liquidity-quality label.
type AccountUpdateHandler struct {
	parsers  *dexparsers.Registry
	recorder PriceRecorder
}

// NewAccountUpdateHandler constructs an AccountUpdateHandler.
func NewAccountUpdateHandler(parsers *dexparsers.Registry, recorder PriceRecorder) *AccountUpdateHandler {
	return &AccountUpdateHandler{parsers: parsers, recorder: recorder}
}

func (h *AccountUpdateHandler) Name() string { return "account_update" }

func (h *AccountUpdateHandler) Accepts(in Input) bool {
	return in.Source == model.SourceAccountNotification || in.Source == model.SourceAccountUpdate
}

func (h *AccountUpdateHandler) Handle(in Input) model.BlockchainEvent {
	base := model.BlockchainEvent{
		Source:         in.Source,
		Timestamp:      timestampOrNow(in.Timestamp),
		Handler:        h.Name(),
		SubscriptionID: in.SubscriptionID,
		PoolAddress:    in.PoolAddress,
		DexKind:        in.DexKind,
		Signature:      in.Signature,
		Slot:           in.Slot,
	}

	parser, ok := h.parsers.Get(in.DexKind)
	if !ok || len(in.AccountData) == 0 {
		base.EventType = model.EventUnhandled
		base.Handler = "none"
		base.Reason = "no parser registered for dex, or empty account data"
		return base
	}

	state, err := parser.DecodeAccount(in.AccountData)
	if err != nil {
		base.EventType = model.EventUnhandled
		base.Handler = "none"
		base.Reason = "account decode failed: " + err.Error()
		return base
	}
	if !validDecimals(state.BaseDecimals) || !validDecimals(state.QuoteDecimals) {
		base.EventType = model.EventUnhandled
		base.Handler = "none"
		base.Reason = "invalid decimals in decoded pool state"
		return base
	}

	base.EventType = model.EventAccountUpdate
	base.ReservesRaw = &state
	base.Vaults = []string{state.BaseVault, state.QuoteVault}
	decimals := state.BaseDecimals
	base.Decimals = &decimals

	price, liquidityKnown, baseAssetReserve := derivePrice(state)
	if price != nil {
		base.Price = price
	}
	base.LiquidityQuality = model.ClassifyLiquidity(baseAssetReserve, liquidityKnown)
	if liquidityKnown {
		base.LiquidityBaseAsset = &baseAssetReserve
	}

	if h.recorder != nil && base.Price != nil {
		mint := deriveMintKey(in.PoolAddress, in.Signature)
		confidence := liquidityConfidence(base.LiquidityQuality)
		h.recorder.RecordBlockchainPrice(mint, *base.Price, in.DexKind, confidence)
	}

	return base
}

// validDecimals rejects 0 or > 18, per spec §8's boundary behavior.
func validDecimals(d int) bool {
	return d > 0 && d <= 18
}

// derivePrice applies the pricing formulas from spec §4.4: a direct decoded
// price wins when the DEX exposes one; otherwise the constant-product
// formula (quote*10^baseDecimals)/(base*10^quoteDecimals), arranged to keep
// intermediate magnitudes representable per §9's numeric-math note.
func derivePrice(state model.PoolState) (price *float64, liquidityKnown bool, baseAssetReserve float64) {
	if state.DirectPrice != nil {
		p := *state.DirectPrice
		return &p, false, 0
	}
	if state.BaseReserve <= 0 || state.QuoteReserve <= 0 {
		return nil, false, 0
	}
	// (quote_reserve / 10^quote_decimals) / (base_reserve / 10^base_decimals)
	computed := (state.QuoteReserve / pow10(state.QuoteDecimals)) / (state.BaseReserve / pow10(state.BaseDecimals))
	baseAssetReserve = state.BaseReserve / pow10(state.BaseDecimals)
	return &computed, true, baseAssetReserve
}

func pow10(exp int) float64 {
	result := 1.0
	for i := 0; i < exp; i++ {
		result *= 10
	}
	for i := 0; i > exp; i-- {
		result /= 10
	}
	return result
}

// liquidityConfidence maps a liquidity-quality bucket to a price-confidence
// score, used when recording a blockchain-derived price: deeper liquidity
// means a more trustworthy price.
func liquidityConfidence(q model.LiquidityQuality) float64 {
	switch q {
	case model.LiquidityHigh:
		return 0.95
	case model.LiquidityMedium:
		return 0.8
	case model.LiquidityLow:
		return 0.6
	case model.LiquidityVeryLow:
		return 0.4
	default:
		return 0.5
	}
}
