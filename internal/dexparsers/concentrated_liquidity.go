package dexparsers

import (
	"encoding/binary"
	"math"

	"github.com/solpulse/ingest/internal/model"
)

// concentratedLiquidityAccountLen is the minimum length of a concentrated-
// liquidity pool record: a Q64.64 fixed-point sqrt-price field plus
// decimals/vaults, laid out more compactly than the constant-product
// layout since reserves are not stored directly (liquidity is tracked per
// tick range instead).
const concentratedLiquidityAccountLen = 136

const (
	clSqrtPriceX64Offset = 8 // uint64, Q64.64 truncated to the low 64 bits
	clBaseDecimalsOffset = 16
	clQuoteDecimalsOffset = 17
	clBaseVaultOffset    = 40
	clQuoteVaultOffset   = 72
)

// ConcentratedLiquidityParser decodes a concentrated-liquidity AMM pool
// account, which exposes a direct decoded price (derived from its sqrt-price
// tick state) rather than raw reserves. Per spec §4.4: "For DEX variants
// exposing a direct decoded price, use that value; do not override with
// reserve math."
type ConcentratedLiquidityParser struct{}

// NewConcentratedLiquidityParser constructs a ConcentratedLiquidityParser.
func NewConcentratedLiquidityParser() *ConcentratedLiquidityParser {
	return &ConcentratedLiquidityParser{}
}

// ParseLogs uses the same swap-marker/key=value convention as the
// constant-product parser; concentrated-liquidity swap logs carry the same
// amount_in/amount_out/price vocabulary in this pipeline's normalized log
// format.
func (p *ConcentratedLiquidityParser) ParseLogs(logs []string) (model.SwapInfo, bool) {
	if !containsSwapInstruction(logs) {
		return model.SwapInfo{}, false
	}
	kv := parseKV(logs)
	amountIn, hasIn := kv["amount_in"]
	amountOut, hasOut := kv["amount_out"]
	price, hasPrice := kv["price"]
	ratio, hasRatio := kv["price_ratio"]
	if !hasPrice && !hasRatio {
		return model.SwapInfo{}, false
	}
	confidence := 0.85
	if !hasIn || !hasOut {
		confidence = 0.55
	}
	return model.SwapInfo{
		FoundSwap:         true,
		Price:             floatPtr(price, hasPrice),
		PriceRatio:        floatPtr(ratio, hasRatio),
		AmountIn:          floatPtr(amountIn, hasIn),
		AmountOut:         floatPtr(amountOut, hasOut),
		ParsingConfidence: confidence,
	}, true
}

// DecodeAccount decodes the sqrt-price field into a direct price and fills
// DirectPrice on the returned PoolState; BaseReserve/QuoteReserve are left
// zero since this layout doesn't carry them directly.
func (p *ConcentratedLiquidityParser) DecodeAccount(data []byte) (model.PoolState, error) {
	if len(data) < concentratedLiquidityAccountLen {
		return model.PoolState{}, errShortAccount(model.DexConcentratedLiquid, len(data), concentratedLiquidityAccountLen)
	}

	sqrtPriceX64 := binary.LittleEndian.Uint64(data[clSqrtPriceX64Offset : clSqrtPriceX64Offset+8])
	baseDecimals := int(data[clBaseDecimalsOffset])
	quoteDecimals := int(data[clQuoteDecimalsOffset])

	sqrtPrice := float64(sqrtPriceX64) / math.Pow(2, 64)
	price := sqrtPrice * sqrtPrice
	decimalAdjust := math.Pow(10, float64(baseDecimals-quoteDecimals))
	price *= decimalAdjust

	baseVault := decodeVault(data[clBaseVaultOffset : clBaseVaultOffset+pubkeyLen])
	quoteVault := decodeVault(data[clQuoteVaultOffset : clQuoteVaultOffset+pubkeyLen])

	return model.PoolState{
		DexKind:       model.DexConcentratedLiquid,
		BaseDecimals:  baseDecimals,
		QuoteDecimals: quoteDecimals,
		BaseVault:     baseVault,
		QuoteVault:    quoteVault,
		DirectPrice:   &price,
	}, nil
}
