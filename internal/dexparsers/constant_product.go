package dexparsers

import (
	"encoding/binary"

	"github.com/gagliardetto/solana-go"

	"github.com/solpulse/ingest/internal/model"
)

// constantProductAccountLen is the minimum length of the aggregated pool
// record spec §6 names: 752 bytes, base-decimals at offset 32,
// quote-decimals at offset 40, base-vault at offset 296, quote-vault at
// offset 328.
const constantProductAccountLen = 752

const (
	cpBaseReserveOffset  = 8
	cpQuoteReserveOffset = 16
	cpBaseDecimalsOffset = 32
	cpQuoteDecimalsOffset = 40
	cpBaseVaultOffset    = 296
	cpQuoteVaultOffset   = 328
	pubkeyLen            = 32
)

// ConstantProductParser decodes the fixed-offset account layout used by a
// constant-product (x*y=k) AMM pool, and extracts swap amounts/price from a
// transaction's log lines.
type ConstantProductParser struct{}

// NewConstantProductParser constructs a ConstantProductParser.
func NewConstantProductParser() *ConstantProductParser {
	return &ConstantProductParser{}
}

// ParseLogs looks for the "Instruction: Swap" marker plus the structured
// amount_in/amount_out/price key=value convention described in parser.go.
func (p *ConstantProductParser) ParseLogs(logs []string) (model.SwapInfo, bool) {
	if !containsSwapInstruction(logs) {
		return model.SwapInfo{}, false
	}

	kv := parseKV(logs)
	amountIn, hasIn := kv["amount_in"]
	amountOut, hasOut := kv["amount_out"]
	price, hasPrice := kv["price"]
	ratio, hasRatio := kv["price_ratio"]
	fee, hasFee := kv["fee"]

	if !hasPrice && !hasRatio {
		// No price information: not enough to call this a found swap per the
		// spec §3 invariant (found_swap requires price or price_ratio).
		return model.SwapInfo{}, false
	}

	confidence := 0.9
	if !hasIn || !hasOut {
		confidence = 0.6
	}

	info := model.SwapInfo{
		FoundSwap:         true,
		Price:             floatPtr(price, hasPrice),
		PriceRatio:        floatPtr(ratio, hasRatio),
		AmountIn:          floatPtr(amountIn, hasIn),
		AmountOut:         floatPtr(amountOut, hasOut),
		ParsingConfidence: confidence,
		FeeAmount:         floatPtr(fee, hasFee),
	}
	if token, ok := kv["token_in"]; ok {
		_ = token // token mints are strings in practice; numeric kv form unused here
	}
	return info, true
}

// DecodeAccount decodes the 752-byte fixed-offset pool record.
func (p *ConstantProductParser) DecodeAccount(data []byte) (model.PoolState, error) {
	if len(data) < constantProductAccountLen {
		return model.PoolState{}, errShortAccount(model.DexConstantProduct, len(data), constantProductAccountLen)
	}

	baseReserveRaw := binary.LittleEndian.Uint64(data[cpBaseReserveOffset : cpBaseReserveOffset+8])
	quoteReserveRaw := binary.LittleEndian.Uint64(data[cpQuoteReserveOffset : cpQuoteReserveOffset+8])
	baseDecimals := int(data[cpBaseDecimalsOffset])
	quoteDecimals := int(data[cpQuoteDecimalsOffset])

	baseVault := decodeVault(data[cpBaseVaultOffset : cpBaseVaultOffset+pubkeyLen])
	quoteVault := decodeVault(data[cpQuoteVaultOffset : cpQuoteVaultOffset+pubkeyLen])

	return model.PoolState{
		DexKind:       model.DexConstantProduct,
		BaseReserve:   float64(baseReserveRaw),
		QuoteReserve:  float64(quoteReserveRaw),
		BaseDecimals:  baseDecimals,
		QuoteDecimals: quoteDecimals,
		BaseVault:     baseVault,
		QuoteVault:    quoteVault,
	}, nil
}

// decodeVault renders a 32-byte account-data slice as a base-58 Solana
// public key, matching how the rest of the pipeline addresses accounts.
func decodeVault(raw []byte) string {
	var pk solana.PublicKey
	copy(pk[:], raw)
	return pk.String()
}
