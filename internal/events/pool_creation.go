package events

import (
	"context"
	"strings"
	"time"

	"github.com/solpulse/ingest/infrastructure/logging"
	"github.com/solpulse/ingest/internal/dexparsers"
	"github.com/solpulse/ingest/internal/model"
)

// PoolCreationHandler is the highest-priority handler in the router: it
// claims any message whose logs mention pool-creation vocabulary, or whose
// source already indicates creation.
type PoolCreationHandler struct {
	logger *logging.Logger
}

// NewPoolCreationHandler constructs a PoolCreationHandler. logger may be nil.
func NewPoolCreationHandler(logger *logging.Logger) *PoolCreationHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &PoolCreationHandler{logger: logger}
}

func (h *PoolCreationHandler) Name() string { return "pool_creation" }

func (h *PoolCreationHandler) Accepts(in Input) bool {
	if len(in.Logs) == 0 {
		return false
	}
	if dexparsers.IsPoolCreationLog(in.Logs) {
		return true
	}
	return strings.EqualFold(string(in.Source), "pool_creation")
}

func (h *PoolCreationHandler) Handle(in Input) model.BlockchainEvent {
	poolAddress := in.PoolAddress
	if !isValidPoolAddress(poolAddress) {
		h.logger.Warn(context.Background(), "substituting sentinel pool address for malformed value", map[string]interface{}{
			"malformed_pool_address": poolAddress,
			"signature":              in.Signature,
		})
		poolAddress = sentinelPoolAddress
	}

	signature := in.Signature
	if !isValidSignature(signature) {
		// Too short to be a real transaction signature; retain nothing
		// rather than persist a malformed value (spec §8 boundary).
		signature = ""
	}
	hasInitialPrice := false

	meta := &model.CreationMetadata{
		PoolAddress:       poolAddress,
		DexKind:           in.DexKind,
		CreationSignature: signature,
		CreatedAt:         timestampOrNow(in.Timestamp),
		HasInitialPrice:   hasInitialPrice,
	}

	return model.BlockchainEvent{
		EventType:           model.EventPoolCreation,
		Source:              in.Source,
		Timestamp:           timestampOrNow(in.Timestamp),
		ProcessingTimestamp: time.Now(),
		Handler:             h.Name(),
		SubscriptionID:      in.SubscriptionID,
		PoolAddress:         poolAddress,
		DexKind:             in.DexKind,
		Signature:           signature,
		Slot:                in.Slot,
		Logs:                in.Logs,
		CreationMetadata:    meta,
		MonitoringCandidate: true,
	}
}
