// Package model holds the shared data types passed between the ingestion
// pipeline's components: connection/endpoint state, subscription bindings,
// parsed swap/pool records, the domain event union, price records, and the
// metric/health/config value types used by the system monitor and registry.
package model

import "time"

// EndpointRole distinguishes a primary RPC/WSS endpoint from its fallback.
type EndpointRole string

const (
	EndpointPrimary  EndpointRole = "primary"
	EndpointFallback EndpointRole = "fallback"
)

// Endpoint is a configured upstream RPC/WebSocket target.
type Endpoint struct {
	URL            string
	Role           EndpointRole
	Failures       int
	LastFailureTS  time.Time
	Active         bool
	Attempts       int
	Successes      int
	Reconnections  int
}

// SocketState is the lifecycle state of a Connection's underlying socket.
type SocketState string

const (
	SocketConnecting SocketState = "connecting"
	SocketOpen       SocketState = "open"
	SocketClosing    SocketState = "closing"
	SocketClosed     SocketState = "closed"
)

// Connection is the single open WebSocket session for a program_id.
type Connection struct {
	ProgramID   string
	Endpoint    Endpoint
	SocketState SocketState
	LastPongTS  time.Time
}

// SubscriptionKind distinguishes the three Solana subscription vocabularies.
type SubscriptionKind string

const (
	SubscriptionLogs    SubscriptionKind = "logs"
	SubscriptionAccount SubscriptionKind = "account"
	SubscriptionProgram SubscriptionKind = "program"
)

// Subscription binds a server-assigned subscription id to what it means.
type Subscription struct {
	SubscriptionID int64
	RequestID      int64
	PoolAddress    string
	DexKind        DexKind
	Kind           SubscriptionKind
	CreatedTS      time.Time
}

// PendingOutcomeKind distinguishes a successful confirmation from an error.
type PendingOutcomeKind string

const (
	PendingSuccess PendingOutcomeKind = "success"
	PendingError   PendingOutcomeKind = "error"
)

// PendingOutcome is delivered to a PendingConfirmation's completion channel.
type PendingOutcome struct {
	Kind           PendingOutcomeKind
	SubscriptionID int64
	ErrorInfo      string
}

// DexKind is a closed identifier of a DEX program variant; it selects which
// parser and account-layout decodes a pool's frames.
type DexKind string

const (
	DexConstantProduct    DexKind = "constant_product_amm"
	DexConcentratedLiquid DexKind = "concentrated_liquidity_amm"
	DexUnknown            DexKind = "unknown"
)

// SwapInfo is produced by a DEX parser from a logs notification.
type SwapInfo struct {
	FoundSwap         bool
	Price             *float64
	PriceRatio        *float64
	AmountIn          *float64
	AmountOut         *float64
	TokenIn           string
	TokenOut          string
	ParsingConfidence float64
	SwapDirection     string
	FeeAmount         *float64
}

// PoolState is the decoded account-state record for a DEX pool. Field
// presence varies per DEX kind: every layout populates the decimals;
// layouts that store reserves populate BaseReserve/QuoteReserve, and
// layouts that expose a decoded price set DirectPrice and leave the
// reserves zero.
type PoolState struct {
	DexKind      DexKind
	BaseReserve  float64
	QuoteReserve float64
	BaseDecimals int
	QuoteDecimals int
	BaseVault    string
	QuoteVault   string
	DirectPrice  *float64
}

// EventType is the closed set of BlockchainEvent discriminants.
type EventType string

const (
	EventSwap          EventType = "swap"
	EventAccountUpdate EventType = "account_update"
	EventPoolCreation  EventType = "pool_creation"
	EventLogNotif      EventType = "log_notification"
	EventUnhandled     EventType = "unhandled"
)

// EventSource is the closed set of frame-origin labels carried on every event.
type EventSource string

const (
	SourceLogNotification     EventSource = "log_notification"
	SourceAccountNotification EventSource = "account_notification"
	SourceProgramNotification EventSource = "program_notification"
	SourceLogUpdate           EventSource = "log_update"
	SourceAccountUpdate       EventSource = "account_update"
)

// LiquidityQuality buckets base-asset reserve depth for downstream weighting.
type LiquidityQuality string

const (
	LiquidityVeryLow LiquidityQuality = "very_low"
	LiquidityLow     LiquidityQuality = "low"
	LiquidityMedium  LiquidityQuality = "medium"
	LiquidityHigh    LiquidityQuality = "high"
	LiquidityUnknown LiquidityQuality = "unknown"
)

// ClassifyLiquidity maps a base-asset reserve value onto LiquidityQuality per
// the strictly monotonic thresholds 1, 10, 100.
func ClassifyLiquidity(baseAssetReserve float64, known bool) LiquidityQuality {
	if !known {
		return LiquidityUnknown
	}
	switch {
	case baseAssetReserve >= 100:
		return LiquidityHigh
	case baseAssetReserve >= 10:
		return LiquidityMedium
	case baseAssetReserve >= 1:
		return LiquidityLow
	default:
		return LiquidityVeryLow
	}
}

// VolumeInfo carries the estimated trade size in reference-currency units.
// It is explicitly an estimate (IsEstimate marks it as such).
type VolumeInfo struct {
	EstimatedVolumeReferenceCurrency float64
	IsEstimate                       bool
}

// CreationMetadata is the normalized payload of a PoolCreation event.
type CreationMetadata struct {
	PoolAddress       string
	DexKind           DexKind
	CreationSignature string
	CreatedAt         time.Time
	HasInitialPrice   bool
}

// BlockchainEvent is the tagged union over every event variant the pipeline
// emits. Only the fields relevant to EventType are populated; it is built
// once by a handler and never mutated after emission.
type BlockchainEvent struct {
	EventType           EventType
	Source              EventSource
	Timestamp           time.Time
	ProcessingTimestamp time.Time
	Handler             string
	SubscriptionID      *int64
	PoolAddress         string
	DexKind             DexKind
	Signature           string
	Slot                *uint64

	// Swap
	SwapInfo   *SwapInfo
	Price      *float64
	VolumeInfo *VolumeInfo
	Logs       []string

	// AccountUpdate
	LiquidityBaseAsset *float64
	LiquidityQuality   LiquidityQuality
	ReservesRaw        *PoolState
	Decimals           *int
	Vaults             []string

	// PoolCreation
	CreationMetadata   *CreationMetadata
	InitialPrice       *float64
	MonitoringCandidate bool

	// LogNotification
	ParsedData map[string]interface{}

	// Unhandled
	Reason     string
	RawMessage string
}

// PriceSource is the closed set of where a PriceRecord came from.
type PriceSource string

const (
	PriceSourceBlockchain    PriceSource = "blockchain"
	PriceSourceRESTPrimary   PriceSource = "rest_primary"
	PriceSourceRESTSecondary PriceSource = "rest_secondary"
	PriceSourceInferred      PriceSource = "inferred"
)

// PriceRecord is one resolved price observation for a mint.
type PriceRecord struct {
	Mint                      string
	PriceInBaseAsset          float64
	PriceInReferenceCurrency  *float64
	Source                    PriceSource
	DexKind                   DexKind
	TS                        time.Time
	Confidence                float64
	Volume                    *float64
}

// MetricSample is one observation appended to a bounded per-series ring.
type MetricSample struct {
	Name      string
	TS        time.Time
	Value     float64
	Labels    map[string]string
	Component string
}

// HealthStatus is the closed set of ComponentHealth states.
type HealthStatus string

const (
	HealthInitializing HealthStatus = "initializing"
	HealthHealthy      HealthStatus = "healthy"
	HealthDegraded     HealthStatus = "degraded"
	HealthUnhealthy    HealthStatus = "unhealthy"
	HealthError        HealthStatus = "error"
)

// ComponentHealth is the last-known health of one named component.
type ComponentHealth struct {
	Component  string
	Status     HealthStatus
	LastUpdate time.Time
	Details    map[string]interface{}
}

// ConfigDataType names the scalar kind a ConfigEntry's value is coerced to.
type ConfigDataType string

const (
	ConfigString   ConfigDataType = "string"
	ConfigInt      ConfigDataType = "int"
	ConfigFloat    ConfigDataType = "float"
	ConfigBool     ConfigDataType = "bool"
	ConfigDuration ConfigDataType = "duration"
)

// ConfigEntry is a declarative registration for one configuration parameter.
type ConfigEntry struct {
	Key       string
	Category  string
	DataType  ConfigDataType
	Required  bool
	Default   interface{}
	Validator func(interface{}) error
	Sensitive bool
}
