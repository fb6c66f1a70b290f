package config

import (
	"fmt"

	"github.com/solpulse/ingest/infrastructure/httputil"
	"github.com/solpulse/ingest/internal/model"
)

// wssURLValidator accepts an empty value (the fallback endpoint is
// optional) and otherwise requires a well-formed ws/wss URL, per
// httputil.NormalizeWSURL's rules.
func wssURLValidator(v interface{}) error {
	s, ok := v.(string)
	if !ok {
		return fmt.Errorf("must be a string")
	}
	if s == "" {
		return nil
	}
	_, _, err := httputil.NormalizeWSURL(s)
	return err
}

// DefaultEntries returns the full configuration surface named in the
// external interfaces section: WebSocket transport, endpoints, price
// monitor, and monitoring categories.
func DefaultEntries() []model.ConfigEntry {
	return []model.ConfigEntry{
		{Key: "WEBSOCKET_DEFAULT_RECONNECT_DELAY", Category: "websocket", DataType: model.ConfigDuration, Default: "1s"},
		{Key: "WEBSOCKET_MAX_RECONNECT_DELAY", Category: "websocket", DataType: model.ConfigDuration, Default: "30s"},
		{Key: "WEBSOCKET_PING_INTERVAL", Category: "websocket", DataType: model.ConfigDuration, Default: "20s"},
		{Key: "WEBSOCKET_PING_TIMEOUT", Category: "websocket", DataType: model.ConfigDuration, Default: "20s"},
		{Key: "WEBSOCKET_CONNECT_TIMEOUT", Category: "websocket", DataType: model.ConfigDuration, Default: "30s"},
		{Key: "WEBSOCKET_SUBSCRIPTION_TIMEOUT", Category: "websocket", DataType: model.ConfigDuration, Default: "60s"},
		{Key: "WEBSOCKET_MAX_RETRIES_PER_ENDPOINT", Category: "websocket", DataType: model.ConfigInt, Default: 3},
		{Key: "WEBSOCKET_MAX_MESSAGE_SIZE", Category: "websocket", DataType: model.ConfigInt, Default: 10 * 1024 * 1024},

		{Key: "PRIMARY_RPC_URL", Category: "endpoints", DataType: model.ConfigString, Required: true},
		{Key: "PRIMARY_WSS_URL", Category: "endpoints", DataType: model.ConfigString, Required: true, Validator: wssURLValidator},
		{Key: "FALLBACK_RPC_URL", Category: "endpoints", DataType: model.ConfigString},
		{Key: "FALLBACK_WSS_URL", Category: "endpoints", DataType: model.ConfigString, Validator: wssURLValidator},
		{Key: "RPC_API_KEY", Category: "endpoints", DataType: model.ConfigString, Sensitive: true},
		{Key: "MAX_ENDPOINT_FAILURES", Category: "endpoints", DataType: model.ConfigInt, Default: 3},
		{Key: "ENDPOINT_FAILURE_RESET_SECONDS", Category: "endpoints", DataType: model.ConfigInt, Default: 300},

		{Key: "PRICEMONITOR_INTERVAL", Category: "price_monitor", DataType: model.ConfigDuration, Default: "30s"},
		{Key: "SOL_PRICE_CACHE_DURATION", Category: "price_monitor", DataType: model.ConfigDuration, Default: "300s"},
		{Key: "MAX_PRICE_HISTORY", Category: "price_monitor", DataType: model.ConfigInt, Default: 100},
		{Key: "REFERENCE_PRICE_PRIMARY_URL", Category: "price_monitor", DataType: model.ConfigString},
		{Key: "REFERENCE_PRICE_BACKUP_URL", Category: "price_monitor", DataType: model.ConfigString},
		{Key: "GENERALIST_PRICE_API_URL", Category: "price_monitor", DataType: model.ConfigString},
		{Key: "CONSTANT_PRODUCT_POOL_NATIVE_URL", Category: "price_monitor", DataType: model.ConfigString},
		{Key: "CONCENTRATED_LIQUIDITY_POOL_NATIVE_URL", Category: "price_monitor", DataType: model.ConfigString},
		{
			Key: "NATIVE_ASSET_REFERENCE_PRICE_FALLBACK", Category: "price_monitor",
			DataType: model.ConfigFloat, Default: 150.0,
			Validator: func(v interface{}) error {
				f, ok := v.(float64)
				if !ok || f <= 0 {
					return fmt.Errorf("must be a positive float")
				}
				return nil
			},
		},

		{Key: "MONITORING_INTERVAL_SECONDS", Category: "monitoring", DataType: model.ConfigInt, Default: 60},
		{Key: "THRESHOLD_WS_CONNECT_MS", Category: "monitoring", DataType: model.ConfigFloat, Default: 5000.0},
		{Key: "THRESHOLD_MESSAGE_PROCESSING_MS", Category: "monitoring", DataType: model.ConfigFloat, Default: 100.0},
		{Key: "THRESHOLD_EVENT_PROCESSING_MS", Category: "monitoring", DataType: model.ConfigFloat, Default: 50.0},
		{Key: "THRESHOLD_PRICE_UPDATE_LATENCY_MS", Category: "monitoring", DataType: model.ConfigFloat, Default: 200.0},
		{Key: "THRESHOLD_CIRCUIT_BREAKER_FAILURE_RATE", Category: "monitoring", DataType: model.ConfigFloat, Default: 0.10},
		{Key: "THRESHOLD_TRADE_EXECUTION_MS", Category: "monitoring", DataType: model.ConfigFloat, Default: 500.0},
		{Key: "THRESHOLD_STRATEGY_EVALUATION_MS", Category: "monitoring", DataType: model.ConfigFloat, Default: 100.0},
	}
}
