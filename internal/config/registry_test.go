package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solpulse/ingest/internal/model"
)

func TestRegistryLoadDefaults(t *testing.T) {
	r := NewRegistry(nil)
	r.RegisterAll(DefaultEntries())
	t.Setenv("PRIMARY_RPC_URL", "https://rpc.example.com")
	t.Setenv("PRIMARY_WSS_URL", "wss://rpc.example.com")

	report := r.Load()
	require.True(t, report.Valid)
	assert.Empty(t, report.MissingRequired)

	assert.Equal(t, 20*time.Second, r.GetDuration("WEBSOCKET_PING_INTERVAL", 0))
	assert.Equal(t, 150.0, r.GetFloat("NATIVE_ASSET_REFERENCE_PRICE_FALLBACK", 0))
}

func TestRegistryMissingRequired(t *testing.T) {
	r := NewRegistry(nil)
	r.RegisterAll(DefaultEntries())

	report := r.Load()
	assert.False(t, report.Valid)
	assert.Contains(t, report.MissingRequired, "PRIMARY_RPC_URL")
}

func TestRegistrySensitiveMasking(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(model.ConfigEntry{Key: "RPC_API_KEY", Category: "endpoints", DataType: model.ConfigString, Sensitive: true})
	t.Setenv("RPC_API_KEY", "super-secret-value")
	r.Load()

	exported := r.Export()
	assert.Equal(t, maskedValue, exported["RPC_API_KEY"])
	assert.Equal(t, "super-secret-value", r.Get("RPC_API_KEY", ""))
}

func TestRegistryBoolCoercion(t *testing.T) {
	assert.True(t, parseBool("true"))
	assert.True(t, parseBool("1"))
	assert.True(t, parseBool("Yes"))
	assert.True(t, parseBool("ON"))
	assert.False(t, parseBool("false"))
	assert.False(t, parseBool(""))
}

func TestRegistryReloadRetainsPreviousOnInvalid(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(model.ConfigEntry{Key: "MAX_ENDPOINT_FAILURES", Category: "endpoints", DataType: model.ConfigInt, Default: 3})
	r.Load()
	require.Equal(t, 3, r.GetInt("MAX_ENDPOINT_FAILURES", 0))

	t.Setenv("MAX_ENDPOINT_FAILURES", "not-an-int")
	report := r.Reload()
	assert.False(t, report.Valid)
	assert.Contains(t, report.Invalid, "MAX_ENDPOINT_FAILURES")
	assert.Equal(t, 3, r.GetInt("MAX_ENDPOINT_FAILURES", 0))
}

func TestRegistryGetByCategory(t *testing.T) {
	r := NewRegistry(nil)
	r.RegisterAll(DefaultEntries())
	t.Setenv("PRIMARY_RPC_URL", "https://rpc.example.com")
	t.Setenv("PRIMARY_WSS_URL", "wss://rpc.example.com")
	r.Load()

	byCategory := r.GetByCategory("price_monitor")
	assert.Contains(t, byCategory, "PRICEMONITOR_INTERVAL")
	assert.NotContains(t, byCategory, "PRIMARY_RPC_URL")
}
