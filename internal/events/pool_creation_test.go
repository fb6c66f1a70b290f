package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solpulse/ingest/internal/model"
)

func TestPoolCreationHandlerAcceptsCreationVocabulary(t *testing.T) {
	h := NewPoolCreationHandler(nil)

	assert.True(t, h.Accepts(Input{Logs: []string{"Program log: Instruction: InitializePool"}}))
	assert.True(t, h.Accepts(Input{Logs: []string{"Program log: create_pool executed"}}))
	assert.False(t, h.Accepts(Input{Logs: nil}))
	assert.False(t, h.Accepts(Input{Logs: []string{"Program log: Instruction: Swap"}}))
}

func TestPoolCreationHandlerAcceptsExplicitSource(t *testing.T) {
	h := NewPoolCreationHandler(nil)
	assert.True(t, h.Accepts(Input{Logs: []string{"anything"}, Source: "pool_creation"}))
}

func TestPoolCreationHandlerKeepsValidPoolAddress(t *testing.T) {
	h := NewPoolCreationHandler(nil)
	validAddress := "4k3Dyjzvzp8eZZifVV1c5p1LzXo9yzZZ4Z8Fk3k3k3k3"

	ev := h.Handle(Input{PoolAddress: validAddress, Timestamp: time.Now()})

	require.NotNil(t, ev.CreationMetadata)
	assert.Equal(t, validAddress, ev.PoolAddress)
	assert.Equal(t, validAddress, ev.CreationMetadata.PoolAddress)
}

// TestPoolCreationHandlerSubstitutesSentinelForMalformedAddress exercises the
// substitution spec.md §4.4 requires: a pool address that doesn't look like
// a base-58 Solana address is replaced with the sentinel rather than failing
// the event.
func TestPoolCreationHandlerSubstitutesSentinelForMalformedAddress(t *testing.T) {
	h := NewPoolCreationHandler(nil)

	ev := h.Handle(Input{PoolAddress: "too-short", Timestamp: time.Now()})

	assert.Equal(t, sentinelPoolAddress, ev.PoolAddress)
	require.NotNil(t, ev.CreationMetadata)
	assert.Equal(t, sentinelPoolAddress, ev.CreationMetadata.PoolAddress)
}

func TestPoolCreationHandlerRejectsShortSignature(t *testing.T) {
	h := NewPoolCreationHandler(nil)

	ev := h.Handle(Input{Signature: "too-short-to-be-real", Timestamp: time.Now()})

	assert.Empty(t, ev.Signature)
}

func TestPoolCreationHandlerKeepsValidLengthSignature(t *testing.T) {
	h := NewPoolCreationHandler(nil)
	sig := make([]byte, 88)
	for i := range sig {
		sig[i] = 'a'
	}

	ev := h.Handle(Input{Signature: string(sig), Timestamp: time.Now()})

	assert.Equal(t, string(sig), ev.Signature)
}

func TestIsValidPoolAddressBoundaries(t *testing.T) {
	assert.False(t, isValidPoolAddress(""))
	assert.False(t, isValidPoolAddress("short"))
	assert.False(t, isValidPoolAddress("0OIl0OIl0OIl0OIl0OIl0OIl0OIl0OIl"))
	assert.True(t, isValidPoolAddress("4k3Dyjzvzp8eZZifVV1c5p1LzXo9yzZZ4Z8Fk3k3k3k3"))
}
