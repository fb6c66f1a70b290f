package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyConfirmation(t *testing.T) {
	f, err := Classify([]byte(`{"jsonrpc":"2.0","id":1,"result":23784}`))
	require.NoError(t, err)
	assert.Equal(t, FrameConfirmation, f.Kind)
	assert.Equal(t, int64(1), f.ID)
	assert.True(t, f.HasID)
}

func TestClassifyError(t *testing.T) {
	f, err := Classify([]byte(`{"jsonrpc":"2.0","id":1,"error":{"code":-32600,"message":"bad request"}}`))
	require.NoError(t, err)
	assert.Equal(t, FrameError, f.Kind)
}

func TestClassifyLogsNotification(t *testing.T) {
	f, err := Classify([]byte(`{"jsonrpc":"2.0","method":"logsNotification","params":{"subscription":23784,"result":{"context":{"slot":1},"value":{"signature":"abc","logs":["Program log: swap"]}}}}`))
	require.NoError(t, err)
	assert.Equal(t, FrameLogsNotification, f.Kind)
}

func TestClassifyAccountNotification(t *testing.T) {
	f, err := Classify([]byte(`{"jsonrpc":"2.0","method":"accountNotification","params":{}}`))
	require.NoError(t, err)
	assert.Equal(t, FrameAccountNotification, f.Kind)
}

func TestClassifyProgramNotificationIsDistinctKind(t *testing.T) {
	f, err := Classify([]byte(`{"jsonrpc":"2.0","method":"programNotification","params":{}}`))
	require.NoError(t, err)
	assert.Equal(t, FrameProgramNotification, f.Kind)
}

func TestClassifyUnknown(t *testing.T) {
	f, err := Classify([]byte(`{"jsonrpc":"2.0","method":"somethingElse"}`))
	require.NoError(t, err)
	assert.Equal(t, FrameUnknown, f.Kind)
}

func TestClassifyMalformedJSONReturnsError(t *testing.T) {
	_, err := Classify([]byte(`not json`))
	assert.Error(t, err)
}

func TestClassifyConfirmationTakesPriorityOverError(t *testing.T) {
	// Spec rule 1 before rule 2: an integer result with an id always wins,
	// even if an error field is also present.
	f, err := Classify([]byte(`{"id":5,"result":10,"error":null}`))
	require.NoError(t, err)
	assert.Equal(t, FrameConfirmation, f.Kind)
}

func TestParseLogsNotification(t *testing.T) {
	raw := []byte(`{"subscription":23784,"result":{"context":{"slot":5000},"value":{"signature":"5sig","logs":["Program log: swap executed"]}}}`)
	parsed, err := ParseLogsNotification(raw)
	require.NoError(t, err)
	assert.Equal(t, int64(23784), parsed.SubscriptionID)
	assert.Equal(t, uint64(5000), parsed.Slot)
	assert.Equal(t, "5sig", parsed.Signature)
	assert.Equal(t, []string{"Program log: swap executed"}, parsed.Logs)
}

func TestParseAccountNotificationDecodesBase64(t *testing.T) {
	raw := []byte(`{"subscription":9,"result":{"context":{"slot":1},"value":{"pubkey":"Pool1111","account":{"data":["aGVsbG8=","base64"]}}}}`)
	parsed, err := ParseAccountNotification(raw)
	require.NoError(t, err)
	assert.Equal(t, int64(9), parsed.SubscriptionID)
	assert.Equal(t, "Pool1111", parsed.Pubkey)
	assert.Equal(t, []byte("hello"), parsed.AccountData)
}
