package dispatch

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// notificationParams is the common params.{subscription, result} envelope
// for logsNotification/accountNotification/programNotification, per spec
// §6's wire format.
type notificationParams struct {
	Subscription int64           `json:"subscription"`
	Result       json.RawMessage `json:"result"`
}

type resultContext struct {
	Slot uint64 `json:"slot"`
}

type logsResultValue struct {
	Signature string   `json:"signature"`
	Logs      []string `json:"logs"`
	Err       json.RawMessage `json:"err"`
}

type logsNotificationResult struct {
	Context resultContext   `json:"context"`
	Value   logsResultValue `json:"value"`
}

// accountData is the [data, encoding] tuple Solana's accountNotification
// carries; only base64 encoding is supported (the vocabulary this pipeline
// subscribes with).
type accountDataTuple [2]string

type accountInfo struct {
	Data accountDataTuple `json:"data"`
}

type accountResultValue struct {
	Pubkey  string      `json:"pubkey"`
	Account accountInfo `json:"account"`
}

type accountNotificationResult struct {
	Context resultContext       `json:"context"`
	Value   accountResultValue  `json:"value"`
}

// ParsedLogsNotification is the decoded payload of a logs/program
// notification frame.
type ParsedLogsNotification struct {
	SubscriptionID int64
	Slot           uint64
	Signature      string
	Logs           []string
}

// ParseLogsNotification decodes a logsNotification/programNotification
// frame's params into its subscription-id, slot, signature, and log vector.
func ParseLogsNotification(params json.RawMessage) (ParsedLogsNotification, error) {
	var np notificationParams
	if err := json.Unmarshal(params, &np); err != nil {
		return ParsedLogsNotification{}, fmt.Errorf("dispatch: decode notification params: %w", err)
	}
	var res logsNotificationResult
	if err := json.Unmarshal(np.Result, &res); err != nil {
		return ParsedLogsNotification{}, fmt.Errorf("dispatch: decode logs notification result: %w", err)
	}
	return ParsedLogsNotification{
		SubscriptionID: np.Subscription,
		Slot:           res.Context.Slot,
		Signature:      res.Value.Signature,
		Logs:           res.Value.Logs,
	}, nil
}

// ParsedAccountNotification is the decoded payload of an account
// notification frame.
type ParsedAccountNotification struct {
	SubscriptionID int64
	Slot           uint64
	Pubkey         string
	AccountData    []byte
}

// ParseAccountNotification decodes an accountNotification frame's params
// into its subscription-id, slot, pubkey, and raw (base64-decoded) account
// data bytes.
func ParseAccountNotification(params json.RawMessage) (ParsedAccountNotification, error) {
	var np notificationParams
	if err := json.Unmarshal(params, &np); err != nil {
		return ParsedAccountNotification{}, fmt.Errorf("dispatch: decode notification params: %w", err)
	}
	var res accountNotificationResult
	if err := json.Unmarshal(np.Result, &res); err != nil {
		return ParsedAccountNotification{}, fmt.Errorf("dispatch: decode account notification result: %w", err)
	}
	var raw []byte
	if res.Value.Account.Data[0] != "" {
		decoded, err := base64.StdEncoding.DecodeString(res.Value.Account.Data[0])
		if err != nil {
			return ParsedAccountNotification{}, fmt.Errorf("dispatch: decode base64 account data: %w", err)
		}
		raw = decoded
	}
	return ParsedAccountNotification{
		SubscriptionID: np.Subscription,
		Slot:           res.Context.Slot,
		Pubkey:         res.Value.Pubkey,
		AccountData:    raw,
	}, nil
}

// confirmationSubscriptionID extracts the integer subscription-id from a
// confirmation frame's Result field.
func confirmationSubscriptionID(result json.RawMessage) (int64, error) {
	var n json.Number
	if err := json.Unmarshal(result, &n); err != nil {
		return 0, err
	}
	return n.Int64()
}

// errorInfo extracts a human-readable message from an error-response
// frame's Error field.
func errorInfo(raw json.RawMessage) string {
	var e struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &e); err != nil || e.Message == "" {
		return string(raw)
	}
	return fmt.Sprintf("code=%d message=%s", e.Code, e.Message)
}
