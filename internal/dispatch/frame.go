// Package dispatch implements the Message Dispatcher: raw-frame
// classification and per-connection sequential routing to type-specific
// handlers. Frame classification is grounded directly on the readMessages
// loop in the meteora WebSocket manager reference (id+result for
// confirmations, method for notifications, error for error frames).
package dispatch

import "encoding/json"

// FrameKind is the closed set of classified upstream frame shapes.
type FrameKind string

const (
	FrameConfirmation        FrameKind = "confirmation"
	FrameError                FrameKind = "error"
	FrameLogsNotification     FrameKind = "logs_notification"
	FrameAccountNotification  FrameKind = "account_notification"
	FrameProgramNotification  FrameKind = "program_notification"
	FrameUnknown              FrameKind = "unknown"
)

// rawFrame mirrors the Solana JSON-RPC 2.0 wire shapes without committing to
// a single struct per method — params.result's inner shape varies by method
// and is decoded later by the notification-specific handler.
type rawFrame struct {
	ID     json.Number     `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  json.RawMessage `json:"error"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

// Frame is a classified, partially-decoded inbound message.
type Frame struct {
	Kind   FrameKind
	ID     int64
	HasID  bool
	Result json.RawMessage
	Error  json.RawMessage
	Method string
	Params json.RawMessage
}

// Classify applies the ordered frame classification rules from spec §4.3.
// A JSON parse failure is reported as (Frame{}, err); the caller counts and
// drops it without terminating the dispatch loop.
func Classify(raw []byte) (Frame, error) {
	var rf rawFrame
	dec := json.NewDecoder(newNumberPreservingReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&rf); err != nil {
		return Frame{}, err
	}

	f := Frame{Method: rf.Method, Params: rf.Params, Error: rf.Error, Result: rf.Result}

	var id int64
	hasID := false
	if rf.ID != "" {
		if parsed, err := rf.ID.Int64(); err == nil {
			id = parsed
			hasID = true
		}
	}
	f.ID = id
	f.HasID = hasID

	isIntegerResult := len(rf.Result) > 0 && isJSONInteger(rf.Result)

	switch {
	case hasID && isIntegerResult:
		f.Kind = FrameConfirmation
	case len(rf.Error) > 0:
		f.Kind = FrameError
	case rf.Method == "logsNotification":
		f.Kind = FrameLogsNotification
	case rf.Method == "accountNotification":
		f.Kind = FrameAccountNotification
	case rf.Method == "programNotification":
		f.Kind = FrameProgramNotification
	default:
		f.Kind = FrameUnknown
	}
	return f, nil
}

func isJSONInteger(raw json.RawMessage) bool {
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return false
	}
	_, err := n.Int64()
	return err == nil
}

// newNumberPreservingReader adapts a []byte into an io.Reader; split out so
// Classify reads cleanly above.
func newNumberPreservingReader(raw []byte) *rawReader {
	return &rawReader{data: raw}
}

type rawReader struct {
	data []byte
	pos  int
}

func (r *rawReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.data) {
		return 0, errEOF
	}
	n := copy(p, r.data[r.pos:])
	r.pos += n
	return n, nil
}

var errEOF = jsonEOFError{}

type jsonEOFError struct{}

func (jsonEOFError) Error() string { return "EOF" }
