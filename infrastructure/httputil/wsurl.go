package httputil

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/solpulse/ingest/infrastructure/runtime"
)

// NormalizeWSURL validates and normalizes a WebSocket endpoint URL.
//
// It mirrors NormalizeBaseURL's rules (no user info, no fragment) but
// accepts ws/wss schemes instead of http/https, and requires wss whenever
// runtime.StrictIdentityMode() is enabled.
func NormalizeWSURL(raw string) (string, *url.URL, error) {
	endpoint := strings.TrimRight(strings.TrimSpace(raw), "/")
	if endpoint == "" {
		return "", nil, fmt.Errorf("websocket URL is required")
	}

	parsed, err := url.Parse(endpoint)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "", nil, fmt.Errorf("websocket URL must be a valid URL")
	}
	if parsed.User != nil {
		return "", nil, fmt.Errorf("websocket URL must not include user info")
	}
	if parsed.Scheme != "ws" && parsed.Scheme != "wss" {
		return "", nil, fmt.Errorf("websocket URL scheme must be ws or wss")
	}
	if parsed.Fragment != "" {
		return "", nil, fmt.Errorf("websocket URL must not include a fragment")
	}
	if runtime.StrictIdentityMode() && parsed.Scheme != "wss" {
		return "", nil, fmt.Errorf("websocket URL must use wss in strict identity mode")
	}

	return endpoint, parsed, nil
}
