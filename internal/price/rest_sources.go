package price

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/solpulse/ingest/infrastructure/httputil"
)

// maxResponseBytes bounds how much of a REST price response this package
// will buffer, per infrastructure/httputil.ReadAllStrict's guard against an
// upstream sending an unbounded body.
const maxResponseBytes = 1 << 20

// newRESTClient builds the shared HTTP client every REST source below uses:
// a bounded timeout plus the TLS-1.2-floor transport every outbound client
// in this codebase shares.
func newRESTClient(timeout time.Duration) *http.Client {
	client := httputil.CopyHTTPClientWithTimeout(nil, timeout, true)
	client.Transport = httputil.DefaultTransportWithMinTLS12()
	return client
}

// httpGetJSON is the shared request/decode path every REST source below
// uses, grounded on infrastructure/datafeed.Client's ethCall request shape:
// a context-bound *http.Request, a bounded-timeout client, and a
// size-limited body read before json.Unmarshal.
func httpGetJSON(ctx context.Context, client *http.Client, rawURL string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("price: unexpected status %d from %s", resp.StatusCode, rawURL)
	}

	body, err := httputil.ReadAllStrict(resp.Body, maxResponseBytes)
	if err != nil {
		return err
	}
	return json.Unmarshal(body, out)
}

// GeneralistAggregatorSource queries a generic token-price aggregator API
// (the role spec §4.5/§6 names as the "generalist" REST source, used for
// mints without a pool-native endpoint and as the pool-native sources'
// fallback).
type GeneralistAggregatorSource struct {
	client  *http.Client
	baseURL string
}

// NewGeneralistAggregatorSource constructs a GeneralistAggregatorSource
// pointed at baseURL, expected to accept ?mint=<address> and respond with
// {"price": <float>, "confidence": <float>}.
func NewGeneralistAggregatorSource(baseURL string) (*GeneralistAggregatorSource, error) {
	normalized, _, err := httputil.NormalizeBaseURL(baseURL, httputil.BaseURLOptions{})
	if err != nil {
		return nil, fmt.Errorf("price: generalist source: %w", err)
	}
	return &GeneralistAggregatorSource{
		client:  newRESTClient(10 * time.Second),
		baseURL: normalized,
	}, nil
}

type aggregatorResponse struct {
	Price      float64 `json:"price"`
	Confidence float64 `json:"confidence"`
}

func (s *GeneralistAggregatorSource) FetchPrice(ctx context.Context, mint string) (float64, float64, error) {
	if s == nil || s.baseURL == "" {
		return 0, 0, fmt.Errorf("price: generalist source not configured")
	}
	reqURL := fmt.Sprintf("%s/price?mint=%s", s.baseURL, url.QueryEscape(mint))
	var out aggregatorResponse
	if err := httpGetJSON(ctx, s.client, reqURL, &out); err != nil {
		return 0, 0, err
	}
	if out.Price <= 0 {
		return 0, 0, fmt.Errorf("price: aggregator returned non-positive price for %s", mint)
	}
	confidence := out.Confidence
	if confidence <= 0 {
		confidence = 0.5
	}
	return out.Price, confidence, nil
}

// PoolNativeSource queries a single DEX's own pool-quote REST endpoint,
// used when smart-routing determines a mint is better served by its
// originating DEX than by the generalist aggregator.
type PoolNativeSource struct {
	client  *http.Client
	baseURL string
	dexName string
}

// NewPoolNativeSource constructs a PoolNativeSource for one DEX's quote
// endpoint.
func NewPoolNativeSource(dexName, baseURL string) (*PoolNativeSource, error) {
	normalized, _, err := httputil.NormalizeBaseURL(baseURL, httputil.BaseURLOptions{})
	if err != nil {
		return nil, fmt.Errorf("price: pool-native source %s: %w", dexName, err)
	}
	return &PoolNativeSource{
		client:  newRESTClient(10 * time.Second),
		baseURL: normalized,
		dexName: dexName,
	}, nil
}

type poolNativeResponse struct {
	Price      float64 `json:"price"`
	Confidence float64 `json:"confidence"`
}

func (s *PoolNativeSource) FetchPrice(ctx context.Context, mint string) (float64, float64, error) {
	if s == nil || s.baseURL == "" {
		return 0, 0, fmt.Errorf("price: pool-native source %s not configured", s.dexName)
	}
	reqURL := fmt.Sprintf("%s/quote?mint=%s", s.baseURL, url.QueryEscape(mint))
	var out poolNativeResponse
	if err := httpGetJSON(ctx, s.client, reqURL, &out); err != nil {
		return 0, 0, err
	}
	if out.Price <= 0 {
		return 0, 0, fmt.Errorf("price: %s returned non-positive price for %s", s.dexName, mint)
	}
	confidence := out.Confidence
	if confidence <= 0 {
		confidence = 0.7
	}
	return out.Price, confidence, nil
}

// ReferenceCurrencyRESTSource resolves the chain's native-asset-to-fiat
// price from a REST quote endpoint (e.g. a generalist aggregator's
// native-asset route), used as the primary or backup source registered
// via Monitor.SetReferenceCurrencySources.
type ReferenceCurrencyRESTSource struct {
	client *http.Client
	url    string
}

// NewReferenceCurrencyRESTSource constructs a source pointed directly at a
// full quote URL (no templating: the reference currency is fixed per
// deployment).
func NewReferenceCurrencyRESTSource(quoteURL string) *ReferenceCurrencyRESTSource {
	return &ReferenceCurrencyRESTSource{
		client: newRESTClient(10 * time.Second),
		url:    quoteURL,
	}
}

type referenceQuoteResponse struct {
	Price float64 `json:"price"`
}

func (s *ReferenceCurrencyRESTSource) FetchReferencePrice(ctx context.Context) (float64, error) {
	if s == nil || s.url == "" {
		return 0, fmt.Errorf("price: reference currency source not configured")
	}
	var out referenceQuoteResponse
	if err := httpGetJSON(ctx, s.client, s.url, &out); err != nil {
		return 0, err
	}
	if out.Price <= 0 {
		return 0, fmt.Errorf("price: reference currency source returned non-positive price")
	}
	return out.Price, nil
}
