// Package price implements the Price Monitor & Aggregator: a uniform
// current-price query merging on-chain-derived prices (pushed by the Event
// Router) with smart-routed REST polling, cached with TTLs, per spec §4.5.
// The TTL-cache-plus-primary/backup shape is a direct generalization of
// infrastructure/fallback.Handler's Execute(ctx, primary, fallbacks...) and
// cacheEntry{value, expiration} map: one fallback.Handler-backed refresh
// path for the smart-routed base-asset price, and a second TTL'd lookup for
// the reference-currency price with its own primary/backup source.
package price

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/solpulse/ingest/infrastructure/fallback"
	"github.com/solpulse/ingest/infrastructure/logging"
	"github.com/solpulse/ingest/infrastructure/metrics"
	"github.com/solpulse/ingest/internal/model"
)

// RESTSource resolves a mint's price via a REST API. Implementations wrap
// the pool-native per-DEX endpoints and the generalist aggregator named in
// spec §4.5/§6.
type RESTSource interface {
	FetchPrice(ctx context.Context, mint string) (price float64, confidence float64, err error)
}

// ReferenceCurrencySource resolves the chain's quote-asset-to-fiat price
// (e.g. native-token-to-USD).
type ReferenceCurrencySource interface {
	FetchReferencePrice(ctx context.Context) (price float64, err error)
}

// Config configures a Monitor. Field names mirror the configuration surface
// named in spec §6.
type Config struct {
	BaseAssetInterval            time.Duration // PRICEMONITOR_INTERVAL
	ReferenceCacheTTL            time.Duration // SOL_PRICE_CACHE_DURATION
	MaxHistory                   int           // MAX_PRICE_HISTORY
	NativeAssetReferenceFallback float64       // NATIVE_ASSET_REFERENCE_PRICE_FALLBACK
}

// DefaultConfig returns the defaults named in spec §4.5/§6.
func DefaultConfig() Config {
	return Config{
		BaseAssetInterval:            30 * time.Second,
		ReferenceCacheTTL:            300 * time.Second,
		MaxHistory:                   100,
		NativeAssetReferenceFallback: 150.0,
	}
}

// Stats is the counter set spec §4.5 requires, exposed to the System
// Monitor.
type Stats struct {
	PrimaryRequests   int64
	SecondaryRequests int64
	FallbackRequests  int64
	SuccessfulUpdates int64
	FailedUpdates     int64
	LastUpdateTime    time.Time
}

type baseEntry struct {
	mu      sync.Mutex
	records map[model.PriceSource]model.PriceRecord
}

// Monitor is the process-wide Price Monitor & Aggregator. One instance is
// created at startup and passed by reference to the Event Router (as a
// PriceRecorder) and to downstream price-query callers.
type Monitor struct {
	cfg    Config
	logger *logging.Logger
	prom   *metrics.Metrics

	generalist RESTSource
	poolNative map[model.DexKind]RESTSource
	fb         *fallback.Handler

	refPrimary ReferenceCurrencySource
	refBackup  ReferenceCurrencySource

	entriesMu sync.RWMutex
	entries   map[string]*baseEntry

	historyMu sync.Mutex
	history   map[string]*historyRing

	routeMu  sync.Mutex
	routes   map[string]model.DexKind // first-resolution cache: mint -> dex kind used for routing
	override map[string]model.DexKind // manual override, checked before the cache

	refMu     sync.Mutex
	refRecord *model.PriceRecord
	refExpiry time.Time

	statsMu sync.Mutex
	stats   Stats
}

// New constructs a Monitor. logger/prom may be nil.
func New(cfg Config, logger *logging.Logger, prom *metrics.Metrics) *Monitor {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.BaseAssetInterval <= 0 {
		cfg.BaseAssetInterval = 30 * time.Second
	}
	if cfg.ReferenceCacheTTL <= 0 {
		cfg.ReferenceCacheTTL = 300 * time.Second
	}
	if cfg.MaxHistory <= 0 {
		cfg.MaxHistory = 100
	}
	if cfg.NativeAssetReferenceFallback <= 0 {
		cfg.NativeAssetReferenceFallback = 150.0
	}
	return &Monitor{
		cfg:        cfg,
		logger:     logger,
		prom:       prom,
		poolNative: make(map[model.DexKind]RESTSource),
		fb:         fallback.NewHandler(fallback.DefaultConfig()),
		entries:    make(map[string]*baseEntry),
		history:    make(map[string]*historyRing),
		routes:     make(map[string]model.DexKind),
		override:   make(map[string]model.DexKind),
	}
}

// SetGeneralistSource registers the generalist price aggregator REST source
// used when a mint has no native pool endpoint, and as the fallback source
// when a pool-native lookup fails.
func (m *Monitor) SetGeneralistSource(src RESTSource) { m.generalist = src }

// RegisterPoolNativeSource registers the pool-native REST endpoint for a
// DEX kind.
func (m *Monitor) RegisterPoolNativeSource(dexKind model.DexKind, src RESTSource) {
	m.poolNative[dexKind] = src
}

// SetReferenceCurrencySources registers the primary/backup reference-
// currency quote sources.
func (m *Monitor) SetReferenceCurrencySources(primary, backup ReferenceCurrencySource) {
	m.refPrimary = primary
	m.refBackup = backup
}

// OverrideRoute forces mint to resolve through the given DEX kind's
// pool-native source regardless of smart-routing, per spec §4.5's "manual
// override via configuration".
func (m *Monitor) OverrideRoute(mint string, dexKind model.DexKind) {
	m.routeMu.Lock()
	defer m.routeMu.Unlock()
	m.override[mint] = dexKind
}

// routeFor returns the REST source to use as primary for mint, caching the
// first resolution. Tokens whose DEX exposes a native pool quote endpoint
// route there; tokens without one route to the generalist.
func (m *Monitor) routeFor(mint string, dexKind model.DexKind) RESTSource {
	m.routeMu.Lock()
	if override, ok := m.override[mint]; ok {
		dexKind = override
	} else if cached, ok := m.routes[mint]; ok {
		dexKind = cached
	} else {
		m.routes[mint] = dexKind
	}
	m.routeMu.Unlock()

	if src, ok := m.poolNative[dexKind]; ok {
		return src
	}
	return m.generalist
}

var errNoSource = errors.New("price: no REST source configured")

// RecordBlockchainPrice stores an on-chain-derived price for mint,
// satisfying the events.PriceRecorder interface the Event Router pushes
// into. Blockchain-sourced prices participate in the same merge-by-
// confidence-then-recency rule as REST-sourced ones.
func (m *Monitor) RecordBlockchainPrice(mint string, priceValue float64, dexKind model.DexKind, confidence float64) {
	if priceValue <= 0 {
		return
	}
	record := model.PriceRecord{
		Mint:             mint,
		PriceInBaseAsset: priceValue,
		Source:           model.PriceSourceBlockchain,
		DexKind:          dexKind,
		TS:               time.Now(),
		Confidence:       clampConfidence(confidence),
	}
	m.store(mint, record)
	if m.prom != nil {
		m.prom.RecordPriceUpdate(string(model.PriceSourceBlockchain))
	}
	m.logger.LogPriceResolution(context.Background(), mint, string(model.PriceSourceBlockchain), record.Confidence, nil)
}

func clampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

func (m *Monitor) store(mint string, record model.PriceRecord) {
	m.entriesMu.Lock()
	e, ok := m.entries[mint]
	if !ok {
		e = &baseEntry{records: make(map[model.PriceSource]model.PriceRecord)}
		m.entries[mint] = e
	}
	m.entriesMu.Unlock()

	e.mu.Lock()
	e.records[record.Source] = record
	e.mu.Unlock()

	m.historyMu.Lock()
	ring, ok := m.history[mint]
	if !ok {
		ring = newHistoryRing(m.cfg.MaxHistory)
		m.history[mint] = ring
	}
	ring.Append(record)
	m.historyMu.Unlock()
}

// History returns the bounded append-on-update price history for a mint,
// oldest first.
func (m *Monitor) History(mint string) []model.PriceRecord {
	m.historyMu.Lock()
	defer m.historyMu.Unlock()
	ring, ok := m.history[mint]
	if !ok {
		return nil
	}
	return ring.Ordered()
}

// merge applies spec §4.5's rule: pick the source with the highest
// confidence; break ties by recency.
func merge(records map[model.PriceSource]model.PriceRecord, maxAge time.Duration) (model.PriceRecord, bool) {
	now := time.Now()
	candidates := make([]model.PriceRecord, 0, len(records))
	for _, r := range records {
		if maxAge > 0 && now.Sub(r.TS) > maxAge {
			continue
		}
		candidates = append(candidates, r)
	}
	if len(candidates) == 0 {
		return model.PriceRecord{}, false
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Confidence != candidates[j].Confidence {
			return candidates[i].Confidence > candidates[j].Confidence
		}
		return candidates[i].TS.After(candidates[j].TS)
	})
	return candidates[0], true
}

// CurrentPrice resolves mint's current base-asset price, merging whatever
// sources are live within maxAge. maxAge=0 forces a synchronous refresh
// before merging, per spec §8's boundary behavior. It never returns an
// error to the caller: failure to resolve is reported as (zero, false).
func (m *Monitor) CurrentPrice(ctx context.Context, mint string, dexKind model.DexKind, maxAge time.Duration) (model.PriceRecord, bool) {
	if maxAge == 0 {
		m.refreshMint(ctx, mint, dexKind)
	} else {
		m.entriesMu.RLock()
		e, ok := m.entries[mint]
		m.entriesMu.RUnlock()
		if !ok {
			m.refreshMint(ctx, mint, dexKind)
		} else {
			e.mu.Lock()
			stale := true
			for _, r := range e.records {
				if time.Since(r.TS) <= m.cfg.BaseAssetInterval {
					stale = false
					break
				}
			}
			e.mu.Unlock()
			if stale {
				m.refreshMint(ctx, mint, dexKind)
			}
		}
	}

	m.entriesMu.RLock()
	e, ok := m.entries[mint]
	m.entriesMu.RUnlock()
	if !ok {
		if m.prom != nil {
			m.prom.RecordPriceCacheResult(false)
		}
		return model.PriceRecord{}, false
	}

	e.mu.Lock()
	snapshot := make(map[model.PriceSource]model.PriceRecord, len(e.records))
	for k, v := range e.records {
		snapshot[k] = v
	}
	e.mu.Unlock()

	record, ok := merge(snapshot, maxAge)
	if m.prom != nil {
		m.prom.RecordPriceCacheResult(ok)
	}
	if !ok {
		return model.PriceRecord{}, false
	}

	if refPrice, refErr := m.ReferenceCurrencyPrice(ctx); refErr == nil {
		record.PriceInReferenceCurrency = &refPrice
	}
	return record, true
}

// refreshMint polls the smart-routed REST source for mint, falling back to
// the generalist aggregator on failure, via infrastructure/fallback.Handler.
func (m *Monitor) refreshMint(ctx context.Context, mint string, dexKind model.DexKind) {
	primary := m.routeFor(mint, dexKind)
	fetchCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	primaryFn := func(ctx context.Context) (interface{}, error) {
		if primary == nil {
			return nil, errNoSource
		}
		price, confidence, err := primary.FetchPrice(ctx, mint)
		if err != nil {
			return nil, err
		}
		return model.PriceRecord{Mint: mint, PriceInBaseAsset: price, DexKind: dexKind, TS: time.Now(), Confidence: clampConfidence(confidence)}, nil
	}
	fallbackFn := func(ctx context.Context) (interface{}, error) {
		if m.generalist == nil || m.generalist == primary {
			return nil, errNoSource
		}
		price, confidence, err := m.generalist.FetchPrice(ctx, mint)
		if err != nil {
			return nil, err
		}
		return model.PriceRecord{Mint: mint, PriceInBaseAsset: price, DexKind: dexKind, TS: time.Now(), Confidence: clampConfidence(confidence)}, nil
	}

	result := m.fb.Execute(fetchCtx, primaryFn, fallbackFn)

	m.statsMu.Lock()
	defer m.statsMu.Unlock()

	if result.Err != nil {
		m.stats.FailedUpdates++
		if m.prom != nil {
			m.prom.RecordError("price_monitor", "refresh")
		}
		m.logger.LogPriceResolution(ctx, mint, "rest", 0, result.Err)
		return
	}

	record := result.Value.(model.PriceRecord)
	if result.Source == "fallback" {
		record.Source = model.PriceSourceRESTSecondary
		m.stats.FallbackRequests++
	} else {
		record.Source = model.PriceSourceRESTPrimary
		m.stats.PrimaryRequests++
	}
	m.stats.SuccessfulUpdates++
	m.stats.LastUpdateTime = time.Now()
	m.store(mint, record)
	if m.prom != nil {
		m.prom.RecordPriceUpdate(string(record.Source))
	}
	m.logger.LogPriceResolution(ctx, mint, string(record.Source), record.Confidence, nil)
}

// ReferenceCurrencyPrice resolves the cached reference-currency (e.g.
// native-to-fiat) price, refreshing from the primary/backup source when the
// TTL has expired. On total failure with no cached value at all, it falls
// back to the configured NativeAssetReferenceFallback constant as a last
// resort, clearly an estimate (spec §9 open question 1).
func (m *Monitor) ReferenceCurrencyPrice(ctx context.Context) (float64, error) {
	m.refMu.Lock()
	if m.refRecord != nil && time.Now().Before(m.refExpiry) {
		price := m.refRecord.PriceInBaseAsset
		m.refMu.Unlock()
		return price, nil
	}
	stale := m.refRecord
	m.refMu.Unlock()

	fetchCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	price, err := m.fetchReferencePrice(fetchCtx)
	if err == nil {
		m.refMu.Lock()
		m.refRecord = &model.PriceRecord{Mint: "__reference__", PriceInBaseAsset: price, Source: model.PriceSourceRESTPrimary, TS: time.Now(), Confidence: 0.9}
		m.refExpiry = time.Now().Add(m.cfg.ReferenceCacheTTL)
		m.refMu.Unlock()
		return price, nil
	}

	if stale != nil {
		// Stale-cache policy: return the last known value rather than fail
		// outright. The value is returned unchanged; no confidence
		// accompanies it.
		return stale.PriceInBaseAsset, nil
	}

	return m.cfg.NativeAssetReferenceFallback, nil
}

func (m *Monitor) fetchReferencePrice(ctx context.Context) (float64, error) {
	m.statsMu.Lock()
	defer m.statsMu.Unlock()

	if m.refPrimary != nil {
		if price, err := m.refPrimary.FetchReferencePrice(ctx); err == nil {
			return price, nil
		}
	}
	if m.refBackup != nil {
		m.stats.SecondaryRequests++
		if price, err := m.refBackup.FetchReferencePrice(ctx); err == nil {
			return price, nil
		}
	}
	return 0, errNoSource
}

// Snapshot returns a copy of the current counters.
func (m *Monitor) Snapshot() Stats {
	m.statsMu.Lock()
	defer m.statsMu.Unlock()
	return m.stats
}

// RunPollLoop polls every registered mint on BaseAssetInterval until ctx is
// cancelled, one background task per mint-polling batch per spec §5.
func (m *Monitor) RunPollLoop(ctx context.Context, mints map[string]model.DexKind) {
	ticker := time.NewTicker(m.cfg.BaseAssetInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for mint, dexKind := range mints {
				m.refreshMint(ctx, mint, dexKind)
			}
		}
	}
}
