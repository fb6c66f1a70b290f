package price

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solpulse/ingest/internal/model"
)

type stubRESTSource struct {
	price      float64
	confidence float64
	err        error
	calls      int
}

func (s *stubRESTSource) FetchPrice(ctx context.Context, mint string) (float64, float64, error) {
	s.calls++
	if s.err != nil {
		return 0, 0, s.err
	}
	return s.price, s.confidence, nil
}

type stubReferenceSource struct {
	price float64
	err   error
}

func (s *stubReferenceSource) FetchReferencePrice(ctx context.Context) (float64, error) {
	if s.err != nil {
		return 0, s.err
	}
	return s.price, nil
}

func TestRecordBlockchainPriceIsQueryableImmediately(t *testing.T) {
	m := New(DefaultConfig(), nil, nil)
	m.RecordBlockchainPrice("MintA", 0.42, model.DexConstantProduct, 0.9)

	rec, ok := m.CurrentPrice(context.Background(), "MintA", model.DexConstantProduct, time.Minute)
	require.True(t, ok)
	assert.Equal(t, 0.42, rec.PriceInBaseAsset)
	assert.Equal(t, model.PriceSourceBlockchain, rec.Source)
}

func TestCurrentPriceMergesByConfidenceThenRecency(t *testing.T) {
	m := New(DefaultConfig(), nil, nil)
	m.RecordBlockchainPrice("MintA", 1.0, model.DexConstantProduct, 0.5)
	m.store("MintA", model.PriceRecord{Mint: "MintA", PriceInBaseAsset: 2.0, Source: model.PriceSourceRESTPrimary, TS: time.Now(), Confidence: 0.9})

	rec, ok := m.CurrentPrice(context.Background(), "MintA", model.DexConstantProduct, time.Minute)
	require.True(t, ok)
	assert.Equal(t, 2.0, rec.PriceInBaseAsset, "higher-confidence record should win")
}

func TestCurrentPriceTieBreaksOnRecency(t *testing.T) {
	m := New(DefaultConfig(), nil, nil)
	older := time.Now().Add(-time.Second)
	newer := time.Now()
	m.store("MintA", model.PriceRecord{Mint: "MintA", PriceInBaseAsset: 1.0, Source: model.PriceSourceBlockchain, TS: older, Confidence: 0.8})
	m.store("MintA", model.PriceRecord{Mint: "MintA", PriceInBaseAsset: 2.0, Source: model.PriceSourceRESTPrimary, TS: newer, Confidence: 0.8})

	rec, ok := m.CurrentPrice(context.Background(), "MintA", model.DexConstantProduct, time.Minute)
	require.True(t, ok)
	assert.Equal(t, 2.0, rec.PriceInBaseAsset)
}

func TestCurrentPriceFiltersOutRecordsOlderThanMaxAge(t *testing.T) {
	m := New(DefaultConfig(), nil, nil)
	m.store("MintA", model.PriceRecord{Mint: "MintA", PriceInBaseAsset: 1.0, Source: model.PriceSourceBlockchain, TS: time.Now().Add(-time.Hour), Confidence: 0.9})

	_, ok := m.CurrentPrice(context.Background(), "MintA", model.DexConstantProduct, time.Minute)
	assert.False(t, ok)
}

// TestSmartRoutingFallsBackToGeneralist exercises scenario S6: the
// pool-native source fails, and the generalist fallback succeeds at lower
// confidence, recorded as a fallback_requests increment.
func TestSmartRoutingFallsBackToGeneralist(t *testing.T) {
	m := New(DefaultConfig(), nil, nil)
	primary := &stubRESTSource{err: errors.New("upstream 500")}
	secondary := &stubRESTSource{price: 0.42, confidence: 0.8}
	m.RegisterPoolNativeSource(model.DexConstantProduct, primary)
	m.SetGeneralistSource(secondary)

	m.refreshMint(context.Background(), "MintA", model.DexConstantProduct)

	stats := m.Snapshot()
	assert.Equal(t, int64(1), stats.FallbackRequests)
	assert.Equal(t, int64(1), stats.SuccessfulUpdates)
	assert.Equal(t, int64(0), stats.FailedUpdates)

	rec, ok := m.CurrentPrice(context.Background(), "MintA", model.DexConstantProduct, time.Minute)
	require.True(t, ok)
	assert.Equal(t, 0.42, rec.PriceInBaseAsset)
	assert.Equal(t, model.PriceSourceRESTSecondary, rec.Source)
}

func TestSmartRoutingPrimarySuccessNeverCallsFallback(t *testing.T) {
	m := New(DefaultConfig(), nil, nil)
	primary := &stubRESTSource{price: 1.23, confidence: 0.9}
	secondary := &stubRESTSource{price: 9.99, confidence: 0.9}
	m.RegisterPoolNativeSource(model.DexConstantProduct, primary)
	m.SetGeneralistSource(secondary)

	m.refreshMint(context.Background(), "MintA", model.DexConstantProduct)

	assert.Equal(t, 0, secondary.calls)
	stats := m.Snapshot()
	assert.Equal(t, int64(1), stats.PrimaryRequests)
}

func TestRefreshMintWithNoSourcesMarksFailedUpdate(t *testing.T) {
	m := New(DefaultConfig(), nil, nil)
	m.refreshMint(context.Background(), "MintA", model.DexUnknown)

	stats := m.Snapshot()
	assert.Equal(t, int64(1), stats.FailedUpdates)
	_, ok := m.CurrentPrice(context.Background(), "MintA", model.DexUnknown, time.Minute)
	assert.False(t, ok)
}

func TestOverrideRouteForcesDexKind(t *testing.T) {
	m := New(DefaultConfig(), nil, nil)
	wrongDex := &stubRESTSource{price: 1.0, confidence: 0.9}
	rightDex := &stubRESTSource{price: 2.0, confidence: 0.9}
	m.RegisterPoolNativeSource(model.DexConstantProduct, wrongDex)
	m.RegisterPoolNativeSource(model.DexConcentratedLiquid, rightDex)
	m.OverrideRoute("MintA", model.DexConcentratedLiquid)

	m.refreshMint(context.Background(), "MintA", model.DexConstantProduct)

	assert.Equal(t, 0, wrongDex.calls)
	assert.Equal(t, 1, rightDex.calls)
}

func TestReferenceCurrencyPriceUsesPrimaryThenBackupThenFallback(t *testing.T) {
	m := New(DefaultConfig(), nil, nil)
	m.SetReferenceCurrencySources(&stubReferenceSource{err: errors.New("down")}, &stubReferenceSource{price: 151.5})

	price, err := m.ReferenceCurrencyPrice(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 151.5, price)
}

func TestReferenceCurrencyPriceFallsBackToConfiguredConstant(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NativeAssetReferenceFallback = 150.0
	m := New(cfg, nil, nil)
	m.SetReferenceCurrencySources(&stubReferenceSource{err: errors.New("down")}, &stubReferenceSource{err: errors.New("down")})

	price, err := m.ReferenceCurrencyPrice(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 150.0, price)
}

func TestReferenceCurrencyPriceIsCachedWithinTTL(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ReferenceCacheTTL = time.Minute
	m := New(cfg, nil, nil)
	src := &stubReferenceSource{price: 150.0}
	m.SetReferenceCurrencySources(src, nil)

	_, err := m.ReferenceCurrencyPrice(context.Background())
	require.NoError(t, err)

	src.price = 999.0 // mutate underlying source; cached value should still be served
	price, err := m.ReferenceCurrencyPrice(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 150.0, price)
}

func TestHistoryIsBoundedAndOldestEvictedFirst(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxHistory = 3
	m := New(cfg, nil, nil)
	for i := 0; i < 5; i++ {
		m.RecordBlockchainPrice("MintA", float64(i+1), model.DexConstantProduct, 0.9)
	}

	history := m.History("MintA")
	require.Len(t, history, 3)
	assert.Equal(t, 3.0, history[0].PriceInBaseAsset)
	assert.Equal(t, 5.0, history[2].PriceInBaseAsset)
}

func TestCurrentPriceWithNoRecordsReturnsNotOK(t *testing.T) {
	m := New(DefaultConfig(), nil, nil)
	m.poolNative = map[model.DexKind]RESTSource{}
	_, ok := m.CurrentPrice(context.Background(), "MintNeverSeen", model.DexUnknown, time.Hour)
	assert.False(t, ok)
}
