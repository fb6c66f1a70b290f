// Command ingestd is the composition root for the blockchain ingestion
// pipeline: it wires the Configuration Registry, System Monitor, Connection
// Manager, Subscription Registry, Message Dispatcher, DEX Parsers, Event
// Router, and Price Aggregator together in the order described by the data
// flow in §2, then runs until SIGINT/SIGTERM. Wiring follows
// cmd/indexer's load-config/build-service/run-until-signal shape.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/solpulse/ingest/infrastructure/logging"
	"github.com/solpulse/ingest/infrastructure/metrics"
	"github.com/solpulse/ingest/internal/config"
	"github.com/solpulse/ingest/internal/dexparsers"
	"github.com/solpulse/ingest/internal/dispatch"
	"github.com/solpulse/ingest/internal/events"
	"github.com/solpulse/ingest/internal/manifest"
	"github.com/solpulse/ingest/internal/model"
	"github.com/solpulse/ingest/internal/monitor"
	"github.com/solpulse/ingest/internal/price"
	"github.com/solpulse/ingest/internal/subscription"
	"github.com/solpulse/ingest/internal/wsconn"
)

// target names one pool this process tracks: which program-id's socket
// carries it, which DEX layout decodes it, and whether it is watched via a
// logs or account subscription.
type target struct {
	ProgramID   string
	PoolAddress string
	DexKind     model.DexKind
	Kind        model.SubscriptionKind
}

// loadTargets resolves the tracked-pool list. POOLS_MANIFEST_PATH, when
// set, takes a declarative YAML manifest (internal/manifest); otherwise
// TRACKED_POOLS is parsed as a semicolon-separated list of
// "programID:poolAddress:dexKind:kind" quadruples. Both are kept outside
// the typed Configuration Registry because they are lists of composite
// records, not a scalar the registry's ConfigDataType set models.
func loadTargets() ([]target, error) {
	if path := os.Getenv("POOLS_MANIFEST_PATH"); path != "" {
		m, err := manifest.LoadFromPath(path)
		if err != nil {
			return nil, err
		}
		targets := make([]target, 0, len(m.Pools))
		for _, p := range m.Pools {
			targets = append(targets, target{
				ProgramID:   p.ProgramID,
				PoolAddress: p.PoolAddress,
				DexKind:     manifest.ResolveDexKind(p.DexKind),
				Kind:        manifest.ResolveSubscriptionKind(p.Kind),
			})
		}
		return targets, nil
	}
	return parseTargets(os.Getenv("TRACKED_POOLS"))
}

func parseTargets(raw string) ([]target, error) {
	var out []target
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return out, nil
	}
	for _, chunk := range strings.Split(raw, ";") {
		chunk = strings.TrimSpace(chunk)
		if chunk == "" {
			continue
		}
		parts := strings.Split(chunk, ":")
		if len(parts) != 4 {
			return nil, fmt.Errorf("ingestd: malformed TRACKED_POOLS entry %q", chunk)
		}
		out = append(out, target{
			ProgramID:   parts[0],
			PoolAddress: parts[1],
			DexKind:     model.DexKind(parts[2]),
			Kind:        model.SubscriptionKind(parts[3]),
		})
	}
	return out, nil
}

var requestSeq int64

func nextRequestID() int64 {
	return atomic.AddInt64(&requestSeq, 1)
}

// buildSubscribeFrame renders the outbound JSON-RPC subscribe request for
// one target's subscription kind.
func buildSubscribeFrame(id int64, t target) ([]byte, error) {
	type frame struct {
		JSONRPC string        `json:"jsonrpc"`
		ID      int64         `json:"id"`
		Method  string        `json:"method"`
		Params  []interface{} `json:"params"`
	}
	switch t.Kind {
	case model.SubscriptionLogs:
		return json.Marshal(frame{
			JSONRPC: "2.0", ID: id, Method: "logsSubscribe",
			Params: []interface{}{
				map[string]interface{}{"mentions": []string{t.PoolAddress}},
				map[string]interface{}{"commitment": "confirmed"},
			},
		})
	case model.SubscriptionAccount:
		return json.Marshal(frame{
			JSONRPC: "2.0", ID: id, Method: "accountSubscribe",
			Params: []interface{}{
				t.PoolAddress,
				map[string]interface{}{"encoding": "base64", "commitment": "confirmed"},
			},
		})
	case model.SubscriptionProgram:
		return json.Marshal(frame{
			JSONRPC: "2.0", ID: id, Method: "programSubscribe",
			Params: []interface{}{
				t.ProgramID,
				map[string]interface{}{"encoding": "base64", "commitment": "confirmed"},
			},
		})
	default:
		return nil, fmt.Errorf("ingestd: unknown subscription kind %q", t.Kind)
	}
}

// subscribe sends the subscribe frame over conn, waits for the server's
// confirmation, and binds the resulting subscription-id in the registry.
func subscribe(ctx context.Context, conn *wsconn.Connection, reg *subscription.Registry, logger *logging.Logger, t target, confirmTimeout time.Duration) error {
	id := nextRequestID()
	req, err := buildSubscribeFrame(id, t)
	if err != nil {
		return err
	}

	pending := reg.RegisterPending(id, t.ProgramID)
	if err := conn.Send(req); err != nil {
		return fmt.Errorf("ingestd: send subscribe for %s: %w", t.PoolAddress, err)
	}

	outcome := pending.Wait(confirmTimeout)
	if outcome.Kind != model.PendingSuccess {
		return fmt.Errorf("ingestd: subscribe for %s did not confirm: %v", t.PoolAddress, outcome.Kind)
	}

	reg.Bind(outcome.SubscriptionID, t.PoolAddress, t.DexKind, t.Kind, t.ProgramID)
	logger.LogSubscription(ctx, t.ProgramID, string(t.Kind), 0, nil)
	return nil
}

// sinkConsumer drains the dispatch Sink and forwards each event downstream.
// The actual trading/persistence consumers are external collaborators (see
// §6); this loop is the boundary where this pipeline hands events off.
func sinkConsumer(ctx context.Context, sink *dispatch.Sink, logger *logging.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-sink.Wait():
		case <-time.After(time.Second):
		}
		for _, ev := range sink.Drain() {
			logger.Info(ctx, "event emitted", map[string]interface{}{
				"event_type":   string(ev.EventType),
				"pool_address": ev.PoolAddress,
				"dex_kind":     string(ev.DexKind),
				"handler":      ev.Handler,
			})
		}
	}
}

func main() {
	logger := logging.NewFromEnv("ingestd")
	prom := metrics.Init("ingestd")

	cfgRegistry := config.NewRegistry(logger)
	cfgRegistry.RegisterAll(config.DefaultEntries())
	report := cfgRegistry.Load()
	if len(report.MissingRequired) > 0 || len(report.Invalid) > 0 {
		logger.Error(context.Background(), "config validation failed", fmt.Errorf("ingestd: invalid configuration"), map[string]interface{}{
			"missing_required": report.MissingRequired,
			"invalid":          report.Invalid,
		})
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	monitoringInterval := time.Duration(cfgRegistry.GetInt("MONITORING_INTERVAL_SECONDS", 60)) * time.Second

	sysMonitor := monitor.New(logger, prom, monitor.Config{
		ReportInterval: monitoringInterval,
		Thresholds: map[string]float64{
			"websocket_connect_ms":         cfgRegistry.GetFloat("THRESHOLD_WS_CONNECT_MS", 5000),
			"message_processing_ms":        cfgRegistry.GetFloat("THRESHOLD_MESSAGE_PROCESSING_MS", 100),
			"event_processing_ms":          cfgRegistry.GetFloat("THRESHOLD_EVENT_PROCESSING_MS", 50),
			"price_update_latency_ms":      cfgRegistry.GetFloat("THRESHOLD_PRICE_UPDATE_LATENCY_MS", 200),
			"circuit_breaker_failure_rate": cfgRegistry.GetFloat("THRESHOLD_CIRCUIT_BREAKER_FAILURE_RATE", 0.10),
			"trade_execution_ms":           cfgRegistry.GetFloat("THRESHOLD_TRADE_EXECUTION_MS", 500),
			"strategy_evaluation_ms":       cfgRegistry.GetFloat("THRESHOLD_STRATEGY_EVALUATION_MS", 100),
		},
	})

	wsCfg := wsconn.DefaultConfig()
	wsCfg.ConnectTimeout = cfgRegistry.GetDuration("WEBSOCKET_CONNECT_TIMEOUT", wsCfg.ConnectTimeout)
	wsCfg.PingInterval = cfgRegistry.GetDuration("WEBSOCKET_PING_INTERVAL", wsCfg.PingInterval)
	wsCfg.PingTimeout = cfgRegistry.GetDuration("WEBSOCKET_PING_TIMEOUT", wsCfg.PingTimeout)
	wsCfg.MaxMessageSize = int64(cfgRegistry.GetInt("WEBSOCKET_MAX_MESSAGE_SIZE", int(wsCfg.MaxMessageSize)))
	wsCfg.MaxRetriesPerEndpoint = cfgRegistry.GetInt("WEBSOCKET_MAX_RETRIES_PER_ENDPOINT", wsCfg.MaxRetriesPerEndpoint)
	wsCfg.MaxEndpointFailures = cfgRegistry.GetInt("MAX_ENDPOINT_FAILURES", wsCfg.MaxEndpointFailures)
	wsCfg.EndpointFailureReset = time.Duration(cfgRegistry.GetInt("ENDPOINT_FAILURE_RESET_SECONDS", int(wsCfg.EndpointFailureReset/time.Second))) * time.Second

	mgr := wsconn.NewManager(wsCfg, logger, prom, nil)

	primaryWSS := cfgRegistry.GetString("PRIMARY_WSS_URL", "")
	fallbackWSS := cfgRegistry.GetString("FALLBACK_WSS_URL", "")

	targets, err := loadTargets()
	if err != nil {
		logger.Fatal(ctx, "load tracked pools", err)
	}

	seenPrograms := map[string]bool{}
	for _, t := range targets {
		if seenPrograms[t.ProgramID] {
			continue
		}
		seenPrograms[t.ProgramID] = true
		mgr.RegisterEndpoints(t.ProgramID, primaryWSS, fallbackWSS)
	}

	reg := subscription.NewRegistry()
	parsers := dexparsers.NewDefaultRegistry()

	priceCfg := price.DefaultConfig()
	priceCfg.BaseAssetInterval = cfgRegistry.GetDuration("PRICEMONITOR_INTERVAL", priceCfg.BaseAssetInterval)
	priceCfg.ReferenceCacheTTL = cfgRegistry.GetDuration("SOL_PRICE_CACHE_DURATION", priceCfg.ReferenceCacheTTL)
	priceCfg.MaxHistory = cfgRegistry.GetInt("MAX_PRICE_HISTORY", priceCfg.MaxHistory)
	priceCfg.NativeAssetReferenceFallback = cfgRegistry.GetFloat("NATIVE_ASSET_REFERENCE_PRICE_FALLBACK", priceCfg.NativeAssetReferenceFallback)

	priceMonitor := price.New(priceCfg, logger, prom)
	if url := cfgRegistry.GetString("GENERALIST_PRICE_API_URL", ""); url != "" {
		src, err := price.NewGeneralistAggregatorSource(url)
		if err != nil {
			logger.Error(ctx, "invalid generalist price API URL", err, nil)
		} else {
			priceMonitor.SetGeneralistSource(src)
		}
	}
	if url := cfgRegistry.GetString("CONSTANT_PRODUCT_POOL_NATIVE_URL", ""); url != "" {
		src, err := price.NewPoolNativeSource("constant_product", url)
		if err != nil {
			logger.Error(ctx, "invalid constant-product pool-native URL", err, nil)
		} else {
			priceMonitor.RegisterPoolNativeSource(model.DexConstantProduct, src)
		}
	}
	if url := cfgRegistry.GetString("CONCENTRATED_LIQUIDITY_POOL_NATIVE_URL", ""); url != "" {
		src, err := price.NewPoolNativeSource("concentrated_liquidity", url)
		if err != nil {
			logger.Error(ctx, "invalid concentrated-liquidity pool-native URL", err, nil)
		} else {
			priceMonitor.RegisterPoolNativeSource(model.DexConcentratedLiquid, src)
		}
	}
	var refPrimary, refBackup price.ReferenceCurrencySource
	if url := cfgRegistry.GetString("REFERENCE_PRICE_PRIMARY_URL", ""); url != "" {
		refPrimary = price.NewReferenceCurrencyRESTSource(url)
	}
	if url := cfgRegistry.GetString("REFERENCE_PRICE_BACKUP_URL", ""); url != "" {
		refBackup = price.NewReferenceCurrencyRESTSource(url)
	}
	if refPrimary != nil || refBackup != nil {
		priceMonitor.SetReferenceCurrencySources(refPrimary, refBackup)
	}

	router := events.NewRouter(parsers, priceMonitor, logger)
	sink := dispatch.NewSink(256, prom)
	disp := dispatch.NewDispatcher(reg, parsers, router, sink, logger, prom)

	go sinkConsumer(ctx, sink, logger)

	mints := map[string]model.DexKind{}
	for _, t := range targets {
		conn, err := mgr.EnsureConnection(ctx, t.ProgramID)
		if err != nil {
			logger.Error(ctx, "ensure connection failed", err, map[string]interface{}{"program_id": t.ProgramID})
			continue
		}
		go disp.Run(ctx, conn)

		subTimeout := cfgRegistry.GetDuration("WEBSOCKET_SUBSCRIPTION_TIMEOUT", 60*time.Second)
		if err := subscribe(ctx, conn, reg, logger, t, subTimeout); err != nil {
			logger.Error(ctx, "subscribe failed", err, map[string]interface{}{"pool_address": t.PoolAddress})
			continue
		}
		mints[t.PoolAddress] = t.DexKind
	}

	go priceMonitor.RunPollLoop(ctx, mints)

	go func() {
		ticker := time.NewTicker(monitoringInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sysMonitor.SetGauge("dispatch_queue_depth", float64(sink.Depth()))
				stats := priceMonitor.Snapshot()
				logger.Info(ctx, "price monitor stats", map[string]interface{}{
					"primary_requests":   stats.PrimaryRequests,
					"secondary_requests": stats.SecondaryRequests,
					"fallback_requests":  stats.FallbackRequests,
					"successful_updates": stats.SuccessfulUpdates,
					"failed_updates":     stats.FailedUpdates,
				})
				for _, connMetrics := range mgr.Metrics() {
					sysMonitor.SetGauge("endpoint_success_rate_"+connMetrics.ProgramID, connMetrics.Primary.SuccessRate)
					sysMonitor.RecordMetric("endpoint_hourly_attempts", float64(connMetrics.Primary.HourlyAttempts), map[string]string{"program_id": connMetrics.ProgramID, "role": string(connMetrics.Primary.Role)}, "wsconn")
					if connMetrics.Fallback != nil {
						sysMonitor.RecordMetric("endpoint_hourly_attempts", float64(connMetrics.Fallback.HourlyAttempts), map[string]string{"program_id": connMetrics.ProgramID, "role": string(connMetrics.Fallback.Role)}, "wsconn")
					}
				}
			}
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info(ctx, "shutting down", nil)
	cancel()
	for programID := range seenPrograms {
		mgr.Close(programID, func(id string) { reg.DropForConnection(id) })
	}
}
