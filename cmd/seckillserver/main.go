package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	_ "go.uber.org/automaxprocs"

	"github.com/thgg666/seckill-core/internal/activity"
	"github.com/thgg666/seckill-core/internal/cache"
	"github.com/thgg666/seckill-core/internal/config"
	"github.com/thgg666/seckill-core/internal/dispatch"
	"github.com/thgg666/seckill-core/internal/hotstore"
	"github.com/thgg666/seckill-core/internal/httpapi"
	"github.com/thgg666/seckill-core/internal/logging"
	"github.com/thgg666/seckill-core/internal/metrics"
	"github.com/thgg666/seckill-core/internal/notify"
	"github.com/thgg666/seckill-core/internal/ratelimit"
	"github.com/thgg666/seckill-core/internal/reconcile"
	"github.com/thgg666/seckill-core/internal/reservation"
	"github.com/thgg666/seckill-core/internal/workerpool"
)

// awaitReachable retries a connectivity probe with backoff before
// giving up. A transient blip during process start (backend still
// warming up) is not fatal; exhausting the retry budget is, and the
// process exits with code 2.
func awaitReachable(logger zerolog.Logger, name string, probe func(ctx context.Context) error) error {
	const attempts = 5
	backoff := 500 * time.Millisecond
	var err error
	for i := 0; i < attempts; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err = probe(ctx)
		cancel()
		if err == nil {
			return nil
		}
		logger.Warn().Err(err).Str("dependency", name).Int("attempt", i+1).Msg("dependency unreachable, retrying")
		time.Sleep(backoff)
		backoff *= 2
	}
	return err
}

func splitBrokers(brokers string) []string {
	result := []string{}
	for _, b := range strings.Split(brokers, ",") {
		if trimmed := strings.TrimSpace(b); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func main() {
	debug := flag.Bool("debug", false, "enable debug logging (overrides LOG_LEVEL)")
	flag.Parse()

	bootLogger := logging.New(logging.Options{Level: "info", Format: "pretty"})

	maxProcs := runtime.GOMAXPROCS(0)
	bootLogger.Info().Int("gomaxprocs", maxProcs).Msg("automaxprocs applied")

	cfg, err := config.Load(&bootLogger)
	if err != nil {
		bootLogger.Fatal().Err(err).Msg("failed to load configuration")
	}
	if *debug {
		cfg.LogLevel = "debug"
	}

	logger := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
	cfg.LogConfig(logger)

	store := hotstore.New(cfg.HotStoreAddr, cfg.HotStorePool, cfg.HotStorePoolMinIdle)
	if err := awaitReachable(logger, "hot store", func(ctx context.Context) error {
		return store.Ping(ctx)
	}); err != nil {
		logger.Error().Err(err).Msg("hot store unreachable after retries, aborting startup")
		os.Exit(2)
	}

	dispatcher, err := dispatch.New(dispatch.Config{
		Brokers:  splitBrokers(cfg.BrokerURL),
		Topic:    cfg.BrokerTopic,
		ClientID: cfg.BrokerClientID,
		QueueLen: cfg.WorkerQueueSize,
	}, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to construct message dispatcher")
		os.Exit(2)
	}
	if err := awaitReachable(logger, "broker", func(ctx context.Context) error {
		return dispatcher.Ping(ctx)
	}); err != nil {
		logger.Error().Err(err).Msg("broker unreachable after retries, aborting startup")
		os.Exit(2)
	}

	notifier := notify.New(cfg.NotifyURL, logger)

	limiter := ratelimit.New(ratelimit.Config{
		Global:  ratelimit.TierConfig{QPS: cfg.RLGlobalQPS, Burst: cfg.RLGlobalBurst},
		Address: ratelimit.TierConfig{QPS: cfg.RLIPQPS, Burst: cfg.RLIPBurst},
		User:    ratelimit.TierConfig{QPS: cfg.RLUserQPS, Burst: cfg.RLUserBurst},
	}, cfg.RLBucketSweep)

	pool := workerpool.New(cfg.WorkerPoolSize, cfg.WorkerQueueSize, logger)

	sourceWriter := cache.NewHTTPSourceWriter(cfg.SORBaseURL, 5*time.Second)
	cacheManager := cache.New(store, sourceWriter, pool, cache.Config{
		ActivityTTL:       cfg.CacheTTLActivity,
		StockTTL:          cfg.CacheTTLStock,
		UserLimitTTL:      cfg.CacheTTLUser,
		RefreshAheadRatio: cfg.CacheRefreshAheadRatio,
	}, logger)

	dataLoader := reconcile.NewHTTPDataLoader(cfg.SORBaseURL, 5*time.Second)
	cacheManager.SetStockLoader(dataLoader.LoadStock)

	validator := activity.New(cacheManager)

	engine := reservation.New(store, dispatcher, reservation.Config{
		UserCounterTTL: cfg.CacheTTLUser,
		IdempotencyTTL: cfg.IdempotencyTTL,
	}, logger)

	reconciler := reconcile.New(dataLoader, store, cacheManager, notifier, reconcile.Config{
		Interval:          cfg.ReconcilerInterval,
		MaxRetries:        cfg.ReconcilerMaxRetries,
		RetryBackoff:      time.Second,
		MinConsistencyPct: cfg.ReconcilerAlertThresh,
	}, logger)

	collector := metrics.New(notifier, metrics.AlertThresholds{
		MinHitRate:       cfg.MetricsMinHitRate,
		MaxErrorRate:     cfg.MetricsMaxErrorRate,
		MaxAvgLatency:    cfg.MetricsMaxAvgLatency,
		LowStockUnits:    cfg.MetricsLowStockUnits,
		MinConsistency:   cfg.ReconcilerAlertThresh,
		MaxCPUPercent:    cfg.MetricsMaxCPUPct,
		MaxMemoryPercent: cfg.MetricsMaxMemoryPct,
	}, cfg.MetricsInterval, logger)
	collector.ObserveQueue(pool)

	server := httpapi.New(httpapi.Config{
		Addr:           cfg.ServerPort,
		CORSOrigins:    cfg.CORSOrigins,
		AdminAuthToken: cfg.AdminAuthToken,
		ReadTimeout:    cfg.HTTPReadTimeout,
		WriteTimeout:   cfg.HTTPWriteTimeout,
	}, store, cacheManager, validator, engine, limiter, logger)

	promMux := http.NewServeMux()
	promMux.Handle("/metrics", promhttp.Handler())
	promSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: promMux}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool.Start(ctx)
	go reconciler.Run(ctx)
	go collector.Run(ctx)
	go func() {
		if err := promSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("prometheus exposition server failed")
		}
	}()

	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("HTTP front failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info().Msg("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("error during HTTP front shutdown")
	}
	_ = promSrv.Shutdown(shutdownCtx)

	reconciler.Stop()
	collector.Stop()
	pool.Stop()
	dispatcher.Close()
	notifier.Close()
	limiter.Close()
	cancel()
}
