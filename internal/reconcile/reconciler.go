package reconcile

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/thgg666/seckill-core/internal/cache"
	"github.com/thgg666/seckill-core/internal/domain"
	"github.com/thgg666/seckill-core/internal/hotstore"
	"github.com/thgg666/seckill-core/internal/metrics"
	"github.com/thgg666/seckill-core/internal/notify"
)

// Config carries the reconciliation loop's timing and tolerance.
type Config struct {
	Interval          time.Duration
	MaxRetries        int
	RetryBackoff      time.Duration
	MinConsistencyPct float64 // below this, an alert fires
}

// ConsistencyReport summarizes one reconciliation pass over every
// active activity.
type ConsistencyReport struct {
	CheckedAt         time.Time
	ActivitiesChecked int
	Drifted           int
	Repaired          int
	Unrepaired        int
}

// ConsistencyPct returns the fraction of checked activities that were
// already consistent or successfully repaired.
func (r ConsistencyReport) ConsistencyPct() float64 {
	if r.ActivitiesChecked == 0 {
		return 1
	}
	return float64(r.ActivitiesChecked-r.Unrepaired) / float64(r.ActivitiesChecked)
}

// Reconciler runs the periodic drift-detection-and-repair loop.
type Reconciler struct {
	loader   DataLoader
	store    hotstore.Client
	cache    *cache.Manager
	notifier notify.Notifier
	cfg      Config
	logger   zerolog.Logger
	stop     chan struct{}
	done     chan struct{}
}

func New(loader DataLoader, store hotstore.Client, cacheManager *cache.Manager, notifier notify.Notifier, cfg Config, logger zerolog.Logger) *Reconciler {
	return &Reconciler{
		loader:   loader,
		store:    store,
		cache:    cacheManager,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Run blocks, running one reconciliation pass every Interval, until ctx
// is canceled or Stop is called.
func (r *Reconciler) Run(ctx context.Context) {
	defer close(r.done)
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			report := r.reconcileOnce(ctx)
			metrics.ConsistencyRate.Set(report.ConsistencyPct())
			r.logger.Info().
				Int("activities_checked", report.ActivitiesChecked).
				Int("drifted", report.Drifted).
				Int("repaired", report.Repaired).
				Int("unrepaired", report.Unrepaired).
				Msg("reconciliation pass complete")
			if report.ConsistencyPct() < r.cfg.MinConsistencyPct {
				r.notifier.Publish(notify.Alert{
					Source:    "reconciler",
					Severity:  "critical",
					Subject:   "consistency_rate",
					Message:   "hot store drift exceeded tolerance",
					Timestamp: time.Now(),
				})
			}
		case <-ctx.Done():
			return
		case <-r.stop:
			return
		}
	}
}

// Stop signals Run to exit and waits for it to finish.
func (r *Reconciler) Stop() {
	close(r.stop)
	<-r.done
}

func (r *Reconciler) reconcileOnce(ctx context.Context) ConsistencyReport {
	report := ConsistencyReport{CheckedAt: time.Now()}

	ids, err := r.loader.LoadActivityIDs(ctx)
	if err != nil {
		r.logger.Error().Err(err).Msg("reconciliation: failed to list active activities")
		return report
	}

	for _, activityID := range ids {
		report.ActivitiesChecked++
		if r.reconcileActivity(ctx, activityID) {
			continue
		}
		report.Drifted++
		r.logger.Warn().Str("key", hotstore.StockKey(activityID)).Msg("stock drift detected")
		if r.repairWithBackoff(ctx, activityID) {
			report.Repaired++
		} else {
			report.Unrepaired++
			r.notifier.Publish(notify.Alert{
				Source:    "reconciler",
				Severity:  "warning",
				Subject:   hotstore.StockKey(activityID),
				Message:   "stock drift could not be repaired after max retries",
				Timestamp: time.Now(),
			})
		}
	}

	return report
}

// reconcileActivity compares the cached stock against the system of
// record's authoritative value, returning true when they already agree.
func (r *Reconciler) reconcileActivity(ctx context.Context, activityID string) bool {
	cached, err := r.cache.GetStock(ctx, activityID)
	if err != nil && domain.KindOf(err) != domain.KindNotFound {
		r.logger.Warn().Err(err).Str("activity_id", activityID).Msg("reconciliation: cache read failed")
		return true // treat as not-drifted; a transient cache error shouldn't trigger a repair cascade
	}

	authoritative, err := r.loader.LoadStock(ctx, activityID)
	if err != nil {
		r.logger.Warn().Err(err).Str("activity_id", activityID).Msg("reconciliation: system of record read failed")
		return true
	}

	return cached == authoritative
}

// repairWithBackoff retries writing the authoritative stock value into
// the hot store up to MaxRetries times, backing off linearly between
// attempts. It writes the cache only — the reconciler never writes the
// system of record, that flow belongs to the order pipeline — so it
// goes through WriteStockCacheOnly rather than either of cache.Manager's
// source-writing strategies.
func (r *Reconciler) repairWithBackoff(ctx context.Context, activityID string) bool {
	for attempt := 1; attempt <= r.cfg.MaxRetries; attempt++ {
		authoritative, err := r.loader.LoadStock(ctx, activityID)
		if err == nil {
			if writeErr := r.cache.WriteStockCacheOnly(ctx, activityID, authoritative); writeErr == nil {
				return true
			}
		}
		select {
		case <-time.After(r.cfg.RetryBackoff * time.Duration(attempt)):
		case <-ctx.Done():
			return false
		}
	}
	return false
}
