// Package cache is the typed cache manager sitting between every other
// component and the hot store: typed Get/Set/Invalidate for the three
// domain value objects, plus the write-propagation strategies a caller
// picks per call site.
package cache

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/thgg666/seckill-core/internal/domain"
	"github.com/thgg666/seckill-core/internal/hotstore"
	"github.com/thgg666/seckill-core/internal/metrics"
	"github.com/thgg666/seckill-core/internal/workerpool"
)

// StockLoader fetches the authoritative current stock from the system of
// record. reconcile.HTTPDataLoader supplies the real implementation at
// startup via SetStockLoader; leaving it unset just disables refresh-
// ahead for stock (the entry still expires; GetStock does not reload a
// missing entry and reports NotFound).
type StockLoader func(ctx context.Context, activityID string) (int, error)

// Config carries the per-type TTLs and the refresh-ahead threshold.
type Config struct {
	ActivityTTL       time.Duration
	StockTTL          time.Duration
	UserLimitTTL      time.Duration
	RefreshAheadRatio float64 // e.g. 0.1 — reload when remaining TTL / full TTL drops below this
}

// Manager is the typed cache layer. All shared state lives in the hot
// store; writes reach the system of record only through the SourceWriter
// handed in at construction, so components depend on explicit
// collaborators, not on each other's in-memory state.
type Manager struct {
	store       hotstore.Client
	source      SourceWriter
	pool        *workerpool.Pool
	cfg         Config
	logger      zerolog.Logger
	stockLoader StockLoader
}

// New constructs a Manager. pool is used for the async leg of
// write-behind and for refresh-ahead background reloads; both ride the
// same bounded worker pool as every other background task rather than
// spawning ad hoc goroutines.
func New(store hotstore.Client, source SourceWriter, pool *workerpool.Pool, cfg Config, logger zerolog.Logger) *Manager {
	return &Manager{store: store, source: source, pool: pool, cfg: cfg, logger: logger}
}

// SetStockLoader wires the system-of-record read path used by stock
// refresh-ahead. Called once at startup after reconcile.HTTPDataLoader
// is constructed.
func (m *Manager) SetStockLoader(loader StockLoader) {
	m.stockLoader = loader
}

// --- Activity ---

func (m *Manager) GetActivity(ctx context.Context, activityID string) (*domain.Activity, error) {
	key := hotstore.ActivityKey(activityID)
	raw, err := m.store.Get(ctx, key)
	if err != nil {
		if domain.KindOf(err) == domain.KindNotFound {
			metrics.CacheHits.WithLabelValues("activity", "miss").Inc()
		}
		return nil, err
	}
	metrics.CacheHits.WithLabelValues("activity", "hit").Inc()
	var a domain.Activity
	if err := json.Unmarshal([]byte(raw), &a); err != nil {
		return nil, domain.Wrap(domain.KindInternal, "corrupt activity cache entry", err)
	}
	return &a, nil
}

func (m *Manager) SetActivity(ctx context.Context, a *domain.Activity) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return domain.Wrap(domain.KindInternal, "marshal activity", err)
	}
	return m.store.Set(ctx, hotstore.ActivityKey(a.ID), string(payload), m.cfg.ActivityTTL)
}

func (m *Manager) InvalidateActivity(ctx context.Context, activityID string) error {
	return m.store.Del(ctx, hotstore.ActivityKey(activityID))
}

// --- Stock ---

func (m *Manager) GetStock(ctx context.Context, activityID string) (int, error) {
	key := hotstore.StockKey(activityID)
	raw, err := m.store.Get(ctx, key)
	if err != nil {
		if domain.KindOf(err) == domain.KindNotFound {
			metrics.CacheHits.WithLabelValues("stock", "miss").Inc()
		}
		return 0, err
	}
	metrics.CacheHits.WithLabelValues("stock", "hit").Inc()
	stock, err := strconv.Atoi(raw)
	if err != nil {
		return 0, domain.Wrap(domain.KindInternal, "corrupt stock cache entry", err)
	}
	if m.stockLoader != nil {
		m.maybeRefreshAhead(key, m.cfg.StockTTL, func(taskCtx context.Context) error {
			fresh, err := m.stockLoader(taskCtx, activityID)
			if err != nil {
				return err
			}
			return m.store.Set(taskCtx, key, strconv.Itoa(fresh), m.cfg.StockTTL)
		})
	}
	return stock, nil
}

// WriteStockCacheOnly persists currentStock to the hot store without
// touching the system of record. This is the repair leg the reconciler
// uses: repairing drift must never push the cached value back into the
// system of record — that flow belongs to the order pipeline. WriteStock's
// WriteThrough/WriteBehind strategies both write the source too, so
// repair needs this separate, narrower entry point instead of reusing
// either.
func (m *Manager) WriteStockCacheOnly(ctx context.Context, activityID string, currentStock int) error {
	return m.store.Set(ctx, hotstore.StockKey(activityID), strconv.Itoa(currentStock), m.cfg.StockTTL)
}

// WriteStock persists currentStock to the hot store and, according to
// strategy, either also writes the system of record synchronously
// (WriteThrough) or queues that write to drain asynchronously
// (WriteBehind).
func (m *Manager) WriteStock(ctx context.Context, activityID string, currentStock int, strategy WriteStrategy) error {
	key := hotstore.StockKey(activityID)
	if err := m.store.Set(ctx, key, strconv.Itoa(currentStock), m.cfg.StockTTL); err != nil {
		return err
	}

	switch strategy {
	case WriteThrough:
		if err := m.source.SaveStock(ctx, activityID, currentStock); err != nil {
			return domain.Wrap(domain.KindInternal, "system of record write failed", err)
		}
		return nil
	case WriteBehind:
		err := m.pool.Submit(func(taskCtx context.Context) {
			if err := m.source.SaveStock(taskCtx, activityID, currentStock); err != nil {
				m.logger.Error().Err(err).Str("activity_id", activityID).Msg("write-behind stock save failed")
			}
		})
		if err != nil {
			m.logger.Warn().Str("activity_id", activityID).Msg("write-behind queue full, stock write-behind dropped")
		}
		return nil
	default:
		return domain.New(domain.KindInternal, "unknown write strategy")
	}
}

// --- User purchase counter ---

func (m *Manager) GetUserCounter(ctx context.Context, userID, activityID string) (int, error) {
	key := hotstore.UserLimitKey(userID, activityID)
	raw, err := m.store.Get(ctx, key)
	if err != nil {
		if domain.KindOf(err) == domain.KindNotFound {
			return 0, nil
		}
		return 0, err
	}
	count, err := strconv.Atoi(raw)
	if err != nil {
		return 0, domain.Wrap(domain.KindInternal, "corrupt user counter cache entry", err)
	}
	return count, nil
}

func (m *Manager) WriteUserCounter(ctx context.Context, userID, activityID string, purchasedCount int, strategy WriteStrategy) error {
	key := hotstore.UserLimitKey(userID, activityID)
	if err := m.store.Set(ctx, key, strconv.Itoa(purchasedCount), m.cfg.UserLimitTTL); err != nil {
		return err
	}

	switch strategy {
	case WriteThrough:
		if err := m.source.SaveUserCounter(ctx, userID, activityID, purchasedCount); err != nil {
			return domain.Wrap(domain.KindInternal, "system of record write failed", err)
		}
		return nil
	case WriteBehind:
		err := m.pool.Submit(func(taskCtx context.Context) {
			if err := m.source.SaveUserCounter(taskCtx, userID, activityID, purchasedCount); err != nil {
				m.logger.Error().Err(err).Str("user_id", userID).Str("activity_id", activityID).Msg("write-behind user counter save failed")
			}
		})
		if err != nil {
			m.logger.Warn().Str("user_id", userID).Msg("write-behind queue full, user counter write-behind dropped")
		}
		return nil
	default:
		return domain.New(domain.KindInternal, "unknown write strategy")
	}
}

// maybeRefreshAhead checks the remaining TTL ratio on key and, if it has
// dropped below the configured threshold, submits reload as a background
// task so the NEXT reader gets a fresh value instead of a cold miss.
// Submission failures (queue full) are swallowed: a missed refresh-ahead
// just means the entry expires normally; GetStock does not reload it,
// so the next reader gets NotFound until the entry is written again.
func (m *Manager) maybeRefreshAhead(key string, fullTTL time.Duration, reload func(ctx context.Context) error) {
	if fullTTL <= 0 || m.cfg.RefreshAheadRatio <= 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	remaining, err := m.store.TTL(ctx, key)
	if err != nil || remaining <= 0 {
		return
	}
	if float64(remaining)/float64(fullTTL) >= m.cfg.RefreshAheadRatio {
		return
	}
	_ = m.pool.Submit(func(taskCtx context.Context) {
		if err := reload(taskCtx); err != nil {
			m.logger.Warn().Err(err).Str("key", key).Msg("refresh-ahead reload failed")
		}
	})
}
