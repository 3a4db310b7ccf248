// Package metrics holds the Prometheus instrumentation for every other
// component plus a periodic sampler of host resource usage. Counters
// are package-level and registered in init() so owning components can
// update them inline without holding a collector reference.
package metrics

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/rs/zerolog"

	"github.com/thgg666/seckill-core/internal/metrics/platform"
	"github.com/thgg666/seckill-core/internal/notify"
)

var (
	ReservationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "seckill_reservations_total",
		Help: "Total reservation attempts by outcome",
	}, []string{"outcome"})

	ReservationLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "seckill_reservation_latency_seconds",
		Help:    "End-to-end reservation request latency",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	})

	RateLimitRejections = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "seckill_rate_limit_rejections_total",
		Help: "Requests rejected by the rate limiter, by tier",
	}, []string{"tier"})

	CacheHits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "seckill_cache_requests_total",
		Help: "Cache lookups by object kind and hit/miss",
	}, []string{"kind", "result"})

	DispatchErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "seckill_dispatch_errors_total",
		Help: "Message dispatch failures by error kind",
	}, []string{"kind"})

	RollbacksTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "seckill_rollbacks_total",
		Help: "Compensating rollbacks performed after dispatch failure",
	})

	WorkerQueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "seckill_worker_queue_depth",
		Help: "Current number of tasks waiting in the worker pool queue",
	})

	WorkerQueueCapacity = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "seckill_worker_queue_capacity",
		Help: "Maximum capacity of the worker pool queue",
	})

	WorkerTasksDropped = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "seckill_worker_tasks_dropped_total",
		Help: "Total tasks dropped because the worker pool queue was full",
	})

	StockRemaining = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "seckill_stock_remaining",
		Help: "Last observed remaining stock for an activity",
	}, []string{"activity_id"})

	ConsistencyRate = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "seckill_consistency_rate",
		Help: "Fraction of activities whose cached stock matched the system of record on the last reconciliation pass",
	})

	CPUUsagePercent = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "seckill_cpu_usage_percent",
		Help: "Host CPU usage percentage",
	})

	MemoryUsagePercent = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "seckill_memory_usage_percent",
		Help: "Host memory usage percentage",
	})

	GoroutinesActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "seckill_goroutines_active",
		Help: "Current number of goroutines",
	})

	MemoryLimitBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "seckill_memory_limit_bytes",
		Help: "Container memory limit from the cgroup filesystem, 0 when no limit is found",
	})
)

func init() {
	prometheus.MustRegister(
		ReservationsTotal,
		ReservationLatency,
		RateLimitRejections,
		CacheHits,
		DispatchErrors,
		RollbacksTotal,
		WorkerQueueDepth,
		WorkerQueueCapacity,
		WorkerTasksDropped,
		StockRemaining,
		ConsistencyRate,
		CPUUsagePercent,
		MemoryUsagePercent,
		GoroutinesActive,
		MemoryLimitBytes,
	)
}

// Reset zeroes every labeled counter family and observation gauge.
// Unlabeled cumulative counters and histograms are monotone by
// Prometheus convention and are left alone; scrapers derive rates from
// them regardless of absolute value.
func Reset() {
	ReservationsTotal.Reset()
	RateLimitRejections.Reset()
	CacheHits.Reset()
	DispatchErrors.Reset()
	StockRemaining.Reset()
	WorkerQueueDepth.Set(0)
	WorkerTasksDropped.Set(0)
	ConsistencyRate.Set(0)
}

// AlertThresholds configures when the Collector emits an alert via
// notify.Notifier instead of only updating a gauge. A zero value
// disables the corresponding check; LowStockUnits gates both stock
// checks.
type AlertThresholds struct {
	MinHitRate     float64       // cache hit rate floor, e.g. 0.8
	MaxErrorRate   float64       // dispatch-failure rate ceiling, e.g. 0.05
	MaxAvgLatency  time.Duration // avg reservation latency ceiling, e.g. 100ms
	LowStockUnits  int           // per-activity remaining-stock warning line
	MinConsistency float64       // reconciler consistency-rate floor

	MaxCPUPercent    float64
	MaxMemoryPercent float64
}

// QueueStats is the worker pool's observable surface; workerpool.Pool
// satisfies it. Kept as a local interface so this package doesn't
// import the pool.
type QueueStats interface {
	QueueDepth() int
	QueueCapacity() int
	DroppedTasks() int64
}

// Collector periodically samples host resources, reads the registry's
// current counters, and checks alert thresholds. The request-path
// counters above are updated inline by their owning components
// (ReservationsTotal.WithLabelValues(...).Inc(), etc.) — Collector
// itself only owns the background sampling loop.
type Collector struct {
	notifier   notify.Notifier
	thresholds AlertThresholds
	interval   time.Duration
	queue      QueueStats
	logger     zerolog.Logger
	stop       chan struct{}
	done       chan struct{}
}

func New(notifier notify.Notifier, thresholds AlertThresholds, interval time.Duration, logger zerolog.Logger) *Collector {
	return &Collector{
		notifier:   notifier,
		thresholds: thresholds,
		interval:   interval,
		logger:     logger,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// ObserveQueue registers the worker pool whose depth/capacity/dropped
// gauges the sampling loop should keep current. Optional; nil disables
// the queue gauges.
func (c *Collector) ObserveQueue(q QueueStats) { c.queue = q }

// Run blocks, sampling host resources every interval until ctx is
// canceled or Stop is called.
func (c *Collector) Run(ctx context.Context) {
	defer close(c.done)
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.sample(ctx)
		case <-ctx.Done():
			return
		case <-c.stop:
			return
		}
	}
}

func (c *Collector) Stop() {
	close(c.stop)
	<-c.done
}

func (c *Collector) sample(ctx context.Context) {
	snap := platform.Collect(ctx)
	CPUUsagePercent.Set(snap.CPUPercent)
	MemoryUsagePercent.Set(snap.MemoryUsedPct)
	GoroutinesActive.Set(float64(snap.Goroutines))
	MemoryLimitBytes.Set(float64(snap.MemoryLimitBts))

	if c.queue != nil {
		WorkerQueueDepth.Set(float64(c.queue.QueueDepth()))
		WorkerQueueCapacity.Set(float64(c.queue.QueueCapacity()))
		WorkerTasksDropped.Set(float64(c.queue.DroppedTasks()))
	}

	if c.thresholds.MaxCPUPercent > 0 && snap.CPUPercent > c.thresholds.MaxCPUPercent {
		c.alert("warning", "cpu_usage_percent",
			fmt.Sprintf("host CPU usage %.1f%% above %.1f%%", snap.CPUPercent, c.thresholds.MaxCPUPercent))
	}
	if c.thresholds.MaxMemoryPercent > 0 && snap.MemoryUsedPct > c.thresholds.MaxMemoryPercent {
		c.alert("warning", "memory_usage_percent",
			fmt.Sprintf("host memory usage %.1f%% above %.1f%%", snap.MemoryUsedPct, c.thresholds.MaxMemoryPercent))
	}

	flat, err := gatherFlat()
	if err != nil {
		c.logger.Error().Err(err).Msg("metrics registry gather failed")
		return
	}
	c.checkDerived(derive(flat, c.thresholds.LowStockUnits))
}

// checkDerived applies the business alert thresholds to the stats
// derived from the registry's current counters: low hit-rate, high
// error-rate, high average latency, low-stock and out-of-stock
// activity counts, and the reconciler's consistency rate.
func (c *Collector) checkDerived(d derivedStats) {
	t := c.thresholds
	if t.MinHitRate > 0 && d.hasHitRate && d.hitRate < t.MinHitRate {
		c.alert("warning", "cache_hit_rate",
			fmt.Sprintf("cache hit rate %.3f below %.2f", d.hitRate, t.MinHitRate))
	}
	if t.MaxErrorRate > 0 && d.hasErrorRate && d.errorRate > t.MaxErrorRate {
		c.alert("error", "error_rate",
			fmt.Sprintf("dispatch error rate %.3f above %.2f", d.errorRate, t.MaxErrorRate))
	}
	if t.MaxAvgLatency > 0 && d.hasLatency && d.avgLatencySeconds > t.MaxAvgLatency.Seconds() {
		c.alert("warning", "avg_latency_seconds",
			fmt.Sprintf("average reservation latency %.4fs above %s", d.avgLatencySeconds, t.MaxAvgLatency))
	}
	if t.LowStockUnits > 0 && d.lowStock > 0 {
		c.alert("warning", "low_stock_activities",
			fmt.Sprintf("%d activities at or below %d remaining units", d.lowStock, t.LowStockUnits))
	}
	if t.LowStockUnits > 0 && d.outOfStock > 0 {
		c.alert("critical", "out_of_stock_activities",
			fmt.Sprintf("%d activities out of stock", d.outOfStock))
	}
	if t.MinConsistency > 0 && d.hasConsistency && d.consistency < t.MinConsistency {
		c.alert("critical", "consistency_rate",
			fmt.Sprintf("consistency rate %.3f below %.2f", d.consistency, t.MinConsistency))
	}
}

// alert publishes to the notifier and logs at a level matching the
// severity, so operators without an alert subscriber still see it.
func (c *Collector) alert(severity, subject, message string) {
	c.notifier.Publish(notify.Alert{
		Source:    "metrics",
		Severity:  severity,
		Subject:   subject,
		Message:   message,
		Timestamp: time.Now(),
	})
	event := c.logger.Warn()
	if severity == "error" || severity == "critical" {
		event = c.logger.Error()
	}
	event.Str("severity", severity).Str("subject", subject).Msg(message)
}

// gatherFlat reads the process-global Prometheus registry and flattens
// every metric family into a name{label=value,...} -> value map.
// Histograms and summaries contribute _count and _sum entries, which is
// enough to derive averages without duplicating bucket state.
func gatherFlat() (map[string]float64, error) {
	fams, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		return nil, err
	}
	flat := make(map[string]float64)
	for _, fam := range fams {
		for _, m := range fam.GetMetric() {
			suffix := labelSuffix(m.GetLabel())
			switch {
			case m.GetCounter() != nil:
				flat[fam.GetName()+suffix] = m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				flat[fam.GetName()+suffix] = m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				flat[fam.GetName()+"_count"+suffix] = float64(m.GetHistogram().GetSampleCount())
				flat[fam.GetName()+"_sum"+suffix] = m.GetHistogram().GetSampleSum()
			case m.GetSummary() != nil:
				flat[fam.GetName()+"_count"+suffix] = float64(m.GetSummary().GetSampleCount())
				flat[fam.GetName()+"_sum"+suffix] = m.GetSummary().GetSampleSum()
			case m.GetUntyped() != nil:
				flat[fam.GetName()+suffix] = m.GetUntyped().GetValue()
			}
		}
	}
	return flat, nil
}

func labelSuffix(pairs []*dto.LabelPair) string {
	if len(pairs) == 0 {
		return ""
	}
	parts := make([]string, 0, len(pairs))
	for _, p := range pairs {
		parts = append(parts, p.GetName()+"="+p.GetValue())
	}
	sort.Strings(parts)
	return "{" + strings.Join(parts, ",") + "}"
}

// derivedStats are the alert-threshold inputs computed from the
// flattened registry state.
type derivedStats struct {
	hitRate           float64
	hasHitRate        bool
	errorRate         float64
	hasErrorRate      bool
	avgLatencySeconds float64
	hasLatency        bool
	lowStock          int
	outOfStock        int
	consistency       float64
	hasConsistency    bool
}

// derive computes rates and stock counts from the flattened registry.
// lowStockUnits is the per-activity warning line; 0 disables the
// low-stock count. A consistency gauge still at 0 means no
// reconciliation pass has completed yet and is not treated as a
// reported rate.
func derive(flat map[string]float64, lowStockUnits int) derivedStats {
	var d derivedStats
	var hits, misses, reservations, dispatchErrs float64
	for key, v := range flat {
		switch {
		case strings.HasPrefix(key, "seckill_cache_requests_total{"):
			if strings.Contains(key, "result=hit") {
				hits += v
			} else if strings.Contains(key, "result=miss") {
				misses += v
			}
		case strings.HasPrefix(key, "seckill_reservations_total{"):
			reservations += v
		case strings.HasPrefix(key, "seckill_dispatch_errors_total{"):
			dispatchErrs += v
		case strings.HasPrefix(key, "seckill_stock_remaining{"):
			if v <= 0 {
				d.outOfStock++
			} else if lowStockUnits > 0 && v <= float64(lowStockUnits) {
				d.lowStock++
			}
		}
	}
	if hits+misses > 0 {
		d.hitRate = hits / (hits + misses)
		d.hasHitRate = true
	}
	if reservations > 0 {
		d.errorRate = dispatchErrs / reservations
		d.hasErrorRate = true
	}
	if count := flat["seckill_reservation_latency_seconds_count"]; count > 0 {
		d.avgLatencySeconds = flat["seckill_reservation_latency_seconds_sum"] / count
		d.hasLatency = true
	}
	if rate, ok := flat["seckill_consistency_rate"]; ok && rate > 0 {
		d.consistency = rate
		d.hasConsistency = true
	}
	return d
}

// Snapshot is the JSON-exportable full state of the metrics registry:
// host resources, the derived rates the alert thresholds use, and every
// registered counter/gauge flattened by name and labels — per-activity
// stock, per-outcome reservation counts, cache hit/miss, dispatch
// errors, latency sum/count.
type Snapshot struct {
	Timestamp            time.Time          `json:"timestamp"`
	CPUUsagePercent      float64            `json:"cpu_usage_percent"`
	MemoryUsagePercent   float64            `json:"memory_usage_percent"`
	Goroutines           int                `json:"goroutines"`
	CacheHitRate         float64            `json:"cache_hit_rate"`
	ErrorRate            float64            `json:"error_rate"`
	AvgLatencySeconds    float64            `json:"avg_latency_seconds"`
	LowStockActivities   int                `json:"low_stock_activities"`
	OutOfStockActivities int                `json:"out_of_stock_activities"`
	Counters             map[string]float64 `json:"counters"`
}

// defaultLowStockUnits is the warning line the admin export endpoints
// use; the collector's own loop uses its configured threshold instead.
const defaultLowStockUnits = 10

// BuildSnapshot gathers the registry and host resources into a Snapshot.
func BuildSnapshot(ctx context.Context, lowStockUnits int) (Snapshot, error) {
	flat, err := gatherFlat()
	if err != nil {
		return Snapshot{}, err
	}
	d := derive(flat, lowStockUnits)
	host := platform.Collect(ctx)
	return Snapshot{
		Timestamp:            time.Now(),
		CPUUsagePercent:      host.CPUPercent,
		MemoryUsagePercent:   host.MemoryUsedPct,
		Goroutines:           host.Goroutines,
		CacheHitRate:         d.hitRate,
		ErrorRate:            d.errorRate,
		AvgLatencySeconds:    d.avgLatencySeconds,
		LowStockActivities:   d.lowStock,
		OutOfStockActivities: d.outOfStock,
		Counters:             flat,
	}, nil
}

// ExportJSON serializes the full snapshot for the admin JSON endpoint,
// separate from the Prometheus exposition — some operators want a
// single curl-able endpoint without standing up a scraper.
func ExportJSON(ctx context.Context) ([]byte, error) {
	snap, err := BuildSnapshot(ctx, defaultLowStockUnits)
	if err != nil {
		return nil, err
	}
	return json.Marshal(snap)
}

// ExportText renders the same snapshot as sorted key=value lines for
// scraping with plain shell tooling.
func ExportText(ctx context.Context) ([]byte, error) {
	snap, err := BuildSnapshot(ctx, defaultLowStockUnits)
	if err != nil {
		return nil, err
	}

	lines := map[string]float64{
		"cpu_usage_percent":       snap.CPUUsagePercent,
		"memory_usage_percent":    snap.MemoryUsagePercent,
		"goroutines":              float64(snap.Goroutines),
		"cache_hit_rate":          snap.CacheHitRate,
		"error_rate":              snap.ErrorRate,
		"avg_latency_seconds":     snap.AvgLatencySeconds,
		"low_stock_activities":    float64(snap.LowStockActivities),
		"out_of_stock_activities": float64(snap.OutOfStockActivities),
	}
	for k, v := range snap.Counters {
		lines[k] = v
	}

	keys := make([]string, 0, len(lines))
	for k := range lines {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	for _, k := range keys {
		buf.WriteString(k)
		buf.WriteByte('=')
		buf.WriteString(strconv.FormatFloat(lines[k], 'f', -1, 64))
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}
