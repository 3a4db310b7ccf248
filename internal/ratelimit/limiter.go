// Package ratelimit is the three-tier token-bucket admission control:
// global, per-source-address, per-user. Tiers are checked in order
// global, address, user; tokens are consumed from all three only if all
// three pass. Bucket state is entirely in-process, so there is no
// network call on the fast path.
package ratelimit

import (
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/thgg666/seckill-core/internal/domain"
)

// TierConfig is the hot-swappable rate for one tier.
type TierConfig struct {
	QPS   float64
	Burst int
}

// Config configures all three tiers at construction.
type Config struct {
	Global  TierConfig
	Address TierConfig
	User    TierConfig
}

// Limiter implements the three-tier admission check. Global and address
// tiers are golang.org/x/time/rate.Limiter instances. The per-user tier
// is a hand-rolled tokenBucket (see bucket.go) because the retry-after
// hint needs the post-refill fractional token count, which rate.Limiter
// doesn't expose.
type Limiter struct {
	globalMu  sync.RWMutex
	global    *rate.Limiter
	globalCfg TierConfig

	addressMu  sync.RWMutex
	addressCfg TierConfig
	addresses  sync.Map // string -> *addressEntry

	userMu  sync.RWMutex
	userCfg TierConfig
	users   sync.Map // string -> *userEntry

	sweepInterval time.Duration
	stop          chan struct{}
}

type addressEntry struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64 // unix nanos
}

type userEntry struct {
	bucket   *tokenBucket
	lastSeen atomic.Int64
}

// New constructs a Limiter with the given per-tier configuration and
// starts the idle-bucket sweeper.
func New(cfg Config, sweepInterval time.Duration) *Limiter {
	l := &Limiter{
		global:        rate.NewLimiter(rate.Limit(cfg.Global.QPS), cfg.Global.Burst),
		globalCfg:     cfg.Global,
		addressCfg:    cfg.Address,
		userCfg:       cfg.User,
		sweepInterval: sweepInterval,
		stop:          make(chan struct{}),
	}
	go l.sweepLoop()
	return l
}

// Allow runs the three-tier admission check for one request. On
// rejection it returns an AdmissionResult naming the first tier whose
// bucket was empty, with a retry-after hint for that tier.
func (l *Limiter) Allow(address, userID string) domain.AdmissionResult {
	now := time.Now()

	l.globalMu.RLock()
	globalLim := l.global
	l.globalMu.RUnlock()

	globalRes := globalLim.ReserveN(now, 1)
	if !globalRes.OK() {
		return domain.AdmissionResult{Allowed: false, Tier: "global", RetryAfter: time.Second}
	}
	if delay := globalRes.DelayFrom(now); delay > 0 {
		globalRes.CancelAt(now)
		return domain.AdmissionResult{Allowed: false, Tier: "global", RetryAfter: delay}
	}

	addrLim := l.addressLimiter(address)
	addrRes := addrLim.ReserveN(now, 1)
	if !addrRes.OK() {
		globalRes.CancelAt(now)
		return domain.AdmissionResult{Allowed: false, Tier: "address", RetryAfter: time.Second}
	}
	if delay := addrRes.DelayFrom(now); delay > 0 {
		addrRes.CancelAt(now)
		globalRes.CancelAt(now)
		return domain.AdmissionResult{Allowed: false, Tier: "address", RetryAfter: delay}
	}

	userBucket := l.userBucket(userID)
	if ok, retryAfter := userBucket.tryConsume(now); !ok {
		addrRes.CancelAt(now)
		globalRes.CancelAt(now)
		return domain.AdmissionResult{Allowed: false, Tier: "user", RetryAfter: retryAfter}
	}

	return domain.AdmissionResult{Allowed: true}
}

func (l *Limiter) addressLimiter(address string) *rate.Limiter {
	if v, ok := l.addresses.Load(address); ok {
		e := v.(*addressEntry)
		e.lastSeen.Store(time.Now().UnixNano())
		return e.limiter
	}

	l.addressMu.RLock()
	cfg := l.addressCfg
	l.addressMu.RUnlock()

	e := &addressEntry{limiter: rate.NewLimiter(rate.Limit(cfg.QPS), cfg.Burst)}
	e.lastSeen.Store(time.Now().UnixNano())
	actual, _ := l.addresses.LoadOrStore(address, e)
	return actual.(*addressEntry).limiter
}

func (l *Limiter) userBucket(userID string) *tokenBucket {
	if v, ok := l.users.Load(userID); ok {
		e := v.(*userEntry)
		e.lastSeen.Store(time.Now().UnixNano())
		return e.bucket
	}

	l.userMu.RLock()
	cfg := l.userCfg
	l.userMu.RUnlock()

	e := &userEntry{bucket: newTokenBucket(float64(cfg.Burst), cfg.QPS)}
	e.lastSeen.Store(time.Now().UnixNano())
	actual, _ := l.users.LoadOrStore(userID, e)
	return actual.(*userEntry).bucket
}

// UpdateConfig hot-swaps one tier's bucket template without disturbing
// already-allocated buckets: only the stored template used by
// addressLimiter/userBucket on first sight of a new key changes here.
// The global tier has no per-key allocation (it's a single shared
// bucket), so its update applies immediately; address and user buckets
// already handed out keep whatever rate/burst they were built with
// until they're swept and re-allocated.
func (l *Limiter) UpdateConfig(tier string, cfg TierConfig) {
	switch tier {
	case "global":
		l.globalMu.Lock()
		l.globalCfg = cfg
		l.global.SetLimit(rate.Limit(cfg.QPS))
		l.global.SetBurst(cfg.Burst)
		l.globalMu.Unlock()
	case "address":
		l.addressMu.Lock()
		l.addressCfg = cfg
		l.addressMu.Unlock()
	case "user":
		l.userMu.Lock()
		l.userCfg = cfg
		l.userMu.Unlock()
	}
}

// sweepLoop evicts address/user buckets untouched since the last sweep.
// HTTP requests have no disconnect hook to hang cleanup off, so idle
// eviction has to be time-based.
func (l *Limiter) sweepLoop() {
	ticker := time.NewTicker(l.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			cutoff := time.Now().Add(-l.sweepInterval).UnixNano()
			l.addresses.Range(func(k, v any) bool {
				if v.(*addressEntry).lastSeen.Load() < cutoff {
					l.addresses.Delete(k)
				}
				return true
			})
			l.users.Range(func(k, v any) bool {
				if v.(*userEntry).lastSeen.Load() < cutoff {
					l.users.Delete(k)
				}
				return true
			})
		case <-l.stop:
			return
		}
	}
}

// Close stops the sweeper.
func (l *Limiter) Close() {
	close(l.stop)
}
