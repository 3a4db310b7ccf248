// Package activity is the validation gate every reservation attempt
// passes through before the reservation engine touches stock. Checks
// run in a fixed order and short-circuit on the first failure (a
// missing activity and an ended one both read as "can't buy this", but
// the client needs to tell them apart).
package activity

import (
	"context"
	"time"

	"github.com/thgg666/seckill-core/internal/cache"
	"github.com/thgg666/seckill-core/internal/domain"
)

// Validator checks an activity against the current time and its cached
// stock before a reservation attempt is allowed to proceed.
type Validator struct {
	cache *cache.Manager
	now   func() time.Time
}

// New constructs a Validator backed by the Cache Manager. now defaults
// to time.Now; tests override it to exercise the window edges.
func New(cacheManager *cache.Manager) *Validator {
	return &Validator{cache: cacheManager, now: time.Now}
}

// Validate checks, in order: exists, active status, started, not ended,
// stock remaining.
func (v *Validator) Validate(ctx context.Context, activityID string) domain.ValidationResult {
	act, err := v.cache.GetActivity(ctx, activityID)
	if err != nil {
		return domain.ValidationResult{Outcome: domain.ValidationNotFound}
	}

	if act.Status != domain.ActivityActive {
		return domain.ValidationResult{Outcome: domain.ValidationNotActive, Activity: act}
	}

	now := v.now()
	if now.Before(act.StartTime) {
		return domain.ValidationResult{Outcome: domain.ValidationNotStarted, Activity: act}
	}
	if now.After(act.EndTime) {
		return domain.ValidationResult{Outcome: domain.ValidationEnded, Activity: act}
	}

	stock, err := v.cache.GetStock(ctx, activityID)
	if err != nil {
		if domain.KindOf(err) == domain.KindNotFound {
			return domain.ValidationResult{Outcome: domain.ValidationOutOfStock, Activity: act}
		}
		return domain.ValidationResult{Outcome: domain.ValidationNotFound}
	}
	if stock <= 0 {
		return domain.ValidationResult{Outcome: domain.ValidationOutOfStock, Activity: act}
	}

	return domain.ValidationResult{Outcome: domain.ValidationOK, Activity: act}
}
