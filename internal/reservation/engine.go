// Package reservation is the atomic stock-decrement-and-quota-increment
// operation every admitted, validated purchase attempt goes through,
// followed by durable dispatch and, on dispatch failure, a compensating
// rollback of both counters.
package reservation

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/thgg666/seckill-core/internal/dispatch"
	"github.com/thgg666/seckill-core/internal/domain"
	"github.com/thgg666/seckill-core/internal/hotstore"
)

// Config carries the TTLs the reservation script applies to keys it
// writes, each a fixed duration counted from the write: user counters
// get UserCounterTTL (not derived from the activity's end time), and
// idempotency markers get IdempotencyTTL.
type Config struct {
	UserCounterTTL time.Duration
	IdempotencyTTL time.Duration
}

// Engine runs the atomic reservation script and coordinates dispatch and
// rollback. It holds no in-memory reservation state of its own; every
// counter lives in the hot store, which is what lets any instance of the
// process handle any activity.
type Engine struct {
	store      hotstore.Client
	dispatcher dispatch.Dispatcher
	cfg        Config
	logger     zerolog.Logger
}

func New(store hotstore.Client, dispatcher dispatch.Dispatcher, cfg Config, logger zerolog.Logger) *Engine {
	return &Engine{store: store, dispatcher: dispatcher, cfg: cfg, logger: logger}
}

// Reserve runs the full reservation state machine for one purchase
// attempt: Reserved (atomic script) -> Dispatched (broker publish) ->
// Done, with a Rolled-back branch when dispatch fails. act must be the Activity
// snapshot the caller's Validator already confirmed is active and in
// its sale window; idempotencyKey may be empty to skip deduplication.
func (e *Engine) Reserve(ctx context.Context, act *domain.Activity, userID string, quantity int, idempotencyKey string) (domain.ReservationResult, error) {
	stockKey := hotstore.StockKey(act.ID)
	userKey := hotstore.UserLimitKey(userID, act.ID)
	idemKey := ""
	if idempotencyKey != "" {
		idemKey = hotstore.IdempotencyKey(idempotencyKey)
	}

	orderID := uuid.New().String()

	raw, err := e.store.Eval(ctx, reserveScript,
		[]string{stockKey, userKey, idemKey},
		quantity, act.PerUserLimit, orderID,
		int64(e.cfg.IdempotencyTTL.Seconds()), int64(e.cfg.UserCounterTTL.Seconds()),
	)
	if err != nil {
		return domain.ReservationResult{}, err
	}

	status, remaining, purchased, returnedOrderID, err := parseReserveReply(raw)
	if err != nil {
		return domain.ReservationResult{}, domain.Wrap(domain.KindInternal, "malformed reservation script reply", err)
	}

	switch status {
	case "duplicate":
		return domain.ReservationResult{Outcome: domain.ReservationOK, OrderID: returnedOrderID, Dispatched: true}, nil
	case "inactive":
		return domain.ReservationResult{Outcome: domain.ReservationInactive}, nil
	case "insufficient_stock":
		return domain.ReservationResult{Outcome: domain.ReservationInsufficientStock, RemainingStock: remaining}, nil
	case "exceeds_user_limit":
		return domain.ReservationResult{Outcome: domain.ReservationExceedsUserLimit, RemainingStock: remaining, UserPurchased: purchased}, nil
	}

	seq, seqErr := e.store.Incr(ctx, hotstore.SequenceKey(act.ID))
	if seqErr != nil {
		seq = 0
		e.logger.Warn().Err(seqErr).Str("activity_id", act.ID).Msg("sequence counter unavailable, defaulting to 0")
	}

	event := domain.ReservationEvent{
		ActivityID: act.ID,
		UserID:     userID,
		Quantity:   quantity,
		Sequence:   seq,
		OrderID:    orderID,
		CreatedAt:  time.Now(),
	}

	if pubErr := e.dispatcher.Publish(ctx, event); pubErr != nil {
		e.logger.Error().Err(pubErr).Str("activity_id", act.ID).Str("order_id", orderID).
			Msg("dispatch failed, rolling back reservation")
		if rbErr := e.rollback(context.Background(), act, userID, quantity, idemKey); rbErr != nil {
			e.logger.Error().Err(rbErr).Str("activity_id", act.ID).Str("order_id", orderID).
				Msg("compensating rollback failed — counters may be inconsistent until reconciliation runs")
		}
		return domain.ReservationResult{
			Outcome:        domain.ReservationOK,
			RemainingStock: remaining,
			UserPurchased:  purchased,
			OrderID:        orderID,
			Dispatched:     false,
			RolledBack:     true,
		}, pubErr
	}

	return domain.ReservationResult{
		Outcome:        domain.ReservationOK,
		RemainingStock: remaining,
		UserPurchased:  purchased,
		OrderID:        orderID,
		Dispatched:     true,
	}, nil
}

// Rollback is the administrative corrective action exposed over HTTP:
// the same compensating operation Reserve runs automatically on
// dispatch failure, invokable directly by an operator repairing a
// known-bad counter.
func (e *Engine) Rollback(ctx context.Context, act *domain.Activity, userID string, quantity int) error {
	return e.rollback(ctx, act, userID, quantity, "")
}

// rollback restores the stock and user-purchase counters a reservation
// consumed, clamped at the activity's total stock and zero respectively
// so a retried rollback can never overshoot.
func (e *Engine) rollback(ctx context.Context, act *domain.Activity, userID string, quantity int, idemKey string) error {
	stockKey := hotstore.StockKey(act.ID)
	userKey := hotstore.UserLimitKey(userID, act.ID)
	_, err := e.store.Eval(ctx, rollbackScript,
		[]string{stockKey, userKey, idemKey},
		quantity, act.TotalStock,
	)
	return err
}

func parseReserveReply(raw any) (status string, remaining, purchased int, orderID string, err error) {
	items, ok := raw.([]any)
	if !ok || len(items) != 4 {
		return "", 0, 0, "", errReplyShape
	}
	status, _ = items[0].(string)
	remaining = toInt(items[1])
	purchased = toInt(items[2])
	orderID, _ = items[3].(string)
	return status, remaining, purchased, orderID, nil
}

func toInt(v any) int {
	switch n := v.(type) {
	case int64:
		return int(n)
	case int:
		return n
	default:
		return 0
	}
}
