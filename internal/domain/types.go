// Package domain holds the data model shared across components and the
// error taxonomy. Nothing here talks to a store, a broker, or the
// network. Pure value types so every component can depend on it without
// creating import cycles.
package domain

import "time"

// ActivityStatus is the state-machine status of a flash-sale Activity.
type ActivityStatus string

const (
	ActivityPending   ActivityStatus = "pending"
	ActivityActive    ActivityStatus = "active"
	ActivityEnded     ActivityStatus = "ended"
	ActivityCancelled ActivityStatus = "cancelled"
)

// Activity is the immutable-after-creation flash-sale definition owned by
// the external administrative service. Prices are integer minor units
// (cents) to avoid floating point drift in a financial quantity.
type Activity struct {
	ID              string         `json:"id"`
	Name            string         `json:"name"`
	StartTime       time.Time      `json:"start_time"`
	EndTime         time.Time      `json:"end_time"`
	Status          ActivityStatus `json:"status"`
	TotalStock      int            `json:"total_stock"`
	SeckillPriceCts int64          `json:"seckill_price_cents"`
	OriginalPriceCt int64          `json:"original_price_cents"`
	PerUserLimit    int            `json:"per_user_limit"`
}

// StockCounter is the hot-store-resident current_stock for one activity.
type StockCounter struct {
	ActivityID   string `json:"activity_id"`
	CurrentStock int    `json:"current_stock"`
}

// UserPurchaseCounter is the hot-store-resident purchased_count for one
// (user, activity) pair.
type UserPurchaseCounter struct {
	UserID         string `json:"user_id"`
	ActivityID     string `json:"activity_id"`
	PurchasedCount int    `json:"purchased_count"`
}

// ReservationEvent is the durable message published on a successful
// reservation. The producer owns it until the broker acks.
type ReservationEvent struct {
	ActivityID string    `json:"activity_id"`
	UserID     string    `json:"user_id"`
	Quantity   int       `json:"quantity"`
	Sequence   int64     `json:"sequence"`
	OrderID    string    `json:"order_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// ValidationOutcome discriminates the result of the activity validator.
type ValidationOutcome string

const (
	ValidationOK         ValidationOutcome = "ok"
	ValidationNotFound   ValidationOutcome = "not_found"
	ValidationNotActive  ValidationOutcome = "not_active"
	ValidationNotStarted ValidationOutcome = "not_started"
	ValidationEnded      ValidationOutcome = "ended"
	ValidationOutOfStock ValidationOutcome = "out_of_stock"
)

// ValidationResult is returned by the activity validator. A passing
// result carries the Activity snapshot so the reservation engine doesn't
// re-read it from the cache.
type ValidationResult struct {
	Outcome  ValidationOutcome
	Activity *Activity
}

func (v ValidationResult) OK() bool { return v.Outcome == ValidationOK }

// ReservationOutcome discriminates the result of the reservation script.
type ReservationOutcome string

const (
	ReservationOK                ReservationOutcome = "ok"
	ReservationInsufficientStock ReservationOutcome = "insufficient_stock"
	ReservationExceedsUserLimit  ReservationOutcome = "exceeds_user_limit"
	ReservationInactive          ReservationOutcome = "inactive"
)

// ReservationResult is the value object returned by the reservation
// engine, before or after dispatch.
type ReservationResult struct {
	Outcome        ReservationOutcome
	RemainingStock int
	UserPurchased  int
	OrderID        string
	Dispatched     bool
	RolledBack     bool
}

// AdmissionResult is returned by the rate limiter.
type AdmissionResult struct {
	Allowed    bool
	Tier       string // "global" | "address" | "user", set only on rejection
	RetryAfter time.Duration
}
