package hotstore

import "fmt"

// Key namespace, centralized here so every component builds keys the
// same way.
func ActivityKey(activityID string) string {
	return fmt.Sprintf("seckill:activity:%s", activityID)
}

func StockKey(activityID string) string {
	return fmt.Sprintf("seckill:stock:%s", activityID)
}

func UserLimitKey(userID, activityID string) string {
	return fmt.Sprintf("seckill:user_limit:%s:%s", userID, activityID)
}

func RateLimitKey(key string) string {
	return fmt.Sprintf("seckill:rate_limit:%s", key)
}

func MetricsKey(subkey string) string {
	return fmt.Sprintf("seckill:metrics:%s", subkey)
}

func IdempotencyKey(key string) string {
	return fmt.Sprintf("seckill:idempotency:%s", key)
}

// SequenceKey is the per-activity monotonically increasing order
// sequence number, giving ReservationEvent.Sequence a total order
// independent of wall-clock time.
func SequenceKey(activityID string) string {
	return fmt.Sprintf("seckill:sequence:%s", activityID)
}
