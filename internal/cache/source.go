package cache

import "context"

// SourceWriter is the write-side counterpart of reconcile.DataLoader:
// the system of record's access method for accepting writes from the
// write-through and write-behind strategies. A small capability set,
// one method per counter kind, registered at startup. No deep
// interface, just the methods a call site actually needs.
type SourceWriter interface {
	SaveStock(ctx context.Context, activityID string, currentStock int) error
	SaveUserCounter(ctx context.Context, userID, activityID string, purchasedCount int) error
}
