package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/thgg666/seckill-core/internal/domain"
)

// HTTPSourceWriter is the production SourceWriter: it posts counter
// updates to the administrative system of record over plain HTTP,
// mirroring reconcile.HTTPDataLoader's transport choice for the
// opposite direction (read vs. write) of the same integration.
type HTTPSourceWriter struct {
	baseURL string
	client  *http.Client
}

func NewHTTPSourceWriter(baseURL string, timeout time.Duration) *HTTPSourceWriter {
	return &HTTPSourceWriter{baseURL: baseURL, client: &http.Client{Timeout: timeout}}
}

func (w *HTTPSourceWriter) SaveStock(ctx context.Context, activityID string, currentStock int) error {
	return w.post(ctx, fmt.Sprintf("%s/activities/%s/stock", w.baseURL, activityID),
		map[string]any{"current_stock": currentStock})
}

func (w *HTTPSourceWriter) SaveUserCounter(ctx context.Context, userID, activityID string, purchasedCount int) error {
	return w.post(ctx, fmt.Sprintf("%s/activities/%s/users/%s/counter", w.baseURL, activityID, userID),
		map[string]any{"purchased_count": purchasedCount})
}

func (w *HTTPSourceWriter) post(ctx context.Context, url string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return domain.Wrap(domain.KindInternal, "marshal system of record request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return domain.Wrap(domain.KindInternal, "build system of record request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return domain.Wrap(domain.KindStoreUnavailable, "system of record unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return domain.New(domain.KindStoreUnavailable, fmt.Sprintf("system of record returned %d", resp.StatusCode))
	}
	return nil
}
