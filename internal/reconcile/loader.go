// Package reconcile is the background loop that compares the hot
// store's view of stock against the system of record and repairs drift,
// alerting when drift exceeds the configured tolerance.
package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/thgg666/seckill-core/internal/domain"
)

// DataLoader is the system-of-record read path: how the reconciler
// reads authoritative values without depending on the admin service's
// internal schema. A small capability set, mirroring cache.SourceWriter
// on the write side.
type DataLoader interface {
	LoadStock(ctx context.Context, activityID string) (int, error)
	LoadActivityIDs(ctx context.Context) ([]string, error)
}

// HTTPDataLoader reads from the administrative system of record over
// plain HTTP, the simplest transport that needs no new dependency for a
// component whose job is periodic polling, not a hot path.
type HTTPDataLoader struct {
	baseURL string
	client  *http.Client
}

func NewHTTPDataLoader(baseURL string, timeout time.Duration) *HTTPDataLoader {
	return &HTTPDataLoader{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type stockResponse struct {
	CurrentStock int `json:"current_stock"`
}

func (l *HTTPDataLoader) LoadStock(ctx context.Context, activityID string) (int, error) {
	url := fmt.Sprintf("%s/activities/%s/stock", l.baseURL, activityID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, domain.Wrap(domain.KindInternal, "build system of record request", err)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return 0, domain.Wrap(domain.KindStoreUnavailable, "system of record unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return 0, domain.New(domain.KindNotFound, "activity not found in system of record")
	}
	if resp.StatusCode != http.StatusOK {
		return 0, domain.New(domain.KindStoreUnavailable, fmt.Sprintf("system of record returned %d", resp.StatusCode))
	}

	var body stockResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, domain.Wrap(domain.KindInternal, "decode system of record stock response", err)
	}
	return body.CurrentStock, nil
}

type activitiesResponse struct {
	ActivityIDs []string `json:"activity_ids"`
}

func (l *HTTPDataLoader) LoadActivityIDs(ctx context.Context) ([]string, error) {
	url := fmt.Sprintf("%s/activities/active", l.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, domain.Wrap(domain.KindInternal, "build system of record request", err)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, domain.Wrap(domain.KindStoreUnavailable, "system of record unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, domain.New(domain.KindStoreUnavailable, fmt.Sprintf("system of record returned %d", resp.StatusCode))
	}

	var body activitiesResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, domain.Wrap(domain.KindInternal, "decode system of record activities response", err)
	}
	return body.ActivityIDs, nil
}
