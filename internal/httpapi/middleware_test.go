package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/thgg666/seckill-core/internal/ratelimit"
)

func TestWithRateLimit_RejectsBeyondBurst(t *testing.T) {
	s, _ := newTestServer(t, activeActivity("act1", 100, 50), 100)
	limiter := ratelimit.New(ratelimit.Config{
		Global:  ratelimit.TierConfig{QPS: 5000, Burst: 5000},
		Address: ratelimit.TierConfig{QPS: 5000, Burst: 5000},
		User:    ratelimit.TierConfig{QPS: 1, Burst: 1},
	}, time.Minute)
	t.Cleanup(limiter.Close)
	s.limiter = limiter

	body := purchaseRequest{UserID: "user1", PurchaseAmount: 1}
	first := doRequest(s, http.MethodPost, "/api/v1/seckill/act1", body)
	if first.Code != http.StatusOK {
		t.Fatalf("expected the first request to pass, got %d: %s", first.Code, first.Body.String())
	}

	second := doRequest(s, http.MethodPost, "/api/v1/seckill/act1", body)
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("expected the second request within the same second to be rate limited, got %d: %s", second.Code, second.Body.String())
	}
	if second.Header().Get("Retry-After") == "" {
		t.Error("expected a Retry-After header on a rate-limited response")
	}
}

func TestWithRateLimit_KeysPerUserTierOnBodyUserID(t *testing.T) {
	s, _ := newTestServer(t, activeActivity("act1", 100, 50), 100)
	limiter := ratelimit.New(ratelimit.Config{
		Global:  ratelimit.TierConfig{QPS: 5000, Burst: 5000},
		Address: ratelimit.TierConfig{QPS: 5000, Burst: 5000},
		User:    ratelimit.TierConfig{QPS: 1, Burst: 1},
	}, time.Minute)
	t.Cleanup(limiter.Close)
	s.limiter = limiter

	first := doRequest(s, http.MethodPost, "/api/v1/seckill/act1", purchaseRequest{UserID: "user1", PurchaseAmount: 1})
	if first.Code != http.StatusOK {
		t.Fatalf("expected user1's first request to pass, got %d: %s", first.Code, first.Body.String())
	}

	// A different user_id in the body must not share user1's bucket, even
	// though both requests arrive from the same test client/address.
	second := doRequest(s, http.MethodPost, "/api/v1/seckill/act1", purchaseRequest{UserID: "user2", PurchaseAmount: 1})
	if second.Code != http.StatusOK {
		t.Fatalf("expected user2's request to pass on its own bucket, got %d: %s", second.Code, second.Body.String())
	}

	// user1 retrying immediately within the same second is still limited.
	third := doRequest(s, http.MethodPost, "/api/v1/seckill/act1", purchaseRequest{UserID: "user1", PurchaseAmount: 1})
	if third.Code != http.StatusTooManyRequests {
		t.Fatalf("expected user1's second request within the same second to be rate limited, got %d: %s", third.Code, third.Body.String())
	}
}

func TestWithCORS_PreflightReturnsAllowHeaders(t *testing.T) {
	s, _ := newTestServer(t, nil, 0)
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/seckill/stock/act1", nil)
	req.Header.Set("Origin", "https://example.com")
	rec := httptest.NewRecorder()
	s.routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for a CORS preflight, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("expected a wildcard allow-origin header, got %q", rec.Header().Get("Access-Control-Allow-Origin"))
	}
}

func TestWithRecovery_TurnsPanicIntoInternalError(t *testing.T) {
	s, _ := newTestServer(t, nil, 0)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /panics", func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})
	handler := chain(mux, withRecovery(s.logger))

	req := httptest.NewRequest(http.MethodGet, "/panics", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected a recovered panic to produce 500, got %d", rec.Code)
	}
}

func TestFormatRetryAfter_RoundsUpToAtLeastOneSecond(t *testing.T) {
	if got := formatRetryAfter(200 * time.Millisecond); got != "1" {
		t.Errorf("expected sub-second durations to round up to 1, got %q", got)
	}
	if got := formatRetryAfter(3500 * time.Millisecond); got != "3" {
		t.Errorf("expected 3.5s to truncate to 3, got %q", got)
	}
}
