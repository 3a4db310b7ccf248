package httpapi

import (
	"encoding/json"
	"net/http"
	"regexp"
	"strings"

	"github.com/thgg666/seckill-core/internal/domain"
	"github.com/thgg666/seckill-core/internal/metrics"
)

var activityIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,50}$`)

type purchaseRequest struct {
	UserID         string `json:"user_id"`
	PurchaseAmount int    `json:"purchase_amount"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// handleSeckill is POST /api/v1/seckill/{activity_id}, the main purchase
// endpoint: validate -> reserve -> dispatch.
func (s *Server) handleSeckill(w http.ResponseWriter, r *http.Request) {
	activityID := r.PathValue("activity_id")
	if !activityIDPattern.MatchString(activityID) {
		writeError(w, r, domain.New(domain.KindInvalidParameter, "invalid activity_id"))
		return
	}

	var req purchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, domain.New(domain.KindInvalidParameter, "malformed request body"))
		return
	}
	if req.UserID == "" {
		writeError(w, r, domain.New(domain.KindInvalidParameter, "user_id is required"))
		return
	}
	if req.PurchaseAmount < 1 || req.PurchaseAmount > 100 {
		writeError(w, r, domain.New(domain.KindInvalidParameter, "purchase_amount must be between 1 and 100"))
		return
	}

	validation := s.validator.Validate(r.Context(), activityID)
	if !validation.OK() {
		writeError(w, r, validationError(validation))
		return
	}

	result, err := s.engine.Reserve(r.Context(), validation.Activity, req.UserID, req.PurchaseAmount, req.IdempotencyKey)
	outcomeLabel := string(result.Outcome)
	if err != nil {
		outcomeLabel = "dispatch_failed"
	}
	metrics.ReservationsTotal.WithLabelValues(outcomeLabel).Inc()

	if result.RolledBack {
		metrics.RollbacksTotal.Inc()
	}

	switch result.Outcome {
	case domain.ReservationInsufficientStock:
		writeError(w, r, domain.New(domain.KindOutOfStock, "insufficient stock"))
		return
	case domain.ReservationExceedsUserLimit:
		writeError(w, r, domain.New(domain.KindUserLimitExceeded, "per-user purchase limit exceeded"))
		return
	case domain.ReservationInactive:
		writeError(w, r, domain.New(domain.KindOutOfStock, "activity is no longer accepting reservations"))
		return
	}

	if err != nil {
		writeError(w, r, err)
		return
	}

	metrics.StockRemaining.WithLabelValues(activityID).Set(float64(result.RemainingStock))

	writeSuccess(w, r, map[string]any{
		"order_id":        result.OrderID,
		"remaining_stock": result.RemainingStock,
		"user_purchased":  result.UserPurchased,
		"dispatched":      result.Dispatched,
	})
}

func validationError(v domain.ValidationResult) error {
	switch v.Outcome {
	case domain.ValidationNotFound:
		return domain.New(domain.KindNotFound, "activity not found")
	case domain.ValidationNotActive:
		return domain.New(domain.KindNotActive, "activity is not active")
	case domain.ValidationNotStarted:
		return domain.New(domain.KindNotStarted, "activity has not started")
	case domain.ValidationEnded:
		return domain.New(domain.KindEnded, "activity has ended")
	case domain.ValidationOutOfStock:
		return domain.New(domain.KindOutOfStock, "activity is out of stock")
	default:
		return domain.New(domain.KindInternal, "validation failed")
	}
}

// handleStock is GET /api/v1/seckill/stock/{activity_id}, a public read.
func (s *Server) handleStock(w http.ResponseWriter, r *http.Request) {
	activityID := r.PathValue("activity_id")
	if !activityIDPattern.MatchString(activityID) {
		writeError(w, r, domain.New(domain.KindInvalidParameter, "invalid activity_id"))
		return
	}
	stock, err := s.cache.GetStock(r.Context(), activityID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, r, map[string]any{"activity_id": activityID, "current_stock": stock})
}

// handleStocks is GET /api/v1/seckill/stocks?activity_ids=…, capped at 50.
func (s *Server) handleStocks(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("activity_ids")
	if raw == "" {
		writeError(w, r, domain.New(domain.KindInvalidParameter, "activity_ids query parameter is required"))
		return
	}
	ids := strings.Split(raw, ",")
	if len(ids) > 50 {
		writeError(w, r, domain.New(domain.KindInvalidParameter, "activity_ids cap is 50"))
		return
	}

	out := make(map[string]int, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if !activityIDPattern.MatchString(id) {
			continue
		}
		stock, err := s.cache.GetStock(r.Context(), id)
		if err != nil {
			continue
		}
		out[id] = stock
	}
	writeSuccess(w, r, out)
}

// handleRollback is POST /api/v1/seckill/rollback/{activity_id}, an
// administrative corrective action, gated by withAuth.
type rollbackRequest struct {
	UserID   string `json:"user_id"`
	Quantity int    `json:"quantity"`
}

func (s *Server) handleRollback(w http.ResponseWriter, r *http.Request) {
	activityID := r.PathValue("activity_id")
	if !activityIDPattern.MatchString(activityID) {
		writeError(w, r, domain.New(domain.KindInvalidParameter, "invalid activity_id"))
		return
	}
	var req rollbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" || req.Quantity < 1 {
		writeError(w, r, domain.New(domain.KindInvalidParameter, "user_id and a positive quantity are required"))
		return
	}

	act, err := s.cache.GetActivity(r.Context(), activityID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := s.engine.Rollback(r.Context(), act, req.UserID, req.Quantity); err != nil {
		writeError(w, r, err)
		return
	}
	metrics.RollbacksTotal.Inc()
	writeSuccess(w, r, map[string]any{"activity_id": activityID, "rolled_back": req.Quantity})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	err := s.store.Ping(r.Context())
	healthy := err == nil
	status := "healthy"
	statusCode := http.StatusOK
	if !healthy {
		status = "unhealthy"
		statusCode = http.StatusServiceUnavailable
	}
	writeJSON(w, statusCode, envelope{
		Success: healthy,
		Data: map[string]any{
			"status": status,
			"checks": map[string]any{
				"hot_store": map[string]any{"healthy": healthy},
			},
		},
		RequestID: requestIDFrom(r),
	})
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, r, map[string]any{"pong": true})
}

func (s *Server) handleAdminMetricsSnapshot(w http.ResponseWriter, r *http.Request) {
	payload, err := metrics.ExportJSON(r.Context())
	if err != nil {
		writeError(w, r, domain.Wrap(domain.KindInternal, "failed to build metrics snapshot", err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(payload)
}

func (s *Server) handleAdminMetricsText(w http.ResponseWriter, r *http.Request) {
	payload, err := metrics.ExportText(r.Context())
	if err != nil {
		writeError(w, r, domain.Wrap(domain.KindInternal, "failed to build metrics snapshot", err))
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write(payload)
}

// handleAdminMetricsReset is POST /api/v1/admin/metrics/reset, gated by
// withAuth like the other admin routes.
func (s *Server) handleAdminMetricsReset(w http.ResponseWriter, r *http.Request) {
	metrics.Reset()
	writeSuccess(w, r, map[string]any{"reset": true})
}
