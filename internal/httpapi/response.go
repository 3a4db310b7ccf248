package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/thgg666/seckill-core/internal/domain"
)

// envelope is the uniform JSON response shape every route returns,
// except the admin metrics snapshot and text exports, which write their
// payloads as-is.
type envelope struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message,omitempty"`
	Data      any       `json:"data,omitempty"`
	ErrorCode string    `json:"error_code,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id"`
}

func writeJSON(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeSuccess(w http.ResponseWriter, r *http.Request, data any) {
	writeJSON(w, http.StatusOK, envelope{
		Success:   true,
		Data:      data,
		Timestamp: time.Now(),
		RequestID: requestIDFrom(r),
	})
}

// writeError maps err to an HTTP status and error_code via
// domain.ErrorKind.HTTPStatus — the single place status-code mapping
// happens, so every handler stays ignorant of the taxonomy's shape.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := domain.KindOf(err)
	status := kind.HTTPStatus()
	if kind == "" {
		kind = domain.KindInternal
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, envelope{
		Success:   false,
		Message:   err.Error(),
		ErrorCode: string(kind),
		Timestamp: time.Now(),
		RequestID: requestIDFrom(r),
	})
}
