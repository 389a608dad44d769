package response

import (
	"encoding/json"
	"net/http"

	"github.com/futig/risk-report-backend/internal/entity"
)

// JSON writes a JSON response
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)

	if data != nil {
		// the status line is already out, nothing useful is left to report
		_ = json.NewEncoder(w).Encode(data)
	}
}

// Error writes an entity.ErrorResponse carrying the status text and message
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, entity.ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
	})
}

// Success writes a 200 OK response
func Success(w http.ResponseWriter, data any) {
	JSON(w, http.StatusOK, data)
}
