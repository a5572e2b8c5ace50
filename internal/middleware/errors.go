package middleware

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse is the JSON error body of every endpoint. Notification is the
// short user-facing message the storefront shows as a toast.
type ErrorResponse struct {
	Error         string `json:"error"`
	Notification  string `json:"notification,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

func WriteError(w http.ResponseWriter, r *http.Request, status int, msg, notification string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:         msg,
		Notification:  notification,
		CorrelationID: GetCorrelationID(r.Context()),
	})
}
