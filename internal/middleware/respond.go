package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/novadex/wallet-layer/internal/errors"
)

// WriteJSON writes v with the given status. Payloads are built by the
// handlers and always carry a "success" field.
func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError renders err as the standard failure envelope. Unclassified
// errors become opaque internal failures so storage and authority details
// never leak to clients.
func WriteError(w http.ResponseWriter, err error) {
	se := errors.GetServiceError(err)
	if se == nil {
		se = errors.Internal("internal server error", err)
	}
	body := map[string]interface{}{
		"success": false,
		"error":   string(se.Code),
		"message": se.Message,
	}
	if len(se.Details) > 0 {
		body["details"] = se.Details
	}
	WriteJSON(w, se.HTTPStatus, body)
}
