package api

import (
	"encoding/json"
	"net/http"
)

// writeJSON encodes data as the response body with the given status code.
func (rt *_router) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Too late to send an error status, the header is already out.
			rt.baseLogger.WithError(err).Error("error encoding JSON response")
		}
	}
}
