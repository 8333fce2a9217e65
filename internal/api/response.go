package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/carelinq/eligibility-agent/internal/models"
)

// fallbackErrorJSON is pre-marshaled so an encoding failure at request time
// can still answer with a well-formed error body.
var fallbackErrorJSON = mustMarshal(models.Error("Internal server error"))

func mustMarshal(v interface{}) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("failed to marshal static response at startup: %v", err))
	}
	return data
}

// writeJSON marshals the payload before touching headers, so a failed encode
// degrades to the fallback error body instead of a truncated response.
func writeJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	body, err := json.Marshal(payload)
	if err != nil {
		slog.Error("Server.writeJSON: failed to marshal response", "error", err)
		body = fallbackErrorJSON
		statusCode = http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if _, err := w.Write(body); err != nil {
		slog.Error("Server.writeJSON: failed to write response", "error", err)
	}
}
