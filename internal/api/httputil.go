package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fpang/tennis-analyzer/internal/analysis"
	"github.com/rs/zerolog/log"
)

// maxBodyBytes bounds JSON request bodies. Videos never pass through the API.
const maxBodyBytes = 64 * 1024

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Warn().Err(err).Msg("Failed to encode JSON response")
	}
}

// httpError sends a JSON error response. The clientMsg is returned to the caller.
// Optional internalDetails are logged server-side but never sent to the client.
func httpError(w http.ResponseWriter, status int, clientMsg string, internalDetails ...string) {
	if len(internalDetails) > 0 {
		log.Error().
			Int("status", status).
			Str("clientMsg", clientMsg).
			Strs("internalDetails", internalDetails).
			Msg("HTTP error with internal details")
	}
	respondJSON(w, status, map[string]string{"error": clientMsg})
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(v)
}

// statusFor maps an error kind to an HTTP status.
func statusFor(err error) int {
	kind, ok := analysis.KindOf(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch kind {
	case analysis.KindValidation:
		return http.StatusBadRequest
	case analysis.KindMalformedResult:
		return http.StatusBadGateway
	case analysis.KindIngestionTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// failRequest responds with the public message for err and logs the rest.
func failRequest(w http.ResponseWriter, err error) {
	status := statusFor(err)
	msg := analysis.PublicMessage(err)
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		status, msg = http.StatusRequestEntityTooLarge, "request body too large"
	}
	httpError(w, status, msg, err.Error())
}
