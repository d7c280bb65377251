// Package respond writes the API's JSON envelopes.
package respond

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/daffatgi02/valo-apps-backend/errs"
)

// Envelope is the body of every API response.
type Envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// WriteJSON writes v with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// OK writes a successful envelope around data.
func OK(w http.ResponseWriter, message string, data any) {
	WriteJSON(w, http.StatusOK, Envelope{Success: true, Message: message, Data: data})
}

// Fail writes an error envelope.
func Fail(w http.ResponseWriter, status int, code, message string) {
	WriteJSON(w, status, Envelope{Message: message, Error: code})
}

// Status maps err onto an HTTP status. unavailable is used for upstream
// outages: 503 for shared game data, 502 for player data.
func Status(err error, unavailable int) int {
	switch {
	case errors.Is(err, errs.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, errs.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, errs.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, errs.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errs.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, errs.ErrUpstreamUnavailable),
		errors.Is(err, errs.ErrCircuitOpen),
		errors.Is(err, errs.ErrMalformedResponse):
		return unavailable
	default:
		return http.StatusInternalServerError
	}
}

// Error writes err as an error envelope. Server-side failures are logged
// and their detail withheld from the client.
func Error(w http.ResponseWriter, log zerolog.Logger, err error, unavailable int, message string) {
	status := Status(err, unavailable)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Int("status", status).Msg(message)
	} else {
		message = err.Error()
	}
	Fail(w, status, errs.Code(err), message)
}
