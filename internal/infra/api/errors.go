package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"digital-storefront/internal/domain"

	"github.com/rs/zerolog"
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func statusFor(code string) int {
	switch code {
	case domain.CodeNotFound:
		return http.StatusNotFound
	case domain.CodeInvalidState:
		return http.StatusConflict
	case domain.CodeInvalidInput:
		return http.StatusUnprocessableEntity
	case domain.CodeUndetermined:
		return http.StatusServiceUnavailable
	case domain.CodeProviderError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err as {code, message}. Internal failures are logged and not echoed.
func writeError(w http.ResponseWriter, log *zerolog.Logger, err error) {
	code := domain.Code(err)
	status := statusFor(code)
	msg := err.Error()
	var pe *domain.ProviderError
	switch {
	case errors.As(err, &pe):
		msg = pe.Error()
	case status == http.StatusInternalServerError:
		log.Error().Err(err).Msg("request failed")
		msg = "internal error"
	}
	writeJSON(w, status, errorBody{Code: code, Message: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
