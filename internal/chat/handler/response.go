package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"quickchat/internal/common"
)

// envelope mirrors the {success, message, ...payload} shape clients expect.
type envelope map[string]interface{}

func respondJSON(w http.ResponseWriter, log zerolog.Logger, code int, payload envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Warn().Err(err).Msg("error writing JSON response")
	}
}

func respondError(w http.ResponseWriter, log zerolog.Logger, err error) {
	code := statusFor(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		log.Error().Err(err).Msg("request failed")
		msg = "internal server error"
	}
	respondJSON(w, log, code, envelope{"success": false, "message": msg})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, common.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, common.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, common.ErrUnauthorized):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
