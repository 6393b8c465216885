package controllers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"next2play/internal/services"
	"next2play/internal/storage"
)

var (
	ErrBadRequest   = errors.New("bad request")
	ErrNotFound     = errors.New("game not found")
	ErrExists       = errors.New("duplicate game found")
	ErrGetGames     = errors.New("failed to get games")
	ErrSearch       = errors.New("failed to search games")
	ErrCreate       = errors.New("failed to add game")
	ErrUpdate       = errors.New("failed to update games")
	ErrDelete       = errors.New("failed to delete game")
	ErrStatus       = errors.New("failed to update status")
	ErrRender       = errors.New("failed to render page")
	ErrLogin        = errors.New("failed to log in")
	ErrWrongPass    = errors.New("wrong password")
	ErrRefetch      = errors.New("failed to refetch images")
	ErrParsingForm  = errors.New("cannot parse form")
	ErrParsingJSON  = errors.New("cannot parse json")
	ErrInvalidID    = errors.New("invalid game id")
	ErrInvalidLimit = errors.New("invalid limit")
)

var errMissingGameID = errors.New("GameID is required")

type messageResponse struct {
	Message string `json:"message"`
	Success bool   `json:"success"`
}

// statusFor maps the service error taxonomy onto HTTP codes. fallback is the
// message shown for anything unexpected; details stay in the log.
func statusFor(err error, fallback error) (int, string) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound, ErrNotFound.Error()
	case errors.Is(err, storage.ErrExists):
		return http.StatusConflict, ErrExists.Error()
	case errors.Is(err, services.ErrValidation):
		return http.StatusBadRequest, ErrBadRequest.Error()
	default:
		return http.StatusInternalServerError, fallback.Error()
	}
}

func writeJSON(w http.ResponseWriter, log *slog.Logger, op string, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("failed to encode response", slog.String("operation", op), slog.String("error", err.Error()))
	}
}
