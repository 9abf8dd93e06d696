package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"
	"github.com/skinsociete/notification-engine/internal/models"
	"github.com/skinsociete/notification-engine/internal/services"
	"github.com/skinsociete/notification-engine/internal/templates"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.WithError(err).Warn("Failed to encode response")
	}
}

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrInvalidRequest),
		errors.Is(err, models.ErrInvalidTarget),
		errors.Is(err, models.ErrInvalidEvent),
		errors.Is(err, templates.ErrTemplateNotFound):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrNotCancellable):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// writeError responds with the client-facing error text for 4xx and with
// msg for 5xx, which are also logged.
func writeError(w http.ResponseWriter, err error, msg string) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logrus.WithError(err).Error(msg)
		http.Error(w, msg, status)
		return
	}
	http.Error(w, err.Error(), status)
}
