package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/sirupsen/logrus"
	"github.com/skinsociete/notification-engine/internal/models"
	"github.com/skinsociete/notification-engine/internal/services"
)

// EventHandler accepts behavior events from internal services over HTTP.
type EventHandler struct {
	Recorder services.EventRecorder
}

func NewEventHandler(recorder services.EventRecorder) *EventHandler {
	return &EventHandler{Recorder: recorder}
}

// POST /events
func (h *EventHandler) RecordEventHandler(w http.ResponseWriter, r *http.Request) {
	var ev models.BehaviorEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		logrus.WithError(err).Warn("Invalid event payload")
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if err := h.Recorder.Record(r.Context(), ev); err != nil {
		writeError(w, err, "Failed to record event")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Event recorded"})
}
