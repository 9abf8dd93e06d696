package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/sirupsen/logrus"
	"github.com/skinsociete/notification-engine/internal/models"
	"github.com/skinsociete/notification-engine/internal/services"
	"github.com/skinsociete/notification-engine/pkg/middleware"
)

// PreferenceHandler serves the caller's notification settings and devices.
type PreferenceHandler struct {
	Service *services.PreferenceService
}

func NewPreferenceHandler(service *services.PreferenceService) *PreferenceHandler {
	return &PreferenceHandler{Service: service}
}

// GET /notifications/preferences
func (h *PreferenceHandler) GetPreferencesHandler(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetUserFromContext(r.Context())
	if claims == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	pref, err := h.Service.GetPreferences(r.Context(), claims.UserID)
	if err != nil {
		writeError(w, err, "Failed to get preferences")
		return
	}
	writeJSON(w, http.StatusOK, pref)
}

// PUT /notifications/preferences
func (h *PreferenceHandler) UpdatePreferencesHandler(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetUserFromContext(r.Context())
	if claims == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var patch models.PreferencePatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		logrus.WithError(err).Warn("Invalid preference payload")
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	pref, err := h.Service.UpdatePreferences(r.Context(), claims.UserID, patch)
	if err != nil {
		writeError(w, err, "Failed to update preferences")
		return
	}

	logrus.WithField("user_id", claims.UserID).Info("Notification preferences updated")
	writeJSON(w, http.StatusOK, pref)
}

type registerDeviceRequest struct {
	Token    string          `json:"token"`
	Platform models.Platform `json:"platform"`
}

// POST /notifications/devices
func (h *PreferenceHandler) RegisterDeviceHandler(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetUserFromContext(r.Context())
	if claims == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req registerDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	pref, err := h.Service.RegisterDevice(r.Context(), claims.UserID, req.Token, req.Platform)
	if err != nil {
		writeError(w, err, "Failed to register device")
		return
	}
	writeJSON(w, http.StatusOK, pref)
}
