package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/skinsociete/notification-engine/internal/services"
	"github.com/skinsociete/notification-engine/pkg/middleware"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type NotificationHandler struct {
	Service *services.NotificationService
}

func NewNotificationHandler(service *services.NotificationService) *NotificationHandler {
	return &NotificationHandler{Service: service}
}

// GET /notifications
func (h *NotificationHandler) GetUserNotificationsHandler(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetUserFromContext(r.Context())
	if claims == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	notifications, err := h.Service.GetUserNotifications(r.Context(), claims.UserID, limit)
	if err != nil {
		writeError(w, err, "Failed to get notifications")
		return
	}

	writeJSON(w, http.StatusOK, notifications)
}

type openedRequest struct {
	ActionTaken string `json:"action_taken,omitempty"`
}

// POST /notifications/{id}/opened
func (h *NotificationHandler) MarkOpenedHandler(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetUserFromContext(r.Context())
	if claims == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	notifID, err := primitive.ObjectIDFromHex(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "Invalid notification ID", http.StatusBadRequest)
		return
	}

	var req openedRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logrus.WithError(err).Warn("Invalid opened payload")
			http.Error(w, "Invalid request payload", http.StatusBadRequest)
			return
		}
	}
	defer r.Body.Close()

	if err := h.Service.MarkOpened(r.Context(), claims.UserID, notifID, req.ActionTaken); err != nil {
		writeError(w, err, "Failed to mark notification as opened")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Notification marked as opened"})
}
