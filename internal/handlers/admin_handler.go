package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/skinsociete/notification-engine/internal/models"
	"github.com/skinsociete/notification-engine/internal/services"
	"github.com/skinsociete/notification-engine/pkg/middleware"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// AdminHandler exposes manual sends and scheduled-notification management.
type AdminHandler struct {
	Dispatcher services.Sender
	Delivery   *services.DeliveryService
}

func NewAdminHandler(dispatcher services.Sender, delivery *services.DeliveryService) *AdminHandler {
	return &AdminHandler{Dispatcher: dispatcher, Delivery: delivery}
}

type sendRequest struct {
	Target     models.Target     `json:"target"`
	TemplateID string            `json:"template_id,omitempty"`
	Payload    map[string]string `json:"payload,omitempty"`
	Priority   models.Priority   `json:"priority,omitempty"`
	Category   models.Category   `json:"category,omitempty"`
}

type sendResponse struct {
	Recipients int                       `json:"recipients"`
	Delivered  int                       `json:"delivered"`
	Results    []services.DeliveryResult `json:"results"`
}

// POST /admin/notifications/send
func (h *AdminHandler) SendNotificationHandler(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	results, err := h.Dispatcher.Send(r.Context(), services.DispatchRequest{
		Target:     req.Target,
		TemplateID: req.TemplateID,
		Vars:       req.Payload,
		Priority:   req.Priority,
		Category:   req.Category,
	})
	if err != nil {
		writeError(w, err, "Failed to send notification")
		return
	}

	resp := sendResponse{Results: results}
	if resp.Results == nil {
		resp.Results = []services.DeliveryResult{}
	}
	users := map[string]struct{}{}
	for _, res := range results {
		users[res.UserID] = struct{}{}
		if res.Delivered {
			resp.Delivered++
		}
	}
	resp.Recipients = len(users)

	fields := logrus.Fields{
		"template_id": req.TemplateID,
		"recipients":  resp.Recipients,
		"delivered":   resp.Delivered,
	}
	if claims := middleware.GetUserFromContext(r.Context()); claims != nil {
		fields["admin_id"] = claims.UserID
	}
	logrus.WithFields(fields).Info("Manual notification sent")
	writeJSON(w, http.StatusOK, resp)
}

// POST /admin/notifications/scheduled
func (h *AdminHandler) ScheduleNotificationHandler(w http.ResponseWriter, r *http.Request) {
	var req services.ScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	n, err := h.Delivery.Schedule(r.Context(), req)
	if err != nil {
		writeError(w, err, "Failed to schedule notification")
		return
	}
	writeJSON(w, http.StatusCreated, n)
}

// DELETE /admin/notifications/scheduled/{id}
func (h *AdminHandler) CancelScheduledHandler(w http.ResponseWriter, r *http.Request) {
	id, err := primitive.ObjectIDFromHex(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "Invalid scheduled notification ID", http.StatusBadRequest)
		return
	}

	if err := h.Delivery.Cancel(r.Context(), id); err != nil {
		writeError(w, err, "Failed to cancel scheduled notification")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Scheduled notification cancelled"})
}
