package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/skinsociete/notification-engine/internal/models"
	"github.com/skinsociete/notification-engine/internal/services"
	"github.com/skinsociete/notification-engine/internal/services/servicestest"
	"github.com/skinsociete/notification-engine/internal/templates"
	jwtutil "github.com/skinsociete/notification-engine/pkg/jwt"
	"github.com/skinsociete/notification-engine/pkg/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type recordingRecorder struct {
	events []models.BehaviorEvent
}

func (r *recordingRecorder) Record(_ context.Context, ev models.BehaviorEvent) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	r.events = append(r.events, ev)
	return nil
}

type stubSender struct {
	req     services.DispatchRequest
	results []services.DeliveryResult
}

func (s *stubSender) Send(_ context.Context, req services.DispatchRequest) ([]services.DeliveryResult, error) {
	if _, err := req.Target.Mode(); err != nil {
		return nil, err
	}
	s.req = req
	return s.results, nil
}

type fixture struct {
	router    *mux.Router
	sent      *servicestest.Sent
	prefs     *servicestest.Preferences
	scheduled *servicestest.Scheduled
	recorder  *recordingRecorder
	sender    *stubSender
}

func newFixture() *fixture {
	f := &fixture{
		sent:      servicestest.NewSent(),
		prefs:     servicestest.NewPreferences(),
		scheduled: servicestest.NewScheduled(),
		recorder:  &recordingRecorder{},
		sender:    &stubSender{},
	}
	clock := servicestest.NewClock(now)
	notifications := NewNotificationHandler(services.NewNotificationService(f.sent, f.recorder, clock))
	preferences := NewPreferenceHandler(services.NewPreferenceService(f.prefs, clock, "UTC"))
	events := NewEventHandler(f.recorder)
	admin := NewAdminHandler(f.sender, services.NewDeliveryService(f.scheduled, f.sender, templates.Default(), clock))

	r := mux.NewRouter()
	r.HandleFunc("/notifications", notifications.GetUserNotificationsHandler).Methods("GET")
	r.HandleFunc("/notifications/{id}/opened", notifications.MarkOpenedHandler).Methods("POST")
	r.HandleFunc("/notifications/preferences", preferences.GetPreferencesHandler).Methods("GET")
	r.HandleFunc("/notifications/preferences", preferences.UpdatePreferencesHandler).Methods("PUT")
	r.HandleFunc("/notifications/devices", preferences.RegisterDeviceHandler).Methods("POST")
	r.HandleFunc("/events", events.RecordEventHandler).Methods("POST")
	r.HandleFunc("/admin/notifications/send", admin.SendNotificationHandler).Methods("POST")
	r.HandleFunc("/admin/notifications/scheduled", admin.ScheduleNotificationHandler).Methods("POST")
	r.HandleFunc("/admin/notifications/scheduled/{id}", admin.CancelScheduledHandler).Methods("DELETE")
	f.router = r
	return f
}

// do serves a request as userID; an empty userID sends it unauthenticated.
func (f *fixture) do(method, path, userID, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if userID != "" {
		req = req.WithContext(middleware.WithUser(req.Context(), &jwtutil.Claims{UserID: userID, Role: "user"}))
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestPreferencesRoundTrip(t *testing.T) {
	f := newFixture()

	rec := f.do("GET", "/notifications/preferences", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do("GET", "/notifications/preferences", "ana", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var pref models.NotificationPreference
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pref))
	assert.Equal(t, models.DefaultMorningTime, pref.MorningTime)

	rec = f.do("PUT", "/notifications/preferences", "ana", `{"morning_time":"07:15","quiet_hours_start":"22:00","quiet_hours_end":"07:00"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pref))
	assert.Equal(t, "07:15", pref.MorningTime)
	assert.Equal(t, "22:00", pref.QuietHoursStart)

	rec = f.do("PUT", "/notifications/preferences", "ana", `{"morning_time":"7am"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do("PUT", "/notifications/preferences", "ana", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRegisterDevice(t *testing.T) {
	f := newFixture()

	for range 2 {
		rec := f.do("POST", "/notifications/devices", "ana", `{"token":"tok-1","platform":"android"}`)
		require.Equal(t, http.StatusOK, rec.Code)
	}
	var pref models.NotificationPreference
	rec := f.do("GET", "/notifications/preferences", "ana", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pref))
	assert.Equal(t, []string{"tok-1"}, pref.FCMTokens)

	rec = f.do("POST", "/notifications/devices", "ana", `{"token":"tok-2","platform":"windows"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHistoryAndOpened(t *testing.T) {
	f := newFixture()
	row := &models.SentNotification{UserID: "ana", TemplateID: templates.TierUpgrade, Delivered: true, SentAt: now}
	require.NoError(t, f.sent.InsertSent(t.Context(), row))
	require.NoError(t, f.sent.InsertSent(t.Context(), &models.SentNotification{UserID: "ben", SentAt: now}))

	rec := f.do("GET", "/notifications?limit=10", "ana", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var rows []models.SentNotification
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, row.ID, rows[0].ID)

	assert.Equal(t, http.StatusBadRequest, f.do("GET", "/notifications?limit=ten", "ana", "").Code)

	rec = f.do("POST", "/notifications/"+row.ID.Hex()+"/opened", "ana", `{"action_taken":"view"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, f.sent.Rows()[0].Opened)
	assert.Equal(t, "view", f.sent.Rows()[0].ActionTaken)
	require.Len(t, f.recorder.events, 1)
	assert.Equal(t, models.EventNotificationOpened, f.recorder.events[0].Kind)

	rec = f.do("POST", "/notifications/"+row.ID.Hex()+"/opened", "ben", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do("POST", "/notifications/nope/opened", "ana", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRecordEvent(t *testing.T) {
	f := newFixture()

	rec := f.do("POST", "/events", "", `{"event_id":"e1","user_id":"ana","kind":"routine_completed","payload":{"routine_type":"morning"}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, f.recorder.events, 1)

	rec = f.do("POST", "/events", "", `{"user_id":"ana","kind":"routine_completed","payload":{"routine_type":"noon"}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminSend(t *testing.T) {
	f := newFixture()
	f.sender.results = []services.DeliveryResult{
		{UserID: "ana", Allowed: true, Delivered: true},
		{UserID: "ana", Allowed: true, Delivered: false},
		{UserID: "ben", Allowed: false, Reason: services.ReasonQuietHours},
	}

	rec := f.do("POST", "/admin/notifications/send", "admin", `{"target":{"user_ids":["ana","ben"]},"template_id":"tier_upgrade","priority":"HIGH","payload":{"tierName":"Glow Icon"}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp sendResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Recipients)
	assert.Equal(t, 1, resp.Delivered)
	assert.Len(t, resp.Results, 3)
	assert.Equal(t, models.PriorityHigh, f.sender.req.Priority)
	assert.Equal(t, "Glow Icon", f.sender.req.Vars["tierName"])

	rec = f.do("POST", "/admin/notifications/send", "admin", `{"target":{"user_id":"ana","user_ids":["ben"]}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminScheduleAndCancel(t *testing.T) {
	f := newFixture()

	body := `{"user_id":"ana","template_id":"` + templates.BookingReminder + `","scheduled_for":"2026-03-11T09:00:00Z"}`
	rec := f.do("POST", "/admin/notifications/scheduled", "admin", body)
	require.Equal(t, http.StatusCreated, rec.Code)
	var n models.ScheduledNotification
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &n))
	assert.Equal(t, models.StatusPending, n.Status)

	rec = f.do("POST", "/admin/notifications/scheduled", "admin", `{"user_id":"ana","template_id":"missing","scheduled_for":"2026-03-11T09:00:00Z"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do("DELETE", "/admin/notifications/scheduled/"+n.ID.Hex(), "admin", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do("DELETE", "/admin/notifications/scheduled/"+n.ID.Hex(), "admin", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do("DELETE", "/admin/notifications/scheduled/"+primitive.NewObjectID().Hex(), "admin", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
