package scheduling

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/caresched/caresched/internal/platform/auth"
)

func newTestHandler() (*Handler, *testEnv, *echo.Echo) {
	env := newTestEnv()
	return NewHandler(env.svc), env, echo.New()
}

func request(e *echo.Echo, method, target string, body string, act Actor) (echo.Context, *httptest.ResponseRecorder) {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set("principal", &auth.Principal{UserID: act.UserID, Role: string(act.Role), ProviderID: act.ProviderID})
	return c, rec
}

func TestHandler_CreateSlot(t *testing.T) {
	h, _, e := newTestHandler()
	provider := providerActor(uuid.New())

	body := fmt.Sprintf(`{"start_at":%q,"end_at":%q}`,
		time.Now().UTC().Add(time.Hour).Format(time.RFC3339),
		time.Now().UTC().Add(2*time.Hour).Format(time.RFC3339))
	c, rec := request(e, http.MethodPost, "/api/v1/slots", body, provider)

	if err := h.CreateSlot(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}

	var sl Slot
	if err := json.Unmarshal(rec.Body.Bytes(), &sl); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if sl.ProviderID != provider.ProviderID {
		t.Errorf("expected provider id %s, got %s", provider.ProviderID, sl.ProviderID)
	}
}

func TestHandler_CreateSlot_InvalidTimes(t *testing.T) {
	h, _, e := newTestHandler()

	body := fmt.Sprintf(`{"start_at":%q,"end_at":%q}`,
		time.Now().UTC().Add(2*time.Hour).Format(time.RFC3339),
		time.Now().UTC().Add(time.Hour).Format(time.RFC3339))
	c, _ := request(e, http.MethodPost, "/api/v1/slots", body, providerActor(uuid.New()))

	err := h.CreateSlot(c)
	if he, ok := err.(*echo.HTTPError); !ok || he.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %v", err)
	}
}

func TestHandler_GetSlot_NotFound(t *testing.T) {
	h, _, e := newTestHandler()
	c, _ := request(e, http.MethodGet, "/api/v1/slots/"+uuid.NewString(), "", patientActor())
	c.SetParamNames("id")
	c.SetParamValues(uuid.NewString())

	err := h.GetSlot(c)
	if he, ok := err.(*echo.HTTPError); !ok || he.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %v", err)
	}
}

func TestHandler_GetSlot_InvalidID(t *testing.T) {
	h, _, e := newTestHandler()
	c, _ := request(e, http.MethodGet, "/api/v1/slots/abc", "", patientActor())
	c.SetParamNames("id")
	c.SetParamValues("abc")

	err := h.GetSlot(c)
	if he, ok := err.(*echo.HTTPError); !ok || he.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %v", err)
	}
}

func TestHandler_ListSlots(t *testing.T) {
	h, env, e := newTestHandler()
	providerID := uuid.New()
	env.addSlot(t, providerID, time.Hour)
	booked := env.addSlot(t, providerID, 2*time.Hour)
	env.book(t, patientActor(), booked)

	c, rec := request(e, http.MethodGet, "/api/v1/slots?provider_id="+providerID.String()+"&available=true", "", patientActor())
	if err := h.ListSlots(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}

	var resp struct {
		Data  []*Slot `json:"data"`
		Total int     `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Total != 1 || len(resp.Data) != 1 {
		t.Errorf("expected the single free slot, got total %d", resp.Total)
	}
}

func TestHandler_ListSlots_ProviderRequired(t *testing.T) {
	h, _, e := newTestHandler()
	c, _ := request(e, http.MethodGet, "/api/v1/slots", "", patientActor())

	err := h.ListSlots(c)
	if he, ok := err.(*echo.HTTPError); !ok || he.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %v", err)
	}
}

func TestHandler_DeleteSlot_Booked(t *testing.T) {
	h, env, e := newTestHandler()
	providerID := uuid.New()
	sl := env.addSlot(t, providerID, time.Hour)
	env.book(t, patientActor(), sl)

	c, _ := request(e, http.MethodDelete, "/api/v1/slots/"+sl.ID.String(), "", providerActor(providerID))
	c.SetParamNames("id")
	c.SetParamValues(sl.ID.String())

	err := h.DeleteSlot(c)
	if he, ok := err.(*echo.HTTPError); !ok || he.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %v", err)
	}
}

func TestHandler_CreateAppointment(t *testing.T) {
	h, env, e := newTestHandler()
	sl := env.addSlot(t, uuid.New(), time.Hour)

	body := fmt.Sprintf(`{"slot_id":%q,"provider_id":%q}`, sl.ID, sl.ProviderID)
	c, rec := request(e, http.MethodPost, "/api/v1/appointments", body, patientActor())

	if err := h.CreateAppointment(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}

	var appt Appointment
	if err := json.Unmarshal(rec.Body.Bytes(), &appt); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if appt.Status != StatusRequested {
		t.Errorf("expected requested, got %s", appt.Status)
	}
}

func TestHandler_CreateAppointment_SlotTaken(t *testing.T) {
	h, env, e := newTestHandler()
	sl := env.addSlot(t, uuid.New(), time.Hour)
	env.book(t, patientActor(), sl)

	body := fmt.Sprintf(`{"slot_id":%q,"provider_id":%q}`, sl.ID, sl.ProviderID)
	c, _ := request(e, http.MethodPost, "/api/v1/appointments", body, patientActor())

	err := h.CreateAppointment(c)
	if he, ok := err.(*echo.HTTPError); !ok || he.Code != http.StatusConflict {
		t.Errorf("expected 409, got %v", err)
	}
}

func TestHandler_UpdateStatus(t *testing.T) {
	h, env, e := newTestHandler()
	providerID := uuid.New()
	sl := env.addSlot(t, providerID, time.Hour)
	appt := env.book(t, patientActor(), sl)

	c, rec := request(e, http.MethodPatch, "/api/v1/appointments/"+appt.ID.String()+"/status",
		`{"status":"confirmed"}`, providerActor(providerID))
	c.SetParamNames("id")
	c.SetParamValues(appt.ID.String())

	if err := h.UpdateStatus(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}

	var got Appointment
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.Status != StatusConfirmed {
		t.Errorf("expected confirmed, got %s", got.Status)
	}
}

func TestHandler_UpdateStatus_MissingStatus(t *testing.T) {
	h, env, e := newTestHandler()
	sl := env.addSlot(t, uuid.New(), time.Hour)
	appt := env.book(t, patientActor(), sl)

	c, _ := request(e, http.MethodPatch, "/api/v1/appointments/"+appt.ID.String()+"/status", `{}`, adminActor())
	c.SetParamNames("id")
	c.SetParamValues(appt.ID.String())

	err := h.UpdateStatus(c)
	if he, ok := err.(*echo.HTTPError); !ok || he.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %v", err)
	}
}

func TestHandler_UpdateStatus_UnknownStatus(t *testing.T) {
	h, env, e := newTestHandler()
	sl := env.addSlot(t, uuid.New(), time.Hour)
	appt := env.book(t, patientActor(), sl)

	c, _ := request(e, http.MethodPatch, "/api/v1/appointments/"+appt.ID.String()+"/status",
		`{"status":"archived"}`, adminActor())
	c.SetParamNames("id")
	c.SetParamValues(appt.ID.String())

	err := h.UpdateStatus(c)
	if he, ok := err.(*echo.HTTPError); !ok || he.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %v", err)
	}
}

func TestHandler_UpdateStatus_PatientConfirmForbidden(t *testing.T) {
	h, env, e := newTestHandler()
	sl := env.addSlot(t, uuid.New(), time.Hour)
	patient := patientActor()
	appt := env.book(t, patient, sl)

	c, _ := request(e, http.MethodPatch, "/api/v1/appointments/"+appt.ID.String()+"/status",
		`{"status":"confirmed"}`, patient)
	c.SetParamNames("id")
	c.SetParamValues(appt.ID.String())

	err := h.UpdateStatus(c)
	if he, ok := err.(*echo.HTTPError); !ok || he.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %v", err)
	}
}

func TestHandler_UpdateStatus_InvalidTransition(t *testing.T) {
	h, env, e := newTestHandler()
	providerID := uuid.New()
	sl := env.addSlot(t, providerID, time.Hour)
	appt := env.book(t, patientActor(), sl)

	c, _ := request(e, http.MethodPatch, "/api/v1/appointments/"+appt.ID.String()+"/status",
		`{"status":"completed"}`, providerActor(providerID))
	c.SetParamNames("id")
	c.SetParamValues(appt.ID.String())

	err := h.UpdateStatus(c)
	if he, ok := err.(*echo.HTTPError); !ok || he.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %v", err)
	}
}

func TestHandler_UpdateStatus_PatientNonCancelRejectedEarly(t *testing.T) {
	h, _, e := newTestHandler()

	// The boundary rejects the target before looking up the appointment, so
	// even a nonexistent id yields 403, not 404.
	c, _ := request(e, http.MethodPatch, "/api/v1/appointments/"+uuid.NewString()+"/status",
		`{"status":"confirmed"}`, patientActor())
	c.SetParamNames("id")
	c.SetParamValues(uuid.NewString())

	err := h.UpdateStatus(c)
	if he, ok := err.(*echo.HTTPError); !ok || he.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %v", err)
	}
}

func TestHandler_GetAppointment_Stranger(t *testing.T) {
	h, env, e := newTestHandler()
	sl := env.addSlot(t, uuid.New(), time.Hour)
	appt := env.book(t, patientActor(), sl)

	c, _ := request(e, http.MethodGet, "/api/v1/appointments/"+appt.ID.String(), "", patientActor())
	c.SetParamNames("id")
	c.SetParamValues(appt.ID.String())

	err := h.GetAppointment(c)
	if he, ok := err.(*echo.HTTPError); !ok || he.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %v", err)
	}
}

func TestHandler_JoinInfo(t *testing.T) {
	h, env, e := newTestHandler()
	providerID := uuid.New()
	sl := env.addSlot(t, providerID, 5*time.Minute)
	patient := patientActor()
	appt := env.book(t, patient, sl)
	if _, err := env.svc.Transition(context.Background(), providerActor(providerID), appt.ID, StatusConfirmed); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	c, rec := request(e, http.MethodGet, "/api/v1/appointments/"+appt.ID.String()+"/join", "", patient)
	c.SetParamNames("id")
	c.SetParamValues(appt.ID.String())

	if err := h.JoinInfo(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}

	var info JoinInfo
	if err := json.Unmarshal(rec.Body.Bytes(), &info); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if info.URL == "" {
		t.Error("expected a join url")
	}
}

func TestHandler_JoinInfo_WindowClosed(t *testing.T) {
	h, env, e := newTestHandler()
	providerID := uuid.New()
	sl := env.addSlot(t, providerID, 2*time.Hour)
	patient := patientActor()
	appt := env.book(t, patient, sl)
	if _, err := env.svc.Transition(context.Background(), providerActor(providerID), appt.ID, StatusConfirmed); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	c, _ := request(e, http.MethodGet, "/api/v1/appointments/"+appt.ID.String()+"/join", "", patient)
	c.SetParamNames("id")
	c.SetParamValues(appt.ID.String())

	err := h.JoinInfo(c)
	if he, ok := err.(*echo.HTTPError); !ok || he.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %v", err)
	}
}

func TestHandler_JoinInfo_NotConfirmed(t *testing.T) {
	h, env, e := newTestHandler()
	sl := env.addSlot(t, uuid.New(), 5*time.Minute)
	patient := patientActor()
	appt := env.book(t, patient, sl)

	c, _ := request(e, http.MethodGet, "/api/v1/appointments/"+appt.ID.String()+"/join", "", patient)
	c.SetParamNames("id")
	c.SetParamValues(appt.ID.String())

	err := h.JoinInfo(c)
	if he, ok := err.(*echo.HTTPError); !ok || he.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %v", err)
	}
}

func TestHandler_ProvisionMeeting(t *testing.T) {
	h, env, e := newTestHandler()
	providerID := uuid.New()
	sl := env.addSlot(t, providerID, time.Hour)
	appt := env.book(t, patientActor(), sl)
	provider := providerActor(providerID)

	if _, err := env.svc.Transition(context.Background(), provider, appt.ID, StatusConfirmed); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	body := fmt.Sprintf(`{"appointment_id":%q}`, appt.ID)
	c, rec := request(e, http.MethodPost, "/api/v1/meetings", body, provider)

	if err := h.ProvisionMeeting(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}

	var resp struct {
		MeetingID uuid.UUID `json:"meeting_id"`
		Provider  string    `json:"provider"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.MeetingID == uuid.Nil {
		t.Error("expected a meeting id")
	}
	if resp.Provider != "fake" {
		t.Errorf("unexpected provider: %s", resp.Provider)
	}
}

func TestHandler_ProvisionMeeting_NotConfirmed(t *testing.T) {
	h, env, e := newTestHandler()
	providerID := uuid.New()
	sl := env.addSlot(t, providerID, time.Hour)
	appt := env.book(t, patientActor(), sl)

	body := fmt.Sprintf(`{"appointment_id":%q}`, appt.ID)
	c, _ := request(e, http.MethodPost, "/api/v1/meetings", body, providerActor(providerID))

	err := h.ProvisionMeeting(c)
	if he, ok := err.(*echo.HTTPError); !ok || he.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %v", err)
	}
}

func TestHandler_ProvisionMeeting_AppointmentRequired(t *testing.T) {
	h, _, e := newTestHandler()
	c, _ := request(e, http.MethodPost, "/api/v1/meetings", `{}`, providerActor(uuid.New()))

	err := h.ProvisionMeeting(c)
	if he, ok := err.(*echo.HTTPError); !ok || he.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %v", err)
	}
}

func TestHandler_ProvisionMeeting_NotFound(t *testing.T) {
	h, _, e := newTestHandler()
	body := fmt.Sprintf(`{"appointment_id":%q}`, uuid.New())
	c, _ := request(e, http.MethodPost, "/api/v1/meetings", body, providerActor(uuid.New()))

	err := h.ProvisionMeeting(c)
	if he, ok := err.(*echo.HTTPError); !ok || he.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %v", err)
	}
}

func TestHandler_JoinWaitlist(t *testing.T) {
	h, env, e := newTestHandler()
	sl := env.addSlot(t, uuid.New(), time.Hour)
	env.book(t, patientActor(), sl)

	c, rec := request(e, http.MethodPost, "/api/v1/slots/"+sl.ID.String()+"/waitlist", "", patientActor())
	c.SetParamNames("id")
	c.SetParamValues(sl.ID.String())

	if err := h.JoinWaitlist(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
}

func TestHandler_JoinWaitlist_FreeSlot(t *testing.T) {
	h, env, e := newTestHandler()
	sl := env.addSlot(t, uuid.New(), time.Hour)

	c, _ := request(e, http.MethodPost, "/api/v1/slots/"+sl.ID.String()+"/waitlist", "", patientActor())
	c.SetParamNames("id")
	c.SetParamValues(sl.ID.String())

	err := h.JoinWaitlist(c)
	if he, ok := err.(*echo.HTTPError); !ok || he.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %v", err)
	}
}

func TestRegisterRoutes(t *testing.T) {
	h, _, e := newTestHandler()
	h.RegisterRoutes(e.Group("/api/v1"))

	want := map[string]bool{
		"POST /api/v1/slots":                    false,
		"POST /api/v1/appointments":             false,
		"PATCH /api/v1/appointments/:id/status": false,
		"GET /api/v1/appointments/:id/join":     false,
		"POST /api/v1/meetings":                 false,
		"POST /api/v1/slots/:id/waitlist":       false,
		"GET /api/v1/slots/:id/waitlist":        false,
	}
	for _, r := range e.Routes() {
		key := r.Method + " " + r.Path
		if _, ok := want[key]; ok {
			want[key] = true
		}
	}
	for key, seen := range want {
		if !seen {
			t.Errorf("route not registered: %s", key)
		}
	}
}

func TestHandler_NoPrincipal(t *testing.T) {
	h, _, e := newTestHandler()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/appointments", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := h.ListAppointments(c)
	if he, ok := err.(*echo.HTTPError); !ok || he.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %v", err)
	}
}
