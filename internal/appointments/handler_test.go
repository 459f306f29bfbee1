package appointments

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpmiddleware "github.com/careloop/booking-platform/internal/http/middleware"
	"github.com/careloop/booking-platform/pkg/logging"
)

func quietTestLogger() *logging.Logger {
	return logging.NewWithWriter("error", io.Discard)
}

func newHTTPHarness(t *testing.T) (*chi.Mux, *InMemoryRepository, MemorySlot) {
	t.Helper()
	repo := NewInMemoryRepository()
	slot := MemorySlot{
		ID:         uuid.New(),
		ProviderID: uuid.New(),
		Start:      time.Now().Add(24 * time.Hour),
	}
	repo.AddSlot(slot)

	svc := NewService(repo, nil, nil, quietTestLogger())
	h := NewHandler(svc, quietTestLogger())

	r := chi.NewRouter()
	r.Post("/appointments", h.Create)
	r.Get("/appointments/my", h.ListMine)
	r.Patch("/appointments/{id}/confirm", h.Confirm)
	r.Patch("/appointments/{id}/cancel", h.Cancel)
	r.Patch("/appointments/{id}/complete", h.Complete)
	return r, repo, slot
}

func userRequest(method, target string, body any, userID uuid.UUID, role string) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, target, &buf)
	ctx := httpmiddleware.WithUser(req.Context(), httpmiddleware.User{ID: userID.String(), Role: role})
	return req.WithContext(ctx)
}

func bookBody(slot MemorySlot, patientID uuid.UUID) map[string]string {
	return map[string]string{
		"hostId":     slot.ProviderID.String(),
		"timeslotId": slot.ID.String(),
		"patientId":  patientID.String(),
		"reason":     "annual checkup",
	}
}

func TestCreateAppointment(t *testing.T) {
	router, _, slot := newHTTPHarness(t)
	guestID := uuid.New()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, userRequest(http.MethodPost, "/appointments", bookBody(slot, uuid.New()), guestID, "guest"))

	require.Equal(t, http.StatusCreated, rec.Code)
	var appt Appointment
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &appt))
	assert.Equal(t, StatusPending, appt.Status)
	assert.Equal(t, guestID, appt.GuestID)
	assert.Equal(t, slot.ID, appt.SlotID)
}

func TestCreateAppointmentSlotTaken(t *testing.T) {
	router, _, slot := newHTTPHarness(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, userRequest(http.MethodPost, "/appointments", bookBody(slot, uuid.New()), uuid.New(), "guest"))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, userRequest(http.MethodPost, "/appointments", bookBody(slot, uuid.New()), uuid.New(), "guest"))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCreateAppointmentUnknownSlot(t *testing.T) {
	router, _, slot := newHTTPHarness(t)
	body := bookBody(slot, uuid.New())
	body["timeslotId"] = uuid.NewString()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, userRequest(http.MethodPost, "/appointments", body, uuid.New(), "guest"))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateAppointmentValidation(t *testing.T) {
	router, _, slot := newHTTPHarness(t)

	cases := []struct {
		name   string
		mutate func(map[string]string)
	}{
		{"missing reason", func(b map[string]string) { b["reason"] = "" }},
		{"bad slot id", func(b map[string]string) { b["timeslotId"] = "not-a-uuid" }},
		{"missing patient", func(b map[string]string) { delete(b, "patientId") }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			body := bookBody(slot, uuid.New())
			tc.mutate(body)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, userRequest(http.MethodPost, "/appointments", body, uuid.New(), "guest"))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestConfirmEndpointProviderOnly(t *testing.T) {
	router, _, slot := newHTTPHarness(t)
	guestID := uuid.New()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, userRequest(http.MethodPost, "/appointments", bookBody(slot, uuid.New()), guestID, "guest"))
	require.Equal(t, http.StatusCreated, rec.Code)
	var appt Appointment
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &appt))

	// The guest cannot confirm their own booking.
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, userRequest(http.MethodPatch, "/appointments/"+appt.ID.String()+"/confirm", nil, guestID, "guest"))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, userRequest(http.MethodPatch, "/appointments/"+appt.ID.String()+"/confirm", nil, slot.ProviderID, "provider"))
	require.Equal(t, http.StatusOK, rec.Code)
	var confirmed Appointment
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &confirmed))
	assert.Equal(t, StatusConfirmed, confirmed.Status)
}

func TestCancelEndpointRequiresReason(t *testing.T) {
	router, _, slot := newHTTPHarness(t)
	guestID := uuid.New()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, userRequest(http.MethodPost, "/appointments", bookBody(slot, uuid.New()), guestID, "guest"))
	require.Equal(t, http.StatusCreated, rec.Code)
	var appt Appointment
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &appt))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, userRequest(http.MethodPatch, "/appointments/"+appt.ID.String()+"/cancel",
		map[string]string{}, guestID, "guest"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, userRequest(http.MethodPatch, "/appointments/"+appt.ID.String()+"/cancel",
		map[string]string{"cancelReason": "schedule conflict"}, guestID, "guest"))
	require.Equal(t, http.StatusOK, rec.Code)
	var cancelled Appointment
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cancelled))
	assert.Equal(t, StatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancelReason)
	assert.Equal(t, "schedule conflict", *cancelled.CancelReason)
}

func TestInvalidTransitionConflict(t *testing.T) {
	router, _, slot := newHTTPHarness(t)
	guestID := uuid.New()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, userRequest(http.MethodPost, "/appointments", bookBody(slot, uuid.New()), guestID, "guest"))
	require.Equal(t, http.StatusCreated, rec.Code)
	var appt Appointment
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &appt))

	// PENDING cannot jump straight to COMPLETED.
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, userRequest(http.MethodPatch, "/appointments/"+appt.ID.String()+"/complete", nil, slot.ProviderID, "provider"))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestTransitionUnknownAppointment(t *testing.T) {
	router, _, _ := newHTTPHarness(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, userRequest(http.MethodPatch, "/appointments/"+uuid.NewString()+"/confirm", nil, uuid.New(), "provider"))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListMineSeesBothSides(t *testing.T) {
	router, _, slot := newHTTPHarness(t)
	guestID := uuid.New()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, userRequest(http.MethodPost, "/appointments", bookBody(slot, uuid.New()), guestID, "guest"))
	require.Equal(t, http.StatusCreated, rec.Code)

	for _, userID := range []uuid.UUID{guestID, slot.ProviderID} {
		rec = httptest.NewRecorder()
		router.ServeHTTP(rec, userRequest(http.MethodGet, "/appointments/my", nil, userID, "guest"))
		require.Equal(t, http.StatusOK, rec.Code)
		var appts []Appointment
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &appts))
		assert.Len(t, appts, 1)
	}
}

func TestEndpointsRequireAuth(t *testing.T) {
	router, _, _ := newHTTPHarness(t)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/appointments", bytes.NewBufferString("{}")))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
