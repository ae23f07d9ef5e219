package scheduling

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/caresched/caresched/internal/platform/auth"
	"github.com/caresched/caresched/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Slot endpoints
	api.GET("/slots", h.ListSlots)
	api.GET("/slots/:id", h.GetSlot)
	api.POST("/slots", h.CreateSlot, auth.RequireRole("provider"))
	api.DELETE("/slots/:id", h.DeleteSlot, auth.RequireRole("provider"))
	api.POST("/slots/:id/waitlist", h.JoinWaitlist, auth.RequireRole("patient"))
	api.GET("/slots/:id/waitlist", h.ListWaitlist, auth.RequireRole("provider", "patient"))

	// Appointment endpoints
	api.POST("/appointments", h.CreateAppointment, auth.RequireRole("patient"))
	api.GET("/appointments", h.ListAppointments)
	api.GET("/appointments/:id", h.GetAppointment)
	api.PATCH("/appointments/:id/status", h.UpdateStatus)
	api.GET("/appointments/:id/join", h.JoinInfo)

	// Meeting endpoints
	api.POST("/meetings", h.ProvisionMeeting, auth.RequireRole("provider"))
}

// actor converts the authenticated principal into a domain actor.
func actor(c echo.Context) (Actor, error) {
	p := auth.PrincipalFrom(c)
	if p == nil {
		return Actor{}, echo.NewHTTPError(http.StatusUnauthorized, "not authenticated")
	}
	return Actor{UserID: p.UserID, Role: Role(p.Role), ProviderID: p.ProviderID}, nil
}

// httpError maps domain sentinels onto HTTP status codes.
func httpError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "not found")
	case errors.Is(err, ErrMeetingNotReady):
		return echo.NewHTTPError(http.StatusNotFound, "meeting not ready")
	case errors.Is(err, ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, "forbidden")
	case errors.Is(err, ErrAccessWindowClosed):
		return echo.NewHTTPError(http.StatusForbidden, "meeting access window is closed")
	case errors.Is(err, ErrSlotUnavailable):
		return echo.NewHTTPError(http.StatusConflict, "slot is no longer available")
	case errors.Is(err, ErrInvalidTransition):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotConfirmed):
		return echo.NewHTTPError(http.StatusBadRequest, "appointment is not confirmed")
	case errors.Is(err, ErrSlotBooked):
		return echo.NewHTTPError(http.StatusBadRequest, "slot is booked")
	case errors.Is(err, ErrValidation):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrProvisioning):
		return echo.NewHTTPError(http.StatusBadGateway, "meeting provisioning failed")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}

// -- Slot Handlers --

func (h *Handler) CreateSlot(c echo.Context) error {
	act, err := actor(c)
	if err != nil {
		return err
	}
	var sl Slot
	if err := c.Bind(&sl); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreateSlot(c.Request().Context(), act, &sl); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, sl)
}

func (h *Handler) GetSlot(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	sl, err := h.svc.GetSlot(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, sl)
}

func (h *Handler) ListSlots(c echo.Context) error {
	pg := pagination.FromContext(c)
	providerID, err := uuid.Parse(c.QueryParam("provider_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid provider_id")
	}
	availableOnly := c.QueryParam("available") == "true"
	items, total, err := h.svc.ListSlots(c.Request().Context(), providerID, availableOnly, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) DeleteSlot(c echo.Context) error {
	act, err := actor(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.DeleteSlot(c.Request().Context(), act, id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Appointment Handlers --

func (h *Handler) CreateAppointment(c echo.Context) error {
	act, err := actor(c)
	if err != nil {
		return err
	}
	var req BookingRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	appt, err := h.svc.CreateAppointment(c.Request().Context(), act, req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, appt)
}

func (h *Handler) GetAppointment(c echo.Context) error {
	act, err := actor(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	appt, err := h.svc.GetAppointment(c.Request().Context(), act, id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, appt)
}

func (h *Handler) ListAppointments(c echo.Context) error {
	act, err := actor(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListAppointments(c.Request().Context(), act, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

type statusUpdateRequest struct {
	Status Status `json:"status"`
}

func (h *Handler) UpdateStatus(c echo.Context) error {
	act, err := actor(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req statusUpdateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Status == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "status is required")
	}
	// Patients may only ever cancel; reject other targets before touching
	// the appointment so the response does not leak whether it exists.
	if act.Role == RolePatient && req.Status != StatusCanceled {
		return echo.NewHTTPError(http.StatusForbidden, "patients may only cancel appointments")
	}
	appt, err := h.svc.Transition(c.Request().Context(), act, id, req.Status)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, appt)
}

func (h *Handler) JoinInfo(c echo.Context) error {
	act, err := actor(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	info, err := h.svc.MeetingJoinInfo(c.Request().Context(), act, id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, info)
}

// -- Meeting Handlers --

type provisionMeetingRequest struct {
	AppointmentID uuid.UUID `json:"appointment_id"`
}

type provisionMeetingResponse struct {
	MeetingID uuid.UUID `json:"meeting_id"`
	Provider  string    `json:"provider"`
}

// ProvisionMeeting creates the meeting for a confirmed appointment on
// demand, typically to retry after a provisioning failure at confirm time.
func (h *Handler) ProvisionMeeting(c echo.Context) error {
	act, err := actor(c)
	if err != nil {
		return err
	}
	var req provisionMeetingRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.AppointmentID == uuid.Nil {
		return echo.NewHTTPError(http.StatusBadRequest, "appointment_id is required")
	}
	m, err := h.svc.ProvisionMeeting(c.Request().Context(), act, req.AppointmentID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, provisionMeetingResponse{MeetingID: m.ID, Provider: m.Provider})
}

// -- Waitlist Handlers --

func (h *Handler) JoinWaitlist(c echo.Context) error {
	act, err := actor(c)
	if err != nil {
		return err
	}
	slotID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	entry, err := h.svc.JoinWaitlist(c.Request().Context(), act, slotID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, entry)
}

func (h *Handler) ListWaitlist(c echo.Context) error {
	act, err := actor(c)
	if err != nil {
		return err
	}
	slotID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	entries, err := h.svc.ListWaitlist(c.Request().Context(), act, slotID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, entries)
}
