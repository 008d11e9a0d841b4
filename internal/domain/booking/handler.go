package booking

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/carebook/carebook/internal/domain/roster"
	"github.com/carebook/carebook/internal/platform/middleware"
	"github.com/carebook/carebook/pkg/pagination"
)

// OwnedDoctorLookup resolves a doctor only for the hospital that owns it.
// *roster.Service implements it.
type OwnedDoctorLookup interface {
	GetOwnedDoctor(ctx context.Context, hospital string, id int64) (*roster.Doctor, error)
}

type Handler struct {
	svc          *Service
	owned        OwnedDoctorLookup
	currentStaff func(context.Context) string
	logger       zerolog.Logger
}

// NewHandler wires the patient booking API. currentStaff names the signed-in
// hospital for staff routes, normally auth.UserIDFromContext.
func NewHandler(svc *Service, owned OwnedDoctorLookup, currentStaff func(context.Context) string, logger zerolog.Logger) *Handler {
	return &Handler{svc: svc, owned: owned, currentStaff: currentStaff, logger: logger}
}

// RegisterRoutes mounts the patient routes on public and the history route on
// staff. writeLimit guards the routes that change appointments.
func (h *Handler) RegisterRoutes(public, staff *echo.Group, writeLimit ...echo.MiddlewareFunc) {
	public.GET("/doctors/:id", h.DoctorProfile)
	public.GET("/doctors/:id/stats", h.Stats)
	public.POST("/appointments", h.Admit, writeLimit...)
	public.POST("/appointments/:id/cancel", h.Cancel, writeLimit...)
	public.POST("/appointments/:id/confirm", h.Confirm, writeLimit...)
	public.GET("/patients/:phone/appointments", h.ListByPhone)

	staff.GET("/doctors/:id/appointments", h.DoctorAppointments)
}

type phoneRequest struct {
	PatientPhone string `json:"patient_phone"`
}

type ackResponse struct {
	Ack
	Message string `json:"message"`
}

type profileResponse struct {
	Doctor       *roster.Doctor       `json:"doctor"`
	Availability Availability         `json:"availability"`
	Appointments *pagination.Response `json:"appointments"`
}

func (h *Handler) Admit(c echo.Context) error {
	var req AdmitRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	adm, err := h.svc.Admit(c.Request().Context(), req)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusCreated, adm)
}

func (h *Handler) Cancel(c echo.Context) error {
	id, req, ok, err := appointmentAction(c)
	if !ok {
		return err
	}
	ack, err := h.svc.Cancel(c.Request().Context(), id, req.PatientPhone)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, ackResponse{Ack: *ack, Message: "appointment cancelled"})
}

func (h *Handler) Confirm(c echo.Context) error {
	id, req, ok, err := appointmentAction(c)
	if !ok {
		return err
	}
	ack, err := h.svc.Confirm(c.Request().Context(), id, req.PatientPhone)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, ackResponse{Ack: *ack, Message: "appointment confirmed"})
}

// appointmentAction reads the :id path parameter and the phone body shared by
// cancel and confirm. When ok is false the 400 response has been written and
// err is the write result.
func appointmentAction(c echo.Context) (id int64, req phoneRequest, ok bool, err error) {
	id, err = roster.ParseID(c.Param("id"))
	if err != nil {
		return 0, req, false, badRequest(c, "invalid appointment id")
	}
	if err := c.Bind(&req); err != nil {
		return 0, req, false, badRequest(c, "invalid request body")
	}
	return id, req, true, nil
}

func (h *Handler) Stats(c echo.Context) error {
	id, err := roster.ParseID(c.Param("id"))
	if err != nil {
		return badRequest(c, "invalid doctor id")
	}
	stats, err := h.svc.Stats(c.Request().Context(), id)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, stats)
}

func (h *Handler) ListByPhone(c echo.Context) error {
	items, err := h.svc.ListByPhone(c.Request().Context(), c.Param("phone"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, items)
}

// DoctorProfile shows a doctor, today's availability and their appointment
// history.
func (h *Handler) DoctorProfile(c echo.Context) error {
	id, err := roster.ParseID(c.Param("id"))
	if err != nil {
		return badRequest(c, "invalid doctor id")
	}
	ctx := c.Request().Context()

	doctor, err := h.svc.Doctor(ctx, id)
	if err != nil {
		return h.fail(c, err)
	}
	page, err := h.history(c, id)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, profileResponse{
		Doctor:       doctor,
		Availability: Evaluate(doctor, h.svc.clock()),
		Appointments: page,
	})
}

// DoctorAppointments pages a doctor's history for the owning hospital.
func (h *Handler) DoctorAppointments(c echo.Context) error {
	id, err := roster.ParseID(c.Param("id"))
	if err != nil {
		return badRequest(c, "invalid doctor id")
	}
	ctx := c.Request().Context()

	if _, err := h.owned.GetOwnedDoctor(ctx, h.currentStaff(ctx), id); err != nil {
		switch {
		case errors.Is(err, roster.ErrNotOwner):
			return c.JSON(http.StatusForbidden, middleware.ErrorBody{Error: "NotOwner", Message: err.Error()})
		case roster.IsNotFound(err):
			return h.fail(c, ErrDoctorNotFound)
		default:
			return h.fail(c, storageFailure("get owned doctor", err))
		}
	}

	page, err := h.history(c, id)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, page)
}

func (h *Handler) history(c echo.Context, doctorID int64) (*pagination.Response, error) {
	p := pagination.FromContext(c)
	items, total, err := h.svc.ListByDoctor(c.Request().Context(), doctorID, p.Limit, p.Offset)
	if err != nil {
		return nil, err
	}
	return pagination.NewResponse(items, total, p.Limit, p.Offset).WithLinks(c.Request().URL.Path), nil
}

// errorResponse extends the common error body with the structured kinds'
// details.
type errorResponse struct {
	middleware.ErrorBody
	Cap    int    `json:"cap,omitempty"`
	Reason Reason `json:"reason,omitempty"`
	Detail string `json:"detail,omitempty"`
}

func statusFor(kind string) int {
	switch kind {
	case "InvalidPatientName", "InvalidPhone", "InvalidDate":
		return http.StatusBadRequest
	case "DoctorNotFound", "NotFound":
		return http.StatusNotFound
	case "Unauthorized":
		return http.StatusForbidden
	case "DoctorUnavailable", "CapacityExceeded", "AlreadyConfirmed":
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) fail(c echo.Context, err error) error {
	kind := KindOf(err)
	resp := errorResponse{ErrorBody: middleware.ErrorBody{Error: kind, Message: err.Error()}}

	var unavailable *UnavailableError
	var capacity *CapacityError
	switch {
	case errors.As(err, &unavailable):
		resp.Reason, resp.Detail = unavailable.Reason, unavailable.Detail
	case errors.As(err, &capacity):
		resp.Cap = capacity.Cap
	case kind == "StorageFailure":
		h.logger.Error().Err(err).
			Str("request_id", middleware.RequestIDFrom(c)).
			Str("path", c.Request().URL.Path).
			Msg("booking request failed")
		resp.Message = ErrStorageFailure.Error()
	}
	return c.JSON(statusFor(kind), resp)
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, middleware.ErrorBody{Error: "BadRequest", Message: msg})
}
