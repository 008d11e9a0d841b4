package roster

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/carebook/carebook/internal/platform/auth"
	"github.com/carebook/carebook/internal/platform/middleware"
	"github.com/carebook/carebook/pkg/pagination"
)

type Handler struct {
	svc    *Service
	logger zerolog.Logger
}

func NewHandler(svc *Service, logger zerolog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// RegisterRoutes mounts the patient directory on public and the roster
// management endpoints on staff, the /staff group that already runs
// auth.JWTMiddleware and auth.RequireRole(auth.RoleStaff).
func (h *Handler) RegisterRoutes(public, staff *echo.Group) {
	public.GET("/directory", h.Directory)

	staff.GET("/hospital", h.GetHospital)
	staff.PUT("/hospital", h.UpsertHospital)
	staff.GET("/doctors", h.ListDoctors)
	staff.POST("/doctors", h.CreateDoctor)
	staff.PUT("/doctors/:id", h.UpdateDoctor)
	staff.DELETE("/doctors/:id", h.DeleteDoctor)
}

func (h *Handler) Directory(c echo.Context) error {
	entries, err := h.svc.Directory(c.Request().Context(), c.QueryParam("search"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"search":    c.QueryParam("search"),
		"hospitals": entries,
	})
}

func (h *Handler) GetHospital(c echo.Context) error {
	hosp, err := h.svc.GetHospital(c.Request().Context(), staffUser(c))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, hosp)
}

func (h *Handler) UpsertHospital(c echo.Context) error {
	var in HospitalInput
	if err := c.Bind(&in); err != nil {
		return badRequest(c, "invalid request body")
	}
	hosp, err := h.svc.UpsertHospital(c.Request().Context(), staffUser(c), in)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, hosp)
}

func (h *Handler) ListDoctors(c echo.Context) error {
	p := pagination.FromContext(c)
	doctors, total, err := h.svc.ListDoctorsByHospital(c.Request().Context(), staffUser(c), p.Limit, p.Offset)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(doctors, total, p.Limit, p.Offset).WithLinks(c.Request().URL.Path))
}

func (h *Handler) CreateDoctor(c echo.Context) error {
	var in DoctorInput
	if err := c.Bind(&in); err != nil {
		return badRequest(c, "invalid request body")
	}
	d, err := h.svc.CreateDoctor(c.Request().Context(), staffUser(c), in)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusCreated, d)
}

func (h *Handler) UpdateDoctor(c echo.Context) error {
	id, err := ParseID(c.Param("id"))
	if err != nil {
		return badRequest(c, "invalid doctor id")
	}
	var in DoctorInput
	if err := c.Bind(&in); err != nil {
		return badRequest(c, "invalid request body")
	}
	d, err := h.svc.UpdateDoctor(c.Request().Context(), staffUser(c), id, in)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) DeleteDoctor(c echo.Context) error {
	id, err := ParseID(c.Param("id"))
	if err != nil {
		return badRequest(c, "invalid doctor id")
	}
	if err := h.svc.DeleteDoctor(c.Request().Context(), staffUser(c), id); err != nil {
		return h.fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// ParseID parses a positive numeric path id.
func ParseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		return 0, errors.New("invalid id")
	}
	return id, nil
}

func staffUser(c echo.Context) string {
	return auth.UserIDFromContext(c.Request().Context())
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, middleware.ErrorBody{Error: "BadRequest", Message: msg})
}

// fail maps roster errors to HTTP responses. Anything unrecognised is logged
// and reported as a storage failure without its text.
func (h *Handler) fail(c echo.Context, err error) error {
	status, kind := http.StatusInternalServerError, "StorageFailure"
	msg := "storage failure"

	switch {
	case errors.Is(err, ErrDoctorNotFound):
		status, kind, msg = http.StatusNotFound, "DoctorNotFound", err.Error()
	case errors.Is(err, ErrHospitalNotFound):
		status, kind, msg = http.StatusNotFound, "HospitalNotFound", err.Error()
	case errors.Is(err, ErrNotOwner):
		status, kind, msg = http.StatusForbidden, "NotOwner", err.Error()
	case errors.Is(err, ErrInvalidHoliday):
		status, kind, msg = http.StatusBadRequest, "InvalidHoliday", err.Error()
	case errors.Is(err, ErrInvalidDoctor):
		status, kind, msg = http.StatusBadRequest, "InvalidDoctor", err.Error()
	case errors.Is(err, ErrInvalidHospital):
		status, kind, msg = http.StatusBadRequest, "InvalidHospital", err.Error()
	default:
		h.logger.Error().Err(err).
			Str("request_id", middleware.RequestIDFrom(c)).
			Str("path", c.Request().URL.Path).
			Msg("roster request failed")
	}
	return c.JSON(status, middleware.ErrorBody{Error: kind, Message: msg})
}
