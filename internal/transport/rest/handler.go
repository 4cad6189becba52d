package rest

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"clinicslots/internal/auth"
	"clinicslots/internal/domain"
	"clinicslots/internal/service/booking"
)

type bookingService interface {
	Book(ctx context.Context, in booking.BookInput) (domain.Reservation, error)
	Reschedule(ctx context.Context, in booking.RescheduleInput) (domain.Reservation, error)
	Cancel(ctx context.Context, reservationID, subjectID uuid.UUID, requester auth.Principal) (booking.Confirmation, error)
	AddAvailability(ctx context.Context, in booking.AddAvailabilityInput) (domain.AvailabilityInterval, error)
	UpdateAvailability(ctx context.Context, intervalID uuid.UUID, patch booking.AvailabilityPatch, requester auth.Principal) (domain.AvailabilityInterval, error)
	DeleteAvailability(ctx context.Context, intervalID uuid.UUID, requester auth.Principal) (booking.Confirmation, error)
	ListReservations(ctx context.Context, filter booking.ReservationFilter, page, size int, requester auth.Principal) ([]domain.Reservation, error)
	ListAvailability(ctx context.Context, page, size int) ([]domain.AvailabilityInterval, error)
	RegisterProvider(ctx context.Context, in booking.RegisterProviderInput) (domain.Provider, error)
	ListProviders(ctx context.Context, page, size int) ([]domain.Provider, error)
	RegisterSubject(ctx context.Context, in booking.RegisterSubjectInput) (domain.Subject, error)
	ListSubjects(ctx context.Context, page, size int, requester auth.Principal) ([]domain.Subject, error)
}

// Handler serves the booking engine over JSON/HTTP.
type Handler struct {
	svc     bookingService
	headers auth.Headers
	log     *slog.Logger
}

func NewHandler(svc bookingService, headers auth.Headers, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		svc:     svc,
		headers: headers,
		log:     log.With(slog.String("component", "http.booking")),
	}
}

// RegisterRoutes mounts the booking routes on g, normally /api/v1.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/appointments/subject/:subjectId", h.Book)
	g.GET("/appointments/subject/:subjectId", h.ListBySubject)
	g.GET("/appointments/provider/:providerId", h.ListByProvider)
	g.GET("/appointments", h.ListAll)
	g.PUT("/appointments/:id", h.Reschedule)
	g.DELETE("/appointments/:id/subject/:subjectId", h.Cancel)

	g.POST("/availabilities/provider/:providerId", h.AddAvailability)
	g.GET("/availabilities", h.ListAvailability)
	g.PUT("/availabilities/:id", h.UpdateAvailability)
	g.DELETE("/availabilities/:id", h.DeleteAvailability)

	g.POST("/doctors", h.RegisterProvider)
	g.GET("/doctors", h.ListProviders)
	g.POST("/patients", h.RegisterSubject)
	g.GET("/patients", h.ListSubjects)
}

type slotBody struct {
	ProviderID string `json:"provider_id"`
	Date       string `json:"date"`
	StartTime  string `json:"start_time"`
	EndTime    string `json:"end_time"`
}

type patchBody struct {
	Date      *string `json:"date"`
	StartTime *string `json:"start_time"`
	EndTime   *string `json:"end_time"`
}

type reservationJSON struct {
	ID         string `json:"id"`
	ProviderID string `json:"provider_id"`
	SubjectID  string `json:"subject_id"`
	Date       string `json:"date"`
	StartTime  string `json:"start_time"`
	EndTime    string `json:"end_time"`
	Status     string `json:"status"`
}

type intervalJSON struct {
	ID         string `json:"id"`
	ProviderID string `json:"provider_id"`
	Date       string `json:"date"`
	StartTime  string `json:"start_time"`
	EndTime    string `json:"end_time"`
	Status     string `json:"status"`
}

type messageJSON struct {
	Message string `json:"message"`
}

// Book handles POST /appointments/subject/:subjectId.
func (h *Handler) Book(c echo.Context) error {
	log := h.log.With(slog.String("route", "book"))

	subjectID, err := pathID(c, "subjectId")
	if err != nil {
		return h.invalid(log, err)
	}
	var body slotBody
	if err := c.Bind(&body); err != nil {
		return h.invalid(log, errors.New("malformed request body"))
	}
	providerID, err := parseID("provider_id", body.ProviderID)
	if err != nil {
		return h.invalid(log, err)
	}
	date, start, end, err := parseSlot(body.Date, body.StartTime, body.EndTime)
	if err != nil {
		return h.invalid(log, err)
	}

	requester := h.requester(c)
	res, err := h.svc.Book(c.Request().Context(), booking.BookInput{
		ProviderID: providerID,
		SubjectID:  subjectID,
		Date:       date,
		Start:      start,
		End:        end,
		Requester:  requester,
	})
	if err != nil {
		return h.fail(log, "book", err, slog.String("requester", requester.Username))
	}
	return c.JSON(http.StatusCreated, toReservation(res))
}

// Reschedule handles PUT /appointments/:id.
func (h *Handler) Reschedule(c echo.Context) error {
	log := h.log.With(slog.String("route", "reschedule"))

	id, err := pathID(c, "id")
	if err != nil {
		return h.invalid(log, err)
	}
	var body slotBody
	if err := c.Bind(&body); err != nil {
		return h.invalid(log, errors.New("malformed request body"))
	}
	date, start, end, err := parseSlot(body.Date, body.StartTime, body.EndTime)
	if err != nil {
		return h.invalid(log, err)
	}

	requester := h.requester(c)
	res, err := h.svc.Reschedule(c.Request().Context(), booking.RescheduleInput{
		ReservationID: id,
		Date:          date,
		Start:         start,
		End:           end,
		Requester:     requester,
	})
	if err != nil {
		return h.fail(log, "reschedule", err, slog.String("reservation_id", id.String()), slog.String("requester", requester.Username))
	}
	return c.JSON(http.StatusOK, toReservation(res))
}

// Cancel handles DELETE /appointments/:id/subject/:subjectId.
func (h *Handler) Cancel(c echo.Context) error {
	log := h.log.With(slog.String("route", "cancel"))

	id, err := pathID(c, "id")
	if err != nil {
		return h.invalid(log, err)
	}
	subjectID, err := pathID(c, "subjectId")
	if err != nil {
		return h.invalid(log, err)
	}

	requester := h.requester(c)
	conf, err := h.svc.Cancel(c.Request().Context(), id, subjectID, requester)
	if err != nil {
		return h.fail(log, "cancel", err, slog.String("reservation_id", id.String()), slog.String("requester", requester.Username))
	}
	return c.JSON(http.StatusOK, messageJSON{Message: conf.Message})
}

func (h *Handler) ListBySubject(c echo.Context) error {
	log := h.log.With(slog.String("route", "list_by_subject"))
	id, err := pathID(c, "subjectId")
	if err != nil {
		return h.invalid(log, err)
	}
	return h.listReservations(c, log, booking.ReservationFilter{SubjectID: &id})
}

func (h *Handler) ListByProvider(c echo.Context) error {
	log := h.log.With(slog.String("route", "list_by_provider"))
	id, err := pathID(c, "providerId")
	if err != nil {
		return h.invalid(log, err)
	}
	return h.listReservations(c, log, booking.ReservationFilter{ProviderID: &id})
}

func (h *Handler) ListAll(c echo.Context) error {
	return h.listReservations(c, h.log.With(slog.String("route", "list_all")), booking.ReservationFilter{})
}

func (h *Handler) listReservations(c echo.Context, log *slog.Logger, filter booking.ReservationFilter) error {
	page, size, err := paging(c)
	if err != nil {
		return h.invalid(log, err)
	}

	requester := h.requester(c)
	rows, err := h.svc.ListReservations(c.Request().Context(), filter, page, size, requester)
	if err != nil {
		return h.fail(log, "list reservations", err, slog.String("requester", requester.Username))
	}

	out := make([]reservationJSON, 0, len(rows))
	for _, r := range rows {
		out = append(out, toReservation(r))
	}
	return c.JSON(http.StatusOK, out)
}

// AddAvailability handles POST /availabilities/provider/:providerId.
func (h *Handler) AddAvailability(c echo.Context) error {
	log := h.log.With(slog.String("route", "add_availability"))

	providerID, err := pathID(c, "providerId")
	if err != nil {
		return h.invalid(log, err)
	}
	var body slotBody
	if err := c.Bind(&body); err != nil {
		return h.invalid(log, errors.New("malformed request body"))
	}
	date, start, end, err := parseSlot(body.Date, body.StartTime, body.EndTime)
	if err != nil {
		return h.invalid(log, err)
	}

	requester := h.requester(c)
	iv, err := h.svc.AddAvailability(c.Request().Context(), booking.AddAvailabilityInput{
		ProviderID: providerID,
		Date:       date,
		Start:      start,
		End:        end,
		Requester:  requester,
	})
	if err != nil {
		return h.fail(log, "add availability", err, slog.String("provider_id", providerID.String()), slog.String("requester", requester.Username))
	}
	return c.JSON(http.StatusCreated, toInterval(iv))
}

func (h *Handler) ListAvailability(c echo.Context) error {
	log := h.log.With(slog.String("route", "list_availability"))

	page, size, err := paging(c)
	if err != nil {
		return h.invalid(log, err)
	}
	rows, err := h.svc.ListAvailability(c.Request().Context(), page, size)
	if err != nil {
		return h.fail(log, "list availability", err)
	}

	out := make([]intervalJSON, 0, len(rows))
	for _, iv := range rows {
		out = append(out, toInterval(iv))
	}
	return c.JSON(http.StatusOK, out)
}

// UpdateAvailability handles PUT /availabilities/:id. Fields left out of the
// body keep their current value.
func (h *Handler) UpdateAvailability(c echo.Context) error {
	log := h.log.With(slog.String("route", "update_availability"))

	id, err := pathID(c, "id")
	if err != nil {
		return h.invalid(log, err)
	}
	var body patchBody
	if err := c.Bind(&body); err != nil {
		return h.invalid(log, errors.New("malformed request body"))
	}
	patch, err := parsePatch(body)
	if err != nil {
		return h.invalid(log, err)
	}

	requester := h.requester(c)
	iv, err := h.svc.UpdateAvailability(c.Request().Context(), id, patch, requester)
	if err != nil {
		return h.fail(log, "update availability", err, slog.String("interval_id", id.String()), slog.String("requester", requester.Username))
	}
	return c.JSON(http.StatusOK, toInterval(iv))
}

func (h *Handler) DeleteAvailability(c echo.Context) error {
	log := h.log.With(slog.String("route", "delete_availability"))

	id, err := pathID(c, "id")
	if err != nil {
		return h.invalid(log, err)
	}

	requester := h.requester(c)
	conf, err := h.svc.DeleteAvailability(c.Request().Context(), id, requester)
	if err != nil {
		return h.fail(log, "delete availability", err, slog.String("interval_id", id.String()), slog.String("requester", requester.Username))
	}
	return c.JSON(http.StatusOK, messageJSON{Message: conf.Message})
}

func (h *Handler) requester(c echo.Context) auth.Principal {
	return h.headers.Principal(c.Request().Header.Get)
}

func (h *Handler) invalid(log *slog.Logger, err error) error {
	log.Warn("invalid request", slog.Any("err", err))
	return echo.NewHTTPError(http.StatusBadRequest, err.Error())
}

func (h *Handler) fail(log *slog.Logger, op string, err error, attrs ...any) error {
	code := statusFor(err)
	args := append([]any{slog.Any("err", err)}, attrs...)

	switch {
	case code >= http.StatusInternalServerError:
		log.Error(op+" failed", args...)
		return echo.NewHTTPError(code, http.StatusText(code))
	case code == http.StatusBadRequest:
		log.Warn("invalid request", args...)
	default:
		log.Info(op+" rejected", args...)
	}
	return echo.NewHTTPError(code, err.Error())
}

func statusFor(err error) int {
	var vErr *booking.ValidationError
	switch {
	case errors.Is(err, booking.ErrProviderNotFound),
		errors.Is(err, booking.ErrSubjectNotFound),
		errors.Is(err, booking.ErrReservationNotFound),
		errors.Is(err, booking.ErrIntervalNotFound):
		return http.StatusNotFound
	case errors.Is(err, booking.ErrInvalidTimeRange), errors.As(err, &vErr):
		return http.StatusBadRequest
	case errors.Is(err, booking.ErrSlotUnavailable),
		errors.Is(err, booking.ErrSlotAlreadyBooked),
		errors.Is(err, booking.ErrReservationInactive):
		return http.StatusConflict
	case errors.Is(err, booking.ErrAlreadyRegistered):
		return http.StatusConflict
	case errors.Is(err, booking.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func pathID(c echo.Context, name string) (uuid.UUID, error) {
	return parseID(name, c.Param(name))
}

func parseID(field, raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, errors.New(field + " must be a UUID")
	}
	return id, nil
}

func parseSlot(date, start, end string) (time.Time, domain.Clock, domain.Clock, error) {
	d, err := domain.ParseDate(date)
	if err != nil {
		return time.Time{}, 0, 0, errors.New("date must be YYYY-MM-DD")
	}
	s, err := domain.ParseClock(start)
	if err != nil {
		return time.Time{}, 0, 0, errors.New("start_time must be HH:MM or HH:MM:SS")
	}
	e, err := domain.ParseClock(end)
	if err != nil {
		return time.Time{}, 0, 0, errors.New("end_time must be HH:MM or HH:MM:SS")
	}
	return d, s, e, nil
}

func parsePatch(body patchBody) (booking.AvailabilityPatch, error) {
	var patch booking.AvailabilityPatch
	if body.Date != nil {
		d, err := domain.ParseDate(*body.Date)
		if err != nil {
			return patch, errors.New("date must be YYYY-MM-DD")
		}
		patch.Date = &d
	}
	if body.StartTime != nil {
		c, err := domain.ParseClock(*body.StartTime)
		if err != nil {
			return patch, errors.New("start_time must be HH:MM or HH:MM:SS")
		}
		patch.Start = &c
	}
	if body.EndTime != nil {
		c, err := domain.ParseClock(*body.EndTime)
		if err != nil {
			return patch, errors.New("end_time must be HH:MM or HH:MM:SS")
		}
		patch.End = &c
	}
	return patch, nil
}

// paging reads page and size, defaulting to the first page of ten. Range
// checks are left to the engine.
func paging(c echo.Context) (int, int, error) {
	page, size := 0, booking.DefaultPageSize
	if raw := strings.TrimSpace(c.QueryParam("page")); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return 0, 0, errors.New("page must be an integer")
		}
		page = v
	}
	if raw := strings.TrimSpace(c.QueryParam("size")); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return 0, 0, errors.New("size must be an integer")
		}
		size = v
	}
	return page, size, nil
}

func toReservation(r domain.Reservation) reservationJSON {
	return reservationJSON{
		ID:         r.ID.String(),
		ProviderID: r.ProviderID.String(),
		SubjectID:  r.SubjectID.String(),
		Date:       r.Date.Format(domain.DateFormat),
		StartTime:  r.StartTime.String(),
		EndTime:    r.EndTime.String(),
		Status:     string(r.Status),
	}
}

func toInterval(iv domain.AvailabilityInterval) intervalJSON {
	return intervalJSON{
		ID:         iv.ID.String(),
		ProviderID: iv.ProviderID.String(),
		Date:       iv.Date.Format(domain.DateFormat),
		StartTime:  iv.StartTime.String(),
		EndTime:    iv.EndTime.String(),
		Status:     string(iv.Status),
	}
}
