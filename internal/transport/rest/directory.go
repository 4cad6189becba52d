package rest

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"clinicslots/internal/service/booking"
	"clinicslots/internal/domain"
)

type registrationBody struct {
	Username       string `json:"username"`
	Name           string `json:"name"`
	Specialization string `json:"specialization"`
}

type providerJSON struct {
	ID             string `json:"id"`
	Username       string `json:"username"`
	Name           string `json:"name"`
	Specialization string `json:"specialization,omitempty"`
}

type subjectJSON struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
}

// RegisterProvider handles POST /doctors.
func (h *Handler) RegisterProvider(c echo.Context) error {
	log := h.log.With(slog.String("route", "register_provider"))

	var body registrationBody
	if err := c.Bind(&body); err != nil {
		return h.invalid(log, errors.New("malformed request body"))
	}

	requester := h.requester(c)
	p, err := h.svc.RegisterProvider(c.Request().Context(), booking.RegisterProviderInput{
		Username:       body.Username,
		Name:           body.Name,
		Specialization: body.Specialization,
		Requester:      requester,
	})
	if err != nil {
		return h.fail(log, "register provider", err, slog.String("username", body.Username), slog.String("requester", requester.Username))
	}
	return c.JSON(http.StatusCreated, toProvider(p))
}

func (h *Handler) ListProviders(c echo.Context) error {
	log := h.log.With(slog.String("route", "list_providers"))

	page, size, err := paging(c)
	if err != nil {
		return h.invalid(log, err)
	}
	rows, err := h.svc.ListProviders(c.Request().Context(), page, size)
	if err != nil {
		return h.fail(log, "list providers", err)
	}

	out := make([]providerJSON, 0, len(rows))
	for _, p := range rows {
		out = append(out, toProvider(p))
	}
	return c.JSON(http.StatusOK, out)
}

// RegisterSubject handles POST /patients.
func (h *Handler) RegisterSubject(c echo.Context) error {
	log := h.log.With(slog.String("route", "register_subject"))

	var body registrationBody
	if err := c.Bind(&body); err != nil {
		return h.invalid(log, errors.New("malformed request body"))
	}

	requester := h.requester(c)
	s, err := h.svc.RegisterSubject(c.Request().Context(), booking.RegisterSubjectInput{
		Username:  body.Username,
		Name:      body.Name,
		Requester: requester,
	})
	if err != nil {
		return h.fail(log, "register subject", err, slog.String("username", body.Username), slog.String("requester", requester.Username))
	}
	return c.JSON(http.StatusCreated, toSubject(s))
}

func (h *Handler) ListSubjects(c echo.Context) error {
	log := h.log.With(slog.String("route", "list_subjects"))

	page, size, err := paging(c)
	if err != nil {
		return h.invalid(log, err)
	}
	requester := h.requester(c)
	rows, err := h.svc.ListSubjects(c.Request().Context(), page, size, requester)
	if err != nil {
		return h.fail(log, "list subjects", err, slog.String("requester", requester.Username))
	}

	out := make([]subjectJSON, 0, len(rows))
	for _, s := range rows {
		out = append(out, toSubject(s))
	}
	return c.JSON(http.StatusOK, out)
}

func toProvider(p domain.Provider) providerJSON {
	return providerJSON{
		ID:             p.ID.String(),
		Username:       p.Username,
		Name:           p.Name,
		Specialization: p.Specialization,
	}
}

func toSubject(s domain.Subject) subjectJSON {
	return subjectJSON{
		ID:       s.ID.String(),
		Username: s.Username,
		Name:     s.Name,
	}
}
