package grpc

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"clinicslots/internal/auth"
	"clinicslots/internal/domain"
	"clinicslots/internal/service/booking"
)

type BookingServer struct {
	svc     bookingService
	headers auth.Headers
	log     *slog.Logger
}

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

func NewBookingServer(svc bookingService, headers auth.Headers, log *slog.Logger) *BookingServer {
	if log == nil {
		log = slog.Default()
	}
	return &BookingServer{
		svc:     svc,
		headers: headers,
		log:     log.With(slog.String("component", "grpc.booking")),
	}
}

func (s *BookingServer) Book(ctx context.Context, req *BookRequest) (*BookResponse, error) {
	log := s.log.With(slog.String("rpc", "Book"))
	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}

	providerID, err := parseID("provider_id", req.ProviderID)
	if err != nil {
		return nil, s.invalid(log, err)
	}
	subjectID, err := parseID("subject_id", req.SubjectID)
	if err != nil {
		return nil, s.invalid(log, err)
	}
	date, start, end, err := parseSlot(req.Date, req.StartTime, req.EndTime)
	if err != nil {
		return nil, s.invalid(log, err)
	}

	requester := s.requester(ctx)
	res, err := s.svc.Book(ctx, booking.BookInput{
		ProviderID: providerID,
		SubjectID:  subjectID,
		Date:       date,
		Start:      start,
		End:        end,
		Requester:  requester,
	})
	if err != nil {
		return nil, s.fail(log, "book", err,
			slog.String("provider_id", req.ProviderID),
			slog.String("subject_id", req.SubjectID),
			slog.String("requester", requester.Username),
		)
	}

	return &BookResponse{Reservation: toReservation(res)}, nil
}

func (s *BookingServer) Reschedule(ctx context.Context, req *RescheduleRequest) (*RescheduleResponse, error) {
	log := s.log.With(slog.String("rpc", "Reschedule"))
	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}

	id, err := parseID("reservation_id", req.ReservationID)
	if err != nil {
		return nil, s.invalid(log, err)
	}
	date, start, end, err := parseSlot(req.Date, req.StartTime, req.EndTime)
	if err != nil {
		return nil, s.invalid(log, err)
	}

	requester := s.requester(ctx)
	res, err := s.svc.Reschedule(ctx, booking.RescheduleInput{
		ReservationID: id,
		Date:          date,
		Start:         start,
		End:           end,
		Requester:     requester,
	})
	if err != nil {
		return nil, s.fail(log, "reschedule", err,
			slog.String("reservation_id", req.ReservationID),
			slog.String("requester", requester.Username),
		)
	}

	return &RescheduleResponse{Reservation: toReservation(res)}, nil
}

func (s *BookingServer) Cancel(ctx context.Context, req *CancelRequest) (*CancelResponse, error) {
	log := s.log.With(slog.String("rpc", "Cancel"))
	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}

	id, err := parseID("reservation_id", req.ReservationID)
	if err != nil {
		return nil, s.invalid(log, err)
	}
	subjectID, err := parseID("subject_id", req.SubjectID)
	if err != nil {
		return nil, s.invalid(log, err)
	}

	requester := s.requester(ctx)
	conf, err := s.svc.Cancel(ctx, id, subjectID, requester)
	if err != nil {
		return nil, s.fail(log, "cancel", err,
			slog.String("reservation_id", req.ReservationID),
			slog.String("requester", requester.Username),
		)
	}

	return &CancelResponse{Message: conf.Message}, nil
}

func (s *BookingServer) AddAvailability(ctx context.Context, req *AddAvailabilityRequest) (*AvailabilityResponse, error) {
	log := s.log.With(slog.String("rpc", "AddAvailability"))
	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}

	providerID, err := parseID("provider_id", req.ProviderID)
	if err != nil {
		return nil, s.invalid(log, err)
	}
	date, start, end, err := parseSlot(req.Date, req.StartTime, req.EndTime)
	if err != nil {
		return nil, s.invalid(log, err)
	}

	requester := s.requester(ctx)
	iv, err := s.svc.AddAvailability(ctx, booking.AddAvailabilityInput{
		ProviderID: providerID,
		Date:       date,
		Start:      start,
		End:        end,
		Requester:  requester,
	})
	if err != nil {
		return nil, s.fail(log, "add availability", err,
			slog.String("provider_id", req.ProviderID),
			slog.String("requester", requester.Username),
		)
	}

	return &AvailabilityResponse{Interval: toInterval(iv)}, nil
}

func (s *BookingServer) UpdateAvailability(ctx context.Context, req *UpdateAvailabilityRequest) (*AvailabilityResponse, error) {
	log := s.log.With(slog.String("rpc", "UpdateAvailability"))
	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}

	id, err := parseID("interval_id", req.IntervalID)
	if err != nil {
		return nil, s.invalid(log, err)
	}
	patch, err := parsePatch(req.Date, req.StartTime, req.EndTime)
	if err != nil {
		return nil, s.invalid(log, err)
	}

	requester := s.requester(ctx)
	iv, err := s.svc.UpdateAvailability(ctx, id, patch, requester)
	if err != nil {
		return nil, s.fail(log, "update availability", err,
			slog.String("interval_id", req.IntervalID),
			slog.String("requester", requester.Username),
		)
	}

	return &AvailabilityResponse{Interval: toInterval(iv)}, nil
}

func (s *BookingServer) DeleteAvailability(ctx context.Context, req *DeleteAvailabilityRequest) (*DeleteAvailabilityResponse, error) {
	log := s.log.With(slog.String("rpc", "DeleteAvailability"))
	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}

	id, err := parseID("interval_id", req.IntervalID)
	if err != nil {
		return nil, s.invalid(log, err)
	}

	requester := s.requester(ctx)
	conf, err := s.svc.DeleteAvailability(ctx, id, requester)
	if err != nil {
		return nil, s.fail(log, "delete availability", err,
			slog.String("interval_id", req.IntervalID),
			slog.String("requester", requester.Username),
		)
	}

	return &DeleteAvailabilityResponse{Message: conf.Message}, nil
}

func (s *BookingServer) ListReservations(ctx context.Context, req *ListReservationsRequest) (*ListReservationsResponse, error) {
	log := s.log.With(slog.String("rpc", "ListReservations"))
	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}

	var filter booking.ReservationFilter
	if strings.TrimSpace(req.ProviderID) != "" {
		id, err := parseID("provider_id", req.ProviderID)
		if err != nil {
			return nil, s.invalid(log, err)
		}
		filter.ProviderID = &id
	}
	if strings.TrimSpace(req.SubjectID) != "" {
		id, err := parseID("subject_id", req.SubjectID)
		if err != nil {
			return nil, s.invalid(log, err)
		}
		filter.SubjectID = &id
	}

	requester := s.requester(ctx)
	rows, err := s.svc.ListReservations(ctx, filter, int(req.Page), pageSize(req.Size), requester)
	if err != nil {
		return nil, s.fail(log, "list reservations", err, slog.String("requester", requester.Username))
	}

	out := make([]*Reservation, 0, len(rows))
	for _, r := range rows {
		out = append(out, toReservation(r))
	}
	log.Debug("reservations listed", slog.Int("count", len(out)), slog.String("requester", requester.Username))
	return &ListReservationsResponse{Reservations: out}, nil
}

func (s *BookingServer) ListAvailability(ctx context.Context, req *ListAvailabilityRequest) (*ListAvailabilityResponse, error) {
	log := s.log.With(slog.String("rpc", "ListAvailability"))
	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}

	rows, err := s.svc.ListAvailability(ctx, int(req.Page), pageSize(req.Size))
	if err != nil {
		return nil, s.fail(log, "list availability", err)
	}

	out := make([]*AvailabilityInterval, 0, len(rows))
	for _, iv := range rows {
		out = append(out, toInterval(iv))
	}
	log.Debug("availability listed", slog.Int("count", len(out)))
	return &ListAvailabilityResponse{Intervals: out}, nil
}

func (s *BookingServer) RegisterProvider(ctx context.Context, req *RegisterProviderRequest) (*RegisterProviderResponse, error) {
	log := s.log.With(slog.String("rpc", "RegisterProvider"))
	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}

	requester := s.requester(ctx)
	p, err := s.svc.RegisterProvider(ctx, booking.RegisterProviderInput{
		Username:       req.Username,
		Name:           req.Name,
		Specialization: req.Specialization,
		Requester:      requester,
	})
	if err != nil {
		return nil, s.fail(log, "register provider", err,
			slog.String("username", req.Username),
			slog.String("requester", requester.Username),
		)
	}

	return &RegisterProviderResponse{Provider: toProvider(p)}, nil
}

func (s *BookingServer) ListProviders(ctx context.Context, req *ListProvidersRequest) (*ListProvidersResponse, error) {
	log := s.log.With(slog.String("rpc", "ListProviders"))
	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}

	rows, err := s.svc.ListProviders(ctx, int(req.Page), pageSize(req.Size))
	if err != nil {
		return nil, s.fail(log, "list providers", err)
	}

	out := make([]*Provider, 0, len(rows))
	for _, p := range rows {
		out = append(out, toProvider(p))
	}
	return &ListProvidersResponse{Providers: out}, nil
}

func (s *BookingServer) RegisterSubject(ctx context.Context, req *RegisterSubjectRequest) (*RegisterSubjectResponse, error) {
	log := s.log.With(slog.String("rpc", "RegisterSubject"))
	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}

	requester := s.requester(ctx)
	sub, err := s.svc.RegisterSubject(ctx, booking.RegisterSubjectInput{
		Username:  req.Username,
		Name:      req.Name,
		Requester: requester,
	})
	if err != nil {
		return nil, s.fail(log, "register subject", err,
			slog.String("username", req.Username),
			slog.String("requester", requester.Username),
		)
	}

	return &RegisterSubjectResponse{Subject: toSubject(sub)}, nil
}

func (s *BookingServer) ListSubjects(ctx context.Context, req *ListSubjectsRequest) (*ListSubjectsResponse, error) {
	log := s.log.With(slog.String("rpc", "ListSubjects"))
	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}

	requester := s.requester(ctx)
	rows, err := s.svc.ListSubjects(ctx, int(req.Page), pageSize(req.Size), requester)
	if err != nil {
		return nil, s.fail(log, "list subjects", err, slog.String("requester", requester.Username))
	}

	out := make([]*Subject, 0, len(rows))
	for _, sub := range rows {
		out = append(out, toSubject(sub))
	}
	return &ListSubjectsResponse{Subjects: out}, nil
}

func (s *BookingServer) requester(ctx context.Context) auth.Principal {
	md, _ := metadata.FromIncomingContext(ctx)
	return s.headers.Principal(func(key string) string {
		values := md.Get(key)
		if len(values) == 0 {
			return ""
		}
		return values[0]
	})
}

func (s *BookingServer) invalid(log *slog.Logger, err error) error {
	log.Warn("invalid request", slog.Any("err", err))
	return status.Error(codes.InvalidArgument, err.Error())
}

// fail maps an engine error onto a status and logs it at a level matching
// who is at fault.
func (s *BookingServer) fail(log *slog.Logger, op string, err error, attrs ...any) error {
	code := codeFor(err)
	args := append([]any{slog.Any("err", err)}, attrs...)

	switch code {
	case codes.Internal:
		log.Error(op+" failed", args...)
		return status.Error(code, "internal error")
	case codes.Unavailable:
		log.Error(op+" timed out", args...)
		return status.Error(code, "storage unavailable, try again")
	case codes.InvalidArgument:
		log.Warn("invalid request", args...)
	default:
		log.Info(op+" rejected", args...)
	}
	return status.Error(code, err.Error())
}

func codeFor(err error) codes.Code {
	var vErr *booking.ValidationError
	switch {
	case errors.Is(err, booking.ErrProviderNotFound),
		errors.Is(err, booking.ErrSubjectNotFound),
		errors.Is(err, booking.ErrReservationNotFound),
		errors.Is(err, booking.ErrIntervalNotFound):
		return codes.NotFound
	case errors.Is(err, booking.ErrInvalidTimeRange), errors.As(err, &vErr):
		return codes.InvalidArgument
	case errors.Is(err, booking.ErrSlotUnavailable),
		errors.Is(err, booking.ErrSlotAlreadyBooked),
		errors.Is(err, booking.ErrReservationInactive):
		return codes.FailedPrecondition
	case errors.Is(err, booking.ErrAlreadyRegistered):
		return codes.AlreadyExists
	case errors.Is(err, booking.ErrUnauthorized):
		return codes.PermissionDenied
	case errors.Is(err, context.DeadlineExceeded):
		return codes.Unavailable
	default:
		return codes.Internal
	}
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

func parsePatch(date, start, end *string) (booking.AvailabilityPatch, error) {
	var patch booking.AvailabilityPatch
	if date != nil {
		d, err := domain.ParseDate(*date)
		if err != nil {
			return patch, errors.New("date must be YYYY-MM-DD")
		}
		patch.Date = &d
	}
	if start != nil {
		c, err := domain.ParseClock(*start)
		if err != nil {
			return patch, errors.New("start_time must be HH:MM or HH:MM:SS")
		}
		patch.Start = &c
	}
	if end != nil {
		c, err := domain.ParseClock(*end)
		if err != nil {
			return patch, errors.New("end_time must be HH:MM or HH:MM:SS")
		}
		patch.End = &c
	}
	return patch, nil
}

func pageSize(size int32) int {
	if size == 0 {
		return booking.DefaultPageSize
	}
	return int(size)
}

func toReservation(r domain.Reservation) *Reservation {
	return &Reservation{
		ID:         r.ID.String(),
		ProviderID: r.ProviderID.String(),
		SubjectID:  r.SubjectID.String(),
		Date:       r.Date.Format(domain.DateFormat),
		StartTime:  r.StartTime.String(),
		EndTime:    r.EndTime.String(),
		Status:     string(r.Status),
	}
}

func toInterval(iv domain.AvailabilityInterval) *AvailabilityInterval {
	return &AvailabilityInterval{
		ID:         iv.ID.String(),
		ProviderID: iv.ProviderID.String(),
		Date:       iv.Date.Format(domain.DateFormat),
		StartTime:  iv.StartTime.String(),
		EndTime:    iv.EndTime.String(),
		Status:     string(iv.Status),
	}
}

func toProvider(p domain.Provider) *Provider {
	return &Provider{
		ID:             p.ID.String(),
		Username:       p.Username,
		Name:           p.Name,
		Specialization: p.Specialization,
	}
}

func toSubject(s domain.Subject) *Subject {
	return &Subject{
		ID:       s.ID.String(),
		Username: s.Username,
		Name:     s.Name,
	}
}
