package booking

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"clinicslots/internal/auth"
	"clinicslots/internal/domain"
	"clinicslots/internal/store"
)

const (
	MaxPageSize     = 100
	DefaultPageSize = 10

	maxRescheduleAttempts = 3
)

type Service struct {
	repo store.Repository
	log  *slog.Logger
}

func NewService(repo store.Repository, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		repo: repo,
		log:  log.With(slog.String("component", "booking")),
	}
}

type Confirmation struct {
	Message string
}

type BookInput struct {
	ProviderID uuid.UUID
	SubjectID  uuid.UUID
	Date       time.Time
	Start      domain.Clock
	End        domain.Clock
	Requester  auth.Principal
}

// Book reserves [Start, End) on the provider's calendar for the subject. The
// whole range must be open and no active reservation may overlap it.
func (s *Service) Book(ctx context.Context, in BookInput) (domain.Reservation, error) {
	if in.Date.IsZero() {
		return domain.Reservation{}, validationError("date is required")
	}
	date := domain.Date(in.Date)
	span := domain.TimeRange{Start: in.Start, End: in.End}

	var out domain.Reservation
	err := s.repo.InTx(ctx, func(ctx context.Context, tx store.BookingTx) error {
		subject, err := tx.GetSubject(ctx, in.SubjectID)
		if err != nil {
			return notFoundAs(err, ErrSubjectNotFound)
		}
		if err := auth.Authorize(in.Requester, subject.Username); err != nil {
			return ErrUnauthorized
		}
		if _, err := tx.GetProvider(ctx, in.ProviderID); err != nil {
			return notFoundAs(err, ErrProviderNotFound)
		}
		if !span.Valid() {
			return ErrInvalidTimeRange
		}

		if err := tx.LockProviderDay(ctx, in.ProviderID, date); err != nil {
			return err
		}
		if err := checkOpen(ctx, tx, in.ProviderID, date, span, uuid.Nil, ErrSlotAlreadyBooked); err != nil {
			return err
		}

		res, err := tx.InsertReservation(ctx, domain.Reservation{
			ProviderID: in.ProviderID,
			SubjectID:  in.SubjectID,
			Date:       date,
			StartTime:  span.Start,
			EndTime:    span.End,
			Status:     domain.ReservationBooked,
		})
		if errors.Is(err, store.ErrConflict) {
			return ErrSlotAlreadyBooked
		}
		if err != nil {
			return err
		}
		if err := resolveConsumed(ctx, tx, in.ProviderID, date, span); err != nil {
			return err
		}
		out = res
		return nil
	})
	if err != nil {
		return domain.Reservation{}, classify("book", err)
	}

	s.log.Info(
		"reservation booked",
		slog.String("reservation_id", out.ID.String()),
		slog.String("provider_id", out.ProviderID.String()),
		slog.String("subject_id", out.SubjectID.String()),
		slog.String("date", out.Date.Format(domain.DateFormat)),
		slog.String("range", out.Range().String()),
	)
	return out, nil
}

type RescheduleInput struct {
	ReservationID uuid.UUID
	Date          time.Time
	Start         domain.Clock
	End           domain.Clock
	Requester     auth.Principal
}

// Reschedule moves an active reservation to a new date and range. The old
// range goes back to the provider before the new one is checked, so a
// reservation may slide into time it partly holds already.
func (s *Service) Reschedule(ctx context.Context, in RescheduleInput) (domain.Reservation, error) {
	if in.Date.IsZero() {
		return domain.Reservation{}, validationError("date is required")
	}
	date := domain.Date(in.Date)
	span := domain.TimeRange{Start: in.Start, End: in.End}

	var (
		out domain.Reservation
		err error
	)
	for attempt := 0; attempt < maxRescheduleAttempts; attempt++ {
		out, err = s.reschedule(ctx, in, date, span)
		if !errors.Is(err, errReservationMoved) {
			break
		}
		s.log.Debug("reservation moved while locking, retrying",
			slog.String("reservation_id", in.ReservationID.String()),
			slog.Int("attempt", attempt+1),
		)
	}
	if err != nil {
		return domain.Reservation{}, classify("reschedule", err)
	}

	s.log.Info(
		"reservation rescheduled",
		slog.String("reservation_id", out.ID.String()),
		slog.String("provider_id", out.ProviderID.String()),
		slog.String("date", out.Date.Format(domain.DateFormat)),
		slog.String("range", out.Range().String()),
	)
	return out, nil
}

// reschedule runs one attempt. It returns errReservationMoved when the
// reservation changed day between the first read and taking the locks, since
// the day it now sits on is not locked.
func (s *Service) reschedule(ctx context.Context, in RescheduleInput, date time.Time, span domain.TimeRange) (domain.Reservation, error) {
	var out domain.Reservation
	err := s.repo.InTx(ctx, func(ctx context.Context, tx store.BookingTx) error {
		res, err := tx.GetReservation(ctx, in.ReservationID)
		if err != nil {
			return notFoundAs(err, ErrReservationNotFound)
		}
		subject, err := tx.GetSubject(ctx, res.SubjectID)
		if err != nil {
			return notFoundAs(err, ErrSubjectNotFound)
		}
		if err := auth.Authorize(in.Requester, subject.Username); err != nil {
			return ErrUnauthorized
		}
		if !span.Valid() {
			return ErrInvalidTimeRange
		}
		if !res.Active() {
			return ErrReservationInactive
		}

		lockedDay := domain.Date(res.Date)
		if err := lockDays(ctx, tx, res.ProviderID, lockedDay, date); err != nil {
			return err
		}
		// Re-read under the lock; a concurrent cancel or reschedule may have won.
		res, err = tx.GetReservation(ctx, in.ReservationID)
		if err != nil {
			return notFoundAs(err, ErrReservationNotFound)
		}
		if !res.Active() {
			return ErrReservationInactive
		}
		if !domain.Date(res.Date).Equal(lockedDay) {
			return errReservationMoved
		}

		if _, err := restoreRange(ctx, tx, res.ProviderID, res.Date, res.Range(), res.ID); err != nil {
			return err
		}
		if err := checkOpen(ctx, tx, res.ProviderID, date, span, res.ID, ErrSlotUnavailable); err != nil {
			return err
		}

		res.Date = date
		res.StartTime = span.Start
		res.EndTime = span.End
		res.Status = domain.ReservationRescheduled
		updated, err := tx.UpdateReservation(ctx, res)
		if errors.Is(err, store.ErrConflict) {
			return ErrSlotUnavailable
		}
		if err != nil {
			return err
		}
		if err := resolveConsumed(ctx, tx, res.ProviderID, date, span); err != nil {
			return err
		}
		out = updated
		return nil
	})
	return out, err
}

// Cancel releases a reservation and gives its exact range back to the
// provider. Canceling twice is harmless.
func (s *Service) Cancel(ctx context.Context, reservationID, subjectID uuid.UUID, requester auth.Principal) (Confirmation, error) {
	var alreadyCanceled bool
	err := s.repo.InTx(ctx, func(ctx context.Context, tx store.BookingTx) error {
		res, err := tx.GetReservation(ctx, reservationID)
		if err != nil {
			return notFoundAs(err, ErrReservationNotFound)
		}
		if res.SubjectID != subjectID {
			return ErrUnauthorized
		}
		subject, err := tx.GetSubject(ctx, res.SubjectID)
		if err != nil {
			return notFoundAs(err, ErrSubjectNotFound)
		}
		if err := auth.Authorize(requester, subject.Username); err != nil {
			return ErrUnauthorized
		}

		if err := tx.LockProviderDay(ctx, res.ProviderID, res.Date); err != nil {
			return err
		}
		res, err = tx.GetReservation(ctx, reservationID)
		if err != nil {
			return notFoundAs(err, ErrReservationNotFound)
		}

		alreadyCanceled = res.Status == domain.ReservationCanceled
		if !alreadyCanceled {
			res.Status = domain.ReservationCanceled
			if _, err := tx.UpdateReservation(ctx, res); err != nil {
				return err
			}
		}
		_, err = restoreRange(ctx, tx, res.ProviderID, res.Date, res.Range(), res.ID)
		return err
	})
	if err != nil {
		return Confirmation{}, classify("cancel", err)
	}

	s.log.Info(
		"reservation canceled",
		slog.String("reservation_id", reservationID.String()),
		slog.String("subject_id", subjectID.String()),
		slog.Bool("already_canceled", alreadyCanceled),
	)
	return Confirmation{Message: "Reservation canceled"}, nil
}

type AddAvailabilityInput struct {
	ProviderID uuid.UUID
	Date       time.Time
	Start      domain.Clock
	End        domain.Clock
	Requester  auth.Principal
}

// AddAvailability opens a new interval. Adding an interval that is already
// open with the same bounds returns the existing one.
func (s *Service) AddAvailability(ctx context.Context, in AddAvailabilityInput) (domain.AvailabilityInterval, error) {
	if in.Date.IsZero() {
		return domain.AvailabilityInterval{}, validationError("date is required")
	}
	date := domain.Date(in.Date)
	span := domain.TimeRange{Start: in.Start, End: in.End}

	var (
		out     domain.AvailabilityInterval
		created bool
	)
	err := s.repo.InTx(ctx, func(ctx context.Context, tx store.BookingTx) error {
		provider, err := tx.GetProvider(ctx, in.ProviderID)
		if err != nil {
			return notFoundAs(err, ErrProviderNotFound)
		}
		if err := auth.Authorize(in.Requester, provider.Username); err != nil {
			return ErrUnauthorized
		}
		if !span.Valid() {
			return ErrInvalidTimeRange
		}

		if err := tx.LockProviderDay(ctx, in.ProviderID, date); err != nil {
			return err
		}
		existing, err := tx.FindExactInterval(ctx, in.ProviderID, date, span)
		switch {
		case err == nil && existing.Status == domain.IntervalAvailable:
			out = existing
			return nil
		case err == nil, errors.Is(err, store.ErrNotFound):
		default:
			return err
		}

		out, err = tx.InsertInterval(ctx, domain.AvailabilityInterval{
			ProviderID: in.ProviderID,
			Date:       date,
			StartTime:  span.Start,
			EndTime:    span.End,
			Status:     domain.IntervalAvailable,
		})
		created = err == nil
		return err
	})
	if err != nil {
		return domain.AvailabilityInterval{}, classify("add availability", err)
	}

	s.log.Info(
		"availability added",
		slog.String("interval_id", out.ID.String()),
		slog.String("provider_id", out.ProviderID.String()),
		slog.String("date", out.Date.Format(domain.DateFormat)),
		slog.String("range", out.Range().String()),
		slog.Bool("created", created),
	)
	return out, nil
}

// AvailabilityPatch carries the fields to change; nil leaves a field as is.
type AvailabilityPatch struct {
	Date  *time.Time
	Start *domain.Clock
	End   *domain.Clock
}

// UpdateAvailability applies patch and reopens the interval, whatever status
// it had before.
func (s *Service) UpdateAvailability(ctx context.Context, intervalID uuid.UUID, patch AvailabilityPatch, requester auth.Principal) (domain.AvailabilityInterval, error) {
	var out domain.AvailabilityInterval
	err := s.repo.InTx(ctx, func(ctx context.Context, tx store.BookingTx) error {
		iv, err := tx.GetInterval(ctx, intervalID)
		if err != nil {
			return notFoundAs(err, ErrIntervalNotFound)
		}
		provider, err := tx.GetProvider(ctx, iv.ProviderID)
		if err != nil {
			return notFoundAs(err, ErrProviderNotFound)
		}
		if err := auth.Authorize(requester, provider.Username); err != nil {
			return ErrUnauthorized
		}

		oldDate := iv.Date
		if patch.Date != nil {
			if patch.Date.IsZero() {
				return validationError("date must not be empty")
			}
			iv.Date = domain.Date(*patch.Date)
		}
		if patch.Start != nil {
			iv.StartTime = *patch.Start
		}
		if patch.End != nil {
			iv.EndTime = *patch.End
		}
		if !iv.Range().Valid() {
			return ErrInvalidTimeRange
		}

		if err := lockDays(ctx, tx, iv.ProviderID, oldDate, iv.Date); err != nil {
			return err
		}
		dup, err := tx.FindExactInterval(ctx, iv.ProviderID, iv.Date, iv.Range())
		switch {
		case err == nil && dup.ID != iv.ID && dup.Status == domain.IntervalAvailable:
			return validationError("an identical available interval already exists")
		case err == nil, errors.Is(err, store.ErrNotFound):
		default:
			return err
		}

		iv.Status = domain.IntervalAvailable
		out, err = tx.UpdateInterval(ctx, iv)
		if errors.Is(err, store.ErrNotFound) {
			return ErrIntervalNotFound
		}
		return err
	})
	if err != nil {
		return domain.AvailabilityInterval{}, classify("update availability", err)
	}

	s.log.Info(
		"availability updated",
		slog.String("interval_id", out.ID.String()),
		slog.String("date", out.Date.Format(domain.DateFormat)),
		slog.String("range", out.Range().String()),
	)
	return out, nil
}

func (s *Service) DeleteAvailability(ctx context.Context, intervalID uuid.UUID, requester auth.Principal) (Confirmation, error) {
	err := s.repo.InTx(ctx, func(ctx context.Context, tx store.BookingTx) error {
		iv, err := tx.GetInterval(ctx, intervalID)
		if err != nil {
			return notFoundAs(err, ErrIntervalNotFound)
		}
		provider, err := tx.GetProvider(ctx, iv.ProviderID)
		if err != nil {
			return notFoundAs(err, ErrProviderNotFound)
		}
		if err := auth.Authorize(requester, provider.Username); err != nil {
			return ErrUnauthorized
		}
		if err := tx.LockProviderDay(ctx, iv.ProviderID, iv.Date); err != nil {
			return err
		}
		if err := tx.DeleteInterval(ctx, intervalID); err != nil {
			return notFoundAs(err, ErrIntervalNotFound)
		}
		return nil
	})
	if err != nil {
		return Confirmation{}, classify("delete availability", err)
	}

	s.log.Info("availability deleted", slog.String("interval_id", intervalID.String()))
	return Confirmation{Message: "Availability deleted"}, nil
}

// ReservationFilter narrows a listing to one provider or one subject. At most
// one may be set.
type ReservationFilter struct {
	ProviderID *uuid.UUID
	SubjectID  *uuid.UUID
}

func (s *Service) ListReservations(ctx context.Context, filter ReservationFilter, page, size int, requester auth.Principal) ([]domain.Reservation, error) {
	p, err := newPage(page, size)
	if err != nil {
		return nil, err
	}

	var rows []domain.Reservation
	switch {
	case filter.ProviderID != nil && filter.SubjectID != nil:
		return nil, validationError("filter by provider or subject, not both")
	case filter.ProviderID != nil:
		provider, err := s.repo.GetProvider(ctx, *filter.ProviderID)
		if err != nil {
			return nil, classify("list reservations", notFoundAs(err, ErrProviderNotFound))
		}
		if err := auth.Authorize(requester, provider.Username, auth.RoleAdmin); err != nil {
			return nil, ErrUnauthorized
		}
		rows, err = s.repo.ListReservationsByProvider(ctx, provider.ID, p)
		if err != nil {
			return nil, classify("list reservations", err)
		}
	case filter.SubjectID != nil:
		subject, err := s.repo.GetSubject(ctx, *filter.SubjectID)
		if err != nil {
			return nil, classify("list reservations", notFoundAs(err, ErrSubjectNotFound))
		}
		if err := auth.Authorize(requester, subject.Username, auth.RoleAdmin); err != nil {
			return nil, ErrUnauthorized
		}
		rows, err = s.repo.ListReservationsBySubject(ctx, subject.ID, p)
		if err != nil {
			return nil, classify("list reservations", err)
		}
	default:
		if !requester.HasRole(auth.RoleAdmin) {
			return nil, ErrUnauthorized
		}
		rows, err = s.repo.ListReservations(ctx, p)
		if err != nil {
			return nil, classify("list reservations", err)
		}
	}

	s.log.Debug("reservations listed", slog.Int("page", page), slog.Int("count", len(rows)))
	return rows, nil
}

func (s *Service) ListAvailability(ctx context.Context, page, size int) ([]domain.AvailabilityInterval, error) {
	p, err := newPage(page, size)
	if err != nil {
		return nil, err
	}
	rows, err := s.repo.ListIntervals(ctx, p)
	if err != nil {
		return nil, classify("list availability", err)
	}
	s.log.Debug("availability listed", slog.Int("page", page), slog.Int("count", len(rows)))
	return rows, nil
}

// checkOpen verifies no active reservation other than excludeID overlaps span
// and that span is entirely covered by available intervals. Booked time is
// never open, so the overlap is checked first to report it as such.
func checkOpen(ctx context.Context, tx store.BookingTx, providerID uuid.UUID, date time.Time, span domain.TimeRange, excludeID uuid.UUID, overlapErr error) error {
	busy, err := tx.ExistsActiveOverlap(ctx, providerID, date, span, excludeID)
	if err != nil {
		return err
	}
	if busy {
		return overlapErr
	}

	open, err := tx.ListAvailableIntervals(ctx, providerID, date, span)
	if err != nil {
		return err
	}
	spans := make([]domain.TimeRange, 0, len(open))
	for _, iv := range open {
		spans = append(spans, iv.Range())
	}
	if !domain.Covers(spans, span) {
		return ErrSlotUnavailable
	}
	return nil
}

// lockDays locks one provider's days in date order so two transactions
// touching the same pair cannot deadlock.
func lockDays(ctx context.Context, tx store.BookingTx, providerID uuid.UUID, a, b time.Time) error {
	a, b = domain.Date(a), domain.Date(b)
	if b.Before(a) {
		a, b = b, a
	}
	if err := tx.LockProviderDay(ctx, providerID, a); err != nil {
		return err
	}
	if b.Equal(a) {
		return nil
	}
	return tx.LockProviderDay(ctx, providerID, b)
}

func notFoundAs(err, target error) error {
	if errors.Is(err, store.ErrNotFound) {
		return target
	}
	return err
}

func newPage(page, size int) (store.Page, error) {
	if page < 0 {
		return store.Page{}, validationError("page must not be negative")
	}
	if size < 1 || size > MaxPageSize {
		return store.Page{}, validationError("size must be between 1 and 100")
	}
	if page > math.MaxInt/size {
		return store.Page{}, validationError("page is out of range")
	}
	return store.Page{Index: page, Size: size}, nil
}
