package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"clinicslots/internal/domain"
)

// BookingTx is the view of the interval and reservation stores available
// inside one transaction. Every write the booking engine makes goes through
// it, so a failure anywhere rolls back everything done before it.
type BookingTx interface {
	// LockProviderDay serialises writers on one provider's calendar day until
	// the transaction ends.
	LockProviderDay(ctx context.Context, providerID uuid.UUID, date time.Time) error

	GetProvider(ctx context.Context, providerID uuid.UUID) (domain.Provider, error)
	GetSubject(ctx context.Context, subjectID uuid.UUID) (domain.Subject, error)

	GetInterval(ctx context.Context, intervalID uuid.UUID) (domain.AvailabilityInterval, error)
	FindExactInterval(ctx context.Context, providerID uuid.UUID, date time.Time, span domain.TimeRange) (domain.AvailabilityInterval, error)
	FindOverlappingIntervals(ctx context.Context, providerID uuid.UUID, date time.Time, span domain.TimeRange) ([]domain.AvailabilityInterval, error)
	ListAvailableIntervals(ctx context.Context, providerID uuid.UUID, date time.Time, span domain.TimeRange) ([]domain.AvailabilityInterval, error)
	InsertInterval(ctx context.Context, interval domain.AvailabilityInterval) (domain.AvailabilityInterval, error)
	UpdateInterval(ctx context.Context, interval domain.AvailabilityInterval) (domain.AvailabilityInterval, error)
	DeleteInterval(ctx context.Context, intervalID uuid.UUID) error

	GetReservation(ctx context.Context, reservationID uuid.UUID) (domain.Reservation, error)
	// ExistsActiveOverlap reports whether a booked or rescheduled reservation
	// other than excludeID overlaps span. Pass uuid.Nil to exclude nothing.
	ExistsActiveOverlap(ctx context.Context, providerID uuid.UUID, date time.Time, span domain.TimeRange, excludeID uuid.UUID) (bool, error)
	InsertReservation(ctx context.Context, r domain.Reservation) (domain.Reservation, error)
	UpdateReservation(ctx context.Context, r domain.Reservation) (domain.Reservation, error)
}

type Page struct {
	Index int
	Size  int
}

func (p Page) Offset() int {
	return p.Index * p.Size
}

type Repository interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx BookingTx) error) error

	ListReservations(ctx context.Context, page Page) ([]domain.Reservation, error)
	ListReservationsByProvider(ctx context.Context, providerID uuid.UUID, page Page) ([]domain.Reservation, error)
	ListReservationsBySubject(ctx context.Context, subjectID uuid.UUID, page Page) ([]domain.Reservation, error)
	ListIntervals(ctx context.Context, page Page) ([]domain.AvailabilityInterval, error)

	GetProvider(ctx context.Context, providerID uuid.UUID) (domain.Provider, error)
	GetSubject(ctx context.Context, subjectID uuid.UUID) (domain.Subject, error)
	CreateProvider(ctx context.Context, p domain.Provider) (domain.Provider, error)
	CreateSubject(ctx context.Context, s domain.Subject) (domain.Subject, error)
	ListProviders(ctx context.Context, page Page) ([]domain.Provider, error)
	ListSubjects(ctx context.Context, page Page) ([]domain.Subject, error)
}
