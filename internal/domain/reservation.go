package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type ReservationStatus string

const (
	ReservationBooked      ReservationStatus = "booked"
	ReservationRescheduled ReservationStatus = "rescheduled"
	ReservationCanceled    ReservationStatus = "canceled"
)

// ActiveReservationStatuses are the statuses that hold time on a provider's
// calendar.
var ActiveReservationStatuses = []ReservationStatus{ReservationBooked, ReservationRescheduled}

type Reservation struct {
	bun.BaseModel `bun:"table:reservations"`

	ID         uuid.UUID         `bun:"id,pk,type:uuid"`
	ProviderID uuid.UUID         `bun:"provider_id,notnull,type:uuid"`
	SubjectID  uuid.UUID         `bun:"subject_id,notnull,type:uuid"`
	Date       time.Time         `bun:"date,notnull,type:date"`
	StartTime  Clock             `bun:"start_time,notnull,type:time"`
	EndTime    Clock             `bun:"end_time,notnull,type:time"`
	Status     ReservationStatus `bun:"status,notnull"`
	CreatedAt  time.Time         `bun:"created_at,notnull"`
	UpdatedAt  time.Time         `bun:"updated_at,notnull"`
}

func (r Reservation) Range() TimeRange {
	return TimeRange{Start: r.StartTime, End: r.EndTime}
}

// Active reports whether the reservation still occupies its slot. A
// rescheduled reservation is as active as a booked one.
func (r Reservation) Active() bool {
	return r.Status == ReservationBooked || r.Status == ReservationRescheduled
}

func (r *Reservation) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if r.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return err
			}
			r.ID = id
		}
		if r.CreatedAt.IsZero() {
			r.CreatedAt = now
		}
		if r.UpdatedAt.IsZero() {
			r.UpdatedAt = now
		}
	case *bun.UpdateQuery:
		r.UpdatedAt = now
	}
	return nil
}
