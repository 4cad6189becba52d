package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type IntervalStatus string

const (
	IntervalAvailable IntervalStatus = "available"
	IntervalBooked    IntervalStatus = "booked"
)

// AvailabilityInterval is a contiguous block of time a provider has opened,
// or one that has since been consumed by a booking.
type AvailabilityInterval struct {
	bun.BaseModel `bun:"table:availability_intervals"`

	ID         uuid.UUID      `bun:"id,pk,type:uuid"`
	ProviderID uuid.UUID      `bun:"provider_id,notnull,type:uuid"`
	Date       time.Time      `bun:"date,notnull,type:date"`
	StartTime  Clock          `bun:"start_time,notnull,type:time"`
	EndTime    Clock          `bun:"end_time,notnull,type:time"`
	Status     IntervalStatus `bun:"status,notnull"`
	CreatedAt  time.Time      `bun:"created_at,notnull"`
	UpdatedAt  time.Time      `bun:"updated_at,notnull"`
}

func (a AvailabilityInterval) Range() TimeRange {
	return TimeRange{Start: a.StartTime, End: a.EndTime}
}

func (a *AvailabilityInterval) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if a.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return err
			}
			a.ID = id
		}
		if a.CreatedAt.IsZero() {
			a.CreatedAt = now
		}
		if a.UpdatedAt.IsZero() {
			a.UpdatedAt = now
		}
	case *bun.UpdateQuery:
		a.UpdatedAt = now
	}
	return nil
}
