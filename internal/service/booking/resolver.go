package booking

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"clinicslots/internal/domain"
	"clinicslots/internal/store"
)

// resolveConsumed reconciles a provider's open intervals on date with a range
// that has just been reserved. Every available interval overlapping consumed
// is split: its remainders become available intervals of their own and the
// original is deleted, or, when nothing remains, it is marked booked.
// It must run inside the transaction that wrote the reservation.
func resolveConsumed(ctx context.Context, tx store.BookingTx, providerID uuid.UUID, date time.Time, consumed domain.TimeRange) error {
	overlapping, err := tx.FindOverlappingIntervals(ctx, providerID, date, consumed)
	if err != nil {
		return err
	}

	for _, iv := range overlapping {
		if iv.Status != domain.IntervalAvailable {
			continue
		}

		before, after := domain.Split(iv.Range(), consumed)
		if before == nil && after == nil {
			iv.Status = domain.IntervalBooked
			if _, err := tx.UpdateInterval(ctx, iv); err != nil {
				return err
			}
			continue
		}

		if err := tx.DeleteInterval(ctx, iv.ID); err != nil {
			return err
		}
		for _, rest := range []*domain.TimeRange{before, after} {
			if rest == nil {
				continue
			}
			if err := insertRemainder(ctx, tx, providerID, date, *rest); err != nil {
				return err
			}
		}
	}
	return nil
}

func insertRemainder(ctx context.Context, tx store.BookingTx, providerID uuid.UUID, date time.Time, span domain.TimeRange) error {
	existing, err := tx.FindExactInterval(ctx, providerID, date, span)
	switch {
	case err == nil && existing.Status == domain.IntervalAvailable:
		return nil
	case err == nil, errors.Is(err, store.ErrNotFound):
	default:
		return err
	}

	_, err = tx.InsertInterval(ctx, domain.AvailabilityInterval{
		ProviderID: providerID,
		Date:       date,
		StartTime:  span.Start,
		EndTime:    span.End,
		Status:     domain.IntervalAvailable,
	})
	return err
}

// restoreRange gives span back to the provider as available time. An interval
// with exactly those bounds is flipped to available rather than duplicated.
// Time still held by an active reservation other than excludeID is never
// restored; restored reports whether anything changed.
func restoreRange(ctx context.Context, tx store.BookingTx, providerID uuid.UUID, date time.Time, span domain.TimeRange, excludeID uuid.UUID) (restored bool, err error) {
	busy, err := tx.ExistsActiveOverlap(ctx, providerID, date, span, excludeID)
	if err != nil {
		return false, err
	}
	if busy {
		return false, nil
	}

	existing, err := tx.FindExactInterval(ctx, providerID, date, span)
	switch {
	case err == nil:
		if existing.Status == domain.IntervalAvailable {
			return false, nil
		}
		existing.Status = domain.IntervalAvailable
		if _, err := tx.UpdateInterval(ctx, existing); err != nil {
			return false, err
		}
		return true, nil
	case errors.Is(err, store.ErrNotFound):
		_, err := tx.InsertInterval(ctx, domain.AvailabilityInterval{
			ProviderID: providerID,
			Date:       date,
			StartTime:  span.Start,
			EndTime:    span.End,
			Status:     domain.IntervalAvailable,
		})
		if err != nil {
			return false, err
		}
		return true, nil
	default:
		return false, err
	}
}
