package booking

import (
	"errors"
	"fmt"
)

var (
	ErrProviderNotFound    = errors.New("provider not found")
	ErrSubjectNotFound     = errors.New("subject not found")
	ErrReservationNotFound = errors.New("reservation not found")
	ErrIntervalNotFound    = errors.New("availability interval not found")
	ErrInvalidTimeRange    = errors.New("end time must be after start time")
	ErrSlotUnavailable     = errors.New("requested time is not available")
	ErrSlotAlreadyBooked   = errors.New("requested time is already booked")
	ErrReservationInactive = errors.New("reservation is canceled")
	ErrUnauthorized        = errors.New("not allowed to act on this resource")
	ErrAlreadyRegistered   = errors.New("username is already registered")

	errReservationMoved = errors.New("reservation moved to another day")
)

type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string {
	return e.msg
}

func validationError(msg string) error {
	return &ValidationError{msg: msg}
}

// StorageError is a failure of the underlying store. It is the only kind of
// error an outer layer may reasonably retry.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

var domainErrors = []error{
	ErrProviderNotFound,
	ErrSubjectNotFound,
	ErrReservationNotFound,
	ErrIntervalNotFound,
	ErrInvalidTimeRange,
	ErrSlotUnavailable,
	ErrSlotAlreadyBooked,
	ErrReservationInactive,
	ErrUnauthorized,
	ErrAlreadyRegistered,
}

// classify leaves domain errors alone and wraps everything else as a
// StorageError for op.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	for _, target := range domainErrors {
		if errors.Is(err, target) {
			return err
		}
	}
	var vErr *ValidationError
	if errors.As(err, &vErr) {
		return err
	}
	var sErr *StorageError
	if errors.As(err, &sErr) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}
