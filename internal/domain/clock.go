package domain

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Clock is a wall-clock time of day in seconds since midnight. It carries no
// time zone; every Clock is read in the deployment's single canonical zone.
type Clock int32

const (
	Midnight Clock = 0
	EndOfDay Clock = 24 * 60 * 60
)

const DateFormat = "2006-01-02"

var errInvalidClock = errors.New("invalid time of day")

func NewClock(hour, minute, second int) Clock {
	return Clock(hour*3600 + minute*60 + second)
}

func (c Clock) Valid() bool {
	return c >= Midnight && c <= EndOfDay
}

func (c Clock) String() string {
	h := int(c) / 3600
	m := (int(c) % 3600) / 60
	s := int(c) % 60
	if s == 0 {
		return fmt.Sprintf("%02d:%02d", h, m)
	}
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// ParseClock accepts HH:MM and HH:MM:SS with an optional fractional second,
// which is truncated. 24:00 is accepted as the end of the day.
func ParseClock(s string) (Clock, error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, errInvalidClock
	}

	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, errInvalidClock
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, errInvalidClock
	}
	sec := 0
	if len(parts) == 3 {
		whole, _, _ := strings.Cut(parts[2], ".")
		sec, err = strconv.Atoi(whole)
		if err != nil {
			return 0, errInvalidClock
		}
	}
	if h < 0 || m < 0 || m > 59 || sec < 0 || sec > 59 {
		return 0, errInvalidClock
	}

	c := NewClock(h, m, sec)
	if !c.Valid() {
		return 0, errInvalidClock
	}
	return c, nil
}

func (c Clock) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Clock) UnmarshalText(b []byte) error {
	v, err := ParseClock(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// Value stores a Clock in a Postgres TIME column.
func (c Clock) Value() (driver.Value, error) {
	h := int(c) / 3600
	m := (int(c) % 3600) / 60
	s := int(c) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s), nil
}

func (c *Clock) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*c = Midnight
		return nil
	case string:
		return c.UnmarshalText([]byte(v))
	case []byte:
		return c.UnmarshalText(v)
	case time.Time:
		*c = NewClock(v.Hour(), v.Minute(), v.Second())
		return nil
	case int64:
		// microseconds since midnight
		*c = Clock(v / int64(time.Second/time.Microsecond))
		return nil
	default:
		return fmt.Errorf("cannot scan %T into Clock", src)
	}
}

// Date normalises t to midnight UTC of its calendar day.
func Date(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateFormat, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, errors.New("invalid date")
	}
	return t, nil
}

// TimeRange is the half-open span [Start, End).
type TimeRange struct {
	Start Clock
	End   Clock
}

func (r TimeRange) Valid() bool {
	return r.Start.Valid() && r.End.Valid() && r.Start < r.End
}

func (r TimeRange) Overlaps(o TimeRange) bool {
	return r.Start < o.End && r.End > o.Start
}

func (r TimeRange) Contains(o TimeRange) bool {
	return r.Start <= o.Start && r.End >= o.End
}

func (r TimeRange) String() string {
	return "[" + r.Start.String() + "," + r.End.String() + ")"
}

// Covers reports whether the union of spans covers want completely. Adjacent
// spans join, so [09:00,10:00) and [10:00,11:00) cover [09:30,10:30).
func Covers(spans []TimeRange, want TimeRange) bool {
	if !want.Valid() {
		return false
	}

	sorted := make([]TimeRange, 0, len(spans))
	for _, s := range spans {
		if s.Valid() && s.Overlaps(want) {
			sorted = append(sorted, s)
		}
	}
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Start < sorted[j].Start
	})

	reached := want.Start
	for _, s := range sorted {
		if s.Start > reached {
			return false
		}
		if s.End > reached {
			reached = s.End
		}
		if reached >= want.End {
			return true
		}
	}
	return false
}

// Split returns what remains of span once consumed is taken out of it: the
// part before consumed and the part after it. Either may be nil.
func Split(span, consumed TimeRange) (before, after *TimeRange) {
	if span.Start < consumed.Start {
		end := consumed.Start
		if span.End < end {
			end = span.End
		}
		before = &TimeRange{Start: span.Start, End: end}
	}
	if span.End > consumed.End {
		start := consumed.End
		if span.Start > start {
			start = span.Start
		}
		after = &TimeRange{Start: start, End: span.End}
	}
	return before, after
}
