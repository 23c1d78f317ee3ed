package reservation

import (
	"errors"
	"time"
)

const DateLayout = "2006-01-02"
const timeLayout = "15:04"

var ErrInvalidTime = errors.New("invalid time of day")

// Interval is a reservation's effective occupancy window after overnight
// normalization: half-open, [From, To).
type Interval struct {
	From time.Time
	To   time.Time
}

// ParseTimeOfDay parses "HH:MM" into minutes since midnight.
func ParseTimeOfDay(s string) (int, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return 0, ErrInvalidTime
	}
	return t.Hour()*60 + t.Minute(), nil
}

// ParseDate parses a "YYYY-MM-DD" wall-clock date.
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, ErrInvalidTime
	}
	return d, nil
}

// Normalize builds the effective interval for a booking on date with the given
// start/end times. An end at or before the start means the booking spans
// midnight, so the end lands on the following day.
func Normalize(date time.Time, startTime, endTime string) (Interval, error) {
	startMin, err := ParseTimeOfDay(startTime)
	if err != nil {
		return Interval{}, err
	}
	endMin, err := ParseTimeOfDay(endTime)
	if err != nil {
		return Interval{}, err
	}

	day := date.Truncate(24 * time.Hour)
	from := day.Add(time.Duration(startMin) * time.Minute)
	to := day.Add(time.Duration(endMin) * time.Minute)

	if endMin <= startMin {
		to = to.Add(24 * time.Hour)
	}

	return Interval{From: from, To: to}, nil
}

// Overlaps reports half-open intersection: touching endpoints do not overlap,
// so back-to-back bookings are allowed.
func (i Interval) Overlaps(o Interval) bool {
	return i.From.Before(o.To) && i.To.After(o.From)
}

// Effective returns the reservation's normalized interval using its own
// stored date, so an overnight row booked yesterday still occupies this
// morning.
func (r Reservation) Effective() (Interval, error) {
	return Normalize(r.Date, r.StartTime, r.EndTime)
}

// FindConflict checks the proposed interval against every existing
// reservation and returns the first non-cancelled one it overlaps. Rows whose
// times fail to parse are treated as conflicts rather than silently skipped;
// a malformed row should never grant a double booking.
func FindConflict(proposed Interval, existing []Reservation) (Reservation, bool) {
	for _, r := range existing {
		if r.Cancelled {
			continue
		}

		window, err := r.Effective()
		if err != nil {
			return r, true
		}

		if proposed.Overlaps(window) {
			return r, true
		}
	}
	return Reservation{}, false
}
