// Package timeofday converts wall-clock "HH:MM" strings to minute offsets and
// compares half-open minute intervals. Sessions never cross midnight, so the
// representable range is 00:00 through 23:59:59.
package timeofday

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrInvalidFormat = errors.New("invalid time format")
	ErrOutOfRange    = errors.New("time out of range")
	ErrEmptyInterval = errors.New("interval end must be after start")
)

// MinutesPerDay is the exclusive upper bound of a minute offset.
const MinutesPerDay = 24 * 60

// ParseMinutes accepts "HH:MM" or "HH:MM:SS" and returns minutes since midnight.
// Seconds are validated and then dropped.
func ParseMinutes(s string) (int, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 && len(parts) != 3 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidFormat, s)
	}
	limits := []int{23, 59, 59}
	vals := make([]int, len(parts))
	for i, p := range parts {
		if len(p) != 2 {
			return 0, fmt.Errorf("%w: %q", ErrInvalidFormat, s)
		}
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || n > limits[i] {
			return 0, fmt.Errorf("%w: %q", ErrInvalidFormat, s)
		}
		vals[i] = n
	}
	return vals[0]*60 + vals[1], nil
}

// Format renders minutes since midnight as "HH:MM".
func Format(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// AddMinutes shifts a wall-clock time by delta minutes. The result must stay
// within the same day; there is no wrapping past midnight.
func AddMinutes(s string, delta int) (string, error) {
	m, err := ParseMinutes(s)
	if err != nil {
		return "", err
	}
	out := m + delta
	if out < 0 || out >= MinutesPerDay {
		return "", fmt.Errorf("%w: %s%+d min", ErrOutOfRange, s, delta)
	}
	return Format(out), nil
}

// Overlaps reports whether [startA,endA) and [startB,endB) share an instant.
func Overlaps(startA, endA, startB, endB int) bool {
	return !(endA <= startB || endB <= startA)
}

// Interval is a half-open [Start, End) range of minutes since midnight.
type Interval struct {
	Start int
	End   int
}

// ParseInterval parses both ends and rejects empty or inverted intervals.
func ParseInterval(start, end string) (Interval, error) {
	s, err := ParseMinutes(start)
	if err != nil {
		return Interval{}, err
	}
	e, err := ParseMinutes(end)
	if err != nil {
		return Interval{}, err
	}
	if e <= s {
		return Interval{}, fmt.Errorf("%w: %s-%s", ErrEmptyInterval, start, end)
	}
	return Interval{Start: s, End: e}, nil
}

func (i Interval) Duration() int {
	return i.End - i.Start
}

func (i Interval) Overlaps(o Interval) bool {
	return Overlaps(i.Start, i.End, o.Start, o.End)
}

func (i Interval) Contains(o Interval) bool {
	return i.Start <= o.Start && o.End <= i.End
}

func (i Interval) String() string {
	return Format(i.Start) + "-" + Format(i.End)
}
