package expiry

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Layout is the DD/MM/YYYY form every date in the product API uses
const Layout = "02/01/2006"

const (
	minYear = 1900
	maxYear = 2100
)

// ErrInvalidDate is returned when a string is not a calendar date in DD/MM/YYYY form
var ErrInvalidDate = errors.New("invalid date")

// DateComponents holds the integers parsed from a DD/MM/YYYY string
type DateComponents struct {
	Day   int
	Month int
	Year  int
}

// ParseComponents splits a DD/MM/YYYY string into its integers and validates them
func ParseComponents(s string) (DateComponents, error) {
	if len(s) != len(Layout) {
		return DateComponents{}, fmt.Errorf("%w: %q must be %d characters", ErrInvalidDate, s, len(Layout))
	}

	parts := strings.Split(s, "/")
	if len(parts) != 3 {
		return DateComponents{}, fmt.Errorf("%w: %q is not DD/MM/YYYY", ErrInvalidDate, s)
	}

	var values [3]int
	for i, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil {
			return DateComponents{}, fmt.Errorf("%w: %q: %v", ErrInvalidDate, s, err)
		}
		values[i] = n
	}

	d := DateComponents{Day: values[0], Month: values[1], Year: values[2]}
	if err := d.validate(); err != nil {
		return DateComponents{}, err
	}
	return d, nil
}

// validate checks the ranges and that the components survive a round trip through the calendar,
// which rejects combinations like 30/02 that time.Date would silently move into March
func (d DateComponents) validate() error {
	if d.Day < 1 || d.Day > 31 || d.Month < 1 || d.Month > 12 || d.Year < minYear || d.Year > maxYear {
		return fmt.Errorf("%w: %02d/%02d/%04d out of range", ErrInvalidDate, d.Day, d.Month, d.Year)
	}

	t := d.Time()
	if t.Day() != d.Day || int(t.Month()) != d.Month || t.Year() != d.Year {
		return fmt.Errorf("%w: %02d/%02d/%04d does not exist", ErrInvalidDate, d.Day, d.Month, d.Year)
	}
	return nil
}

// Time returns midnight UTC on the date. Out of range components are normalised by time.Date.
func (d DateComponents) Time() time.Time {
	return time.Date(d.Year, time.Month(d.Month), d.Day, 0, 0, 0, 0, time.UTC)
}

// AddMonths adds calendar months. The day of month is kept; when the target month is shorter
// the overflow rolls forward into the following month (31/01/2024 + 1 = 02/03/2024).
func (d DateComponents) AddMonths(months int) DateComponents {
	t := d.Time().AddDate(0, months, 0)
	return FromTime(t)
}

// String formats the date as DD/MM/YYYY
func (d DateComponents) String() string {
	return d.Time().Format(Layout)
}

// FromTime takes the calendar components of t
func FromTime(t time.Time) DateComponents {
	return DateComponents{Day: t.Day(), Month: int(t.Month()), Year: t.Year()}
}

// IsValidDate reports whether s is an existing calendar date in DD/MM/YYYY form between 1900 and 2100
func IsValidDate(s string) bool {
	_, err := ParseComponents(s)
	return err == nil
}

// Parse returns the date in s as midnight UTC
func Parse(s string) (time.Time, error) {
	d, err := ParseComponents(s)
	if err != nil {
		return time.Time{}, err
	}
	return d.Time(), nil
}
