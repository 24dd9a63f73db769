package expiry

import (
	"sort"
	"time"
)

// Status is the dashboard classification of a product
type Status string

// Product statuses.
const (
	StatusSafe    Status = "safe"
	StatusNear    Status = "near"
	StatusExpired Status = "expired"
)

const (
	// NearWindowDays is how many days ahead a product counts as near expiry
	NearWindowDays = 7
	// AlertWindowDays is how many days ahead a product is included in an email alert
	AlertWindowDays = 3
)

// DaysUntil returns whole calendar days from today until the expiry date
func DaysUntil(date string, today time.Time) (int, error) {
	t, err := Parse(date)
	if err != nil {
		return 0, err
	}
	start := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)
	return int(t.Sub(start).Hours() / 24), nil
}

// Classify returns the status of a product expiring on date. Unreadable dates are safe.
func Classify(date string, today time.Time) Status {
	days, err := DaysUntil(date, today)
	if err != nil {
		return StatusSafe
	}
	switch {
	case days < 0:
		return StatusExpired
	case days <= NearWindowDays:
		return StatusNear
	default:
		return StatusSafe
	}
}

// NeedsAlert reports whether a product expiring on date belongs in an expiry alert
func NeedsAlert(date string, today time.Time) bool {
	days, err := DaysUntil(date, today)
	if err != nil {
		return false
	}
	return days <= AlertWindowDays
}

// SortByExpiry orders items by the date key returns, soonest first. Unreadable dates go last.
func SortByExpiry[T any](items []T, key func(T) string) {
	sort.SliceStable(items, func(i, j int) bool {
		a, errA := Parse(key(items[i]))
		b, errB := Parse(key(items[j]))
		switch {
		case errA != nil:
			return false
		case errB != nil:
			return true
		default:
			return a.Before(b)
		}
	})
}
