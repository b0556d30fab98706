// Package period models calendar months and calendar dates in the business time zone.
//
// Dates are stored as midnight UTC of their calendar day so they compare and
// index the same way on every database dialect.
package period

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

var (
	ErrInvalidMonth = errors.New("invalid_month")
	ErrInvalidDate  = errors.New("invalid_date")
)

// Month is a calendar month, keyed on the wire as "MM-YYYY".
type Month struct {
	Year  int
	Month time.Month
}

func NewMonth(year int, month time.Month) Month {
	return Month{Year: year, Month: month}
}

// MonthOf returns the calendar month containing t in loc.
func MonthOf(t time.Time, loc *time.Location) Month {
	if loc != nil {
		t = t.In(loc)
	}
	return Month{Year: t.Year(), Month: t.Month()}
}

// MonthOfDate returns the month of a normalised calendar date.
func MonthOfDate(date time.Time) Month {
	return Month{Year: date.Year(), Month: date.Month()}
}

// ParseMonth accepts "MM-YYYY" and, for list filters, "YYYY-MM".
func ParseMonth(raw string) (Month, error) {
	raw = strings.TrimSpace(raw)
	parts := strings.Split(raw, "-")
	if len(parts) != 2 {
		return Month{}, ErrInvalidMonth
	}
	monthPart, yearPart := parts[0], parts[1]
	if len(monthPart) == 4 && len(yearPart) <= 2 {
		monthPart, yearPart = yearPart, monthPart
	}
	if len(yearPart) != 4 || len(monthPart) == 0 || len(monthPart) > 2 {
		return Month{}, ErrInvalidMonth
	}
	month, err := strconv.Atoi(monthPart)
	if err != nil || month < 1 || month > 12 {
		return Month{}, ErrInvalidMonth
	}
	year, err := strconv.Atoi(yearPart)
	if err != nil || year < 1970 {
		return Month{}, ErrInvalidMonth
	}
	return Month{Year: year, Month: time.Month(month)}, nil
}

func (m Month) String() string {
	return fmt.Sprintf("%02d-%04d", int(m.Month), m.Year)
}

func (m Month) IsZero() bool {
	return m.Year == 0 && m.Month == 0
}

// Start is the first calendar date of the month.
func (m Month) Start() time.Time {
	return time.Date(m.Year, m.Month, 1, 0, 0, 0, 0, time.UTC)
}

// End is the last calendar date of the month (inclusive).
func (m Month) End() time.Time {
	return m.Start().AddDate(0, 1, -1)
}

func (m Month) Contains(date time.Time) bool {
	return date.Year() == m.Year && date.Month() == m.Month
}

func (m Month) Next() Month {
	return MonthOfDate(m.Start().AddDate(0, 1, 0))
}

func (m Month) Prev() Month {
	return MonthOfDate(m.Start().AddDate(0, -1, 0))
}

func (m Month) Equal(other Month) bool {
	return m.Year == other.Year && m.Month == other.Month
}

// DateOf normalises an instant to its calendar date in loc.
func DateOf(t time.Time, loc *time.Location) time.Time {
	if loc != nil {
		t = t.In(loc)
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func ParseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, ErrInvalidDate
	}
	if parsed, err := time.Parse(dateLayout, raw); err == nil {
		return parsed, nil
	}
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, ErrInvalidDate
	}
	return time.Date(parsed.Year(), parsed.Month(), parsed.Day(), 0, 0, 0, 0, time.UTC), nil
}

func FormatDate(date time.Time) string {
	return date.Format(dateLayout)
}

// IsLastDayOfMonth reports whether the calendar date of t in loc ends its month.
func IsLastDayOfMonth(t time.Time, loc *time.Location) bool {
	date := DateOf(t, loc)
	return date.AddDate(0, 0, 1).Day() == 1
}
