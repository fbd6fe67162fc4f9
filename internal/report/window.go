package report

import (
	"fmt"
	"time"
)

// DateLayout is the ISO date format the provider expects.
const DateLayout = "2006-01-02"

// Strategy selects how a pull window is derived from the current time.
type Strategy string

const (
	PreviousMonth Strategy = "previous-month"
	Trailing7Days Strategy = "trailing-7d"
)

// ParseStrategy validates a configured strategy name.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case PreviousMonth, Trailing7Days:
		return Strategy(s), nil
	}
	return "", fmt.Errorf("unknown window strategy %q (want %q or %q)", s, PreviousMonth, Trailing7Days)
}

// Window is an inclusive date range.
type Window struct {
	Start time.Time
	End   time.Time
}

func (w Window) StartDate() string { return w.Start.Format(DateLayout) }
func (w Window) EndDate() string   { return w.End.Format(DateLayout) }

func (w Window) String() string {
	return w.StartDate() + ".." + w.EndDate()
}

// Window computes the date range for now. Dates are taken in UTC.
func (s Strategy) Window(now time.Time) Window {
	now = now.UTC()
	y, m, d := now.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)

	switch s {
	case Trailing7Days:
		return Window{Start: today.AddDate(0, 0, -7), End: today}
	default:
		// Day 0 of the current month normalises to the last day of the previous one.
		return Window{
			Start: time.Date(y, m-1, 1, 0, 0, 0, 0, time.UTC),
			End:   time.Date(y, m, 0, 0, 0, 0, 0, time.UTC),
		}
	}
}
