package tablysync

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
)

// ErrMalformedDate marks an order whose business-date string could not be
// parsed. The order is dropped and counted; the sync keeps going.
var ErrMalformedDate = errors.New("malformed business date")

var businessDateLayouts = []string{"2006-01-02", "20060102"}

// resolveBusinessDate parses the provider's business-date string as a plain
// calendar date. The string carries no zone and must never pass through one:
// applying a local offset to a date-only value shifts orders across the
// midnight boundary.
func resolveBusinessDate(raw string) (civil.Date, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return civil.Date{}, fmt.Errorf("%w: empty", ErrMalformedDate)
	}
	for _, layout := range businessDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return civil.DateOf(t), nil
		}
	}
	return civil.Date{}, fmt.Errorf("%w: %q", ErrMalformedDate, raw)
}

// dateWindow is an inclusive range of business dates.
type dateWindow struct {
	Start civil.Date
	End   civil.Date
}

func (w dateWindow) String() string {
	return w.Start.String() + ".." + w.End.String()
}

func monthLabel(w dateWindow) string {
	return fmt.Sprintf("%04d-%02d", w.Start.Year, int(w.Start.Month))
}

// monthWindows returns the last n calendar months as windows, oldest first.
// The current month is truncated at today so a backfill never asks the
// provider for future dates.
func monthWindows(today civil.Date, n int) []dateWindow {
	if n <= 0 {
		return nil
	}
	windows := make([]dateWindow, 0, n)
	firstOfMonth := time.Date(today.Year, today.Month, 1, 0, 0, 0, 0, time.UTC)
	for i := n - 1; i >= 0; i-- {
		start := firstOfMonth.AddDate(0, -i, 0)
		end := start.AddDate(0, 1, -1)
		window := dateWindow{Start: civil.DateOf(start), End: civil.DateOf(end)}
		if !window.End.Before(today) {
			window.End = today
		}
		windows = append(windows, window)
	}
	return windows
}

// yesterdayTodayWindow is the default window for scheduled syncs: late
// closes for yesterday keep trickling in past midnight, so both dates get
// refreshed together.
func yesterdayTodayWindow(today civil.Date) dateWindow {
	return dateWindow{Start: today.AddDays(-1), End: today}
}

// windowDates enumerates every calendar date in the window, inclusive, as
// the date-typed values the fact tables key on. A resync must rewrite every
// date it covers, including dates that ended up with no retained orders.
func windowDates(w dateWindow) []time.Time {
	var dates []time.Time
	for d := w.Start; !w.End.Before(d); d = d.AddDays(1) {
		dates = append(dates, civilToTime(d))
	}
	return dates
}

func civilToTime(d civil.Date) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}
