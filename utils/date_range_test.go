package utils_test

import (
	"testing"
	"time"

	"github.com/platemetrics/analytics_backend/utils"
)

func TestGetQuarterRange(t *testing.T) {
	cases := []struct {
		month     time.Month
		wantStart time.Month
		wantEnd   time.Month
	}{
		{time.January, time.January, time.March},
		{time.March, time.January, time.March},
		{time.April, time.April, time.June},
		{time.August, time.July, time.September},
		{time.December, time.October, time.December},
	}

	for _, tc := range cases {
		start, end := utils.GetQuarterRange(2025, tc.month)
		if start.Month() != tc.wantStart || start.Day() != 1 {
			t.Errorf("quarter(%s) starts %s, want %s 1", tc.month, start.Format("2006-01-02"), tc.wantStart)
		}
		if end.Month() != tc.wantEnd {
			t.Errorf("quarter(%s) ends in %s, want %s", tc.month, end.Month(), tc.wantEnd)
		}
		if end.AddDate(0, 0, 1).Day() != 1 {
			t.Errorf("quarter(%s) end %s is not the last day of its month", tc.month, end.Format("2006-01-02"))
		}
		if end.Hour() != 23 || end.Minute() != 59 || end.Second() != 59 {
			t.Errorf("quarter(%s) should close at 23:59:59, got %s", tc.month, end.Format(time.RFC3339))
		}
	}
}

func TestMonthRanges(t *testing.T) {
	now := time.Now()

	start, end := utils.GetThisMonthRange()
	if start.Year() != now.Year() || start.Month() != now.Month() || start.Day() != 1 {
		t.Fatalf("this month starts %s", start.Format("2006-01-02"))
	}
	if end.Month() != now.Month() || end.AddDate(0, 0, 1).Day() != 1 {
		t.Fatalf("this month ends %s", end.Format("2006-01-02"))
	}

	prevStart, prevEnd := utils.GetPreviousMonthRange()
	if prevStart.Day() != 1 {
		t.Fatalf("previous month starts %s", prevStart.Format("2006-01-02"))
	}
	if !prevEnd.Before(start) {
		t.Fatalf("previous month end %s should precede this month start %s",
			prevEnd.Format("2006-01-02"), start.Format("2006-01-02"))
	}
	if prevEnd.AddDate(0, 0, 1).Day() != 1 {
		t.Fatalf("previous month ends %s, not a month boundary", prevEnd.Format("2006-01-02"))
	}
}

func TestPreviousQuarterIsContiguousWithCurrent(t *testing.T) {
	curStart, _ := utils.GetThisQuarterRange()
	prevStart, prevEnd := utils.GetPreviousQuarterRange()

	if !prevEnd.Before(curStart) {
		t.Fatalf("previous quarter end %s should precede current quarter start %s",
			prevEnd.Format("2006-01-02"), curStart.Format("2006-01-02"))
	}
	switch prevStart.Month() {
	case time.January, time.April, time.July, time.October:
	default:
		t.Fatalf("previous quarter starts in %s", prevStart.Month())
	}
	if !prevStart.AddDate(0, 3, 0).Equal(curStart) {
		t.Fatalf("previous quarter start %s + 3 months != current quarter start %s",
			prevStart.Format("2006-01-02"), curStart.Format("2006-01-02"))
	}
}

func TestGetLastDaysRange(t *testing.T) {
	start, end := utils.GetLastDaysRange(7)
	if !start.AddDate(0, 0, 7).Equal(end) {
		t.Fatalf("last 7 days: start %s + 7d != end %s",
			start.Format(time.RFC3339), end.Format(time.RFC3339))
	}
}

func TestGetStartAndEndDateWithFilterType(t *testing.T) {
	filters := []string{
		"last7days", "last30days", "last90days",
		"thisMonth", "previousMonth", "thisQuarter", "previousQuarter",
	}
	for _, filter := range filters {
		start, end, err := utils.GetStartAndEndDateWithFilterType(filter)
		if err != nil {
			t.Fatalf("%s: %v", filter, err)
		}
		if end.Before(start) {
			t.Fatalf("%s: end %s precedes start %s", filter,
				end.Format("2006-01-02"), start.Format("2006-01-02"))
		}
	}

	if _, _, err := utils.GetStartAndEndDateWithFilterType("lastCentury"); err == nil {
		t.Fatal("unknown filter type should error")
	}
}
