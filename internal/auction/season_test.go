package auction

import (
	"testing"
	"time"

	"github.com/peterldowns/testy/check"
)

func TestSeasonInfo_MidQuarter(t *testing.T) {
	now := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	info := SeasonInfo(now, 2)

	check.Equal(t, "2026-Q3", info.CurrentPeriod)
	check.True(t, info.PeriodStart.Equal(time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)))
	check.True(t, info.PeriodEnd.Equal(time.Date(2026, 9, 30, 0, 0, 0, 0, time.UTC)))
	check.True(t, info.BiddingOpenDate.Equal(info.PeriodStart))
	check.True(t, info.BiddingCloseDate.Equal(time.Date(2026, 9, 29, 0, 0, 0, 0, time.UTC)))
	check.True(t, info.IsBiddingOpen)
	check.Equal(t, 28, info.DaysUntilClose)
}

func TestSeasonInfo_AfterBiddingClose(t *testing.T) {
	now := time.Date(2026, 9, 30, 8, 0, 0, 0, time.UTC)
	info := SeasonInfo(now, 2)

	check.Equal(t, "2026-Q3", info.CurrentPeriod)
	check.False(t, info.IsBiddingOpen)
	check.Equal(t, 0, info.DaysUntilClose)
}

func TestSeasonInfo_QuarterBoundaries(t *testing.T) {
	cases := []struct {
		month  time.Month
		period string
	}{
		{time.January, "2026-Q1"},
		{time.March, "2026-Q1"},
		{time.April, "2026-Q2"},
		{time.June, "2026-Q2"},
		{time.July, "2026-Q3"},
		{time.October, "2026-Q4"},
		{time.December, "2026-Q4"},
	}
	for _, tc := range cases {
		now := time.Date(2026, tc.month, 15, 0, 0, 0, 0, time.UTC)
		check.Equal(t, tc.period, SeasonInfo(now, 2).CurrentPeriod)
	}
}

func TestNextSeasonDeadline(t *testing.T) {
	now := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	deadline := NextSeasonDeadline(now, 2)
	check.True(t, deadline.Equal(time.Date(2026, 9, 29, 0, 0, 0, 0, time.UTC)))

	// Year rollover.
	now = time.Date(2026, 11, 20, 0, 0, 0, 0, time.UTC)
	deadline = NextSeasonDeadline(now, 2)
	check.True(t, deadline.Equal(time.Date(2026, 12, 30, 0, 0, 0, 0, time.UTC)))
}
