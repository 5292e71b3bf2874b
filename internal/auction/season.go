package auction

import (
	"fmt"
	"time"

	"section_bidding/internal/models"
)

// Seasons follow calendar quarters. Bidding for a season closes a fixed
// number of days before the quarter boundary so closing sweeps have room to
// run before the reset.

func quarterStart(t time.Time) time.Time {
	y, m, _ := t.UTC().Date()
	qm := time.Month(((int(m)-1)/3)*3 + 1)
	return time.Date(y, qm, 1, 0, 0, 0, 0, time.UTC)
}

// SeasonInfo computes the season read model for the given instant. Pure
// function of the clock, no persisted state.
func SeasonInfo(now time.Time, leadDays int) models.SeasonInfo {
	start := quarterStart(now)
	nextStart := start.AddDate(0, 3, 0)
	end := nextStart.AddDate(0, 0, -1)
	closeDate := nextStart.AddDate(0, 0, -leadDays)

	quarter := (int(start.Month())-1)/3 + 1
	open := !dateAfter(start, now) && !dateAfter(now, closeDate)

	days := int(closeDate.Sub(dayOf(now)).Hours() / 24)
	if days < 0 {
		days = 0
	}

	return models.SeasonInfo{
		CurrentPeriod:    fmt.Sprintf("%d-Q%d", start.Year(), quarter),
		PeriodStart:      start,
		PeriodEnd:        end,
		BiddingOpenDate:  start,
		BiddingCloseDate: closeDate,
		IsBiddingOpen:    open,
		DaysUntilClose:   days,
	}
}

// NextSeasonDeadline is the bidding deadline a season reset assigns: the next
// quarter boundary minus the lead time.
func NextSeasonDeadline(now time.Time, leadDays int) time.Time {
	return quarterStart(now).AddDate(0, 3, 0).AddDate(0, 0, -leadDays)
}

func dayOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
