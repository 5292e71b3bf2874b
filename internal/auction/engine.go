// Package auction holds the pure section/bid state machine. Every function
// operates on an in-memory snapshot of one section and its bids and returns
// the set of changes to persist; callers are responsible for running it
// inside the per-section critical section of whatever store backs them.
package auction

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"section_bidding/internal/models"
)

var (
	ErrSectionClosed      = errors.New("section closed")
	ErrDeadlinePassed     = errors.New("bidding deadline passed")
	ErrBidTooLow          = errors.New("bid too low")
	ErrBidNotFound        = errors.New("bid not found")
	ErrWinnerBidImmutable = errors.New("cannot cancel a finalized winning bid")
	ErrAlreadyClosed      = errors.New("section already closed")
)

// SectionState is the snapshot a mutation operates on: one section plus all
// of its bids, loaded under the section's lock.
type SectionState struct {
	Section models.Section
	Bids    []models.Bid
}

// Changes describes what a mutation did to the snapshot. The section update
// is always present; bid slices list rows to insert, re-status or delete.
type Changes struct {
	Section     models.Section
	CreatedBids []models.Bid
	UpdatedBids []models.Bid
	DeletedBids []uuid.UUID
}

// PlaceBid validates and applies a bid against the snapshot. On success the
// previous PENDING bid (if any) is demoted to OUTBID, the new bid takes the
// PENDING slot and the section price/status are recomputed.
func PlaceBid(st *SectionState, investorID int64, amount decimal.Decimal, now time.Time) (models.Bid, Changes, error) {
	sec := &st.Section

	if !sec.Status.IsOpen() {
		return models.Bid{}, Changes{}, ErrSectionClosed
	}
	if sec.Deadline != nil && dateAfter(now, *sec.Deadline) {
		return models.Bid{}, Changes{}, fmt.Errorf("%w: deadline was %s", ErrDeadlinePassed, sec.Deadline.Format("2006-01-02"))
	}
	if !amount.GreaterThan(sec.CurrentPrice) {
		return models.Bid{}, Changes{}, fmt.Errorf("%w: offered %s, current price is %s", ErrBidTooLow, amount, sec.CurrentPrice)
	}

	ch := Changes{}
	for i := range st.Bids {
		if st.Bids[i].Status == models.BidStatusPending {
			st.Bids[i].Status = models.BidStatusOutbid
			ch.UpdatedBids = append(ch.UpdatedBids, st.Bids[i])
		}
	}

	bid := models.Bid{
		ID:         uuid.New(),
		SectionID:  sec.ID,
		InvestorID: investorID,
		Amount:     amount,
		BidTime:    now,
		Status:     models.BidStatusPending,
	}
	st.Bids = append(st.Bids, bid)
	ch.CreatedBids = append(ch.CreatedBids, bid)

	sec.CurrentPrice = amount
	sec.Status = models.OpenWithBidders(distinctBidders(st.Bids))
	sec.UpdatedAt = now
	ch.Section = *sec

	return bid, ch, nil
}

// CancelBid removes a non-terminal bid from the snapshot. Cancelling the
// PENDING bid promotes the best remaining OUTBID bid, or resets the section
// to its base price when none remain.
func CancelBid(st *SectionState, bidID uuid.UUID, now time.Time) (Changes, error) {
	sec := &st.Section

	idx := -1
	for i := range st.Bids {
		if st.Bids[i].ID == bidID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return Changes{}, ErrBidNotFound
	}
	if sec.Status.Kind == models.StatusClosed {
		return Changes{}, ErrSectionClosed
	}
	cancelled := st.Bids[idx]
	if cancelled.Status == models.BidStatusWinner {
		return Changes{}, ErrWinnerBidImmutable
	}

	st.Bids = append(st.Bids[:idx], st.Bids[idx+1:]...)
	ch := Changes{DeletedBids: []uuid.UUID{bidID}}

	if cancelled.Status == models.BidStatusPending {
		if next := bestOutbid(st.Bids); next != nil {
			next.Status = models.BidStatusPending
			sec.CurrentPrice = next.Amount
			ch.UpdatedBids = append(ch.UpdatedBids, *next)
		} else {
			sec.CurrentPrice = sec.BasePrice
		}
	}

	sec.Status = models.OpenWithBidders(distinctBidders(st.Bids))
	sec.UpdatedAt = now
	ch.Section = *sec

	return ch, nil
}

// Close finalizes the section. The PENDING bid, if any, becomes WINNER and
// the section closes; a section that never received a bid stays open with its
// price reset to the base price.
func Close(st *SectionState, now time.Time) (Changes, error) {
	sec := &st.Section

	if sec.Status.Kind == models.StatusClosed {
		return Changes{}, ErrAlreadyClosed
	}

	ch := Changes{}
	var pending *models.Bid
	for i := range st.Bids {
		if st.Bids[i].Status == models.BidStatusPending {
			pending = &st.Bids[i]
			break
		}
	}

	if pending != nil {
		pending.Status = models.BidStatusWinner
		winner := pending.InvestorID
		sec.WinnerInvestorID = &winner
		sec.Status = models.Closed()
		ch.UpdatedBids = append(ch.UpdatedBids, *pending)
	} else {
		sec.CurrentPrice = sec.BasePrice
		sec.Status = models.Open()
	}

	sec.UpdatedAt = now
	ch.Section = *sec
	return ch, nil
}

// AdvanceSeason resets one section for the next bidding season: the base
// price grows by rate, the winner is cleared and the section reopens with the
// given deadline. Bid history is left untouched.
func AdvanceSeason(sec *models.Section, rate decimal.Decimal, deadline time.Time, now time.Time) Changes {
	sec.BasePrice = sec.BasePrice.Mul(decimal.NewFromInt(1).Add(rate)).Round(2)
	sec.CurrentPrice = sec.BasePrice
	sec.Status = models.Open()
	sec.WinnerInvestorID = nil
	d := deadline
	sec.Deadline = &d
	sec.UpdatedAt = now
	return Changes{Section: *sec}
}

// bestOutbid picks the promotion candidate: highest amount, ties broken by
// earliest bid time, then by bid id for full determinism.
func bestOutbid(bids []models.Bid) *models.Bid {
	var best *models.Bid
	for i := range bids {
		b := &bids[i]
		if b.Status != models.BidStatusOutbid {
			continue
		}
		if best == nil || beats(b, best) {
			best = b
		}
	}
	return best
}

func beats(a, b *models.Bid) bool {
	if c := a.Amount.Cmp(b.Amount); c != 0 {
		return c > 0
	}
	if !a.BidTime.Equal(b.BidTime) {
		return a.BidTime.Before(b.BidTime)
	}
	return a.ID.String() < b.ID.String()
}

func distinctBidders(bids []models.Bid) int {
	seen := make(map[int64]struct{}, len(bids))
	for _, b := range bids {
		seen[b.InvestorID] = struct{}{}
	}
	return len(seen)
}

// dateAfter reports whether day a falls strictly after day b, ignoring the
// time of day. A bid placed on the deadline day itself is still in time.
func dateAfter(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	if ay != by {
		return ay > by
	}
	if am != bm {
		return am > bm
	}
	return ad > bd
}
