package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// StatusKind is the discriminant of a section's lifecycle state.
type StatusKind string

const (
	StatusOpen            StatusKind = "OPEN"
	StatusOpenWithBidders StatusKind = "OPEN_WITH_BIDDERS"
	StatusClosed          StatusKind = "CLOSED"
)

// SectionStatus carries the lifecycle state of a section together with the
// number of distinct bidders. The count is data, not part of the state label.
type SectionStatus struct {
	Kind    StatusKind `json:"kind"`
	Bidders int        `json:"bidders,omitempty"`
}

func Open() SectionStatus {
	return SectionStatus{Kind: StatusOpen}
}

func OpenWithBidders(n int) SectionStatus {
	if n <= 0 {
		return Open()
	}
	return SectionStatus{Kind: StatusOpenWithBidders, Bidders: n}
}

func Closed() SectionStatus {
	return SectionStatus{Kind: StatusClosed}
}

// IsOpen reports whether the section still accepts bids.
func (s SectionStatus) IsOpen() bool {
	return s.Kind == StatusOpen || s.Kind == StatusOpenWithBidders
}

func (s SectionStatus) String() string {
	if s.Kind == StatusOpenWithBidders {
		return fmt.Sprintf("OPEN_WITH_%d_BIDDERS", s.Bidders)
	}
	return string(s.Kind)
}

// BidStatus is the lifecycle state of a single bid.
type BidStatus string

const (
	BidStatusPending BidStatus = "PENDING"
	BidStatusOutbid  BidStatus = "OUTBID"
	BidStatusWinner  BidStatus = "WINNER"
)

// Section is an auctionable lot in the catalog hierarchy.
type Section struct {
	ID               int64           `json:"id"`
	FaceID           int64           `json:"face_id"`
	Name             string          `json:"name"`
	BasePrice        decimal.Decimal `json:"base_price"`
	CurrentPrice     decimal.Decimal `json:"current_price"`
	Status           SectionStatus   `json:"status"`
	Deadline         *time.Time      `json:"deadline,omitempty"`
	WinnerInvestorID *int64          `json:"winner_investor_id,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// Bid is one investor's priced claim on a section. Amount and investor are
// immutable after creation; only Status transitions.
type Bid struct {
	ID         uuid.UUID       `json:"id"`
	SectionID  int64           `json:"section_id"`
	InvestorID int64           `json:"investor_id"`
	Amount     decimal.Decimal `json:"amount"`
	BidTime    time.Time       `json:"bid_time"`
	Status     BidStatus       `json:"status"`
}

// Investor is a bidding party. Identity is externally owned; the engine only
// checks existence.
type Investor struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// SeasonInfo is the season read model, computed purely from the current date.
type SeasonInfo struct {
	CurrentPeriod    string    `json:"current_period"`
	PeriodStart      time.Time `json:"period_start"`
	PeriodEnd        time.Time `json:"period_end"`
	BiddingOpenDate  time.Time `json:"bidding_open_date"`
	BiddingCloseDate time.Time `json:"bidding_close_date"`
	IsBiddingOpen    bool      `json:"is_bidding_open"`
	DaysUntilClose   int       `json:"days_until_close"`
}
