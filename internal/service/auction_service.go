package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"section_bidding/internal/auction"
	"section_bidding/internal/config"
	"section_bidding/internal/events"
	"section_bidding/internal/models"
	"section_bidding/internal/store"
)

var (
	ErrSectionNotFound  = errors.New("section not found")
	ErrInvestorNotFound = errors.New("investor not found")
	ErrNoWinner         = errors.New("section has no winner yet")
	ErrNotPermitted     = errors.New("operation not permitted for this actor")
	ErrConflict         = errors.New("section is busy, retry the request")

	// State-machine violations come straight from the engine so their
	// messages keep the offending values.
	ErrBidNotFound        = auction.ErrBidNotFound
	ErrSectionClosed      = auction.ErrSectionClosed
	ErrDeadlinePassed     = auction.ErrDeadlinePassed
	ErrBidTooLow          = auction.ErrBidTooLow
	ErrWinnerBidImmutable = auction.ErrWinnerBidImmutable
	ErrAlreadyClosed      = auction.ErrAlreadyClosed
)

// CatalogStore is the read side the engine needs from the catalog module.
type CatalogStore interface {
	GetSection(ctx context.Context, sectionID int64) (*models.Section, error)
	GetInvestor(ctx context.Context, investorID int64) (*models.Investor, error)
}

// LedgerStore is the persistence surface for bids and section mutations.
// UpdateSection must serialize fn against every other mutation of the same
// section.
type LedgerStore interface {
	ListBidsBySection(ctx context.Context, sectionID int64) ([]models.Bid, error)
	GetSectionForBid(ctx context.Context, bidID string) (int64, bool, error)
	ListDueSectionIDs(ctx context.Context, today time.Time) ([]int64, error)
	ListSectionIDs(ctx context.Context) ([]int64, error)
	UpdateSection(ctx context.Context, sectionID int64, fn func(st *auction.SectionState) (auction.Changes, error)) error
}

// SectionCache is the optional read-projection cache. It is never consulted
// when validating a mutation.
type SectionCache interface {
	GetCachedSection(ctx context.Context, sectionID int64) (*models.Section, error)
	CacheSection(ctx context.Context, sec *models.Section, ttl time.Duration) error
	InvalidateSection(ctx context.Context, sectionID int64) error
}

// Actor identifies who is performing a mutation. Authentication happens
// upstream; the engine only checks capabilities.
type Actor struct {
	InvestorID int64
	Admin      bool
}

type AuctionService struct {
	logger    *log.Logger
	catalog   CatalogStore
	ledger    LedgerStore
	cache     SectionCache
	publisher *events.Publisher
	config    *config.Config

	now func() time.Time
}

func NewAuctionService(logger *log.Logger, catalog CatalogStore, ledger LedgerStore, cache SectionCache, publisher *events.Publisher, cfg *config.Config) *AuctionService {
	return &AuctionService{
		logger:    logger,
		catalog:   catalog,
		ledger:    ledger,
		cache:     cache,
		publisher: publisher,
		config:    cfg,
		now:       time.Now,
	}
}

// PlaceBid validates and applies a bid against a section. The whole
// validate-then-write runs under the section's lock in the ledger, so two
// concurrent bids can never both win the PENDING slot.
func (s *AuctionService) PlaceBid(ctx context.Context, sectionID, investorID int64, amount decimal.Decimal) (*models.Bid, error) {
	// Section existence is reported ahead of the investor check; the
	// authoritative existence check still happens under the section lock.
	sec, err := s.catalog.GetSection(ctx, sectionID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up section: %w", err)
	}
	if sec == nil {
		return nil, ErrSectionNotFound
	}

	investor, err := s.catalog.GetInvestor(ctx, investorID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up investor: %w", err)
	}
	if investor == nil {
		return nil, ErrInvestorNotFound
	}

	var placed models.Bid
	err = s.ledger.UpdateSection(ctx, sectionID, func(st *auction.SectionState) (auction.Changes, error) {
		bid, changes, err := auction.PlaceBid(st, investorID, amount, s.now())
		if err != nil {
			return auction.Changes{}, err
		}
		placed = bid
		return changes, nil
	})
	if err != nil {
		return nil, s.mapLedgerError(err)
	}

	s.invalidate(ctx, sectionID)
	amt := placed.Amount
	s.publisher.Publish(events.Event{
		Type:       events.TypeBidPlaced,
		SectionID:  sectionID,
		BidID:      placed.ID.String(),
		InvestorID: investorID,
		Amount:     &amt,
		Timestamp:  placed.BidTime,
	})

	return &placed, nil
}

// CancelBid removes a non-terminal bid. Cancelling the standing bid promotes
// the next-best OUTBID bid or resets the section to its base price.
func (s *AuctionService) CancelBid(ctx context.Context, actor Actor, bidID uuid.UUID) error {
	sectionID, found, err := s.ledger.GetSectionForBid(ctx, bidID.String())
	if err != nil {
		return fmt.Errorf("failed to resolve bid: %w", err)
	}
	if !found {
		return ErrBidNotFound
	}

	err = s.ledger.UpdateSection(ctx, sectionID, func(st *auction.SectionState) (auction.Changes, error) {
		if !actor.Admin {
			owner, ok := bidOwner(st.Bids, bidID)
			if !ok {
				return auction.Changes{}, auction.ErrBidNotFound
			}
			if owner != actor.InvestorID {
				return auction.Changes{}, ErrNotPermitted
			}
		}
		return auction.CancelBid(st, bidID, s.now())
	})
	if err != nil {
		return s.mapLedgerError(err)
	}

	s.invalidate(ctx, sectionID)
	s.publisher.Publish(events.Event{
		Type:      events.TypeBidCancelled,
		SectionID: sectionID,
		BidID:     bidID.String(),
	})
	return nil
}

// CloseSection finalizes a section, assigning the standing bidder as winner.
// A section without bids stays open at its base price.
func (s *AuctionService) CloseSection(ctx context.Context, actor Actor, sectionID int64) (*models.Section, error) {
	if !actor.Admin {
		return nil, ErrNotPermitted
	}

	var closed models.Section
	err := s.ledger.UpdateSection(ctx, sectionID, func(st *auction.SectionState) (auction.Changes, error) {
		changes, err := auction.Close(st, s.now())
		if err != nil {
			return auction.Changes{}, err
		}
		closed = changes.Section
		return changes, nil
	})
	if err != nil {
		return nil, s.mapLedgerError(err)
	}

	s.invalidate(ctx, sectionID)
	s.publisher.Publish(events.Event{
		Type:             events.TypeSectionClosed,
		SectionID:        sectionID,
		WinnerInvestorID: closed.WinnerInvestorID,
	})
	return &closed, nil
}

// AutoCloseDueSections closes every section whose deadline fell before today.
// Sections are processed in parallel with per-section failures logged and
// counted, never aborting the sweep. Returns the number of sections closed.
func (s *AuctionService) AutoCloseDueSections(ctx context.Context, today time.Time) (int, error) {
	ids, err := s.ledger.ListDueSectionIDs(ctx, today)
	if err != nil {
		return 0, fmt.Errorf("failed to list due sections: %w", err)
	}

	var closedCount, failedCount atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.sweepWorkers())

	for _, id := range ids {
		sectionID := id
		g.Go(func() error {
			var becameClosed bool
			err := s.ledger.UpdateSection(gctx, sectionID, func(st *auction.SectionState) (auction.Changes, error) {
				changes, err := auction.Close(st, s.now())
				if err == nil {
					becameClosed = changes.Section.Status.Kind == models.StatusClosed
				}
				return changes, err
			})
			switch {
			case err == nil:
				s.invalidate(gctx, sectionID)
				if becameClosed {
					closedCount.Add(1)
					s.publisher.Publish(events.Event{Type: events.TypeSectionClosed, SectionID: sectionID})
				}
			case errors.Is(err, auction.ErrAlreadyClosed):
				// Raced with a manual close between the due-query and the lock.
			default:
				failedCount.Add(1)
				s.logger.Printf("Auto-close: section %d failed: %v", sectionID, err)
			}
			return nil
		})
	}
	_ = g.Wait()

	if failed := failedCount.Load(); failed > 0 {
		s.logger.Printf("Auto-close sweep finished with %d failures (%d closed of %d due)", failed, closedCount.Load(), len(ids))
	}
	return int(closedCount.Load()), nil
}

// AdvanceSeason resets every section for the next bidding season: base prices
// grow by the configured rate, winners are cleared and a new deadline is set.
// Bid history is left in place for audit.
func (s *AuctionService) AdvanceSeason(ctx context.Context) error {
	now := s.now()
	ids, err := s.ledger.ListSectionIDs(ctx)
	if err != nil {
		return fmt.Errorf("failed to list sections: %w", err)
	}

	deadline := auction.NextSeasonDeadline(now, s.config.DeadlineLeadDays)
	rate := s.config.SeasonIncreaseRate

	var failed int
	for _, id := range ids {
		err := s.ledger.UpdateSection(ctx, id, func(st *auction.SectionState) (auction.Changes, error) {
			return auction.AdvanceSeason(&st.Section, rate, deadline, now), nil
		})
		if err != nil {
			failed++
			s.logger.Printf("Season advance: section %d failed: %v", id, err)
			continue
		}
		s.invalidate(ctx, id)
	}

	s.publisher.Publish(events.Event{Type: events.TypeSeasonAdvanced, Timestamp: now})
	if failed > 0 {
		s.logger.Printf("Season advance finished with %d of %d sections failed", failed, len(ids))
	}
	s.logger.Printf("Season advanced: %d sections reset, next deadline %s", len(ids)-failed, deadline.Format("2006-01-02"))
	return nil
}

// CurrentSeasonInfo computes the season read model from the wall clock.
func (s *AuctionService) CurrentSeasonInfo() models.SeasonInfo {
	return auction.SeasonInfo(s.now(), s.config.DeadlineLeadDays)
}

// GetSection returns a section snapshot, served from the cache when fresh.
func (s *AuctionService) GetSection(ctx context.Context, sectionID int64) (*models.Section, error) {
	if s.cache != nil {
		cached, err := s.cache.GetCachedSection(ctx, sectionID)
		if err != nil {
			s.logger.Printf("Warning: section cache read failed for %d: %v", sectionID, err)
		} else if cached != nil {
			return cached, nil
		}
	}

	sec, err := s.catalog.GetSection(ctx, sectionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get section: %w", err)
	}
	if sec == nil {
		return nil, ErrSectionNotFound
	}

	if s.cache != nil {
		if err := s.cache.CacheSection(ctx, sec, s.config.SectionCacheTTL); err != nil {
			s.logger.Printf("Warning: section cache write failed for %d: %v", sectionID, err)
		}
	}
	return sec, nil
}

// ListSectionBids returns the bid history of a section, highest amount first.
func (s *AuctionService) ListSectionBids(ctx context.Context, sectionID int64) ([]models.Bid, error) {
	sec, err := s.catalog.GetSection(ctx, sectionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get section: %w", err)
	}
	if sec == nil {
		return nil, ErrSectionNotFound
	}
	return s.ledger.ListBidsBySection(ctx, sectionID)
}

// GetSectionWinner returns the WINNER bid of a closed section.
func (s *AuctionService) GetSectionWinner(ctx context.Context, sectionID int64) (*models.Bid, error) {
	bids, err := s.ListSectionBids(ctx, sectionID)
	if err != nil {
		return nil, err
	}
	for i := range bids {
		if bids[i].Status == models.BidStatusWinner {
			return &bids[i], nil
		}
	}
	return nil, ErrNoWinner
}

func (s *AuctionService) mapLedgerError(err error) error {
	switch {
	case errors.Is(err, store.ErrSectionNotFound):
		return ErrSectionNotFound
	case errors.Is(err, store.ErrTxConflict):
		s.logger.Printf("Section transaction conflict after retries: %v", err)
		return ErrConflict
	default:
		return err
	}
}

func (s *AuctionService) invalidate(ctx context.Context, sectionID int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateSection(ctx, sectionID); err != nil {
		s.logger.Printf("Warning: failed to invalidate section %d cache: %v", sectionID, err)
	}
}

func (s *AuctionService) sweepWorkers() int {
	if s.config.SweepWorkers > 0 {
		return s.config.SweepWorkers
	}
	return 1
}

func bidOwner(bids []models.Bid, bidID uuid.UUID) (int64, bool) {
	for _, b := range bids {
		if b.ID == bidID {
			return b.InvestorID, true
		}
	}
	return 0, false
}
