package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"section_bidding/internal/auction"
	"section_bidding/internal/models"
)

// MemoryStore is an in-process implementation of the catalog/ledger surface.
// Serialization per section is a plain mutex per section id instead of a row
// lock. Used by tests and as a development mode without Postgres.
type MemoryStore struct {
	mu        sync.RWMutex
	sections  map[int64]*models.Section
	bids      map[int64][]models.Bid
	investors map[int64]*models.Investor
	locks     map[int64]*sync.Mutex
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sections:  make(map[int64]*models.Section),
		bids:      make(map[int64][]models.Bid),
		investors: make(map[int64]*models.Investor),
		locks:     make(map[int64]*sync.Mutex),
	}
}

// AddSection seeds a section. Intended for startup fixtures and tests.
func (s *MemoryStore) AddSection(sec models.Section) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := sec
	s.sections[sec.ID] = &cp
	if _, ok := s.locks[sec.ID]; !ok {
		s.locks[sec.ID] = &sync.Mutex{}
	}
}

// AddInvestor seeds an investor.
func (s *MemoryStore) AddInvestor(inv models.Investor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := inv
	s.investors[inv.ID] = &cp
}

func (s *MemoryStore) GetSection(_ context.Context, sectionID int64) (*models.Section, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sec, ok := s.sections[sectionID]
	if !ok {
		return nil, nil
	}
	cp := *sec
	return &cp, nil
}

func (s *MemoryStore) GetInvestor(_ context.Context, investorID int64) (*models.Investor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inv, ok := s.investors[investorID]
	if !ok {
		return nil, nil
	}
	cp := *inv
	return &cp, nil
}

func (s *MemoryStore) ListBidsBySection(_ context.Context, sectionID int64) ([]models.Bid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	bids := append([]models.Bid(nil), s.bids[sectionID]...)
	sort.Slice(bids, func(i, j int) bool {
		if c := bids[i].Amount.Cmp(bids[j].Amount); c != 0 {
			return c > 0
		}
		return bids[i].BidTime.Before(bids[j].BidTime)
	})
	return bids, nil
}

func (s *MemoryStore) GetSectionForBid(_ context.Context, bidID string) (int64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for sectionID, bids := range s.bids {
		for _, b := range bids {
			if b.ID.String() == bidID {
				return sectionID, true, nil
			}
		}
	}
	return 0, false, nil
}

func (s *MemoryStore) ListDueSectionIDs(_ context.Context, today time.Time) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []int64
	for id, sec := range s.sections {
		if sec.Status.Kind == models.StatusClosed || sec.Deadline == nil {
			continue
		}
		if sec.Deadline.Before(today) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (s *MemoryStore) ListSectionIDs(_ context.Context) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]int64, 0, len(s.sections))
	for id := range s.sections {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// UpdateSection serializes fn against all other mutations of the same
// section via its mutex. Other sections are untouched and proceed in
// parallel.
func (s *MemoryStore) UpdateSection(_ context.Context, sectionID int64, fn func(st *auction.SectionState) (auction.Changes, error)) error {
	s.mu.RLock()
	lock, ok := s.locks[sectionID]
	s.mu.RUnlock()
	if !ok {
		return ErrSectionNotFound
	}

	lock.Lock()
	defer lock.Unlock()

	s.mu.RLock()
	sec := s.sections[sectionID]
	if sec == nil {
		s.mu.RUnlock()
		return ErrSectionNotFound
	}
	st := &auction.SectionState{
		Section: *sec,
		Bids:    append([]models.Bid(nil), s.bids[sectionID]...),
	}
	s.mu.RUnlock()

	changes, err := fn(st)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	cp := changes.Section
	s.sections[sectionID] = &cp

	bids := s.bids[sectionID]
	for _, upd := range changes.UpdatedBids {
		for i := range bids {
			if bids[i].ID == upd.ID {
				bids[i] = upd
			}
		}
	}
	bids = append(bids, changes.CreatedBids...)
	for _, del := range changes.DeletedBids {
		for i := range bids {
			if bids[i].ID == del {
				bids = append(bids[:i], bids[i+1:]...)
				break
			}
		}
	}
	s.bids[sectionID] = bids
	return nil
}
