package store

import (
	"context"
	"fmt"
	"sync"

	"onboard/internal/affiliate/models"
	id "onboard/pkg/domain"
	"onboard/pkg/email"
	"onboard/pkg/platform/sentinel"
)

// InMemoryStore enforces the same uniqueness rules as the Postgres schema.
type InMemoryStore struct {
	mu        sync.RWMutex
	byID      map[id.AffiliateID]*models.Affiliate
	byEmail   map[string]id.AffiliateID
	bySession map[id.SessionID]id.AffiliateID
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		byID:      make(map[id.AffiliateID]*models.Affiliate),
		byEmail:   make(map[string]id.AffiliateID),
		bySession: make(map[id.SessionID]id.AffiliateID),
	}
}

func (s *InMemoryStore) Create(_ context.Context, a *models.Affiliate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := email.Normalize(a.ContactEmail)
	if _, ok := s.byID[a.ID]; ok {
		return fmt.Errorf("create affiliate: %w", sentinel.ErrConflict)
	}
	if _, ok := s.byEmail[key]; ok {
		return fmt.Errorf("create affiliate: %w", sentinel.ErrConflict)
	}
	if _, ok := s.bySession[a.SourceSessionID]; ok {
		return fmt.Errorf("create affiliate: %w", sentinel.ErrConflict)
	}
	stored := clone(a)
	s.byID[a.ID] = stored
	s.byEmail[key] = a.ID
	s.bySession[a.SourceSessionID] = a.ID
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, affiliateID id.AffiliateID) (*models.Affiliate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.byID[affiliateID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return clone(a), nil
}

func (s *InMemoryStore) ExistsByContactEmail(_ context.Context, address string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.byEmail[email.Normalize(address)]
	return ok, nil
}

func (s *InMemoryStore) Update(_ context.Context, affiliateID id.AffiliateID, review models.Review) (*models.Affiliate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.byID[affiliateID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if err := a.CanApplyReview(review); err != nil {
		return nil, err
	}
	a.ApplyReview(review)
	return clone(a), nil
}

// Count reports how many records exist. Tests use it to check creation happened once.
func (s *InMemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

func clone(a *models.Affiliate) *models.Affiliate {
	out := *a
	if a.ReviewedAt != nil {
		t := *a.ReviewedAt
		out.ReviewedAt = &t
	}
	return &out
}
