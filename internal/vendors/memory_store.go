package vendors

import (
	"context"
	"sync"

	"github.com/portsidehq/portside/internal/tier"
)

// MemoryStore implements Store using in-memory maps (for demo/testing).
type MemoryStore struct {
	mu        sync.RWMutex
	profiles  map[string]*Profile // id → profile
	bySlug    map[string]string   // slug → id
	byAccount map[string]string   // accountID → id
}

// NewMemoryStore creates an in-memory profile store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		profiles:  make(map[string]*Profile),
		bySlug:    make(map[string]string),
		byAccount: make(map[string]string),
	}
}

func (s *MemoryStore) Create(_ context.Context, p *Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byAccount[p.AccountID]; ok {
		return ErrAccountExists
	}
	if _, ok := s.bySlug[p.Slug]; ok {
		return ErrSlugTaken
	}

	cp := *p
	s.profiles[p.ID] = &cp
	s.bySlug[p.Slug] = p.ID
	s.byAccount[p.AccountID] = p.ID
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) GetBySlug(_ context.Context, slug string) (*Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.bySlug[slug]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s.profiles[id]
	return &cp, nil
}

func (s *MemoryStore) GetByAccount(_ context.Context, accountID string) (*Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byAccount[accountID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s.profiles[id]
	return &cp, nil
}

func (s *MemoryStore) Update(_ context.Context, p *Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.profiles[p.ID]
	if !ok {
		return ErrNotFound
	}
	if p.Slug != existing.Slug {
		if otherID, taken := s.bySlug[p.Slug]; taken && otherID != p.ID {
			return ErrSlugTaken
		}
		delete(s.bySlug, existing.Slug)
		s.bySlug[p.Slug] = p.ID
	}

	cp := *p
	s.profiles[p.ID] = &cp
	return nil
}

func (s *MemoryStore) UpdateTier(_ context.Context, accountID string, t tier.Tier) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byAccount[accountID]
	if !ok {
		return ErrNotFound
	}
	s.profiles[id].Tier = t
	return nil
}

func (s *MemoryStore) List(_ context.Context, publishedOnly bool, limit int) ([]*Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*Profile
	for _, p := range s.profiles {
		if publishedOnly && !p.Published {
			continue
		}
		cp := *p
		result = append(result, &cp)
		if len(result) >= limit {
			break
		}
	}
	return result, nil
}
