package upgrade

import (
	"context"
	"log/slog"
	"sort"
	"sync"
)

// MemoryStore implements Store using in-memory maps (for demo/testing).
type MemoryStore struct {
	mu        sync.RWMutex
	requests  map[string]*Request // id → request
	byAccount map[string][]string // accountID → request ids, append order
}

// NewMemoryStore creates an in-memory request store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		requests:  make(map[string]*Request),
		byAccount: make(map[string][]string),
	}
}

func (s *MemoryStore) Create(_ context.Context, r *Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range s.byAccount[r.AccountID] {
		existing := s.requests[id]
		if existing != nil && existing.RequestType == r.RequestType && existing.IsPending() {
			return ErrDuplicatePending
		}
	}

	cp := *r
	s.requests[r.ID] = &cp
	s.byAccount[r.AccountID] = append(s.byAccount[r.AccountID], r.ID)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.requests[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *MemoryStore) GetPending(_ context.Context, accountID string, rt RequestType) (*Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// The create-time invariant makes more than one pending request per
	// (account, type) structurally impossible, but tolerate it defensively:
	// return the most recently filed one and flag the anomaly.
	var pending []*Request
	for _, id := range s.byAccount[accountID] {
		r := s.requests[id]
		if r != nil && r.RequestType == rt && r.IsPending() {
			pending = append(pending, r)
		}
	}
	if len(pending) == 0 {
		return nil, ErrNotFound
	}
	latest := pending[0]
	for _, r := range pending[1:] {
		if r.RequestedAt.After(latest.RequestedAt) {
			latest = r
		}
	}
	if len(pending) > 1 {
		slog.Warn("multiple pending tier requests for account",
			"accountId", accountID, "requestType", string(rt), "count", len(pending))
	}
	cp := *latest
	return &cp, nil
}

func (s *MemoryStore) GetMostRecent(_ context.Context, accountID string) (*Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *Request
	for _, id := range s.byAccount[accountID] {
		r := s.requests[id]
		if r == nil {
			continue
		}
		if latest == nil || r.RequestedAt.After(latest.RequestedAt) {
			latest = r
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

func (s *MemoryStore) Update(_ context.Context, r *Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.requests[r.ID]; !ok {
		return ErrNotFound
	}
	cp := *r
	s.requests[r.ID] = &cp
	return nil
}

func (s *MemoryStore) UpdatePending(_ context.Context, r *Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.requests[r.ID]
	if !ok {
		return ErrNotFound
	}
	if !cur.IsPending() {
		return &InvalidStatusError{Actual: cur.Status}
	}
	cp := *r
	s.requests[r.ID] = &cp
	return nil
}

func (s *MemoryStore) List(_ context.Context, q ListQuery) ([]*Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var all []*Request
	for _, r := range s.requests {
		if q.Status != "" && r.Status != q.Status {
			continue
		}
		if q.Type != "" && r.RequestType != q.Type {
			continue
		}
		all = append(all, r)
	}

	// Newest first, id as tiebreaker to keep pagination stable.
	sort.Slice(all, func(i, j int) bool {
		if !all[i].RequestedAt.Equal(all[j].RequestedAt) {
			return all[i].RequestedAt.After(all[j].RequestedAt)
		}
		return all[i].ID > all[j].ID
	})

	var result []*Request
	for _, r := range all {
		if !q.AfterRequestedAt.IsZero() {
			if r.RequestedAt.After(q.AfterRequestedAt) {
				continue
			}
			if r.RequestedAt.Equal(q.AfterRequestedAt) && r.ID >= q.AfterID {
				continue
			}
		}
		cp := *r
		result = append(result, &cp)
		if len(result) > q.Limit {
			break
		}
	}
	return result, nil
}
