package upgrade

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/portsidehq/portside/internal/access"
	"github.com/portsidehq/portside/internal/idgen"
	"github.com/portsidehq/portside/internal/metrics"
	"github.com/portsidehq/portside/internal/syncutil"
	"github.com/portsidehq/portside/internal/tier"
)

// Service implements the tier change request workflow.
type Service struct {
	store    Store
	accounts Accounts
	notify   Notifier

	// accountLocks serializes Create per account so two concurrent requests
	// cannot both pass the pending check.
	accountLocks *syncutil.ContextShardedMutex
}

// NewService creates a new tier change request service.
func NewService(store Store, accounts Accounts, notify Notifier) *Service {
	if notify == nil {
		notify = NopNotifier{}
	}
	return &Service{
		store:        store,
		accounts:     accounts,
		notify:       notify,
		accountLocks: syncutil.NewContextShardedMutex(),
	}
}

// Create files a new tier change request for the account.
//
// Rules:
//   - vendor notes are optional; when provided they must be 20..500
//     characters
//   - upgrades must target a tier strictly above the current one,
//     downgrades strictly below
//   - at most one pending request per (account, type)
//
// Downgrade requests carry an impact report computed from current usage.
func (s *Service) Create(ctx context.Context, accountID string, rt RequestType, requested tier.Tier, vendorNotes string) (*Request, error) {
	if !rt.Valid() {
		return nil, fmt.Errorf("%w: unknown request type %q", ErrValidation, rt)
	}
	if !requested.Valid() {
		return nil, fmt.Errorf("%w: unknown tier %q", ErrValidation, requested)
	}
	notes := strings.TrimSpace(vendorNotes)
	if notes != "" && (len(notes) < MinNotesLen || len(notes) > MaxNotesLen) {
		return nil, fmt.Errorf("%w: vendor notes must be %d-%d characters", ErrValidation, MinNotesLen, MaxNotesLen)
	}

	current, err := s.accounts.GetTier(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("get account tier: %w", err)
	}

	switch rt {
	case TypeUpgrade:
		switch requested.Compare(current) {
		case 0:
			return nil, ErrSameTier
		case -1:
			return nil, ErrNotAnUpgrade
		}
	case TypeDowngrade:
		switch requested.Compare(current) {
		case 0:
			return nil, ErrSameTier
		case 1:
			return nil, ErrNotADowngrade
		}
	}

	var impact *access.DowngradeReport
	if rt == TypeDowngrade {
		usage, err := s.accounts.GetUsage(ctx, accountID)
		if err != nil {
			return nil, fmt.Errorf("get account usage: %w", err)
		}
		impact = access.ValidateDowngrade(current, requested, usage)
	}

	unlock, err := s.accountLocks.LockContext(ctx, accountID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if existing, err := s.store.GetPending(ctx, accountID, rt); err == nil && existing != nil {
		return nil, ErrDuplicatePending
	}

	now := time.Now()
	r := &Request{
		ID:            idgen.WithPrefix("upr_"),
		AccountID:     accountID,
		RequestType:   rt,
		CurrentTier:   current,
		RequestedTier: requested,
		Status:        StatusPending,
		VendorNotes:   notes,
		Impact:        impact,
		RequestedAt:   now,
		UpdatedAt:     now,
	}

	if err := s.store.Create(ctx, r); err != nil {
		return nil, err
	}

	metrics.TierRequestsTotal.WithLabelValues(string(rt)).Inc()
	metrics.TierRequestTransitions.WithLabelValues("created").Inc()
	s.notify.RequestCreated(r)
	return r, nil
}

// Get returns a request by ID.
func (s *Service) Get(ctx context.Context, id string) (*Request, error) {
	return s.store.Get(ctx, id)
}

// GetPending returns the account's pending request of the given type.
func (s *Service) GetPending(ctx context.Context, accountID string, rt RequestType) (*Request, error) {
	return s.store.GetPending(ctx, accountID, rt)
}

// GetMostRecent returns the account's latest request regardless of status.
func (s *Service) GetMostRecent(ctx context.Context, accountID string) (*Request, error) {
	return s.store.GetMostRecent(ctx, accountID)
}

// atomicApprover is implemented by stores that can persist the approval
// decision and the account tier change as a single unit.
type atomicApprover interface {
	ApprovePending(ctx context.Context, r *Request) error
}

// Approve marks a pending request approved and applies the requested tier
// to the account. The two writes happen in one transaction where the store
// supports it; otherwise the decision is a conditional transition followed
// by the tier change, with a compensating revert on failure. A request that
// lost a concurrent decision yields InvalidStatusError.
func (s *Service) Approve(ctx context.Context, id, adminID, adminNotes string) (*Request, error) {
	if len(adminNotes) > MaxAdminNoteLen {
		return nil, fmt.Errorf("%w: admin notes must be at most %d characters", ErrValidation, MaxAdminNoteLen)
	}

	r, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !r.IsPending() {
		return nil, &InvalidStatusError{Actual: r.Status}
	}

	now := time.Now()
	r.Status = StatusApproved
	r.AdminNotes = adminNotes
	r.DecidedBy = adminID
	r.DecidedAt = &now
	r.UpdatedAt = now

	if aa, ok := s.store.(atomicApprover); ok {
		if err := aa.ApprovePending(ctx, r); err != nil {
			return nil, err
		}
		metrics.VendorTierChanges.WithLabelValues(string(r.RequestedTier)).Inc()
	} else {
		if err := s.store.UpdatePending(ctx, r); err != nil {
			return nil, err
		}
		if err := s.accounts.SetTier(ctx, r.AccountID, r.RequestedTier); err != nil {
			// Compensate: the decision must not stand if the tier didn't
			// change. A failed revert is reported, not swallowed.
			revert := *r
			revert.Status = StatusPending
			revert.AdminNotes = ""
			revert.DecidedBy = ""
			revert.DecidedAt = nil
			revert.UpdatedAt = time.Now()
			if rerr := s.store.Update(ctx, &revert); rerr != nil {
				return nil, fmt.Errorf("apply tier change: %w (revert failed: %v)", err, rerr)
			}
			return nil, fmt.Errorf("apply tier change: %w", err)
		}
	}

	metrics.TierRequestTransitions.WithLabelValues("approved").Inc()
	s.notify.RequestApproved(r)
	return r, nil
}

// Reject marks a pending request rejected. A reason is required.
func (s *Service) Reject(ctx context.Context, id, adminID, reason string) (*Request, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, fmt.Errorf("%w: rejection reason is required", ErrValidation)
	}
	if len(reason) > MaxReasonLen {
		return nil, fmt.Errorf("%w: rejection reason must be at most %d characters", ErrValidation, MaxReasonLen)
	}

	r, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !r.IsPending() {
		return nil, &InvalidStatusError{Actual: r.Status}
	}

	now := time.Now()
	r.Status = StatusRejected
	r.RejectionReason = reason
	r.DecidedBy = adminID
	r.DecidedAt = &now
	r.UpdatedAt = now

	if err := s.store.UpdatePending(ctx, r); err != nil {
		return nil, err
	}

	metrics.TierRequestTransitions.WithLabelValues("rejected").Inc()
	s.notify.RequestRejected(r)
	return r, nil
}

// Cancel withdraws a pending request. Only the owning account may cancel.
func (s *Service) Cancel(ctx context.Context, id, accountID string) (*Request, error) {
	r, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.AccountID != accountID {
		return nil, ErrForbidden
	}
	if !r.IsPending() {
		return nil, &InvalidStatusError{Actual: r.Status}
	}

	now := time.Now()
	r.Status = StatusCancelled
	r.CancelledAt = &now
	r.UpdatedAt = now

	if err := s.store.UpdatePending(ctx, r); err != nil {
		return nil, err
	}

	metrics.TierRequestTransitions.WithLabelValues("cancelled").Inc()
	s.notify.RequestCancelled(r)
	return r, nil
}

// List returns requests matching the query for the admin surface.
// Results are ordered newest first. The store returns up to Limit+1 rows so
// callers can detect another page.
func (s *Service) List(ctx context.Context, q ListQuery) ([]*Request, error) {
	if q.Limit <= 0 || q.Limit > 100 {
		q.Limit = 50
	}
	return s.store.List(ctx, q)
}
