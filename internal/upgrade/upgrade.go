// Package upgrade implements the tier change request workflow.
//
// Vendors on a paid ladder don't switch tiers directly: they file a request
// (upgrade or downgrade) that an admin approves or rejects. Approval is the
// only path that mutates the account's tier.
//
// Flow:
//  1. Vendor files a request with notes → pending
//  2. At most one pending request per (account, type) at any time
//  3. Admin approves → account tier changes, request approved
//  4. Admin rejects with a reason → request rejected
//  5. Vendor may cancel their own pending request
//
// Approved, rejected, and cancelled are terminal.
package upgrade

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/portsidehq/portside/internal/access"
	"github.com/portsidehq/portside/internal/tier"
)

var (
	ErrNotFound         = errors.New("upgrade: request not found")
	ErrInvalidStatus    = errors.New("upgrade: request is not pending")
	ErrForbidden        = errors.New("upgrade: caller does not own this request")
	ErrDuplicatePending = errors.New("upgrade: account already has a pending request of this type")
	ErrSameTier         = errors.New("upgrade: requested tier equals current tier")
	ErrNotAnUpgrade     = errors.New("upgrade: requested tier must be above the current tier")
	ErrNotADowngrade    = errors.New("upgrade: requested tier must be below the current tier")
	ErrValidation       = errors.New("upgrade: validation failed")
)

// InvalidStatusError reports a transition attempted on a request that is no
// longer pending, naming the status actually found so the caller can tell
// an already-approved request from a cancelled one.
type InvalidStatusError struct {
	Actual Status
}

func (e *InvalidStatusError) Error() string {
	return fmt.Sprintf("upgrade: request is not pending (status %s)", e.Actual)
}

func (e *InvalidStatusError) Unwrap() error { return ErrInvalidStatus }

// Status represents the state of a tier change request.
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusCancelled Status = "cancelled"
)

// RequestType distinguishes upward from downward tier changes.
type RequestType string

const (
	TypeUpgrade   RequestType = "upgrade"
	TypeDowngrade RequestType = "downgrade"
)

// Valid reports whether rt is a known request type.
func (rt RequestType) Valid() bool {
	return rt == TypeUpgrade || rt == TypeDowngrade
}

// Vendor note length bounds, and the rejection reason cap.
const (
	MinNotesLen     = 20
	MaxNotesLen     = 500
	MaxReasonLen    = 1000
	MaxAdminNoteLen = 1000
)

// Request represents a tier change request.
type Request struct {
	ID            string      `json:"id"`
	AccountID     string      `json:"accountId"`
	RequestType   RequestType `json:"requestType"`
	CurrentTier   tier.Tier   `json:"currentTier"`
	RequestedTier tier.Tier   `json:"requestedTier"`
	Status        Status      `json:"status"`

	VendorNotes     string `json:"vendorNotes"`
	AdminNotes      string `json:"adminNotes,omitempty"`
	RejectionReason string `json:"rejectionReason,omitempty"`

	// Impact is populated for downgrade requests at creation time so the
	// reviewing admin sees what the account stands to lose.
	Impact *access.DowngradeReport `json:"impact,omitempty"`

	RequestedAt time.Time  `json:"requestedAt"`
	DecidedAt   *time.Time `json:"decidedAt,omitempty"`
	DecidedBy   string     `json:"decidedBy,omitempty"`
	CancelledAt *time.Time `json:"cancelledAt,omitempty"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// IsPending returns true while the request awaits a decision.
func (r *Request) IsPending() bool {
	return r.Status == StatusPending
}

// IsTerminal returns true once the request can no longer change state.
func (r *Request) IsTerminal() bool {
	return r.Status == StatusApproved || r.Status == StatusRejected || r.Status == StatusCancelled
}

// CreateRequest is the request body for filing a tier change request.
// Vendor notes are optional; bounds apply only when notes are provided.
type CreateRequest struct {
	RequestType   string `json:"requestType" binding:"required"`
	RequestedTier string `json:"requestedTier" binding:"required"`
	VendorNotes   string `json:"vendorNotes"`
}

// DecideRequest is the request body for approve/reject endpoints.
type DecideRequest struct {
	AdminNotes      string `json:"adminNotes,omitempty"`
	RejectionReason string `json:"rejectionReason,omitempty"`
}

// ListQuery filters the admin request listing.
type ListQuery struct {
	Status Status      // empty matches all
	Type   RequestType // empty matches all
	Limit  int
	// After restricts results to requests strictly older than this position
	// (keyset pagination on requested_at, id).
	AfterRequestedAt time.Time
	AfterID          string
}

// Store persists tier change requests.
//
// Create must enforce the one-pending-per-(account,type) invariant and
// return ErrDuplicatePending on conflict.
type Store interface {
	Create(ctx context.Context, r *Request) error
	Get(ctx context.Context, id string) (*Request, error)
	GetPending(ctx context.Context, accountID string, rt RequestType) (*Request, error)
	GetMostRecent(ctx context.Context, accountID string) (*Request, error)
	Update(ctx context.Context, r *Request) error

	// UpdatePending persists r only if the stored request is still pending,
	// so concurrent decisions on the same request yield exactly one winner.
	// The loser gets an InvalidStatusError naming the status found.
	UpdatePending(ctx context.Context, r *Request) error

	List(ctx context.Context, q ListQuery) ([]*Request, error)
}

// Accounts exposes the slice of vendor account state the workflow needs:
// reading the current tier, applying a new one, and a usage snapshot for
// downgrade impact reports.
type Accounts interface {
	GetTier(ctx context.Context, accountID string) (tier.Tier, error)
	SetTier(ctx context.Context, accountID string, t tier.Tier) error
	GetUsage(ctx context.Context, accountID string) (access.Usage, error)
}

// Notifier receives request lifecycle events. Implementations must not
// block; delivery is best-effort.
type Notifier interface {
	RequestCreated(r *Request)
	RequestApproved(r *Request)
	RequestRejected(r *Request)
	RequestCancelled(r *Request)
}

// NopNotifier discards all events.
type NopNotifier struct{}

func (NopNotifier) RequestCreated(*Request)   {}
func (NopNotifier) RequestApproved(*Request)  {}
func (NopNotifier) RequestRejected(*Request)  {}
func (NopNotifier) RequestCancelled(*Request) {}
