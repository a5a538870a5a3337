package upgrade

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/portsidehq/portside/internal/access"
	"github.com/portsidehq/portside/internal/tier"
)

// Compile-time check that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)

// TierTxWriter applies an account tier change inside an existing
// transaction, so a request approval and the tier change commit together.
// Implemented by the vendor profile Postgres store.
type TierTxWriter interface {
	UpdateTierTx(ctx context.Context, tx *sql.Tx, accountID string, t tier.Tier) error
}

// PostgresStore implements Store backed by PostgreSQL.
type PostgresStore struct {
	db    *sql.DB
	tiers TierTxWriter
}

// NewPostgresStore creates a new PostgreSQL-backed request store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// SetTierWriter enables atomic approval: the approval and the account tier
// change are persisted in one transaction.
func (p *PostgresStore) SetTierWriter(w TierTxWriter) {
	p.tiers = w
}

// Migrate creates the tier_change_requests table if it doesn't exist.
// The partial unique index backs the one-pending-per-(account,type) rule
// even if application-level checks race.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS tier_change_requests (
			id               TEXT PRIMARY KEY,
			account_id       TEXT NOT NULL,
			request_type     TEXT NOT NULL CHECK (request_type IN ('upgrade', 'downgrade')),
			current_tier     TEXT NOT NULL,
			requested_tier   TEXT NOT NULL,
			status           TEXT NOT NULL DEFAULT 'pending'
				CHECK (status IN ('pending', 'approved', 'rejected', 'cancelled')),
			vendor_notes     TEXT NOT NULL,
			admin_notes      TEXT NOT NULL DEFAULT '',
			rejection_reason TEXT NOT NULL DEFAULT '',
			impact           JSONB,
			requested_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			decided_at       TIMESTAMPTZ,
			decided_by       TEXT NOT NULL DEFAULT '',
			cancelled_at     TIMESTAMPTZ,
			updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_tier_requests_one_pending
			ON tier_change_requests(account_id, request_type)
			WHERE status = 'pending';
		CREATE INDEX IF NOT EXISTS idx_tier_requests_account ON tier_change_requests(account_id);
		CREATE INDEX IF NOT EXISTS idx_tier_requests_status ON tier_change_requests(status);
		CREATE INDEX IF NOT EXISTS idx_tier_requests_requested_at ON tier_change_requests(requested_at DESC, id DESC);
	`)
	return err
}

// Create inserts a new request, rejecting a second pending request of the
// same type for the account.
func (p *PostgresStore) Create(ctx context.Context, r *Request) error {
	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var existingID string
	err = tx.QueryRowContext(ctx, `
		SELECT id FROM tier_change_requests
		WHERE account_id = $1 AND request_type = $2 AND status = 'pending'
		LIMIT 1
	`, r.AccountID, string(r.RequestType)).Scan(&existingID)
	if err == nil {
		return ErrDuplicatePending
	}
	if err != sql.ErrNoRows {
		return fmt.Errorf("check pending: %w", err)
	}

	impact, err := marshalImpact(r.Impact)
	if err != nil {
		return fmt.Errorf("marshal impact: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO tier_change_requests (
			id, account_id, request_type,
			current_tier, requested_tier, status,
			vendor_notes, admin_notes, rejection_reason, impact,
			requested_at, decided_at, decided_by, cancelled_at, updated_at
		) VALUES (
			$1, $2, $3,
			$4, $5, $6,
			$7, $8, $9, $10,
			$11, $12, $13, $14, $15
		)
	`,
		r.ID, r.AccountID, string(r.RequestType),
		string(r.CurrentTier), string(r.RequestedTier), string(r.Status),
		r.VendorNotes, r.AdminNotes, r.RejectionReason, impact,
		r.RequestedAt, nullTimePtrOrValue(r.DecidedAt), r.DecidedBy, nullTimePtrOrValue(r.CancelledAt),
		r.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicatePending
		}
		return fmt.Errorf("insert request: %w", err)
	}

	return tx.Commit()
}

// Get retrieves a request by ID.
func (p *PostgresStore) Get(ctx context.Context, id string) (*Request, error) {
	row := p.db.QueryRowContext(ctx, selectColumns+" WHERE id = $1", id)
	r, err := scanRequest(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get request: %w", err)
	}
	return r, nil
}

// GetPending retrieves the account's pending request of the given type.
// The partial unique index makes more than one such row structurally
// impossible; if one ever appears anyway, the most recently filed request
// wins and the anomaly is flagged.
func (p *PostgresStore) GetPending(ctx context.Context, accountID string, rt RequestType) (*Request, error) {
	rows, err := p.db.QueryContext(ctx,
		selectColumns+` WHERE account_id = $1 AND request_type = $2 AND status = 'pending'
		ORDER BY requested_at DESC, id DESC LIMIT 2`,
		accountID, string(rt))
	if err != nil {
		return nil, fmt.Errorf("get pending request: %w", err)
	}
	defer func() { _ = rows.Close() }()

	pending, err := scanRequests(rows)
	if err != nil {
		return nil, fmt.Errorf("get pending request: %w", err)
	}
	if len(pending) == 0 {
		return nil, ErrNotFound
	}
	if len(pending) > 1 {
		slog.Warn("multiple pending tier requests for account",
			"accountId", accountID, "requestType", string(rt))
	}
	return pending[0], nil
}

// GetMostRecent retrieves the account's latest request regardless of status.
func (p *PostgresStore) GetMostRecent(ctx context.Context, accountID string) (*Request, error) {
	row := p.db.QueryRowContext(ctx,
		selectColumns+" WHERE account_id = $1 ORDER BY requested_at DESC, id DESC LIMIT 1",
		accountID)
	r, err := scanRequest(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get most recent request: %w", err)
	}
	return r, nil
}

// Update modifies a request's mutable fields.
func (p *PostgresStore) Update(ctx context.Context, r *Request) error {
	r.UpdatedAt = time.Now()

	result, err := p.db.ExecContext(ctx, `
		UPDATE tier_change_requests SET
			status           = $2,
			admin_notes      = $3,
			rejection_reason = $4,
			decided_at       = $5,
			decided_by       = $6,
			cancelled_at     = $7,
			updated_at       = $8
		WHERE id = $1
	`,
		r.ID, string(r.Status),
		r.AdminNotes, r.RejectionReason,
		nullTimePtrOrValue(r.DecidedAt), r.DecidedBy, nullTimePtrOrValue(r.CancelledAt),
		r.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update request: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdatePending persists the request's decision fields only while the row
// is still pending. A racing decision loses with InvalidStatusError.
func (p *PostgresStore) UpdatePending(ctx context.Context, r *Request) error {
	r.UpdatedAt = time.Now()

	result, err := p.db.ExecContext(ctx, decidePendingSQL,
		r.ID, string(r.Status),
		r.AdminNotes, r.RejectionReason,
		nullTimePtrOrValue(r.DecidedAt), r.DecidedBy, nullTimePtrOrValue(r.CancelledAt),
		r.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update pending request: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return p.pendingConflict(ctx, p.db, r.ID)
	}
	return nil
}

// ApprovePending marks a pending request approved and applies the new tier
// to the vendor account, both in one transaction. Requires a TierTxWriter.
func (p *PostgresStore) ApprovePending(ctx context.Context, r *Request) error {
	if p.tiers == nil {
		return fmt.Errorf("approve request: no tier writer configured")
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	r.UpdatedAt = time.Now()
	result, err := tx.ExecContext(ctx, decidePendingSQL,
		r.ID, string(r.Status),
		r.AdminNotes, r.RejectionReason,
		nullTimePtrOrValue(r.DecidedAt), r.DecidedBy, nullTimePtrOrValue(r.CancelledAt),
		r.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("approve request: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return p.pendingConflict(ctx, tx, r.ID)
	}

	if err := p.tiers.UpdateTierTx(ctx, tx, r.AccountID, r.RequestedTier); err != nil {
		return fmt.Errorf("apply tier change: %w", err)
	}
	return tx.Commit()
}

const decidePendingSQL = `
	UPDATE tier_change_requests SET
		status           = $2,
		admin_notes      = $3,
		rejection_reason = $4,
		decided_at       = $5,
		decided_by       = $6,
		cancelled_at     = $7,
		updated_at       = $8
	WHERE id = $1 AND status = 'pending'`

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// pendingConflict distinguishes a missing row from a row in a terminal state
// after a conditional transition matched nothing.
func (p *PostgresStore) pendingConflict(ctx context.Context, q queryRower, id string) error {
	var status string
	err := q.QueryRowContext(ctx, `SELECT status FROM tier_change_requests WHERE id = $1`, id).Scan(&status)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("read request status: %w", err)
	}
	return &InvalidStatusError{Actual: Status(status)}
}

// List returns requests matching the query, newest first, up to Limit+1 rows.
func (p *PostgresStore) List(ctx context.Context, q ListQuery) ([]*Request, error) {
	query := selectColumns + " WHERE 1=1"
	args := []interface{}{}
	arg := 1

	if q.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", arg)
		args = append(args, string(q.Status))
		arg++
	}
	if q.Type != "" {
		query += fmt.Sprintf(" AND request_type = $%d", arg)
		args = append(args, string(q.Type))
		arg++
	}
	if !q.AfterRequestedAt.IsZero() {
		query += fmt.Sprintf(" AND (requested_at, id) < ($%d, $%d)", arg, arg+1)
		args = append(args, q.AfterRequestedAt, q.AfterID)
		arg += 2
	}

	query += fmt.Sprintf(" ORDER BY requested_at DESC, id DESC LIMIT $%d", arg)
	args = append(args, q.Limit+1)

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanRequests(rows)
}

// --- scanning helpers ---

const selectColumns = `
	SELECT id, account_id, request_type,
		current_tier, requested_tier, status,
		vendor_notes, admin_notes, rejection_reason, impact,
		requested_at, decided_at, decided_by, cancelled_at, updated_at
	FROM tier_change_requests`

type scannable interface {
	Scan(dest ...interface{}) error
}

func scanRequest(row scannable) (*Request, error) {
	var r Request
	var requestType, status, currentTier, requestedTier string
	var impact []byte
	var decidedAt, cancelledAt sql.NullTime

	err := row.Scan(
		&r.ID, &r.AccountID, &requestType,
		&currentTier, &requestedTier, &status,
		&r.VendorNotes, &r.AdminNotes, &r.RejectionReason, &impact,
		&r.RequestedAt, &decidedAt, &r.DecidedBy, &cancelledAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	r.RequestType = RequestType(requestType)
	r.CurrentTier = tier.Parse(currentTier)
	r.RequestedTier = tier.Parse(requestedTier)
	r.Status = Status(status)
	if len(impact) > 0 {
		var report access.DowngradeReport
		if err := json.Unmarshal(impact, &report); err != nil {
			return nil, fmt.Errorf("unmarshal impact: %w", err)
		}
		r.Impact = &report
	}
	if decidedAt.Valid {
		t := decidedAt.Time
		r.DecidedAt = &t
	}
	if cancelledAt.Valid {
		t := cancelledAt.Time
		r.CancelledAt = &t
	}

	return &r, nil
}

func scanRequests(rows *sql.Rows) ([]*Request, error) {
	var result []*Request
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

func marshalImpact(report *access.DowngradeReport) (interface{}, error) {
	if report == nil {
		return nil, nil
	}
	data, err := json.Marshal(report)
	if err != nil {
		return nil, err
	}
	return data, nil
}

func nullTimePtrOrValue(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// isUniqueViolation reports whether err is a Postgres unique constraint error.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "duplicate key value violates unique constraint")
}
