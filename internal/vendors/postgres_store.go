package vendors

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/portsidehq/portside/internal/tier"
)

// Compile-time check that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)

// PostgresStore implements Store backed by PostgreSQL.
//
// Frequently-queried attributes get their own columns; the long tail of the
// profile surface lives in a JSONB document so tier additions don't require
// schema changes.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed profile store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the vendors table if it doesn't exist.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS vendors (
			id           TEXT PRIMARY KEY,
			account_id   TEXT NOT NULL UNIQUE,
			tier         TEXT NOT NULL DEFAULT 'free'
				CHECK (tier IN ('free', 'tier1', 'tier2', 'tier3')),
			slug         TEXT NOT NULL UNIQUE,
			company_name TEXT NOT NULL,
			published    BOOLEAN NOT NULL DEFAULT FALSE,
			featured     BOOLEAN NOT NULL DEFAULT FALSE,
			data         JSONB NOT NULL,
			created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_vendors_published ON vendors(published);
		CREATE INDEX IF NOT EXISTS idx_vendors_tier ON vendors(tier);
	`)
	return err
}

// Create inserts a new profile.
func (p *PostgresStore) Create(ctx context.Context, profile *Profile) error {
	data, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("marshal profile: %w", err)
	}

	_, err = p.db.ExecContext(ctx, `
		INSERT INTO vendors (id, account_id, tier, slug, company_name, published, featured, data, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		profile.ID, profile.AccountID, string(profile.Tier), profile.Slug, profile.CompanyName,
		profile.Published, profile.Featured, data, profile.CreatedAt, profile.UpdatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "vendors_slug_key") {
			return ErrSlugTaken
		}
		if strings.Contains(err.Error(), "vendors_account_id_key") {
			return ErrAccountExists
		}
		return fmt.Errorf("insert profile: %w", err)
	}
	return nil
}

// Get retrieves a profile by ID.
func (p *PostgresStore) Get(ctx context.Context, id string) (*Profile, error) {
	return p.getWhere(ctx, "id = $1", id)
}

// GetBySlug retrieves a profile by slug.
func (p *PostgresStore) GetBySlug(ctx context.Context, slug string) (*Profile, error) {
	return p.getWhere(ctx, "slug = $1", slug)
}

// GetByAccount retrieves the profile owned by an account.
func (p *PostgresStore) GetByAccount(ctx context.Context, accountID string) (*Profile, error) {
	return p.getWhere(ctx, "account_id = $1", accountID)
}

func (p *PostgresStore) getWhere(ctx context.Context, where string, arg interface{}) (*Profile, error) {
	row := p.db.QueryRowContext(ctx, selectColumns+" WHERE "+where, arg)
	profile, err := scanProfile(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return profile, nil
}

// Update rewrites a profile's mutable state.
func (p *PostgresStore) Update(ctx context.Context, profile *Profile) error {
	data, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("marshal profile: %w", err)
	}

	result, err := p.db.ExecContext(ctx, `
		UPDATE vendors SET
			tier         = $2,
			slug         = $3,
			company_name = $4,
			published    = $5,
			featured     = $6,
			data         = $7,
			updated_at   = $8
		WHERE id = $1
	`,
		profile.ID, string(profile.Tier), profile.Slug, profile.CompanyName,
		profile.Published, profile.Featured, data, profile.UpdatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "vendors_slug_key") {
			return ErrSlugTaken
		}
		return fmt.Errorf("update profile: %w", err)
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

// UpdateTier changes only the account's tier, keeping the document in sync.
func (p *PostgresStore) UpdateTier(ctx context.Context, accountID string, t tier.Tier) error {
	return updateTier(ctx, p.db, accountID, t)
}

// UpdateTierTx applies a tier change inside a caller-owned transaction, so
// an approval decision and the tier change can commit as one unit.
func (p *PostgresStore) UpdateTierTx(ctx context.Context, tx *sql.Tx, accountID string, t tier.Tier) error {
	return updateTier(ctx, tx, accountID, t)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func updateTier(ctx context.Context, q execer, accountID string, t tier.Tier) error {
	result, err := q.ExecContext(ctx, `
		UPDATE vendors SET
			tier       = $2,
			data       = jsonb_set(data, '{tier}', to_jsonb($2::text)),
			updated_at = $3
		WHERE account_id = $1
	`, accountID, string(t), time.Now())
	if err != nil {
		return fmt.Errorf("update tier: %w", err)
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

// List returns profiles for the directory, newest first.
func (p *PostgresStore) List(ctx context.Context, publishedOnly bool, limit int) ([]*Profile, error) {
	query := selectColumns
	if publishedOnly {
		query += " WHERE published = TRUE"
	}
	query += " ORDER BY created_at DESC LIMIT $1"

	rows, err := p.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*Profile
	for rows.Next() {
		profile, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, profile)
	}
	return result, rows.Err()
}

// --- scanning helpers ---

const selectColumns = `
	SELECT id, account_id, tier, slug, company_name, published, featured, data, created_at, updated_at
	FROM vendors`

type scannable interface {
	Scan(dest ...interface{}) error
}

func scanProfile(row scannable) (*Profile, error) {
	var (
		id, accountID, tierStr, slug, companyName string
		published, featured                       bool
		data                                      []byte
		createdAt, updatedAt                      time.Time
	)

	err := row.Scan(&id, &accountID, &tierStr, &slug, &companyName, &published, &featured, &data, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	var profile Profile
	if err := json.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("unmarshal profile: %w", err)
	}

	// Indexed columns are authoritative over the document copy.
	profile.ID = id
	profile.AccountID = accountID
	profile.Tier = tier.Parse(tierStr)
	profile.Slug = slug
	profile.CompanyName = companyName
	profile.Published = published
	profile.Featured = featured
	profile.CreatedAt = createdAt
	profile.UpdatedAt = updatedAt

	return &profile, nil
}
