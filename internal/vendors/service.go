package vendors

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/portsidehq/portside/internal/access"
	"github.com/portsidehq/portside/internal/idgen"
	"github.com/portsidehq/portside/internal/metrics"
	"github.com/portsidehq/portside/internal/syncutil"
	"github.com/portsidehq/portside/internal/tier"
	"github.com/portsidehq/portside/internal/validation"
)

// Service implements vendor profile business logic.
type Service struct {
	store  Store
	notify Notifier

	// Serializes read-modify-write updates per profile.
	profileLocks syncutil.ShardedMutex
}

// NewService creates a new vendor profile service.
func NewService(store Store, notify Notifier) *Service {
	if notify == nil {
		notify = NopNotifier{}
	}
	return &Service{store: store, notify: notify}
}

// Create registers a new profile for an account. Accounts start on the free
// tier with an unpublished profile.
func (s *Service) Create(ctx context.Context, accountID string, req CreateRequest) (*Profile, error) {
	slug := validation.SanitizeSlug(req.Slug)
	if errs := validation.Validate(
		validation.Required("companyName", req.CompanyName),
		validation.MaxLength("companyName", req.CompanyName, MaxCompanyNameLen),
		validation.Required("slug", slug),
		validation.ValidSlug("slug", slug),
		validation.MaxLength("slug", slug, MaxSlugLen),
		validation.MaxLength("description", req.Description, MaxDescriptionLen),
		validation.ValidEmail("contactEmail", req.ContactEmail),
	); len(errs) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrValidation, errs.Error())
	}

	if existing, err := s.store.GetByAccount(ctx, accountID); err == nil && existing != nil {
		return nil, ErrAccountExists
	}
	if existing, err := s.store.GetBySlug(ctx, slug); err == nil && existing != nil {
		return nil, ErrSlugTaken
	}

	now := time.Now()
	p := &Profile{
		ID:           idgen.WithPrefix("vnd_"),
		AccountID:    accountID,
		Tier:         tier.Free,
		CompanyName:  validation.SanitizeString(req.CompanyName, MaxCompanyNameLen),
		Slug:         slug,
		Description:  validation.SanitizeString(req.Description, MaxDescriptionLen),
		ContactEmail: req.ContactEmail,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.store.Create(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Get returns a profile by slug or ID with computed fields, for public reads.
func (s *Service) Get(ctx context.Context, slugOrID string) (*Profile, ComputedFields, error) {
	p, err := s.store.GetBySlug(ctx, slugOrID)
	if err != nil {
		p, err = s.store.Get(ctx, slugOrID)
	}
	if err != nil {
		return nil, ComputedFields{}, err
	}
	return p, Compute(p), nil
}

// GetForEdit returns the profile plus the caller tier's entitlements.
// Admins may edit any profile; vendors only their own.
func (s *Service) GetForEdit(ctx context.Context, caller Caller, profileID string) (*EditView, error) {
	p, err := s.store.Get(ctx, profileID)
	if err != nil {
		return nil, err
	}
	if !caller.CanAccess(p) {
		return nil, ErrForbidden
	}

	usage := p.Usage()
	return &EditView{
		Profile:          p,
		AccessibleFields: access.AccessibleFields(p.Tier),
		Features:         access.FeaturesFor(p.Tier),
		Quotas: Quotas{
			MaxLocations: tier.MaxLocations(p.Tier),
			MaxProducts:  tier.MaxProducts(p.Tier),
			MaxMedia:     tier.MaxMedia(p.Tier),
			Locations:    usage.Locations,
			Products:     usage.Products,
			Media:        usage.Media,
		},
		Computed: Compute(p),
	}, nil
}

// List returns profiles for the public directory.
func (s *Service) List(ctx context.Context, publishedOnly bool, limit int) ([]*Profile, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.store.List(ctx, publishedOnly, limit)
}

// Update applies a partial update to a profile.
//
// Checks run in order: ownership, tier field access, feature gates for the
// products and media collections, field-level validation, quantity ceilings,
// then business rules. Admins skip the tier gates and ceilings; validation
// and business rules bind them too. A rejected update mutates nothing.
func (s *Service) Update(ctx context.Context, caller Caller, profileID string, changes map[string]json.RawMessage) (*Profile, error) {
	unlock := s.profileLocks.Lock(profileID)
	defer unlock()

	p, err := s.store.Get(ctx, profileID)
	if err != nil {
		return nil, err
	}
	if !caller.CanAccess(p) {
		return nil, ErrForbidden
	}
	if len(changes) == 0 {
		return p, nil
	}

	fields := make([]string, 0, len(changes))
	for name := range changes {
		fields = append(fields, name)
	}
	sort.Strings(fields)

	// products and media are gated by features rather than the field
	// allow-lists; split them out before the access check. Admins edit the
	// full surface regardless of the profile's tier.
	if !caller.IsAdmin {
		var gated []string
		for _, name := range fields {
			switch name {
			case "products":
				if !access.HasFeature(p.Tier, "productManagement") {
					return nil, featureDenied(p.Tier, "products", "productManagement")
				}
			case "media":
				if !access.HasFeature(p.Tier, "media-gallery") {
					return nil, featureDenied(p.Tier, "media", "media-gallery")
				}
			default:
				gated = append(gated, name)
			}
		}
		if err := access.ValidateFieldAccess(p.Tier, gated); err != nil {
			return nil, err
		}
	}

	patch, err := decodePatch(changes)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrValidation, err.Error())
	}

	// Work on a copy so a failed rule leaves the stored profile untouched.
	updated := *p
	patch.apply(&updated)

	if err := s.validateProfile(&updated, patch); err != nil {
		return nil, err
	}

	// Slug changes must not collide with another vendor.
	if updated.Slug != p.Slug {
		if other, err := s.store.GetBySlug(ctx, updated.Slug); err == nil && other != nil && other.ID != p.ID {
			return nil, ErrSlugTaken
		}
	}

	// Quantity ceilings for the collections actually being changed.
	if !caller.IsAdmin {
		quantityChecks := []struct {
			field string
			kind  access.Quantity
			count int
		}{
			{"locations", access.Locations, len(updated.Locations)},
			{"products", access.Products, len(updated.Products)},
			{"media", access.Media, len(updated.Media)},
		}
		for _, qc := range quantityChecks {
			if _, changed := changes[qc.field]; !changed {
				continue
			}
			if err := access.ValidateQuantity(p.Tier, qc.kind, qc.count); err != nil {
				return nil, err
			}
		}
	}

	// Business rules bind admins too.
	if updated.Featured && !p.Tier.Meets(tier.Tier2) {
		return nil, fmt.Errorf("%w: featured placement requires the %s plan",
			ErrValidation, tier.Tier2.DisplayName())
	}
	wasPublished := p.Published
	if updated.Published && !wasPublished {
		if missing := missingRequired(&updated); len(missing) > 0 {
			return nil, fmt.Errorf("%w: profile cannot be published, missing: %v",
				ErrValidation, missing)
		}
	}

	updated.UpdatedAt = time.Now()
	if err := s.store.Update(ctx, &updated); err != nil {
		return nil, err
	}

	metrics.VendorProfileUpdates.Inc()
	s.notify.ProfileUpdated(&updated, fields)
	if updated.Published && !wasPublished {
		s.notify.ProfilePublished(&updated)
	}
	return &updated, nil
}

// validateProfile runs field-level validation over the fields the patch set.
func (s *Service) validateProfile(p *Profile, patch *profilePatch) error {
	var checks []func() *validation.ValidationError

	if patch.CompanyName != nil {
		checks = append(checks,
			validation.Required("companyName", p.CompanyName),
			validation.MaxLength("companyName", p.CompanyName, MaxCompanyNameLen))
	}
	if patch.Slug != nil {
		checks = append(checks,
			validation.Required("slug", p.Slug),
			validation.ValidSlug("slug", p.Slug),
			validation.MaxLength("slug", p.Slug, MaxSlugLen))
	}
	if patch.Description != nil {
		checks = append(checks, validation.MaxLength("description", p.Description, MaxDescriptionLen))
	}
	if patch.LongDescription != nil {
		checks = append(checks, validation.MaxLength("longDescription", p.LongDescription, MaxLongDescLen))
	}
	if patch.ContactEmail != nil {
		checks = append(checks, validation.ValidEmail("contactEmail", p.ContactEmail))
	}
	for _, u := range []struct{ field, value string }{
		{"website", urlOrEmpty(patch.Website, p.Website)},
		{"linkedinUrl", urlOrEmpty(patch.LinkedinURL, p.LinkedinURL)},
		{"twitterUrl", urlOrEmpty(patch.TwitterURL, p.TwitterURL)},
		{"videoUrl", urlOrEmpty(patch.VideoURL, p.VideoURL)},
	} {
		if u.value != "" {
			checks = append(checks, validation.ValidURL(u.field, u.value))
		}
	}
	if patch.FoundedYear != nil && p.FoundedYear != 0 {
		checks = append(checks,
			validation.IntRange("foundedYear", p.FoundedYear, MinFoundedYear, time.Now().Year()))
	}
	if patch.ClientSatisfactionScore != nil {
		checks = append(checks,
			validation.FloatRange("clientSatisfactionScore", p.ClientSatisfactionScore, 0, MaxSatisfaction))
	}
	if patch.RepeatClientPercentage != nil {
		checks = append(checks,
			validation.FloatRange("repeatClientPercentage", p.RepeatClientPercentage, 0, 100))
	}
	if patch.TeamMembers != nil {
		for _, m := range p.TeamMembers {
			if m.Name == "" {
				return fmt.Errorf("%w: team member name is required", ErrValidation)
			}
			if len(m.Bio) > MaxBioLen {
				return fmt.Errorf("%w: team member bio exceeds %d characters", ErrValidation, MaxBioLen)
			}
		}
	}

	if errs := validation.Validate(checks...); len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrValidation, errs.Error())
	}
	return nil
}

// featureDenied builds a field access error for a feature-gated collection.
func featureDenied(t tier.Tier, field, feature string) error {
	required, _ := tier.FeatureTier(feature)
	return &access.FieldAccessError{
		Tier:   t,
		Denied: []access.DeniedField{{Field: field, RequiredTier: required, Known: true}},
	}
}

func urlOrEmpty(changed *string, current string) string {
	if changed == nil {
		return ""
	}
	return current
}

// --- tier plumbing for the upgrade workflow ---

// GetTier returns the account's current tier.
func (s *Service) GetTier(ctx context.Context, accountID string) (tier.Tier, error) {
	p, err := s.store.GetByAccount(ctx, accountID)
	if err != nil {
		return "", err
	}
	return p.Tier, nil
}

// SetTier applies a tier change to the account's profile. Moving down a
// tier does not strip over-limit data; it becomes read-only until reduced.
func (s *Service) SetTier(ctx context.Context, accountID string, t tier.Tier) error {
	metrics.VendorTierChanges.WithLabelValues(string(t)).Inc()
	return s.store.UpdateTier(ctx, accountID, t)
}

// GetUsage returns the account's quantity-limited resource counts.
func (s *Service) GetUsage(ctx context.Context, accountID string) (access.Usage, error) {
	p, err := s.store.GetByAccount(ctx, accountID)
	if err != nil {
		return access.Usage{}, err
	}
	return p.Usage(), nil
}
