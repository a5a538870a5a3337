// Package access enforces tier entitlements: which profile fields an account
// may edit, which features it may use, and how many of each quantity-limited
// resource it may hold. It also produces downgrade impact reports.
//
// The package is pure. It never mutates account state; callers decide what
// to do with a denial or a report.
package access

import (
	"fmt"
	"strings"

	"github.com/portsidehq/portside/internal/tier"
)

// Quantity identifies a quantity-limited resource kind.
type Quantity string

const (
	Locations Quantity = "locations"
	Products  Quantity = "products"
	Media     Quantity = "media"
)

// ceiling returns the per-tier limit for a quantity kind.
func ceiling(t tier.Tier, q Quantity) int {
	switch q {
	case Locations:
		return tier.MaxLocations(t)
	case Products:
		return tier.MaxProducts(t)
	case Media:
		return tier.MaxMedia(t)
	default:
		return 0
	}
}

// DeniedField describes a single field rejected by ValidateFieldAccess.
type DeniedField struct {
	Field        string    `json:"field"`
	RequiredTier tier.Tier `json:"requiredTier,omitempty"`
	Known        bool      `json:"known"`
}

// FieldAccessError reports every requested field outside the tier's
// allow-list, with the minimum tier that would grant each.
type FieldAccessError struct {
	Tier   tier.Tier
	Denied []DeniedField
}

func (e *FieldAccessError) Error() string {
	names := make([]string, len(e.Denied))
	for i, d := range e.Denied {
		names[i] = d.Field
	}
	return fmt.Sprintf("access: tier %s cannot edit fields: %s",
		e.Tier, strings.Join(names, ", "))
}

// QuantityError reports a request over a tier's quantity ceiling.
// RequiredTier is the lowest tier whose ceiling admits the request, or
// empty when no tier does.
type QuantityError struct {
	Kind         Quantity
	Tier         tier.Tier
	Limit        int
	Requested    int
	RequiredTier tier.Tier
}

func (e *QuantityError) Error() string {
	return fmt.Sprintf("access: tier %s allows at most %d %s, requested %d",
		e.Tier, e.Limit, e.Kind, e.Requested)
}

// ValidateFieldAccess checks every field in fields against the tier's
// cumulative allow-list. It returns nil when all fields are editable, or a
// *FieldAccessError listing each denied field exactly once. Unknown tiers
// are treated as free.
func ValidateFieldAccess(t tier.Tier, fields []string) error {
	if !t.Valid() {
		t = tier.Free
	}
	allowed := make(map[string]bool)
	for _, f := range tier.FieldsFor(t) {
		allowed[f] = true
	}

	var denied []DeniedField
	seen := make(map[string]bool)
	for _, f := range fields {
		if allowed[f] || seen[f] {
			continue
		}
		seen[f] = true
		min, known := tier.MinTierForField(f)
		denied = append(denied, DeniedField{Field: f, RequiredTier: min, Known: known})
	}
	if len(denied) > 0 {
		return &FieldAccessError{Tier: t, Denied: denied}
	}
	return nil
}

// ValidateQuantity checks a requested count against the tier's ceiling for
// the given kind. n at or under the ceiling is allowed.
func ValidateQuantity(t tier.Tier, kind Quantity, n int) error {
	if !t.Valid() {
		t = tier.Free
	}
	limit := ceiling(t, kind)
	if n <= limit {
		return nil
	}
	var required tier.Tier
	for _, level := range tier.All() {
		if n <= ceiling(level, kind) {
			required = level
			break
		}
	}
	return &QuantityError{
		Kind:         kind,
		Tier:         t,
		Limit:        limit,
		Requested:    n,
		RequiredTier: required,
	}
}

// AccessibleFields returns the field allow-list for a tier.
func AccessibleFields(t tier.Tier) []string {
	return tier.FieldsFor(t)
}

// HasFeature reports whether a tier unlocks a feature. Unknown features
// grant nothing.
func HasFeature(t tier.Tier, feature string) bool {
	required, ok := tier.FeatureTier(feature)
	if !ok {
		return false
	}
	return t.Meets(required)
}

// FeaturesFor returns every feature key the tier unlocks.
func FeaturesFor(t tier.Tier) []string {
	var features []string
	for _, f := range tier.Features() {
		if HasFeature(t, f) {
			features = append(features, f)
		}
	}
	return features
}

// Usage is a snapshot of what an account currently holds, used to predict
// the impact of a downgrade.
//
// Fields is the set of tier-gated field names that currently hold data.
// A downgrade only flags lost-access fields that are populated; losing
// access to a field that was never filled in costs nothing.
type Usage struct {
	Locations int
	Products  int
	Media     int
	Fields    map[string]bool
}

// QuantityOverage describes one resource the account would hold over the
// target tier's ceiling after a downgrade.
type QuantityOverage struct {
	Kind        Quantity `json:"kind"`
	InUse       int      `json:"inUse"`
	TargetLimit int      `json:"targetLimit"`
}

// DowngradeReport lists everything an account would lose by moving from its
// current tier down to the target tier. The report never blocks a downgrade;
// it exists so the caller can warn or require confirmation.
//
// LostFields names tier-gated fields that hold data the target tier cannot
// edit. LostFeatures is advisory: features are capabilities, not stored
// data, so they never make a downgrade unclean on their own.
type DowngradeReport struct {
	CurrentTier  tier.Tier         `json:"currentTier"`
	TargetTier   tier.Tier         `json:"targetTier"`
	LostFields   []string          `json:"lostFields,omitempty"`
	LostFeatures []string          `json:"lostFeatures,omitempty"`
	Overages     []QuantityOverage `json:"overages,omitempty"`
}

// Clean reports whether the downgrade would strand no data: no populated
// field loses access and no collection exceeds the target tier's ceiling.
func (r *DowngradeReport) Clean() bool {
	return len(r.LostFields) == 0 && len(r.Overages) == 0
}

// ValidateDowngrade computes the impact of moving from current to target.
// It reports, it does not mutate. Target at or above current yields an
// empty report.
func ValidateDowngrade(current, target tier.Tier, usage Usage) *DowngradeReport {
	if !current.Valid() {
		current = tier.Free
	}
	if !target.Valid() {
		target = tier.Free
	}
	report := &DowngradeReport{CurrentTier: current, TargetTier: target}
	if target.Meets(current) {
		return report
	}

	targetFields := make(map[string]bool)
	for _, f := range tier.FieldsFor(target) {
		targetFields[f] = true
	}
	for _, f := range tier.FieldsFor(current) {
		if !targetFields[f] && usage.Fields[f] {
			report.LostFields = append(report.LostFields, f)
		}
	}

	for _, feature := range tier.Features() {
		if HasFeature(current, feature) && !HasFeature(target, feature) {
			report.LostFeatures = append(report.LostFeatures, feature)
		}
	}

	checks := []struct {
		kind  Quantity
		inUse int
	}{
		{Locations, usage.Locations},
		{Products, usage.Products},
		{Media, usage.Media},
	}
	for _, c := range checks {
		limit := ceiling(target, c.kind)
		if c.inUse > limit {
			report.Overages = append(report.Overages, QuantityOverage{
				Kind:        c.kind,
				InUse:       c.inUse,
				TargetLimit: limit,
			})
		}
	}

	return report
}
