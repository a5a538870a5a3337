package access

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/portsidehq/portside/internal/tier"
)

func TestValidateFieldAccess_AllowedFields(t *testing.T) {
	assert.NoError(t, ValidateFieldAccess(tier.Free, []string{"companyName", "slug"}))
	assert.NoError(t, ValidateFieldAccess(tier.Tier1, []string{"website", "caseStudies"}))
	assert.NoError(t, ValidateFieldAccess(tier.Tier3, []string{"promotionPack", "companyName"}))
}

func TestValidateFieldAccess_EmptyListIsValid(t *testing.T) {
	assert.NoError(t, ValidateFieldAccess(tier.Free, nil))
	assert.NoError(t, ValidateFieldAccess(tier.Tier2, []string{}))
}

func TestValidateFieldAccess_DeniedWithRequiredTier(t *testing.T) {
	err := ValidateFieldAccess(tier.Free, []string{"companyName", "website", "locations"})
	require.Error(t, err)

	var fae *FieldAccessError
	require.True(t, errors.As(err, &fae))
	assert.Equal(t, tier.Free, fae.Tier)
	require.Len(t, fae.Denied, 2)

	byField := make(map[string]DeniedField)
	for _, d := range fae.Denied {
		byField[d.Field] = d
	}
	assert.Equal(t, tier.Tier1, byField["website"].RequiredTier)
	assert.True(t, byField["website"].Known)
	assert.Equal(t, tier.Tier2, byField["locations"].RequiredTier)
}

func TestValidateFieldAccess_DuplicatesReportedOnce(t *testing.T) {
	err := ValidateFieldAccess(tier.Free, []string{"website", "website", "website"})
	var fae *FieldAccessError
	require.True(t, errors.As(err, &fae))
	assert.Len(t, fae.Denied, 1)
}

func TestValidateFieldAccess_UnknownFieldDenied(t *testing.T) {
	err := ValidateFieldAccess(tier.Tier3, []string{"noSuchField"})
	var fae *FieldAccessError
	require.True(t, errors.As(err, &fae))
	require.Len(t, fae.Denied, 1)
	assert.False(t, fae.Denied[0].Known)
}

func TestValidateFieldAccess_UnknownTierTreatedAsFree(t *testing.T) {
	err := ValidateFieldAccess(tier.Tier("bogus"), []string{"website"})
	var fae *FieldAccessError
	require.True(t, errors.As(err, &fae))
	assert.Equal(t, tier.Free, fae.Tier)
}

func TestValidateQuantity_WithinLimit(t *testing.T) {
	assert.NoError(t, ValidateQuantity(tier.Free, Locations, 1))
	assert.NoError(t, ValidateQuantity(tier.Tier1, Products, 10))
	assert.NoError(t, ValidateQuantity(tier.Tier2, Media, 50))
	assert.NoError(t, ValidateQuantity(tier.Tier2, Media, 0))
}

func TestValidateQuantity_OverLimit(t *testing.T) {
	err := ValidateQuantity(tier.Free, Locations, 2)
	require.Error(t, err)

	var qe *QuantityError
	require.True(t, errors.As(err, &qe))
	assert.Equal(t, Locations, qe.Kind)
	assert.Equal(t, 1, qe.Limit)
	assert.Equal(t, 2, qe.Requested)
	assert.Equal(t, tier.Tier1, qe.RequiredTier)
}

func TestValidateQuantity_RequiredTierSkipsLevels(t *testing.T) {
	// 15 products exceeds free (3) and tier1 (10); tier2 (25) admits it.
	err := ValidateQuantity(tier.Free, Products, 15)
	var qe *QuantityError
	require.True(t, errors.As(err, &qe))
	assert.Equal(t, tier.Tier2, qe.RequiredTier)
}

func TestValidateQuantity_NoTierAdmits(t *testing.T) {
	err := ValidateQuantity(tier.Tier3, Media, 1000)
	var qe *QuantityError
	require.True(t, errors.As(err, &qe))
	assert.Equal(t, tier.Tier(""), qe.RequiredTier)
}

func TestHasFeature(t *testing.T) {
	assert.False(t, HasFeature(tier.Free, "multipleLocations"))
	assert.True(t, HasFeature(tier.Tier1, "multipleLocations"))
	assert.True(t, HasFeature(tier.Tier3, "multipleLocations"))
	assert.False(t, HasFeature(tier.Tier1, "apiAccess"))
	assert.True(t, HasFeature(tier.Tier2, "apiAccess"))
	assert.False(t, HasFeature(tier.Tier3, "unknownFeature"))
}

func TestFeaturesFor(t *testing.T) {
	assert.Empty(t, FeaturesFor(tier.Free))

	t1 := FeaturesFor(tier.Tier1)
	assert.ElementsMatch(t, []string{"multipleLocations", "media-gallery"}, t1)

	t3 := FeaturesFor(tier.Tier3)
	assert.Contains(t, t3, "promotionPack")
	assert.Contains(t, t3, "editorialContent")
	assert.Contains(t, t3, "multipleLocations")
	assert.Len(t, t3, 9)
}

func TestValidateDowngrade_CleanWhenNotADowngrade(t *testing.T) {
	report := ValidateDowngrade(tier.Tier1, tier.Tier2, Usage{Locations: 3})
	assert.True(t, report.Clean())

	report = ValidateDowngrade(tier.Tier1, tier.Tier1, Usage{Products: 10})
	assert.True(t, report.Clean())
}

func TestValidateDowngrade_ReportsLostFieldsAndFeatures(t *testing.T) {
	report := ValidateDowngrade(tier.Tier2, tier.Tier1, Usage{
		Fields: map[string]bool{
			"locations":          true,
			"featuredInCategory": true,
			"advancedAnalytics":  true,
			"apiAccess":          true,
			"customDomain":       true,
		},
	})
	assert.False(t, report.Clean())
	assert.ElementsMatch(t,
		[]string{"locations", "featuredInCategory", "advancedAnalytics", "apiAccess", "customDomain"},
		report.LostFields)
	assert.ElementsMatch(t,
		[]string{"advancedAnalytics", "apiAccess", "customDomain", "excel-import", "productManagement"},
		report.LostFeatures)
	assert.Empty(t, report.Overages)
}

func TestValidateDowngrade_OnlyPopulatedFieldsFlagged(t *testing.T) {
	// An account that never filled in any gated field loses nothing by
	// moving down, even across multiple tiers.
	report := ValidateDowngrade(tier.Tier1, tier.Free, Usage{})
	assert.True(t, report.Clean())
	assert.Empty(t, report.LostFields)

	report = ValidateDowngrade(tier.Tier3, tier.Free, Usage{})
	assert.True(t, report.Clean())
	assert.Empty(t, report.LostFields)

	// Only the fields actually holding data show up.
	report = ValidateDowngrade(tier.Tier1, tier.Free, Usage{
		Fields: map[string]bool{"website": true, "caseStudies": true},
	})
	assert.False(t, report.Clean())
	assert.ElementsMatch(t, []string{"website", "caseStudies"}, report.LostFields)
}

func TestValidateDowngrade_ReportsOverages(t *testing.T) {
	report := ValidateDowngrade(tier.Tier2, tier.Free, Usage{
		Locations: 4,
		Products:  25,
		Media:     2,
	})
	require.Len(t, report.Overages, 2)

	byKind := make(map[Quantity]QuantityOverage)
	for _, o := range report.Overages {
		byKind[o.Kind] = o
	}
	assert.Equal(t, 4, byKind[Locations].InUse)
	assert.Equal(t, 1, byKind[Locations].TargetLimit)
	assert.Equal(t, 25, byKind[Products].InUse)
	assert.Equal(t, 3, byKind[Products].TargetLimit)
}

func TestValidateDowngrade_NeverMutates(t *testing.T) {
	// Two identical calls produce identical reports; the package holds no state.
	usage := Usage{Locations: 5, Products: 5, Media: 5}
	a := ValidateDowngrade(tier.Tier3, tier.Free, usage)
	b := ValidateDowngrade(tier.Tier3, tier.Free, usage)
	assert.Equal(t, a, b)
}

func TestAccessibleFields_MatchesTierTable(t *testing.T) {
	assert.Equal(t, tier.FieldsFor(tier.Tier2), AccessibleFields(tier.Tier2))
}
