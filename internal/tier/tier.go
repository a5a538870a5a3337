// Package tier defines the subscription tier ladder and what each tier
// unlocks: editable profile fields, gated features, and quantity ceilings.
//
// All lookups fail closed: an unknown tier resolves to the free tier's
// entitlements, and an unknown feature grants nothing.
package tier

import "sort"

// Tier is a subscription level. Tiers are ordered: each tier includes
// everything the tiers below it grant.
type Tier string

const (
	Free  Tier = "free"
	Tier1 Tier = "tier1"
	Tier2 Tier = "tier2"
	Tier3 Tier = "tier3"
)

// ordinals defines the total order over tiers.
var ordinals = map[Tier]int{
	Free:  0,
	Tier1: 1,
	Tier2: 2,
	Tier3: 3,
}

// displayNames maps tiers to customer-facing plan names.
var displayNames = map[Tier]string{
	Free:  "Free",
	Tier1: "Professional",
	Tier2: "Business",
	Tier3: "Enterprise",
}

// All returns the tiers in ascending order.
func All() []Tier {
	return []Tier{Free, Tier1, Tier2, Tier3}
}

// AtLevel returns the tier at the given ladder position. Levels below the
// ladder map to Free; levels above it round down to the top tier.
func AtLevel(level int) Tier {
	ladder := All()
	if level <= 0 {
		return Free
	}
	if level >= len(ladder) {
		return ladder[len(ladder)-1]
	}
	return ladder[level]
}

// Parse maps a raw string to a Tier. Unknown or empty input maps to Free.
func Parse(s string) Tier {
	t := Tier(s)
	if _, ok := ordinals[t]; ok {
		return t
	}
	return Free
}

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool {
	_, ok := ordinals[t]
	return ok
}

// Ordinal returns the tier's position in the ladder. Unknown tiers are 0.
func (t Tier) Ordinal() int {
	return ordinals[t]
}

// Meets reports whether t satisfies a requirement of the given tier.
func (t Tier) Meets(required Tier) bool {
	return t.Ordinal() >= required.Ordinal()
}

// Compare returns -1, 0, or 1 as t is below, equal to, or above other.
func (t Tier) Compare(other Tier) int {
	a, b := t.Ordinal(), other.Ordinal()
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// DisplayName returns the customer-facing plan name.
func (t Tier) DisplayName() string {
	if name, ok := displayNames[t]; ok {
		return name
	}
	return displayNames[Free]
}

// fieldGrants lists the profile fields each tier ADDS on top of the tiers
// below it. FieldsFor accumulates these.
var fieldGrants = map[Tier][]string{
	Free: {
		"companyName", "slug", "description", "logo",
		"contactEmail", "contactPhone",
		"published", "featured", "partner",
	},
	Tier1: {
		"website", "linkedinUrl", "twitterUrl", "foundedYear",
		"certifications", "awards", "totalProjects", "employeeCount",
		"linkedinFollowers", "instagramFollowers",
		"clientSatisfactionScore", "repeatClientPercentage",
		"videoUrl", "videoThumbnail", "videoDuration", "videoTitle",
		"videoDescription",
		"caseStudies", "innovationHighlights", "teamMembers",
		"yachtProjects", "longDescription", "serviceAreas", "companyValues",
	},
	Tier2: {
		"locations", "featuredInCategory", "advancedAnalytics",
		"apiAccess", "customDomain",
	},
	Tier3: {
		"promotionPack", "editorialContent",
	},
}

// FieldsFor returns the cumulative set of profile fields editable at tier t,
// in ladder order. Unknown tiers get the free set.
func FieldsFor(t Tier) []string {
	if !t.Valid() {
		t = Free
	}
	var fields []string
	for _, level := range All() {
		if level.Ordinal() > t.Ordinal() {
			break
		}
		fields = append(fields, fieldGrants[level]...)
	}
	return fields
}

// MinTierForField returns the lowest tier whose allow-list includes field.
func MinTierForField(field string) (Tier, bool) {
	for _, level := range All() {
		for _, f := range fieldGrants[level] {
			if f == field {
				return level, true
			}
		}
	}
	return "", false
}

// featureTiers maps gated feature keys to the minimum tier that unlocks them.
var featureTiers = map[string]Tier{
	"multipleLocations": Tier1,
	"media-gallery":     Tier1,
	"advancedAnalytics": Tier2,
	"apiAccess":         Tier2,
	"customDomain":      Tier2,
	"excel-import":      Tier2,
	"productManagement": Tier2,
	"promotionPack":     Tier3,
	"editorialContent":  Tier3,
}

// FeatureTier returns the minimum tier that unlocks a feature.
// Unknown features return ok=false; callers must treat that as no access.
func FeatureTier(feature string) (Tier, bool) {
	t, ok := featureTiers[feature]
	return t, ok
}

// Features returns all known gated feature keys in sorted order.
func Features() []string {
	keys := make([]string, 0, len(featureTiers))
	for k := range featureTiers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Quantity ceilings per tier. The top tier's ceilings are effectively
// unlimited for this catalog's scale.
var (
	maxLocations = map[Tier]int{Free: 1, Tier1: 3, Tier2: 10, Tier3: 999}
	maxProducts  = map[Tier]int{Free: 3, Tier1: 10, Tier2: 25, Tier3: 999}
	maxMedia     = map[Tier]int{Free: 5, Tier1: 20, Tier2: 50, Tier3: 999}
)

func lookup(m map[Tier]int, t Tier) int {
	if n, ok := m[t]; ok {
		return n
	}
	return m[Free]
}

// MaxLocations returns how many office locations tier t may list.
func MaxLocations(t Tier) int { return lookup(maxLocations, t) }

// MaxProducts returns how many catalog products tier t may list.
func MaxProducts(t Tier) int { return lookup(maxProducts, t) }

// MaxMedia returns how many gallery media items tier t may attach.
func MaxMedia(t Tier) int { return lookup(maxMedia, t) }
