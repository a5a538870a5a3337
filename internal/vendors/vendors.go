// Package vendor manages marketplace vendor profiles.
//
// A profile's editable surface depends on the account's subscription tier:
// free accounts manage the basics, paid tiers unlock media, team, analytics
// and promotion fields. All mutation goes through the Service, which checks
// ownership, tier entitlements, and field-level validation before anything
// is written.
//
// Admins bypass ownership checks, tier field gates, and quantity ceilings.
// Field validation and business rules still apply to everyone.
package vendors

import (
	"context"
	"errors"
	"time"

	"github.com/portsidehq/portside/internal/access"
	"github.com/portsidehq/portside/internal/tier"
)

var (
	ErrNotFound      = errors.New("vendor: profile not found")
	ErrForbidden     = errors.New("vendor: caller does not own this profile")
	ErrSlugTaken     = errors.New("vendor: slug already in use")
	ErrValidation    = errors.New("vendor: validation failed")
	ErrAccountExists = errors.New("vendor: account already has a profile")
)

// Field-level bounds enforced on update.
const (
	MaxCompanyNameLen = 200
	MaxSlugLen        = 100
	MaxDescriptionLen = 1000
	MaxLongDescLen    = 5000
	MaxBioLen         = 2000
	MaxSatisfaction   = 100
	MinFoundedYear    = 1800
)

// Location is a vendor office or service base.
type Location struct {
	Name    string `json:"name"`
	Address string `json:"address,omitempty"`
	City    string `json:"city"`
	Country string `json:"country"`
	Primary bool   `json:"primary,omitempty"`
}

// TeamMember is a person shown on the vendor's team section.
type TeamMember struct {
	Name     string `json:"name"`
	Role     string `json:"role,omitempty"`
	Bio      string `json:"bio,omitempty"`
	PhotoURL string `json:"photoUrl,omitempty"`
}

// CaseStudy is a past-work highlight.
type CaseStudy struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	ImageURL    string `json:"imageUrl,omitempty"`
	ProjectURL  string `json:"projectUrl,omitempty"`
}

// Project is a yacht project credit.
type Project struct {
	Name     string `json:"name"`
	Shipyard string `json:"shipyard,omitempty"`
	Year     int    `json:"year,omitempty"`
	Role     string `json:"role,omitempty"`
}

// Product is a catalog entry, available to accounts with product management.
type Product struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	ImageURL    string `json:"imageUrl,omitempty"`
	Category    string `json:"category,omitempty"`
}

// MediaItem is a gallery image or video.
type MediaItem struct {
	URL     string `json:"url"`
	Kind    string `json:"kind,omitempty"` // image or video
	Caption string `json:"caption,omitempty"`
}

// Profile is a vendor's full marketplace profile. Which fields an account
// may edit is decided by its tier; see the tier package for the allow-lists.
type Profile struct {
	ID        string    `json:"id"`
	AccountID string    `json:"accountId"`
	Tier      tier.Tier `json:"tier"`

	// Free tier surface
	CompanyName  string `json:"companyName"`
	Slug         string `json:"slug"`
	Description  string `json:"description,omitempty"`
	Logo         string `json:"logo,omitempty"`
	ContactEmail string `json:"contactEmail,omitempty"`
	ContactPhone string `json:"contactPhone,omitempty"`
	Published    bool   `json:"published"`
	Featured     bool   `json:"featured"`
	Partner      bool   `json:"partner"`

	// Professional surface
	Website                 string       `json:"website,omitempty"`
	LinkedinURL             string       `json:"linkedinUrl,omitempty"`
	TwitterURL              string       `json:"twitterUrl,omitempty"`
	FoundedYear             int          `json:"foundedYear,omitempty"`
	Certifications          []string     `json:"certifications,omitempty"`
	Awards                  []string     `json:"awards,omitempty"`
	TotalProjects           int          `json:"totalProjects,omitempty"`
	EmployeeCount           int          `json:"employeeCount,omitempty"`
	LinkedinFollowers       int          `json:"linkedinFollowers,omitempty"`
	InstagramFollowers      int          `json:"instagramFollowers,omitempty"`
	ClientSatisfactionScore float64      `json:"clientSatisfactionScore,omitempty"`
	RepeatClientPercentage  float64      `json:"repeatClientPercentage,omitempty"`
	VideoURL                string       `json:"videoUrl,omitempty"`
	VideoThumbnail          string       `json:"videoThumbnail,omitempty"`
	VideoDuration           int          `json:"videoDuration,omitempty"`
	VideoTitle              string       `json:"videoTitle,omitempty"`
	VideoDescription        string       `json:"videoDescription,omitempty"`
	CaseStudies             []CaseStudy  `json:"caseStudies,omitempty"`
	InnovationHighlights    []string     `json:"innovationHighlights,omitempty"`
	TeamMembers             []TeamMember `json:"teamMembers,omitempty"`
	YachtProjects           []Project    `json:"yachtProjects,omitempty"`
	LongDescription         string       `json:"longDescription,omitempty"`
	ServiceAreas            []string     `json:"serviceAreas,omitempty"`
	CompanyValues           []string     `json:"companyValues,omitempty"`

	// Business surface
	Locations          []Location `json:"locations,omitempty"`
	FeaturedInCategory bool       `json:"featuredInCategory,omitempty"`
	AdvancedAnalytics  bool       `json:"advancedAnalytics,omitempty"`
	APIAccess          bool       `json:"apiAccess,omitempty"`
	CustomDomain       string     `json:"customDomain,omitempty"`

	// Enterprise surface
	PromotionPack    bool   `json:"promotionPack,omitempty"`
	EditorialContent string `json:"editorialContent,omitempty"`

	// Feature-gated collections (not part of the field allow-lists; guarded
	// by productManagement and media-gallery instead).
	Products []Product   `json:"products,omitempty"`
	Media    []MediaItem `json:"media,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Usage returns the profile's current quantity-limited resource counts and
// the set of gated fields that actually hold data.
func (p *Profile) Usage() access.Usage {
	return access.Usage{
		Locations: len(p.Locations),
		Products:  len(p.Products),
		Media:     len(p.Media),
		Fields:    p.PopulatedFields(),
	}
}

// PopulatedFields returns the tier-gated fields holding non-empty data,
// keyed by their allow-list names. A field the vendor never filled in is
// absent, so a downgrade that strands no data reports clean.
func (p *Profile) PopulatedFields() map[string]bool {
	set := map[string]bool{}
	mark := func(name string, populated bool) {
		if populated {
			set[name] = true
		}
	}
	mark("website", p.Website != "")
	mark("linkedinUrl", p.LinkedinURL != "")
	mark("twitterUrl", p.TwitterURL != "")
	mark("foundedYear", p.FoundedYear != 0)
	mark("certifications", len(p.Certifications) > 0)
	mark("awards", len(p.Awards) > 0)
	mark("totalProjects", p.TotalProjects > 0)
	mark("employeeCount", p.EmployeeCount > 0)
	mark("linkedinFollowers", p.LinkedinFollowers > 0)
	mark("instagramFollowers", p.InstagramFollowers > 0)
	mark("clientSatisfactionScore", p.ClientSatisfactionScore > 0)
	mark("repeatClientPercentage", p.RepeatClientPercentage > 0)
	mark("videoUrl", p.VideoURL != "")
	mark("videoThumbnail", p.VideoThumbnail != "")
	mark("videoDuration", p.VideoDuration > 0)
	mark("videoTitle", p.VideoTitle != "")
	mark("videoDescription", p.VideoDescription != "")
	mark("caseStudies", len(p.CaseStudies) > 0)
	mark("innovationHighlights", len(p.InnovationHighlights) > 0)
	mark("teamMembers", len(p.TeamMembers) > 0)
	mark("yachtProjects", len(p.YachtProjects) > 0)
	mark("longDescription", p.LongDescription != "")
	mark("serviceAreas", len(p.ServiceAreas) > 0)
	mark("companyValues", len(p.CompanyValues) > 0)
	mark("locations", len(p.Locations) > 0)
	mark("featuredInCategory", p.FeaturedInCategory)
	mark("advancedAnalytics", p.AdvancedAnalytics)
	mark("apiAccess", p.APIAccess)
	mark("customDomain", p.CustomDomain != "")
	mark("promotionPack", p.PromotionPack)
	mark("editorialContent", p.EditorialContent != "")
	return set
}

// Caller identifies who is performing a mutation.
type Caller struct {
	AccountID string
	IsAdmin   bool
}

// CanAccess reports whether the caller may touch a profile at all.
// Admins bypass ownership; nothing else.
func (c Caller) CanAccess(p *Profile) bool {
	return c.IsAdmin || c.AccountID == p.AccountID
}

// CreateRequest is the request body for registering a profile.
type CreateRequest struct {
	CompanyName  string `json:"companyName" binding:"required"`
	Slug         string `json:"slug" binding:"required"`
	Description  string `json:"description,omitempty"`
	ContactEmail string `json:"contactEmail,omitempty"`
}

// EditView is what GetForEdit returns: the profile plus everything the
// editing UI needs to render tier gates correctly.
type EditView struct {
	Profile          *Profile       `json:"profile"`
	AccessibleFields []string       `json:"accessibleFields"`
	Features         []string       `json:"features"`
	Quotas           Quotas         `json:"quotas"`
	Computed         ComputedFields `json:"computed"`
}

// Quotas reports the account's quantity ceilings and current usage.
type Quotas struct {
	MaxLocations int `json:"maxLocations"`
	MaxProducts  int `json:"maxProducts"`
	MaxMedia     int `json:"maxMedia"`
	Locations    int `json:"locations"`
	Products     int `json:"products"`
	Media        int `json:"media"`
}

// Store persists vendor profiles.
type Store interface {
	Create(ctx context.Context, p *Profile) error
	Get(ctx context.Context, id string) (*Profile, error)
	GetBySlug(ctx context.Context, slug string) (*Profile, error)
	GetByAccount(ctx context.Context, accountID string) (*Profile, error)
	Update(ctx context.Context, p *Profile) error
	UpdateTier(ctx context.Context, accountID string, t tier.Tier) error
	List(ctx context.Context, publishedOnly bool, limit int) ([]*Profile, error)
}

// Notifier receives profile lifecycle events. Implementations must not block.
type Notifier interface {
	ProfileUpdated(p *Profile, changed []string)
	ProfilePublished(p *Profile)
}

// NopNotifier discards all events.
type NopNotifier struct{}

func (NopNotifier) ProfileUpdated(*Profile, []string) {}
func (NopNotifier) ProfilePublished(*Profile)         {}
