package vendors

import (
	"fmt"
	"log/slog"
	"time"
)

// ComputedFields are derived read-only attributes attached to a profile on
// read. They are never stored.
type ComputedFields struct {
	YearsInBusiness    *int     `json:"yearsInBusiness"`
	AgeCategory        string   `json:"ageCategory,omitempty"`
	TotalFollowers     int      `json:"totalFollowers"`
	ProfileCompletion  int      `json:"profileCompletion"`
	PublishReady       bool     `json:"publishReady"`
	RecommendedActions []string `json:"recommendedActions,omitempty"`
}

// Compute derives the computed fields for a profile as of now.
func Compute(p *Profile) ComputedFields {
	return computeAt(p, time.Now())
}

func computeAt(p *Profile, now time.Time) ComputedFields {
	c := ComputedFields{
		TotalFollowers: p.LinkedinFollowers + p.InstagramFollowers,
	}

	if years, ok := yearsInBusiness(p.FoundedYear, now); ok {
		c.YearsInBusiness = &years
		c.AgeCategory = ageCategory(years)
	} else if p.FoundedYear != 0 {
		slog.Warn("founded year out of range, skipping years in business",
			"profileId", p.ID, "foundedYear", p.FoundedYear)
	}

	c.ProfileCompletion = profileCompletion(p)
	c.RecommendedActions = recommendedActions(p)
	c.PublishReady = len(missingRequired(p)) == 0

	return c
}

// yearsInBusiness returns how long the company has existed. Founded years
// before 1800 or in the future are treated as not provided.
func yearsInBusiness(founded int, now time.Time) (int, bool) {
	if founded < MinFoundedYear || founded > now.Year() {
		return 0, false
	}
	return now.Year() - founded, true
}

// ageCategory buckets company age for the directory UI.
func ageCategory(years int) string {
	switch {
	case years < 5:
		return "Emerging"
	case years < 10:
		return "Growing"
	case years < 20:
		return "Established"
	default:
		return "Industry Veteran"
	}
}

// requiredFields are the minimum a profile needs before it can be published.
// They carry 60% of the completion score; the optional surface carries 40%.
var requiredFields = []struct {
	name    string
	present func(*Profile) bool
}{
	{"companyName", func(p *Profile) bool { return p.CompanyName != "" }},
	{"slug", func(p *Profile) bool { return p.Slug != "" }},
	{"description", func(p *Profile) bool { return p.Description != "" }},
	{"contactEmail", func(p *Profile) bool { return p.ContactEmail != "" }},
	{"logo", func(p *Profile) bool { return p.Logo != "" }},
}

var optionalFields = []struct {
	name    string
	present func(*Profile) bool
}{
	{"contactPhone", func(p *Profile) bool { return p.ContactPhone != "" }},
	{"website", func(p *Profile) bool { return p.Website != "" }},
	{"linkedinUrl", func(p *Profile) bool { return p.LinkedinURL != "" }},
	{"foundedYear", func(p *Profile) bool { return p.FoundedYear != 0 }},
	{"longDescription", func(p *Profile) bool { return p.LongDescription != "" }},
	{"certifications", func(p *Profile) bool { return len(p.Certifications) > 0 }},
	{"teamMembers", func(p *Profile) bool { return len(p.TeamMembers) > 0 }},
	{"caseStudies", func(p *Profile) bool { return len(p.CaseStudies) > 0 }},
	{"serviceAreas", func(p *Profile) bool { return len(p.ServiceAreas) > 0 }},
	{"videoUrl", func(p *Profile) bool { return p.VideoURL != "" }},
}

func missingRequired(p *Profile) []string {
	var missing []string
	for _, f := range requiredFields {
		if !f.present(p) {
			missing = append(missing, f.name)
		}
	}
	return missing
}

// profileCompletion scores the profile 0-100. Required fields weigh 60%,
// the optional surface 40%.
func profileCompletion(p *Profile) int {
	var reqDone int
	for _, f := range requiredFields {
		if f.present(p) {
			reqDone++
		}
	}
	var optDone int
	for _, f := range optionalFields {
		if f.present(p) {
			optDone++
		}
	}

	score := 60.0*float64(reqDone)/float64(len(requiredFields)) +
		40.0*float64(optDone)/float64(len(optionalFields))
	return int(score + 0.5)
}

// recommendedActions suggests the next profile improvements, required
// fields first.
func recommendedActions(p *Profile) []string {
	var actions []string
	for _, name := range missingRequired(p) {
		actions = append(actions, fmt.Sprintf("Add %s to make your profile publishable", name))
	}
	if p.LongDescription == "" {
		actions = append(actions, "Write a detailed company description")
	}
	if len(p.TeamMembers) == 0 {
		actions = append(actions, "Introduce your team")
	}
	if len(p.CaseStudies) == 0 {
		actions = append(actions, "Showcase past work with a case study")
	}
	if p.VideoURL == "" {
		actions = append(actions, "Add a presentation video")
	}
	if len(actions) > 5 {
		actions = actions[:5]
	}
	return actions
}
