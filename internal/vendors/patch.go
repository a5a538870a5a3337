package vendors

import "encoding/json"

// profilePatch mirrors Profile's editable surface with pointer fields so a
// partial update can tell "absent" from "set to zero value".
type profilePatch struct {
	CompanyName  *string `json:"companyName"`
	Slug         *string `json:"slug"`
	Description  *string `json:"description"`
	Logo         *string `json:"logo"`
	ContactEmail *string `json:"contactEmail"`
	ContactPhone *string `json:"contactPhone"`
	Published    *bool   `json:"published"`
	Featured     *bool   `json:"featured"`
	Partner      *bool   `json:"partner"`

	Website                 *string       `json:"website"`
	LinkedinURL             *string       `json:"linkedinUrl"`
	TwitterURL              *string       `json:"twitterUrl"`
	FoundedYear             *int          `json:"foundedYear"`
	Certifications          *[]string     `json:"certifications"`
	Awards                  *[]string     `json:"awards"`
	TotalProjects           *int          `json:"totalProjects"`
	EmployeeCount           *int          `json:"employeeCount"`
	LinkedinFollowers       *int          `json:"linkedinFollowers"`
	InstagramFollowers      *int          `json:"instagramFollowers"`
	ClientSatisfactionScore *float64      `json:"clientSatisfactionScore"`
	RepeatClientPercentage  *float64      `json:"repeatClientPercentage"`
	VideoURL                *string       `json:"videoUrl"`
	VideoThumbnail          *string       `json:"videoThumbnail"`
	VideoDuration           *int          `json:"videoDuration"`
	VideoTitle              *string       `json:"videoTitle"`
	VideoDescription        *string       `json:"videoDescription"`
	CaseStudies             *[]CaseStudy  `json:"caseStudies"`
	InnovationHighlights    *[]string     `json:"innovationHighlights"`
	TeamMembers             *[]TeamMember `json:"teamMembers"`
	YachtProjects           *[]Project    `json:"yachtProjects"`
	LongDescription         *string       `json:"longDescription"`
	ServiceAreas            *[]string     `json:"serviceAreas"`
	CompanyValues           *[]string     `json:"companyValues"`

	Locations          *[]Location `json:"locations"`
	FeaturedInCategory *bool       `json:"featuredInCategory"`
	AdvancedAnalytics  *bool       `json:"advancedAnalytics"`
	APIAccess          *bool       `json:"apiAccess"`
	CustomDomain       *string     `json:"customDomain"`

	PromotionPack    *bool   `json:"promotionPack"`
	EditorialContent *string `json:"editorialContent"`

	Products *[]Product   `json:"products"`
	Media    *[]MediaItem `json:"media"`
}

// decodePatch turns the raw change set into a typed patch. Field names have
// already been vetted against the tier allow-list, so unknown keys cannot
// reach this point.
func decodePatch(changes map[string]json.RawMessage) (*profilePatch, error) {
	data, err := json.Marshal(changes)
	if err != nil {
		return nil, err
	}
	var patch profilePatch
	if err := json.Unmarshal(data, &patch); err != nil {
		return nil, err
	}
	return &patch, nil
}

// apply copies every set field onto the profile.
func (pp *profilePatch) apply(p *Profile) {
	setString := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	setBool := func(dst *bool, src *bool) {
		if src != nil {
			*dst = *src
		}
	}
	setInt := func(dst *int, src *int) {
		if src != nil {
			*dst = *src
		}
	}
	setFloat := func(dst *float64, src *float64) {
		if src != nil {
			*dst = *src
		}
	}

	setString(&p.CompanyName, pp.CompanyName)
	setString(&p.Slug, pp.Slug)
	setString(&p.Description, pp.Description)
	setString(&p.Logo, pp.Logo)
	setString(&p.ContactEmail, pp.ContactEmail)
	setString(&p.ContactPhone, pp.ContactPhone)
	setBool(&p.Published, pp.Published)
	setBool(&p.Featured, pp.Featured)
	setBool(&p.Partner, pp.Partner)

	setString(&p.Website, pp.Website)
	setString(&p.LinkedinURL, pp.LinkedinURL)
	setString(&p.TwitterURL, pp.TwitterURL)
	setInt(&p.FoundedYear, pp.FoundedYear)
	if pp.Certifications != nil {
		p.Certifications = *pp.Certifications
	}
	if pp.Awards != nil {
		p.Awards = *pp.Awards
	}
	setInt(&p.TotalProjects, pp.TotalProjects)
	setInt(&p.EmployeeCount, pp.EmployeeCount)
	setInt(&p.LinkedinFollowers, pp.LinkedinFollowers)
	setInt(&p.InstagramFollowers, pp.InstagramFollowers)
	setFloat(&p.ClientSatisfactionScore, pp.ClientSatisfactionScore)
	setFloat(&p.RepeatClientPercentage, pp.RepeatClientPercentage)
	setString(&p.VideoURL, pp.VideoURL)
	setString(&p.VideoThumbnail, pp.VideoThumbnail)
	setInt(&p.VideoDuration, pp.VideoDuration)
	setString(&p.VideoTitle, pp.VideoTitle)
	setString(&p.VideoDescription, pp.VideoDescription)
	if pp.CaseStudies != nil {
		p.CaseStudies = *pp.CaseStudies
	}
	if pp.InnovationHighlights != nil {
		p.InnovationHighlights = *pp.InnovationHighlights
	}
	if pp.TeamMembers != nil {
		p.TeamMembers = *pp.TeamMembers
	}
	if pp.YachtProjects != nil {
		p.YachtProjects = *pp.YachtProjects
	}
	setString(&p.LongDescription, pp.LongDescription)
	if pp.ServiceAreas != nil {
		p.ServiceAreas = *pp.ServiceAreas
	}
	if pp.CompanyValues != nil {
		p.CompanyValues = *pp.CompanyValues
	}

	if pp.Locations != nil {
		p.Locations = *pp.Locations
	}
	setBool(&p.FeaturedInCategory, pp.FeaturedInCategory)
	setBool(&p.AdvancedAnalytics, pp.AdvancedAnalytics)
	setBool(&p.APIAccess, pp.APIAccess)
	setString(&p.CustomDomain, pp.CustomDomain)

	setBool(&p.PromotionPack, pp.PromotionPack)
	setString(&p.EditorialContent, pp.EditorialContent)

	if pp.Products != nil {
		p.Products = *pp.Products
	}
	if pp.Media != nil {
		p.Media = *pp.Media
	}
}
