package vendors

import (
	"bytes"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var computedNow = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func TestComputed_YearsInBusiness(t *testing.T) {
	p := &Profile{FoundedYear: 2003}
	c := computeAt(p, computedNow)

	require.NotNil(t, c.YearsInBusiness)
	assert.Equal(t, 23, *c.YearsInBusiness)
	assert.Equal(t, "Industry Veteran", c.AgeCategory)
}

func TestComputed_FoundedYearOutOfRange(t *testing.T) {
	for _, founded := range []int{0, 1700, computedNow.Year() + 1} {
		c := computeAt(&Profile{FoundedYear: founded}, computedNow)
		assert.Nil(t, c.YearsInBusiness, "founded=%d", founded)
		assert.Empty(t, c.AgeCategory, "founded=%d", founded)
	}
}

func TestComputed_FoundedYearOutOfRangeWarns(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	defer slog.SetDefault(prev)

	c := computeAt(&Profile{ID: "vnd_warn1", FoundedYear: 1700}, computedNow)
	assert.Nil(t, c.YearsInBusiness)
	assert.Contains(t, buf.String(), "founded year out of range")
	assert.Contains(t, buf.String(), "vnd_warn1")

	// An unset year is simply absent, not an anomaly.
	buf.Reset()
	computeAt(&Profile{ID: "vnd_warn2"}, computedNow)
	assert.Empty(t, buf.String())
}

func TestComputed_AgeCategories(t *testing.T) {
	cases := map[int]string{
		2024: "Emerging",
		2019: "Growing",
		2010: "Established",
		1995: "Industry Veteran",
	}
	for founded, want := range cases {
		c := computeAt(&Profile{FoundedYear: founded}, computedNow)
		assert.Equal(t, want, c.AgeCategory, "founded=%d", founded)
	}
}

func TestComputed_TotalFollowers(t *testing.T) {
	c := computeAt(&Profile{LinkedinFollowers: 1200, InstagramFollowers: 3400}, computedNow)
	assert.Equal(t, 4600, c.TotalFollowers)
}

func TestComputed_ProfileCompletion(t *testing.T) {
	// Empty profile scores zero.
	c := computeAt(&Profile{}, computedNow)
	assert.Equal(t, 0, c.ProfileCompletion)
	assert.False(t, c.PublishReady)

	// All required fields present, no optional ones: 60.
	full := &Profile{
		CompanyName:  "Pacific Marine",
		Slug:         "pacific-marine",
		Description:  "Bridge systems",
		ContactEmail: "info@example.com",
		Logo:         "https://cdn.example/logo.png",
	}
	c = computeAt(full, computedNow)
	assert.Equal(t, 60, c.ProfileCompletion)
	assert.True(t, c.PublishReady)
}

func TestComputed_RecommendedActions(t *testing.T) {
	c := computeAt(&Profile{}, computedNow)

	// Required gaps come first and the list is capped at five.
	require.Len(t, c.RecommendedActions, 5)
	assert.Contains(t, c.RecommendedActions[0], "companyName")

	// A nearly complete profile gets only the remaining suggestions.
	p := &Profile{
		CompanyName:     "Pacific Marine",
		Slug:            "pacific-marine",
		Description:     "Bridge systems",
		ContactEmail:    "info@example.com",
		Logo:            "https://cdn.example/logo.png",
		LongDescription: "Long form company history.",
		TeamMembers:     []TeamMember{{Name: "Ana"}},
		CaseStudies:     []CaseStudy{{Title: "M/Y Aurora refit"}},
	}
	c = computeAt(p, computedNow)
	assert.Equal(t, []string{"Add a presentation video"}, c.RecommendedActions)
}
