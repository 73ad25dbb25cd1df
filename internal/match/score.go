// Package match scores how well an opportunity fits a candidate profile.
package match

import (
	"fmt"
	"math"
	"slices"
	"time"

	"fresherjobs/internal/eligibility"
	"fresherjobs/internal/model"
)

// Reasons reported alongside a score.
const (
	ReasonNoProfile     = "Complete profile for match score"
	ReasonGeneral       = "General fit"
	ReasonEligibleBatch = "Eligible batch"
)

// Component weights and caps.
const (
	skillWeight      = 45.0
	openSkillsScore  = 20.0
	batchScore       = 15.0
	openBatchScore   = 7.0
	experienceScore  = 15.0
	openExperience   = 8.0
	eligibilityCap   = 30.0
	cityScore        = 10.0
	modeScore        = 5.0
	openModeScore    = 2.0
	preferenceCap    = 15.0
	urgentScore      = 10.0
	soonScore        = 5.0
	fresherBaseline  = 0
	urgentWithinDays = 2.0
	soonWithinDays   = 7.0
)

// Result is a 0-100 relevance score with its strongest reason.
type Result struct {
	Score  int    `json:"score"`
	Reason string `json:"reason"`
}

// Score rates opportunity o for profile p at time now. It is pure: the same
// inputs always give the same result.
func Score(p *model.Profile, o model.Opportunity, now time.Time) Result {
	if p == nil {
		return Result{Score: 0, Reason: ReasonNoProfile}
	}

	reason := ReasonGeneral
	skillReason := false
	total := 0.0

	required := eligibility.NormalizeSet(o.RequiredSkills)
	have := eligibility.NormalizeSet(p.Skills)
	switch {
	case len(required) == 0:
		total += openSkillsScore
	case len(have) > 0:
		matched := 0
		for s := range required {
			if _, ok := have[s]; ok {
				matched++
			}
		}
		total += float64(matched) / float64(len(required)) * skillWeight
		if matched > 0 {
			reason = fmt.Sprintf("%d matching skills", matched)
			skillReason = true
		}
	}

	batch := 0.0
	switch {
	case len(o.AllowedPassoutYears) == 0:
		batch = openBatchScore
	case yearAllowed(o.AllowedPassoutYears, p.GraduationYear) || yearAllowed(o.AllowedPassoutYears, p.PGGraduationYear):
		batch = batchScore
		if !skillReason {
			reason = ReasonEligibleBatch
		}
	}
	exp := 0.0
	switch {
	case o.ExperienceMax == nil:
		exp = openExperience
	case experienceFits(o.ExperienceMin, *o.ExperienceMax):
		exp = experienceScore
	}
	total += math.Min(batch+exp, eligibilityCap)

	pref := 0.0
	if citiesOverlap(p.PreferredCities, o.Locations) {
		pref += cityScore
	}
	switch {
	case o.WorkMode == nil:
		pref += openModeScore
	case slices.Contains(p.WorkModes, *o.WorkMode):
		pref += modeScore
	}
	total += math.Min(pref, preferenceCap)

	if o.ExpiresAt != nil {
		daysLeft := o.ExpiresAt.Sub(now).Hours() / 24
		switch {
		case daysLeft > 0 && daysLeft <= urgentWithinDays:
			total += urgentScore
		case daysLeft > urgentWithinDays && daysLeft <= soonWithinDays:
			total += soonScore
		}
	}

	return Result{Score: clamp(total), Reason: reason}
}

func yearAllowed(years []int, year *int) bool {
	return year != nil && slices.Contains(years, *year)
}

func experienceFits(minYears *int, maxYears int) bool {
	lo := 0
	if minYears != nil {
		lo = *minYears
	}
	return lo <= fresherBaseline && fresherBaseline <= maxYears
}

func citiesOverlap(preferred, locations []string) bool {
	want := eligibility.NormalizeSet(preferred)
	for l := range eligibility.NormalizeSet(locations) {
		if _, ok := want[l]; ok {
			return true
		}
	}
	return false
}

func clamp(v float64) int {
	return int(math.Round(math.Max(0, math.Min(100, v))))
}
