package eligibility

import (
	"math"
	"strings"

	"fresherjobs/internal/model"
)

const completionFields = 8

// Completion returns the share of required profile fields that are filled,
// as a whole percentage. Only a complete profile (100) unlocks the feed.
func Completion(p *model.Profile) int {
	if p == nil {
		return 0
	}
	filled := 0
	for _, ok := range []bool{
		strings.TrimSpace(p.FullName) != "",
		strings.TrimSpace(p.Phone) != "",
		strings.TrimSpace(p.College) != "",
		strings.TrimSpace(p.EducationLevel) != "",
		p.GraduationYear != nil || p.PGGraduationYear != nil,
		len(NormalizeSet(p.Skills)) > 0,
		len(NormalizeSet(p.PreferredCities)) > 0,
		len(p.WorkModes) > 0,
	} {
		if ok {
			filled++
		}
	}
	return int(math.Round(float64(filled) * 100 / completionFields))
}

// HasAccess reports whether the profile is complete enough to browse
// opportunities.
func HasAccess(p *model.Profile) bool {
	return Completion(p) == 100
}
