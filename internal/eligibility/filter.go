// Package eligibility implements the in-memory eligibility rules applied on
// top of the coarse database query, plus display ordering and profile
// completion.
package eligibility

import (
	"strings"

	"fresherjobs/internal/model"
)

// FilterEligible returns the opportunities the profile qualifies for, in
// input order. An opportunity qualifies when its allowed degrees contain the
// profile's education level and, if it lists required skills, the profile
// shares at least one of them. A nil profile or a profile without an
// education level qualifies for nothing. The input slice is not modified.
func FilterEligible(opps []model.Opportunity, p *model.Profile) []model.Opportunity {
	out := make([]model.Opportunity, 0, len(opps))
	if p == nil {
		return out
	}
	level := Normalize(p.EducationLevel)
	if level == "" {
		return out
	}
	skills := NormalizeSet(p.Skills)

	for _, o := range opps {
		if !degreeAllowed(o, level) {
			continue
		}
		if !skillsOverlap(o, skills) {
			continue
		}
		out = append(out, o)
	}
	return out
}

func degreeAllowed(o model.Opportunity, level string) bool {
	for _, d := range o.AllowedDegrees {
		if Normalize(d) == level {
			return true
		}
	}
	return false
}

// skillsOverlap passes listings without required skills unconditionally.
func skillsOverlap(o model.Opportunity, skills map[string]struct{}) bool {
	required := NormalizeSet(o.RequiredSkills)
	if len(required) == 0 {
		return true
	}
	for s := range required {
		if _, ok := skills[s]; ok {
			return true
		}
	}
	return false
}

// Normalize trims and lowercases a skill, city or degree label.
func Normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizeSet returns the set of normalized, non-empty values.
func NormalizeSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		if n := Normalize(v); n != "" {
			set[n] = struct{}{}
		}
	}
	return set
}
