package eligibility

import (
	"slices"

	"fresherjobs/internal/model"
)

// SortForDisplay returns a new slice with walk-ins first, then each group
// by posting time, newest first. Ties keep their input order.
func SortForDisplay(opps []model.Opportunity) []model.Opportunity {
	out := slices.Clone(opps)
	slices.SortStableFunc(out, func(a, b model.Opportunity) int {
		aw, bw := a.Type == model.TypeWalkIn, b.Type == model.TypeWalkIn
		if aw != bw {
			if aw {
				return -1
			}
			return 1
		}
		return b.PostedAt.Compare(a.PostedAt)
	})
	return out
}
