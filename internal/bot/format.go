package bot

import (
	"fmt"
	"strings"

	"fresherjobs/internal/funnel"
	"fresherjobs/internal/model"
)

const (
	statusActive = "active"
	statusPaused = "paused"
)

// FormatOpportunity formats a listing as a broadcast message.
func FormatOpportunity(o model.Opportunity) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s\n%s", o.Type, o.Title, o.Company)
	if len(o.Locations) > 0 {
		fmt.Fprintf(&b, "\nLocation: %s", strings.Join(o.Locations, ", "))
	}
	if o.WorkMode != nil {
		fmt.Fprintf(&b, " (%s)", strings.ToLower(string(*o.WorkMode)))
	}
	if len(o.AllowedPassoutYears) > 0 {
		years := make([]string, len(o.AllowedPassoutYears))
		for i, y := range o.AllowedPassoutYears {
			years[i] = fmt.Sprint(y)
		}
		fmt.Fprintf(&b, "\nBatch: %s", strings.Join(years, ", "))
	}
	if o.ExpiresAt != nil {
		fmt.Fprintf(&b, "\nApply by: %s", o.ExpiresAt.UTC().Format("2006-01-02 15:04 UTC"))
	}
	if o.ApplyLink != "" {
		b.WriteString("\n\n")
		b.WriteString(o.ApplyLink)
	}
	return b.String()
}

// FormatOpportunityList formats listings with their IDs for admin commands.
func FormatOpportunityList(heading string, opps []model.Opportunity) string {
	if len(opps) == 0 {
		return fmt.Sprintf("%s: none.", heading)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%d):\n", heading, len(opps))
	for _, o := range opps {
		fmt.Fprintf(&b, "\n[%s] %s, %s [%s]\n", o.Type, o.Title, o.Company, o.Status)
		fmt.Fprintf(&b, "   id: %s\n", o.ID)
	}
	return b.String()
}

// FormatFunnel formats growth funnel metrics, totals first.
func FormatFunnel(m funnel.Metrics) string {
	if len(m.Sources) == 0 {
		return "No funnel events recorded yet."
	}
	var b strings.Builder
	b.WriteString("Growth funnel (detail > login > auth):\n")
	writeRow := func(r funnel.Row) {
		fmt.Fprintf(&b, "\n%s: %d > %d > %d, %d signups\n", r.Source, r.DetailViews, r.LoginViews, r.AuthSuccess, r.SignupSuccess)
		fmt.Fprintf(&b, "   detail>login %.2f%%, login>auth %.2f%%\n", r.DetailToLoginPercent, r.LoginToAuthPercent)
	}
	writeRow(m.Totals)
	for _, r := range m.Sources {
		writeRow(r)
	}
	return b.String()
}

// FormatSourceList formats import sources for display.
func FormatSourceList(sources []model.Source, ruleCounts map[int64][2]int) string {
	if len(sources) == 0 {
		return "No import sources yet. Use /addsource <url> to add one."
	}
	var b strings.Builder
	b.WriteString("Import sources:\n")
	for _, s := range sources {
		status := statusActive
		if !s.IsActive {
			status = statusPaused
		}
		fmt.Fprintf(&b, "\n#%d %s  [%s, every %d min] [%s]\n", s.ID, s.Name, s.DefaultType, s.IntervalMinutes, status)
		if s.LastCheckAt != nil {
			fmt.Fprintf(&b, "   last check %s\n", s.LastCheckAt.Format("2006-01-02 15:04 UTC"))
		}
		inc, exc := ruleCounts[s.ID][0], ruleCounts[s.ID][1]
		if inc == 0 && exc == 0 {
			b.WriteString("   no rules\n")
		} else {
			fmt.Fprintf(&b, "   %d include, %d exclude rules\n", inc, exc)
		}
	}
	return b.String()
}

// FormatRuleList formats the rules of a source grouped by kind.
func FormatRuleList(src *model.Source, rules []model.Rule) string {
	if len(rules) == 0 {
		return fmt.Sprintf("No rules for #%d \"%s\", every item is imported.\nUse /include, /exclude, /include_re, /exclude_re to add rules.", src.ID, src.Name)
	}

	groups := map[model.RuleKind][]model.Rule{}
	for _, r := range rules {
		groups[r.Kind] = append(groups[r.Kind], r)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Rules for #%d \"%s\":\n", src.ID, src.Name)

	order := []struct {
		kind  model.RuleKind
		label string
	}{
		{model.RuleInclude, "Include (word)"},
		{model.RuleIncludeRe, "Include (regex)"},
		{model.RuleExclude, "Exclude (word)"},
		{model.RuleExcludeRe, "Exclude (regex)"},
	}
	for _, g := range order {
		rs := groups[g.kind]
		if len(rs) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n%s:\n", g.label)
		for _, r := range rs {
			fmt.Fprintf(&b, "  R%d: %s (%s)\n", r.ID, r.Value, scopeLabel(r.Scope))
		}
	}
	return b.String()
}

func shorten(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func scopeLabel(s model.RuleScope) string {
	switch s {
	case model.ScopeTitle:
		return "title only"
	case model.ScopeCompany:
		return "company only"
	case model.ScopeContent:
		return "content only"
	default:
		return "title+company+content"
	}
}
