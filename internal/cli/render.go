package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"fresherjobs/internal/eligibility"
	"fresherjobs/internal/model"
	"fresherjobs/internal/offline"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10")).
			Bold(true)

	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
)

// humanAge formats how long ago something happened.
func humanAge(d time.Duration) string {
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d/time.Minute))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d/time.Hour))
	default:
		return fmt.Sprintf("%dd ago", int(d/(24*time.Hour)))
	}
}

func renderFeed(w io.Writer, res *FeedResult, now time.Time) {
	if res.FromCache {
		fmt.Fprintln(w, warnStyle.Render("showing cached data from "+humanAge(now.Sub(res.CachedAt))))
	}
	if len(res.Items) == 0 {
		fmt.Fprintln(w, "No eligible opportunities.")
		return
	}
	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("Opportunities (%d of %d)", len(res.Items), res.Count)))
	for i, item := range res.Items {
		o := item.Opportunity
		fmt.Fprintf(w, "\n%s [%s] %s, %s\n", labelStyle.Render(fmt.Sprintf("%d.", i+1)), o.Type, o.Title, o.Company)
		fmt.Fprintf(w, "   %s %d%% %s\n", labelStyle.Render("Match:"), item.Match.Score, item.Match.Reason)
		if len(o.Locations) > 0 {
			loc := strings.Join(o.Locations, ", ")
			if o.WorkMode != nil {
				loc += " (" + strings.ToLower(string(*o.WorkMode)) + ")"
			}
			fmt.Fprintf(w, "   %s %s\n", labelStyle.Render("Location:"), loc)
		}
		if o.ExpiresAt != nil {
			fmt.Fprintf(w, "   %s %s\n", labelStyle.Render("Closes:"), o.ExpiresAt.UTC().Format("Jan 2, 2006"))
		}
		if o.ApplyLink != "" {
			fmt.Fprintf(w, "   %s %s\n", labelStyle.Render("Apply:"), o.ApplyLink)
		}
		fmt.Fprintln(w, mutedStyle.Render("   id: "+o.ID))
	}
}

func renderPending(w io.Writer, actions []model.OfflineAction, now time.Time) {
	if len(actions) == 0 {
		fmt.Fprintln(w, "No pending actions.")
		return
	}
	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("Pending actions (%d)", len(actions))))
	for _, a := range actions {
		kind := string(a.Type)
		if a.ActionType != "" {
			kind += " " + string(a.ActionType)
		}
		age := humanAge(now.Sub(time.UnixMilli(a.CreatedAt)))
		fmt.Fprintf(w, "  %s %s %s\n", labelStyle.Render(kind), a.OpportunityID,
			mutedStyle.Render(fmt.Sprintf("queued %s, %d attempt(s)", age, a.Attempts)))
	}
}

func renderFlush(w io.Writer, r offline.FlushResult) {
	fmt.Fprintf(w, "Synced %d, failed %d, remaining %d.\n", r.Synced, r.Failed, r.Remaining)
	if r.AuthRequired {
		fmt.Fprintln(w, warnStyle.Render("Session expired. Log in again with: fresher config set token <token>"))
	}
}

func renderProfile(w io.Writer, p *model.Profile, cached bool) {
	if p == nil {
		fmt.Fprintln(w, "No profile yet. Complete it in the web app to unlock the feed.")
		return
	}
	heading := "Profile"
	if cached {
		heading += " (cached copy)"
	}
	fmt.Fprintln(w, titleStyle.Render(heading))
	field := func(label, value string) {
		if value == "" {
			value = mutedStyle.Render("-")
		}
		fmt.Fprintf(w, "%s %s\n", labelStyle.Render(label), value)
	}
	year := ""
	if p.GraduationYear != nil {
		year = fmt.Sprint(*p.GraduationYear)
	}
	modes := make([]string, 0, len(p.WorkModes))
	for _, m := range p.WorkModes {
		modes = append(modes, string(m))
	}
	field("Name:", p.FullName)
	field("College:", p.College)
	field("Education:", p.EducationLevel)
	field("Graduation:", year)
	field("Skills:", strings.Join(p.Skills, ", "))
	field("Cities:", strings.Join(p.PreferredCities, ", "))
	field("Work modes:", strings.Join(modes, ", "))
	field("Completion:", fmt.Sprintf("%d%%", eligibility.Completion(p)))
}
