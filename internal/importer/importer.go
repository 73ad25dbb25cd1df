// Package importer turns partner RSS/Atom job feeds into draft listings.
package importer

import (
	"context"
	"crypto/sha256"
	"fmt"
	"html"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mmcdole/gofeed"

	"fresherjobs/internal/model"
)

// MaxDescription is the longest description kept from a feed item, in runes.
const MaxDescription = 2000

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Candidate is a feed item that passed the source's rules, mapped to a
// draft listing.
type Candidate struct {
	GUID        string
	Opportunity model.Opportunity
}

// Importer downloads and parses partner feeds.
type Importer struct {
	client HTTPClient
	now    func() time.Time
}

// New creates an Importer with the given HTTP client.
func New(client HTTPClient) *Importer {
	return &Importer{client: client, now: time.Now}
}

// Fetch downloads and parses a feed from the given URL.
func (im *Importer) Fetch(ctx context.Context, url string) (*gofeed.Feed, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "FresherJobsImporter/1.0")

	resp, err := im.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 5*1024*1024))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	feed, err := gofeed.NewParser().ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}
	return feed, nil
}

// Candidates maps the feed's items to draft listings of the source's
// default type and keeps the ones rules allows.
func (im *Importer) Candidates(feed *gofeed.Feed, src model.Source, rules *RuleSet) []Candidate {
	var out []Candidate
	for _, item := range feed.Items {
		if item == nil {
			continue
		}
		desc := cleanText(item.Description)
		if desc == "" {
			desc = cleanText(item.Content)
		}
		opp := im.toOpportunity(item, feed, src, desc)
		if !rules.Allows(opp) {
			continue
		}
		out = append(out, Candidate{GUID: ItemGUID(item), Opportunity: opp})
	}
	return out
}

func (im *Importer) toOpportunity(item *gofeed.Item, feed *gofeed.Feed, src model.Source, desc string) model.Opportunity {
	title, company := SplitTitle(strings.TrimSpace(item.Title))
	if company == "" && item.Author != nil {
		company = strings.TrimSpace(item.Author.Name)
	}
	if company == "" && len(item.Authors) > 0 && item.Authors[0] != nil {
		company = strings.TrimSpace(item.Authors[0].Name)
	}
	if company == "" {
		company = strings.TrimSpace(feed.Title)
	}
	if company == "" {
		company = src.Name
	}

	posted := im.now()
	switch {
	case item.PublishedParsed != nil:
		posted = *item.PublishedParsed
	case item.UpdatedParsed != nil:
		posted = *item.UpdatedParsed
	}

	return model.Opportunity{
		Type:                classify(item.Title, src.DefaultType),
		Title:               title,
		Company:             company,
		Description:         truncate(desc, MaxDescription),
		AllowedDegrees:      []string{},
		AllowedPassoutYears: []int{},
		RequiredSkills:      append([]string{}, item.Categories...),
		Locations:           []string{},
		ApplyLink:           item.Link,
		Status:              model.StatusDraft,
		PostedAt:            posted,
	}
}

// ItemGUID returns the GUID for a feed item.
// If the item has no GUID, a SHA-256 hash of title+link is used.
func ItemGUID(item *gofeed.Item) string {
	if item.GUID != "" {
		return item.GUID
	}
	h := sha256.Sum256([]byte(item.Title + "|" + item.Link))
	return fmt.Sprintf("sha256:%x", h[:16])
}

// SplitTitle splits "Title at Company" and "Company: Title" headlines.
// Company is empty when neither form applies.
func SplitTitle(s string) (title, company string) {
	if i := strings.LastIndex(s, " at "); i > 0 && i+4 < len(s) {
		return strings.TrimSpace(s[:i]), strings.TrimSpace(s[i+4:])
	}
	if i := strings.Index(s, ": "); i > 0 && i+2 < len(s) {
		return strings.TrimSpace(s[i+2:]), strings.TrimSpace(s[:i])
	}
	return s, ""
}

var (
	walkInRe     = regexp.MustCompile(`(?i)\bwalk[\s-]?in\b`)
	internshipRe = regexp.MustCompile(`(?i)\bintern(ship)?\b`)
	tagRe        = regexp.MustCompile(`<[^>]*>`)
	spaceRe      = regexp.MustCompile(`\s+`)
)

func classify(title string, fallback model.OpportunityType) model.OpportunityType {
	switch {
	case walkInRe.MatchString(title):
		return model.TypeWalkIn
	case internshipRe.MatchString(title):
		return model.TypeInternship
	case fallback != "":
		return fallback
	default:
		return model.TypeJob
	}
}

func cleanText(s string) string {
	s = tagRe.ReplaceAllString(s, " ")
	s = html.UnescapeString(s)
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "..."
}
