package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"fresherjobs/internal/model"
)

var ignoreOppTS = cmpopts.IgnoreFields(model.Opportunity{}, "UpdatedAt", "DeletedAt")

func ptr[T any](v T) *T { return &v }

func seedOpportunities(t *testing.T, s *SQLite, opps []model.Opportunity) {
	t.Helper()
	for i := range opps {
		if err := s.CreateOpportunity(context.Background(), &opps[i]); err != nil {
			t.Fatalf("create %s: %v", opps[i].ID, err)
		}
	}
}

func oppIDs(opps []model.Opportunity) []string {
	out := make([]string, 0, len(opps))
	for _, o := range opps {
		out = append(out, o.ID)
	}
	return out
}

func TestOpportunityRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	posted := time.Date(2025, 1, 10, 9, 30, 0, 0, time.UTC)
	mode := model.WorkHybrid
	o := model.Opportunity{
		Type:                model.TypeInternship,
		Title:               "Data Intern",
		Company:             "Acme",
		Description:         "Six month internship",
		AllowedDegrees:      []string{"BTECH", "MCA"},
		AllowedPassoutYears: []int{2025, 2026},
		RequiredSkills:      []string{"SQL", "Python"},
		Locations:           []string{"Pune"},
		WorkMode:            &mode,
		SalaryMin:           ptr(15000),
		ExperienceMax:       ptr(0),
		ApplyLink:           "https://acme.example/apply",
		Status:              model.StatusPublished,
		PostedAt:            posted,
		ExpiresAt:           ptr(posted.Add(30 * 24 * time.Hour)),
	}
	if err := s.CreateOpportunity(ctx, &o); err != nil {
		t.Fatalf("create: %v", err)
	}
	if o.ID == "" {
		t.Fatal("expected generated ID")
	}

	got, err := s.GetOpportunity(ctx, o.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if diff := cmp.Diff(o, *got, ignoreOppTS); diff != "" {
		t.Errorf("GetOpportunity mismatch (-want +got):\n%s", diff)
	}

	if _, err := s.GetOpportunity(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("get missing: err = %v, want ErrNotFound", err)
	}
}

func TestUpdateAndSoftDelete(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	o := model.Opportunity{ID: "o1", Type: model.TypeJob, Title: "Dev", Company: "Acme", Status: model.StatusDraft}
	seedOpportunities(t, s, []model.Opportunity{o})

	o.Status = model.StatusPublished
	o.Title = "Junior Developer"
	if err := s.UpdateOpportunity(ctx, &o); err != nil {
		t.Fatalf("update: %v", err)
	}
	if o.UpdatedAt == nil {
		t.Error("expected UpdatedAt to be stamped")
	}

	got, _ := s.GetOpportunity(ctx, "o1")
	if got.Title != "Junior Developer" || got.Status != model.StatusPublished {
		t.Errorf("got %q %s", got.Title, got.Status)
	}

	if err := s.SoftDeleteOpportunity(ctx, "o1"); err != nil {
		t.Fatalf("soft delete: %v", err)
	}
	got, _ = s.GetOpportunity(ctx, "o1")
	if got.DeletedAt == nil || got.Visible() {
		t.Error("expected listing to be hidden")
	}
	if err := s.SoftDeleteOpportunity(ctx, "o1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete: err = %v, want ErrNotFound", err)
	}
	if err := s.UpdateOpportunity(ctx, &o); !errors.Is(err, ErrNotFound) {
		t.Errorf("update deleted: err = %v, want ErrNotFound", err)
	}
}

func TestListOpportunities(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	day := 24 * time.Hour
	seedOpportunities(t, s, []model.Opportunity{
		{ID: "job-pune", Type: model.TypeJob, Title: "A", Company: "X", Status: model.StatusPublished,
			AllowedDegrees: []string{"BTECH"}, Locations: []string{"Pune, MH"}, PostedAt: now.Add(-1 * day)},
		{ID: "walkin-blr", Type: model.TypeWalkIn, Title: "B", Company: "Y", Status: model.StatusActive,
			AllowedDegrees: []string{"btech", "BCA"}, Locations: []string{"Bengaluru"}, PostedAt: now.Add(-2 * day),
			ExpiresAt: ptr(now.Add(2 * day))},
		{ID: "intern-remote", Type: model.TypeInternship, Title: "C", Company: "Z", Status: model.StatusPublished,
			AllowedDegrees: []string{"MCA"}, Locations: []string{"Remote"}, PostedAt: now.Add(-3 * day),
			ExpiresAt: ptr(now.Add(10 * day))},
		{ID: "draft", Type: model.TypeJob, Title: "D", Company: "X", Status: model.StatusDraft,
			AllowedDegrees: []string{"BTECH"}, PostedAt: now},
		{ID: "expired", Type: model.TypeJob, Title: "E", Company: "X", Status: model.StatusPublished,
			AllowedDegrees: []string{"BTECH"}, PostedAt: now, ExpiresAt: ptr(now.Add(-time.Hour))},
	})
	if _, err := s.ToggleSave(ctx, "u1", "intern-remote"); err != nil {
		t.Fatalf("save: %v", err)
	}

	tests := []struct {
		name      string
		query     ListQuery
		wantIDs   []string
		wantTotal int
	}{
		{name: "all visible", query: ListQuery{Now: now}, wantIDs: []string{"job-pune", "walkin-blr", "intern-remote"}, wantTotal: 3},
		{name: "by type", query: ListQuery{Now: now, Type: model.TypeWalkIn}, wantIDs: []string{"walkin-blr"}, wantTotal: 1},
		{name: "by city", query: ListQuery{Now: now, City: "pune"}, wantIDs: []string{"job-pune"}, wantTotal: 1},
		{name: "closing soon", query: ListQuery{Now: now, ClosingSoon: true}, wantIDs: []string{"walkin-blr"}, wantTotal: 1},
		{name: "saved", query: ListQuery{Now: now, SavedBy: "u1"}, wantIDs: []string{"intern-remote"}, wantTotal: 1},
		{name: "education level", query: ListQuery{Now: now, EducationLevel: "BTech"}, wantIDs: []string{"job-pune", "walkin-blr"}, wantTotal: 2},
		{name: "paged", query: ListQuery{Now: now, Limit: 1, Offset: 1}, wantIDs: []string{"walkin-blr"}, wantTotal: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, total, err := s.ListOpportunities(ctx, tt.query)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if diff := cmp.Diff(tt.wantIDs, oppIDs(got)); diff != "" {
				t.Errorf("IDs mismatch (-want +got):\n%s", diff)
			}
			if total != tt.wantTotal {
				t.Errorf("total = %d, want %d", total, tt.wantTotal)
			}
		})
	}
}

func TestListRecentAndClosingSoon(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	now := time.Now().UTC().Truncate(time.Second)
	seedOpportunities(t, s, []model.Opportunity{
		{ID: "d1", Type: model.TypeJob, Title: "A", Company: "X", Status: model.StatusDraft, PostedAt: now.Add(-time.Hour)},
		{ID: "d2", Type: model.TypeJob, Title: "B", Company: "X", Status: model.StatusDraft, PostedAt: now},
		{ID: "p1", Type: model.TypeJob, Title: "C", Company: "X", Status: model.StatusPublished, PostedAt: now,
			ExpiresAt: ptr(now.Add(48 * time.Hour))},
		{ID: "p2", Type: model.TypeJob, Title: "D", Company: "X", Status: model.StatusPublished, PostedAt: now,
			ExpiresAt: ptr(now.Add(24 * time.Hour))},
		{ID: "p3", Type: model.TypeJob, Title: "E", Company: "X", Status: model.StatusPublished, PostedAt: now,
			ExpiresAt: ptr(now.Add(20 * 24 * time.Hour))},
	})

	drafts, err := s.ListRecent(ctx, model.StatusDraft, 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if diff := cmp.Diff([]string{"d2", "d1"}, oppIDs(drafts)); diff != "" {
		t.Errorf("drafts mismatch (-want +got):\n%s", diff)
	}

	closing, err := s.ListClosingSoon(ctx, now, ClosingSoonWindow, 10)
	if err != nil {
		t.Fatalf("closing soon: %v", err)
	}
	if diff := cmp.Diff([]string{"p2", "p1"}, oppIDs(closing)); diff != "" {
		t.Errorf("closing mismatch (-want +got):\n%s", diff)
	}
}

func TestEngagement(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	saved, err := s.ToggleSave(ctx, "u1", "o1")
	if err != nil || !saved {
		t.Fatalf("first toggle: saved=%v err=%v", saved, err)
	}
	if ok, _ := s.IsSaved(ctx, "u1", "o1"); !ok {
		t.Error("expected saved")
	}
	ids, _ := s.SavedIDs(ctx, "u1")
	if diff := cmp.Diff(map[string]bool{"o1": true}, ids); diff != "" {
		t.Errorf("saved IDs mismatch (-want +got):\n%s", diff)
	}

	saved, err = s.ToggleSave(ctx, "u1", "o1")
	if err != nil || saved {
		t.Fatalf("second toggle: saved=%v err=%v", saved, err)
	}

	if err := s.TrackAction(ctx, "u1", "o1", model.ActionViewed); err != nil {
		t.Fatalf("track: %v", err)
	}
	if err := s.TrackAction(ctx, "u1", "o1", model.ActionApplied); err != nil {
		t.Fatalf("track again: %v", err)
	}
	action, err := s.GetAction(ctx, "u1", "o1")
	if err != nil {
		t.Fatalf("get action: %v", err)
	}
	if action != model.ActionApplied {
		t.Errorf("action = %s, want APPLIED", action)
	}

	if err := s.RemoveAction(ctx, "u1", "o1"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := s.RemoveAction(ctx, "u1", "o1"); err != nil {
		t.Fatalf("remove missing: %v", err)
	}
	if action, err := s.GetAction(ctx, "u1", "o1"); err != nil || action != "" {
		t.Errorf("after remove: action=%q err=%v", action, err)
	}
}
