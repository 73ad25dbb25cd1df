package api

import (
	"errors"
	"net/http"
	"strconv"

	"fresherjobs/internal/eligibility"
	"fresherjobs/internal/match"
	"fresherjobs/internal/model"
	"fresherjobs/internal/storage"
)

// Page size bounds for the feed.
const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// OpportunityView is a listing annotated for the requesting user.
type OpportunityView struct {
	model.Opportunity
	MatchScore  int    `json:"matchScore"`
	MatchReason string `json:"matchReason"`
	Saved       bool   `json:"saved"`

	Action model.ActionType `json:"action,omitempty"`
}

// ListResponse is the body of GET /api/opportunities.
type ListResponse struct {
	Opportunities []OpportunityView `json:"opportunities"`
	Count         int               `json:"count"`
}

func (s *Server) listOpportunities(w http.ResponseWriter, r *http.Request, userID string) {
	ctx := r.Context()

	q, err := parseListQuery(r)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	profile, err := s.loadProfile(r, userID)
	if err != nil {
		s.log.Error("get profile", "user_id", userID, "error", err)
		jsonError(w, "database error", http.StatusInternalServerError)
		return
	}
	if !eligibility.HasAccess(profile) {
		writeJSON(w, http.StatusForbidden, map[string]any{
			"error":                "profile incomplete",
			"completionPercentage": eligibility.Completion(profile),
		})
		return
	}

	now := s.now()
	q.Now = now
	q.EducationLevel = profile.EducationLevel
	if r.URL.Query().Get("saved") == "true" {
		q.SavedBy = userID
	}

	opps, total, err := s.store.ListOpportunities(ctx, q)
	if err != nil {
		s.log.Error("list opportunities", "user_id", userID, "error", err)
		jsonError(w, "database error", http.StatusInternalServerError)
		return
	}
	saved, err := s.store.SavedIDs(ctx, userID)
	if err != nil {
		s.log.Error("list saved ids", "user_id", userID, "error", err)
		jsonError(w, "database error", http.StatusInternalServerError)
		return
	}

	visible := eligibility.SortForDisplay(eligibility.FilterEligible(opps, profile))
	resp := ListResponse{Opportunities: make([]OpportunityView, 0, len(visible)), Count: total}
	for _, o := range visible {
		m := match.Score(profile, o, now)
		resp.Opportunities = append(resp.Opportunities, OpportunityView{
			Opportunity: o,
			MatchScore:  m.Score,
			MatchReason: m.Reason,
			Saved:       saved[o.ID],
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func parseListQuery(r *http.Request) (storage.ListQuery, error) {
	v := r.URL.Query()
	q := storage.ListQuery{
		City:        v.Get("city"),
		ClosingSoon: v.Get("closingSoon") == "true",
		Limit:       DefaultLimit,
	}
	if raw := v.Get("type"); raw != "" {
		t, ok := model.ParseOpportunityType(raw)
		if !ok {
			return q, errors.New("invalid type")
		}
		q.Type = t
	}
	if raw := v.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return q, errors.New("invalid limit")
		}
		q.Limit = min(n, MaxLimit)
	}
	if raw := v.Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return q, errors.New("invalid offset")
		}
		q.Offset = n
	}
	return q, nil
}

// visibleOpportunity loads a listing candidates may see, or writes a 404.
func (s *Server) visibleOpportunity(w http.ResponseWriter, r *http.Request) (*model.Opportunity, bool) {
	id := r.PathValue("id")
	o, err := s.store.GetOpportunity(r.Context(), id)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		jsonError(w, "not found", http.StatusNotFound)
		return nil, false
	case err != nil:
		s.log.Error("get opportunity", "id", id, "error", err)
		jsonError(w, "database error", http.StatusInternalServerError)
		return nil, false
	case !o.Visible():
		jsonError(w, "not found", http.StatusNotFound)
		return nil, false
	}
	return o, true
}

func (s *Server) getOpportunity(w http.ResponseWriter, r *http.Request, userID string) {
	o, ok := s.visibleOpportunity(w, r)
	if !ok {
		return
	}

	profile, err := s.loadProfile(r, userID)
	if err != nil {
		s.log.Warn("get profile", "user_id", userID, "error", err)
	}
	saved, err := s.store.IsSaved(r.Context(), userID, o.ID)
	if err != nil {
		s.log.Warn("check saved", "user_id", userID, "id", o.ID, "error", err)
	}

	action, err := s.store.GetAction(r.Context(), userID, o.ID)
	if err != nil {
		s.log.Warn("get action", "user_id", userID, "id", o.ID, "error", err)
	}

	m := match.Score(profile, *o, s.now())
	writeJSON(w, http.StatusOK, OpportunityView{
		Opportunity: *o,
		MatchScore:  m.Score,
		MatchReason: m.Reason,
		Saved:       saved,
		Action:      action,
	})
}

func (s *Server) toggleSave(w http.ResponseWriter, r *http.Request, userID string) {
	o, ok := s.visibleOpportunity(w, r)
	if !ok {
		return
	}
	saved, err := s.store.ToggleSave(r.Context(), userID, o.ID)
	if err != nil {
		s.log.Error("toggle save", "user_id", userID, "id", o.ID, "error", err)
		jsonError(w, "database error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"saved": saved})
}

func (s *Server) trackAction(w http.ResponseWriter, r *http.Request, userID string) {
	var body struct {
		ActionType string `json:"actionType"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	action, ok := model.ParseActionType(body.ActionType)
	if !ok {
		jsonError(w, "invalid actionType", http.StatusBadRequest)
		return
	}

	o, ok := s.visibleOpportunity(w, r)
	if !ok {
		return
	}
	if err := s.store.TrackAction(r.Context(), userID, o.ID, action); err != nil {
		s.log.Error("track action", "user_id", userID, "id", o.ID, "error", err)
		jsonError(w, "database error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) removeAction(w http.ResponseWriter, r *http.Request, userID string) {
	id := r.PathValue("id")
	if err := s.store.RemoveAction(r.Context(), userID, id); err != nil {
		s.log.Error("remove action", "user_id", userID, "id", id, "error", err)
		jsonError(w, "database error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
