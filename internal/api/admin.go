package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"fresherjobs/internal/model"
	"fresherjobs/internal/storage"
)

func actorFor(userID string) string {
	return "user:" + userID
}

func (s *Server) audit(ctx context.Context, userID, action, entityID, detail string) {
	e := &model.AuditEntry{Actor: actorFor(userID), Action: action, EntityID: entityID, Detail: detail}
	if err := s.store.AppendAudit(ctx, e); err != nil {
		s.log.Error("append audit entry", "action", action, "entity_id", entityID, "error", err)
	}
}

func (s *Server) growthMetrics(w http.ResponseWriter, r *http.Request, _ string) {
	m, err := s.funnel.Metrics(r.Context())
	if err != nil {
		s.log.Error("funnel metrics", "error", err)
		jsonError(w, "metrics unavailable", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func validateOpportunity(o *model.Opportunity) error {
	if _, ok := model.ParseOpportunityType(string(o.Type)); !ok {
		return fmt.Errorf("invalid type %q", o.Type)
	}
	if strings.TrimSpace(o.Title) == "" {
		return errors.New("title is required")
	}
	if strings.TrimSpace(o.Company) == "" {
		return errors.New("company is required")
	}
	switch o.Status {
	case "", model.StatusDraft, model.StatusPublished, model.StatusActive, model.StatusArchived:
	default:
		return fmt.Errorf("invalid status %q", o.Status)
	}
	if o.WorkMode != nil {
		switch *o.WorkMode {
		case model.WorkOnsite, model.WorkRemote, model.WorkHybrid:
		default:
			return fmt.Errorf("invalid workMode %q", *o.WorkMode)
		}
	}
	if o.SalaryMin != nil && o.SalaryMax != nil && *o.SalaryMin > *o.SalaryMax {
		return errors.New("salaryMin exceeds salaryMax")
	}
	if o.ExperienceMin != nil && o.ExperienceMax != nil && *o.ExperienceMin > *o.ExperienceMax {
		return errors.New("experienceMin exceeds experienceMax")
	}
	return nil
}

func (s *Server) createOpportunity(w http.ResponseWriter, r *http.Request, userID string) {
	var o model.Opportunity
	if err := decodeJSON(w, r, &o); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := validateOpportunity(&o); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	o.ID = ""
	o.UpdatedAt = nil
	o.DeletedAt = nil

	if err := s.store.CreateOpportunity(r.Context(), &o); err != nil {
		s.log.Error("create opportunity", "error", err)
		jsonError(w, "database error", http.StatusInternalServerError)
		return
	}
	s.audit(r.Context(), userID, "opportunity.create", o.ID, o.Title)
	writeJSON(w, http.StatusCreated, o)
}

func (s *Server) updateOpportunity(w http.ResponseWriter, r *http.Request, userID string) {
	id := r.PathValue("id")
	var o model.Opportunity
	if err := decodeJSON(w, r, &o); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := validateOpportunity(&o); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	existing, err := s.store.GetOpportunity(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		jsonError(w, "not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.log.Error("get opportunity", "id", id, "error", err)
		jsonError(w, "database error", http.StatusInternalServerError)
		return
	}

	o.ID = id
	o.PostedAt = existing.PostedAt
	o.DeletedAt = existing.DeletedAt
	if o.Status == "" {
		o.Status = existing.Status
	}
	err = s.store.UpdateOpportunity(r.Context(), &o)
	if errors.Is(err, storage.ErrNotFound) {
		jsonError(w, "not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.log.Error("update opportunity", "id", id, "error", err)
		jsonError(w, "database error", http.StatusInternalServerError)
		return
	}
	s.audit(r.Context(), userID, "opportunity.update", id, fmt.Sprintf("%s [%s]", o.Title, o.Status))
	writeJSON(w, http.StatusOK, o)
}

func (s *Server) deleteOpportunity(w http.ResponseWriter, r *http.Request, userID string) {
	id := r.PathValue("id")
	err := s.store.SoftDeleteOpportunity(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		jsonError(w, "not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.log.Error("delete opportunity", "id", id, "error", err)
		jsonError(w, "database error", http.StatusInternalServerError)
		return
	}
	s.audit(r.Context(), userID, "opportunity.delete", id, "")
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) listAudit(w http.ResponseWriter, r *http.Request, _ string) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			jsonError(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = min(n, 500)
	}
	entries, err := s.store.ListAudit(r.Context(), limit)
	if err != nil {
		s.log.Error("list audit", "error", err)
		jsonError(w, "database error", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []model.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}
