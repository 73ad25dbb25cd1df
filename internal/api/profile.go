package api

import (
	"errors"
	"net/http"
	"strings"

	"fresherjobs/internal/eligibility"
	"fresherjobs/internal/model"
	"fresherjobs/internal/storage"
)

// ProfileView is a profile with its computed completion.
type ProfileView struct {
	model.Profile
	CompletionPercentage int `json:"completionPercentage"`
}

// ProfileResponse is the body of GET and PUT /api/profile. Profile is nil
// until the user saves one.
type ProfileResponse struct {
	User struct {
		ID string `json:"id"`
	} `json:"user"`
	Profile              *ProfileView `json:"profile"`
	CompletionPercentage int          `json:"completionPercentage"`
}

// loadProfile returns the user's profile, or nil when none is stored.
func (s *Server) loadProfile(r *http.Request, userID string) (*model.Profile, error) {
	p, err := s.store.GetProfile(r.Context(), userID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	return p, err
}

func profileResponse(userID string, p *model.Profile) ProfileResponse {
	var resp ProfileResponse
	resp.User.ID = userID
	resp.CompletionPercentage = eligibility.Completion(p)
	if p != nil {
		resp.Profile = &ProfileView{Profile: *p, CompletionPercentage: resp.CompletionPercentage}
	}
	return resp
}

func (s *Server) getProfile(w http.ResponseWriter, r *http.Request, userID string) {
	p, err := s.loadProfile(r, userID)
	if err != nil {
		s.log.Error("get profile", "user_id", userID, "error", err)
		jsonError(w, "database error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, profileResponse(userID, p))
}

func (s *Server) putProfile(w http.ResponseWriter, r *http.Request, userID string) {
	var p model.Profile
	if err := decodeJSON(w, r, &p); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	p.UserID = userID
	for _, m := range p.WorkModes {
		switch m {
		case model.WorkOnsite, model.WorkRemote, model.WorkHybrid:
		default:
			jsonError(w, "invalid workModes", http.StatusBadRequest)
			return
		}
	}

	if err := s.store.UpsertProfile(r.Context(), &p); err != nil {
		s.log.Error("upsert profile", "user_id", userID, "error", err)
		jsonError(w, "database error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, profileResponse(userID, &p))
}

func (s *Server) recordGrowthEvent(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Source string `json:"source"`
		Event  string `json:"event"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	s.funnel.Record(r.Context(), strings.TrimSpace(body.Source), body.Event)
	w.WriteHeader(http.StatusNoContent)
}
