package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"fresherjobs/internal/model"
)

const opportunityColumns = `o.id, o.type, o.title, o.company, o.description, o.allowed_degrees,
	o.allowed_passout_years, o.required_skills, o.locations, o.work_mode, o.salary_min, o.salary_max,
	o.experience_min, o.experience_max, o.apply_link, o.status, o.posted_at, o.expires_at,
	o.updated_at, o.deleted_at`

// CreateOpportunity inserts a listing. A missing ID is generated and a zero
// PostedAt defaults to now.
func (s *SQLite) CreateOpportunity(ctx context.Context, o *model.Opportunity) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if o.PostedAt.IsZero() {
		o.PostedAt = time.Now()
	}
	if o.Status == "" {
		o.Status = model.StatusDraft
	}
	o.PostedAt = o.PostedAt.UTC().Truncate(time.Second)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO opportunities (id, type, title, company, description, allowed_degrees,
			allowed_passout_years, required_skills, locations, work_mode, salary_min, salary_max,
			experience_min, experience_max, apply_link, status, posted_at, expires_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, string(o.Type), o.Title, o.Company, o.Description, encodeList(o.AllowedDegrees),
		encodeList(o.AllowedPassoutYears), encodeList(o.RequiredSkills), encodeList(o.Locations),
		workModeValue(o.WorkMode), o.SalaryMin, o.SalaryMax, o.ExperienceMin, o.ExperienceMax,
		o.ApplyLink, string(o.Status), formatTime(o.PostedAt), formatTimePtr(o.ExpiresAt),
		formatTimePtr(o.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert opportunity: %w", err)
	}
	return nil
}

// GetOpportunity returns a listing by ID, including soft-deleted ones.
func (s *SQLite) GetOpportunity(ctx context.Context, id string) (*model.Opportunity, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+opportunityColumns+` FROM opportunities o WHERE o.id = ?`, id)
	o, err := scanOpportunity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return o, err
}

// UpdateOpportunity persists changes to a listing and stamps UpdatedAt.
func (s *SQLite) UpdateOpportunity(ctx context.Context, o *model.Opportunity) error {
	now := time.Now().UTC().Truncate(time.Second)
	res, err := s.db.ExecContext(ctx,
		`UPDATE opportunities SET type = ?, title = ?, company = ?, description = ?,
			allowed_degrees = ?, allowed_passout_years = ?, required_skills = ?, locations = ?,
			work_mode = ?, salary_min = ?, salary_max = ?, experience_min = ?, experience_max = ?,
			apply_link = ?, status = ?, expires_at = ?, updated_at = ?
		 WHERE id = ? AND deleted_at IS NULL`,
		string(o.Type), o.Title, o.Company, o.Description,
		encodeList(o.AllowedDegrees), encodeList(o.AllowedPassoutYears), encodeList(o.RequiredSkills),
		encodeList(o.Locations), workModeValue(o.WorkMode), o.SalaryMin, o.SalaryMax,
		o.ExperienceMin, o.ExperienceMax, o.ApplyLink, string(o.Status),
		formatTimePtr(o.ExpiresAt), formatTime(now), o.ID,
	)
	if err != nil {
		return fmt.Errorf("update opportunity: %w", err)
	}
	if err := expectRow(res); err != nil {
		return err
	}
	o.UpdatedAt = &now
	return nil
}

// SoftDeleteOpportunity hides a listing without removing it.
func (s *SQLite) SoftDeleteOpportunity(ctx context.Context, id string) error {
	now := formatTime(time.Now())
	res, err := s.db.ExecContext(ctx,
		`UPDATE opportunities SET deleted_at = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`,
		now, now, id)
	if err != nil {
		return fmt.Errorf("soft delete opportunity: %w", err)
	}
	return expectRow(res)
}

// ListOpportunities applies the coarse feed predicate and returns one page
// ordered newest first, plus the total number of matches.
func (s *SQLite) ListOpportunities(ctx context.Context, q ListQuery) ([]model.Opportunity, int, error) {
	now := q.Now
	if now.IsZero() {
		now = time.Now()
	}

	where := []string{
		"o.status IN ('PUBLISHED', 'ACTIVE')",
		"o.deleted_at IS NULL",
		"(o.expires_at IS NULL OR o.expires_at > ?)",
	}
	args := []any{formatTime(now)}

	if q.Type != "" {
		where = append(where, "o.type = ?")
		args = append(args, string(q.Type))
	}
	if city := strings.TrimSpace(q.City); city != "" {
		where = append(where,
			"EXISTS (SELECT 1 FROM json_each(o.locations) l WHERE instr(lower(l.value), lower(?)) > 0)")
		args = append(args, city)
	}
	if q.ClosingSoon {
		where = append(where, "o.expires_at IS NOT NULL AND o.expires_at <= ?")
		args = append(args, formatTime(now.Add(ClosingSoonWindow)))
	}
	if q.SavedBy != "" {
		where = append(where,
			"EXISTS (SELECT 1 FROM saved_opportunities sv WHERE sv.opportunity_id = o.id AND sv.user_id = ?)")
		args = append(args, q.SavedBy)
	}
	if level := strings.TrimSpace(q.EducationLevel); level != "" {
		where = append(where,
			"EXISTS (SELECT 1 FROM json_each(o.allowed_degrees) d WHERE lower(trim(d.value)) = lower(?))")
		args = append(args, level)
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM opportunities o WHERE `+cond, args...,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count opportunities: %w", err)
	}

	limit := q.Limit
	if limit <= 0 {
		limit = -1
	}
	pageArgs := append(append([]any{}, args...), limit, max(q.Offset, 0))
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+opportunityColumns+` FROM opportunities o WHERE `+cond+`
		 ORDER BY o.posted_at DESC, o.id LIMIT ? OFFSET ?`, pageArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("query opportunities: %w", err)
	}
	defer func() { _ = rows.Close() }()

	opps, err := scanOpportunities(rows)
	if err != nil {
		return nil, 0, err
	}
	return opps, total, nil
}

// ListRecent returns the newest non-deleted listings with the given status.
func (s *SQLite) ListRecent(ctx context.Context, status model.Status, limit int) ([]model.Opportunity, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+opportunityColumns+` FROM opportunities o
		 WHERE o.status = ? AND o.deleted_at IS NULL
		 ORDER BY o.posted_at DESC, o.id LIMIT ?`, string(status), limit)
	if err != nil {
		return nil, fmt.Errorf("query recent opportunities: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanOpportunities(rows)
}

// ListClosingSoon returns visible listings expiring after now and within
// the given window, soonest first.
func (s *SQLite) ListClosingSoon(ctx context.Context, now time.Time, within time.Duration, limit int) ([]model.Opportunity, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+opportunityColumns+` FROM opportunities o
		 WHERE o.status IN ('PUBLISHED', 'ACTIVE') AND o.deleted_at IS NULL
		   AND o.expires_at > ? AND o.expires_at <= ?
		 ORDER BY o.expires_at, o.id LIMIT ?`,
		formatTime(now), formatTime(now.Add(within)), limit)
	if err != nil {
		return nil, fmt.Errorf("query closing soon: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanOpportunities(rows)
}

// ToggleSave flips the saved state and returns the new state.
func (s *SQLite) ToggleSave(ctx context.Context, userID, opportunityID string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`DELETE FROM saved_opportunities WHERE user_id = ? AND opportunity_id = ?`, userID, opportunityID)
	if err != nil {
		return false, fmt.Errorf("delete save: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	saved := n == 0
	if saved {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO saved_opportunities (user_id, opportunity_id, created_at) VALUES (?, ?, ?)`,
			userID, opportunityID, formatTime(time.Now())); err != nil {
			return false, fmt.Errorf("insert save: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	return saved, nil
}

// IsSaved reports whether the user saved the listing.
func (s *SQLite) IsSaved(ctx context.Context, userID, opportunityID string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM saved_opportunities WHERE user_id = ? AND opportunity_id = ?`,
		userID, opportunityID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check saved: %w", err)
	}
	return count > 0, nil
}

// SavedIDs returns the set of listing IDs the user saved.
func (s *SQLite) SavedIDs(ctx context.Context, userID string) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT opportunity_id FROM saved_opportunities WHERE user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("query saved: %w", err)
	}
	defer func() { _ = rows.Close() }()

	ids := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan saved: %w", err)
		}
		ids[id] = true
	}
	return ids, rows.Err()
}

// TrackAction records the user's latest action on a listing.
func (s *SQLite) TrackAction(ctx context.Context, userID, opportunityID string, action model.ActionType) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_actions (user_id, opportunity_id, action_type, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (user_id, opportunity_id) DO UPDATE SET action_type = excluded.action_type,
			updated_at = excluded.updated_at`,
		userID, opportunityID, string(action), formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("track action: %w", err)
	}
	return nil
}

// RemoveAction clears the user's action on a listing. Removing a missing
// action is not an error.
func (s *SQLite) RemoveAction(ctx context.Context, userID, opportunityID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM user_actions WHERE user_id = ? AND opportunity_id = ?`, userID, opportunityID)
	if err != nil {
		return fmt.Errorf("remove action: %w", err)
	}
	return nil
}

// GetAction returns the user's action on a listing, or "" when none is
// tracked.
func (s *SQLite) GetAction(ctx context.Context, userID, opportunityID string) (model.ActionType, error) {
	var action string
	err := s.db.QueryRowContext(ctx,
		`SELECT action_type FROM user_actions WHERE user_id = ? AND opportunity_id = ?`,
		userID, opportunityID,
	).Scan(&action)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get action: %w", err)
	}
	return model.ActionType(action), nil
}

func workModeValue(m *model.WorkMode) *string {
	if m == nil {
		return nil
	}
	v := string(*m)
	return &v
}

func expectRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanOpportunity(row scannable) (*model.Opportunity, error) {
	var o model.Opportunity
	var typ, status, degrees, years, skills, locations, posted string
	var workMode, expires, updated, deleted sql.NullString
	var salMin, salMax, expMin, expMax sql.NullInt64

	err := row.Scan(&o.ID, &typ, &o.Title, &o.Company, &o.Description, &degrees, &years, &skills,
		&locations, &workMode, &salMin, &salMax, &expMin, &expMax, &o.ApplyLink, &status, &posted,
		&expires, &updated, &deleted)
	if err != nil {
		return nil, fmt.Errorf("scan opportunity: %w", err)
	}

	o.Type = model.OpportunityType(typ)
	o.Status = model.Status(status)
	o.AllowedDegrees = decodeList[string](degrees)
	o.AllowedPassoutYears = decodeList[int](years)
	o.RequiredSkills = decodeList[string](skills)
	o.Locations = decodeList[string](locations)
	if workMode.Valid {
		m := model.WorkMode(workMode.String)
		o.WorkMode = &m
	}
	o.SalaryMin = nullInt(salMin)
	o.SalaryMax = nullInt(salMax)
	o.ExperienceMin = nullInt(expMin)
	o.ExperienceMax = nullInt(expMax)
	o.PostedAt, _ = time.Parse(timeLayout, posted)
	o.ExpiresAt = parseTimePtr(expires)
	o.UpdatedAt = parseTimePtr(updated)
	o.DeletedAt = parseTimePtr(deleted)
	return &o, nil
}

func scanOpportunities(rows *sql.Rows) ([]model.Opportunity, error) {
	var opps []model.Opportunity
	for rows.Next() {
		o, err := scanOpportunity(rows)
		if err != nil {
			return nil, err
		}
		opps = append(opps, *o)
	}
	return opps, rows.Err()
}
