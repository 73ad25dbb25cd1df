package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"fresherjobs/internal/model"
)

// GetProfile returns the user's profile.
func (s *SQLite) GetProfile(ctx context.Context, userID string) (*model.Profile, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT user_id, full_name, phone, college, education_level, graduation_year,
			pg_graduation_year, skills, preferred_cities, work_modes, updated_at
		 FROM profiles WHERE user_id = ?`, userID)

	var p model.Profile
	var grad, pgGrad sql.NullInt64
	var skills, cities, modes, updated string
	err := row.Scan(&p.UserID, &p.FullName, &p.Phone, &p.College, &p.EducationLevel, &grad,
		&pgGrad, &skills, &cities, &modes, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan profile: %w", err)
	}
	p.GraduationYear = nullInt(grad)
	p.PGGraduationYear = nullInt(pgGrad)
	p.Skills = decodeList[string](skills)
	p.PreferredCities = decodeList[string](cities)
	p.WorkModes = decodeList[model.WorkMode](modes)
	p.UpdatedAt, _ = time.Parse(timeLayout, updated)
	return &p, nil
}

// UpsertProfile creates or replaces the user's profile and stamps UpdatedAt.
func (s *SQLite) UpsertProfile(ctx context.Context, p *model.Profile) error {
	now := time.Now().UTC().Truncate(time.Second)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO profiles (user_id, full_name, phone, college, education_level, graduation_year,
			pg_graduation_year, skills, preferred_cities, work_modes, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (user_id) DO UPDATE SET full_name = excluded.full_name, phone = excluded.phone,
			college = excluded.college, education_level = excluded.education_level,
			graduation_year = excluded.graduation_year, pg_graduation_year = excluded.pg_graduation_year,
			skills = excluded.skills, preferred_cities = excluded.preferred_cities,
			work_modes = excluded.work_modes, updated_at = excluded.updated_at`,
		p.UserID, p.FullName, p.Phone, p.College, p.EducationLevel, p.GraduationYear,
		p.PGGraduationYear, encodeList(p.Skills), encodeList(p.PreferredCities),
		encodeList(p.WorkModes), formatTime(now),
	)
	if err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}
	p.UpdatedAt = now
	return nil
}

// AppendAudit records an admin mutation and populates its ID and CreatedAt.
func (s *SQLite) AppendAudit(ctx context.Context, e *model.AuditEntry) error {
	now := time.Now().UTC().Truncate(time.Second)
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_log (actor, action, entity_id, detail, created_at) VALUES (?, ?, ?, ?, ?)`,
		e.Actor, e.Action, e.EntityID, e.Detail, formatTime(now))
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	e.ID = id
	e.CreatedAt = now
	return nil
}

// ListAudit returns the newest audit entries first.
func (s *SQLite) ListAudit(ctx context.Context, limit int) ([]model.AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, actor, action, entity_id, detail, created_at FROM audit_log
		 ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []model.AuditEntry
	for rows.Next() {
		var e model.AuditEntry
		var created string
		if err := rows.Scan(&e.ID, &e.Actor, &e.Action, &e.EntityID, &e.Detail, &created); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.CreatedAt, _ = time.Parse(timeLayout, created)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
