package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"fresherjobs/internal/model"
)

const sourceColumns = `id, name, url, default_type, interval_minutes, is_active, last_check_at, created_at`

// CreateSource inserts a new import source and populates its ID and CreatedAt.
func (s *SQLite) CreateSource(ctx context.Context, src *model.Source) error {
	now := formatTime(time.Now())
	if src.DefaultType == "" {
		src.DefaultType = model.TypeJob
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO import_sources (name, url, default_type, interval_minutes, is_active, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		src.Name, src.URL, string(src.DefaultType), src.IntervalMinutes, boolToInt(src.IsActive), now,
	)
	if err != nil {
		return fmt.Errorf("insert source: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	src.ID = id
	src.CreatedAt, _ = time.Parse(timeLayout, now)
	return nil
}

// GetSource returns a single import source by its ID.
func (s *SQLite) GetSource(ctx context.Context, id int64) (*model.Source, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sourceColumns+` FROM import_sources WHERE id = ?`, id)
	src, err := scanSource(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return src, err
}

// ListSources returns all import sources.
func (s *SQLite) ListSources(ctx context.Context) ([]model.Source, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+sourceColumns+` FROM import_sources ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query sources: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanSources(rows)
}

// ListDueSources returns all active sources whose check interval has elapsed.
func (s *SQLite) ListDueSources(ctx context.Context) ([]model.Source, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sourceColumns+` FROM import_sources
		 WHERE is_active = 1
		   AND (last_check_at IS NULL
		        OR datetime(last_check_at, '+' || interval_minutes || ' minutes') <= datetime(?))`,
		formatTime(time.Now()),
	)
	if err != nil {
		return nil, fmt.Errorf("query due sources: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanSources(rows)
}

// UpdateSource persists changes to an existing import source.
func (s *SQLite) UpdateSource(ctx context.Context, src *model.Source) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE import_sources SET name = ?, url = ?, default_type = ?, interval_minutes = ?,
			is_active = ?, last_check_at = ?
		 WHERE id = ?`,
		src.Name, src.URL, string(src.DefaultType), src.IntervalMinutes, boolToInt(src.IsActive),
		formatTimePtr(src.LastCheckAt), src.ID,
	)
	if err != nil {
		return fmt.Errorf("update source: %w", err)
	}
	return expectRow(res)
}

// DeleteSource removes a source together with its rules and seen items.
func (s *SQLite) DeleteSource(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM seen_items WHERE source_id = ?`, id); err != nil {
		return fmt.Errorf("delete seen_items: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM import_rules WHERE source_id = ?`, id); err != nil {
		return fmt.Errorf("delete rules: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM import_sources WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete source: %w", err)
	}
	if err := expectRow(res); err != nil {
		return err
	}
	return tx.Commit()
}

// CreateRule inserts a new rule and populates its ID and CreatedAt.
func (s *SQLite) CreateRule(ctx context.Context, r *model.Rule) error {
	now := formatTime(time.Now())
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO import_rules (source_id, kind, scope, value, created_at) VALUES (?, ?, ?, ?, ?)`,
		r.SourceID, string(r.Kind), string(r.Scope), r.Value, now,
	)
	if err != nil {
		return fmt.Errorf("insert rule: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	r.ID = id
	r.CreatedAt, _ = time.Parse(timeLayout, now)
	return nil
}

// ListRules returns all rules for the given source.
func (s *SQLite) ListRules(ctx context.Context, sourceID int64) ([]model.Rule, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source_id, kind, scope, value, created_at FROM import_rules
		 WHERE source_id = ? ORDER BY id`, sourceID,
	)
	if err != nil {
		return nil, fmt.Errorf("query rules: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var rules []model.Rule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, *r)
	}
	return rules, rows.Err()
}

// GetRule returns a single rule by its ID.
func (s *SQLite) GetRule(ctx context.Context, id int64) (*model.Rule, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, source_id, kind, scope, value, created_at FROM import_rules WHERE id = ?`, id,
	)
	r, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return r, err
}

// DeleteRule removes a rule by its ID.
func (s *SQLite) DeleteRule(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM import_rules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete rule: %w", err)
	}
	return expectRow(res)
}

// MarkSeen records that a feed item has been processed.
func (s *SQLite) MarkSeen(ctx context.Context, sourceID int64, guid string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO seen_items (source_id, guid) VALUES (?, ?)`,
		sourceID, guid,
	)
	if err != nil {
		return fmt.Errorf("mark seen: %w", err)
	}
	return nil
}

// IsSeen checks whether a feed item has already been processed.
func (s *SQLite) IsSeen(ctx context.Context, sourceID int64, guid string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM seen_items WHERE source_id = ? AND guid = ?`,
		sourceID, guid,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check seen: %w", err)
	}
	return count > 0, nil
}

func scanSource(row scannable) (*model.Source, error) {
	var src model.Source
	var defaultType string
	var isActive int
	var lastCheck, created sql.NullString
	err := row.Scan(&src.ID, &src.Name, &src.URL, &defaultType, &src.IntervalMinutes, &isActive,
		&lastCheck, &created)
	if err != nil {
		return nil, fmt.Errorf("scan source: %w", err)
	}
	src.DefaultType = model.OpportunityType(defaultType)
	src.IsActive = isActive == 1
	src.LastCheckAt = parseTimePtr(lastCheck)
	if created.Valid {
		src.CreatedAt, _ = time.Parse(timeLayout, created.String)
	}
	return &src, nil
}

func scanSources(rows *sql.Rows) ([]model.Source, error) {
	var sources []model.Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		sources = append(sources, *src)
	}
	return sources, rows.Err()
}

func scanRule(row scannable) (*model.Rule, error) {
	var r model.Rule
	var kind, scope, created string
	if err := row.Scan(&r.ID, &r.SourceID, &kind, &scope, &r.Value, &created); err != nil {
		return nil, fmt.Errorf("scan rule: %w", err)
	}
	r.Kind = model.RuleKind(kind)
	r.Scope = model.RuleScope(scope)
	r.CreatedAt, _ = time.Parse(timeLayout, created)
	return &r, nil
}
