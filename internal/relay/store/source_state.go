package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/techappsUT/feedrelay/internal/relay/model"
)

// SourceState is the repository for the source_state table (spec.md §4.A).
type SourceState struct {
	conn *Conn
}

func newSourceState(conn *Conn) *SourceState {
	return &SourceState{conn: conn}
}

type sourceStateRow struct {
	SourceID    string
	LastCheck   sql.NullTime
	LastSuccess sql.NullTime
	PostsToday  int
	LastReset   time.Time
	ErrorCount  int
	LastError   string
	DisabledAt  sql.NullTime
	UpdatedAt   time.Time
}

func (r sourceStateRow) toModel() *model.SourceState {
	s := &model.SourceState{
		SourceID:   r.SourceID,
		PostsToday: r.PostsToday,
		LastReset:  r.LastReset,
		ErrorCount: r.ErrorCount,
		LastError:  r.LastError,
		UpdatedAt:  r.UpdatedAt,
	}
	if r.LastCheck.Valid {
		t := r.LastCheck.Time
		s.LastCheck = &t
	}
	if r.LastSuccess.Valid {
		t := r.LastSuccess.Time
		s.LastSuccess = &t
	}
	if r.DisabledAt.Valid {
		t := r.DisabledAt.Time
		s.DisabledAt = &t
	}
	return s
}

// Get returns the source's scheduling state, or nil if it has never been seen.
func (r *SourceState) Get(ctx context.Context, source string) (*model.SourceState, error) {
	row := sourceStateRow{}
	err := r.conn.Orm.WithContext(ctx).Raw(`
		SELECT source_id, last_check, last_success, posts_today, last_reset,
		       error_count, COALESCE(last_error, '') AS last_error, disabled_at, updated_at
		FROM source_state WHERE source_id = ?`, source).Scan(&row).Error
	if err != nil {
		return nil, fmt.Errorf("get source_state: %w", err)
	}
	if row.SourceID == "" {
		return nil, nil
	}
	return row.toModel(), nil
}

// MarkSuccess upserts an atomic success outcome (spec.md §4.A): sets
// last_check = last_success = now(); resets error_count; clears last_error;
// rolls posts_today over when the database's CURRENT_DATE passes
// last_reset; advances last_reset.
func (r *SourceState) MarkSuccess(ctx context.Context, source string, postsPublished int) error {
	_, err := r.conn.DB.ExecContext(ctx, `
		INSERT INTO source_state (source_id, last_check, last_success, posts_today, last_reset, error_count, last_error, updated_at)
		VALUES ($1, now(), now(), $2, CURRENT_DATE, 0, NULL, now())
		ON CONFLICT (source_id) DO UPDATE SET
			last_check = now(),
			last_success = now(),
			posts_today = CASE
				WHEN source_state.last_reset < CURRENT_DATE THEN EXCLUDED.posts_today
				ELSE source_state.posts_today + EXCLUDED.posts_today
			END,
			last_reset = CURRENT_DATE,
			error_count = 0,
			last_error = NULL,
			updated_at = now()
	`, source, postsPublished)
	if err != nil {
		return fmt.Errorf("mark_success: %w", err)
	}
	return nil
}

// MarkError upserts a failed-fetch outcome: sets last_check = now();
// increments error_count; records last_error.
func (r *SourceState) MarkError(ctx context.Context, source, msg string) error {
	_, err := r.conn.DB.ExecContext(ctx, `
		INSERT INTO source_state (source_id, last_check, posts_today, last_reset, error_count, last_error, updated_at)
		VALUES ($1, now(), 0, CURRENT_DATE, 1, $2, now())
		ON CONFLICT (source_id) DO UPDATE SET
			last_check = now(),
			error_count = source_state.error_count + 1,
			last_error = EXCLUDED.last_error,
			updated_at = now()
	`, source, msg)
	if err != nil {
		return fmt.Errorf("mark_error: %w", err)
	}
	return nil
}

// MarkTransientError updates last_check only, never error_count (spec.md §9,
// the resolved open question: transient errors never count against the
// consecutive-error budget).
func (r *SourceState) MarkTransientError(ctx context.Context, source string) error {
	_, err := r.conn.DB.ExecContext(ctx, `
		INSERT INTO source_state (source_id, last_check, posts_today, last_reset, error_count, updated_at)
		VALUES ($1, now(), 0, CURRENT_DATE, 0, now())
		ON CONFLICT (source_id) DO UPDATE SET
			last_check = now(),
			updated_at = now()
	`, source)
	if err != nil {
		return fmt.Errorf("mark_transient_error: %w", err)
	}
	return nil
}

// SourcesDue returns the subset of sourceIDs that are due: last_check is
// null or older than now - intervalMin, ordered by last_check ascending
// (nulls first) and capped at limit. sourceIDs is the full configured+
// enabled set, not just the ones with a source_state row already: it is
// LEFT JOINed against source_state so a source with no row at all (never
// polled) comes back as due on its very first consideration, the same as
// one whose last_check is null. Scanning source_state alone would miss
// those permanently, since a row only gets created by a run that this
// query itself is supposed to authorize.
func (r *SourceState) SourcesDue(ctx context.Context, sourceIDs []string, intervalMin, limit int) ([]string, error) {
	if len(sourceIDs) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(sourceIDs))
	args := make([]interface{}, 0, len(sourceIDs)+2)
	for i, id := range sourceIDs {
		placeholders[i] = fmt.Sprintf("($%d)", i+1)
		args = append(args, id)
	}
	args = append(args, intervalMin, limit)

	query := fmt.Sprintf(`
		SELECT cfg.source_id FROM (VALUES %s) AS cfg(source_id)
		LEFT JOIN source_state s ON s.source_id = cfg.source_id
		WHERE s.source_id IS NULL
		   OR s.last_check IS NULL
		   OR s.last_check < now() - ($%d || ' minutes')::interval
		ORDER BY s.last_check ASC NULLS FIRST
		LIMIT $%d
	`, strings.Join(placeholders, ","), len(sourceIDs)+1, len(sourceIDs)+2)

	var ids []string
	if err := r.conn.Orm.WithContext(ctx).Raw(query, args...).Scan(&ids).Error; err != nil {
		return nil, fmt.Errorf("sources_due: %w", err)
	}
	return ids, nil
}
