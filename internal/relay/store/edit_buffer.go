package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/techappsUT/feedrelay/internal/relay/model"
)

// EditBuffer is the repository for the edit_detection_buffer table
// (spec.md §4.A).
type EditBuffer struct {
	conn *Conn
}

func newEditBuffer(conn *Conn) *EditBuffer {
	return &EditBuffer{conn: conn}
}

// Add upserts on (source, post_id): on conflict, replaces normalized text +
// hash; downstream_id is fill-forward (never overwrites a non-null value).
func (b *EditBuffer) Add(ctx context.Context, source, postID, username, normalized, hash, downstreamID string) error {
	var downstreamArg sql.NullString
	if downstreamID != "" {
		downstreamArg = sql.NullString{String: downstreamID, Valid: true}
	}

	_, err := b.conn.DB.ExecContext(ctx, `
		INSERT INTO edit_detection_buffer (source_id, post_id, username, text_normalized, text_hash, downstream_status_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (source_id, post_id) DO UPDATE SET
			text_normalized = EXCLUDED.text_normalized,
			text_hash = EXCLUDED.text_hash,
			downstream_status_id = COALESCE(edit_detection_buffer.downstream_status_id, EXCLUDED.downstream_status_id)
	`, source, postID, username, normalized, hash, downstreamArg)
	if err != nil {
		return fmt.Errorf("edit_buffer add: %w", err)
	}
	return nil
}

// FindByHash returns the most recent buffer row for this username+hash
// younger than 1h, or nil if none.
func (b *EditBuffer) FindByHash(ctx context.Context, username, hash string) (*model.EditBufferEntry, error) {
	row := editBufferRow{}
	err := b.conn.Orm.WithContext(ctx).Raw(`
		SELECT source_id, post_id, username, text_normalized,
		       COALESCE(text_hash, '') AS text_hash,
		       COALESCE(downstream_status_id, '') AS downstream_status_id, created_at
		FROM edit_detection_buffer
		WHERE username = ? AND text_hash = ? AND created_at >= ?
		ORDER BY created_at DESC LIMIT 1
	`, username, hash, time.Now().Add(-1*time.Hour)).Scan(&row).Error
	if err != nil {
		return nil, fmt.Errorf("edit_buffer find_by_hash: %w", err)
	}
	if row.PostID == "" {
		return nil, nil
	}
	return row.toModel(), nil
}

// FindRecent returns up to the 10 most recent rows for username within the
// given window, for the similarity-match fallback path.
func (b *EditBuffer) FindRecent(ctx context.Context, username string, windowSec int) ([]model.EditBufferEntry, error) {
	var rows []editBufferRow
	err := b.conn.Orm.WithContext(ctx).Raw(`
		SELECT source_id, post_id, username, text_normalized,
		       COALESCE(text_hash, '') AS text_hash,
		       COALESCE(downstream_status_id, '') AS downstream_status_id, created_at
		FROM edit_detection_buffer
		WHERE username = ? AND created_at >= ?
		ORDER BY created_at DESC LIMIT 10
	`, username, time.Now().Add(-time.Duration(windowSec)*time.Second)).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("edit_buffer find_recent: %w", err)
	}
	out := make([]model.EditBufferEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, *r.toModel())
	}
	return out, nil
}

// Supersede hard-deletes the buffer row for (source, post_id).
func (b *EditBuffer) Supersede(ctx context.Context, source, postID string) error {
	_, err := b.conn.DB.ExecContext(ctx, `
		DELETE FROM edit_detection_buffer WHERE source_id = $1 AND post_id = $2
	`, source, postID)
	if err != nil {
		return fmt.Errorf("edit_buffer supersede: %w", err)
	}
	return nil
}

// Cleanup deletes rows older than the retention horizon, returning the count removed.
func (b *EditBuffer) Cleanup(ctx context.Context, retentionHours int) (int64, error) {
	res, err := b.conn.DB.ExecContext(ctx, `
		DELETE FROM edit_detection_buffer WHERE created_at < now() - ($1 || ' hours')::interval
	`, retentionHours)
	if err != nil {
		return 0, fmt.Errorf("edit_buffer cleanup: %w", err)
	}
	return res.RowsAffected()
}

type editBufferRow struct {
	SourceID           string
	PostID             string
	Username           string
	TextNormalized     string
	TextHash           string
	DownstreamStatusID string
	CreatedAt          time.Time
}

func (r editBufferRow) toModel() *model.EditBufferEntry {
	return &model.EditBufferEntry{
		SourceID:           r.SourceID,
		PostID:             r.PostID,
		Username:           r.Username,
		TextNormalized:     r.TextNormalized,
		TextHash:           r.TextHash,
		DownstreamStatusID: r.DownstreamStatusID,
		CreatedAt:          r.CreatedAt,
	}
}
