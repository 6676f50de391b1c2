package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/techappsUT/feedrelay/internal/relay/model"
)

// PublishedPosts is the repository for the published_posts table
// (spec.md §4.A).
type PublishedPosts struct {
	conn *Conn
}

func newPublishedPosts(conn *Conn) *PublishedPosts {
	return &PublishedPosts{conn: conn}
}

// IsPublished reports whether (source, postID) has already been relayed.
func (r *PublishedPosts) IsPublished(ctx context.Context, source, postID string) (bool, error) {
	var exists bool
	err := r.conn.Orm.WithContext(ctx).
		Raw(`SELECT EXISTS(SELECT 1 FROM published_posts WHERE source_id = ? AND post_id = ?)`, source, postID).
		Scan(&exists).Error
	if err != nil {
		return false, fmt.Errorf("is_published: %w", err)
	}
	return exists, nil
}

// FindByPlatformURI looks up a published row by its upstream platform URI,
// used by the threading resolver when the in-memory cache misses.
func (r *PublishedPosts) FindByPlatformURI(ctx context.Context, source, uri string) (*model.PublishedPost, error) {
	row := scanRow{}
	err := r.conn.Orm.WithContext(ctx).Raw(`
		SELECT id, source_id, post_id, post_url,
		       COALESCE(downstream_status_id, '') AS downstream_status_id,
		       COALESCE(platform_uri, '') AS platform_uri, published_at
		FROM published_posts WHERE source_id = ? AND platform_uri = ?
		LIMIT 1`, source, uri).Scan(&row).Error
	if err != nil {
		return nil, fmt.Errorf("find_by_platform_uri: %w", err)
	}
	if row.ID == 0 {
		return nil, nil
	}
	return row.toModel(), nil
}

// FindRecentThreadParent returns the most recently published downstream
// status id for this source within the last 24h, or "" if none.
func (r *PublishedPosts) FindRecentThreadParent(ctx context.Context, source string) (string, error) {
	var downstreamID sql.NullString
	err := r.conn.Orm.WithContext(ctx).Raw(`
		SELECT downstream_status_id FROM published_posts
		WHERE source_id = ? AND downstream_status_id IS NOT NULL
		  AND published_at >= ?
		ORDER BY published_at DESC
		LIMIT 1`, source, time.Now().Add(-24*time.Hour)).Scan(&downstreamID).Error
	if err != nil {
		return "", fmt.Errorf("find_recent_thread_parent: %w", err)
	}
	return downstreamID.String, nil
}

// MarkPublished upserts on (source, post_id). On conflict, a non-null
// incoming downstream_id/platform_uri fills a null column but never
// overwrites an existing non-null value (spec.md §3, fill-forward upsert).
func (r *PublishedPosts) MarkPublished(ctx context.Context, source, postID, url, downstreamID, platformURI string) error {
	var downstream, uri sql.NullString
	if downstreamID != "" {
		downstream = sql.NullString{String: downstreamID, Valid: true}
	}
	if platformURI != "" {
		uri = sql.NullString{String: platformURI, Valid: true}
	}

	_, err := r.conn.DB.ExecContext(ctx, `
		INSERT INTO published_posts (source_id, post_id, post_url, downstream_status_id, platform_uri, published_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (source_id, post_id) DO UPDATE SET
			post_url = EXCLUDED.post_url,
			downstream_status_id = COALESCE(published_posts.downstream_status_id, EXCLUDED.downstream_status_id),
			platform_uri = COALESCE(published_posts.platform_uri, EXCLUDED.platform_uri)
	`, source, postID, url, downstream, uri)
	if err != nil {
		return fmt.Errorf("mark_published: %w", err)
	}
	return nil
}

// MarkUpdated rewrites the row identified by downstreamID to point at the
// edited item's new post_id/url, preserving the downstream status's
// identity across an upstream edit (spec.md §4.A, §8 invariant 2).
func (r *PublishedPosts) MarkUpdated(ctx context.Context, downstreamID, newPostID, newURL string) error {
	var urlArg sql.NullString
	if newURL != "" {
		urlArg = sql.NullString{String: newURL, Valid: true}
	}
	_, err := r.conn.DB.ExecContext(ctx, `
		UPDATE published_posts
		SET post_id = $2,
		    post_url = COALESCE($3, post_url)
		WHERE downstream_status_id = $1
	`, downstreamID, newPostID, urlArg)
	if err != nil {
		return fmt.Errorf("mark_updated: %w", err)
	}
	return nil
}

// scanRow is the intermediate shape for hand-scanned published_posts rows.
type scanRow struct {
	ID                 int64
	SourceID           string
	PostID             string
	PostURL            string
	DownstreamStatusID string
	PlatformURI        string
	PublishedAt        time.Time
}

func (r scanRow) toModel() *model.PublishedPost {
	return &model.PublishedPost{
		ID:                 r.ID,
		SourceID:           r.SourceID,
		PostID:             r.PostID,
		PostURL:            r.PostURL,
		DownstreamStatusID: r.DownstreamStatusID,
		PlatformURI:        r.PlatformURI,
		PublishedAt:        r.PublishedAt,
	}
}
