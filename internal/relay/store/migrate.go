package store

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

// schema is the durable schema required by spec.md §6, including the
// indexes the access patterns in §4.A depend on.
const schema = `
CREATE TABLE IF NOT EXISTS published_posts (
	id BIGSERIAL PRIMARY KEY,
	source_id TEXT NOT NULL,
	post_id TEXT NOT NULL,
	post_url TEXT NOT NULL DEFAULT '',
	downstream_status_id TEXT,
	platform_uri TEXT,
	published_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (source_id, post_id)
);
CREATE UNIQUE INDEX IF NOT EXISTS published_posts_downstream_status_id_uq
	ON published_posts (downstream_status_id) WHERE downstream_status_id IS NOT NULL;
CREATE INDEX IF NOT EXISTS published_posts_source_published_at_idx
	ON published_posts (source_id, published_at DESC);
CREATE INDEX IF NOT EXISTS published_posts_published_at_brin
	ON published_posts USING BRIN (published_at);
CREATE INDEX IF NOT EXISTS published_posts_platform_uri_idx
	ON published_posts (platform_uri) WHERE platform_uri IS NOT NULL;

CREATE TABLE IF NOT EXISTS source_state (
	source_id TEXT PRIMARY KEY,
	last_check TIMESTAMPTZ,
	last_success TIMESTAMPTZ,
	posts_today INTEGER NOT NULL DEFAULT 0,
	last_reset DATE NOT NULL DEFAULT CURRENT_DATE,
	error_count INTEGER NOT NULL DEFAULT 0,
	last_error TEXT,
	disabled_at TIMESTAMPTZ,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS activity_log (
	id BIGSERIAL PRIMARY KEY,
	source_id TEXT,
	action TEXT NOT NULL CHECK (action IN
		('fetch', 'publish', 'skip', 'error', 'profile_sync', 'media_upload', 'transient_error')),
	details JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS edit_detection_buffer (
	id BIGSERIAL PRIMARY KEY,
	source_id TEXT NOT NULL,
	post_id TEXT NOT NULL,
	username TEXT NOT NULL,
	text_normalized TEXT NOT NULL,
	text_hash CHAR(64),
	downstream_status_id TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (source_id, post_id)
);
CREATE INDEX IF NOT EXISTS edit_buffer_username_created_idx
	ON edit_detection_buffer (username, created_at DESC);
CREATE INDEX IF NOT EXISTS edit_buffer_username_hash_idx
	ON edit_detection_buffer (username, text_hash);
`

// Migrate applies the durable schema idempotently using a plain lib/pq
// connection, matching the teacher's cmd/worker raw sql.Open idiom rather
// than routing DDL through the ORM.
func Migrate(dsn string) error {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return fmt.Errorf("open migration connection: %w", err)
	}
	defer db.Close()

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
