package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sqlc-dev/pqtype"
	"github.com/techappsUT/feedrelay/internal/relay/model"
)

// ActivityLog is the repository for the append-only activity_log table
// (spec.md §4.A: "Append a row; never read from inside the pipeline.").
type ActivityLog struct {
	conn *Conn
}

func newActivityLog(conn *Conn) *ActivityLog {
	return &ActivityLog{conn: conn}
}

// Append writes one diagnostic row. details is marshaled to the jsonb
// column via pqtype.NullRawMessage, the same nullable-JSON type the teacher
// uses in internal/infrastructure/persistence for jsonb columns.
func (l *ActivityLog) Append(ctx context.Context, sourceID *string, action model.ActivityAction, details map[string]interface{}) error {
	var detailsArg pqtype.NullRawMessage
	if details != nil {
		raw, err := json.Marshal(details)
		if err != nil {
			return fmt.Errorf("marshal activity details: %w", err)
		}
		detailsArg = pqtype.NullRawMessage{RawMessage: raw, Valid: true}
	}

	var sourceArg sql.NullString
	if sourceID != nil {
		sourceArg = sql.NullString{String: *sourceID, Valid: true}
	}

	_, err := l.conn.DB.ExecContext(ctx, `
		INSERT INTO activity_log (source_id, action, details, created_at)
		VALUES ($1, $2, $3, now())
	`, sourceArg, string(action), detailsArg)
	if err != nil {
		return fmt.Errorf("append activity_log: %w", err)
	}
	return nil
}

// Recent is a diagnostics helper for operators (not used by the pipeline
// itself, per spec.md §4.A): the most recent N rows for a source.
func (l *ActivityLog) Recent(ctx context.Context, sourceID string, limit int) ([]model.ActivityLogEntry, error) {
	rows, err := l.conn.DB.QueryContext(ctx, `
		SELECT id, source_id, action, details, created_at
		FROM activity_log WHERE source_id = $1
		ORDER BY created_at DESC LIMIT $2
	`, sourceID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent activity_log: %w", err)
	}
	defer rows.Close()

	var out []model.ActivityLogEntry
	for rows.Next() {
		var (
			id      int64
			source  sql.NullString
			action  string
			details pqtype.NullRawMessage
			created time.Time
		)
		if err := rows.Scan(&id, &source, &action, &details, &created); err != nil {
			return nil, fmt.Errorf("scan activity_log row: %w", err)
		}
		entry := model.ActivityLogEntry{
			ID:        id,
			Action:    model.ActivityAction(action),
			CreatedAt: created,
		}
		if source.Valid {
			s := source.String
			entry.SourceID = &s
		}
		if details.Valid {
			var m map[string]interface{}
			if err := json.Unmarshal(details.RawMessage, &m); err == nil {
				entry.Details = m
			}
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}
