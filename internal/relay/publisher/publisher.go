// Package publisher implements the downstream publisher adapter (spec.md
// §4.F): publish/update/delete/upload_media against an ActivityPub-
// compatible service, with the retry and media-handling policy the core
// depends on.
package publisher

import (
	"context"

	"github.com/techappsUT/feedrelay/internal/relay/model"
)

// MediaUpload is one attachment awaiting upload before the post it belongs
// to is published or updated.
type MediaUpload struct {
	Bytes    []byte
	Filename string
	AltText  string
}

// UploadedMedia is the downstream media id returned by a successful upload.
type UploadedMedia struct {
	ID string
}

// StatusResult is the downstream identity produced by publish/update.
type StatusResult struct {
	ID  string
	URL string
}

// Publisher is the downstream publisher adapter contract (spec.md §4.F).
type Publisher interface {
	Publish(ctx context.Context, text string, mediaIDs []string, visibility, inReplyTo string) (StatusResult, error)
	Update(ctx context.Context, statusID, text string, mediaIDs []string) (StatusResult, error)
	Delete(ctx context.Context, statusID string) error
	UploadMedia(ctx context.Context, m MediaUpload) (UploadedMedia, error)
}

// newError builds the typed error the retry and pipeline classification
// logic pattern-matches on (spec.md §7's closed set of publisher errors).
func newError(kind model.PublisherErrorKind, statusCode int, retryAfter int, message string, err error) *model.PublisherError {
	return &model.PublisherError{
		Kind:       kind,
		StatusCode: statusCode,
		RetryAfter: retryAfter,
		Message:    message,
		Err:        err,
	}
}
