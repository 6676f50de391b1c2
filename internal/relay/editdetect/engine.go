package editdetect

import (
	"context"
	"strings"

	"github.com/techappsUT/feedrelay/internal/applog"
	"github.com/techappsUT/feedrelay/internal/relay/model"
)

// similarityThreshold is the Jaccard cutoff above which two items are
// treated as the same post republished (spec.md §4.B step 3).
const similarityThreshold = 0.80

// similarityWindowSec bounds how far back the similarity path's FindRecent
// lookup searches (spec.md §4.A). The exact-match path's window is fixed
// inside the buffer's FindByHash.
const similarityWindowSec = 3600

// DecisionKind is the outcome of the edit-detection algorithm.
type DecisionKind string

const (
	DecisionPublishNew    DecisionKind = "publish_new"
	DecisionUpdateExisting DecisionKind = "update_existing"
	DecisionSkipOlder     DecisionKind = "skip_older_version"
)

// Decision is the result of Evaluate.
type Decision struct {
	Kind                 DecisionKind
	ExistingDownstreamID string
	// SupersededPostID is set on DecisionUpdateExisting when the match came
	// from a different post_id than the one being evaluated (a repost or
	// platform-assigned new id for the same logical content): the caller
	// should Supersede this id once the new one is recorded, so the stale
	// row stops surfacing in future hash/similarity lookups.
	SupersededPostID string
	Normalized       string
	Hash             string
}

// Buffer is the subset of the edit-detection buffer repository this engine needs.
type Buffer interface {
	Add(ctx context.Context, source, postID, username, normalized, hash, downstreamID string) error
	FindByHash(ctx context.Context, username, hash string) (*model.EditBufferEntry, error)
	FindRecent(ctx context.Context, username string, windowSec int) ([]model.EditBufferEntry, error)
	Supersede(ctx context.Context, source, postID string) error
}

// Engine implements the decision algorithm of spec.md §4.B.
type Engine struct {
	buffer Buffer
	logger applog.Logger
}

func New(buffer Buffer, logger applog.Logger) *Engine {
	return &Engine{buffer: buffer, logger: logger}
}

// Evaluate runs the full decision algorithm for an incoming item and, on a
// publish_new outcome, registers it in the buffer before the caller
// publishes (spec.md §4.B step 4). On update/skip outcomes the caller is
// responsible for calling Buffer.Add after a successful publish/update
// (post-publish bookkeeping, spec.md §4.B).
func (e *Engine) Evaluate(ctx context.Context, source, postID, username, text string) Decision {
	norm := Normalize(text)
	hash := Hash(norm)
	username = normalizeUsername(username)

	if prev, err := e.buffer.FindByHash(ctx, username, hash); err != nil {
		e.logger.Warn("edit detection hash lookup failed, defaulting to publish_new", "source", source, "post_id", postID, "err", err)
	} else if prev != nil && prev.PostID != postID {
		return e.resolveAge(postID, prev, norm, hash)
	}

	candidates, err := e.buffer.FindRecent(ctx, username, similarityWindowSec)
	if err != nil {
		// Failure semantics (spec.md §4.B): false negatives are preferred
		// over false positives — log and fall through to publish_new.
		e.logger.Warn("edit detection similarity lookup failed, defaulting to publish_new", "source", source, "post_id", postID, "err", err)
		return e.publishNew(ctx, source, postID, username, norm, hash)
	}

	var best *model.EditBufferEntry
	var bestScore float64
	for i := range candidates {
		c := &candidates[i]
		if c.PostID == postID {
			continue
		}
		score := JaccardShingle(norm, c.TextNormalized)
		if score > bestScore {
			bestScore = score
			best = c
		}
	}

	if best != nil && bestScore >= similarityThreshold {
		return e.resolveAge(postID, best, norm, hash)
	}

	return e.publishNew(ctx, source, postID, username, norm, hash)
}

func (e *Engine) resolveAge(postID string, prev *model.EditBufferEntry, norm, hash string) Decision {
	if IsNewer(prev.PostID, postID) {
		// The buffered item is newer than the one we're looking at: ours is stale.
		return Decision{Kind: DecisionSkipOlder, Normalized: norm, Hash: hash}
	}
	return Decision{
		Kind:                 DecisionUpdateExisting,
		ExistingDownstreamID: prev.DownstreamStatusID,
		SupersededPostID:     prev.PostID,
		Normalized:           norm,
		Hash:                 hash,
	}
}

func (e *Engine) publishNew(ctx context.Context, source, postID, username, norm, hash string) Decision {
	if err := e.buffer.Add(ctx, source, postID, username, norm, hash, ""); err != nil {
		e.logger.Warn("edit detection buffer add failed", "source", source, "post_id", postID, "err", err)
	}
	return Decision{Kind: DecisionPublishNew, Normalized: norm, Hash: hash}
}

// RecordPublish performs the post-publish bookkeeping: registering the
// downstream id so subsequent edits can chain (spec.md §4.B).
func (e *Engine) RecordPublish(ctx context.Context, source, postID, username, norm, hash, downstreamID string) error {
	return e.buffer.Add(ctx, source, postID, normalizeUsername(username), norm, hash, downstreamID)
}

// Supersede removes the buffer row for a post that a newer one has just
// replaced, so it stops matching future hash/similarity lookups.
func (e *Engine) Supersede(ctx context.Context, source, postID string) error {
	return e.buffer.Supersede(ctx, source, postID)
}

func normalizeUsername(u string) string {
	return strings.ToLower(u)
}
