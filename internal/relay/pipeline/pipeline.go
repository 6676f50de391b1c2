// Package pipeline implements the per-source fetch -> filter -> process ->
// publish state machine (spec.md §4.D).
package pipeline

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/techappsUT/feedrelay/internal/applog"
	"github.com/techappsUT/feedrelay/internal/config"
	"github.com/techappsUT/feedrelay/internal/relay/editdetect"
	"github.com/techappsUT/feedrelay/internal/relay/model"
	"github.com/techappsUT/feedrelay/internal/relay/thread"
)

// PublishedPostsStore is the slice of the published_posts repository the
// pipeline needs (spec.md §4.A). *store.PublishedPosts satisfies this.
type PublishedPostsStore interface {
	IsPublished(ctx context.Context, source, postID string) (bool, error)
	MarkPublished(ctx context.Context, source, postID, url, downstreamID, platformURI string) error
	MarkUpdated(ctx context.Context, downstreamID, newPostID, newURL string) error
}

// SourceStateStore is the slice of the source_state repository the pipeline
// needs. *store.SourceState satisfies this.
type SourceStateStore interface {
	Get(ctx context.Context, source string) (*model.SourceState, error)
	MarkSuccess(ctx context.Context, source string, postsPublished int) error
	MarkError(ctx context.Context, source, msg string) error
	MarkTransientError(ctx context.Context, source string) error
}

// ActivityLogger is the slice of the activity_log repository the pipeline
// needs. *store.ActivityLog satisfies this.
type ActivityLogger interface {
	Append(ctx context.Context, sourceID *string, action model.ActivityAction, details map[string]interface{}) error
}

// maxRateLimitRetries bounds the 429 retry loop before a publish attempt is
// treated as a persistent failure (spec.md §4.D error classification).
const maxRateLimitRetries = 3

// SourceAdapter fetches a platform's native items and converts them into the
// uniform shape the rest of the core operates on (spec.md §6).
type SourceAdapter interface {
	Fetch(ctx context.Context, source config.Source) ([]model.UniformPost, error)
}

// PublishRequest is everything the publisher adapter needs to create or
// replace one downstream status.
type PublishRequest struct {
	Text       string
	Visibility string
	ReplyToID  string
	Media      []model.Media
	AccountID  string
}

// PublishResult is the downstream identity produced by a successful publish.
type PublishResult struct {
	StatusID string
	URL      string
}

// Publisher is the downstream publisher adapter contract (spec.md §4.F).
type Publisher interface {
	Publish(ctx context.Context, req PublishRequest) (PublishResult, error)
	Update(ctx context.Context, downstreamID string, req PublishRequest) (PublishResult, error)
}

// Result summarizes one pipeline run for the orchestrator.
type Result struct {
	SourceID  string
	Fetched   int
	Published int
	Updated   int
	Skipped   int
	Aborted   bool
	Reason    string
}

// Pipeline runs one source through the state machine. A Pipeline is
// reusable across sources within a run; the thread cache it's given is the
// one owned by that run (spec.md §3, "Each source pipeline instance
// exclusively owns its thread cache for the duration of a run").
type Pipeline struct {
	posts       PublishedPostsStore
	sourceState SourceStateStore
	activity    ActivityLogger
	engine      *editdetect.Engine
	resolver    *thread.Resolver
	publisher   Publisher
	logger      applog.Logger
}

func New(posts PublishedPostsStore, sourceState SourceStateStore, activity ActivityLogger, engine *editdetect.Engine, resolver *thread.Resolver, publisher Publisher, logger applog.Logger) *Pipeline {
	return &Pipeline{
		posts:       posts,
		sourceState: sourceState,
		activity:    activity,
		engine:      engine,
		resolver:    resolver,
		publisher:   publisher,
		logger:      logger,
	}
}

// Run executes one source's fetch/filter/process/publish cycle.
func (p *Pipeline) Run(ctx context.Context, source config.Source, adapter SourceAdapter) (Result, error) {
	result := Result{SourceID: source.ID}
	srcID := source.ID

	state, err := p.sourceState.Get(ctx, source.ID)
	if err != nil {
		return result, fmt.Errorf("load source_state: %w", err)
	}
	if state != nil && state.DisabledAt != nil {
		result.Aborted = true
		result.Reason = "disabled"
		return result, nil
	}

	if source.SkipsHour(time.Now().Hour()) {
		result.Reason = "skip_hours"
		p.logSkip(ctx, srcID, "skip_hours", nil)
		return result, nil
	}

	items, err := adapter.Fetch(ctx, source)
	if err != nil {
		return p.abort(ctx, result, err, "fetch")
	}
	result.Fetched = len(items)

	p.appendLog(ctx, srcID, model.ActionFetch, map[string]interface{}{"count": len(items)})

	sort.Slice(items, func(i, j int) bool {
		return items[i].PublishedAt.Before(items[j].PublishedAt)
	})

	postsToday := 0
	if state != nil {
		postsToday = state.PostsToday
	}

	budgetExhausted := func() bool {
		if source.MaxPosts > 0 && result.Published >= source.MaxPosts {
			return true
		}
		if source.DailyCap != nil && postsToday+result.Published >= *source.DailyCap {
			return true
		}
		return false
	}

	for _, item := range items {
		if p.filtered(source, item) {
			p.logSkip(ctx, srcID, "filtered", &item.ID)
			result.Skipped++
			continue
		}
		if item.Text == "" && len(item.Media) == 0 {
			p.logSkip(ctx, srcID, "empty_item", &item.ID)
			result.Skipped++
			continue
		}

		published, err := p.posts.IsPublished(ctx, srcID, item.ID)
		if err != nil {
			return p.abort(ctx, result, err, "is_published")
		}
		if published {
			result.Skipped++
			continue
		}

		decision := p.engine.Evaluate(ctx, srcID, item.ID, item.Author.Username, formatText(item))

		switch decision.Kind {
		case editdetect.DecisionSkipOlder:
			p.logSkip(ctx, srcID, "stale_edit", &item.ID)
			result.Skipped++
			continue

		case editdetect.DecisionUpdateExisting:
			if err := p.update(ctx, source, item, decision); err != nil {
				return p.abort(ctx, result, err, "update")
			}
			result.Updated++
			continue

		default: // DecisionPublishNew
			if budgetExhausted() {
				p.logSkip(ctx, srcID, "budget_exhausted", &item.ID)
				result.Skipped++
				continue
			}
			if err := p.publish(ctx, source, item, decision); err != nil {
				return p.abort(ctx, result, err, "publish")
			}
			result.Published++
		}
	}

	if err := p.sourceState.MarkSuccess(ctx, srcID, result.Published); err != nil {
		return result, fmt.Errorf("mark_success: %w", err)
	}
	return result, nil
}

func (p *Pipeline) filtered(source config.Source, item model.UniformPost) bool {
	if item.IsReply && source.Filtering.SkipReplies {
		return true
	}
	if item.IsRepost && source.Filtering.SkipRetweets {
		return true
	}
	if item.IsQuote && source.Filtering.SkipQuotes {
		return true
	}
	return false
}

func (p *Pipeline) publish(ctx context.Context, source config.Source, item model.UniformPost, decision editdetect.Decision) error {
	replyTo := p.resolveParent(ctx, source, item)

	req := PublishRequest{
		Text:       formatText(item),
		Visibility: source.Visibility,
		ReplyToID:  replyTo,
		Media:      item.Media,
		AccountID:  source.Target.AccountID,
	}

	res, err := p.callWithRetry(ctx, func() (PublishResult, error) {
		return p.publisher.Publish(ctx, req)
	})
	if err != nil {
		return err
	}

	if err := p.posts.MarkPublished(ctx, source.ID, item.ID, item.URL, res.StatusID, item.PlatformURI); err != nil {
		return fmt.Errorf("mark_published: %w", err)
	}
	if err := p.engine.RecordPublish(ctx, source.ID, item.ID, item.Author.Username, decision.Normalized, decision.Hash, res.StatusID); err != nil {
		p.logger.Warn("edit buffer record_publish failed", "source", source.ID, "post_id", item.ID, "err", err)
	}
	p.resolver.RecordPublish(source.ID, item.Author.Username, res.StatusID)
	p.appendLog(ctx, source.ID, model.ActionPublish, map[string]interface{}{"post_id": item.ID, "status_id": res.StatusID})
	return nil
}

func (p *Pipeline) update(ctx context.Context, source config.Source, item model.UniformPost, decision editdetect.Decision) error {
	req := PublishRequest{
		Text:       formatText(item),
		Visibility: source.Visibility,
		Media:      item.Media,
		AccountID:  source.Target.AccountID,
	}

	res, err := p.callWithRetry(ctx, func() (PublishResult, error) {
		return p.publisher.Update(ctx, decision.ExistingDownstreamID, req)
	})
	if err != nil {
		return err
	}

	if err := p.posts.MarkUpdated(ctx, decision.ExistingDownstreamID, item.ID, item.URL); err != nil {
		return fmt.Errorf("mark_updated: %w", err)
	}
	if err := p.engine.RecordPublish(ctx, source.ID, item.ID, item.Author.Username, decision.Normalized, decision.Hash, decision.ExistingDownstreamID); err != nil {
		p.logger.Warn("edit buffer record_publish failed", "source", source.ID, "post_id", item.ID, "err", err)
	}
	if decision.SupersededPostID != "" && decision.SupersededPostID != item.ID {
		if err := p.engine.Supersede(ctx, source.ID, decision.SupersededPostID); err != nil {
			p.logger.Warn("edit buffer supersede failed", "source", source.ID, "post_id", item.ID, "superseded", decision.SupersededPostID, "err", err)
		}
	}
	p.appendLog(ctx, source.ID, model.ActionPublish, map[string]interface{}{"post_id": item.ID, "status_id": res.StatusID, "edit": true})
	return nil
}

// resolveParent asks the threading resolver for a reply-to id when the item
// is flagged as a thread continuation and the source hasn't opted into
// flattening threads (spec.md §4.C, config "thread_handling.mode").
func (p *Pipeline) resolveParent(ctx context.Context, source config.Source, item model.UniformPost) string {
	if !item.IsThreadPost || source.ThreadHandling.Mode == "flatten" {
		return ""
	}
	parent, err := p.resolver.ParentFor(ctx, source.ID, item.Author.Username)
	if err != nil {
		p.logger.Warn("thread resolver lookup failed, publishing without parent", "source", source.ID, "post_id", item.ID, "err", err)
		return ""
	}
	return parent
}

func (p *Pipeline) appendLog(ctx context.Context, sourceID string, action model.ActivityAction, details map[string]interface{}) {
	id := sourceID
	if err := p.activity.Append(ctx, &id, action, details); err != nil {
		p.logger.Warn("activity_log append failed", "source", sourceID, "action", action, "err", err)
	}
}

func (p *Pipeline) logSkip(ctx context.Context, sourceID, reason string, postID *string) {
	details := map[string]interface{}{"reason": reason}
	if postID != nil {
		details["post_id"] = *postID
	}
	p.appendLog(ctx, sourceID, model.ActionSkip, details)
}

// abort classifies a mid-run failure and updates source_state accordingly
// (spec.md §4.D error classification table), then returns the run result
// and a nil error: the orchestrator decides from Result.Aborted/Reason,
// not from a returned error, which is reserved for store-connectivity
// failures the orchestrator cannot recover from.
func (p *Pipeline) abort(ctx context.Context, result Result, cause error, stage string) (Result, error) {
	result.Aborted = true
	kind := classify(cause)
	result.Reason = string(kind)

	switch kind {
	case kindTransient:
		p.appendLog(ctx, result.SourceID, model.ActionTransientError, map[string]interface{}{"stage": stage, "err": cause.Error()})
		if err := p.sourceState.MarkTransientError(ctx, result.SourceID); err != nil {
			return result, fmt.Errorf("mark_transient_error: %w", err)
		}
	case kindParse:
		p.appendLog(ctx, result.SourceID, model.ActionSkip, map[string]interface{}{"stage": stage, "reason": "parse_failure", "err": cause.Error()})
		if err := p.sourceState.MarkSuccess(ctx, result.SourceID, result.Published); err != nil {
			return result, fmt.Errorf("mark_success: %w", err)
		}
		result.Aborted = false
	default: // kindValidation, kindUnexpected
		p.appendLog(ctx, result.SourceID, model.ActionError, map[string]interface{}{"stage": stage, "err": cause.Error()})
		if err := p.sourceState.MarkError(ctx, result.SourceID, cause.Error()); err != nil {
			return result, fmt.Errorf("mark_error: %w", err)
		}
	}
	return result, nil
}
