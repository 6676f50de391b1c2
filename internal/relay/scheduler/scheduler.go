// Package scheduler implements the orchestrator (spec.md §4.E): selecting
// due sources, bounding per-platform concurrency, and aggregating per-source
// outcomes into exit-code reporting for one run.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/techappsUT/feedrelay/internal/applog"
	"github.com/techappsUT/feedrelay/internal/config"
	"github.com/techappsUT/feedrelay/internal/relay/editdetect"
	"github.com/techappsUT/feedrelay/internal/relay/pipeline"
	"github.com/techappsUT/feedrelay/internal/relay/thread"
)

// PostsStore is the slice of the published_posts repository the scheduler
// needs directly: pipeline.PublishedPostsStore plus the lookup the thread
// resolver falls back to. *store.PublishedPosts satisfies this.
type PostsStore interface {
	pipeline.PublishedPostsStore
	FindRecentThreadParent(ctx context.Context, source string) (string, error)
}

// StateStore is pipeline.SourceStateStore plus the due-source query used to
// pick candidates for a run. *store.SourceState satisfies this.
type StateStore interface {
	pipeline.SourceStateStore
	SourcesDue(ctx context.Context, sourceIDs []string, intervalMin, limit int) ([]string, error)
}

// Buffer is editdetect.Buffer plus the retention-horizon maintenance
// operation the scheduler runs once per cycle. *store.EditBuffer satisfies
// this.
type Buffer interface {
	editdetect.Buffer
	Cleanup(ctx context.Context, retentionHours int) (int64, error)
}

// bufferRetentionHours is the edit-detection buffer's retention horizon:
// rows older than this are no longer useful for hash/similarity matching
// and are eligible for deletion each run.
const bufferRetentionHours = 2

// SourceLocker grants per-source run exclusion across orchestrator
// processes. *Locker (Redis-backed) satisfies this.
type SourceLocker interface {
	Acquire(ctx context.Context, source string) (token string, ok bool, err error)
	Release(ctx context.Context, source, token string) error
}

// Summary aggregates one run's outcome across all sources considered.
type Summary struct {
	SourcesConsidered int
	SourcesRun        int
	Published         int
	Updated           int
	Skipped           int
	Errored           int
	ExitCode          int
}

// Scheduler owns the set of configured sources and the per-run wiring
// needed to run each one through the pipeline.
type Scheduler struct {
	sources   []config.Source
	posts     PostsStore
	state     StateStore
	activity  pipeline.ActivityLogger
	buffer    Buffer
	adapters  map[string]pipeline.SourceAdapter
	publisher pipeline.Publisher
	locker    SourceLocker
	runCfg    config.RunConfig
	logger    applog.Logger
}

func New(
	sources []config.Source,
	posts PostsStore,
	state StateStore,
	activity pipeline.ActivityLogger,
	buffer Buffer,
	adapters map[string]pipeline.SourceAdapter,
	publisher pipeline.Publisher,
	locker SourceLocker,
	runCfg config.RunConfig,
	logger applog.Logger,
) *Scheduler {
	return &Scheduler{
		sources:   sources,
		posts:     posts,
		state:     state,
		activity:  activity,
		buffer:    buffer,
		adapters:  adapters,
		publisher: publisher,
		locker:    locker,
		runCfg:    runCfg,
		logger:    logger,
	}
}

// EnqueueSource runs one named source immediately, outside its normal
// schedule (spec.md §1 webhook-intake carve-out). It never trusts caller-
// supplied content: the adapter is re-fetched exactly as a scheduled run
// would, the webhook only picks which source to re-poll next. The run
// happens in the background so the intake request returns as soon as the
// source is accepted; failures are logged, not returned to the caller.
func (s *Scheduler) EnqueueSource(ctx context.Context, sourceID string) error {
	var src config.Source
	found := false
	for _, candidate := range s.sources {
		if candidate.ID == sourceID {
			src = candidate
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("unknown source %q", sourceID)
	}

	adapter, ok := s.adapters[src.Platform]
	if !ok {
		return fmt.Errorf("no source adapter registered for platform %q", src.Platform)
	}

	go func() {
		runCtx, cancel := context.WithTimeout(context.Background(), time.Duration(s.runCfg.RunDeadlineSeconds)*time.Second)
		defer cancel()

		engine := editdetect.New(s.buffer, s.logger)
		resolver := thread.New(s.posts)
		pl := pipeline.New(s.posts, s.state, s.activity, engine, resolver, s.publisher, s.logger)

		result := s.runSource(runCtx, src, adapter, pl)
		s.logger.Info("webhook-triggered run completed", "source", sourceID, "published", result.Published, "updated", result.Updated, "aborted", result.Aborted)
	}()
	return nil
}

// RunOnce selects due sources and runs each one through a fresh pipeline,
// bounding concurrency per platform and the whole run by a deadline
// (spec.md §4.E, §5).
func (s *Scheduler) RunOnce(ctx context.Context) (Summary, error) {
	runCtx, cancel := context.WithTimeout(ctx, time.Duration(s.runCfg.RunDeadlineSeconds)*time.Second)
	defer cancel()

	var summary Summary

	if removed, err := s.buffer.Cleanup(runCtx, bufferRetentionHours); err != nil {
		s.logger.Warn("edit buffer cleanup failed", "err", err)
	} else if removed > 0 {
		s.logger.Info("edit buffer cleanup removed expired rows", "count", removed)
	}

	enabledIDs := make([]string, 0, len(s.sources))
	for _, src := range s.sources {
		if src.Enabled {
			enabledIDs = append(enabledIDs, src.ID)
		}
	}

	dueIDs, err := s.state.SourcesDue(runCtx, enabledIDs, s.runCfg.GlobalMinIntervalMinutes, s.runCfg.GlobalSourceLimit)
	if err != nil {
		return summary, err
	}
	due := make(map[string]bool, len(dueIDs))
	for _, id := range dueIDs {
		due[id] = true
	}

	candidates := s.selectCandidates(runCtx, due)
	summary.SourcesConsidered = len(candidates)

	byPlatform := make(map[string][]config.Source)
	for _, src := range candidates {
		byPlatform[src.Platform] = append(byPlatform[src.Platform], src)
	}

	engine := editdetect.New(s.buffer, s.logger)
	resolver := thread.New(s.posts)
	pl := pipeline.New(s.posts, s.state, s.activity, engine, resolver, s.publisher, s.logger)

	// fanCtx is cancelled early if accumulated hard errors cross the
	// critical threshold, so a downstream outage stops cascading into every
	// remaining source instead of exhausting the full run deadline.
	fanCtx, cancelFan := context.WithCancel(runCtx)
	defer cancelFan()

	var mu sync.Mutex
	var wg sync.WaitGroup
	for platform, srcs := range byPlatform {
		adapter, ok := s.adapters[platform]
		if !ok {
			s.logger.Warn("no source adapter registered for platform", "platform", platform)
			continue
		}

		sem := make(chan struct{}, s.runCfg.PerPlatformConcurrency)
		for _, src := range srcs {
			wg.Add(1)
			sem <- struct{}{}
			go func(src config.Source) {
				defer wg.Done()
				defer func() { <-sem }()

				result := s.runSource(fanCtx, src, adapter, pl)

				mu.Lock()
				defer mu.Unlock()
				summary.SourcesRun++
				summary.Published += result.Published
				summary.Updated += result.Updated
				summary.Skipped += result.Skipped
				if result.Aborted && isHardError(result.Reason) {
					summary.Errored++
					if s.runCfg.CriticalErrorThreshold > 0 && summary.Errored >= s.runCfg.CriticalErrorThreshold {
						cancelFan()
					}
				}
			}(src)
		}
	}
	wg.Wait()

	summary.ExitCode = s.exitCode(summary)
	return summary, nil
}

// isHardError reports whether an abort reason counts toward a source's
// error budget for exit-code purposes (spec.md §6: exit code 0 covers runs
// where every source was clean or only hit transient failures).
func isHardError(reason string) bool {
	switch reason {
	case "", "disabled", "skip_hours", "transient_error":
		return false
	default:
		return true
	}
}

// selectCandidates narrows the globally-due set down to sources that are
// both configured+enabled and due at their own, individually configured
// interval: SourcesDue used the loosest (highest-priority-tier) interval as
// a cheap SQL-side pre-filter, so a lower-priority source it returns may
// not actually be due yet at its own longer interval.
func (s *Scheduler) selectCandidates(ctx context.Context, due map[string]bool) []config.Source {
	var candidates []config.Source
	for _, src := range s.sources {
		if !src.Enabled || !due[src.ID] {
			continue
		}
		state, err := s.state.Get(ctx, src.ID)
		if err != nil {
			s.logger.Warn("source_state lookup failed, skipping this run", "source", src.ID, "err", err)
			continue
		}
		if state != nil && state.LastCheck != nil {
			if time.Since(*state.LastCheck) < time.Duration(src.IntervalMinutes())*time.Minute {
				continue
			}
		}
		candidates = append(candidates, src)
	}
	return candidates
}

func (s *Scheduler) runSource(ctx context.Context, src config.Source, adapter pipeline.SourceAdapter, pl *pipeline.Pipeline) pipeline.Result {
	token, ok, err := s.locker.Acquire(ctx, src.ID)
	if err != nil {
		s.logger.Warn("distributed lock unavailable, running without exclusion", "source", src.ID, "err", err)
	} else if !ok {
		s.logger.Info("source already running on another orchestrator, skipping", "source", src.ID)
		return pipeline.Result{SourceID: src.ID}
	} else {
		defer func() {
			releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := s.locker.Release(releaseCtx, src.ID, token); err != nil {
				s.logger.Warn("failed to release source lock", "source", src.ID, "err", err)
			}
		}()
	}

	result, err := pl.Run(ctx, src, adapter)
	if err != nil {
		s.logger.Error("pipeline run failed", "source", src.ID, "err", err)
		result.Aborted = true
		if result.Reason == "" {
			result.Reason = "unexpected_error"
		}
	}
	return result
}

// exitCode implements spec.md §6's run-level codes 0/1: "all sources OK or
// transient-only" vs "at least one source reported a hard error". Code 2
// ("configuration or database unreachable") is decided by the caller from
// RunOnce's returned error, not from this summary.
func (s *Scheduler) exitCode(summary Summary) int {
	if summary.Errored == 0 {
		return 0
	}
	return 1
}
