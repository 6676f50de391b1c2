package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/techappsUT/feedrelay/internal/applog"
	"github.com/techappsUT/feedrelay/internal/config"
	"github.com/techappsUT/feedrelay/internal/relay/model"
	"github.com/techappsUT/feedrelay/internal/relay/pipeline"
)

type fakePosts struct{}

func (fakePosts) IsPublished(ctx context.Context, source, postID string) (bool, error) {
	return false, nil
}
func (fakePosts) MarkPublished(ctx context.Context, source, postID, url, downstreamID, platformURI string) error {
	return nil
}
func (fakePosts) MarkUpdated(ctx context.Context, downstreamID, newPostID, newURL string) error {
	return nil
}
func (fakePosts) FindRecentThreadParent(ctx context.Context, source string) (string, error) {
	return "", nil
}

type fakeState struct {
	lastChecks map[string]time.Time
	errorCalls int
}

func (f *fakeState) Get(ctx context.Context, source string) (*model.SourceState, error) {
	if t, ok := f.lastChecks[source]; ok {
		return &model.SourceState{SourceID: source, LastCheck: &t}, nil
	}
	return nil, nil
}
func (f *fakeState) MarkSuccess(ctx context.Context, source string, postsPublished int) error {
	return nil
}
func (f *fakeState) MarkError(ctx context.Context, source, msg string) error {
	f.errorCalls++
	return nil
}
func (f *fakeState) MarkTransientError(ctx context.Context, source string) error { return nil }

// SourcesDue mirrors the real LEFT JOIN semantics of store.SourceState: a
// source with no entry in lastChecks at all (never polled) is always due,
// the same as one whose last check fell outside intervalMin.
func (f *fakeState) SourcesDue(ctx context.Context, sourceIDs []string, intervalMin, limit int) ([]string, error) {
	var due []string
	for _, id := range sourceIDs {
		t, ok := f.lastChecks[id]
		if !ok || time.Since(t) >= time.Duration(intervalMin)*time.Minute {
			due = append(due, id)
		}
	}
	return due, nil
}

type fakeActivity struct{}

func (fakeActivity) Append(ctx context.Context, sourceID *string, action model.ActivityAction, details map[string]interface{}) error {
	return nil
}

type fakeBuffer struct{}

func (fakeBuffer) Add(ctx context.Context, source, postID, username, normalized, hash, downstreamID string) error {
	return nil
}
func (fakeBuffer) FindByHash(ctx context.Context, username, hash string) (*model.EditBufferEntry, error) {
	return nil, nil
}
func (fakeBuffer) FindRecent(ctx context.Context, username string, windowSec int) ([]model.EditBufferEntry, error) {
	return nil, nil
}
func (fakeBuffer) Supersede(ctx context.Context, source, postID string) error {
	return nil
}
func (fakeBuffer) Cleanup(ctx context.Context, retentionHours int) (int64, error) {
	return 0, nil
}

type fakeLocker struct {
	denySources map[string]bool
	acquired    []string
	released    []string
}

func (f *fakeLocker) Acquire(ctx context.Context, source string) (string, bool, error) {
	if f.denySources[source] {
		return "", false, nil
	}
	f.acquired = append(f.acquired, source)
	return "tok-" + source, true, nil
}
func (f *fakeLocker) Release(ctx context.Context, source, token string) error {
	f.released = append(f.released, source)
	return nil
}

type fakePublisher struct{}

func (fakePublisher) Publish(ctx context.Context, req pipeline.PublishRequest) (pipeline.PublishResult, error) {
	return pipeline.PublishResult{StatusID: "s1"}, nil
}
func (fakePublisher) Update(ctx context.Context, downstreamID string, req pipeline.PublishRequest) (pipeline.PublishResult, error) {
	return pipeline.PublishResult{StatusID: downstreamID}, nil
}

type fakeAdapter struct {
	items []model.UniformPost
	err   error
}

func (a fakeAdapter) Fetch(ctx context.Context, source config.Source) ([]model.UniformPost, error) {
	return a.items, a.err
}

// signalingAdapter notifies done once Fetch has been called, so a test can
// wait for EnqueueSource's background goroutine without a sleep.
type signalingAdapter struct {
	items []model.UniformPost
	done  chan struct{}
}

func (a signalingAdapter) Fetch(ctx context.Context, source config.Source) ([]model.UniformPost, error) {
	defer close(a.done)
	return a.items, nil
}

func testRunConfig() config.RunConfig {
	return config.RunConfig{
		GlobalMinIntervalMinutes: 5,
		GlobalSourceLimit:        200,
		RunDeadlineSeconds:       30,
		PerPlatformConcurrency:  4,
		CriticalErrorThreshold:  5,
	}
}

func TestScheduler_RunsDueEnabledSources(t *testing.T) {
	sources := []config.Source{
		{ID: "s1", Platform: "feed", Enabled: true, Priority: config.PriorityNormal, Target: config.Target{AccountID: "a"}},
		{ID: "s2", Platform: "feed", Enabled: false, Priority: config.PriorityNormal, Target: config.Target{AccountID: "a"}},
	}
	state := &fakeState{}
	locker := &fakeLocker{}
	adapters := map[string]pipeline.SourceAdapter{
		"feed": fakeAdapter{items: []model.UniformPost{{ID: "p1", Text: "hi", PublishedAt: time.Now()}}},
	}

	sched := New(sources, fakePosts{}, state, fakeActivity{}, fakeBuffer{}, adapters, fakePublisher{}, locker, testRunConfig(), applog.New())
	summary, err := sched.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce returned error: %v", err)
	}
	if summary.SourcesConsidered != 1 {
		t.Errorf("expected only the enabled source to be considered, got %d", summary.SourcesConsidered)
	}
	if summary.Published != 1 {
		t.Errorf("expected 1 published, got %d", summary.Published)
	}
	if summary.ExitCode != 0 {
		t.Errorf("expected exit code 0, got %d", summary.ExitCode)
	}
}

// TestScheduler_BootstrapsSourceWithNoPriorState proves a freshly configured
// source with no source_state row at all is selected on its very first run,
// not only after some other run has created one for it. Priority is low (55
// minute interval) specifically to rule out "it's due because the interval
// is short" as an alternate explanation.
func TestScheduler_BootstrapsSourceWithNoPriorState(t *testing.T) {
	sources := []config.Source{
		{ID: "s1", Platform: "feed", Enabled: true, Priority: config.PriorityLow, Target: config.Target{AccountID: "a"}},
	}
	state := &fakeState{}
	locker := &fakeLocker{}
	adapters := map[string]pipeline.SourceAdapter{
		"feed": fakeAdapter{items: []model.UniformPost{{ID: "p1", Text: "hi", PublishedAt: time.Now()}}},
	}

	sched := New(sources, fakePosts{}, state, fakeActivity{}, fakeBuffer{}, adapters, fakePublisher{}, locker, testRunConfig(), applog.New())
	summary, err := sched.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce returned error: %v", err)
	}
	if summary.SourcesConsidered != 1 {
		t.Errorf("expected a never-checked source to be selected on its first run, got %d considered", summary.SourcesConsidered)
	}
	if summary.Published != 1 {
		t.Errorf("expected the never-checked source to publish, got %d", summary.Published)
	}
}

func TestScheduler_SkipsSourceNotDueAtItsOwnInterval(t *testing.T) {
	recent := time.Now().Add(-10 * time.Minute)
	sources := []config.Source{
		{ID: "s1", Platform: "feed", Enabled: true, Priority: config.PriorityLow, Target: config.Target{AccountID: "a"}},
	}
	state := &fakeState{lastChecks: map[string]time.Time{"s1": recent}}
	locker := &fakeLocker{}
	adapters := map[string]pipeline.SourceAdapter{"feed": fakeAdapter{}}

	sched := New(sources, fakePosts{}, state, fakeActivity{}, fakeBuffer{}, adapters, fakePublisher{}, locker, testRunConfig(), applog.New())
	summary, err := sched.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce returned error: %v", err)
	}
	if summary.SourcesConsidered != 0 {
		t.Errorf("expected the low-priority source (55min interval) to be filtered out after checking 10min ago, past the 5min global pre-filter, got %d considered", summary.SourcesConsidered)
	}
}

func TestScheduler_SkipsLockedSource(t *testing.T) {
	sources := []config.Source{
		{ID: "s1", Platform: "feed", Enabled: true, Priority: config.PriorityNormal, Target: config.Target{AccountID: "a"}},
	}
	state := &fakeState{}
	locker := &fakeLocker{denySources: map[string]bool{"s1": true}}
	adapters := map[string]pipeline.SourceAdapter{"feed": fakeAdapter{items: []model.UniformPost{{ID: "p1", Text: "hi"}}}}

	sched := New(sources, fakePosts{}, state, fakeActivity{}, fakeBuffer{}, adapters, fakePublisher{}, locker, testRunConfig(), applog.New())
	summary, err := sched.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce returned error: %v", err)
	}
	if summary.Published != 0 {
		t.Errorf("expected locked source to be skipped entirely, got published=%d", summary.Published)
	}
}

func TestScheduler_HardErrorYieldsExitCode1(t *testing.T) {
	sources := []config.Source{
		{ID: "s1", Platform: "feed", Enabled: true, Priority: config.PriorityNormal, Target: config.Target{AccountID: "a"}},
	}
	state := &fakeState{}
	locker := &fakeLocker{}
	adapters := map[string]pipeline.SourceAdapter{
		"feed": fakeAdapter{err: &model.PublisherError{Kind: model.ErrKindValidation, StatusCode: 422}},
	}

	runCfg := testRunConfig()
	runCfg.CriticalErrorThreshold = 1
	sched := New(sources, fakePosts{}, state, fakeActivity{}, fakeBuffer{}, adapters, fakePublisher{}, locker, runCfg, applog.New())
	summary, err := sched.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce returned error: %v", err)
	}
	if summary.Errored != 1 {
		t.Errorf("expected 1 errored source, got %d", summary.Errored)
	}
	if summary.ExitCode != 1 {
		t.Errorf("expected exit code 1 for a hard error, got %d", summary.ExitCode)
	}
	if state.errorCalls != 1 {
		t.Errorf("expected mark_error called once, got %d", state.errorCalls)
	}
}

func TestScheduler_EnqueueSourceRejectsUnknownSource(t *testing.T) {
	sched := New(nil, fakePosts{}, &fakeState{}, fakeActivity{}, fakeBuffer{}, nil, fakePublisher{}, &fakeLocker{}, testRunConfig(), applog.New())
	if err := sched.EnqueueSource(context.Background(), "missing"); err == nil {
		t.Fatal("expected an error for an unknown source id")
	}
}

func TestScheduler_EnqueueSourceRejectsMissingAdapter(t *testing.T) {
	sources := []config.Source{{ID: "s1", Platform: "video", Enabled: true, Priority: config.PriorityNormal, Target: config.Target{AccountID: "a"}}}
	sched := New(sources, fakePosts{}, &fakeState{}, fakeActivity{}, fakeBuffer{}, map[string]pipeline.SourceAdapter{}, fakePublisher{}, &fakeLocker{}, testRunConfig(), applog.New())
	if err := sched.EnqueueSource(context.Background(), "s1"); err == nil {
		t.Fatal("expected an error for a platform with no registered adapter")
	}
}

func TestScheduler_EnqueueSourceRunsInBackground(t *testing.T) {
	sources := []config.Source{{ID: "s1", Platform: "feed", Enabled: true, Priority: config.PriorityNormal, Target: config.Target{AccountID: "a"}}}
	done := make(chan struct{})
	adapters := map[string]pipeline.SourceAdapter{
		"feed": signalingAdapter{items: []model.UniformPost{{ID: "p1", Text: "hi", PublishedAt: time.Now()}}, done: done},
	}

	sched := New(sources, fakePosts{}, &fakeState{}, fakeActivity{}, fakeBuffer{}, adapters, fakePublisher{}, &fakeLocker{}, testRunConfig(), applog.New())
	if err := sched.EnqueueSource(context.Background(), "s1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("expected EnqueueSource to trigger a fetch in the background")
	}
}

