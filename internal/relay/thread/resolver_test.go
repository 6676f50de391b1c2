package thread

import (
	"context"
	"testing"
)

type fakeStore struct {
	parent string
	err    error
	calls  int
}

func (f *fakeStore) FindRecentThreadParent(ctx context.Context, source string) (string, error) {
	f.calls++
	return f.parent, f.err
}

func TestResolver_CacheHitSkipsStore(t *testing.T) {
	store := &fakeStore{parent: "should-not-be-used"}
	r := New(store)
	r.RecordPublish("src1", "Alice", "status-1")

	id, err := r.ParentFor(context.Background(), "src1", "alice")
	if err != nil {
		t.Fatalf("ParentFor returned error: %v", err)
	}
	if id != "status-1" {
		t.Errorf("expected cached id status-1, got %q", id)
	}
	if store.calls != 0 {
		t.Errorf("expected store fallback to be skipped on cache hit, got %d calls", store.calls)
	}
}

func TestResolver_CacheMissFallsBackToStore(t *testing.T) {
	store := &fakeStore{parent: "status-from-store"}
	r := New(store)

	id, err := r.ParentFor(context.Background(), "src1", "alice")
	if err != nil {
		t.Fatalf("ParentFor returned error: %v", err)
	}
	if id != "status-from-store" {
		t.Errorf("expected fallback id, got %q", id)
	}
	if store.calls != 1 {
		t.Errorf("expected exactly one store call, got %d", store.calls)
	}
}

func TestResolver_NoParentReturnsEmpty(t *testing.T) {
	store := &fakeStore{parent: ""}
	r := New(store)

	id, err := r.ParentFor(context.Background(), "src1", "alice")
	if err != nil {
		t.Fatalf("ParentFor returned error: %v", err)
	}
	if id != "" {
		t.Errorf("expected empty parent id, got %q", id)
	}
}

func TestResolver_PerSourceIsolation(t *testing.T) {
	store := &fakeStore{parent: ""}
	r := New(store)
	r.RecordPublish("src1", "alice", "status-1")

	id, err := r.ParentFor(context.Background(), "src2", "alice")
	if err != nil {
		t.Fatalf("ParentFor returned error: %v", err)
	}
	if id != "" {
		t.Errorf("expected no cross-source cache bleed, got %q", id)
	}
}

func TestResolver_AuthorIsCaseInsensitive(t *testing.T) {
	store := &fakeStore{parent: ""}
	r := New(store)
	r.RecordPublish("src1", "Alice", "status-1")

	id, err := r.ParentFor(context.Background(), "src1", "ALICE")
	if err != nil {
		t.Fatalf("ParentFor returned error: %v", err)
	}
	if id != "status-1" {
		t.Errorf("expected case-insensitive author match, got %q", id)
	}
}

func TestResolver_RecordPublishIgnoresEmptyID(t *testing.T) {
	store := &fakeStore{parent: "fallback"}
	r := New(store)
	r.RecordPublish("src1", "alice", "")

	id, err := r.ParentFor(context.Background(), "src1", "alice")
	if err != nil {
		t.Fatalf("ParentFor returned error: %v", err)
	}
	if id != "fallback" {
		t.Errorf("expected fallback to store when no publish was recorded, got %q", id)
	}
}
