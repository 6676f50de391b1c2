// Package thread implements the threading resolver (spec.md §4.C): mapping
// an upstream self-reply chain onto a downstream reply-to id.
package thread

import (
	"context"
	"strings"
	"sync"
)

// Store is the subset of the state store the resolver falls back to when
// its in-memory cache misses (spec.md §4.A find_recent_thread_parent).
type Store interface {
	FindRecentThreadParent(ctx context.Context, source string) (string, error)
}

// Resolver owns one run's in-memory thread cache. It is not safe to share
// across runs: the cache is cleared by constructing a fresh Resolver per
// orchestrator run (spec.md §3 "Cleared when the process exits", §9 "Thread
// cache lifetime: bind to the orchestrator run, not to the process").
type Resolver struct {
	store Store

	mu    sync.Mutex
	cache map[string]map[string]string // source_id -> lowercased author -> downstream_status_id
}

func New(store Store) *Resolver {
	return &Resolver{
		store: store,
		cache: make(map[string]map[string]string),
	}
}

// ParentFor returns the downstream status id a thread-continuation post
// should reply to, or "" if none is known (spec.md §4.C steps 1-3).
//
// Callers MUST present items from a single source in upstream chronological
// order within a run, or threads invert (spec.md §4.C "Ordering requirement").
func (r *Resolver) ParentFor(ctx context.Context, source, author string) (string, error) {
	author = strings.ToLower(author)

	r.mu.Lock()
	if bySource, ok := r.cache[source]; ok {
		if id, ok := bySource[author]; ok {
			r.mu.Unlock()
			return id, nil
		}
	}
	r.mu.Unlock()

	id, err := r.store.FindRecentThreadParent(ctx, source)
	if err != nil {
		return "", err
	}
	return id, nil
}

// RecordPublish registers the downstream id produced by publishing a post,
// so a later item from the same author in this run chains from it
// (spec.md §4.C "After a successful publish of any post...").
func (r *Resolver) RecordPublish(source, author, downstreamID string) {
	if downstreamID == "" {
		return
	}
	author = strings.ToLower(author)

	r.mu.Lock()
	defer r.mu.Unlock()
	bySource, ok := r.cache[source]
	if !ok {
		bySource = make(map[string]string)
		r.cache[source] = bySource
	}
	bySource[author] = downstreamID
}
