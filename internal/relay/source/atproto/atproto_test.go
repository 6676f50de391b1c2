package atproto

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/techappsUT/feedrelay/internal/config"
)

const samplePage = `{
  "feed": [
    {
      "post": {
        "uri": "at://did:plc:abc123/app.bsky.feed.post/xyz",
        "cid": "bafy1",
        "author": {"did": "did:plc:abc123", "handle": "alice.bsky.social", "displayName": "Alice"},
        "record": {"text": "hello world", "createdAt": "2026-07-29T12:00:00Z"},
        "indexedAt": "2026-07-29T12:00:01Z"
      }
    },
    {
      "post": {
        "uri": "at://did:plc:abc123/app.bsky.feed.post/xyz2",
        "cid": "bafy2",
        "author": {"did": "did:plc:abc123", "handle": "alice.bsky.social", "displayName": "Alice"},
        "record": {"text": "reposted elsewhere", "createdAt": "2026-07-29T12:05:00Z"},
        "indexedAt": "2026-07-29T12:05:01Z"
      },
      "reason": {"$type": "app.bsky.feed.defs#reasonRepost"}
    }
  ]
}`

func TestAdapter_FetchConvertsFeedItems(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("actor") != "alice.bsky.social" {
			t.Errorf("expected actor query param, got %s", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(samplePage))
	}))
	defer server.Close()

	a := New()
	a.baseURL = server.URL

	posts, err := a.Fetch(context.Background(), config.Source{Handle: "alice.bsky.social"})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(posts) != 2 {
		t.Fatalf("expected 2 posts, got %d", len(posts))
	}
	if posts[0].Text != "hello world" {
		t.Errorf("expected first post text 'hello world', got %q", posts[0].Text)
	}
	if !posts[1].IsRepost {
		t.Error("expected second post to be flagged as repost")
	}
	if posts[0].Author.Username != "alice.bsky.social" {
		t.Errorf("expected author handle, got %s", posts[0].Author.Username)
	}
}

func TestAdapter_FetchMissingHandleIsParseError(t *testing.T) {
	a := New()
	_, err := a.Fetch(context.Background(), config.Source{})
	if err == nil {
		t.Fatal("expected error for missing handle")
	}
}

func TestAdapter_FetchMalformedBodyIsParseError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("{not json"))
	}))
	defer server.Close()

	a := New()
	a.baseURL = server.URL
	_, err := a.Fetch(context.Background(), config.Source{Handle: "alice.bsky.social"})
	if err == nil {
		t.Fatal("expected parse error for malformed body")
	}
}
