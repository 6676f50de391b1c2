package video

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/techappsUT/feedrelay/internal/config"
)

const sampleVideos = `{
  "data": [
    {
      "uuid": "v1",
      "shortUUID": "abc123",
      "name": "My latest upload",
      "publishedAt": "2026-07-29T12:00:00.000Z",
      "channel": {"name": "mychannel", "displayName": "My Channel"},
      "thumbnailPath": "/lazy-static/thumbnails/v1.jpg"
    }
  ]
}`

func TestAdapter_FetchConvertsVideos(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(sampleVideos))
	}))
	defer server.Close()

	a := New(server.URL)
	posts, err := a.Fetch(context.Background(), config.Source{Handle: "mychannel"})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(posts) != 1 {
		t.Fatalf("expected 1 video, got %d", len(posts))
	}
	if !posts[0].HasVideo {
		t.Error("expected HasVideo true")
	}
	if posts[0].Text != "My latest upload" {
		t.Errorf("expected title as text, got %q", posts[0].Text)
	}
	if len(posts[0].Media) != 1 {
		t.Errorf("expected 1 thumbnail media item, got %d", len(posts[0].Media))
	}
}

func TestAdapter_FetchMissingHandleIsParseError(t *testing.T) {
	a := New("http://unused")
	_, err := a.Fetch(context.Background(), config.Source{})
	if err == nil {
		t.Fatal("expected error for missing channel handle")
	}
}
