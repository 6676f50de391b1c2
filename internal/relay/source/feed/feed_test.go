package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/techappsUT/feedrelay/internal/config"
)

const sampleRSS = `<?xml version="1.0"?>
<rss version="2.0"><channel>
<title>Example</title>
<item>
  <title>First post</title>
  <link>https://example.com/1</link>
  <guid>https://example.com/1</guid>
  <pubDate>Wed, 29 Jul 2026 12:00:00 +0000</pubDate>
  <author>writer@example.com</author>
</item>
<item>
  <title>Second post</title>
  <link>https://example.com/2</link>
  <guid>https://example.com/2</guid>
  <pubDate>Wed, 29 Jul 2026 13:00:00 +0000</pubDate>
  <enclosure url="https://example.com/clip.mp4" type="video/mp4"/>
</item>
</channel></rss>`

const sampleAtom = `<?xml version="1.0"?>
<feed xmlns="http://www.w3.org/2005/Atom">
<title>Example Atom</title>
<entry>
  <id>tag:example.com,2026:1</id>
  <title>Atom post</title>
  <summary>hello from atom</summary>
  <updated>2026-07-29T12:00:00Z</updated>
  <author><name>writer</name></author>
  <link rel="alternate" href="https://example.com/atom/1"/>
</entry>
</feed>`

func TestAdapter_FetchRSS(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(sampleRSS))
	}))
	defer server.Close()

	a := New()
	posts, err := a.Fetch(context.Background(), config.Source{FeedURL: server.URL})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(posts) != 2 {
		t.Fatalf("expected 2 items, got %d", len(posts))
	}
	if posts[0].ID != "https://example.com/1" {
		t.Errorf("expected guid as id, got %s", posts[0].ID)
	}
	if !posts[1].HasVideo {
		t.Error("expected second item to be flagged as video")
	}
}

func TestAdapter_FetchAtom(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(sampleAtom))
	}))
	defer server.Close()

	a := New()
	posts, err := a.Fetch(context.Background(), config.Source{FeedURL: server.URL})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(posts) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(posts))
	}
	if posts[0].Text != "hello from atom" {
		t.Errorf("expected summary as text, got %q", posts[0].Text)
	}
	if posts[0].URL != "https://example.com/atom/1" {
		t.Errorf("expected alternate link, got %s", posts[0].URL)
	}
}

func TestAdapter_FetchMissingFeedURLIsParseError(t *testing.T) {
	a := New()
	_, err := a.Fetch(context.Background(), config.Source{})
	if err == nil {
		t.Fatal("expected error for missing feed_url")
	}
}

func TestAdapter_FetchUnparseableBodyIsParseError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not xml at all"))
	}))
	defer server.Close()

	a := New()
	_, err := a.Fetch(context.Background(), config.Source{FeedURL: server.URL})
	if err == nil {
		t.Fatal("expected parse error for unparseable body")
	}
}
