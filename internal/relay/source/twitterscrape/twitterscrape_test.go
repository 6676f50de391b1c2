package twitterscrape

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/techappsUT/feedrelay/internal/config"
)

const sampleFeed = `<?xml version="1.0"?>
<rss version="2.0"><channel>
<item>
  <title>Just shipped a new release</title>
  <link>https://nitter.net/alice/status/1</link>
  <guid>https://nitter.net/alice/status/1</guid>
  <pubDate>Wed, 29 Jul 2026 12:00:00 +0000</pubDate>
  <description>Just shipped a new release</description>
</item>
<item>
  <title>RT by @alice: Check this out</title>
  <link>https://nitter.net/alice/status/2</link>
  <guid>https://nitter.net/alice/status/2</guid>
  <pubDate>Wed, 29 Jul 2026 13:00:00 +0000</pubDate>
  <description>RT by @alice: Check this out</description>
</item>
<item>
  <title>R to @bob: good point</title>
  <link>https://nitter.net/alice/status/3</link>
  <guid>https://nitter.net/alice/status/3</guid>
  <pubDate>Wed, 29 Jul 2026 14:00:00 +0000</pubDate>
  <description>R to @bob: good point quoting https://twitter.com/bob/status/99</description>
</item>
</channel></rss>`

func TestAdapter_FetchParsesRetweetsAndReplies(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/alice/rss" {
			t.Errorf("expected /alice/rss, got %s", r.URL.Path)
		}
		w.Write([]byte(sampleFeed))
	}))
	defer server.Close()

	a := New()
	a.BaseURL = server.URL

	posts, err := a.Fetch(context.Background(), config.Source{Handle: "alice"})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(posts) != 3 {
		t.Fatalf("expected 3 posts, got %d", len(posts))
	}
	if posts[0].IsRepost || posts[0].IsReply {
		t.Errorf("expected first post to be a plain post, got %+v", posts[0])
	}
	if !posts[1].IsRepost || posts[1].Text != "Check this out" {
		t.Errorf("expected retweet with stripped prefix, got %+v", posts[1])
	}
	if !posts[2].IsReply || posts[2].QuotedPost == nil {
		t.Errorf("expected reply with quoted link, got %+v", posts[2])
	}
}

func TestAdapter_FetchMissingHandleIsParseError(t *testing.T) {
	a := New()
	_, err := a.Fetch(context.Background(), config.Source{})
	if err == nil {
		t.Fatal("expected error for missing handle")
	}
}
