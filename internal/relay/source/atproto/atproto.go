// Package atproto fetches an account's public post feed from the
// AT Protocol via the unauthenticated app.bsky.feed.getAuthorFeed XRPC
// endpoint and converts it into the core's uniform post shape (spec.md §6).
//
// Grounded on the pack's AT-Proto reference material
// (internal/bsky/poller.go's XRPC client shape and record-field extraction)
// and the teacher's HTTP-client idiom (internal/social/adapters/twitter_adapter.go):
// a 30s-timeout *http.Client, context-scoped requests.
package atproto

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/techappsUT/feedrelay/internal/config"
	"github.com/techappsUT/feedrelay/internal/relay/model"
	"github.com/techappsUT/feedrelay/internal/relay/pipeline"
)

const defaultBaseURL = "https://public.api.bsky.app"

// Adapter fetches one account's author feed. It satisfies
// pipeline.SourceAdapter.
type Adapter struct {
	baseURL    string
	httpClient *http.Client
}

func New() *Adapter {
	return &Adapter{
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// feedResponse is the slice of app.bsky.feed.getAuthorFeed's JSON shape the
// adapter actually reads.
type feedResponse struct {
	Feed []feedItem `json:"feed"`
}

type feedItem struct {
	Post   postView  `json:"post"`
	Reason *reason   `json:"reason"`
	Reply  *replyRef `json:"reply"`
}

type reason struct {
	Type string `json:"$type"`
}

type replyRef struct {
	Parent struct {
		URI string `json:"uri"`
	} `json:"parent"`
}

type postView struct {
	URI       string          `json:"uri"`
	CID       string          `json:"cid"`
	Author    author          `json:"author"`
	Record    json.RawMessage `json:"record"`
	IndexedAt string          `json:"indexedAt"`
	Embed     *embedView      `json:"embed"`
}

type author struct {
	DID         string `json:"did"`
	Handle      string `json:"handle"`
	DisplayName string `json:"displayName"`
}

type postRecord struct {
	Text      string `json:"text"`
	CreatedAt string `json:"createdAt"`
	Reply     *struct {
		Parent struct {
			URI string `json:"uri"`
		} `json:"parent"`
	} `json:"reply"`
	Embed *struct {
		Type   string `json:"$type"`
		Record *struct {
			URI string `json:"uri"`
		} `json:"record"`
		Images []struct {
			Alt   string `json:"alt"`
			Image struct {
				Ref struct {
					Link string `json:"$link"`
				} `json:"ref"`
				MimeType string `json:"mimeType"`
			} `json:"image"`
		} `json:"images"`
	} `json:"embed"`
}

type embedView struct {
	Type   string `json:"$type"`
	Images []struct {
		Fullsize string `json:"fullsize"`
		Alt      string `json:"alt"`
	} `json:"images"`
}

// Fetch implements pipeline.SourceAdapter.
func (a *Adapter) Fetch(ctx context.Context, source config.Source) ([]model.UniformPost, error) {
	if source.Handle == "" {
		return nil, pipeline.NewParseError("atproto source missing handle")
	}

	endpoint := a.baseURL + "/xrpc/app.bsky.feed.getAuthorFeed?" + url.Values{
		"actor": {source.Handle},
		"limit": {"30"},
	}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build atproto request: %w", err)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch atproto author feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("atproto author feed returned status %d", resp.StatusCode)
	}

	var parsed feedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, pipeline.NewParseError("atproto feed response malformed: " + err.Error())
	}

	posts := make([]model.UniformPost, 0, len(parsed.Feed))
	for _, item := range parsed.Feed {
		post, ok := convert(item)
		if !ok {
			continue
		}
		posts = append(posts, post)
	}
	return posts, nil
}

func convert(item feedItem) (model.UniformPost, bool) {
	var rec postRecord
	if len(item.Post.Record) > 0 {
		_ = json.Unmarshal(item.Post.Record, &rec)
	}

	publishedAt, err := time.Parse(time.RFC3339, rec.CreatedAt)
	if err != nil {
		publishedAt, err = time.Parse(time.RFC3339, item.Post.IndexedAt)
		if err != nil {
			publishedAt = time.Now()
		}
	}

	isRepost := item.Reason != nil && item.Reason.Type == "app.bsky.feed.defs#reasonRepost"
	isReply := rec.Reply != nil
	isThreadPost := isReply && rec.Reply.Parent.URI != "" && replyIsSelf(rec, item.Post.Author.DID)

	var quoted *model.QuotedPost
	isQuote := false
	if rec.Embed != nil && rec.Embed.Record != nil && rec.Embed.Record.URI != "" {
		isQuote = true
		quoted = &model.QuotedPost{
			ID:  rec.Embed.Record.URI,
			URL: atURIToHTTPS(rec.Embed.Record.URI),
		}
	}

	var media []model.Media
	if item.Post.Embed != nil {
		for _, img := range item.Post.Embed.Images {
			media = append(media, model.Media{URL: img.Fullsize, AltText: img.Alt})
		}
	}

	return model.UniformPost{
		ID:           postID(item.Post),
		URL:          atURIToHTTPS(item.Post.URI),
		Text:         rec.Text,
		PublishedAt:  publishedAt,
		Author:       model.Author{Username: item.Post.Author.Handle, DisplayName: item.Post.Author.DisplayName},
		Media:        media,
		IsRepost:     isRepost,
		IsQuote:      isQuote,
		IsReply:      isReply,
		IsThreadPost: isThreadPost,
		PlatformURI:  item.Post.URI,
		QuotedPost:   quoted,
	}, true
}

// postID returns the post's record key (a TID, which sorts by creation
// time) from its at:// URI, falling back to the CID when the URI has none.
func postID(p postView) string {
	const marker = "/app.bsky.feed.post/"
	if idx := indexOf(p.URI, marker); idx >= 0 && idx+len(marker) < len(p.URI) {
		return p.URI[idx+len(marker):]
	}
	return p.CID
}

// replyIsSelf approximates "this reply continues the author's own thread":
// the parent URI's DID segment matches the post's author DID. A reply to a
// different author is a conversational reply, not a thread continuation.
func replyIsSelf(rec postRecord, authorDID string) bool {
	if rec.Reply == nil {
		return false
	}
	parentDID := didFromATURI(rec.Reply.Parent.URI)
	return parentDID != "" && parentDID == authorDID
}

func didFromATURI(uri string) string {
	const prefix = "at://"
	if len(uri) <= len(prefix) {
		return ""
	}
	rest := uri[len(prefix):]
	for i, c := range rest {
		if c == '/' {
			return rest[:i]
		}
	}
	return rest
}

func atURIToHTTPS(uri string) string {
	did := didFromATURI(uri)
	if did == "" {
		return uri
	}
	const marker = "/app.bsky.feed.post/"
	idx := indexOf(uri, marker)
	if idx < 0 {
		return "https://bsky.app/profile/" + did
	}
	rkey := uri[idx+len(marker):]
	return fmt.Sprintf("https://bsky.app/profile/%s/post/%s", did, rkey)
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}
