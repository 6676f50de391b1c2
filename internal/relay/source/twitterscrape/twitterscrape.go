// Package twitterscrape fetches a Twitter/X account's public timeline
// through a Nitter-style scraping facade's per-user RSS feed and converts
// it into the core's uniform post shape (spec.md §6, "Twitter-scraping
// HTML/RSS facade"). The facade itself is the out-of-scope collaborator
// (spec.md §1); this adapter only consumes the RSS it emits and applies the
// repost/reply/quote conventions that facade's feeds use.
package twitterscrape

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/techappsUT/feedrelay/internal/config"
	"github.com/techappsUT/feedrelay/internal/relay/model"
	"github.com/techappsUT/feedrelay/internal/relay/pipeline"
)

// defaultFacadeBaseURL points at the scraping facade instance; overridable
// per-adapter (e.g. for a self-hosted instance or in tests) via BaseURL.
const defaultFacadeBaseURL = "https://nitter.net"

type Adapter struct {
	BaseURL    string
	httpClient *http.Client
}

func New() *Adapter {
	return &Adapter{
		BaseURL:    defaultFacadeBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type rssFeed struct {
	Channel struct {
		Items []rssItem `xml:"item"`
	} `xml:"channel"`
}

type rssItem struct {
	GUID        string `xml:"guid"`
	Link        string `xml:"link"`
	Title       string `xml:"title"`
	Description string `xml:"description"`
	PubDate     string `xml:"pubDate"`
}

// Fetch implements pipeline.SourceAdapter.
func (a *Adapter) Fetch(ctx context.Context, source config.Source) ([]model.UniformPost, error) {
	if source.Handle == "" {
		return nil, pipeline.NewParseError("twitterscrape source missing handle")
	}

	endpoint := fmt.Sprintf("%s/%s/rss", strings.TrimRight(a.BaseURL, "/"), source.Handle)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build twitterscrape request: %w", err)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch twitterscrape feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("twitterscrape facade returned status %d for %s", resp.StatusCode, source.Handle)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read twitterscrape body: %w", err)
	}

	var rss rssFeed
	if err := xml.Unmarshal(body, &rss); err != nil {
		return nil, pipeline.NewParseError("twitterscrape facade body malformed: " + err.Error())
	}

	posts := make([]model.UniformPost, 0, len(rss.Channel.Items))
	for _, item := range rss.Channel.Items {
		posts = append(posts, convert(item, source.Handle))
	}
	return posts, nil
}

// convert applies the scraping facade's title/description conventions: a
// retweet is prefixed "RT by @handle:", a reply "R to @handle:", and a
// quote-post description contains the quoted tweet's twitter.com link.
// Only a reply to the source's own handle is flagged as a thread post.
func convert(item rssItem, sourceHandle string) model.UniformPost {
	title := item.Title
	isRepost := strings.HasPrefix(title, "RT by @")
	isReply := strings.HasPrefix(title, "R to @")
	isThreadPost := false
	if isReply {
		if idx := strings.Index(title, ":"); idx > len("R to @") {
			isThreadPost = strings.EqualFold(title[len("R to @"):idx], sourceHandle)
		}
	}

	text := title
	if idx := strings.Index(title, ": "); isRepost || isReply {
		if idx >= 0 {
			text = title[idx+2:]
		}
	}

	var quoted *model.QuotedPost
	isQuote := false
	if qURL := extractQuoteLink(item.Description); qURL != "" {
		isQuote = true
		quoted = &model.QuotedPost{URL: qURL}
	}

	publishedAt, err := time.Parse(time.RFC1123Z, item.PubDate)
	if err != nil {
		publishedAt = time.Now()
	}

	id := item.GUID
	if id == "" {
		id = item.Link
	}

	return model.UniformPost{
		ID:           id,
		URL:          item.Link,
		Text:         text,
		PublishedAt:  publishedAt,
		Author:       model.Author{Username: sourceHandle},
		IsRepost:     isRepost,
		IsReply:      isReply,
		IsQuote:      isQuote,
		IsThreadPost: isThreadPost,
		QuotedPost:   quoted,
	}
}

// extractQuoteLink returns the last "https://twitter.com/" link in the
// description, up to the next space, newline or double quote, the facade's
// convention for marking an embedded quoted tweet. The link's path is not
// checked.
func extractQuoteLink(description string) string {
	const marker = "https://twitter.com/"
	idx := strings.LastIndex(description, marker)
	if idx < 0 {
		return ""
	}
	end := len(description)
	for i := idx; i < len(description); i++ {
		if description[i] == ' ' || description[i] == '\n' || description[i] == '"' {
			end = i
			break
		}
	}
	return description[idx:end]
}
