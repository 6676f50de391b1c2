// Package feed fetches a generic RSS or Atom feed and converts its entries
// into the core's uniform post shape (spec.md §6). RSS/Atom XML parsing
// itself is the kind of platform-specific conversion spec.md §1 marks as an
// external collaborator; this package gives it the minimal concrete shape
// needed to exercise the pipeline end to end.
package feed

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/techappsUT/feedrelay/internal/config"
	"github.com/techappsUT/feedrelay/internal/relay/model"
	"github.com/techappsUT/feedrelay/internal/relay/pipeline"
)

// Adapter fetches and parses one RSS or Atom feed. It satisfies
// pipeline.SourceAdapter.
type Adapter struct {
	httpClient *http.Client
}

func New() *Adapter {
	return &Adapter{httpClient: &http.Client{Timeout: 30 * time.Second}}
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
	Author      string `xml:"author"`
	Enclosure   *struct {
		URL  string `xml:"url,attr"`
		Type string `xml:"type,attr"`
	} `xml:"enclosure"`
}

type atomFeed struct {
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	ID      string `xml:"id"`
	Title   string `xml:"title"`
	Summary string `xml:"summary"`
	Content string `xml:"content"`
	Updated string `xml:"updated"`
	Author  struct {
		Name string `xml:"name"`
	} `xml:"author"`
	Links []struct {
		Href string `xml:"href,attr"`
		Rel  string `xml:"rel,attr"`
	} `xml:"link"`
}

// Fetch implements pipeline.SourceAdapter.
func (a *Adapter) Fetch(ctx context.Context, source config.Source) ([]model.UniformPost, error) {
	if source.FeedURL == "" {
		return nil, pipeline.NewParseError("feed source missing feed_url")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source.FeedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build feed request: %w", err)
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed %s returned status %d", source.FeedURL, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read feed body: %w", err)
	}

	if rss, ok := tryRSS(body); ok {
		return convertRSS(rss), nil
	}
	if atom, ok := tryAtom(body); ok {
		return convertAtom(atom), nil
	}
	return nil, pipeline.NewParseError("feed body is neither valid RSS nor Atom")
}

func tryRSS(body []byte) (rssFeed, bool) {
	var rss rssFeed
	if err := xml.Unmarshal(body, &rss); err != nil {
		return rssFeed{}, false
	}
	return rss, len(rss.Channel.Items) > 0
}

func tryAtom(body []byte) (atomFeed, bool) {
	var atom atomFeed
	if err := xml.Unmarshal(body, &atom); err != nil {
		return atomFeed{}, false
	}
	return atom, len(atom.Entries) > 0
}

func convertRSS(rss rssFeed) []model.UniformPost {
	posts := make([]model.UniformPost, 0, len(rss.Channel.Items))
	for _, item := range rss.Channel.Items {
		id := item.GUID
		if id == "" {
			id = item.Link
		}
		if id == "" {
			continue
		}

		publishedAt, err := time.Parse(time.RFC1123Z, item.PubDate)
		if err != nil {
			publishedAt, err = time.Parse(time.RFC1123, item.PubDate)
			if err != nil {
				publishedAt = time.Now()
			}
		}

		var media []model.Media
		if item.Enclosure != nil && item.Enclosure.URL != "" {
			media = append(media, model.Media{URL: item.Enclosure.URL, MimeType: item.Enclosure.Type})
		}

		posts = append(posts, model.UniformPost{
			ID:          id,
			URL:         item.Link,
			Text:        item.Title,
			PublishedAt: publishedAt,
			Author:      model.Author{Username: item.Author, DisplayName: item.Author},
			Media:       media,
			HasVideo:    item.Enclosure != nil && hasVideoType(item.Enclosure.Type),
		})
	}
	return posts
}

func convertAtom(atom atomFeed) []model.UniformPost {
	posts := make([]model.UniformPost, 0, len(atom.Entries))
	for _, entry := range atom.Entries {
		if entry.ID == "" {
			continue
		}

		link := ""
		for _, l := range entry.Links {
			if l.Rel == "" || l.Rel == "alternate" {
				link = l.Href
				break
			}
		}

		text := entry.Title
		if entry.Summary != "" {
			text = entry.Summary
		}

		publishedAt, err := time.Parse(time.RFC3339, entry.Updated)
		if err != nil {
			publishedAt = time.Now()
		}

		posts = append(posts, model.UniformPost{
			ID:          entry.ID,
			URL:         link,
			Text:        text,
			PublishedAt: publishedAt,
			Author:      model.Author{Username: entry.Author.Name, DisplayName: entry.Author.Name},
		})
	}
	return posts
}

func hasVideoType(mimeType string) bool {
	return len(mimeType) >= 6 && mimeType[:6] == "video/"
}
