// Package video fetches a channel's recent uploads from a PeerTube-shaped
// video platform API and converts them into the core's uniform post shape
// (spec.md §6, "a video platform API").
package video

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/techappsUT/feedrelay/internal/config"
	"github.com/techappsUT/feedrelay/internal/relay/model"
	"github.com/techappsUT/feedrelay/internal/relay/pipeline"
)

type Adapter struct {
	BaseURL    string
	httpClient *http.Client
}

func New(baseURL string) *Adapter {
	return &Adapter{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type videosResponse struct {
	Data []videoEntry `json:"data"`
}

type videoEntry struct {
	UUID        string `json:"uuid"`
	ShortUUID   string `json:"shortUUID"`
	Name        string `json:"name"`
	Description string `json:"description"`
	PublishedAt string `json:"publishedAt"`
	Channel     struct {
		Name        string `json:"name"`
		DisplayName string `json:"displayName"`
	} `json:"channel"`
	Thumbnail string `json:"thumbnailPath"`
}

// Fetch implements pipeline.SourceAdapter.
func (a *Adapter) Fetch(ctx context.Context, source config.Source) ([]model.UniformPost, error) {
	if source.Handle == "" {
		return nil, pipeline.NewParseError("video source missing channel handle")
	}

	endpoint := fmt.Sprintf("%s/api/v1/video-channels/%s/videos?%s",
		a.BaseURL, url.PathEscape(source.Handle),
		url.Values{"count": {"20"}, "sort": {"-publishedAt"}}.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build video request: %w", err)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch video channel: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("video platform returned status %d for channel %s", resp.StatusCode, source.Handle)
	}

	var parsed videosResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, pipeline.NewParseError("video channel response malformed: " + err.Error())
	}

	posts := make([]model.UniformPost, 0, len(parsed.Data))
	for _, v := range parsed.Data {
		posts = append(posts, convert(v, a.BaseURL))
	}
	return posts, nil
}

func convert(v videoEntry, baseURL string) model.UniformPost {
	publishedAt, err := time.Parse(time.RFC3339, v.PublishedAt)
	if err != nil {
		publishedAt = time.Now()
	}

	displayName := v.Channel.DisplayName
	if displayName == "" {
		displayName = v.Channel.Name
	}

	var media []model.Media
	if v.Thumbnail != "" {
		media = append(media, model.Media{URL: baseURL + v.Thumbnail, MimeType: "image/jpeg"})
	}

	return model.UniformPost{
		ID:          v.UUID,
		URL:         fmt.Sprintf("%s/w/%s", baseURL, v.ShortUUID),
		Text:        v.Name,
		PublishedAt: publishedAt,
		Author:      model.Author{Username: v.Channel.Name, DisplayName: displayName},
		Media:       media,
		HasVideo:    true,
	}
}
