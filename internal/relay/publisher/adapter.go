package publisher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/techappsUT/feedrelay/internal/applog"
	"github.com/techappsUT/feedrelay/internal/relay/model"
	"github.com/techappsUT/feedrelay/internal/relay/pipeline"
)

// Adapter satisfies pipeline.Publisher: it downloads each attachment's
// bytes (the thin, out-of-scope "media download" collaborator named in
// spec.md §1), uploads them through the wrapped Publisher, and then calls
// publish/update with the resulting media ids.
type Adapter struct {
	publisher  Publisher
	httpClient *http.Client
	limiter    *AccountLimiter
	logger     applog.Logger
}

// NewAdapter wraps publisher with the media-download seam and per-account
// publish pacing. limiter may be nil, in which case publishes are unpaced.
func NewAdapter(publisher Publisher, limiter *AccountLimiter, logger applog.Logger) *Adapter {
	return &Adapter{
		publisher:  publisher,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    limiter,
		logger:     logger,
	}
}

func (a *Adapter) Publish(ctx context.Context, req pipeline.PublishRequest) (pipeline.PublishResult, error) {
	if err := a.wait(ctx, req.AccountID); err != nil {
		return pipeline.PublishResult{}, err
	}
	mediaIDs := a.uploadMedia(ctx, req.Media)
	res, err := a.publisher.Publish(ctx, req.Text, mediaIDs, req.Visibility, req.ReplyToID)
	if err != nil {
		return pipeline.PublishResult{}, err
	}
	return pipeline.PublishResult{StatusID: res.ID, URL: res.URL}, nil
}

func (a *Adapter) Update(ctx context.Context, downstreamID string, req pipeline.PublishRequest) (pipeline.PublishResult, error) {
	if err := a.wait(ctx, req.AccountID); err != nil {
		return pipeline.PublishResult{}, err
	}
	mediaIDs := a.uploadMedia(ctx, req.Media)
	res, err := a.publisher.Update(ctx, downstreamID, req.Text, mediaIDs)
	if err != nil {
		return pipeline.PublishResult{}, err
	}
	return pipeline.PublishResult{StatusID: res.ID, URL: res.URL}, nil
}

func (a *Adapter) wait(ctx context.Context, accountID string) error {
	if a.limiter == nil || accountID == "" {
		return nil
	}
	return a.limiter.Wait(ctx, accountID)
}

func (a *Adapter) uploadMedia(ctx context.Context, media []model.Media) []string {
	if len(media) == 0 {
		return nil
	}

	uploads := make([]MediaUpload, 0, len(media))
	indexOfSource := make([]int, 0, len(media))
	for i, m := range media {
		data, filename, err := a.download(ctx, m.URL)
		if err != nil {
			a.logger.Warn("media download failed, skipping attachment", "url", m.URL, "err", err)
			continue
		}
		uploads = append(uploads, MediaUpload{Bytes: data, Filename: filename, AltText: m.AltText})
		indexOfSource = append(indexOfSource, i)
	}

	uploaded := UploadAll(ctx, a.publisher, uploads, func(index int, err error) {
		a.logger.Warn("media upload failed, excluding attachment", "url", uploads[index].Filename, "err", err)
	})

	ids := make([]string, 0, len(uploaded))
	for _, u := range uploaded {
		ids = append(ids, u.ID)
	}
	return ids
}

func (a *Adapter) download(ctx context.Context, rawURL string) (data []byte, filename string, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build media download request: %w", err)
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("download media: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("download media: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read media body: %w", err)
	}

	base := path.Base(rawURL)
	if base == "" || base == "." || base == "/" || !strings.Contains(base, ".") {
		base = "attachment"
	}
	return body, base, nil
}
