package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/techappsUT/feedrelay/internal/applog"
	"github.com/techappsUT/feedrelay/internal/relay/model"
)

// maxTransportRetries bounds retries for 5xx responses and transport
// timeouts (spec.md §4.F "5xx / transport timeout: retry up to 2 times").
const maxTransportRetries = 2

// MastodonPublisher talks to one ActivityPub-compatible (Mastodon API
// compatible) instance on behalf of one downstream account. It is stateless
// other than credentials, so a single instance is shared and called
// concurrently across sources (spec.md §5 "Publisher adapter: shared").
//
// Grounded on the teacher's internal/social/adapters/twitter_adapter.go
// HTTP-client idiom: 30s timeout, bearer auth header, context-scoped
// requests.
type MastodonPublisher struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     applog.Logger
}

func NewMastodonPublisher(baseURL, token string, logger applog.Logger) *MastodonPublisher {
	return &MastodonPublisher{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

type statusResponse struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

func (m *MastodonPublisher) Publish(ctx context.Context, text string, mediaIDs []string, visibility, inReplyTo string) (StatusResult, error) {
	form := url.Values{}
	form.Set("status", text)
	if visibility != "" {
		form.Set("visibility", visibility)
	}
	if inReplyTo != "" {
		form.Set("in_reply_to_id", inReplyTo)
	}
	for _, id := range mediaIDs {
		form.Add("media_ids[]", id)
	}

	var resp statusResponse
	if err := m.doRetrying(ctx, http.MethodPost, "/api/v1/statuses", strings.NewReader(form.Encode()), "application/x-www-form-urlencoded", &resp); err != nil {
		return StatusResult{}, err
	}
	return StatusResult{ID: resp.ID, URL: resp.URL}, nil
}

func (m *MastodonPublisher) Update(ctx context.Context, statusID, text string, mediaIDs []string) (StatusResult, error) {
	form := url.Values{}
	form.Set("status", text)
	for _, id := range mediaIDs {
		form.Add("media_ids[]", id)
	}

	var resp statusResponse
	path := fmt.Sprintf("/api/v1/statuses/%s", statusID)
	if err := m.doRetrying(ctx, http.MethodPut, path, strings.NewReader(form.Encode()), "application/x-www-form-urlencoded", &resp); err != nil {
		return StatusResult{}, err
	}
	return StatusResult{ID: resp.ID, URL: resp.URL}, nil
}

func (m *MastodonPublisher) Delete(ctx context.Context, statusID string) error {
	path := fmt.Sprintf("/api/v1/statuses/%s", statusID)
	return m.doRetrying(ctx, http.MethodDelete, path, nil, "", nil)
}

func (m *MastodonPublisher) UploadMedia(ctx context.Context, media MediaUpload) (UploadedMedia, error) {
	mime, ext, ok := sniffMIME(media.Bytes, media.Filename)
	if !ok {
		return UploadedMedia{}, newError(model.ErrKindValidation, 0, 0, "unrecognized media type, upload abandoned", nil)
	}
	filename := resolveFilename(media.Filename, ext)

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	header := make(textproto.MIMEHeader)
	escaped := strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(filename)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, escaped))
	header.Set("Content-Type", mime)
	part, err := w.CreatePart(header)
	if err != nil {
		return UploadedMedia{}, fmt.Errorf("build media upload: %w", err)
	}
	if _, err := part.Write(media.Bytes); err != nil {
		return UploadedMedia{}, fmt.Errorf("build media upload: %w", err)
	}
	if media.AltText != "" {
		_ = w.WriteField("description", media.AltText)
	}
	if err := w.Close(); err != nil {
		return UploadedMedia{}, fmt.Errorf("build media upload: %w", err)
	}

	var resp struct {
		ID string `json:"id"`
	}
	if err := m.doRetrying(ctx, http.MethodPost, "/api/v1/media", &buf, w.FormDataContentType(), &resp); err != nil {
		return UploadedMedia{}, err
	}
	return UploadedMedia{ID: resp.ID}, nil
}

// doRetrying issues one request, retrying 5xx and transport-level failures
// per spec.md §4.F, and translates the final outcome into the typed errors
// the pipeline's error classification pattern-matches on. 429s are
// surfaced as ErrKindRateLimited with RetryAfter populated and left for the
// pipeline's own retry loop (spec.md §4.D), since that retry spans a whole
// publish attempt rather than a single HTTP round trip.
func (m *MastodonPublisher) doRetrying(ctx context.Context, method, path string, body io.Reader, contentType string, out interface{}) error {
	var bodyBytes []byte
	if body != nil {
		var err error
		bodyBytes, err = io.ReadAll(body)
		if err != nil {
			return fmt.Errorf("read request body: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt <= maxTransportRetries; attempt++ {
		var reqBody io.Reader
		if bodyBytes != nil {
			reqBody = bytes.NewReader(bodyBytes)
		}

		req, err := http.NewRequestWithContext(ctx, method, m.baseURL+path, reqBody)
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+m.token)
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}

		resp, err := m.httpClient.Do(req)
		if err != nil {
			lastErr = newError(model.ErrKindTransient, 0, 0, err.Error(), err)
			if attempt == maxTransportRetries {
				return lastErr
			}
			m.sleepTransport(ctx, attempt)
			continue
		}

		err = m.handleResponse(resp, out)
		if err == nil {
			return nil
		}

		var pe *model.PublisherError
		if !okAs(err, &pe) {
			return err
		}
		lastErr = pe

		if pe.Kind == model.ErrKindRateLimited {
			return pe
		}
		if pe.Kind != model.ErrKindTransient {
			return pe
		}
		if attempt == maxTransportRetries {
			return lastErr
		}
		m.sleepTransport(ctx, attempt)
	}
	return lastErr
}

func (m *MastodonPublisher) sleepTransport(ctx context.Context, attempt int) {
	wait := time.Duration(attempt+1)*time.Second + time.Duration(rand.Intn(2000))*time.Millisecond
	select {
	case <-ctx.Done():
	case <-time.After(wait):
	}
}

func (m *MastodonPublisher) handleResponse(resp *http.Response, out interface{}) error {
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if out != nil && len(body) > 0 {
			if err := json.Unmarshal(body, out); err != nil {
				return fmt.Errorf("decode response: %w", err)
			}
		}
		return nil
	case resp.StatusCode == http.StatusTooManyRequests:
		retryAfter := 0
		if v := resp.Header.Get("Retry-After"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				retryAfter = n
			}
		}
		return newError(model.ErrKindRateLimited, resp.StatusCode, retryAfter, string(body), nil)
	case resp.StatusCode == http.StatusNotFound:
		return newError(model.ErrKindNotFound, resp.StatusCode, 0, string(body), nil)
	case resp.StatusCode == http.StatusForbidden:
		return newError(model.ErrKindEditNotAllowed, resp.StatusCode, 0, string(body), nil)
	case resp.StatusCode >= 500:
		return newError(model.ErrKindTransient, resp.StatusCode, 0, string(body), nil)
	case resp.StatusCode >= 400:
		return newError(model.ErrKindValidation, resp.StatusCode, 0, string(body), nil)
	default:
		return newError(model.ErrKindTransient, resp.StatusCode, 0, string(body), nil)
	}
}

// okAs is a tiny errors.As wrapper kept local so this file's control flow
// above reads top-to-bottom without an extra import alias.
func okAs(err error, target **model.PublisherError) bool {
	pe, ok := err.(*model.PublisherError)
	if !ok {
		return false
	}
	*target = pe
	return true
}
