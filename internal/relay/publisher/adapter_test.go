package publisher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/techappsUT/feedrelay/internal/applog"
	"github.com/techappsUT/feedrelay/internal/relay/model"
	"github.com/techappsUT/feedrelay/internal/relay/pipeline"
)

type fakeLowLevelPublisher struct {
	uploadCalls int
	publishReq  []string // media ids seen by Publish
}

func (f *fakeLowLevelPublisher) Publish(ctx context.Context, text string, mediaIDs []string, visibility, inReplyTo string) (StatusResult, error) {
	f.publishReq = mediaIDs
	return StatusResult{ID: "status-1"}, nil
}
func (f *fakeLowLevelPublisher) Update(ctx context.Context, statusID, text string, mediaIDs []string) (StatusResult, error) {
	return StatusResult{ID: statusID}, nil
}
func (f *fakeLowLevelPublisher) Delete(ctx context.Context, statusID string) error { return nil }
func (f *fakeLowLevelPublisher) UploadMedia(ctx context.Context, m MediaUpload) (UploadedMedia, error) {
	f.uploadCalls++
	return UploadedMedia{ID: "media-" + m.Filename}, nil
}

func TestAdapter_PublishDownloadsAndUploadsMedia(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte{0xFF, 0xD8, 0xFF, 0xE0})
	}))
	defer server.Close()

	low := &fakeLowLevelPublisher{}
	a := NewAdapter(low, nil, applog.New())

	req := pipeline.PublishRequest{
		Text: "hello",
		Media: []model.Media{
			{URL: server.URL + "/photo.jpg"},
		},
	}

	res, err := a.Publish(context.Background(), req)
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if res.StatusID != "status-1" {
		t.Errorf("expected status-1, got %s", res.StatusID)
	}
	if low.uploadCalls != 1 {
		t.Errorf("expected 1 media upload, got %d", low.uploadCalls)
	}
	if len(low.publishReq) != 1 {
		t.Errorf("expected 1 media id passed to Publish, got %+v", low.publishReq)
	}
}

func TestAdapter_PublishSkipsMediaThatFailsToDownload(t *testing.T) {
	low := &fakeLowLevelPublisher{}
	a := NewAdapter(low, nil, applog.New())

	req := pipeline.PublishRequest{
		Text:  "hello",
		Media: []model.Media{{URL: "http://127.0.0.1:0/missing.jpg"}},
	}

	res, err := a.Publish(context.Background(), req)
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if res.StatusID != "status-1" {
		t.Errorf("expected publish to still succeed without the broken attachment, got %+v", res)
	}
	if low.uploadCalls != 0 {
		t.Errorf("expected no upload attempt for a download that failed, got %d", low.uploadCalls)
	}
}
