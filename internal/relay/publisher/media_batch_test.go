package publisher

import (
	"context"
	"fmt"
	"strconv"
	"testing"
)

type fakeMediaPublisher struct {
	failOn map[int]bool
}

func (f *fakeMediaPublisher) Publish(ctx context.Context, text string, mediaIDs []string, visibility, inReplyTo string) (StatusResult, error) {
	return StatusResult{}, nil
}
func (f *fakeMediaPublisher) Update(ctx context.Context, statusID, text string, mediaIDs []string) (StatusResult, error) {
	return StatusResult{}, nil
}
func (f *fakeMediaPublisher) Delete(ctx context.Context, statusID string) error { return nil }

func (f *fakeMediaPublisher) UploadMedia(ctx context.Context, m MediaUpload) (UploadedMedia, error) {
	if idx, err := strconv.Atoi(m.Filename); err == nil && f.failOn[idx] {
		return UploadedMedia{}, fmt.Errorf("upload failed for %s", m.Filename)
	}
	return UploadedMedia{ID: "media-" + m.Filename}, nil
}

func TestUploadAll_PreservesOrderAndExcludesFailures(t *testing.T) {
	p := &fakeMediaPublisher{failOn: map[int]bool{1: true}}
	uploads := []MediaUpload{
		{Filename: "0"},
		{Filename: "1"},
		{Filename: "2"},
	}

	var failures []int
	got := UploadAll(context.Background(), p, uploads, func(index int, err error) {
		failures = append(failures, index)
	})

	if len(got) != 2 {
		t.Fatalf("expected 2 successful uploads, got %d", len(got))
	}
	if got[0].ID != "media-0" || got[1].ID != "media-2" {
		t.Errorf("expected order 0,2 with failure excluded, got %+v", got)
	}
	if len(failures) != 1 || failures[0] != 1 {
		t.Errorf("expected failure callback for index 1, got %v", failures)
	}
}

func TestUploadAll_EmptyInput(t *testing.T) {
	p := &fakeMediaPublisher{}
	got := UploadAll(context.Background(), p, nil, nil)
	if got != nil {
		t.Errorf("expected nil result for empty input, got %+v", got)
	}
}
