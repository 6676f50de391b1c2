package publisher

import (
	"context"
	"sync"
)

// maxConcurrentMediaUploads bounds parallel uploads within one publish
// (spec.md §4.F "For ≤4 attachments, upload concurrently").
const maxConcurrentMediaUploads = 4

// UploadAll uploads every attachment concurrently (bounded to
// maxConcurrentMediaUploads) and returns the uploaded media ids in input
// order with failures excluded: a single bad attachment never blocks the
// rest of the post from publishing (spec.md §4.F).
func UploadAll(ctx context.Context, p Publisher, uploads []MediaUpload, onFailure func(index int, err error)) []UploadedMedia {
	if len(uploads) == 0 {
		return nil
	}

	results := make([]UploadedMedia, len(uploads))
	ok := make([]bool, len(uploads))

	sem := make(chan struct{}, maxConcurrentMediaUploads)
	var wg sync.WaitGroup
	for i, u := range uploads {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, u MediaUpload) {
			defer wg.Done()
			defer func() { <-sem }()

			res, err := p.UploadMedia(ctx, u)
			if err != nil {
				if onFailure != nil {
					onFailure(i, err)
				}
				return
			}
			results[i] = res
			ok[i] = true
		}(i, u)
	}
	wg.Wait()

	out := make([]UploadedMedia, 0, len(uploads))
	for i, succeeded := range ok {
		if succeeded {
			out = append(out, results[i])
		}
	}
	return out
}
