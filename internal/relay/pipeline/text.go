package pipeline

import (
	"fmt"

	"github.com/techappsUT/feedrelay/internal/relay/model"
)

// formatText renders the text actually sent downstream. ActivityPub has no
// native quote-post concept, so a quoted upstream item is appended as a
// trailing reference rather than dropped (spec.md §1 "preserving ...
// quotes").
func formatText(item model.UniformPost) string {
	if item.IsQuote && item.QuotedPost != nil {
		return fmt.Sprintf("%s\n\nQuoting %s", item.Text, item.QuotedPost.URL)
	}
	return item.Text
}
