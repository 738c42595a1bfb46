package utils

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/lumena-io/glasscloud/internal/shared/types"
)

// strictPolicy strips all HTML. Layout text renders on a waveguide, not
// in a browser, so markup is never legitimate content.
var strictPolicy = bluemonday.StrictPolicy()

// SanitizeText strips markup from a single layout text field and
// truncates it to the layout text limit.
func SanitizeText(s string) string {
	clean := strictPolicy.Sanitize(s)
	// bluemonday HTML-escapes entities; undo the common ones that appear
	// in plain conversational text.
	clean = strings.NewReplacer(
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&#34;", `"`,
		"&#39;", "'",
	).Replace(clean)
	if utf8Len := len([]rune(clean)); utf8Len > MaxLayoutTextLength {
		runes := []rune(clean)
		clean = string(runes[:MaxLayoutTextLength])
	}
	return clean
}

// SanitizeLayout returns a copy of the layout with every text field
// stripped of markup and truncated.
func SanitizeLayout(l types.Layout) types.Layout {
	l.Title = SanitizeText(l.Title)
	l.Text = SanitizeText(l.Text)
	l.TopText = SanitizeText(l.TopText)
	l.BottomText = SanitizeText(l.BottomText)
	l.LeftText = SanitizeText(l.LeftText)
	l.RightText = SanitizeText(l.RightText)
	return l
}
