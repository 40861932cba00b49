package webpage

import (
	"regexp"
	"strings"
)

const DefaultMaxTextLength = 3000

var (
	scriptRe = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	styleRe  = regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`)
	tagRe    = regexp.MustCompile(`<[^>]*>`)
	spaceRe  = regexp.MustCompile(`\s+`)
)

// entityReplacer decodes the small fixed set of HTML entities that matter
// for readable summaries. Anything else passes through untouched.
var entityReplacer = strings.NewReplacer(
	"&nbsp;", " ",
	"&amp;", "&",
	"&lt;", "<",
	"&gt;", ">",
	"&quot;", `"`,
	"&#39;", "'",
)

// ExtractText strips an HTML document down to plain text: script and style
// blocks go first (with their contents), then remaining tags, then entity
// decoding and whitespace collapsing. Results longer than maxLen are
// truncated with an ellipsis marker.
func ExtractText(html string, maxLen int) string {
	if maxLen <= 0 {
		maxLen = DefaultMaxTextLength
	}

	text := scriptRe.ReplaceAllString(html, "")
	text = styleRe.ReplaceAllString(text, "")
	text = tagRe.ReplaceAllString(text, " ")
	text = entityReplacer.Replace(text)
	text = spaceRe.ReplaceAllString(text, " ")
	text = strings.TrimSpace(text)

	if runes := []rune(text); len(runes) > maxLen {
		text = string(runes[:maxLen]) + "..."
	}
	return text
}
