package notes

import (
	"fmt"
	"strings"
	"time"
)

// JST is the fixed timezone for every note timestamp. Notes carry Japan
// time regardless of where the process runs.
var JST = time.FixedZone("JST", 9*60*60)

// NowJST returns the current time in the note timezone.
func NowJST() time.Time {
	return time.Now().In(JST)
}

// Filename derives the note filename: {Y}_{MM}-{DD}_{hh}-{mm}_{topic}.md.
// The topic is assumed pre-sanitized; two notes in the same minute with the
// same topic overwrite each other, which is accepted.
func Filename(topic string, t time.Time) string {
	return fmt.Sprintf("%d_%02d-%02d_%02d-%02d_%s.md",
		t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute(), topic)
}

// illegalTopicChars are characters that cannot appear in filenames.
var illegalTopicChars = strings.NewReplacer(
	"<", "", ">", "", ":", "", `"`, "", "/", "",
	`\`, "", "|", "", "?", "", "*", "",
)

// SanitizeTopic strips filesystem-illegal characters from an LLM-generated
// topic label and trims surrounding whitespace.
func SanitizeTopic(topic string) string {
	return strings.TrimSpace(illegalTopicChars.Replace(topic))
}

// FormatTimestamp renders a timestamp the way prompts and date lines expect:
// YYYY年MM月DD日hh時mm分.
func FormatTimestamp(t time.Time) string {
	return fmt.Sprintf("%d年%02d月%02d日%02d時%02d分",
		t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute())
}

// AppendBacklinks splices wiki-style backlinks to related notes onto the end
// of the note body. With no related notes the body is returned unchanged.
func AppendBacklinks(content string, related []RelatedNote) string {
	if len(related) == 0 {
		return content
	}
	var b strings.Builder
	b.WriteString(content)
	b.WriteString("\n\n")
	for _, note := range related {
		fmt.Fprintf(&b, "[[%s]]\n", note.Name)
	}
	return b.String()
}
