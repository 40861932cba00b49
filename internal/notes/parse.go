package notes

import "strings"

const (
	maxReplyContentChars = 300
	maxReplyBulletLines  = 7
)

// ParsedNote holds the reply-facing fields recovered from a formatted note.
type ParsedNote struct {
	Title   string
	Content string // display excerpt; the persisted note is never truncated
	Tags    string
}

// parseState names where the line scan is relative to the content section.
type parseState int

const (
	stateSeeking   parseState = iota // before the date line
	stateInContent                   // accumulating body lines
	stateDone                        // tag or backlink line ended the body
)

// ParseNote recovers title, content excerpt, and tags from an LLM-formatted
// note. The scan walks non-blank trimmed lines:
//
//   - "# " prefix            → title line
//   - 年+月+日+作成 markers   → date line; content starts on the next line
//   - "#x ... #y"            → tag line; ends content
//   - "[[...]]"              → backlink line; ends content
//   - anything else          → content, while inside the content section
func ParseNote(formatted string) ParsedNote {
	var parsed ParsedNote
	var contentLines []string
	state := stateSeeking

	for _, line := range strings.Split(formatted, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		switch {
		case strings.HasPrefix(line, "# "):
			parsed.Title = strings.TrimPrefix(line, "# ")
			if state == stateInContent {
				state = stateSeeking
			}

		case isDateLine(line):
			state = stateInContent

		case isTagLine(line):
			parsed.Tags = line
			state = stateDone

		case strings.HasPrefix(line, "[[") && strings.HasSuffix(line, "]]"):
			if state == stateInContent {
				state = stateDone
			}

		default:
			if state == stateInContent {
				contentLines = append(contentLines, line)
			}
		}
	}

	parsed.Content = assembleContent(contentLines)
	return parsed
}

// isDateLine matches the created-at line of the note template.
func isDateLine(line string) bool {
	return strings.Contains(line, "年") &&
		strings.Contains(line, "月") &&
		strings.Contains(line, "日") &&
		strings.Contains(line, "作成")
}

// isTagLine matches a line holding two or more hashtags.
func isTagLine(line string) bool {
	return strings.HasPrefix(line, "#") && strings.Contains(line, " #")
}

// assembleContent joins buffered body lines for display. Bulleted bodies
// keep their line breaks; prose joins with spaces. Long content is cut for
// the reply only: bullets keep the first 7 lines, prose the first 300
// characters, each with a trailing ellipsis.
func assembleContent(lines []string) string {
	if len(lines) == 0 {
		return ""
	}

	bulleted := strings.HasPrefix(lines[0], "-")
	var content string
	if bulleted {
		content = strings.Join(lines, "\n")
	} else {
		content = strings.Join(lines, " ")
	}

	if len([]rune(content)) <= maxReplyContentChars {
		return content
	}

	if bulleted {
		kept := lines
		if len(kept) > maxReplyBulletLines {
			kept = kept[:maxReplyBulletLines]
		}
		content = strings.Join(kept, "\n")
		if len(lines) > maxReplyBulletLines {
			content += "\n..."
		}
		return content
	}

	runes := []rune(content)
	return string(runes[:maxReplyContentChars]) + "..."
}
