package notes

import (
	"regexp"
	"strings"
)

var urlOnlyRe = regexp.MustCompile(`^https?://\S+$`)

// IsURLOnly reports whether the message is a single bare URL: after trimming
// surrounding whitespace, the whole string must be http(s):// followed by
// non-whitespace. Any surrounding text disqualifies it.
func IsURLOnly(text string) bool {
	return urlOnlyRe.MatchString(strings.TrimSpace(text))
}
