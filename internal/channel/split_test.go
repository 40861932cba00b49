package channel

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSplitMessage_ShortPassthrough(t *testing.T) {
	got := splitMessage("短いメッセージ", 2000)
	if len(got) != 1 || got[0] != "短いメッセージ" {
		t.Errorf("chunks = %q", got)
	}
}

func TestSplitMessage_PrefersNewline(t *testing.T) {
	msg := strings.Repeat("a", 10) + "\n" + strings.Repeat("b", 10)
	got := splitMessage(msg, 15)
	if len(got) != 2 {
		t.Fatalf("expected 2 chunks, got %d: %q", len(got), got)
	}
	if got[0] != strings.Repeat("a", 10) {
		t.Errorf("first chunk = %q", got[0])
	}
	if got[1] != strings.Repeat("b", 10) {
		t.Errorf("second chunk = %q", got[1])
	}
}

func TestSplitMessage_KeepsRunesIntact(t *testing.T) {
	// Pure Japanese text with no newlines; 3 bytes per rune, so a naive
	// byte cut at most limits lands mid-rune.
	msg := strings.Repeat("要約", 500) // 3000 bytes
	got := splitMessage(msg, 2000)

	if len(got) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(got))
	}
	for i, chunk := range got {
		if !utf8.ValidString(chunk) {
			t.Errorf("chunk %d is not valid UTF-8: %q...", i, chunk[:12])
		}
		if len(chunk) > 2000 {
			t.Errorf("chunk %d exceeds limit: %d bytes", i, len(chunk))
		}
	}
	if joined := strings.Join(got, ""); joined != msg {
		t.Errorf("chunks do not reassemble the original message")
	}
}

func TestSplitMessage_MixedContentStaysValid(t *testing.T) {
	msg := strings.Repeat("x", 1999) + "日本語のまとめ"
	for _, chunk := range splitMessage(msg, 2000) {
		if !utf8.ValidString(chunk) {
			t.Errorf("invalid UTF-8 chunk: %q", chunk)
		}
	}
}
