package notes

import (
	"fmt"
	"strings"
)

// Reply templates mirror the bot's user-facing Japanese messages.

// FormatTextReply builds the reply for a processed plain-text note.
func FormatTextReply(parsed ParsedNote, filename string, related []RelatedNote) string {
	parts := []string{
		"**Bot処理完了！**",
		"",
		fmt.Sprintf("* **タイトル**: %s", parsed.Title),
		fmt.Sprintf("* **コンテンツ**: %s", parsed.Content),
		fmt.Sprintf("* **タグ**: %s", parsed.Tags),
	}

	if len(related) > 0 {
		names := make([]string, len(related))
		for i, note := range related {
			names[i] = note.Name
		}
		parts = append(parts, fmt.Sprintf("* **関連メモ**: %s", strings.Join(names, ", ")))
	}

	parts = append(parts,
		fmt.Sprintf("* **保存完了**: テキストmemoを `%s` として保存しました！（Obsidian連携フォルダ）", filename))

	return strings.Join(parts, "\n")
}

// FormatURLReply builds the abbreviated reply for a saved URL summary.
func FormatURLReply(topic, filename string) string {
	return fmt.Sprintf("**URL要約完了！**\n* **タイトル**: %s\n* **保存完了**: `%s`", topic, filename)
}

// FormatURLError builds the reply sent when URL processing fails.
func FormatURLError(err error) string {
	return fmt.Sprintf("URL処理中にエラーが発生しました: %s", err)
}
