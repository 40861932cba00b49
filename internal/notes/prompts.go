package notes

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// Prompts holds the system prompts for every LLM call in the pipeline.
// Empty fields in an override file fall back to the built-in defaults.
type Prompts struct {
	FormatMessage        string `yaml:"formatMessage"`
	TopicName            string `yaml:"topicName"`
	URLTopicName         string `yaml:"urlTopicName"`
	ExtractKeywords      string `yaml:"extractKeywords"`
	SummarizeURL         string `yaml:"summarizeUrl"`
	SummarizeURLFallback string `yaml:"summarizeUrlFallback"`
}

func DefaultPrompts() *Prompts {
	return &Prompts{
		FormatMessage: `あなたはメモ整形アシスタントです。投稿内容をObsidian用のMarkdownメモに整形してください。

出力形式（この構造を厳守すること）:
# タイトル

YYYY年MM月DD日hh時mm分 作成

- 箇条書きの本文
- 箇条書きの本文

#タグ1 #タグ2 #タグ3

ルール:
- タイトルは与えられたトピック名を使うこと
- 作成日時の行には与えられた日本時間をそのまま使うこと
- 本文は投稿内容の情報をすべて保持すること。要約して情報を削ってはいけない。誤字脱字や文体の調整のみ行うこと
- タグは内容に合ったものを2〜5個付けること`,

		TopicName: `投稿内容にふさわしい短いトピック名を生成してください。
- 25文字以内
- ファイル名に使えない文字（ < > : " / \ | ? * ）は使わないこと
- トピック名のみを出力すること`,

		URLTopicName: `以下のURL要約にふさわしい短いトピック名を生成してください。
- 25文字以内
- ファイル名に使えない文字（ < > : " / \ | ? * ）は使わないこと
- トピック名のみを出力すること`,

		ExtractKeywords: `以下のメモ本文から重要なキーワードを5〜8個抽出してください。
- カンマ区切りで出力すること
- キーワードのみを出力すること`,

		SummarizeURL: `あなたはWebページ要約アシスタントです。与えられたページ内容をObsidian用のMarkdownメモに要約してください。

出力形式:
# タイトル

YYYY年MM月DD日hh時mm分 作成

- 要点の箇条書き
- 要点の箇条書き

URL: 元のURL

#タグ1 #タグ2

ルール:
- 作成日時の行には与えられた日本時間をそのまま使うこと
- ページの主要な内容を箇条書きで要約すること
- 元のURLを必ず記載すること`,

		SummarizeURLFallback: `ページ内容を取得できなかったURLについて、URL文字列だけから内容を推測した簡潔なメモを生成してください。

出力形式:
# タイトル

YYYY年MM月DD日hh時mm分 作成

- URLから推測される内容（推測であることを明記すること）

URL: 元のURL

#タグ1

ルール:
- 作成日時の行には与えられた日本時間をそのまま使うこと
- 内容はあくまで推測である旨を本文に含めること`,
	}
}

// LoadPrompts reads an optional YAML override file on top of the defaults.
// An empty path returns the defaults unchanged.
func LoadPrompts(path string, logger *slog.Logger) (*Prompts, error) {
	prompts := DefaultPrompts()
	if path == "" {
		return prompts, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prompts file %s: %w", path, err)
	}

	var override Prompts
	if err := yaml.Unmarshal(data, &override); err != nil {
		return nil, fmt.Errorf("parse prompts file %s: %w", path, err)
	}

	applied := 0
	for _, field := range []struct {
		name string
		dst  *string
		src  string
	}{
		{"formatMessage", &prompts.FormatMessage, override.FormatMessage},
		{"topicName", &prompts.TopicName, override.TopicName},
		{"urlTopicName", &prompts.URLTopicName, override.URLTopicName},
		{"extractKeywords", &prompts.ExtractKeywords, override.ExtractKeywords},
		{"summarizeUrl", &prompts.SummarizeURL, override.SummarizeURL},
		{"summarizeUrlFallback", &prompts.SummarizeURLFallback, override.SummarizeURLFallback},
	} {
		if field.src != "" {
			*field.dst = field.src
			applied++
		}
	}

	if logger != nil && applied > 0 {
		logger.Info("loaded prompt overrides", "path", path, "overridden", applied)
	}
	return prompts, nil
}
