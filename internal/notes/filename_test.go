package notes

import (
	"testing"
	"time"
)

func TestFilename(t *testing.T) {
	ts := time.Date(2024, time.December, 30, 10, 30, 0, 0, JST)
	got := Filename("テストトピック", ts)
	want := "2024_12-30_10-30_テストトピック.md"
	if got != want {
		t.Errorf("Filename = %q, want %q", got, want)
	}
}

func TestFilename_ZeroPadding(t *testing.T) {
	ts := time.Date(2025, time.January, 5, 9, 7, 0, 0, JST)
	got := Filename("memo", ts)
	want := "2025_01-05_09-07_memo.md"
	if got != want {
		t.Errorf("Filename = %q, want %q", got, want)
	}
}

func TestSanitizeTopic(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"普通のトピック", "普通のトピック"},
		{`a<b>c:d"e/f\g|h?i*j`, "abcdefghij"},
		{"  spaced  ", "spaced"},
		{`<>:"/\|?*`, ""},
	}
	for _, tc := range cases {
		if got := SanitizeTopic(tc.in); got != tc.want {
			t.Errorf("SanitizeTopic(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestFormatTimestamp(t *testing.T) {
	ts := time.Date(2024, time.December, 30, 10, 5, 0, 0, JST)
	got := FormatTimestamp(ts)
	want := "2024年12月30日10時05分"
	if got != want {
		t.Errorf("FormatTimestamp = %q, want %q", got, want)
	}
}

func TestAppendBacklinks(t *testing.T) {
	content := "# メモ\n\n本文"
	related := []RelatedNote{
		{Name: "2024_12-29_09-00_猫の餌"},
		{Name: "2024_12-28_20-00_散歩コース"},
	}
	got := AppendBacklinks(content, related)
	want := "# メモ\n\n本文\n\n[[2024_12-29_09-00_猫の餌]]\n[[2024_12-28_20-00_散歩コース]]\n"
	if got != want {
		t.Errorf("AppendBacklinks = %q, want %q", got, want)
	}
}

func TestAppendBacklinks_NoRelated(t *testing.T) {
	content := "# メモ\n\n本文"
	if got := AppendBacklinks(content, nil); got != content {
		t.Errorf("no related notes should leave content unchanged, got %q", got)
	}
}

func TestNowJST_Zone(t *testing.T) {
	name, offset := NowJST().Zone()
	if name != "JST" || offset != 9*60*60 {
		t.Errorf("expected JST +9h, got %s %d", name, offset)
	}
}
