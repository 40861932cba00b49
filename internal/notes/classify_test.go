package notes

import "testing"

func TestIsURLOnly(t *testing.T) {
	cases := []struct {
		text string
		want bool
	}{
		{"https://example.com", true},
		{"http://example.com/path?q=1", true},
		{"  https://example.com  ", true},
		{"https://example.com\n", true},
		{"check out https://example.com", false},
		{"https://example.com を読んだ", false},
		{"ftp://example.com", false},
		{"example.com", false},
		{"https://", false},
		{"", false},
		{"普通のメモ", false},
	}
	for _, tc := range cases {
		if got := IsURLOnly(tc.text); got != tc.want {
			t.Errorf("IsURLOnly(%q) = %v, want %v", tc.text, got, tc.want)
		}
	}
}
