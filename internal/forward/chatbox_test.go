package forward

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestFitChatboxShortTextUnchanged(t *testing.T) {
	if got := fitChatbox("❤ 72 bpm", MaxChatboxRunes); got != "❤ 72 bpm" {
		t.Errorf("fitChatbox() = %q", got)
	}
}

func TestFitChatboxCutsAtWordBoundary(t *testing.T) {
	text := strings.Repeat("word ", 40) // 200 runes
	got := fitChatbox(text, MaxChatboxRunes)
	if n := utf8.RuneCountInString(got); n > MaxChatboxRunes {
		t.Errorf("got %d runes, want <= %d", n, MaxChatboxRunes)
	}
	if strings.HasSuffix(got, " ") || !strings.HasSuffix(got, "word") {
		t.Errorf("fitChatbox() = %q, want it to end on a whole word", got)
	}
}

func TestFitChatboxNeverSplitsRunes(t *testing.T) {
	text := strings.Repeat("❤", 200)
	got := fitChatbox(text, MaxChatboxRunes)
	if !utf8.ValidString(got) {
		t.Fatal("fitChatbox() produced invalid UTF-8")
	}
	if n := utf8.RuneCountInString(got); n != MaxChatboxRunes {
		t.Errorf("got %d runes, want %d", n, MaxChatboxRunes)
	}
}
