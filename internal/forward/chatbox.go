package forward

import "unicode/utf8"

// MaxChatboxRunes is the longest text the chatbox displays.
const MaxChatboxRunes = 144

// fitChatbox shortens text to at most max runes, preferring to cut at a
// space and never inside a UTF-8 character.
func fitChatbox(text string, max int) string {
	if utf8.RuneCountInString(text) <= max {
		return text
	}

	// Byte offset just past the max-th rune.
	split := 0
	for i := 0; i < max; i++ {
		_, size := utf8.DecodeRuneInString(text[split:])
		split += size
	}

	// Try to find a word boundary by walking back from split.
	for i := split; i > 0; i-- {
		if text[i-1] == ' ' {
			if i-1 > 0 {
				return text[:i-1]
			}
			break
		}
	}
	return text[:split]
}
