package app

import "unicode/utf8"

// estimateTokens returns a rough token count for a piece of text. It is not a
// tokenizer; the controller only uses it to keep a running usage counter for
// the status bar, so a conservative bound is fine.
func estimateTokens(text string) int {
	if text == "" {
		return 0
	}
	// BPE tokenizers land around 3-4 chars/token for Latin text. bytes/3 is a
	// decent bound, with runes/2 guarding mostly-ASCII short tokens.
	byBytes := len(text) / 3
	byRunes := utf8.RuneCountInString(text) / 2
	if byBytes < byRunes {
		return byRunes
	}
	return byBytes
}
