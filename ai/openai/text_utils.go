package openai

import "strings"

// cleanCaption trims whitespace and wrapping quotes that chat models like to
// put around short answers.
func cleanCaption(s string) string {
	s = strings.TrimSpace(s)
	for len(s) >= 2 && isQuote(rune(s[0])) && isQuote(rune(s[len(s)-1])) {
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	return s
}

func isQuote(r rune) bool {
	return r == '"' || r == '\'' || r == '`'
}
