package search

import (
	"strings"
	"unicode"
)

// fillers are question words and articles that never describe a photo.
var fillers = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "and": {}, "or": {}, "of": {}, "in": {}, "on": {},
	"at": {}, "to": {}, "for": {}, "with": {}, "from": {}, "by": {}, "is": {}, "are": {},
	"was": {}, "be": {}, "it": {}, "this": {}, "that": {}, "there": {}, "do": {}, "did": {},
	"i": {}, "me": {}, "my": {}, "we": {}, "our": {}, "you": {}, "any": {}, "some": {},
	"what": {}, "which": {}, "where": {}, "when": {}, "who": {}, "show": {}, "find": {},
	"photo": {}, "photos": {}, "picture": {}, "pictures": {}, "image": {}, "images": {},
}

// terms returns the significant words of text, lowercased and folded to a
// crude singular so "boats" matches "boat".
func terms(text string) []string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	out := words[:0]
	for _, w := range words {
		if _, skip := fillers[w]; skip {
			continue
		}
		out = append(out, singular(w))
	}
	return out
}

func singular(w string) string {
	if len(w) > 3 && strings.HasSuffix(w, "s") && !strings.HasSuffix(w, "ss") {
		return w[:len(w)-1]
	}
	return w
}

// mentionsAll reports whether caption contains every significant word of
// question. A question made only of fillers mentions nothing.
func mentionsAll(caption, question string) bool {
	want := terms(question)
	if len(want) == 0 {
		return false
	}
	have := make(map[string]struct{})
	for _, w := range terms(caption) {
		have[w] = struct{}{}
	}
	for _, w := range want {
		if _, ok := have[w]; !ok {
			return false
		}
	}
	return true
}
