package quiz

import (
	"slices"
	"strings"
)

// separators are folded into spaces before splitting.
var separators = strings.NewReplacer(
	"\n", " ",
	"-", " ",
	",", " ",
	".", " ",
	"!", " ",
	"?", " ",
	":", " ",
)

// Tokenize lower-cases s, turns punctuation separators into spaces and
// splits on whitespace. Empty tokens never appear in the result.
func Tokenize(s string) []string {
	return strings.Fields(separators.Replace(strings.ToLower(s)))
}

// Matches reports whether message contains answer.
//
// A single-token answer matches when the token appears anywhere in the
// message. A longer answer must appear as a contiguous run, in order.
// An answer with no tokens never matches.
func Matches(message, answer string) bool {
	return containsTokens(Tokenize(message), Tokenize(answer))
}

func containsTokens(content, answer []string) bool {
	switch {
	case len(answer) == 0:
		return false
	case len(answer) == 1:
		return slices.Contains(content, answer[0])
	case len(answer) > len(content):
		return false
	}
	for i := 0; i+len(answer) <= len(content); i++ {
		if slices.Equal(content[i:i+len(answer)], answer) {
			return true
		}
	}
	return false
}
