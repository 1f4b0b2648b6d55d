package quiz

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenize(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"Hello, World!", []string{"hello", "world"}},
		{"a-b:c\nd", []string{"a", "b", "c", "d"}},
		{"  what?  is.. it ", []string{"what", "is", "it"}},
		{"", nil},
		{"?!.,", nil},
	}
	for _, tc := range cases {
		got := Tokenize(tc.in)
		if len(tc.want) == 0 {
			assert.Empty(t, got, tc.in)
			continue
		}
		assert.Equal(t, tc.want, got, tc.in)
	}
}

func TestMatches(t *testing.T) {
	cases := []struct {
		name    string
		message string
		answer  string
		want    bool
	}{
		{"single token anywhere", "I think it is Paris!", "paris", true},
		{"single token absent", "London?", "paris", false},
		{"phrase contiguous", "the answer: New York City.", "new york", true},
		{"phrase out of order", "york new", "new york", false},
		{"phrase split", "new and york", "new york", false},
		{"answer longer than message", "new", "new york", false},
		{"whole message", "New-York", "new york", true},
		{"substring is not a token", "parisian", "paris", false},
		{"empty answer", "anything", "", false},
		{"case folding", "MOUNT EVEREST", "Mount Everest", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Matches(tc.message, tc.answer))
		})
	}
}
