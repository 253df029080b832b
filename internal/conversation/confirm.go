package conversation

import (
	"strings"
	"unicode"
)

// Answer is a caller's reply to a yes/no question.
type Answer int

const (
	Unclear Answer = iota
	Yes
	No
)

var (
	yesWords = map[string]bool{
		"yes":     true, "yeah": true, "yep": true, "sure": true, "proceed": true,
		"confirm": true, "correct": true, "ok": true, "okay": true, "1": true,
	}
	noWords = map[string]bool{
		"no":     true, "nope": true, "don't": true, "dont": true, "not": true,
		"cancel": true, "stop": true, "2": true,
	}
)

// Confirmation classifies an utterance or keypress as yes, no or unclear.
// A negative word anywhere wins over a positive one.
func Confirmation(utterance string) Answer {
	words := strings.FieldsFunc(strings.ToLower(utterance), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})

	answer := Unclear
	for _, w := range words {
		switch {
		case noWords[w]:
			return No
		case yesWords[w]:
			answer = Yes
		}
	}
	return answer
}
