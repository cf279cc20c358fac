package intent

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

var lower = cases.Lower(language.Und)

// Normalize folds input to the canonical form patterns are written against:
// NFKC, lowercase, single spaces, trailing sentence punctuation removed.
func Normalize(input string) string {
	s := norm.NFKC.String(input)
	s = lower.String(s)
	s = strings.Join(strings.Fields(s), " ")
	s = strings.TrimRight(s, ".!?")
	return strings.TrimSpace(s)
}
