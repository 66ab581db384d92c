package normalizer

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var folder = cases.Fold()

// NormalizeDescription applies NFKC, case folding and whitespace collapsing so that
// cosmetically different spellings of a merchant compare equal.
func NormalizeDescription(s string) string {
	s = norm.NFKC.String(s)
	s = folder.String(s)
	return strings.Join(strings.Fields(s), " ")
}
