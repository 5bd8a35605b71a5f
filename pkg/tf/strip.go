package tf

import (
	"strings"
	"unicode"

	"github.com/charmbracelet/x/ansi"
)

// PlainLine returns the text triggers are matched against: escape
// sequences and control characters removed (tabs kept), trailing
// whitespace trimmed.
func PlainLine(line string) string {
	s := ansi.Strip(line)
	s = strings.Map(func(r rune) rune {
		if r != '\t' && unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
	return strings.TrimRightFunc(s, unicode.IsSpace)
}
