// Package normalize cleans raw target-language text before it is sent to
// any external language service.
package normalize

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	// Romanisation hints are flat groups: "நான் (Naan)". Nested groups are not
	// expected and the innermost one is removed per pass.
	annotation = regexp.MustCompile(`\s*[(（][^()（）]*[)）]\s*`)
	spaceRun   = regexp.MustCompile(`\s+`)
)

// Normalize removes parenthetical annotations together with the whitespace
// around them, collapses remaining whitespace runs to a single space, trims
// the result and returns it in NFC form. An empty result means the input
// carried no target text.
func Normalize(raw string) string {
	s := raw
	for {
		next := annotation.ReplaceAllString(s, " ")
		if next == s {
			break
		}
		s = next
	}
	s = spaceRun.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)
	return norm.NFC.String(s)
}
