// Package text provides reply sanitizing and the token accounting used by
// the context window policy.
package text

import (
	"errors"
	"regexp"
	"strings"
	"unicode"
)

var (
	controlCharsRegex     = regexp.MustCompile(`[\x00-\x08\x0B\x0C\x0E-\x1F\x7F]`)
	multipleNewlinesRegex = regexp.MustCompile(`\n{3,}`)
	unicodeReplacer       = strings.NewReplacer(
		"\u2060", "", // word joiner
		"\uFEFF", "", // BOM
		"\u00AD", "", // soft hyphen
		"\u200E", "", // LTR mark
		"\u200F", "", // RTL mark
		"\u200B", " ", // zero width space
		"\u200C", " ", // zero width non-joiner

		"\u2028", "\n",
		"\u2029", "\n\n",

		"\u205F", " ",
		"\u2009", " ",
		"\u200A", " ",
		"\u202F", " ",
		"\u3000", " ",
		"\u00A0", " ",
	)
)

// ErrEmpty is returned when sanitizing leaves nothing to show.
var ErrEmpty = errors.New("text is empty after sanitizing")

// Sanitize normalizes a model reply for display. Line endings and exotic
// spaces are normalized, control characters removed, runs of blank lines
// collapsed. Leading indentation is kept so markdown lists and code blocks
// survive.
func Sanitize(input string) (string, error) {
	s := strings.ReplaceAll(input, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = unicodeReplacer.Replace(s)
	s = controlCharsRegex.ReplaceAllString(s, " ")

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRightFunc(line, unicode.IsSpace)
	}

	s = strings.Join(lines, "\n")
	s = multipleNewlinesRegex.ReplaceAllString(s, "\n\n")
	s = strings.TrimSpace(s)

	if s == "" {
		return "", ErrEmpty
	}

	return s, nil
}

// Preview shortens s to at most maxLen bytes for log lines.
func Preview(s string, maxLen int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return "..."
	}

	cut := maxLen - 3
	for cut > 0 && !utf8Start(s[cut]) {
		cut--
	}

	return s[:cut] + "..."
}

func utf8Start(b byte) bool {
	return b&0xC0 != 0x80
}
