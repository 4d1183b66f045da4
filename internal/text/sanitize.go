// Package text holds the text helpers shared by the bot: cleaning model
// output before it is stored and splitting replies for delivery.
package text

import (
	"regexp"
	"strings"
)

var (
	// controlCharsRegex matches ASCII control characters except tab and newline.
	controlCharsRegex = regexp.MustCompile(`[\x00-\x08\x0B\x0C\x0E-\x1F\x7F]`)

	// multipleNewlinesRegex matches runs of three or more newlines.
	multipleNewlinesRegex = regexp.MustCompile(`\n{3,}`)

	// unicodeReplacer drops invisible format characters and maps exotic
	// spaces and separators to their plain forms.
	unicodeReplacer = strings.NewReplacer(
		"\u2060", "", // Word Joiner
		"\uFEFF", "", // Byte Order Mark
		"\u00AD", "", // Soft Hyphen
		"\u200E", "", // Left-to-Right Mark
		"\u200F", "", // Right-to-Left Mark
		"\u2061", "", // Function Application
		"\u2062", "", // Invisible Times
		"\u2063", "", // Invisible Separator
		"\u2064", "", // Invisible Plus

		"\u2028", "\n",   // Line Separator
		"\u2029", "\n\n", // Paragraph Separator
		"\u200B", " ",    // Zero Width Space
		"\u200C", " ",    // Zero Width Non-Joiner
		"\u205F", " ",    // Medium Mathematical Space
		"\u2009", " ",    // Thin Space
		"\u200A", " ",    // Hair Space
		"\u202F", " ",    // Narrow No-Break Space
		"\u3000", " ",    // Ideographic Space
		"\u00A0", " ",    // Non-breaking Space
	)
)

// Sanitize normalizes model output before it enters a transcript:
//
//  1. Line endings are converted to LF.
//  2. Invisible Unicode characters are removed and exotic spaces normalized.
//  3. Control characters other than tab and newline become spaces.
//  4. Runs of three or more newlines collapse to a blank line.
//  5. Trailing whitespace is trimmed.
//
// Leading indentation is kept so code blocks survive. The result may be
// empty, which callers treat as no answer.
func Sanitize(input string) string {
	s := strings.ReplaceAll(input, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = unicodeReplacer.Replace(s)
	s = controlCharsRegex.ReplaceAllString(s, " ")
	s = multipleNewlinesRegex.ReplaceAllString(s, "\n\n")
	return strings.TrimRight(s, " \t\n")
}
