package text

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Chunk splits s into ordered pieces of at most maxLen characters for
// platforms that cap message length. Pieces break between words, where a
// word is a run of non-space characters plus one trailing space. A word
// longer than maxLen is split by character count. Concatenating the chunks
// gives back s. A non-positive maxLen returns s whole.
func Chunk(s string, maxLen int) []string {
	if s == "" {
		return nil
	}
	if maxLen <= 0 || utf8.RuneCountInString(s) <= maxLen {
		return []string{s}
	}

	var (
		chunks  []string
		current []rune
	)
	flush := func() {
		if len(current) > 0 {
			chunks = append(chunks, string(current))
			current = nil
		}
	}

	for _, word := range splitWords(s) {
		if len(word) > maxLen {
			flush()
			for len(word) > maxLen {
				chunks = append(chunks, string(word[:maxLen]))
				word = word[maxLen:]
			}
			current = word
			continue
		}

		if len(current)+len(word) > maxLen {
			flush()
		}
		current = append(current, word...)
	}
	flush()

	return chunks
}

// splitWords cuts s into words that each keep at most one trailing space.
// Any further spaces become words of their own.
func splitWords(s string) [][]rune {
	var (
		words [][]rune
		word  []rune
	)
	for _, r := range s {
		if unicode.IsSpace(r) {
			word = append(word, r)
			words = append(words, word)
			word = nil
			continue
		}
		word = append(word, r)
	}
	if len(word) > 0 {
		words = append(words, word)
	}
	return words
}

// QuoteLines prefixes every line of s with "> ".
func QuoteLines(s string) string {
	return "> " + strings.ReplaceAll(s, "\n", "\n> ")
}
