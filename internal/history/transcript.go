package history

import (
	"context"
	"strings"
	"unicode/utf8"
)

// renderLine formats one transcript line. An empty name leaves the body bare.
func renderLine(name, body string) string {
	if name == "" {
		return body
	}
	return name + ": " + body
}

// Render joins every message as "name: body" lines, oldest first.
func Render(ctx context.Context, c *Conversation, resolver Resolver) (string, error) {
	lines := make([]string, 0, len(c.Messages))
	for _, m := range c.Messages {
		name, err := resolver.Resolve(ctx, m.AuthorID)
		if err != nil {
			return "", err
		}
		lines = append(lines, renderLine(name, m.Body))
	}
	return strings.Join(lines, "\n"), nil
}

// Trim drops the oldest messages until the rendered transcript fits in
// maxChars characters and returns how many were dropped. Messages are never
// split and the newest one is always kept, so a single message longer than
// the budget survives on its own.
func Trim(ctx context.Context, c *Conversation, resolver Resolver, maxChars int) (int, error) {
	if len(c.Messages) == 0 {
		return 0, nil
	}
	maxChars = max(maxChars, 0)

	lengths := make([]int, len(c.Messages))
	total := len(c.Messages) - 1 // newline separators
	for i, m := range c.Messages {
		name, err := resolver.Resolve(ctx, m.AuthorID)
		if err != nil {
			return 0, err
		}
		lengths[i] = utf8.RuneCountInString(renderLine(name, m.Body))
		total += lengths[i]
	}

	evicted := 0
	for total > maxChars && len(c.Messages)-evicted > 1 {
		total -= lengths[evicted] + 1
		evicted++
	}

	if evicted > 0 {
		c.Messages = append([]Message{}, c.Messages[evicted:]...)
	}
	return evicted, nil
}
