// Package history keeps the per-user conversation transcripts the bot sends
// to the completion provider. A Conversation is loaded from and saved to a
// database.Backend by Store, mutated only while the owner's lock is held,
// and trimmed to a character budget by dropping its oldest messages.
package history

import (
	"fmt"
	"slices"
)

// Message is a single authored line of a conversation.
type Message struct {
	AuthorID int64  `json:"author_id"`
	Body     string `json:"body"`
}

// Conversation is the ordered transcript between the bot and one user,
// oldest message first.
type Conversation struct {
	OwnerID  int64     `json:"interacting_user_id"`
	Messages []Message `json:"messages"`
}

// NewConversation returns an empty conversation for owner.
func NewConversation(owner int64) *Conversation {
	return &Conversation{OwnerID: owner, Messages: []Message{}}
}

// Append adds a message at the end and returns its index.
func (c *Conversation) Append(author int64, body string) int {
	c.Messages = append(c.Messages, Message{AuthorID: author, Body: body})
	return len(c.Messages) - 1
}

// SetBody fills the body of the message at index i. It is used to complete
// a placeholder once its content is known.
func (c *Conversation) SetBody(i int, body string) error {
	if i < 0 || i >= len(c.Messages) {
		return fmt.Errorf("message index %d out of range [0,%d)", i, len(c.Messages))
	}
	c.Messages[i].Body = body
	return nil
}

// Clear drops every message, keeping the owner.
func (c *Conversation) Clear() {
	c.Messages = []Message{}
}

// Len is the number of messages in c.
func (c *Conversation) Len() int {
	return len(c.Messages)
}

// Clone returns a deep copy of c.
func (c *Conversation) Clone() *Conversation {
	return &Conversation{OwnerID: c.OwnerID, Messages: slices.Clone(c.Messages)}
}
