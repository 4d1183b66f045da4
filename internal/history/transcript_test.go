package history

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapResolver map[int64]string

func (m mapResolver) Resolve(_ context.Context, id int64) (string, error) {
	name, ok := m[id]
	if !ok {
		return "", &NotFoundError{UserID: id, Err: errors.New("unknown user")}
	}
	return name, nil
}

var names = mapResolver{1: "alice", 2: "bob", 99: "bot"}

func TestRender(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		messages []Message
		resolver Resolver
		expected string
	}{
		{name: "empty", messages: nil, resolver: names, expected: ""},
		{
			name:     "named lines",
			messages: []Message{{AuthorID: 1, Body: "hi"}, {AuthorID: 99, Body: "hello"}},
			resolver: names,
			expected: "alice: hi\nbot: hello",
		},
		{
			name:     "null resolver leaves bodies bare",
			messages: []Message{{AuthorID: 1, Body: "hi"}, {AuthorID: 2, Body: "yo"}},
			resolver: NullResolver{},
			expected: "hi\nyo",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := Render(t.Context(), &Conversation{Messages: tt.messages}, tt.resolver)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestRenderUnknownUser(t *testing.T) {
	t.Parallel()

	_, err := Render(t.Context(), &Conversation{Messages: []Message{{AuthorID: 7, Body: "x"}}}, names)

	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, int64(7), nf.UserID)
}

func TestTrimScenario(t *testing.T) {
	t.Parallel()

	conv := NewConversation(1)

	// "alice: " + 43 characters renders to 50.
	conv.Append(1, strings.Repeat("a", 43))
	evicted, err := Trim(t.Context(), conv, names, 100)
	require.NoError(t, err)
	assert.Zero(t, evicted)
	assert.Equal(t, 1, conv.Len())

	// "bob: " + 55 characters renders to 60, total 111.
	second := strings.Repeat("b", 55)
	conv.Append(2, second)
	evicted, err = Trim(t.Context(), conv, names, 100)
	require.NoError(t, err)
	assert.Equal(t, 1, evicted)
	assert.Equal(t, []Message{{AuthorID: 2, Body: second}}, conv.Messages)
}

func TestTrim(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		bodies      []string
		budget      int
		wantEvicted int
		wantBodies  []string
	}{
		{name: "empty history", bodies: nil, budget: 0, wantEvicted: 0, wantBodies: nil},
		{name: "fits exactly", bodies: []string{"ab", "cd"}, budget: len("alice: ab\nalice: cd"), wantBodies: []string{"ab", "cd"}},
		{name: "newline counts", bodies: []string{"ab", "cd"}, budget: len("alice: ab\nalice: cd") - 1, wantEvicted: 1, wantBodies: []string{"cd"}},
		{name: "oversized newest survives", bodies: []string{"a", strings.Repeat("z", 50)}, budget: 10, wantEvicted: 1, wantBodies: []string{strings.Repeat("z", 50)}},
		{name: "negative budget", bodies: []string{"a", "b", "c"}, budget: -5, wantEvicted: 2, wantBodies: []string{"c"}},
		{name: "runes not bytes", bodies: []string{"ééé", "ççç"}, budget: 21, wantBodies: []string{"ééé", "ççç"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			conv := NewConversation(1)
			for _, b := range tt.bodies {
				conv.Append(1, b)
			}

			evicted, err := Trim(t.Context(), conv, names, tt.budget)
			require.NoError(t, err)
			assert.Equal(t, tt.wantEvicted, evicted)

			var bodies []string
			for _, m := range conv.Messages {
				bodies = append(bodies, m.Body)
			}
			assert.Equal(t, tt.wantBodies, bodies)
		})
	}
}

func TestTrimBoundAndOrder(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewPCG(1, 2))
	authors := []int64{1, 2, 99}

	for range 500 {
		conv := NewConversation(1)
		n := rng.IntN(12)
		for i := range n {
			conv.Append(authors[rng.IntN(len(authors))], strings.Repeat("x", rng.IntN(80))+string(rune('A'+i)))
		}
		before := conv.Clone()
		budget := rng.IntN(400)

		evicted, err := Trim(t.Context(), conv, names, budget)
		require.NoError(t, err)

		// Only a prefix of the oldest messages may be removed.
		assert.Equal(t, before.Messages[evicted:], conv.Messages)

		rendered, err := Render(t.Context(), conv, names)
		require.NoError(t, err)
		if length := utf8.RuneCountInString(rendered); length > budget {
			assert.Equal(t, 1, conv.Len(), "only a single oversized message may exceed the budget")
		}
	}
}

func TestConversationSetBody(t *testing.T) {
	t.Parallel()

	conv := NewConversation(1)
	idx := conv.Append(99, "")
	require.NoError(t, conv.SetBody(idx, "answer"))
	assert.Equal(t, "answer", conv.Messages[idx].Body)

	assert.Error(t, conv.SetBody(5, "nope"))
	assert.Error(t, conv.SetBody(-1, "nope"))

	clone := conv.Clone()
	clone.Messages[0].Body = "changed"
	assert.Equal(t, "answer", conv.Messages[0].Body, "clone must not share messages")
}
