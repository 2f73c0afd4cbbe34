package research

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kocoro-lab/deepresearch/internal/llm"
)

func TestMemoryStoreIsolation(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	st := &State{ID: "s1", Status: StatusRunning, Messages: []llm.Message{llm.User("hi")}, Notes: []string{"n1"}}
	require.NoError(t, store.Save(ctx, st))

	st.Notes[0] = "mutated"
	st.Messages = append(st.Messages, llm.User("later"))

	loaded, err := store.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, []string{"n1"}, loaded.Notes)
	assert.Len(t, loaded.Messages, 1)
}

func TestMemoryStoreCompareAndSwap(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Save(ctx, &State{ID: "s1", Status: StatusAwaitingInput}))

	require.NoError(t, store.CompareAndSwapStatus(ctx, "s1", StatusAwaitingInput, StatusRunning))
	assert.ErrorIs(t, store.CompareAndSwapStatus(ctx, "s1", StatusAwaitingInput, StatusRunning), ErrStatusConflict)
	assert.ErrorIs(t, store.CompareAndSwapStatus(ctx, "nope", StatusAwaitingInput, StatusRunning), ErrSessionNotFound)

	_, err := store.Load(ctx, "nope")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestFormatHistory(t *testing.T) {
	got := FormatHistory([]llm.Message{llm.User("a"), llm.Assistant("b"), llm.User("c")})
	assert.Equal(t, "Human: a\nAI: b\nHuman: c", got)
}

func TestMultiEmitterForwardsToAll(t *testing.T) {
	var a, b []string
	m := MultiEmitter{
		EmitterFunc(func(_ context.Context, ev Event) { a = append(a, ev.Type) }),
		nil,
		EmitterFunc(func(_ context.Context, ev Event) { b = append(b, ev.Type) }),
	}
	m.Emit(context.Background(), Event{Type: EventStatus})
	assert.Equal(t, []string{EventStatus}, a)
	assert.Equal(t, []string{EventStatus}, b)
}
