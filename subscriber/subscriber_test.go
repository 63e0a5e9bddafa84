package subscriber

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hedeqiang/tether/event"
)

func TestChannel_DropsWhenFull(t *testing.T) {
	ch := NewChannel(1)
	ch.Send(event.Event{Type: "a"})
	ch.Send(event.Event{Type: "b"})

	got := <-ch.Events()
	assert.Equal(t, "a", got.Type)

	ch.Close()
	ch.Close()
	ch.Send(event.Event{Type: "c"})
	_, ok := <-ch.Events()
	assert.False(t, ok)
}

func TestCallback_StopsAfterClose(t *testing.T) {
	var got []string
	cb := NewCallback(func(ev event.Event) { got = append(got, ev.Type) })
	cb.Send(event.Event{Type: "a"})
	cb.Close()
	cb.Send(event.Event{Type: "b"})
	assert.Equal(t, []string{"a"}, got)
}

func TestBroadcast(t *testing.T) {
	b := NewBroadcast()

	var first, second []string
	b.Add(NewCallback(func(ev event.Event) { first = append(first, ev.Type) }))
	remove := b.Add(NewCallback(func(ev event.Event) { second = append(second, ev.Type) }))
	ch := NewChannel(4)
	b.Add(ch)
	require.Equal(t, 3, b.Len())

	b.Send(event.Event{Type: "x"})
	remove()
	b.Send(event.Event{Type: "y"})

	assert.Equal(t, []string{"x", "y"}, first)
	assert.Equal(t, []string{"x"}, second)
	assert.Equal(t, 2, b.Len())

	b.Close()
	assert.Equal(t, 0, b.Len())
	assert.Len(t, ch.Events(), 2)
}

func TestFilter(t *testing.T) {
	var got []string
	sub := NewFilter(
		NewCallback(func(ev event.Event) { got = append(got, ev.ContextID+"/"+ev.Type) }),
		All(ContextIn("a", "b"), Any(TypeIn("StateMutation"), TypeIn("ExecutionEvent"))),
	)

	sub.Send(event.Event{ContextID: "a", Type: "StateMutation"})
	sub.Send(event.Event{ContextID: "c", Type: "StateMutation"})
	sub.Send(event.Event{ContextID: "b", Type: "Other"})
	sub.Send(event.Event{ContextID: "b", Type: "ExecutionEvent"})
	sub.Close()
	sub.Send(event.Event{ContextID: "a", Type: "StateMutation"})

	assert.Equal(t, []string{"a/StateMutation", "b/ExecutionEvent"}, got)
	assert.True(t, All()(event.Event{}))
	assert.False(t, Any()(event.Event{}))
}
