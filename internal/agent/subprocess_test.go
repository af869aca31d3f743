package agent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, events <-chan Event) []Event {
	t.Helper()
	var out []Event
	timeout := time.After(10 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatal("timed out waiting for agent events")
		}
	}
}

func shAgent(script string) *SubprocessAgent {
	return NewSubprocessAgent("sh", []string{"-c", script}, 10*time.Second)
}

func TestSubprocessStreamsPartialsThenFinal(t *testing.T) {
	a := shAgent(`read req
printf '{"type":"text","text":"thinking about it"}\n'
printf '{"type":"result","text":"the answer"}\n'`)
	events, err := a.Ask(context.Background(), Request{Question: "q"}, nil)
	require.NoError(t, err)

	got := collect(t, events)
	require.Len(t, got, 2)
	require.Equal(t, Event{Text: "thinking about it"}, got[0])
	require.Equal(t, Event{Text: "the answer", Final: true}, got[1])
}

func TestSubprocessServesToolCall(t *testing.T) {
	a := shAgent(`read req
printf '{"type":"tool_use","id":"t1","name":"search","input":{"query":"caching"}}\n'
read result
printf '{"type":"result","text":"done"}\n'`)

	var gotQuery string
	var gotK int
	search := func(ctx context.Context, query string, k int, page int) ([]ContextChunk, error) {
		gotQuery = query
		gotK = k
		return []ContextChunk{{Seq: 0, Page: 1, Text: "caching is hard"}}, nil
	}
	events, err := a.Ask(context.Background(), Request{Question: "q"}, search)
	require.NoError(t, err)

	got := collect(t, events)
	require.Len(t, got, 1)
	require.True(t, got[0].Final)
	require.Equal(t, "caching", gotQuery)
	require.Equal(t, defaultToolK, gotK)
}

func TestSubprocessAbnormalExit(t *testing.T) {
	a := shAgent(`read req
exit 3`)
	events, err := a.Ask(context.Background(), Request{Question: "q"}, nil)
	require.NoError(t, err)

	got := collect(t, events)
	require.Len(t, got, 1)
	require.NotEmpty(t, got[0].Err)
	require.True(t, got[0].Terminal())
}

func TestSubprocessErrorEventIsTerminal(t *testing.T) {
	a := shAgent(`read req
printf '{"type":"error","error":"model overloaded"}\n'
printf '{"type":"text","text":"must not appear"}\n'`)
	events, err := a.Ask(context.Background(), Request{Question: "q"}, nil)
	require.NoError(t, err)

	got := collect(t, events)
	require.Len(t, got, 1)
	require.Equal(t, "model overloaded", got[0].Err)
}

func TestSubprocessTimeout(t *testing.T) {
	a := NewSubprocessAgent("sh", []string{"-c", `read req
sleep 60`}, 200*time.Millisecond)
	events, err := a.Ask(context.Background(), Request{Question: "q"}, nil)
	require.NoError(t, err)

	got := collect(t, events)
	require.Len(t, got, 1)
	require.Equal(t, "agent timed out", got[0].Err)
}

func TestSubprocessCancellation(t *testing.T) {
	// Agent that never finishes. Cancelling the context must tear it down
	// and close the channel without a terminal event.
	a := shAgent(`read req
printf '{"type":"text","text":"started"}\n'
sleep 60`)
	ctx, cancel := context.WithCancel(context.Background())
	events, err := a.Ask(ctx, Request{Question: "q"}, nil)
	require.NoError(t, err)

	first := <-events
	require.Equal(t, "started", first.Text)
	cancel()

	select {
	case _, ok := <-events:
		require.False(t, ok, "no events may follow cancellation")
	case <-time.After(10 * time.Second):
		t.Fatal("channel not closed after cancellation")
	}
}
