// Package agent models the external reasoning process that answers
// questions. The process boundary is an implementation detail: callers see a
// request, a retrieval tool they lend to the agent, and an ordered stream of
// typed events.
package agent

import "context"

// Event is one element of the answer stream: zero or more partials, then
// exactly one terminal event (Final text or Err), then channel close. A
// consumer reconstructing the full answer joins partial texts with a blank
// line.
type Event struct {
	Text  string
	Final bool
	Err   string
}

func (e Event) Terminal() bool {
	return e.Final || e.Err != ""
}

// ContextChunk is a retrieved chunk handed to the agent, either as seed
// context or as a tool result.
type ContextChunk struct {
	Seq   int     `json:"seq"`
	Page  int     `json:"page"`
	Text  string  `json:"text"`
	Score float32 `json:"score"`
}

// Request is what the agent reasons over. Context carries the seed
// retrieval; the agent can issue further searches through the tool.
type Request struct {
	Question     string         `json:"question"`
	SelectedText string         `json:"selected_text,omitempty"`
	Page         int            `json:"page,omitempty"`
	Context      []ContextChunk `json:"context,omitempty"`
}

// RetrievalTool is the retrieval capability lent to the agent for the
// duration of one question, already scoped to the target document.
type RetrievalTool func(ctx context.Context, query string, k int, page int) ([]ContextChunk, error)

// Agent runs one question to completion. The returned channel is unbuffered:
// a slow consumer blocks the producer, which in turn stalls the agent's
// output. Cancelling ctx terminates the agent; no events follow.
type Agent interface {
	Ask(ctx context.Context, req Request, search RetrievalTool) (<-chan Event, error)
}
