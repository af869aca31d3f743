package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/paperbase/paperbase/internal/agent"
	"github.com/paperbase/paperbase/internal/pkg/errcode"
	"github.com/paperbase/paperbase/internal/pkg/response"
	"github.com/paperbase/paperbase/internal/service"
)

// Asker is what the handler needs from the answer service.
type Asker interface {
	Ask(ctx context.Context, req service.AskRequest) (<-chan agent.Event, error)
}

type AskHandler struct {
	answers Asker
}

func NewAskHandler(answers Asker) *AskHandler {
	return &AskHandler{answers: answers}
}

type askRequest struct {
	Question     string `json:"question"`
	SelectedText string `json:"selected_text"`
	Page         int    `json:"page"`
}

// sseEvent is the JSON payload of one SSE data line. Partials carry only
// text, the terminal success additionally sets final, failures carry error.
type sseEvent struct {
	Text  string `json:"text,omitempty"`
	Final bool   `json:"final,omitempty"`
	Error string `json:"error,omitempty"`
}

// Ask streams the answer as server-sent events: zero or more partials, one
// terminal event, then the [DONE] sentinel. Errors before the first event
// still return a plain JSON error response.
func (h *AskHandler) Ask(c *gin.Context) {
	var req askRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	events, err := h.answers.Ask(c.Request.Context(), service.AskRequest{
		Slug:         c.Param("slug"),
		Question:     req.Question,
		SelectedText: req.SelectedText,
		Page:         req.Page,
	})
	if err != nil {
		handleError(c, err)
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	flusher, _ := c.Writer.(http.Flusher)

	for ev := range events {
		writeSSE(c, toSSE(ev), flusher)
	}
	// The channel closing without a terminal event means the client went
	// away; writing the sentinel to a dead connection is harmless.
	fmt.Fprint(c.Writer, "data: [DONE]\n\n")
	if flusher != nil {
		flusher.Flush()
	}
}

func toSSE(ev agent.Event) sseEvent {
	if ev.Err != "" {
		return sseEvent{Error: ev.Err}
	}
	return sseEvent{Text: ev.Text, Final: ev.Final}
}

func writeSSE(c *gin.Context, ev sseEvent, flusher http.Flusher) {
	data, err := json.Marshal(ev)
	if err != nil {
		logutil.GetLogger(c.Request.Context()).Error("marshal sse event failed", zap.Error(err))
		return
	}
	fmt.Fprintf(c.Writer, "data: %s\n\n", data)
	if flusher != nil {
		flusher.Flush()
	}
}
