package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	appErr "github.com/paperbase/paperbase/internal/pkg/errors"
)

const defaultToolK = 5

// SubprocessAgent runs the reasoning agent as a child process per question.
// The request goes to the agent's stdin as one JSON line; the agent answers
// with stream-json events on stdout. Tool calls are serviced inline: a
// tool_use event blocks the stream until the matching tool_result has been
// written back to stdin.
type SubprocessAgent struct {
	command string
	args    []string
	timeout time.Duration
}

func NewSubprocessAgent(command string, args []string, timeout time.Duration) *SubprocessAgent {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &SubprocessAgent{command: command, args: args, timeout: timeout}
}

func (a *SubprocessAgent) Ask(ctx context.Context, req Request, search RetrievalTool) (<-chan Event, error) {
	runCtx, cancel := context.WithTimeout(ctx, a.timeout)

	cmd := exec.CommandContext(runCtx, a.command, a.args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: open stdin: %v", appErr.ErrAgent, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: open stdout: %v", appErr.ErrAgent, err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("%w: start %s: %v", appErr.ErrAgent, a.command, err)
	}
	if err := writeJSONLine(stdin, req); err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		cancel()
		return nil, fmt.Errorf("%w: write request: %v", appErr.ErrAgent, err)
	}

	// Unbuffered so a stalled consumer exerts backpressure on the pipe.
	events := make(chan Event)
	go a.pump(ctx, runCtx, cancel, cmd, stdin, stdout, search, events)
	return events, nil
}

// pump drains the agent's stdout, services tool calls, and forwards typed
// events until a terminal event or stream end. parent is the caller's
// context; ctx additionally carries the per-question timeout. A caller
// cancel closes the channel silently, a timeout is reported as a terminal
// error event.
func (a *SubprocessAgent) pump(parent, ctx context.Context, cancel context.CancelFunc,
	cmd *exec.Cmd, stdin io.WriteCloser, stdout io.ReadCloser,
	search RetrievalTool, events chan<- Event) {
	logger := logutil.GetLogger(ctx).With(zap.String("agent", a.command))
	defer close(events)
	defer cancel()

	// Orphaned grandchildren can keep the stdout pipe open after the agent
	// itself is killed. Closing our ends on cancellation unblocks the
	// decoder regardless.
	go func() {
		<-ctx.Done()
		_ = stdout.Close()
		_ = stdin.Close()
	}()

	emit := func(ev Event) bool {
		select {
		case events <- ev:
			return true
		case <-parent.Done():
			return false
		}
	}

	terminal := false
	dec := NewDecoder(stdout)
loop:
	for {
		ev, err := dec.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			if parent.Err() != nil {
				break
			}
			if ctx.Err() != nil {
				logger.Warn("agent timed out", zap.Duration("timeout", a.timeout))
				terminal = emit(Event{Err: "agent timed out"})
			} else {
				logger.Error("read agent stream failed", zap.Error(err))
				terminal = emit(Event{Err: "agent stream broken"})
			}
			break
		}
		switch ev.Type {
		case "text":
			if !emit(Event{Text: ev.Text}) {
				break loop
			}
		case "tool_use":
			if !a.serveTool(ctx, logger, stdin, search, ev, emit) {
				terminal = true
				break loop
			}
		case "result":
			terminal = emit(Event{Text: ev.Text, Final: true})
			break loop
		case "error":
			logger.Warn("agent reported error", zap.String("message", ev.Error))
			terminal = emit(Event{Err: ev.Error})
			break loop
		default:
			logger.Debug("skip unknown agent event", zap.String("type", ev.Type))
		}
	}

	_ = stdin.Close()
	if terminal || parent.Err() != nil {
		cancel()
		_ = cmd.Wait()
		return
	}
	if ctx.Err() != nil {
		cancel()
		_ = cmd.Wait()
		logger.Warn("agent timed out", zap.Duration("timeout", a.timeout))
		emit(Event{Err: "agent timed out"})
		return
	}
	waitErr := cmd.Wait()
	// Stream ended without a result event.
	if waitErr != nil {
		logger.Error("agent exited abnormally", zap.Error(waitErr))
		emit(Event{Err: fmt.Sprintf("agent exited: %v", waitErr)})
		return
	}
	emit(Event{Err: "agent produced no result"})
}

// serveTool answers one tool_use event. A retrieval failure is terminal for
// the whole question: the process is torn down and the error event emitted.
func (a *SubprocessAgent) serveTool(ctx context.Context, logger *zap.Logger,
	stdin io.Writer, search RetrievalTool, ev *WireEvent, emit func(Event) bool) bool {
	if ev.Name != "search" || ev.Input == nil {
		logger.Warn("reject unknown tool call", zap.String("name", ev.Name))
		if err := writeJSONLine(stdin, toolResult{Type: "tool_result", ID: ev.ID, Error: "unknown tool"}); err != nil {
			emit(Event{Err: "agent stream broken"})
			return false
		}
		return true
	}
	k := ev.Input.K
	if k <= 0 {
		k = defaultToolK
	}
	chunks, err := search(ctx, ev.Input.Query, k, ev.Input.Page)
	if err != nil {
		logger.Error("tool retrieval failed", zap.String("query", ev.Input.Query), zap.Error(err))
		emit(Event{Err: "retrieval failed"})
		return false
	}
	logger.Debug("tool retrieval served",
		zap.String("query", ev.Input.Query), zap.Int("hits", len(chunks)))
	if err := writeJSONLine(stdin, toolResult{Type: "tool_result", ID: ev.ID, Results: chunks}); err != nil {
		emit(Event{Err: "agent stream broken"})
		return false
	}
	return true
}

func writeJSONLine(w io.Writer, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}
