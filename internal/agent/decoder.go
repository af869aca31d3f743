package agent

import (
	"bytes"
	"encoding/json"
	"io"
)

// WireEvent is one line of the agent's stream-json protocol. The agent
// writes one JSON object per line on stdout; tool results travel back on
// stdin in the same shape.
type WireEvent struct {
	Type  string     `json:"type"`
	Text  string     `json:"text,omitempty"`
	Error string     `json:"error,omitempty"`
	ID    string     `json:"id,omitempty"`
	Name  string     `json:"name,omitempty"`
	Input *ToolInput `json:"input,omitempty"`
}

type ToolInput struct {
	Query string `json:"query"`
	K     int    `json:"k,omitempty"`
	Page  int    `json:"page,omitempty"`
}

type toolResult struct {
	Type    string         `json:"type"`
	ID      string         `json:"id"`
	Results []ContextChunk `json:"results,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// Decoder yields wire events one at a time from a line-delimited JSON
// stream. It buffers internally, so the events it produces do not depend on
// how the underlying reader slices the bytes. Blank lines and lines that are
// not JSON objects are skipped; agents are free to interleave diagnostics.
type Decoder struct {
	r   io.Reader
	buf []byte
	err error
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: r}
}

// Next returns the next event or io.EOF when the stream ends. After a
// non-nil error every subsequent call returns the same error.
func (d *Decoder) Next() (*WireEvent, error) {
	for {
		if idx := bytes.IndexByte(d.buf, '\n'); idx >= 0 {
			line := d.buf[:idx]
			d.buf = d.buf[idx+1:]
			if ev := parseLine(line); ev != nil {
				return ev, nil
			}
			continue
		}
		if d.err != nil {
			if d.err == io.EOF && len(d.buf) > 0 {
				// Final line without trailing newline.
				line := d.buf
				d.buf = nil
				if ev := parseLine(line); ev != nil {
					return ev, nil
				}
			}
			return nil, d.err
		}
		chunk := make([]byte, 4096)
		n, err := d.r.Read(chunk)
		if n > 0 {
			d.buf = append(d.buf, chunk[:n]...)
		}
		if err != nil {
			d.err = err
		}
	}
}

func parseLine(line []byte) *WireEvent {
	line = bytes.TrimSpace(line)
	if len(line) == 0 || line[0] != '{' {
		return nil
	}
	var ev WireEvent
	if err := json.Unmarshal(line, &ev); err != nil {
		return nil
	}
	if ev.Type == "" {
		return nil
	}
	return &ev
}
