// Package stream turns the raw byte stream of an upstream SSE
// chat-completion response into an ordered sequence of normalized
// events. SSE lines can be split across network reads at any byte
// offset, so nothing is parsed until a full line has been assembled.
package stream

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strings"

	"muse-api/internal/shared"
)

// LineAssembler reassembles complete lines from arbitrarily chunked
// input. One growable tail buffer is reused across chunks; a trailing
// partial line is retained until its boundary arrives.
type LineAssembler struct {
	tail []byte
}

// Feed appends chunk and returns every line completed by it, boundary
// stripped. CRLF boundaries are handled.
func (a *LineAssembler) Feed(chunk []byte) []string {
	a.tail = append(a.tail, chunk...)
	var lines []string
	for {
		i := bytes.IndexByte(a.tail, '\n')
		if i < 0 {
			return lines
		}
		line := a.tail[:i]
		line = bytes.TrimSuffix(line, []byte{'\r'})
		lines = append(lines, string(line))
		a.tail = a.tail[i+1:]
	}
}

// Tail returns the retained partial line, if any.
func (a *LineAssembler) Tail() string {
	return string(a.tail)
}

// Flush returns the retained partial line as a complete one and clears
// it. Called when the input ends without a final boundary.
func (a *LineAssembler) Flush() string {
	line := string(bytes.TrimSuffix(a.tail, []byte{'\r'}))
	a.tail = a.tail[:0]
	return line
}

// Event is one normalized frame: an incremental content/reasoning pair,
// or the terminal marker.
type Event struct {
	Content   string
	Reasoning string
	Done      bool
}

type chatChunk struct {
	Choices []struct {
		Delta struct {
			Content          string `json:"content"`
			ReasoningContent string `json:"reasoning_content"`
		} `json:"delta"`
	} `json:"choices"`
	Usage *shared.Usage `json:"usage"`
}

// Normalizer lazily consumes an upstream body. It is forward-only and
// single-pass: events come out in arrival order, Next blocks only on
// the upstream read, and nothing is buffered beyond line reassembly.
type Normalizer struct {
	body      io.ReadCloser
	asm       LineAssembler
	readBuf   []byte
	pending   []Event
	done      bool // terminal event emitted
	exhausted bool
	malformed int
	usage     *shared.Usage
}

func NewNormalizer(body io.ReadCloser) *Normalizer {
	return &Normalizer{
		body:    body,
		readBuf: make([]byte, shared.StreamReadChunkSize),
	}
}

// Next returns the next normalized event. io.EOF signals the end of the
// sequence; the terminal event, when upstream sends one, precedes it.
// A run of shared.MaxMalformedStreak consecutive unparseable data lines
// fails the stream with shared.ErrMalformedStream.
func (n *Normalizer) Next() (Event, error) {
	for {
		if len(n.pending) > 0 {
			ev := n.pending[0]
			n.pending = n.pending[1:]
			return ev, nil
		}
		if n.exhausted || n.done {
			return Event{}, io.EOF
		}

		nr, err := n.body.Read(n.readBuf)
		if nr > 0 {
			for _, line := range n.asm.Feed(n.readBuf[:nr]) {
				if cerr := n.consumeLine(line); cerr != nil {
					n.exhausted = true
					return Event{}, cerr
				}
			}
		}
		if err != nil {
			// Upstream ended without a final boundary: the retained
			// tail is the last line and still counts.
			if tail := n.asm.Flush(); tail != "" {
				if cerr := n.consumeLine(tail); cerr != nil {
					n.exhausted = true
					return Event{}, cerr
				}
			}
			n.exhausted = true
			if err != io.EOF && len(n.pending) == 0 && !n.done {
				return Event{}, errors.Join(shared.ErrNoUpstreamContent, err)
			}
		}
	}
}

func (n *Normalizer) consumeLine(line string) error {
	// Only data frames matter; blank lines, comments and event: lines
	// are dropped silently.
	data, ok := strings.CutPrefix(line, "data:")
	if !ok {
		return nil
	}
	data = strings.TrimPrefix(data, " ")

	// Repeated terminal markers are harmless; anything after the first
	// one is ignored.
	if n.done {
		return nil
	}
	if data == "[DONE]" {
		n.pending = append(n.pending, Event{Done: true})
		n.done = true
		return nil
	}

	var chunk chatChunk
	if err := json.Unmarshal([]byte(data), &chunk); err != nil {
		// A single malformed line is dropped; upstream is trusted to
		// resync. A long streak of them is protocol drift and fails
		// the stream.
		n.malformed++
		if n.malformed >= shared.MaxMalformedStreak {
			return errors.Join(shared.ErrMalformedStream, err)
		}
		return nil
	}
	n.malformed = 0

	if chunk.Usage != nil {
		n.usage = chunk.Usage
	}
	if len(chunk.Choices) == 0 {
		return nil
	}
	delta := chunk.Choices[0].Delta
	if delta.Content == "" && delta.ReasoningContent == "" {
		// Heartbeat / usage-only frame, nothing to emit.
		return nil
	}
	n.pending = append(n.pending, Event{
		Content:   delta.Content,
		Reasoning: delta.ReasoningContent,
	})
	return nil
}

// Usage returns the usage object captured from the stream, if any
// chunk carried one.
func (n *Normalizer) Usage() *shared.Usage {
	return n.usage
}

// Close closes the upstream body. Safe to call at any point; it is how
// a client disconnect propagates to the upstream connection.
func (n *Normalizer) Close() error {
	return n.body.Close()
}
