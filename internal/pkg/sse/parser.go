// Package sse decodes Server-Sent Events frames from a byte stream whose
// read boundaries do not line up with frame boundaries.
package sse

import (
	"bytes"
	"io"
	"strings"
)

// DoneMarker is the payload OpenAI-compatible backends send as the last frame.
const DoneMarker = "[DONE]"

// Frame is one dispatched event. Data lines are joined with "\n".
type Frame struct {
	Event string
	Data  string
}

// Parser is an incremental SSE decoder. The zero value is ready to use.
type Parser struct {
	line    []byte
	data    []string
	event   string
	hasData bool
}

// Feed consumes the next piece of the stream and returns the frames it completed.
func (p *Parser) Feed(chunk []byte) []Frame {
	var frames []Frame
	for len(chunk) > 0 {
		i := bytes.IndexByte(chunk, '\n')
		if i < 0 {
			p.line = append(p.line, chunk...)
			break
		}
		p.line = append(p.line, chunk[:i]...)
		chunk = chunk[i+1:]

		line := bytes.TrimSuffix(p.line, []byte{'\r'})
		if f, ok := p.processLine(string(line)); ok {
			frames = append(frames, f)
		}
		p.line = p.line[:0]
	}
	return frames
}

// Close flushes an unterminated trailing line and frame.
func (p *Parser) Close() []Frame {
	var frames []Frame
	if len(p.line) > 0 {
		line := bytes.TrimSuffix(p.line, []byte{'\r'})
		if f, ok := p.processLine(string(line)); ok {
			frames = append(frames, f)
		}
		p.line = p.line[:0]
	}
	if f, ok := p.dispatch(); ok {
		frames = append(frames, f)
	}
	return frames
}

func (p *Parser) processLine(line string) (Frame, bool) {
	if line == "" {
		return p.dispatch()
	}
	if strings.HasPrefix(line, ":") {
		return Frame{}, false
	}

	field, value, found := strings.Cut(line, ":")
	if found {
		value = strings.TrimPrefix(value, " ")
	}

	switch field {
	case "data":
		p.data = append(p.data, value)
		p.hasData = true
	case "event":
		p.event = value
	}
	// id and retry carry nothing a completion stream needs

	return Frame{}, false
}

func (p *Parser) dispatch() (Frame, bool) {
	if !p.hasData {
		p.event = ""
		return Frame{}, false
	}

	f := Frame{Event: p.event, Data: strings.Join(p.data, "\n")}
	p.data = p.data[:0]
	p.event = ""
	p.hasData = false

	if strings.TrimSpace(f.Data) == DoneMarker {
		return Frame{}, false
	}
	return f, true
}

// ReadAll decodes r until EOF, calling fn for each frame. Reading stops at the first error
// returned by r or fn; io.EOF is not an error.
func ReadAll(r io.Reader, fn func(Frame) error) error {
	var p Parser
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			for _, f := range p.Feed(buf[:n]) {
				if ferr := fn(f); ferr != nil {
					return ferr
				}
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
	}
	for _, f := range p.Close() {
		if err := fn(f); err != nil {
			return err
		}
	}
	return nil
}
