package jsonx

import (
	"encoding/json"
)

// Draft incrementally scans a JSON document that arrives in pieces and can render the
// longest prefix that closes into valid JSON. Text before the first bracket is skipped,
// so prose or a code fence in front of the document is harmless.
type Draft struct {
	buf      []byte
	scanned  int
	start    int
	stack    []byte
	inString bool
	escape   bool
	complete bool

	cut      int
	closers  string
	reported int
}

// Write appends the next piece of the document.
func (d *Draft) Write(piece string) {
	d.buf = append(d.buf, piece...)
	d.scan()
}

func (d *Draft) scan() {
	for ; d.scanned < len(d.buf) && !d.complete; d.scanned++ {
		c := d.buf[d.scanned]

		if len(d.stack) == 0 {
			if c == '{' || c == '[' {
				d.start = d.scanned
				d.open(c)
			}
			continue
		}

		if d.inString {
			switch {
			case d.escape:
				d.escape = false
			case c == '\\':
				d.escape = true
			case c == '"':
				d.inString = false
			}
			continue
		}

		switch c {
		case '"':
			d.inString = true
		case '{', '[':
			d.open(c)
		case '}', ']':
			d.stack = d.stack[:len(d.stack)-1]
			d.mark(d.scanned + 1)
			if len(d.stack) == 0 {
				d.complete = true
			}
		case ',':
			d.mark(d.scanned)
		}
	}
}

func (d *Draft) open(c byte) {
	d.stack = append(d.stack, c)
	d.mark(d.scanned + 1)
}

// mark records a position after which the document can be closed by the open containers.
func (d *Draft) mark(pos int) {
	closers := make([]byte, 0, len(d.stack))
	for i := len(d.stack) - 1; i >= 0; i-- {
		if d.stack[i] == '{' {
			closers = append(closers, '}')
		} else {
			closers = append(closers, ']')
		}
	}
	d.cut = pos
	d.closers = string(closers)
}

// Snapshot returns the decoded draft when it grew since the previous snapshot.
func (d *Draft) Snapshot() (any, bool) {
	if d.cut == 0 || d.cut <= d.reported {
		return nil, false
	}

	candidate := make([]byte, 0, d.cut-d.start+len(d.closers))
	candidate = append(candidate, d.buf[d.start:d.cut]...)
	candidate = append(candidate, d.closers...)

	var v any
	if err := json.Unmarshal(candidate, &v); err != nil {
		return nil, false
	}
	d.reported = d.cut
	return v, true
}

// Complete reports whether the outermost container has been closed.
func (d *Draft) Complete() bool {
	return d.complete
}
