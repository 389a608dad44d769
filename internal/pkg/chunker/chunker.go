// Package chunker splits normalized text into sentence-aware, overlapping segments.
package chunker

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Options bound the produced chunks. Lengths are counted in runes.
type Options struct {
	MaxLen    int
	Overlap   int
	MaxChunks int
}

const joiner = " "

var terminators = map[rune]bool{
	'。': true, '！': true, '？': true, '；': true, '…': true,
	'!': true, '?': true, ';': true,
}

var closers = map[rune]bool{
	'"': true, '\'': true, ')': true, ']': true,
	'”': true, '’': true, '」': true, '』': true, '）': true, '】': true,
}

// Split packs the sentences of text into chunks of at most opts.MaxLen runes.
// Consecutive chunks share up to opts.Overlap trailing runes of the previous chunk.
// At most opts.MaxChunks chunks are returned; MaxChunks <= 0 means no limit.
func Split(text string, opts Options) []string {
	if opts.MaxLen <= 0 {
		return nil
	}
	if opts.Overlap < 0 {
		opts.Overlap = 0
	}
	if opts.Overlap >= opts.MaxLen {
		opts.Overlap = opts.MaxLen - 1
	}

	units := Sentences(text)
	if len(units) == 0 {
		return nil
	}

	s := splitter{opts: opts}
	for _, unit := range units {
		if s.full() {
			break
		}
		s.add(unit)
	}
	s.flush()

	return s.chunks
}

type splitter struct {
	opts   Options
	chunks []string
	buf    []rune
}

func (s *splitter) full() bool {
	return s.opts.MaxChunks > 0 && len(s.chunks) >= s.opts.MaxChunks
}

func (s *splitter) emit(chunk []rune) {
	if len(chunk) == 0 || s.full() {
		return
	}
	s.chunks = append(s.chunks, string(chunk))
}

func (s *splitter) flush() {
	s.emit(s.buf)
	s.buf = nil
}

func (s *splitter) add(unit string) {
	u := []rune(unit)
	maxLen := s.opts.MaxLen

	if len(u) > maxLen {
		s.flush()
		s.hardSplit(u)
		return
	}

	if len(s.buf) == 0 {
		s.buf = u
		return
	}

	if len(s.buf)+len(u)+1 <= maxLen {
		s.buf = appendUnit(s.buf, u)
		return
	}

	prev := s.buf
	s.flush()

	// the seeded overlap gives way to the new unit, never the other way round
	tail := lastRunes(prev, min(s.opts.Overlap, maxLen-len(u)-1))
	tail = []rune(strings.TrimLeftFunc(string(tail), unicode.IsSpace))
	if len(tail) == 0 {
		s.buf = u
		return
	}
	s.buf = appendUnit(tail, u)
}

func (s *splitter) hardSplit(u []rune) {
	step := max(1, s.opts.MaxLen-s.opts.Overlap)
	for start := 0; start < len(u) && !s.full(); start += step {
		end := min(start+s.opts.MaxLen, len(u))
		s.emit(u[start:end])
		if end == len(u) {
			return
		}
	}
}

func appendUnit(buf, unit []rune) []rune {
	out := make([]rune, 0, len(buf)+len(unit)+1)
	out = append(out, buf...)
	out = append(out, []rune(joiner)...)
	return append(out, unit...)
}

func lastRunes(r []rune, n int) []rune {
	if n <= 0 {
		return nil
	}
	if n >= len(r) {
		return r
	}
	return r[len(r)-n:]
}

// Sentences splits text into trimmed sentence-like units. Line breaks always end a unit,
// a Latin period only when followed by whitespace or the end of text.
func Sentences(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	var units []string
	var cur strings.Builder
	push := func() {
		if u := strings.TrimSpace(cur.String()); u != "" {
			units = append(units, u)
		}
		cur.Reset()
	}

	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		i += size

		if r == '\n' {
			push()
			continue
		}
		cur.WriteRune(r)

		end := terminators[r]
		if r == '.' {
			next, _ := utf8.DecodeRuneInString(text[i:])
			end = i >= len(text) || unicode.IsSpace(next)
		}
		if !end {
			continue
		}

		for i < len(text) {
			next, nsize := utf8.DecodeRuneInString(text[i:])
			if !closers[next] && !terminators[next] {
				break
			}
			cur.WriteRune(next)
			i += nsize
		}
		push()
	}
	push()

	return units
}
