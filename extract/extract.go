// Package extract finds fenced structured-data blocks in free-text model output
// and parses their payloads.
package extract

import (
	"errors"
	"fmt"
	"iter"
	"strings"
	"unicode/utf8"
)

const fence = "```"

var (
	// ErrInvalidInput is returned by Scan for anything that is not text.
	ErrInvalidInput = errors.New("extract: input must be a string or UTF-8 bytes")
	// ErrNotStructured is returned when a payload is not a JSON object or array.
	ErrNotStructured = errors.New("extract: payload is not a JSON object or array")
)

// Block is one fenced segment found in the input.
type Block struct {
	Label   string // language tag after the opening fence, as written
	Payload string // text between the fences, trimmed
	Offset  int    // byte offset of the opening fence
}

type options struct {
	labels       map[string]bool
	requireLabel bool
	repair       bool
}

// Option tunes which fences are yielded and how payloads are parsed.
type Option func(*options)

// WithLabels replaces the accepted labels (default: "json"). Matching is case-insensitive.
func WithLabels(labels ...string) Option {
	return func(o *options) {
		o.labels = make(map[string]bool, len(labels))
		for _, l := range labels {
			o.labels[strings.ToLower(strings.TrimSpace(l))] = true
		}
	}
}

// RequireLabel drops fences that carry no label at all.
func RequireLabel() Option {
	return func(o *options) { o.requireLabel = true }
}

// WithRepair lets Parse fall back to jsonrepair when strict decoding fails.
// Truncated payloads usually become parseable with it, so it is off by default.
func WithRepair() Option {
	return func(o *options) { o.repair = true }
}

func newOptions(opts []Option) options {
	o := options{labels: map[string]bool{"json": true}}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o options) accepts(label string) bool {
	if label == "" {
		return !o.requireLabel
	}
	return o.labels[strings.ToLower(label)]
}

// Scan is Blocks for untyped input. Only string and []byte are accepted.
func Scan(input any, opts ...Option) (iter.Seq[Block], error) {
	switch v := input.(type) {
	case string:
		return Blocks(v, opts...), nil
	case []byte:
		if !utf8.Valid(v) {
			return nil, fmt.Errorf("%w: bytes are not valid UTF-8", ErrInvalidInput)
		}
		return Blocks(string(v), opts...), nil
	default:
		return nil, fmt.Errorf("%w: got %T", ErrInvalidInput, input)
	}
}

// Blocks lazily yields accepted fenced segments in order of appearance.
//
// A fence later on the opening line closes the segment there (compact one-line
// output). Otherwise the segment closes at the first fence that starts a line and
// has nothing else on that line, or, when no such line exists before the next
// opening fence, at the first inline fence. Text after the label that does not
// start a JSON value is an info string and is not part of the payload. Segments
// without any closing fence are dropped and scanning resumes at the next opening
// fence.
func Blocks(text string, opts ...Option) iter.Seq[Block] {
	o := newOptions(opts)
	return func(yield func(Block) bool) {
		pos := 0
		for pos < len(text) {
			open := strings.Index(text[pos:], fence)
			if open < 0 {
				return
			}
			open += pos

			label, body := readLabel(text, open+len(fence))
			start, end, next, ok := closeSegment(text, body)
			if !ok {
				if next < 0 {
					return
				}
				pos = next
				continue
			}
			pos = end + len(fence)

			if !o.accepts(label) {
				continue
			}
			block := Block{
				Label:   label,
				Payload: strings.TrimSpace(text[start:end]),
				Offset:  open,
			}
			if !yield(block) {
				return
			}
		}
	}
}

// Candidates yields only the payload strings of Blocks.
func Candidates(text string, opts ...Option) iter.Seq[string] {
	return func(yield func(string) bool) {
		for b := range Blocks(text, opts...) {
			if !yield(b.Payload) {
				return
			}
		}
	}
}

func readLabel(text string, from int) (string, int) {
	i := from
	for i < len(text) && isLabelByte(text[i]) {
		i++
	}
	return text[from:i], i
}

func isLabelByte(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case c == '_', c == '+', c == '.', c == '-':
		return true
	}
	return false
}

// closeSegment finds the payload bounds of a segment whose opening line
// continues at body. When there is no closing fence, next is the offset of the
// following opening fence or -1.
func closeSegment(text string, body int) (start, end, next int, ok bool) {
	lineEnd := len(text)
	if k := strings.IndexByte(text[body:], '\n'); k >= 0 {
		lineEnd = body + k
	}
	rest := text[body:lineEnd]
	if k := strings.Index(rest, fence); k >= 0 {
		return body, body + k, -1, true
	}

	start = body
	if info := strings.TrimSpace(rest); info != "" && !strings.HasPrefix(info, "{") && !strings.HasPrefix(info, "[") {
		start = lineEnd
	}
	end, next, ok = findClose(text, start)
	return start, end, next, ok
}

// findClose returns the offset of the closing fence for a payload starting at from.
// When there is none, next is the offset of the following opening fence or -1.
func findClose(text string, from int) (end, next int, ok bool) {
	next = -1
	limit := len(text)

	i := from
	for {
		nl := strings.IndexByte(text[i:], '\n')
		if nl < 0 {
			break
		}
		i += nl + 1

		start := i
		for start < len(text) && (text[start] == ' ' || text[start] == '\t') {
			start++
		}
		if !strings.HasPrefix(text[start:], fence) {
			continue
		}

		after := start + len(fence)
		lineEnd := len(text)
		if k := strings.IndexByte(text[after:], '\n'); k >= 0 {
			lineEnd = after + k
		}
		if strings.TrimSpace(text[after:lineEnd]) == "" {
			return start, -1, true
		}

		// opening fence of another segment
		next = start
		limit = start
		break
	}

	if k := strings.Index(text[from:limit], fence); k >= 0 {
		return from + k, -1, true
	}
	return 0, next, false
}
