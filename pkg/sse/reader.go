package sse

import (
	"bufio"
	"io"
	"strings"
)

// Reader parses SSE events from a source io.Reader, one event per Next call.
// It consumes the stream the API produces with Event.WriteTo, such as the
// body of GET /converse/stream with Accept: text/event-stream.
type Reader struct {
	scanner *bufio.Scanner

	// current accumulates fields for the event being built.
	current *Event
	hasData bool
}

// NewReader returns a Reader over src.
func NewReader(src io.Reader) *Reader {
	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	return &Reader{
		scanner: scanner,
		current: &Event{},
	}
}

// Next blocks until a complete event is available (terminated by a blank
// line) and returns it. Next returns io.EOF once the source is exhausted.
// An event cut off by the end of the source is still returned.
func (r *Reader) Next() (*Event, error) {
	for r.scanner.Scan() {
		raw := r.scanner.Text()

		// A blank line signals the end of the current event.
		if raw == "" {
			if r.hasData {
				ev := r.current
				r.reset()
				return ev, nil
			}

			// Leading blank lines and keep-alives.
			continue
		}

		// Comments.
		if strings.HasPrefix(raw, ":") {
			continue
		}

		r.parseLine(raw)
	}

	if err := r.scanner.Err(); err != nil {
		return nil, err
	}

	if r.hasData {
		ev := r.current
		r.reset()
		return ev, nil
	}

	return nil, io.EOF
}

// parseLine accumulates a single "field:value" line into the current event.
// The first space after the colon is optional and stripped if present.
func (r *Reader) parseLine(line string) {
	field, value, ok := strings.Cut(line, ":")
	if ok {
		value = strings.TrimPrefix(value, " ")
	}

	switch field {
	case "data":
		if r.hasData && r.current.Data != "" {
			r.current.Data += "\n"
		}
		r.current.Data += value
		r.hasData = true
	case "event":
		r.current.Type = value
		r.hasData = true
	case "id":
		r.current.ID = value
		r.hasData = true
	default:
		// "retry" and unknown fields are ignored.
	}
}

func (r *Reader) reset() {
	r.current = &Event{}
	r.hasData = false
}
