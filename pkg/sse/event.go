// Package sse frames and parses Server-Sent Events. The API writes streamed
// completions with Event.WriteTo when a client asks for text/event-stream.
// Reader is the client-side half: nothing in the service reads SSE, but Go
// consumers of the API and the API's own tests use it to parse that output.
//
// See the SSE specification:
// https://html.spec.whatwg.org/multipage/server-sent-events.html
package sse

import (
	"bytes"
	"io"
	"strings"
)

// Event represents a single SSE event, delimited by a blank line on the
// wire.
type Event struct {
	// Type is the "event:" field. An empty string means the default
	// "message" type.
	Type string

	// Data is the payload. Multiple "data:" lines are joined with "\n" when
	// parsing, and a payload containing newlines is split across several
	// "data:" lines when writing.
	Data string

	// ID is the "id:" field, if present.
	ID string
}

// WriteTo writes e as a single SSE frame in one Write call, so an event is
// never split across chunks of a streamed response.
func (e Event) WriteTo(w io.Writer) (int64, error) {
	var buf bytes.Buffer

	if e.ID != "" {
		buf.WriteString("id: " + e.ID + "\n")
	}
	if e.Type != "" {
		buf.WriteString("event: " + e.Type + "\n")
	}
	for _, line := range strings.Split(e.Data, "\n") {
		buf.WriteString("data: " + line + "\n")
	}
	buf.WriteByte('\n')

	n, err := w.Write(buf.Bytes())
	return int64(n), err
}
