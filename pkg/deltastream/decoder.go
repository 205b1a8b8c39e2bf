package deltastream

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"iter"
	"strings"
)

const (
	// DefaultSentinel is what remains of the event-stream ":message-type" header
	// and its "event" value once the binary length and type bytes are stripped.
	// It immediately precedes the JSON payload of every regular event.
	DefaultSentinel = ":message-typeevent"

	// messageTypeHeader and exceptionType make up the header that precedes
	// an in-band exception payload. The length byte of "exception" is a tab,
	// which sanitize keeps, so it may sit between the two.
	messageTypeHeader = ":message-type"
	exceptionType     = "exception"

	// exceptionTypeHeader precedes the exception name in the same frame.
	exceptionTypeHeader = ":exception-type"

	defaultReadSize = 32 * 1024
)

// Decoder reconstructs text deltas from a chunked event-stream body.
type Decoder struct {
	src      io.ReadCloser
	sentinel string
	readBuf  []byte

	// line holds bytes that have not been terminated by a newline yet.
	line []byte

	// pending holds deltas decoded from the current chunk but not yet
	// returned to the consumer.
	pending []string

	onMalformed func(*MalformedEnvelopeError)

	// exceptions enables detection of exception events. The first one found
	// is kept in exception and ends the stream.
	exceptions bool
	exception  *StreamException

	deltas    int
	malformed int

	err    error
	closed bool
}

// Option configures a Decoder created with NewDecoder.
type Option func(*Decoder)

// WithDiagnostics registers a hook that receives every envelope that was
// located but could not be parsed. The hook runs synchronously inside Next.
func WithDiagnostics(fn func(*MalformedEnvelopeError)) Option {
	return func(d *Decoder) {
		d.onMalformed = fn
	}
}

// WithExceptions makes the decoder stop at the first in-band exception event.
// Next returns the deltas decoded before it and then a *StreamException.
// Without this option exception events are ignored like any other non-delta
// payload.
func WithExceptions() Option {
	return func(d *Decoder) {
		d.exceptions = true
	}
}

// WithReadSize sets the size of each read from the source. Defaults to 32KiB.
func WithReadSize(n int) Option {
	return func(d *Decoder) {
		if n > 0 {
			d.readBuf = make([]byte, n)
		}
	}
}

// NewDecoder returns a Decoder that reads from src and yields the delta.text
// value of every envelope introduced by sentinel. An empty sentinel selects
// DefaultSentinel.
func NewDecoder(src io.ReadCloser, sentinel string, opts ...Option) *Decoder {
	if sentinel == "" {
		sentinel = DefaultSentinel
	}

	d := &Decoder{
		src:      src,
		sentinel: sentinel,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.readBuf == nil {
		d.readBuf = make([]byte, defaultReadSize)
	}

	return d
}

// Next blocks until the next delta is available and returns it.
//
// Next returns io.EOF once the source is exhausted. Any other error is the
// failure reported by the source, or a *StreamException when WithExceptions
// is set; deltas returned before it remain valid. The source is closed as
// soon as any terminal condition is reached.
func (d *Decoder) Next() (string, error) {
	for {
		if len(d.pending) > 0 {
			text := d.pending[0]
			d.pending = d.pending[1:]
			d.deltas++
			return text, nil
		}

		if d.err != nil {
			return "", d.err
		}

		n, err := d.src.Read(d.readBuf)
		if n > 0 {
			d.feed(d.readBuf[:n])
		}

		if d.exception != nil {
			d.err = d.exception
			_ = d.Close()
			continue
		}

		if err != nil {
			if errors.Is(err, io.EOF) {
				// The unterminated tail is never a complete frame, but a
				// closing exception event is reported from it.
				if d.exceptions {
					d.tail()
				}
				d.line = nil
				d.err = io.EOF
				if d.exception != nil {
					d.err = d.exception
				}
			} else {
				d.err = err
			}
			_ = d.Close()
		}
	}
}

// All returns a single-pass iterator over the remaining deltas. A clean end of
// stream ends the sequence; a source failure is yielded once as the final
// element. The source is closed when iteration stops for any reason,
// including an early break by the caller.
func (d *Decoder) All() iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		defer d.Close()

		for {
			text, err := d.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield("", err)
				return
			}
			if !yield(text, nil) {
				return
			}
		}
	}
}

// Close releases the underlying source. It is safe to call more than once.
// After Close, Next returns any deltas already decoded and then io.ErrClosedPipe
// unless the stream had already ended.
func (d *Decoder) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true

	if d.err == nil {
		d.err = io.ErrClosedPipe
	}

	return d.src.Close()
}

// Deltas returns the number of deltas returned by Next so far.
func (d *Decoder) Deltas() int {
	return d.deltas
}

// Malformed returns the number of envelopes that were located but failed to
// parse.
func (d *Decoder) Malformed() int {
	return d.malformed
}

// feed appends a raw chunk to the line buffer and processes every frame it
// completes. Newlines are single bytes that never occur inside a multi-byte
// UTF-8 sequence, so splitting before decoding keeps characters intact across
// chunk boundaries.
func (d *Decoder) feed(chunk []byte) {
	d.line = append(d.line, chunk...)

	rest := d.line
	for {
		idx := bytes.IndexByte(rest, '\n')
		if idx < 0 {
			break
		}
		d.frame(rest[:idx])
		rest = rest[idx+1:]
		if d.exception != nil {
			rest = nil
			break
		}
	}

	n := copy(d.line, rest)
	d.line = d.line[:n]
}

// frame scans a single newline-delimited frame for envelopes.
func (d *Decoder) frame(raw []byte) {
	line := strings.TrimSpace(sanitize(raw))
	if line == "" {
		return
	}

	from := 0
	for from < len(line) {
		start, n, exception := d.nextEnvelope(line, from)
		if start < 0 {
			return
		}

		payload, ok := balancedObject(line, start+n)
		if exception {
			d.raise(line[:start], payload)
			return
		}
		if ok {
			d.decode(payload)
		}

		// Resume right after this match's start so adjacent and overlapping
		// envelopes are all found.
		from = start + 1
	}
}

// tail scans the unterminated remainder of the body for an exception event.
func (d *Decoder) tail() {
	line := sanitize(d.line)
	idx, n := indexException(line)
	if idx < 0 {
		return
	}
	payload, _ := balancedObject(line, idx+n)
	d.raise(line[:idx], payload)
}

// nextEnvelope returns the offset and header length of the first envelope
// at or after from, or -1 when there is none. exception reports whether it
// is an exception event.
func (d *Decoder) nextEnvelope(line string, from int) (start, n int, exception bool) {
	idx := strings.Index(line[from:], d.sentinel)
	if d.exceptions {
		exc, excLen := indexException(line[from:])
		if exc >= 0 && (idx < 0 || exc < idx) {
			return from + exc, excLen, true
		}
	}
	if idx < 0 {
		return -1, 0, false
	}
	return from + idx, len(d.sentinel), false
}

// indexException returns the offset and length of the first exception
// message-type header in s, or -1.
func indexException(s string) (int, int) {
	from := 0
	for {
		i := strings.Index(s[from:], messageTypeHeader)
		if i < 0 {
			return -1, 0
		}
		at := from + i

		n := len(messageTypeHeader)
		if strings.HasPrefix(s[at+n:], "\t") {
			n++
		}
		if strings.HasPrefix(s[at+n:], exceptionType) {
			return at, n + len(exceptionType)
		}
		from = at + 1
	}
}

// raise records the exception whose headers end in prefix. payload may be
// empty when the frame was cut before the object closed.
func (d *Decoder) raise(prefix, payload string) {
	exc := &StreamException{}

	if i := strings.LastIndex(prefix, exceptionTypeHeader); i >= 0 {
		name := prefix[i+len(exceptionTypeHeader):]
		end := strings.IndexFunc(name, func(r rune) bool {
			return (r < 'a' || r > 'z') && (r < 'A' || r > 'Z')
		})
		if end >= 0 {
			name = name[:end]
		}
		exc.Type = name
	}

	if payload != "" {
		var body struct {
			Message string `json:"message"`
		}
		if json.Unmarshal([]byte(payload), &body) == nil {
			exc.Message = body.Message
		}
	}

	d.exception = exc
}

type envelope struct {
	Delta *struct {
		Text string `json:"text"`
	} `json:"delta"`
}

func (d *Decoder) decode(payload string) {
	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		d.malformed++
		if d.onMalformed != nil {
			d.onMalformed(&MalformedEnvelopeError{Payload: payload, Err: err})
		}
		return
	}

	if env.Delta == nil || env.Delta.Text == "" {
		return
	}

	d.pending = append(d.pending, env.Delta.Text)
}
