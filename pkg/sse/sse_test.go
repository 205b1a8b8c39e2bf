package sse_test

import (
	"bytes"
	"io"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/converse/pkg/sse"
)

// countingWriter records how many Write calls it received.
type countingWriter struct {
	bytes.Buffer
	writes int
}

func (w *countingWriter) Write(p []byte) (int, error) {
	w.writes++
	return w.Buffer.Write(p)
}

var _ = Describe("Event.WriteTo", func() {
	It("writes a data-only event", func() {
		var buf bytes.Buffer
		n, err := sse.Event{Data: `{"text":"Max "}`}.WriteTo(&buf)
		Expect(err).NotTo(HaveOccurred())
		Expect(buf.String()).To(Equal("data: {\"text\":\"Max \"}\n\n"))
		Expect(n).To(Equal(int64(buf.Len())))
	})

	It("writes the id and type before the data", func() {
		var buf bytes.Buffer
		_, err := sse.Event{ID: "7", Type: "done", Data: "{}"}.WriteTo(&buf)
		Expect(err).NotTo(HaveOccurred())
		Expect(buf.String()).To(Equal("id: 7\nevent: done\ndata: {}\n\n"))
	})

	It("splits multi-line data across data fields", func() {
		var buf bytes.Buffer
		_, err := sse.Event{Data: "line one\nline two"}.WriteTo(&buf)
		Expect(err).NotTo(HaveOccurred())
		Expect(buf.String()).To(Equal("data: line one\ndata: line two\n\n"))
	})

	It("emits the whole frame in one write", func() {
		w := &countingWriter{}
		_, err := sse.Event{Type: "error", Data: "a\nb\nc"}.WriteTo(w)
		Expect(err).NotTo(HaveOccurred())
		Expect(w.writes).To(Equal(1))
	})

	It("returns the writer's error", func() {
		pr, pw := io.Pipe()
		Expect(pr.Close()).To(Succeed())

		_, err := sse.Event{Data: "x"}.WriteTo(pw)
		Expect(err).To(MatchError(io.ErrClosedPipe))
	})
})

var _ = Describe("Reader", func() {
	Describe("Next", func() {
		It("parses a single event", func() {
			r := sse.NewReader(strings.NewReader("data: hello world\n\n"))

			ev, err := r.Next()
			Expect(err).NotTo(HaveOccurred())
			Expect(ev.Data).To(Equal("hello world"))
			Expect(ev.Type).To(BeEmpty())
			Expect(ev.ID).To(BeEmpty())

			_, err = r.Next()
			Expect(err).To(MatchError(io.EOF))
		})

		It("parses the event type and id", func() {
			r := sse.NewReader(strings.NewReader("id: 42\nevent: done\ndata: {}\n\n"))

			ev, err := r.Next()
			Expect(err).NotTo(HaveOccurred())
			Expect(ev.ID).To(Equal("42"))
			Expect(ev.Type).To(Equal("done"))
			Expect(ev.Data).To(Equal("{}"))
		})

		It("joins multiple data lines with newline", func() {
			r := sse.NewReader(strings.NewReader("data: line one\ndata: line two\ndata: line three\n\n"))

			ev, err := r.Next()
			Expect(err).NotTo(HaveOccurred())
			Expect(ev.Data).To(Equal("line one\nline two\nline three"))
		})

		It("ignores comments and unknown fields", func() {
			r := sse.NewReader(strings.NewReader(": keep-alive\nretry: 100\nfoo: bar\ndata: x\n\n"))

			ev, err := r.Next()
			Expect(err).NotTo(HaveOccurred())
			Expect(ev.Data).To(Equal("x"))
		})

		It("handles a data field with no space after the colon", func() {
			r := sse.NewReader(strings.NewReader("data:compact\n\n"))

			ev, err := r.Next()
			Expect(err).NotTo(HaveOccurred())
			Expect(ev.Data).To(Equal("compact"))
		})

		It("skips leading blank lines", func() {
			r := sse.NewReader(strings.NewReader("\n\n\ndata: late\n\n"))

			ev, err := r.Next()
			Expect(err).NotTo(HaveOccurred())
			Expect(ev.Data).To(Equal("late"))
		})

		It("yields an event cut off by the end of the source", func() {
			r := sse.NewReader(strings.NewReader("event: done\ndata: {}"))

			ev, err := r.Next()
			Expect(err).NotTo(HaveOccurred())
			Expect(ev.Type).To(Equal("done"))

			_, err = r.Next()
			Expect(err).To(MatchError(io.EOF))
		})

		It("returns io.EOF for empty input", func() {
			_, err := sse.NewReader(strings.NewReader("")).Next()
			Expect(err).To(MatchError(io.EOF))
		})
	})

	It("reads back what WriteTo wrote", func() {
		var buf bytes.Buffer
		_, _ = sse.Event{Data: "first\nsecond"}.WriteTo(&buf)
		_, _ = sse.Event{Type: "done", Data: "{}"}.WriteTo(&buf)

		r := sse.NewReader(&buf)

		ev, err := r.Next()
		Expect(err).NotTo(HaveOccurred())
		Expect(ev.Data).To(Equal("first\nsecond"))

		ev, err = r.Next()
		Expect(err).NotTo(HaveOccurred())
		Expect(ev.Type).To(Equal("done"))
	})
})
