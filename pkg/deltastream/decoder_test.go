package deltastream_test

import (
	"errors"
	"io"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/converse/pkg/deltastream"
)

// chunkSource replays fixed chunks, one per Read, then ends with err.
type chunkSource struct {
	chunks [][]byte
	err    error
	reads  int
	closed int
}

func newChunkSource(chunks ...string) *chunkSource {
	s := &chunkSource{err: io.EOF}
	for _, c := range chunks {
		s.chunks = append(s.chunks, []byte(c))
	}
	return s
}

func (s *chunkSource) Read(p []byte) (int, error) {
	if s.closed > 0 {
		return 0, io.ErrClosedPipe
	}
	if len(s.chunks) == 0 {
		return 0, s.err
	}
	s.reads++
	n := copy(p, s.chunks[0])
	s.chunks[0] = s.chunks[0][n:]
	if len(s.chunks[0]) == 0 {
		s.chunks = s.chunks[1:]
	}
	return n, nil
}

func (s *chunkSource) Close() error {
	s.closed++
	return nil
}

func drain(d *deltastream.Decoder) ([]string, error) {
	var out []string
	for {
		text, err := d.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, text)
	}
}

func envelope(text string) string {
	return `:message-typeevent{"contentBlockIndex":0,"delta":{"text":"` + text + `"},"p":"abcd"}`
}

// frameNoise mimics the binary prelude and header bytes the event-stream
// framing puts around each payload.
const frameNoise = "\x00\x00\x00\x8b\x00\x00\x00K\xa7\x1f\r\x0b:event-type\x07\x00\x11contentBlockDelta\r"

// exceptionFrame renders an exception event the way Bedrock frames it. The
// length byte of "exception" is a tab.
func exceptionFrame(name, message string) string {
	return "\x00\x00\x00\x9e\x00\x00\x00e\x8a\x1b\x0f:exception-type\x07\x00" + string(rune(len(name))) + name +
		"\r:content-type\x07\x00\x10application/json\r:message-type\x07\x00\texception" +
		`{"message":"` + message + `"}` + "\xde\xad\xbe\xef"
}

var _ = Describe("Decoder", func() {
	It("decodes the split envelope scenario", func() {
		src := newChunkSource(
			`ev:message-typeevent{"delta":{"text":"Hel`,
			"lo\"}}\nev:message-typeevent{\"delta\":{\"text\":\" world\"}}\n",
		)
		d := deltastream.NewDecoder(src, "ev:message-typeevent")

		deltas, err := drain(d)
		Expect(err).NotTo(HaveOccurred())
		Expect(deltas).To(Equal([]string{"Hello", " world"}))
		Expect(d.Deltas()).To(Equal(2))
	})

	It("uses the default sentinel when none is given", func() {
		src := newChunkSource(envelope("hi") + "\n")
		d := deltastream.NewDecoder(src, "")

		deltas, err := drain(d)
		Expect(err).NotTo(HaveOccurred())
		Expect(deltas).To(Equal([]string{"hi"}))
	})

	It("strips binary framing around envelopes", func() {
		src := newChunkSource(frameNoise + envelope("Max") + "\x9c\xe2\x01\x02\n")
		d := deltastream.NewDecoder(src, deltastream.DefaultSentinel)

		deltas, err := drain(d)
		Expect(err).NotTo(HaveOccurred())
		Expect(deltas).To(Equal([]string{"Max"}))
	})

	Context("frames", func() {
		It("yields nothing for a line without a sentinel", func() {
			src := newChunkSource("just some text {\"delta\":{\"text\":\"no\"}}\n\n   \n")
			d := deltastream.NewDecoder(src, deltastream.DefaultSentinel)

			deltas, err := drain(d)
			Expect(err).NotTo(HaveOccurred())
			Expect(deltas).To(BeEmpty())
			Expect(d.Malformed()).To(BeZero())
		})

		It("yields back-to-back envelopes left to right", func() {
			src := newChunkSource(envelope("one") + envelope("two") + "\n")
			d := deltastream.NewDecoder(src, deltastream.DefaultSentinel)

			deltas, err := drain(d)
			Expect(err).NotTo(HaveOccurred())
			Expect(deltas).To(Equal([]string{"one", "two"}))
		})

		It("abandons an envelope truncated at end of line and keeps going", func() {
			src := newChunkSource(
				envelope("kept")+`:message-typeevent{"delta":{"text":"lost"`+"\n",
				envelope("after")+"\n",
			)
			d := deltastream.NewDecoder(src, deltastream.DefaultSentinel)

			deltas, err := drain(d)
			Expect(err).NotTo(HaveOccurred())
			Expect(deltas).To(Equal([]string{"kept", "after"}))
			Expect(d.Malformed()).To(BeZero())
		})

		It("skips invalid JSON, reports it, and decodes what follows", func() {
			var diagnostics []*deltastream.MalformedEnvelopeError
			src := newChunkSource(
				`:message-typeevent{"delta":{"text":"bad",}}`+envelope("same line")+"\n",
				envelope("next line")+"\n",
			)
			d := deltastream.NewDecoder(src, deltastream.DefaultSentinel,
				deltastream.WithDiagnostics(func(e *deltastream.MalformedEnvelopeError) {
					diagnostics = append(diagnostics, e)
				}),
			)

			deltas, err := drain(d)
			Expect(err).NotTo(HaveOccurred())
			Expect(deltas).To(Equal([]string{"same line", "next line"}))
			Expect(d.Malformed()).To(Equal(1))
			Expect(diagnostics).To(HaveLen(1))
			Expect(diagnostics[0].Payload).To(Equal(`{"delta":{"text":"bad",}}`))
			Expect(diagnostics[0].Error()).To(ContainSubstring("malformed envelope"))
			Expect(diagnostics[0].Unwrap()).To(HaveOccurred())
		})

		It("ignores envelopes without delta text", func() {
			src := newChunkSource(
				`:message-typeevent{"role":"assistant","p":"ab"}` +
					`:message-typeevent{"contentBlockIndex":0,"delta":{"text":""}}` +
					`:message-typeevent{"stopReason":"end_turn"}` + "\n",
			)
			d := deltastream.NewDecoder(src, deltastream.DefaultSentinel)

			deltas, err := drain(d)
			Expect(err).NotTo(HaveOccurred())
			Expect(deltas).To(BeEmpty())
			Expect(d.Malformed()).To(BeZero())
		})

		It("counts braces naively inside string values", func() {
			src := newChunkSource(`:message-typeevent{"delta":{"text":"a}b"}}` + "\n")
			var diagnostics int
			d := deltastream.NewDecoder(src, deltastream.DefaultSentinel,
				deltastream.WithDiagnostics(func(*deltastream.MalformedEnvelopeError) { diagnostics++ }),
			)

			deltas, err := drain(d)
			Expect(err).NotTo(HaveOccurred())
			Expect(deltas).To(BeEmpty())
			Expect(diagnostics).To(Equal(1))
		})

		It("keeps escaped quotes and newlines inside text", func() {
			src := newChunkSource(`:message-typeevent{"delta":{"text":"say \"hi\"\n"}}` + "\n")
			d := deltastream.NewDecoder(src, deltastream.DefaultSentinel)

			deltas, err := drain(d)
			Expect(err).NotTo(HaveOccurred())
			Expect(deltas).To(Equal([]string{"say \"hi\"\n"}))
		})
	})

	Context("chunking", func() {
		body := frameNoise + envelope("Max ") + frameNoise + envelope("Verstappen — ") + "\r\n" +
			envelope("née 🏎️ champion") + "\n" + frameNoise + envelope("!") + "\n"
		want := []string{"Max ", "Verstappen — ", "née 🏎️ champion", "!"}

		It("decodes the body delivered in one chunk", func() {
			d := deltastream.NewDecoder(newChunkSource(body), deltastream.DefaultSentinel)

			deltas, err := drain(d)
			Expect(err).NotTo(HaveOccurred())
			Expect(deltas).To(Equal(want))
		})

		It("produces identical deltas for every chunk size", func() {
			for size := 1; size <= 17; size++ {
				var chunks []string
				for i := 0; i < len(body); i += size {
					chunks = append(chunks, body[i:min(i+size, len(body))])
				}

				d := deltastream.NewDecoder(newChunkSource(chunks...), deltastream.DefaultSentinel)
				deltas, err := drain(d)
				Expect(err).NotTo(HaveOccurred())
				Expect(deltas).To(Equal(want), "chunk size %d", size)
			}
		})

		It("produces identical deltas for a small read buffer", func() {
			d := deltastream.NewDecoder(newChunkSource(body), deltastream.DefaultSentinel,
				deltastream.WithReadSize(3))

			deltas, err := drain(d)
			Expect(err).NotTo(HaveOccurred())
			Expect(deltas).To(Equal(want))
		})

		It("reassembles a multi-byte character split across chunks", func() {
			line := envelope("€") + "\n"
			split := strings.Index(line, "€") + 1

			d := deltastream.NewDecoder(newChunkSource(line[:split], line[split:]), deltastream.DefaultSentinel)
			deltas, err := drain(d)
			Expect(err).NotTo(HaveOccurred())
			Expect(deltas).To(Equal([]string{"€"}))
		})
	})

	Context("end of stream", func() {
		It("discards an unterminated tail without error", func() {
			src := newChunkSource(envelope("done")+"\n", envelope("tail"))
			d := deltastream.NewDecoder(src, deltastream.DefaultSentinel)

			deltas, err := drain(d)
			Expect(err).NotTo(HaveOccurred())
			Expect(deltas).To(Equal([]string{"done"}))
			Expect(src.closed).To(Equal(1))
		})

		It("keeps returning io.EOF", func() {
			d := deltastream.NewDecoder(newChunkSource(), deltastream.DefaultSentinel)

			_, err := d.Next()
			Expect(err).To(MatchError(io.EOF))
			_, err = d.Next()
			Expect(err).To(MatchError(io.EOF))
		})
	})

	Context("transport failure", func() {
		It("returns decoded deltas before the failure", func() {
			boom := errors.New("connection reset")
			src := newChunkSource(envelope("a")+"\n"+envelope("b")+"\n", envelope("c"))
			src.err = boom
			d := deltastream.NewDecoder(src, deltastream.DefaultSentinel)

			deltas, err := drain(d)
			Expect(err).To(MatchError(boom))
			Expect(deltas).To(Equal([]string{"a", "b"}))
			Expect(src.closed).To(Equal(1))

			_, err = d.Next()
			Expect(err).To(MatchError(boom))
		})
	})

	Context("exceptions", func() {
		It("ends the stream at an exception after earlier deltas", func() {
			src := newChunkSource(
				envelope("a")+"\n",
				frameNoise+envelope("b")+"\n",
				exceptionFrame("throttlingException", "Too many requests, please wait before trying again.")+"\n",
				envelope("c")+"\n",
			)
			d := deltastream.NewDecoder(src, deltastream.DefaultSentinel, deltastream.WithExceptions())

			deltas, err := drain(d)
			Expect(deltas).To(Equal([]string{"a", "b"}))

			var exc *deltastream.StreamException
			Expect(errors.As(err, &exc)).To(BeTrue())
			Expect(exc.Type).To(Equal("throttlingException"))
			Expect(exc.Message).To(Equal("Too many requests, please wait before trying again."))
			Expect(src.reads).To(Equal(3))
			Expect(src.closed).To(Equal(1))

			_, err = d.Next()
			Expect(err).To(BeIdenticalTo(exc))
		})

		It("keeps deltas that precede the exception in the same frame", func() {
			src := newChunkSource(envelope("a") + exceptionFrame("modelStreamErrorException", "boom") + envelope("b") + "\n")
			d := deltastream.NewDecoder(src, deltastream.DefaultSentinel, deltastream.WithExceptions())

			deltas, err := drain(d)
			Expect(deltas).To(Equal([]string{"a"}))
			Expect(err).To(MatchError("stream modelStreamErrorException: boom"))
		})

		It("reports an exception in the unterminated tail", func() {
			src := newChunkSource(envelope("a")+"\n", exceptionFrame("internalServerException", "try again"))
			d := deltastream.NewDecoder(src, deltastream.DefaultSentinel, deltastream.WithExceptions())

			deltas, err := drain(d)
			Expect(deltas).To(Equal([]string{"a"}))
			Expect(err).To(MatchError("stream internalServerException: try again"))
			Expect(src.closed).To(Equal(1))
		})

		It("ignores exceptions without the option", func() {
			src := newChunkSource(
				envelope("a")+"\n",
				exceptionFrame("throttlingException", "slow down")+"\n",
				envelope("b")+"\n",
			)
			d := deltastream.NewDecoder(src, deltastream.DefaultSentinel)

			deltas, err := drain(d)
			Expect(err).NotTo(HaveOccurred())
			Expect(deltas).To(Equal([]string{"a", "b"}))
		})

		It("yields the exception as the last element of All", func() {
			src := newChunkSource(envelope("x")+"\n", exceptionFrame("throttlingException", "slow down")+"\n")
			d := deltastream.NewDecoder(src, deltastream.DefaultSentinel, deltastream.WithExceptions())

			var (
				got  []string
				errs []error
			)
			for text, err := range d.All() {
				if err != nil {
					errs = append(errs, err)
					continue
				}
				got = append(got, text)
			}
			Expect(got).To(Equal([]string{"x"}))
			Expect(errs).To(ConsistOf(BeAssignableToTypeOf(&deltastream.StreamException{})))
		})

		It("describes exceptions with missing parts", func() {
			Expect((&deltastream.StreamException{}).Error()).To(Equal("stream exception"))
			Expect((&deltastream.StreamException{Type: "throttlingException"}).Error()).To(Equal("stream throttlingException"))
			Expect((&deltastream.StreamException{Message: "late"}).Error()).To(Equal("stream exception: late"))
		})
	})

	Context("All", func() {
		It("iterates every delta and closes the source", func() {
			src := newChunkSource(envelope("x")+"\n", envelope("y")+"\n")
			d := deltastream.NewDecoder(src, deltastream.DefaultSentinel)

			var got []string
			for text, err := range d.All() {
				Expect(err).NotTo(HaveOccurred())
				got = append(got, text)
			}
			Expect(got).To(Equal([]string{"x", "y"}))
			Expect(src.closed).To(Equal(1))
		})

		It("closes the source when the consumer stops early", func() {
			src := newChunkSource(envelope("x")+"\n", envelope("y")+"\n", envelope("z")+"\n")
			d := deltastream.NewDecoder(src, deltastream.DefaultSentinel)

			for range d.All() {
				break
			}
			Expect(src.closed).To(Equal(1))
			Expect(src.reads).To(Equal(1))

			_, err := d.Next()
			Expect(err).To(MatchError(io.ErrClosedPipe))
		})

		It("yields a transport failure as the last element", func() {
			boom := errors.New("unexpected EOF")
			src := newChunkSource(envelope("x") + "\n")
			src.err = boom
			d := deltastream.NewDecoder(src, deltastream.DefaultSentinel)

			var errs []error
			for _, err := range d.All() {
				if err != nil {
					errs = append(errs, err)
				}
			}
			Expect(errs).To(ConsistOf(MatchError(boom)))
		})
	})

	Context("Close", func() {
		It("is idempotent", func() {
			src := newChunkSource(envelope("x") + "\n")
			d := deltastream.NewDecoder(src, deltastream.DefaultSentinel)

			Expect(d.Close()).To(Succeed())
			Expect(d.Close()).To(Succeed())
			Expect(src.closed).To(Equal(1))
		})
	})
})
