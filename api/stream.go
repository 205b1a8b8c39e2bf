package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/converse/pkg/converse"
	"github.com/papercomputeco/converse/pkg/eventstream"
	"github.com/papercomputeco/converse/pkg/llm"
	"github.com/papercomputeco/converse/pkg/metrics"
	"github.com/papercomputeco/converse/pkg/sse"
	"github.com/papercomputeco/converse/pkg/tools"
)

const mimeEventStream = "text/event-stream"

// handleConverseStream streams an SDK completion. ?prompt= overrides the
// default prompt.
func (s *Server) handleConverseStream(c *fiber.Ctx) error {
	return s.stream(c, s.backends.SDK, s.request(s.queryPrompt(c, tools.StreamPrompt)))
}

// handleGenerateStream streams a REST completion decoded from the raw
// event-stream body.
func (s *Server) handleGenerateStream(c *fiber.Ctx) error {
	prompt, status, msg := parsePrompt(c)
	if status != 0 {
		return c.Status(status).JSON(llm.ErrorResponse{Error: msg})
	}
	return s.stream(c, s.backends.REST, s.request(prompt))
}

// stream starts the completion and hands its deltas to the client as they
// are decoded. Upstream failures before the first delta are reported as a
// normal JSON Result; later failures end the body early.
func (s *Server) stream(c *fiber.Ctx, backend converse.Client, req *llm.ChatRequest) error {
	inv := s.begin(c, backend, req, opStream, true)
	if backend == nil {
		return s.fail(c, inv, errNoBackend)
	}

	// fasthttp recycles the request context once the handler returns, but the
	// upstream connection has to stay open until the stream is drained.
	ctx, cancel := context.WithCancel(context.Background())
	stream, err := backend.ConverseStream(ctx, req)
	if err != nil {
		cancel()
		return s.fail(c, inv, err)
	}

	asSSE := wantsSSE(c)
	if asSSE {
		c.Set(fiber.HeaderContentType, mimeEventStream)
		c.Set(fiber.HeaderCacheControl, "no-cache")
	} else {
		c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)
	}
	c.Set(fiber.HeaderXContentTypeOptions, "nosniff")

	// io.Pipe rather than SetBodyStreamWriter: pw.Write blocks until fasthttp
	// has flushed the previous chunk to the socket, so every delta goes out as
	// soon as it is decoded.
	pr, pw := io.Pipe()
	metrics.StreamingConnections.Inc()
	go s.pump(stream, pw, cancel, asSSE, inv)

	// Unknown size (-1) selects chunked transfer encoding.
	c.Context().Response.SetBodyStream(pr, -1)

	return nil
}

// pump forwards deltas into the pipe until the stream ends, the upstream
// fails or the client goes away. When the client goes away fasthttp closes
// the pipe reader, the next write fails and the stream (and with it the
// upstream connection) is closed.
func (s *Server) pump(stream converse.Stream, pw *io.PipeWriter, cancel context.CancelFunc, asSSE bool, inv *invocation) {
	defer metrics.StreamingConnections.Dec()
	defer cancel()

	var w io.Writer = pw
	if asSSE {
		w = &sseWriter{w: pw}
	}

	err := converse.Forward(stream, w, nil)

	outcome := streamOutcome(stream)
	label := "ok"

	switch {
	case err == nil:
		if asSSE {
			_, _ = sse.Event{Type: "done", Data: "{}"}.WriteTo(pw)
		}
		_ = pw.Close()

	case errors.Is(err, io.ErrClosedPipe):
		label = "client_closed"
		outcome.Error = "client closed connection"
		s.logger.Debug("client closed stream early",
			"route", inv.route,
			"backend", inv.backend,
			"deltas", outcome.DeltaCount,
		)
		_ = pw.Close()

	default:
		label = "error"
		outcome.Error = err.Error()
		s.logger.Error("stream failed",
			"route", inv.route,
			"backend", inv.backend,
			"deltas", outcome.DeltaCount,
			"error", err,
		)
		if asSSE {
			msg, _ := json.Marshal(llm.ErrorResponse{Error: err.Error()})
			_, _ = sse.Event{Type: "error", Data: string(msg)}.WriteTo(pw)
			_ = pw.Close()
		} else {
			// Aborts the chunked body so the client sees a truncated transfer
			// rather than a clean end.
			_ = pw.CloseWithError(err)
		}
	}

	metrics.StreamDuration.WithLabelValues(inv.backend, label).Observe(time.Since(inv.started).Seconds())
	metrics.StreamDeltasTotal.WithLabelValues(inv.backend).Add(float64(outcome.DeltaCount))
	if outcome.MalformedCount > 0 {
		metrics.MalformedEnvelopesTotal.WithLabelValues(inv.backend).Add(float64(outcome.MalformedCount))
	}

	s.finish(inv, fiber.StatusOK, outcome)
}

// streamOutcome collects whatever counters the stream implementation exposes.
func streamOutcome(stream converse.Stream) eventstream.InvocationOutcome {
	var outcome eventstream.InvocationOutcome
	if st, ok := stream.(converse.StreamStats); ok {
		outcome.DeltaCount = st.Deltas()
		outcome.MalformedCount = st.Malformed()
	}
	if ur, ok := stream.(converse.UsageReporter); ok {
		outcome.Usage = ur.Usage()
	}
	if sr, ok := stream.(converse.StopReasoner); ok {
		outcome.StopReason = sr.StopReason()
	}
	return outcome
}

func wantsSSE(c *fiber.Ctx) bool {
	return c.Query("format") == "sse" || strings.Contains(c.Get(fiber.HeaderAccept), mimeEventStream)
}

// sseWriter frames every Write as one SSE data event carrying a StreamEvent.
type sseWriter struct {
	w io.Writer
}

func (s *sseWriter) Write(p []byte) (int, error) {
	data, err := json.Marshal(StreamEvent{Text: string(p)})
	if err != nil {
		return 0, err
	}
	if _, err := (sse.Event{Data: string(data)}).WriteTo(s.w); err != nil {
		return 0, err
	}
	return len(p), nil
}
