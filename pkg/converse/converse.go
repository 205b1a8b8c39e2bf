// Package converse defines the backend-neutral contract for talking to the
// Bedrock Converse API, plus helpers shared by every backend.
package converse

import (
	"context"
	"errors"
	"fmt"

	"github.com/papercomputeco/converse/pkg/llm"
)

// Client is a Bedrock Converse backend.
type Client interface {
	// Name identifies the backend ("sdk", "rest") in logs, metrics and events.
	Name() string

	// Converse runs a single non-streaming completion.
	Converse(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error)

	// ConverseStream starts a streaming completion. The returned Stream must be
	// closed by the caller.
	ConverseStream(ctx context.Context, req *llm.ChatRequest) (Stream, error)
}

// Stream is a pull-based sequence of text deltas.
// Next returns io.EOF when the completion has finished.
type Stream interface {
	Next() (string, error)
	Close() error
}

// StreamStats is implemented by streams that can report decode counters.
type StreamStats interface {
	Deltas() int
	Malformed() int
}

// UsageReporter is implemented by streams that receive token usage from the
// upstream metadata event. Usage returns nil until it has been seen.
type UsageReporter interface {
	Usage() *llm.Usage
}

// StopReasoner is implemented by streams that receive the stop reason from
// the upstream message-stop event.
type StopReasoner interface {
	StopReason() string
}

// ErrNoContent is returned when a completion carries no usable content block.
var ErrNoContent = errors.New("converse: response has no content")

// StatusError is a non-success HTTP status returned by Bedrock.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("bedrock returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("bedrock returned status %d: %s", e.StatusCode, e.Body)
}

// IsUpstream reports whether err was caused by Bedrock rejecting the request,
// as opposed to a local or network failure.
func IsUpstream(err error) bool {
	var se *StatusError
	return errors.As(err, &se)
}
