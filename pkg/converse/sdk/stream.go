package sdk

import (
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/papercomputeco/converse/pkg/llm"
)

// EventReader is the event stream returned by ConverseStreamOutput.GetStream.
type EventReader interface {
	Events() <-chan types.ConverseStreamOutput
	Close() error
	Err() error
}

// Stream adapts a bedrockruntime event stream to converse.Stream.
// Only text deltas are surfaced; stop and metadata events are recorded.
type Stream struct {
	events EventReader

	deltas     int
	stopReason string
	usage      *llm.Usage

	err    error
	closed bool
}

// NewStream wraps an event reader.
func NewStream(events EventReader) *Stream {
	return &Stream{events: events}
}

func (s *Stream) Next() (string, error) {
	if s.err != nil {
		return "", s.err
	}

	for event := range s.events.Events() {
		switch v := event.(type) {
		case *types.ConverseStreamOutputMemberContentBlockDelta:
			if text, ok := v.Value.Delta.(*types.ContentBlockDeltaMemberText); ok && text.Value != "" {
				s.deltas++
				return text.Value, nil
			}
		case *types.ConverseStreamOutputMemberMessageStop:
			s.stopReason = string(v.Value.StopReason)
		case *types.ConverseStreamOutputMemberMetadata:
			s.usage = usage(v.Value.Usage)
			if s.usage != nil && v.Value.Metrics != nil {
				s.usage.LatencyMs = aws.ToInt64(v.Value.Metrics.LatencyMs)
			}
		}
	}

	s.err = s.events.Err()
	if s.err == nil {
		s.err = io.EOF
	}
	_ = s.Close()
	return "", s.err
}

// Close closes the event stream and the connection under it. It is safe to
// call more than once.
func (s *Stream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.err == nil {
		s.err = io.ErrClosedPipe
	}
	return s.events.Close()
}

func (s *Stream) Deltas() int { return s.deltas }

// Malformed is always zero: the SDK rejects malformed frames itself.
func (s *Stream) Malformed() int { return 0 }

// Usage returns token usage from the metadata event, once seen.
func (s *Stream) Usage() *llm.Usage { return s.usage }

// StopReason returns the reason from the message stop event, once seen.
func (s *Stream) StopReason() string { return s.stopReason }
