package deltastream

import "fmt"

// MalformedEnvelopeError describes an envelope whose payload could not be
// parsed as JSON. It is never returned by Next: decoding continues with the
// next envelope and the error is only reported through WithDiagnostics.
type MalformedEnvelopeError struct {
	Payload string
	Err     error
}

func (e *MalformedEnvelopeError) Error() string {
	return fmt.Sprintf("malformed envelope payload (%d bytes): %v", len(e.Payload), e.Err)
}

func (e *MalformedEnvelopeError) Unwrap() error {
	return e.Err
}

// StreamException is an exception event delivered inside a successful
// converse-stream response. Type is the exception name, e.g.
// "throttlingException" or "modelStreamErrorException", and is empty when
// the header could not be recovered from the frame.
type StreamException struct {
	Type    string
	Message string
}

func (e *StreamException) Error() string {
	name := e.Type
	if name == "" {
		name = "exception"
	}
	if e.Message == "" {
		return "stream " + name
	}
	return fmt.Sprintf("stream %s: %s", name, e.Message)
}
