package eventstream

import "errors"

// ErrNilInvocationEvent indicates a nil invocation event payload was provided to a publisher.
var ErrNilInvocationEvent = errors.New("nil invocation event")
