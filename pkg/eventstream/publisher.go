package eventstream

import "context"

// Publisher publishes invocation events to an event stream backend.
type Publisher interface {
	PublishInvocation(ctx context.Context, event *InvocationCompletedEvent) error
	Close() error
}
