package api

import (
	"time"

	"github.com/papercomputeco/converse/api/worker"
	"github.com/papercomputeco/converse/pkg/eventstream"
	"github.com/papercomputeco/converse/pkg/metrics"
)

// finish records token usage and hands the invocation event to the worker
// pool. It never blocks on the publisher.
func (s *Server) finish(inv *invocation, status int, outcome eventstream.InvocationOutcome) {
	if inv.backend != "" {
		metrics.ObserveUsage(inv.backend, outcome.Usage)
	}

	if s.pool == nil {
		return
	}

	completed := time.Now()
	event := eventstream.NewInvocationCompletedEvent(
		eventstream.EventSource{
			Backend: inv.backend,
			Model:   inv.model,
		},
		eventstream.InvocationMeta{
			Route:       inv.route,
			Operation:   inv.operation,
			StartedAt:   inv.started.UTC(),
			CompletedAt: completed.UTC(),
			DurationMs:  completed.Sub(inv.started).Milliseconds(),
			Streaming:   inv.streaming,
			HTTPStatus:  status,
		},
		outcome,
	)

	s.pool.Enqueue(worker.Job{Event: event})
}
