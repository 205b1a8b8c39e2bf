package eventstream

import (
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/converse/pkg/llm"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeInvocationCompleted is emitted after a Bedrock invocation finishes,
	// successfully or not.
	EventTypeInvocationCompleted = "converse.invocation.completed"
)

// InvocationCompletedEvent is a transport-neutral event payload describing one
// Bedrock invocation. It never carries prompt or completion text.
type InvocationCompletedEvent struct {
	SchemaVersion int               `json:"schema_version"`
	EventType     string            `json:"event_type"`
	EventID       string            `json:"event_id"`
	EmittedAt     time.Time         `json:"emitted_at"`
	Source        EventSource       `json:"source"`
	RequestMeta   InvocationMeta    `json:"request_meta"`
	Result        InvocationOutcome `json:"result"`
}

// EventSource identifies which backend and model served the invocation.
type EventSource struct {
	Backend string `json:"backend"`
	Model   string `json:"model"`
}

// InvocationMeta captures request lifecycle metadata for the event.
type InvocationMeta struct {
	Route       string    `json:"route,omitempty"`
	Operation   string    `json:"operation"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
	DurationMs  int64     `json:"duration_ms"`
	Streaming   bool      `json:"streaming"`
	HTTPStatus  int       `json:"http_status"`
}

// InvocationOutcome captures what came back.
type InvocationOutcome struct {
	DeltaCount     int        `json:"delta_count,omitempty"`
	MalformedCount int        `json:"malformed_count,omitempty"`
	StopReason     string     `json:"stop_reason,omitempty"`
	Usage          *llm.Usage `json:"usage,omitempty"`
	Error          string     `json:"error,omitempty"`
}

// NewInvocationCompletedEvent stamps a new event with an ID, type, schema
// version and emit time.
func NewInvocationCompletedEvent(source EventSource, meta InvocationMeta, result InvocationOutcome) *InvocationCompletedEvent {
	return &InvocationCompletedEvent{
		SchemaVersion: SchemaVersionV1,
		EventType:     EventTypeInvocationCompleted,
		EventID:       uuid.NewString(),
		EmittedAt:     time.Now().UTC(),
		Source:        source,
		RequestMeta:   meta,
		Result:        result,
	}
}
