package timeline

import (
	"time"

	"imoflow/client"
)

const (
	// EventStatusChange records a transition between two different stages.
	EventStatusChange = "STATUS_CHANGE"
	// EventPipelineActivity records an in-place update with no stage change.
	EventPipelineActivity = "PIPELINE_ACTIVITY"
)

// Event is an immutable entry in a client's activity timeline. Rows are never
// mutated or deleted; seq increases strictly per client.
type Event struct {
	ID         int64
	ClientID   string
	Seq        int
	EventType  string
	FromStatus client.Status
	ToStatus   client.Status
	ActorID    *string
	Payload    map[string]any
	CreatedAt  time.Time
}
