package streaming

import "context"

// Event types emitted during tree execution.
const (
	EventNodeTransition = "node.transition"
	EventTreeStarted    = "tree.started"
	EventTreeFinished   = "tree.finished"
	EventTreeHalted     = "tree.halted"
)

// StreamEvent is a real-time event emitted while a tree is ticking.
type StreamEvent struct {
	TreeUID   string `json:"tree_uid"`
	NodeUID   uint16 `json:"node_uid,omitempty"`
	NodeName  string `json:"node_name,omitempty"`
	EventType string `json:"event_type"`
	Payload   any    `json:"payload,omitempty"`
}

// EventFilter specifies which events a subscriber wants to receive.
type EventFilter struct {
	TreeUID    string   `json:"tree_uid,omitempty"`
	EventTypes []string `json:"event_types,omitempty"`
}

// EventHub provides pub/sub for real-time tree execution events.
type EventHub interface {
	Publish(ctx context.Context, event StreamEvent) error
	Subscribe(ctx context.Context, filter EventFilter) (<-chan StreamEvent, func(), error)
}
