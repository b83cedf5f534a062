package store

import (
	"time"

	"github.com/rendis/arbor/pkg/schema"
)

// TreeRecord is the persisted identity of a built tree instance.
type TreeRecord struct {
	UID          string    `json:"uid"`
	Name         string    `json:"name"`
	Source       string    `json:"source,omitempty"`
	NodeCount    int       `json:"node_count"`
	RegisteredAt time.Time `json:"registered_at"`
}

// TransitionRecord is one appended node transition of a tree run.
// Sequence is monotonic per tree, assigned by the store on append.
type TransitionRecord struct {
	ID        int64         `json:"id"`
	TreeUID   string        `json:"tree_uid"`
	Sequence  int64         `json:"sequence"`
	NodeUID   uint16        `json:"node_uid"`
	NodeName  string        `json:"node_name"`
	NodeKind  string        `json:"node_kind"`
	Prev      schema.Status `json:"prev_status"`
	Status    schema.Status `json:"status"`
	Cause     string        `json:"cause"`
	Timestamp time.Time     `json:"timestamp"`
}
