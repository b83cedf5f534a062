package schema

// Status is the result of ticking a node. It is a closed enumeration:
// ordering is not meaningful, only equality.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

// IsTerminal reports whether the status ends an evaluation pass
// (success or failure).
func (s Status) IsTerminal() bool {
	return s == StatusSuccess || s == StatusFailure
}

// IsValid reports whether s is one of the four known statuses.
func (s Status) IsValid() bool {
	switch s {
	case StatusIdle, StatusRunning, StatusSuccess, StatusFailure:
		return true
	}
	return false
}

// Event type constants for the transition log and live streaming.
const (
	EventStatusChanged = "status_changed"
	EventTreeTicked    = "tree_ticked"
	EventTreeHalted    = "tree_halted"
)
