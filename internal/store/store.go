package store

import "context"

// Store defines the persistence layer contract.
// All implementations must be safe for concurrent use.
type Store interface {
	// Trees
	RegisterTree(ctx context.Context, rec *TreeRecord) error
	GetTree(ctx context.Context, uid string) (*TreeRecord, error)
	ListTrees(ctx context.Context) ([]*TreeRecord, error)
	DeleteTree(ctx context.Context, uid string) error

	// Transition log (append-only)
	AppendTransition(ctx context.Context, rec *TransitionRecord) error
	Transitions(ctx context.Context, treeUID string, since int64) ([]*TransitionRecord, error)
	TransitionsByNode(ctx context.Context, treeUID string, nodeUID uint16, limit int) ([]*TransitionRecord, error)

	// Maintenance
	Migrate(ctx context.Context) error
	Vacuum(ctx context.Context) error

	// Lifecycle
	Close() error
}
