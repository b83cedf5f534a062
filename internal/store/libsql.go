package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/rendis/arbor/pkg/schema"
)

// LibSQLStore implements the Store interface using libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore opens a libSQL database at the given path and returns a Store.
// The path should be a file URI, e.g. "file:/path/to/db.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Apply connection-level PRAGMAs. Some PRAGMAs return rows so we use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA cache_size=-20000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

// DB returns the underlying *sql.DB for advanced usage (e.g. transition log).
func (s *LibSQLStore) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate runs all pending database migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db)
}

// Vacuum runs VACUUM on the database.
func (s *LibSQLStore) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// --- Trees ---

// RegisterTree stores the identity of a built tree. Registering the same
// UID again refreshes name, source and node count.
func (s *LibSQLStore) RegisterTree(ctx context.Context, rec *TreeRecord) error {
	if rec.UID == "" {
		return schema.NewError(schema.ErrCodeValidation, "tree record has no UID")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO trees (uid, name, source, node_count, registered_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(uid) DO UPDATE SET name=excluded.name, source=excluded.source, node_count=excluded.node_count`,
		rec.UID, rec.Name, nullStr(rec.Source), rec.NodeCount, timeOrNow(rec.RegisteredAt),
	)
	return err
}

func (s *LibSQLStore) GetTree(ctx context.Context, uid string) (*TreeRecord, error) {
	rec := &TreeRecord{}
	var source sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT uid, name, source, node_count, registered_at FROM trees WHERE uid = ?`, uid,
	).Scan(&rec.UID, &rec.Name, &source, &rec.NodeCount, &rec.RegisteredAt)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("tree", uid)
	}
	if err != nil {
		return nil, err
	}
	rec.Source = source.String
	return rec, nil
}

func (s *LibSQLStore) ListTrees(ctx context.Context) ([]*TreeRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT uid, name, source, node_count, registered_at FROM trees ORDER BY registered_at DESC, name`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trees []*TreeRecord
	for rows.Next() {
		rec := &TreeRecord{}
		var source sql.NullString
		if err := rows.Scan(&rec.UID, &rec.Name, &source, &rec.NodeCount, &rec.RegisteredAt); err != nil {
			return nil, err
		}
		rec.Source = source.String
		trees = append(trees, rec)
	}
	return trees, rows.Err()
}

// DeleteTree removes a tree and, via the foreign key cascade, its
// transition log.
func (s *LibSQLStore) DeleteTree(ctx context.Context, uid string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM trees WHERE uid = ?`, uid)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "tree", uid)
}

// --- Transitions ---

// AppendTransition appends a transition with a monotonically increasing
// per-tree sequence. The tree must have been registered first.
func (s *LibSQLStore) AppendTransition(ctx context.Context, rec *TransitionRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	// Get next sequence number for this tree
	var seq int64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence), 0) + 1 FROM transitions WHERE tree_uid = ?`, rec.TreeUID,
	).Scan(&seq)
	if err != nil {
		return fmt.Errorf("get next sequence: %w", err)
	}
	rec.Sequence = seq

	ts := timeOrNow(rec.Timestamp)

	_, err = tx.ExecContext(ctx,
		`INSERT INTO transitions (tree_uid, sequence, node_uid, node_name, node_kind, prev_status, status, cause, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.TreeUID, seq, rec.NodeUID, rec.NodeName, rec.NodeKind,
		string(rec.Prev), string(rec.Status), rec.Cause, ts,
	)
	if err != nil {
		return fmt.Errorf("insert transition: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transition: %w", err)
	}
	return nil
}

// Transitions returns transitions for a tree with sequence > since,
// ordered by sequence ASC.
func (s *LibSQLStore) Transitions(ctx context.Context, treeUID string, since int64) ([]*TransitionRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, tree_uid, sequence, node_uid, node_name, node_kind, prev_status, status, cause, timestamp
		 FROM transitions WHERE tree_uid = ? AND sequence > ? ORDER BY sequence ASC`,
		treeUID, since,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTransitions(rows)
}

// TransitionsByNode returns the most recent transitions of one node,
// newest first.
func (s *LibSQLStore) TransitionsByNode(ctx context.Context, treeUID string, nodeUID uint16, limit int) ([]*TransitionRecord, error) {
	query := `SELECT id, tree_uid, sequence, node_uid, node_name, node_kind, prev_status, status, cause, timestamp
		 FROM transitions WHERE tree_uid = ? AND node_uid = ? ORDER BY sequence DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query, treeUID, nodeUID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTransitions(rows)
}

func scanTransitions(rows *sql.Rows) ([]*TransitionRecord, error) {
	var recs []*TransitionRecord
	for rows.Next() {
		rec := &TransitionRecord{}
		var prev, status string
		if err := rows.Scan(&rec.ID, &rec.TreeUID, &rec.Sequence, &rec.NodeUID, &rec.NodeName,
			&rec.NodeKind, &prev, &status, &rec.Cause, &rec.Timestamp); err != nil {
			return nil, err
		}
		rec.Prev = schema.Status(prev)
		rec.Status = schema.Status(status)
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// --- Helpers ---

func storeNotFound(resource, id string) *schema.Error {
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s %q not found", resource, id)
}

func checkRowsAffected(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storeNotFound(resource, id)
	}
	return nil
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}
