package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/loomworks/loom/dependency"
	"github.com/loomworks/loom/element"
)

// SQLite is a Store backed by a local SQLite database. Elements are
// stored as JSON payloads alongside the columns the store queries on;
// edges carry a deleted_at tombstone instead of being dropped.
type SQLite struct {
	db *sql.DB
}

var _ Store = (*SQLite)(nil)

// NewSQLite opens (or creates) the database at the given path.
func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// WAL mode for better concurrent access.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	s := &SQLite{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS elements (
		id          TEXT PRIMARY KEY,
		type        TEXT NOT NULL,
		payload     TEXT NOT NULL,
		deleted_at  DATETIME
	);
	CREATE INDEX IF NOT EXISTS idx_elements_type ON elements(type);

	CREATE TABLE IF NOT EXISTS edges (
		source_id   TEXT NOT NULL,
		target_id   TEXT NOT NULL,
		type        TEXT NOT NULL,
		payload     TEXT NOT NULL,
		deleted_at  DATETIME,
		PRIMARY KEY (source_id, target_id, type)
	);
	CREATE INDEX IF NOT EXISTS idx_edges_target ON edges(target_id);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

func (s *SQLite) putElement(ctx context.Context, id string, typ element.Type, deletedAt *time.Time, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal element: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO elements (id, type, payload, deleted_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET payload=excluded.payload, deleted_at=excluded.deleted_at`,
		id, string(typ), string(data), deletedAt)
	if err != nil {
		return fmt.Errorf("store element: %w", err)
	}
	return nil
}

// getPayload loads an element row and unmarshals it into dst, which
// must embed element.Element so the deleted_at column can be overlaid.
func (s *SQLite) getPayload(ctx context.Context, id string, typ element.Type, dst any, header *element.Element) error {
	var payload string
	var deletedAt sql.NullTime
	query := `SELECT payload, deleted_at FROM elements WHERE id = ?`
	args := []any{id}
	if typ != "" {
		query += ` AND type = ?`
		args = append(args, string(typ))
	}
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&payload, &deletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("get element: %w", err)
	}
	if err := json.Unmarshal([]byte(payload), dst); err != nil {
		return fmt.Errorf("unmarshal element: %w", err)
	}
	if deletedAt.Valid {
		t := deletedAt.Time.UTC()
		header.DeletedAt = &t
	}
	return nil
}

// GetElement returns the envelope of any stored element.
func (s *SQLite) GetElement(ctx context.Context, id string) (*element.Element, error) {
	var el element.Element
	if err := s.getPayload(ctx, id, "", &el, &el); err != nil {
		return nil, err
	}
	return &el, nil
}

// PutTask inserts or replaces a task.
func (s *SQLite) PutTask(ctx context.Context, task *element.Task) error {
	return s.putElement(ctx, task.ID, element.TypeTask, task.DeletedAt, task)
}

// GetTask returns a task by ID.
func (s *SQLite) GetTask(ctx context.Context, id string) (*element.Task, error) {
	var task element.Task
	if err := s.getPayload(ctx, id, element.TypeTask, &task, &task.Element); err != nil {
		return nil, err
	}
	return &task, nil
}

// ListTasks returns all tasks, soft-deleted ones included.
func (s *SQLite) ListTasks(ctx context.Context) ([]*element.Task, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload, deleted_at FROM elements WHERE type = ?`, string(element.TypeTask))
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var out []*element.Task
	for rows.Next() {
		var payload string
		var deletedAt sql.NullTime
		if err := rows.Scan(&payload, &deletedAt); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		var task element.Task
		if err := json.Unmarshal([]byte(payload), &task); err != nil {
			continue // skip rows that fail to load
		}
		if deletedAt.Valid {
			t := deletedAt.Time.UTC()
			task.DeletedAt = &t
		}
		out = append(out, &task)
	}
	return out, rows.Err()
}

// PutPlan inserts or replaces a plan.
func (s *SQLite) PutPlan(ctx context.Context, plan *element.Plan) error {
	return s.putElement(ctx, plan.ID, element.TypePlan, plan.DeletedAt, plan)
}

// GetPlan returns a plan by ID.
func (s *SQLite) GetPlan(ctx context.Context, id string) (*element.Plan, error) {
	var plan element.Plan
	if err := s.getPayload(ctx, id, element.TypePlan, &plan, &plan.Element); err != nil {
		return nil, err
	}
	return &plan, nil
}

// PutWorkflow inserts or replaces a workflow.
func (s *SQLite) PutWorkflow(ctx context.Context, workflow *element.Workflow) error {
	return s.putElement(ctx, workflow.ID, element.TypeWorkflow, workflow.DeletedAt, workflow)
}

// GetWorkflow returns a workflow by ID.
func (s *SQLite) GetWorkflow(ctx context.Context, id string) (*element.Workflow, error) {
	var workflow element.Workflow
	if err := s.getPayload(ctx, id, element.TypeWorkflow, &workflow, &workflow.Element); err != nil {
		return nil, err
	}
	return &workflow, nil
}

// PutEntity inserts or replaces an entity.
func (s *SQLite) PutEntity(ctx context.Context, entity *element.Entity) error {
	return s.putElement(ctx, entity.ID, element.TypeEntity, entity.DeletedAt, entity)
}

// GetEntity returns an entity by ID.
func (s *SQLite) GetEntity(ctx context.Context, id string) (*element.Entity, error) {
	var entity element.Entity
	if err := s.getPayload(ctx, id, element.TypeEntity, &entity, &entity.Element); err != nil {
		return nil, err
	}
	return &entity, nil
}

// SoftDelete marks any element deleted.
func (s *SQLite) SoftDelete(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE elements SET deleted_at = ? WHERE id = ?`, at.UTC(), id)
	if err != nil {
		return fmt.Errorf("soft delete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("soft delete: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// Delete removes the element row entirely.
func (s *SQLite) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM elements WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// InsertEdge stores a live edge, reviving any tombstone for the triple.
func (s *SQLite) InsertEdge(ctx context.Context, dep dependency.Dependency) error {
	data, err := json.Marshal(dep)
	if err != nil {
		return fmt.Errorf("marshal edge: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO edges (source_id, target_id, type, payload, deleted_at)
		VALUES (?, ?, ?, ?, NULL)
		ON CONFLICT(source_id, target_id, type)
		DO UPDATE SET payload=excluded.payload, deleted_at=NULL`,
		dep.SourceID, dep.TargetID, string(dep.Type), string(data))
	if err != nil {
		return fmt.Errorf("store edge: %w", err)
	}
	return nil
}

// RemoveEdge tombstones the edge for the exact triple.
func (s *SQLite) RemoveEdge(ctx context.Context, sourceID, targetID string, typ dependency.Type) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE edges SET deleted_at = ?
		WHERE source_id = ? AND target_id = ? AND type = ? AND deleted_at IS NULL`,
		time.Now().UTC(), sourceID, targetID, string(typ))
	if err != nil {
		return fmt.Errorf("remove edge: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("remove edge: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: edge %s -> %s (%s)", ErrNotFound, sourceID, targetID, typ)
	}
	return nil
}

// ListEdges returns all live edges.
func (s *SQLite) ListEdges(ctx context.Context) ([]dependency.Dependency, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM edges WHERE deleted_at IS NULL`)
	if err != nil {
		return nil, fmt.Errorf("list edges: %w", err)
	}
	defer rows.Close()

	var out []dependency.Dependency
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan edge: %w", err)
		}
		var dep dependency.Dependency
		if err := json.Unmarshal([]byte(payload), &dep); err != nil {
			continue
		}
		out = append(out, dep)
	}
	return out, rows.Err()
}
