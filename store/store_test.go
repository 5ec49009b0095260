package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomworks/loom/dependency"
	"github.com/loomworks/loom/element"
)

// conformance runs the shared Store contract against an implementation.
func conformance(t *testing.T, s Store) {
	ctx := context.Background()

	t.Run("tasks", func(t *testing.T) {
		task := element.NewTask("index the corpus", "entity-alice")
		task.Fields = map[string]string{"size": "large"}
		require.NoError(t, s.PutTask(ctx, task))

		got, err := s.GetTask(ctx, task.ID)
		require.NoError(t, err)
		assert.Equal(t, task.Title, got.Title)
		assert.Equal(t, element.TaskStatusOpen, got.Status)
		assert.Equal(t, "large", got.Fields["size"])

		el, err := s.GetElement(ctx, task.ID)
		require.NoError(t, err)
		assert.Equal(t, element.TypeTask, el.Type)
		assert.False(t, el.Deleted())

		_, err = s.GetTask(ctx, "task-missing")
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("plans_and_workflows", func(t *testing.T) {
		plan := element.NewPlan("q3 launch", "entity-alice")
		require.NoError(t, s.PutPlan(ctx, plan))
		gotPlan, err := s.GetPlan(ctx, plan.ID)
		require.NoError(t, err)
		assert.Equal(t, element.PlanStatusDraft, gotPlan.Status)

		wf := element.NewWorkflow("release train", "entity-alice", true)
		wf.Variables = map[string]string{"env": "prod"}
		require.NoError(t, s.PutWorkflow(ctx, wf))
		gotWF, err := s.GetWorkflow(ctx, wf.ID)
		require.NoError(t, err)
		assert.True(t, gotWF.Ephemeral)
		assert.Equal(t, "prod", gotWF.Variables["env"])
	})

	t.Run("entities", func(t *testing.T) {
		boss := element.NewEntity("ada", element.EntityKindHuman, "")
		require.NoError(t, s.PutEntity(ctx, boss))
		worker := element.NewEntity("bot-7", element.EntityKindAgent, "")
		worker.ReportsTo = boss.ID
		require.NoError(t, s.PutEntity(ctx, worker))

		got, err := s.GetEntity(ctx, worker.ID)
		require.NoError(t, err)
		assert.Equal(t, boss.ID, got.ReportsTo)
	})

	t.Run("soft_delete", func(t *testing.T) {
		task := element.NewTask("doomed", "")
		require.NoError(t, s.PutTask(ctx, task))
		require.NoError(t, s.SoftDelete(ctx, task.ID, time.Now()))

		// Still addressable, but marked.
		got, err := s.GetTask(ctx, task.ID)
		require.NoError(t, err)
		assert.True(t, got.Deleted())

		el, err := s.GetElement(ctx, task.ID)
		require.NoError(t, err)
		assert.True(t, el.Deleted())

		require.ErrorIs(t, s.SoftDelete(ctx, "task-missing", time.Now()), ErrNotFound)
	})

	t.Run("hard_delete", func(t *testing.T) {
		task := element.NewTask("burned", "")
		require.NoError(t, s.PutTask(ctx, task))
		require.NoError(t, s.Delete(ctx, task.ID))

		_, err := s.GetTask(ctx, task.ID)
		require.ErrorIs(t, err, ErrNotFound)
		require.ErrorIs(t, s.Delete(ctx, task.ID), ErrNotFound)
	})

	t.Run("edges", func(t *testing.T) {
		a := element.NewTask("a", "")
		b := element.NewTask("b", "")
		require.NoError(t, s.PutTask(ctx, a))
		require.NoError(t, s.PutTask(ctx, b))

		dep := dependency.Dependency{
			SourceID:  a.ID,
			TargetID:  b.ID,
			Type:      dependency.TypeBlocks,
			Actor:     "entity-alice",
			CreatedAt: time.Now().UTC(),
		}
		require.NoError(t, s.InsertEdge(ctx, dep))

		edges, err := s.ListEdges(ctx)
		require.NoError(t, err)
		require.Len(t, edges, 1)
		assert.Equal(t, a.ID, edges[0].SourceID)

		// Removal tombstones: gone from listing, NotFound on re-remove.
		require.NoError(t, s.RemoveEdge(ctx, a.ID, b.ID, dependency.TypeBlocks))
		edges, err = s.ListEdges(ctx)
		require.NoError(t, err)
		assert.Empty(t, edges)
		require.ErrorIs(t, s.RemoveEdge(ctx, a.ID, b.ID, dependency.TypeBlocks), ErrNotFound)

		// Reinsertion revives the triple.
		require.NoError(t, s.InsertEdge(ctx, dep))
		edges, err = s.ListEdges(ctx)
		require.NoError(t, err)
		assert.Len(t, edges, 1)
	})
}

func TestMemory(t *testing.T) {
	conformance(t, NewMemory())
}

func TestSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loom.db")
	s, err := NewSQLite(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	conformance(t, s)
}

func TestMemory_ListTasksIsolation(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	task := element.NewTask("shared", "")
	require.NoError(t, m.PutTask(ctx, task))

	tasks, err := m.ListTasks(ctx)
	require.NoError(t, err)
	require.Len(t, tasks, 1)

	// Mutating a returned task must not leak into the store.
	tasks[0].Title = "mutated"
	got, err := m.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "shared", got.Title)
}

func TestEdgeKey(t *testing.T) {
	key := EdgeKey("task-1", "plan-2", dependency.TypeParentChild)
	assert.Equal(t, "task-1.parent-child.plan-2", key)
}
