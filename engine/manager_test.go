package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomworks/loom/audit"
	"github.com/loomworks/loom/dependency"
	"github.com/loomworks/loom/derive"
	"github.com/loomworks/loom/element"
	"github.com/loomworks/loom/playbook"
	"github.com/loomworks/loom/pour"
	"github.com/loomworks/loom/store"
)

type fixture struct {
	store   *store.Memory
	graph   *dependency.Graph
	log     *audit.Log
	manager *Manager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mem := store.NewMemory()
	log := audit.NewLog()
	graph := dependency.New(mem, mem, log, nil)
	calc := derive.New(mem, mem, mem, graph, nil)
	return &fixture{
		store:   mem,
		graph:   graph,
		log:     log,
		manager: New(mem, graph, calc, log, nil),
	}
}

func TestCreatePlan(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	plan, tasks, err := f.manager.CreatePlan(ctx, "Q3 migration", "alice", []TaskSpec{
		{Title: "inventory schemas"},
		{Title: "write migration", Tags: []string{"db"}},
	})
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, element.PlanStatusDraft, plan.Status)
	assert.True(t, tasks[1].HasTag("db"))

	members := f.graph.GetIncoming(plan.ID, dependency.TypeParentChild)
	assert.Len(t, members, 2)
}

func TestCreatePlanRequiresInitialTask(t *testing.T) {
	f := newFixture(t)
	_, _, err := f.manager.CreatePlan(context.Background(), "empty", "alice", nil)
	require.ErrorIs(t, err, ErrInitialTaskRequired)
}

func TestAddTaskUnknownContainer(t *testing.T) {
	f := newFixture(t)
	_, err := f.manager.AddTask(context.Background(), "plan-missing", TaskSpec{Title: "x"}, "alice")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestRemoveTask(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	plan, tasks, err := f.manager.CreatePlan(ctx, "plan", "alice", []TaskSpec{
		{Title: "first"}, {Title: "second"},
	})
	require.NoError(t, err)

	require.NoError(t, f.manager.RemoveTask(ctx, plan.ID, tasks[0].ID, "alice"))

	removed, err := f.store.GetTask(ctx, tasks[0].ID)
	require.NoError(t, err)
	assert.True(t, removed.Deleted())

	// One live task left: it must stay.
	err = f.manager.RemoveTask(ctx, plan.ID, tasks[1].ID, "alice")
	require.ErrorIs(t, err, ErrLastTask)
}

func TestSetTaskStatusInvalidTransition(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, tasks, err := f.manager.CreatePlan(ctx, "plan", "alice", []TaskSpec{{Title: "t"}})
	require.NoError(t, err)
	task := tasks[0]

	require.NoError(t, f.manager.SetTaskStatus(ctx, task.ID, element.TaskStatusCancelled, "alice"))
	err = f.manager.SetTaskStatus(ctx, task.ID, element.TaskStatusOpen, "alice")
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestSetTaskStatusEmitsAutoUnblocked(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, tasks, err := f.manager.CreatePlan(ctx, "plan", "alice", []TaskSpec{
		{Title: "t1"}, {Title: "t2"},
	})
	require.NoError(t, err)
	t1, t2 := tasks[0], tasks[1]

	_, err = f.graph.Add(ctx, t1.ID, t2.ID, dependency.TypeBlocks, nil, "alice")
	require.NoError(t, err)

	require.NoError(t, f.manager.SetTaskStatus(ctx, t1.ID, element.TaskStatusClosed, "alice"))

	unblocked := f.log.ByKind(audit.KindAutoUnblocked)
	require.Len(t, unblocked, 1)
	assert.Equal(t, t2.ID, unblocked[0].ElementID)
	assert.Equal(t, t1.ID, unblocked[0].Detail["cause"])

	// Reopening the blocker re-blocks the dependent.
	require.NoError(t, f.manager.SetTaskStatus(ctx, t1.ID, element.TaskStatusOpen, "alice"))
	blocked := f.log.ByKind(audit.KindAutoBlocked)
	require.Len(t, blocked, 1)
	assert.Equal(t, t2.ID, blocked[0].ElementID)
}

func pourRelease(t *testing.T, f *fixture, vars map[string]string) *pour.Result {
	t.Helper()
	pb, err := playbook.Parse([]byte(`
id: release
name: Release
steps:
  - id: cut
    title: Cut ${var.service}
  - id: deploy
    title: Deploy ${var.service}
    after: [cut]
`))
	require.NoError(t, err)

	result, err := f.manager.PourPlaybook(context.Background(), pb, vars, "alice", pour.DefaultOptions())
	require.NoError(t, err)
	return result
}

func TestPourPlaybookCommits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result := pourRelease(t, f, map[string]string{"service": "billing"})

	stored, err := f.store.GetWorkflow(ctx, result.Workflow.ID)
	require.NoError(t, err)
	assert.True(t, stored.Ephemeral)
	assert.Equal(t, "release", stored.PlaybookID)

	members := f.graph.GetIncoming(result.Workflow.ID, dependency.TypeParentChild)
	assert.Len(t, members, 2)

	blocks := f.graph.GetIncoming(result.Tasks[1].ID, dependency.TypeBlocks)
	require.Len(t, blocks, 1)
	assert.Equal(t, result.Tasks[0].ID, blocks[0].SourceID)

	poured := f.log.ByKind(audit.KindWorkflowPoured)
	require.Len(t, poured, 1)
	assert.Equal(t, "release", poured[0].Detail["playbook"])
}

func TestBurn(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result := pourRelease(t, f, map[string]string{"service": "billing"})

	require.NoError(t, f.manager.Burn(ctx, result.Workflow.ID, false, "alice"))

	_, err := f.store.GetWorkflow(ctx, result.Workflow.ID)
	require.ErrorIs(t, err, store.ErrNotFound)
	for _, task := range result.Tasks {
		_, err := f.store.GetTask(ctx, task.ID)
		require.ErrorIs(t, err, store.ErrNotFound)
	}
	assert.Empty(t, f.graph.GetIncoming(result.Workflow.ID, dependency.TypeParentChild))
}

func TestBurnDurableRequiresForce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result := pourRelease(t, f, map[string]string{"service": "billing"})
	require.NoError(t, f.manager.Squash(ctx, result.Workflow.ID, "alice"))

	err := f.manager.Burn(ctx, result.Workflow.ID, false, "alice")
	require.ErrorIs(t, err, ErrDurableWorkflow)

	require.NoError(t, f.manager.Burn(ctx, result.Workflow.ID, true, "alice"))
	_, err = f.store.GetWorkflow(ctx, result.Workflow.ID)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestSquash(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result := pourRelease(t, f, map[string]string{"service": "billing"})

	require.NoError(t, f.manager.Squash(ctx, result.Workflow.ID, "alice"))
	stored, err := f.store.GetWorkflow(ctx, result.Workflow.ID)
	require.NoError(t, err)
	assert.False(t, stored.Ephemeral)

	err = f.manager.Squash(ctx, result.Workflow.ID, "alice")
	require.ErrorIs(t, err, ErrAlreadyDurable)
}

func TestSetManager(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	boss := element.NewEntity("boss", element.EntityKindHuman, "alice")
	worker := element.NewEntity("worker", element.EntityKindAgent, "alice")
	require.NoError(t, f.store.PutEntity(ctx, boss))
	require.NoError(t, f.store.PutEntity(ctx, worker))

	require.NoError(t, f.manager.SetManager(ctx, worker.ID, boss.ID, "alice"))
	stored, err := f.store.GetEntity(ctx, worker.ID)
	require.NoError(t, err)
	assert.Equal(t, boss.ID, stored.ReportsTo)

	events := f.log.ByKind(audit.KindManagerAssigned)
	require.Len(t, events, 1)
	assert.Equal(t, boss.ID, events[0].Detail["manager"])
}

func TestSetManagerRejectsCycles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	boss := element.NewEntity("boss", element.EntityKindHuman, "alice")
	worker := element.NewEntity("worker", element.EntityKindAgent, "alice")
	require.NoError(t, f.store.PutEntity(ctx, boss))
	require.NoError(t, f.store.PutEntity(ctx, worker))

	err := f.manager.SetManager(ctx, worker.ID, worker.ID, "alice")
	require.ErrorIs(t, err, ErrSelfManagement)

	require.NoError(t, f.manager.SetManager(ctx, worker.ID, boss.ID, "alice"))
	err = f.manager.SetManager(ctx, boss.ID, worker.ID, "alice")
	require.ErrorIs(t, err, ErrReportingCycle)
}
