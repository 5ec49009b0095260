// Package pour expands a playbook template plus variable bindings into
// a candidate graph fragment: one workflow, its tasks, and the blocks
// and parent-child edges that encode step ordering and containment.
//
// Pouring is a pure transformation. Nothing is persisted here; the
// caller commits the returned fragment atomically, and every edge
// still passes through the dependency graph's normal validation when
// it does.
package pour

import (
	"errors"
	"fmt"
	"time"

	"github.com/loomworks/loom/dependency"
	"github.com/loomworks/loom/element"
	"github.com/loomworks/loom/metrics"
	"github.com/loomworks/loom/playbook"
)

// ErrAllStepsSkipped is returned when condition filtering removes
// every step: a workflow with zero tasks is never valid.
var ErrAllStepsSkipped = errors.New("all steps filtered by conditions")

// Options tunes a pour.
type Options struct {
	// Ephemeral marks the poured workflow disposable. DefaultOptions
	// sets it; pass a zero Options for a durable workflow.
	Ephemeral bool

	// Tags are added to the workflow and every generated task.
	Tags []string
}

// DefaultOptions pours an ephemeral workflow, the common case for
// scratch runs.
func DefaultOptions() Options {
	return Options{Ephemeral: true}
}

// Result is the unpersisted candidate fragment plus bookkeeping.
type Result struct {
	Workflow          *element.Workflow
	Tasks             []*element.Task
	Blocks            []dependency.Dependency
	ParentChild       []dependency.Dependency
	SkippedSteps      []string
	ResolvedVariables map[string]string
}

// Pour instantiates the playbook against the variable bindings.
//
// Steps whose condition evaluates false are recorded in SkippedSteps
// and produce no task; ordering references to a skipped step are
// dropped with it. Template placeholders resolve against the bindings,
// with missing variables substituting empty strings. Pour fails with
// playbook.ErrNoSteps for an empty playbook and ErrAllStepsSkipped
// when filtering leaves nothing to create.
func Pour(pb *playbook.Playbook, variables map[string]string, createdBy string, opts Options) (*Result, error) {
	if err := pb.Validate(); err != nil {
		metrics.Pours.WithLabelValues(metrics.ResultRejected).Inc()
		return nil, err
	}

	resolved := pb.ResolveVariables(variables)
	now := time.Now().UTC()

	result := &Result{
		SkippedSteps:      []string{},
		ResolvedVariables: resolved,
	}
	taskByStep := make(map[string]*element.Task, len(pb.Steps))

	for _, step := range pb.Steps {
		include, err := playbook.EvalCondition(step.Condition, resolved)
		if err != nil {
			metrics.Pours.WithLabelValues(metrics.ResultRejected).Inc()
			return nil, fmt.Errorf("step %q: %w", step.ID, err)
		}
		if !include {
			result.SkippedSteps = append(result.SkippedSteps, step.ID)
			metrics.StepsSkipped.Inc()
			continue
		}

		task, err := materializeStep(&step, resolved, createdBy, opts.Tags)
		if err != nil {
			metrics.Pours.WithLabelValues(metrics.ResultRejected).Inc()
			return nil, err
		}
		result.Tasks = append(result.Tasks, task)
		taskByStep[step.ID] = task
	}

	if len(result.Tasks) == 0 {
		metrics.Pours.WithLabelValues(metrics.ResultRejected).Inc()
		return nil, fmt.Errorf("%w: playbook %q", ErrAllStepsSkipped, pb.Name)
	}

	workflow := element.NewWorkflow(pb.Name, createdBy, opts.Ephemeral)
	workflow.PlaybookID = pb.ID
	workflow.Variables = resolved
	for _, tag := range pb.Tags {
		workflow.AddTag(tag)
	}
	for _, tag := range opts.Tags {
		workflow.AddTag(tag)
	}
	result.Workflow = workflow

	// Reconstruct step ordering as blocks edges between the generated
	// tasks: the awaited step's task is the blocker.
	for _, step := range pb.Steps {
		task, ok := taskByStep[step.ID]
		if !ok {
			continue
		}
		for _, after := range step.After {
			blocker, ok := taskByStep[after]
			if !ok {
				continue // awaited step was skipped
			}
			result.Blocks = append(result.Blocks, dependency.Dependency{
				SourceID:  blocker.ID,
				TargetID:  task.ID,
				Type:      dependency.TypeBlocks,
				Actor:     createdBy,
				CreatedAt: now,
			})
		}
	}

	// One containment edge per task.
	for _, task := range result.Tasks {
		result.ParentChild = append(result.ParentChild, dependency.Dependency{
			SourceID:  task.ID,
			TargetID:  workflow.ID,
			Type:      dependency.TypeParentChild,
			Actor:     createdBy,
			CreatedAt: now,
		})
	}

	metrics.Pours.WithLabelValues(metrics.ResultOK).Inc()
	return result, nil
}

// materializeStep renders a step's templates and builds its task.
func materializeStep(step *playbook.Step, vars map[string]string, createdBy string, extraTags []string) (*element.Task, error) {
	title, err := playbook.RenderTemplate(step.Title, vars)
	if err != nil {
		return nil, fmt.Errorf("step %q title: %w", step.ID, err)
	}
	description, err := playbook.RenderTemplate(step.Description, vars)
	if err != nil {
		return nil, fmt.Errorf("step %q description: %w", step.ID, err)
	}

	task := element.NewTask(title, createdBy)
	task.Description = description

	if len(step.Fields) > 0 {
		task.Fields = make(map[string]string, len(step.Fields))
		for key, tmpl := range step.Fields {
			value, err := playbook.RenderTemplate(tmpl, vars)
			if err != nil {
				return nil, fmt.Errorf("step %q field %q: %w", step.ID, key, err)
			}
			task.Fields[key] = value
		}
	}

	for _, tag := range step.Tags {
		task.AddTag(tag)
	}
	for _, tag := range extraTags {
		task.AddTag(tag)
	}
	return task, nil
}
