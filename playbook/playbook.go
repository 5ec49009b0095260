// Package playbook defines the immutable workflow templates that the
// pour engine instantiates, together with their YAML codec, condition
// and template evaluation, and on-disk library discovery.
package playbook

import (
	"errors"
	"fmt"
)

// Sentinel errors for playbook validation and evaluation.
var (
	ErrNoSteps       = errors.New("playbook has no steps defined")
	ErrDuplicateStep = errors.New("duplicate step id")
	ErrUnknownStep   = errors.New("step ordering references unknown step")
	ErrBadExpression = errors.New("malformed expression")
)

// Input declares a variable the playbook accepts. Bindings supplied at
// pour time override the default; variables never declared are still
// usable and resolve to the supplied binding or empty string.
type Input struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
	Default     string `yaml:"default,omitempty"`
}

// Step is one task template inside a playbook.
//
// Condition is an expression over the variable bindings, e.g.
// `var.env == "prod"`; an empty condition always includes the step.
// Title, Description, and Fields values may interpolate variables with
// `${var.name}` syntax. After lists the ids of steps that must resolve
// before this one, which become blocks edges between the poured tasks.
type Step struct {
	ID          string            `yaml:"id,omitempty"`
	Title       string            `yaml:"title"`
	Description string            `yaml:"description,omitempty"`
	Condition   string            `yaml:"condition,omitempty"`
	After       []string          `yaml:"after,omitempty"`
	Fields      map[string]string `yaml:"fields,omitempty"`
	Tags        []string          `yaml:"tags,omitempty"`
}

// Playbook is an ordered list of steps plus the inputs they consume.
type Playbook struct {
	ID          string   `yaml:"id"`
	Name        string   `yaml:"name"`
	Description string   `yaml:"description,omitempty"`
	Tags        []string `yaml:"tags,omitempty"`
	Inputs      []Input  `yaml:"inputs,omitempty"`
	Steps       []Step   `yaml:"steps"`
}

// Normalize fills in step ids missing from the source ("step-1",
// "step-2", ...). Call before Validate.
func (p *Playbook) Normalize() {
	for i := range p.Steps {
		if p.Steps[i].ID == "" {
			p.Steps[i].ID = fmt.Sprintf("step-%d", i+1)
		}
	}
}

// Validate checks structural soundness: at least one step, unique step
// ids, ordering references that resolve, and parseable conditions.
func (p *Playbook) Validate() error {
	if len(p.Steps) == 0 {
		return fmt.Errorf("%w: playbook %q", ErrNoSteps, p.Name)
	}

	ids := make(map[string]bool, len(p.Steps))
	for _, step := range p.Steps {
		if ids[step.ID] {
			return fmt.Errorf("%w: %q", ErrDuplicateStep, step.ID)
		}
		ids[step.ID] = true
	}

	for _, step := range p.Steps {
		for _, after := range step.After {
			if !ids[after] {
				return fmt.Errorf("%w: step %q waits on %q", ErrUnknownStep, step.ID, after)
			}
		}
		if step.Condition != "" {
			if err := CheckCondition(step.Condition); err != nil {
				return fmt.Errorf("step %q: %w", step.ID, err)
			}
		}
	}
	return nil
}

// ResolveVariables merges supplied bindings over the declared input
// defaults. Bindings for undeclared variables pass through unchanged.
func (p *Playbook) ResolveVariables(bindings map[string]string) map[string]string {
	resolved := make(map[string]string, len(p.Inputs)+len(bindings))
	for _, input := range p.Inputs {
		resolved[input.Name] = input.Default
	}
	for k, v := range bindings {
		resolved[k] = v
	}
	return resolved
}

// Step returns the step with the given id, or nil.
func (p *Playbook) Step(id string) *Step {
	for i := range p.Steps {
		if p.Steps[i].ID == id {
			return &p.Steps[i]
		}
	}
	return nil
}
