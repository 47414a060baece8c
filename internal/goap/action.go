package goap

import (
	"context"
	"fmt"
	"math"
	"time"
)

// ExecutionType selects how an action is carried out.
type ExecutionType string

const (
	// ExecutionDeterministic runs a plain code callback.
	ExecutionDeterministic ExecutionType = "deterministic"
	// ExecutionReasoning runs an external reasoning/generation callback.
	ExecutionReasoning ExecutionType = "reasoning"
	// ExecutionCombined runs the deterministic callback and then the
	// reasoning callback and returns both outputs.
	ExecutionCombined ExecutionType = "combined"
)

// Valid reports whether t is one of the supported execution types.
func (t ExecutionType) Valid() bool {
	switch t {
	case ExecutionDeterministic, ExecutionReasoning, ExecutionCombined:
		return true
	}
	return false
}

// Executor performs the real-world work of an action. It receives the
// action's static params and the live state, and must not modify the state.
type Executor func(ctx context.Context, params map[string]interface{}, current WorldState) (interface{}, error)

// Result is the outcome of a successful Execute.
type Result struct {
	Action string        `json:"action"`
	Type   ExecutionType `json:"type"`
	// Output is the deterministic callback's result.
	Output interface{} `json:"output,omitempty"`
	// Reasoning is the reasoning callback's result.
	Reasoning interface{}   `json:"reasoning,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// Action is a named transition with preconditions, effects and a cost.
// Actions are pure with respect to WorldState: Apply returns a new state and
// Execute never touches the tracked state.
type Action struct {
	name          string
	description   string
	preconditions Conditions
	effects       Conditions
	cost          float64
	execType      ExecutionType
	params        map[string]interface{}
	executor      Executor
	reasoner      Executor
}

// ActionOption configures an Action.
type ActionOption func(*Action)

// WithDescription sets a human readable description.
func WithDescription(description string) ActionOption {
	return func(a *Action) {
		a.description = description
	}
}

// WithCost sets the action cost. The default is 1.
func WithCost(cost float64) ActionOption {
	return func(a *Action) {
		a.cost = cost
	}
}

// WithExecutionType sets the execution strategy. The default is deterministic.
func WithExecutionType(t ExecutionType) ActionOption {
	return func(a *Action) {
		a.execType = t
	}
}

// WithParams sets the static params handed to the executors.
func WithParams(params map[string]interface{}) ActionOption {
	return func(a *Action) {
		a.params = params
	}
}

// WithExecutor sets the deterministic callback.
func WithExecutor(fn Executor) ActionOption {
	return func(a *Action) {
		a.executor = fn
	}
}

// WithReasoner sets the reasoning callback.
func WithReasoner(fn Executor) ActionOption {
	return func(a *Action) {
		a.reasoner = fn
	}
}

// NewAction creates an Action. Preconditions and effects are copied.
func NewAction(name string, preconditions, effects Conditions, opts ...ActionOption) *Action {
	a := &Action{
		name:          name,
		preconditions: preconditions.Clone(),
		effects:       effects.Clone(),
		cost:          1,
		execType:      ExecutionDeterministic,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Action) Name() string {
	return a.name
}

func (a *Action) Description() string {
	return a.description
}

// Preconditions returns a copy of the action's preconditions.
func (a *Action) Preconditions() Conditions {
	return a.preconditions.Clone()
}

// Effects returns a copy of the action's effects.
func (a *Action) Effects() Conditions {
	return a.effects.Clone()
}

func (a *Action) Cost() float64 {
	return a.cost
}

func (a *Action) ExecutionType() ExecutionType {
	return a.execType
}

// Validate checks the action definition. Planner.AddAction calls it so that
// malformed actions are rejected at registration.
func (a *Action) Validate() error {
	if a.name == "" {
		return &InvalidActionError{Reason: "name is empty"}
	}
	if math.IsNaN(a.cost) || math.IsInf(a.cost, 0) || a.cost < 0 {
		return &InvalidActionError{Action: a.name, Reason: fmt.Sprintf("cost must be a finite non-negative number, got %v", a.cost)}
	}
	for k, v := range a.preconditions {
		if !isComparableValue(v) {
			return &InvalidActionError{Action: a.name, Reason: fmt.Sprintf("precondition %q has non-comparable value of type %T", k, v)}
		}
	}
	for k, v := range a.effects {
		if !isComparableValue(v) {
			return &InvalidActionError{Action: a.name, Reason: fmt.Sprintf("effect %q has non-comparable value of type %T", k, v)}
		}
	}
	switch a.execType {
	case ExecutionDeterministic:
		if a.executor == nil {
			return &InvalidActionError{Action: a.name, Reason: "deterministic action has no executor"}
		}
	case ExecutionReasoning:
		if a.reasoner == nil {
			return &InvalidActionError{Action: a.name, Reason: "reasoning action has no reasoner"}
		}
	case ExecutionCombined:
		if a.executor == nil || a.reasoner == nil {
			return &InvalidActionError{Action: a.name, Reason: "combined action needs both an executor and a reasoner"}
		}
	default:
		return &UnknownExecutionTypeError{Action: a.name, Type: a.execType}
	}
	return nil
}

// IsApplicable reports whether the preconditions hold in state.
func (a *Action) IsApplicable(state WorldState) bool {
	return state.Satisfies(a.preconditions)
}

// Apply returns the successor state. It fails with *PreconditionError when
// the action is not applicable.
func (a *Action) Apply(state WorldState) (WorldState, error) {
	if !a.IsApplicable(state) {
		unmet := []string{}
		for _, k := range a.preconditions.Keys() {
			if !valuesEqual(state.Get(k), a.preconditions[k]) {
				unmet = append(unmet, k)
			}
		}
		return state, &PreconditionError{Action: a.name, Unmet: unmet}
	}
	return state.ApplyEffects(a.effects), nil
}

// Execute runs the action's callbacks according to its execution type.
// It does not apply effects; callers do that with Apply once Execute
// succeeds. Callback failures are returned as *ActionExecutionError.
func (a *Action) Execute(ctx context.Context, current WorldState) (*Result, error) {
	start := time.Now()
	result := &Result{Action: a.name, Type: a.execType}

	switch a.execType {
	case ExecutionDeterministic:
		out, err := a.invoke(ctx, a.executor, current)
		if err != nil {
			return nil, err
		}
		result.Output = out

	case ExecutionReasoning:
		out, err := a.invoke(ctx, a.reasoner, current)
		if err != nil {
			return nil, err
		}
		result.Reasoning = out

	case ExecutionCombined:
		out, err := a.invoke(ctx, a.executor, current)
		if err != nil {
			return nil, err
		}
		reasoning, err := a.invoke(ctx, a.reasoner, current)
		if err != nil {
			return nil, err
		}
		result.Output = out
		result.Reasoning = reasoning

	default:
		return nil, &UnknownExecutionTypeError{Action: a.name, Type: a.execType}
	}

	result.Duration = time.Since(start)
	return result, nil
}

func (a *Action) invoke(ctx context.Context, fn Executor, current WorldState) (out interface{}, err error) {
	if fn == nil {
		return nil, &ActionExecutionError{Action: a.name, Err: fmt.Errorf("no callback for %s execution", a.execType)}
	}
	if err := ctx.Err(); err != nil {
		return nil, &ActionExecutionError{Action: a.name, Err: err}
	}

	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = &ActionExecutionError{Action: a.name, Err: fmt.Errorf("executor panicked: %v", r)}
		}
	}()

	out, err = fn(ctx, a.params, current)
	if err != nil {
		return nil, &ActionExecutionError{Action: a.name, Err: err}
	}
	return out, nil
}

// String returns a short description of the action.
func (a *Action) String() string {
	return fmt.Sprintf("%s(cost=%.2f, type=%s)", a.name, a.cost, a.execType)
}
