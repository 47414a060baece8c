package goap

import (
	"context"
	"time"
)

// EventKind classifies loop events reported to observers.
type EventKind string

const (
	EventPlanGenerated EventKind = "plan_generated"
	EventPhase         EventKind = "phase"
	EventStepExecuted  EventKind = "step_executed"
	EventReplanned     EventKind = "replanned"
	EventFinished      EventKind = "finished"
)

// Event is a structured notification emitted by an ExecutionLoop. Decision
// is set on the phase event that enters deciding.
type Event struct {
	Kind     EventKind `json:"kind"`
	RunID    string    `json:"run_id"`
	Cycle    int       `json:"cycle"`
	Phase    Phase     `json:"phase,omitempty"`
	Decision Decision  `json:"decision,omitempty"`
	// Plan and PlanCost are set for plan_generated and replanned events.
	Plan     []string      `json:"plan,omitempty"`
	PlanCost float64       `json:"plan_cost,omitempty"`
	Entry    *HistoryEntry `json:"entry,omitempty"`
	// Report is set for finished events.
	Report *RunReport `json:"report,omitempty"`
	Time   time.Time  `json:"time"`
}

// Observer receives loop events. Observers are called synchronously from
// the loop goroutine and must not block for long.
type Observer interface {
	OnEvent(ctx context.Context, event Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(ctx context.Context, event Event)

func (f ObserverFunc) OnEvent(ctx context.Context, event Event) {
	f(ctx, event)
}

// StateObserver returns the externally observed world state. The loop
// compares it with the state it predicted from applied effects to detect
// changes made outside the plan.
type StateObserver interface {
	Observe(ctx context.Context) (WorldState, error)
}

// StateObserverFunc adapts a function to the StateObserver interface.
type StateObserverFunc func(ctx context.Context) (WorldState, error)

func (f StateObserverFunc) Observe(ctx context.Context) (WorldState, error) {
	return f(ctx)
}
