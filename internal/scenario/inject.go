package scenario

import (
	"context"
	"sync"

	"github.com/charmbracelet/log"
	"upside-down-research.com/oss/goap/internal/goap"
)

// GoalSetter is the part of goap.ExecutionLoop an Injector drives.
type GoalSetter interface {
	Goal() goap.WorldState
	SetGoal(goal goap.WorldState)
}

// Injector is a goap.Observer that applies scenario injections when their
// trigger step succeeds. Each injection fires once.
type Injector struct {
	injections []Injection
	planner    *goap.Planner
	target     GoalSetter
	logger     *log.Logger

	mu    sync.Mutex
	fired map[int]bool
}

// NewInjector creates an Injector for the scenario's injections.
func (s *Scenario) NewInjector(planner *goap.Planner, target GoalSetter, logger *log.Logger) *Injector {
	if logger == nil {
		logger = log.Default()
	}
	return &Injector{
		injections: s.Injections,
		planner:    planner,
		target:     target,
		logger:     logger,
		fired:      make(map[int]bool),
	}
}

func (i *Injector) OnEvent(ctx context.Context, event goap.Event) {
	if event.Kind != goap.EventStepExecuted || event.Entry == nil || event.Entry.Failed() {
		return
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	for idx, inj := range i.injections {
		if i.fired[idx] || inj.AfterStep != event.Entry.Action {
			continue
		}
		i.fired[idx] = true

		for _, spec := range inj.Actions {
			if err := i.planner.AddAction(spec.Action()); err != nil {
				i.logger.Error("Failed to inject action", "action", spec.Name, "error", err)
				continue
			}
			i.logger.Info("Injected action", "action", spec.Name, "after", inj.AfterStep)
		}

		if len(inj.Goal) > 0 {
			goal := i.target.Goal().ApplyEffects(inj.Goal)
			i.target.SetGoal(goal)
			i.logger.Info("Updated goal", "goal", goal.String())
		}
	}
}

// Fired returns the number of injections applied so far.
func (i *Injector) Fired() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.fired)
}
