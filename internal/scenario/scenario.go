// Package scenario loads planning problems from YAML files. A scenario lists
// the action repertoire, the start state, prioritized goals and optional
// injections that change the repertoire or goal while a run is in progress.
package scenario

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"
	"upside-down-research.com/oss/goap/internal/goap"
)

// Scenario is the decoded form of a scenario file.
type Scenario struct {
	Name        string                 `yaml:"name"`
	Description string                 `yaml:"description"`
	Start       map[string]interface{} `yaml:"start"`
	Goals       []GoalSpec             `yaml:"goals"`
	Actions     []ActionSpec           `yaml:"actions"`
	Injections  []Injection            `yaml:"injections"`
}

// GoalSpec describes a named goal.
type GoalSpec struct {
	Name        string                 `yaml:"name"`
	Description string                 `yaml:"description"`
	Priority    float64                `yaml:"priority"`
	State       map[string]interface{} `yaml:"state"`
}

// ActionSpec describes an action and how its executor is simulated.
type ActionSpec struct {
	Name          string                 `yaml:"name"`
	Description   string                 `yaml:"description"`
	Cost          *float64               `yaml:"cost"` // defaults to 1
	Type          string                 `yaml:"type"` // defaults to deterministic
	Preconditions map[string]interface{} `yaml:"preconditions"`
	Effects       map[string]interface{} `yaml:"effects"`
	Params        map[string]interface{} `yaml:"params"`
	Simulate      Simulation             `yaml:"simulate"`
}

// Simulation controls the behaviour of a simulated executor.
type Simulation struct {
	Delay     time.Duration `yaml:"delay"`
	FailTimes int           `yaml:"fail_times"` // fail the first N calls
	Output    string        `yaml:"output"`
}

// Injection adds actions and goal propositions once AfterStep has executed
// successfully.
type Injection struct {
	AfterStep string                 `yaml:"after_step"`
	Actions   []ActionSpec           `yaml:"actions"`
	Goal      map[string]interface{} `yaml:"goal"`
}

// ErrSimulatedFailure is returned by simulated executors while FailTimes
// has not been used up.
var ErrSimulatedFailure = errors.New("simulated failure")

// Load reads and parses a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a scenario from YAML.
func Parse(data []byte) (*Scenario, error) {
	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse scenario: %w", err)
	}
	return &s, nil
}

// StartState returns the start state.
func (s *Scenario) StartState() goap.WorldState {
	return goap.NewWorldState(s.Start)
}

// GoalSet returns the scenario goals in file order.
func (s *Scenario) GoalSet() *goap.GoalSet {
	gs := goap.NewGoalSet()
	for _, g := range s.Goals {
		gs.Add(goap.NewGoal(g.Name, g.Description, goap.NewWorldState(g.State), g.Priority))
	}
	return gs
}

// SelectGoal returns the named goal, or the highest priority goal when name
// is empty.
func (s *Scenario) SelectGoal(name string) (*goap.Goal, error) {
	gs := s.GoalSet()
	if name == "" {
		if g := gs.HighestPriority(); g != nil {
			return g, nil
		}
		return nil, errors.New("scenario has no goals")
	}
	g, ok := gs.Find(name)
	if !ok {
		return nil, fmt.Errorf("scenario has no goal named %q", name)
	}
	return g, nil
}

// NearestGoal returns the unsatisfied goal closest to the start state by
// mismatch count. Ties keep the earliest goal.
func (s *Scenario) NearestGoal() (*goap.Goal, error) {
	start := s.StartState()
	pending := goap.NewGoalSet(s.GoalSet().Unsatisfied(start)...)
	if g := pending.MostAchievable(start); g != nil {
		return g, nil
	}
	if len(s.Goals) == 0 {
		return nil, errors.New("scenario has no goals")
	}
	return nil, errors.New("every goal is already satisfied by the start state")
}

// Build creates a planner holding every scenario action.
func (s *Scenario) Build(opts ...goap.PlannerOption) (*goap.Planner, error) {
	p := goap.NewPlanner(opts...)
	for _, spec := range s.Actions {
		if err := p.AddAction(spec.Action()); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Action builds a goap.Action with simulated executors.
func (spec ActionSpec) Action() *goap.Action {
	execType := goap.ExecutionType(spec.Type)
	if spec.Type == "" {
		execType = goap.ExecutionDeterministic
	}

	opts := []goap.ActionOption{
		goap.WithDescription(spec.Description),
		goap.WithExecutionType(execType),
		goap.WithParams(spec.Params),
	}
	if spec.Cost != nil {
		opts = append(opts, goap.WithCost(*spec.Cost))
	}

	sim := newSimulator(spec.Name, spec.Simulate)
	switch execType {
	case goap.ExecutionReasoning:
		opts = append(opts, goap.WithReasoner(sim.run))
	case goap.ExecutionCombined:
		opts = append(opts, goap.WithExecutor(sim.run), goap.WithReasoner(sim.reason))
	default:
		opts = append(opts, goap.WithExecutor(sim.run))
	}

	return goap.NewAction(spec.Name, spec.Preconditions, spec.Effects, opts...)
}

type simulator struct {
	action string
	cfg    Simulation
	calls  atomic.Int64
}

func newSimulator(action string, cfg Simulation) *simulator {
	return &simulator{action: action, cfg: cfg}
}

func (s *simulator) run(ctx context.Context, params map[string]interface{}, current goap.WorldState) (interface{}, error) {
	n := s.calls.Add(1)

	if s.cfg.Delay > 0 {
		timer := time.NewTimer(s.cfg.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	if n <= int64(s.cfg.FailTimes) {
		return nil, fmt.Errorf("%w %d/%d of %s", ErrSimulatedFailure, n, s.cfg.FailTimes, s.action)
	}
	if s.cfg.Output != "" {
		return s.cfg.Output, nil
	}
	return fmt.Sprintf("%s done", s.action), nil
}

func (s *simulator) reason(ctx context.Context, params map[string]interface{}, current goap.WorldState) (interface{}, error) {
	return fmt.Sprintf("%s reviewed in %s", s.action, current), nil
}
