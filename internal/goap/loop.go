package goap

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/felixgeelhaar/fortify/retry"
	"github.com/felixgeelhaar/statekit"
	"github.com/google/uuid"
)

const (
	// DefaultMaxCycles bounds the number of OODA cycles per run.
	DefaultMaxCycles = 100
	// DefaultCycleDelay is the pause between cycles.
	DefaultCycleDelay = 10 * time.Millisecond
)

// Status is the terminal status of a run.
type Status string

const (
	StatusCompleted  Status = "completed"
	StatusAborted    Status = "aborted"
	StatusStopped    Status = "stopped"
	StatusCycleLimit Status = "cycle_limit"
)

// ErrCycleLimit is returned when a run exhausts its cycle budget.
var ErrCycleLimit = errors.New("OODA cycle limit reached")

// Observation is the output of the Observe phase.
type Observation struct {
	Step       int
	TotalSteps int
	LastEntry  *HistoryEntry
	Anomalies  []string
	// Drift lists keys whose externally observed value differs from the
	// predicted state. It is empty without a StateObserver.
	Drift []string
}

// Orientation is the output of the Orient phase.
type Orientation struct {
	StateChanged bool
	PlanValid    bool
	// GoalReachable is true when a fresh search from the live state finds a plan.
	GoalReachable bool
	// PlanReachesGoal is true when the rest of the current plan, applied to
	// the live state, satisfies the goal.
	PlanReachesGoal bool
	NeedsReplanning bool
}

// RunReport summarizes a finished run.
type RunReport struct {
	RunID         string         `json:"run_id"`
	Status        Status         `json:"status"`
	Cycles        int            `json:"cycles"`
	Replans       int            `json:"replans"`
	StepsExecuted int            `json:"steps_executed"`
	Failures      int            `json:"failures"`
	FinalState    WorldState     `json:"final_state"`
	Goal          WorldState     `json:"goal"`
	Plan          []string       `json:"plan,omitempty"`
	PhaseVisits   map[Phase]int  `json:"phase_visits,omitempty"`
	History       []HistoryEntry `json:"history"`
}

// ExecutionLoop executes plans step by step with an Observe, Orient, Decide,
// Act cycle and replans when the current plan stops being viable.
//
// Actions run one at a time. A stop request is honoured at the top of the
// next cycle, after any in-flight action has finished.
type ExecutionLoop struct {
	planner       *Planner
	logger        *log.Logger
	observers     []Observer
	stateObserver StateObserver
	maxCycles     int
	cycleDelay    time.Duration
	stepTimeout   time.Duration
	retrier       retry.Retry[*Result]
	runID         string

	mu      sync.Mutex
	plan    *Plan
	step    int
	state   WorldState
	goal    WorldState
	history *History
	stopped atomic.Bool

	cycle    int
	replans  int
	executed int
	failures int
}

// LoopOption configures an ExecutionLoop.
type LoopOption func(*ExecutionLoop)

// WithLoopLogger sets the logger used by the loop.
func WithLoopLogger(logger *log.Logger) LoopOption {
	return func(l *ExecutionLoop) {
		l.logger = logger
	}
}

// WithObservers adds event observers.
func WithObservers(observers ...Observer) LoopOption {
	return func(l *ExecutionLoop) {
		l.observers = append(l.observers, observers...)
	}
}

// WithStateObserver sets the source of externally observed state.
func WithStateObserver(observer StateObserver) LoopOption {
	return func(l *ExecutionLoop) {
		l.stateObserver = observer
	}
}

// WithMaxCycles sets the cycle budget.
func WithMaxCycles(n int) LoopOption {
	return func(l *ExecutionLoop) {
		l.maxCycles = n
	}
}

// WithCycleDelay sets the pause between cycles. Zero only yields to
// cancellation.
func WithCycleDelay(d time.Duration) LoopOption {
	return func(l *ExecutionLoop) {
		l.cycleDelay = d
	}
}

// WithStepTimeout bounds reasoning and combined executions.
func WithStepTimeout(d time.Duration) LoopOption {
	return func(l *ExecutionLoop) {
		l.stepTimeout = d
	}
}

// WithReasoningRetry retries failed reasoning and combined executions with
// exponential backoff.
func WithReasoningRetry(maxAttempts int, initialDelay time.Duration) LoopOption {
	return func(l *ExecutionLoop) {
		if maxAttempts <= 1 {
			l.retrier = nil
			return
		}
		l.retrier = retry.New[*Result](retry.Config{
			MaxAttempts:   maxAttempts,
			InitialDelay:  initialDelay,
			BackoffPolicy: retry.BackoffExponential,
			Multiplier:    2.0,
		})
	}
}

// WithRunID sets the run identifier. A random UUID is used otherwise.
func WithRunID(id string) LoopOption {
	return func(l *ExecutionLoop) {
		l.runID = id
	}
}

// NewExecutionLoop creates a loop that replans with planner.
func NewExecutionLoop(planner *Planner, opts ...LoopOption) *ExecutionLoop {
	l := &ExecutionLoop{
		planner:    planner,
		logger:     log.Default(),
		maxCycles:  DefaultMaxCycles,
		cycleDelay: DefaultCycleDelay,
		history:    &History{},
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.runID == "" {
		l.runID = uuid.NewString()
	}
	if l.maxCycles <= 0 {
		l.maxCycles = DefaultMaxCycles
	}
	return l
}

// RunID returns the loop's run identifier.
func (l *ExecutionLoop) RunID() string {
	return l.runID
}

// AddObserver registers an observer. It must be called before RunLoop.
func (l *ExecutionLoop) AddObserver(o Observer) {
	l.observers = append(l.observers, o)
}

// Stop requests the running loop to stop at the top of the next cycle.
// Each RunLoop call starts unstopped.
func (l *ExecutionLoop) Stop() {
	l.stopped.Store(true)
}

// SetGoal replaces the goal. The next Orient phase evaluates the current
// plan against it.
func (l *ExecutionLoop) SetGoal(goal WorldState) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.goal = goal
}

// Goal returns the current goal.
func (l *ExecutionLoop) Goal() WorldState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.goal
}

// State returns the live world state.
func (l *ExecutionLoop) State() WorldState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Plan returns the current plan and step index.
func (l *ExecutionLoop) Plan() (*Plan, int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.plan, l.step
}

// History returns the execution history of the current or last run.
func (l *ExecutionLoop) History() *History {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.history
}

// RunLoop executes plan from start until goal is satisfied, replanning as
// needed. A nil plan is planned on the first cycle. Each call starts a fresh
// history and fresh counters; calls must not overlap.
//
// The report is always returned and carries the full history. The error is
// nil on completion, wraps ErrNoPlanFound on abort, ErrCycleLimit when the
// cycle budget runs out, and the context error when ctx was cancelled.
func (l *ExecutionLoop) RunLoop(ctx context.Context, plan *Plan, start, goal WorldState) (*RunReport, error) {
	machine, err := newPhaseMachine()
	if err != nil {
		return nil, err
	}
	defer machine.stop()

	l.mu.Lock()
	l.plan = plan
	l.step = 0
	l.state = start
	l.goal = goal
	l.history = &History{}
	l.mu.Unlock()
	l.stopped.Store(false)
	l.replans, l.executed, l.failures = 0, 0, 0

	l.logger.Info("Starting execution loop", "runID", l.runID, "steps", plan.Len(), "goal", goal.String())
	if plan != nil {
		l.notify(ctx, Event{Kind: EventPlanGenerated, Plan: plan.Names(), PlanCost: plan.Cost})
	}

	for l.cycle = 1; ; l.cycle++ {
		if l.stopped.Load() || ctx.Err() != nil {
			l.transition(ctx, machine, eventStop, PhaseStopped)
			reason := "stop requested"
			if ctx.Err() != nil {
				reason = ctx.Err().Error()
			}
			l.record(ctx, HistoryEntry{Kind: EntryStopped, Step: l.currentStep(), Error: reason})
			return l.finish(ctx, machine, l.cycle-1, StatusStopped, ctx.Err())
		}
		if l.cycle > l.maxCycles {
			l.transition(ctx, machine, eventStop, PhaseStopped)
			l.record(ctx, HistoryEntry{Kind: EntryStopped, Step: l.currentStep(), Error: ErrCycleLimit.Error()})
			return l.finish(ctx, machine, l.cycle-1, StatusCycleLimit, ErrCycleLimit)
		}

		observation := l.Observe(ctx)

		l.transition(ctx, machine, eventOrient, PhaseOrienting)
		orientation := l.Orient(observation)

		l.enter(machine, eventDecide, PhaseDeciding)
		decision := l.Decide(orientation)
		l.notify(ctx, Event{Kind: EventPhase, Phase: PhaseDeciding, Decision: decision})
		l.logger.Debug("OODA decision", "cycle", l.cycle, "decision", decision,
			"stateChanged", orientation.StateChanged, "planValid", orientation.PlanValid,
			"goalReachable", orientation.GoalReachable, "anomalies", observation.Anomalies)

		switch decision {
		case DecisionComplete:
			l.transition(ctx, machine, eventComplete, PhaseCompleted)
			l.record(ctx, HistoryEntry{Kind: EntryCompleted, Step: l.currentStep()})
			return l.finish(ctx, machine, l.cycle, StatusCompleted, nil)

		case DecisionReplan:
			l.transition(ctx, machine, eventAct, PhaseActing)
			l.transition(ctx, machine, eventReplan, PhaseReplanning)
			if !l.replan(ctx) {
				l.transition(ctx, machine, eventAbort, PhaseAborted)
				l.record(ctx, HistoryEntry{Kind: EntryAborted, Step: l.currentStep(), Error: ErrNoPlanFound.Error()})
				return l.finish(ctx, machine, l.cycle, StatusAborted, fmt.Errorf("replanning failed: %w", ErrNoPlanFound))
			}
			l.transition(ctx, machine, eventObserve, PhaseObserving)

		case DecisionContinue:
			l.transition(ctx, machine, eventAct, PhaseActing)
			l.act(ctx)
			l.transition(ctx, machine, eventObserve, PhaseObserving)
		}

		l.pause(ctx)
	}
}

// Observe snapshots progress and collects anomalies. With a StateObserver
// it also reconciles the live state with the externally observed one.
func (l *ExecutionLoop) Observe(ctx context.Context) Observation {
	l.mu.Lock()
	observation := Observation{
		Step:       l.step,
		TotalSteps: l.plan.Len(),
		Anomalies:  []string{},
	}
	l.mu.Unlock()

	l.mu.Lock()
	history := l.history
	l.mu.Unlock()
	if last, ok := history.Last(); ok {
		observation.LastEntry = &last
		if last.Kind == EntryStep && last.Failed() {
			observation.Anomalies = append(observation.Anomalies, fmt.Sprintf("step %d (%s) failed: %s", last.Step, last.Action, last.Error))
		}
	}

	if l.stateObserver != nil {
		observed, err := l.stateObserver.Observe(ctx)
		if err != nil {
			observation.Anomalies = append(observation.Anomalies, fmt.Sprintf("state observation failed: %v", err))
		} else {
			l.mu.Lock()
			observation.Drift = l.state.Diff(observed)
			if len(observation.Drift) > 0 {
				l.logger.Info("External state change detected", "keys", observation.Drift)
				l.state = observed
			}
			l.mu.Unlock()
		}
	}

	return observation
}

// Orient evaluates the current plan against the live state and goal.
func (l *ExecutionLoop) Orient(observation Observation) Orientation {
	l.mu.Lock()
	plan, step, state, goal := l.plan, l.step, l.state, l.goal
	l.mu.Unlock()

	orientation := Orientation{
		StateChanged: len(observation.Drift) > 0,
	}

	var remaining []*Action
	if plan != nil && step <= len(plan.Actions) {
		remaining = plan.Actions[step:]
	}

	predicted, valid := simulate(remaining, state)
	orientation.PlanValid = plan != nil && valid
	orientation.PlanReachesGoal = orientation.PlanValid && predicted.SatisfiesState(goal)
	orientation.GoalReachable = l.planner.GeneratePlan(state, goal) != nil

	orientation.NeedsReplanning = orientation.StateChanged ||
		!orientation.PlanValid ||
		!orientation.PlanReachesGoal ||
		!orientation.GoalReachable ||
		len(observation.Anomalies) > 0

	return orientation
}

// Decide maps an orientation to the next action of the loop.
func (l *ExecutionLoop) Decide(orientation Orientation) Decision {
	if orientation.NeedsReplanning {
		return DecisionReplan
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.step >= l.plan.Len() {
		return DecisionComplete
	}
	return DecisionContinue
}

// act executes the current step and advances the state on success.
func (l *ExecutionLoop) act(ctx context.Context) {
	l.mu.Lock()
	action := l.plan.Actions[l.step]
	step := l.step
	state := l.state
	l.mu.Unlock()

	l.logger.Info("Executing action", "step", step, "action", action.Name(), "type", action.ExecutionType())

	entry := HistoryEntry{Kind: EntryStep, Step: step, Action: action.Name()}

	result, err := l.execute(ctx, action, state)
	if err == nil {
		var next WorldState
		next, err = action.Apply(state)
		if err == nil {
			l.mu.Lock()
			l.state = next
			l.step++
			l.mu.Unlock()
			entry.Output = result
			l.executed++
		}
	}

	if err != nil {
		var execErr *ActionExecutionError
		if !errors.As(err, &execErr) && !errors.As(err, new(*PreconditionError)) {
			err = &ActionExecutionError{Action: action.Name(), Err: err}
		}
		entry.Error = err.Error()
		l.failures++
		l.logger.Warn("Action failed", "step", step, "action", action.Name(), "error", err)
	}

	l.record(ctx, entry)
}

func (l *ExecutionLoop) execute(ctx context.Context, action *Action, state WorldState) (*Result, error) {
	if action.ExecutionType() == ExecutionDeterministic {
		return action.Execute(ctx, state)
	}

	if l.stepTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.stepTimeout)
		defer cancel()
	}

	if l.retrier == nil {
		return action.Execute(ctx, state)
	}
	return l.retrier.Do(ctx, func(ctx context.Context) (*Result, error) {
		return action.Execute(ctx, state)
	})
}

// replan searches from the live state and installs the new plan.
func (l *ExecutionLoop) replan(ctx context.Context) bool {
	l.mu.Lock()
	state, goal := l.state, l.goal
	l.mu.Unlock()

	plan := l.planner.GeneratePlan(state, goal)
	if plan == nil {
		l.logger.Warn("Replanning found no plan", "state", state.String(), "goal", goal.String())
		return false
	}

	l.mu.Lock()
	l.plan = plan
	l.step = 0
	l.mu.Unlock()
	l.replans++

	l.logger.Info("Replanned", "actions", plan.Names(), "cost", plan.Cost)
	l.record(ctx, HistoryEntry{Kind: EntryPlanUpdated, Step: 0, Plan: plan.Names()})
	l.notify(ctx, Event{Kind: EventReplanned, Plan: plan.Names(), PlanCost: plan.Cost})
	return true
}

func (l *ExecutionLoop) transition(ctx context.Context, machine *phaseMachine, event statekit.EventType, target Phase) {
	l.notify(ctx, Event{Kind: EventPhase, Phase: l.enter(machine, event, target)})
}

// enter moves the statechart without notifying observers.
func (l *ExecutionLoop) enter(machine *phaseMachine, event statekit.EventType, target Phase) Phase {
	phase, err := machine.send(event, target)
	if err != nil {
		// The loop only sends events its own statechart defines.
		panic(err)
	}
	return phase
}

func (l *ExecutionLoop) record(ctx context.Context, entry HistoryEntry) {
	entry.Timestamp = time.Now()
	l.mu.Lock()
	history := l.history
	l.mu.Unlock()
	history.append(entry)
	if entry.Kind == EntryStep {
		l.notify(ctx, Event{Kind: EventStepExecuted, Entry: &entry})
	}
}

func (l *ExecutionLoop) notify(ctx context.Context, event Event) {
	event.RunID = l.runID
	event.Cycle = l.cycle
	if event.Time.IsZero() {
		event.Time = time.Now()
	}
	for _, o := range l.observers {
		o.OnEvent(ctx, event)
	}
}

func (l *ExecutionLoop) finish(ctx context.Context, machine *phaseMachine, cycles int, status Status, err error) (*RunReport, error) {
	l.mu.Lock()
	report := &RunReport{
		RunID:         l.runID,
		Status:        status,
		Cycles:        cycles,
		Replans:       l.replans,
		StepsExecuted: l.executed,
		Failures:      l.failures,
		FinalState:    l.state,
		Goal:          l.goal,
		Plan:          l.plan.Names(),
		PhaseVisits:   machine.visits(),
		History:       l.history.Entries(),
	}
	l.mu.Unlock()

	switch status {
	case StatusCompleted:
		l.logger.Info("Execution loop completed", "runID", l.runID, "cycles", report.Cycles, "replans", report.Replans)
	default:
		l.logger.Warn("Execution loop ended", "runID", l.runID, "status", status, "cycles", report.Cycles, "error", err)
	}

	l.notify(ctx, Event{Kind: EventFinished, Report: report})
	return report, err
}

func (l *ExecutionLoop) currentStep() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.step
}

// pause waits for the cycle delay or until ctx is done.
func (l *ExecutionLoop) pause(ctx context.Context) {
	if l.cycleDelay <= 0 {
		return
	}
	timer := time.NewTimer(l.cycleDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// simulate applies actions in order from state. It reports false as soon as
// an action is not applicable.
func simulate(actions []*Action, state WorldState) (WorldState, bool) {
	for _, action := range actions {
		next, err := action.Apply(state)
		if err != nil {
			return state, false
		}
		state = next
	}
	return state, true
}
