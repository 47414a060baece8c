package goap

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

type eventLog struct {
	events []Event
}

func (e *eventLog) OnEvent(ctx context.Context, event Event) {
	e.events = append(e.events, event)
}

func (e *eventLog) kinds(kind EventKind) []Event {
	var out []Event
	for _, ev := range e.events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

func newTestLoop(p *Planner, opts ...LoopOption) *ExecutionLoop {
	base := []LoopOption{WithLoopLogger(quietLogger()), WithCycleDelay(0), WithRunID("test-run")}
	return NewExecutionLoop(p, append(base, opts...)...)
}

func entryKinds(entries []HistoryEntry) []EntryKind {
	kinds := make([]EntryKind, len(entries))
	for i, e := range entries {
		kinds[i] = e.Kind
	}
	return kinds
}

func TestExecutionLoop(t *testing.T) {
	ctx := context.Background()
	start := NewWorldState(nil)
	goal := NewWorldState(map[string]interface{}{"deployed": true})

	t.Run("Runs plan to completion", func(t *testing.T) {
		p := linearChain(t)
		events := &eventLog{}
		loop := newTestLoop(p, WithObservers(events))

		plan := p.GeneratePlan(start, goal)
		report, err := loop.RunLoop(ctx, plan, start, goal)
		if err != nil {
			t.Fatalf("RunLoop failed: %v", err)
		}

		if report.Status != StatusCompleted {
			t.Errorf("Expected completed, got %s", report.Status)
		}
		if !report.FinalState.SatisfiesState(goal) {
			t.Errorf("Final state %s does not satisfy goal", report.FinalState)
		}
		if report.StepsExecuted != 3 || report.Replans != 0 || report.Failures != 0 {
			t.Errorf("Unexpected counters %+v", report)
		}
		if report.Cycles != 4 {
			t.Errorf("Expected 4 cycles, got %d", report.Cycles)
		}
		if report.RunID != "test-run" {
			t.Errorf("Expected run ID test-run, got %s", report.RunID)
		}

		want := []EntryKind{EntryStep, EntryStep, EntryStep, EntryCompleted}
		if diff := cmp.Diff(want, entryKinds(report.History)); diff != "" {
			t.Errorf("History mismatch (-want +got):\n%s", diff)
		}
		if report.PhaseVisits[PhaseCompleted] != 1 || report.PhaseVisits[PhaseActing] != 3 {
			t.Errorf("Unexpected phase visits %v", report.PhaseVisits)
		}

		if got := len(events.kinds(EventPlanGenerated)); got != 1 {
			t.Errorf("Expected 1 plan_generated event, got %d", got)
		}
		if got := len(events.kinds(EventStepExecuted)); got != 3 {
			t.Errorf("Expected 3 step_executed events, got %d", got)
		}
		finished := events.kinds(EventFinished)
		if len(finished) != 1 || finished[0].Report == nil {
			t.Fatalf("Expected one finished event with report")
		}
	})

	t.Run("Plans on first cycle when plan is nil", func(t *testing.T) {
		p := linearChain(t)
		loop := newTestLoop(p)

		report, err := loop.RunLoop(ctx, nil, start, goal)
		if err != nil {
			t.Fatalf("RunLoop failed: %v", err)
		}
		if report.Replans != 1 {
			t.Errorf("Expected 1 replan, got %d", report.Replans)
		}
		if diff := cmp.Diff([]string{"create", "code", "deploy"}, report.History[0].Plan); diff != "" {
			t.Errorf("Plan mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("Goal already satisfied", func(t *testing.T) {
		p := linearChain(t)
		loop := newTestLoop(p)
		done := NewWorldState(map[string]interface{}{"deployed": true})

		report, err := loop.RunLoop(ctx, &Plan{}, done, goal)
		if err != nil {
			t.Fatalf("RunLoop failed: %v", err)
		}
		if report.Cycles != 1 || report.StepsExecuted != 0 {
			t.Errorf("Expected immediate completion, got %+v", report)
		}
	})

	t.Run("Recovers from a failed step", func(t *testing.T) {
		var attempts int32
		p := NewPlanner(WithPlannerLogger(quietLogger()))
		mustAdd(t, p,
			NewAction("create", nil, Conditions{"exists": true}, WithExecutor(noop)),
			NewAction("code", Conditions{"exists": true}, Conditions{"coded": true}, WithCost(3),
				WithExecutor(func(ctx context.Context, params map[string]interface{}, current WorldState) (interface{}, error) {
					if atomic.AddInt32(&attempts, 1) == 1 {
						return nil, errors.New("compiler crashed")
					}
					return "ok", nil
				})),
			NewAction("deploy", Conditions{"coded": true}, Conditions{"deployed": true}, WithCost(2), WithExecutor(noop)),
		)
		loop := newTestLoop(p)

		report, err := loop.RunLoop(ctx, p.GeneratePlan(start, goal), start, goal)
		if err != nil {
			t.Fatalf("RunLoop failed: %v", err)
		}
		if report.Failures != 1 || report.Replans != 1 || report.StepsExecuted != 3 {
			t.Errorf("Unexpected counters %+v", report)
		}

		want := []EntryKind{EntryStep, EntryStep, EntryPlanUpdated, EntryStep, EntryStep, EntryCompleted}
		if diff := cmp.Diff(want, entryKinds(report.History)); diff != "" {
			t.Errorf("History mismatch (-want +got):\n%s", diff)
		}
		failed := report.History[1]
		if !failed.Failed() || failed.Action != "code" || !strings.Contains(failed.Error, "compiler crashed") {
			t.Errorf("Expected failed code entry, got %+v", failed)
		}
		if diff := cmp.Diff([]string{"code", "deploy"}, report.History[2].Plan); diff != "" {
			t.Errorf("Replanned mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("Aborts when replanning fails", func(t *testing.T) {
		p := NewPlanner(WithPlannerLogger(quietLogger()))
		mustAdd(t, p,
			NewAction("create", nil, Conditions{"exists": true}, WithExecutor(noop)),
			NewAction("code", Conditions{"exists": true}, Conditions{"coded": true}, WithCost(3),
				WithExecutor(func(ctx context.Context, params map[string]interface{}, current WorldState) (interface{}, error) {
					p.RemoveAction("deploy")
					return nil, errors.New("lost the deploy target")
				})),
			NewAction("deploy", Conditions{"coded": true}, Conditions{"deployed": true}, WithCost(2), WithExecutor(noop)),
		)
		loop := newTestLoop(p)

		report, err := loop.RunLoop(ctx, p.GeneratePlan(start, goal), start, goal)
		if !errors.Is(err, ErrNoPlanFound) {
			t.Fatalf("Expected ErrNoPlanFound, got %v", err)
		}
		if report == nil {
			t.Fatal("Expected a report on abort")
		}
		if report.Status != StatusAborted {
			t.Errorf("Expected aborted, got %s", report.Status)
		}

		want := []EntryKind{EntryStep, EntryStep, EntryAborted}
		if diff := cmp.Diff(want, entryKinds(report.History)); diff != "" {
			t.Errorf("History mismatch (-want +got):\n%s", diff)
		}
		if report.FinalState.Get("exists") != true || report.FinalState.Has("coded") {
			t.Errorf("Failed step must not apply effects, got %s", report.FinalState)
		}
	})

	t.Run("Replans when an action and goal are added mid-run", func(t *testing.T) {
		p := NewPlanner(WithPlannerLogger(quietLogger()))
		mustAdd(t, p,
			NewAction("a", nil, Conditions{"a": true}, WithExecutor(noop)),
			NewAction("b", Conditions{"a": true}, Conditions{"b": true}, WithExecutor(noop)),
		)
		target := NewWorldState(map[string]interface{}{"b": true})

		var loop *ExecutionLoop
		events := &eventLog{}
		inject := ObserverFunc(func(ctx context.Context, event Event) {
			if event.Kind != EventStepExecuted || event.Entry.Action != "a" || event.Entry.Failed() {
				return
			}
			if err := p.AddAction(NewAction("emergency", Conditions{"a": true}, Conditions{"patched": true}, WithExecutor(noop))); err != nil {
				t.Errorf("AddAction failed: %v", err)
			}
			loop.SetGoal(target.Set("patched", true))
		})
		loop = newTestLoop(p, WithObservers(inject, events))

		plan := p.GeneratePlan(start, target)
		if diff := cmp.Diff([]string{"a", "b"}, plan.Names()); diff != "" {
			t.Fatalf("Initial plan mismatch (-want +got):\n%s", diff)
		}

		report, err := loop.RunLoop(ctx, plan, start, target)
		if err != nil {
			t.Fatalf("RunLoop failed: %v", err)
		}

		if report.Replans != 1 {
			t.Errorf("Expected 1 replan, got %d", report.Replans)
		}
		replanned := events.kinds(EventReplanned)
		if len(replanned) != 1 {
			t.Fatalf("Expected 1 replanned event, got %d", len(replanned))
		}
		if diff := cmp.Diff([]string{"b", "emergency"}, replanned[0].Plan); diff != "" {
			t.Errorf("Revised plan mismatch (-want +got):\n%s", diff)
		}

		wantState := NewWorldState(map[string]interface{}{"a": true, "b": true, "patched": true})
		if !report.FinalState.Equal(wantState) {
			t.Errorf("Expected final state %s, got %s", wantState, report.FinalState)
		}
		if !report.Goal.Equal(target.Set("patched", true)) {
			t.Errorf("Report should carry the updated goal, got %s", report.Goal)
		}
	})

	t.Run("Reconciles external state drift", func(t *testing.T) {
		p := linearChain(t)

		var loop *ExecutionLoop
		var calls int32
		external := StateObserverFunc(func(ctx context.Context) (WorldState, error) {
			live := loop.State()
			if atomic.AddInt32(&calls, 1) == 2 {
				return live.Set("coded", true), nil
			}
			return live, nil
		})
		loop = newTestLoop(p, WithStateObserver(external))

		report, err := loop.RunLoop(ctx, p.GeneratePlan(start, goal), start, goal)
		if err != nil {
			t.Fatalf("RunLoop failed: %v", err)
		}
		if report.Replans != 1 || report.StepsExecuted != 2 {
			t.Errorf("Unexpected counters %+v", report)
		}
		if diff := cmp.Diff([]string{"deploy"}, report.Plan); diff != "" {
			t.Errorf("Plan mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("Stop request", func(t *testing.T) {
		p := linearChain(t)
		var loop *ExecutionLoop
		stopper := ObserverFunc(func(ctx context.Context, event Event) {
			if event.Kind == EventStepExecuted {
				loop.Stop()
			}
		})
		loop = newTestLoop(p, WithObservers(stopper))

		report, err := loop.RunLoop(ctx, p.GeneratePlan(start, goal), start, goal)
		if err != nil {
			t.Fatalf("Stop should not return an error, got %v", err)
		}
		if report.Status != StatusStopped {
			t.Errorf("Expected stopped, got %s", report.Status)
		}
		if report.StepsExecuted != 1 || report.Cycles != 1 {
			t.Errorf("Expected one executed cycle, got %+v", report)
		}
		last := report.History[len(report.History)-1]
		if last.Kind != EntryStopped || last.Step != 1 {
			t.Errorf("Expected stopped entry at step 1, got %+v", last)
		}
	})

	t.Run("Each run starts fresh", func(t *testing.T) {
		p := linearChain(t)
		stopOnce := false
		var loop *ExecutionLoop
		stopper := ObserverFunc(func(ctx context.Context, event Event) {
			if event.Kind == EventStepExecuted && !stopOnce {
				stopOnce = true
				loop.Stop()
			}
		})
		loop = newTestLoop(p, WithObservers(stopper))

		first, err := loop.RunLoop(ctx, p.GeneratePlan(start, goal), start, goal)
		if err != nil || first.Status != StatusStopped {
			t.Fatalf("Expected first run to stop, got %s (%v)", first.Status, err)
		}

		second, err := loop.RunLoop(ctx, p.GeneratePlan(start, goal), start, goal)
		if err != nil {
			t.Fatalf("Second run failed: %v", err)
		}
		if second.Status != StatusCompleted {
			t.Errorf("A stop request must not carry over, got %s", second.Status)
		}
		if second.StepsExecuted != 3 || second.Replans != 0 || second.Failures != 0 {
			t.Errorf("Counters carried over: %+v", second)
		}
		want := []EntryKind{EntryStep, EntryStep, EntryStep, EntryCompleted}
		if diff := cmp.Diff(want, entryKinds(second.History)); diff != "" {
			t.Errorf("History mismatch (-want +got):\n%s", diff)
		}
		if loop.History().Len() != 4 {
			t.Errorf("Expected loop history of the second run only, got %d entries", loop.History().Len())
		}
	})

	t.Run("Decisions reach observers", func(t *testing.T) {
		p := linearChain(t)
		events := &eventLog{}
		loop := newTestLoop(p, WithObservers(events))

		if _, err := loop.RunLoop(ctx, p.GeneratePlan(start, goal), start, goal); err != nil {
			t.Fatalf("RunLoop failed: %v", err)
		}

		var decisions []Decision
		for _, ev := range events.kinds(EventPhase) {
			if ev.Decision != "" {
				if ev.Phase != PhaseDeciding {
					t.Errorf("Decision %s reported on phase %s", ev.Decision, ev.Phase)
				}
				decisions = append(decisions, ev.Decision)
			}
		}
		want := []Decision{DecisionContinue, DecisionContinue, DecisionContinue, DecisionComplete}
		if diff := cmp.Diff(want, decisions); diff != "" {
			t.Errorf("Decisions mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("Context cancellation", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		defer cancel()

		p := NewPlanner(WithPlannerLogger(quietLogger()))
		mustAdd(t, p,
			NewAction("create", nil, Conditions{"exists": true}, WithExecutor(func(ctx context.Context, params map[string]interface{}, current WorldState) (interface{}, error) {
				cancel()
				return nil, nil
			})),
			NewAction("deploy", Conditions{"exists": true}, Conditions{"deployed": true}, WithExecutor(noop)),
		)
		loop := newTestLoop(p)

		report, err := loop.RunLoop(cctx, p.GeneratePlan(start, goal), start, goal)
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Expected context.Canceled, got %v", err)
		}
		if report.Status != StatusStopped {
			t.Errorf("Expected stopped, got %s", report.Status)
		}
		if report.FinalState.Get("exists") != true {
			t.Errorf("Completed step should be applied, got %s", report.FinalState)
		}
	})

	t.Run("Cycle limit", func(t *testing.T) {
		p := linearChain(t)
		loop := newTestLoop(p, WithMaxCycles(2))

		report, err := loop.RunLoop(ctx, p.GeneratePlan(start, goal), start, goal)
		if !errors.Is(err, ErrCycleLimit) {
			t.Fatalf("Expected ErrCycleLimit, got %v", err)
		}
		if report.Status != StatusCycleLimit || report.Cycles != 2 || report.StepsExecuted != 2 {
			t.Errorf("Unexpected report %+v", report)
		}
	})

	t.Run("Retries reasoning steps", func(t *testing.T) {
		var calls int32
		p := NewPlanner(WithPlannerLogger(quietLogger()))
		mustAdd(t, p, NewAction("design", nil, Conditions{"deployed": true},
			WithExecutionType(ExecutionReasoning),
			WithReasoner(func(ctx context.Context, params map[string]interface{}, current WorldState) (interface{}, error) {
				if atomic.AddInt32(&calls, 1) == 1 {
					return nil, errors.New("rate limited")
				}
				return "design doc", nil
			}),
		))
		loop := newTestLoop(p, WithReasoningRetry(3, time.Millisecond))

		report, err := loop.RunLoop(ctx, p.GeneratePlan(start, goal), start, goal)
		if err != nil {
			t.Fatalf("RunLoop failed: %v", err)
		}
		if report.Failures != 0 || report.Replans != 0 {
			t.Errorf("Retry should hide the transient failure, got %+v", report)
		}
		if atomic.LoadInt32(&calls) < 2 {
			t.Errorf("Expected at least 2 reasoner calls, got %d", calls)
		}
		if out := report.History[0].Output; out == nil || out.Reasoning != "design doc" {
			t.Errorf("Expected reasoning output, got %+v", out)
		}
	})

	t.Run("Step timeout", func(t *testing.T) {
		p := NewPlanner(WithPlannerLogger(quietLogger()))
		mustAdd(t, p, NewAction("think", nil, Conditions{"deployed": true},
			WithExecutionType(ExecutionReasoning),
			WithReasoner(func(ctx context.Context, params map[string]interface{}, current WorldState) (interface{}, error) {
				<-ctx.Done()
				return nil, ctx.Err()
			}),
		))
		loop := newTestLoop(p, WithStepTimeout(5*time.Millisecond), WithMaxCycles(1))

		report, err := loop.RunLoop(ctx, p.GeneratePlan(start, goal), start, goal)
		if !errors.Is(err, ErrCycleLimit) {
			t.Fatalf("Expected ErrCycleLimit, got %v", err)
		}
		if report.Failures != 1 {
			t.Errorf("Expected 1 failure, got %d", report.Failures)
		}
		if !strings.Contains(report.History[0].Error, context.DeadlineExceeded.Error()) {
			t.Errorf("Expected deadline error, got %q", report.History[0].Error)
		}
	})
}

func TestExecutionLoopOrient(t *testing.T) {
	p := linearChain(t)
	start := NewWorldState(nil)
	goal := NewWorldState(map[string]interface{}{"deployed": true})

	loop := newTestLoop(p)
	loop.plan = p.GeneratePlan(start, goal)
	loop.state = start
	loop.goal = goal

	t.Run("Viable plan", func(t *testing.T) {
		o := loop.Orient(loop.Observe(context.Background()))
		if o.NeedsReplanning || !o.PlanValid || !o.PlanReachesGoal || !o.GoalReachable {
			t.Errorf("Expected viable orientation, got %+v", o)
		}
		if d := loop.Decide(o); d != DecisionContinue {
			t.Errorf("Expected continue, got %s", d)
		}
	})

	t.Run("Broken plan", func(t *testing.T) {
		loop.step = 1
		o := loop.Orient(Observation{})
		if o.PlanValid || !o.NeedsReplanning {
			t.Errorf("Skipping create should invalidate the plan, got %+v", o)
		}
		if d := loop.Decide(o); d != DecisionReplan {
			t.Errorf("Expected replan, got %s", d)
		}
		loop.step = 0
	})

	t.Run("Anomaly forces replanning", func(t *testing.T) {
		o := loop.Orient(Observation{Anomalies: []string{"disk full"}})
		if !o.NeedsReplanning {
			t.Error("Anomalies should force replanning")
		}
	})

	t.Run("Unreachable goal", func(t *testing.T) {
		loop.goal = NewWorldState(map[string]interface{}{"flag": true})
		o := loop.Orient(Observation{})
		if o.GoalReachable || !o.NeedsReplanning {
			t.Errorf("Expected unreachable goal, got %+v", o)
		}
	})
}
