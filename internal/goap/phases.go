package goap

import (
	"fmt"

	"github.com/felixgeelhaar/statekit"
)

// Phase is a state of the OODA statechart.
type Phase string

const (
	PhaseObserving  Phase = "observing"
	PhaseOrienting  Phase = "orienting"
	PhaseDeciding   Phase = "deciding"
	PhaseActing     Phase = "acting"
	PhaseReplanning Phase = "replanning"
	PhaseCompleted  Phase = "completed"
	PhaseAborted    Phase = "aborted"
	PhaseStopped    Phase = "stopped"
)

// Decision is the outcome of the Decide phase.
type Decision string

const (
	DecisionContinue Decision = "continue"
	DecisionReplan   Decision = "replan"
	DecisionComplete Decision = "complete"
)

const (
	eventOrient   statekit.EventType = "ORIENT"
	eventDecide   statekit.EventType = "DECIDE"
	eventAct      statekit.EventType = "ACT"
	eventReplan   statekit.EventType = "REPLAN"
	eventObserve  statekit.EventType = "OBSERVE"
	eventComplete statekit.EventType = "COMPLETE"
	eventAbort    statekit.EventType = "ABORT"
	eventStop     statekit.EventType = "STOP"
)

// phaseTrace is the statechart context. It counts entries per phase.
type phaseTrace struct {
	visits map[Phase]int
}

func recordEntry(ctx **phaseTrace, event statekit.Event) {
	if ctx == nil || *ctx == nil {
		return
	}
	if phase, ok := event.Payload.(Phase); ok {
		(*ctx).visits[phase]++
	}
}

// newOODAMachine builds the statechart:
//
//	observing -> orienting -> deciding -> acting -> observing
//	deciding -> completed
//	acting -> replanning -> observing | aborted
//	observing -> stopped
func newOODAMachine() (*statekit.MachineConfig[*phaseTrace], error) {
	return statekit.NewMachine[*phaseTrace]("ooda").
		WithInitial(statekit.StateID(PhaseObserving)).
		WithContext(&phaseTrace{}).
		WithAction("record", recordEntry).
		State(statekit.StateID(PhaseObserving)).
		On(eventOrient).Target(statekit.StateID(PhaseOrienting)).Do("record").
		On(eventStop).Target(statekit.StateID(PhaseStopped)).Do("record").
		Done().
		State(statekit.StateID(PhaseOrienting)).
		On(eventDecide).Target(statekit.StateID(PhaseDeciding)).Do("record").
		Done().
		State(statekit.StateID(PhaseDeciding)).
		On(eventAct).Target(statekit.StateID(PhaseActing)).Do("record").
		On(eventComplete).Target(statekit.StateID(PhaseCompleted)).Do("record").
		Done().
		State(statekit.StateID(PhaseActing)).
		On(eventObserve).Target(statekit.StateID(PhaseObserving)).Do("record").
		On(eventReplan).Target(statekit.StateID(PhaseReplanning)).Do("record").
		Done().
		State(statekit.StateID(PhaseReplanning)).
		On(eventObserve).Target(statekit.StateID(PhaseObserving)).Do("record").
		On(eventAbort).Target(statekit.StateID(PhaseAborted)).Do("record").
		Done().
		State(statekit.StateID(PhaseCompleted)).
		Final().
		Done().
		State(statekit.StateID(PhaseAborted)).
		Final().
		Done().
		State(statekit.StateID(PhaseStopped)).
		Final().
		Done().
		Build()
}

// phaseMachine drives the OODA statechart for one run.
type phaseMachine struct {
	interp *statekit.Interpreter[*phaseTrace]
	trace  *phaseTrace
}

func newPhaseMachine() (*phaseMachine, error) {
	machine, err := newOODAMachine()
	if err != nil {
		return nil, fmt.Errorf("failed to build OODA statechart: %w", err)
	}

	trace := &phaseTrace{visits: map[Phase]int{PhaseObserving: 1}}
	interp := statekit.NewInterpreter(machine)
	interp.UpdateContext(func(c **phaseTrace) {
		*c = trace
	})
	interp.Start()

	return &phaseMachine{interp: interp, trace: trace}, nil
}

// send fires event and returns the phase entered. It fails when the
// statechart rejects the event in the current phase.
func (m *phaseMachine) send(event statekit.EventType, target Phase) (Phase, error) {
	from := m.phase()
	m.interp.Send(statekit.Event{Type: event, Payload: target})
	to := m.phase()
	if to != target {
		return to, fmt.Errorf("illegal OODA transition %s from %s", event, from)
	}
	return to, nil
}

func (m *phaseMachine) phase() Phase {
	return Phase(m.interp.State().Value)
}

func (m *phaseMachine) stop() {
	m.interp.Stop()
}

// visits returns a copy of the per-phase entry counts.
func (m *phaseMachine) visits() map[Phase]int {
	out := make(map[Phase]int, len(m.trace.visits))
	for k, v := range m.trace.visits {
		out[k] = v
	}
	return out
}
