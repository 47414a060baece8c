package goap

import (
	"context"
	"io"
	"testing"

	"github.com/charmbracelet/log"
)

func quietLogger() *log.Logger {
	return log.New(io.Discard)
}

func noop(ctx context.Context, params map[string]interface{}, ws WorldState) (interface{}, error) {
	return nil, nil
}

func mustAdd(t *testing.T, p *Planner, actions ...*Action) {
	t.Helper()
	if err := p.AddActions(actions...); err != nil {
		t.Fatalf("AddActions failed: %v", err)
	}
}

// linearChain returns the create -> code -> deploy repertoire.
func linearChain(t *testing.T) *Planner {
	t.Helper()
	p := NewPlanner(WithPlannerLogger(quietLogger()))
	mustAdd(t, p,
		NewAction("create", nil, Conditions{"exists": true}, WithCost(1), WithExecutor(noop)),
		NewAction("code", Conditions{"exists": true}, Conditions{"coded": true}, WithCost(3), WithExecutor(noop)),
		NewAction("deploy", Conditions{"coded": true}, Conditions{"deployed": true}, WithCost(2), WithExecutor(noop)),
	)
	return p
}
