package goap

import (
	"fmt"
	"strings"
	"time"
)

// MaxParallelGroupSize caps the size of a parallelizable group.
const MaxParallelGroupSize = 3

// EstimatedDurations is the per-strategy duration table used by AnalyzePlan.
// Deterministic code is fastest and an external reasoning call is slowest.
var EstimatedDurations = map[ExecutionType]time.Duration{
	ExecutionDeterministic: 100 * time.Millisecond,
	ExecutionCombined:      2 * time.Second,
	ExecutionReasoning:     3 * time.Second,
}

// PlanAnalysis contains statistics about a plan.
type PlanAnalysis struct {
	Steps             int
	TotalCost         float64
	EstimatedDuration time.Duration
	// ParallelizableGroups partitions the plan, in order, into runs of
	// mutually non-conflicting action names. It is advisory only.
	ParallelizableGroups [][]string
	ByType               map[ExecutionType]int
}

// AnalyzePlan computes cost, duration and grouping information for plan.
func (p *Planner) AnalyzePlan(plan *Plan) *PlanAnalysis {
	return AnalyzePlan(plan)
}

// AnalyzePlan computes cost, duration and grouping information for plan.
func AnalyzePlan(plan *Plan) *PlanAnalysis {
	analysis := &PlanAnalysis{
		ParallelizableGroups: [][]string{},
		ByType:               make(map[ExecutionType]int),
	}
	if plan == nil {
		return analysis
	}

	analysis.Steps = len(plan.Actions)
	for _, action := range plan.Actions {
		analysis.TotalCost += action.Cost()
		analysis.EstimatedDuration += EstimatedDurations[action.ExecutionType()]
		analysis.ByType[action.ExecutionType()]++
	}

	for _, group := range parallelGroups(plan.Actions, MaxParallelGroupSize) {
		names := make([]string, len(group))
		for i, a := range group {
			names[i] = a.Name()
		}
		analysis.ParallelizableGroups = append(analysis.ParallelizableGroups, names)
	}

	return analysis
}

// parallelGroups greedily packs consecutive non-conflicting actions.
func parallelGroups(actions []*Action, maxSize int) [][]*Action {
	var groups [][]*Action
	var current []*Action

	for _, action := range actions {
		if len(current) > 0 && (len(current) >= maxSize || conflictsWithAny(action, current)) {
			groups = append(groups, current)
			current = nil
		}
		current = append(current, action)
	}
	if len(current) > 0 {
		groups = append(groups, current)
	}
	return groups
}

func conflictsWithAny(action *Action, group []*Action) bool {
	for _, other := range group {
		if actionsConflict(action, other) {
			return true
		}
	}
	return false
}

// actionsConflict reports whether one action's effects touch the other's
// preconditions or both write the same key.
func actionsConflict(a, b *Action) bool {
	return a.effects.overlaps(b.preconditions) ||
		b.effects.overlaps(a.preconditions) ||
		a.effects.overlaps(b.effects)
}

func (pa *PlanAnalysis) String() string {
	groups := make([]string, len(pa.ParallelizableGroups))
	for i, g := range pa.ParallelizableGroups {
		groups[i] = "[" + strings.Join(g, " ") + "]"
	}
	return fmt.Sprintf("PlanAnalysis{steps=%d, cost=%.1f, duration=%s, groups=%s}",
		pa.Steps, pa.TotalCost, pa.EstimatedDuration, strings.Join(groups, ""))
}
