package goap

import "fmt"

// Goal represents a desired state that the agent wants to achieve.
type Goal struct {
	name         string
	description  string
	desiredState WorldState
	// priority orders competing goals, higher first.
	priority float64
}

// NewGoal creates a new Goal with the given parameters.
func NewGoal(name, description string, desiredState WorldState, priority float64) *Goal {
	return &Goal{
		name:         name,
		description:  description,
		desiredState: desiredState,
		priority:     priority,
	}
}

// Name returns the goal's name.
func (g *Goal) Name() string {
	return g.name
}

// Description returns the goal's description.
func (g *Goal) Description() string {
	return g.description
}

// DesiredState returns the WorldState conditions this goal wants to achieve.
func (g *Goal) DesiredState() WorldState {
	return g.desiredState
}

// Priority returns the priority of this goal.
func (g *Goal) Priority() float64 {
	return g.priority
}

// IsSatisfied checks if the goal is satisfied by the current WorldState.
func (g *Goal) IsSatisfied(current WorldState) bool {
	return current.SatisfiesState(g.desiredState)
}

// Distance calculates how far the current state is from satisfying this goal.
func (g *Goal) Distance(current WorldState) int {
	return current.DistanceTo(g.desiredState)
}

// String returns a string representation of the goal.
func (g *Goal) String() string {
	return fmt.Sprintf("Goal[%s: %s, desired=%s, priority=%.2f]",
		g.name, g.description, g.desiredState, g.priority)
}

// GoalSet represents a collection of goals that the agent might pursue.
type GoalSet struct {
	goals []*Goal
}

// NewGoalSet creates a new GoalSet holding goals.
func NewGoalSet(goals ...*Goal) *GoalSet {
	gs := &GoalSet{goals: make([]*Goal, 0, len(goals))}
	gs.goals = append(gs.goals, goals...)
	return gs
}

// Add adds a goal to the set.
func (gs *GoalSet) Add(goal *Goal) {
	gs.goals = append(gs.goals, goal)
}

// Goals returns all goals in the set.
func (gs *GoalSet) Goals() []*Goal {
	return gs.goals
}

// Find returns the goal with the given name.
func (gs *GoalSet) Find(name string) (*Goal, bool) {
	for _, goal := range gs.goals {
		if goal.name == name {
			return goal, true
		}
	}
	return nil, false
}

// HighestPriority returns the goal with the highest priority. Ties keep the
// earliest goal. Returns nil if the set is empty.
func (gs *GoalSet) HighestPriority() *Goal {
	if len(gs.goals) == 0 {
		return nil
	}

	highest := gs.goals[0]
	for _, goal := range gs.goals[1:] {
		if goal.priority > highest.priority {
			highest = goal
		}
	}
	return highest
}

// MostAchievable returns the goal that is closest to being satisfied,
// based on the distance heuristic from the current state.
// Returns nil if the set is empty.
func (gs *GoalSet) MostAchievable(current WorldState) *Goal {
	if len(gs.goals) == 0 {
		return nil
	}

	mostAchievable := gs.goals[0]
	minDistance := mostAchievable.Distance(current)

	for _, goal := range gs.goals[1:] {
		distance := goal.Distance(current)
		if distance < minDistance {
			minDistance = distance
			mostAchievable = goal
		}
	}

	return mostAchievable
}

// Satisfied returns all goals that are currently satisfied.
func (gs *GoalSet) Satisfied(current WorldState) []*Goal {
	satisfied := make([]*Goal, 0)
	for _, goal := range gs.goals {
		if goal.IsSatisfied(current) {
			satisfied = append(satisfied, goal)
		}
	}
	return satisfied
}

// Unsatisfied returns all goals that are not currently satisfied.
func (gs *GoalSet) Unsatisfied(current WorldState) []*Goal {
	unsatisfied := make([]*Goal, 0)
	for _, goal := range gs.goals {
		if !goal.IsSatisfied(current) {
			unsatisfied = append(unsatisfied, goal)
		}
	}
	return unsatisfied
}
