package goap

import (
	"container/heap"
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
)

const (
	// DefaultMaxIterations caps the number of expanded nodes per search.
	DefaultMaxIterations = 1000
	// DefaultMaxCost caps the accumulated path cost of a candidate plan.
	DefaultMaxCost = 1000.0
)

// Plan represents a sequence of actions that will achieve a goal.
type Plan struct {
	Actions []*Action
	Cost    float64
}

// Len returns the number of steps in the plan.
func (p *Plan) Len() int {
	if p == nil {
		return 0
	}
	return len(p.Actions)
}

// Names returns the action names in order.
func (p *Plan) Names() []string {
	if p == nil {
		return nil
	}
	names := make([]string, len(p.Actions))
	for i, a := range p.Actions {
		names[i] = a.Name()
	}
	return names
}

// Validate applies the plan from start and checks that every step is
// applicable and that the final state satisfies goal.
func (p *Plan) Validate(start, goal WorldState) error {
	state := start
	for i, action := range p.Actions {
		next, err := action.Apply(state)
		if err != nil {
			return fmt.Errorf("step %d: %w", i, err)
		}
		state = next
	}
	if !state.SatisfiesState(goal) {
		return fmt.Errorf("plan ends in %s which does not satisfy goal %s", state, goal)
	}
	return nil
}

// String returns a string representation of the plan.
func (p *Plan) String() string {
	if p == nil || len(p.Actions) == 0 {
		return "Empty Plan"
	}

	parts := make([]string, len(p.Actions))
	for i, action := range p.Actions {
		parts[i] = fmt.Sprintf("%d. %s", i+1, action.Name())
	}

	return fmt.Sprintf("Plan (cost: %.2f):\n%s", p.Cost, strings.Join(parts, "\n"))
}

// SearchResult describes the outcome of a single search.
type SearchResult struct {
	// Plan is nil when no plan was found.
	Plan *Plan
	// Expanded is the number of nodes taken off the frontier and expanded.
	Expanded int
	// Pruned counts successors dropped for exceeding the cost cap.
	Pruned int
	// Err is nil on success, ErrSearchBudgetExceeded when a cap stopped the
	// search and ErrNoPlanFound otherwise.
	Err error
}

// Planner finds a low-cost sequence of actions from a start state to a goal
// state using best-first search ordered by f = g + h.
type Planner struct {
	mu            sync.RWMutex
	actions       map[string]*Action
	order         []string
	maxCost       float64
	maxIterations int
	logger        *log.Logger
	onSearch      []func(SearchResult)
}

// PlannerOption configures a Planner.
type PlannerOption func(*Planner)

// WithMaxCost sets the path cost cap. Candidates above it are pruned.
func WithMaxCost(maxCost float64) PlannerOption {
	return func(p *Planner) {
		p.maxCost = maxCost
	}
}

// WithMaxIterations sets the cap on expanded nodes.
func WithMaxIterations(n int) PlannerOption {
	return func(p *Planner) {
		p.maxIterations = n
	}
}

// WithPlannerLogger sets the logger used by the planner.
func WithPlannerLogger(logger *log.Logger) PlannerOption {
	return func(p *Planner) {
		p.logger = logger
	}
}

// WithSearchHook registers fn to receive the result of every search,
// including the ones the execution loop runs while orienting and replanning.
func WithSearchHook(fn func(SearchResult)) PlannerOption {
	return func(p *Planner) {
		p.onSearch = append(p.onSearch, fn)
	}
}

// NewPlanner creates a Planner with an empty action repertoire.
func NewPlanner(opts ...PlannerOption) *Planner {
	p := &Planner{
		actions:       make(map[string]*Action),
		maxCost:       DefaultMaxCost,
		maxIterations: DefaultMaxIterations,
		logger:        log.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.maxIterations <= 0 {
		p.maxIterations = DefaultMaxIterations
	}
	if p.maxCost <= 0 {
		p.maxCost = DefaultMaxCost
	}
	return p
}

// AddAction validates and registers an action. Registering an existing name
// replaces the old action but keeps its position in the expansion order.
func (p *Planner) AddAction(action *Action) error {
	if action == nil {
		return &InvalidActionError{Reason: "action is nil"}
	}
	if err := action.Validate(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.actions[action.Name()]; !exists {
		p.order = append(p.order, action.Name())
	}
	p.actions[action.Name()] = action
	return nil
}

// AddActions registers several actions, stopping at the first invalid one.
func (p *Planner) AddActions(actions ...*Action) error {
	for _, action := range actions {
		if err := p.AddAction(action); err != nil {
			return err
		}
	}
	return nil
}

// RemoveAction removes an action by name and reports whether it existed.
func (p *Planner) RemoveAction(name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.actions[name]; !exists {
		return false
	}
	delete(p.actions, name)
	for i, n := range p.order {
		if n == name {
			p.order = append(p.order[:i:i], p.order[i+1:]...)
			break
		}
	}
	return true
}

// Action looks up a registered action.
func (p *Planner) Action(name string) (*Action, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	a, ok := p.actions[name]
	return a, ok
}

// Actions returns the repertoire in registration order.
func (p *Planner) Actions() []*Action {
	p.mu.RLock()
	defer p.mu.RUnlock()

	actions := make([]*Action, 0, len(p.order))
	for _, name := range p.order {
		actions = append(actions, p.actions[name])
	}
	return actions
}

// GeneratePlan returns a plan from start to goal, or nil when none exists
// within the configured caps.
func (p *Planner) GeneratePlan(start, goal WorldState) *Plan {
	return p.Search(start, goal).Plan
}

// Search runs best-first search from start to goal.
//
// Nodes are dequeued by ascending f = g + h, ties broken by insertion order,
// so the result is deterministic for fixed inputs. The first dequeued node
// whose state satisfies goal ends the search. Because h is a mismatch count,
// the plan is low-cost but not guaranteed optimal.
func (p *Planner) Search(start, goal WorldState) SearchResult {
	result := p.search(start, goal)
	for _, fn := range p.onSearch {
		fn(result)
	}
	return result
}

func (p *Planner) search(start, goal WorldState) SearchResult {
	// Snapshot the repertoire so concurrent AddAction calls cannot change it
	// mid-search.
	actions := p.Actions()

	p.logger.Debug("Starting plan search", "start", start.String(), "goal", goal.String(), "actions", len(actions))

	frontier := &priorityQueue{}
	heap.Init(frontier)

	seq := 0
	heap.Push(frontier, &planNode{
		state: start,
		h:     float64(start.DistanceTo(goal)),
		seq:   seq,
	})

	closed := make(map[string]bool)
	result := SearchResult{}

	for frontier.Len() > 0 {
		if result.Expanded >= p.maxIterations {
			p.logger.Warn("Plan search reached max iterations", "maxIterations", p.maxIterations, "goal", goal.String())
			result.Err = ErrSearchBudgetExceeded
			return result
		}

		current := heap.Pop(frontier).(*planNode)
		key := current.state.CanonicalKey()
		if closed[key] {
			continue
		}
		closed[key] = true

		if current.state.SatisfiesState(goal) {
			result.Plan = current.reconstruct()
			p.logger.Debug("Plan found", "actions", result.Plan.Len(), "cost", result.Plan.Cost, "iterations", result.Expanded)
			return result
		}

		result.Expanded++

		for _, action := range actions {
			if !action.IsApplicable(current.state) {
				continue
			}

			next, err := action.Apply(current.state)
			if err != nil {
				continue
			}
			if closed[next.CanonicalKey()] {
				continue
			}

			g := current.g + action.Cost()
			if g > p.maxCost {
				result.Pruned++
				continue
			}

			seq++
			heap.Push(frontier, &planNode{
				state:  next,
				action: action,
				parent: current,
				g:      g,
				h:      float64(next.DistanceTo(goal)),
				seq:    seq,
			})
		}
	}

	if result.Pruned > 0 {
		p.logger.Warn("No plan found within cost cap", "maxCost", p.maxCost, "pruned", result.Pruned, "goal", goal.String())
		result.Err = ErrSearchBudgetExceeded
	} else {
		p.logger.Warn("No plan found to achieve goal", "goal", goal.String(), "expanded", result.Expanded)
		result.Err = ErrNoPlanFound
	}
	return result
}

// planNode is a node in the search tree. parent links form a tree rooted at
// the start state.
type planNode struct {
	state  WorldState
	action *Action
	parent *planNode
	g      float64
	h      float64
	seq    int
	index  int
}

func (n *planNode) f() float64 {
	return n.g + n.h
}

// reconstruct walks the parent chain back to the root.
func (n *planNode) reconstruct() *Plan {
	var reversed []*Action
	for node := n; node.parent != nil; node = node.parent {
		reversed = append(reversed, node.action)
	}
	actions := make([]*Action, len(reversed))
	for i, a := range reversed {
		actions[len(reversed)-1-i] = a
	}
	return &Plan{Actions: actions, Cost: n.g}
}

// priorityQueue implements a min-heap of nodes by f, then by insertion order.
type priorityQueue []*planNode

func (pq priorityQueue) Len() int { return len(pq) }

func (pq priorityQueue) Less(i, j int) bool {
	fi, fj := pq[i].f(), pq[j].f()
	if fi != fj {
		return fi < fj
	}
	return pq[i].seq < pq[j].seq
}

func (pq priorityQueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].index = i
	pq[j].index = j
}

func (pq *priorityQueue) Push(x interface{}) {
	n := len(*pq)
	node := x.(*planNode)
	node.index = n
	*pq = append(*pq, node)
}

func (pq *priorityQueue) Pop() interface{} {
	old := *pq
	n := len(old)
	node := old[n-1]
	old[n-1] = nil
	node.index = -1
	*pq = old[0 : n-1]
	return node
}
