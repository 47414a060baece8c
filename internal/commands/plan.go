package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
)

// PlanCommand searches a plan for a scenario goal
type PlanCommand struct {
	Scenario string `arg:"" name:"scenario" help:"Scenario file" type:"path"`
	Config   string `name:"config" help:"Configuration file path" type:"path"`
	JSON     bool   `name:"json" help:"Print the plan as JSON"`

	GoalFlags `embed:""`
}

type planOutput struct {
	Scenario string   `json:"scenario"`
	Goal     string   `json:"goal"`
	Actions  []string `json:"actions"`
	Cost     float64  `json:"cost"`
	Expanded int      `json:"expanded"`
	Pruned   int      `json:"pruned"`
}

// Run executes the plan command
func (cmd *PlanCommand) Run() error {
	rt, err := newRuntime(cmd.Config, cmd.Scenario, cmd.GoalFlags)
	if err != nil {
		return err
	}
	defer rt.close(context.Background())

	res := rt.search()
	if res.Plan == nil {
		return fmt.Errorf("no plan for goal %s after %d expansions: %w", rt.goal.Name(), res.Expanded, res.Err)
	}

	if cmd.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(planOutput{
			Scenario: rt.scenario.Name,
			Goal:     rt.goal.Name(),
			Actions:  res.Plan.Names(),
			Cost:     res.Plan.Cost,
			Expanded: res.Expanded,
			Pruned:   res.Pruned,
		})
	}

	fmt.Printf("🎯 %s\n\n", rt.goal)
	fmt.Println(res.Plan)
	fmt.Printf("\nExpanded %d nodes, pruned %d\n", res.Expanded, res.Pruned)
	return nil
}
