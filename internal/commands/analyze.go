package commands

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"upside-down-research.com/oss/goap/internal/goap"
)

// AnalyzeCommand prints cost, duration and parallelism estimates for a plan
type AnalyzeCommand struct {
	Scenario string `arg:"" name:"scenario" help:"Scenario file" type:"path"`
	Config   string `name:"config" help:"Configuration file path" type:"path"`

	GoalFlags `embed:""`
}

// Run executes the analyze command
func (cmd *AnalyzeCommand) Run() error {
	rt, err := newRuntime(cmd.Config, cmd.Scenario, cmd.GoalFlags)
	if err != nil {
		return err
	}
	defer rt.close(context.Background())

	res := rt.search()
	if res.Plan == nil {
		return fmt.Errorf("no plan for goal %s: %w", rt.goal.Name(), res.Err)
	}

	analysis := rt.planner.AnalyzePlan(res.Plan)

	fmt.Printf("📊 Plan analysis for %s\n\n", rt.goal.Name())
	fmt.Printf("  Steps:              %d\n", analysis.Steps)
	fmt.Printf("  Total cost:         %.2f\n", analysis.TotalCost)
	fmt.Printf("  Estimated duration: %s\n", analysis.EstimatedDuration)

	types := make([]string, 0, len(analysis.ByType))
	for t := range analysis.ByType {
		types = append(types, string(t))
	}
	sort.Strings(types)
	for _, t := range types {
		fmt.Printf("  %-19s %d\n", t+":", analysis.ByType[goap.ExecutionType(t)])
	}

	fmt.Println("\n  Parallelizable groups:")
	for i, group := range analysis.ParallelizableGroups {
		fmt.Printf("    %d. [%s]\n", i+1, strings.Join(group, ", "))
	}
	return nil
}
