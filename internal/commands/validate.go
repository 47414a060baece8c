package commands

import (
	"fmt"

	"upside-down-research.com/oss/goap/internal/validation"
)

// ValidateCommand validates a scenario file
type ValidateCommand struct {
	Scenario string `arg:"" name:"scenario" help:"Scenario file to validate" type:"path"`
}

// Run executes the validate command
func (cmd *ValidateCommand) Run() error {
	fmt.Printf("📋 Validating scenario file: %s\n\n", cmd.Scenario)

	_, result := validation.ValidateScenarioFile(cmd.Scenario)
	validation.PrintValidationResult(result)

	if !result.IsValid() {
		return fmt.Errorf("validation failed")
	}

	return nil
}
