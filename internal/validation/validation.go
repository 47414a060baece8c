package validation

import (
	"fmt"
	"io"
	"net/url"
	"os"

	"github.com/charmbracelet/log"

	"upside-down-research.com/oss/goap/internal/config"
	"upside-down-research.com/oss/goap/internal/goap"
	"upside-down-research.com/oss/goap/internal/scenario"
)

// ValidationError represents a validation error
type ValidationError struct {
	Field   string
	Message string
	Fix     string // Suggested fix
}

func (e ValidationError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Field, e.Message)
	if e.Fix != "" {
		msg += fmt.Sprintf("\n  Fix: %s", e.Fix)
	}
	return msg
}

// ValidationResult holds validation results
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
}

// IsValid returns true if there are no errors
func (v *ValidationResult) IsValid() bool {
	return len(v.Errors) == 0
}

// AddError adds a validation error
func (v *ValidationResult) AddError(field, message, fix string) {
	v.Errors = append(v.Errors, ValidationError{
		Field:   field,
		Message: message,
		Fix:     fix,
	})
}

// AddWarning adds a validation warning
func (v *ValidationResult) AddWarning(field, message, fix string) {
	v.Warnings = append(v.Warnings, ValidationError{
		Field:   field,
		Message: message,
		Fix:     fix,
	})
}

// ValidateConfig validates the configuration
func ValidateConfig(cfg *config.Config) *ValidationResult {
	result := &ValidationResult{}

	// Planner caps
	if cfg.Planner.MaxCost <= 0 {
		result.AddError("planner.max_cost",
			"must be positive",
			"set planner.max_cost to the largest plan cost you accept")
	}
	if cfg.Planner.MaxIterations < 1 {
		result.AddError("planner.max_iterations",
			"must be at least 1",
			"set planner.max_iterations to a positive number")
	}
	if cfg.Planner.MaxIterations > 1000000 {
		result.AddWarning("planner.max_iterations",
			"very high iteration cap may make failed searches slow",
			"consider 100000 or less")
	}

	// Loop settings
	if cfg.Loop.MaxCycles < 1 {
		result.AddError("loop.max_cycles",
			"must be at least 1",
			"set loop.max_cycles to a positive number")
	}
	if cfg.Loop.CycleDelay < 0 {
		result.AddError("loop.cycle_delay",
			"cannot be negative",
			"use 0 to run cycles back to back")
	}
	if cfg.Loop.StepTimeout < 0 {
		result.AddError("loop.step_timeout",
			"cannot be negative",
			"use 0 to disable the step timeout")
	}
	if cfg.Loop.ReasoningRetry.MaxAttempts < 1 {
		result.AddError("loop.reasoning_retry.max_attempts",
			"must be at least 1",
			"use 1 to disable retries")
	}
	if cfg.Loop.ReasoningRetry.MaxAttempts > 10 {
		result.AddWarning("loop.reasoning_retry.max_attempts",
			"very high retry limit may cause long waits",
			"consider reducing to 5 or less")
	}

	// Sink settings
	switch cfg.Sink.Backend {
	case config.BackendNone, "":
	case config.BackendBadger:
		if cfg.Sink.Badger.Dir == "" && !cfg.Sink.Badger.InMemory {
			result.AddError("sink.badger.dir",
				"no directory configured",
				"set sink.badger.dir or sink.badger.in_memory")
		}
	case config.BackendRedis:
		if cfg.Sink.Redis.Address == "" {
			result.AddError("sink.redis.address",
				"no address configured",
				"set sink.redis.address, e.g. localhost:6379")
		}
	case config.BackendInflux:
		validateURL(result, "sink.influx.url", cfg.Sink.Influx.URL)
		if cfg.Sink.Influx.Bucket == "" {
			result.AddError("sink.influx.bucket",
				"no bucket configured",
				"set sink.influx.bucket")
		}
		if cfg.Sink.Influx.Token == "" {
			result.AddWarning("sink.influx.token",
				"no token configured",
				"export INFLUX_TOKEN=... and reference it as ${INFLUX_TOKEN}")
		}
	default:
		result.AddError("sink.backend",
			fmt.Sprintf("invalid backend '%s'", cfg.Sink.Backend),
			"use one of: none, badger, redis, influx")
	}
	if cfg.Sink.Backend != config.BackendNone && cfg.Sink.Backend != "" && cfg.Sink.Namespace == "" {
		result.AddError("sink.namespace",
			"namespace is empty",
			"set sink.namespace, e.g. goap")
	}

	// Metrics
	if cfg.Metrics.Enabled {
		validateURL(result, "metrics.pushgateway", cfg.Metrics.Pushgateway)
		if cfg.Metrics.Job == "" {
			result.AddError("metrics.job",
				"job name is empty",
				"set metrics.job, e.g. goap")
		}
	}

	return result
}

func validateURL(result *ValidationResult, field, raw string) {
	if raw == "" {
		result.AddError(field, "no URL configured", "set "+field)
		return
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		result.AddError(field,
			fmt.Sprintf("invalid URL '%s'", raw),
			"use a full URL such as http://localhost:8086")
	}
}

// ValidateScenarioFile checks that path names a readable scenario file and
// validates its content.
func ValidateScenarioFile(path string) (*scenario.Scenario, *ValidationResult) {
	result := &ValidationResult{}

	if path == "" {
		result.AddError("scenario",
			"no scenario file provided",
			"provide a YAML scenario file")
		return nil, result
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			result.AddError("scenario",
				fmt.Sprintf("file not found: %s", path),
				"check the file path and try again")
		} else {
			result.AddError("scenario",
				fmt.Sprintf("cannot access file: %v", err),
				"check file permissions")
		}
		return nil, result
	}
	if info.IsDir() {
		result.AddError("scenario",
			fmt.Sprintf("%s is a directory", path),
			"provide a file, not a directory")
		return nil, result
	}

	s, err := scenario.Load(path)
	if err != nil {
		result.AddError("scenario", err.Error(), "fix the YAML syntax")
		return nil, result
	}

	scenarioResult := ValidateScenario(s)
	result.Errors = append(result.Errors, scenarioResult.Errors...)
	result.Warnings = append(result.Warnings, scenarioResult.Warnings...)
	return s, result
}

// ValidateScenario checks action definitions, goals and injections.
func ValidateScenario(s *scenario.Scenario) *ValidationResult {
	result := &ValidationResult{}

	if len(s.Actions) == 0 {
		result.AddError("actions", "scenario has no actions", "add at least one action")
	}
	if len(s.Goals) == 0 {
		result.AddError("goals", "scenario has no goals", "add at least one goal")
	}

	names := make(map[string]bool)
	checkAction := func(field string, spec scenario.ActionSpec) {
		if err := spec.Action().Validate(); err != nil {
			result.AddError(field, err.Error(), "fix the action definition")
		}
		if names[spec.Name] {
			result.AddError(field,
				fmt.Sprintf("duplicate action name '%s'", spec.Name),
				"action names must be unique")
		}
		names[spec.Name] = true
		if spec.Simulate.FailTimes < 0 {
			result.AddError(field+".simulate.fail_times", "cannot be negative", "use 0 for an executor that never fails")
		}
		if len(spec.Effects) == 0 {
			result.AddWarning(field+".effects", "action has no effects", "an action without effects never advances a plan")
		}
	}

	for i, spec := range s.Actions {
		checkAction(fmt.Sprintf("actions[%d]", i), spec)
	}

	goalNames := make(map[string]bool)
	for i, g := range s.Goals {
		field := fmt.Sprintf("goals[%d]", i)
		if g.Name == "" {
			result.AddError(field+".name", "goal has no name", "name every goal")
		} else if goalNames[g.Name] {
			result.AddError(field+".name", fmt.Sprintf("duplicate goal name '%s'", g.Name), "goal names must be unique")
		}
		goalNames[g.Name] = true
		if len(g.State) == 0 {
			result.AddWarning(field+".state", "goal is empty and always satisfied", "add desired propositions")
		}
	}

	for i, inj := range s.Injections {
		field := fmt.Sprintf("injections[%d]", i)
		if !names[inj.AfterStep] {
			result.AddError(field+".after_step",
				fmt.Sprintf("unknown action '%s'", inj.AfterStep),
				"reference an action declared in actions")
		}
		for j, spec := range inj.Actions {
			checkAction(fmt.Sprintf("%s.actions[%d]", field, j), spec)
		}
	}

	if !result.IsValid() {
		return result
	}

	// Reachability only makes sense for a well-formed repertoire.
	planner, err := s.Build(goap.WithPlannerLogger(log.New(io.Discard)))
	if err != nil {
		result.AddError("actions", err.Error(), "fix the action definitions")
		return result
	}
	start, goals := s.StartState(), s.GoalSet()
	for _, g := range goals.Satisfied(start) {
		if g.DesiredState().Len() > 0 {
			result.AddWarning(fmt.Sprintf("goals.%s", g.Name()),
				"already satisfied by the start state",
				"running this goal completes without executing any action")
		}
	}
	for _, g := range goals.Unsatisfied(start) {
		res := planner.Search(start, g.DesiredState())
		if res.Plan == nil {
			result.AddWarning(fmt.Sprintf("goals.%s", g.Name()),
				fmt.Sprintf("no plan from the start state (%v)", res.Err),
				"add actions producing the goal propositions or relax the goal")
		}
	}

	return result
}

// PrintValidationResult prints validation results
func PrintValidationResult(result *ValidationResult) {
	if len(result.Errors) > 0 {
		fmt.Println("❌ Validation Errors:")
		for _, err := range result.Errors {
			fmt.Printf("  • %s\n", err.Error())
		}
		fmt.Println()
	}

	if len(result.Warnings) > 0 {
		fmt.Println("⚠️  Warnings:")
		for _, warn := range result.Warnings {
			fmt.Printf("  • %s: %s\n", warn.Field, warn.Message)
			if warn.Fix != "" {
				fmt.Printf("    Suggestion: %s\n", warn.Fix)
			}
		}
		fmt.Println()
	}

	if result.IsValid() && len(result.Warnings) == 0 {
		fmt.Println("✓ All validations passed")
	}
}
