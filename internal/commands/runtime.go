package commands

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"upside-down-research.com/oss/goap/internal/config"
	"upside-down-research.com/oss/goap/internal/goap"
	"upside-down-research.com/oss/goap/internal/memory"
	"upside-down-research.com/oss/goap/internal/o11y"
	"upside-down-research.com/oss/goap/internal/scenario"
	"upside-down-research.com/oss/goap/internal/validation"
)

// runtime bundles what a command needs to plan and execute a scenario.
type runtime struct {
	cfg      *config.Config
	scenario *scenario.Scenario
	planner  *goap.Planner
	goal     *goap.Goal
	metrics  *o11y.Metrics
	sink     memory.Sink
}

// loadConfig loads and validates the configuration file.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	result := validation.ValidateConfig(cfg)
	if !result.IsValid() {
		validation.PrintValidationResult(result)
		return nil, fmt.Errorf("configuration validation failed")
	}
	for _, w := range result.Warnings {
		log.Warn("Configuration warning", "field", w.Field, "message", w.Message)
	}
	return cfg, nil
}

// GoalFlags selects the goal a command plans for.
type GoalFlags struct {
	Goal    string `name:"goal" help:"Goal to plan for (default: highest priority)" xor:"goal"`
	Nearest bool   `name:"nearest" help:"Plan for the unsatisfied goal closest to the start state" xor:"goal"`
}

func selectGoal(s *scenario.Scenario, flags GoalFlags) (*goap.Goal, error) {
	if flags.Nearest {
		return s.NearestGoal()
	}
	return s.SelectGoal(flags.Goal)
}

// newRuntime loads the config and scenario and builds the planner.
func newRuntime(configPath, scenarioPath string, goal GoalFlags) (*runtime, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}

	s, result := validation.ValidateScenarioFile(scenarioPath)
	if !result.IsValid() {
		validation.PrintValidationResult(result)
		return nil, fmt.Errorf("scenario validation failed")
	}
	for _, w := range result.Warnings {
		log.Warn("Scenario warning", "field", w.Field, "message", w.Message)
	}

	rt := &runtime{cfg: cfg, scenario: s}
	opts := plannerOptions(cfg)
	if cfg.Metrics.Enabled {
		rt.metrics = o11y.NewMetrics().WithPushgateway(cfg.Metrics.Pushgateway, cfg.Metrics.Job)
		opts = append(opts, goap.WithSearchHook(rt.metrics.ObserveSearch))
	}

	rt.planner, err = s.Build(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build planner: %w", err)
	}

	rt.goal, err = selectGoal(s, goal)
	if err != nil {
		return nil, err
	}
	return rt, nil
}

func plannerOptions(cfg *config.Config) []goap.PlannerOption {
	return []goap.PlannerOption{
		goap.WithMaxCost(cfg.Planner.MaxCost),
		goap.WithMaxIterations(cfg.Planner.MaxIterations),
		goap.WithPlannerLogger(log.Default()),
	}
}

func loopOptions(cfg *config.Config) []goap.LoopOption {
	return []goap.LoopOption{
		goap.WithMaxCycles(cfg.Loop.MaxCycles),
		goap.WithCycleDelay(cfg.Loop.CycleDelay),
		goap.WithStepTimeout(cfg.Loop.StepTimeout),
		goap.WithReasoningRetry(cfg.Loop.ReasoningRetry.MaxAttempts, cfg.Loop.ReasoningRetry.InitialDelay),
		goap.WithLoopLogger(log.Default()),
	}
}

// search plans for the selected goal. With metrics enabled every planner
// search, including the loop's, is counted through the search hook.
func (rt *runtime) search() goap.SearchResult {
	return rt.planner.Search(rt.scenario.StartState(), rt.goal.DesiredState())
}

// openSink opens the configured sink and returns a recorder for it, or nil
// when no sink is configured.
func (rt *runtime) openSink(ctx context.Context) (*memory.Recorder, error) {
	if rt.cfg.Sink.Backend == "" || rt.cfg.Sink.Backend == config.BackendNone {
		return nil, nil
	}
	sink, err := memory.Open(ctx, rt.cfg.Sink)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s sink: %w", rt.cfg.Sink.Backend, err)
	}
	rt.sink = sink
	return memory.NewRecorder(sink, rt.cfg.Sink.Namespace, rt.cfg.Sink.TTL, log.Default()), nil
}

// close pushes metrics and closes the sink.
func (rt *runtime) close(ctx context.Context) {
	if rt.metrics != nil {
		if err := rt.metrics.Push(ctx); err != nil {
			log.Warn("Failed to push metrics", "error", err)
		}
	}
	if rt.sink != nil {
		if err := rt.sink.Close(); err != nil {
			log.Warn("Failed to close sink", "error", err)
		}
	}
}
