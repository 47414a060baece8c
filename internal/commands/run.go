package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"upside-down-research.com/oss/goap/internal/goap"
	"upside-down-research.com/oss/goap/internal/progress"
)

// RunCommand plans and executes a scenario with the OODA loop
type RunCommand struct {
	Scenario string        `arg:"" name:"scenario" help:"Scenario file" type:"path"`
	Config   string        `name:"config" help:"Configuration file path" type:"path"`
	RunID    string        `name:"run-id" help:"Run identifier (default: random UUID)"`
	Timeout  time.Duration `name:"timeout" help:"Stop the run after this long (0 = no limit)"`
	Report   string        `name:"report" help:"Write the run report as JSON to this file" type:"path"`
	Verbose  bool          `name:"verbose" short:"v" help:"Print every OODA phase"`
	Quiet    bool          `name:"quiet" short:"q" help:"Disable progress output"`

	GoalFlags `embed:""`
}

// Run executes the run command
func (cmd *RunCommand) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cmd.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cmd.Timeout)
		defer cancel()
	}

	rt, err := newRuntime(cmd.Config, cmd.Scenario, cmd.GoalFlags)
	if err != nil {
		return err
	}
	defer rt.close(context.Background())

	opts := loopOptions(rt.cfg)
	opts = append(opts, goap.WithObservers(progress.NewIndicatorTo(os.Stdout, !cmd.Quiet, cmd.Verbose)))
	if cmd.RunID != "" {
		opts = append(opts, goap.WithRunID(cmd.RunID))
	}
	if rt.metrics != nil {
		opts = append(opts, goap.WithObservers(rt.metrics))
	}

	recorder, err := rt.openSink(ctx)
	if err != nil {
		return err
	}
	if recorder != nil {
		opts = append(opts, goap.WithObservers(recorder))
	}

	loop := goap.NewExecutionLoop(rt.planner, opts...)
	if len(rt.scenario.Injections) > 0 {
		loop.AddObserver(rt.scenario.NewInjector(rt.planner, loop, log.Default()))
	}

	log.Info("Starting run", "scenario", rt.scenario.Name, "goal", rt.goal.Name(), "runID", loop.RunID())

	res := rt.search()
	if res.Plan == nil {
		log.Warn("No initial plan, the loop will try to replan", "error", res.Err)
	}

	report, runErr := loop.RunLoop(ctx, res.Plan, rt.scenario.StartState(), rt.goal.DesiredState())
	if report != nil && cmd.Report != "" {
		if err := writeReport(cmd.Report, report); err != nil {
			return errors.Join(runErr, err)
		}
		log.Info("Wrote run report", "path", cmd.Report)
	}
	if recorder != nil && recorder.Failures() > 0 {
		log.Warn("Some events were not stored", "failures", recorder.Failures())
	}
	if runErr != nil {
		return fmt.Errorf("run %s ended with status %s: %w", loop.RunID(), reportStatus(report), runErr)
	}
	return nil
}

func reportStatus(r *goap.RunReport) goap.Status {
	if r == nil {
		return "unknown"
	}
	return r.Status
}

func writeReport(path string, report *goap.RunReport) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}
