package commands

import (
	"context"
	"encoding/json"
	"fmt"

	"upside-down-research.com/oss/goap/internal/config"
	"upside-down-research.com/oss/goap/internal/goap"
	"upside-down-research.com/oss/goap/internal/memory"
)

// EventsCommand lists events stored by a run in the badger sink
type EventsCommand struct {
	RunID  string `arg:"" name:"run-id" help:"Run identifier"`
	Config string `name:"config" help:"Configuration file path" type:"path"`
}

// Run executes the events command
func (cmd *EventsCommand) Run() error {
	cfg, err := loadConfig(cmd.Config)
	if err != nil {
		return err
	}
	if cfg.Sink.Backend != config.BackendBadger {
		return fmt.Errorf("listing events needs the badger sink, configured backend is %q", cfg.Sink.Backend)
	}

	sink, err := memory.NewBadgerSink(cfg.Sink.Badger.Dir, cfg.Sink.Badger.InMemory)
	if err != nil {
		return err
	}
	defer sink.Close()

	records, err := sink.Scan(context.Background(), cfg.Sink.Namespace, cmd.RunID+"/")
	if err != nil {
		return fmt.Errorf("failed to read events: %w", err)
	}
	if len(records) == 0 {
		fmt.Printf("No events stored for run %s\n", cmd.RunID)
		return nil
	}

	for _, r := range records {
		var event goap.Event
		if err := json.Unmarshal(r.Value, &event); err != nil {
			fmt.Printf("%s  (undecodable: %v)\n", r.Key, err)
			continue
		}
		fmt.Printf("%s  %s\n", event.Time.Format("15:04:05.000"), describeEvent(event))
	}
	return nil
}

func describeEvent(e goap.Event) string {
	switch e.Kind {
	case goap.EventPlanGenerated, goap.EventReplanned:
		return fmt.Sprintf("%-14s cycle=%d plan=%v cost=%.1f", e.Kind, e.Cycle, e.Plan, e.PlanCost)
	case goap.EventStepExecuted:
		if e.Entry == nil {
			return string(e.Kind)
		}
		if e.Entry.Failed() {
			return fmt.Sprintf("%-14s cycle=%d step=%d action=%s error=%q", e.Kind, e.Cycle, e.Entry.Step, e.Entry.Action, e.Entry.Error)
		}
		return fmt.Sprintf("%-14s cycle=%d step=%d action=%s", e.Kind, e.Cycle, e.Entry.Step, e.Entry.Action)
	case goap.EventPhase:
		return fmt.Sprintf("%-14s cycle=%d decision=%s", "decision", e.Cycle, e.Decision)
	case goap.EventFinished:
		if e.Report == nil {
			return string(e.Kind)
		}
		return fmt.Sprintf("%-14s status=%s cycles=%d replans=%d", e.Kind, e.Report.Status, e.Report.Cycles, e.Report.Replans)
	}
	return string(e.Kind)
}
