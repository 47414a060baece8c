package progress

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"upside-down-research.com/oss/goap/internal/goap"
)

// Indicator prints execution loop progress. It implements goap.Observer.
type Indicator struct {
	enabled bool
	verbose bool // also print phase transitions
	out     io.Writer
	mu      sync.Mutex
	start   time.Time
}

// NewIndicator creates a new progress indicator writing to stdout
func NewIndicator(enabled bool) *Indicator {
	return NewIndicatorTo(os.Stdout, enabled, false)
}

// NewIndicatorTo creates an indicator writing to out
func NewIndicatorTo(out io.Writer, enabled, verbose bool) *Indicator {
	return &Indicator{
		enabled: enabled,
		verbose: verbose,
		out:     out,
		start:   time.Now(),
	}
}

// OnEvent renders a loop event
func (p *Indicator) OnEvent(ctx context.Context, event goap.Event) {
	if !p.enabled {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	switch event.Kind {
	case goap.EventPlanGenerated:
		fmt.Fprintf(p.out, "\n📋 Plan (cost %.1f)\n", event.PlanCost)
		p.planLines(event.Plan)
	case goap.EventPhase:
		if !p.verbose {
			return
		}
		if event.Decision != "" {
			fmt.Fprintf(p.out, "  │  [%d] %s -> %s\n", event.Cycle, event.Phase, event.Decision)
			return
		}
		fmt.Fprintf(p.out, "  │  [%d] %s\n", event.Cycle, event.Phase)
	case goap.EventStepExecuted:
		e := event.Entry
		if e == nil {
			return
		}
		if e.Failed() {
			fmt.Fprintf(p.out, "  └─ ✗ %s: %s\n", e.Action, e.Error)
			return
		}
		dur := ""
		if e.Output != nil {
			dur = " (" + formatDuration(e.Output.Duration) + ")"
		}
		fmt.Fprintf(p.out, "  ├─ ✓ %s%s\n", e.Action, dur)
	case goap.EventReplanned:
		fmt.Fprintf(p.out, "\n🔄 Replanned (cost %.1f)\n", event.PlanCost)
		p.planLines(event.Plan)
	case goap.EventFinished:
		if event.Report != nil {
			p.summary(event.Report)
		}
	}
}

func (p *Indicator) planLines(names []string) {
	if len(names) == 0 {
		fmt.Fprintf(p.out, "  └─ (goal already satisfied)\n")
		return
	}
	for i, name := range names {
		fmt.Fprintf(p.out, "  │  %d. %s\n", i+1, name)
	}
}

func (p *Indicator) summary(r *goap.RunReport) {
	symbol := "✓"
	if r.Status != goap.StatusCompleted {
		symbol = "✗"
	}

	fmt.Fprintf(p.out, "\n%s %s in %s\n", symbol, strings.ToUpper(string(r.Status)), formatDuration(time.Since(p.start)))
	fmt.Fprintf(p.out, "  cycles=%d steps=%d replans=%d failures=%d\n", r.Cycles, r.StepsExecuted, r.Replans, r.Failures)
	fmt.Fprintf(p.out, "  final state: %s\n", r.FinalState)
}

// Elapsed returns time since start
func (p *Indicator) Elapsed() time.Duration {
	return time.Since(p.start)
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	minutes := int(d.Minutes())
	seconds := int(d.Seconds()) % 60
	return fmt.Sprintf("%dm%ds", minutes, seconds)
}
