package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"upside-down-research.com/oss/goap/internal/goap"
)

// DefaultStoreTimeout bounds a single Store call.
const DefaultStoreTimeout = 5 * time.Second

// Recorder is a goap.Observer that stores plan, decision, step, replan and
// finish events in a Sink. Keys are "<runID>/<seq>/<kind>" so a run's events sort
// in emission order. Store failures are logged and never reach the loop.
//
// Stores outlive cancellation of the loop's context, so the last step and
// the finished report of an interrupted run are still written.
type Recorder struct {
	sink      Sink
	namespace string
	ttl       time.Duration
	timeout   time.Duration
	logger    *log.Logger
	seq       atomic.Int64
	failures  atomic.Int64
}

// NewRecorder creates a Recorder writing to sink.
func NewRecorder(sink Sink, namespace string, ttl time.Duration, logger *log.Logger) *Recorder {
	if logger == nil {
		logger = log.Default()
	}
	return &Recorder{
		sink:      sink,
		namespace: namespace,
		ttl:       ttl,
		timeout:   DefaultStoreTimeout,
		logger:    logger,
	}
}

func (r *Recorder) OnEvent(ctx context.Context, event goap.Event) {
	switch event.Kind {
	case goap.EventPlanGenerated, goap.EventStepExecuted, goap.EventReplanned, goap.EventFinished:
	case goap.EventPhase:
		if event.Decision == "" {
			return
		}
	default:
		return
	}

	data, err := json.Marshal(event)
	if err != nil {
		r.failures.Add(1)
		r.logger.Warn("Failed to encode event", "kind", event.Kind, "error", err)
		return
	}

	key := EventKey(event.RunID, r.seq.Add(1), event.Kind)
	storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()
	if err := r.sink.Store(storeCtx, r.namespace, key, data, r.ttl); err != nil {
		r.failures.Add(1)
		r.logger.Warn("Failed to store event", "key", key, "error", err)
	}
}

// Failures returns the number of events that could not be stored.
func (r *Recorder) Failures() int64 {
	return r.failures.Load()
}

// EventKey builds the key of the seq-th event of a run.
func EventKey(runID string, seq int64, kind goap.EventKind) string {
	return fmt.Sprintf("%s/%06d/%s", runID, seq, kind)
}
