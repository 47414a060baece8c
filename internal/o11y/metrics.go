// Package o11y exposes execution loop and planner metrics to Prometheus.
package o11y

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	"upside-down-research.com/oss/goap/internal/goap"
)

// Metrics is a goap.Observer that counts loop events on its own registry.
type Metrics struct {
	registry *prometheus.Registry
	pusher   *push.Pusher

	plans        prometheus.Counter
	planCost     prometheus.Gauge
	replans      prometheus.Counter
	steps        *prometheus.CounterVec
	stepDuration *prometheus.GaugeVec
	phases       *prometheus.CounterVec
	runs         *prometheus.CounterVec
	searches     *prometheus.CounterVec
	expanded     prometheus.Counter
}

// NewMetrics registers the collectors on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		plans: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "goap_plans_generated_total",
			Help: "Plans handed to the execution loop.",
		}),
		planCost: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "goap_plan_cost",
			Help: "Cost of the current plan.",
		}),
		replans: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "goap_replans_total",
			Help: "Plans replaced during execution.",
		}),
		steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "goap_steps_total",
			Help: "Executed steps by action and outcome.",
		}, []string{"action", "outcome"}),
		stepDuration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "goap_step_duration_seconds",
			Help: "Duration of the last successful execution of each action.",
		}, []string{"action", "type"}),
		phases: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "goap_phase_transitions_total",
			Help: "OODA phases entered.",
		}, []string{"phase"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "goap_runs_total",
			Help: "Finished runs by terminal status.",
		}, []string{"status"}),
		searches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "goap_searches_total",
			Help: "Planner searches by outcome.",
		}, []string{"outcome"}),
		expanded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "goap_search_expanded_nodes_total",
			Help: "Search nodes expanded.",
		}),
	}
	m.registry.MustRegister(m.plans, m.planCost, m.replans, m.steps, m.stepDuration,
		m.phases, m.runs, m.searches, m.expanded)
	return m
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WithPushgateway enables Push to the gateway at url under job.
func (m *Metrics) WithPushgateway(url, job string) *Metrics {
	m.pusher = push.New(url, job).Gatherer(m.registry)
	return m
}

func (m *Metrics) OnEvent(ctx context.Context, event goap.Event) {
	switch event.Kind {
	case goap.EventPlanGenerated:
		m.plans.Inc()
		m.planCost.Set(event.PlanCost)
	case goap.EventReplanned:
		m.replans.Inc()
		m.planCost.Set(event.PlanCost)
	case goap.EventPhase:
		m.phases.WithLabelValues(string(event.Phase)).Inc()
	case goap.EventStepExecuted:
		if event.Entry == nil {
			return
		}
		if event.Entry.Failed() {
			m.steps.WithLabelValues(event.Entry.Action, "failed").Inc()
			return
		}
		m.steps.WithLabelValues(event.Entry.Action, "succeeded").Inc()
		if out := event.Entry.Output; out != nil {
			m.stepDuration.WithLabelValues(out.Action, string(out.Type)).Set(out.Duration.Seconds())
		}
	case goap.EventFinished:
		if event.Report != nil {
			m.runs.WithLabelValues(string(event.Report.Status)).Inc()
		}
	}
}

// ObserveSearch records the outcome of a planner search.
func (m *Metrics) ObserveSearch(result goap.SearchResult) {
	m.expanded.Add(float64(result.Expanded))
	switch {
	case result.Err == nil:
		m.searches.WithLabelValues("found").Inc()
	case errors.Is(result.Err, goap.ErrSearchBudgetExceeded):
		m.searches.WithLabelValues("budget_exceeded").Inc()
	default:
		m.searches.WithLabelValues("no_plan").Inc()
	}
}

// Push sends the current values to the Pushgateway. It is a no-op without
// WithPushgateway.
func (m *Metrics) Push(ctx context.Context) error {
	if m.pusher == nil {
		return nil
	}
	return m.pusher.PushContext(ctx)
}
