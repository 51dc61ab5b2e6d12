package metrics

import (
	"context"
	"time"

	"github.com/arcanalabs/arcana-server/internal/reward"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests labeled by route, method and status",
		},
		[]string{"route", "method", "status"},
	)
	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)
	ledgerOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_operations_total",
			Help: "Total number of balance operations labeled by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)
	grantsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "credit_grants_total",
			Help: "Total number of credit grants labeled by reason and outcome",
		},
		[]string{"reason", "outcome"},
	)
	unlocksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "content_unlocks_total",
			Help: "Total number of content unlock attempts labeled by outcome",
		},
		[]string{"outcome"},
	)
	flowTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reward_flow_transitions_total",
			Help: "Total number of rewarded-ad flow transitions",
		},
		[]string{"from", "to"},
	)
	errorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "errors_total",
			Help: "Total number of errors split by type and severity",
		},
		[]string{"type", "severity"},
	)
	activeFlows = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "active_reward_flows",
			Help: "Current number of users with a rewarded-ad flow in progress",
		},
	)
	flowsByState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "reward_flows_by_state",
			Help: "Number of rewarded-ad flows per state",
		},
		[]string{"state"},
	)
)

var trackedStates = []reward.State{
	reward.StateIdle,
	reward.StateAdRequested,
	reward.StateAdLoaded,
	reward.StateAdShown,
	reward.StateRewardEarned,
	reward.StateGranting,
	reward.StateError,
}

func init() {
	reward.RegisterTransitionRecorder(RecordStateTransition)
}

// RecordHTTPRequest increments request counters and records duration.
func RecordHTTPRequest(route, method, status string, duration time.Duration) {
	if route == "" {
		route = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	if status == "" {
		status = "unknown"
	}

	httpRequestsTotal.WithLabelValues(route, method, status).Inc()
	httpRequestDurationSeconds.WithLabelValues(route, method).Observe(duration.Seconds())
}

// RecordLedgerOp tracks balance mutations by operation and outcome.
func RecordLedgerOp(operation, outcome string) {
	if operation == "" {
		operation = "unknown"
	}
	if outcome == "" {
		outcome = "unknown"
	}

	ledgerOpsTotal.WithLabelValues(operation, outcome).Inc()
}

// RecordGrant tracks credit grants by reason and outcome.
func RecordGrant(reason, outcome string) {
	if reason == "" {
		reason = "unknown"
	}
	if outcome == "" {
		outcome = "unknown"
	}

	grantsTotal.WithLabelValues(reason, outcome).Inc()
}

// RecordUnlock tracks content unlock attempts.
func RecordUnlock(outcome string) {
	if outcome == "" {
		outcome = "unknown"
	}

	unlocksTotal.WithLabelValues(outcome).Inc()
}

// RecordStateTransition tracks rewarded-ad flow transitions.
func RecordStateTransition(from, to string) {
	if from == "" {
		from = "unknown"
	}
	if to == "" {
		to = "unknown"
	}

	flowTransitionsTotal.WithLabelValues(from, to).Inc()
}

// RecordError increments error counters with metadata.
func RecordError(errType, severity string) {
	if errType == "" {
		errType = "unknown"
	}
	if severity == "" {
		severity = "unknown"
	}

	errorsTotal.WithLabelValues(errType, severity).Inc()
}

// SetActiveFlows updates the gauge for in-progress reward flows.
func SetActiveFlows(count int) {
	activeFlows.Set(float64(count))
}

// SetFlowsByState updates the gauge for the given flow state.
func SetFlowsByState(state string, count int) {
	if state == "" {
		state = "unknown"
	}

	flowsByState.WithLabelValues(state).Set(float64(count))
}

// StateCollector periodically gathers flow state counts and emits gauge metrics.
type StateCollector struct {
	machine reward.Machine
}

// NewStateCollector builds a metrics collector bound to the provided flow controller.
func NewStateCollector(machine reward.Machine) *StateCollector {
	return &StateCollector{machine: machine}
}

// Run polls the flow controller every 10 seconds, updating gauges until ctx is cancelled.
func (c *StateCollector) Run(ctx context.Context) {
	if c == nil || c.machine == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	for {
		_ = c.collect(ctx)

		select {
		case <-ctx.Done():
			return
		case <-time.After(10 * time.Second):
		}
	}
}

func (c *StateCollector) collect(ctx context.Context) error {
	states, err := c.machine.GetAllStates(ctx)
	if err != nil {
		return err
	}

	SetActiveFlows(len(states))

	stateCounts := make(map[string]int, len(states))
	for _, st := range states {
		label := "unknown"
		if st != nil && st.CurrentState != "" {
			label = string(st.CurrentState)
		}
		stateCounts[label]++
	}

	flowsByState.Reset()

	for _, tracked := range trackedStates {
		label := string(tracked)
		SetFlowsByState(label, stateCounts[label])
		delete(stateCounts, label)
	}

	for label, count := range stateCounts {
		SetFlowsByState(label, count)
	}

	return nil
}
