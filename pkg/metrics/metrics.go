// Package metrics exposes the prometheus collectors shared by SIN, IAF and
// ANC, generalizing the teacher's pkg/metrics package (itself Kubernetes-
// remediation metrics) to the event-plane's own counters/histograms/gauges.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SignalsIngestedTotal counts ingest() results by outcome
	// (accepted, rejected, dlq) per SIN §4.1.
	SignalsIngestedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signals_ingested_total",
		Help: "Total number of signal envelopes processed by SIN, by result.",
	}, []string{"result"})

	// SignalProcessingDuration times a full ingest() pipeline pass for
	// one envelope.
	SignalProcessingDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "signal_processing_duration_seconds",
		Help:    "Duration of a single SIN pipeline pass.",
		Buckets: prometheus.DefBuckets,
	})

	// SignalsFilteredTotal counts signals rejected by a named governance
	// or routing filter.
	SignalsFilteredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signals_filtered_total",
		Help: "Total signals rejected by a named governance or routing filter.",
	}, []string{"filter"})

	// ActionsExecutedTotal counts IAF execute_action calls by canonical
	// action type.
	ActionsExecutedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "actions_executed_total",
		Help: "Total outbound actions executed, by canonical_type.",
	}, []string{"canonical_type"})

	// ActionExecutionErrorsTotal counts execute_action failures by
	// canonical_type and error_type. SIN fan-out also records each routing
	// class that exhausts its retries here, with the class name as
	// canonical_type and error_type "downstream_failure".
	ActionExecutionErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "action_execution_errors_total",
		Help: "Total outbound action execution errors, by canonical_type and error_type.",
	}, []string{"canonical_type", "error_type"})

	// ActionProcessingDuration times execute_action calls.
	ActionProcessingDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "action_processing_duration_seconds",
		Help:    "Duration of outbound action execution.",
		Buckets: prometheus.DefBuckets,
	})

	// WebhookRequestsTotal counts inbound webhook requests by result
	// (success, invalid_signature, replay, timestamp_out_of_range, error).
	WebhookRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_requests_total",
		Help: "Total inbound webhook requests, by result.",
	}, []string{"result"})

	// PollCyclesTotal counts poller orchestrator ticks by outcome.
	PollCyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "poll_cycles_total",
		Help: "Total poller orchestrator cycles, by result.",
	}, []string{"result"})

	// CircuitBreakerStateChangesTotal counts per-connection breaker state
	// transitions.
	CircuitBreakerStateChangesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "circuit_breaker_state_changes_total",
		Help: "Total circuit breaker state transitions, by connection_id and new state.",
	}, []string{"connection_id", "state"})

	// AlertsProcessedTotal counts ANC alert ingest calls.
	AlertsProcessedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "alerts_processed_total",
		Help: "Total alerts ingested by ANC.",
	})

	// AlertsInCooldownTotal tracks alerts currently inside a dedup window.
	AlertsInCooldownTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "alerts_in_cooldown_total",
		Help: "Current number of alerts within their dedup window.",
	})

	// NotificationsSentTotal counts successful channel sends.
	NotificationsSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_sent_total",
		Help: "Total notifications successfully dispatched, by channel.",
	}, []string{"channel"})

	// NotificationsFailedTotal counts terminal dispatch failures.
	NotificationsFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_failed_total",
		Help: "Total notifications that ended failed, by channel and reason.",
	}, []string{"channel", "reason"})

	// EscalationStepsExecutedTotal counts executed escalation steps.
	EscalationStepsExecutedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "escalation_steps_executed_total",
		Help: "Total escalation steps executed.",
	})

	// ConcurrentActionsRunning tracks in-flight outbound action calls.
	ConcurrentActionsRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "concurrent_actions_running",
		Help: "Current number of outbound action calls in flight.",
	})
)

// RecordSignalIngested records the outcome of one ingest() pipeline pass.
func RecordSignalIngested(result string) {
	SignalsIngestedTotal.WithLabelValues(result).Inc()
}

// RecordSignalProcessing records the duration of one ingest() pass.
func RecordSignalProcessing(d time.Duration) {
	SignalProcessingDuration.Observe(d.Seconds())
}

// RecordFilteredSignal increments the named filter's rejection counter.
func RecordFilteredSignal(filter string) {
	SignalsFilteredTotal.WithLabelValues(filter).Inc()
}

// RecordAction records one successful action execution and its duration.
func RecordAction(canonicalType string, d time.Duration) {
	ActionsExecutedTotal.WithLabelValues(canonicalType).Inc()
	ActionProcessingDuration.Observe(d.Seconds())
}

// RecordActionError increments the action error counter.
func RecordActionError(canonicalType, errorType string) {
	ActionExecutionErrorsTotal.WithLabelValues(canonicalType, errorType).Inc()
}

// RecordWebhookRequest increments the webhook result counter.
func RecordWebhookRequest(result string) {
	WebhookRequestsTotal.WithLabelValues(result).Inc()
}

// RecordPollCycle increments the poller cycle counter.
func RecordPollCycle(result string) {
	PollCyclesTotal.WithLabelValues(result).Inc()
}

// RecordCircuitBreakerStateChange increments the breaker transition counter.
func RecordCircuitBreakerStateChange(connectionID, state string) {
	CircuitBreakerStateChangesTotal.WithLabelValues(connectionID, state).Inc()
}

// RecordAlert increments the alerts-processed counter.
func RecordAlert() {
	AlertsProcessedTotal.Inc()
}

// SetAlertsInCooldown sets the current cooldown gauge value.
func SetAlertsInCooldown(n float64) {
	AlertsInCooldownTotal.Set(n)
}

// RecordNotificationSent increments the sent counter for a channel.
func RecordNotificationSent(channel string) {
	NotificationsSentTotal.WithLabelValues(channel).Inc()
}

// RecordNotificationFailed increments the failed counter for a channel/reason.
func RecordNotificationFailed(channel, reason string) {
	NotificationsFailedTotal.WithLabelValues(channel, reason).Inc()
}

// RecordEscalationStep increments the escalation step counter.
func RecordEscalationStep() {
	EscalationStepsExecutedTotal.Inc()
}

// IncrementConcurrentActions increments the in-flight action gauge.
func IncrementConcurrentActions() {
	ConcurrentActionsRunning.Inc()
}

// DecrementConcurrentActions decrements the in-flight action gauge.
func DecrementConcurrentActions() {
	ConcurrentActionsRunning.Dec()
}

// Timer measures elapsed wall-clock time for a single operation.
type Timer struct {
	start time.Time
}

// NewTimer starts a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Elapsed returns the time since the timer started.
func (t *Timer) Elapsed() time.Duration {
	return time.Since(t.start)
}

// RecordAction records the elapsed time as an action execution.
func (t *Timer) RecordAction(canonicalType string) {
	RecordAction(canonicalType, t.Elapsed())
}

// RecordSignalProcessing records the elapsed time as a SIN pipeline pass.
func (t *Timer) RecordSignalProcessing() {
	RecordSignalProcessing(t.Elapsed())
}
