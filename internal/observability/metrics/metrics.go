package metrics

import (
	"database/sql"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "hmicore_"

	resultSuccess = "success"
	resultError   = "error"
)

var (
	registerOnce sync.Once

	ingestRequests *prometheus.CounterVec
	ingestErrors   *prometheus.CounterVec
	ingestLatency  *prometheus.HistogramVec

	consumerLag *prometheus.GaugeVec

	alarmEventsTotal *prometheus.CounterVec
	footerSeverity   prometheus.Gauge

	ruleEvaluationsTotal *prometheus.CounterVec
	ruleActionsTotal     *prometheus.CounterVec

	historyExportTotal   *prometheus.CounterVec
	historyExportLatency *prometheus.HistogramVec

	notifyTotal *prometheus.CounterVec
)

// Init registers observability metrics and DB-backed gauges.
func Init(db *sql.DB, logger *log.Logger) {
	registerOnce.Do(func() {
		ingestRequests = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "ingest_requests_total",
				Help: "Total ingest requests by result",
			},
			[]string{"result"},
		)
		ingestErrors = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "ingest_errors_total",
				Help: "Total ingest errors by reason",
			},
			[]string{"reason"},
		)
		ingestLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "ingest_latency_seconds",
				Help:    "Ingest latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)

		consumerLag = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "event_consumer_lag_seconds",
				Help: "Consumer processing lag in seconds",
			},
			[]string{"consumer"},
		)

		alarmEventsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "alarm_events_total",
				Help: "Total alarm lifecycle events by type",
			},
			[]string{"event"},
		)
		footerSeverity = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "footer_severity_level",
				Help: "Current aggregate footer severity level",
			},
		)

		ruleEvaluationsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "rule_evaluations_total",
				Help: "Total rule evaluations by outcome",
			},
			[]string{"outcome"},
		)
		ruleActionsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "rule_actions_total",
				Help: "Total dispatched rule actions by type and result",
			},
			[]string{"type", "result"},
		)

		historyExportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "history_export_total",
				Help: "Total history export operations by format and result",
			},
			[]string{"format", "result"},
		)
		historyExportLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "history_export_latency_seconds",
				Help:    "History export latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"format", "result"},
		)

		notifyTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "notifications_total",
				Help: "Total outbound notifications by channel and result",
			},
			[]string{"channel", "result"},
		)

		prometheus.MustRegister(
			ingestRequests,
			ingestErrors,
			ingestLatency,
			consumerLag,
			alarmEventsTotal,
			footerSeverity,
			ruleEvaluationsTotal,
			ruleActionsTotal,
			historyExportTotal,
			historyExportLatency,
			notifyTotal,
		)
		footerSeverity.Set(1)

		if db != nil {
			registerDBMetrics(db, logger)
		}
	})
}

// ObserveIngest records ingest request duration and result.
func ObserveIngest(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if ingestRequests != nil {
		ingestRequests.WithLabelValues(result).Inc()
	}
	if ingestLatency != nil {
		ingestLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// IncIngestError increments ingest error counter.
func IncIngestError(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	if ingestErrors != nil {
		ingestErrors.WithLabelValues(reason).Inc()
	}
}

// ObserveConsumerLag sets consumer lag in seconds.
func ObserveConsumerLag(consumer string, lag time.Duration) {
	if consumer == "" {
		consumer = "unknown"
	}
	if lag < 0 {
		lag = 0
	}
	if consumerLag != nil {
		consumerLag.WithLabelValues(consumer).Set(lag.Seconds())
	}
}

// IncAlarmEvent increments alarm lifecycle counters.
func IncAlarmEvent(event string) {
	if event == "" {
		event = "unknown"
	}
	if alarmEventsTotal != nil {
		alarmEventsTotal.WithLabelValues(event).Inc()
	}
}

// SetFooterSeverity publishes the current aggregate severity level.
func SetFooterSeverity(level int) {
	if footerSeverity != nil {
		footerSeverity.Set(float64(level))
	}
}

// IncRuleEvaluation increments rule evaluation counter by outcome.
func IncRuleEvaluation(outcome string) {
	if outcome == "" {
		outcome = "unknown"
	}
	if ruleEvaluationsTotal != nil {
		ruleEvaluationsTotal.WithLabelValues(outcome).Inc()
	}
}

// IncRuleAction increments dispatched action counter.
func IncRuleAction(actionType, result string) {
	if actionType == "" {
		actionType = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if ruleActionsTotal != nil {
		ruleActionsTotal.WithLabelValues(actionType, result).Inc()
	}
}

// ObserveHistoryExport records export latency and result.
func ObserveHistoryExport(format, result string, duration time.Duration) {
	if format == "" {
		format = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if historyExportTotal != nil {
		historyExportTotal.WithLabelValues(format, result).Inc()
	}
	if historyExportLatency != nil {
		historyExportLatency.WithLabelValues(format, result).Observe(duration.Seconds())
	}
}

// IncNotification increments outbound notification counter.
func IncNotification(channel, result string) {
	if channel == "" {
		channel = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if notifyTotal != nil {
		notifyTotal.WithLabelValues(channel, result).Inc()
	}
}

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError

	RuleOutcomeMatched = "matched"
	RuleOutcomeSkipped = "skipped"
	RuleOutcomeError   = "error"
)
