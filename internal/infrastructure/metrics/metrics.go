// Package metrics exposes the engine's business counters in Prometheus format.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "settlement_engine_"

	resultSuccess = "success"
	resultError   = "error"
)

// Result labels shared by the observe functions.
const (
	ResultSuccess  = resultSuccess
	ResultError    = resultError
	ResultExisting = "existing"
	ResultSkipped  = "skipped"

	PayoutResultPaid    = "paid"
	PayoutResultFailed  = "failed"
	PayoutResultUnknown = "unknown"
	PayoutResultManual  = "manual"
)

var (
	registerOnce sync.Once

	settlementGenerateTotal   *prometheus.CounterVec
	settlementGenerateLatency *prometheus.HistogramVec
	settlementAmountTotal     *prometheus.CounterVec

	payoutTotal   *prometheus.CounterVec
	payoutLatency *prometheus.HistogramVec

	providerCallTotal   *prometheus.CounterVec
	providerCallLatency *prometheus.HistogramVec

	dunningEvaluateTotal   *prometheus.CounterVec
	dunningEvaluateLatency *prometheus.HistogramVec
	dunningTransitions     *prometheus.CounterVec

	eventsTotal *prometheus.CounterVec
)

// Init creates and registers the collectors. Only the first call has an effect.
// A nil registerer registers against prometheus.DefaultRegisterer.
func Init(reg prometheus.Registerer) {
	registerOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}

		settlementGenerateTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "settlement_generate_total",
				Help: "Total settlement generate operations by result",
			},
			[]string{"result"},
		)
		settlementGenerateLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "settlement_generate_latency_seconds",
				Help:    "Settlement generate latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		settlementAmountTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "settlement_amount_total",
				Help: "Sum of settled amounts by component (gross, fee, net)",
			},
			[]string{"component"},
		)

		payoutTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "payout_total",
				Help: "Total payout executions by outcome",
			},
			[]string{"result"},
		)
		payoutLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "payout_latency_seconds",
				Help:    "Payout execution latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)

		providerCallTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "provider_calls_total",
				Help: "Total payout provider calls by operation and result",
			},
			[]string{"operation", "result"},
		)
		providerCallLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "provider_call_latency_seconds",
				Help:    "Payout provider call latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		)

		dunningEvaluateTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "dunning_evaluate_total",
				Help: "Total dunning evaluations by result and whether the level changed",
			},
			[]string{"result", "changed"},
		)
		dunningEvaluateLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "dunning_evaluate_latency_seconds",
				Help:    "Dunning evaluation latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		dunningTransitions = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "dunning_transitions_total",
				Help: "Total dunning level transitions by action",
			},
			[]string{"action"},
		)

		eventsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "domain_events_total",
				Help: "Total domain events published by type",
			},
			[]string{"event"},
		)

		reg.MustRegister(
			settlementGenerateTotal,
			settlementGenerateLatency,
			settlementAmountTotal,
			payoutTotal,
			payoutLatency,
			providerCallTotal,
			providerCallLatency,
			dunningEvaluateTotal,
			dunningEvaluateLatency,
			dunningTransitions,
			eventsTotal,
		)
	})
}

// ObserveSettlementGenerate records generate latency and result.
func ObserveSettlementGenerate(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if settlementGenerateTotal != nil {
		settlementGenerateTotal.WithLabelValues(result).Inc()
	}
	if settlementGenerateLatency != nil {
		settlementGenerateLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// AddSettledAmounts adds the totals of a newly generated settlement.
func AddSettledAmounts(gross, fee, net float64) {
	if settlementAmountTotal == nil {
		return
	}
	settlementAmountTotal.WithLabelValues("gross").Add(nonNegative(gross))
	settlementAmountTotal.WithLabelValues("fee").Add(nonNegative(fee))
	settlementAmountTotal.WithLabelValues("net").Add(nonNegative(net))
}

// ObservePayout records a payout execution outcome.
func ObservePayout(result string, duration time.Duration) {
	if result == "" {
		result = "unknown"
	}
	if payoutTotal != nil {
		payoutTotal.WithLabelValues(result).Inc()
	}
	if payoutLatency != nil {
		payoutLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// ObserveProviderCall records one call to the payout provider.
func ObserveProviderCall(operation, result string, duration time.Duration) {
	if operation == "" {
		operation = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if providerCallTotal != nil {
		providerCallTotal.WithLabelValues(operation, result).Inc()
	}
	if providerCallLatency != nil {
		providerCallLatency.WithLabelValues(operation).Observe(duration.Seconds())
	}
}

// ObserveDunningEvaluate records a dunning evaluation.
func ObserveDunningEvaluate(result string, changed bool, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	changedLabel := "false"
	if changed {
		changedLabel = "true"
	}
	if dunningEvaluateTotal != nil {
		dunningEvaluateTotal.WithLabelValues(result, changedLabel).Inc()
	}
	if dunningEvaluateLatency != nil {
		dunningEvaluateLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// IncDunningTransition increments the transition counter for an action.
func IncDunningTransition(action string) {
	if action == "" {
		action = "unknown"
	}
	if dunningTransitions != nil {
		dunningTransitions.WithLabelValues(action).Inc()
	}
}

// IncEvent increments the published events counter.
func IncEvent(eventType string) {
	if eventType == "" {
		eventType = "unknown"
	}
	if eventsTotal != nil {
		eventsTotal.WithLabelValues(eventType).Inc()
	}
}

func nonNegative(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}
