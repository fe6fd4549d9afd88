package observability

import (
	"math"
	"math/big"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type moduleMetrics struct {
	requests  *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

var (
	moduleMetricsOnce sync.Once
	moduleRegistry    *moduleMetrics

	stakingMetricsOnce sync.Once
	stakingRegistry    *StakingdMetrics
)

// ModuleMetrics returns the lazily-initialised registry recording HTTP API
// activity per route.
func ModuleMetrics() *moduleMetrics {
	moduleMetricsOnce.Do(func() {
		moduleRegistry = &moduleMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "nftstake",
				Subsystem: "api",
				Name:      "requests_total",
				Help:      "Total API requests segmented by route, method and status code.",
			}, []string{"route", "method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "nftstake",
				Subsystem: "api",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for API handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"route", "method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "nftstake",
				Subsystem: "api",
				Name:      "throttles_total",
				Help:      "Count of API requests rejected by the rate limiter.",
			}, []string{"reason"}),
		}
		prometheus.MustRegister(
			moduleRegistry.requests,
			moduleRegistry.latency,
			moduleRegistry.throttles,
		)
	})
	return moduleRegistry
}

// Observe records the outcome of an API request. The status code should be
// the HTTP status that was ultimately written to the response writer.
func (m *moduleMetrics) Observe(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	route = labelOr(route, "unknown")
	method = strings.ToUpper(labelOr(method, "unknown"))
	m.requests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.latency.WithLabelValues(route, method).Observe(duration.Seconds())
}

// RecordThrottle counts a request rejected by rate limiting.
func (m *moduleMetrics) RecordThrottle(reason string) {
	if m == nil {
		return
	}
	m.throttles.WithLabelValues(labelOr(reason, "unspecified")).Inc()
}

// StakingdMetrics wraps collectors tracking the staking ledger.
type StakingdMetrics struct {
	operations   *prometheus.CounterVec
	latency      *prometheus.HistogramVec
	stakedTokens prometheus.Gauge
	rewardsPaid  prometheus.Counter
	pauseEngaged prometheus.Gauge
}

// Stakingd exposes the metrics registry for stakingd.
func Stakingd() *StakingdMetrics {
	stakingMetricsOnce.Do(func() {
		stakingRegistry = &StakingdMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "nftstake",
				Subsystem: "ledger",
				Name:      "operations_total",
				Help:      "Ledger operations segmented by operation and outcome (ok or error kind).",
			}, []string{"op", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "nftstake",
				Subsystem: "ledger",
				Name:      "operation_duration_seconds",
				Help:      "Latency of ledger operations including the storage commit.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"op"}),
			stakedTokens: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "nftstake",
				Subsystem: "ledger",
				Name:      "staked_tokens",
				Help:      "Tokens currently held in custody (staked or unbonding).",
			}),
			rewardsPaid: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "nftstake",
				Subsystem: "ledger",
				Name:      "rewards_paid_total",
				Help:      "Reward units credited by successful claims.",
			}),
			pauseEngaged: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "nftstake",
				Subsystem: "ledger",
				Name:      "pause_engaged",
				Help:      "Indicates whether the custody pause is active (1) or not (0).",
			}),
		}
		prometheus.MustRegister(
			stakingRegistry.operations,
			stakingRegistry.latency,
			stakingRegistry.stakedTokens,
			stakingRegistry.rewardsPaid,
			stakingRegistry.pauseEngaged,
		)
	})
	return stakingRegistry
}

// ObserveOperation records one ledger operation. outcome is "ok" or the error
// kind of the failure.
func (m *StakingdMetrics) ObserveOperation(op, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	op = labelOr(op, "unknown")
	m.operations.WithLabelValues(op, labelOr(outcome, "ok")).Inc()
	m.latency.WithLabelValues(op).Observe(d.Seconds())
}

// AddStaked moves the custody gauge by delta tokens.
func (m *StakingdMetrics) AddStaked(delta int) {
	if m == nil {
		return
	}
	m.stakedTokens.Add(float64(delta))
}

// SetStaked resets the custody gauge, typically after a restart.
func (m *StakingdMetrics) SetStaked(count int) {
	if m == nil {
		return
	}
	m.stakedTokens.Set(float64(count))
}

// RecordRewards adds a settled claim to the paid counter.
func (m *StakingdMetrics) RecordRewards(amount *big.Int) {
	if m == nil || amount == nil || amount.Sign() <= 0 {
		return
	}
	m.rewardsPaid.Add(bigToFloat(amount))
}

// SetPause toggles the pause_engaged gauge.
func (m *StakingdMetrics) SetPause(engaged bool) {
	if m == nil {
		return
	}
	if engaged {
		m.pauseEngaged.Set(1)
		return
	}
	m.pauseEngaged.Set(0)
}

func labelOr(value, fallback string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	return trimmed
}

func bigToFloat(value *big.Int) float64 {
	if value == nil {
		return 0
	}
	floatVal, acc := new(big.Float).SetInt(value).Float64()
	if acc != big.Exact {
		// Guard against NaN/Inf when conversion fails.
		if math.IsNaN(floatVal) || math.IsInf(floatVal, 0) {
			return 0
		}
	}
	return floatVal
}
