package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AgentSendsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vaultgate_agent_sends_total",
		Help: "The total number of agent send attempts",
	}, []string{"status"})

	SendRejects = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vaultgate_send_rejects_total",
		Help: "Total agent send rejections by reason",
	}, []string{"reason"})

	TrustChecks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vaultgate_trust_checks_total",
		Help: "Trust verdicts produced by result",
	}, []string{"result"})

	TrustCacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vaultgate_trust_cache_total",
		Help: "Trust cache lookups by outcome",
	}, []string{"outcome"})

	WithdrawalTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vaultgate_withdrawal_transitions_total",
		Help: "Withdrawal request lifecycle transitions",
	}, []string{"to"})

	LatencyBucket = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vaultgate_latency_bucket",
		Help:    "Request latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})
)
