package stats

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	tokensTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chat_gateway",
		Name:      "tokens_total",
		Help:      "Tokens consumed by completed generations.",
	}, []string{"model"})

	cpuUsage = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "chat_gateway",
		Name:      "cpu_usage_ratio",
		Help:      "Last sampled one-minute load average divided by CPU count.",
	})

	ramUsage = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "chat_gateway",
		Name:      "ram_usage_ratio",
		Help:      "Last sampled fraction of memory in use.",
	})
)
