package chat

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	generationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chat_gateway",
		Name:      "generations_total",
		Help:      "Chat turns by kind and outcome.",
	}, []string{"kind", "outcome"})

	generationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "chat_gateway",
		Name:      "generation_duration_seconds",
		Help:      "Duration of completed chat turns.",
		Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
	}, []string{"kind"})
)
