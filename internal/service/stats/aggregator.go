// Package stats aggregates token usage and host resource samples.
package stats

import (
	"chat-gateway/internal/logger"
	"chat-gateway/internal/repository/db"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// DayLayout is the key format of per-day totals
const DayLayout = "2006-01-02"

// Aggregator records usage into the database and mirrors it to Prometheus
type Aggregator struct {
	db      db.Database
	sampler ResourceSampler
	now     func() time.Time
}

// NewAggregator creates an aggregator. sampler may be nil when the host exposes no /proc.
func NewAggregator(database db.Database, sampler ResourceSampler) *Aggregator {
	return &Aggregator{
		db:      database,
		sampler: sampler,
		now:     time.Now,
	}
}

// RecordGeneration adds tokens to the lifetime, today's and the model's totals
func (a *Aggregator) RecordGeneration(model string, tokens int64) error {
	if tokens < 0 {
		tokens = 0
	}
	day := a.now().Format(DayLayout)
	if err := a.db.RecordUsage(day, model, tokens); err != nil {
		return fmt.Errorf("failed to record usage: %w", err)
	}
	tokensTotal.WithLabelValues(model).Add(float64(tokens))
	return nil
}

// SampleResources stores the current CPU and RAM utilisation
func (a *Aggregator) SampleResources() error {
	if a.sampler == nil {
		return nil
	}
	cpu, ram, err := a.sampler.Sample()
	if err != nil {
		return err
	}
	if err := a.db.RecordResourceSample(cpu, ram); err != nil {
		return fmt.Errorf("failed to record resource sample: %w", err)
	}
	cpuUsage.Set(cpu)
	ramUsage.Set(ram)

	logger.Log.WithFields(logrus.Fields{"cpu": cpu, "ram": ram}).Debug("Resource sample recorded")
	return nil
}

// Snapshot returns the current statistics
func (a *Aggregator) Snapshot() (*db.UsageStats, error) {
	return a.db.GetStats()
}
