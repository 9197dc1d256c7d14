package memory

import (
	"chat-gateway/internal/repository/db"
	"math"
)

// RecordUsage adds tokens to the overall, daily and per-model totals
func (m *DB) RecordUsage(day, model string, tokens int64) error {
	if tokens < 0 {
		tokens = 0
	}

	m.mu.Lock()
	m.stats.Overall.TotalTokensUsed += tokens

	daily := m.stats.Daily[day]
	daily.TotalTokensUsed += tokens
	m.stats.Daily[day] = daily

	if model != "" {
		ms := m.stats.Models[model]
		ms.TotalTokensUsed += tokens
		ms.Generations++
		m.stats.Models[model] = ms
	}
	snap := m.snapshotLocked(DocStats)
	m.mu.Unlock()

	m.persist(snap)
	return nil
}

// RecordResourceSample stores the latest CPU and RAM utilisation (0..1) and folds
// them into the running averages.
func (m *DB) RecordResourceSample(cpu, ram float64) error {
	m.mu.Lock()
	o := &m.stats.Overall
	o.Samples++
	n := float64(o.Samples)
	o.LastCPUUsage = round2(cpu)
	o.LastRAMUsage = round2(ram)
	o.CPUUsageAvg = round2(o.CPUUsageAvg + (cpu-o.CPUUsageAvg)/n)
	o.RAMUsageAvg = round2(o.RAMUsageAvg + (ram-o.RAMUsageAvg)/n)
	snap := m.snapshotLocked(DocStats)
	m.mu.Unlock()

	m.persist(snap)
	return nil
}

// GetStats returns a copy of the usage statistics
func (m *DB) GetStats() (*db.UsageStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := db.NewUsageStats()
	out.Overall = m.stats.Overall
	for day, d := range m.stats.Daily {
		out.Daily[day] = d
	}
	for model, ms := range m.stats.Models {
		out.Models[model] = ms
	}
	return out, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
