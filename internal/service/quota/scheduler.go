package quota

import (
	"chat-gateway/internal/logger"
	"chat-gateway/internal/service/stats"
	"context"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
)

// Scheduler resets quotas at fixed local hours. The next run is always derived
// from the wall clock, so nothing needs to survive a restart.
type Scheduler struct {
	ledger *Ledger
	stats  *stats.Aggregator
	hours  []int
	now    func() time.Time
	after  func(time.Duration) <-chan time.Time
}

// NewScheduler creates a scheduler firing at each of hours (0-23, local time)
func NewScheduler(ledger *Ledger, aggregator *stats.Aggregator, hours []int) *Scheduler {
	sorted := append([]int(nil), hours...)
	sort.Ints(sorted)
	return &Scheduler{
		ledger: ledger,
		stats:  aggregator,
		hours:  sorted,
		now:    time.Now,
		after:  time.After,
	}
}

// NextReset returns the first configured hour strictly after now, in now's location
func NextReset(now time.Time, hours []int) time.Time {
	for day := 0; day < 2; day++ {
		y, m, d := now.AddDate(0, 0, day).Date()
		for _, h := range hours {
			candidate := time.Date(y, m, d, h, 0, 0, 0, now.Location())
			if candidate.After(now) {
				return candidate
			}
		}
	}
	return time.Time{}
}

// Run blocks until ctx is done
func (s *Scheduler) Run(ctx context.Context) error {
	if len(s.hours) == 0 {
		logger.Log.Info("No quota reset hours configured, scheduler disabled")
		<-ctx.Done()
		return nil
	}

	for {
		next := NextReset(s.now(), s.hours)
		logger.Log.WithField("next_reset", next.Format(time.RFC3339)).Info("Quota reset scheduled")

		select {
		case <-ctx.Done():
			return nil
		case <-s.after(time.Until(next)):
			s.runOnce()
		}
	}
}

func (s *Scheduler) runOnce() {
	n, err := s.ledger.ResetAll()
	if err != nil {
		logger.Log.WithError(err).Error("Quota reset failed")
	} else {
		logger.Log.WithField("users", n).Info("Quotas reset")
	}

	if s.stats != nil {
		if err := s.stats.SampleResources(); err != nil {
			logger.Log.WithFields(logrus.Fields{"error": err}).Warn("Resource sampling failed")
		}
	}
}
