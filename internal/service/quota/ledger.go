// Package quota meters token consumption against per-user limits.
package quota

import (
	"chat-gateway/internal/logger"
	"chat-gateway/internal/repository/db"
	"chat-gateway/internal/service/stats"
	"fmt"

	"github.com/sirupsen/logrus"
)

// Ledger checks and charges user quotas
type Ledger struct {
	db    db.Database
	stats *stats.Aggregator
}

// NewLedger creates a ledger that mirrors every charge into the stats aggregator
func NewLedger(database db.Database, aggregator *stats.Aggregator) *Ledger {
	return &Ledger{
		db:    database,
		stats: aggregator,
	}
}

// HasCapacity reports whether user may start another generation.
// Usage may overshoot the limit; it is only checked here, before a generation.
func (l *Ledger) HasCapacity(user *db.User) bool {
	return user.MaxTokens.Allows(user.UsedTokens)
}

// Charge adds tokens consumed with model to the user and to the aggregates
func (l *Ledger) Charge(userID, model string, tokens int64) (*db.User, error) {
	if tokens < 0 {
		tokens = 0
	}
	user, err := l.db.AddUserTokens(userID, tokens)
	if err != nil {
		return nil, fmt.Errorf("failed to charge user: %w", err)
	}
	if l.stats != nil {
		if err := l.stats.RecordGeneration(model, tokens); err != nil {
			logger.Log.WithError(err).Error("Failed to record generation stats")
		}
	}

	logger.Log.WithFields(logrus.Fields{
		"user_id": userID,
		"tokens":  tokens,
		"used":    user.UsedTokens,
		"limit":   user.MaxTokens.String(),
	}).Debug("Quota charged")
	return user, nil
}

// ResetAll zeroes the consumption of every user with a finite limit
func (l *Ledger) ResetAll() (int, error) {
	n, err := l.db.ResetUsedTokens()
	if err != nil {
		return 0, fmt.Errorf("failed to reset quotas: %w", err)
	}
	return n, nil
}
