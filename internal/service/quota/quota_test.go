package quota

import (
	"chat-gateway/internal/repository/db"
	"chat-gateway/internal/repository/memory"
	"chat-gateway/internal/service/stats"
	"context"
	"testing"
	"time"
)

func newTestLedger(t *testing.T) (*Ledger, *memory.DB, *stats.Aggregator) {
	t.Helper()
	database, err := memory.Open(context.Background(), memory.NewDocuments())
	if err != nil {
		t.Fatalf("memory.Open() error = %v", err)
	}
	aggregator := stats.NewAggregator(database, nil)
	return NewLedger(database, aggregator), database, aggregator
}

func TestHasCapacity(t *testing.T) {
	ledger, _, _ := newTestLedger(t)

	tests := []struct {
		name string
		user db.User
		want bool
	}{
		{"fresh user", db.User{MaxTokens: db.LimitTokens(100)}, true},
		{"just below", db.User{MaxTokens: db.LimitTokens(100), UsedTokens: 99}, true},
		{"at limit", db.User{MaxTokens: db.LimitTokens(100), UsedTokens: 100}, false},
		{"overshot", db.User{MaxTokens: db.LimitTokens(100), UsedTokens: 140}, false},
		{"unlimited", db.User{MaxTokens: db.UnlimitedTokens(), UsedTokens: 1e9}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ledger.HasCapacity(&tt.user); got != tt.want {
				t.Errorf("HasCapacity() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCharge_UpdatesUserAndStats(t *testing.T) {
	ledger, database, aggregator := newTestLedger(t)
	user, _ := database.CreateUser(db.User{Username: "alice", MaxTokens: db.LimitTokens(100)})

	updated, err := ledger.Charge(user.ID, "llama3", 95)
	if err != nil {
		t.Fatalf("Charge() error = %v", err)
	}
	if updated.UsedTokens != 95 {
		t.Errorf("UsedTokens = %d, want 95", updated.UsedTokens)
	}

	// overshoot is allowed, the next check rejects
	updated, _ = ledger.Charge(user.ID, "llama3", 10)
	if updated.UsedTokens != 105 {
		t.Errorf("UsedTokens = %d, want 105", updated.UsedTokens)
	}
	if ledger.HasCapacity(updated) {
		t.Error("HasCapacity() after overshoot = true")
	}

	// never decreases
	updated, _ = ledger.Charge(user.ID, "llama3", -50)
	if updated.UsedTokens != 105 {
		t.Errorf("negative charge changed UsedTokens to %d", updated.UsedTokens)
	}

	s, _ := aggregator.Snapshot()
	if s.Overall.TotalTokensUsed != 105 {
		t.Errorf("TotalTokensUsed = %d, want 105", s.Overall.TotalTokensUsed)
	}
}

func TestCharge_UnknownUser(t *testing.T) {
	ledger, _, _ := newTestLedger(t)
	if _, err := ledger.Charge("ghost", "llama3", 1); err == nil {
		t.Error("Charge() for unknown user should fail")
	}
}

func TestNextReset(t *testing.T) {
	loc := time.FixedZone("test", 2*3600)
	hours := []int{0, 12}

	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{"morning goes to noon", time.Date(2026, 10, 16, 9, 30, 0, 0, loc), time.Date(2026, 10, 16, 12, 0, 0, 0, loc)},
		{"afternoon goes to midnight", time.Date(2026, 10, 16, 15, 0, 0, 0, loc), time.Date(2026, 10, 17, 0, 0, 0, 0, loc)},
		{"exactly noon goes to midnight", time.Date(2026, 10, 16, 12, 0, 0, 0, loc), time.Date(2026, 10, 17, 0, 0, 0, 0, loc)},
		{"exactly midnight goes to noon", time.Date(2026, 10, 16, 0, 0, 0, 0, loc), time.Date(2026, 10, 16, 12, 0, 0, 0, loc)},
		{"month rollover", time.Date(2026, 10, 31, 23, 59, 0, 0, loc), time.Date(2026, 11, 1, 0, 0, 0, 0, loc)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NextReset(tt.now, hours); !got.Equal(tt.want) {
				t.Errorf("NextReset() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestScheduler_ResetsOnTick(t *testing.T) {
	ledger, database, aggregator := newTestLedger(t)
	user, _ := database.CreateUser(db.User{Username: "alice", MaxTokens: db.LimitTokens(100)})
	_, _ = ledger.Charge(user.ID, "llama3", 100)

	ticks := make(chan time.Time)
	s := NewScheduler(ledger, aggregator, []int{12, 0})
	s.after = func(time.Duration) <-chan time.Time { return ticks }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	ticks <- time.Now()
	// the scheduler re-arms after a reset, so a second send proves the first one finished
	ticks <- time.Now()
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	got, _ := database.GetUser(user.ID)
	if got.UsedTokens != 0 {
		t.Errorf("UsedTokens after reset = %d, want 0", got.UsedTokens)
	}
}
