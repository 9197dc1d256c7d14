package memory

import (
	"chat-gateway/internal/repository/db"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
)

func openTestDB(t *testing.T, docs db.DocumentStore) *DB {
	t.Helper()
	m, err := Open(context.Background(), docs)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	return m
}

func mustCreateUser(t *testing.T, m *DB, username string, limit db.TokenLimit) *db.User {
	t.Helper()
	u, err := m.CreateUser(db.User{Username: username, MaxTokens: limit})
	if err != nil {
		t.Fatalf("CreateUser(%s) error = %v", username, err)
	}
	return u
}

func TestOpen_EmptyAndCorruptDocuments(t *testing.T) {
	docs := NewDocuments()
	_ = docs.Save(context.Background(), DocUsers, []byte("{not json"))

	m := openTestDB(t, docs)

	users, _ := m.ListUsers()
	if len(users) != 0 {
		t.Errorf("expected no users from corrupt document, got %d", len(users))
	}
	stats, _ := m.GetStats()
	if stats.Daily == nil || stats.Models == nil {
		t.Error("stats maps should be initialised")
	}
}

func TestPersistence_RoundTrip(t *testing.T) {
	docs := NewDocuments()
	m := openTestDB(t, docs)

	user := mustCreateUser(t, m, "alice", db.LimitTokens(100))
	conv, err := m.CreateConversation(user.ID, "Hello")
	if err != nil {
		t.Fatalf("CreateConversation() error = %v", err)
	}
	if _, err := m.AddMessage(conv.ID, db.Message{Role: db.RoleUser, Content: "Hello"}); err != nil {
		t.Fatalf("AddMessage() error = %v", err)
	}
	if err := m.RecordUsage("2026-10-16", "llama3", 12); err != nil {
		t.Fatalf("RecordUsage() error = %v", err)
	}

	reopened := openTestDB(t, docs)

	got, err := reopened.GetConversation(conv.ID)
	if err != nil {
		t.Fatalf("GetConversation() after reopen error = %v", err)
	}
	if len(got.Messages) != 1 || got.Messages[0].Content != "Hello" {
		t.Errorf("messages after reopen = %+v", got.Messages)
	}
	u, err := reopened.GetUserByUsername("ALICE")
	if err != nil {
		t.Fatalf("GetUserByUsername() error = %v", err)
	}
	if u.MaxTokens.Max() != 100 {
		t.Errorf("MaxTokens = %v, want 100", u.MaxTokens)
	}
	stats, _ := reopened.GetStats()
	if stats.Overall.TotalTokensUsed != 12 || stats.Daily["2026-10-16"].TotalTokensUsed != 12 {
		t.Errorf("stats after reopen = %+v", stats)
	}
}

func TestCreateUser_DuplicateUsername(t *testing.T) {
	m := openTestDB(t, NewDocuments())
	mustCreateUser(t, m, "bob", db.UnlimitedTokens())

	if _, err := m.CreateUser(db.User{Username: "Bob"}); !errors.Is(err, db.ErrUserExists) {
		t.Errorf("CreateUser() duplicate error = %v, want ErrUserExists", err)
	}
}

func TestDeleteUser_CascadesConversations(t *testing.T) {
	m := openTestDB(t, NewDocuments())
	alice := mustCreateUser(t, m, "alice", db.UnlimitedTokens())
	bob := mustCreateUser(t, m, "bob", db.UnlimitedTokens())

	aliceConv, _ := m.CreateConversation(alice.ID, "a")
	bobConv, _ := m.CreateConversation(bob.ID, "b")

	if err := m.DeleteUser(alice.ID); err != nil {
		t.Fatalf("DeleteUser() error = %v", err)
	}
	if _, err := m.GetConversation(aliceConv.ID); !errors.Is(err, db.ErrConversationNotFound) {
		t.Errorf("alice's conversation should be gone, got err = %v", err)
	}
	if _, err := m.GetConversation(bobConv.ID); err != nil {
		t.Errorf("bob's conversation should survive, got err = %v", err)
	}
	if err := m.DeleteUser(alice.ID); !errors.Is(err, db.ErrUserNotFound) {
		t.Errorf("second DeleteUser() error = %v, want ErrUserNotFound", err)
	}
}

func TestRemoveMessage_Idempotent(t *testing.T) {
	m := openTestDB(t, NewDocuments())
	user := mustCreateUser(t, m, "alice", db.UnlimitedTokens())
	conv, _ := m.CreateConversation(user.ID, "t")
	msg, _ := m.AddMessage(conv.ID, db.Message{ID: "temp_1", Role: db.RoleAssistant, Pending: true})

	removed, err := m.RemoveMessage(conv.ID, msg.ID)
	if err != nil || !removed {
		t.Fatalf("first RemoveMessage() = %v, %v", removed, err)
	}
	removed, err = m.RemoveMessage(conv.ID, msg.ID)
	if err != nil || removed {
		t.Errorf("second RemoveMessage() = %v, %v, want false, nil", removed, err)
	}
}

func TestReturnedValuesAreCopies(t *testing.T) {
	m := openTestDB(t, NewDocuments())
	user := mustCreateUser(t, m, "alice", db.UnlimitedTokens())
	conv, _ := m.CreateConversation(user.ID, "t")
	_, _ = m.AddMessage(conv.ID, db.Message{Role: db.RoleAssistant, Sources: []string{"https://a"}})

	got, _ := m.GetConversation(conv.ID)
	got.Messages[0].Sources[0] = "mutated"
	got.Title = "mutated"

	again, _ := m.GetConversation(conv.ID)
	if again.Title != "t" || again.Messages[0].Sources[0] != "https://a" {
		t.Errorf("stored conversation was mutated through a returned copy: %+v", again)
	}
}

func TestAddUserTokens_ConcurrentChargesAreNotLost(t *testing.T) {
	m := openTestDB(t, NewDocuments())
	user := mustCreateUser(t, m, "alice", db.UnlimitedTokens())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = m.AddUserTokens(user.ID, 2)
		}()
	}
	wg.Wait()

	got, _ := m.GetUser(user.ID)
	if got.UsedTokens != 100 {
		t.Errorf("UsedTokens = %d, want 100", got.UsedTokens)
	}
	if _, err := m.AddUserTokens(user.ID, -10); err != nil {
		t.Fatalf("AddUserTokens(-10) error = %v", err)
	}
	got, _ = m.GetUser(user.ID)
	if got.UsedTokens != 100 {
		t.Errorf("negative charge changed UsedTokens to %d", got.UsedTokens)
	}
}

func TestResetUsedTokens_SkipsUnlimited(t *testing.T) {
	m := openTestDB(t, NewDocuments())
	limited := mustCreateUser(t, m, "limited", db.LimitTokens(100))
	unlimited := mustCreateUser(t, m, "unlimited", db.UnlimitedTokens())
	_, _ = m.AddUserTokens(limited.ID, 80)
	_, _ = m.AddUserTokens(unlimited.ID, 500)

	n, err := m.ResetUsedTokens()
	if err != nil || n != 1 {
		t.Fatalf("ResetUsedTokens() = %d, %v, want 1, nil", n, err)
	}

	l, _ := m.GetUser(limited.ID)
	u, _ := m.GetUser(unlimited.ID)
	if l.UsedTokens != 0 {
		t.Errorf("limited UsedTokens = %d, want 0", l.UsedTokens)
	}
	if u.UsedTokens != 500 {
		t.Errorf("unlimited UsedTokens = %d, want 500", u.UsedTokens)
	}
}

func TestRecordResourceSample_RunningAverage(t *testing.T) {
	m := openTestDB(t, NewDocuments())
	_ = m.RecordResourceSample(0.5, 0.2)
	_ = m.RecordResourceSample(0.7, 0.4)

	stats, _ := m.GetStats()
	if stats.Overall.CPUUsageAvg != 0.6 || stats.Overall.RAMUsageAvg != 0.3 {
		t.Errorf("averages = %v / %v, want 0.6 / 0.3", stats.Overall.CPUUsageAvg, stats.Overall.RAMUsageAvg)
	}
	if stats.Overall.LastCPUUsage != 0.7 {
		t.Errorf("LastCPUUsage = %v, want 0.7", stats.Overall.LastCPUUsage)
	}
}

type failingDocuments struct{ *Documents }

func (f failingDocuments) Save(context.Context, string, []byte) error {
	return errors.New("disk full")
}

func TestPersistenceFailureKeepsMemoryState(t *testing.T) {
	m := openTestDB(t, failingDocuments{NewDocuments()})

	user := mustCreateUser(t, m, "alice", db.UnlimitedTokens())
	if _, err := m.GetUser(user.ID); err != nil {
		t.Errorf("user should exist in memory despite save failure: %v", err)
	}
	if err := m.Flush(context.Background()); err == nil {
		t.Error("Flush() should report the save failure")
	}
}

func TestFlush_WritesAllDocuments(t *testing.T) {
	docs := NewDocuments()
	m := openTestDB(t, docs)
	if err := m.Flush(context.Background()); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	for _, key := range []string{DocUsers, DocConversations, DocStats} {
		data, err := docs.Load(context.Background(), key)
		if err != nil {
			t.Errorf("document %s missing after Flush: %v", key, err)
			continue
		}
		if !json.Valid(data) {
			t.Errorf("document %s is not valid JSON", key)
		}
	}
}
