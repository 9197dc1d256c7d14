package testutil

import (
	"chat-gateway/internal/app"
	"chat-gateway/internal/config"
	"chat-gateway/internal/repository/db"
	"chat-gateway/internal/repository/memory"
	"chat-gateway/internal/service/llm"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

// MockBackend is a mock implementation of llm.Backend for testing
type MockBackend struct {
	ChatFunc       func(ctx context.Context, model string, messages []llm.Message) (string, error)
	ChatStreamFunc func(ctx context.Context, model string, messages []llm.Message) (*llm.Stream, error)
}

func (m *MockBackend) Chat(ctx context.Context, model string, messages []llm.Message) (string, error) {
	if m.ChatFunc != nil {
		return m.ChatFunc(ctx, model, messages)
	}
	return "", errors.New("not implemented")
}

func (m *MockBackend) ChatStream(ctx context.Context, model string, messages []llm.Message) (*llm.Stream, error) {
	if m.ChatStreamFunc != nil {
		return m.ChatStreamFunc(ctx, model, messages)
	}
	return nil, errors.New("not implemented")
}

// MockSampler is a mock implementation of stats.ResourceSampler
type MockSampler struct {
	CPU, RAM float64
	Err      error
}

func (m *MockSampler) Sample() (float64, float64, error) {
	return m.CPU, m.RAM, m.Err
}

// NDJSONStream returns a stream over the given backend lines, each terminated by a newline
func NDJSONStream(lines ...string) *llm.Stream {
	var b strings.Builder
	for _, line := range lines {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return llm.NewStream(io.NopCloser(strings.NewReader(b.String())))
}

// BlockingStream returns a stream that emits lines and then blocks until ctx is done
func BlockingStream(ctx context.Context, lines ...string) *llm.Stream {
	pr, pw := io.Pipe()
	go func() {
		for _, line := range lines {
			if _, err := io.WriteString(pw, line+"\n"); err != nil {
				return
			}
		}
		<-ctx.Done()
		pw.CloseWithError(context.Cause(ctx))
	}()
	return llm.NewStream(pr)
}

// NewTestDB opens an in-memory database that is closed with the test
func NewTestDB(t *testing.T) *memory.DB {
	t.Helper()
	database, err := memory.Open(context.Background(), memory.NewDocuments())
	if err != nil {
		t.Fatalf("memory.Open() error = %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database
}

// NewTestUser stores a user with the given quota
func NewTestUser(t *testing.T, database db.Database, username string, limit db.TokenLimit) *db.User {
	t.Helper()
	user, err := database.CreateUser(db.User{Username: username, MaxTokens: limit})
	if err != nil {
		t.Fatalf("CreateUser(%q) error = %v", username, err)
	}
	return user
}

// NewMockConfig creates an app.Config over database and backend with a two-model catalogue
func NewMockConfig(database db.Database, backend llm.Backend) *app.Config {
	appConfig := config.Default()
	appConfig.Prompt.SystemPrompt = "You are %model% talking to %user-name%."
	appConfig.Auth.JWTSecret = []byte("test-secret-key-that-is-long-enough-for-hs256")
	appConfig.Models = config.NewStaticModelsConfig(
		config.Model{ID: "llama3", Name: "Llama 3"},
		config.Model{ID: "mistral", Name: "Mistral"},
	)
	return app.NewConfig(database, appConfig, backend, &MockSampler{CPU: 0.5, RAM: 0.25})
}
