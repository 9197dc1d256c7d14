package chat

import (
	"chat-gateway/internal/repository/db"
	"chat-gateway/internal/service/llm"
	"chat-gateway/internal/testutil"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
)

// recordingSink collects events in memory
type recordingSink struct {
	mu      sync.Mutex
	opened  bool
	openErr error
	events  []Event
	onSend  func(Event)
}

func (s *recordingSink) Open() error {
	if s.openErr != nil {
		return s.openErr
	}
	s.opened = true
	return nil
}

func (s *recordingSink) Opened() bool { return s.opened }

func (s *recordingSink) Send(event Event) error {
	s.mu.Lock()
	s.events = append(s.events, event)
	s.mu.Unlock()
	if s.onSend != nil {
		s.onSend(event)
	}
	return nil
}

func (s *recordingSink) types() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	types := make([]string, len(s.events))
	for i, e := range s.events {
		types[i] = e.EventType()
	}
	return types
}

func (s *recordingSink) last() Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.events) == 0 {
		return nil
	}
	return s.events[len(s.events)-1]
}

// fakeAugmenter returns a fixed augmentation
type fakeAugmenter struct {
	kind      string
	result    *Augmentation
	err       error
	onAugment func(ctx context.Context)
}

func (f *fakeAugmenter) Kind() string         { return f.kind }
func (f *fakeAugmenter) PendingText() string  { return "Web search running..." }
func (f *fakeAugmenter) ContextLabel() string { return "Web search summary" }

func (f *fakeAugmenter) Augment(ctx context.Context, req AugmentRequest) (*Augmentation, error) {
	if f.onAugment != nil {
		f.onAugment(ctx)
	}
	return f.result, f.err
}

func newTestChatService(t *testing.T, backend llm.Backend) (*ChatService, db.Database) {
	t.Helper()
	database := testutil.NewTestDB(t)
	cfg := testutil.NewMockConfig(database, backend)
	return NewChatService(cfg), database
}

func streamOf(lines ...string) *testutil.MockBackend {
	return &testutil.MockBackend{
		ChatStreamFunc: func(ctx context.Context, model string, messages []llm.Message) (*llm.Stream, error) {
			return testutil.NDJSONStream(lines...), nil
		},
	}
}

var helloLines = []string{
	`{"message":{"content":"Hel"},"done":false}`,
	`{"message":{"content":"lo"},"done":false}`,
	`{"message":{"content":""},"done":true,"prompt_eval_count":12,"eval_count":30}`,
}

func TestSendMessageStream_Success(t *testing.T) {
	var gotModel string
	var gotMessages []llm.Message
	backend := &testutil.MockBackend{
		ChatStreamFunc: func(ctx context.Context, model string, messages []llm.Message) (*llm.Stream, error) {
			gotModel = model
			gotMessages = messages
			return testutil.NDJSONStream(helloLines...), nil
		},
	}
	service, database := newTestChatService(t, backend)
	user := testutil.NewTestUser(t, database, "alice", db.LimitTokens(1000))

	sink := &recordingSink{}
	err := service.SendMessageStream(context.Background(), SendMessageRequest{
		UserID:  user.ID,
		Message: "Hi there",
		Model:   "mistral",
	}, nil, sink)
	if err != nil {
		t.Fatalf("SendMessageStream() error = %v", err)
	}

	want := []string{EventToken, EventToken, EventEnd}
	if got := sink.types(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("events = %v, want %v", got, want)
	}

	end := sink.last().(EndEvent)
	if end.Tokens != 42 {
		t.Errorf("end tokens = %d, want 42", end.Tokens)
	}
	if !end.IsNewConversation || end.ConversationID == "" {
		t.Errorf("expected a new conversation, got %+v", end)
	}

	if gotModel != "mistral" {
		t.Errorf("backend model = %q, want mistral", gotModel)
	}
	if len(gotMessages) != 2 || gotMessages[0].Role != db.RoleSystem || gotMessages[1].Content != "Hi there" {
		t.Errorf("unexpected backend messages: %+v", gotMessages)
	}
	if gotMessages[0].Content != "You are mistral talking to alice." {
		t.Errorf("system prompt = %q", gotMessages[0].Content)
	}

	conv, err := database.GetConversation(end.ConversationID)
	if err != nil {
		t.Fatalf("GetConversation() error = %v", err)
	}
	if len(conv.Messages) != 2 {
		t.Fatalf("stored %d messages, want 2", len(conv.Messages))
	}
	reply := conv.Messages[1]
	if reply.Role != db.RoleAssistant || reply.Content != "Hello" || reply.Tokens != 42 || reply.Model != "mistral" {
		t.Errorf("unexpected assistant message: %+v", reply)
	}

	stored, _ := database.GetUser(user.ID)
	if stored.UsedTokens != 42 {
		t.Errorf("UsedTokens = %d, want 42", stored.UsedTokens)
	}
	if service.registry.Active(user.ID) {
		t.Error("registry entry must be removed after completion")
	}
}

func TestSendMessageStream_ContinuesConversation(t *testing.T) {
	var gotMessages []llm.Message
	backend := &testutil.MockBackend{
		ChatStreamFunc: func(ctx context.Context, model string, messages []llm.Message) (*llm.Stream, error) {
			gotMessages = messages
			return testutil.NDJSONStream(helloLines...), nil
		},
	}
	service, database := newTestChatService(t, backend)
	user := testutil.NewTestUser(t, database, "alice", db.UnlimitedTokens())

	first := &recordingSink{}
	if err := service.SendMessageStream(context.Background(), SendMessageRequest{UserID: user.ID, Message: "One"}, nil, first); err != nil {
		t.Fatalf("first turn error = %v", err)
	}
	convID := first.last().(EndEvent).ConversationID

	second := &recordingSink{}
	if err := service.SendMessageStream(context.Background(), SendMessageRequest{UserID: user.ID, Message: "Two", ConversationID: convID}, nil, second); err != nil {
		t.Fatalf("second turn error = %v", err)
	}
	end := second.last().(EndEvent)
	if end.IsNewConversation || end.ConversationID != convID {
		t.Errorf("expected continuation of %s, got %+v", convID, end)
	}

	// system, One, Hello, Two
	if len(gotMessages) != 4 || gotMessages[3].Content != "Two" || gotMessages[2].Content != "Hello" {
		t.Errorf("unexpected history: %+v", gotMessages)
	}

	stored, _ := database.GetUser(user.ID)
	if stored.UsedTokens != 84 {
		t.Errorf("UsedTokens = %d, want 84", stored.UsedTokens)
	}
}

func TestSendMessageStream_RejectedBeforeStreaming(t *testing.T) {
	called := false
	backend := &testutil.MockBackend{
		ChatStreamFunc: func(ctx context.Context, model string, messages []llm.Message) (*llm.Stream, error) {
			called = true
			return testutil.NDJSONStream(helloLines...), nil
		},
	}
	service, database := newTestChatService(t, backend)
	exhausted := testutil.NewTestUser(t, database, "bob", db.LimitTokens(100))
	if _, err := database.AddUserTokens(exhausted.ID, 100); err != nil {
		t.Fatalf("AddUserTokens() error = %v", err)
	}

	tests := []struct {
		name     string
		req      SendMessageRequest
		wantCode string
	}{
		{"empty message", SendMessageRequest{UserID: exhausted.ID, Message: "   "}, CodeValidation},
		{"unknown user", SendMessageRequest{UserID: "ghost", Message: "hi"}, CodeNotFound},
		{"quota at limit", SendMessageRequest{UserID: exhausted.ID, Message: "hi"}, CodeQuotaExceeded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &recordingSink{}
			err := service.SendMessageStream(context.Background(), tt.req, nil, sink)
			if err == nil {
				t.Fatal("expected an error")
			}
			if code := CodeFor(err); code != tt.wantCode {
				t.Errorf("code = %q, want %q", code, tt.wantCode)
			}
			if sink.Opened() || len(sink.types()) != 0 {
				t.Error("nothing may be written to a rejected request")
			}
		})
	}

	if called {
		t.Error("backend must not be contacted for rejected requests")
	}
	convs, _ := database.GetConversationsByUser(exhausted.ID)
	if len(convs) != 0 {
		t.Errorf("rejected requests must not create conversations, got %d", len(convs))
	}
}

func TestSendMessageStream_QuotaOvershoot(t *testing.T) {
	service, database := newTestChatService(t, streamOf(helloLines...))
	user := testutil.NewTestUser(t, database, "carol", db.LimitTokens(50))
	if _, err := database.AddUserTokens(user.ID, 20); err != nil {
		t.Fatalf("AddUserTokens() error = %v", err)
	}

	sink := &recordingSink{}
	if err := service.SendMessageStream(context.Background(), SendMessageRequest{UserID: user.ID, Message: "hi"}, nil, sink); err != nil {
		t.Fatalf("SendMessageStream() error = %v", err)
	}

	stored, _ := database.GetUser(user.ID)
	if stored.UsedTokens != 62 {
		t.Errorf("UsedTokens = %d, want 62 (overshoot is charged)", stored.UsedTokens)
	}

	next := &recordingSink{}
	err := service.SendMessageStream(context.Background(), SendMessageRequest{UserID: user.ID, Message: "again"}, nil, next)
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Errorf("expected ErrQuotaExceeded after overshoot, got %v", err)
	}
}

func TestSendMessageStream_ToleratesMalformedLines(t *testing.T) {
	service, database := newTestChatService(t, streamOf(
		`{"message":{"content":"A"},"done":false}`,
		`{not json`,
		``,
		`{"message":{"content":"B"},"done":false}`,
		`{"done":true}`,
	))
	user := testutil.NewTestUser(t, database, "dave", db.LimitTokens(10))

	sink := &recordingSink{}
	if err := service.SendMessageStream(context.Background(), SendMessageRequest{UserID: user.ID, Message: "hi"}, nil, sink); err != nil {
		t.Fatalf("SendMessageStream() error = %v", err)
	}

	end, ok := sink.last().(EndEvent)
	if !ok {
		t.Fatalf("last event = %T, want EndEvent", sink.last())
	}
	if end.Tokens != 0 {
		t.Errorf("tokens without counts = %d, want 0", end.Tokens)
	}
	conv, _ := database.GetConversation(end.ConversationID)
	if got := conv.Messages[len(conv.Messages)-1].Content; got != "AB" {
		t.Errorf("assistant content = %q, want AB", got)
	}
}

func TestSendMessageStream_BackendFailure(t *testing.T) {
	tests := []struct {
		name     string
		backend  *testutil.MockBackend
		wantCode string
	}{
		{
			name: "unreachable",
			backend: &testutil.MockBackend{
				ChatStreamFunc: func(ctx context.Context, model string, messages []llm.Message) (*llm.Stream, error) {
					return nil, llm.ErrBackendUnavailable
				},
			},
			wantCode: CodeBackendUnavailable,
		},
		{
			name: "status",
			backend: &testutil.MockBackend{
				ChatStreamFunc: func(ctx context.Context, model string, messages []llm.Message) (*llm.Stream, error) {
					return nil, &llm.StatusError{StatusCode: 500, Body: "boom"}
				},
			},
			wantCode: CodeBackendError,
		},
		{
			name:     "error line",
			backend:  streamOf(`{"message":{"content":"x"},"done":false}`, `{"error":"model not found"}`),
			wantCode: CodeBackendError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service, database := newTestChatService(t, tt.backend)
			user := testutil.NewTestUser(t, database, "erin", db.LimitTokens(100))

			sink := &recordingSink{}
			if err := service.SendMessageStream(context.Background(), SendMessageRequest{UserID: user.ID, Message: "hi"}, nil, sink); err != nil {
				t.Fatalf("errors after open must be reported as events, got %v", err)
			}
			ev, ok := sink.last().(ErrorEvent)
			if !ok {
				t.Fatalf("last event = %T, want ErrorEvent", sink.last())
			}
			if ev.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", ev.Code, tt.wantCode)
			}

			stored, _ := database.GetUser(user.ID)
			if stored.UsedTokens != 0 {
				t.Errorf("failed turns must not be charged, got %d", stored.UsedTokens)
			}
			convs, _ := database.GetConversationsByUser(user.ID)
			if len(convs) != 1 || len(convs[0].Messages) != 1 {
				t.Errorf("only the user message should be stored: %+v", convs)
			}
		})
	}
}

func TestSendMessageStream_Stop(t *testing.T) {
	backend := &testutil.MockBackend{
		ChatStreamFunc: func(ctx context.Context, model string, messages []llm.Message) (*llm.Stream, error) {
			return testutil.BlockingStream(ctx, `{"message":{"content":"partial"},"done":false}`), nil
		},
	}
	service, database := newTestChatService(t, backend)
	user := testutil.NewTestUser(t, database, "frank", db.LimitTokens(100))

	sink := &recordingSink{}
	sink.onSend = func(e Event) {
		if e.EventType() == EventToken && !service.Stop(user.ID) {
			t.Error("Stop() = false for a running generation")
		}
	}

	if err := service.SendMessageStream(context.Background(), SendMessageRequest{UserID: user.ID, Message: "hi"}, nil, sink); err != nil {
		t.Fatalf("SendMessageStream() error = %v", err)
	}

	want := []string{EventToken, EventAborted}
	if got := sink.types(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("events = %v, want %v", got, want)
	}

	convs, _ := database.GetConversationsByUser(user.ID)
	if len(convs) != 1 || len(convs[0].Messages) != 1 {
		t.Errorf("a stopped turn must not store an assistant message: %+v", convs)
	}
	stored, _ := database.GetUser(user.ID)
	if stored.UsedTokens != 0 {
		t.Errorf("a stopped turn must not be charged, got %d", stored.UsedTokens)
	}
	if service.Stop(user.ID) {
		t.Error("Stop() after the turn ended must report false")
	}
}

func TestSendMessageStream_ClientDisconnect(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	backend := &testutil.MockBackend{
		ChatStreamFunc: func(ctx context.Context, model string, messages []llm.Message) (*llm.Stream, error) {
			return testutil.BlockingStream(ctx, `{"message":{"content":"partial"},"done":false}`), nil
		},
	}
	service, database := newTestChatService(t, backend)
	user := testutil.NewTestUser(t, database, "gina", db.LimitTokens(100))

	sink := &recordingSink{onSend: func(Event) { cancel() }}
	if err := service.SendMessageStream(ctx, SendMessageRequest{UserID: user.ID, Message: "hi"}, nil, sink); err != nil {
		t.Fatalf("SendMessageStream() error = %v", err)
	}
	if _, ok := sink.last().(AbortedEvent); !ok {
		t.Errorf("last event = %T, want AbortedEvent", sink.last())
	}
}

func TestSendMessageStream_Augmented(t *testing.T) {
	var gotMessages []llm.Message
	backend := &testutil.MockBackend{
		ChatStreamFunc: func(ctx context.Context, model string, messages []llm.Message) (*llm.Stream, error) {
			gotMessages = messages
			return testutil.NDJSONStream(helloLines...), nil
		},
	}
	service, database := newTestChatService(t, backend)
	user := testutil.NewTestUser(t, database, "hana", db.LimitTokens(1000))

	sawPlaceholder := false
	augmenter := &fakeAugmenter{
		kind:   EventWebsearch,
		result: &Augmentation{Summary: "Paris is the capital.", Sources: []string{"https://example.com/paris"}},
		onAugment: func(ctx context.Context) {
			convs, _ := database.GetConversationsByUser(user.ID)
			for _, msg := range convs[0].Messages {
				if msg.Pending && strings.HasPrefix(msg.ID, "temp_") && msg.Content == "Web search running..." {
					sawPlaceholder = true
				}
			}
		},
	}

	sink := &recordingSink{}
	if err := service.SendMessageStream(context.Background(), SendMessageRequest{UserID: user.ID, Message: "Capital of France?"}, augmenter, sink); err != nil {
		t.Fatalf("SendMessageStream() error = %v", err)
	}

	if !sawPlaceholder {
		t.Error("placeholder message must exist while the search runs")
	}
	want := []string{EventWebsearch, EventToken, EventToken, EventEnd}
	if got := sink.types(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("events = %v, want %v", got, want)
	}
	sources := sink.events[0].(SourcesEvent)
	if len(sources.Sources) != 1 || sources.Sources[0] != "https://example.com/paris" {
		t.Errorf("sources = %v", sources.Sources)
	}

	last := gotMessages[len(gotMessages)-1]
	if last.Content != "Capital of France?\n\nWeb search summary: Paris is the capital." {
		t.Errorf("augmented turn = %q", last.Content)
	}

	conv, _ := database.GetConversation(sink.last().(EndEvent).ConversationID)
	if len(conv.Messages) != 2 {
		t.Fatalf("stored %d messages, want user + assistant", len(conv.Messages))
	}
	if conv.Messages[0].Content != "Capital of France?" {
		t.Errorf("stored user message must not contain the summary: %q", conv.Messages[0].Content)
	}
	reply := conv.Messages[1]
	if reply.Pending || reply.SearchKind != EventWebsearch || len(reply.Sources) != 1 {
		t.Errorf("unexpected assistant message: %+v", reply)
	}
}

func TestSendMessageStream_AugmentationFailure(t *testing.T) {
	backendCalled := false
	backend := &testutil.MockBackend{
		ChatStreamFunc: func(ctx context.Context, model string, messages []llm.Message) (*llm.Stream, error) {
			backendCalled = true
			return testutil.NDJSONStream(helloLines...), nil
		},
	}
	service, database := newTestChatService(t, backend)
	user := testutil.NewTestUser(t, database, "ivan", db.LimitTokens(1000))

	augmenter := &fakeAugmenter{kind: EventDeepsearch, err: errors.New("search service returned 502")}
	sink := &recordingSink{}
	if err := service.SendMessageStream(context.Background(), SendMessageRequest{UserID: user.ID, Message: "hi"}, augmenter, sink); err != nil {
		t.Fatalf("SendMessageStream() error = %v", err)
	}

	ev, ok := sink.last().(ErrorEvent)
	if !ok || ev.Code != CodeSearchFailed {
		t.Errorf("last event = %+v, want search_failed error", sink.last())
	}
	if backendCalled {
		t.Error("backend must not be called when the search fails")
	}
	convs, _ := database.GetConversationsByUser(user.ID)
	for _, msg := range convs[0].Messages {
		if msg.Pending {
			t.Error("placeholder must be removed on failure")
		}
	}
}

func TestSendMessageStream_StopDuringAugmentation(t *testing.T) {
	backendCalled := false
	backend := &testutil.MockBackend{
		ChatStreamFunc: func(ctx context.Context, model string, messages []llm.Message) (*llm.Stream, error) {
			backendCalled = true
			return testutil.NDJSONStream(helloLines...), nil
		},
	}
	service, database := newTestChatService(t, backend)
	user := testutil.NewTestUser(t, database, "kate", db.LimitTokens(1000))

	augmenter := &fakeAugmenter{
		kind: EventWebsearch,
		err:  context.Canceled,
		onAugment: func(ctx context.Context) {
			if !service.Stop(user.ID) {
				t.Error("Stop() = false while the search is running")
			}
		},
	}
	sink := &recordingSink{}
	if err := service.SendMessageStream(context.Background(), SendMessageRequest{UserID: user.ID, Message: "hi"}, augmenter, sink); err != nil {
		t.Fatalf("SendMessageStream() error = %v", err)
	}

	want := []string{EventAborted}
	if got := sink.types(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("events = %v, want %v", got, want)
	}
	if backendCalled {
		t.Error("backend must not be called after a stop during the search")
	}
	assertOnlyUserMessage(t, database, user.ID, "hi")
}

func TestSendMessageStream_BackendFailureAfterAugmentation(t *testing.T) {
	backend := &testutil.MockBackend{
		ChatStreamFunc: func(ctx context.Context, model string, messages []llm.Message) (*llm.Stream, error) {
			return nil, &llm.StatusError{StatusCode: 500, Body: "boom"}
		},
	}
	service, database := newTestChatService(t, backend)
	user := testutil.NewTestUser(t, database, "liam", db.LimitTokens(1000))

	augmenter := &fakeAugmenter{
		kind:   EventDeepsearch,
		result: &Augmentation{Summary: "summary", Sources: []string{"https://example.com"}},
	}
	sink := &recordingSink{}
	if err := service.SendMessageStream(context.Background(), SendMessageRequest{UserID: user.ID, Message: "hi"}, augmenter, sink); err != nil {
		t.Fatalf("SendMessageStream() error = %v", err)
	}

	want := []string{EventError}
	if got := sink.types(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("events = %v, want %v", got, want)
	}
	if ev := sink.last().(ErrorEvent); ev.Code != CodeBackendError {
		t.Errorf("code = %q, want %q", ev.Code, CodeBackendError)
	}
	assertOnlyUserMessage(t, database, user.ID, "hi")

	stored, _ := database.GetUser(user.ID)
	if stored.UsedTokens != 0 {
		t.Errorf("failed turns must not be charged, got %d", stored.UsedTokens)
	}
}

// assertOnlyUserMessage checks that the user's single conversation holds just the
// stored user message, with no placeholder left behind
func assertOnlyUserMessage(t *testing.T, database db.Database, userID, content string) {
	t.Helper()
	convs, err := database.GetConversationsByUser(userID)
	if err != nil {
		t.Fatalf("GetConversationsByUser() error = %v", err)
	}
	if len(convs) != 1 {
		t.Fatalf("conversations = %d, want 1", len(convs))
	}
	msgs := convs[0].Messages
	if len(msgs) != 1 || msgs[0].Role != db.RoleUser || msgs[0].Content != content || msgs[0].Pending {
		t.Errorf("messages = %+v, want only the user message %q", msgs, content)
	}
}

func TestSendMessageStream_AdmissionBelowLimit(t *testing.T) {
	tenTokens := []string{
		`{"message":{"content":"ok"},"done":false}`,
		`{"message":{"content":""},"done":true,"prompt_eval_count":4,"eval_count":6}`,
	}

	tests := []struct {
		name      string
		used      int64
		wantUsed  int64
		wantAdmit bool
	}{
		// Admission only compares used against the limit; the reply may overshoot it.
		{"95 of 100 used is admitted and overshoots", 95, 105, true},
		{"nothing used", 0, 10, true},
		{"100 of 100 used is rejected", 100, 100, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backendCalled := false
			backend := &testutil.MockBackend{
				ChatStreamFunc: func(ctx context.Context, model string, messages []llm.Message) (*llm.Stream, error) {
					backendCalled = true
					return testutil.NDJSONStream(tenTokens...), nil
				},
			}
			service, database := newTestChatService(t, backend)
			user := testutil.NewTestUser(t, database, "mona", db.LimitTokens(100))
			if tt.used > 0 {
				if _, err := database.AddUserTokens(user.ID, tt.used); err != nil {
					t.Fatalf("AddUserTokens() error = %v", err)
				}
			}

			err := service.SendMessageStream(context.Background(), SendMessageRequest{UserID: user.ID, Message: "hi"}, nil, &recordingSink{})
			if tt.wantAdmit && err != nil {
				t.Fatalf("SendMessageStream() error = %v", err)
			}
			if !tt.wantAdmit && !errors.Is(err, ErrQuotaExceeded) {
				t.Fatalf("SendMessageStream() error = %v, want ErrQuotaExceeded", err)
			}
			if backendCalled != tt.wantAdmit {
				t.Errorf("backend called = %v, want %v", backendCalled, tt.wantAdmit)
			}

			stored, _ := database.GetUser(user.ID)
			if stored.UsedTokens != tt.wantUsed {
				t.Errorf("UsedTokens = %d, want %d", stored.UsedTokens, tt.wantUsed)
			}
		})
	}
}

func TestSendMessageStream_SinkOpenFailure(t *testing.T) {
	service, database := newTestChatService(t, streamOf(helloLines...))
	user := testutil.NewTestUser(t, database, "judy", db.LimitTokens(100))

	sink := &recordingSink{openErr: errors.New("connection reset")}
	err := service.SendMessageStream(context.Background(), SendMessageRequest{UserID: user.ID, Message: "hi"}, nil, sink)
	var chatErr *Error
	if !errors.As(err, &chatErr) || chatErr.Code != CodeInternal {
		t.Errorf("expected internal *Error, got %v", err)
	}
}
