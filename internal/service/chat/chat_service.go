package chat

import (
	"chat-gateway/internal/app"
	"chat-gateway/internal/config"
	"chat-gateway/internal/logger"
	"chat-gateway/internal/repository/db"
	"chat-gateway/internal/service/conversation"
	"chat-gateway/internal/service/generation"
	"chat-gateway/internal/service/llm"
	"chat-gateway/internal/service/prompt"
	"chat-gateway/internal/service/quota"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const kindChat = "chat"

// SendMessageRequest contains all the parameters needed to send a message
type SendMessageRequest struct {
	Message        string
	ConversationID string
	Model          string
	UserID         string // Extracted from auth context
}

// ChatService runs chat turns: quota check, conversation bookkeeping,
// backend streaming and accounting.
type ChatService struct {
	db            db.Database
	conversations *conversation.ConversationService
	ledger        *quota.Ledger
	prompts       *prompt.Builder
	registry      *generation.Registry
	backend       llm.Backend
	models        *config.ModelsConfig
	now           func() time.Time
}

// NewChatService creates a new ChatService
func NewChatService(cfg *app.Config) *ChatService {
	return &ChatService{
		db:            cfg.DB,
		conversations: conversation.NewConversationService(cfg.DB),
		ledger:        cfg.Ledger,
		prompts:       cfg.Prompts,
		registry:      cfg.Registry,
		backend:       cfg.Backend,
		models:        cfg.ModelsConfig(),
		now:           time.Now,
	}
}

// Stop cancels the running generation of userID and reports whether there was one
func (s *ChatService) Stop(userID string) bool {
	return s.registry.Cancel(userID)
}

// SendMessageStream runs one turn and writes its events to sink. augmenter may be nil
// for a plain turn.
//
// Errors that happen before sink is opened are returned as *Error and nothing has been
// written. Once sink is open every outcome is reported as a terminal event and the
// returned error is nil.
func (s *ChatService) SendMessageStream(ctx context.Context, req SendMessageRequest, augmenter Augmenter, sink EventSink) error {
	kind := kindChat
	if augmenter != nil {
		kind = augmenter.Kind()
	}

	message := strings.TrimSpace(req.Message)
	if message == "" {
		return validationError("message is required")
	}

	user, err := s.db.GetUser(req.UserID)
	if err != nil {
		if errors.Is(err, db.ErrUserNotFound) {
			return &Error{Code: CodeNotFound, Err: err}
		}
		return &Error{Code: CodeInternal, Err: fmt.Errorf("failed to load user: %w", err)}
	}

	if !s.ledger.HasCapacity(user) {
		generationsTotal.WithLabelValues(kind, "quota_exceeded").Inc()
		logger.Log.WithFields(logrus.Fields{
			"user_id": user.ID,
			"used":    user.UsedTokens,
			"limit":   user.MaxTokens.String(),
		}).Info("Token quota exhausted")
		return &Error{Code: CodeQuotaExceeded, Err: ErrQuotaExceeded}
	}

	model := s.models.Resolve(req.Model)

	conv, isNew, err := s.conversations.FindOrCreate(user.ID, req.ConversationID, message)
	if err != nil {
		return &Error{Code: CodeInternal, Err: err}
	}

	if _, err := s.conversations.AppendMessage(conv.ID, db.Message{
		Role:    db.RoleUser,
		Content: message,
	}); err != nil {
		return &Error{Code: CodeFor(err), Err: err}
	}

	handle := s.registry.Begin(ctx, user.ID)
	defer func() {
		s.registry.End(user.ID)
		handle.Release()
	}()

	t := &turn{
		service:   s,
		user:      user,
		conv:      conv,
		isNew:     isNew,
		model:     model,
		message:   message,
		kind:      kind,
		augmenter: augmenter,
		handle:    handle,
		sink:      sink,
		start:     s.now(),
	}

	logger.Log.WithFields(logrus.Fields{
		"user_id":         user.ID,
		"conversation_id": conv.ID,
		"model":           model,
		"kind":            kind,
		"new":             isNew,
	}).Info("Starting generation")

	return t.run()
}

// turn holds the state of one in-flight request
type turn struct {
	service   *ChatService
	user      *db.User
	conv      *db.Conversation
	isNew     bool
	model     string
	message   string
	kind      string
	augmenter Augmenter
	handle    *generation.Handle
	sink      EventSink
	start     time.Time
}

func (t *turn) run() error {
	if err := t.sink.Open(); err != nil {
		return t.finish(fmt.Errorf("failed to open response stream: %w", err))
	}

	userTurn := t.message
	var sources []string

	if t.augmenter != nil {
		pending, err := t.addPlaceholder()
		if err != nil {
			return t.finish(err)
		}
		defer pending.remove()

		aug, err := t.augmenter.Augment(t.handle.Context(), AugmentRequest{
			UserID:  t.user.ID,
			Message: t.message,
			Model:   t.model,
		})
		if err != nil {
			return t.finish(fmt.Errorf("%w: %w", ErrAugmentation, err))
		}
		pending.remove()

		userTurn = t.message + "\n\n" + t.augmenter.ContextLabel() + ": " + aug.Summary
		sources = aug.Sources
		if sources == nil {
			sources = []string{}
		}
	}

	messages := t.buildMessages(userTurn)

	stream, err := t.service.backend.ChatStream(t.handle.Context(), t.model, messages)
	if err != nil {
		return t.finish(err)
	}
	defer stream.Close()

	if t.augmenter != nil {
		t.send(SourcesEvent{Type: t.kind, Sources: sources})
	}

	var content strings.Builder
	var tokens int64
	var streamErr error
	for chunk, err := range stream.All() {
		if err != nil {
			streamErr = err
			break
		}
		if n, ok := chunk.Usage(); ok {
			tokens = n
		}
		if chunk.Content == "" {
			continue
		}
		content.WriteString(chunk.Content)
		t.send(TokenEvent{Type: EventToken, Token: chunk.Content, Done: chunk.Done})
	}

	if streamErr != nil || t.handle.Cancelled() {
		return t.finish(streamErr)
	}
	if stream.Skipped() > 0 {
		logger.Log.WithFields(logrus.Fields{
			"conversation_id": t.conv.ID,
			"skipped":         stream.Skipped(),
		}).Warn("Backend stream contained malformed lines")
	}

	return t.complete(content.String(), tokens, sources)
}

// complete persists the assistant message, charges the quota and ends the stream
func (t *turn) complete(content string, tokens int64, sources []string) error {
	elapsed := t.service.now().Sub(t.start)
	duration := fmt.Sprintf("%.2f", elapsed.Seconds())

	assistant := db.Message{
		Role:     db.RoleAssistant,
		Content:  content,
		Model:    t.model,
		Tokens:   tokens,
		Duration: duration,
		Sources:  sources,
	}
	if t.augmenter != nil {
		assistant.SearchKind = t.kind
	}
	if _, err := t.service.conversations.AppendMessage(t.conv.ID, assistant); err != nil {
		logger.Log.WithFields(logrus.Fields{
			"conversation_id": t.conv.ID,
			"error":           err,
		}).Error("Failed to store assistant message")
	}

	if _, err := t.service.ledger.Charge(t.user.ID, t.model, tokens); err != nil {
		logger.Log.WithFields(logrus.Fields{"user_id": t.user.ID, "error": err}).Error("Failed to charge tokens")
	}

	generationsTotal.WithLabelValues(t.kind, "completed").Inc()
	generationDuration.WithLabelValues(t.kind).Observe(elapsed.Seconds())

	logger.Log.WithFields(logrus.Fields{
		"user_id":         t.user.ID,
		"conversation_id": t.conv.ID,
		"tokens":          tokens,
		"time":            duration,
	}).Info("Generation completed")

	t.send(EndEvent{
		Type:              EventEnd,
		Tokens:            tokens,
		Time:              duration,
		ConversationID:    t.conv.ID,
		IsNewConversation: t.isNew,
	})
	return nil
}

// finish reports a cancellation or failure on whichever channel is still available
func (t *turn) finish(err error) error {
	fields := logrus.Fields{
		"user_id":         t.user.ID,
		"conversation_id": t.conv.ID,
		"kind":            t.kind,
	}

	if t.handle.Cancelled() {
		generationsTotal.WithLabelValues(t.kind, "cancelled").Inc()
		logger.Log.WithFields(fields).Info("Generation cancelled")
		if !t.sink.Opened() {
			return &Error{Code: CodeCancelled, Err: ErrCancelled}
		}
		t.send(AbortedEvent{Type: EventAborted, Message: "Generation cancelled"})
		return nil
	}

	if err == nil {
		err = errors.New("generation ended unexpectedly")
	}
	code := CodeFor(err)
	generationsTotal.WithLabelValues(t.kind, "failed").Inc()
	fields["code"] = code
	fields["error"] = err
	logger.Log.WithFields(fields).Error("Generation failed")

	if !t.sink.Opened() {
		return &Error{Code: code, Err: err}
	}
	t.send(ErrorEvent{Type: EventError, Message: err.Error(), Code: code})
	return nil
}

func (t *turn) send(event Event) {
	if err := t.sink.Send(event); err != nil {
		logger.Log.WithFields(logrus.Fields{
			"conversation_id": t.conv.ID,
			"event":           event.EventType(),
			"error":           err,
		}).Debug("Failed to write event to client")
	}
}

// buildMessages returns the system prompt, the stored history and the current user turn
func (t *turn) buildMessages(userTurn string) []llm.Message {
	messages := make([]llm.Message, 0, len(t.conv.Messages)+2)
	messages = append(messages, llm.Message{
		Role:    db.RoleSystem,
		Content: t.service.prompts.SystemPrompt(t.user, t.model),
	})
	for _, msg := range t.conv.Messages {
		if msg.Pending {
			continue
		}
		messages = append(messages, llm.Message{Role: msg.Role, Content: msg.Content})
	}
	return append(messages, llm.Message{Role: db.RoleUser, Content: userTurn})
}

// placeholder is the pending assistant message shown while a search runs
type placeholder struct {
	once    sync.Once
	service *conversation.ConversationService
	convID  string
	msgID   string
}

func (t *turn) addPlaceholder() (*placeholder, error) {
	msg, err := t.service.conversations.AppendMessage(t.conv.ID, db.Message{
		ID:      "temp_" + uuid.New().String(),
		Role:    db.RoleAssistant,
		Content: t.augmenter.PendingText(),
		Pending: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add placeholder: %w", err)
	}
	return &placeholder{service: t.service.conversations, convID: t.conv.ID, msgID: msg.ID}, nil
}

// remove deletes the placeholder; only the first call has an effect
func (p *placeholder) remove() {
	p.once.Do(func() {
		if err := p.service.RemoveMessage(p.convID, p.msgID); err != nil {
			logger.Log.WithFields(logrus.Fields{
				"conversation_id": p.convID,
				"message_id":      p.msgID,
				"error":           err,
			}).Error("Failed to remove placeholder message")
		}
	})
}
