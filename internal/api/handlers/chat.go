package handlers

import (
	"chat-gateway/internal/app"
	"chat-gateway/internal/auth"
	"chat-gateway/internal/config"
	"chat-gateway/internal/logger"
	"chat-gateway/internal/repository/db"
	chatService "chat-gateway/internal/service/chat"
	conversationService "chat-gateway/internal/service/conversation"
	"chat-gateway/internal/service/search"
	"chat-gateway/pkg/validation"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"
)

// ConversationIDHeader may carry the conversation id instead of the request body
const ConversationIDHeader = "X-Conversation-Id"

// Request/Response types

type ChatRequest struct {
	Message        string `json:"message"`
	Model          string `json:"model,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
}

type StopResponse struct {
	Stopped bool   `json:"stopped"`
	Message string `json:"message"`
}

type ConversationsResponse struct {
	Conversations []conversationService.Summary `json:"conversations"`
}

type RenameRequest struct {
	Title string `json:"title"`
}

type ModelsResponse struct {
	Models  []config.Model `json:"models"`
	Default string         `json:"default"`
}

type ChatHandlers struct {
	config              *app.Config
	validator           *validation.ChatRequestValidator
	chatService         *chatService.ChatService
	conversationService *conversationService.ConversationService
	websearch           chatService.Augmenter
	deepsearch          chatService.Augmenter
}

// NewChatHandlers creates a new ChatHandlers with service layer
func NewChatHandlers(config *app.Config, searchService search.Service) *ChatHandlers {
	return &ChatHandlers{
		config:              config,
		validator:           validation.NewChatRequestValidator(),
		chatService:         chatService.NewChatService(config),
		conversationService: conversationService.NewConversationService(config.DB),
		websearch:           search.NewWebSearch(config.Backend, searchService),
		deepsearch:          search.NewDeepSearch(config.Backend, searchService),
	}
}

// ChatStreamHandler streams a plain chat turn as NDJSON
func (ch *ChatHandlers) ChatStreamHandler(w http.ResponseWriter, r *http.Request) {
	ch.stream(w, r, nil)
}

// WebsearchHandler streams a turn augmented with a web search
func (ch *ChatHandlers) WebsearchHandler(w http.ResponseWriter, r *http.Request) {
	ch.stream(w, r, ch.websearch)
}

// DeepsearchHandler streams a turn augmented with a deep search
func (ch *ChatHandlers) DeepsearchHandler(w http.ResponseWriter, r *http.Request) {
	ch.stream(w, r, ch.deepsearch)
}

func (ch *ChatHandlers) stream(w http.ResponseWriter, r *http.Request, augmenter chatService.Augmenter) {
	user := auth.MustUser(r.Context())

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, chatService.CodeValidation, "Invalid request body", err)
		return
	}

	// Validate request
	if err := ch.validator.ValidateChatRequest(req.Message, req.Model); err != nil {
		sendError(w, http.StatusBadRequest, chatService.CodeValidation, "Validation failed", err)
		return
	}

	conversationID := req.ConversationID
	if conversationID == "" {
		conversationID = r.Header.Get(ConversationIDHeader)
	}

	sink, err := newNDJSONSink(w)
	if err != nil {
		sendError(w, http.StatusInternalServerError, chatService.CodeInternal, "Streaming not supported", err)
		return
	}

	logger.Log.WithFields(logrus.Fields{
		"user_id":         user.ID,
		"conversation_id": conversationID,
		"model":           req.Model,
	}).Debug("Chat request received")

	err = ch.chatService.SendMessageStream(r.Context(), chatService.SendMessageRequest{
		Message:        req.Message,
		ConversationID: conversationID,
		Model:          req.Model,
		UserID:         user.ID,
	}, augmenter, sink)
	if err != nil {
		code := chatService.CodeFor(err)
		sendError(w, statusFor(code), code, messageFor(code), err)
	}
}

// StopHandler cancels the caller's running generation
func (ch *ChatHandlers) StopHandler(w http.ResponseWriter, r *http.Request) {
	user := auth.MustUser(r.Context())

	resp := StopResponse{Stopped: ch.chatService.Stop(user.ID)}
	if resp.Stopped {
		resp.Message = "Generation stopped"
	} else {
		resp.Message = "No running generation found"
	}
	sendJSON(w, resp)
}

// GetConversationsHandler lists the caller's conversations, newest first
func (ch *ChatHandlers) GetConversationsHandler(w http.ResponseWriter, r *http.Request) {
	user := auth.MustUser(r.Context())

	conversations, err := ch.conversationService.GetUserConversations(user.ID)
	if err != nil {
		logger.Log.WithError(err).Error("Error retrieving conversations")
		sendError(w, http.StatusInternalServerError, chatService.CodeInternal, "Error retrieving conversations", err)
		return
	}
	sendJSON(w, ConversationsResponse{Conversations: conversations})
}

// GetConversationHandler returns one conversation with its messages
func (ch *ChatHandlers) GetConversationHandler(w http.ResponseWriter, r *http.Request) {
	user := auth.MustUser(r.Context())

	conv, err := ch.conversationService.GetConversation(r.PathValue("id"), user.ID)
	if err != nil {
		ch.sendConversationError(w, err, "Error retrieving conversation")
		return
	}
	sendJSON(w, conv)
}

// RenameConversationHandler changes a conversation title
func (ch *ChatHandlers) RenameConversationHandler(w http.ResponseWriter, r *http.Request) {
	user := auth.MustUser(r.Context())

	var req RenameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, chatService.CodeValidation, "Invalid request body", err)
		return
	}
	if err := ch.validator.ValidateTitle(req.Title); err != nil {
		sendError(w, http.StatusBadRequest, chatService.CodeValidation, "Validation failed", err)
		return
	}

	conv, err := ch.conversationService.RenameConversation(r.PathValue("id"), user.ID, req.Title)
	if err != nil {
		ch.sendConversationError(w, err, "Error renaming conversation")
		return
	}
	sendJSON(w, conversationService.Summary{ID: conv.ID, Title: conv.Title, CreatedAt: conv.CreatedAt})
}

// DeleteConversationHandler deletes a conversation
func (ch *ChatHandlers) DeleteConversationHandler(w http.ResponseWriter, r *http.Request) {
	user := auth.MustUser(r.Context())

	if err := ch.conversationService.DeleteConversation(r.PathValue("id"), user.ID); err != nil {
		ch.sendConversationError(w, err, "Error deleting conversation")
		return
	}
	sendJSON(w, MessageResponse{Message: "Conversation deleted successfully"})
}

// ModelsHandler lists the configured models
func (ch *ChatHandlers) ModelsHandler(w http.ResponseWriter, r *http.Request) {
	models := ch.config.ModelsConfig()
	sendJSON(w, ModelsResponse{
		Models:  models.GetAvailableModels(),
		Default: models.GetDefaultModel(),
	})
}

func (ch *ChatHandlers) sendConversationError(w http.ResponseWriter, err error, message string) {
	switch {
	case errors.Is(err, conversationService.ErrUnauthorized):
		sendError(w, http.StatusForbidden, codeForbidden, "Unauthorized", err)
	case errors.Is(err, db.ErrConversationNotFound):
		sendError(w, http.StatusNotFound, chatService.CodeNotFound, "Conversation not found", err)
	default:
		logger.Log.WithError(err).Error(message)
		sendError(w, http.StatusInternalServerError, chatService.CodeInternal, message, err)
	}
}
