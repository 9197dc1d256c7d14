package handlers

import (
	chatService "chat-gateway/internal/service/chat"
	"chat-gateway/internal/logger"
	"encoding/json"
	"net/http"
)

// StatusClientClosedRequest is reported for generations cancelled before streaming began
const StatusClientClosedRequest = 499

// Codes used only at the HTTP layer
const (
	codeUnauthorized = "unauthorized"
	codeForbidden    = "forbidden"
	codeConflict     = "conflict"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

// sendError sends a standardized JSON error response
func sendError(w http.ResponseWriter, status int, code, message string, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	errResp := ErrorResponse{
		Code:    code,
		Message: message,
	}
	if err != nil {
		errResp.Error = err.Error()
	}
	json.NewEncoder(w).Encode(errResp)
}

// sendJSON writes v with status 200
func sendJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Log.WithError(err).Debug("Failed to write response")
	}
}

// statusFor maps a client-facing error code to its HTTP status
func statusFor(code string) int {
	switch code {
	case chatService.CodeValidation:
		return http.StatusBadRequest
	case codeUnauthorized:
		return http.StatusUnauthorized
	case chatService.CodeQuotaExceeded, codeForbidden:
		return http.StatusForbidden
	case chatService.CodeNotFound:
		return http.StatusNotFound
	case codeConflict:
		return http.StatusConflict
	case chatService.CodeCancelled:
		return StatusClientClosedRequest
	default:
		return http.StatusInternalServerError
	}
}

func messageFor(code string) string {
	switch code {
	case chatService.CodeValidation:
		return "Validation failed"
	case chatService.CodeQuotaExceeded:
		return "Token limit reached, please wait for the next reset"
	case chatService.CodeNotFound:
		return "Not found"
	case chatService.CodeCancelled:
		return "Request cancelled"
	case chatService.CodeBackendUnavailable:
		return "Model backend unavailable"
	case chatService.CodeBackendError:
		return "Model backend error"
	case chatService.CodeSearchFailed:
		return "Search failed"
	default:
		return "Error processing message"
	}
}
