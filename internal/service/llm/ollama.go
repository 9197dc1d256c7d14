package llm

import (
	"bytes"
	"chat-gateway/internal/config"
	"chat-gateway/internal/logger"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("chat-gateway/llm")

var backendRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "chat_gateway",
	Name:      "backend_requests_total",
	Help:      "Requests sent to backend hosts by outcome.",
}, []string{"host", "outcome"})

// ErrBackendUnavailable means no configured host accepted the connection
var ErrBackendUnavailable = errors.New("backend unavailable")

// StatusError is a non-2xx answer from the backend
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend returned status %d: %s", e.StatusCode, e.Body)
}

type chatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
}

type chatResponse struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	Error string `json:"error"`
}

// Ensure OllamaClient implements Backend interface
var _ Backend = (*OllamaClient)(nil)

// OllamaClient talks to the Ollama /api/chat endpoint. Hosts are tried in order;
// the next host is used only when the previous one cannot be reached.
type OllamaClient struct {
	httpClient *http.Client
	hosts      []string
	timeout    time.Duration
}

// NewOllamaClient creates a client for the enabled hosts of cfg
func NewOllamaClient(cfg config.BackendConfig) *OllamaClient {
	return NewOllamaClientWithHosts(cfg.Hosts(), cfg.Timeout)
}

// NewOllamaClientWithHosts creates a client for explicit base URLs
func NewOllamaClientWithHosts(hosts []string, timeout time.Duration) *OllamaClient {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = timeout

	return &OllamaClient{
		// No overall client timeout: a streamed answer may legitimately take longer.
		httpClient: &http.Client{Transport: transport},
		hosts:      hosts,
		timeout:    timeout,
	}
}

// Chat performs a non-streaming completion
func (c *OllamaClient) Chat(ctx context.Context, model string, messages []Message) (string, error) {
	ctx, span := tracer.Start(ctx, "OllamaClient.Chat")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.model", model),
		attribute.Int("llm.num_messages", len(messages)),
	)

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.post(ctx, chatRequest{Model: model, Messages: messages, Stream: false})
	if err != nil {
		return "", failSpan(span, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", failSpan(span, fmt.Errorf("error reading response body: %w", err))
	}

	var chatResp chatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return "", failSpan(span, fmt.Errorf("error decoding response: %w", err))
	}
	if chatResp.Error != "" {
		return "", failSpan(span, &StreamError{Message: chatResp.Error})
	}

	logger.Log.WithFields(logrus.Fields{
		"model":          model,
		"content_length": len(chatResp.Message.Content),
	}).Debug("Backend completion received")
	return chatResp.Message.Content, nil
}

// ChatStream starts a streaming completion and returns once response headers arrive
func (c *OllamaClient) ChatStream(ctx context.Context, model string, messages []Message) (*Stream, error) {
	ctx, span := tracer.Start(ctx, "OllamaClient.ChatStream")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.model", model),
		attribute.Int("llm.num_messages", len(messages)),
	)

	resp, err := c.post(ctx, chatRequest{Model: model, Messages: messages, Stream: true})
	if err != nil {
		return nil, failSpan(span, err)
	}
	return NewStream(resp.Body), nil
}

// post sends req to the first reachable host and returns a 2xx response
func (c *OllamaClient) post(ctx context.Context, req chatRequest) (*http.Response, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("error marshaling request: %w", err)
	}

	var lastErr error
	for _, host := range c.hosts {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, host+"/api/chat", bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("error creating request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			backendRequests.WithLabelValues(host, "unreachable").Inc()
			logger.Log.WithFields(logrus.Fields{"host": host, "error": err}).Warn("Backend host unreachable")
			lastErr = err
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			backendRequests.WithLabelValues(host, "error").Inc()
			logger.Log.WithFields(logrus.Fields{
				"host":   host,
				"status": resp.StatusCode,
				"body":   truncate(string(body), logPayloadMax),
			}).Error("Backend returned an error status")
			return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
		}

		backendRequests.WithLabelValues(host, "ok").Inc()
		return resp, nil
	}

	if lastErr == nil {
		return nil, fmt.Errorf("%w: no hosts configured", ErrBackendUnavailable)
	}
	return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, lastErr)
}

func failSpan(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
