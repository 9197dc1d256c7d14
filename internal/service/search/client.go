package search

import (
	"bytes"
	"chat-gateway/internal/config"
	"chat-gateway/internal/logger"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

var tracer = otel.Tracer("chat-gateway/search")

var searchRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "chat_gateway",
	Name:      "search_requests_total",
	Help:      "Calls to the external search services by kind and outcome.",
}, []string{"kind", "outcome"})

// Result is the reply of a search service
type Result struct {
	Summary string   `json:"summary"`
	Sources []string `json:"sources"`
}

// Service retrieves and summarizes external content
type Service interface {
	WebSearch(ctx context.Context, terms []string, model string) (*Result, error)
	DeepSearch(ctx context.Context, keyword, model string) (*Result, error)
}

// Ensure Client implements Service interface
var _ Service = (*Client)(nil)

// Client calls the websearch and deepsearch HTTP services.
// Both share one limiter so a burst of searches cannot flood the collaborators.
type Client struct {
	websearchURL  string
	deepsearchURL string
	web           *http.Client
	deep          *http.Client
	limiter       *rate.Limiter
}

// NewClient creates a client for the endpoints in cfg
func NewClient(cfg config.SearchConfig) *Client {
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	return &Client{
		websearchURL:  strings.TrimRight(cfg.WebsearchURL, "/"),
		deepsearchURL: strings.TrimRight(cfg.DeepsearchURL, "/"),
		web:           &http.Client{Timeout: cfg.WebsearchTimeout},
		deep:          &http.Client{Timeout: cfg.DeepsearchTimeout},
		limiter:       rate.NewLimiter(limit, 1),
	}
}

type websearchRequest struct {
	SearchTerms []string `json:"search_terms"`
	Model       string   `json:"model"`
}

type deepsearchRequest struct {
	Keyword string `json:"keyword"`
	Model   string `json:"model"`
}

// WebSearch runs a web search over terms
func (c *Client) WebSearch(ctx context.Context, terms []string, model string) (*Result, error) {
	return c.call(ctx, c.web, KindWebsearch, c.websearchURL+"/search", websearchRequest{SearchTerms: terms, Model: model})
}

// DeepSearch runs a deep search seeded by keyword
func (c *Client) DeepSearch(ctx context.Context, keyword, model string) (*Result, error) {
	return c.call(ctx, c.deep, KindDeepsearch, c.deepsearchURL+"/deepsearch", deepsearchRequest{Keyword: keyword, Model: model})
}

func (c *Client) call(ctx context.Context, httpClient *http.Client, kind, url string, payload any) (*Result, error) {
	ctx, span := tracer.Start(ctx, "search.Client."+kind)
	defer span.End()
	span.SetAttributes(attribute.String("search.kind", kind), attribute.String("search.url", url))

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, failSpan(span, fmt.Errorf("search rate limiter: %w", err))
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, failSpan(span, fmt.Errorf("error marshaling search request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, failSpan(span, fmt.Errorf("error creating search request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := httpClient.Do(req)
	if err != nil {
		searchRequests.WithLabelValues(kind, "unreachable").Inc()
		return nil, failSpan(span, fmt.Errorf("%s service request failed: %w", kind, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		searchRequests.WithLabelValues(kind, "error").Inc()
		return nil, failSpan(span, fmt.Errorf("%s service returned status %d: %s", kind, resp.StatusCode, string(errBody)))
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		searchRequests.WithLabelValues(kind, "error").Inc()
		return nil, failSpan(span, fmt.Errorf("error decoding %s response: %w", kind, err))
	}

	searchRequests.WithLabelValues(kind, "ok").Inc()
	logger.Log.WithFields(logrus.Fields{
		"kind":     kind,
		"sources":  len(result.Sources),
		"duration": time.Since(start).Round(time.Millisecond).String(),
	}).Info("Search service answered")
	return &result, nil
}

func failSpan(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
