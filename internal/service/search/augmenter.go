// Package search implements the search-augmented chat variants: a query extraction
// call to the model, a call to an external search service and the context injected
// into the final streamed completion.
package search

import (
	"chat-gateway/internal/logger"
	"chat-gateway/internal/service/chat"
	"chat-gateway/internal/service/llm"
	"context"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"
)

const (
	KindWebsearch  = chat.EventWebsearch
	KindDeepsearch = chat.EventDeepsearch
)

const noSummary = "No summary available"

// WebSearch augments a turn with the summary of three extracted search terms.
// A reply that does not contain exactly three terms fails the turn.
type WebSearch struct {
	backend llm.Backend
	service Service
}

// NewWebSearch creates the websearch augmenter
func NewWebSearch(backend llm.Backend, service Service) *WebSearch {
	return &WebSearch{backend: backend, service: service}
}

func (w *WebSearch) Kind() string         { return KindWebsearch }
func (w *WebSearch) PendingText() string  { return "Web search running..." }
func (w *WebSearch) ContextLabel() string { return "Web search summary" }

// Augment extracts the terms and queries the websearch service
func (w *WebSearch) Augment(ctx context.Context, req chat.AugmentRequest) (*chat.Augmentation, error) {
	reply, err := extract(ctx, w.backend, websearchExtractionPrompt, req.Model, req.Message)
	if err != nil {
		return nil, err
	}
	terms, err := parseSearchTerms(reply)
	if err != nil {
		logger.Log.WithFields(logrus.Fields{"user_id": req.UserID, "reply": reply}).Warn("Invalid search terms from model")
		return nil, err
	}

	logger.Log.WithFields(logrus.Fields{"user_id": req.UserID, "terms": terms}).Info("Running web search")
	result, err := w.service.WebSearch(ctx, terms, req.Model)
	if err != nil {
		return nil, err
	}
	return &chat.Augmentation{
		Summary: strings.TrimSpace(result.Summary),
		Sources: FilterSources(result.Sources),
	}, nil
}

// DeepSearch augments a turn with the synthesis of a deep search on one keyword
type DeepSearch struct {
	backend llm.Backend
	service Service
}

// NewDeepSearch creates the deepsearch augmenter
func NewDeepSearch(backend llm.Backend, service Service) *DeepSearch {
	return &DeepSearch{backend: backend, service: service}
}

func (d *DeepSearch) Kind() string         { return KindDeepsearch }
func (d *DeepSearch) PendingText() string  { return "Deep search running..." }
func (d *DeepSearch) ContextLabel() string { return "Deep search summary" }

// Augment extracts the keyword and queries the deepsearch service
func (d *DeepSearch) Augment(ctx context.Context, req chat.AugmentRequest) (*chat.Augmentation, error) {
	reply, err := extract(ctx, d.backend, deepsearchExtractionPrompt, req.Model, req.Message)
	if err != nil {
		return nil, err
	}
	keyword, err := parseKeyword(reply)
	if err != nil {
		return nil, err
	}

	logger.Log.WithFields(logrus.Fields{"user_id": req.UserID, "keyword": keyword}).Info("Running deep search")
	result, err := d.service.DeepSearch(ctx, keyword, req.Model)
	if err != nil {
		return nil, err
	}

	summary := strings.TrimSpace(result.Summary)
	if summary == "" {
		logger.Log.WithField("keyword", keyword).Warn("Deep search returned no summary")
		summary = noSummary
	}
	return &chat.Augmentation{
		Summary: summary,
		Sources: FilterSources(result.Sources),
	}, nil
}

// FilterSources keeps absolute http and https URLs, preserving order
func FilterSources(sources []string) []string {
	filtered := make([]string, 0, len(sources))
	for _, source := range sources {
		source = strings.TrimSpace(source)
		u, err := url.Parse(source)
		if err != nil || u.Host == "" {
			continue
		}
		if u.Scheme == "http" || u.Scheme == "https" {
			filtered = append(filtered, source)
		}
	}
	return filtered
}
