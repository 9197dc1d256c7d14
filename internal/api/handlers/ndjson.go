package handlers

import (
	chatService "chat-gateway/internal/service/chat"
	"encoding/json"
	"errors"
	"net/http"
)

var errStreamingUnsupported = errors.New("streaming not supported")

// ndjsonSink writes chat events as newline-delimited JSON, flushing each line
type ndjsonSink struct {
	w       http.ResponseWriter
	flusher http.Flusher
	enc     *json.Encoder
	opened  bool
}

func newNDJSONSink(w http.ResponseWriter) (*ndjsonSink, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, errStreamingUnsupported
	}
	return &ndjsonSink{w: w, flusher: flusher, enc: json.NewEncoder(w)}, nil
}

func (s *ndjsonSink) Open() error {
	if s.opened {
		return nil
	}
	h := s.w.Header()
	h.Set("Content-Type", "application/x-ndjson")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	s.w.WriteHeader(http.StatusOK)
	s.flusher.Flush()
	s.opened = true
	return nil
}

func (s *ndjsonSink) Opened() bool { return s.opened }

// Send encodes one event; Encode terminates it with a newline
func (s *ndjsonSink) Send(event chatService.Event) error {
	if err := s.enc.Encode(event); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
