package llm

import (
	"bytes"
	"chat-gateway/internal/logger"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"

	"github.com/sirupsen/logrus"
)

const (
	readChunkSize = 4096
	maxLineSize   = 1 << 20
	logPayloadMax = 200
)

// ErrLineTooLong is returned when the backend sends a line without a newline
// for more than maxLineSize bytes
var ErrLineTooLong = errors.New("backend stream line too long")

// Chunk is one decoded line of the backend stream
type Chunk struct {
	Content         string
	Done            bool
	PromptEvalCount *int64
	EvalCount       *int64
}

// Usage returns prompt + eval token counts when the line is terminal and
// carries both counts
func (c Chunk) Usage() (int64, bool) {
	if !c.Done || c.PromptEvalCount == nil || c.EvalCount == nil {
		return 0, false
	}
	return *c.PromptEvalCount + *c.EvalCount, true
}

// StreamError is an error object reported by the backend inside the stream
type StreamError struct {
	Message string
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("backend stream error: %s", e.Message)
}

type wireChunk struct {
	Message *struct {
		Content string `json:"content"`
	} `json:"message"`
	Done            bool   `json:"done"`
	PromptEvalCount *int64 `json:"prompt_eval_count"`
	EvalCount       *int64 `json:"eval_count"`
	Error           string `json:"error"`
}

// Stream decodes newline-delimited JSON from a backend response body.
// Bytes are read incrementally; complete lines are decoded and a trailing partial
// line is kept until more data arrives. A Stream is consumed once.
type Stream struct {
	body    io.ReadCloser
	buf     []byte
	readBuf []byte
	readErr error
	skipped int
}

// NewStream wraps a response body
func NewStream(body io.ReadCloser) *Stream {
	return &Stream{
		body:    body,
		readBuf: make([]byte, readChunkSize),
	}
}

// Next returns the next decodable chunk. Blank and malformed lines are skipped.
// It returns io.EOF once the body is exhausted.
func (s *Stream) Next() (Chunk, error) {
	for {
		if i := bytes.IndexByte(s.buf, '\n'); i >= 0 {
			line := s.buf[:i]
			s.buf = s.buf[i+1:]
			chunk, ok, err := s.decode(line)
			if err != nil {
				return Chunk{}, err
			}
			if ok {
				return chunk, nil
			}
			continue
		}

		if s.readErr != nil {
			if len(bytes.TrimSpace(s.buf)) > 0 {
				line := s.buf
				s.buf = nil
				chunk, ok, err := s.decode(line)
				if err != nil {
					return Chunk{}, err
				}
				if ok {
					return chunk, nil
				}
			}
			if errors.Is(s.readErr, io.EOF) {
				return Chunk{}, io.EOF
			}
			return Chunk{}, fmt.Errorf("error reading backend stream: %w", s.readErr)
		}

		if len(s.buf) > maxLineSize {
			return Chunk{}, ErrLineTooLong
		}

		n, err := s.body.Read(s.readBuf)
		if n > 0 {
			s.buf = append(s.buf, s.readBuf[:n]...)
		}
		if err != nil {
			s.readErr = err
		}
	}
}

// All yields chunks until the stream ends. A clean end yields nothing more;
// any other failure is yielded once as the error.
func (s *Stream) All() iter.Seq2[Chunk, error] {
	return func(yield func(Chunk, error) bool) {
		for {
			chunk, err := s.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if !yield(chunk, err) || err != nil {
				return
			}
		}
	}
}

// Skipped returns how many malformed lines were dropped
func (s *Stream) Skipped() int { return s.skipped }

// Close closes the underlying body
func (s *Stream) Close() error { return s.body.Close() }

func (s *Stream) decode(line []byte) (Chunk, bool, error) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return Chunk{}, false, nil
	}

	var wire wireChunk
	if err := json.Unmarshal(line, &wire); err != nil {
		s.skipped++
		logger.Log.WithFields(logrus.Fields{
			"payload": truncate(string(line), logPayloadMax),
			"error":   err,
		}).Warn("Skipping malformed backend line")
		return Chunk{}, false, nil
	}
	if wire.Error != "" {
		return Chunk{}, false, &StreamError{Message: wire.Error}
	}

	chunk := Chunk{
		Done:            wire.Done,
		PromptEvalCount: wire.PromptEvalCount,
		EvalCount:       wire.EvalCount,
	}
	if wire.Message != nil {
		chunk.Content = wire.Message.Content
	}
	return chunk, true, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
