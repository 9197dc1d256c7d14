package memory

import (
	"chat-gateway/internal/repository/db"
	"context"
	"sync"
)

// Documents is a DocumentStore that only lives in memory
type Documents struct {
	mu   sync.Mutex
	docs map[string][]byte
}

// NewDocuments returns an empty in-memory document store
func NewDocuments() *Documents {
	return &Documents{docs: make(map[string][]byte)}
}

func (d *Documents) Load(_ context.Context, key string) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	data, ok := d.docs[key]
	if !ok {
		return nil, db.ErrDocumentNotFound
	}
	return append([]byte(nil), data...), nil
}

func (d *Documents) Save(_ context.Context, key string, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.docs[key] = append([]byte(nil), data...)
	return nil
}

func (d *Documents) Close() error { return nil }
