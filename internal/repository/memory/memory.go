// Package memory keeps users, conversations and stats in process memory and
// writes every mutation through to a db.DocumentStore.
package memory

import (
	"chat-gateway/internal/logger"
	"chat-gateway/internal/repository/db"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Document keys
const (
	DocUsers         = "users"
	DocConversations = "conversations"
	DocStats         = "stats"
)

const saveTimeout = 30 * time.Second

// Ensure DB implements db.Database interface
var _ db.Database = (*DB)(nil)

// DB is the process-wide state, guarded by a single lock
type DB struct {
	mu            sync.RWMutex
	users         map[string]*db.User
	conversations map[string]*db.Conversation
	stats         *db.UsageStats
	versions      map[string]uint64

	store   db.DocumentStore
	writers map[string]*docWriter
	now     func() time.Time
}

// docWriter serialises saves of one document and drops snapshots older than
// the last one written.
type docWriter struct {
	mu    sync.Mutex
	saved uint64
}

type snapshot struct {
	key     string
	version uint64
	data    []byte
	err     error
}

// Open loads every document from store. Missing or corrupt documents start empty.
func Open(ctx context.Context, store db.DocumentStore) (*DB, error) {
	if store == nil {
		return nil, errors.New("document store is required")
	}

	m := &DB{
		users:         make(map[string]*db.User),
		conversations: make(map[string]*db.Conversation),
		stats:         db.NewUsageStats(),
		versions:      make(map[string]uint64),
		store:         store,
		writers: map[string]*docWriter{
			DocUsers:         {},
			DocConversations: {},
			DocStats:         {},
		},
		now: time.Now,
	}

	m.load(ctx, DocUsers, &m.users)
	m.load(ctx, DocConversations, &m.conversations)
	m.load(ctx, DocStats, m.stats)

	if m.users == nil {
		m.users = make(map[string]*db.User)
	}
	if m.conversations == nil {
		m.conversations = make(map[string]*db.Conversation)
	}
	if m.stats.Daily == nil {
		m.stats.Daily = make(map[string]db.DailyStats)
	}
	if m.stats.Models == nil {
		m.stats.Models = make(map[string]db.ModelStats)
	}

	logger.Log.WithFields(logrus.Fields{
		"users":         len(m.users),
		"conversations": len(m.conversations),
	}).Info("State loaded")

	return m, nil
}

func (m *DB) load(ctx context.Context, key string, into any) {
	data, err := m.store.Load(ctx, key)
	if err != nil {
		if errors.Is(err, db.ErrDocumentNotFound) {
			logger.Log.WithField("document", key).Info("Document not found, starting empty")
		} else {
			logger.Log.WithFields(logrus.Fields{"document": key, "error": err}).Warn("Failed to load document, starting empty")
		}
		return
	}
	if err := json.Unmarshal(data, into); err != nil {
		logger.Log.WithFields(logrus.Fields{"document": key, "error": err}).Warn("Corrupt document, starting empty")
		switch v := into.(type) {
		case *map[string]*db.User:
			*v = make(map[string]*db.User)
		case *map[string]*db.Conversation:
			*v = make(map[string]*db.Conversation)
		case *db.UsageStats:
			*v = *db.NewUsageStats()
		}
	}
}

// Close flushes all documents and closes the backing store
func (m *DB) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	flushErr := m.Flush(ctx)
	if err := m.store.Close(); err != nil {
		return err
	}
	return flushErr
}

// Flush writes every document to the backing store
func (m *DB) Flush(ctx context.Context) error {
	m.mu.Lock()
	snaps := []snapshot{
		m.snapshotLocked(DocUsers),
		m.snapshotLocked(DocConversations),
		m.snapshotLocked(DocStats),
	}
	m.mu.Unlock()

	var errs []error
	for _, snap := range snaps {
		if err := m.write(ctx, snap); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// snapshotLocked must be called with m.mu held for writing
func (m *DB) snapshotLocked(key string) snapshot {
	m.versions[key]++
	snap := snapshot{key: key, version: m.versions[key]}
	switch key {
	case DocUsers:
		snap.data, snap.err = json.Marshal(m.users)
	case DocConversations:
		snap.data, snap.err = json.Marshal(m.conversations)
	case DocStats:
		snap.data, snap.err = json.Marshal(m.stats)
	default:
		snap.err = fmt.Errorf("unknown document %q", key)
	}
	return snap
}

func (m *DB) write(ctx context.Context, snap snapshot) error {
	if snap.err != nil {
		return fmt.Errorf("failed to encode %s: %w", snap.key, snap.err)
	}
	w := m.writers[snap.key]
	w.mu.Lock()
	defer w.mu.Unlock()
	if snap.version <= w.saved {
		return nil
	}
	if err := m.store.Save(ctx, snap.key, snap.data); err != nil {
		return fmt.Errorf("failed to save %s: %w", snap.key, err)
	}
	w.saved = snap.version
	return nil
}

// persist writes snapshots taken under the lock. Failures are logged, never returned:
// the in-memory state stays authoritative until the next successful save.
func (m *DB) persist(snaps ...snapshot) {
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	for _, snap := range snaps {
		if err := m.write(ctx, snap); err != nil {
			logger.Log.WithFields(logrus.Fields{"document": snap.key, "error": err}).Error("Persistence failed")
		}
	}
}
