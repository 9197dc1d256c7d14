// Package generation tracks the in-flight, cancellable generation of each user.
package generation

import (
	"chat-gateway/internal/logger"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrStopped is the cancellation cause recorded when a user stops a generation
var ErrStopped = errors.New("generation stopped by user")

var errReleased = errors.New("generation finished")

// Handle is the cancellation token bound to one generation
type Handle struct {
	userID    string
	ctx       context.Context
	cancel    context.CancelCauseFunc
	startedAt time.Time
}

// Context is cancelled on stop, on client disconnect and on Release
func (h *Handle) Context() context.Context { return h.ctx }

// UserID returns the owner of the generation
func (h *Handle) UserID() string { return h.userID }

// StartedAt returns when the generation was registered
func (h *Handle) StartedAt() time.Time { return h.startedAt }

// Cancelled reports whether the generation was aborted by a stop or a disconnect
func (h *Handle) Cancelled() bool {
	return h.ctx.Err() != nil && !errors.Is(context.Cause(h.ctx), errReleased)
}

// Release frees the context resources; call once the generation is over
func (h *Handle) Release() {
	h.cancel(errReleased)
}

// Registry holds at most one handle per user
type Registry struct {
	mu      sync.Mutex
	handles map[string]*Handle
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{handles: make(map[string]*Handle)}
}

// Begin registers a new handle derived from parent. A handle already registered for
// the user is replaced but not cancelled; its generation keeps running and can no
// longer be reached through Cancel.
func (r *Registry) Begin(parent context.Context, userID string) *Handle {
	ctx, cancel := context.WithCancelCause(parent)
	h := &Handle{
		userID:    userID,
		ctx:       ctx,
		cancel:    cancel,
		startedAt: time.Now(),
	}

	r.mu.Lock()
	_, replaced := r.handles[userID]
	r.handles[userID] = h
	r.mu.Unlock()

	if replaced {
		logger.Log.WithField("user_id", userID).Warn("New generation replaced a running one in the registry")
	}
	return h
}

// Cancel signals the registered handle of userID and removes it.
// It reports whether a live generation was found.
func (r *Registry) Cancel(userID string) bool {
	r.mu.Lock()
	h, ok := r.handles[userID]
	if ok {
		delete(r.handles, userID)
	}
	r.mu.Unlock()

	if !ok {
		return false
	}
	h.cancel(ErrStopped)
	logger.Log.WithFields(logrus.Fields{
		"user_id": userID,
		"running": time.Since(h.startedAt).Round(time.Millisecond).String(),
	}).Info("Generation stopped")
	return true
}

// End removes whatever handle is registered for userID
func (r *Registry) End(userID string) {
	r.mu.Lock()
	delete(r.handles, userID)
	r.mu.Unlock()
}

// Active reports whether userID has a registered generation
func (r *Registry) Active(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.handles[userID]
	return ok
}
