// Package manager relays submission status notifications to
// downstream supervisory/UI consumers. The relay is stateless and
// delivery is at-most-once: a restart loses in-flight notices, which
// is fine because the entity's log stays the source of truth and
// consumers can re-read it.
package manager

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/filingmesh/filingmesh/pkg/filing"
)

// StatusNotice is one status-change broadcast. It may be observed
// before, after, or without the corresponding durable write; ordering
// against durability is deliberately not guaranteed.
type StatusNotice struct {
	ID         filing.SubmissionID
	Submission filing.Submission
}

// Relay fans notices out to registered subscribers without blocking.
type Relay struct {
	logger *slog.Logger

	mu   sync.RWMutex
	subs map[string]chan StatusNotice
}

func NewRelay(logger *slog.Logger) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{
		logger: logger.With("component", "manager"),
		subs:   make(map[string]chan StatusNotice),
	}
}

// Subscribe registers a consumer with the given channel buffer.
// Cancel deregisters and closes the channel; pending notices on the
// buffer stay readable.
func (r *Relay) Subscribe(buffer int) (<-chan StatusNotice, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan StatusNotice, buffer)
	key := uuid.NewString()

	r.mu.Lock()
	r.subs[key] = ch
	r.mu.Unlock()

	cancel := func() {
		r.mu.Lock()
		if _, ok := r.subs[key]; ok {
			delete(r.subs, key)
			close(ch)
		}
		r.mu.Unlock()
	}
	return ch, cancel
}

// Publish sends the notice to every subscriber that has buffer room.
// It never blocks; a full consumer misses the notice (at-most-once)
// and is expected to reconcile by reading the entity directly.
func (r *Relay) Publish(n StatusNotice) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for key, ch := range r.subs {
		select {
		case ch <- n:
		default:
			r.logger.Warn("subscriber lagging, notice dropped",
				"subscriber", key,
				"submission", n.ID.String(),
				"status", n.Submission.Status.String(),
			)
		}
	}
}

// Subscribers returns the current consumer count.
func (r *Relay) Subscribers() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}
