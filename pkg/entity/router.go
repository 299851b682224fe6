package entity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/filingmesh/filingmesh/pkg/eventlog"
	"github.com/filingmesh/filingmesh/pkg/filing"
)

const (
	defaultShardCount  = 64
	defaultMailboxSize = 64
	defaultIdleTimeout = 2 * time.Minute
	defaultCallTimeout = 5 * time.Second
)

var ErrRouterClosed = errors.New("router is closed")

// Router is the ownership table mapping submission ids to their one
// live entity. Callers address an id; which shard hosts it is opaque
// to them. An id hashes to a fixed shard, and the shard's lock is
// what guarantees at most one live instance per id.
type Router struct {
	store  *eventlog.Store
	logger *slog.Logger

	shards    []*routerShard
	shardMask uint64

	mailboxSize int
	idleTimeout time.Duration
	callTimeout time.Duration

	mu     sync.RWMutex
	closed bool
}

type routerShard struct {
	mu       sync.Mutex
	entities map[filing.SubmissionID]*Entity
}

type RouterOption func(*Router)

// WithShardCount sets the ownership partition count, rounded up to a
// power of two for mask addressing.
func WithShardCount(n int) RouterOption {
	return func(r *Router) {
		if n > 0 {
			count := 1
			for count < n {
				count <<= 1
			}
			r.shards = make([]*routerShard, count)
			r.shardMask = uint64(count - 1)
		}
	}
}

// WithIdleTimeout sets how long an entity may sit without commands
// before it deactivates.
func WithIdleTimeout(d time.Duration) RouterOption {
	return func(r *Router) {
		if d > 0 {
			r.idleTimeout = d
		}
	}
}

// WithCallTimeout sets the default deadline applied to
// request/response commands whose context carries none.
func WithCallTimeout(d time.Duration) RouterOption {
	return func(r *Router) {
		if d > 0 {
			r.callTimeout = d
		}
	}
}

func WithMailboxSize(n int) RouterOption {
	return func(r *Router) {
		if n > 0 {
			r.mailboxSize = n
		}
	}
}

func WithRouterLogger(logger *slog.Logger) RouterOption {
	return func(r *Router) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRouter creates the ownership table over the given log store.
func NewRouter(store *eventlog.Store, opts ...RouterOption) *Router {
	r := &Router{
		store:       store,
		logger:      slog.Default(),
		mailboxSize: defaultMailboxSize,
		idleTimeout: defaultIdleTimeout,
		callTimeout: defaultCallTimeout,
	}
	WithShardCount(defaultShardCount)(r)
	for _, opt := range opts {
		opt(r)
	}
	for i := range r.shards {
		r.shards[i] = &routerShard{entities: make(map[filing.SubmissionID]*Entity)}
	}
	r.logger = r.logger.With("component", "entity-router")
	return r
}

func (r *Router) shardFor(id filing.SubmissionID) *routerShard {
	return r.shards[xxhash.Sum64String(id.String())&r.shardMask]
}

func (r *Router) isClosed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.closed
}

// lookup returns the live entity for id, activating one (with a full
// log replay) if none exists. If the previous incarnation is still
// draining, lookup waits for it to finish first so its final appends
// are visible to the replay and the single-writer guarantee holds.
// The closed flag is checked under the shard lock: Close flips it
// before walking the shards, so an activation either observes the
// flag or lands in the shard map before Close's walk reaches it.
func (r *Router) lookup(ctx context.Context, id filing.SubmissionID) (*Entity, error) {
	sh := r.shardFor(id)
	for {
		sh.mu.Lock()
		if r.isClosed() {
			sh.mu.Unlock()
			return nil, ErrRouterClosed
		}
		e, ok := sh.entities[id]
		if ok && !e.stopping() {
			sh.mu.Unlock()
			return e, nil
		}
		if !ok {
			fresh, err := activate(id, r.store, r.logger, r.mailboxSize, r.idleTimeout, func(stopped *Entity) {
				sh.mu.Lock()
				if sh.entities[id] == stopped {
					delete(sh.entities, id)
				}
				sh.mu.Unlock()
			})
			if err != nil {
				sh.mu.Unlock()
				return nil, fmt.Errorf("activate %s: %w", id, err)
			}
			sh.entities[id] = fresh
			sh.mu.Unlock()
			return fresh, nil
		}
		sh.mu.Unlock()

		// previous incarnation is draining; wait it out
		select {
		case <-e.Done():
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", ErrCallTimeout, ctx.Err())
		}
	}
}

// call routes one request/response command, reactivating the entity
// if it deactivated between lookup and delivery. Timeouts are typed
// failures, never retried here.
func (r *Router) call(ctx context.Context, id filing.SubmissionID, cmd command) (result, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.callTimeout)
		defer cancel()
	}

	for {
		e, err := r.lookup(ctx, id)
		if err != nil {
			return result{}, err
		}
		res, err := e.call(ctx, cmd)
		if errors.Is(err, ErrEntityStopping) {
			continue
		}
		return res, err
	}
}

// GetSubmission returns the current record for id; the zero record if
// nothing was ever created.
func (r *Router) GetSubmission(ctx context.Context, id filing.SubmissionID) (filing.Submission, error) {
	res, err := r.call(ctx, id, command{kind: cmdGet})
	return res.state, err
}

func (r *Router) CreateSubmission(ctx context.Context, id filing.SubmissionID, at int64) (filing.Event, error) {
	res, err := r.call(ctx, id, command{kind: cmdCreate, at: at})
	return res.event, err
}

func (r *Router) ModifySubmission(ctx context.Context, id filing.SubmissionID, record filing.Submission) (filing.Event, error) {
	res, err := r.call(ctx, id, command{kind: cmdModify, record: record})
	return res.event, err
}

func (r *Router) AddLine(ctx context.Context, id filing.SubmissionID, at int64, line string) (filing.Event, error) {
	res, err := r.call(ctx, id, command{kind: cmdAddLine, at: at, line: line})
	return res.event, err
}

func (r *Router) StartUpload(ctx context.Context, id filing.SubmissionID) (filing.Event, error) {
	res, err := r.call(ctx, id, command{kind: cmdStartUpload})
	return res.event, err
}

func (r *Router) CompleteUpload(ctx context.Context, id filing.SubmissionID) (filing.Event, error) {
	res, err := r.call(ctx, id, command{kind: cmdCompleteUpload})
	return res.event, err
}

// Deactivate shuts down the live entity for id, if any. It does not
// activate one just to stop it.
func (r *Router) Deactivate(id filing.SubmissionID) {
	sh := r.shardFor(id)
	sh.mu.Lock()
	e, ok := sh.entities[id]
	sh.mu.Unlock()
	if ok {
		e.Shutdown()
	}
}

// Active returns the number of live entities across all shards.
func (r *Router) Active() int {
	n := 0
	for _, sh := range r.shards {
		sh.mu.Lock()
		n += len(sh.entities)
		sh.mu.Unlock()
	}
	return n
}

// Close shuts down every live entity and waits for the drains,
// bounded by ctx. The router accepts no commands afterwards.
func (r *Router) Close(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	var live []*Entity
	for _, sh := range r.shards {
		sh.mu.Lock()
		for _, e := range sh.entities {
			live = append(live, e)
		}
		sh.mu.Unlock()
	}

	for _, e := range live {
		e.Shutdown()
	}
	for _, e := range live {
		select {
		case <-e.Done():
		case <-ctx.Done():
			return fmt.Errorf("router close: %w", ctx.Err())
		}
	}
	return nil
}
