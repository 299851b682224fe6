// Package entity hosts the submission entities: cluster-unique,
// single-writer state machines, one per submission id. Commands are
// serialized through a mailbox so only the entity's own goroutine ever
// touches its record; durability comes from appending every accepted
// command to the entity's event log before the in-memory state moves.
package entity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/filingmesh/filingmesh/pkg/eventlog"
	"github.com/filingmesh/filingmesh/pkg/filing"
)

var (
	// ErrEntityStopping is transient: the entity is draining. A retry
	// lands on a freshly activated instance with replayed state.
	ErrEntityStopping = errors.New("entity is stopping")
	// ErrCallTimeout is returned when a request/response command
	// exceeds its deadline. Never retried here; retry policy belongs
	// to the caller.
	ErrCallTimeout = errors.New("entity call timed out")
	// ErrAlreadyCreated rejects CreateSubmission on a live submission.
	ErrAlreadyCreated = errors.New("submission already created")
	// ErrNotCreated rejects mutating commands on the not-yet-created
	// sentinel. Only CreateSubmission leaves the sentinel state.
	ErrNotCreated = errors.New("submission not created")
	// ErrPhaseOrder rejects an upload-phase command whose predecessor
	// phase has not been reached, or that already ran.
	ErrPhaseOrder = errors.New("upload phase out of order")
)

type cmdKind uint8

const (
	cmdGet cmdKind = iota + 1
	cmdCreate
	cmdModify
	cmdAddLine
	cmdStartUpload
	cmdCompleteUpload
)

type command struct {
	kind    cmdKind
	record  filing.Submission
	at      int64
	line    string
	replyCh chan result
}

type result struct {
	state filing.Submission
	event filing.Event
	seq   uint64
	err   error
}

// Entity is one live submission instance. Obtain one through the
// Router; never construct it directly, uniqueness per id is the
// router's job.
type Entity struct {
	id     filing.SubmissionID
	store  *eventlog.Store
	logger *slog.Logger

	mailbox chan command
	quitCh  chan struct{}
	doneCh  chan struct{}
	quit    sync.Once

	idleTimeout time.Duration
	onStopped   func(*Entity)

	// loop-owned, no lock needed
	state filing.Submission
}

// activate replays the entity's full log and starts its loop. The
// fold is deterministic, so a reactivation always reconstructs the
// state the previous incarnation left behind.
func activate(
	id filing.SubmissionID,
	store *eventlog.Store,
	logger *slog.Logger,
	mailboxSize int,
	idleTimeout time.Duration,
	onStopped func(*Entity),
) (*Entity, error) {
	e := &Entity{
		id:          id,
		store:       store,
		logger:      logger.With("component", "entity", "submission", id.String()),
		mailbox:     make(chan command, mailboxSize),
		quitCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
		idleTimeout: idleTimeout,
		onStopped:   onStopped,
	}

	err := store.Replay(id.LogKey(), func(_ uint64, ev filing.Event) error {
		e.state = ev.Apply(e.state)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("replay %s: %w", id.LogKey(), err)
	}

	go e.run()
	return e, nil
}

func (e *Entity) run() {
	defer close(e.doneCh)

	idle := time.NewTimer(e.idleTimeout)
	defer idle.Stop()

	for {
		select {
		case cmd := <-e.mailbox:
			e.handle(cmd)
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(e.idleTimeout)
		case <-idle.C:
			e.logger.Debug("deactivating idle entity")
			e.Shutdown()
			e.drain()
			return
		case <-e.quitCh:
			e.drain()
			return
		}
	}
}

// drain serves commands already queued at shutdown, deregisters, then
// rejects stragglers. Anything still waiting after doneCh closes is
// released by the caller side of call(); nothing is dropped silently.
func (e *Entity) drain() {
	for {
		select {
		case cmd := <-e.mailbox:
			e.handle(cmd)
		default:
			if e.onStopped != nil {
				e.onStopped(e)
			}
			for {
				select {
				case cmd := <-e.mailbox:
					cmd.reply(result{err: ErrEntityStopping})
				default:
					return
				}
			}
		}
	}
}

func (e *Entity) handle(cmd command) {
	switch cmd.kind {
	case cmdGet:
		cmd.reply(result{state: e.state})

	case cmdCreate:
		if !e.state.Absent() {
			cmd.reply(result{err: ErrAlreadyCreated})
			return
		}
		e.persist(cmd, filing.NewSubmissionCreated(cmd.at))

	case cmdModify:
		if e.state.Absent() {
			cmd.reply(result{err: ErrNotCreated})
			return
		}
		next, err := e.state.Checked(cmd.record)
		if err != nil {
			cmd.reply(result{err: err})
			return
		}
		e.persist(cmd, filing.NewSubmissionModified(next))

	case cmdAddLine:
		if e.state.Absent() {
			cmd.reply(result{err: ErrNotCreated})
			return
		}
		e.persist(cmd, filing.NewLineAdded(cmd.at, cmd.line))

	case cmdStartUpload:
		e.advance(cmd, filing.StatusCreated, filing.StatusUploading)

	case cmdCompleteUpload:
		e.advance(cmd, filing.StatusUploading, filing.StatusUploaded)

	default:
		cmd.reply(result{err: fmt.Errorf("unknown command kind %d", cmd.kind)})
	}
}

// advance persists a record copy moved from one upload phase to the
// next. Each phase transition runs exactly once: arriving in any
// state other than the expected predecessor is a phase-order failure,
// and no event is appended for it.
func (e *Entity) advance(cmd command, from, to filing.Status) {
	if e.state.Absent() {
		cmd.reply(result{err: ErrNotCreated})
		return
	}
	if e.state.Status != from {
		cmd.reply(result{err: fmt.Errorf("%w: %s requires %s, submission is %s",
			ErrPhaseOrder, to, from, e.state.Status)})
		return
	}
	record := e.state
	record.Status = to
	next, err := e.state.Checked(record)
	if err != nil {
		cmd.reply(result{err: err})
		return
	}
	e.persist(cmd, filing.NewSubmissionModified(next))
}

// persist appends the event, then folds it into the in-memory state.
// The log write comes first: state never runs ahead of durability.
func (e *Entity) persist(cmd command, ev filing.Event) {
	seq, err := e.store.Append(e.id.LogKey(), ev)
	if err != nil {
		e.logger.Error("append failed", "kind", ev.Kind, "error", err)
		cmd.reply(result{err: err})
		return
	}
	e.state = ev.Apply(e.state)
	cmd.reply(result{state: e.state, event: ev, seq: seq})
}

func (cmd command) reply(res result) {
	if cmd.replyCh != nil {
		cmd.replyCh <- res
	}
}

// call submits a command and waits for its result, bounded by ctx.
func (e *Entity) call(ctx context.Context, cmd command) (result, error) {
	if err := ctx.Err(); err != nil {
		return result{}, fmt.Errorf("%w: %v", ErrCallTimeout, err)
	}
	cmd.replyCh = make(chan result, 1)

	select {
	case e.mailbox <- cmd:
	case <-e.quitCh:
		return result{}, ErrEntityStopping
	case <-ctx.Done():
		return result{}, fmt.Errorf("%w: %v", ErrCallTimeout, ctx.Err())
	}

	select {
	case res := <-cmd.replyCh:
		return res, res.err
	case <-e.doneCh:
		// every reply is buffered before doneCh closes; take it over
		// the stop signal so a served command is never retried
		select {
		case res := <-cmd.replyCh:
			return res, res.err
		default:
			return result{}, ErrEntityStopping
		}
	case <-ctx.Done():
		return result{}, fmt.Errorf("%w: %v", ErrCallTimeout, ctx.Err())
	}
}

// GetSubmission returns the current in-memory record. No side effect.
func (e *Entity) GetSubmission(ctx context.Context) (filing.Submission, error) {
	res, err := e.call(ctx, command{kind: cmdGet})
	return res.state, err
}

// CreateSubmission brings the submission into existence at the given
// epoch-millisecond timestamp.
func (e *Entity) CreateSubmission(ctx context.Context, at int64) (filing.Event, error) {
	res, err := e.call(ctx, command{kind: cmdCreate, at: at})
	return res.event, err
}

// ModifySubmission validates and replaces the record, persisting a
// SubmissionModified event. The returned event is the acknowledgment.
func (e *Entity) ModifySubmission(ctx context.Context, record filing.Submission) (filing.Event, error) {
	res, err := e.call(ctx, command{kind: cmdModify, record: record})
	return res.event, err
}

// AddLine persists one LineAdded event. The status record is not
// touched.
func (e *Entity) AddLine(ctx context.Context, at int64, line string) (filing.Event, error) {
	res, err := e.call(ctx, command{kind: cmdAddLine, at: at, line: line})
	return res.event, err
}

// StartUpload moves the submission into the uploading phase.
func (e *Entity) StartUpload(ctx context.Context) (filing.Event, error) {
	res, err := e.call(ctx, command{kind: cmdStartUpload})
	return res.event, err
}

// CompleteUpload moves the submission into the post-ingestion phase.
func (e *Entity) CompleteUpload(ctx context.Context) (filing.Event, error) {
	res, err := e.call(ctx, command{kind: cmdCompleteUpload})
	return res.event, err
}

// Shutdown requests graceful deactivation. Commands already queued are
// served; later arrivals get ErrEntityStopping.
func (e *Entity) Shutdown() {
	e.quit.Do(func() {
		close(e.quitCh)
	})
}

// Done is closed once the entity loop has exited.
func (e *Entity) Done() <-chan struct{} {
	return e.doneCh
}

func (e *Entity) stopping() bool {
	select {
	case <-e.quitCh:
		return true
	default:
		return false
	}
}
