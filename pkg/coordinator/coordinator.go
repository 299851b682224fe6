// Package coordinator runs the cross-cutting consistency operations:
// read one entity, derive the new record, write it back, and notify
// the manager relay. These run detached from any HTTP request, so
// failures are logged and swallowed rather than surfaced; the durable
// write and the broadcast are independent of each other by design.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/filingmesh/filingmesh/pkg/entity"
	"github.com/filingmesh/filingmesh/pkg/filing"
	"github.com/filingmesh/filingmesh/pkg/manager"
)

var (
	// ErrSubmissionNotFound means the id resolved to the
	// not-yet-created sentinel.
	ErrSubmissionNotFound = errors.New("submission does not exist")
	// ErrUploadConflict rejects an upload for a submission that has
	// left its initial state.
	ErrUploadConflict = errors.New("submission already has an upload in progress or completed")
)

type Coordinator struct {
	entities *entity.Router
	relay    *manager.Relay
	logger   *slog.Logger
	timeout  time.Duration
}

type Option func(*Coordinator)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithTimeout bounds each detached operation's entity calls.
func WithTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func New(entities *entity.Router, relay *manager.Relay, opts ...Option) *Coordinator {
	c := &Coordinator{
		entities: entities,
		relay:    relay,
		logger:   slog.Default(),
		timeout:  10 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "coordinator")
	return c
}

// UpdateStatus broadcasts the submission with its status replaced.
// If the id resolves to the absent sentinel this is a no-op beyond an
// error log entry; nobody is waiting on these calls, so nothing
// propagates.
func (c *Coordinator) UpdateStatus(ctx context.Context, id filing.SubmissionID, status filing.Status) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	current, err := c.entities.GetSubmission(ctx, id)
	if err != nil {
		c.logger.Error("status update: fetch failed", "submission", id.String(), "error", err)
		return
	}
	if current.Absent() {
		c.logger.Error("status update addressed to absent submission", "submission", id.String())
		return
	}

	next := current
	next.Status = status
	c.relay.Publish(manager.StatusNotice{ID: id, Submission: next})
}

// UpdateStatusAndReceipt derives a record with receipt, end timestamp
// and status set, broadcasts it, and separately makes it durable. The
// two steps are independent: a consumer may see the broadcast before
// (or without) the durable write landing. Accepted trade-off.
func (c *Coordinator) UpdateStatusAndReceipt(
	ctx context.Context,
	id filing.SubmissionID,
	timestamp int64,
	receipt string,
	status filing.Status,
) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	current, err := c.entities.GetSubmission(ctx, id)
	if err != nil {
		c.logger.Error("receipt update: fetch failed", "submission", id.String(), "error", err)
		return
	}
	if current.Absent() {
		c.logger.Error("receipt update addressed to absent submission", "submission", id.String())
		return
	}

	next := current
	next.Receipt = receipt
	next.End = timestamp
	next.Status = status

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		c.relay.Publish(manager.StatusNotice{ID: id, Submission: next})
		return nil
	})
	g.Go(func() error {
		if _, err := c.entities.ModifySubmission(gctx, id, next); err != nil {
			return fmt.Errorf("durable write: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		c.logger.Error("receipt update incomplete",
			"submission", id.String(),
			"status", status.String(),
			"error", err,
		)
	}
}

// GuardNewUpload is the duplicate-submission check run before an
// upload is accepted: only a submission still in its initial Created
// state may take one. Unlike the detached updates above, this runs in
// a request path and returns typed failures.
func (c *Coordinator) GuardNewUpload(ctx context.Context, id filing.SubmissionID) error {
	current, err := c.entities.GetSubmission(ctx, id)
	if err != nil {
		return err
	}
	if current.Absent() {
		return fmt.Errorf("%w: %s", ErrSubmissionNotFound, id)
	}
	if current.Status != filing.StatusCreated {
		return fmt.Errorf("%w: %s is %s", ErrUploadConflict, id, current.Status)
	}
	return nil
}

// NewReceipt builds the receipt string handed out when ingestion
// completes.
func NewReceipt(id filing.SubmissionID, timestamp int64) string {
	return fmt.Sprintf("%s-%d", id, timestamp)
}
