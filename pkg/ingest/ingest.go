// Package ingest turns an uploaded text stream into ordered AddLine
// commands against exactly one submission entity. Flow control is
// demand-driven: the next chunk is only pulled from the source after
// the entity has durably accepted the previous line, so a slow entity
// throttles the upstream reader instead of buffering the file.
package ingest

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
)

// MaxLineBytes is the newline-framing cap. A line longer than this is
// a format failure, not a split.
const MaxLineBytes = 2048

var (
	// ErrBadExtension rejects uploads not named *.txt.
	ErrBadExtension = errors.New("file must have a .txt extension")
	// ErrFileFormat covers mid-stream read or framing failures. Lines
	// already appended stay in the log; there is no rollback.
	ErrFileFormat = errors.New("invalid file format")
)

// Target is the single entity an upload feeds. AddLine must not
// return before the line is durably accepted; that synchronous
// hand-off is what backpressure hangs on.
type Target interface {
	StartUpload(ctx context.Context) error
	AddLine(ctx context.Context, at int64, line string) error
	CompleteUpload(ctx context.Context) error
	// Shutdown tears the partially-active entity handle down after a
	// failed upload instead of leaving it dangling.
	Shutdown()
}

type Ingestor struct {
	logger *slog.Logger
	// now is swappable for tests
	now func() time.Time
}

type Option func(*Ingestor)

func WithLogger(logger *slog.Logger) Option {
	return func(ing *Ingestor) {
		if logger != nil {
			ing.logger = logger
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(ing *Ingestor) {
		if now != nil {
			ing.now = now
		}
	}
}

func New(opts ...Option) *Ingestor {
	ing := &Ingestor{
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(ing)
	}
	ing.logger = ing.logger.With("component", "ingestor")
	return ing
}

// Run streams the named upload into target. Every line becomes one
// AddLine carrying the single timestamp captured at upload start, in
// input order regardless of I/O chunk boundaries. A final line
// without a trailing newline is tolerated. On success CompleteUpload
// is sent after the last line was accepted and the line count is
// returned. On any failure the target receives Shutdown and the
// caller a typed error.
func (ing *Ingestor) Run(ctx context.Context, target Target, filename string, r io.Reader) (int, error) {
	if !strings.HasSuffix(filename, ".txt") {
		target.Shutdown()
		return 0, fmt.Errorf("%w: got %q", ErrBadExtension, filename)
	}

	at := ing.now().UnixMilli()

	if err := target.StartUpload(ctx); err != nil {
		target.Shutdown()
		return 0, fmt.Errorf("start upload: %w", err)
	}

	// one spare byte so a full 2048-byte frame plus its delimiter
	// still fits; only a longer frame overflows
	reader := bufio.NewReaderSize(r, MaxLineBytes+1)

	lines := 0
	for {
		chunk, err := reader.ReadSlice('\n')
		switch {
		case err == nil:
			if err := target.AddLine(ctx, at, string(chunk[:len(chunk)-1])); err != nil {
				target.Shutdown()
				return lines, fmt.Errorf("append line %d: %w", lines+1, err)
			}
			lines++

		case errors.Is(err, bufio.ErrBufferFull):
			ing.logger.Error("upload frame exceeds limit",
				"file", filename,
				"limit", MaxLineBytes,
				"lines_ingested", lines,
			)
			target.Shutdown()
			return lines, fmt.Errorf("%w: line %d exceeds %d bytes", ErrFileFormat, lines+1, MaxLineBytes)

		case errors.Is(err, io.EOF):
			// a final frame without its delimiter is tolerated
			if len(chunk) > 0 {
				if err := target.AddLine(ctx, at, string(chunk)); err != nil {
					target.Shutdown()
					return lines, fmt.Errorf("append line %d: %w", lines+1, err)
				}
				lines++
			}
			if err := target.CompleteUpload(ctx); err != nil {
				target.Shutdown()
				return lines, fmt.Errorf("complete upload: %w", err)
			}
			ing.logger.Info("upload ingested", "file", filename, "lines", lines)
			return lines, nil

		default:
			ing.logger.Error("upload stream failed mid-read",
				"file", filename,
				"lines_ingested", lines,
				"error", err,
			)
			target.Shutdown()
			return lines, fmt.Errorf("%w: %v", ErrFileFormat, err)
		}
	}
}
