package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock(ms int64) func() time.Time {
	return func() time.Time { return time.UnixMilli(ms) }
}

func TestRun_OrderPreserved(t *testing.T) {
	t.Parallel()

	const n = 200
	var sb strings.Builder
	want := make([]string, 0, n)
	for i := 0; i < n; i++ {
		line := fmt.Sprintf("record-%04d", i)
		want = append(want, line)
		sb.WriteString(line)
		sb.WriteByte('\n')
	}

	target := NewMockTarget()
	ing := New(WithClock(fixedClock(12345)))

	lines, err := ing.Run(context.Background(), target, "file.txt", strings.NewReader(sb.String()))
	require.NoError(t, err)
	assert.Equal(t, n, lines)
	assert.Equal(t, want, target.Lines())
	assert.True(t, target.Started())
	assert.True(t, target.Completed())
	assert.Zero(t, target.Shutdowns())

	// one upload-wide timestamp, captured once at upload start
	for _, at := range target.Stamps() {
		assert.Equal(t, int64(12345), at)
	}
}

func TestRun_BackpressuredTargetStillOrdered(t *testing.T) {
	t.Parallel()

	input := "one\ntwo\nthree\nfour\nfive\n"
	target := NewMockTarget()
	target.SetAddDelay(20 * time.Millisecond)

	// tiny reads force many chunk boundaries that must not show up
	// in the framing
	reader := iotest(strings.NewReader(input), 3)

	lines, err := New().Run(context.Background(), target, "slow.txt", reader)
	require.NoError(t, err)
	assert.Equal(t, 5, lines)
	assert.Equal(t, []string{"one", "two", "three", "four", "five"}, target.Lines())
}

// iotest wraps r so each Read returns at most n bytes.
func iotest(r io.Reader, n int) io.Reader {
	return &shortReader{r: r, n: n}
}

type shortReader struct {
	r io.Reader
	n int
}

func (s *shortReader) Read(p []byte) (int, error) {
	if len(p) > s.n {
		p = p[:s.n]
	}
	return s.r.Read(p)
}

func TestRun_FinalPartialFrameTolerated(t *testing.T) {
	t.Parallel()

	target := NewMockTarget()
	lines, err := New().Run(context.Background(), target, "file.txt", strings.NewReader("a\nb\ntail-without-newline"))
	require.NoError(t, err)
	assert.Equal(t, 3, lines)
	assert.Equal(t, []string{"a", "b", "tail-without-newline"}, target.Lines())
	assert.True(t, target.Completed())
}

func TestRun_EmptyUpload(t *testing.T) {
	t.Parallel()

	target := NewMockTarget()
	lines, err := New().Run(context.Background(), target, "empty.txt", strings.NewReader(""))
	require.NoError(t, err)
	assert.Zero(t, lines)
	assert.Empty(t, target.Lines())
	assert.True(t, target.Completed())
}

func TestRun_BadExtension(t *testing.T) {
	t.Parallel()

	target := NewMockTarget()
	_, err := New().Run(context.Background(), target, "file.csv", strings.NewReader("a\n"))
	require.ErrorIs(t, err, ErrBadExtension)
	assert.False(t, target.Started())
	assert.Equal(t, 1, target.Shutdowns())
	assert.Empty(t, target.Lines())
}

func TestRun_FrameAtLimitAccepted(t *testing.T) {
	t.Parallel()

	exact := strings.Repeat("x", MaxLineBytes)
	target := NewMockTarget()
	lines, err := New().Run(context.Background(), target, "file.txt", strings.NewReader(exact+"\nnext\n"))
	require.NoError(t, err)
	assert.Equal(t, 2, lines)
	assert.Equal(t, exact, target.Lines()[0])
}

func TestRun_OverlongFrameFails(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("x", MaxLineBytes+1)
	target := NewMockTarget()
	lines, err := New().Run(context.Background(), target, "file.txt", strings.NewReader("ok\n"+long+"\nafter\n"))
	require.ErrorIs(t, err, ErrFileFormat)
	// the line before the overflow stays ingested, no rollback
	assert.Equal(t, 1, lines)
	assert.Equal(t, []string{"ok"}, target.Lines())
	assert.Equal(t, 1, target.Shutdowns())
	assert.False(t, target.Completed())
}

func TestRun_MidStreamReadFailure(t *testing.T) {
	t.Parallel()

	target := NewMockTarget()
	broken := io.MultiReader(strings.NewReader("a\nb\n"), iotestErrReader{})

	lines, err := New().Run(context.Background(), target, "file.txt", broken)
	require.ErrorIs(t, err, ErrFileFormat)
	assert.Equal(t, 2, lines)
	assert.Equal(t, []string{"a", "b"}, target.Lines())
	assert.Equal(t, 1, target.Shutdowns())
}

type iotestErrReader struct{}

func (iotestErrReader) Read([]byte) (int, error) {
	return 0, errors.New("connection reset")
}

func TestRun_TargetRejectsLine(t *testing.T) {
	t.Parallel()

	target := NewMockTarget()
	target.FailAddLineAt(2, errors.New("entity is stopping"))

	lines, err := New().Run(context.Background(), target, "file.txt", strings.NewReader("a\nb\nc\nd\n"))
	require.Error(t, err)
	assert.Equal(t, 2, lines)
	assert.Equal(t, []string{"a", "b"}, target.Lines())
	assert.Equal(t, 1, target.Shutdowns())
	assert.False(t, target.Completed())
}
