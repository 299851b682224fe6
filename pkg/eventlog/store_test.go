package eventlog

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filingmesh/filingmesh/pkg/filing"
)

func openTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "events.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, path
}

func TestAppendReplay_Order(t *testing.T) {
	t.Parallel()
	s, _ := openTestStore(t)

	logKey := "Submission-ABC123-2019-1"
	var want []string
	for i := 0; i < 25; i++ {
		line := fmt.Sprintf("line-%02d", i)
		want = append(want, line)
		seq, err := s.Append(logKey, filing.NewLineAdded(1000, line))
		require.NoError(t, err)
		assert.Equal(t, uint64(i+1), seq)
	}

	var got []string
	var lastSeq uint64
	err := s.Replay(logKey, func(seq uint64, ev filing.Event) error {
		require.Equal(t, lastSeq+1, seq, "replay must follow append order")
		lastSeq = seq
		got = append(got, ev.Line)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestReplay_MissingLogIsEmpty(t *testing.T) {
	t.Parallel()
	s, _ := openTestStore(t)

	calls := 0
	err := s.Replay("Submission-none-2020-1", func(uint64, filing.Event) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Zero(t, calls)

	last, err := s.LastSeq("Submission-none-2020-1")
	require.NoError(t, err)
	assert.Zero(t, last)
}

func TestReplay_SurvivesReopen(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "events.db")
	logKey := "Submission-XYZ-2021-2"

	s, err := Open(path)
	require.NoError(t, err)
	_, err = s.Append(logKey, filing.NewSubmissionCreated(500))
	require.NoError(t, err)
	_, err = s.Append(logKey, filing.NewLineAdded(600, "persisted"))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	state := filing.Submission{}
	err = s.Replay(logKey, func(_ uint64, ev filing.Event) error {
		state = ev.Apply(state)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, filing.StatusCreated, state.Status)
	assert.Equal(t, int64(500), state.Start)

	last, err := s.LastSeq(logKey)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), last)
}

func TestLogStats(t *testing.T) {
	t.Parallel()
	s, _ := openTestStore(t)

	logKey := "Submission-ABC123-2019-3"
	_, err := s.Append(logKey, filing.NewSubmissionCreated(1))
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err = s.Append(logKey, filing.NewLineAdded(2, "x"))
		require.NoError(t, err)
	}
	_, err = s.Append(logKey, filing.NewSubmissionModified(filing.Submission{Status: filing.StatusUploaded}))
	require.NoError(t, err)

	st, err := s.LogStats(logKey)
	require.NoError(t, err)
	assert.Equal(t, Stats{Entries: 5, Lines: 3}, st)
}

func TestLogs_AreIndependent(t *testing.T) {
	t.Parallel()
	s, _ := openTestStore(t)

	a := "Submission-A-2019-1"
	b := "Submission-B-2019-1"

	seqA, err := s.Append(a, filing.NewLineAdded(1, "a"))
	require.NoError(t, err)
	seqB, err := s.Append(b, filing.NewLineAdded(1, "b"))
	require.NoError(t, err)

	// sequences advance per log, not globally
	assert.Equal(t, uint64(1), seqA)
	assert.Equal(t, uint64(1), seqB)
}
