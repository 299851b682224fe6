package filing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplay_Deterministic(t *testing.T) {
	t.Parallel()

	events := []Event{
		NewSubmissionCreated(1000),
		NewLineAdded(2000, "row one"),
		NewLineAdded(2000, "row two"),
		NewSubmissionModified(Submission{Status: StatusUploaded, Start: 1000}),
		NewSubmissionModified(Submission{
			Status:  StatusValidated,
			Receipt: "ABC123-2019-1-3000",
			Start:   1000,
			End:     3000,
		}),
	}

	full := Replay(Submission{}, events)

	// batching the fold must not change the result
	batched := Submission{}
	batched = Replay(batched, events[:2])
	batched = Replay(batched, events[2:4])
	batched = Replay(batched, events[4:])

	assert.Equal(t, full, batched)
	assert.Equal(t, StatusValidated, full.Status)
	assert.Equal(t, "ABC123-2019-1-3000", full.Receipt)
	assert.Equal(t, int64(1000), full.Start)
	assert.Equal(t, int64(3000), full.End)
}

func TestReplay_EmptyLogIsSentinel(t *testing.T) {
	t.Parallel()

	state := Replay(Submission{}, nil)
	assert.True(t, state.Absent())
}

func TestApply_LineAddedKeepsRecord(t *testing.T) {
	t.Parallel()

	before := Submission{Status: StatusUploading, Start: 42}
	after := NewLineAdded(99, "a|b|c").Apply(before)
	assert.Equal(t, before, after)
}

func TestEventEncodeDecode(t *testing.T) {
	t.Parallel()

	ev := NewSubmissionModified(Submission{Status: StatusParsed, Start: 7})
	data, err := ev.Encode()
	require.NoError(t, err)

	got, err := DecodeEvent(data)
	require.NoError(t, err)
	assert.Equal(t, ev, got)
}

func TestChecked_RejectsRegression(t *testing.T) {
	t.Parallel()

	current := Submission{Status: StatusUploaded}

	_, err := current.Checked(Submission{Status: StatusCreated})
	require.ErrorIs(t, err, ErrStatusRegression)

	next, err := current.Checked(Submission{Status: StatusParsing})
	require.NoError(t, err)
	assert.Equal(t, StatusParsing, next.Status)

	// holding position is allowed
	_, err = current.Checked(Submission{Status: StatusUploaded, Receipt: "r"})
	require.NoError(t, err)
}

func TestSubmissionID(t *testing.T) {
	t.Parallel()

	id := SubmissionID{InstitutionID: "ABC123", Period: "2019", SequenceNumber: 1}
	assert.Equal(t, "ABC123-2019-1", id.String())
	assert.Equal(t, "Submission-ABC123-2019-1", id.LogKey())

	parsed, err := ParseSubmissionID("ABC123-2019-1")
	require.NoError(t, err)
	assert.Equal(t, id, parsed)

	for _, bad := range []string{"", "ABC123", "ABC123-2019", "ABC123-2019-x", "ABC123-2019-0"} {
		_, err := ParseSubmissionID(bad)
		assert.ErrorIs(t, err, ErrBadSubmissionID, "input %q", bad)
	}
}
