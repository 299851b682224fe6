package filing

import (
	"encoding/json"
	"fmt"
)

// Event kinds persisted to a submission's log.
const (
	KindSubmissionCreated  = "SubmissionCreated"
	KindSubmissionModified = "SubmissionModified"
	KindLineAdded          = "LineAdded"
)

// Event is one persisted, state-changing fact in a submission's log.
// Entries are strictly ordered by append sequence within one entity's
// log; nothing is defined across logs.
//
//   - SubmissionCreated: the submission came into existence At (epoch ms).
//   - SubmissionModified: the record was replaced wholesale.
//   - LineAdded: one raw upload line was accepted. Does not touch the
//     status record.
type Event struct {
	Kind string `json:"kind"`
	// At is the event timestamp in epoch milliseconds. For LineAdded
	// every line of one upload shares the timestamp captured at
	// upload start.
	At     int64       `json:"at,omitempty"`
	Line   string      `json:"line,omitempty"`
	Record *Submission `json:"record,omitempty"`
}

func NewSubmissionCreated(at int64) Event {
	return Event{Kind: KindSubmissionCreated, At: at}
}

func NewSubmissionModified(record Submission) Event {
	return Event{Kind: KindSubmissionModified, Record: &record}
}

func NewLineAdded(at int64, line string) Event {
	return Event{Kind: KindLineAdded, At: at, Line: line}
}

// Encode serializes the event for storage.
func (e Event) Encode() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode %s event: %w", e.Kind, err)
	}
	return data, nil
}

func DecodeEvent(data []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	return e, nil
}

// Apply folds the event into the record. The fold is pure: replaying
// the same events in the same order always reconstructs the same
// state, no matter how the replay is batched.
func (e Event) Apply(s Submission) Submission {
	switch e.Kind {
	case KindSubmissionCreated:
		return Submission{Status: StatusCreated, Start: e.At}
	case KindSubmissionModified:
		if e.Record != nil {
			return *e.Record
		}
	case KindLineAdded:
		// raw data only, the status record is untouched
	}
	return s
}

// Replay left-folds events over base in order.
func Replay(base Submission, events []Event) Submission {
	state := base
	for _, e := range events {
		state = e.Apply(state)
	}
	return state
}
