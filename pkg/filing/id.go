package filing

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// EntityKind is the log-key prefix for submission entities.
const EntityKind = "Submission"

var ErrBadSubmissionID = errors.New("malformed submission id")

// SubmissionID is the composite, immutable key of one submission:
// (institution, filing period, sequence number). It doubles as the
// cluster shard key and the event-log identifier suffix. Two
// submissions with the same triple are the same entity.
type SubmissionID struct {
	InstitutionID  string `json:"institutionId"`
	Period         string `json:"period"`
	SequenceNumber int    `json:"sequenceNumber"`
}

func (id SubmissionID) String() string {
	return fmt.Sprintf("%s-%s-%d", id.InstitutionID, id.Period, id.SequenceNumber)
}

// LogKey returns the stable per-entity event-log key,
// e.g. "Submission-ABC123-2019-1".
func (id SubmissionID) LogKey() string {
	return EntityKind + "-" + id.String()
}

// ParseSubmissionID parses the "<inst>-<period>-<seqNr>" form produced
// by String. Institution ids and periods must not contain '-'.
func ParseSubmissionID(s string) (SubmissionID, error) {
	parts := strings.Split(s, "-")
	if len(parts) != 3 {
		return SubmissionID{}, fmt.Errorf("%w: %q", ErrBadSubmissionID, s)
	}
	seq, err := strconv.Atoi(parts[2])
	if err != nil || seq < 1 || parts[0] == "" || parts[1] == "" {
		return SubmissionID{}, fmt.Errorf("%w: %q", ErrBadSubmissionID, s)
	}
	return SubmissionID{InstitutionID: parts[0], Period: parts[1], SequenceNumber: seq}, nil
}
