package filing

import (
	"errors"
	"fmt"
)

var ErrStatusRegression = errors.New("status may not move backwards")

// Submission is the mutable record owned exclusively by one entity.
// Timestamps are epoch milliseconds. The zero value is the sentinel
// for "not yet created"; see Status.
type Submission struct {
	Status  Status `json:"status"`
	Receipt string `json:"receipt,omitempty"`
	Start   int64  `json:"start,omitempty"`
	End     int64  `json:"end,omitempty"`
}

// Absent reports whether this record is the not-yet-created sentinel.
func (s Submission) Absent() bool {
	return s.Status == StatusUnset
}

// Checked validates next as a replacement for the current record.
// Lifecycle order is enforced here rather than by caller discipline:
// the replacement may keep the current status or move it forward,
// never backwards.
func (s Submission) Checked(next Submission) (Submission, error) {
	if next.Status < s.Status {
		return Submission{}, fmt.Errorf("%w: %s -> %s", ErrStatusRegression, s.Status, next.Status)
	}
	return next, nil
}
