package filing

// Status is one step of the submission lifecycle. The order of the
// constants is the lifecycle order: a submission only ever moves
// forward through it.
//
// StatusUnset is the zero value of a Submission record and is treated
// as "no such submission" by the coordinator. Whether a submission can
// legitimately become empty-equivalent again through normal operation
// is an open product question; today the entity makes it impossible
// (CreateSubmission is the only exit from StatusUnset and transitions
// never move backwards).
type Status uint8

const (
	StatusUnset Status = iota
	StatusCreated
	StatusUploading
	StatusUploaded
	StatusParsing
	StatusParsed
	StatusValidating
	StatusValidated
	StatusSigned
)

var statusNames = map[Status]string{
	StatusUnset:      "unset",
	StatusCreated:    "created",
	StatusUploading:  "uploading",
	StatusUploaded:   "uploaded",
	StatusParsing:    "parsing",
	StatusParsed:     "parsed",
	StatusValidating: "validating",
	StatusValidated:  "validated",
	StatusSigned:     "signed",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "unknown"
}
