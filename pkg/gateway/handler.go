// Package gateway is the HTTP surface over the submission core. It
// resolves which submission a request addresses, translates between
// wire format and entity commands, and maps the error taxonomy onto
// status codes. Everything stateful lives behind it.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/filingmesh/filingmesh/pkg/coordinator"
	"github.com/filingmesh/filingmesh/pkg/entity"
	"github.com/filingmesh/filingmesh/pkg/filing"
	"github.com/filingmesh/filingmesh/pkg/ingest"
)

const defaultMaxUploadBytes = 256 << 20

type Handler struct {
	entities *entity.Router
	coord    *coordinator.Coordinator
	ingestor *ingest.Ingestor
	dir      Directory
	logger   *slog.Logger

	maxUploadBytes int64
	now            func() time.Time
}

type HandlerOption func(*Handler)

func WithMaxUploadBytes(n int64) HandlerOption {
	return func(h *Handler) {
		if n > 0 {
			h.maxUploadBytes = n
		}
	}
}

func WithHandlerLogger(logger *slog.Logger) HandlerOption {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

func WithHandlerClock(now func() time.Time) HandlerOption {
	return func(h *Handler) {
		if now != nil {
			h.now = now
		}
	}
}

func NewHandler(
	entities *entity.Router,
	coord *coordinator.Coordinator,
	ingestor *ingest.Ingestor,
	dir Directory,
	opts ...HandlerOption,
) *Handler {
	h := &Handler{
		entities:       entities,
		coord:          coord,
		ingestor:       ingestor,
		dir:            dir,
		logger:         slog.Default(),
		maxUploadBytes: defaultMaxUploadBytes,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.With("component", "gateway")
	return h
}

type statusBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type submissionBody struct {
	ID      filing.SubmissionID `json:"id"`
	Status  statusBody          `json:"status"`
	Receipt string              `json:"receipt,omitempty"`
	Start   int64               `json:"start,omitempty"`
	End     int64               `json:"end,omitempty"`
}

func toSubmissionBody(id filing.SubmissionID, sub filing.Submission) submissionBody {
	return submissionBody{
		ID:      id,
		Status:  statusBody{Code: int(sub.Status), Message: sub.Status.String()},
		Receipt: sub.Receipt,
		Start:   sub.Start,
		End:     sub.End,
	}
}

// resolveFiling checks the institution and filing path segments,
// writing the 404 itself when either misses.
func (h *Handler) resolveFiling(w http.ResponseWriter, r *http.Request) (institutionID, period string, ok bool) {
	institutionID = chi.URLParam(r, "institutionId")
	period = chi.URLParam(r, "period")

	found, err := h.dir.HasInstitution(r.Context(), institutionID)
	if err != nil {
		writeInternal(w, r, h.logger, err)
		return "", "", false
	}
	if !found {
		writeError(w, r, http.StatusNotFound, fmt.Sprintf("institution %s not found", institutionID))
		return "", "", false
	}

	found, err = h.dir.HasFiling(r.Context(), institutionID, period)
	if err != nil {
		writeInternal(w, r, h.logger, err)
		return "", "", false
	}
	if !found {
		writeError(w, r, http.StatusNotFound,
			fmt.Sprintf("filing %s not found for institution %s", period, institutionID))
		return "", "", false
	}
	return institutionID, period, true
}

// CreateSubmission allocates the next sequence number for the filing
// and brings the entity to life.
func (h *Handler) CreateSubmission(w http.ResponseWriter, r *http.Request) {
	institutionID, period, ok := h.resolveFiling(w, r)
	if !ok {
		return
	}

	seq, err := h.dir.NextSequence(r.Context(), institutionID, period)
	if err != nil {
		writeInternal(w, r, h.logger, err)
		return
	}
	id := filing.SubmissionID{InstitutionID: institutionID, Period: period, SequenceNumber: seq}

	if _, err := h.entities.CreateSubmission(r.Context(), id, h.now().UnixMilli()); err != nil {
		writeInternal(w, r, h.logger, err)
		return
	}

	sub, err := h.entities.GetSubmission(r.Context(), id)
	if err != nil {
		writeInternal(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSubmissionBody(id, sub))
}

// GetSubmission returns the current record for one submission.
func (h *Handler) GetSubmission(w http.ResponseWriter, r *http.Request) {
	institutionID, period, ok := h.resolveFiling(w, r)
	if !ok {
		return
	}
	seq, err := strconv.Atoi(chi.URLParam(r, "seqNr"))
	if err != nil || seq < 1 {
		writeError(w, r, http.StatusBadRequest, "submission sequence number must be a positive integer")
		return
	}
	id := filing.SubmissionID{InstitutionID: institutionID, Period: period, SequenceNumber: seq}

	sub, err := h.entities.GetSubmission(r.Context(), id)
	if err != nil {
		writeInternal(w, r, h.logger, err)
		return
	}
	if sub.Absent() {
		writeError(w, r, http.StatusNotFound, fmt.Sprintf("submission %s not found", id))
		return
	}
	writeJSON(w, http.StatusOK, toSubmissionBody(id, sub))
}

// UploadSubmission streams the multipart field named "file" into the
// submission's event log, one LineAdded per line.
func (h *Handler) UploadSubmission(w http.ResponseWriter, r *http.Request) {
	institutionID, period, ok := h.resolveFiling(w, r)
	if !ok {
		return
	}
	seq, err := strconv.Atoi(chi.URLParam(r, "seqNr"))
	if err != nil || seq < 1 {
		writeError(w, r, http.StatusBadRequest, "submission sequence number must be a positive integer")
		return
	}
	id := filing.SubmissionID{InstitutionID: institutionID, Period: period, SequenceNumber: seq}

	if err := h.coord.GuardNewUpload(r.Context(), id); err != nil {
		switch {
		case errors.Is(err, coordinator.ErrSubmissionNotFound):
			writeError(w, r, http.StatusNotFound, fmt.Sprintf("submission %s not found", id))
		case errors.Is(err, coordinator.ErrUploadConflict):
			writeError(w, r, http.StatusBadRequest,
				fmt.Sprintf("submission %s already has an upload; create a new submission", id))
		default:
			writeInternal(w, r, h.logger, err)
		}
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	part, filename, err := filePart(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	target := &uploadTarget{entities: h.entities, id: id}
	lines, err := h.ingestor.Run(r.Context(), target, filename, part)
	if err != nil {
		if errors.Is(err, ingest.ErrBadExtension) || errors.Is(err, ingest.ErrFileFormat) {
			writeError(w, r, http.StatusBadRequest, "invalid file format")
			return
		}
		writeInternal(w, r, h.logger, err)
		return
	}

	h.logger.Info("upload accepted",
		"submission", id.String(),
		"lines", lines,
		"request_id", requestIDFrom(r.Context()),
	)

	// detached: stamp the receipt and broadcast the post-ingestion
	// status; nothing in this request waits on it
	now := h.now().UnixMilli()
	go h.coord.UpdateStatusAndReceipt(context.Background(), id, now,
		coordinator.NewReceipt(id, now), filing.StatusUploaded)

	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusAccepted)
	_, _ = w.Write([]byte("uploaded"))
}

// filePart walks the multipart body to the field literally named
// "file" without buffering the payload.
func filePart(r *http.Request) (io.Reader, string, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, "", errors.New("request body must be multipart/form-data")
	}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return nil, "", errors.New("multipart field 'file' is missing")
		}
		if err != nil {
			return nil, "", errors.New("malformed multipart body")
		}
		if part.FormName() == "file" {
			return part, part.FileName(), nil
		}
	}
}

// uploadTarget binds the ingestor to one entity via the router.
type uploadTarget struct {
	entities *entity.Router
	id       filing.SubmissionID
}

func (t *uploadTarget) StartUpload(ctx context.Context) error {
	_, err := t.entities.StartUpload(ctx, t.id)
	return err
}

func (t *uploadTarget) AddLine(ctx context.Context, at int64, line string) error {
	_, err := t.entities.AddLine(ctx, t.id, at, line)
	return err
}

func (t *uploadTarget) CompleteUpload(ctx context.Context) error {
	_, err := t.entities.CompleteUpload(ctx, t.id)
	return err
}

func (t *uploadTarget) Shutdown() {
	t.entities.Deactivate(t.id)
}

var _ ingest.Target = (*uploadTarget)(nil)
