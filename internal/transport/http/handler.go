package httptransport

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"transcription-service/internal/entity"
	"transcription-service/internal/service"
	"transcription-service/internal/storage"
)

const uploadField = "file"

type Handler struct {
	jobSvc *service.JobService
	media  storage.Store
	log    *slog.Logger
}

func NewHandler(jobSvc *service.JobService, media storage.Store, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{jobSvc: jobSvc, media: media, log: log}
}

type uploadResp struct {
	JobID    string `json:"jobId"`
	Filename string `json:"filename"`
	Status   string `json:"status"`
	Message  string `json:"message"`
}

type jobSummary struct {
	JobID           string `json:"jobId"`
	Filename        string `json:"filename"`
	Status          string `json:"status"`
	UploadTimestamp string `json:"uploadTimestamp"`
}

type transcriptResp struct {
	TranscriptID string `json:"transcriptId"`
	Text         string `json:"text"`
}

type jobResp struct {
	jobSummary
	Transcript *transcriptResp `json:"transcript,omitempty"`
}

func summaryOf(j entity.Job) jobSummary {
	return jobSummary{
		JobID:           j.ID.String(),
		Filename:        j.Filename,
		Status:          j.Status.Lower(),
		UploadTimestamp: j.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

// UploadVideo godoc
// @Summary Upload a video for transcription
// @Description Stores the file, creates a pending job and dispatches it to a worker. Returns before transcription starts.
// @Tags videos
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "video file"
// @Success 202 {object} uploadResp
// @Failure 400 {object} apiError
// @Failure 401 {object} apiError
// @Failure 413 {object} apiError
// @Failure 415 {object} apiError
// @Failure 500 {object} apiError
// @Router /videos/upload [post]
func (h *Handler) UploadVideo(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	part, err := filePart(r)
	if err != nil {
		writeErr(w, http.StatusBadRequest, "missing file")
		return
	}
	defer part.Close()

	filename := filepath.Base(part.FileName())
	mimeType := part.Header.Get("Content-Type")
	name := uuid.NewString() + strings.ToLower(filepath.Ext(filename))

	// Read one byte past the ceiling so oversize uploads are detectable
	// without storing the whole body.
	limit := h.jobSvc.MaxFileSizeBytes()
	var body io.Reader = part
	if limit > 0 {
		body = io.LimitReader(part, limit+1)
	}

	obj, err := h.media.Save(ctx, name, body, mimeType)
	if err != nil {
		h.log.Error("store upload", "filename", filename, "error", err)
		writeErr(w, http.StatusInternalServerError, "error saving video")
		return
	}

	job, err := h.jobSvc.Upload(ctx, service.UploadRequest{
		OwnerID:    OwnerFrom(ctx),
		Filename:   filename,
		MimeType:   mimeType,
		SizeBytes:  obj.Size,
		StoredPath: obj.Path,
	})
	switch {
	case err == nil:
	case errors.Is(err, service.ErrMissingFile):
		writeErr(w, http.StatusBadRequest, "missing file")
		return
	case errors.Is(err, service.ErrUnsupportedMediaType):
		writeErr(w, http.StatusUnsupportedMediaType, "invalid file type")
		return
	case errors.Is(err, service.ErrFileTooLarge):
		writeErr(w, http.StatusRequestEntityTooLarge, "file too large")
		return
	default:
		h.log.Error("admit upload", "filename", filename, "error", err)
		writeErr(w, http.StatusInternalServerError, "error saving video")
		return
	}

	writeJSON(w, http.StatusAccepted, uploadResp{
		JobID:    job.ID.String(),
		Filename: job.Filename,
		Status:   job.Status.Lower(),
		Message:  "upload successful, processing started",
	})
}

// filePart advances the multipart stream to the upload field without
// buffering the body.
func filePart(r *http.Request) (*multipart.Part, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, err
	}
	for {
		p, err := mr.NextPart()
		if err != nil {
			return nil, err
		}
		if p.FormName() == uploadField && p.FileName() != "" {
			return p, nil
		}
		p.Close()
	}
}

// ListVideos godoc
// @Summary List the caller's videos
// @Description Newest first.
// @Tags videos
// @Produce json
// @Success 200 {array} jobSummary
// @Failure 401 {object} apiError
// @Failure 500 {object} apiError
// @Router /videos [get]
func (h *Handler) ListVideos(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.jobSvc.ListJobs(r.Context(), OwnerFrom(r.Context()))
	if err != nil {
		h.log.Error("list jobs", "error", err)
		writeErr(w, http.StatusInternalServerError, "failed to fetch videos")
		return
	}

	out := make([]jobSummary, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, summaryOf(j))
	}
	writeJSON(w, http.StatusOK, out)
}

// GetVideo godoc
// @Summary Get a video and, once completed, its transcript
// @Tags videos
// @Produce json
// @Param id path string true "job id (uuid)"
// @Success 200 {object} jobResp
// @Failure 401 {object} apiError
// @Failure 404 {object} apiError
// @Failure 500 {object} apiError
// @Router /videos/{id} [get]
func (h *Handler) GetVideo(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "video not found")
	if !ok {
		return
	}

	d, err := h.jobSvc.GetJob(r.Context(), OwnerFrom(r.Context()), id)
	if err != nil {
		if errors.Is(err, service.ErrJobNotFound) {
			writeErr(w, http.StatusNotFound, "video not found")
			return
		}
		h.log.Error("get job", "job_id", id.String(), "error", err)
		writeErr(w, http.StatusInternalServerError, "failed to fetch video details")
		return
	}

	resp := jobResp{jobSummary: summaryOf(d.Job)}
	if d.Transcript != nil {
		resp.Transcript = &transcriptResp{
			TranscriptID: d.Transcript.ID.String(),
			Text:         d.Transcript.Text,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// DeleteVideo godoc
// @Summary Delete a video, its transcript and stored media
// @Tags videos
// @Param id path string true "job id (uuid)"
// @Success 204
// @Failure 401 {object} apiError
// @Failure 404 {object} apiError
// @Failure 500 {object} apiError
// @Router /videos/{id} [delete]
func (h *Handler) DeleteVideo(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "video not found")
	if !ok {
		return
	}

	if err := h.jobSvc.DeleteJob(r.Context(), OwnerFrom(r.Context()), id); err != nil {
		if errors.Is(err, service.ErrJobNotFound) {
			writeErr(w, http.StatusNotFound, "video not found")
			return
		}
		h.log.Error("delete job", "job_id", id.String(), "error", err)
		writeErr(w, http.StatusInternalServerError, "failed to delete video")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DownloadTranscript godoc
// @Summary Download a transcript as a text file
// @Tags videos
// @Produce plain
// @Param id path string true "job id (uuid)"
// @Success 200 {string} string "transcript text"
// @Failure 401 {object} apiError
// @Failure 404 {object} apiError
// @Failure 500 {object} apiError
// @Router /videos/{id}/transcript/download [get]
func (h *Handler) DownloadTranscript(w http.ResponseWriter, r *http.Request) {
	const notFound = "transcript not found or not completed"

	id, ok := parseID(w, r, notFound)
	if !ok {
		return
	}

	t, err := h.jobSvc.GetTranscript(r.Context(), OwnerFrom(r.Context()), id)
	if err != nil {
		if errors.Is(err, service.ErrTranscriptNotFound) {
			writeErr(w, http.StatusNotFound, notFound)
			return
		}
		h.log.Error("download transcript", "job_id", id.String(), "error", err)
		writeErr(w, http.StatusInternalServerError, "failed to download transcript")
		return
	}

	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="transcript_%s.txt"`, id.String()))
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, t.Text)
}

// parseID treats a malformed id like an unknown one.
func parseID(w http.ResponseWriter, r *http.Request, notFound string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, http.StatusNotFound, notFound)
		return uuid.Nil, false
	}
	return id, true
}
