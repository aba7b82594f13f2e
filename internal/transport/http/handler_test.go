package httptransport_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"transcription-service/internal/entity"
	"transcription-service/internal/repository/memory"
	"transcription-service/internal/service"
	"transcription-service/internal/storage"
	httptransport "transcription-service/internal/transport/http"
	"transcription-service/internal/transcription"
	"transcription-service/internal/worker"
)

// ---- fakes ----

type stubClient struct {
	text string
	err  error
}

func (c stubClient) Transcribe(ctx context.Context, r io.Reader, filename, model string) (string, error) {
	_, _ = io.Copy(io.Discard, r)
	return c.text, c.err
}

// ---- helpers ----

type env struct {
	t        *testing.T
	repo     *memory.JobRepository
	queue    service.Queue
	media    storage.Store
	mediaDir string
	router   http.Handler
}

func newEnv(t *testing.T, maxBytes int64) *env {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	clock := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	repo := memory.NewJobRepository().WithClock(func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	})

	dir := t.TempDir()
	media, err := storage.NewLocalStore(dir)
	if err != nil {
		t.Fatalf("media store: %v", err)
	}
	queue := service.NewChannelQueue(16)

	svc := service.NewJobService(repo, queue, media, service.Limits{
		MaxFileSizeBytes:  maxBytes,
		AcceptedMimeTypes: []string{"video/mp4"},
	}, log)
	h := httptransport.NewHandler(svc, media, log)

	return &env{
		t:        t,
		repo:     repo,
		queue:    queue,
		media:    media,
		mediaDir: dir,
		router:   httptransport.Routes(h, httptransport.HeaderOwnerResolver{Header: "X-User-ID"}, log),
	}
}

func (e *env) do(method, path, owner string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	if owner != "" {
		req.Header.Set("X-User-ID", owner)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func (e *env) upload(owner, filename, mimeType string, size int) *httptest.ResponseRecorder {
	e.t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	h := textproto.MIMEHeader{}
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, filename))
	h.Set("Content-Type", mimeType)
	part, err := mw.CreatePart(h)
	if err != nil {
		e.t.Fatalf("create part: %v", err)
	}
	_, _ = part.Write(bytes.Repeat([]byte{0x42}, size))
	_ = mw.Close()

	return e.do(http.MethodPost, "/videos/upload", owner, &buf, mw.FormDataContentType())
}

func (e *env) storedFiles() []os.DirEntry {
	e.t.Helper()
	entries, err := os.ReadDir(e.mediaDir)
	if err != nil {
		e.t.Fatalf("read dir: %v", err)
	}
	return entries
}

// runWorker processes exactly one queued dispatch message.
func (e *env) runWorker(client transcription.Client) {
	e.t.Helper()
	msg, err := e.queue.Receive(context.Background(), time.Second)
	if err != nil {
		e.t.Fatalf("receive: %v", err)
	}
	p := worker.NewProcessor(e.repo, e.media, client, worker.ProcessorConfig{
		Model:   "whisper-1",
		Timeout: time.Second,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	_ = p.Process(context.Background(), msg)
}

type uploadBody struct {
	JobID    string `json:"jobId"`
	Filename string `json:"filename"`
	Status   string `json:"status"`
}

type videoBody struct {
	JobID           string `json:"jobId"`
	Filename        string `json:"filename"`
	Status          string `json:"status"`
	UploadTimestamp string `json:"uploadTimestamp"`
	Transcript      *struct {
		TranscriptID string `json:"transcriptId"`
		Text         string `json:"text"`
	} `json:"transcript"`
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("invalid json: %v, body=%s", err, rr.Body.String())
	}
	return v
}

// ---- tests ----

func TestHTTP_UploadTranscribeDownload(t *testing.T) {
	e := newEnv(t, 10<<20)

	rr := e.upload("alice", "video.mp4", "video/mp4", 1<<20)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d, body=%s", rr.Code, rr.Body.String())
	}
	up := decode[uploadBody](t, rr)
	if up.Status != "pending" || up.Filename != "video.mp4" {
		t.Fatalf("unexpected upload response %+v", up)
	}

	e.runWorker(stubClient{text: "hello world"})

	rr = e.do(http.MethodGet, "/videos/"+up.JobID, "alice", nil, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d, body=%s", rr.Code, rr.Body.String())
	}
	v := decode[videoBody](t, rr)
	if v.Status != "completed" {
		t.Fatalf("expected completed, got %s", v.Status)
	}
	if v.Transcript == nil || v.Transcript.Text != "hello world" || v.Transcript.TranscriptID == "" {
		t.Fatalf("unexpected transcript %+v", v.Transcript)
	}

	rr = e.do(http.MethodGet, "/videos/"+up.JobID+"/transcript/download", "alice", nil, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "text/plain" {
		t.Fatalf("unexpected content type %q", ct)
	}
	wantCD := fmt.Sprintf(`attachment; filename="transcript_%s.txt"`, up.JobID)
	if cd := rr.Header().Get("Content-Disposition"); cd != wantCD {
		t.Fatalf("expected %q, got %q", wantCD, cd)
	}
	if rr.Body.String() != "hello world" {
		t.Fatalf("unexpected body %q", rr.Body.String())
	}
}

func TestHTTP_TranscriptionTimeoutMarksFailed(t *testing.T) {
	e := newEnv(t, 10<<20)

	up := decode[uploadBody](t, e.upload("alice", "video.mp4", "video/mp4", 1024))
	e.runWorker(stubClient{err: &transcription.Error{Kind: transcription.KindTimeout, Err: context.DeadlineExceeded}})

	v := decode[videoBody](t, e.do(http.MethodGet, "/videos/"+up.JobID, "alice", nil, ""))
	if v.Status != "failed" {
		t.Fatalf("expected failed, got %s", v.Status)
	}
	if v.Transcript != nil {
		t.Fatal("failed job must not expose a transcript")
	}

	id := uuid.MustParse(up.JobID)
	if _, err := e.repo.GetTranscript(context.Background(), id); err == nil {
		t.Fatal("no transcript row may exist for a failed job")
	}
	rr := e.do(http.MethodGet, "/videos/"+up.JobID+"/transcript/download", "alice", nil, "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestHTTP_UploadRejectsUnsupportedType(t *testing.T) {
	e := newEnv(t, 10<<20)

	rr := e.upload("alice", "video.avi", "video/avi", 1024)
	if rr.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("expected 415, got %d, body=%s", rr.Code, rr.Body.String())
	}
	if files := e.storedFiles(); len(files) != 0 {
		t.Fatalf("expected stored file removed, found %d", len(files))
	}
	list := decode[[]videoBody](t, e.do(http.MethodGet, "/videos", "alice", nil, ""))
	if len(list) != 0 {
		t.Fatalf("expected no jobs, got %d", len(list))
	}
	if _, err := e.queue.Receive(context.Background(), 10*time.Millisecond); err == nil {
		t.Fatal("nothing should be dispatched")
	}
}

func TestHTTP_UploadRejectsTooLarge(t *testing.T) {
	e := newEnv(t, 1024)

	rr := e.upload("alice", "video.mp4", "video/mp4", 4096)
	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d, body=%s", rr.Code, rr.Body.String())
	}
	if files := e.storedFiles(); len(files) != 0 {
		t.Fatalf("expected stored file removed, found %d", len(files))
	}
}

func TestHTTP_UploadMissingFile(t *testing.T) {
	e := newEnv(t, 1024)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("title", "no file here")
	_ = mw.Close()

	rr := e.do(http.MethodPost, "/videos/upload", "alice", &buf, mw.FormDataContentType())
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}

	rr = e.do(http.MethodPost, "/videos/upload", "alice", bytes.NewBufferString("{}"), "application/json")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for non-multipart body, got %d", rr.Code)
	}
}

func TestHTTP_ListNewestFirst(t *testing.T) {
	e := newEnv(t, 10<<20)

	var ids []string
	for i := 0; i < 3; i++ {
		up := decode[uploadBody](t, e.upload("alice", fmt.Sprintf("video-%d.mp4", i), "video/mp4", 128))
		ids = append(ids, up.JobID)
	}
	_ = e.upload("bob", "other.mp4", "video/mp4", 128)

	rr := e.do(http.MethodGet, "/videos", "alice", nil, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	list := decode[[]videoBody](t, rr)
	if len(list) != 3 {
		t.Fatalf("expected 3 jobs, got %d", len(list))
	}
	for i, v := range list {
		if v.JobID != ids[2-i] {
			t.Fatalf("position %d: expected %s, got %s", i, ids[2-i], v.JobID)
		}
		if v.Status != "pending" || v.UploadTimestamp == "" {
			t.Fatalf("unexpected summary %+v", v)
		}
	}
}

func TestHTTP_OwnershipIsolation(t *testing.T) {
	e := newEnv(t, 10<<20)

	up := decode[uploadBody](t, e.upload("alice", "video.mp4", "video/mp4", 128))
	e.runWorker(stubClient{text: "private"})

	for _, req := range []struct{ method, path string }{
		{http.MethodGet, "/videos/" + up.JobID},
		{http.MethodGet, "/videos/" + up.JobID + "/transcript/download"},
		{http.MethodDelete, "/videos/" + up.JobID},
	} {
		rr := e.do(req.method, req.path, "bob", nil, "")
		if rr.Code != http.StatusNotFound {
			t.Fatalf("%s %s as bob: expected 404, got %d", req.method, req.path, rr.Code)
		}
	}

	rr := e.do(http.MethodGet, "/videos/"+up.JobID, "alice", nil, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("alice lost access: %d", rr.Code)
	}
}

func TestHTTP_DeleteRemovesEverything(t *testing.T) {
	e := newEnv(t, 10<<20)

	up := decode[uploadBody](t, e.upload("alice", "video.mp4", "video/mp4", 128))
	e.runWorker(stubClient{text: "hello"})

	rr := e.do(http.MethodDelete, "/videos/"+up.JobID, "alice", nil, "")
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d, body=%s", rr.Code, rr.Body.String())
	}
	if files := e.storedFiles(); len(files) != 0 {
		t.Fatalf("expected media removed, found %d files", len(files))
	}
	for _, path := range []string{"/videos/" + up.JobID, "/videos/" + up.JobID + "/transcript/download"} {
		if rr := e.do(http.MethodGet, path, "alice", nil, ""); rr.Code != http.StatusNotFound {
			t.Fatalf("GET %s after delete: expected 404, got %d", path, rr.Code)
		}
	}

	// A late worker write must not resurrect the job.
	id := uuid.MustParse(up.JobID)
	_ = e.repo.UpdateStatus(context.Background(), id, entity.StatusFailed)
	if rr := e.do(http.MethodGet, "/videos/"+up.JobID, "alice", nil, ""); rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after late write, got %d", rr.Code)
	}
}

func TestHTTP_RequiresOwner(t *testing.T) {
	e := newEnv(t, 10<<20)

	rr := e.do(http.MethodGet, "/videos", "", nil, "")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	if rr := e.do(http.MethodGet, "/health", "", nil, ""); rr.Code != http.StatusOK {
		t.Fatalf("health must be public, got %d", rr.Code)
	}
}

func TestHTTP_MalformedIDIsNotFound(t *testing.T) {
	e := newEnv(t, 10<<20)

	rr := e.do(http.MethodGet, "/videos/not-a-uuid", "alice", nil, "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}
