package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hirecorrecto/interview-orchestrator/internal/models"
	"hirecorrecto/interview-orchestrator/internal/repositories"
	"hirecorrecto/interview-orchestrator/internal/services"
)

type stubRegistry struct {
	services.SessionRegistry

	started  models.InterviewContext
	silence  int64
	snapshot *services.SessionSnapshot
	err      error
}

func (r *stubRegistry) StartSession(_ context.Context, _, _ string, ictx models.InterviewContext) (*services.StartResult, error) {
	if r.err != nil {
		return nil, r.err
	}
	r.started = ictx
	return &services.StartResult{
		SessionID:     "s1",
		Model:         "gemini-2.5-flash",
		FirstQuestion: models.QuestionRecord{ID: "q1", Text: "Q?", Order: 1},
	}, nil
}

func (r *stubRegistry) SilenceSignal(_ context.Context, sessionID, questionID string, ms int64) ([]services.Event, error) {
	if r.err != nil {
		return nil, r.err
	}
	r.silence = ms
	return nil, nil
}

func (r *stubRegistry) Snapshot(string) (*services.SessionSnapshot, error) {
	if r.snapshot == nil {
		return nil, services.ErrInvalidSession
	}
	return r.snapshot, nil
}

func (r *stubRegistry) EndSession(string) (models.UsageSummary, error) {
	if r.err != nil {
		return models.UsageSummary{}, r.err
	}
	return models.UsageSummary{Currency: "USD"}, nil
}

type stubRecorder struct {
	persisted int
}

func (r *stubRecorder) Persist(context.Context, *services.SessionSnapshot) error {
	r.persisted++
	return errors.New("database is down")
}

type stubDocuments struct {
	doc *models.Document
}

func (d *stubDocuments) Create(*models.Document) error { return nil }

func (d *stubDocuments) FindByID(id uuid.UUID) (*models.Document, error) {
	if d.doc == nil || d.doc.ID != id {
		return nil, fmt.Errorf("%w: %s", repositories.ErrDocumentNotFound, id)
	}
	return d.doc, nil
}

type stubWorker struct {
	services.Worker
	got services.AnswerSubmission
	out *services.AnswerOutcome
}

func (w *stubWorker) EnqueueAnswer(_ context.Context, _ string, sub services.AnswerSubmission) <-chan services.AnswerJobResult {
	w.got = sub
	ch := make(chan services.AnswerJobResult, 1)
	ch <- services.AnswerJobResult{Outcome: w.out}
	return ch
}

type stubStorage struct {
	services.StorageService
	files map[string][]byte
}

func (s *stubStorage) SaveFile(fh *multipart.FileHeader, kind string) (string, string, error) {
	f, err := fh.Open()
	if err != nil {
		return "", "", err
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return "", "", err
	}
	name := kind + "_" + fh.Filename
	s.files[name] = data
	return name, "/tmp/" + name, nil
}

func (s *stubStorage) ReadFile(filename string) ([]byte, error) {
	return s.files[filename], nil
}

func newTestApp(reg services.SessionRegistry, rec services.SessionRecorder, docs repositories.DocumentRepository, w services.Worker) *fiber.App {
	app := fiber.New()
	h := NewInterviewHandler(reg, rec, docs)
	a := NewAnswerHandler(reg, rec, w, &stubStorage{files: map[string][]byte{}}, 1<<20, time.Second)

	app.Post("/sessions", h.HandleStartSession)
	app.Post("/sessions/:id/silence", h.HandleSilence)
	app.Post("/sessions/:id/answers", a.HandleSubmitAnswer)
	app.Delete("/sessions/:id", h.HandleEndSession)
	return app
}

func postJSON(t *testing.T, app *fiber.App, path string, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest("POST", path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)

	var out map[string]interface{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, fiber.StatusNotFound, statusFor(fmt.Errorf("x: %w", services.ErrInvalidSession)))
	assert.Equal(t, fiber.StatusBadRequest, statusFor(services.ErrUnknownQuestion))
	assert.Equal(t, fiber.StatusBadRequest, statusFor(services.ErrInvalidContext))
	assert.Equal(t, fiber.StatusUnprocessableEntity, statusFor(services.ErrInsufficientData))
	assert.Equal(t, fiber.StatusBadGateway, statusFor(&services.ProviderError{Op: "x"}))
	assert.Equal(t, fiber.StatusInternalServerError, statusFor(errors.New("boom")))
}

func TestHandleStartSession_LoadsJobDescription(t *testing.T) {
	doc := &models.Document{ID: uuid.New(), FileType: models.DocumentTypeJobDescription, ExtractedText: "Build APIs in Go."}
	reg := &stubRegistry{snapshot: &services.SessionSnapshot{SessionID: "s1"}}
	rec := &stubRecorder{}
	app := newTestApp(reg, rec, &stubDocuments{doc: doc}, nil)

	status, body := postJSON(t, app, "/sessions", map[string]interface{}{
		"interview_id":                "i1",
		"candidate_id":                "c1",
		"job_description_document_id": doc.ID.String(),
		"context":                     map[string]interface{}{"job_title": "Engineer", "max_questions": 3},
	})

	assert.Equal(t, fiber.StatusCreated, status)
	assert.Equal(t, "s1", body["session_id"])
	assert.Equal(t, "Build APIs in Go.", reg.started.JobDescription)
	// persistence failures are logged, never surfaced
	assert.Equal(t, 1, rec.persisted)
}

func TestHandleStartSession_Errors(t *testing.T) {
	app := newTestApp(&stubRegistry{}, nil, &stubDocuments{}, nil)

	status, _ := postJSON(t, app, "/sessions", map[string]interface{}{"candidate_id": "c1"})
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, _ = postJSON(t, app, "/sessions", map[string]interface{}{
		"interview_id": "i1", "candidate_id": "c1", "job_description_document_id": uuid.NewString(),
	})
	assert.Equal(t, fiber.StatusNotFound, status)

	app = newTestApp(&stubRegistry{err: fmt.Errorf("bad: %w", services.ErrInvalidContext)}, nil, &stubDocuments{}, nil)
	status, body := postJSON(t, app, "/sessions", map[string]interface{}{"interview_id": "i1", "candidate_id": "c1"})
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Contains(t, body["error"], "invalid interview context")
}

func TestHandleSilence(t *testing.T) {
	reg := &stubRegistry{}
	app := newTestApp(reg, nil, &stubDocuments{}, nil)

	status, body := postJSON(t, app, "/sessions/s1/silence", map[string]interface{}{"question_id": "q1", "silence_duration_ms": 6000})
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, int64(6000), reg.silence)
	assert.Equal(t, []interface{}{}, body["events"])

	reg.err = services.ErrInvalidSession
	status, _ = postJSON(t, app, "/sessions/s1/silence", map[string]interface{}{"question_id": "q1", "silence_duration_ms": 6000})
	assert.Equal(t, fiber.StatusNotFound, status)
}

func TestHandleSubmitAnswer(t *testing.T) {
	w := &stubWorker{out: &services.AnswerOutcome{QuestionID: "q1", NextAction: models.ActionNextQuestion}}
	app := newTestApp(&stubRegistry{}, nil, &stubDocuments{}, w)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("question_id", "q1"))
	require.NoError(t, mw.WriteField("timing", `{"question_end_ms":1000,"speech_start_ms":2500,"answer_end_ms":9000}`))
	require.NoError(t, mw.WriteField("frame_offsets", `[1500]`))
	media, err := mw.CreateFormFile("media", "answer.webm")
	require.NoError(t, err)
	_, _ = media.Write([]byte("webm-bytes"))
	frame, err := mw.CreateFormFile("frames", "f1.jpg")
	require.NoError(t, err)
	_, _ = frame.Write([]byte("jpg-bytes"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest("POST", "/sessions/s1/answers", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	assert.Equal(t, "q1", w.got.QuestionID)
	assert.Equal(t, []byte("webm-bytes"), w.got.Media)
	assert.Equal(t, "video/webm", w.got.MediaMIMEType)
	assert.Equal(t, int64(2500), w.got.Timing.SpeechStartMs)
	require.Len(t, w.got.Frames, 1)
	assert.Equal(t, int64(1500), w.got.Frames[0].OffsetMs)
	assert.Equal(t, "image/jpeg", w.got.Frames[0].MIMEType)
}

func TestHandleSubmitAnswer_RequiresAnswer(t *testing.T) {
	app := newTestApp(&stubRegistry{}, nil, &stubDocuments{}, &stubWorker{})

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("question_id", "q1"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest("POST", "/sessions/s1/answers", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestHandleEndSession(t *testing.T) {
	rec := &stubRecorder{}
	reg := &stubRegistry{snapshot: &services.SessionSnapshot{SessionID: "s1"}}
	app := newTestApp(reg, rec, &stubDocuments{}, nil)

	resp, err := app.Test(httptest.NewRequest("DELETE", "/sessions/s1", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, rec.persisted)
}
