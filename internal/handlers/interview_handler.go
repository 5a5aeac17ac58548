package handlers

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"hirecorrecto/interview-orchestrator/internal/models"
	"hirecorrecto/interview-orchestrator/internal/repositories"
	"hirecorrecto/interview-orchestrator/internal/services"
)

// InterviewHandler exposes the live session operations. Every call that
// changes session state is followed by a best-effort snapshot write.
type InterviewHandler struct {
	registry services.SessionRegistry
	recorder services.SessionRecorder
	docRepo  repositories.DocumentRepository
}

func NewInterviewHandler(
	registry services.SessionRegistry,
	recorder services.SessionRecorder,
	docRepo repositories.DocumentRepository,
) *InterviewHandler {
	return &InterviewHandler{
		registry: registry,
		recorder: recorder,
		docRepo:  docRepo,
	}
}

func (h *InterviewHandler) HandleStartSession(c *fiber.Ctx) error {
	var req models.StartSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if strings.TrimSpace(req.InterviewID) == "" || strings.TrimSpace(req.CandidateID) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "interview_id and candidate_id are required",
		})
	}

	if req.JobDescriptionDocumentID != "" {
		docID, err := uuid.Parse(req.JobDescriptionDocumentID)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid job description document ID",
			})
		}

		doc, err := h.docRepo.FindByID(docID)
		if err != nil {
			if errors.Is(err, repositories.ErrDocumentNotFound) {
				return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
					"error": "Job description document not found",
				})
			}
			return respondError(c, err)
		}
		if doc.FileType != models.DocumentTypeJobDescription {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Document is not a job description",
			})
		}
		if req.Context.JobDescription == "" {
			req.Context.JobDescription = doc.ExtractedText
		}
	}

	res, err := h.registry.StartSession(c.UserContext(), req.InterviewID, req.CandidateID, req.Context)
	if err != nil {
		return respondError(c, err)
	}
	h.persist(c.UserContext(), res.SessionID)

	return c.Status(fiber.StatusCreated).JSON(models.StartSessionResponse{
		SessionID:     res.SessionID,
		Model:         res.Model,
		FirstQuestion: res.FirstQuestion,
	})
}

func (h *InterviewHandler) HandleTranscript(c *fiber.Ctx) error {
	sessionID := c.Params("id")

	var req models.TranscriptChunkRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.QuestionID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "question_id is required",
		})
	}

	ts := time.Now()
	if req.Timestamp != nil {
		ts = *req.Timestamp
	}

	events, err := h.registry.TranscriptChunk(c.UserContext(), sessionID, services.TranscriptChunk{
		QuestionID: req.QuestionID,
		Text:       req.Text,
		IsFinal:    req.IsFinal,
		Timestamp:  ts,
	})
	if err != nil {
		return respondError(c, err)
	}
	h.persist(c.UserContext(), sessionID)

	return c.JSON(fiber.Map{"events": nonNilEvents(events)})
}

func (h *InterviewHandler) HandleSilence(c *fiber.Ctx) error {
	sessionID := c.Params("id")

	var req models.SilenceRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.QuestionID == "" || req.SilenceDurationMs < 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "question_id and a non-negative silence_duration_ms are required",
		})
	}

	events, err := h.registry.SilenceSignal(c.UserContext(), sessionID, req.QuestionID, req.SilenceDurationMs)
	if err != nil {
		return respondError(c, err)
	}
	h.persist(c.UserContext(), sessionID)

	return c.JSON(fiber.Map{"events": nonNilEvents(events)})
}

func (h *InterviewHandler) HandleIntent(c *fiber.Ctx) error {
	sessionID := c.Params("id")

	var req models.IntentReplyRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.QuestionID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "question_id is required",
		})
	}

	events, err := h.registry.CandidateIntentReply(c.UserContext(), sessionID, req.QuestionID, req.Text)
	if err != nil {
		return respondError(c, err)
	}
	h.persist(c.UserContext(), sessionID)

	return c.JSON(fiber.Map{"events": nonNilEvents(events)})
}

func (h *InterviewHandler) HandleRecommendation(c *fiber.Ctx) error {
	sessionID := c.Params("id")

	rec, err := h.registry.Recommend(c.UserContext(), sessionID)
	if err != nil {
		return respondError(c, err)
	}
	h.persist(c.UserContext(), sessionID)

	return c.JSON(rec)
}

func (h *InterviewHandler) HandleGetSession(c *fiber.Ctx) error {
	snap, err := h.registry.Snapshot(c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(snap)
}

// HandleEndSession writes the final snapshot before the session is dropped.
func (h *InterviewHandler) HandleEndSession(c *fiber.Ctx) error {
	sessionID := c.Params("id")

	h.persist(c.UserContext(), sessionID)

	summary, err := h.registry.EndSession(sessionID)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(models.EndSessionResponse{
		SessionID: sessionID,
		Usage:     summary,
	})
}

func (h *InterviewHandler) persist(ctx context.Context, sessionID string) {
	persistSnapshot(ctx, h.registry, h.recorder, sessionID)
}

// persistSnapshot writes the current session state. Failures are logged and
// never reach the caller.
func persistSnapshot(ctx context.Context, registry services.SessionRegistry, recorder services.SessionRecorder, sessionID string) {
	if recorder == nil {
		return
	}

	snap, err := registry.Snapshot(sessionID)
	if err != nil {
		return
	}
	if err := recorder.Persist(ctx, snap); err != nil {
		log.Printf("⚠️  Failed to persist session %s: %v\n", sessionID, err)
	}
}

func nonNilEvents(events []services.Event) []services.Event {
	if events == nil {
		return []services.Event{}
	}
	return events
}
