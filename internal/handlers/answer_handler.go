package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"time"

	"github.com/gofiber/fiber/v2"

	"hirecorrecto/interview-orchestrator/internal/services"
)

type AnswerHandler struct {
	registry       services.SessionRegistry
	recorder       services.SessionRecorder
	worker         services.Worker
	storageService services.StorageService
	maxFileSize    int64
	requestTimeout time.Duration
}

func NewAnswerHandler(
	registry services.SessionRegistry,
	recorder services.SessionRecorder,
	worker services.Worker,
	storageService services.StorageService,
	maxFileSize int64,
	requestTimeout time.Duration,
) *AnswerHandler {
	if requestTimeout <= 0 {
		requestTimeout = 2 * time.Minute
	}
	return &AnswerHandler{
		registry:       registry,
		recorder:       recorder,
		worker:         worker,
		storageService: storageService,
		maxFileSize:    maxFileSize,
		requestTimeout: requestTimeout,
	}
}

// HandleSubmitAnswer accepts a multipart answer: question_id, an optional
// media recording, optional frames[] with frame_offsets (JSON array of ms),
// a timing JSON field, and an optional live transcript used when no media is
// attached.
func (h *AnswerHandler) HandleSubmitAnswer(c *fiber.Ctx) error {
	sessionID := c.Params("id")

	form, err := c.MultipartForm()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "failed to parse multipart form",
		})
	}

	sub := services.AnswerSubmission{
		QuestionID:     formValue(form, "question_id"),
		LiveTranscript: formValue(form, "transcript"),
	}
	if sub.QuestionID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "question_id is required",
		})
	}

	if raw := formValue(form, "timing"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &sub.Timing); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "timing must be a JSON object",
			})
		}
	}

	if media, ok := form.File["media"]; ok && len(media) > 0 {
		data, filename, err := h.readUpload(media[0], services.FileKindAnswer)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": fmt.Sprintf("failed to store answer media: %v", err),
			})
		}
		sub.Media = data
		sub.MediaMIMEType = services.MIMETypeFor(filename)
		sub.MediaRef = filename
	}

	if sub.Media == nil && sub.LiveTranscript == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "either 'media' or 'transcript' is required",
		})
	}

	var offsets []int64
	if raw := formValue(form, "frame_offsets"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &offsets); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "frame_offsets must be a JSON array of milliseconds",
			})
		}
	}

	for i, fh := range form.File["frames"] {
		data, filename, err := h.readUpload(fh, services.FileKindFrame)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": fmt.Sprintf("failed to store frame %d: %v", i, err),
			})
		}
		frame := services.Frame{Data: data, MIMEType: services.MIMETypeFor(filename)}
		if i < len(offsets) {
			frame.OffsetMs = offsets[i]
		}
		sub.Frames = append(sub.Frames, frame)
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), h.requestTimeout)
	defer cancel()

	var res services.AnswerJobResult
	select {
	case res = <-h.worker.EnqueueAnswer(ctx, sessionID, sub):
	case <-ctx.Done():
		res.Err = ctx.Err()
	}

	if res.Err != nil {
		if errors.Is(res.Err, context.DeadlineExceeded) {
			return c.Status(fiber.StatusGatewayTimeout).JSON(fiber.Map{
				"error": "answer evaluation timed out",
			})
		}
		return respondError(c, res.Err)
	}

	persistSnapshot(c.UserContext(), h.registry, h.recorder, sessionID)

	return c.JSON(res.Outcome)
}

// readUpload stores the file and reads it back for the model request.
func (h *AnswerHandler) readUpload(fh *multipart.FileHeader, kind string) ([]byte, string, error) {
	if h.maxFileSize > 0 && fh.Size > h.maxFileSize {
		return nil, "", fmt.Errorf("file too large. Max size: %d bytes", h.maxFileSize)
	}

	filename, _, err := h.storageService.SaveFile(fh, kind)
	if err != nil {
		return nil, "", err
	}

	data, err := h.storageService.ReadFile(filename)
	if err != nil {
		return nil, "", err
	}
	return data, filename, nil
}

func formValue(form *multipart.Form, key string) string {
	if v, ok := form.Value[key]; ok && len(v) > 0 {
		return v[0]
	}
	return ""
}
