package handlers

import (
	"log"

	"github.com/gofiber/fiber/v2"

	"hirecorrecto/interview-orchestrator/internal/models"
	"hirecorrecto/interview-orchestrator/internal/repositories"
)

type ResultHandler struct {
	interviewRepo    repositories.InterviewRepository
	conversationRepo repositories.ConversationRepository
}

func NewResultHandler(interviewRepo repositories.InterviewRepository, conversationRepo repositories.ConversationRepository) *ResultHandler {
	return &ResultHandler{
		interviewRepo:    interviewRepo,
		conversationRepo: conversationRepo,
	}
}

// HandleGetResult returns the persisted questions of an interview. Usage is
// omitted until the first snapshot has been written.
func (h *ResultHandler) HandleGetResult(c *fiber.Ctx) error {
	interviewID := c.Params("id")
	if interviewID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid interview ID",
		})
	}

	questions, err := h.interviewRepo.FindByInterview(interviewID)
	if err != nil {
		return respondError(c, err)
	}
	if len(questions) == 0 {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Interview not found",
		})
	}

	response := models.InterviewResultResponse{
		InterviewID: interviewID,
		Questions:   questions,
	}

	if usage, err := h.interviewRepo.FindUsage(interviewID); err == nil {
		response.Usage = usage
	}

	if h.conversationRepo != nil {
		response.Conversations = make(map[string][]models.ConversationTurn, len(questions))
		for _, q := range questions {
			turns, err := h.conversationRepo.FindTurns(q.ID)
			if err != nil {
				log.Printf("⚠️  Failed to load turns for question %s: %v\n", q.ID, err)
				continue
			}
			if len(turns) > 0 {
				response.Conversations[q.ID] = turns
			}
		}
	}

	return c.JSON(response)
}
