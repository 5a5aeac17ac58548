package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"gorm.io/gorm"

	"hirecorrecto/interview-orchestrator/internal/models"
)

var ErrVersionConflict = errors.New("conversation log version conflict")

// ConversationRepository merges turn logs into the versioned conversation
// row of a question.
type ConversationRepository interface {
	AppendTurns(ctx context.Context, interviewID, questionID string, turns []models.ConversationTurn) error
	FindTurns(questionID string) ([]models.ConversationTurn, error)
}

type conversationRepository struct {
	db          *gorm.DB
	maxAttempts int
	backoff     time.Duration
}

func NewConversationRepository(db *gorm.DB, maxAttempts int, backoff time.Duration) ConversationRepository {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if backoff <= 0 {
		backoff = 100 * time.Millisecond
	}
	return &conversationRepository{db: db, maxAttempts: maxAttempts, backoff: backoff}
}

// AppendTurns retries a read-merge-write on version conflicts, doubling the
// wait each time. After the last attempt ErrVersionConflict is returned.
func (r *conversationRepository) AppendTurns(ctx context.Context, interviewID, questionID string, turns []models.ConversationTurn) error {
	if len(turns) == 0 {
		return nil
	}

	delay := r.backoff
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		err := r.mergeOnce(ctx, interviewID, questionID, turns)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrVersionConflict) {
			return err
		}
		if attempt == r.maxAttempts {
			break
		}

		log.Printf("⚠️  Turn log conflict on question %s (attempt %d/%d), retrying in %s\n", questionID, attempt, r.maxAttempts, delay)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}

	return fmt.Errorf("%w: question %s after %d attempts", ErrVersionConflict, questionID, r.maxAttempts)
}

func (r *conversationRepository) mergeOnce(ctx context.Context, interviewID, questionID string, turns []models.ConversationTurn) error {
	db := r.db.WithContext(ctx)

	var row models.ConversationLog
	err := db.Where("question_id = ?", questionID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		data, err := json.Marshal(MergeTurns(nil, turns))
		if err != nil {
			return fmt.Errorf("failed to encode turns: %w", err)
		}
		row = models.ConversationLog{
			QuestionID:  questionID,
			InterviewID: interviewID,
			Turns:       data,
			Version:     1,
			UpdatedAt:   time.Now(),
		}
		if err := db.Create(&row).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrVersionConflict
			}
			return fmt.Errorf("failed to create conversation log: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load conversation log: %w", err)
	}

	var existing []models.ConversationTurn
	if len(row.Turns) > 0 {
		if err := json.Unmarshal(row.Turns, &existing); err != nil {
			return fmt.Errorf("failed to decode conversation log: %w", err)
		}
	}

	data, err := json.Marshal(MergeTurns(existing, turns))
	if err != nil {
		return fmt.Errorf("failed to encode turns: %w", err)
	}

	res := db.Model(&models.ConversationLog{}).
		Where("question_id = ? AND version = ?", questionID, row.Version).
		Updates(map[string]interface{}{
			"turns":      data,
			"version":    row.Version + 1,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return fmt.Errorf("failed to update conversation log: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrVersionConflict
	}
	return nil
}

func (r *conversationRepository) FindTurns(questionID string) ([]models.ConversationTurn, error) {
	var row models.ConversationLog
	if err := r.db.Where("question_id = ?", questionID).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find conversation log: %w", err)
	}

	var turns []models.ConversationTurn
	if len(row.Turns) > 0 {
		if err := json.Unmarshal(row.Turns, &turns); err != nil {
			return nil, fmt.Errorf("failed to decode conversation log: %w", err)
		}
	}
	return turns, nil
}

// MergeTurns unions two turn lists by turn ID, letting incoming turns replace
// stored ones, and sorts the result by timestamp.
func MergeTurns(existing, incoming []models.ConversationTurn) []models.ConversationTurn {
	index := make(map[string]int, len(existing)+len(incoming))
	merged := make([]models.ConversationTurn, 0, len(existing)+len(incoming))

	for _, list := range [][]models.ConversationTurn{existing, incoming} {
		for _, t := range list {
			if i, ok := index[t.ID]; ok {
				merged[i] = t
				continue
			}
			index[t.ID] = len(merged)
			merged = append(merged, t)
		}
	}

	sort.SliceStable(merged, func(i, j int) bool { return merged[i].Timestamp.Before(merged[j].Timestamp) })
	return merged
}
