package repositories

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"hirecorrecto/interview-orchestrator/internal/models"
)

// InterviewRepository stores question records and usage totals. It also
// answers the 24-hour "recently asked" lookup for question selection.
type InterviewRepository interface {
	SaveQuestion(q *models.InterviewQuestion) error
	FindByInterview(interviewID string) ([]models.InterviewQuestion, error)
	RecentlyAskedPoolQuestions(ctx context.Context, candidateID string, since time.Time) ([]string, error)
	SaveUsage(u *models.InterviewUsage) error
	FindUsage(interviewID string) (*models.InterviewUsage, error)
}

type interviewRepository struct {
	db *gorm.DB
}

func NewInterviewRepository(db *gorm.DB) InterviewRepository {
	return &interviewRepository{db: db}
}

// SaveQuestion inserts the row or overwrites every column of an existing one.
func (r *interviewRepository) SaveQuestion(q *models.InterviewQuestion) error {
	q.UpdatedAt = time.Now()
	err := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(q).Error
	if err != nil {
		return fmt.Errorf("failed to save question %s: %w", q.ID, err)
	}
	return nil
}

func (r *interviewRepository) FindByInterview(interviewID string) ([]models.InterviewQuestion, error) {
	var rows []models.InterviewQuestion
	err := r.db.
		Where("interview_id = ?", interviewID).
		Order("question_order ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find questions: %w", err)
	}
	return rows, nil
}

func (r *interviewRepository) RecentlyAskedPoolQuestions(ctx context.Context, candidateID string, since time.Time) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&models.InterviewQuestion{}).
		Where("candidate_id = ? AND asked_at >= ? AND pool_question_id <> ''", candidateID, since).
		Distinct().
		Pluck("pool_question_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find recent questions: %w", err)
	}
	return ids, nil
}

func (r *interviewRepository) SaveUsage(u *models.InterviewUsage) error {
	u.UpdatedAt = time.Now()
	err := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "interview_id"}},
		UpdateAll: true,
	}).Create(u).Error
	if err != nil {
		return fmt.Errorf("failed to save usage: %w", err)
	}
	return nil
}

func (r *interviewRepository) FindUsage(interviewID string) (*models.InterviewUsage, error) {
	var u models.InterviewUsage
	if err := r.db.Where("interview_id = ?", interviewID).First(&u).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("usage not found for interview %s", interviewID)
		}
		return nil, fmt.Errorf("failed to find usage: %w", err)
	}
	return &u, nil
}
