package models

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// InterviewQuestion is the persisted form of a QuestionRecord.
type InterviewQuestion struct {
	ID                string         `gorm:"type:uuid;primary_key" json:"id"`
	InterviewID       string         `gorm:"type:text;index;not null" json:"interview_id"`
	SessionID         string         `gorm:"type:uuid;index" json:"session_id"`
	CandidateID       string         `gorm:"type:text;index:idx_candidate_asked" json:"candidate_id"`
	PoolQuestionID    string         `gorm:"type:text" json:"pool_question_id,omitempty"`
	Text              string         `gorm:"type:text;not null" json:"text"`
	Kind              QuestionKind   `gorm:"type:text;not null" json:"kind"`
	Order             int            `gorm:"column:question_order;not null" json:"order"`
	Skills            datatypes.JSON `gorm:"type:jsonb" json:"skills"`
	Status            QuestionStatus `gorm:"type:text;not null;default:'pending'" json:"status"`
	SkipReason        string         `gorm:"type:text" json:"skip_reason,omitempty"`
	Transcript        string         `gorm:"type:text" json:"transcript,omitempty"`
	Relevance         *float64       `json:"relevance,omitempty"`
	TechnicalAccuracy *float64       `json:"technical_accuracy,omitempty"`
	Fluency           *float64       `json:"fluency,omitempty"`
	OverallScore      *float64       `json:"overall_score,omitempty"`
	ScoreLabel        string         `gorm:"type:text" json:"score_label,omitempty"`
	Comment           string         `gorm:"type:text" json:"comment,omitempty"`
	CheatScore        *float64       `json:"cheat_score,omitempty"`
	CheatFlags        datatypes.JSON `gorm:"type:jsonb" json:"cheat_flags"`
	CheatSummary      string         `gorm:"type:text" json:"cheat_summary,omitempty"`
	Interventions     datatypes.JSON `gorm:"type:jsonb" json:"interventions"`
	Deflections       datatypes.JSON `gorm:"type:jsonb" json:"deflections"`
	QuestionAttempts  int            `json:"question_attempts"`
	IntegritySeverity string         `gorm:"type:text" json:"integrity_severity,omitempty"`
	InputTokens       int64          `json:"input_tokens"`
	OutputTokens      int64          `json:"output_tokens"`
	Cost              float64        `gorm:"type:decimal(12,6)" json:"cost"`
	AskedAt           time.Time      `gorm:"index:idx_candidate_asked" json:"asked_at"`
	CreatedAt         time.Time      `gorm:"default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt         time.Time      `gorm:"default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (InterviewQuestion) TableName() string {
	return "interview_questions"
}

// NewInterviewQuestion flattens a question record into its row.
func NewInterviewQuestion(rec QuestionRecord, interviewID, sessionID, candidateID string) (*InterviewQuestion, error) {
	row := &InterviewQuestion{
		ID:                rec.ID,
		InterviewID:       interviewID,
		SessionID:         sessionID,
		CandidateID:       candidateID,
		PoolQuestionID:    rec.PoolQuestionID,
		Text:              rec.Text,
		Kind:              rec.Kind,
		Order:             rec.Order,
		Status:            rec.Status,
		SkipReason:        string(rec.SkipReason),
		Transcript:        rec.Transcript,
		QuestionAttempts:  rec.QuestionAttempts,
		IntegritySeverity: string(rec.IntegritySeverity),
		AskedAt:           rec.AskedAt,
	}

	var err error
	if row.Skills, err = jsonColumn(rec.Skills); err != nil {
		return nil, err
	}
	if row.Interventions, err = jsonColumn(rec.Interventions); err != nil {
		return nil, err
	}
	if row.Deflections, err = jsonColumn(rec.Deflections); err != nil {
		return nil, err
	}

	if e := rec.Evaluation; e != nil {
		row.Relevance = &e.Relevance
		row.TechnicalAccuracy = &e.TechnicalAccuracy
		row.Fluency = &e.Fluency
		row.OverallScore = &e.OverallScore
		row.ScoreLabel = string(e.ScoreLabel)
		row.Comment = e.Comment
	}
	if c := rec.Cheating; c != nil {
		row.CheatScore = &c.CheatScore
		row.CheatSummary = c.Summary
		if row.CheatFlags, err = jsonColumn(c.Flags); err != nil {
			return nil, err
		}
	} else {
		row.CheatFlags = datatypes.JSON("[]")
	}
	if u := rec.Usage; u != nil {
		row.InputTokens = u.InputTokens
		row.OutputTokens = u.OutputTokens
		row.Cost = u.Cost
	}

	return row, nil
}

func jsonColumn(v interface{}) (datatypes.JSON, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode column: %w", err)
	}
	if string(data) == "null" {
		return datatypes.JSON("[]"), nil
	}
	return datatypes.JSON(data), nil
}

// ConversationLog holds the turn log of one question. Version guards
// concurrent read-modify-write merges.
type ConversationLog struct {
	QuestionID  string         `gorm:"type:uuid;primary_key" json:"question_id"`
	InterviewID string         `gorm:"type:text;index;not null" json:"interview_id"`
	Turns       datatypes.JSON `gorm:"type:jsonb" json:"turns"`
	Version     int            `gorm:"not null;default:0" json:"version"`
	UpdatedAt   time.Time      `gorm:"default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (ConversationLog) TableName() string {
	return "conversation_logs"
}

type InterviewUsage struct {
	InterviewID   string    `gorm:"type:text;primary_key" json:"interview_id"`
	SessionID     string    `gorm:"type:uuid" json:"session_id"`
	Model         string    `gorm:"type:text" json:"model"`
	InputTokens   int64     `json:"input_tokens"`
	OutputTokens  int64     `json:"output_tokens"`
	TotalTokens   int64     `json:"total_tokens"`
	Cost          float64   `gorm:"type:decimal(12,6)" json:"cost"`
	ConvertedCost float64   `gorm:"type:decimal(14,4)" json:"converted_cost"`
	Currency      string    `gorm:"type:text" json:"currency"`
	UpdatedAt     time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (InterviewUsage) TableName() string {
	return "interview_usages"
}

func NewInterviewUsage(interviewID, sessionID string, s UsageSummary) *InterviewUsage {
	return &InterviewUsage{
		InterviewID:   interviewID,
		SessionID:     sessionID,
		Model:         s.Model,
		InputTokens:   s.Tokens.Input,
		OutputTokens:  s.Tokens.Output,
		TotalTokens:   s.Tokens.Total,
		Cost:          s.Cost,
		ConvertedCost: s.ConvertedCost,
		Currency:      s.Currency,
	}
}
