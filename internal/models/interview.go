package models

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// poolQuestionNamespace seeds deterministic IDs for pool questions that arrive
// without one, so the same text maps to the same ID across interviews.
var poolQuestionNamespace = uuid.MustParse("6f1c1f4e-3c1b-4f0e-9a52-2f1d8a6b7c10")

type Skill struct {
	Name   string   `json:"name"`
	Weight float64  `json:"weight"`
	Topics []string `json:"topics,omitempty"`
}

// PoolQuestion is a recruiter-curated question. Older interviews store pool
// entries as plain strings, newer ones as objects carrying skill tags; both
// decode into this shape.
type PoolQuestion struct {
	ID     string   `json:"id"`
	Text   string   `json:"text"`
	Skills []string `json:"skills,omitempty"`
}

type taggedPoolQuestion struct {
	ID     string   `json:"id"`
	Text   string   `json:"text"`
	Skills []string `json:"skills"`
}

func (q *PoolQuestion) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" {
		return fmt.Errorf("empty pool question")
	}

	if trimmed[0] == '"' {
		var text string
		if err := json.Unmarshal(data, &text); err != nil {
			return fmt.Errorf("failed to decode legacy pool question: %w", err)
		}
		*q = NewPoolQuestion("", text, nil)
		return nil
	}

	var tagged taggedPoolQuestion
	if err := json.Unmarshal(data, &tagged); err != nil {
		return fmt.Errorf("failed to decode pool question: %w", err)
	}
	*q = NewPoolQuestion(tagged.ID, tagged.Text, tagged.Skills)
	return nil
}

// NewPoolQuestion normalizes a pool entry. A blank ID is derived from the text.
func NewPoolQuestion(id, text string, skills []string) PoolQuestion {
	text = strings.TrimSpace(text)
	if id == "" {
		id = uuid.NewSHA1(poolQuestionNamespace, []byte(strings.ToLower(text))).String()
	}

	var cleaned []string
	for _, s := range skills {
		if s = strings.TrimSpace(s); s != "" {
			cleaned = append(cleaned, s)
		}
	}

	return PoolQuestion{ID: id, Text: text, Skills: cleaned}
}

// InterviewContext is the immutable snapshot a session is started with.
type InterviewContext struct {
	JobTitle           string         `json:"job_title"`
	JobDescription     string         `json:"job_description,omitempty"`
	ExperienceLevel    string         `json:"experience_level,omitempty"`
	Skills             []Skill        `json:"skills"`
	MandatoryQuestions []PoolQuestion `json:"mandatory_questions,omitempty"`
	OptionalQuestions  []PoolQuestion `json:"optional_questions,omitempty"`
	MaxQuestions       int            `json:"max_questions"`
	MandatoryWeightage float64        `json:"mandatory_weightage"`
	OptionalWeightage  float64        `json:"optional_weightage"`
	PassPercentage     float64        `json:"pass_percentage"`
}

func (c InterviewContext) Validate() error {
	if strings.TrimSpace(c.JobTitle) == "" {
		return fmt.Errorf("job_title is required")
	}
	if c.MaxQuestions <= 0 {
		return fmt.Errorf("max_questions must be greater than 0")
	}
	if c.MandatoryWeightage < 0 || c.MandatoryWeightage > 100 {
		return fmt.Errorf("mandatory_weightage must be between 0 and 100")
	}
	if c.OptionalWeightage < 0 || c.OptionalWeightage > 100 {
		return fmt.Errorf("optional_weightage must be between 0 and 100")
	}
	if c.PassPercentage < 0 || c.PassPercentage > 100 {
		return fmt.Errorf("pass_percentage must be between 0 and 100")
	}
	return nil
}

// SkillWeights returns weights keyed by lower-cased skill name.
func (c InterviewContext) SkillWeights() map[string]float64 {
	weights := make(map[string]float64, len(c.Skills))
	for _, s := range c.Skills {
		weights[strings.ToLower(s.Name)] = s.Weight
	}
	return weights
}
