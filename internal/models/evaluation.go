package models

type ScoreLabel string

const (
	LabelPass ScoreLabel = "pass"
	LabelWeak ScoreLabel = "weak"
	LabelFail ScoreLabel = "fail"
)

type NextAction string

const (
	ActionAskFollowUp  NextAction = "ask_followup"
	ActionNextQuestion NextAction = "next_question"
	ActionEndInterview NextAction = "end_interview"
)

func (a NextAction) Valid() bool {
	switch a {
	case ActionAskFollowUp, ActionNextQuestion, ActionEndInterview:
		return true
	}
	return false
}

type CheatFlag string

const (
	FlagMultiFace          CheatFlag = "multi_face"
	FlagAbsentFace         CheatFlag = "absent_face"
	FlagLookingAway        CheatFlag = "looking_away"
	FlagSuspiciousBehavior CheatFlag = "suspicious_behavior"
)

func (f CheatFlag) Valid() bool {
	switch f {
	case FlagMultiFace, FlagAbsentFace, FlagLookingAway, FlagSuspiciousBehavior:
		return true
	}
	return false
}

type EvaluationResult struct {
	Relevance         float64    `json:"relevance"`
	TechnicalAccuracy float64    `json:"technical_accuracy"`
	Fluency           float64    `json:"fluency"`
	OverallScore      float64    `json:"overall_score"`
	ScoreLabel        ScoreLabel `json:"score_label"`
	Comment           string     `json:"comment"`
}

type CheatingAssessment struct {
	CheatScore float64     `json:"cheat_score"`
	Flags      []CheatFlag `json:"flags"`
	Summary    string      `json:"summary"`
}

type RecommendationDecision string

const (
	DecisionHire     RecommendationDecision = "hire"
	DecisionConsider RecommendationDecision = "consider"
	DecisionReject   RecommendationDecision = "reject"
)

// Recommendation is the overall verdict synthesized after the interview ends.
type Recommendation struct {
	Decision     RecommendationDecision `json:"decision"`
	OverallScore float64                `json:"overall_score"`
	Strengths    []string               `json:"strengths"`
	Weaknesses   []string               `json:"weaknesses"`
	Summary      string                 `json:"summary"`
	Usage        UsageCounter           `json:"usage"`
}
