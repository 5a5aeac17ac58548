package models

import "time"

type UploadResponse struct {
	ID           string `json:"id"`
	Filename     string `json:"filename"`
	OriginalName string `json:"original_name"`
	FileType     string `json:"file_type"`
	PageCount    int    `json:"page_count"`
}

type StartSessionRequest struct {
	InterviewID              string           `json:"interview_id"`
	CandidateID              string           `json:"candidate_id"`
	JobDescriptionDocumentID string           `json:"job_description_document_id,omitempty"`
	Context                  InterviewContext `json:"context"`
}

type StartSessionResponse struct {
	SessionID     string         `json:"session_id"`
	Model         string         `json:"model"`
	FirstQuestion QuestionRecord `json:"first_question"`
}

type TranscriptChunkRequest struct {
	QuestionID string     `json:"question_id"`
	Text       string     `json:"text"`
	IsFinal    bool       `json:"is_final"`
	Timestamp  *time.Time `json:"timestamp,omitempty"`
}

type SilenceRequest struct {
	QuestionID        string `json:"question_id"`
	SilenceDurationMs int64  `json:"silence_duration_ms"`
}

type IntentReplyRequest struct {
	QuestionID string `json:"question_id"`
	Text       string `json:"text"`
}

// Pause is a silent stretch inside the candidate's answer, in milliseconds
// from the start of the recording.
type Pause struct {
	StartMs int64 `json:"start_ms"`
	EndMs   int64 `json:"end_ms"`
}

func (p Pause) Duration() time.Duration {
	return time.Duration(p.EndMs-p.StartMs) * time.Millisecond
}

// TimingWindows describes when the interviewer stopped speaking and when the
// candidate spoke, relative to the start of the recording.
type TimingWindows struct {
	QuestionEndMs int64   `json:"question_end_ms"`
	SpeechStartMs int64   `json:"speech_start_ms"`
	AnswerEndMs   int64   `json:"answer_end_ms"`
	Pauses        []Pause `json:"pauses,omitempty"`
}

type EndSessionResponse struct {
	SessionID string       `json:"session_id"`
	Usage     UsageSummary `json:"usage"`
}

// InterviewResultResponse is the stored view of an interview, read back from
// the database after the session is gone.
type InterviewResultResponse struct {
	InterviewID string              `json:"interview_id"`
	Questions   []InterviewQuestion `json:"questions"`
	Usage       *InterviewUsage     `json:"usage,omitempty"`

	// Conversations holds the stored turn log of each question, keyed by
	// question ID.
	Conversations map[string][]ConversationTurn `json:"conversations,omitempty"`
}
