package services

import (
	"fmt"
	"strings"

	"hirecorrecto/interview-orchestrator/internal/models"
)

type PromptBuilder struct{}

func NewPromptBuilder() *PromptBuilder {
	return &PromptBuilder{}
}

type questionPromptInput struct {
	Context        models.InterviewContext
	References     []models.PoolQuestion
	PrioritySkills []string
	AskedQuestions []string
	NextOrder      int
	FollowUp       *models.AnsweredSummary
}

type evaluationPromptInput struct {
	Context  models.InterviewContext
	Question models.QuestionRecord
	Prior    []models.AnsweredSummary
	Timing   models.TimingWindows
	Frames   []Frame
}

func writeJobContext(b *strings.Builder, ictx models.InterviewContext) {
	b.WriteString("JOB CONTEXT:\n")
	fmt.Fprintf(b, "- Title: %s\n", ictx.JobTitle)
	if ictx.ExperienceLevel != "" {
		fmt.Fprintf(b, "- Experience level: %s\n", ictx.ExperienceLevel)
	}
	if ictx.JobDescription != "" {
		desc := ictx.JobDescription
		if len(desc) > 4000 {
			desc = desc[:4000]
		}
		fmt.Fprintf(b, "- Description:\n%s\n", desc)
	}
	b.WriteString("\nSKILLS (weight 0-100, topics):\n")
	for _, s := range ictx.Skills {
		fmt.Fprintf(b, "- %s (weight %.0f)", s.Name, s.Weight)
		if len(s.Topics) > 0 {
			fmt.Fprintf(b, ": %s", strings.Join(s.Topics, ", "))
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")
}

// BuildQuestionGenerationPrompt creates the prompt for a generated or
// follow-up interview question.
func (pb *PromptBuilder) BuildQuestionGenerationPrompt(in questionPromptInput) string {
	var b strings.Builder

	b.WriteString("You are a senior technical interviewer conducting a live spoken interview.\n\n")
	writeJobContext(&b, in.Context)

	if len(in.PrioritySkills) > 0 {
		fmt.Fprintf(&b, "PRIORITY SKILLS (least covered so far, focus here): %s\n\n", strings.Join(in.PrioritySkills, ", "))
	}

	if len(in.References) > 0 {
		b.WriteString("REFERENCE QUESTIONS (match their style and difficulty, do not copy them):\n")
		for i, r := range in.References {
			fmt.Fprintf(&b, "%d. %s\n", i+1, r.Text)
		}
		b.WriteString("\n")
	}

	if len(in.AskedQuestions) > 0 {
		b.WriteString("ALREADY ASKED (never repeat or paraphrase these):\n")
		for i, q := range in.AskedQuestions {
			fmt.Fprintf(&b, "%d. %s\n", i+1, q)
		}
		b.WriteString("\n")
	}

	kind := models.KindGenerated
	if in.FollowUp != nil {
		kind = models.KindFollowUp
		b.WriteString("FOLLOW-UP CONTEXT:\n")
		fmt.Fprintf(&b, "Previous question: %s\n", in.FollowUp.Question)
		fmt.Fprintf(&b, "Candidate answer: %s\n", truncateRunes(in.FollowUp.Transcript, 2000))
		fmt.Fprintf(&b, "Evaluation comment: %s\n\n", in.FollowUp.Evaluation.Comment)
		b.WriteString("Ask ONE follow-up that probes a gap or an interesting claim in the answer above.\n\n")
	} else {
		b.WriteString("Ask ONE new question that can be answered verbally in two to three minutes.\n\n")
	}

	fmt.Fprintf(&b, `Return ONLY a JSON object:
{
  "id": "<short unique id>",
  "text": "<the question, spoken style, at most 80 words>",
  "kind": "%s",
  "order": %d,
  "skills": ["<skill names from the list above>"]
}`, kind, in.NextOrder)

	return b.String()
}

// BuildAnswerEvaluationPrompt creates the multimodal evaluation prompt that
// accompanies the recorded answer and frames.
func (pb *PromptBuilder) BuildAnswerEvaluationPrompt(in evaluationPromptInput) string {
	var b strings.Builder

	b.WriteString("You are an expert technical interviewer and proctor. The attached recording is the candidate's spoken answer.\n\n")
	writeJobContext(&b, in.Context)

	if len(in.Prior) > 0 {
		b.WriteString("RECENT QUESTIONS AND ANSWERS (for continuity):\n")
		for i, p := range in.Prior {
			fmt.Fprintf(&b, "Q%d: %s\nA%d: %s\n", i+1, p.Question, i+1, truncateRunes(p.Transcript, 1200))
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "CURRENT QUESTION: %s\n", in.Question.Text)
	if len(in.Question.Skills) > 0 {
		fmt.Fprintf(&b, "Skills assessed: %s\n", strings.Join(in.Question.Skills, ", "))
	}
	b.WriteString("\n")

	b.WriteString(`TRANSCRIPTION GUIDANCE:
- Transcribe verbatim. Keep technical terms, library names, acronyms and code identifiers exactly (e.g. "Kubernetes", "gRPC", "useEffect", "O(n log n)").
- Prefer the technical term over a similar sounding common word when the context is technical.
- Do not correct the candidate's mistakes and do not add content that was not spoken.

`)

	gap := in.Timing.SpeechStartMs - in.Timing.QuestionEndMs
	b.WriteString("INTEGRITY REVIEW (highest priority windows first):\n")
	if gap > 0 {
		fmt.Fprintf(&b, "- Gap period %s to %s (%.1fs between question end and first speech): check for reading, typing, consulting another screen or person.\n",
			msLabel(in.Timing.QuestionEndMs), msLabel(in.Timing.SpeechStartMs), float64(gap)/1000)
	}
	for _, p := range longPauses(in.Timing.Pauses) {
		fmt.Fprintf(&b, "- Pause %s to %s (%.1fs) inside the answer: check for looking away, absence or another face.\n",
			msLabel(p.StartMs), msLabel(p.EndMs), p.Duration().Seconds())
	}
	b.WriteString("- Elsewhere: multiple faces, absent face, persistent looking away, suspicious behavior.\n\n")

	if len(in.Frames) > 0 {
		b.WriteString("ATTACHED FRAMES (in order after the recording):\n")
		for i, f := range in.Frames {
			fmt.Fprintf(&b, "- Frame %d at %s (%s)\n", i+1, msLabel(f.OffsetMs), frameWindow(f.OffsetMs, in.Timing))
		}
		b.WriteString("\n")
	}

	b.WriteString(`Return ONLY a JSON object:
{
  "transcript": "<verbatim transcript>",
  "evaluation": {
    "relevance": <0-100>,
    "technical_accuracy": <0-100>,
    "fluency": <0-100>,
    "overall_score": <0-100>,
    "comment": "<2-3 sentences>"
  },
  "cheating": {
    "cheat_score": <0.0-1.0>,
    "flags": ["multi_face" | "absent_face" | "looking_away" | "suspicious_behavior"],
    "summary": "<one sentence>"
  },
  "next_action": "ask_followup" | "next_question" | "end_interview"
}`)

	return b.String()
}

func (pb *PromptBuilder) BuildIntentClassificationPrompt(question, reply string) string {
	return fmt.Sprintf(`An automated interviewer asked the candidate whether they need more time on this question:
"%s"

The candidate replied:
"%s"

Classify the reply into exactly one intent:
- "continue": wants to keep answering
- "done": has finished answering
- "thinking": needs more time to think
- "skip": does not know and wants to move on
- "answering": is already giving substantive answer content

Return ONLY a JSON object: {"intent": "<intent>", "confidence": <0.0-1.0>}`, question, reply)
}

func (pb *PromptBuilder) BuildDeflectionCheckPrompt(question, chunk string) string {
	return fmt.Sprintf(`You monitor the integrity of a live technical interview.
Interview question: "%s"
Candidate just said: "%s"

Classify what the candidate is doing:
- "answering": answering the question normally
- "asking_question": asking the interviewer an unrelated or direct question
- "requesting_answer": asking for the answer, a hint, or confirmation that their answer is correct
- "role_reversal": asking the interviewer to answer or share their own opinion
- "legitimate_clarification": asking to repeat or clarify the wording of the question

Return ONLY a JSON object: {"intent": "<intent>", "confidence": <0.0-1.0>}`, question, chunk)
}

func (pb *PromptBuilder) BuildFollowUpAnalysisPrompt(question, partialAnswer string) string {
	return fmt.Sprintf(`You assist an interviewer during a live technical interview.
Question: "%s"
Candidate's answer so far: "%s"

Decide whether a short follow-up question would meaningfully probe the candidate's understanding (a vague claim, a mentioned technology worth digging into, or a gap).

Return ONLY a JSON object:
{"should_follow_up": true|false, "question": "<follow-up question or empty>", "reason": "<short reason>", "confidence": <0.0-1.0>}`, question, truncateRunes(partialAnswer, 3000))
}

func (pb *PromptBuilder) BuildRecommendationPrompt(ictx models.InterviewContext, history []models.QuestionRecord) string {
	var b strings.Builder

	b.WriteString("You are a hiring committee member writing the final recommendation for a technical interview.\n\n")
	writeJobContext(&b, ictx)
	fmt.Fprintf(&b, "PASS THRESHOLD: %.0f/100\n\n", ictx.PassPercentage)

	b.WriteString("QUESTION HISTORY:\n")
	for _, q := range history {
		fmt.Fprintf(&b, "%d. [%s] %s\n", q.Order, q.Kind, q.Text)
		if q.Evaluation != nil {
			fmt.Fprintf(&b, "   relevance=%.0f technical_accuracy=%.0f fluency=%.0f overall=%.0f label=%s\n",
				q.Evaluation.Relevance, q.Evaluation.TechnicalAccuracy, q.Evaluation.Fluency, q.Evaluation.OverallScore, q.Evaluation.ScoreLabel)
			fmt.Fprintf(&b, "   comment: %s\n", q.Evaluation.Comment)
		}
		if q.Cheating != nil && q.Cheating.CheatScore > 0 {
			fmt.Fprintf(&b, "   integrity: cheat_score=%.2f flags=%v\n", q.Cheating.CheatScore, q.Cheating.Flags)
		}
	}

	b.WriteString(`
Return ONLY a JSON object:
{
  "decision": "hire" | "consider" | "reject",
  "overall_score": <0-100, weighted by skill weights>,
  "strengths": ["..."],
  "weaknesses": ["..."],
  "summary": "<3-5 sentences>"
}`)

	return b.String()
}

func msLabel(ms int64) string {
	return fmt.Sprintf("%d:%02d.%d", ms/60000, (ms/1000)%60, (ms%1000)/100)
}

func frameWindow(offsetMs int64, t models.TimingWindows) string {
	if t.SpeechStartMs > t.QuestionEndMs && offsetMs >= t.QuestionEndMs && offsetMs < t.SpeechStartMs {
		return "gap period"
	}
	for _, p := range longPauses(t.Pauses) {
		if offsetMs >= p.StartMs && offsetMs <= p.EndMs {
			return "long pause"
		}
	}
	return "answer"
}

func truncateRunes(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
