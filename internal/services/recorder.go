package services

import (
	"context"
	"errors"
	"fmt"
	"log"

	"hirecorrecto/interview-orchestrator/internal/models"
	"hirecorrecto/interview-orchestrator/internal/repositories"
)

// SessionRecorder writes session snapshots to durable storage.
type SessionRecorder interface {
	Persist(ctx context.Context, snap *SessionSnapshot) error
}

type sessionRecorder struct {
	interviews    repositories.InterviewRepository
	conversations repositories.ConversationRepository
}

func NewSessionRecorder(interviews repositories.InterviewRepository, conversations repositories.ConversationRepository) SessionRecorder {
	return &sessionRecorder{
		interviews:    interviews,
		conversations: conversations,
	}
}

// Persist saves every question, its turn log and the usage totals. Turn log
// conflicts that outlast the retries are logged and dropped.
func (r *sessionRecorder) Persist(ctx context.Context, snap *SessionSnapshot) error {
	if snap == nil {
		return nil
	}

	var errs []error
	for _, q := range snap.Questions {
		row, err := models.NewInterviewQuestion(q, snap.InterviewID, snap.SessionID, snap.CandidateID)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := r.interviews.SaveQuestion(row); err != nil {
			errs = append(errs, err)
		}

		if err := r.conversations.AppendTurns(ctx, snap.InterviewID, q.ID, q.Turns); err != nil {
			if errors.Is(err, repositories.ErrVersionConflict) {
				log.Printf("⚠️  Dropping turn log update for question %s: %v\n", q.ID, fmt.Errorf("%w: %v", ErrPersistenceConflict, err))
				continue
			}
			errs = append(errs, err)
		}
	}

	if err := r.interviews.SaveUsage(models.NewInterviewUsage(snap.InterviewID, snap.SessionID, snap.Usage)); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}
