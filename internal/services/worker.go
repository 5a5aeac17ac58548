package services

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

// Worker bounds how many answer evaluations run at once and evicts idle
// sessions in the background.
type Worker interface {
	Start(ctx context.Context)
	Stop()
	EnqueueAnswer(ctx context.Context, sessionID string, sub AnswerSubmission) <-chan AnswerJobResult
}

type AnswerJobResult struct {
	Outcome *AnswerOutcome
	Err     error
}

type answerJob struct {
	ctx       context.Context
	sessionID string
	sub       AnswerSubmission
	result    chan AnswerJobResult
}

type worker struct {
	registry      SessionRegistry
	recorder      SessionRecorder
	jobQueue      chan answerJob
	concurrency   int
	sweepInterval time.Duration
	wg            sync.WaitGroup
	stopChan      chan struct{}
	stopOnce      sync.Once
}

func NewWorker(
	registry SessionRegistry,
	recorder SessionRecorder,
	concurrency int,
	sweepInterval time.Duration,
) Worker {
	if concurrency <= 0 {
		concurrency = 1
	}
	if sweepInterval <= 0 {
		sweepInterval = time.Minute
	}
	return &worker{
		registry:      registry,
		recorder:      recorder,
		jobQueue:      make(chan answerJob, 100),
		concurrency:   concurrency,
		sweepInterval: sweepInterval,
		stopChan:      make(chan struct{}),
	}
}

// Start implements Worker.
func (w *worker) Start(ctx context.Context) {
	log.Printf("🚀 Starting worker with %d concurrent evaluators\n", w.concurrency)

	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.processJobs(i + 1)
	}

	w.wg.Add(1)
	go w.sweepIdleSessions(ctx)

	log.Println("✅ Worker started successfully")
}

// Stop implements Worker.
func (w *worker) Stop() {
	w.stopOnce.Do(func() {
		log.Println("🛑 Stopping worker...")
		close(w.stopChan)
		w.wg.Wait()
		log.Println("✅ Worker stopped")
	})
}

// EnqueueAnswer implements Worker. The returned channel receives exactly one
// result.
func (w *worker) EnqueueAnswer(ctx context.Context, sessionID string, sub AnswerSubmission) <-chan AnswerJobResult {
	result := make(chan AnswerJobResult, 1)
	job := answerJob{ctx: ctx, sessionID: sessionID, sub: sub, result: result}

	select {
	case w.jobQueue <- job:
		log.Printf("📥 Answer for question %s enqueued\n", sub.QuestionID)
	case <-w.stopChan:
		log.Printf("⚠️  Worker stopped, cannot enqueue answer for question %s\n", sub.QuestionID)
		result <- AnswerJobResult{Err: fmt.Errorf("worker stopped")}
	case <-ctx.Done():
		result <- AnswerJobResult{Err: ctx.Err()}
	}
	return result
}

func (w *worker) processJobs(workerID int) {
	defer w.wg.Done()

	for {
		select {
		case <-w.stopChan:
			log.Printf("👷 Worker #%d stopped\n", workerID)
			return
		case job := <-w.jobQueue:
			if err := job.ctx.Err(); err != nil {
				job.result <- AnswerJobResult{Err: err}
				continue
			}

			log.Printf("👷 Worker #%d evaluating question %s\n", workerID, job.sub.QuestionID)
			out, err := w.registry.SubmitAnswer(job.ctx, job.sessionID, job.sub)
			if err != nil {
				log.Printf("❌ Worker #%d failed question %s: %v\n", workerID, job.sub.QuestionID, err)
			}
			job.result <- AnswerJobResult{Outcome: out, Err: err}
		}
	}
}

func (w *worker) sweepIdleSessions(ctx context.Context) {
	defer w.wg.Done()
	ticker := time.NewTicker(w.sweepInterval)
	defer ticker.Stop()

	log.Println("🔄 Starting idle session sweeper")

	for {
		select {
		case <-w.stopChan:
			log.Println("🔄 Idle session sweeper stopped")
			return
		case now := <-ticker.C:
			evicted := w.registry.EvictIdle(now)
			if len(evicted) > 0 {
				log.Printf("📋 Evicted %d idle sessions\n", len(evicted))
			}
			if w.recorder == nil {
				continue
			}
			for i := range evicted {
				if err := w.recorder.Persist(ctx, &evicted[i]); err != nil {
					log.Printf("⚠️  Failed to persist evicted session %s: %v\n", evicted[i].SessionID, err)
				}
			}
		}
	}
}
