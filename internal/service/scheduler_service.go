package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/academy-billing-api/internal/models"
	"github.com/noah-isme/academy-billing-api/pkg/jobs"
)

type generationRunner interface {
	Generate(ctx context.Context, year, month int) (*models.GenerationResult, error)
}

// generationPayload is the queued job body for one reference month.
type generationPayload struct {
	Year  int
	Month int
}

// SchedulerService enqueues the monthly generation run automatically.
// Generation is idempotent, so an automatic run racing a manual one is
// harmless: whichever lands second only skips.
type SchedulerService struct {
	generator generationRunner
	queue     *jobs.Queue
	interval  time.Duration
	logger    *zap.Logger
	now       func() time.Time

	mu          sync.Mutex
	lastEnqueue string
	cancel      context.CancelFunc
	done        chan struct{}
}

// NewSchedulerService constructs SchedulerService.
func NewSchedulerService(generator generationRunner, interval time.Duration, logger *zap.Logger) *SchedulerService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = time.Hour
	}
	s := &SchedulerService{
		generator: generator,
		interval:  interval,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
	s.queue = jobs.NewQueue("invoice-generation", s.run, jobs.QueueConfig{
		Workers:    1,
		MaxRetries: 3,
		RetryDelay: time.Minute,
		Logger:     logger,
	})
	return s
}

// Start launches the queue workers and the month-boundary watcher.
func (s *SchedulerService) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	s.queue.Start(ctx)

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.enqueueCurrentMonth()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.enqueueCurrentMonth()
			}
		}
	}()
}

// Stop halts the watcher and drains the queue workers.
func (s *SchedulerService) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.queue.Stop()
}

func (s *SchedulerService) enqueueCurrentMonth() {
	now := s.now()
	period := fmt.Sprintf("%04d-%02d", now.Year(), int(now.Month()))

	s.mu.Lock()
	if s.lastEnqueue == period {
		s.mu.Unlock()
		return
	}
	s.lastEnqueue = period
	s.mu.Unlock()

	err := s.queue.Enqueue(jobs.Job{
		ID:      "generate-" + period,
		Type:    "invoice-generation",
		Payload: generationPayload{Year: now.Year(), Month: int(now.Month())},
	})
	if err != nil {
		s.logger.Warn("failed to enqueue generation run", zap.String("period", period), zap.Error(err))
		s.mu.Lock()
		s.lastEnqueue = ""
		s.mu.Unlock()
	}
}

func (s *SchedulerService) run(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(generationPayload)
	if !ok {
		return fmt.Errorf("unexpected payload for job %s", job.ID)
	}
	result, err := s.generator.Generate(ctx, payload.Year, payload.Month)
	if err != nil {
		return err
	}
	s.logger.Info("scheduled generation run finished",
		zap.Int("year", payload.Year),
		zap.Int("month", payload.Month),
		zap.Int("created", result.Created),
		zap.Int("skipped", result.Skipped),
	)
	return nil
}
