package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

type Scheduler interface {
	RegisterTasks() error
	Run()
	Shutdown()
}

type scheduler struct {
	asynqScheduler *asynq.Scheduler
	horoscopeCron  string
	log            *slog.Logger
}

// NewScheduler builds a cron scheduler; horoscopeCron controls when the
// daily precompute fires.
func NewScheduler(redisOpt asynq.RedisConnOpt, horoscopeCron string, log *slog.Logger) Scheduler {
	if horoscopeCron == "" {
		horoscopeCron = "0 5 * * *"
	}

	return &scheduler{
		asynqScheduler: asynq.NewScheduler(redisOpt, nil),
		horoscopeCron:  horoscopeCron,
		log:            log,
	}
}

func (s *scheduler) RegisterTasks() error {
	precompute, err := NewHoroscopePrecomputeTask(time.Now().UTC().Format("2006-01-02"))
	if err != nil {
		return err
	}

	if _, err := s.asynqScheduler.Register(s.horoscopeCron, precompute); err != nil {
		return err
	}

	cleanup, err := NewCleanupRecordsTask(25 * time.Hour)
	if err != nil {
		return err
	}

	if _, err := s.asynqScheduler.Register("30 * * * *", cleanup); err != nil {
		return err
	}

	if s.log != nil {
		s.log.InfoContext(context.Background(), "scheduler: registered precompute and cleanup tasks")
	}

	return nil
}

func (s *scheduler) Run() {
	if s.log != nil {
		s.log.InfoContext(context.Background(), "scheduler: starting")
	}

	go func() {
		if err := s.asynqScheduler.Run(); err != nil && s.log != nil {
			s.log.ErrorContext(context.Background(), "scheduler: run failed", "error", err)
		}
	}()
}

func (s *scheduler) Shutdown() {
	if s.log != nil {
		s.log.InfoContext(context.Background(), "scheduler: shutting down")
	}

	s.asynqScheduler.Shutdown()
}
