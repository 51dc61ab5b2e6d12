package jobs

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"
)

// Manager enqueues background tasks: horoscope precompute runs and the
// periodic stale-record cleanup.
type Manager interface {
	Enqueue(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

type manager struct {
	client *asynq.Client
	log    *slog.Logger
}

// NewManager builds a Manager backed by an asynq client.
func NewManager(redisOpt asynq.RedisConnOpt, log *slog.Logger) Manager {
	client := asynq.NewClient(redisOpt)

	return &manager{
		client: client,
		log:    log,
	}
}

func (m *manager) Enqueue(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	info, err := m.client.EnqueueContext(ctx, task, opts...)
	if err != nil {
		return nil, err
	}

	if m.log != nil {
		m.log.Debug("task enqueued",
			slog.String("type", task.Type()),
			slog.String("queue", info.Queue),
		)
	}

	return info, nil
}

func (m *manager) Close() error {
	return m.client.Close()
}
