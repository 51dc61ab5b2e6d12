package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	TaskTypeHoroscopePrecompute = "horoscope:precompute"
	TaskTypeCleanupRecords      = "records:cleanup"
)

const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

type HoroscopePrecomputePayload struct {
	Day string `json:"day"`
}

type CleanupRecordsPayload struct {
	OlderThan time.Duration `json:"older_than"`
}

func NewHoroscopePrecomputeTask(day string) (*asynq.Task, error) {
	payload, err := json.Marshal(HoroscopePrecomputePayload{Day: day})
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(TaskTypeHoroscopePrecompute, payload, asynq.Queue(QueueDefault)), nil
}

func NewCleanupRecordsTask(olderThan time.Duration) (*asynq.Task, error) {
	payload, err := json.Marshal(CleanupRecordsPayload{OlderThan: olderThan})
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(TaskTypeCleanupRecords, payload, asynq.Queue(QueueLow)), nil
}
