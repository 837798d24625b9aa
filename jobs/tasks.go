package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskExpirySweep physically deactivates expired assignments and
	// overrides. Expiry is always evaluated lazily at decision time; the
	// sweep only keeps the tables tidy.
	TaskExpirySweep = "authz:expiry_sweep"
)

// ExpirySweepPayload bounds one sweep run.
type ExpirySweepPayload struct {
	// BatchSize limits rows touched per table per run.
	BatchSize int `json:"batchSize"`
}

// NewExpirySweepTask constructs an Asynq task.
func NewExpirySweepTask(payload ExpirySweepPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskExpirySweep, data), nil
}
