package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskReportWarmup pre-builds dashboard reports so the first morning
	// request hits a warm cache.
	TaskReportWarmup = "report:warmup"
)

// ReportWarmupPayload selects which granularities to pre-build.
type ReportWarmupPayload struct {
	Granularities []string `json:"granularities"`
}

// NewReportWarmupTask constructs an Asynq task for cache warmup.
func NewReportWarmupTask(granularities ...string) (*asynq.Task, error) {
	data, err := json.Marshal(ReportWarmupPayload{Granularities: granularities})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReportWarmup, data), nil
}
