package tasks

import (
	"context"

	"github.com/coct-data/service-alerts/app/pipeline"
)

// TaskSchedulerInterface is the task queue used by serve mode and the operator API.
//
//	scheduler, err := NewScheduler(runner, "@every 10m", 1)
//	scheduler.Start()
//	defer scheduler.Stop()
//	scheduler.EnqueueTask(NewRunPipelineTask(runner, TriggerAPI))
type TaskSchedulerInterface interface {
	Start()
	Stop()
	EnqueueTask(task TaskInterface) error
}

// Runner executes pipeline passes.
type Runner interface {
	Run(ctx context.Context) (*pipeline.Report, error)
	Republish(ctx context.Context) (*pipeline.Report, error)
}

var _ Runner = (*pipeline.Pipeline)(nil)
