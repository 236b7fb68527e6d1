package tasks

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/coct-data/service-alerts/app/pipeline"
)

type RunPipelineTask struct {
	Task
	runner Runner
}

func NewRunPipelineTask(runner Runner, trigger Trigger) *RunPipelineTask {
	return &RunPipelineTask{
		Task:   NewTask(TaskTypeRunPipeline, trigger),
		runner: runner,
	}
}

func (t *RunPipelineTask) Execute(ctx context.Context) error {
	return execute(ctx, &t.Task, t.runner.Run)
}

type RepublishTask struct {
	Task
	runner Runner
}

func NewRepublishTask(runner Runner, trigger Trigger) *RepublishTask {
	return &RepublishTask{
		Task:   NewTask(TaskTypeRepublish, trigger),
		runner: runner,
	}
}

func (t *RepublishTask) Execute(ctx context.Context) error {
	return execute(ctx, &t.Task, t.runner.Republish)
}

func execute(ctx context.Context, t *Task, pass func(context.Context) (*pipeline.Report, error)) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	report, err := pass(ctx)
	if pipeline.Refused(err) {
		// Another run holds the lease and will publish the same state.
		slog.Info("Task skipped", "type", t.GetType(), "trigger", t.GetTrigger(), "reason", err)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to %s: %w", t.GetType(), err)
	}

	slog.Info("Task completed",
		"type", t.GetType(),
		"trigger", t.GetTrigger(),
		"run_id", report.RunID,
		"duration", t.GetDuration(),
		"result", report.Result(),
		"has_changes", report.HasChanges,
		"written", len(report.Artifacts.Written))

	return nil
}
