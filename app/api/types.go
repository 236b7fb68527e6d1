package api

import (
	"context"
	"net/http"

	"github.com/coct-data/service-alerts/app/pipeline"
	"github.com/coct-data/service-alerts/app/publish"
	"github.com/coct-data/service-alerts/app/snapshot"
	"github.com/coct-data/service-alerts/app/tasks"
)

type AlertRepository interface {
	Get(ctx context.Context, id int64) (*snapshot.Entry, error)
	Count(ctx context.Context) (int, error)
}

var _ AlertRepository = (*snapshot.Store)(nil)

type ArtifactReader interface {
	Read(path string) ([]byte, error)
}

var _ ArtifactReader = (*publish.FileStore)(nil)

type ReportSource interface {
	LastReport() *pipeline.Report
}

var _ ReportSource = (*pipeline.Pipeline)(nil)

type Handler struct {
	alertRepo AlertRepository
	artifacts ArtifactReader
	reports   ReportSource
	runner    tasks.Runner
	scheduler tasks.TaskSchedulerInterface
	metrics   http.Handler
}
