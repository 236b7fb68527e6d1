package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/coct-data/service-alerts/app/cfg"
	"github.com/coct-data/service-alerts/app/pipeline"
	"github.com/coct-data/service-alerts/app/publish"
	"github.com/coct-data/service-alerts/app/tasks"
)

// NewHandler wires the HTTP handlers. artifacts, scheduler and metrics may be nil; the
// matching routes then answer 404 or 503.
func NewHandler(alertRepo AlertRepository, artifacts ArtifactReader, reports ReportSource,
	runner tasks.Runner, scheduler tasks.TaskSchedulerInterface, metrics http.Handler) *Handler {
	return &Handler{
		alertRepo: alertRepo,
		artifacts: artifacts,
		reports:   reports,
		runner:    runner,
		scheduler: scheduler,
		metrics:   metrics,
	}
}

func (h *Handler) GetArtifact(c *gin.Context) {
	path := strings.TrimPrefix(c.Param("path"), "/")
	if path == "" || h.artifacts == nil {
		c.Status(http.StatusNotFound)
		return
	}

	data, err := h.artifacts.Read(path)
	if err != nil {
		slog.Error("Artifact read error", "path", path, "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	if data == nil {
		c.Status(http.StatusNotFound)
		return
	}

	c.Header("Cache-Control", "no-cache")
	c.Data(http.StatusOK, "application/json; charset=utf-8", data)
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := map[string]interface{}{
		"timestamp": time.Now().In(time.Local).Format(time.RFC3339),
		"version":   cfg.GetVersion(),
	}

	count, err := h.alertRepo.Count(c.Request.Context())
	if err != nil {
		slog.Error("Database error", "operation", "count_entries", "error", err)
		health["status"] = "unavailable"
		c.JSON(http.StatusServiceUnavailable, health)
		return
	}

	health["status"] = "ok"
	health["snapshot_entries"] = count

	if report := h.reports.LastReport(); report != nil {
		health["last_run"] = report.FinishedAt.Format(time.RFC3339)
		health["last_result"] = report.Result()
	}

	c.JSON(http.StatusOK, health)
}

func (h *Handler) GetStats(c *gin.Context) {
	report := h.reports.LastReport()
	if report == nil {
		c.JSON(http.StatusOK, gin.H{"last_run": nil})
		return
	}

	c.JSON(http.StatusOK, gin.H{"last_run": report.Summary()})
}

func (h *Handler) GetMetrics(c *gin.Context) {
	if h.metrics == nil {
		c.Status(http.StatusNotFound)
		return
	}
	h.metrics.ServeHTTP(c.Writer, c.Request)
}

func (h *Handler) APIGetAlert(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid alert id"})
		return
	}

	entry, err := h.alertRepo.Get(c.Request.Context(), id)
	if err != nil {
		slog.Error("Database error", "operation", "get_entry", "id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	if entry == nil || entry.Alert == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Alert not found"})
		return
	}

	data, err := publish.Project(publish.Latest, entry.Alert)
	if err != nil {
		slog.Error("Alert projection error", "id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to render alert"})
		return
	}

	c.Header("X-Content-Hash", entry.ContentHash)
	c.Header("X-First-Seen", entry.FirstSeenAt.Format(time.RFC3339))
	c.Header("X-Last-Seen", entry.LastSeenAt.Format(time.RFC3339))
	c.Data(http.StatusOK, "application/json; charset=utf-8", data)
}

func (h *Handler) APITriggerRun(c *gin.Context) {
	h.enqueue(c, tasks.NewRunPipelineTask(h.runner, tasks.TriggerAPI))
}

func (h *Handler) APITriggerRepublish(c *gin.Context) {
	h.enqueue(c, tasks.NewRepublishTask(h.runner, tasks.TriggerAPI))
}

func (h *Handler) enqueue(c *gin.Context, task tasks.TaskInterface) {
	if h.scheduler == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Scheduler not running"})
		return
	}

	if err := h.scheduler.EnqueueTask(task); err != nil {
		slog.Error("Error enqueueing task", "type", task.GetType(), "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "Failed to enqueue task",
			"details": err.Error(),
		})
		return
	}

	response := gin.H{
		"success": true,
		"message": "Task enqueued successfully",
		"task": gin.H{
			"id":   task.GetID(),
			"type": task.GetType(),
		},
	}

	if report := h.reports.LastReport(); report != nil && report.Kind == pipeline.KindRun {
		response["previous_run_id"] = report.RunID
	}

	c.JSON(http.StatusAccepted, response)
}
