package jobs

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/gofiber/fiber/v2"
)

type Handler struct {
	service *Service
}

// JobResponse is a wrapper for the Job struct to include API links
type JobResponse struct {
	*Job
	Links map[string]string `json:"_links"`
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func newJobResponse(baseURL string, job *Job) *JobResponse {
	return &JobResponse{
		Job: job,
		Links: map[string]string{
			"self":   fmt.Sprintf("%s/jobs/%s", baseURL, job.ID),
			"logs":   fmt.Sprintf("%s/jobs/%s/logs", baseURL, job.ID),
			"cancel": fmt.Sprintf("%s/jobs/%s/cancel", baseURL, job.ID),
		},
	}
}

func (h *Handler) HandleJobStatus(c *fiber.Ctx) error {
	job, exists := h.service.GetJob(c.Params("id"))
	if !exists {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "job not found"})
	}
	return c.JSON(newJobResponse(c.BaseURL(), job))
}

func (h *Handler) HandleJobLogs(c *fiber.Ctx) error {
	job, exists := h.service.GetJob(c.Params("id"))
	if !exists {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "job not found"})
	}

	if job.LogPath == "" {
		return c.SendString("No logs for this job.")
	}

	logContent, err := os.ReadFile(job.LogPath)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to read log file"})
	}
	c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)
	return c.Send(logContent)
}

// HandleJobList lists jobs newest first, optionally filtered by ?type= and
// ?status=.
func (h *Handler) HandleJobList(c *fiber.Ctx) error {
	jobType, status := c.Query("type"), JobStatus(c.Query("status"))
	baseURL := c.BaseURL()
	responses := []*JobResponse{}
	for _, job := range h.service.GetJobs() {
		if (jobType != "" && job.Type != jobType) || (status != "" && job.Status != status) {
			continue
		}
		responses = append(responses, newJobResponse(baseURL, job))
	}
	return c.JSON(responses)
}

func (h *Handler) HandleCancelJob(c *fiber.Ctx) error {
	jobID := c.Params("id")
	if err := h.service.CancelJob(jobID); err != nil {
		if errors.Is(err, ErrJobNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
		}
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	}

	job, _ := h.service.GetJob(jobID)
	return c.JSON(newJobResponse(c.BaseURL(), job))
}

// HandleCleanupJobs forgets finished jobs, POST /jobs/cleanup?older_than=24h.
func (h *Handler) HandleCleanupJobs(c *fiber.Ctx) error {
	maxAge := 24 * time.Hour
	if v := c.Query("older_than"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "older_than must be a duration like 24h"})
		}
		maxAge = d
	}
	removed := h.service.CleanupOldJobs(maxAge)
	return c.JSON(fiber.Map{"status": "cleanup completed", "removed": removed})
}
