package handlers

import (
	"errors"
	"log/slog"
	"time"

	"github.com/ahmetcoskunkizilkaya/nexusart/internal/apperr"
	"github.com/ahmetcoskunkizilkaya/nexusart/internal/dto"
	"github.com/ahmetcoskunkizilkaya/nexusart/internal/ledger"
	"github.com/ahmetcoskunkizilkaya/nexusart/internal/middleware"
	"github.com/ahmetcoskunkizilkaya/nexusart/internal/services"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const dateLayout = "2006-01-02"

type JobHandler struct {
	jobService *services.JobService
	validator  *validator.Validate
}

func NewJobHandler(jobService *services.JobService) *JobHandler {
	return &JobHandler{jobService: jobService, validator: validator.New()}
}

func (h *JobHandler) Create(c *fiber.Ctx) error {
	accountID, err := middleware.GetAccountID(c)
	if err != nil {
		return unauthorized(c)
	}

	var req dto.CreateJobRequest
	if err := c.BodyParser(&req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if err := h.validator.Struct(req); err != nil {
		return validationError(c, err)
	}

	job, err := h.jobService.CreateJob(c.UserContext(), accountID, req.Prompt, req.Style)
	if err != nil {
		switch {
		case errors.Is(err, apperr.ErrQuotaExceeded):
			return errorJSON(c, fiber.StatusPaymentRequired, "No credits remaining")
		case errors.Is(err, ledger.ErrAccountNotFound):
			return errorJSON(c, fiber.StatusNotFound, "Account not found")
		}
		slog.Error("create job failed", "account_id", accountID.String(), "error", err)
		return errorJSON(c, fiber.StatusInternalServerError, "Failed to create job")
	}

	return c.Status(fiber.StatusAccepted).JSON(job)
}

func (h *JobHandler) Get(c *fiber.Ctx) error {
	accountID, err := middleware.GetAccountID(c)
	if err != nil {
		return unauthorized(c)
	}
	jobID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "Invalid job id")
	}

	job, err := h.jobService.GetJob(accountID, jobID)
	if errors.Is(err, services.ErrJobNotFound) {
		return errorJSON(c, fiber.StatusNotFound, "Job not found")
	}
	if err != nil {
		return errorJSON(c, fiber.StatusInternalServerError, "Failed to load job")
	}
	return c.JSON(job)
}

// List supports status, start_date/end_date (inclusive days), search, page and limit.
func (h *JobHandler) List(c *fiber.Ctx) error {
	accountID, err := middleware.GetAccountID(c)
	if err != nil {
		return unauthorized(c)
	}

	var q dto.ListJobsQuery
	if err := c.QueryParser(&q); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "Invalid query parameters")
	}
	if err := h.validator.Struct(q); err != nil {
		return validationError(c, err)
	}

	filter := services.JobFilter{
		Status: q.Status,
		Search: q.Search,
		Page:   q.Page,
		Limit:  q.Limit,
	}
	if q.Start != "" {
		start, _ := time.Parse(dateLayout, q.Start)
		filter.Start = &start
	}
	if q.End != "" {
		end, _ := time.Parse(dateLayout, q.End)
		end = end.AddDate(0, 0, 1)
		filter.End = &end
	}

	page, err := h.jobService.ListJobs(accountID, filter)
	if err != nil {
		slog.Error("list jobs failed", "account_id", accountID.String(), "error", err)
		return errorJSON(c, fiber.StatusInternalServerError, "Failed to list jobs")
	}

	return c.JSON(dto.JobListResponse{
		Jobs:       page.Jobs,
		Total:      page.Total,
		Page:       page.Page,
		Limit:      page.Limit,
		TotalPages: page.TotalPages,
	})
}
