package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/MarcoPoloResearchLab/apollo/backend/internal/records"
	"github.com/MarcoPoloResearchLab/apollo/backend/internal/tasks"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type taskPayload struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	DueDate     string `json:"dueDate"`
	Priority    string `json:"priority"`
	Subject     string `json:"subject"`
}

func (p taskPayload) template() tasks.Template {
	return tasks.Template{
		Title:       p.Title,
		Description: p.Description,
		DueDate:     p.DueDate,
		Priority:    p.Priority,
		Subject:     p.Subject,
	}
}

func newTaskPayload(template tasks.Template) taskPayload {
	return taskPayload{
		Title:       template.Title,
		Description: template.Description,
		DueDate:     template.DueDate,
		Priority:    template.Priority,
		Subject:     template.Subject,
	}
}

type assignTasksRequestPayload struct {
	StudentIDs []string    `json:"studentIds"`
	Task       taskPayload `json:"task"`
}

type distributionResponsePayload struct {
	RecipientCount int          `json:"recipientCount"`
	BatchID        string       `json:"batchId"`
	Task           *taskPayload `json:"task,omitempty"`
}

type usageSignalPayload struct {
	StudentID     string  `json:"studentId"`
	Tool          string  `json:"tool"`
	Topic         string  `json:"topic"`
	StruggleScore float64 `json:"struggleScore"`
}

type interventionRequestPayload struct {
	CandidateIDs []string             `json:"candidateIds"`
	Signals      []usageSignalPayload `json:"signals"`
}

type studentTaskPayload struct {
	BatchID     string `json:"batchId"`
	Title       string `json:"title"`
	Description string `json:"description"`
	DueDate     string `json:"dueDate"`
	Priority    string `json:"priority"`
	Subject     string `json:"subject"`
	CreatedAt   string `json:"createdAt"`
}

func (h *httpHandler) handleAssignTasks(c *gin.Context) {
	var request assignTasksRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	result, err := h.distributor.Distribute(c.Request.Context(), request.StudentIDs, request.Task.template())
	if err != nil {
		h.respondDistributionError(c, result, err)
		return
	}

	c.JSON(http.StatusOK, distributionResponsePayload{
		RecipientCount: result.RecipientCount,
		BatchID:        result.BatchID,
	})
}

func (h *httpHandler) handleInterventions(c *gin.Context) {
	var request interventionRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	signals := make([]tasks.UsageSignal, 0, len(request.Signals))
	for _, signal := range request.Signals {
		signals = append(signals, tasks.UsageSignal{
			StudentID:     signal.StudentID,
			Tool:          signal.Tool,
			Topic:         signal.Topic,
			StruggleScore: signal.StruggleScore,
		})
	}

	result, err := h.distributor.DistributeIntervention(c.Request.Context(), request.CandidateIDs, signals)
	if err != nil {
		if errors.Is(err, tasks.ErrAdvisorUnavailable) {
			h.logger.Warn("intervention advisor unavailable", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "advisor_unavailable"})
			return
		}
		h.respondDistributionError(c, result.DistributionResult, err)
		return
	}

	task := newTaskPayload(result.Template)
	c.JSON(http.StatusOK, distributionResponsePayload{
		RecipientCount: result.RecipientCount,
		BatchID:        result.BatchID,
		Task:           &task,
	})
}

func (h *httpHandler) respondDistributionError(c *gin.Context, result tasks.DistributionResult, err error) {
	if errors.Is(err, tasks.ErrInvalidDistribution) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_distribution"})
		return
	}
	h.logger.Error("task distribution failed",
		zap.String("batch_id", result.BatchID),
		zap.Int("written", result.RecipientCount),
		zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{
		"error":          "distribution_incomplete",
		"recipientCount": result.RecipientCount,
		"batchId":        result.BatchID,
	})
}

func (h *httpHandler) handleListMyTasks(c *gin.Context) {
	studentID, err := records.NewStudentID(c.GetString(userIDContextKey))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	studentTasks, err := h.records.ListStudentTasks(c.Request.Context(), studentID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list_failed"})
		return
	}

	response := make([]studentTaskPayload, 0, len(studentTasks))
	for _, task := range studentTasks {
		response = append(response, studentTaskPayload{
			BatchID:     task.BatchID,
			Title:       task.Title,
			Description: task.Description,
			DueDate:     task.DueDate,
			Priority:    task.Priority,
			Subject:     task.Subject,
			CreatedAt:   task.CreatedAt().Format(time.RFC3339),
		})
	}
	c.JSON(http.StatusOK, gin.H{"tasks": response})
}
