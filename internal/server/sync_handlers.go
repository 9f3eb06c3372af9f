package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/MarcoPoloResearchLab/apollo/backend/internal/cache"
	"github.com/MarcoPoloResearchLab/apollo/backend/internal/classroom"
	"github.com/MarcoPoloResearchLab/apollo/backend/internal/roster"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type syncRequestPayload struct {
	StudentID string `json:"studentId"`
}

type syncResponsePayload struct {
	Success     bool   `json:"success"`
	SyncedCount int    `json:"syncedCount"`
	Error       string `json:"error,omitempty"`
	CourseID    string `json:"courseId,omitempty"`
}

type syncStatusPayload struct {
	StudentID        string `json:"studentId"`
	Success          bool   `json:"success"`
	SyncedCount      int    `json:"syncedCount"`
	CoursesProcessed int    `json:"coursesProcessed"`
	FailedCourseID   string `json:"failedCourseId,omitempty"`
	Error            string `json:"error,omitempty"`
	FinishedAt       string `json:"finishedAt"`
}

func (h *httpHandler) handleClassroomSync(c *gin.Context) {
	var request syncRequestPayload
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&request); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
			return
		}
	}

	credential, err := classroom.NewCredential(c.GetHeader(ClassroomTokenHeader))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing_classroom_token"})
		return
	}

	studentID, ok := h.resolveStudentID(c, request.StudentID)
	if !ok {
		return
	}

	exists, err := h.users.Exists(c.Request.Context(), studentID.String())
	if err != nil {
		h.logger.Error("failed to look up student", zap.String("student_id", studentID.String()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "sync_failed"})
		return
	}
	if !exists {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown_student"})
		return
	}

	report, err := h.rosterSync.Sync(c.Request.Context(), credential, studentID)
	if err != nil {
		var failed *roster.SyncFailedError
		switch {
		case errors.Is(err, classroom.ErrAuthExpired):
			c.JSON(http.StatusUnauthorized, syncResponsePayload{
				SyncedCount: report.SyncedCount,
				Error:       "auth_expired",
			})
		case errors.As(err, &failed):
			c.JSON(http.StatusBadGateway, syncResponsePayload{
				SyncedCount: failed.SyncedCount,
				Error:       "sync_failed",
				CourseID:    failed.CourseID,
			})
		default:
			c.JSON(http.StatusInternalServerError, syncResponsePayload{
				SyncedCount: report.SyncedCount,
				Error:       "sync_failed",
			})
		}
		return
	}

	c.JSON(http.StatusOK, syncResponsePayload{Success: true, SyncedCount: report.SyncedCount})
}

func (h *httpHandler) handleSyncStatus(c *gin.Context) {
	studentID, ok := h.resolveStudentID(c, c.Query("studentId"))
	if !ok {
		return
	}
	if h.statusReader == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "sync_status_unavailable"})
		return
	}

	status, err := h.statusReader.LastSync(c.Request.Context(), studentID.String())
	if err != nil {
		if errors.Is(err, cache.ErrStatusNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "sync_status_not_found"})
			return
		}
		h.logger.Warn("failed to read sync status", zap.String("student_id", studentID.String()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "sync_status_unavailable"})
		return
	}

	c.JSON(http.StatusOK, syncStatusPayload{
		StudentID:        status.StudentID,
		Success:          status.Success,
		SyncedCount:      status.SyncedCount,
		CoursesProcessed: status.CoursesProcessed,
		FailedCourseID:   status.FailedCourseID,
		Error:            status.Error,
		FinishedAt:       status.FinishedAt.UTC().Format(time.RFC3339),
	})
}
