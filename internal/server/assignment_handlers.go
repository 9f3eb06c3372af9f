package server

import (
	"errors"
	"net/http"

	"github.com/MarcoPoloResearchLab/apollo/backend/internal/records"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type assignmentPayload struct {
	ID          string `json:"id"`
	ClassID     string `json:"classId"`
	Title       string `json:"title"`
	Description string `json:"description"`
	DueDate     string `json:"dueDate"`
	Subject     string `json:"subject"`
	Imported    bool   `json:"imported"`
}

func newAssignmentPayload(assignment records.Assignment) assignmentPayload {
	return assignmentPayload{
		ID:          assignment.AssignmentID,
		ClassID:     assignment.ClassID,
		Title:       assignment.Title,
		Description: assignment.Description,
		DueDate:     assignment.DueDate,
		Subject:     assignment.Subject,
		Imported:    records.IsImportedAssignmentID(assignment.AssignmentID),
	}
}

type createAssignmentRequestPayload struct {
	ClassID     string `json:"classId"`
	Title       string `json:"title"`
	Description string `json:"description"`
	DueDate     string `json:"dueDate"`
	Subject     string `json:"subject"`
}

type studentPayload struct {
	ID          string `json:"id"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
}

func (h *httpHandler) handleListAssignments(c *gin.Context) {
	assignments, err := h.records.ListAssignments(c.Request.Context(), c.Query("classId"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list_failed"})
		return
	}
	response := make([]assignmentPayload, 0, len(assignments))
	for _, assignment := range assignments {
		response = append(response, newAssignmentPayload(assignment))
	}
	c.JSON(http.StatusOK, gin.H{"assignments": response})
}

func (h *httpHandler) handleCreateAssignment(c *gin.Context) {
	var request createAssignmentRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	assignment, err := h.records.CreateLocalAssignment(c.Request.Context(), records.LocalAssignmentInput{
		ClassID:     request.ClassID,
		Title:       request.Title,
		Description: request.Description,
		DueDate:     request.DueDate,
		Subject:     request.Subject,
	})
	if err != nil {
		if errors.Is(err, records.ErrInvalidAssignment) || errors.Is(err, records.ErrInvalidClassID) {
			respondError(c, http.StatusBadRequest, "invalid_assignment", err)
			return
		}
		respondError(c, http.StatusInternalServerError, "create_failed", err)
		return
	}

	c.JSON(http.StatusCreated, newAssignmentPayload(assignment))
}

func (h *httpHandler) handleDeleteAssignment(c *gin.Context) {
	err := h.records.DeleteAssignment(c.Request.Context(), c.Param("id"))
	switch {
	case err == nil:
		c.Status(http.StatusNoContent)
	case errors.Is(err, records.ErrImportedAssignment):
		respondError(c, http.StatusConflict, "imported_assignment", err)
	case errors.Is(err, records.ErrAssignmentNotFound):
		respondError(c, http.StatusNotFound, "assignment_not_found", err)
	case errors.Is(err, records.ErrInvalidAssignmentID):
		respondError(c, http.StatusBadRequest, "invalid_assignment_id", err)
	default:
		h.logger.Error("failed to delete assignment", zap.String("assignment_id", c.Param("id")), zap.Error(err))
		respondError(c, http.StatusInternalServerError, "delete_failed", err)
	}
}

func (h *httpHandler) handleListClassStudents(c *gin.Context) {
	classID, err := records.NewClassID(c.Param("classId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_class_id"})
		return
	}
	studentIDs, err := h.records.ListClassStudents(c.Request.Context(), classID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list_failed"})
		return
	}
	if studentIDs == nil {
		studentIDs = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"classId": classID.String(), "studentIds": studentIDs})
}

func (h *httpHandler) handleListStudents(c *gin.Context) {
	identities, err := h.users.ListStudents(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to list students", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list_failed"})
		return
	}
	response := make([]studentPayload, 0, len(identities))
	for _, identity := range identities {
		response = append(response, studentPayload{
			ID:          identity.UserID,
			Email:       identity.Email,
			DisplayName: identity.DisplayName,
		})
	}
	c.JSON(http.StatusOK, gin.H{"students": response})
}
