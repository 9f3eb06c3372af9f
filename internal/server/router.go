package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/apollo/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/apollo/backend/internal/classroom"
	"github.com/MarcoPoloResearchLab/apollo/backend/internal/records"
	"github.com/MarcoPoloResearchLab/apollo/backend/internal/roster"
	"github.com/MarcoPoloResearchLab/apollo/backend/internal/tasks"
	"github.com/MarcoPoloResearchLab/apollo/backend/internal/users"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	userIDContextKey = "apollo_user_id"
	claimsContextKey = "apollo_session_claims"

	// ClassroomTokenHeader carries the caller's classroom provider access token.
	ClassroomTokenHeader = "X-Classroom-Token"
)

var (
	errMissingSessionValidator = errors.New("session validator dependency required")
	errMissingUserDirectory    = errors.New("user directory dependency required")
	errMissingRosterSyncer     = errors.New("roster sync dependency required")
	errMissingTaskDistributor  = errors.New("task distributor dependency required")
	errMissingRecordQueries    = errors.New("record store dependency required")
)

// SessionValidator authenticates inbound requests.
type SessionValidator interface {
	ValidateRequest(r *http.Request) (auth.SessionClaims, error)
}

// UserDirectory resolves canonical user ids and lists registered students.
type UserDirectory interface {
	ResolveCanonicalUserID(ctx context.Context, claims auth.SessionClaims) (string, error)
	Exists(ctx context.Context, userID string) (bool, error)
	ListStudents(ctx context.Context) ([]users.Identity, error)
}

// RosterSyncer imports a student's classroom roster.
type RosterSyncer interface {
	Sync(ctx context.Context, credential classroom.Credential, studentID records.StudentID) (roster.SyncReport, error)
}

// TaskDistributor fans tasks out to students.
type TaskDistributor interface {
	Distribute(ctx context.Context, recipientIDs []string, template tasks.Template) (tasks.DistributionResult, error)
	DistributeIntervention(ctx context.Context, candidateIDs []string, signals []tasks.UsageSignal) (tasks.InterventionResult, error)
}

// RecordQueries exposes the read and local-authoring surface of the record store.
type RecordQueries interface {
	CreateLocalAssignment(ctx context.Context, input records.LocalAssignmentInput) (records.Assignment, error)
	DeleteAssignment(ctx context.Context, assignmentID string) error
	ListAssignments(ctx context.Context, classID string) ([]records.Assignment, error)
	ListClassStudents(ctx context.Context, classID records.ClassID) ([]string, error)
	ListStudentTasks(ctx context.Context, studentID records.StudentID) ([]records.StudentTask, error)
}

// SyncStatusReader returns the last recorded sync of a student.
type SyncStatusReader interface {
	LastSync(ctx context.Context, studentID string) (roster.SyncStatus, error)
}

// Dependencies wires the HTTP handler. StatusReader is optional.
// AllowedOrigins lists the browser origins that may send credentialed
// requests; when empty no cross-origin credentials are allowed.
type Dependencies struct {
	SessionValidator SessionValidator
	Users            UserDirectory
	RosterSync       RosterSyncer
	Distributor      TaskDistributor
	Records          RecordQueries
	StatusReader     SyncStatusReader
	AllowedOrigins   []string
	Logger           *zap.Logger
}

// NewHTTPHandler builds the gin router serving the API.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.SessionValidator == nil {
		return nil, errMissingSessionValidator
	}
	if deps.Users == nil {
		return nil, errMissingUserDirectory
	}
	if deps.RosterSync == nil {
		return nil, errMissingRosterSyncer
	}
	if deps.Distributor == nil {
		return nil, errMissingTaskDistributor
	}
	if deps.Records == nil {
		return nil, errMissingRecordQueries
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware(deps.AllowedOrigins))

	handler := &httpHandler{
		sessions:     deps.SessionValidator,
		users:        deps.Users,
		rosterSync:   deps.RosterSync,
		distributor:  deps.Distributor,
		records:      deps.Records,
		statusReader: deps.StatusReader,
		logger:       logger,
	}

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.POST("/classroom/sync", handler.handleClassroomSync)
	protected.GET("/classroom/sync/status", handler.handleSyncStatus)
	protected.GET("/assignments", handler.handleListAssignments)
	protected.GET("/students/me/tasks", handler.handleListMyTasks)

	teacher := protected.Group("/")
	teacher.Use(handler.requireRole(auth.RoleTeacher))
	teacher.POST("/assignments", handler.handleCreateAssignment)
	teacher.DELETE("/assignments/:id", handler.handleDeleteAssignment)
	teacher.GET("/classes/:classId/students", handler.handleListClassStudents)
	teacher.GET("/teacher/students", handler.handleListStudents)
	teacher.POST("/teacher/assign-tasks", handler.handleAssignTasks)
	teacher.POST("/teacher/interventions", handler.handleInterventions)

	return router, nil
}

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	config := cors.Config{
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type", ClassroomTokenHeader, "X-TAuth-Tenant"},
		MaxAge:       12 * time.Hour,
	}
	if len(allowedOrigins) == 0 {
		config.AllowAllOrigins = true
		return cors.New(config)
	}
	config.AllowOrigins = allowedOrigins
	config.AllowCredentials = true
	return cors.New(config)
}

type httpHandler struct {
	sessions     SessionValidator
	users        UserDirectory
	rosterSync   RosterSyncer
	distributor  TaskDistributor
	records      RecordQueries
	statusReader SyncStatusReader
	logger       *zap.Logger
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	claims, err := h.sessions.ValidateRequest(c.Request)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredSessionToken) || errors.Is(err, auth.ErrMissingSessionToken) {
			h.logger.Info("session validation failed", zap.Error(err))
		} else {
			h.logger.Warn("session validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	userID, err := h.users.ResolveCanonicalUserID(c.Request.Context(), claims)
	if err != nil {
		h.logger.Error("failed to resolve canonical user", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(userIDContextKey, userID)
	c.Set(claimsContextKey, claims)
	c.Next()
}

func (h *httpHandler) requireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !sessionClaims(c).HasRole(role) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}

func sessionClaims(c *gin.Context) auth.SessionClaims {
	value, ok := c.Get(claimsContextKey)
	if !ok {
		return auth.SessionClaims{}
	}
	claims, _ := value.(auth.SessionClaims)
	return claims
}

// resolveStudentID returns the requested student, defaulting to the actor.
// Acting on behalf of another student requires the teacher role.
func (h *httpHandler) resolveStudentID(c *gin.Context, requested string) (records.StudentID, bool) {
	actorID := c.GetString(userIDContextKey)
	target := strings.TrimSpace(requested)
	if target == "" {
		target = actorID
	}
	studentID, err := records.NewStudentID(target)
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid_student_id", err)
		return "", false
	}
	if studentID.String() != actorID && !sessionClaims(c).HasRole(auth.RoleTeacher) {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return "", false
	}
	return studentID, true
}

func respondError(c *gin.Context, status int, reason string, err error) {
	body := gin.H{"error": reason}
	var serviceErr *records.ServiceError
	if errors.As(err, &serviceErr) {
		body["code"] = serviceErr.Code()
	}
	c.AbortWithStatusJSON(status, body)
}
