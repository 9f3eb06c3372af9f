package server

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MarcoPoloResearchLab/apollo/backend/internal/auth"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestAuthorizeRequestLogsExpiredSessionAtInfoLevel(t *testing.T) {
	gin.SetMode(gin.TestMode)
	recorder := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(recorder)
	request := httptest.NewRequest(http.MethodGet, "/assignments", http.NoBody)
	request.Header.Set("Authorization", "Bearer expired-token")
	ctx.Request = request

	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)
	handler := &httpHandler{
		sessions: stubSessionValidator{
			validateErr: auth.ErrExpiredSessionToken,
		},
		users:  &stubUserDirectory{},
		logger: logger,
	}

	handler.authorizeRequest(ctx)

	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status code: got %d, want %d", recorder.Code, http.StatusUnauthorized)
	}
	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected exactly one log entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry.Level != zapcore.InfoLevel {
		t.Fatalf("expected info level for expired session, got %s", entry.Level)
	}
	if entry.Message != "session validation failed" {
		t.Fatalf("unexpected log message: %q", entry.Message)
	}
	hasExpired := false
	for _, field := range entry.Context {
		if field.Type == zapcore.ErrorType && errors.Is(field.Interface.(error), auth.ErrExpiredSessionToken) {
			hasExpired = true
			break
		}
	}
	if !hasExpired {
		t.Fatalf("expected expired session error context, got %v", entry.Context)
	}
}

func TestAuthorizeRequestLogsUnexpectedSessionErrorAtWarnLevel(t *testing.T) {
	gin.SetMode(gin.TestMode)
	recorder := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(recorder)
	request := httptest.NewRequest(http.MethodGet, "/assignments", http.NoBody)
	request.Header.Set("Authorization", "Bearer invalid-token")
	ctx.Request = request

	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)
	handler := &httpHandler{
		sessions: stubSessionValidator{
			validateErr: errors.New("signature mismatch"),
		},
		users:  &stubUserDirectory{},
		logger: logger,
	}

	handler.authorizeRequest(ctx)

	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status code: got %d, want %d", recorder.Code, http.StatusUnauthorized)
	}
	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected exactly one log entry, got %d", len(entries))
	}
	if entries[0].Level != zapcore.WarnLevel {
		t.Fatalf("expected warn level for unexpected error, got %s", entries[0].Level)
	}
}

func TestAuthorizeRequestStoresCanonicalUser(t *testing.T) {
	gin.SetMode(gin.TestMode)
	recorder := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(recorder)
	ctx.Request = httptest.NewRequest(http.MethodGet, "/assignments", http.NoBody)

	handler := &httpHandler{
		sessions: stubSessionValidator{claims: auth.SessionClaims{UserID: "student-9", UserRoles: []string{auth.RoleStudent}}},
		users:    &stubUserDirectory{},
		logger:   zap.NewNop(),
	}

	handler.authorizeRequest(ctx)

	if ctx.IsAborted() {
		t.Fatalf("expected request to proceed, got status %d", recorder.Code)
	}
	if got := ctx.GetString(userIDContextKey); got != "student-9" {
		t.Fatalf("expected canonical user id in context, got %q", got)
	}
	if !sessionClaims(ctx).HasRole(auth.RoleStudent) {
		t.Fatalf("expected session claims in context")
	}
}

func TestTeacherRoutesRequireTeacherRole(t *testing.T) {
	gin.SetMode(gin.TestMode)
	server := newTestServer(t, auth.RoleStudent)

	routes := []struct {
		method string
		path   string
	}{
		{method: http.MethodPost, path: "/teacher/assign-tasks"},
		{method: http.MethodPost, path: "/teacher/interventions"},
		{method: http.MethodGet, path: "/teacher/students"},
		{method: http.MethodGet, path: "/classes/c1/students"},
		{method: http.MethodPost, path: "/assignments"},
		{method: http.MethodDelete, path: "/assignments/local:1"},
	}
	for _, route := range routes {
		recorder := performRequest(server.handler, route.method, route.path, `{}`, nil)
		if recorder.Code != http.StatusForbidden {
			t.Fatalf("%s %s: expected 403, got %d", route.method, route.path, recorder.Code)
		}
	}
}

func TestNewHTTPHandlerRequiresDependencies(t *testing.T) {
	if _, err := NewHTTPHandler(Dependencies{}); !errors.Is(err, errMissingSessionValidator) {
		t.Fatalf("expected missing session validator error, got %v", err)
	}
	if _, err := NewHTTPHandler(Dependencies{SessionValidator: stubSessionValidator{}}); !errors.Is(err, errMissingUserDirectory) {
		t.Fatalf("expected missing user directory error, got %v", err)
	}
}
