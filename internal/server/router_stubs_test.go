package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/MarcoPoloResearchLab/apollo/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/apollo/backend/internal/cache"
	"github.com/MarcoPoloResearchLab/apollo/backend/internal/classroom"
	"github.com/MarcoPoloResearchLab/apollo/backend/internal/records"
	"github.com/MarcoPoloResearchLab/apollo/backend/internal/roster"
	"github.com/MarcoPoloResearchLab/apollo/backend/internal/tasks"
	"github.com/MarcoPoloResearchLab/apollo/backend/internal/users"
)

type stubSessionValidator struct {
	claims      auth.SessionClaims
	validateErr error
}

func (s stubSessionValidator) ValidateRequest(*http.Request) (auth.SessionClaims, error) {
	if s.validateErr != nil {
		return auth.SessionClaims{}, s.validateErr
	}
	return s.claims, nil
}

type stubUserDirectory struct {
	known    map[string]bool
	students []users.Identity
}

func (s *stubUserDirectory) ResolveCanonicalUserID(_ context.Context, claims auth.SessionClaims) (string, error) {
	if strings.TrimSpace(claims.UserID) == "" {
		return "", errors.New("missing user id")
	}
	return claims.UserID, nil
}

func (s *stubUserDirectory) Exists(_ context.Context, userID string) (bool, error) {
	return s.known[userID], nil
}

func (s *stubUserDirectory) ListStudents(context.Context) ([]users.Identity, error) {
	return s.students, nil
}

type syncCall struct {
	token     string
	studentID records.StudentID
}

type stubRosterSyncer struct {
	report roster.SyncReport
	err    error
	calls  []syncCall
}

func (s *stubRosterSyncer) Sync(_ context.Context, credential classroom.Credential, studentID records.StudentID) (roster.SyncReport, error) {
	s.calls = append(s.calls, syncCall{token: credential.AccessToken(), studentID: studentID})
	return s.report, s.err
}

type stubDistributor struct {
	result       tasks.DistributionResult
	intervention tasks.InterventionResult
	err          error
	recipients   []string
	template     tasks.Template
	signals      []tasks.UsageSignal
}

func (s *stubDistributor) Distribute(_ context.Context, recipientIDs []string, template tasks.Template) (tasks.DistributionResult, error) {
	s.recipients = recipientIDs
	s.template = template
	return s.result, s.err
}

func (s *stubDistributor) DistributeIntervention(_ context.Context, candidateIDs []string, signals []tasks.UsageSignal) (tasks.InterventionResult, error) {
	s.recipients = candidateIDs
	s.signals = signals
	return s.intervention, s.err
}

type stubRecordQueries struct {
	assignments   []records.Assignment
	classStudents map[string][]string
	studentTasks  []records.StudentTask
	createErr     error
	deleteErr     error
	created       records.LocalAssignmentInput
	deletedID     string
	listedClassID string
}

func (s *stubRecordQueries) CreateLocalAssignment(_ context.Context, input records.LocalAssignmentInput) (records.Assignment, error) {
	s.created = input
	if s.createErr != nil {
		return records.Assignment{}, s.createErr
	}
	return records.Assignment{
		AssignmentID: records.LocalIDPrefix + "new",
		ClassID:      input.ClassID,
		Title:        input.Title,
		Description:  input.Description,
		DueDate:      input.DueDate,
		Subject:      input.Subject,
	}, nil
}

func (s *stubRecordQueries) DeleteAssignment(_ context.Context, assignmentID string) error {
	s.deletedID = assignmentID
	return s.deleteErr
}

func (s *stubRecordQueries) ListAssignments(_ context.Context, classID string) ([]records.Assignment, error) {
	s.listedClassID = classID
	return s.assignments, nil
}

func (s *stubRecordQueries) ListClassStudents(_ context.Context, classID records.ClassID) ([]string, error) {
	return s.classStudents[classID.String()], nil
}

func (s *stubRecordQueries) ListStudentTasks(_ context.Context, studentID records.StudentID) ([]records.StudentTask, error) {
	filtered := make([]records.StudentTask, 0, len(s.studentTasks))
	for _, task := range s.studentTasks {
		if task.RecipientID == studentID.String() {
			filtered = append(filtered, task)
		}
	}
	return filtered, nil
}

type stubStatusReader struct {
	statuses map[string]roster.SyncStatus
}

func (s stubStatusReader) LastSync(_ context.Context, studentID string) (roster.SyncStatus, error) {
	status, ok := s.statuses[studentID]
	if !ok {
		return roster.SyncStatus{}, cache.ErrStatusNotFound
	}
	return status, nil
}

type testServer struct {
	handler     http.Handler
	sessions    *stubSessionValidator
	users       *stubUserDirectory
	rosterSync  *stubRosterSyncer
	distributor *stubDistributor
	records     *stubRecordQueries
}

func newTestServer(t *testing.T, roles ...string) *testServer {
	t.Helper()
	sessions := &stubSessionValidator{claims: auth.SessionClaims{UserID: "student-1", UserRoles: roles}}
	directory := &stubUserDirectory{known: map[string]bool{"student-1": true, "student-2": true}}
	syncer := &stubRosterSyncer{}
	distributor := &stubDistributor{}
	queries := &stubRecordQueries{classStudents: map[string][]string{}}
	handler, err := NewHTTPHandler(Dependencies{
		SessionValidator: sessions,
		Users:            directory,
		RosterSync:       syncer,
		Distributor:      distributor,
		Records:          queries,
		StatusReader:     stubStatusReader{statuses: map[string]roster.SyncStatus{}},
		AllowedOrigins:   []string{"https://app.example.com"},
	})
	if err != nil {
		t.Fatalf("failed to build handler: %v", err)
	}
	return &testServer{
		handler:     handler,
		sessions:    sessions,
		users:       directory,
		rosterSync:  syncer,
		distributor: distributor,
		records:     queries,
	}
}
