package roster

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/apollo/backend/internal/classroom"
	"github.com/MarcoPoloResearchLab/apollo/backend/internal/records"
	"go.uber.org/zap"
)

const (
	// DefaultSection labels classes whose provider course has no section.
	DefaultSection = "General"
	// DefaultSubject is stored for every imported class.
	DefaultSubject = "General"
	// ImportedTitlePrefix marks assignment titles imported from the provider.
	ImportedTitlePrefix = "[GC] "
	// ImportedDescription replaces missing coursework descriptions.
	ImportedDescription = "Imported from Google Classroom"
	// NoDueDate is stored when the provider supplies no due date.
	NoDueDate = "No Due Date"

	opSync = "roster.sync"
)

var (
	errMissingRosterClient = errors.New("roster client is required")
	errMissingStore        = errors.New("record store is required")
)

// SyncFailedError reports a sync aborted mid-way. Rows written before the
// failure stay committed; LastCompletedIndex is -1 when no course finished.
type SyncFailedError struct {
	CourseID           string
	LastCompletedIndex int
	SyncedCount        int
	Err                error
}

func (e *SyncFailedError) Error() string {
	return fmt.Sprintf("roster: sync failed at course %q (last completed index %d, synced %d): %v",
		e.CourseID, e.LastCompletedIndex, e.SyncedCount, e.Err)
}

func (e *SyncFailedError) Unwrap() error {
	return e.Err
}

// StatusRecorder receives the outcome of every sync call.
type StatusRecorder interface {
	RecordSync(ctx context.Context, status SyncStatus) error
}

// SyncStatus summarizes the most recent sync of one student.
type SyncStatus struct {
	StudentID        string    `json:"student_id"`
	Success          bool      `json:"success"`
	SyncedCount      int       `json:"synced_count"`
	CoursesProcessed int       `json:"courses_processed"`
	FailedCourseID   string    `json:"failed_course_id,omitempty"`
	Error            string    `json:"error,omitempty"`
	FinishedAt       time.Time `json:"finished_at"`
}

// EngineConfig describes the dependencies of Engine.
type EngineConfig struct {
	Client   classroom.RosterClient
	Store    records.Store
	Recorder StatusRecorder
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Engine merges a student's provider roster into local records.
type Engine struct {
	client   classroom.RosterClient
	store    records.Store
	recorder StatusRecorder
	clock    func() time.Time
	logger   *zap.Logger
}

// NewEngine validates the configuration and returns an Engine.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Client == nil {
		return nil, errMissingRosterClient
	}
	if cfg.Store == nil {
		return nil, errMissingStore
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		client:   cfg.Client,
		store:    cfg.Store,
		recorder: cfg.Recorder,
		clock:    clock,
		logger:   logger,
	}, nil
}

// SyncReport is the result of a completed sync.
type SyncReport struct {
	SyncedCount      int
	CoursesProcessed int
}

// Sync imports the credential's active courses, enrolls the student and
// imports coursework. Courses are processed strictly in provider order.
func (e *Engine) Sync(ctx context.Context, credential classroom.Credential, studentID records.StudentID) (SyncReport, error) {
	report, err := e.sync(ctx, credential, studentID)
	e.record(ctx, studentID, report, err)
	return report, err
}

func (e *Engine) sync(ctx context.Context, credential classroom.Credential, studentID records.StudentID) (SyncReport, error) {
	report := SyncReport{}

	courses, err := e.client.ListActiveCourses(ctx, credential)
	if err != nil {
		e.logFailure("list_courses_failed", err, studentID, "")
		return report, &SyncFailedError{LastCompletedIndex: -1, Err: err}
	}

	for index, course := range courses {
		created, err := e.syncCourse(ctx, credential, studentID, course)
		report.SyncedCount += created
		if err != nil {
			e.logFailure("course_failed", err, studentID, course.ID)
			return report, &SyncFailedError{
				CourseID:           course.ID,
				LastCompletedIndex: index - 1,
				SyncedCount:        report.SyncedCount,
				Err:                err,
			}
		}
		report.CoursesProcessed++
	}

	e.logger.Info("roster sync completed",
		zap.String("student_id", studentID.String()),
		zap.Int("courses", report.CoursesProcessed),
		zap.Int("synced", report.SyncedCount))
	return report, nil
}

func (e *Engine) syncCourse(ctx context.Context, credential classroom.Credential, studentID records.StudentID, course classroom.Course) (int, error) {
	classID, err := records.NewClassID(course.ID)
	if err != nil {
		return 0, err
	}

	if _, err := e.store.UpsertClass(ctx, newClass(classID, course)); err != nil {
		return 0, err
	}
	if _, err := e.store.EnrollStudent(ctx, records.Enrollment{
		StudentID: studentID.String(),
		ClassID:   classID.String(),
	}); err != nil {
		return 0, err
	}

	items, err := e.client.ListCourseWork(ctx, credential, classID.String())
	if err != nil {
		return 0, err
	}

	createdCount := 0
	for _, item := range items {
		if strings.TrimSpace(item.ID) == "" {
			e.logger.Warn("skipping coursework without id", zap.String("class_id", classID.String()))
			continue
		}
		created, err := e.store.UpsertAssignment(ctx, newAssignment(classID, item))
		if err != nil {
			return createdCount, err
		}
		if created {
			createdCount++
		}
	}
	return createdCount, nil
}

func newClass(classID records.ClassID, course classroom.Course) records.Class {
	section := strings.TrimSpace(course.Section)
	if section == "" {
		section = DefaultSection
	}
	return records.Class{
		ClassID: classID.String(),
		Name:    course.Name,
		Section: section,
		Subject: DefaultSubject,
	}
}

func newAssignment(classID records.ClassID, item classroom.CourseWork) records.Assignment {
	description := item.Description
	if strings.TrimSpace(description) == "" {
		description = ImportedDescription
	}
	return records.Assignment{
		AssignmentID: records.ImportedAssignmentID(item.ID),
		ClassID:      classID.String(),
		Title:        ImportedTitlePrefix + item.Title,
		Description:  description,
		DueDate:      FormatDueDate(item.DueDate),
	}
}

// FormatDueDate renders the provider date as "YYYY-M-D" or NoDueDate.
func FormatDueDate(date *classroom.DueDate) string {
	if date == nil {
		return NoDueDate
	}
	return date.String()
}

func (e *Engine) record(ctx context.Context, studentID records.StudentID, report SyncReport, syncErr error) {
	if e.recorder == nil {
		return
	}
	status := SyncStatus{
		StudentID:        studentID.String(),
		Success:          syncErr == nil,
		SyncedCount:      report.SyncedCount,
		CoursesProcessed: report.CoursesProcessed,
		FinishedAt:       e.clock().UTC(),
	}
	if syncErr != nil {
		status.Error = syncErr.Error()
		var failed *SyncFailedError
		if errors.As(syncErr, &failed) {
			status.FailedCourseID = failed.CourseID
		}
	}
	if err := e.recorder.RecordSync(ctx, status); err != nil {
		e.logger.Warn("failed to record sync status",
			zap.String("student_id", studentID.String()),
			zap.Error(err))
	}
}

func (e *Engine) logFailure(reason string, err error, studentID records.StudentID, courseID string) {
	fields := []zap.Field{
		zap.String("operation", opSync),
		zap.String("reason", reason),
		zap.String("student_id", studentID.String()),
		zap.Error(err),
	}
	if courseID != "" {
		fields = append(fields, zap.String("course_id", courseID))
	}
	if errors.Is(err, classroom.ErrAuthExpired) {
		e.logger.Info("roster sync aborted", fields...)
		return
	}
	e.logger.Error("roster sync aborted", fields...)
}
