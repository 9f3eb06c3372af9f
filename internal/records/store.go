package records

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrStoreWrite wraps every persistence failure surfaced by the store.
	ErrStoreWrite = errors.New("records: store write failed")
	// ErrAssignmentNotFound indicates that no assignment matched the requested id.
	ErrAssignmentNotFound = errors.New("records: assignment not found")
	// ErrImportedAssignment indicates an attempt to mutate a provider-owned assignment.
	ErrImportedAssignment = errors.New("records: imported assignments are read-only")
	// ErrInvalidAssignment indicates that a locally authored assignment is missing required fields.
	ErrInvalidAssignment = errors.New("records: invalid assignment")

	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()
)

const (
	opUpsertClass       = "records.upsert_class"
	opEnrollStudent     = "records.enroll_student"
	opUpsertAssignment  = "records.upsert_assignment"
	opInsertStudentTask = "records.insert_student_task"
	opCreateAssignment  = "records.create_assignment"
	opDeleteAssignment  = "records.delete_assignment"
	opListQuery         = "records.list"
	opStoreNew          = "records.store.new"

	queryClassID      = "class_id = ?"
	queryAssignmentID = "assignment_id = ?"
)

// Store abstracts the insert-if-absent surface used by roster sync and task distribution.
type Store interface {
	UpsertClass(ctx context.Context, class Class) (bool, error)
	EnrollStudent(ctx context.Context, enrollment Enrollment) (bool, error)
	UpsertAssignment(ctx context.Context, assignment Assignment) (bool, error)
	InsertStudentTask(ctx context.Context, task StudentTask) error
}

// GormStoreConfig describes the dependencies of GormStore.
type GormStoreConfig struct {
	Database   *gorm.DB
	IDProvider IDProvider
	Logger     *zap.Logger
}

// GormStore persists records through GORM.
type GormStore struct {
	db         *gorm.DB
	idProvider IDProvider
	logger     *zap.Logger
}

// NewGormStore validates the configuration and returns a store.
func NewGormStore(cfg GormStoreConfig) (*GormStore, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opStoreNew, "missing_database", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opStoreNew, "missing_id_provider", errMissingIDProvider)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &GormStore{db: cfg.Database, idProvider: cfg.IDProvider, logger: logger}, nil
}

// UpsertClass inserts the class unless a row with the same id exists.
func (s *GormStore) UpsertClass(ctx context.Context, class Class) (bool, error) {
	return s.insertIfAbsent(ctx, opUpsertClass, &class, zap.String("class_id", class.ClassID))
}

// EnrollStudent adds the (student, class) pair unless it is already present.
func (s *GormStore) EnrollStudent(ctx context.Context, enrollment Enrollment) (bool, error) {
	return s.insertIfAbsent(ctx, opEnrollStudent, &enrollment,
		zap.String("student_id", enrollment.StudentID),
		zap.String("class_id", enrollment.ClassID))
}

// UpsertAssignment inserts the assignment unless a row with the same id exists.
func (s *GormStore) UpsertAssignment(ctx context.Context, assignment Assignment) (bool, error) {
	return s.insertIfAbsent(ctx, opUpsertAssignment, &assignment, zap.String("assignment_id", assignment.AssignmentID))
}

// InsertStudentTask always creates a new row.
func (s *GormStore) InsertStudentTask(ctx context.Context, task StudentTask) error {
	if err := s.db.WithContext(ctx).Create(&task).Error; err != nil {
		s.logError(opInsertStudentTask, err,
			zap.String("recipient_id", task.RecipientID),
			zap.String("batch_id", task.BatchID))
		return fmt.Errorf("%w: %s: %w", ErrStoreWrite, opInsertStudentTask, err)
	}
	return nil
}

func (s *GormStore) insertIfAbsent(ctx context.Context, operation string, row any, fields ...zap.Field) (bool, error) {
	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(row)
	if result.Error != nil {
		s.logError(operation, result.Error, fields...)
		return false, fmt.Errorf("%w: %s: %w", ErrStoreWrite, operation, result.Error)
	}
	return result.RowsAffected > 0, nil
}

// LocalAssignmentInput describes a teacher-authored assignment.
type LocalAssignmentInput struct {
	ClassID     string
	Title       string
	Description string
	DueDate     string
	Subject     string
}

// CreateLocalAssignment stores a new assignment under a "local:" id.
func (s *GormStore) CreateLocalAssignment(ctx context.Context, input LocalAssignmentInput) (Assignment, error) {
	classID, err := NewClassID(input.ClassID)
	if err != nil {
		return Assignment{}, newServiceError(opCreateAssignment, "invalid_class_id", err)
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return Assignment{}, newServiceError(opCreateAssignment, "missing_title", ErrInvalidAssignment)
	}
	var class Class
	if err := s.db.WithContext(ctx).Where(queryClassID, classID.String()).Take(&class).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Assignment{}, newServiceError(opCreateAssignment, "unknown_class", ErrInvalidAssignment)
		}
		s.logError(opCreateAssignment, err, zap.String("class_id", classID.String()))
		return Assignment{}, fmt.Errorf("%w: %s: %w", ErrStoreWrite, opCreateAssignment, err)
	}
	rawID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opCreateAssignment, err)
		return Assignment{}, fmt.Errorf("%w: %s: %w", ErrStoreWrite, opCreateAssignment, err)
	}
	assignment := Assignment{
		AssignmentID: LocalIDPrefix + rawID,
		ClassID:      classID.String(),
		Title:        title,
		Description:  strings.TrimSpace(input.Description),
		DueDate:      strings.TrimSpace(input.DueDate),
		Subject:      strings.TrimSpace(input.Subject),
	}
	if err := s.db.WithContext(ctx).Create(&assignment).Error; err != nil {
		s.logError(opCreateAssignment, err, zap.String("assignment_id", assignment.AssignmentID))
		return Assignment{}, fmt.Errorf("%w: %s: %w", ErrStoreWrite, opCreateAssignment, err)
	}
	return assignment, nil
}

// DeleteAssignment removes a locally authored assignment.
func (s *GormStore) DeleteAssignment(ctx context.Context, assignmentID string) error {
	trimmed := strings.TrimSpace(assignmentID)
	if trimmed == "" {
		return fmt.Errorf("%w: empty", ErrInvalidAssignmentID)
	}
	if IsImportedAssignmentID(trimmed) {
		return newServiceError(opDeleteAssignment, "imported", ErrImportedAssignment)
	}
	result := s.db.WithContext(ctx).Where(queryAssignmentID, trimmed).Delete(&Assignment{})
	if result.Error != nil {
		s.logError(opDeleteAssignment, result.Error, zap.String("assignment_id", trimmed))
		return fmt.Errorf("%w: %s: %w", ErrStoreWrite, opDeleteAssignment, result.Error)
	}
	if result.RowsAffected == 0 {
		return newServiceError(opDeleteAssignment, "not_found", ErrAssignmentNotFound)
	}
	return nil
}

// ListAssignments returns assignments, optionally scoped to one class.
func (s *GormStore) ListAssignments(ctx context.Context, classID string) ([]Assignment, error) {
	query := s.db.WithContext(ctx).Order("class_id ASC, assignment_id ASC")
	if trimmed := strings.TrimSpace(classID); trimmed != "" {
		query = query.Where(queryClassID, trimmed)
	}
	var assignments []Assignment
	if err := query.Find(&assignments).Error; err != nil {
		s.logError(opListQuery, err, zap.String("table", Assignment{}.TableName()))
		return nil, err
	}
	return assignments, nil
}

// ListClassStudents returns the ids of students enrolled in the class.
func (s *GormStore) ListClassStudents(ctx context.Context, classID ClassID) ([]string, error) {
	var studentIDs []string
	if err := s.db.WithContext(ctx).
		Model(&Enrollment{}).
		Where(queryClassID, classID.String()).
		Order("student_id ASC").
		Pluck("student_id", &studentIDs).Error; err != nil {
		s.logError(opListQuery, err, zap.String("table", Enrollment{}.TableName()))
		return nil, err
	}
	return studentIDs, nil
}

// ListStudentTasks returns the tasks distributed to a student, newest first.
func (s *GormStore) ListStudentTasks(ctx context.Context, studentID StudentID) ([]StudentTask, error) {
	var tasks []StudentTask
	if err := s.db.WithContext(ctx).
		Where("recipient_id = ?", studentID.String()).
		Order("created_at_s DESC, batch_id DESC").
		Find(&tasks).Error; err != nil {
		s.logError(opListQuery, err, zap.String("table", StudentTask{}.TableName()))
		return nil, err
	}
	return tasks, nil
}

func (s *GormStore) logError(operation string, err error, fields ...zap.Field) {
	attrs := []zap.Field{zap.String("operation", operation), zap.Error(err)}
	attrs = append(attrs, fields...)
	s.logger.Error("records store error", attrs...)
}
