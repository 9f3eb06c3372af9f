package records

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	maxIdentifierLength = 190

	// ImportedIDPrefix namespaces assignment ids that originate from the classroom provider.
	ImportedIDPrefix = "gc:"
	// LocalIDPrefix namespaces assignment ids authored inside the application.
	LocalIDPrefix = "local:"
)

var (
	// ErrInvalidStudentID indicates that a student identifier is empty or exceeds storage bounds.
	ErrInvalidStudentID = errors.New("records: invalid student id")
	// ErrInvalidClassID indicates that a class identifier is empty or exceeds storage bounds.
	ErrInvalidClassID = errors.New("records: invalid class id")
	// ErrInvalidAssignmentID indicates that an assignment identifier is empty or exceeds storage bounds.
	ErrInvalidAssignmentID = errors.New("records: invalid assignment id")
)

// StudentID represents a validated student identifier.
type StudentID string

// NewStudentID validates raw input and returns a StudentID.
func NewStudentID(rawInput string) (StudentID, error) {
	trimmed, err := validateIdentifier(rawInput, ErrInvalidStudentID)
	if err != nil {
		return "", err
	}
	return StudentID(trimmed), nil
}

// String returns the underlying string identifier.
func (id StudentID) String() string {
	return string(id)
}

// ClassID represents a validated class identifier.
type ClassID string

// NewClassID validates raw input and returns a ClassID.
func NewClassID(rawInput string) (ClassID, error) {
	trimmed, err := validateIdentifier(rawInput, ErrInvalidClassID)
	if err != nil {
		return "", err
	}
	return ClassID(trimmed), nil
}

// String returns the underlying string identifier.
func (id ClassID) String() string {
	return string(id)
}

// ImportedAssignmentID namespaces a provider coursework id.
func ImportedAssignmentID(externalID string) string {
	return ImportedIDPrefix + strings.TrimSpace(externalID)
}

// IsImportedAssignmentID reports whether the id was produced by ImportedAssignmentID.
func IsImportedAssignmentID(id string) bool {
	return strings.HasPrefix(id, ImportedIDPrefix)
}

func validateIdentifier(rawInput string, sentinel error) (string, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", sentinel)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", sentinel, maxIdentifierLength)
	}
	return trimmed, nil
}

// Class models a course mirrored from the classroom provider.
type Class struct {
	ClassID string `gorm:"column:class_id;primaryKey;size:190;not null"`
	Name    string `gorm:"column:name;size:320;not null"`
	Section string `gorm:"column:section;size:320;not null;default:'General'"`
	Subject string `gorm:"column:subject;size:190;not null;default:'General'"`
}

// TableName provides the explicit table binding for GORM.
func (Class) TableName() string {
	return "classes"
}

// Enrollment records that a student belongs to a class.
type Enrollment struct {
	StudentID string `gorm:"column:student_id;primaryKey;size:190;not null"`
	ClassID   string `gorm:"column:class_id;primaryKey;size:190;not null;index:idx_enrollments_class"`
}

// TableName provides the explicit table binding for GORM.
func (Enrollment) TableName() string {
	return "enrollments"
}

// Assignment is class coursework, either imported or authored locally.
type Assignment struct {
	AssignmentID string `gorm:"column:assignment_id;primaryKey;size:190;not null"`
	ClassID      string `gorm:"column:class_id;size:190;not null;index:idx_assignments_class"`
	Title        string `gorm:"column:title;size:512;not null"`
	Description  string `gorm:"column:description;type:text;not null"`
	DueDate      string `gorm:"column:due_date;size:64;not null"`
	Subject      string `gorm:"column:subject;size:190;not null;default:''"`
}

// TableName provides the explicit table binding for GORM.
func (Assignment) TableName() string {
	return "assignments"
}

// StudentTask is one distributed copy of a task template for a single recipient.
type StudentTask struct {
	RecipientID      string `gorm:"column:recipient_id;primaryKey;size:190;not null;index:idx_student_tasks_recipient_created,priority:1"`
	BatchID          string `gorm:"column:batch_id;primaryKey;size:190;not null"`
	Title            string `gorm:"column:title;size:512;not null"`
	Description      string `gorm:"column:description;type:text;not null"`
	DueDate          string `gorm:"column:due_date;size:64;not null"`
	Priority         string `gorm:"column:priority;size:32;not null"`
	Subject          string `gorm:"column:subject;size:190;not null"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null;index:idx_student_tasks_recipient_created,priority:2"`
}

// TableName provides the explicit table binding for GORM.
func (StudentTask) TableName() string {
	return "student_tasks"
}

// CreatedAt returns the creation time in UTC.
func (task StudentTask) CreatedAt() time.Time {
	return time.Unix(task.CreatedAtSeconds, 0).UTC()
}

// Models lists every model persisted by the records store.
func Models() []any {
	return []any{&Class{}, &Enrollment{}, &Assignment{}, &StudentTask{}}
}
