package records

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

type sequenceIDProvider struct {
	ids   []string
	index int
}

func (p *sequenceIDProvider) NewID() (string, error) {
	if p.index >= len(p.ids) {
		return "", errors.New("exhausted ids")
	}
	id := p.ids[p.index]
	p.index++
	return id, nil
}

func newTestStore(t *testing.T, ids ...string) (*GormStore, *gorm.DB) {
	t.Helper()
	databasePath := filepath.Join(t.TempDir(), "records.db")
	db, err := gorm.Open(sqlite.Open(databasePath), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(Models()...); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	store, err := NewGormStore(GormStoreConfig{
		Database:   db,
		IDProvider: &sequenceIDProvider{ids: ids},
	})
	if err != nil {
		t.Fatalf("failed to build store: %v", err)
	}
	return store, db
}

func TestUpsertClassKeepsFirstWrite(t *testing.T) {
	store, db := newTestStore(t)
	ctx := context.Background()

	created, err := store.UpsertClass(ctx, Class{ClassID: "course-1", Name: "A", Section: "General", Subject: "General"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !created {
		t.Fatalf("expected first upsert to create the class")
	}

	created, err = store.UpsertClass(ctx, Class{ClassID: "course-1", Name: "B", Section: "Period 2", Subject: "General"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created {
		t.Fatalf("expected second upsert to be a no-op")
	}

	var stored Class
	if err := db.Where("class_id = ?", "course-1").Take(&stored).Error; err != nil {
		t.Fatalf("failed to load class: %v", err)
	}
	if stored.Name != "A" || stored.Section != "General" {
		t.Fatalf("expected first write to win, got %#v", stored)
	}
}

func TestEnrollStudentHasSetSemantics(t *testing.T) {
	store, db := newTestStore(t)
	ctx := context.Background()
	enrollment := Enrollment{StudentID: "student-1", ClassID: "course-1"}

	for attempt := 0; attempt < 2; attempt++ {
		created, err := store.EnrollStudent(ctx, enrollment)
		if err != nil {
			t.Fatalf("unexpected error on attempt %d: %v", attempt, err)
		}
		if created != (attempt == 0) {
			t.Fatalf("unexpected created flag %v on attempt %d", created, attempt)
		}
	}

	var count int64
	if err := db.Model(&Enrollment{}).Count(&count).Error; err != nil {
		t.Fatalf("failed to count enrollments: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one enrollment row, got %d", count)
	}

	students, err := store.ListClassStudents(ctx, ClassID("course-1"))
	if err != nil {
		t.Fatalf("failed to list students: %v", err)
	}
	if len(students) != 1 || students[0] != "student-1" {
		t.Fatalf("unexpected class students %v", students)
	}
}

func TestInsertStudentTaskRejectsDuplicateKey(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	task := StudentTask{RecipientID: "s1", BatchID: "batch-1", Title: "Read", CreatedAtSeconds: 1700000000}

	if err := store.InsertStudentTask(ctx, task); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := store.InsertStudentTask(ctx, task)
	if !errors.Is(err, ErrStoreWrite) {
		t.Fatalf("expected store write failure, got %v", err)
	}
}

func TestLocalAssignmentLifecycle(t *testing.T) {
	store, _ := newTestStore(t, "0192-local")
	ctx := context.Background()
	if _, err := store.UpsertClass(ctx, Class{ClassID: "course-1", Name: "Algebra", Section: "General", Subject: "General"}); err != nil {
		t.Fatalf("failed to seed class: %v", err)
	}

	assignment, err := store.CreateLocalAssignment(ctx, LocalAssignmentInput{
		ClassID:     "course-1",
		Title:       "  Fractions drill ",
		Description: "Complete the following exercises.",
		DueDate:     "Next Friday",
		Subject:     "Math",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if assignment.AssignmentID != "local:0192-local" {
		t.Fatalf("unexpected assignment id %q", assignment.AssignmentID)
	}
	if assignment.Title != "Fractions drill" {
		t.Fatalf("expected trimmed title, got %q", assignment.Title)
	}

	if _, err := store.UpsertAssignment(ctx, Assignment{AssignmentID: ImportedAssignmentID("cw-1"), ClassID: "course-1", Title: "[GC] Essay"}); err != nil {
		t.Fatalf("failed to seed imported assignment: %v", err)
	}

	listed, err := store.ListAssignments(ctx, "course-1")
	if err != nil {
		t.Fatalf("failed to list assignments: %v", err)
	}
	if len(listed) != 2 {
		t.Fatalf("expected 2 assignments, got %d", len(listed))
	}

	err = store.DeleteAssignment(ctx, ImportedAssignmentID("cw-1"))
	if !errors.Is(err, ErrImportedAssignment) {
		t.Fatalf("expected imported assignment rejection, got %v", err)
	}
	var serviceErr *ServiceError
	if !errors.As(err, &serviceErr) || serviceErr.Code() != "records.delete_assignment.imported" {
		t.Fatalf("expected coded service error, got %v", err)
	}
	if err := store.DeleteAssignment(ctx, assignment.AssignmentID); err != nil {
		t.Fatalf("unexpected delete error: %v", err)
	}
	if err := store.DeleteAssignment(ctx, assignment.AssignmentID); !errors.Is(err, ErrAssignmentNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
}

func TestCreateLocalAssignmentRequiresTitle(t *testing.T) {
	store, _ := newTestStore(t, "unused")
	_, err := store.CreateLocalAssignment(context.Background(), LocalAssignmentInput{ClassID: "course-1", Title: "   "})
	if !errors.Is(err, ErrInvalidAssignment) {
		t.Fatalf("expected invalid assignment error, got %v", err)
	}
}

func TestCreateLocalAssignmentRequiresExistingClass(t *testing.T) {
	store, db := newTestStore(t, "0192-orphan")
	_, err := store.CreateLocalAssignment(context.Background(), LocalAssignmentInput{ClassID: "missing-course", Title: "Drill"})
	if !errors.Is(err, ErrInvalidAssignment) {
		t.Fatalf("expected invalid assignment error, got %v", err)
	}
	var serviceErr *ServiceError
	if !errors.As(err, &serviceErr) || serviceErr.Code() != "records.create_assignment.unknown_class" {
		t.Fatalf("expected unknown class code, got %v", err)
	}
	var count int64
	if err := db.Model(&Assignment{}).Count(&count).Error; err != nil {
		t.Fatalf("failed to count assignments: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no assignment rows, got %d", count)
	}
}

func TestNewGormStoreValidatesDependencies(t *testing.T) {
	_, err := NewGormStore(GormStoreConfig{})
	var serviceErr *ServiceError
	if !errors.As(err, &serviceErr) || serviceErr.Code() != "records.store.new.missing_database" {
		t.Fatalf("expected missing database code, got %v", err)
	}
}

func TestNewStudentIDValidation(t *testing.T) {
	if _, err := NewStudentID("  "); !errors.Is(err, ErrInvalidStudentID) {
		t.Fatalf("expected invalid student id for blank input, got %v", err)
	}
	id, err := NewStudentID(" student-7 ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id.String() != "student-7" {
		t.Fatalf("expected trimmed id, got %q", id)
	}
}
