package classroom

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrAuthExpired indicates that the provider rejected the credential; the caller must re-authenticate.
	ErrAuthExpired = errors.New("classroom: credential rejected")
	// ErrTransportFailure indicates a network or provider-side failure; callers may retry with backoff.
	ErrTransportFailure = errors.New("classroom: transport failure")
	// ErrMissingCredential indicates that no access token was supplied.
	ErrMissingCredential = errors.New("classroom: access token required")
)

// Credential carries an already-validated provider access token scoped to one user.
type Credential struct {
	accessToken string
}

// NewCredential validates the raw access token.
func NewCredential(accessToken string) (Credential, error) {
	trimmed := strings.TrimSpace(accessToken)
	if trimmed == "" {
		return Credential{}, ErrMissingCredential
	}
	return Credential{accessToken: trimmed}, nil
}

// AccessToken exposes the raw bearer token.
func (c Credential) AccessToken() string {
	return c.accessToken
}

// Course is an active provider course.
type Course struct {
	ID      string
	Name    string
	Section string
}

// DueDate is the provider's calendar date triple.
type DueDate struct {
	Year  int
	Month int
	Day   int
}

// String formats the date without zero padding, e.g. "2024-3-5".
func (d DueDate) String() string {
	return fmt.Sprintf("%d-%d-%d", d.Year, d.Month, d.Day)
}

// CourseWork is a provider coursework item.
type CourseWork struct {
	ID          string
	Title       string
	Description string
	DueDate     *DueDate
}

// RosterClient reads courses and coursework from the classroom provider.
// Implementations paginate internally and return complete sequences.
type RosterClient interface {
	ListActiveCourses(ctx context.Context, credential Credential) ([]Course, error)
	ListCourseWork(ctx context.Context, credential Credential, courseID string) ([]CourseWork, error)
}
