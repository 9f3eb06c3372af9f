package classroom

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	classroomapi "google.golang.org/api/classroom/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const (
	courseStateActive = "ACTIVE"
	defaultPageSize   = 100
	defaultTimeout    = 30 * time.Second
)

// GoogleClientConfig configures the Google Classroom backed RosterClient.
type GoogleClientConfig struct {
	// Endpoint overrides the provider base URL; empty uses the public API.
	Endpoint string
	Timeout  time.Duration
	// BaseTransport is wrapped with the bearer token transport; nil uses http.DefaultTransport.
	BaseTransport http.RoundTripper
	Logger        *zap.Logger
}

// GoogleClient fetches rosters from Google Classroom.
type GoogleClient struct {
	endpoint  string
	timeout   time.Duration
	transport http.RoundTripper
	logger    *zap.Logger
}

// NewGoogleClient constructs a GoogleClient with defaults applied.
func NewGoogleClient(cfg GoogleClientConfig) *GoogleClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	transport := cfg.BaseTransport
	if transport == nil {
		transport = http.DefaultTransport
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GoogleClient{
		endpoint:  strings.TrimSpace(cfg.Endpoint),
		timeout:   timeout,
		transport: transport,
		logger:    logger,
	}
}

// ListActiveCourses returns every ACTIVE course visible to the credential, in provider order.
func (c *GoogleClient) ListActiveCourses(ctx context.Context, credential Credential) ([]Course, error) {
	service, err := c.newService(ctx, credential)
	if err != nil {
		return nil, err
	}
	courses := make([]Course, 0)
	err = service.Courses.List().
		CourseStates(courseStateActive).
		PageSize(defaultPageSize).
		Pages(ctx, func(page *classroomapi.ListCoursesResponse) error {
			for _, course := range page.Courses {
				if course == nil {
					continue
				}
				courses = append(courses, Course{
					ID:      course.Id,
					Name:    course.Name,
					Section: course.Section,
				})
			}
			return nil
		})
	if err != nil {
		return nil, c.classify("list_courses", err)
	}
	return courses, nil
}

// ListCourseWork returns every coursework item of the course, in provider order.
func (c *GoogleClient) ListCourseWork(ctx context.Context, credential Credential, courseID string) ([]CourseWork, error) {
	service, err := c.newService(ctx, credential)
	if err != nil {
		return nil, err
	}
	items := make([]CourseWork, 0)
	err = service.Courses.CourseWork.List(courseID).
		PageSize(defaultPageSize).
		Pages(ctx, func(page *classroomapi.ListCourseWorkResponse) error {
			for _, work := range page.CourseWork {
				if work == nil {
					continue
				}
				items = append(items, CourseWork{
					ID:          work.Id,
					Title:       work.Title,
					Description: work.Description,
					DueDate:     convertDate(work.DueDate),
				})
			}
			return nil
		})
	if err != nil {
		return nil, c.classify("list_coursework", err, zap.String("course_id", courseID))
	}
	return items, nil
}

func (c *GoogleClient) newService(ctx context.Context, credential Credential) (*classroomapi.Service, error) {
	if credential.AccessToken() == "" {
		return nil, ErrMissingCredential
	}
	tokenSource := oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: credential.AccessToken(),
		TokenType:   "Bearer",
	})
	httpClient := &http.Client{
		Timeout:   c.timeout,
		Transport: &oauth2.Transport{Source: tokenSource, Base: c.transport},
	}
	options := []option.ClientOption{option.WithHTTPClient(httpClient)}
	if c.endpoint != "" {
		options = append(options, option.WithEndpoint(c.endpoint))
	}
	service, err := classroomapi.NewService(ctx, options...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransportFailure, err)
	}
	return service, nil
}

func (c *GoogleClient) classify(operation string, err error, fields ...zap.Field) error {
	attrs := append([]zap.Field{zap.String("operation", operation), zap.Error(err)}, fields...)
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && (apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusForbidden) {
		c.logger.Info("classroom credential rejected", attrs...)
		return fmt.Errorf("%w: %v", ErrAuthExpired, err)
	}
	c.logger.Warn("classroom request failed", attrs...)
	return fmt.Errorf("%w: %v", ErrTransportFailure, err)
}

// convertDate keeps partial dates; the provider reports unset parts as 0.
func convertDate(date *classroomapi.Date) *DueDate {
	if date == nil {
		return nil
	}
	return &DueDate{Year: int(date.Year), Month: int(date.Month), Day: int(date.Day)}
}
