package tasks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/apollo/backend/internal/records"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const defaultParallelism = 4

var (
	// ErrInvalidDistribution indicates a precondition violation; nothing was written.
	ErrInvalidDistribution = errors.New("tasks: invalid distribution")

	errMissingStore      = errors.New("record store is required")
	errMissingIDProvider = errors.New("id provider is required")
)

// Template is the task payload copied to every recipient.
type Template struct {
	Title       string
	Description string
	DueDate     string
	Priority    string
	Subject     string
}

// RecipientFailure records a recipient whose task could not be written.
type RecipientFailure struct {
	RecipientID string
	Err         error
}

// DistributionResult reports one distribution batch.
type DistributionResult struct {
	BatchID        string
	RecipientCount int
	Failures       []RecipientFailure
}

// DistributorConfig describes the dependencies of Distributor.
type DistributorConfig struct {
	Store       records.Store
	IDProvider  records.IDProvider
	Advisor     Advisor
	Clock       func() time.Time
	Parallelism int
	Logger      *zap.Logger
}

// Distributor fans task templates out to students.
type Distributor struct {
	store       records.Store
	idProvider  records.IDProvider
	advisor     Advisor
	clock       func() time.Time
	parallelism int
	logger      *zap.Logger
}

// NewDistributor validates the configuration and returns a Distributor.
func NewDistributor(cfg DistributorConfig) (*Distributor, error) {
	if cfg.Store == nil {
		return nil, errMissingStore
	}
	if cfg.IDProvider == nil {
		return nil, errMissingIDProvider
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	parallelism := cfg.Parallelism
	if parallelism <= 0 {
		parallelism = defaultParallelism
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Distributor{
		store:       cfg.Store,
		idProvider:  cfg.IDProvider,
		advisor:     cfg.Advisor,
		clock:       clock,
		parallelism: parallelism,
		logger:      logger,
	}, nil
}

// Distribute writes one StudentTask per unique recipient. Every call is a new
// batch. Failed recipient writes are reported in the result and do not roll
// back recipients already written.
func (d *Distributor) Distribute(ctx context.Context, recipientIDs []string, template Template) (DistributionResult, error) {
	recipients, err := normalizeRecipients(recipientIDs)
	if err != nil {
		return DistributionResult{}, err
	}
	template, err = normalizeTemplate(template)
	if err != nil {
		return DistributionResult{}, err
	}

	batchID, err := d.idProvider.NewID()
	if err != nil {
		return DistributionResult{}, fmt.Errorf("tasks: batch id generation failed: %w", err)
	}
	createdAt := d.clock().UTC().Unix()

	var (
		mu       sync.Mutex
		written  int
		failures []RecipientFailure
	)
	group := new(errgroup.Group)
	group.SetLimit(d.parallelism)
	for _, recipientID := range recipients {
		task := records.StudentTask{
			RecipientID:      recipientID.String(),
			BatchID:          batchID,
			Title:            template.Title,
			Description:      template.Description,
			DueDate:          template.DueDate,
			Priority:         template.Priority,
			Subject:          template.Subject,
			CreatedAtSeconds: createdAt,
		}
		group.Go(func() error {
			writeErr := d.store.InsertStudentTask(ctx, task)
			mu.Lock()
			defer mu.Unlock()
			if writeErr != nil {
				failures = append(failures, RecipientFailure{RecipientID: task.RecipientID, Err: writeErr})
				return nil
			}
			written++
			return nil
		})
	}
	_ = group.Wait()

	result := DistributionResult{BatchID: batchID, RecipientCount: written, Failures: failures}
	if len(failures) > 0 {
		causes := make([]error, 0, len(failures))
		for _, failure := range failures {
			causes = append(causes, fmt.Errorf("recipient %s: %w", failure.RecipientID, failure.Err))
		}
		d.logger.Error("task distribution partially failed",
			zap.String("batch_id", batchID),
			zap.Int("written", written),
			zap.Int("failed", len(failures)))
		return result, fmt.Errorf("tasks: %d of %d recipients failed: %w", len(failures), len(recipients), errors.Join(causes...))
	}

	d.logger.Info("tasks distributed",
		zap.String("batch_id", batchID),
		zap.Int("recipients", written))
	return result, nil
}

func normalizeRecipients(recipientIDs []string) ([]records.StudentID, error) {
	seen := make(map[records.StudentID]struct{}, len(recipientIDs))
	recipients := make([]records.StudentID, 0, len(recipientIDs))
	for _, raw := range recipientIDs {
		id, err := records.NewStudentID(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidDistribution, err)
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		recipients = append(recipients, id)
	}
	if len(recipients) == 0 {
		return nil, fmt.Errorf("%w: at least one recipient is required", ErrInvalidDistribution)
	}
	return recipients, nil
}

func normalizeTemplate(template Template) (Template, error) {
	template.Title = strings.TrimSpace(template.Title)
	if template.Title == "" {
		return Template{}, fmt.Errorf("%w: title is required", ErrInvalidDistribution)
	}
	template.Description = strings.TrimSpace(template.Description)
	template.DueDate = strings.TrimSpace(template.DueDate)
	template.Priority = strings.TrimSpace(template.Priority)
	template.Subject = strings.TrimSpace(template.Subject)
	return template, nil
}
