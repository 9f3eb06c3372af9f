package tasks

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

const (
	// InterventionTitlePrefix marks tasks produced by the intervention flow.
	InterventionTitlePrefix = "[Intervention] "
	// InterventionDueDate is the fixed relative window for intervention tasks.
	InterventionDueDate = "In 2 Days"
	// InterventionPriority is the fixed priority for intervention tasks.
	InterventionPriority = "High"
)

var (
	// ErrAdvisorUnavailable indicates that no advisor is configured or it failed to respond.
	ErrAdvisorUnavailable = errors.New("tasks: intervention advisor unavailable")
)

// UsageSignal is one observation of a student's tool usage fed to the advisor.
type UsageSignal struct {
	StudentID     string  `json:"student_id"`
	Tool          string  `json:"tool"`
	Topic         string  `json:"topic"`
	StruggleScore float64 `json:"struggle_score"`
}

// Proposal is the advisor's suggested intervention.
type Proposal struct {
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	Subject      string   `json:"subject"`
	RecipientIDs []string `json:"recipient_ids"`
}

// Advisor produces an intervention proposal from usage signals. Its
// selection heuristic is opaque to the distributor.
type Advisor interface {
	Propose(ctx context.Context, candidateIDs []string, signals []UsageSignal) (Proposal, error)
}

// InterventionResult reports a distributed intervention.
type InterventionResult struct {
	DistributionResult
	Template Template
}

// DistributeIntervention asks the advisor for a proposal and distributes it
// to the advisor-selected subset of candidateIDs.
func (d *Distributor) DistributeIntervention(ctx context.Context, candidateIDs []string, signals []UsageSignal) (InterventionResult, error) {
	candidates, err := normalizeRecipients(candidateIDs)
	if err != nil {
		return InterventionResult{}, err
	}
	if d.advisor == nil {
		return InterventionResult{}, ErrAdvisorUnavailable
	}

	candidateIDStrings := make([]string, 0, len(candidates))
	for _, candidate := range candidates {
		candidateIDStrings = append(candidateIDStrings, candidate.String())
	}
	proposal, err := d.advisor.Propose(ctx, candidateIDStrings, signals)
	if err != nil {
		return InterventionResult{}, fmt.Errorf("%w: %w", ErrAdvisorUnavailable, err)
	}

	template := Template{
		Title:       InterventionTitlePrefix + strings.TrimSpace(proposal.Title),
		Description: proposal.Description,
		DueDate:     InterventionDueDate,
		Priority:    InterventionPriority,
		Subject:     proposal.Subject,
	}
	if strings.TrimSpace(proposal.Title) == "" {
		return InterventionResult{}, fmt.Errorf("%w: advisor proposed an untitled task", ErrInvalidDistribution)
	}

	recipients := selectRecipients(candidateIDStrings, proposal.RecipientIDs)
	result, err := d.Distribute(ctx, recipients, template)
	return InterventionResult{DistributionResult: result, Template: template}, err
}

// selectRecipients keeps the selected ids that are also candidates, in
// candidate order. An empty selection targets every candidate.
func selectRecipients(candidates []string, selected []string) []string {
	if len(selected) == 0 {
		return candidates
	}
	wanted := make(map[string]struct{}, len(selected))
	for _, id := range selected {
		wanted[strings.TrimSpace(id)] = struct{}{}
	}
	recipients := make([]string, 0, len(selected))
	for _, candidate := range candidates {
		if _, ok := wanted[candidate]; ok {
			recipients = append(recipients, candidate)
		}
	}
	return recipients
}
