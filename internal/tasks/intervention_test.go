package tasks

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type fixtureAdvisor struct {
	proposal   Proposal
	err        error
	candidates []string
	signals    []UsageSignal
}

func (a *fixtureAdvisor) Propose(_ context.Context, candidateIDs []string, signals []UsageSignal) (Proposal, error) {
	a.candidates = candidateIDs
	a.signals = signals
	return a.proposal, a.err
}

func TestDistributeInterventionDecoratesTemplate(t *testing.T) {
	store := &memoryTaskStore{}
	advisor := &fixtureAdvisor{proposal: Proposal{
		Title:        "Quadratic Intervention",
		Description:  "Specialized 5-problem worksheet.",
		Subject:      "Math",
		RecipientIDs: []string{"s3", "s1", "outsider"},
	}}
	distributor := newTestDistributor(t, store, advisor)
	signals := []UsageSignal{{StudentID: "s1", Tool: "Math Solver", Topic: "quadratics", StruggleScore: 0.9}}

	result, err := distributor.DistributeIntervention(context.Background(), []string{"s1", "s2", "s3"}, signals)
	require.NoError(t, err)
	require.Equal(t, 2, result.RecipientCount)
	require.Equal(t, "[Intervention] Quadratic Intervention", result.Template.Title)
	require.Equal(t, InterventionDueDate, result.Template.DueDate)
	require.Equal(t, InterventionPriority, result.Template.Priority)
	require.Equal(t, []string{"s1", "s3"}, store.recipients())
	require.Equal(t, []string{"s1", "s2", "s3"}, advisor.candidates)
	require.Equal(t, signals, advisor.signals)
}

func TestDistributeInterventionTargetsAllCandidatesWhenAdvisorSelectsNone(t *testing.T) {
	store := &memoryTaskStore{}
	advisor := &fixtureAdvisor{proposal: Proposal{Title: "Review", Subject: "Science"}}
	distributor := newTestDistributor(t, store, advisor)

	result, err := distributor.DistributeIntervention(context.Background(), []string{"s1", "s2"}, nil)
	require.NoError(t, err)
	require.Equal(t, 2, result.RecipientCount)
}

func TestDistributeInterventionFailures(t *testing.T) {
	t.Run("no-advisor", func(t *testing.T) {
		distributor := newTestDistributor(t, &memoryTaskStore{}, nil)
		_, err := distributor.DistributeIntervention(context.Background(), []string{"s1"}, nil)
		require.ErrorIs(t, err, ErrAdvisorUnavailable)
	})
	t.Run("advisor-error", func(t *testing.T) {
		distributor := newTestDistributor(t, &memoryTaskStore{}, &fixtureAdvisor{err: errors.New("quota exceeded")})
		_, err := distributor.DistributeIntervention(context.Background(), []string{"s1"}, nil)
		require.ErrorIs(t, err, ErrAdvisorUnavailable)
	})
	t.Run("no-candidates", func(t *testing.T) {
		store := &memoryTaskStore{}
		distributor := newTestDistributor(t, store, &fixtureAdvisor{proposal: Proposal{Title: "x"}})
		_, err := distributor.DistributeIntervention(context.Background(), nil, nil)
		require.ErrorIs(t, err, ErrInvalidDistribution)
		require.Zero(t, store.insertions)
	})
	t.Run("untitled-proposal", func(t *testing.T) {
		store := &memoryTaskStore{}
		distributor := newTestDistributor(t, store, &fixtureAdvisor{proposal: Proposal{Title: " "}})
		_, err := distributor.DistributeIntervention(context.Background(), []string{"s1"}, nil)
		require.ErrorIs(t, err, ErrInvalidDistribution)
		require.Zero(t, store.insertions)
	})
}
