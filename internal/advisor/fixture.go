package advisor

import (
	"context"
	"sort"

	"github.com/MarcoPoloResearchLab/apollo/backend/internal/tasks"
)

const fixtureMaxRecipients = 3

// FixtureAdvisor returns a fixed proposal. It targets the candidates with the
// highest struggle scores, or the first candidates when no signals are given.
type FixtureAdvisor struct {
	Title       string
	Description string
	Subject     string
}

// NewFixtureAdvisor returns the quadratic-equations fixture used when no model is configured.
func NewFixtureAdvisor() *FixtureAdvisor {
	return &FixtureAdvisor{
		Title:       "Quadratic Intervention",
		Description: "Specialized 5-problem worksheet focusing on factoring quadratics with negative coefficients.",
		Subject:     "Math",
	}
}

// Propose implements tasks.Advisor.
func (a *FixtureAdvisor) Propose(_ context.Context, candidateIDs []string, signals []tasks.UsageSignal) (tasks.Proposal, error) {
	return tasks.Proposal{
		Title:        a.Title,
		Description:  a.Description,
		Subject:      a.Subject,
		RecipientIDs: strugglingCandidates(candidateIDs, signals, fixtureMaxRecipients),
	}, nil
}

func strugglingCandidates(candidateIDs []string, signals []tasks.UsageSignal, limit int) []string {
	scores := make(map[string]float64, len(signals))
	for _, signal := range signals {
		if signal.StruggleScore > scores[signal.StudentID] {
			scores[signal.StudentID] = signal.StruggleScore
		}
	}
	ranked := append([]string(nil), candidateIDs...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return scores[ranked[i]] > scores[ranked[j]]
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}
