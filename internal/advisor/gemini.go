package advisor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/apollo/backend/internal/tasks"
	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

const (
	defaultModel   = "gemini-1.5-flash"
	defaultTimeout = 90 * time.Second
)

var (
	errMissingAPIKey    = errors.New("advisor: gemini api key required")
	errEmptyResponse    = errors.New("advisor: model returned no content")
	errMalformedPayload = errors.New("advisor: model returned malformed proposal")
)

// ContentGenerator is the subset of *genai.GenerativeModel used by GeminiAdvisor.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// GeminiAdvisorConfig configures GeminiAdvisor.
type GeminiAdvisorConfig struct {
	Generator ContentGenerator
	Timeout   time.Duration
	Logger    *zap.Logger
}

// GeminiAdvisor proposes interventions with a Gemini model.
type GeminiAdvisor struct {
	generator ContentGenerator
	timeout   time.Duration
	logger    *zap.Logger
}

// NewGeminiAdvisor wraps a content generator.
func NewGeminiAdvisor(cfg GeminiAdvisorConfig) (*GeminiAdvisor, error) {
	if cfg.Generator == nil {
		return nil, errors.New("advisor: content generator required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GeminiAdvisor{generator: cfg.Generator, timeout: timeout, logger: logger}, nil
}

// NewGeminiClient dials the Gemini API and returns the client and a JSON-mode model.
// The caller owns the client and must Close it.
func NewGeminiClient(ctx context.Context, apiKey, model string) (*genai.Client, *genai.GenerativeModel, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, nil, errMissingAPIKey
	}
	if strings.TrimSpace(model) == "" {
		model = defaultModel
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, nil, fmt.Errorf("advisor: unable to create gemini client: %w", err)
	}
	generativeModel := client.GenerativeModel(model)
	generativeModel.ResponseMIMEType = "application/json"
	return client, generativeModel, nil
}

// Propose asks the model for an intervention targeting struggling candidates.
func (a *GeminiAdvisor) Propose(ctx context.Context, candidateIDs []string, signals []tasks.UsageSignal) (tasks.Proposal, error) {
	prompt, err := buildPrompt(candidateIDs, signals)
	if err != nil {
		return tasks.Proposal{}, err
	}

	callCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	response, err := a.generator.GenerateContent(callCtx, genai.Text(prompt))
	if err != nil {
		a.logger.Error("gemini generation failed", zap.Error(err))
		return tasks.Proposal{}, err
	}

	raw := responseText(response)
	if raw == "" {
		return tasks.Proposal{}, errEmptyResponse
	}
	proposal, err := parseProposal(raw)
	if err != nil {
		a.logger.Warn("gemini returned unusable proposal", zap.String("response", raw), zap.Error(err))
		return tasks.Proposal{}, err
	}
	return proposal, nil
}

func buildPrompt(candidateIDs []string, signals []tasks.UsageSignal) (string, error) {
	signalsJSON, err := json.Marshal(signals)
	if err != nil {
		return "", err
	}
	candidatesJSON, err := json.Marshal(candidateIDs)
	if err != nil {
		return "", err
	}
	var prompt strings.Builder
	prompt.WriteString("You are a teaching assistant. Using the tool usage signals below, design one short remedial task ")
	prompt.WriteString("for the students who are struggling the most. Only choose students from the candidate list.\n")
	prompt.WriteString("Respond with a single JSON object: ")
	prompt.WriteString(`{"title": string, "description": string, "subject": string, "recipient_ids": [string]}.`)
	prompt.WriteString("\nCandidates: ")
	prompt.Write(candidatesJSON)
	prompt.WriteString("\nSignals: ")
	prompt.Write(signalsJSON)
	return prompt.String(), nil
}

func responseText(response *genai.GenerateContentResponse) string {
	if response == nil {
		return ""
	}
	var builder strings.Builder
	for _, candidate := range response.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				builder.WriteString(string(text))
			}
		}
		break
	}
	return builder.String()
}

func parseProposal(raw string) (tasks.Proposal, error) {
	cleanJSON := extractJSON(raw)
	if cleanJSON == "" {
		return tasks.Proposal{}, errMalformedPayload
	}
	var proposal tasks.Proposal
	if err := json.Unmarshal([]byte(cleanJSON), &proposal); err != nil {
		return tasks.Proposal{}, fmt.Errorf("%w: %v", errMalformedPayload, err)
	}
	if strings.TrimSpace(proposal.Title) == "" {
		return tasks.Proposal{}, fmt.Errorf("%w: missing title", errMalformedPayload)
	}
	return proposal, nil
}

// extractJSON pulls the outermost JSON object out of model output, which may
// be wrapped in a markdown code fence.
func extractJSON(raw string) string {
	if blockStart := strings.Index(raw, "```json"); blockStart != -1 {
		raw = raw[blockStart+len("```json"):]
		if blockEnd := strings.Index(raw, "```"); blockEnd != -1 {
			raw = raw[:blockEnd]
		}
	} else if blockStart := strings.Index(raw, "```"); blockStart != -1 {
		raw = raw[blockStart+3:]
		if blockEnd := strings.Index(raw, "```"); blockEnd != -1 {
			raw = raw[:blockEnd]
		}
	}
	start := strings.Index(raw, "{")
	if start == -1 {
		return ""
	}
	end := strings.LastIndex(raw, "}")
	if end < start {
		return ""
	}
	return raw[start : end+1]
}
