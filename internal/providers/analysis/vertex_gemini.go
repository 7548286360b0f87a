package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	vertexgenai "cloud.google.com/go/vertexai/genai"

	"github.com/voxhire/voxhire/internal/models"
)

const systemPrompt = `You are an expert interview evaluator. You receive a complete
interview session: every question, the candidate's transcribed answer, and
speaking metrics (word count, duration, speaking rate, pauses). Evaluate the
session as a whole, not answer by answer in isolation.

Reply with a single JSON object:
{
  "overall_score": <1-10>,
  "recommendation": "hire" | "no_hire" | "requires_review",
  "summary": "...",
  "strengths": ["..."],
  "improvements": ["..."],
  "per_question": [{"question_id": "...", "score": <1-10>, "feedback": "..."}]
}`

// VertexGemini is the Vertex AI implementation of the analysis engine.
type VertexGemini struct {
	client    *vertexgenai.Client
	model     *vertexgenai.GenerativeModel
	modelName string
}

func NewVertexGemini(ctx context.Context, projectID, location, modelName string) (*VertexGemini, error) {
	c, err := vertexgenai.NewClient(ctx, projectID, location)
	if err != nil {
		return nil, err
	}

	if modelName == "" {
		modelName = "gemini-1.5-flash"
	}

	m := c.GenerativeModel(modelName)
	m.GenerationConfig.ResponseMIMEType = "application/json"
	temp := float32(0.2)
	m.GenerationConfig.Temperature = &temp

	return &VertexGemini{client: c, model: m, modelName: modelName}, nil
}

func (v *VertexGemini) Close() error { return v.client.Close() }

func (v *VertexGemini) ModelName() string { return v.modelName }

func (v *VertexGemini) Analyze(ctx context.Context, sc SessionContext, responses []Response) (*models.AssessmentResult, error) {
	prompt, err := buildPrompt(sc, responses)
	if err != nil {
		return nil, err
	}

	resp, err := v.model.GenerateContent(ctx, vertexgenai.Text(prompt))
	if err != nil {
		return nil, err
	}

	raw := collectText(resp)
	if raw == "" {
		return nil, errors.New("empty model response")
	}

	var result models.AssessmentResult
	if err := json.Unmarshal([]byte(stripFences(raw)), &result); err != nil {
		return nil, fmt.Errorf("decode assessment: %w", err)
	}
	result.RawOutput = raw
	return &result, nil
}

func buildPrompt(sc SessionContext, responses []Response) (string, error) {
	payload, err := json.MarshalIndent(map[string]any{
		"session":   sc,
		"responses": responses,
	}, "", "  ")
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(systemPrompt)
	b.WriteString("\n\nSession data:\n")
	b.Write(payload)
	return b.String(), nil
}

func collectText(resp *vertexgenai.GenerateContentResponse) string {
	var b strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if t, ok := part.(vertexgenai.Text); ok {
				b.WriteString(string(t))
			}
		}
	}
	return strings.TrimSpace(b.String())
}

// stripFences tolerates models that wrap JSON in a markdown code block even
// when asked for raw JSON.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
