package textgen

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"
	genai "google.golang.org/genai"

	"elementx/internal/logging"
	"elementx/internal/util/jsonutil"
)

// GeminiClient only makes the API call. Retries are applied via Middleware.
type GeminiClient struct {
	cli   *genai.Client
	model string
	log   *zap.Logger
}

func NewGeminiClient(ctx context.Context, apiKey, model string, log *zap.Logger) (*GeminiClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, ErrNoCredential
	}
	if strings.TrimSpace(model) == "" {
		model = DefaultModel
	}
	cli, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, err
	}
	return &GeminiClient{cli: cli, model: model, log: logging.OrNop(log).Named("textgen")}, nil
}

func (g *GeminiClient) Name() string { return "Gemini:" + g.model }

// GenerateJSON asks for application/json and returns the cleaned JSON value.
func (g *GeminiClient) GenerateJSON(ctx context.Context, req Request) (json.RawMessage, error) {
	resp, err := g.cli.Models.GenerateContent(ctx, g.model,
		[]*genai.Content{{Parts: []*genai.Part{{Text: req.Prompt}}}},
		generateConfig(req),
	)
	if err != nil {
		return nil, fmt.Errorf("textgen: generate: %w", err)
	}
	raw, err := jsonutil.Extract(responseText(resp))
	if err != nil {
		g.log.Debug("model returned no json", zap.String("model", g.model))
		return nil, NewPermanentError(ErrInvalidJSON)
	}
	return raw, nil
}

func generateConfig(req Request) *genai.GenerateContentConfig {
	system := strings.TrimSpace(req.SystemInstruction)
	if system == "" {
		system = AcademicChemistPrompt
	}
	return &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: system}}},
		ResponseMIMEType:  "application/json",
		ResponseSchema:    req.Schema,
	}
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if p != nil {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}
