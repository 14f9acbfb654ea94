// Package imagegen issues single image-generation calls to Gemini and turns
// the first inline image part into a data URL.
package imagegen

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"
	genai "google.golang.org/genai"

	"elementx/internal/logging"
)

const (
	DefaultModel = "gemini-2.5-flash-image"

	promptSuffix = ". Create a clean, high-quality visual representation. NO TEXT inside image."
)

var (
	// ErrNoImage means the model answered without an image part, e.g. a refusal.
	ErrNoImage = errors.New("imagegen: model returned no image")
	// ErrRateLimited marks quota/rate-limit rejections.
	ErrRateLimited = errors.New("imagegen: rate limited")
)

// Generator produces one image payload per call.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// IsRateLimited reports whether err came from a rate-limit rejection.
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}

// GeminiClient is a thin wrapper around the official genai client. It never
// retries; pacing belongs to the caller.
type GeminiClient struct {
	cli   *genai.Client
	model string
	log   *zap.Logger
}

func NewGeminiClient(ctx context.Context, apiKey, model string, log *zap.Logger) (*GeminiClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("imagegen: api key is required")
	}
	if strings.TrimSpace(model) == "" {
		model = DefaultModel
	}
	cli, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, err
	}
	return &GeminiClient{cli: cli, model: model, log: logging.OrNop(log).Named("imagegen")}, nil
}

func (g *GeminiClient) Name() string { return "Gemini:" + g.model }

func (g *GeminiClient) Generate(ctx context.Context, prompt string) (string, error) {
	full := strings.TrimSpace(prompt) + promptSuffix
	resp, err := g.cli.Models.GenerateContent(ctx, g.model,
		[]*genai.Content{{Parts: []*genai.Part{{Text: full}}}},
		&genai.GenerateContentConfig{},
	)
	if err != nil {
		return "", classify(err)
	}
	img, text := extractImage(resp)
	if img == "" {
		g.log.Debug("no image in response", zap.String("model", g.model), zap.Int("text_bytes", len(text)))
		return "", ErrNoImage
	}
	return img, nil
}

// extractImage returns the first inline image as a data URL, plus any text
// the model produced instead.
func extractImage(resp *genai.GenerateContentResponse) (string, string) {
	if resp == nil {
		return "", ""
	}
	var text strings.Builder
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part == nil {
				continue
			}
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				return DataURL(part.InlineData.MIMEType, part.InlineData.Data), ""
			}
			text.WriteString(part.Text)
		}
	}
	return "", text.String()
}

// DataURL encodes raw image bytes as a base64 data URL.
func DataURL(mimeType string, data []byte) string {
	if strings.TrimSpace(mimeType) == "" {
		mimeType = "image/png"
	}
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

func classify(err error) error {
	if err == nil {
		return nil
	}
	if code, status, ok := apiErrorCode(err); ok {
		if code == http.StatusTooManyRequests || strings.EqualFold(status, "RESOURCE_EXHAUSTED") {
			return fmt.Errorf("%w: %w", ErrRateLimited, err)
		}
	}
	return fmt.Errorf("imagegen: generate: %w", err)
}

func apiErrorCode(err error) (int, string, bool) {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code, apiErr.Status, true
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return apiErrPtr.Code, apiErrPtr.Status, true
	}
	return 0, "", false
}
