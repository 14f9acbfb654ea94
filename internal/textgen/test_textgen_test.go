package textgen

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	genai "google.golang.org/genai"
)

type scriptedClient struct {
	errs  []error
	calls int
}

func (s *scriptedClient) Name() string { return "scripted" }

func (s *scriptedClient) GenerateJSON(context.Context, Request) (json.RawMessage, error) {
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	return json.RawMessage(`{"ok":true}`), nil
}

func TestRetryRecoversFromTransientErrors(t *testing.T) {
	c := &scriptedClient{errs: []error{errors.New("503"), errors.New("503")}}
	wrapped := Wrap(c, Retry(3, time.Millisecond, nil))

	raw, err := wrapped.GenerateJSON(context.Background(), Request{Prompt: "x"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(raw))
	assert.Equal(t, 3, c.calls)
	assert.Equal(t, "scripted", wrapped.Name())
}

func TestRetryGivesUpAfterMaxAttempts(t *testing.T) {
	last := errors.New("third")
	c := &scriptedClient{errs: []error{errors.New("first"), errors.New("second"), last, nil}}
	_, err := Retry(3, time.Millisecond, nil)(c).GenerateJSON(context.Background(), Request{})
	assert.ErrorIs(t, err, last)
	assert.Equal(t, 3, c.calls)
}

func TestRetrySkipsPermanentErrors(t *testing.T) {
	c := &scriptedClient{errs: []error{NewPermanentError(ErrInvalidJSON)}}
	_, err := Retry(3, time.Millisecond, nil)(c).GenerateJSON(context.Background(), Request{})
	assert.ErrorIs(t, err, ErrInvalidJSON)
	assert.Equal(t, 1, c.calls)
}

func TestRetryStopsOnCancel(t *testing.T) {
	c := &scriptedClient{errs: []error{errors.New("a"), errors.New("b"), errors.New("c")}}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := Retry(3, time.Hour, nil)(c).GenerateJSON(ctx, Request{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, 1, c.calls)
}

func TestUnavailable(t *testing.T) {
	_, err := Wrap(Unavailable{}, Retry(3, time.Millisecond, nil)).GenerateJSON(context.Background(), Request{})
	assert.ErrorIs(t, err, ErrNoCredential)

	_, err = NewGeminiClient(context.Background(), " ", "", nil)
	assert.ErrorIs(t, err, ErrNoCredential)
}

func TestGenerateConfig(t *testing.T) {
	schema := &genai.Schema{Type: genai.TypeObject}
	cfg := generateConfig(Request{Prompt: "p", Schema: schema})
	assert.Equal(t, "application/json", cfg.ResponseMIMEType)
	assert.Same(t, schema, cfg.ResponseSchema)
	require.NotNil(t, cfg.SystemInstruction)
	assert.Equal(t, AcademicChemistPrompt, cfg.SystemInstruction.Parts[0].Text)

	cfg = generateConfig(Request{SystemInstruction: "be brief"})
	assert.Equal(t, "be brief", cfg.SystemInstruction.Parts[0].Text)
}

func TestResponseText(t *testing.T) {
	resp := &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
		Content: &genai.Content{Parts: []*genai.Part{{Text: "```json\n{\"a\":"}, {Text: "1}\n```"}}},
	}}}
	assert.Equal(t, "```json\n{\"a\":1}\n```", responseText(resp))
	assert.Empty(t, responseText(nil))
	assert.Empty(t, responseText(&genai.GenerateContentResponse{}))
}
