// Package textgen asks a model for schema-shaped JSON, used for the
// explanatory text that accompanies generated images.
package textgen

import (
	"context"
	"encoding/json"
	"errors"

	genai "google.golang.org/genai"
)

const DefaultModel = "gemini-2.5-flash"

// AcademicChemistPrompt is the default system instruction.
const AcademicChemistPrompt = `You are an expert Academic Chemistry Professor (بروفيسور كيميائي أكاديمي).
Your goal is to provide highly accurate, scientific, and educational responses in fluent, eloquent Arabic (اللغة العربية الفصحى السلسة).
Avoid robotic or literal translations. Use proper scientific terminology.
Provide deep insights, historical context where relevant, and clear explanations.
Always ensure the output is valid JSON strictly adhering to the schema.`

var (
	// ErrNoCredential is returned when no API key is configured.
	ErrNoCredential = errors.New("textgen: no API credential configured")
	// ErrInvalidJSON means the model answered with text that holds no JSON value.
	ErrInvalidJSON = errors.New("textgen: invalid json from model")
)

// Request is one structured generation call. Empty SystemInstruction means
// AcademicChemistPrompt; nil Schema lets the model choose the shape.
type Request struct {
	Prompt            string
	Schema            *genai.Schema
	SystemInstruction string
}

type Client interface {
	Name() string
	GenerateJSON(ctx context.Context, req Request) (json.RawMessage, error)
}

// PermanentError marks an error that will not resolve with retries.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

func NewPermanentError(err error) error {
	return &PermanentError{Err: err}
}

// Middleware decorates a Client.
type Middleware func(Client) Client

// Wrap applies mws so the first one is outermost.
func Wrap(c Client, mws ...Middleware) Client {
	for i := len(mws) - 1; i >= 0; i-- {
		c = mws[i](c)
	}
	return c
}

// Unavailable is the Client used in offline mode.
type Unavailable struct{}

func (Unavailable) Name() string { return "unavailable" }
func (Unavailable) GenerateJSON(context.Context, Request) (json.RawMessage, error) {
	return nil, NewPermanentError(ErrNoCredential)
}
