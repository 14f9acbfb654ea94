// Package httpapi exposes image resolution and structured text generation
// over HTTP and websockets.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	genai "google.golang.org/genai"

	"elementx/internal/imaging"
	"elementx/internal/imaging/queue"
	"elementx/internal/logging"
	"elementx/internal/textgen"
	"elementx/internal/util/jsonutil"
)

const maxExplainBody = 512 * 1024

// ImageResolver is satisfied by *resolver.Resolver.
type ImageResolver interface {
	Resolve(ctx context.Context, req imaging.Request) imaging.Resolution
	Online() bool
	InFlight() int
}

// QueueInspector is satisfied by *queue.Queue.
type QueueInspector interface {
	State() queue.State
	Depth() int
	PausedUntil() time.Time
}

type Handler struct {
	images ImageResolver
	queue  QueueInspector
	text   textgen.Client
	log    *zap.Logger
}

// NewHandler builds the endpoint set. q may be nil in offline mode and text
// may be nil when structured generation is unavailable.
func NewHandler(images ImageResolver, q QueueInspector, text textgen.Client, log *zap.Logger) *Handler {
	if text == nil {
		text = textgen.Unavailable{}
	}
	return &Handler{images: images, queue: q, text: text, log: logging.OrNop(log)}
}

type imageResponse struct {
	Key    string `json:"key"`
	Image  string `json:"image"`
	Source string `json:"source"`
}

// GetImage serves GET /v1/images?key=&prompt=&formula=&kind=.
func (h *Handler) GetImage(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := imaging.Request{
		Key:         strings.TrimSpace(q.Get("key")),
		Prompt:      strings.TrimSpace(q.Get("prompt")),
		FormulaHint: strings.TrimSpace(q.Get("formula")),
		Kind:        imaging.ParseKind(q.Get("kind")),
	}
	if req.Key == "" && req.Prompt == "" && req.FormulaHint == "" {
		writeError(w, http.StatusBadRequest, "invalid_argument", "one of key, prompt or formula is required")
		return
	}
	res := h.images.Resolve(r.Context(), req)
	writeJSON(w, http.StatusOK, imageResponse{Key: req.Key, Image: res.Image, Source: string(res.Source)})
}

type queueResponse struct {
	State       string     `json:"state"`
	Depth       int        `json:"depth"`
	InFlight    int        `json:"inFlight"`
	Online      bool       `json:"online"`
	PausedUntil *time.Time `json:"pausedUntil,omitempty"`
}

// QueueStatus serves GET /v1/queue.
func (h *Handler) QueueStatus(w http.ResponseWriter, _ *http.Request) {
	out := queueResponse{
		State:    queue.Idle.String(),
		InFlight: h.images.InFlight(),
		Online:   h.images.Online(),
	}
	if h.queue != nil {
		state := h.queue.State()
		out.State = state.String()
		out.Depth = h.queue.Depth()
		if state == queue.Paused {
			until := h.queue.PausedUntil()
			out.PausedUntil = &until
		}
	}
	writeJSON(w, http.StatusOK, out)
}

type explainRequest struct {
	Prompt            string          `json:"prompt"`
	Schema            json.RawMessage `json:"schema,omitempty"`
	SystemInstruction string          `json:"systemInstruction,omitempty"`
}

type explainResponse struct {
	Model  string          `json:"model"`
	Result json.RawMessage `json:"result"`
}

// Explain serves POST /v1/explain.
func (h *Handler) Explain(w http.ResponseWriter, r *http.Request) {
	var in explainRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxExplainBody)).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_argument", "invalid json body")
		return
	}
	if strings.TrimSpace(in.Prompt) == "" {
		writeError(w, http.StatusBadRequest, "invalid_argument", "prompt is required")
		return
	}
	req := textgen.Request{Prompt: in.Prompt, SystemInstruction: in.SystemInstruction}
	if len(in.Schema) > 0 && string(in.Schema) != "null" {
		var schema genai.Schema
		if err := json.Unmarshal(in.Schema, &schema); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_argument", "invalid schema")
			return
		}
		req.Schema = &schema
	}

	raw, err := h.text.GenerateJSON(r.Context(), req)
	if err != nil {
		status, code := http.StatusBadGateway, "upstream"
		switch {
		case errors.Is(err, textgen.ErrNoCredential):
			status, code = http.StatusServiceUnavailable, "unavailable"
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			status, code = http.StatusGatewayTimeout, "deadline_exceeded"
		}
		logging.From(r.Context(), h.log).Warn("structured generation failed", zap.Error(err))
		writeError(w, status, code, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, explainResponse{Model: h.text.Name(), Result: raw})
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := jsonutil.MarshalNoEscape(v)
	if err != nil {
		http.Error(w, `{"code":"internal","message":"encode failed"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
