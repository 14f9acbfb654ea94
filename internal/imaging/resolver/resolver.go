// Package resolver is the single entry point for image acquisition. It
// chains the static table, the persistent cache, in-flight dedup and the
// generation queue, and falls back to a synthesized image on any failure.
package resolver

import (
	"context"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"elementx/internal/imaging"
	"elementx/internal/imaging/dedup"
	"elementx/internal/imaging/fallback"
	"elementx/internal/imaging/reference"
	"elementx/internal/logging"
	"elementx/internal/metrics"
)

// Cache is the persistent key -> image store.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, data string)
}

// Submitter runs one generation job; *queue.Queue satisfies it.
type Submitter interface {
	Submit(ctx context.Context, key, prompt string) (string, error)
}

type Options struct {
	Cache Cache
	Queue Submitter
	// Online is false when no credential is configured; every request that
	// misses the static table then renders a fallback.
	Online  bool
	Log     *zap.Logger
	Metrics *metrics.Metrics
}

type Resolver struct {
	cache   Cache
	queue   Submitter
	online  bool
	group   dedup.Group
	log     *zap.Logger
	metrics *metrics.Metrics
}

func New(opts Options) *Resolver {
	online := opts.Online && opts.Queue != nil
	return &Resolver{
		cache:   opts.Cache,
		queue:   opts.Queue,
		online:  online,
		log:     logging.OrNop(opts.Log).Named("resolver"),
		metrics: opts.Metrics,
	}
}

// Online reports whether remote generation is attempted at all.
func (r *Resolver) Online() bool { return r.online }

// InFlight is the number of remote resolutions currently outstanding.
func (r *Resolver) InFlight() int { return r.group.InFlight() }

// GetImage always returns a displayable image string.
func (r *Resolver) GetImage(ctx context.Context, req imaging.Request) string {
	return r.Resolve(ctx, req).Image
}

// Resolve is GetImage plus the layer that produced the image.
func (r *Resolver) Resolve(ctx context.Context, req imaging.Request) imaging.Resolution {
	res := r.resolve(ctx, req)
	r.metrics.ObserveResolution(string(res.Source), req.Kind.String())
	return res
}

func (r *Resolver) resolve(ctx context.Context, req imaging.Request) imaging.Resolution {
	hint := strings.TrimSpace(req.FormulaHint)
	if req.Kind == imaging.KindCompound && hint != "" {
		if ref, ok := reference.Lookup(hint); ok {
			return imaging.Resolution{Image: ref, Source: imaging.SourceStatic}
		}
	}
	if !r.online {
		return r.fallback(req)
	}

	key := resolutionKey(req)
	if r.cache != nil {
		if img, ok := r.cache.Get(ctx, key); ok {
			return imaging.Resolution{Image: img, Source: imaging.SourceCache}
		}
	}

	img, err, shared := r.group.JoinOrCreate(ctx, key, func(fctx context.Context) (string, error) {
		img, err := r.queue.Submit(fctx, key, generationPrompt(req))
		if err != nil {
			return "", err
		}
		if r.cache != nil {
			r.cache.Set(fctx, key, img)
		}
		return img, nil
	})
	if err != nil || img == "" {
		logging.From(ctx, r.log).Info("remote image unavailable, using fallback",
			zap.String("key", key),
			zap.Bool("shared", shared),
			zap.Error(err))
		return r.fallback(req)
	}
	return imaging.Resolution{Image: img, Source: imaging.SourceRemote}
}

func (r *Resolver) fallback(req imaging.Request) imaging.Resolution {
	hint := strings.TrimSpace(req.FormulaHint)
	var img string
	switch req.Kind {
	case imaging.KindSolution:
		img = fallback.Render(imaging.KindSolution, hint, "")
	default:
		label := DerivedLabel(req.Prompt)
		if label == "" {
			label = hint
		}
		img = fallback.Render(imaging.KindCompound, label, hint)
	}
	return imaging.Resolution{Image: img, Source: imaging.SourceFallback}
}

// DerivedLabel is the last word of prompt without surrounding punctuation.
func DerivedLabel(prompt string) string {
	fields := strings.Fields(prompt)
	for i := len(fields) - 1; i >= 0; i-- {
		w := strings.TrimFunc(fields[i], func(r rune) bool {
			return unicode.IsPunct(r) && r != '(' && r != ')'
		})
		if w != "" {
			return w
		}
	}
	return ""
}

// resolutionKey falls back to kind, formula and prompt when the caller sent
// no key. The formula keeps case so Co and CO stay distinct.
func resolutionKey(req imaging.Request) string {
	if k := strings.TrimSpace(req.Key); k != "" {
		return k
	}
	return req.Kind.String() + ":" +
		reference.Normalize(req.FormulaHint) + ":" +
		strings.ToLower(strings.Join(strings.Fields(req.Prompt), " "))
}

// generationPrompt describes the entity from its formula when no prompt was
// given.
func generationPrompt(req imaging.Request) string {
	if p := strings.TrimSpace(req.Prompt); p != "" {
		return p
	}
	hint := strings.TrimSpace(req.FormulaHint)
	if req.Kind == imaging.KindSolution {
		return "A laboratory beaker containing an aqueous solution of " + hint
	}
	return "A 3D ball-and-stick molecular model of " + hint
}
