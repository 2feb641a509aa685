package analysis

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/vbonduro/insightstudio/internal/vision"
)

// Prompt is sent ahead of every request so the four-part report structure is
// always asked for. User instructions are appended after it, never in place
// of it.
const Prompt = `You are a civil engineer.
Analyze the given image and explain:

1. Type of structure
2. Materials used
3. Structural observations
4. Safety or maintenance insights`

// Request is one user submission.
type Request struct {
	Instructions string
	Image        *vision.Image
}

// Result is a successful analysis. Text is the model output, unmodified.
type Result struct {
	ID       string
	Text     string
	Model    string
	Duration time.Duration
}

// Gateway turns a submission into exactly one model call.
type Gateway struct {
	generator vision.Generator
	inflight  *semaphore.Weighted
	timeout   time.Duration
	logger    *slog.Logger
}

type Option func(*Gateway)

// WithMaxInFlight sets how many calls may run at once. Submissions beyond the
// limit fail with KindBusy instead of waiting. The default of 1 keeps a single
// analysis in flight; a larger n is an operator opt-in that lifts that rule.
func WithMaxInFlight(n int64) Option {
	return func(g *Gateway) {
		if n > 0 {
			g.inflight = semaphore.NewWeighted(n)
		}
	}
}

// WithTimeout bounds each call. Zero leaves the backend client's own default.
func WithTimeout(d time.Duration) Option {
	return func(g *Gateway) { g.timeout = d }
}

func NewGateway(generator vision.Generator, logger *slog.Logger, opts ...Option) *Gateway {
	g := &Gateway{
		generator: generator,
		inflight:  semaphore.NewWeighted(1),
		logger:    logger,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Gateway) Model() string { return g.generator.Model() }

// Parts returns the ordered payload for req: prompt, instructions, image.
func Parts(req Request) []vision.Part {
	return []vision.Part{
		vision.TextPart(Prompt),
		vision.TextPart(req.Instructions),
		vision.ImagePart(req.Image),
	}
}

// Analyze validates req and performs one non-streaming call. Every failure is
// returned as an *Error; nothing is retried.
func (g *Gateway) Analyze(ctx context.Context, req Request) (*Result, error) {
	if req.Image == nil || len(req.Image.Data) == 0 {
		return nil, missingInput()
	}

	if !g.inflight.TryAcquire(1) {
		g.logger.Warn("analysis rejected, slot busy")
		return nil, busy()
	}
	defer g.inflight.Release(1)

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	id := uuid.NewString()
	logger := g.logger.With("analysis_id", id, "model", g.generator.Model())
	logger.Info("analysis started",
		"mime_type", req.Image.MIMEType,
		"bytes", len(req.Image.Data),
		"instructions_len", len(req.Instructions),
	)

	start := time.Now()
	resp, err := g.generator.Generate(ctx, Parts(req))
	elapsed := time.Since(start)
	if err != nil {
		logger.Error("analysis failed", "duration_ms", elapsed.Milliseconds(), "error", err)
		return nil, serviceFailure(err)
	}
	if resp == nil || resp.Text == "" {
		logger.Error("analysis failed", "duration_ms", elapsed.Milliseconds(), "error", vision.ErrEmptyResponse)
		return nil, serviceFailure(vision.ErrEmptyResponse)
	}

	logger.Info("analysis complete", "duration_ms", elapsed.Milliseconds(), "text_len", len(resp.Text))
	return &Result{
		ID:       id,
		Text:     resp.Text,
		Model:    g.generator.Model(),
		Duration: elapsed,
	}, nil
}
