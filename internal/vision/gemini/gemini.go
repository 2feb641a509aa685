package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	generativelanguage "google.golang.org/api/generativelanguage/v1beta"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/vbonduro/insightstudio/internal/vision"
)

const DefaultModel = "gemini-3-flash-preview"

type GeminiGenerator struct {
	models *generativelanguage.ModelsService
	model  string
}

// NewGeminiGenerator builds a client for the Generative Language API. An empty
// apiKey is accepted: the client is built unauthenticated and the service
// rejects the first call, so a missing credential surfaces per request rather
// than at startup.
func NewGeminiGenerator(ctx context.Context, apiKey, model string, opts ...option.ClientOption) (*GeminiGenerator, error) {
	if model == "" {
		model = DefaultModel
	}

	auth := option.WithoutAuthentication()
	if apiKey != "" {
		auth = option.WithAPIKey(apiKey)
	}

	svc, err := generativelanguage.NewService(ctx, append([]option.ClientOption{auth}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &GeminiGenerator{models: svc.Models, model: model}, nil
}

func (g *GeminiGenerator) Model() string { return g.model }

// Generate sends parts as a single user turn. Empty text parts are dropped
// because the API rejects them; the order of the rest is preserved.
func (g *GeminiGenerator) Generate(ctx context.Context, parts []vision.Part) (*vision.Response, error) {
	req := &generativelanguage.GenerateContentRequest{
		Contents: []*generativelanguage.Content{{
			Role:  "user",
			Parts: toWireParts(parts),
		}},
	}

	resp, err := g.models.GenerateContent(resourceName(g.model), req).Context(ctx).Do()
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) {
			return nil, fmt.Errorf("gemini returned status %d: %w", apiErr.Code, err)
		}
		return nil, fmt.Errorf("failed to call gemini: %w", err)
	}

	if fb := resp.PromptFeedback; fb != nil && fb.BlockReason != "" {
		return nil, fmt.Errorf("%w: %s", vision.ErrBlocked, fb.BlockReason)
	}
	if len(resp.Candidates) == 0 {
		return nil, vision.ErrEmptyResponse
	}

	cand := resp.Candidates[0]
	text := candidateText(cand)
	if strings.TrimSpace(text) == "" && cand.FinishReason != "" && cand.FinishReason != "STOP" {
		return nil, fmt.Errorf("%w: finish reason %s", vision.ErrBlocked, cand.FinishReason)
	}
	return vision.NormaliseText(text)
}

func toWireParts(parts []vision.Part) []*generativelanguage.Part {
	out := make([]*generativelanguage.Part, 0, len(parts))
	for _, p := range parts {
		switch {
		case p.IsImage():
			out = append(out, &generativelanguage.Part{
				InlineData: &generativelanguage.Blob{
					MimeType: p.Image.MIMEType,
					Data:     p.Image.Base64(),
				},
			})
		case strings.TrimSpace(p.Text) != "":
			out = append(out, &generativelanguage.Part{Text: p.Text})
		}
	}
	return out
}

// candidateText concatenates every text part of the candidate, matching how
// the official SDKs expose a response's text.
func candidateText(c *generativelanguage.Candidate) string {
	if c == nil || c.Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, p := range c.Content.Parts {
		sb.WriteString(p.Text)
	}
	return sb.String()
}

func resourceName(model string) string {
	if strings.HasPrefix(model, "models/") {
		return model
	}
	return "models/" + model
}
