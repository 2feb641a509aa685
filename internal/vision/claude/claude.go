package claude

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/liushuangls/go-anthropic/v2"

	"github.com/vbonduro/insightstudio/internal/vision"
)

const DefaultModel = "claude-opus-4-6"

// maxTokens leaves room for the four-section report plus any extra detail
// the user's instructions ask for.
const maxTokens = 2048

type ClaudeGenerator struct {
	client *anthropic.Client
	model  string
}

func NewClaudeGenerator(apiKey, model string, opts ...anthropic.ClientOption) *ClaudeGenerator {
	if model == "" {
		model = DefaultModel
	}
	return &ClaudeGenerator{
		client: anthropic.NewClient(apiKey, opts...),
		model:  model,
	}
}

func (g *ClaudeGenerator) Model() string { return g.model }

func (g *ClaudeGenerator) Generate(ctx context.Context, parts []vision.Part) (*vision.Response, error) {
	resp, err := g.client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model:     anthropic.Model(g.model),
		MaxTokens: maxTokens,
		Messages: []anthropic.Message{{
			Role:    anthropic.RoleUser,
			Content: buildContent(parts),
		}},
	})
	if err != nil {
		var apiErr *anthropic.APIError
		if errors.As(err, &apiErr) {
			return nil, fmt.Errorf("claude returned %s: %w", apiErr.Type, err)
		}
		return nil, fmt.Errorf("failed to call claude: %w", err)
	}
	return vision.NormaliseText(resp.GetFirstContentText())
}

// buildContent maps parts onto Messages API content blocks in order.
func buildContent(parts []vision.Part) []anthropic.MessageContent {
	out := make([]anthropic.MessageContent, 0, len(parts))
	for _, p := range parts {
		switch {
		case p.IsImage():
			out = append(out, anthropic.NewImageMessageContent(
				anthropic.NewMessageContentSource(
					anthropic.MessagesContentSourceTypeBase64,
					normaliseMIME(p.Image.MIMEType),
					p.Image.Base64(),
				),
			))
		case strings.TrimSpace(p.Text) != "":
			out = append(out, anthropic.NewTextMessageContent(p.Text))
		}
	}
	return out
}

// normaliseMIME maps upload MIME types onto the values the Messages API
// accepts. Uploads are already restricted to JPEG and PNG; anything else is
// sent as JPEG.
func normaliseMIME(mimeType string) string {
	if mimeType == "image/png" {
		return mimeType
	}
	return "image/jpeg"
}
