package render

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// Renderer turns model output into HTML that is safe to embed in a page.
// Output is treated as markdown; any raw HTML it carries is sanitized.
type Renderer struct {
	md     goldmark.Markdown
	policy *bluemonday.Policy
}

func New() *Renderer {
	return &Renderer{
		md: goldmark.New(
			goldmark.WithExtensions(extension.Table, extension.Strikethrough, extension.Linkify),
		),
		policy: bluemonday.UGCPolicy(),
	}
}

func (r *Renderer) HTML(text string) (template.HTML, error) {
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(text), &buf); err != nil {
		return "", fmt.Errorf("failed to render markdown: %w", err)
	}
	// Safe: the policy above has already sanitized the markup.
	return template.HTML(r.policy.SanitizeBytes(buf.Bytes())), nil
}
