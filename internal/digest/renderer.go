// Package digest implements the notification digest pipeline: rendering
// grouped procurement matches into French email digests, draining the
// scheduled queue, and the synchronous per-user test send.
package digest

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"time"

	"github.com/marchespei/marchespei-api/internal/models"
)

//go:embed digest.html.tmpl
var templateFS embed.FS

// Renderer turns a digest payload into a subject line and a self-contained
// HTML body. It holds no mutable state; Render is safe for concurrent use.
type Renderer struct {
	baseURL string
	tmpl    *template.Template
}

func NewRenderer(baseURL string) (*Renderer, error) {
	tmpl, err := template.ParseFS(templateFS, "digest.html.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse digest template: %w", err)
	}
	return &Renderer{baseURL: baseURL, tmpl: tmpl}, nil
}

// Render produces the digest message for the given payload as of now.
func (r *Renderer) Render(kind models.DigestKind, groups []models.AlertGroup, now time.Time) (subject, body string, err error) {
	view := BuildView(kind, groups, now, r.baseURL)

	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, view); err != nil {
		return "", "", fmt.Errorf("execute digest template: %w", err)
	}
	return view.Subject, buf.String(), nil
}
