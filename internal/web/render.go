package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/edgard/cropwise/internal/assistant"
	"github.com/edgard/cropwise/internal/crop"
	"github.com/edgard/cropwise/internal/predictor"
	"github.com/edgard/cropwise/internal/session"
)

//go:embed templates/*.html
var templateFS embed.FS

func parsePage() (*template.Template, error) {
	t, err := template.ParseFS(templateFS, "templates/index.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse page template: %w", err)
	}

	return t, nil
}

// Markdown renders assistant replies to sanitized HTML.
type Markdown struct {
	md     goldmark.Markdown
	policy *bluemonday.Policy
}

// NewMarkdown returns a GitHub-flavoured renderer with a UGC sanitizing policy.
func NewMarkdown() *Markdown {
	return &Markdown{
		md:     goldmark.New(goldmark.WithExtensions(extension.GFM)),
		policy: bluemonday.UGCPolicy(),
	}
}

// Render converts src to HTML. Raw HTML in src never survives sanitizing.
func (m *Markdown) Render(src string) template.HTML {
	var buf bytes.Buffer
	if err := m.md.Convert([]byte(src), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(src))
	}

	return template.HTML(m.policy.SanitizeBytes(buf.Bytes())) //nolint:gosec // sanitized by bluemonday
}

type fieldView struct {
	Key   string
	Label string
	Value string
	Min   string
	Max   string
	Step  string
}

type turnView struct {
	User   bool
	Text   string
	HTML   template.HTML
	Notice string
}

type pageData struct {
	Title          string
	Placeholder    string
	Fields         []fieldView
	Recommendation *predictor.Recommendation
	Flash          []string
	Turns          []turnView
}

func (s *Server) pageData(snap session.Snapshot) pageData {
	values := snap.Panel.Features()

	fields := make([]fieldView, 0, crop.NumFeatures)
	for i, b := range crop.Bounds {
		step := "0.01"
		if b.Integer {
			step = "1"
		}
		fields = append(fields, fieldView{
			Key:   string(b.Field),
			Label: b.Label,
			Value: b.Format(values[i]),
			Min:   b.Format(b.Min),
			Max:   b.Format(b.Max),
			Step:  step,
		})
	}

	turns := make([]turnView, 0, len(snap.Transcript))
	for _, t := range snap.Transcript {
		v := turnView{User: t.Role == assistant.RoleUser, Text: t.Content}
		if !v.User {
			v.HTML = s.markdown.Render(t.Content)
		}
		if t.Failure != nil {
			v.Notice = t.Failure.Notice
		}
		turns = append(turns, v)
	}

	return pageData{
		Title:          s.messages.Title,
		Placeholder:    s.messages.ChatPlaceholder,
		Fields:         fields,
		Recommendation: snap.Recommendation,
		Flash:          snap.Flash,
		Turns:          turns,
	}
}
