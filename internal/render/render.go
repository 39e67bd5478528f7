// Package render turns display items into HTML. Every value goes through
// html/template contextual escaping, which is the only path by which
// webhook content reaches a document.
package render

import (
	"bytes"
	"fmt"
	"html/template"
	"io"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"

	"github.com/young1lin/agentsearch/internal/models"
)

const NothingFound = "Nothing found 😕"

var templates = template.Must(template.New("render").Parse(`
{{define "items"}}{{if not .}}<p class="empty">` + NothingFound + `</p>{{else}}{{range .}}
<div class="video-card">
  <strong>{{.Title}}</strong>
  {{- if .MetaText}}
  <div class="hint">{{.MetaText}}</div>
  {{- end}}
  {{- if .URL}}
  <div class="link"><a href="{{.URL}}" target="_blank" rel="noopener noreferrer">{{.URL}}</a></div>
  {{- end}}
</div>{{end}}{{end}}{{end}}

{{define "error"}}
<div class="error-box">
  <strong>An error occurred{{if .Code}} ({{.Code}}){{end}}.</strong>
  <div class="message">{{.Message}}</div>
  <div class="hint">{{.Hint}}</div>
  <div class="actions">
    <form method="post" action="/retry"><button id="ai-retry-btn" type="submit">Retry</button></form>
    <form method="post" action="/new"><button id="ai-newsearch-err" type="submit">New query</button></form>
  </div>
</div>{{end}}
`))

// Renderer produces card, error panel and page markup
type Renderer struct {
	md *converter.Converter
}

// New creates a Renderer
func New() *Renderer {
	return &Renderer{
		md: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
			),
		),
	}
}

// Items renders one card per item, or the "nothing found" placeholder
func (r *Renderer) Items(items []models.DisplayItem) template.HTML {
	return execute("items", items)
}

// Error renders the error panel with its retry and new-query actions.
// code is omitted from the heading when zero.
func (r *Renderer) Error(message string, code int, hint string) template.HTML {
	return execute("error", struct {
		Message string
		Code    int
		Hint    string
	}{message, code, hint})
}

// Text converts a rendered fragment to Markdown for terminal output
func (r *Renderer) Text(fragment template.HTML) (string, error) {
	md, err := r.md.ConvertString(string(fragment))
	if err != nil {
		return "", fmt.Errorf("converting HTML to markdown: %w", err)
	}
	return md, nil
}

// Page writes the complete widget document
func (r *Renderer) Page(w io.Writer, view PageView) error {
	return pageTemplate.Execute(w, view)
}

func execute(name string, data any) template.HTML {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		// templates are static; only a programming error gets here
		panic(fmt.Sprintf("render %s: %v", name, err))
	}
	return template.HTML(buf.String())
}
