// Package render expands the embedded per-level notification templates.
// Each template file defines "subject", "text" and "html" blocks.
package render

import (
	"bytes"
	"embed"
	"fmt"
	htmltemplate "html/template"
	"io/fs"
	"path"
	"strings"
	texttemplate "text/template"
	"time"

	notificationdomain "github.com/smallbiznis/spendwise/internal/notification/domain"
)

//go:embed templates/*.html
var files embed.FS

type pair struct {
	text *texttemplate.Template
	html *htmltemplate.Template
}

type Renderer struct {
	templates map[string]pair
}

var funcs = map[string]any{
	"money": Money,
	"date":  formatDate,
	"upper": strings.ToUpper,
}

// New parses every embedded template. The template name is the file name
// without extension.
func New() (*Renderer, error) {
	entries, err := fs.Glob(files, "templates/*.html")
	if err != nil {
		return nil, err
	}

	r := &Renderer{templates: make(map[string]pair, len(entries))}
	for _, entry := range entries {
		raw, err := files.ReadFile(entry)
		if err != nil {
			return nil, err
		}
		name := strings.TrimSuffix(path.Base(entry), path.Ext(entry))

		text, err := texttemplate.New(name).Funcs(funcs).Parse(string(raw))
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		html, err := htmltemplate.New(name).Funcs(funcs).Parse(string(raw))
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		r.templates[name] = pair{text: text, html: html}
	}
	return r, nil
}

func (r *Renderer) Has(name string) bool {
	_, ok := r.templates[name]
	return ok
}

func (r *Renderer) Render(name string, data notificationdomain.TemplateData) (notificationdomain.Rendered, error) {
	t, ok := r.templates[name]
	if !ok {
		return notificationdomain.Rendered{}, notificationdomain.ErrUnknownTemplate
	}

	var out notificationdomain.Rendered
	var buf bytes.Buffer
	if err := t.text.ExecuteTemplate(&buf, "subject", data); err != nil {
		return out, err
	}
	out.Subject = strings.TrimSpace(buf.String())

	buf.Reset()
	if err := t.text.ExecuteTemplate(&buf, "text", data); err != nil {
		return out, err
	}
	out.Text = strings.TrimSpace(buf.String())

	buf.Reset()
	if err := t.html.ExecuteTemplate(&buf, "html", data); err != nil {
		return out, err
	}
	out.HTML = strings.TrimSpace(buf.String())
	return out, nil
}

// Money formats cents as dollars with thousands separators.
func Money(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	whole := fmt.Sprintf("%d", cents/100)
	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return fmt.Sprintf("%s$%s.%02d", sign, b.String(), cents%100)
}

func formatDate(t *time.Time) string {
	if t == nil {
		return "no date on file"
	}
	return t.UTC().Format("Jan 2, 2006")
}
