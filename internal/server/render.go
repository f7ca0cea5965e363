package server

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
	"net/url"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/labstack/echo/v4"
	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
)

var (
	md        = goldmark.New()
	sanitizer = bluemonday.UGCPolicy()
)

var pageNames = []string{
	"articles.html",
	"article.html",
	"categories.html",
	"signin.html",
	"register.html",
	"error.html",
}

// renderer executes page templates, each parsed into its own clone of
// base.html so pages can define "title" and "content" independently.
type renderer struct {
	pages map[string]*template.Template
}

func newRenderer() (*renderer, error) {
	funcMap := template.FuncMap{
		"markdown":   renderMarkdown,
		"truncate":   truncate,
		"formatDate": formatDate,
		"pathEscape": func(v any) string {
			switch s := v.(type) {
			case string:
				return url.PathEscape(s)
			case *string:
				if s != nil {
					return url.PathEscape(*s)
				}
			}
			return ""
		},
		"deref": func(s *string) string {
			if s == nil {
				return ""
			}
			return *s
		},
		"rating": func(r *int) string {
			if r == nil {
				return "–"
			}
			return strconv.Itoa(*r)
		},
	}

	base, err := template.New("base.html").Funcs(funcMap).ParseFS(templateFS, "templates/base.html")
	if err != nil {
		return nil, fmt.Errorf("parsing base template: %w", err)
	}

	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		clone, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("cloning base for %s: %w", name, err)
		}
		if _, err := clone.ParseFS(templateFS, "templates/"+name); err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", name, err)
		}
		pages[name] = clone
	}
	return &renderer{pages: pages}, nil
}

func (r *renderer) Render(w io.Writer, name string, data any, _ echo.Context) error {
	tmpl, ok := r.pages[name]
	if !ok {
		return fmt.Errorf("template %s not found", name)
	}
	if err := tmpl.ExecuteTemplate(w, "base.html", data); err != nil {
		return fmt.Errorf("rendering template %s: %w", name, err)
	}
	return nil
}

// renderMarkdown converts article text to HTML restricted to the UGC policy.
func renderMarkdown(text *string) template.HTML {
	if text == nil {
		return ""
	}
	var buf bytes.Buffer
	if err := md.Convert([]byte(*text), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(*text))
	}
	return template.HTML(sanitizer.SanitizeBytes(buf.Bytes())) //nolint: gosec
}

func truncate(s *string, n int) string {
	if s == nil {
		return ""
	}
	if utf8.RuneCountInString(*s) <= n {
		return *s
	}
	runes := []rune(*s)
	return string(runes[:n]) + "..."
}

func formatDate(v any) string {
	switch t := v.(type) {
	case time.Time:
		if t.IsZero() {
			return ""
		}
		return t.Format("02 Jan 2006")
	case *string:
		if t == nil || *t == "" {
			return "Unknown date"
		}
		for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
			if parsed, err := time.Parse(layout, *t); err == nil {
				return parsed.Format("02 Jan 2006")
			}
		}
		return *t
	}
	return ""
}
