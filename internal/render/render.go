// Package render turns a classified visit into the landing page markup.
package render

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"os"
	"path/filepath"
)

//go:embed templates/*.html
var embedded embed.FS

// MainTemplate is the page served on GET /.
const MainTemplate = "main.html"

// PageData is the view model passed to templates.
type PageData struct {
	Title     string
	RequestID string
}

// Renderer writes a named template.
type Renderer interface {
	Render(w io.Writer, name string, data PageData) error
}

// Templates renders html/template files parsed once at startup.
type Templates struct {
	set *template.Template
}

// New parses the embedded templates, or the *.html files in dir when dir is
// non-empty.
func New(dir string) (*Templates, error) {
	var (
		set *template.Template
		err error
	)
	if dir == "" {
		set, err = template.ParseFS(embedded, "templates/*.html")
	} else {
		if _, statErr := os.Stat(dir); statErr != nil {
			return nil, fmt.Errorf("templates dir: %w", statErr)
		}
		set, err = template.ParseGlob(filepath.Join(dir, "*.html"))
	}
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	if set.Lookup(MainTemplate) == nil {
		return nil, fmt.Errorf("parse templates: %s not found", MainTemplate)
	}
	return &Templates{set: set}, nil
}

// Render executes name into a buffer first so a failed template never
// leaves a partial page on w.
func (t *Templates) Render(w io.Writer, name string, data PageData) error {
	var buf bytes.Buffer
	if err := t.set.ExecuteTemplate(&buf, name, data); err != nil {
		return fmt.Errorf("render %s: %w", name, err)
	}
	_, err := buf.WriteTo(w)
	return err
}
