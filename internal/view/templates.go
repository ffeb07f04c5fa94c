package view

import (
	"bytes"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"path"
	"strings"

	"github.com/stockbook/stockbook/internal/shared"
	"github.com/stockbook/stockbook/web"
)

// Engine renders HTML templates. Each page is parsed into its own set on top of
// the shared layouts and partials so pages can reuse block names.
type Engine struct {
	pages map[string]*template.Template
}

// TemplateData contains values shared across templates.
type TemplateData struct {
	Title       string
	CSRFToken   string
	Flash       *shared.FlashMessage
	CurrentPath string
	UserID      string
	Role        string
	Nav         []NavSection
	Data        any
}

// NewEngine parses the embedded templates.
func NewEngine() (*Engine, error) {
	base, err := template.New("root").Funcs(Funcs()).ParseFS(web.Templates, "templates/layouts/*.html", "templates/partials/*.html")
	if err != nil {
		return nil, fmt.Errorf("view: parse layouts: %w", err)
	}
	pages := make(map[string]*template.Template)
	err = fs.WalkDir(web.Templates, "templates/pages", func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(p, ".html") {
			return err
		}
		set, err := base.Clone()
		if err != nil {
			return err
		}
		if _, err := set.ParseFS(web.Templates, p); err != nil {
			return fmt.Errorf("view: parse %s: %w", p, err)
		}
		pages[strings.TrimPrefix(p, "templates/")] = set
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &Engine{pages: pages}, nil
}

// Has reports whether a page template exists.
func (e *Engine) Has(name string) bool {
	_, ok := e.pages[name]
	return ok
}

// Render executes the named page and writes it with status.
func (e *Engine) Render(w http.ResponseWriter, status int, name string, data TemplateData) error {
	body, err := e.RenderBytes(name, data)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err = w.Write(body)
	return err
}

// RenderBytes executes the named page into memory.
func (e *Engine) RenderBytes(name string, data TemplateData) ([]byte, error) {
	if e == nil {
		return nil, fmt.Errorf("template engine not initialised")
	}
	set, ok := e.pages[name]
	if !ok {
		return nil, fmt.Errorf("view: unknown page %q", name)
	}
	var buf bytes.Buffer
	if err := set.ExecuteTemplate(&buf, path.Base(name), data); err != nil {
		return nil, fmt.Errorf("view: render %s: %w", name, err)
	}
	return buf.Bytes(), nil
}

// NewPage assembles TemplateData from the request session: flash, role and navigation.
func NewPage(r *http.Request, title, csrfToken string, data any) TemplateData {
	sess := shared.SessionFromContext(r.Context())
	td := TemplateData{
		Title:       title,
		CSRFToken:   csrfToken,
		CurrentPath: r.URL.Path,
		Data:        data,
	}
	if sess != nil {
		td.Flash = sess.PopFlash()
		td.UserID = sess.User()
		td.Role = sess.Role()
	}
	if td.UserID != "" {
		td.Nav = BuildNav(td.Role, td.CurrentPath)
	}
	return td
}
