package web

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"library-web/library"
)

//go:embed templates/*.html
var templateFS embed.FS

// page is handed to every template.
type page struct {
	Identity library.Identity
	Flashes  []flashMessage
	Data     any
}

func (p page) LoggedIn() bool    { return !p.Identity.Anonymous() }
func (p page) IsLibrarian() bool { return p.Identity.Role == library.RoleLibrarian }
func (p page) IsMember() bool    { return p.Identity.Role == library.RoleMember }

var templateFuncs = template.FuncMap{
	"date": func(t time.Time) string { return t.Local().Format("2006-01-02 15:04") },
	"datep": func(t *time.Time) string {
		if t == nil {
			return ""
		}
		return t.Local().Format("2006-01-02 15:04")
	},
	"add": func(a, b int) int { return a + b },
	"sub": func(a, b int) int { return a - b },
}

// templateRenderer renders each page inside the shared layout.
type templateRenderer struct {
	pages map[string]*template.Template
}

func newTemplateRenderer() (*templateRenderer, error) {
	layout, err := template.New("layout.html").Funcs(templateFuncs).ParseFS(templateFS, "templates/layout.html")
	if err != nil {
		return nil, fmt.Errorf("parse layout: %w", err)
	}

	files, err := fs.Glob(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}

	r := &templateRenderer{pages: make(map[string]*template.Template, len(files))}
	for _, file := range files {
		name := path.Base(file)
		if name == "layout.html" {
			continue
		}
		t, err := layout.Clone()
		if err != nil {
			return nil, err
		}
		if _, err := t.ParseFS(templateFS, file); err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		r.pages[name] = t
	}
	return r, nil
}

func (r *templateRenderer) Render(w io.Writer, name string, data any, _ echo.Context) error {
	t, ok := r.pages[name]
	if !ok {
		return fmt.Errorf("template %s not found", name)
	}
	return t.ExecuteTemplate(w, "layout", data)
}

// jsonSerializer plugs json-iterator into echo's c.JSON and c.Bind.
type jsonSerializer struct{}

func (jsonSerializer) Serialize(c echo.Context, i any, indent string) error {
	enc := json.NewEncoder(c.Response())
	if indent != "" {
		enc.SetIndent("", indent)
	}
	return enc.Encode(i)
}

func (jsonSerializer) Deserialize(c echo.Context, i any) error {
	if err := json.NewDecoder(c.Request().Body).Decode(i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error()).SetInternal(err)
	}
	return nil
}

func wantsJSON(c echo.Context) bool {
	return strings.Contains(c.Request().Header.Get(echo.HeaderAccept), echo.MIMEApplicationJSON)
}

// render answers a GET with the named template, or with the bare data as JSON
// when the client asks for it.
func render(c echo.Context, status int, name string, data any) error {
	if wantsJSON(c) {
		return c.JSON(status, data)
	}
	return c.Render(status, name, page{
		Identity: identityOf(c),
		Flashes:  popFlashes(c),
		Data:     data,
	})
}
