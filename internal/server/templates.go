package server

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"

	"github.com/dgellow/restaurant-reviews/internal/auth"
	"github.com/dgellow/restaurant-reviews/internal/log"
	"github.com/dgellow/restaurant-reviews/internal/storage"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// Page names
const (
	pageIndex   = "index.html"
	pageCreate  = "create_restaurant.html"
	pageDetails = "details.html"
	pageProfile = "profile.html"
	pageError   = "error.html"
)

// PageData is what every template receives. Pages only read the fields
// they need.
type PageData struct {
	CurrentUser *auth.User
	AuthEnabled bool
	Production  bool

	Restaurants []storage.RestaurantSummary
	Restaurant  storage.RestaurantSummary
	Reviews     []storage.Review
	Ratings     []int
	FormError   string

	Title      string
	Message    string
	RetryLogin bool
}

// Renderer executes the embedded page templates inside the shared layout
type Renderer struct {
	pages map[string]*template.Template
}

// NewRenderer parses every page template once.
func NewRenderer() (*Renderer, error) {
	r := &Renderer{pages: make(map[string]*template.Template)}
	for _, page := range []string{pageIndex, pageCreate, pageDetails, pageProfile, pageError} {
		tmpl, err := template.ParseFS(templateFS, "templates/layout.html", "templates/"+page)
		if err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", page, err)
		}
		r.pages[page] = tmpl
	}
	return r, nil
}

// Render writes page with the given status. The page is rendered to a
// buffer first so a template failure still produces a clean 500.
func (r *Renderer) Render(w http.ResponseWriter, status int, page string, data PageData) {
	tmpl, ok := r.pages[page]
	if !ok {
		log.LogErrorWithFields("render", "Unknown template", map[string]any{"page": page})
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout", data); err != nil {
		log.LogErrorWithFields("render", "Failed to render template", map[string]any{
			"page":  page,
			"error": err.Error(),
		})
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// staticHandler serves the embedded assets under /mount/.
func staticHandler() http.Handler {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return http.StripPrefix("/mount/", http.FileServerFS(sub))
}
