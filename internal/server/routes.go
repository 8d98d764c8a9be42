package server

import (
	"net/http"
	"strings"

	"github.com/dgellow/restaurant-reviews/internal/auth"
	"github.com/dgellow/restaurant-reviews/internal/session"
	"github.com/dgellow/restaurant-reviews/internal/storage"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"
)

// Dependencies are what the router needs to serve the site
type Dependencies struct {
	Storage      storage.Storage
	Monitor      *storage.Monitor
	Flow         *auth.Flow
	SessionStore *session.Store
	// SiteURL is where the provider returns the browser after sign-out.
	// Defaults to "/".
	SiteURL    string
	Production bool
	// TracerProvider defaults to the global provider.
	TracerProvider trace.TracerProvider
}

// NewHandler builds the complete HTTP handler: routes plus middleware.
func NewHandler(deps Dependencies) (http.Handler, error) {
	renderer, err := NewRenderer()
	if err != nil {
		return nil, err
	}

	site := NewSiteHandlers(deps.Storage, deps.Flow, renderer, deps.Production)
	authHandlers := NewAuthHandlers(site, deps.Flow, deps.SessionStore, deps.SiteURL)

	pages := http.NewServeMux()
	pages.HandleFunc("GET /{$}", site.Index)
	pages.HandleFunc("GET /create", site.CreateForm)
	pages.HandleFunc("POST /add", site.AddRestaurant)
	pages.HandleFunc("GET /details/{id}", site.Details)
	pages.HandleFunc("POST /review/{id}", site.AddReview)

	pages.HandleFunc("GET /auth/login", authHandlers.Login)
	pages.HandleFunc("GET /auth/callback", authHandlers.Callback)
	pages.HandleFunc("GET /auth/logout", authHandlers.Logout)
	pages.HandleFunc("GET /auth/profile", authHandlers.Profile)

	pages.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		site.renderError(w, r, http.StatusNotFound, "Not found", "The page you requested does not exist.")
	})

	mux := http.NewServeMux()
	// health and assets do not need a session cookie
	mux.Handle("GET /health", NewHealthHandler(deps.Storage, deps.Monitor))
	mux.Handle("GET /mount/", staticHandler())
	mux.Handle("/", ChainMiddleware(pages,
		deps.SessionStore.Middleware,
		NewSecurityHeadersMiddleware(),
	))

	handler := ChainMiddleware(mux,
		NewLoggerMiddleware("http"),
		NewRecoverMiddleware("http"),
	)
	return instrument(handler, deps.TracerProvider), nil
}

// instrument traces every request except health probes and static assets.
func instrument(h http.Handler, tp trace.TracerProvider) http.Handler {
	opts := []otelhttp.Option{
		otelhttp.WithFilter(func(r *http.Request) bool {
			return r.URL.Path != "/health" && !strings.HasPrefix(r.URL.Path, "/mount/")
		}),
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + routeName(r.URL.Path)
		}),
	}
	if tp != nil {
		opts = append(opts, otelhttp.WithTracerProvider(tp))
	}
	return otelhttp.NewHandler(h, "http.server", opts...)
}

// routeName collapses ids so span names stay low-cardinality.
func routeName(path string) string {
	for _, prefix := range []string{"/details/", "/review/"} {
		if strings.HasPrefix(path, prefix) {
			return prefix + "{id}"
		}
	}
	return path
}
