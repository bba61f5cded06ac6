package api

import (
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/nikhilbhutani/medibot/internal/api/handlers"
	"github.com/nikhilbhutani/medibot/internal/api/middleware"
	"github.com/nikhilbhutani/medibot/internal/rag"
)

const staticPrefix = "/static"

// Deps are the already-constructed services the HTTP layer serves.
type Deps struct {
	Answerer  rag.Answerer
	Readiness *rag.Readiness
	Health    map[string]handlers.Pinger
	Templates fs.FS
	Static    fs.FS
	Logger    *slog.Logger
}

type Router struct {
	mux  *chi.Mux
	deps Deps
	rl   *middleware.RateLimiter
}

func NewRouter(deps Deps) *Router {
	return &Router{
		mux:  chi.NewRouter(),
		deps: deps,
		rl:   middleware.NewRateLimiter(100, 200),
	}
}

func (rt *Router) Setup() (http.Handler, error) {
	r := rt.mux

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS([]string{"*"}))
	r.Use(rt.rl.Limit)

	health := handlers.NewHealthHandler(rt.deps.Readiness, rt.deps.Health)
	r.Get("/healthz", health.Healthz)
	r.Get("/readyz", health.Readyz)

	ui, err := handlers.NewUIHandler(rt.deps.Templates, staticPrefix)
	if err != nil {
		return nil, err
	}
	r.Get("/", ui.Index)
	r.Handle(staticPrefix+"/*", http.StripPrefix(staticPrefix, http.FileServer(http.FS(rt.deps.Static))))

	chat := handlers.NewChatHandler(rt.deps.Answerer, rt.deps.Readiness, rt.deps.Logger)
	r.Post("/chat", chat.Chat)

	return r, nil
}

// Close releases background resources held by middleware.
func (rt *Router) Close() {
	rt.rl.Close()
}
