package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"notesync/internal/collection"
	"notesync/internal/config"
	"notesync/internal/http/handler"
	mw "notesync/internal/http/middleware"
	"notesync/internal/metrics"
	"notesync/internal/note"
)

// NewRouter serves the notes API on top of svc and the generic collection
// and schema API on top of items. svc is expected to wrap items.
func NewRouter(cfg config.Config, items *collection.Service, svc *note.Service, m *metrics.Collector, log *zap.Logger) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	if m == nil {
		m = metrics.NewCollector("notesync")
	}

	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(mw.Logger(log))
	r.Use(mw.Metrics(m))
	r.Use(chimw.Recoverer)

	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(mw.CORS(cfg.CORSAllowedOrigins, cfg.CORSAllowCredentials))
	}

	r.Get("/", handler.Root)
	r.Get("/health", handler.Health)
	r.Method(http.MethodGet, "/metrics", m.Handler())

	notes := &handler.NoteHandler{Svc: svc, Metrics: m, Log: log}
	syncH := &handler.SyncHandler{Svc: svc, Metrics: m, Log: log}

	r.Route("/notes", func(r chi.Router) {
		r.Get("/", notes.List)
		r.Get("/since/{timestamp}", notes.Since)
		r.Get("/{key}", notes.Get)
		r.Put("/{key}", notes.Put)
		r.Delete("/{key}", notes.Delete)
	})
	r.Post("/sync", syncH.Sync)
	r.Get("/tags", notes.Tags)

	itemsH := &handler.ItemHandler{Svc: items, Metrics: m, Log: log}
	schemas := &handler.SchemaHandler{Svc: items, Log: log}

	r.Get("/collections", itemsH.Collections)
	r.Route("/collections/{collection}", func(r chi.Router) {
		r.Get("/items", itemsH.List)
		r.Get("/items/since/{timestamp}", itemsH.Since)
		r.Get("/items/{key}", itemsH.Get)
		r.Put("/items/{key}", itemsH.Put)
		r.Delete("/items/{key}", itemsH.Delete)
		r.Post("/sync", itemsH.Sync)
	})
	r.Route("/schemas", func(r chi.Router) {
		r.Get("/", schemas.List)
		r.Get("/{collection}", schemas.Get)
		r.Put("/{collection}", schemas.Put)
		r.Delete("/{collection}", schemas.Delete)
	})

	return r
}
