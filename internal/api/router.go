package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/robotdb/internal/catalog"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *catalog.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Assets.
	r.Get("/assets", h.ListAssets)
	r.Get("/assets/*", h.GetAsset)
	r.Get("/dependents/*", h.Dependents)

	// Keyword search.
	r.Get("/keywords", h.SearchKeywords)

	// Import graph.
	r.Get("/graph", h.Graph)

	// Rescan.
	r.Post("/scan", h.Scan)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
