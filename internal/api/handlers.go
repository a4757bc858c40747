package api

import (
	"context"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/robotdb/internal/catalog"
	"github.com/starford/robotdb/internal/models"
)

// Handler holds API route handlers.
type Handler struct {
	svc *catalog.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *catalog.Service) *Handler {
	return &Handler{svc: svc}
}

// identityParam extracts the asset identity from the URL wildcard.
// Supports encoded slashes from OpenAPI clients (e.g. %2Fws%2Flogin.robot).
// File identities are absolute, so a path that lost its leading slash to
// the route prefix gets it back; bare library names are returned as is.
func identityParam(r *http.Request) string {
	raw := chi.URLParam(r, "*")
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		decoded = raw
	}
	if strings.Contains(decoded, "/") && !filepath.IsAbs(decoded) {
		decoded = "/" + strings.TrimLeft(decoded, "/")
	}
	return filepath.Clean(decoded)
}

func validKind(kind string) bool {
	switch models.Kind(kind) {
	case models.KindUnknown, models.KindSuite, models.KindResource, models.KindLibrary, models.KindVariable:
		return true
	}
	return false
}

// ListAssets handles GET /api/assets.
//
//	@Summary		List scanned assets with optional pagination and filtering
//	@Tags			assets
//	@Produce		json
//	@Param			kind	query		string	false	"Filter by kind"	Enums(suite, resource, library, variable)
//	@Param			limit	query		int		false	"Page size"
//	@Param			offset	query		int		false	"Page offset"
//	@Success		200		{object}	AssetListResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/assets [get]
func (h *Handler) ListAssets(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	kind := q.Get("kind")
	if !validKind(kind) {
		writeJSON(w, http.StatusBadRequest, errorBody("kind must be one of suite, resource, library, variable"))
		return
	}

	items, total, err := h.svc.ListAssets(r.Context(), kind, limit, offset)
	if err != nil {
		writeError(w, r, "list assets", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"assets": items,
		"total":  total,
	})
}

// GetAsset handles GET /api/assets/*.
//
//	@Summary		Get the stored record of one asset
//	@Tags			assets
//	@Produce		json
//	@Param			identity	path		string	true	"Absolute file path or library name"
//	@Success		200			{object}	RecordDetail
//	@Failure		404			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/assets/{identity} [get]
func (h *Handler) GetAsset(w http.ResponseWriter, r *http.Request) {
	identity := identityParam(r)
	if identity == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("identity is required"))
		return
	}
	detail, err := h.svc.GetRecord(r.Context(), identity)
	if err != nil {
		writeError(w, r, "get asset", err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// Dependents handles GET /api/dependents/*.
//
//	@Summary		List the assets importing one asset
//	@Tags			assets
//	@Produce		json
//	@Param			identity	path		string	true	"Absolute file path or library name"
//	@Success		200			{object}	DependentsResponse
//	@Failure		400			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/dependents/{identity} [get]
func (h *Handler) Dependents(w http.ResponseWriter, r *http.Request) {
	identity := identityParam(r)
	if identity == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("identity is required"))
		return
	}
	deps, err := h.svc.Dependents(r.Context(), identity)
	if err != nil {
		writeError(w, r, "dependents", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"identity":   identity,
		"dependents": deps,
	})
}

// SearchKeywords handles GET /api/keywords.
//
//	@Summary		Search keywords by name, documentation and tags
//	@Tags			keywords
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	KeywordSearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/keywords [get]
func (h *Handler) SearchKeywords(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.svc.SearchKeywords(r.Context(), q, limit)
	if err != nil {
		writeError(w, r, "keyword search", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"results": results,
	})
}

// Graph handles GET /api/graph.
//
//	@Summary		Get the import graph
//	@Tags			graph
//	@Produce		json
//	@Success		200	{object}	GraphResponse
//	@Security		BearerAuth
//	@Router			/graph [get]
func (h *Handler) Graph(w http.ResponseWriter, r *http.Request) {
	g, err := h.svc.Graph(r.Context())
	if err != nil {
		writeError(w, r, "graph", err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

// Scan handles POST /api/scan.
//
//	@Summary		Rescan the workspace and refresh the index
//	@Tags			scan
//	@Produce		json
//	@Success		200	{object}	ScanResult
//	@Failure		409	{object}	errResponse
//	@Failure		422	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/scan [post]
func (h *Handler) Scan(w http.ResponseWriter, r *http.Request) {
	// A scan outlives a dropped client so the store is never left half written.
	res, err := h.svc.Rescan(context.WithoutCancel(r.Context()))
	if err != nil {
		writeError(w, r, "scan", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
