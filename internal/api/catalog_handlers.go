package api

import (
	"context"
	"io"
	"log"
	"net/http"

	"github.com/mapcore/server/internal/database"
	"github.com/mapcore/server/internal/mapfile"
)

// maxCatalogUpload bounds uploaded map documents
const maxCatalogUpload = 64 << 20

// Catalog stores map documents addressable as db://name
type Catalog interface {
	PutMap(ctx context.Context, doc *mapfile.Document, tags []string) (*database.StoredMap, error)
	GetMapInfo(ctx context.Context, name string) (*database.StoredMap, error)
	ListMaps(ctx context.Context, tag string) ([]database.StoredMap, error)
	DeleteMap(ctx context.Context, name string) (bool, error)
}

// CatalogHandlers manages the map catalog
type CatalogHandlers struct {
	catalog Catalog
}

// NewCatalogHandlers creates catalog handlers. A nil catalog answers 503.
func NewCatalogHandlers(catalog Catalog) *CatalogHandlers {
	return &CatalogHandlers{catalog: catalog}
}

func (h *CatalogHandlers) available(w http.ResponseWriter) bool {
	if h.catalog == nil {
		respondWithError(w, http.StatusServiceUnavailable, "Map catalog is disabled")
		return false
	}
	return true
}

// ListMaps handles GET /api/catalog[?tag=]
func (h *CatalogHandlers) ListMaps(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}
	maps, err := h.catalog.ListMaps(r.Context(), r.URL.Query().Get("tag"))
	if err != nil {
		log.Printf("[API] Error listing maps: %v", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to list maps")
		return
	}
	if maps == nil {
		maps = []database.StoredMap{}
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{"maps": maps})
}

// GetMapInfo handles GET /api/catalog/{name}
func (h *CatalogHandlers) GetMapInfo(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}
	name := r.PathValue("name")
	info, err := h.catalog.GetMapInfo(r.Context(), name)
	if err != nil {
		log.Printf("[API] Error reading map %s: %v", name, err)
		respondWithError(w, http.StatusInternalServerError, "Failed to read map")
		return
	}
	if info == nil {
		respondWithError(w, http.StatusNotFound, "Map not found")
		return
	}
	respondWithJSON(w, http.StatusOK, info)
}

// PutMap handles PUT /api/catalog/{name}[?tags=a,b]. The body is a YAML
// map document whose name must match the path.
func (h *CatalogHandlers) PutMap(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}
	name := r.PathValue("name")

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxCatalogUpload))
	if err != nil {
		respondWithError(w, http.StatusRequestEntityTooLarge, "Map document too large")
		return
	}
	doc, err := mapfile.Parse(body)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if doc.Name != name {
		respondWithError(w, http.StatusBadRequest, "Document name does not match the catalog name")
		return
	}

	var tags []string
	if s := r.URL.Query().Get("tags"); s != "" {
		tags = splitList(s)
	}
	stored, err := h.catalog.PutMap(r.Context(), doc, tags)
	if err != nil {
		log.Printf("[API] Error storing map %s: %v", name, err)
		respondWithError(w, http.StatusInternalServerError, "Failed to store map")
		return
	}
	log.Printf("[API] Stored map %s version %d", stored.Name, stored.Version)
	respondWithJSON(w, http.StatusOK, stored)
}

// DeleteMap handles DELETE /api/catalog/{name}
func (h *CatalogHandlers) DeleteMap(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}
	name := r.PathValue("name")
	deleted, err := h.catalog.DeleteMap(r.Context(), name)
	if err != nil {
		log.Printf("[API] Error deleting map %s: %v", name, err)
		respondWithError(w, http.StatusInternalServerError, "Failed to delete map")
		return
	}
	if !deleted {
		respondWithError(w, http.StatusNotFound, "Map not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
