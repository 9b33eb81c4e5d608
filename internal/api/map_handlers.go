package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"sort"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/mapcore/server/internal/mapctl"
	"github.com/mapcore/server/internal/maploader"
	"github.com/mapcore/server/internal/scene"
	"github.com/mapcore/server/internal/streaming"
)

// MapLoader builds scene graphs from map URLs
type MapLoader interface {
	Load(ctx context.Context, url string) (scene.Node, error)
}

// MapHandlers manages the active map and camera
type MapHandlers struct {
	resolver    *mapctl.Resolver
	loader      MapLoader
	stream      *streaming.Manager
	loadTimeout time.Duration
	onChange    func(MapInfo)
}

// NewMapHandlers creates map handlers. stream may be nil.
func NewMapHandlers(resolver *mapctl.Resolver, loader MapLoader, stream *streaming.Manager, loadTimeout time.Duration) *MapHandlers {
	if loadTimeout <= 0 {
		loadTimeout = 30 * time.Second
	}
	return &MapHandlers{
		resolver:    resolver,
		loader:      loader,
		stream:      stream,
		loadTimeout: loadTimeout,
	}
}

// MapInfo describes the active map
type MapInfo struct {
	Active     bool       `json:"active"`
	Name       string     `json:"name,omitempty"`
	Projection string     `json:"projection"`
	Origin     [3]float64 `json:"origin"`
	UTMZone    int        `json:"utm_zone,omitempty"`
	UTMNorth   bool       `json:"utm_north,omitempty"`
	Regions    []string   `json:"regions"`
}

// SetMapRequest replaces the active map
type SetMapRequest struct {
	URL string `json:"url" validate:"required,max=2048"`
}

// StreamUpdateRequest runs a dynamic load pass around a global position
type StreamUpdateRequest struct {
	Eye [3]float64 `json:"eye"`
}

// OnMapChange registers fn to be called after the active map changes
func (h *MapHandlers) OnMapChange(fn func(MapInfo)) {
	h.onChange = fn
}

func (h *MapHandlers) mapChanged() MapInfo {
	info := h.mapInfo()
	if h.onChange != nil {
		h.onChange(info)
	}
	return info
}

func (h *MapHandlers) mapInfo() MapInfo {
	info := MapInfo{
		Projection: h.resolver.Projection().String(),
		Origin:     h.resolver.GlobalOrigin(),
		Regions:    []string{},
	}
	if h.resolver.ActiveMap() == nil {
		return info
	}
	info.Active = true
	info.Name = h.resolver.MapName()
	if h.resolver.Projection() == mapctl.ProjectionUTM {
		info.UTMZone, info.UTMNorth = h.resolver.UTMZone()
	}
	if root := h.resolver.RootRegion(); root != nil {
		for _, region := range root.Regions() {
			info.Regions = append(info.Regions, region.Name())
		}
	}
	sort.Strings(info.Regions)
	return info
}

// GetMap handles GET /api/map
func (h *MapHandlers) GetMap(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, h.mapInfo())
}

// SetMap handles PUT /api/map
func (h *MapHandlers) SetMap(w http.ResponseWriter, r *http.Request) {
	var req SetMapRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.loadTimeout)
	defer cancel()

	root, err := h.loader.Load(ctx, req.URL)
	if err != nil {
		log.Printf("[API] Warning: failed to load map %s: %v", req.URL, err)
		switch {
		case errors.Is(err, maploader.ErrMapNotFound):
			respondWithError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, maploader.ErrUnsupportedScheme), errors.Is(err, maploader.ErrCatalogDisabled):
			respondWithError(w, http.StatusBadRequest, err.Error())
		default:
			respondWithError(w, http.StatusBadGateway, "Failed to load map: "+err.Error())
		}
		return
	}

	h.resolver.SetActiveMap(root)
	respondWithJSON(w, http.StatusOK, h.mapChanged())
}

// ClearMap handles DELETE /api/map
func (h *MapHandlers) ClearMap(w http.ResponseWriter, r *http.Request) {
	h.resolver.SetActiveMap(nil)
	h.mapChanged()
	w.WriteHeader(http.StatusNoContent)
}

// GetCamera handles GET /api/camera
func (h *MapHandlers) GetCamera(w http.ResponseWriter, r *http.Request) {
	cam := h.resolver.Camera()
	if cam == nil {
		respondWithError(w, http.StatusNotFound, "No active camera")
		return
	}
	respondWithJSON(w, http.StatusOK, cameraResponse(cam))
}

// SetCamera handles PUT /api/camera
func (h *MapHandlers) SetCamera(w http.ResponseWriter, r *http.Request) {
	var req CameraRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	cam := req.camera()
	if !cam.Valid() {
		respondWithError(w, http.StatusBadRequest, "Camera is degenerate")
		return
	}
	h.resolver.SetCamera(cam)
	respondWithJSON(w, http.StatusOK, cameraResponse(cam))
}

// UpdateStream handles POST /api/stream/update
func (h *MapHandlers) UpdateStream(w http.ResponseWriter, r *http.Request) {
	if h.stream == nil {
		respondWithError(w, http.StatusServiceUnavailable, "Dynamic loading is disabled")
		return
	}
	var req StreamUpdateRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	delta := h.stream.UpdateAround(r.Context(), h.resolver, mgl64.Vec3(req.Eye))
	respondWithJSON(w, http.StatusOK, delta)
}
