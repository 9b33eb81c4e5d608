package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/mapcore/server/internal/geo"
	"github.com/mapcore/server/internal/mapctl"
)

// PositionHandlers exposes coordinate conversion and ground clamping
type PositionHandlers struct {
	resolver *mapctl.Resolver
}

// NewPositionHandlers creates position handlers
func NewPositionHandlers(resolver *mapctl.Resolver) *PositionHandlers {
	return &PositionHandlers{resolver: resolver}
}

// requireMap answers 409 when no map is active
func (h *PositionHandlers) requireMap(w http.ResponseWriter) bool {
	if h.resolver.ActiveMap() == nil {
		respondWithError(w, http.StatusConflict, mapctl.ErrNoActiveMap.Error())
		return false
	}
	return true
}

// ToLocal handles POST /api/positions/local
func (h *PositionHandlers) ToLocal(w http.ResponseWriter, r *http.Request) {
	var req LocalRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	clamp, opts, err := req.parse()
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !h.requireMap(w) {
		return
	}

	pos, ok := h.resolver.GeodeticToLocal(req.Position.latPos(), clamp, opts)
	if !ok {
		respondWithError(w, http.StatusUnprocessableEntity, mapctl.ErrConversion.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, LocalResponse{Position: mapPosition(pos)})
}

// ToGeodetic handles POST /api/positions/geodetic
func (h *PositionHandlers) ToGeodetic(w http.ResponseWriter, r *http.Request) {
	var req GeodeticRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	if !h.requireMap(w) {
		return
	}
	pos, ok := req.Position.toMapPos(h.resolver)
	if !ok {
		respondWithError(w, http.StatusBadRequest, "Unknown region "+strconv.Quote(req.Position.Region))
		return
	}

	lat, ok := h.resolver.LocalToGeodetic(pos)
	if !ok {
		respondWithError(w, http.StatusUnprocessableEntity, mapctl.ErrConversion.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, GeodeticResponse{Position: geodeticPosition(lat)})
}

// Clamp handles POST /api/positions/clamp. A position with no ground
// below it is returned unchanged with clamped=false.
func (h *PositionHandlers) Clamp(w http.ResponseWriter, r *http.Request) {
	var req ClampRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	clamp, opts, err := req.parse()
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !h.requireMap(w) {
		return
	}
	pos, ok := req.Position.toMapPos(h.resolver)
	if !ok {
		respondWithError(w, http.StatusBadRequest, "Unknown region "+strconv.Quote(req.Position.Region))
		return
	}

	if !h.resolver.ClampToGround(&pos, clamp, opts) {
		respondWithError(w, http.StatusConflict, mapctl.ErrNoActiveMap.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, LocalResponse{Position: mapPosition(pos)})
}

// Pick handles POST /api/positions/pick
func (h *PositionHandlers) Pick(w http.ResponseWriter, r *http.Request) {
	var req PickRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	opts, err := mapctl.ParseClampOptions(req.Options)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !h.requireMap(w) {
		return
	}
	if h.resolver.Camera() == nil {
		respondWithError(w, http.StatusConflict, "No active camera")
		return
	}

	pos, ok := h.resolver.ScreenToGround(req.X, req.Y, req.Width, req.Height, opts)
	if !ok {
		respondWithError(w, http.StatusNotFound, mapctl.ErrNoGround.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, LocalResponse{Position: mapPosition(pos)})
}

// Altitude handles GET /api/altitude?lat=&lon=[&alt=][&options=a,b]
func (h *PositionHandlers) Altitude(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	lat, errLat := strconv.ParseFloat(query.Get("lat"), 64)
	lon, errLon := strconv.ParseFloat(query.Get("lon"), 64)
	if errLat != nil || errLon != nil {
		respondWithError(w, http.StatusBadRequest, "lat and lon are required numbers")
		return
	}
	var alt float64
	if s := query.Get("alt"); s != "" {
		var err error
		if alt, err = strconv.ParseFloat(s, 64); err != nil {
			respondWithError(w, http.StatusBadRequest, "alt must be a number")
			return
		}
	}
	pos := geo.LatPos{Lat: lat, Lon: lon, Alt: alt}
	if err := geo.ValidateLatPos(pos); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	var names []string
	if s := query.Get("options"); s != "" {
		names = splitList(s)
	}
	opts, err := mapctl.ParseClampOptions(names)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !h.requireMap(w) {
		return
	}

	altitude, ok := h.resolver.GetAltitude(pos, opts)
	if !ok {
		respondWithError(w, http.StatusNotFound, mapctl.ErrNoGround.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, AltitudeResponse{Lat: lat, Lon: lon, Altitude: altitude})
}

func splitList(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' '
	})
}
