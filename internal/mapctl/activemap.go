package mapctl

import (
	"fmt"
	"log"
	"strconv"
	"strings"
	"unicode"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/mapcore/server/internal/geo"
	"github.com/mapcore/server/internal/scene"
)

// Map metadata attribute keys read from a map's root node
const (
	AttrName        = "map.name"
	AttrProjection  = "map.projection"
	AttrOrigin      = "map.origin"
	AttrMaxLODRange = "map.max_lod_range"
)

// Projection names found in map metadata
const (
	ProjectionNameUTM       = "UTM"
	ProjectionNameFlatEarth = "Flat Earth"
	ProjectionNameSphere    = "Sphere"
)

// mapMetadata is the projection setup read from map attributes
type mapMetadata struct {
	projection  ProjectionKind
	origin      mgl64.Vec3
	utmZone     int
	utmNorth    bool
	maxLODRange float64
	originText  string // normalized origin attribute
}

// SetActiveMap makes root the active map and returns the effective map
// root. Maps without an ROI tree are wrapped in a synthesized one. A nil
// root clears the active map.
func (r *Resolver) SetActiveMap(root scene.Node) scene.Node {
	r.access.AcquireEditAccess()
	defer r.access.ReleaseEditAccess()

	if root == nil {
		r.projection = ProjectionUnknown
		r.origin = mgl64.Vec3{}
		r.utmZone, r.utmNorth = 0, false
		r.rootRegion = nil
		r.activeMap = nil
		r.mapName = ""
		log.Printf("[Map] Active map cleared")
		return nil
	}

	meta := readMapMetadata(root)
	name := root.Name()
	if attr, ok := root.Attribute(AttrName); ok && attr != "" {
		name = attr
	}

	effective := root
	rootRegion := scene.FindFirstRegionRoot(root)
	if rootRegion == nil {
		rootRegion, effective = r.synthesizeRegionRoot(root, name, meta.maxLODRange)
	}

	r.projection = meta.projection
	r.origin = meta.origin
	r.utmZone, r.utmNorth = meta.utmZone, meta.utmNorth
	r.rootRegion = rootRegion
	r.activeMap = effective
	r.mapName = name

	log.Printf("[Map] Active map %q: projection=%s origin=%q regions=%d",
		name, meta.projection, meta.originText, len(rootRegion.Regions()))
	return effective
}

// synthesizeRegionRoot builds root -> region -> [dynamic loader ->] map
func (r *Resolver) synthesizeRegionRoot(root scene.Node, name string, maxLODRange float64) (*scene.RegionRoot, scene.Node) {
	regionRoot := scene.NewRegionRoot(name + "_roi")
	for _, key := range []string{AttrName, AttrProjection, AttrOrigin, AttrMaxLODRange} {
		if value, ok := root.Attribute(key); ok {
			regionRoot.SetAttribute(key, value)
		}
	}

	region := scene.NewRegion(name+"_region", mgl64.Vec3{})
	region.LoadDistance = 2 * maxLODRange
	region.PurgeDistance = 2 * maxLODRange

	content := root
	if r.dynamicLoadURL != "" {
		loader := scene.NewLoadedDynamicLoader(name+"_dynamic", r.dynamicLoadURL, root)
		loader.LoadDistance = 2 * maxLODRange
		loader.PurgeDistance = 2 * maxLODRange
		content = loader
	}
	region.AddChild(content)
	regionRoot.AddRegion(region)
	return regionRoot, regionRoot
}

// readMapMetadata reads projection attributes. Missing or malformed values
// degrade to ProjectionUnknown.
func readMapMetadata(root scene.Node) mapMetadata {
	var meta mapMetadata

	if value, ok := root.Attribute(AttrMaxLODRange); ok {
		lod, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil || lod < 0 {
			log.Printf("[Map] Warning: invalid %s %q on map %s", AttrMaxLODRange, value, root.Name())
		} else {
			meta.maxLODRange = lod
		}
	}

	projection, ok := root.Attribute(AttrProjection)
	if !ok {
		log.Printf("[Map] Warning: map %s has no %s attribute, projection unknown", root.Name(), AttrProjection)
		return meta
	}
	origin, ok := root.Attribute(AttrOrigin)
	if !ok {
		log.Printf("[Map] Warning: map %s has no %s attribute, projection unknown", root.Name(), AttrOrigin)
		return meta
	}

	var err error
	switch strings.TrimSpace(projection) {
	case ProjectionNameUTM:
		var utm geo.UTMPos
		if utm, err = ParseUTMOrigin(origin); err == nil {
			meta.projection = ProjectionUTM
			meta.origin = geo.UTMToGlobal(utm)
			meta.utmZone, meta.utmNorth = utm.Zone, utm.North
			meta.originText = formatUTMOrigin(utm)
		}
	case ProjectionNameFlatEarth:
		if meta.origin, err = ParseVec3(origin); err == nil {
			meta.projection = ProjectionPlain
			meta.originText = formatVec3(meta.origin)
		}
	case ProjectionNameSphere:
		if meta.origin, err = ParseVec3(origin); err == nil {
			meta.projection = ProjectionGeocentric
			meta.originText = formatVec3(meta.origin)
		}
	default:
		err = fmt.Errorf("unsupported projection %q", projection)
	}

	if err != nil {
		log.Printf("[Map] Warning: map %s metadata rejected, projection unknown: %v", root.Name(), err)
		return mapMetadata{maxLODRange: meta.maxLODRange}
	}
	return meta
}

func splitFields(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || unicode.IsSpace(r)
	})
}

// ParseVec3 parses "x y z" (spaces or commas)
func ParseVec3(s string) (mgl64.Vec3, error) {
	fields := splitFields(s)
	if len(fields) != 3 {
		return mgl64.Vec3{}, fmt.Errorf("expected 3 components, got %d in %q", len(fields), s)
	}
	var v mgl64.Vec3
	for i, field := range fields {
		f, err := strconv.ParseFloat(field, 64)
		if err != nil {
			return mgl64.Vec3{}, fmt.Errorf("invalid component %q: %w", field, err)
		}
		v[i] = f
	}
	if err := geo.ValidateCartPos(geo.CartFromVec(v)); err != nil {
		return mgl64.Vec3{}, err
	}
	return v, nil
}

// ParseUTMOrigin parses "<zone><N|S> <easting> <northing> <height>",
// for example "33N 500000 4649776 0".
func ParseUTMOrigin(s string) (geo.UTMPos, error) {
	fields := splitFields(s)
	if len(fields) != 4 {
		return geo.UTMPos{}, fmt.Errorf("expected zone and 3 components, got %d fields in %q", len(fields), s)
	}

	zoneField := strings.ToUpper(fields[0])
	if len(zoneField) < 2 {
		return geo.UTMPos{}, fmt.Errorf("invalid UTM zone %q", fields[0])
	}
	var north bool
	switch zoneField[len(zoneField)-1] {
	case 'N':
		north = true
	case 'S':
		north = false
	default:
		return geo.UTMPos{}, fmt.Errorf("UTM zone %q must end with N or S", fields[0])
	}
	zone, err := strconv.Atoi(zoneField[:len(zoneField)-1])
	if err != nil {
		return geo.UTMPos{}, fmt.Errorf("invalid UTM zone %q: %w", fields[0], err)
	}

	v, err := ParseVec3(strings.Join(fields[1:], " "))
	if err != nil {
		return geo.UTMPos{}, err
	}
	utm := geo.UTMPos{Zone: zone, North: north, Easting: v[0], Northing: v[1], Height: v[2]}
	if err := geo.ValidateUTMPos(utm); err != nil {
		return geo.UTMPos{}, err
	}
	return utm, nil
}

// formatUTMOrigin is the inverse of ParseUTMOrigin
func formatUTMOrigin(u geo.UTMPos) string {
	hemisphere := "N"
	if !u.North {
		hemisphere = "S"
	}
	return fmt.Sprintf("%d%s %s %s %s", u.Zone, hemisphere,
		strconv.FormatFloat(u.Easting, 'f', -1, 64),
		strconv.FormatFloat(u.Northing, 'f', -1, 64),
		strconv.FormatFloat(u.Height, 'f', -1, 64))
}

// formatVec3 is the inverse of ParseVec3
func formatVec3(v mgl64.Vec3) string {
	return fmt.Sprintf("%s %s %s",
		strconv.FormatFloat(v[0], 'f', -1, 64),
		strconv.FormatFloat(v[1], 'f', -1, 64),
		strconv.FormatFloat(v[2], 'f', -1, 64))
}
