package mapctl

import (
	"context"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/go-gl/mathgl/mgl64"

	"github.com/mapcore/server/internal/geo"
	"github.com/mapcore/server/internal/isect"
	"github.com/mapcore/server/internal/scene"
)

const (
	epsilonDeg    = 1e-6 // Tolerance for angles in degrees
	epsilonMeters = 1e-3 // Tolerance for distances in meters

	romeOrigin = "33N 500000 4649776 0"
)

var rome = geo.LatPos{Lat: 41.9, Lon: 12.5, Alt: 100}

// stubConverter is WGS84 with an optional UTM override
type stubConverter struct {
	*geo.WGS84
	toUTM func(pos geo.LatPos, zone int) (geo.UTMPos, bool)
}

func (s stubConverter) GeodeticToUTM(pos geo.LatPos, zone int) (geo.UTMPos, bool) {
	if s.toUTM != nil {
		return s.toUTM(pos, zone)
	}
	return s.WGS84.GeodeticToUTM(pos, zone)
}

// stubIntersector records queries and answers them with respond
type stubIntersector struct {
	respond func(q isect.Query) []isect.Hit
	queries []isect.Query
	opened  int
	closed  int
}

type stubHandle struct {
	parent *stubIntersector
}

func (s *stubIntersector) factory() func() Intersector {
	return func() Intersector {
		s.opened++
		return &stubHandle{parent: s}
	}
}

func (h *stubHandle) Intersect(ctx context.Context, q isect.Query) []isect.Hit {
	h.parent.queries = append(h.parent.queries, q)
	if h.parent.respond == nil {
		return nil
	}
	return h.parent.respond(q)
}

func (h *stubHandle) Close() {
	h.parent.closed++
}

// surfaceAt answers every query with a hit at a fixed global position
func surfaceAt(global mgl64.Vec3, normal mgl32.Vec3) func(q isect.Query) []isect.Hit {
	return func(q isect.Query) []isect.Hit {
		return []isect.Hit{{Position: global.Sub(q.Eye), Normal: normal}}
	}
}

func newSceneResolver() *Resolver {
	return NewResolver(scene.NewAccess(), geo.NewWGS84(), IntersectorFactory(nil), Options{})
}

func newStubResolver(conv geo.Converter, ix *stubIntersector) *Resolver {
	return NewResolver(scene.NewAccess(), conv, ix.factory(), Options{})
}

// mapRoot builds a map root group carrying projection metadata
func mapRoot(projection, origin string, children ...scene.Node) *scene.Group {
	root := scene.NewGroup("test_map")
	if projection != "" {
		root.SetAttribute(AttrProjection, projection)
	}
	if origin != "" {
		root.SetAttribute(AttrOrigin, origin)
	}
	for _, child := range children {
		root.AddChild(child)
	}
	return root
}

// terrainAround builds a heightfield centered on (x, z) with height
// y = base + slopeX*(x-cx) + slopeZ*(z-cz)
func terrainAround(t *testing.T, center mgl64.Vec3, half, spacing, base, slopeX, slopeZ float64) *scene.Terrain {
	t.Helper()
	n := int(2*half/spacing) + 1
	origin := mgl64.Vec3{center[0] - half, base, center[2] - half}
	heights := make([]float64, n*n)
	for j := 0; j < n; j++ {
		for i := 0; i < n; i++ {
			dx := float64(i)*spacing - half
			dz := float64(j)*spacing - half
			heights[j*n+i] = slopeX*dx + slopeZ*dz
		}
	}
	terrain, err := scene.NewTerrain("terrain", origin, spacing, n, n, heights)
	if err != nil {
		t.Fatalf("NewTerrain: %v", err)
	}
	return terrain
}

// utmLocal computes the expected resolver-global position of a geodetic
// point on a UTM map with the given origin
func utmLocal(t *testing.T, pos geo.LatPos, origin string) mgl64.Vec3 {
	t.Helper()
	utmOrigin, err := ParseUTMOrigin(origin)
	if err != nil {
		t.Fatalf("ParseUTMOrigin: %v", err)
	}
	utm, ok := geo.NewWGS84().GeodeticToUTM(pos, utmOrigin.Zone)
	if !ok {
		t.Fatalf("GeodeticToUTM(%+v) declined", pos)
	}
	return geo.UTMToGlobal(utm).Sub(geo.UTMToGlobal(utmOrigin))
}
