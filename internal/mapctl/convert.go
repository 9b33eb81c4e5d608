package mapctl

import (
	"log"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/go-gl/mathgl/mgl64"

	"github.com/mapcore/server/internal/geo"
)

// GeodeticToLocal converts a geodetic position into a position in the
// closest region of the active map, optionally clamped to the ground.
func (r *Resolver) GeodeticToLocal(pos geo.LatPos, clamp GroundClamp, opts ClampOptions) (MapPos, bool) {
	op := r.profiler.Start("geodetic_to_local")
	defer op.End()

	r.access.AcquireEditAccess()
	defer r.access.ReleaseEditAccess()

	return r.geodeticToLocal(pos, clamp, opts)
}

// LocalToGeodetic converts a map position back to geodetic coordinates
func (r *Resolver) LocalToGeodetic(pos MapPos) (geo.LatPos, bool) {
	op := r.profiler.Start("local_to_geodetic")
	defer op.End()

	r.access.AcquireEditAccess()
	defer r.access.ReleaseEditAccess()

	return r.localToGeodetic(pos)
}

// GetAltitude returns the ground altitude below or above a geodetic
// position. It fails when no map is active or no ground is found.
func (r *Resolver) GetAltitude(pos geo.LatPos, opts ClampOptions) (float64, bool) {
	op := r.profiler.Start("get_altitude")
	defer op.End()

	r.access.AcquireEditAccess()
	defer r.access.ReleaseEditAccess()

	local, ok := r.geodeticToLocal(pos, ClampGround, opts)
	if !ok || !local.Clamped {
		return 0, false
	}
	ground, ok := r.localToGeodetic(local)
	if !ok {
		return 0, false
	}
	return ground.Alt, true
}

// geodeticToLocal runs with edit access held
func (r *Resolver) geodeticToLocal(pos geo.LatPos, clamp GroundClamp, opts ClampOptions) (MapPos, bool) {
	if r.projection == ProjectionUnknown {
		return MapPos{}, false
	}

	var (
		global      mgl64.Vec3
		orientation mgl32.Mat3
	)
	switch r.projection {
	case ProjectionUTM:
		utm, ok := r.conv.GeodeticToUTM(pos, r.utmZone)
		if !ok {
			log.Printf("[Map] Warning: cannot convert %+v to UTM zone %d", pos, r.utmZone)
			r.profiler.Count("geodetic_to_local", "conversion_failed")
			return MapPos{}, false
		}
		global = geo.UTMToGlobal(utm.InHemisphere(r.utmNorth))
		orientation = geo.FlatOrientation()

	case ProjectionGeocentric:
		cart, ok := r.conv.GeodeticToCartesian(pos)
		if !ok {
			log.Printf("[Map] Warning: cannot convert %+v to cartesian", pos)
			r.profiler.Count("geodetic_to_local", "conversion_failed")
			return MapPos{}, false
		}
		if orientation, ok = r.conv.OrientationAt(cart); !ok {
			log.Printf("[Map] Warning: no orientation at %+v", cart)
			r.profiler.Count("geodetic_to_local", "conversion_failed")
			return MapPos{}, false
		}
		global = cart.Vec()

	default:
		log.Printf("[Map] Warning: geodetic positions are not defined for %s projection", r.projection)
		r.profiler.Count("geodetic_to_local", "conversion_failed")
		return MapPos{}, false
	}

	mp := MapPos{
		Position:    global.Sub(r.origin),
		Orientation: orientation,
	}
	if r.rootRegion != nil {
		mp.rebase(r.rootRegion.FindClosestRegion(mp.Position))
	}

	if clamp != ClampNone {
		r.clampToGround(&mp, clamp, opts)
	}
	return mp, true
}

// localToGeodetic runs with edit access held
func (r *Resolver) localToGeodetic(pos MapPos) (geo.LatPos, bool) {
	global := pos.GlobalPosition().Add(r.origin)

	switch r.projection {
	case ProjectionUTM:
		lp, ok := r.conv.UTMToGeodetic(geo.GlobalToUTM(global, r.utmZone, r.utmNorth))
		if !ok {
			log.Printf("[Map] Warning: cannot convert %v from UTM zone %d", global, r.utmZone)
			r.profiler.Count("local_to_geodetic", "conversion_failed")
		}
		return lp, ok

	case ProjectionGeocentric:
		lp, ok := r.conv.CartesianToGeodetic(geo.CartFromVec(global))
		if !ok {
			log.Printf("[Map] Warning: cannot convert %v from cartesian", global)
			r.profiler.Count("local_to_geodetic", "conversion_failed")
		}
		return lp, ok

	default:
		return geo.LatPos{}, false
	}
}

// orientationAt returns the local basis at a global position. Projected and
// unknown maps use the fixed Y-up basis.
func (r *Resolver) orientationAt(global mgl64.Vec3) mgl32.Mat3 {
	if r.projection != ProjectionGeocentric {
		return geo.FlatOrientation()
	}
	basis, ok := r.conv.OrientationAt(geo.CartFromVec(global.Add(r.origin)))
	if !ok {
		return mgl32.Mat3{}
	}
	return basis
}
