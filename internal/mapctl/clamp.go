package mapctl

import (
	"github.com/go-gl/mathgl/mgl64"

	"github.com/mapcore/server/internal/geo"
	"github.com/mapcore/server/internal/isect"
)

// ClampToGround moves pos onto the surface below (or above) it. A position
// with no ground in range is left in place with Clamped unset and Normal set
// to its up vector; that still counts as success. It fails only when no map
// is active.
func (r *Resolver) ClampToGround(pos *MapPos, clamp GroundClamp, opts ClampOptions) bool {
	op := r.profiler.Start("clamp_to_ground")
	defer op.End()

	r.access.AcquireEditAccess()
	defer r.access.ReleaseEditAccess()

	return r.clampToGround(pos, clamp, opts)
}

// clampToGround runs with edit access held
func (r *Resolver) clampToGround(pos *MapPos, clamp GroundClamp, opts ClampOptions) bool {
	if pos == nil || r.activeMap == nil {
		return false
	}
	if clamp == ClampNone {
		return true
	}

	hadContext := pos.Context() != nil
	global := pos.GlobalPosition()

	var rayOrigin mgl64.Vec3
	switch {
	case opts.Has(OptIsectLodQuality):
		rayOrigin = global
	case r.camera != nil:
		rayOrigin = r.camera.Position
	}

	up32 := pos.Up()
	up := geo.Vec3To64(up32).Normalize()

	q := isect.Query{
		Origin:          global.Sub(rayOrigin).Add(up.Mul(clampRayHeight)),
		Direction:       up.Mul(-1),
		Target:          r.activeMap,
		Flags:           opts.isectFlags(),
		LODFactor:       r.lodFactor,
		UseRegionOrigin: true,
		Eye:             rayOrigin,
	}
	if opts.Has(OptFrustumCull) && r.camera != nil {
		q.Flags |= isect.FrustumCull
		q.Frustum = r.camera.Frustum(0)
	}

	hits := r.intersect(q)
	if len(hits) == 0 {
		pos.Normal = up32
		pos.Clamped = false
		r.profiler.Count("clamp_to_ground", "miss")
		return true
	}

	hit := hits[0]
	global = hit.Position.Add(rayOrigin)
	pos.Clamped = true
	pos.Normal = hit.Normal
	if clamp == ClampGround {
		pos.Normal = up32
	}
	r.profiler.Count("clamp_to_ground", "hit")

	if hadContext && r.rootRegion != nil {
		pos.SetContext(r.rootRegion.FindClosestRegion(global))
	}
	if region := pos.Context(); region != nil {
		pos.Position = region.ToLocal(global)
	} else {
		pos.Position = global
	}
	return true
}

// ScreenToGround picks the surface under pixel (x, y) of a w x h viewport
// seen through the active camera. It fails when nothing is hit.
func (r *Resolver) ScreenToGround(x, y, w, h int, opts ClampOptions) (MapPos, bool) {
	op := r.profiler.Start("screen_to_ground")
	defer op.End()

	r.access.AcquireEditAccess()
	defer r.access.ReleaseEditAccess()

	if r.activeMap == nil || !r.camera.Valid() {
		return MapPos{}, false
	}
	cam := r.camera
	origin, dir, ok := cam.PixelRay(x, y, w, h)
	if !ok {
		return MapPos{}, false
	}

	q := isect.Query{
		Origin:          origin.Sub(cam.Position),
		Direction:       dir,
		Target:          r.activeMap,
		Flags:           opts.isectFlags(),
		LODFactor:       r.lodFactor,
		UseRegionOrigin: true,
		Eye:             cam.Position,
	}
	if opts.Has(OptFrustumCull) {
		q.Flags |= isect.FrustumCull
		q.Frustum = cam.Frustum(float64(w) / float64(h))
	}

	hits := r.intersect(q)
	if len(hits) == 0 {
		r.profiler.Count("screen_to_ground", "miss")
		return MapPos{}, false
	}
	r.profiler.Count("screen_to_ground", "hit")

	global := hits[0].Position.Add(cam.Position)
	mp := MapPos{
		Position:    global,
		Clamped:     true,
		Normal:      hits[0].Normal,
		Orientation: r.orientationAt(global),
	}
	if r.rootRegion != nil {
		mp.rebase(r.rootRegion.FindClosestRegion(global))
	}
	return mp, true
}

// intersect runs one query on a scoped intersector
func (r *Resolver) intersect(q isect.Query) []isect.Hit {
	ix := r.newIntersector()
	defer ix.Close()

	ctx, cancel := r.loadContext()
	defer cancel()

	return ix.Intersect(ctx, q)
}
