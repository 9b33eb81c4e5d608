package mapctl

import (
	"context"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/mapcore/server/internal/geo"
	"github.com/mapcore/server/internal/isect"
	"github.com/mapcore/server/internal/performance"
	"github.com/mapcore/server/internal/scene"
)

// Intersector is a scoped ray query service. Close must be called once the
// queries are done.
type Intersector interface {
	Intersect(ctx context.Context, q isect.Query) []isect.Hit
	Close()
}

// IntersectorFactory returns a constructor for scene intersectors that
// fetch dynamic data through loader.
func IntersectorFactory(loader isect.DataLoader) func() Intersector {
	return func() Intersector {
		return isect.New(loader)
	}
}

const (
	// clampRayHeight is how far above the target a clamp ray starts
	clampRayHeight = 10000.0

	defaultLoadTimeout = 30 * time.Second
)

// Options configures a Resolver
type Options struct {
	Camera         *scene.Camera
	DynamicLoadURL string
	Profiler       *performance.Profiler
	// LoadTimeout bounds queries that wait for dynamic data
	LoadTimeout time.Duration
	// LODFactor scales level of detail distances for clamp queries
	LODFactor float64
}

// Resolver converts between geodetic, global and region-local coordinates
// for the active map and clamps positions to its surface.
//
// State is guarded by the scene's access gate: it changes only under edit
// access, and queries that cast rays hold edit access for their duration.
type Resolver struct {
	access         *scene.Access
	conv           geo.Converter
	newIntersector func() Intersector
	profiler       *performance.Profiler
	loadTimeout    time.Duration
	lodFactor      float64

	projection     ProjectionKind
	origin         mgl64.Vec3
	utmZone        int
	utmNorth       bool
	rootRegion     *scene.RegionRoot
	activeMap      scene.Node
	mapName        string
	camera         *scene.Camera
	dynamicLoadURL string
}

// NewResolver creates a resolver with no active map. access, conv and
// newIntersector are required.
func NewResolver(access *scene.Access, conv geo.Converter, newIntersector func() Intersector, opts Options) *Resolver {
	if access == nil || conv == nil || newIntersector == nil {
		panic("mapctl: NewResolver requires access, converter and intersector")
	}
	r := &Resolver{
		access:         access,
		conv:           conv,
		newIntersector: newIntersector,
		profiler:       opts.Profiler,
		loadTimeout:    opts.LoadTimeout,
		lodFactor:      opts.LODFactor,
		dynamicLoadURL: opts.DynamicLoadURL,
	}
	if r.profiler == nil {
		r.profiler = performance.NewProfiler(false)
	}
	if r.loadTimeout <= 0 {
		r.loadTimeout = defaultLoadTimeout
	}
	if r.lodFactor <= 0 {
		r.lodFactor = 1
	}
	if opts.Camera != nil {
		cam := *opts.Camera
		r.camera = &cam
	}
	return r
}

// Projection returns the projection of the active map
func (r *Resolver) Projection() ProjectionKind {
	r.access.AcquireRenderAccess()
	defer r.access.ReleaseRenderAccess()
	return r.projection
}

// GlobalOrigin returns the offset between the projection's native frame and
// the resolver's global frame
func (r *Resolver) GlobalOrigin() mgl64.Vec3 {
	r.access.AcquireRenderAccess()
	defer r.access.ReleaseRenderAccess()
	return r.origin
}

// UTMZone returns the zone and hemisphere of a UTM map
func (r *Resolver) UTMZone() (int, bool) {
	r.access.AcquireRenderAccess()
	defer r.access.ReleaseRenderAccess()
	return r.utmZone, r.utmNorth
}

// RootRegion returns the ROI root of the active map
func (r *Resolver) RootRegion() *scene.RegionRoot {
	r.access.AcquireRenderAccess()
	defer r.access.ReleaseRenderAccess()
	return r.rootRegion
}

// ActiveMap returns the effective root of the active map
func (r *Resolver) ActiveMap() scene.Node {
	r.access.AcquireRenderAccess()
	defer r.access.ReleaseRenderAccess()
	return r.activeMap
}

// MapName returns the name of the active map
func (r *Resolver) MapName() string {
	r.access.AcquireRenderAccess()
	defer r.access.ReleaseRenderAccess()
	return r.mapName
}

// RegionByName looks up a region of the active map's ROI tree
func (r *Resolver) RegionByName(name string) *scene.Region {
	r.access.AcquireRenderAccess()
	defer r.access.ReleaseRenderAccess()
	if r.rootRegion == nil {
		return nil
	}
	return r.rootRegion.RegionByName(name)
}

// SetCamera sets the active camera. nil clears it.
func (r *Resolver) SetCamera(cam *scene.Camera) {
	r.access.AcquireEditAccess()
	defer r.access.ReleaseEditAccess()
	if cam == nil {
		r.camera = nil
		return
	}
	c := *cam
	r.camera = &c
}

// Camera returns a copy of the active camera, or nil
func (r *Resolver) Camera() *scene.Camera {
	r.access.AcquireRenderAccess()
	defer r.access.ReleaseRenderAccess()
	if r.camera == nil {
		return nil
	}
	c := *r.camera
	return &c
}

// SetDynamicLoadURL sets the URL used to wrap maps that have no ROI tree.
// It applies to the next SetActiveMap.
func (r *Resolver) SetDynamicLoadURL(url string) {
	r.access.AcquireEditAccess()
	defer r.access.ReleaseEditAccess()
	r.dynamicLoadURL = url
}

func (r *Resolver) loadContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), r.loadTimeout)
}
