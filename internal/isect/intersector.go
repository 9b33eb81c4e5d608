// Package isect casts rays against the scene graph and reports surface hits.
package isect

import (
	"context"
	"log"
	"sort"
	"sync"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/go-gl/mathgl/mgl64"

	"github.com/mapcore/server/internal/scene"
)

// Flags select what an intersection query computes
type Flags uint32

const (
	// NearestPoint returns only the hit closest to the ray origin
	NearestPoint Flags = 1 << iota
	// Normal computes surface normals for hits
	Normal
	// WaitForData blocks until unloaded dynamic data on the ray path is loaded
	WaitForData
	// UpdateData requests unloaded dynamic data on the ray path
	UpdateData
	// FrustumCull skips geometry outside Query.Frustum
	FrustumCull
)

// Has reports whether all bits of flag are set
func (f Flags) Has(flag Flags) bool {
	return f&flag == flag
}

// Query describes a single ray cast.
// When UseRegionOrigin is set, Origin and returned hit positions are relative
// to Eye; otherwise they are global.
type Query struct {
	Origin          mgl64.Vec3
	Direction       mgl64.Vec3
	Target          scene.Node
	Flags           Flags
	LODFactor       float64
	UseRegionOrigin bool
	Eye             mgl64.Vec3
	Frustum         *scene.Frustum
}

// Hit is a ray/surface intersection
type Hit struct {
	Position mgl64.Vec3
	Normal   mgl32.Vec3
	Node     scene.Node
	Region   *scene.Region
	Triangle int
	UV       mgl64.Vec2
	Distance float64
}

// DataLoader fetches the content of dynamic nodes met during traversal.
// With wait set, Request returns once the node is loaded or has failed; the
// caller holds edit access for the duration.
type DataLoader interface {
	Request(ctx context.Context, node *scene.DynamicLoader, wait bool) error
}

var hitPool = sync.Pool{
	New: func() any {
		hits := make([]Hit, 0, 16)
		return &hits
	},
}

// Intersector runs ray queries. It is scoped: create it for a sequence of
// queries and Close it when done.
type Intersector struct {
	loader  DataLoader
	scratch *[]Hit
}

// New creates an intersector. loader may be nil, in which case unloaded
// dynamic nodes are skipped.
func New(loader DataLoader) *Intersector {
	return &Intersector{
		loader:  loader,
		scratch: hitPool.Get().(*[]Hit),
	}
}

// Close releases the intersector's buffers. Using it afterwards panics.
func (ix *Intersector) Close() {
	if ix.scratch == nil {
		return
	}
	*ix.scratch = (*ix.scratch)[:0]
	hitPool.Put(ix.scratch)
	ix.scratch = nil
}

// traversal carries per-query state down the graph
type traversal struct {
	ctx       context.Context
	q         Query
	global    mgl64.Vec3 // ray origin in global coordinates
	dir       mgl64.Vec3 // unit direction
	eye       mgl64.Vec3 // global eye used for level of detail
	lodFactor float64
}

// Intersect casts q against q.Target and returns the hits in ascending
// distance. The returned slice is owned by the caller.
func (ix *Intersector) Intersect(ctx context.Context, q Query) []Hit {
	if ix.scratch == nil {
		panic("isect: Intersect called on closed Intersector")
	}
	if q.Target == nil || q.Direction.Len() == 0 {
		return nil
	}

	tr := &traversal{
		ctx:       ctx,
		q:         q,
		global:    q.Origin,
		dir:       q.Direction.Normalize(),
		lodFactor: q.LODFactor,
	}
	if q.UseRegionOrigin {
		tr.global = q.Origin.Add(q.Eye)
		tr.eye = q.Eye
	} else {
		tr.eye = q.Origin
	}
	if tr.lodFactor <= 0 {
		tr.lodFactor = 1
	}

	*ix.scratch = (*ix.scratch)[:0]
	ix.visit(tr, q.Target, mgl64.Vec3{}, nil)

	hits := *ix.scratch
	if len(hits) == 0 {
		return nil
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Distance < hits[j].Distance })
	if q.Flags.Has(NearestPoint) {
		hits = hits[:1]
	}

	out := make([]Hit, len(hits))
	copy(out, hits)
	if q.UseRegionOrigin {
		for i := range out {
			out[i].Position = out[i].Position.Sub(q.Eye)
		}
	}
	return out
}

// visit traverses node whose coordinates are offset from global by frame
func (ix *Intersector) visit(tr *traversal, node scene.Node, frame mgl64.Vec3, region *scene.Region) {
	switch n := node.(type) {
	case *scene.Region:
		for _, child := range n.Children() {
			ix.visit(tr, child, n.FrameOffset, n)
		}
	case *scene.Terrain:
		ix.visitTerrain(tr, n, frame, region)
	case *scene.DynamicLoader:
		child := n.Child()
		if child == nil {
			child = ix.request(tr, n)
		}
		if child != nil {
			ix.visit(tr, child, frame, region)
		}
	default:
		for _, child := range node.Children() {
			ix.visit(tr, child, frame, region)
		}
	}
}

func (ix *Intersector) request(tr *traversal, node *scene.DynamicLoader) scene.Node {
	if ix.loader == nil {
		return nil
	}
	wait := tr.q.Flags.Has(WaitForData)
	if !wait && !tr.q.Flags.Has(UpdateData) {
		return nil
	}
	if err := ix.loader.Request(tr.ctx, node, wait); err != nil {
		log.Printf("[Isect] Warning: dynamic node %s (%s) not available: %v", node.Name(), node.URL, err)
		return nil
	}
	if !wait {
		return nil
	}
	return node.Child()
}

func (ix *Intersector) visitTerrain(tr *traversal, t *scene.Terrain, frame mgl64.Vec3, region *scene.Region) {
	min, max := t.Bounds()
	if tr.q.Flags.Has(FrustumCull) && tr.q.Frustum != nil {
		if !tr.q.Frustum.IntersectsAABB(min.Add(frame), max.Add(frame)) {
			return
		}
	}

	origin := tr.global.Sub(frame)
	level := lodLevel(t, tr.eye.Sub(frame), tr.lodFactor)
	hit, ok := intersectTerrain(t, origin, tr.dir, level, tr.q.Flags.Has(Normal))
	if !ok {
		return
	}
	hit.Position = hit.Position.Add(frame)
	hit.Node = t
	hit.Region = region
	*ix.scratch = append(*ix.scratch, hit)
}
