package scene

import (
	"sync"

	"github.com/go-gl/mathgl/mgl64"
)

// RegionRoot is the root of a region-of-interest tree.
// Regions are kept in insertion order.
type RegionRoot struct {
	nodeBase
	mu      sync.RWMutex
	regions []*Region
}

// NewRegionRoot creates an empty ROI root
func NewRegionRoot(name string) *RegionRoot {
	return &RegionRoot{nodeBase: nodeBase{name: name}}
}

func (r *RegionRoot) Kind() NodeKind { return KindRegionRoot }

// AddRegion attaches a region to this root
func (r *RegionRoot) AddRegion(region *Region) {
	if region == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	region.mu.Lock()
	region.root = r
	region.mu.Unlock()
	r.regions = append(r.regions, region)
}

// RemoveRegion detaches a region. Positions that still reference it
// fall back to the global frame.
func (r *RegionRoot) RemoveRegion(region *Region) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, reg := range r.regions {
		if reg == region {
			r.regions = append(r.regions[:i], r.regions[i+1:]...)
			region.mu.Lock()
			region.root = nil
			region.mu.Unlock()
			return true
		}
	}
	return false
}

// Regions returns a snapshot of the attached regions
func (r *RegionRoot) Regions() []*Region {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Region, len(r.regions))
	copy(out, r.regions)
	return out
}

// RegionByName returns the first attached region with the given name
func (r *RegionRoot) RegionByName(name string) *Region {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, reg := range r.regions {
		if reg.Name() == name {
			return reg
		}
	}
	return nil
}

func (r *RegionRoot) Children() []Node {
	regions := r.Regions()
	nodes := make([]Node, len(regions))
	for i, reg := range regions {
		nodes[i] = reg
	}
	return nodes
}

// FindClosestRegion returns the region whose local frame is closest to a
// global position, or nil if the tree is empty.
//
// Regions whose activity sphere contains the point win over regions that
// do not; within each group the nearest center wins and exact ties keep
// insertion order. Unbounded regions (Radius <= 0) never claim
// containment and compete on center distance only.
func (r *RegionRoot) FindClosestRegion(global mgl64.Vec3) *Region {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var (
		best       *Region
		bestDist   float64
		bestInside bool
	)
	for _, reg := range r.regions {
		dist := global.Sub(reg.FrameOffset).Len()
		inside := reg.Radius > 0 && dist <= reg.Radius
		switch {
		case best == nil:
		case inside && !bestInside:
		case inside == bestInside && dist < bestDist:
		default:
			continue
		}
		best, bestDist, bestInside = reg, dist, inside
	}
	return best
}

// Region is a node of the ROI tree. Its children are expressed in a local
// frame whose origin is FrameOffset in global coordinates.
type Region struct {
	nodeBase
	FrameOffset   mgl64.Vec3
	Radius        float64 // activity radius, <= 0 is unbounded
	LoadDistance  float64
	PurgeDistance float64

	mu       sync.RWMutex
	root     *RegionRoot
	children []Node
}

// NewRegion creates a detached region with the given frame offset
func NewRegion(name string, offset mgl64.Vec3) *Region {
	return &Region{
		nodeBase:    nodeBase{name: name},
		FrameOffset: offset,
	}
}

func (r *Region) Kind() NodeKind { return KindRegion }

// AddChild appends a child expressed in the region's local frame
func (r *Region) AddChild(child Node) {
	if child == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.children = append(r.children, child)
}

func (r *Region) Children() []Node {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Node, len(r.children))
	copy(out, r.children)
	return out
}

// Attached reports whether the region is still part of an ROI tree
func (r *Region) Attached() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.root != nil
}

// Root returns the ROI root the region is attached to
func (r *Region) Root() *RegionRoot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.root
}

// ToLocal rebases a global position into the region's frame
func (r *Region) ToLocal(global mgl64.Vec3) mgl64.Vec3 {
	return global.Sub(r.FrameOffset)
}

// ToGlobal converts a position in the region's frame to global coordinates
func (r *Region) ToGlobal(local mgl64.Vec3) mgl64.Vec3 {
	return local.Add(r.FrameOffset)
}

// FindFirstRegionRoot searches node depth first and returns the first ROI
// root found, descending through groups, regions and loaded dynamic nodes.
func FindFirstRegionRoot(node Node) *RegionRoot {
	var found *RegionRoot
	Walk(node, func(n Node) bool {
		if root, ok := n.(*RegionRoot); ok {
			found = root
			return false
		}
		return true
	})
	return found
}
