package mapctl

import (
	"weak"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/go-gl/mathgl/mgl64"

	"github.com/mapcore/server/internal/scene"
)

var worldUp = mgl32.Vec3{0, 1, 0}

// MapPos is a position expressed in the local frame of an ROI region.
// Without a context region the position is global.
//
// The context is a non-owning reference: the region tree owns its regions,
// and a region that has been removed or collected is treated as absent.
type MapPos struct {
	Position    mgl64.Vec3
	Clamped     bool
	Normal      mgl32.Vec3
	Orientation mgl32.Mat3 // columns: East, North, Up

	context weak.Pointer[scene.Region]
}

// NewMapPos creates a position in the frame of region (nil for global)
func NewMapPos(region *scene.Region, position mgl64.Vec3) MapPos {
	p := MapPos{Position: position}
	p.SetContext(region)
	return p
}

// Context returns the region the position is expressed in, or nil
func (p MapPos) Context() *scene.Region {
	region := p.context.Value()
	if region == nil || !region.Attached() {
		return nil
	}
	return region
}

// SetContext changes the context region without moving Position
func (p *MapPos) SetContext(region *scene.Region) {
	if region == nil {
		p.context = weak.Pointer[scene.Region]{}
		return
	}
	p.context = weak.Make(region)
}

// GlobalPosition returns the position in the global frame
func (p MapPos) GlobalPosition() mgl64.Vec3 {
	if region := p.Context(); region != nil {
		return region.ToGlobal(p.Position)
	}
	return p.Position
}

// Up returns the third orientation column, or +Y if the basis is degenerate
func (p MapPos) Up() mgl32.Vec3 {
	up := p.Orientation.Col(2)
	if up == (mgl32.Vec3{}) {
		return worldUp
	}
	return up
}

// Equal compares field values; contexts are compared by identity
func (p MapPos) Equal(other MapPos) bool {
	return p.Position == other.Position &&
		p.Clamped == other.Clamped &&
		p.Normal == other.Normal &&
		p.Orientation == other.Orientation &&
		p.Context() == other.Context()
}

// rebase moves the position into the frame of region, keeping its global location
func (p *MapPos) rebase(region *scene.Region) {
	global := p.GlobalPosition()
	p.SetContext(region)
	if region != nil {
		p.Position = region.ToLocal(global)
	} else {
		p.Position = global
	}
}
