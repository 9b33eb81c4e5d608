package scene

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Camera is the active viewpoint in global coordinates.
// Matrices are built relative to the eye so large global positions keep
// their precision.
type Camera struct {
	Position mgl64.Vec3 `json:"position"`
	Target   mgl64.Vec3 `json:"target"`
	Up       mgl64.Vec3 `json:"up"`
	FovY     float64    `json:"fov_y"` // vertical field of view in degrees
	Near     float64    `json:"near"`
	Far      float64    `json:"far"`
	Aspect   float64    `json:"aspect"` // viewport width / height used for culling
}

// NewCamera creates a camera with a Y-up vector and default clip planes
func NewCamera(position, target mgl64.Vec3) *Camera {
	return &Camera{
		Position: position,
		Target:   target,
		Up:       mgl64.Vec3{0, 1, 0},
		FovY:     60,
		Near:     1,
		Far:      100000,
		Aspect:   16.0 / 9.0,
	}
}

// Valid reports whether the camera can produce usable matrices
func (c *Camera) Valid() bool {
	if c == nil {
		return false
	}
	dir := c.Target.Sub(c.Position)
	if dir.Len() == 0 || c.Up.Len() == 0 {
		return false
	}
	if dir.Normalize().Cross(c.Up.Normalize()).Len() < 1e-9 {
		return false
	}
	return c.FovY > 0 && c.FovY < 180 && c.Near > 0 && c.Far > c.Near
}

// ViewMatrix returns the eye-relative view matrix (eye at the origin)
func (c *Camera) ViewMatrix() mgl64.Mat4 {
	return mgl64.LookAtV(mgl64.Vec3{}, c.Target.Sub(c.Position), c.Up)
}

// ProjectionMatrix returns the perspective projection for an aspect ratio
func (c *Camera) ProjectionMatrix(aspect float64) mgl64.Mat4 {
	return mgl64.Perspective(mgl64.DegToRad(c.FovY), aspect, c.Near, c.Far)
}

// PixelRay returns the global ray through the center of pixel (x, y) of a
// w x h viewport. Pixel rows grow downwards.
func (c *Camera) PixelRay(x, y, w, h int) (origin, dir mgl64.Vec3, ok bool) {
	if !c.Valid() || w <= 0 || h <= 0 {
		return mgl64.Vec3{}, mgl64.Vec3{}, false
	}
	if x < 0 || y < 0 || x >= w || y >= h {
		return mgl64.Vec3{}, mgl64.Vec3{}, false
	}

	// Screen to NDC, flipping Y
	ndcX := 2*(float64(x)+0.5)/float64(w) - 1
	ndcY := 1 - 2*(float64(y)+0.5)/float64(h)

	viewProj := c.ProjectionMatrix(float64(w) / float64(h)).Mul4(c.ViewMatrix())
	if math.Abs(viewProj.Det()) < 1e-300 {
		return mgl64.Vec3{}, mgl64.Vec3{}, false
	}
	inv := viewProj.Inv()

	near := inv.Mul4x1(mgl64.Vec4{ndcX, ndcY, -1, 1})
	far := inv.Mul4x1(mgl64.Vec4{ndcX, ndcY, 1, 1})
	if near[3] == 0 || far[3] == 0 {
		return mgl64.Vec3{}, mgl64.Vec3{}, false
	}
	nearPoint := near.Vec3().Mul(1 / near[3])
	farPoint := far.Vec3().Mul(1 / far[3])

	dir = farPoint.Sub(nearPoint)
	if dir.Len() == 0 {
		return mgl64.Vec3{}, mgl64.Vec3{}, false
	}
	return nearPoint.Add(c.Position), dir.Normalize(), true
}

// Frustum returns the view frustum planes for an aspect ratio.
// A non-positive aspect falls back to the camera's Aspect, then to 1.
func (c *Camera) Frustum(aspect float64) *Frustum {
	if aspect <= 0 {
		aspect = c.Aspect
	}
	if aspect <= 0 {
		aspect = 1
	}
	return NewFrustum(c.ProjectionMatrix(aspect).Mul4(c.ViewMatrix()), c.Position)
}

// Frustum is a set of six inward facing planes (left, right, bottom, top,
// near, far) expressed relative to Eye.
type Frustum struct {
	Planes [6]mgl64.Vec4
	Eye    mgl64.Vec3
}

// NewFrustum extracts the planes of an eye-relative view-projection matrix
// with the Gribb/Hartmann method.
func NewFrustum(viewProj mgl64.Mat4, eye mgl64.Vec3) *Frustum {
	r0, r1, r2, r3 := viewProj.Row(0), viewProj.Row(1), viewProj.Row(2), viewProj.Row(3)
	f := &Frustum{Eye: eye}
	f.Planes[0] = normalizePlane(r3.Add(r0))
	f.Planes[1] = normalizePlane(r3.Sub(r0))
	f.Planes[2] = normalizePlane(r3.Add(r1))
	f.Planes[3] = normalizePlane(r3.Sub(r1))
	f.Planes[4] = normalizePlane(r3.Add(r2))
	f.Planes[5] = normalizePlane(r3.Sub(r2))
	return f
}

func normalizePlane(p mgl64.Vec4) mgl64.Vec4 {
	length := p.Vec3().Len()
	if length == 0 {
		return p
	}
	return p.Mul(1 / length)
}

// IntersectsAABB reports whether a global box is at least partly inside
// the frustum. It can report boxes near frustum corners as visible.
func (f *Frustum) IntersectsAABB(min, max mgl64.Vec3) bool {
	lo, hi := min.Sub(f.Eye), max.Sub(f.Eye)
	for _, plane := range f.Planes {
		// Corner furthest along the plane normal
		var p mgl64.Vec3
		for axis := 0; axis < 3; axis++ {
			if plane[axis] >= 0 {
				p[axis] = hi[axis]
			} else {
				p[axis] = lo[axis]
			}
		}
		if plane.Vec3().Dot(p)+plane[3] < 0 {
			return false
		}
	}
	return true
}
