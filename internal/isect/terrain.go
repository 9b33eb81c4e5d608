package isect

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/mapcore/server/internal/geo"
	"github.com/mapcore/server/internal/scene"
)

const (
	boxPadding      = 1e-6
	triangleEpsilon = 1e-12
)

// lodLevel picks the level of detail from the distance between eye and
// the terrain bounds. Both are in the terrain's parent frame.
func lodLevel(t *scene.Terrain, eye mgl64.Vec3, factor float64) int {
	if t.LODDistance <= 0 || t.MaxLODLevel <= 0 {
		return 0
	}
	min, max := t.Bounds()
	var closest mgl64.Vec3
	for axis := 0; axis < 3; axis++ {
		closest[axis] = math.Max(min[axis], math.Min(eye[axis], max[axis]))
	}
	dist := closest.Sub(eye).Len()
	level := int(dist / (t.LODDistance * factor))
	if level > t.MaxLODLevel {
		level = t.MaxLODLevel
	}
	return level
}

// rayAABB returns the parametric interval where the ray is inside the box
func rayAABB(origin, dir, min, max mgl64.Vec3) (float64, float64, bool) {
	tEnter, tExit := math.Inf(-1), math.Inf(1)
	for axis := 0; axis < 3; axis++ {
		lo, hi := min[axis]-boxPadding, max[axis]+boxPadding
		if dir[axis] == 0 {
			if origin[axis] < lo || origin[axis] > hi {
				return 0, 0, false
			}
			continue
		}
		t1 := (lo - origin[axis]) / dir[axis]
		t2 := (hi - origin[axis]) / dir[axis]
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		tEnter = math.Max(tEnter, t1)
		tExit = math.Min(tExit, t2)
	}
	if tExit < math.Max(tEnter, 0) {
		return 0, 0, false
	}
	return math.Max(tEnter, 0), tExit, true
}

// intersectTerrain walks the cells of the heightfield at the given level in
// ray order (2D DDA over X/Z) and returns the first triangle hit.
func intersectTerrain(t *scene.Terrain, origin, dir mgl64.Vec3, level int, withNormal bool) (Hit, bool) {
	min, max := t.Bounds()
	tEnter, tExit, ok := rayAABB(origin, dir, min, max)
	if !ok {
		return Hit{}, false
	}

	stride := t.Stride(level)
	cellSize := float64(stride) * t.Spacing
	nx := (t.Cols - 1 + stride - 1) / stride
	nz := (t.Rows - 1 + stride - 1) / stride

	entry := origin.Add(dir.Mul(tEnter)).Sub(t.Origin)
	ci := clampInt(int(math.Floor(entry[0]/cellSize)), 0, nx-1)
	cj := clampInt(int(math.Floor(entry[2]/cellSize)), 0, nz-1)

	stepX, tMaxX, tDeltaX := ddaAxis(dir[0], entry[0], ci, cellSize, tEnter)
	stepZ, tMaxZ, tDeltaZ := ddaAxis(dir[2], entry[2], cj, cellSize, tEnter)

	for steps := 0; steps <= nx+nz+1; steps++ {
		if hit, ok := intersectCell(t, origin, dir, ci, cj, nx, stride, withNormal); ok {
			return hit, true
		}
		if tMaxX < tMaxZ {
			if tMaxX > tExit {
				break
			}
			ci += stepX
			tMaxX += tDeltaX
		} else {
			if tMaxZ > tExit {
				break
			}
			cj += stepZ
			tMaxZ += tDeltaZ
		}
		if ci < 0 || ci >= nx || cj < 0 || cj >= nz {
			break
		}
	}
	return Hit{}, false
}

func ddaAxis(d, p float64, cell int, size, tEnter float64) (int, float64, float64) {
	switch {
	case d > 0:
		return 1, tEnter + (float64(cell+1)*size-p)/d, size / d
	case d < 0:
		return -1, tEnter + (float64(cell)*size-p)/d, -size / d
	default:
		return 0, math.Inf(1), math.Inf(1)
	}
}

// intersectCell tests both triangles of coarse cell (ci, cj)
func intersectCell(t *scene.Terrain, origin, dir mgl64.Vec3, ci, cj, nx, stride int, withNormal bool) (Hit, bool) {
	i0, j0 := ci*stride, cj*stride
	i1 := minInt(i0+stride, t.Cols-1)
	j1 := minInt(j0+stride, t.Rows-1)

	v00 := t.Vertex(i0, j0)
	v10 := t.Vertex(i1, j0)
	v01 := t.Vertex(i0, j1)
	v11 := t.Vertex(i1, j1)

	triangles := [2][3]mgl64.Vec3{
		{v00, v11, v10},
		{v00, v01, v11},
	}

	var (
		best  Hit
		found bool
	)
	for k, tri := range triangles {
		dist, u, v, ok := mollerTrumbore(origin, dir, tri[0], tri[1], tri[2])
		if !ok || (found && dist >= best.Distance) {
			continue
		}
		best = Hit{
			Position: origin.Add(dir.Mul(dist)),
			Triangle: (cj*nx+ci)*2 + k,
			UV:       mgl64.Vec2{u, v},
			Distance: dist,
		}
		if withNormal {
			best.Normal = geo.Vec3To32(tri[1].Sub(tri[0]).Cross(tri[2].Sub(tri[0])).Normalize())
		}
		found = true
	}
	return best, found
}

// mollerTrumbore intersects a ray with triangle (a, b, c) from both sides
func mollerTrumbore(origin, dir, a, b, c mgl64.Vec3) (float64, float64, float64, bool) {
	e1 := b.Sub(a)
	e2 := c.Sub(a)
	p := dir.Cross(e2)
	det := e1.Dot(p)
	if math.Abs(det) < triangleEpsilon {
		return 0, 0, 0, false
	}
	inv := 1 / det
	s := origin.Sub(a)
	u := s.Dot(p) * inv
	if u < -triangleEpsilon || u > 1+triangleEpsilon {
		return 0, 0, 0, false
	}
	q := s.Cross(e1)
	v := dir.Dot(q) * inv
	if v < -triangleEpsilon || u+v > 1+triangleEpsilon {
		return 0, 0, 0, false
	}
	dist := e2.Dot(q) * inv
	if dist < 0 {
		return 0, 0, 0, false
	}
	return dist, u, v, true
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
