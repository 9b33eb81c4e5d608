package scene

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Terrain is a regular heightfield in its parent frame (Y-up).
// Vertex (i, j) sits at Origin + (i*Spacing, Heights[j*Cols+i], j*Spacing).
// Each cell is split along the (i, j)-(i+1, j+1) diagonal.
type Terrain struct {
	nodeBase
	Origin  mgl64.Vec3
	Spacing float64
	Cols    int
	Rows    int
	Heights []float64

	// LODDistance is the eye distance covered by each level of detail.
	// Zero disables level selection and always uses level 0.
	LODDistance float64
	MaxLODLevel int

	minHeight float64
	maxHeight float64
}

// NewTerrain validates and creates a heightfield node
func NewTerrain(name string, origin mgl64.Vec3, spacing float64, cols, rows int, heights []float64) (*Terrain, error) {
	if cols < 2 || rows < 2 {
		return nil, fmt.Errorf("terrain %q needs at least 2x2 vertices, got %dx%d", name, cols, rows)
	}
	if spacing <= 0 || math.IsNaN(spacing) || math.IsInf(spacing, 0) {
		return nil, fmt.Errorf("terrain %q has invalid spacing %f", name, spacing)
	}
	if len(heights) != cols*rows {
		return nil, fmt.Errorf("terrain %q expects %d heights, got %d", name, cols*rows, len(heights))
	}

	t := &Terrain{
		nodeBase: nodeBase{name: name},
		Origin:   origin,
		Spacing:  spacing,
		Cols:     cols,
		Rows:     rows,
		Heights:  heights,
	}
	t.minHeight, t.maxHeight = math.Inf(1), math.Inf(-1)
	for i, h := range heights {
		if math.IsNaN(h) || math.IsInf(h, 0) {
			return nil, fmt.Errorf("terrain %q has invalid height at index %d", name, i)
		}
		t.minHeight = math.Min(t.minHeight, h)
		t.maxHeight = math.Max(t.maxHeight, h)
	}
	return t, nil
}

func (t *Terrain) Kind() NodeKind   { return KindTerrain }
func (t *Terrain) Children() []Node { return nil }

// Vertex returns the position of grid vertex (i, j) in the parent frame
func (t *Terrain) Vertex(i, j int) mgl64.Vec3 {
	return mgl64.Vec3{
		t.Origin[0] + float64(i)*t.Spacing,
		t.Origin[1] + t.Heights[j*t.Cols+i],
		t.Origin[2] + float64(j)*t.Spacing,
	}
}

// Bounds returns the axis aligned bounding box in the parent frame
func (t *Terrain) Bounds() (mgl64.Vec3, mgl64.Vec3) {
	min := mgl64.Vec3{t.Origin[0], t.Origin[1] + t.minHeight, t.Origin[2]}
	max := mgl64.Vec3{
		t.Origin[0] + float64(t.Cols-1)*t.Spacing,
		t.Origin[1] + t.maxHeight,
		t.Origin[2] + float64(t.Rows-1)*t.Spacing,
	}
	return min, max
}

// Stride returns the vertex step of a level of detail, clamped to MaxLODLevel
// and to the size of the grid.
func (t *Terrain) Stride(level int) int {
	if level < 0 {
		level = 0
	}
	if level > t.MaxLODLevel {
		level = t.MaxLODLevel
	}
	stride := 1 << level
	limit := t.Cols - 1
	if t.Rows-1 < limit {
		limit = t.Rows - 1
	}
	for stride > 1 && stride > limit {
		stride >>= 1
	}
	return stride
}
