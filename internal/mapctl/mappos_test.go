package mapctl

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/go-gl/mathgl/mgl64"

	"github.com/mapcore/server/internal/geo"
	"github.com/mapcore/server/internal/scene"
)

func TestMapPosGlobalPosition(t *testing.T) {
	root := scene.NewRegionRoot("roi")
	region := scene.NewRegion("r", mgl64.Vec3{1000, 20, -3000})
	root.AddRegion(region)

	pos := NewMapPos(region, mgl64.Vec3{1, 2, 3})
	if pos.Context() != region {
		t.Fatalf("Context = %v, expected region", pos.Context())
	}
	if got := pos.GlobalPosition(); got != (mgl64.Vec3{1001, 22, -2997}) {
		t.Errorf("GlobalPosition = %v", got)
	}

	global := NewMapPos(nil, mgl64.Vec3{1, 2, 3})
	if global.Context() != nil || global.GlobalPosition() != (mgl64.Vec3{1, 2, 3}) {
		t.Errorf("global position should be unchanged")
	}
}

func TestMapPosDetachedContextFallsBackToGlobal(t *testing.T) {
	root := scene.NewRegionRoot("roi")
	region := scene.NewRegion("r", mgl64.Vec3{1000, 0, 0})
	root.AddRegion(region)

	pos := NewMapPos(region, mgl64.Vec3{5, 0, 0})
	root.RemoveRegion(region)

	if pos.Context() != nil {
		t.Errorf("detached region should be treated as absent")
	}
	if got := pos.GlobalPosition(); got != (mgl64.Vec3{5, 0, 0}) {
		t.Errorf("GlobalPosition = %v, expected the position unchanged", got)
	}
}

func TestMapPosUp(t *testing.T) {
	var pos MapPos
	if pos.Up() != (mgl32.Vec3{0, 1, 0}) {
		t.Errorf("degenerate orientation should fall back to +Y, got %v", pos.Up())
	}
	pos.Orientation = geo.FlatOrientation()
	if pos.Up() != (mgl32.Vec3{0, 1, 0}) {
		t.Errorf("flat orientation up = %v", pos.Up())
	}
	pos.Orientation = mgl32.Mat3FromCols(mgl32.Vec3{0, 1, 0}, mgl32.Vec3{0, 0, 1}, mgl32.Vec3{1, 0, 0})
	if pos.Up() != (mgl32.Vec3{1, 0, 0}) {
		t.Errorf("custom orientation up = %v", pos.Up())
	}
}

func TestMapPosEqual(t *testing.T) {
	root := scene.NewRegionRoot("roi")
	a := scene.NewRegion("a", mgl64.Vec3{})
	b := scene.NewRegion("b", mgl64.Vec3{})
	root.AddRegion(a)
	root.AddRegion(b)

	p := NewMapPos(a, mgl64.Vec3{1, 2, 3})
	p.Normal = mgl32.Vec3{0, 1, 0}

	testCases := []struct {
		name     string
		mutate   func(*MapPos)
		expected bool
	}{
		{"identical", func(*MapPos) {}, true},
		{"different region same offset", func(q *MapPos) { q.SetContext(b) }, false},
		{"global", func(q *MapPos) { q.SetContext(nil) }, false},
		{"moved", func(q *MapPos) { q.Position[0] += 1e-9 }, false},
		{"clamped", func(q *MapPos) { q.Clamped = true }, false},
		{"normal", func(q *MapPos) { q.Normal = mgl32.Vec3{1, 0, 0} }, false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			q := p
			tc.mutate(&q)
			if got := p.Equal(q); got != tc.expected {
				t.Errorf("Equal = %v, expected %v", got, tc.expected)
			}
		})
	}
}

func TestMapPosRebase(t *testing.T) {
	root := scene.NewRegionRoot("roi")
	a := scene.NewRegion("a", mgl64.Vec3{100, 0, 0})
	b := scene.NewRegion("b", mgl64.Vec3{0, 0, 100})
	root.AddRegion(a)
	root.AddRegion(b)

	pos := NewMapPos(a, mgl64.Vec3{1, 2, 3})
	global := pos.GlobalPosition()

	pos.rebase(b)
	if pos.Context() != b || pos.Position != (mgl64.Vec3{101, 2, -97}) {
		t.Errorf("rebase to b: %v in %v", pos.Position, pos.Context())
	}
	pos.rebase(nil)
	if pos.Context() != nil || pos.Position != global {
		t.Errorf("rebase to global: %v", pos.Position)
	}
}
