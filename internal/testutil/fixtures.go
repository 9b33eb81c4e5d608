package testutil

import (
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/mapcore/server/internal/mapfile"
)

// RomeOrigin is a UTM map origin near Rome used by fixtures
const RomeOrigin = "33N 500000 4649776 0"

// TestFixtures provides test data generators
type TestFixtures struct{}

// NewTestFixtures creates a new test fixtures helper
func NewTestFixtures() *TestFixtures {
	return &TestFixtures{}
}

// RandomString generates a random string of specified length
func RandomString(length int) string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, length)
	seed := time.Now().UnixNano()
	for i := range b {
		seed = seed*1103515245 + 12345 // Simple LCG
		idx := int(seed % int64(len(charset)))
		if idx < 0 {
			idx = -idx
		}
		b[i] = charset[idx]
	}
	return string(b)
}

// RandomMapName generates a random map name
func RandomMapName() string {
	return "testmap_" + RandomString(8)
}

// SlopedHeights returns cols x rows heights rising by slopeX per meter
// along +X and slopeZ per meter along +Z from base
func SlopedHeights(cols, rows int, spacing, base, slopeX, slopeZ float64) []float64 {
	heights := make([]float64, cols*rows)
	for j := 0; j < rows; j++ {
		for i := 0; i < cols; i++ {
			heights[j*cols+i] = base + slopeX*float64(i)*spacing + slopeZ*float64(j)*spacing
		}
	}
	return heights
}

// NewTestMap creates a UTM map document around RomeOrigin with a flat
// 20km square terrain at the given height
func (f *TestFixtures) NewTestMap(name string, height float64) *mapfile.Document {
	const cols, rows, spacing = 21, 21, 1000.0
	terrain, err := mapfile.TerrainNode("ground", mgl64.Vec3{-10000, 0, -10000}, spacing, cols, rows,
		SlopedHeights(cols, rows, spacing, height, 0, 0), false)
	if err != nil {
		panic(err)
	}
	return &mapfile.Document{
		Name:        name,
		Projection:  "UTM",
		Origin:      RomeOrigin,
		MaxLODRange: 5000,
		Nodes:       []mapfile.NodeDoc{terrain},
	}
}

// NewSlopedTestMap creates a flat-earth map with a packed sloped terrain
// covering [-half, half] on both axes
func (f *TestFixtures) NewSlopedTestMap(name string, half, spacing, slopeX, slopeZ float64) *mapfile.Document {
	n := int(2*half/spacing) + 1
	terrain, err := mapfile.TerrainNode("slope", mgl64.Vec3{-half, 0, -half}, spacing, n, n,
		SlopedHeights(n, n, spacing, 0, slopeX, slopeZ), true)
	if err != nil {
		panic(err)
	}
	return &mapfile.Document{
		Name:       name,
		Projection: "Flat Earth",
		Origin:     "0 0 0",
		Nodes:      []mapfile.NodeDoc{terrain},
	}
}
