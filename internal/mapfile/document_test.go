package mapfile

import (
	"errors"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/mapcore/server/internal/mapctl"
	"github.com/mapcore/server/internal/scene"
)

const epsilonMeters = 1e-3 // Tolerance for distances in meters

const romeYAML = `
name: rome
projection: UTM
origin: 33N 500000 4649776 0
max_lod_range: 1500
nodes:
  - kind: group
    name: city
    attributes:
      layer: buildings
    children:
      - kind: other
        name: colosseum
  - kind: terrain
    name: ground
    origin: [-10, 0, -10]
    spacing: 10
    cols: 3
    rows: 3
    heights: [0, 1, 2, 1, 2, 3, 2, 3, 4]
    lod_distance: 500
    max_lod_level: 2
  - kind: dynamic
    name: suburbs
    url: http://maps.example/suburbs.yaml
    center: [5000, 0, 0]
    load_distance: 2000
    purge_distance: 3000
`

func TestParseAndBuild(t *testing.T) {
	doc, err := Parse([]byte(romeYAML))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if doc.Name != "rome" || doc.MaxLODRange != 1500 || len(doc.Nodes) != 3 {
		t.Fatalf("unexpected document %+v", doc)
	}

	root, err := doc.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	for key, expected := range map[string]string{
		mapctl.AttrName:        "rome",
		mapctl.AttrProjection:  "UTM",
		mapctl.AttrOrigin:      "33N 500000 4649776 0",
		mapctl.AttrMaxLODRange: "1500",
	} {
		if value, ok := root.Attribute(key); !ok || value != expected {
			t.Errorf("attribute %s = %q, expected %q", key, value, expected)
		}
	}

	children := root.Children()
	if len(children) != 3 {
		t.Fatalf("expected 3 children, got %d", len(children))
	}

	city := children[0].(*scene.Group)
	if layer, _ := city.Attribute("layer"); layer != "buildings" || len(city.Children()) != 1 {
		t.Errorf("unexpected city group: layer %q, %d children", layer, len(city.Children()))
	}

	terrain := children[1].(*scene.Terrain)
	if terrain.Cols != 3 || terrain.Rows != 3 || terrain.Spacing != 10 || terrain.MaxLODLevel != 2 {
		t.Errorf("unexpected terrain %+v", terrain)
	}
	if h := terrain.Heights[4]; math.Abs(h-2) > epsilonMeters {
		t.Errorf("center height = %v, expected 2", h)
	}

	loader := children[2].(*scene.DynamicLoader)
	if loader.URL != "http://maps.example/suburbs.yaml" || loader.Center != (mgl64.Vec3{5000, 0, 0}) {
		t.Errorf("unexpected loader %q at %v", loader.URL, loader.Center)
	}
	if state, _ := loader.State(); state != scene.Unloaded {
		t.Errorf("loader state = %v, expected unloaded", state)
	}
}

func TestBuildAuthoredRegions(t *testing.T) {
	doc := &Document{
		Name:       "corridor",
		Projection: "Flat Earth",
		Origin:     "0 0 0",
		Regions: []RegionDoc{
			{Name: "west", Offset: []float64{-5000, 0, 0}, Radius: 3000},
			{Name: "east", Offset: []float64{5000, 0, 0}, Radius: 3000, LoadDistance: 100, PurgeDistance: 200,
				Nodes: []NodeDoc{{Kind: KindOther, Name: "tower"}}},
		},
	}
	root, err := doc.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	roi := scene.FindFirstRegionRoot(root)
	if roi == nil || roi.Name() != "corridor_roi" {
		t.Fatalf("region root not found: %v", roi)
	}
	east := roi.RegionByName("east")
	if east == nil || east.FrameOffset != (mgl64.Vec3{5000, 0, 0}) || east.PurgeDistance != 200 {
		t.Fatalf("unexpected east region %+v", east)
	}
	if len(east.Children()) != 1 {
		t.Errorf("east region has %d children, expected 1", len(east.Children()))
	}
	if roi.FindClosestRegion(mgl64.Vec3{4000, 0, 0}) != east {
		t.Error("closest region to x=4000 should be east")
	}
}

func TestPackedTerrainRoundTrip(t *testing.T) {
	heights := []float64{10, 10.5, 11, 10.25, 10.75, 11.25}
	node, err := TerrainNode("packed", mgl64.Vec3{0, 0, 0}, 5, 3, 2, heights, true)
	if err != nil {
		t.Fatalf("TerrainNode failed: %v", err)
	}
	if node.HeightsPacked == nil || node.Heights != nil {
		t.Fatal("expected packed heights only")
	}

	original := &Document{Name: "packed_map", Projection: "Sphere", Origin: "0 0 0", Nodes: []NodeDoc{node}}
	data, err := Encode(original)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	doc, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse of encoded document failed: %v\n%s", err, data)
	}

	root, err := doc.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	terrain := root.Children()[0].(*scene.Terrain)
	for i, h := range heights {
		if math.Abs(terrain.Heights[i]-h) > epsilonMeters {
			t.Errorf("height %d = %v, expected %v", i, terrain.Heights[i], h)
		}
	}
}

func TestParseInvalid(t *testing.T) {
	testCases := []struct {
		name string
		yaml string
	}{
		{"empty", ``},
		{"missing name", `projection: UTM`},
		{"unknown field", "name: a\ncolour: red"},
		{"unknown kind", "name: a\nnodes:\n  - kind: river\n    name: tiber"},
		{"node without name", "name: a\nnodes:\n  - kind: other"},
		{"bad offset", "name: a\nregions:\n  - name: r\n    offset: [1, 2]"},
		{"negative lod range", "name: a\nmax_lod_range: -1"},
		{"terrain without heights", "name: a\nnodes:\n  - kind: terrain\n    name: t\n    spacing: 1\n    cols: 2\n    rows: 2"},
		{"dynamic without url", "name: a\nnodes:\n  - kind: dynamic\n    name: d"},
		{"terrain child", "name: a\nnodes:\n  - kind: terrain\n    name: t\n    heights: [0, 0, 0, 0]\n    children:\n      - kind: other\n        name: x"},
		{"not yaml", "name: [unterminated"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.yaml))
			if !errors.Is(err, ErrInvalidDocument) {
				t.Errorf("expected ErrInvalidDocument, got %v", err)
			}
		})
	}
}

func TestBuildRejectsBadTerrain(t *testing.T) {
	doc := &Document{
		Name: "bad",
		Nodes: []NodeDoc{{
			Kind: KindTerrain, Name: "t", Spacing: 1, Cols: 3, Rows: 3,
			Heights: []float64{0, 0, 0, 0},
		}},
	}
	if _, err := doc.Build(); !errors.Is(err, ErrInvalidDocument) {
		t.Errorf("expected ErrInvalidDocument for height count mismatch, got %v", err)
	}
}

func TestBuildNodes(t *testing.T) {
	doc, err := Parse([]byte(romeYAML))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	content, err := doc.BuildNodes()
	if err != nil {
		t.Fatalf("BuildNodes failed: %v", err)
	}
	if _, ok := content.Attribute(mapctl.AttrProjection); ok {
		t.Error("dynamic content should not carry map metadata")
	}
	if len(content.Children()) != 3 {
		t.Errorf("expected 3 nodes, got %d", len(content.Children()))
	}
}

func TestDynamicInlineChildren(t *testing.T) {
	doc := &Document{
		Name: "inline",
		Nodes: []NodeDoc{{
			Kind: KindDynamic, Name: "d",
			Children: []NodeDoc{{Kind: KindOther, Name: "x"}},
		}},
	}
	root, err := doc.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	loader := root.Children()[0].(*scene.DynamicLoader)
	if state, _ := loader.State(); state != scene.Loaded || loader.Child() == nil {
		t.Errorf("inline dynamic content should be loaded, state %v", state)
	}
}
