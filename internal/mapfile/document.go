// Package mapfile reads and writes YAML map documents and builds scene
// graphs from them.
package mapfile

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/mapcore/server/internal/compression"
	"github.com/mapcore/server/internal/mapctl"
	"github.com/mapcore/server/internal/scene"
)

// Node kinds in a map document
const (
	KindGroup   = "group"
	KindTerrain = "terrain"
	KindDynamic = "dynamic"
	KindOther   = "other"
)

// Document is a map as stored on disk, over HTTP or in the catalog
type Document struct {
	Name        string      `yaml:"name" json:"name" validate:"required"`
	Projection  string      `yaml:"projection,omitempty" json:"projection,omitempty"`
	Origin      string      `yaml:"origin,omitempty" json:"origin,omitempty"`
	MaxLODRange float64     `yaml:"max_lod_range,omitempty" json:"max_lod_range,omitempty" validate:"gte=0"`
	Regions     []RegionDoc `yaml:"regions,omitempty" json:"regions,omitempty" validate:"dive"`
	Nodes       []NodeDoc   `yaml:"nodes,omitempty" json:"nodes,omitempty" validate:"dive"`
}

// RegionDoc describes one region of an authored region-of-interest tree
type RegionDoc struct {
	Name          string    `yaml:"name" json:"name" validate:"required"`
	Offset        []float64 `yaml:"offset,omitempty" json:"offset,omitempty" validate:"omitempty,len=3"`
	Radius        float64   `yaml:"radius,omitempty" json:"radius,omitempty"`
	LoadDistance  float64   `yaml:"load_distance,omitempty" json:"load_distance,omitempty" validate:"gte=0"`
	PurgeDistance float64   `yaml:"purge_distance,omitempty" json:"purge_distance,omitempty" validate:"gte=0"`
	Nodes         []NodeDoc `yaml:"nodes,omitempty" json:"nodes,omitempty" validate:"dive"`
}

// NodeDoc is a scene node. Which fields apply depends on Kind.
type NodeDoc struct {
	Kind       string            `yaml:"kind" json:"kind" validate:"required,oneof=group terrain dynamic other"`
	Name       string            `yaml:"name" json:"name" validate:"required"`
	Attributes map[string]string `yaml:"attributes,omitempty" json:"attributes,omitempty"`
	Children   []NodeDoc         `yaml:"children,omitempty" json:"children,omitempty" validate:"dive"`

	// terrain
	Origin        []float64                      `yaml:"origin,omitempty" json:"origin,omitempty" validate:"omitempty,len=3"`
	Spacing       float64                        `yaml:"spacing,omitempty" json:"spacing,omitempty" validate:"gte=0"`
	Cols          int                            `yaml:"cols,omitempty" json:"cols,omitempty" validate:"gte=0"`
	Rows          int                            `yaml:"rows,omitempty" json:"rows,omitempty" validate:"gte=0"`
	Heights       []float64                      `yaml:"heights,omitempty" json:"heights,omitempty"`
	HeightsPacked *compression.PackedHeightfield `yaml:"heights_packed,omitempty" json:"heights_packed,omitempty"`
	LODDistance   float64                        `yaml:"lod_distance,omitempty" json:"lod_distance,omitempty" validate:"gte=0"`
	MaxLODLevel   int                            `yaml:"max_lod_level,omitempty" json:"max_lod_level,omitempty" validate:"gte=0"`

	// dynamic
	URL           string    `yaml:"url,omitempty" json:"url,omitempty"`
	Center        []float64 `yaml:"center,omitempty" json:"center,omitempty" validate:"omitempty,len=3"`
	LoadDistance  float64   `yaml:"load_distance,omitempty" json:"load_distance,omitempty" validate:"gte=0"`
	PurgeDistance float64   `yaml:"purge_distance,omitempty" json:"purge_distance,omitempty" validate:"gte=0"`
}

var validate = validator.New()

// ErrInvalidDocument wraps every structural problem found in a document
var ErrInvalidDocument = errors.New("invalid map document")

// Parse decodes and validates a YAML (or JSON) map document
func Parse(data []byte) (*Document, error) {
	var doc Document
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Validate checks field constraints and per-kind requirements
func (d *Document) Validate() error {
	if err := validate.Struct(d); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	for _, region := range d.Regions {
		if err := validateNodes(region.Nodes); err != nil {
			return err
		}
	}
	return validateNodes(d.Nodes)
}

func validateNodes(nodes []NodeDoc) error {
	for _, node := range nodes {
		switch node.Kind {
		case KindTerrain:
			if len(node.Children) > 0 {
				return fmt.Errorf("%w: terrain %q cannot have children", ErrInvalidDocument, node.Name)
			}
			if (len(node.Heights) > 0) == (node.HeightsPacked != nil) {
				return fmt.Errorf("%w: terrain %q needs exactly one of heights or heights_packed", ErrInvalidDocument, node.Name)
			}
		case KindDynamic:
			if node.URL == "" && len(node.Children) == 0 {
				return fmt.Errorf("%w: dynamic node %q needs a url or inline children", ErrInvalidDocument, node.Name)
			}
		}
		if err := validateNodes(node.Children); err != nil {
			return err
		}
	}
	return nil
}

// Encode serializes a document as YAML
func Encode(doc *Document) ([]byte, error) {
	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(doc); err != nil {
		return nil, fmt.Errorf("failed to encode map document: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode map document: %w", err)
	}
	return buf.Bytes(), nil
}

// Build creates the scene graph for the document. The returned root group
// carries the map.* metadata read by the resolver. Authored regions are
// placed under a region root named "<name>_roi".
func (d *Document) Build() (scene.Node, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}

	root := scene.NewGroup(d.Name)
	root.SetAttribute(mapctl.AttrName, d.Name)
	if d.Projection != "" {
		root.SetAttribute(mapctl.AttrProjection, d.Projection)
	}
	if d.Origin != "" {
		root.SetAttribute(mapctl.AttrOrigin, d.Origin)
	}
	if d.MaxLODRange > 0 {
		root.SetAttribute(mapctl.AttrMaxLODRange, strconv.FormatFloat(d.MaxLODRange, 'f', -1, 64))
	}

	if len(d.Regions) > 0 {
		regionRoot := scene.NewRegionRoot(d.Name + "_roi")
		for _, rd := range d.Regions {
			region := scene.NewRegion(rd.Name, vec3(rd.Offset))
			region.Radius = rd.Radius
			region.LoadDistance = rd.LoadDistance
			region.PurgeDistance = rd.PurgeDistance
			for _, nd := range rd.Nodes {
				node, err := buildNode(nd)
				if err != nil {
					return nil, fmt.Errorf("region %q: %w", rd.Name, err)
				}
				region.AddChild(node)
			}
			regionRoot.AddRegion(region)
		}
		root.AddChild(regionRoot)
	}

	for _, nd := range d.Nodes {
		node, err := buildNode(nd)
		if err != nil {
			return nil, err
		}
		root.AddChild(node)
	}
	return root, nil
}

// BuildNodes builds the top-level nodes of a document into one group.
// Dynamically loaded content is attached this way, without map metadata.
func (d *Document) BuildNodes() (scene.Node, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	group := scene.NewGroup(d.Name)
	for _, nd := range d.Nodes {
		node, err := buildNode(nd)
		if err != nil {
			return nil, err
		}
		group.AddChild(node)
	}
	return group, nil
}

func buildNode(nd NodeDoc) (scene.Node, error) {
	var node scene.Node
	switch nd.Kind {
	case KindGroup:
		group := scene.NewGroup(nd.Name)
		for _, child := range nd.Children {
			built, err := buildNode(child)
			if err != nil {
				return nil, err
			}
			group.AddChild(built)
		}
		node = group

	case KindTerrain:
		terrain, err := buildTerrain(nd)
		if err != nil {
			return nil, err
		}
		node = terrain

	case KindDynamic:
		loader := scene.NewDynamicLoader(nd.Name, nd.URL)
		loader.Center = vec3(nd.Center)
		loader.LoadDistance = nd.LoadDistance
		loader.PurgeDistance = nd.PurgeDistance
		if len(nd.Children) > 0 {
			content := scene.NewGroup(nd.Name + "_content")
			for _, child := range nd.Children {
				built, err := buildNode(child)
				if err != nil {
					return nil, err
				}
				content.AddChild(built)
			}
			loader.SetChild(content)
		}
		node = loader

	case KindOther:
		node = scene.NewOther(nd.Name)

	default:
		return nil, fmt.Errorf("%w: unknown node kind %q", ErrInvalidDocument, nd.Kind)
	}

	for key, value := range nd.Attributes {
		node.SetAttribute(key, value)
	}
	return node, nil
}

func buildTerrain(nd NodeDoc) (*scene.Terrain, error) {
	heights, cols, rows := nd.Heights, nd.Cols, nd.Rows
	if nd.HeightsPacked != nil {
		var err error
		heights, cols, rows, err = compression.DecodeHeights(nd.HeightsPacked)
		if err != nil {
			return nil, fmt.Errorf("terrain %q: %w", nd.Name, err)
		}
		if (nd.Cols != 0 && nd.Cols != cols) || (nd.Rows != 0 && nd.Rows != rows) {
			return nil, fmt.Errorf("%w: terrain %q declares %dx%d but packed heights are %dx%d",
				ErrInvalidDocument, nd.Name, nd.Cols, nd.Rows, cols, rows)
		}
	}

	terrain, err := scene.NewTerrain(nd.Name, vec3(nd.Origin), nd.Spacing, cols, rows, heights)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	terrain.LODDistance = nd.LODDistance
	terrain.MaxLODLevel = nd.MaxLODLevel
	return terrain, nil
}

// TerrainNode describes a heightfield, packing the heights when packed is set
func TerrainNode(name string, origin mgl64.Vec3, spacing float64, cols, rows int, heights []float64, packed bool) (NodeDoc, error) {
	nd := NodeDoc{
		Kind:    KindTerrain,
		Name:    name,
		Origin:  []float64{origin[0], origin[1], origin[2]},
		Spacing: spacing,
		Cols:    cols,
		Rows:    rows,
	}
	if !packed {
		nd.Heights = heights
		return nd, nil
	}
	encoded, err := compression.EncodeHeights(heights, cols, rows, compression.DefaultQuantization)
	if err != nil {
		return NodeDoc{}, fmt.Errorf("terrain %q: %w", name, err)
	}
	nd.HeightsPacked = encoded
	return nd, nil
}

// vec3 converts an optional validated triple
func vec3(v []float64) mgl64.Vec3 {
	if len(v) != 3 {
		return mgl64.Vec3{}
	}
	return mgl64.Vec3{v[0], v[1], v[2]}
}
