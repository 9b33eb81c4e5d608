// Package scene models the parts of the scene graph the map core consumes:
// node hierarchy with attributes, the region-of-interest (ROI) tree used for
// coordinate rebasing, dynamically loaded sub-graphs, terrain geometry,
// the edit/render access lock and the active camera.
package scene

import "sync"

// NodeKind tags the concrete kind of a Node
type NodeKind int

const (
	KindOther NodeKind = iota
	KindGroup
	KindRegionRoot
	KindRegion
	KindDynamicLoader
	KindTerrain
)

// String returns the kind name used in logs and map documents
func (k NodeKind) String() string {
	switch k {
	case KindGroup:
		return "group"
	case KindRegionRoot:
		return "region_root"
	case KindRegion:
		return "region"
	case KindDynamicLoader:
		return "dynamic"
	case KindTerrain:
		return "terrain"
	default:
		return "other"
	}
}

// Node is a scene graph node
type Node interface {
	Name() string
	Kind() NodeKind
	Attribute(key string) (string, bool)
	SetAttribute(key, value string)
	// Children returns the nodes currently below this one.
	// Dynamic loaders return their loaded child, if any.
	Children() []Node
}

// nodeBase carries the name and attribute set shared by all node kinds
type nodeBase struct {
	name  string
	mu    sync.RWMutex
	attrs map[string]string
}

func (b *nodeBase) Name() string {
	return b.name
}

func (b *nodeBase) Attribute(key string) (string, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	value, ok := b.attrs[key]
	return value, ok
}

func (b *nodeBase) SetAttribute(key, value string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.attrs == nil {
		b.attrs = make(map[string]string)
	}
	b.attrs[key] = value
}

// Group is an ordered collection of child nodes
type Group struct {
	nodeBase
	children []Node
}

// NewGroup creates an empty group
func NewGroup(name string) *Group {
	return &Group{nodeBase: nodeBase{name: name}}
}

func (g *Group) Kind() NodeKind { return KindGroup }

// AddChild appends a child node. Callers hold edit access.
func (g *Group) AddChild(child Node) {
	if child == nil {
		return
	}
	g.children = append(g.children, child)
}

// RemoveChild removes a child node and reports whether it was present
func (g *Group) RemoveChild(child Node) bool {
	for i, c := range g.children {
		if c == child {
			g.children = append(g.children[:i], g.children[i+1:]...)
			return true
		}
	}
	return false
}

func (g *Group) Children() []Node {
	return g.children
}

// Other is a leaf node of a kind the map core does not interpret
type Other struct {
	nodeBase
}

// NewOther creates an opaque leaf node
func NewOther(name string) *Other {
	return &Other{nodeBase: nodeBase{name: name}}
}

func (o *Other) Kind() NodeKind   { return KindOther }
func (o *Other) Children() []Node { return nil }

// Walk visits node and its descendants depth first until visit returns false
func Walk(node Node, visit func(Node) bool) bool {
	if node == nil {
		return true
	}
	if !visit(node) {
		return false
	}
	for _, child := range node.Children() {
		if !Walk(child, visit) {
			return false
		}
	}
	return true
}
