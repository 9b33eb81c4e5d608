package scene

import (
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl64"
)

// LoadState tracks the lifecycle of a dynamically loaded sub-graph
type LoadState int

const (
	Unloaded LoadState = iota
	Loading
	Loaded
	Failed
)

func (s LoadState) String() string {
	switch s {
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	case Failed:
		return "failed"
	default:
		return "unloaded"
	}
}

// DynamicLoader is a placeholder for a sub-graph fetched on demand from URL.
// Center is expressed in the parent frame and drives load/purge decisions.
type DynamicLoader struct {
	nodeBase
	URL           string
	Center        mgl64.Vec3
	LoadDistance  float64
	PurgeDistance float64

	mu       sync.RWMutex
	child    Node
	state    LoadState
	lastErr  error
	loadedAt time.Time
}

// NewDynamicLoader creates an unloaded dynamic node
func NewDynamicLoader(name, url string) *DynamicLoader {
	return &DynamicLoader{
		nodeBase: nodeBase{name: name},
		URL:      url,
	}
}

// NewLoadedDynamicLoader wraps an already loaded sub-graph
func NewLoadedDynamicLoader(name, url string, child Node) *DynamicLoader {
	d := NewDynamicLoader(name, url)
	d.SetChild(child)
	return d
}

func (d *DynamicLoader) Kind() NodeKind { return KindDynamicLoader }

// Child returns the loaded sub-graph, or nil
func (d *DynamicLoader) Child() Node {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.child
}

// SetChild installs a loaded sub-graph. Callers hold edit access.
func (d *DynamicLoader) SetChild(child Node) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.child = child
	d.lastErr = nil
	if child != nil {
		d.state = Loaded
		d.loadedAt = time.Now()
	} else {
		d.state = Unloaded
	}
}

// MarkLoading flags the node as being fetched. It returns false if the
// node is already loading or loaded.
func (d *DynamicLoader) MarkLoading() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state == Loading || d.state == Loaded {
		return false
	}
	d.state = Loading
	return true
}

// MarkFailed records a failed fetch so it can be retried later
func (d *DynamicLoader) MarkFailed(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state = Failed
	d.lastErr = err
}

// Unload drops the loaded sub-graph. Callers hold edit access.
func (d *DynamicLoader) Unload() {
	d.SetChild(nil)
}

// State returns the current load state and the last load error, if any
func (d *DynamicLoader) State() (LoadState, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.state, d.lastErr
}

// LoadedAt returns when the current child was installed
func (d *DynamicLoader) LoadedAt() time.Time {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.loadedAt
}

func (d *DynamicLoader) Children() []Node {
	if child := d.Child(); child != nil {
		return []Node{child}
	}
	return nil
}
