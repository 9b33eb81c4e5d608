package scene

import "sync"

// Access gates the scene graph between the edit role (structural changes,
// map switches, ray queries that may load data) and the render role
// (read-only traversal). Edit access is exclusive; render access excludes
// edit access but not other renderers.
//
// Acquire calls block until the lock is available.
type Access struct {
	mu sync.RWMutex
}

// NewAccess returns an unlocked access gate
func NewAccess() *Access {
	return &Access{}
}

func (a *Access) AcquireEditAccess()   { a.mu.Lock() }
func (a *Access) ReleaseEditAccess()   { a.mu.Unlock() }
func (a *Access) AcquireRenderAccess() { a.mu.RLock() }
func (a *Access) ReleaseRenderAccess() { a.mu.RUnlock() }

// WithEditAccess runs fn while holding edit access
func (a *Access) WithEditAccess(fn func()) {
	a.AcquireEditAccess()
	defer a.ReleaseEditAccess()
	fn()
}

// WithRenderAccess runs fn while holding render access
func (a *Access) WithRenderAccess(fn func()) {
	a.AcquireRenderAccess()
	defer a.ReleaseRenderAccess()
	fn()
}
