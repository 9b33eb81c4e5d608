// Package streaming loads and purges the content of dynamic scene nodes.
package streaming

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/mapcore/server/internal/performance"
	"github.com/mapcore/server/internal/scene"
)

// defaultRetryAfter is how long a failed node is left alone before
// another asynchronous load is attempted
const defaultRetryAfter = 5 * time.Second

// Fetcher retrieves the content of a dynamic node
type Fetcher interface {
	Fetch(ctx context.Context, url string) (scene.Node, error)
}

// MapSource provides the graph the manager streams
type MapSource interface {
	ActiveMap() scene.Node
}

// Manager coordinates loading of dynamic nodes. Concurrent requests for the
// same node share one fetch.
type Manager struct {
	access     *scene.Access
	fetcher    Fetcher
	profiler   *performance.Profiler
	retryAfter time.Duration

	mu       sync.Mutex
	inflight map[*scene.DynamicLoader]*loadCall
	failedAt map[*scene.DynamicLoader]time.Time
	current  []string
}

// loadCall is a fetch in progress. content and err are set before done is closed.
type loadCall struct {
	done    chan struct{}
	content scene.Node
	err     error
}

// LoadDelta describes dynamic nodes that started or stopped being resident
// during an UpdateAround pass.
type LoadDelta struct {
	Added   []string `json:"added"`
	Removed []string `json:"removed"`
	Current []string `json:"current"`
}

// NewManager builds a dynamic-load manager. profiler may be nil.
func NewManager(access *scene.Access, fetcher Fetcher, profiler *performance.Profiler) *Manager {
	if access == nil || fetcher == nil {
		panic("streaming: NewManager requires access and fetcher")
	}
	if profiler == nil {
		profiler = performance.NewProfiler(false)
	}
	return &Manager{
		access:     access,
		fetcher:    fetcher,
		profiler:   profiler,
		retryAfter: defaultRetryAfter,
		inflight:   make(map[*scene.DynamicLoader]*loadCall),
		failedAt:   make(map[*scene.DynamicLoader]time.Time),
	}
}

// Request loads the content of node. With wait set it returns once the
// content is installed or the load failed; callers passing wait hold edit
// access. Without wait the load runs in the background and Request returns
// immediately.
func (m *Manager) Request(ctx context.Context, node *scene.DynamicLoader, wait bool) error {
	if node == nil {
		return fmt.Errorf("dynamic node is nil")
	}
	if node.Child() != nil {
		return nil
	}
	if node.URL == "" {
		return fmt.Errorf("dynamic node %s has no url", node.Name())
	}

	m.mu.Lock()
	if call, ok := m.inflight[node]; ok {
		m.mu.Unlock()
		if !wait {
			return nil
		}
		return m.await(ctx, node, call)
	}
	if failed, ok := m.failedAt[node]; ok && !wait && time.Since(failed) < m.retryAfter {
		m.mu.Unlock()
		_, err := node.State()
		return fmt.Errorf("dynamic node %s recently failed: %w", node.Name(), err)
	}
	if !node.MarkLoading() {
		m.mu.Unlock()
		return nil
	}
	call := &loadCall{done: make(chan struct{})}
	m.inflight[node] = call
	m.mu.Unlock()

	if wait {
		m.fetch(ctx, node, call)
		m.install(node, call)
		return call.err
	}

	go func() {
		// Background loads outlive the triggering query
		m.fetch(context.WithoutCancel(ctx), node, call)
		m.access.WithEditAccess(func() {
			m.install(node, call)
		})
	}()
	return nil
}

// await blocks on another caller's fetch and installs its result. The
// caller holds edit access, so installing here cannot race with traversal.
func (m *Manager) await(ctx context.Context, node *scene.DynamicLoader, call *loadCall) error {
	select {
	case <-call.done:
	case <-ctx.Done():
		return fmt.Errorf("waiting for dynamic node %s: %w", node.Name(), ctx.Err())
	}
	if call.err != nil {
		return call.err
	}
	if node.Child() == nil {
		node.SetChild(call.content)
	}
	return nil
}

func (m *Manager) fetch(ctx context.Context, node *scene.DynamicLoader, call *loadCall) {
	op := m.profiler.Start("dynamic_load")
	content, err := m.fetcher.Fetch(ctx, node.URL)
	op.End()

	if err != nil {
		call.err = fmt.Errorf("failed to load dynamic node %s from %s: %w", node.Name(), node.URL, err)
	} else if content == nil {
		call.err = fmt.Errorf("dynamic node %s: %s returned no content", node.Name(), node.URL)
	} else {
		call.content = content
	}
	close(call.done)
}

// install attaches fetched content and forgets the call. Callers hold edit access.
func (m *Manager) install(node *scene.DynamicLoader, call *loadCall) {
	if call.err != nil {
		node.MarkFailed(call.err)
		m.profiler.Count("dynamic_load", "failed")
		log.Printf("[Stream] Warning: %v", call.err)
	} else {
		if node.Child() == nil {
			node.SetChild(call.content)
		}
		m.profiler.Count("dynamic_load", "loaded")
		log.Printf("[Stream] Loaded dynamic node %s from %s", node.Name(), node.URL)
	}

	m.mu.Lock()
	delete(m.inflight, node)
	if call.err != nil {
		m.failedAt[node] = time.Now()
	} else {
		delete(m.failedAt, node)
	}
	m.mu.Unlock()
}

// Inflight returns the number of loads in progress
func (m *Manager) Inflight() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.inflight)
}

// trackedLoader is a dynamic node with its global center
type trackedLoader struct {
	node   *scene.DynamicLoader
	center mgl64.Vec3
}

// collectLoaders finds dynamic nodes below node. frame is the global
// origin of node's coordinates.
func collectLoaders(node scene.Node, frame mgl64.Vec3, out []trackedLoader) []trackedLoader {
	switch n := node.(type) {
	case *scene.Region:
		frame = n.FrameOffset
	case *scene.DynamicLoader:
		out = append(out, trackedLoader{node: n, center: frame.Add(n.Center)})
	}
	for _, child := range node.Children() {
		out = collectLoaders(child, frame, out)
	}
	return out
}

// UpdateAround requests dynamic nodes whose center is within LoadDistance
// of eye and unloads those beyond PurgeDistance. Loads are asynchronous.
// A zero distance disables the corresponding action for that node.
func (m *Manager) UpdateAround(ctx context.Context, source MapSource, eye mgl64.Vec3) *LoadDelta {
	root := source.ActiveMap()
	if root == nil {
		return m.recordDelta(nil)
	}

	var loaders []trackedLoader
	m.access.WithRenderAccess(func() {
		loaders = collectLoaders(root, mgl64.Vec3{}, nil)
	})

	var purge []*scene.DynamicLoader
	for _, l := range loaders {
		dist := eye.Sub(l.center).Len()
		loaded := l.node.Child() != nil
		switch {
		case !loaded && l.node.LoadDistance > 0 && dist <= l.node.LoadDistance:
			if err := m.Request(ctx, l.node, false); err != nil {
				log.Printf("[Stream] Warning: %v", err)
			}
		case loaded && l.node.URL != "" && l.node.PurgeDistance > 0 && dist > l.node.PurgeDistance:
			purge = append(purge, l.node)
		}
	}

	if len(purge) > 0 {
		m.access.WithEditAccess(func() {
			for _, node := range purge {
				resident := time.Since(node.LoadedAt()).Round(time.Second)
				node.Unload()
				m.profiler.Count("dynamic_load", "purged")
				log.Printf("[Stream] Purged dynamic node %s after %v", node.Name(), resident)
			}
		})
	}

	var resident []string
	for _, l := range loaders {
		if state, _ := l.node.State(); state == scene.Loaded || state == scene.Loading {
			resident = append(resident, l.node.Name())
		}
	}
	sort.Strings(resident)
	return m.recordDelta(resident)
}

func (m *Manager) recordDelta(next []string) *LoadDelta {
	m.mu.Lock()
	defer m.mu.Unlock()

	added, removed := diffSets(m.current, next)
	m.current = next
	if len(added) > 0 || len(removed) > 0 {
		log.Printf("[Stream] UpdateAround: added=%d removed=%d resident=%d", len(added), len(removed), len(next))
	}
	return &LoadDelta{
		Added:   added,
		Removed: removed,
		Current: next,
	}
}

// Run calls UpdateAround every interval with the position reported by eye
// until ctx is cancelled. Ticks where eye reports false are skipped.
func (m *Manager) Run(ctx context.Context, interval time.Duration, source MapSource, eye func() (mgl64.Vec3, bool)) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if pos, ok := eye(); ok {
				m.UpdateAround(ctx, source, pos)
			}
		}
	}
}

func diffSets(previous, next []string) (added []string, removed []string) {
	prevSet := make(map[string]struct{}, len(previous))
	nextSet := make(map[string]struct{}, len(next))

	for _, id := range previous {
		prevSet[id] = struct{}{}
	}
	for _, id := range next {
		nextSet[id] = struct{}{}
		if _, exists := prevSet[id]; !exists {
			added = append(added, id)
		}
	}
	for _, id := range previous {
		if _, exists := nextSet[id]; !exists {
			removed = append(removed, id)
		}
	}
	return
}
