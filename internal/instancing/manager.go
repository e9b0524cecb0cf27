package instancing

import (
	"sort"

	rl "github.com/gen2brain/raylib-go/raylib"

	"world-builder/internal/logger"
	"world-builder/internal/scenegraph"
)

const (
	// MaxCapacity bounds the slots of a single group.
	MaxCapacity = 1000
	// MinBatch is the number of eligible copies needed before an asset is batched.
	MinBatch = 3
)

// Releaser frees the GPU resources a renderer allocated for a group.
type Releaser interface {
	ReleaseGroup(g *Group)
}

// Option configures a Manager.
type Option func(*Manager)

// WithReleaser sets the hook called when a group is dropped or the manager is disposed.
func WithReleaser(r Releaser) Option {
	return func(m *Manager) { m.releaser = r }
}

// WithLogger sets the logger used for capacity and eligibility messages.
func WithLogger(l *logger.Logger) Option {
	return func(m *Manager) { m.log = l }
}

// Manager owns one Group per asset key. It does matrix and index bookkeeping only; callers
// decide which instances to batch and fall back to direct drawing when AddInstance fails.
type Manager struct {
	capacity   int
	groups     map[string]*Group
	byInstance map[string]string
	ineligible map[string]struct{}
	overflowed map[string]struct{}
	releaser   Releaser
	log        *logger.Logger
}

// NewManager returns a manager whose groups hold up to capacity instances (clamped to MaxCapacity).
func NewManager(capacity int, opts ...Option) *Manager {
	if capacity <= 0 || capacity > MaxCapacity {
		capacity = MaxCapacity
	}
	m := &Manager{
		capacity:   capacity,
		groups:     make(map[string]*Group),
		byInstance: make(map[string]string),
		ineligible: make(map[string]struct{}),
		overflowed: make(map[string]struct{}),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Capacity returns the per-group slot limit.
func (m *Manager) Capacity() int {
	return m.capacity
}

// Eligible reports whether an asset can be batched, judged from a built template subtree:
// no animation callback, not an NPC, exactly one non-helper mesh. A failed check is remembered
// so the asset is not examined again.
func (m *Manager) Eligible(key string, template *scenegraph.Node) bool {
	if _, ok := m.ineligible[key]; ok {
		return false
	}
	if template == nil || !eligibleTemplate(template) {
		m.MarkIneligible(key)
		return false
	}
	return true
}

func eligibleTemplate(template *scenegraph.Node) bool {
	animated := false
	npc := false
	template.Walk(func(n *scenegraph.Node) bool {
		if n.Data.Animator != nil {
			animated = true
		}
		if n.Data.NPC {
			npc = true
		}
		return true
	})
	return !animated && !npc && template.MeshCount(false) == 1
}

// MarkIneligible permanently excludes key from batching.
func (m *Manager) MarkIneligible(key string) {
	m.ineligible[key] = struct{}{}
}

// IsIneligible reports whether key has been excluded.
func (m *Manager) IsIneligible(key string) bool {
	_, ok := m.ineligible[key]
	return ok
}

// Forget drops the eligibility memo and any group for key, e.g. after the asset definition
// changed. Returns the ids that were batched.
func (m *Manager) Forget(key string) []string {
	delete(m.ineligible, key)
	delete(m.overflowed, key)
	return m.RemoveGroup(key)
}

// Ensure returns the group for key, creating it from template when the asset is eligible.
func (m *Manager) Ensure(key string, template *scenegraph.Node) (*Group, bool) {
	if g, ok := m.groups[key]; ok {
		return g, true
	}
	if !m.Eligible(key, template) {
		return nil, false
	}
	var meshNode *scenegraph.Node
	template.Walk(func(n *scenegraph.Node) bool {
		if meshNode == nil && n.Mesh != nil && !n.Mesh.Helper {
			meshNode = n
		}
		return meshNode == nil
	})
	if meshNode == nil || meshNode.Mesh.Released() {
		m.MarkIneligible(key)
		return nil, false
	}
	g := newGroup(key, m.capacity)
	g.Geometry = meshNode.Mesh.Geometry
	g.Material = meshNode.Mesh.Material
	g.Color = meshNode.Mesh.Color
	g.Bounds = meshNode.Mesh.Bounds
	g.local = relativeMatrix(meshNode, template)
	m.groups[key] = g
	return g, true
}

// relativeMatrix returns n's transform relative to ancestor.
func relativeMatrix(n, ancestor *scenegraph.Node) rl.Matrix {
	m := rl.MatrixIdentity()
	for cur := n; cur != nil && cur != ancestor; cur = cur.Parent() {
		m = rl.MatrixMultiply(m, cur.LocalMatrix())
	}
	return m
}

// AddInstance places id in the group for key. An id already batched is updated instead.
// Returns false when no group exists for key or the group is full; capacity exhaustion is
// expected and the caller draws the overflow directly.
func (m *Manager) AddInstance(key, id string, t Transform) bool {
	if _, ok := m.byInstance[id]; ok {
		return m.UpdateInstance(id, t)
	}
	g, ok := m.groups[key]
	if !ok {
		return false
	}
	if !g.add(id, t) {
		if _, seen := m.overflowed[key]; !seen {
			m.overflowed[key] = struct{}{}
			m.log.Logf("instancing: %s is full (%d), drawing overflow directly", key, g.capacity)
		}
		return false
	}
	m.byInstance[id] = key
	return true
}

// UpdateInstance rewrites the transform of a batched instance.
func (m *Manager) UpdateInstance(id string, t Transform) bool {
	key, ok := m.byInstance[id]
	if !ok {
		return false
	}
	return m.groups[key].update(id, t)
}

// RemoveInstance frees the slot of id by moving the last slot into it.
func (m *Manager) RemoveInstance(id string) bool {
	key, ok := m.byInstance[id]
	if !ok {
		return false
	}
	delete(m.byInstance, id)
	return m.groups[key].remove(id)
}

// RemoveGroup drops the group for key and returns the ids it held.
func (m *Manager) RemoveGroup(key string) []string {
	g, ok := m.groups[key]
	if !ok {
		return nil
	}
	ids := g.IDs()
	for _, id := range ids {
		delete(m.byInstance, id)
	}
	m.release(g)
	delete(m.groups, key)
	return ids
}

// Contains reports whether id is batched.
func (m *Manager) Contains(id string) bool {
	_, ok := m.byInstance[id]
	return ok
}

// KeyOf returns the asset key of the group holding id.
func (m *Manager) KeyOf(id string) (string, bool) {
	key, ok := m.byInstance[id]
	return key, ok
}

// Group returns the group for key.
func (m *Manager) Group(key string) (*Group, bool) {
	g, ok := m.groups[key]
	return g, ok
}

// Groups returns all groups sorted by key.
func (m *Manager) Groups() []*Group {
	out := make([]*Group, 0, len(m.groups))
	for _, g := range m.groups {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Dispose releases every group and clears all maps, leaving the manager empty and reusable.
func (m *Manager) Dispose() {
	for _, g := range m.groups {
		m.release(g)
	}
	clear(m.groups)
	clear(m.byInstance)
	clear(m.ineligible)
	clear(m.overflowed)
}

func (m *Manager) release(g *Group) {
	g.clear()
	if m.releaser != nil {
		m.releaser.ReleaseGroup(g)
	}
}
