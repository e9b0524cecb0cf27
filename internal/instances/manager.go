package instances

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"sync"
	"time"

	rl "github.com/gen2brain/raylib-go/raylib"

	"world-builder/internal/instancing"
	"world-builder/internal/logger"
	"world-builder/internal/scenegraph"
	"world-builder/internal/world"
)

// DefaultBuildTimeout bounds one asynchronous construction.
const DefaultBuildTimeout = 10 * time.Second

// Attacher is the gizmo side of the manager: it learns about node replacements for the
// attached instance and lets go of instances that disappear.
type Attacher interface {
	AttachedID() string
	Attach(id string, node *scenegraph.Node)
	Detach()
}

// Hooks are the upward notifications of the manager. Any of them may be nil.
type Hooks struct {
	Attacher Attacher
	// OnInvalidate is called when nodes were added or removed and picking caches are stale.
	OnInvalidate func()
	// OnAssetError reports an asset that failed to build.
	OnAssetError func(name string, err error)
}

// Options configures a Manager.
type Options struct {
	BuildTimeout time.Duration
	// MinBatch is the number of copies an asset needs before it is drawn instanced.
	MinBatch int
	Hooks    Hooks
	Logger   *logger.Logger
}

type pendingBuild struct {
	token  uint64
	cancel context.CancelFunc
}

// source is what a node was built from. Sync compares it with the incoming record and
// library entry to find nodes that must be rebuilt.
type source struct {
	def       world.LibraryAsset
	overrides map[string]world.PartOverride
	// missing is set when the asset was not in the library and an error placeholder stands in.
	missing   bool
}

type completion struct {
	id    string
	token uint64
	def   world.LibraryAsset
	node  *scenegraph.Node
	err   error
}

// Manager owns the mapping from instance id to scene node. Every live record has exactly one
// subtree under root: a placeholder while its asset builds, then the final subtree or an
// error placeholder.
//
// All methods except the construction goroutines run on the frame goroutine. Finished
// constructions are queued and applied by ProcessCompleted.
type Manager struct {
	root     *scenegraph.Node
	factory  world.AssetFactory
	terrain  world.TerrainSampler
	groups   *instancing.Manager
	hooks    Hooks
	log      *logger.Logger
	timeout  time.Duration
	minBatch int

	nodes     map[string]*scenegraph.Node
	proxies   map[string]*scenegraph.Node
	records   map[string]world.InstanceRecord
	sources   map[string]source
	library   map[string]world.LibraryAsset
	pending   map[string]pendingBuild
	nextToken uint64
	last      world.Snapshot
	playing   bool

	mu       sync.Mutex
	inbox    []completion
	disposed bool
}

// New returns a manager that places nodes under root.
func New(root *scenegraph.Node, factory world.AssetFactory, terrain world.TerrainSampler, groups *instancing.Manager, opts Options) *Manager {
	if opts.BuildTimeout <= 0 {
		opts.BuildTimeout = DefaultBuildTimeout
	}
	if opts.MinBatch < 2 {
		opts.MinBatch = instancing.MinBatch
	}
	if terrain == nil {
		terrain = world.FlatTerrain(0)
	}
	return &Manager{
		root:     root,
		factory:  factory,
		terrain:  terrain,
		groups:   groups,
		hooks:    opts.Hooks,
		log:      opts.Logger,
		timeout:  opts.BuildTimeout,
		minBatch: opts.MinBatch,
		nodes:    make(map[string]*scenegraph.Node),
		proxies:  make(map[string]*scenegraph.Node),
		records:  make(map[string]world.InstanceRecord),
		sources:  make(map[string]source),
		library:  make(map[string]world.LibraryAsset),
		pending:  make(map[string]pendingBuild),
	}
}

// SetHooks replaces the notification hooks.
func (m *Manager) SetHooks(h Hooks) {
	m.hooks = h
}

// Sync brings the scene in line with s. Removed instances go first, then constructions start
// for records without a node or whose asset, asset definition, or part overrides changed since
// the node was built, then every node gets its record's transform again.
func (m *Manager) Sync(s world.Snapshot) {
	if m.isDisposed() {
		return
	}
	m.last = s
	old := maps.Clone(m.library)
	clear(m.library)
	for _, a := range s.Library {
		m.library[a.ID] = a
		if prev, ok := old[a.ID]; ok && !prev.Equal(a) {
			m.forgetAsset(a.ID)
		}
	}
	present := make(map[string]world.InstanceRecord, len(s.Instances))
	for _, r := range s.Instances {
		present[r.InstanceID] = r
	}

	for _, id := range m.IDs() {
		if _, ok := present[id]; !ok {
			m.remove(id)
		}
	}
	m.records = present

	seen := make(map[string]bool, len(s.Instances))
	for _, r := range s.Instances {
		id := r.InstanceID
		if seen[id] {
			continue
		}
		seen[id] = true
		rec := present[id]
		_, has := m.nodes[id]
		_, building := m.pending[id]
		if (!has && !building) || m.stale(rec) {
			m.cancelPending(id)
			m.startBuild(rec)
		}
	}

	for id := range m.nodes {
		m.applyTransform(id)
	}
	m.reconcile()
}

// stale reports whether the node of rec was built from something other than what rec and the
// library now describe. An error placeholder for a missing asset is stale once the asset exists.
func (m *Manager) stale(rec world.InstanceRecord) bool {
	src, ok := m.sources[rec.InstanceID]
	if !ok || src.def.ID != rec.LibraryID {
		return true
	}
	def, known := m.library[rec.LibraryID]
	if src.missing || !known {
		return src.missing != !known
	}
	return !src.def.Equal(def) || !world.OverridesEqual(src.overrides, rec.PartOverrides)
}

// forgetAsset dissolves the group of an asset whose definition changed and drops its
// eligibility verdict.
func (m *Manager) forgetAsset(libraryID string) {
	for _, id := range m.groups.Forget(libraryID) {
		if n, ok := m.nodes[id]; ok {
			n.Data.Batched = false
		}
	}
}

// ProcessCompleted installs the results of finished constructions. Results for instances that
// were removed or rebuilt meanwhile are released instead. Returns how many were installed.
func (m *Manager) ProcessCompleted() int {
	m.mu.Lock()
	done := m.inbox
	m.inbox = nil
	disposed := m.disposed
	m.mu.Unlock()

	installed := 0
	for _, c := range done {
		if disposed {
			m.release(c.node)
			continue
		}
		if m.complete(c) {
			installed++
		}
	}
	if installed > 0 {
		m.reconcile()
	}
	return installed
}

func (m *Manager) complete(c completion) bool {
	p, ok := m.pending[c.id]
	if !ok || p.token != c.token {
		m.release(c.node)
		return false
	}
	defer delete(m.pending, c.id)

	rec, ok := m.records[c.id]
	if !ok || rec.LibraryID != c.def.ID {
		m.release(c.node)
		return false
	}
	if c.err != nil {
		m.release(c.node)
		m.fail(c.id, c.def, c.err)
		return true
	}
	m.install(c.id, c.node)
	return true
}

// startBuild shows a placeholder for rec and launches its construction.
func (m *Manager) startBuild(rec world.InstanceRecord) {
	def, ok := m.library[rec.LibraryID]
	if !ok {
		m.failMissing(rec)
		return
	}
	m.sources[rec.InstanceID] = source{def: def, overrides: maps.Clone(rec.PartOverrides)}
	m.install(rec.InstanceID, m.factory.Placeholder(def))

	m.nextToken++
	token := m.nextToken
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	m.pending[rec.InstanceID] = pendingBuild{token: token, cancel: cancel}
	go m.build(ctx, cancel, rec.InstanceID, token, def, maps.Clone(rec.PartOverrides))
}

func (m *Manager) build(ctx context.Context, cancel context.CancelFunc, id string, token uint64, def world.LibraryAsset, overrides map[string]world.PartOverride) {
	defer cancel()
	node, err := m.factory.BuildSubtreeContext(ctx, def, overrides)

	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		m.release(node)
		return
	}
	m.inbox = append(m.inbox, completion{id: id, token: token, def: def, node: node, err: err})
	m.mu.Unlock()
}

// failMissing installs the error placeholder for a record whose asset is not in the library.
func (m *Manager) failMissing(rec world.InstanceRecord) {
	m.sources[rec.InstanceID] = source{def: world.LibraryAsset{ID: rec.LibraryID}, missing: true}
	m.fail(rec.InstanceID, world.LibraryAsset{ID: rec.LibraryID}, fmt.Errorf("%w %q", world.ErrUnknownAsset, rec.LibraryID))
}

// fail installs the error placeholder for id and reports the asset.
func (m *Manager) fail(id string, def world.LibraryAsset, err error) {
	m.log.Logf("build %s: %v", def.DisplayName(), err)
	m.install(id, m.factory.ErrorPlaceholder(def, err))
	if m.hooks.OnAssetError != nil {
		m.hooks.OnAssetError(def.DisplayName(), err)
	}
}

// install replaces whatever node id has with node and re-attaches the gizmo if it was
// attached to id.
func (m *Manager) install(id string, node *scenegraph.Node) {
	attached := m.attachedID() == id
	if old, ok := m.nodes[id]; ok {
		m.dropNode(id, old)
	}

	rec := m.records[id]
	node.Data.InstanceID = id
	node.Data.LibraryID = rec.LibraryID
	node.Data.Batched = false
	box, ok := node.LocalBounds()
	if !ok {
		box = scenegraph.BoxBounds(rl.NewVector3(1, 1, 1))
	}
	center := scenegraph.BoxCenter(box)
	node.Data.CenterOffset = rl.NewVector3(-center.X, -box.Min.Y, -center.Z)
	node.Data.BoundsCenter = center
	node.Data.BoundingRadius = scenegraph.BoxRadius(box)

	proxy := scenegraph.NewMesh("hit-proxy", &scenegraph.Mesh{Geometry: "cube", Bounds: box, Helper: true})
	proxy.Visible = false
	proxy.Data.HitProxy = true
	proxy.Data.InstanceID = id
	node.Add(proxy)

	m.root.Add(node)
	m.nodes[id] = node
	m.proxies[id] = proxy
	m.applyTransform(id)
	if attached && m.hooks.Attacher != nil {
		m.hooks.Attacher.Attach(id, node)
	}
	m.invalidate()
}

// remove tears down id completely.
func (m *Manager) remove(id string) {
	m.cancelPending(id)
	if m.attachedID() == id {
		m.hooks.Attacher.Detach()
	}
	if n, ok := m.nodes[id]; ok {
		m.dropNode(id, n)
	}
	delete(m.records, id)
	delete(m.sources, id)
	m.invalidate()
}

func (m *Manager) dropNode(id string, n *scenegraph.Node) {
	m.groups.RemoveInstance(id)
	n.Detach()
	delete(m.nodes, id)
	delete(m.proxies, id)
	m.release(n)
}

func (m *Manager) cancelPending(id string) {
	if p, ok := m.pending[id]; ok {
		p.cancel()
		delete(m.pending, id)
	}
}

func (m *Manager) release(n *scenegraph.Node) {
	if n != nil {
		m.factory.DisposeSubtree(n)
	}
}

// groundedTransform returns the instancing transform of rec: position on the terrain surface
// plus the record's offset, yaw, and uniform scale.
func (m *Manager) groundedTransform(rec world.InstanceRecord, n *scenegraph.Node) instancing.Transform {
	x, y, z := rec.Position[0], rec.Position[1], rec.Position[2]
	return instancing.Transform{
		Position:     rl.NewVector3(x, m.terrain.Height(x, z)+y, z),
		CenterOffset: n.Data.CenterOffset,
		Yaw:          rec.Rotation,
		Scale:        rec.UniformScale(),
	}
}

func (m *Manager) applyTransform(id string) {
	n, ok := m.nodes[id]
	if !ok {
		return
	}
	rec, ok := m.records[id]
	if !ok {
		return
	}
	t := m.groundedTransform(rec, n)
	n.Position = rl.Vector3Add(t.Position, rl.Vector3Scale(t.CenterOffset, t.Scale))
	n.SetYaw(t.Yaw)
	n.SetUniformScale(t.Scale)
	if n.Data.Batched {
		m.groups.UpdateInstance(id, t)
	}
}

// Preview copies the live transform of a batched node into its instancing slot, so edits in
// progress show up before they are committed.
func (m *Manager) Preview(id string) bool {
	n, ok := m.nodes[id]
	if !ok || !n.Data.Batched {
		return false
	}
	s := n.UniformScale()
	co := n.Data.CenterOffset
	return m.groups.UpdateInstance(id, instancing.Transform{
		Position:     rl.Vector3Subtract(n.Position, rl.Vector3Scale(co, s)),
		CenterOffset: co,
		Yaw:          n.Yaw(),
		Scale:        s,
	})
}

// reconcile batches every asset with enough final, eligible copies and dissolves groups that
// no longer qualify. Instances with part overrides look different from the shared template and
// are always drawn directly; only override-free nodes serve as the group template.
func (m *Manager) reconcile() {
	byAsset := make(map[string][]string)
	for id, n := range m.nodes {
		if n.Data.Placeholder || n.Data.Failed || len(m.records[id].PartOverrides) > 0 {
			if n.Data.Batched {
				m.groups.RemoveInstance(id)
				n.Data.Batched = false
			}
			continue
		}
		byAsset[n.Data.LibraryID] = append(byAsset[n.Data.LibraryID], id)
	}

	keep := make(map[string]bool)
	keys := make([]string, 0, len(byAsset))
	for k := range byAsset {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		ids := byAsset[key]
		if len(ids) < m.minBatch {
			continue
		}
		sort.Strings(ids)
		if _, ok := m.groups.Ensure(key, m.nodes[ids[0]]); !ok {
			continue
		}
		keep[key] = true
		for _, id := range ids {
			n := m.nodes[id]
			rec := m.records[id]
			n.Data.Batched = m.groups.AddInstance(key, id, m.groundedTransform(rec, n))
		}
	}

	for _, g := range m.groups.Groups() {
		if keep[g.Key] {
			continue
		}
		for _, id := range m.groups.RemoveGroup(g.Key) {
			if n, ok := m.nodes[id]; ok {
				n.Data.Batched = false
			}
		}
	}
}

// Rebuild constructs id again synchronously, keeping its transform and gizmo attachment.
// Returns false for unknown ids.
func (m *Manager) Rebuild(id string) bool {
	if m.isDisposed() {
		return false
	}
	if !m.rebuild(id) {
		return false
	}
	m.reconcile()
	return true
}

func (m *Manager) rebuild(id string) bool {
	rec, ok := m.records[id]
	if !ok {
		return false
	}
	if _, ok := m.nodes[id]; !ok {
		return false
	}
	m.cancelPending(id)
	def, ok := m.library[rec.LibraryID]
	if !ok {
		m.failMissing(rec)
		return true
	}
	m.sources[id] = source{def: def, overrides: maps.Clone(rec.PartOverrides)}
	node, err := m.factory.BuildSubtree(def, maps.Clone(rec.PartOverrides))
	if err != nil {
		m.release(node)
		m.fail(id, def, err)
		return true
	}
	m.install(id, node)
	return true
}

// RebuildAsset rebuilds every instance of libraryID and re-evaluates whether the asset can be
// batched. Returns the number of rebuilt instances.
func (m *Manager) RebuildAsset(libraryID string) int {
	if m.isDisposed() {
		return 0
	}
	m.groups.Forget(libraryID)
	n := 0
	for _, id := range m.IDs() {
		if m.records[id].LibraryID == libraryID && m.rebuild(id) {
			n++
		}
	}
	m.reconcile()
	return n
}

// RebuildAll throws away every node and pending construction and syncs the last snapshot
// again. Used after the GPU device was lost.
func (m *Manager) RebuildAll() {
	if m.isDisposed() {
		return
	}
	for id := range m.pending {
		m.cancelPending(id)
	}
	m.mu.Lock()
	stale := m.inbox
	m.inbox = nil
	m.mu.Unlock()
	for _, c := range stale {
		m.release(c.node)
	}
	for id, n := range m.nodes {
		m.dropNode(id, n)
	}
	clear(m.records)
	clear(m.sources)
	m.Sync(m.last)
}

// Animate calls the animation callback of every node whose bounding sphere is inside the
// view volume. NPCs are left alone while playing. A callback that fails or panics is
// disabled for good. Returns the number of callbacks run.
func (m *Manager) Animate(dt float32, visible func(center rl.Vector3, radius float32) bool) int {
	ran := 0
	for _, id := range m.IDs() {
		n := m.nodes[id]
		a := n.Data.Animator
		if a == nil || n.Data.AnimateDisabled {
			continue
		}
		if m.playing && n.Data.NPC {
			continue
		}
		center := rl.Vector3Transform(n.Data.BoundsCenter, n.WorldMatrix())
		if visible != nil && !visible(center, n.Data.BoundingRadius*n.UniformScale()) {
			continue
		}
		if err := animate(a, dt); err != nil {
			n.Data.AnimateDisabled = true
			m.log.Logf("animation of %s disabled: %v", id, err)
			continue
		}
		ran++
	}
	return ran
}

func animate(a scenegraph.Animatable, dt float32) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return a.Animate(dt)
}

// SetPlaying switches play mode, in which an external controller drives NPCs.
func (m *Manager) SetPlaying(on bool) {
	m.playing = on
}

// Playing reports whether play mode is on.
func (m *Manager) Playing() bool {
	return m.playing
}

// Node returns the current node of id.
func (m *Manager) Node(id string) (*scenegraph.Node, bool) {
	n, ok := m.nodes[id]
	return n, ok
}

// Record returns the record id was last synced with.
func (m *Manager) Record(id string) (world.InstanceRecord, bool) {
	r, ok := m.records[id]
	return r, ok
}

// HitProxies returns the pick volume of every instance, ordered by instance id.
func (m *Manager) HitProxies() []*scenegraph.Node {
	ids := m.IDs()
	out := make([]*scenegraph.Node, 0, len(ids))
	for _, id := range ids {
		if p, ok := m.proxies[id]; ok {
			out = append(out, p)
		}
	}
	return out
}

// Pending reports whether id is under construction.
func (m *Manager) Pending(id string) bool {
	_, ok := m.pending[id]
	return ok
}

// PendingCount returns the number of constructions in flight.
func (m *Manager) PendingCount() int {
	return len(m.pending)
}

// Count returns the number of instances with a node.
func (m *Manager) Count() int {
	return len(m.nodes)
}

// IDs returns the ids of all instances with a node, sorted.
func (m *Manager) IDs() []string {
	ids := make([]string, 0, len(m.nodes))
	for id := range m.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Dispose cancels all constructions and releases every node. Results still in flight are
// released by their goroutines. Safe to call more than once.
func (m *Manager) Dispose() {
	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return
	}
	m.disposed = true
	stale := m.inbox
	m.inbox = nil
	m.mu.Unlock()

	for _, c := range stale {
		m.release(c.node)
	}
	for id := range m.pending {
		m.cancelPending(id)
	}
	if m.attachedID() != "" {
		m.hooks.Attacher.Detach()
	}
	for id, n := range m.nodes {
		m.dropNode(id, n)
	}
	clear(m.records)
	clear(m.sources)
}

// Disposed reports whether Dispose was called.
func (m *Manager) Disposed() bool {
	return m.isDisposed()
}

func (m *Manager) isDisposed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.disposed
}

func (m *Manager) attachedID() string {
	if m.hooks.Attacher == nil {
		return ""
	}
	return m.hooks.Attacher.AttachedID()
}

func (m *Manager) invalidate() {
	if m.hooks.OnInvalidate != nil {
		m.hooks.OnInvalidate()
	}
}
