package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"world-builder/internal/camera"
	"world-builder/internal/instances"
	"world-builder/internal/instancing"
	"world-builder/internal/logger"
	"world-builder/internal/picking"
	"world-builder/internal/scenegraph"
	"world-builder/internal/transformedit"
	"world-builder/internal/world"
)

var (
	// ErrDeviceLost is returned by Run when the GPU device went away. Call Recover, then Run again.
	ErrDeviceLost = errors.New("engine: GPU device lost")
	// ErrDisposed is returned by Run after Dispose.
	ErrDisposed = errors.New("engine: disposed")
)

// State is the lifecycle state of the engine.
type State int

const (
	Idle State = iota
	Running
	DeviceLost
	Disposed
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case DeviceLost:
		return "device-lost"
	case Disposed:
		return "disposed"
	}
	return "idle"
}

// maxFrameTime caps dt after stalls so animations do not jump.
const maxFrameTime = 0.1

// Stats are per-frame counters for overlays.
type Stats struct {
	Frames    uint64
	Instances int
	Pending   int
	Groups    int
	Batched   int
	Animated  int
	State     State
}

// Listener receives the engine's upward notifications. Any field may be nil.
type Listener struct {
	OnInstanceEdit        func(id string, t world.EditedTransform)
	OnSelectionInvalidate func()
	OnAssetError          func(name string, err error)
	// OnGroundClick receives terrain and ground hits, the targets for placing new instances.
	OnGroundClick func(hit picking.Hit)
	OnStateChange func(s State)
	// OnCommand receives console lines.
	OnCommand func(line string)
}

// Resetter is implemented by asset factories that cache per-device state.
type Resetter interface {
	Reset()
}

// Options configures an Engine.
type Options struct {
	Capacity     int
	MinBatch     int
	BuildTimeout time.Duration
	Picking      picking.Options
	Edit         transformedit.Options
	Logger       *logger.Logger
}

// Engine composes the scene subsystems and runs the frame loop. All methods except Post must
// be called from the goroutine that calls Run.
type Engine struct {
	backend  Backend
	factory  world.AssetFactory
	terrain  world.TerrainSampler
	listener Listener
	log      *logger.Logger

	cam       *camera.Camera
	root      *scenegraph.Node
	groups    *instancing.Manager
	instances *instances.Manager
	picker    *picking.Picker
	editor    *transformedit.Editor
	sched     Scheduler

	state    State
	world    world.Snapshot
	dirty    bool
	quit     bool
	lastTick time.Time
	lostErr  error
	stats    Stats

	postMu sync.Mutex
	posted []func()
}

// New wires an engine around backend. terrain may be nil for a flat world at height 0.
func New(backend Backend, factory world.AssetFactory, terrain world.TerrainSampler, opts Options, listener Listener) *Engine {
	if terrain == nil {
		terrain = world.FlatTerrain(0)
	}
	e := &Engine{
		backend:  backend,
		factory:  factory,
		terrain:  terrain,
		listener: listener,
		log:      opts.Logger,
		cam:      camera.New(),
		root:     scenegraph.New("scene"),
	}
	vp := backend.Viewport()
	e.cam.SetViewport(vp.Width, vp.Height)

	gopts := []instancing.Option{instancing.WithLogger(opts.Logger)}
	if r, ok := backend.(instancing.Releaser); ok {
		gopts = append(gopts, instancing.WithReleaser(r))
	}
	e.groups = instancing.NewManager(opts.Capacity, gopts...)

	e.editor = transformedit.New(terrain, opts.Edit)
	e.editor.OnEdit = e.onEdit
	e.instances = instances.New(e.root, factory, terrain, e.groups, instances.Options{
		BuildTimeout: opts.BuildTimeout,
		MinBatch:     opts.MinBatch,
		Logger:       opts.Logger,
		Hooks: instances.Hooks{
			Attacher:     e.editor,
			OnInvalidate: e.onInvalidate,
			OnAssetError: e.onAssetError,
		},
	})
	e.editor.OnChange = func(id string) { e.instances.Preview(id) }
	e.picker = picking.New(e.cam, e.instances, terrain, backend.Viewport, opts.Picking)
	return e
}

// SetWorld hands the engine a new world state. The snapshot is copied and applied on the
// next frame.
func (e *Engine) SetWorld(s world.Snapshot) error {
	if e.state == Disposed {
		return ErrDisposed
	}
	c, err := s.Clone()
	if err != nil {
		return err
	}
	e.world = c
	e.dirty = true
	return nil
}

// Start schedules the first tick. It is a no-op unless the engine is idle.
func (e *Engine) Start() {
	if e.state != Idle {
		return
	}
	e.lastTick = time.Now()
	e.setState(Running)
	e.sched.Request(e.tick)
}

// Step runs the scheduled tick at now. Returns false when no tick was scheduled.
func (e *Engine) Step(now time.Time) bool {
	return e.sched.Step(now)
}

// Run drives frames until ctx is done, the user quits, or the device is lost. Device loss
// returns an error wrapping ErrDeviceLost; the engine can then be recovered and run again.
func (e *Engine) Run(ctx context.Context) error {
	switch e.state {
	case Disposed:
		return ErrDisposed
	case DeviceLost:
		return e.lostError()
	}
	e.quit = false
	e.Start()
	if e.state == Running && !e.sched.Pending() {
		e.sched.Request(e.tick)
	}
	for {
		if err := e.backend.WaitFrame(ctx); err != nil {
			return err
		}
		e.Step(time.Now())
		switch {
		case e.quit:
			return nil
		case e.state == DeviceLost:
			return e.lostError()
		case e.state == Disposed:
			return ErrDisposed
		case !e.sched.Pending():
			return nil
		}
	}
}

func (e *Engine) lostError() error {
	if e.lostErr == nil || errors.Is(e.lostErr, ErrDeviceLost) {
		return fmt.Errorf("run: %w", ErrDeviceLost)
	}
	return fmt.Errorf("run: %w: %v", ErrDeviceLost, e.lostErr)
}

func (e *Engine) tick(now time.Time) {
	if e.state != Running {
		return
	}
	dt := float32(now.Sub(e.lastTick).Seconds())
	dt = max(0, min(dt, maxFrameTime))
	e.lastTick = now

	select {
	case err := <-e.backend.Lost():
		e.deviceLost(err)
		return
	default:
	}

	e.runPosted()
	in := e.backend.Poll(e.cam, dt)
	e.handleInput(in)
	if in.Quit {
		e.quit = true
		return
	}
	if e.state != Running {
		return
	}

	e.instances.ProcessCompleted()
	if e.dirty {
		e.dirty = false
		e.instances.Sync(e.world)
	}
	frustum := e.cam.Frustum()
	e.stats.Animated = e.instances.Animate(dt, frustum.ContainsSphere)

	if err := e.backend.Render(e.frame()); err != nil {
		if errors.Is(err, ErrDeviceLost) {
			e.deviceLost(err)
			return
		}
		e.log.Logf("render: %v", err)
	}
	e.stats.Frames++
	e.sched.Request(e.tick)
}

// Post queues fn to run on the frame goroutine at the start of the next tick. It is the only
// method that may be called from other goroutines.
func (e *Engine) Post(fn func()) {
	e.postMu.Lock()
	e.posted = append(e.posted, fn)
	e.postMu.Unlock()
}

func (e *Engine) runPosted() {
	e.postMu.Lock()
	fns := e.posted
	e.posted = nil
	e.postMu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (e *Engine) frame() Frame {
	return Frame{
		Camera:   e.cam,
		Root:     e.root,
		Groups:   e.groups.Groups(),
		Gizmo:    e.editor.Gizmo(),
		Helper:   e.editor.Helper(),
		Selected: e.editor.AttachedID(),
		Stats:    e.Stats(),
	}
}

func (e *Engine) handleInput(in Input) {
	if in.Resized {
		e.Resize(in.Width, in.Height)
	}
	for _, a := range in.Actions {
		e.apply(a)
	}
	for _, p := range in.Pointer {
		switch p.Kind {
		case PointerPress:
			e.press(p.X, p.Y)
		case PointerMove:
			if e.editor.Dragging() {
				e.editor.DragRay(e.picker.Ray(p.X, p.Y))
			}
		case PointerRelease:
			e.editor.EndDrag()
		}
	}
	for _, line := range in.Commands {
		if e.listener.OnCommand != nil {
			e.listener.OnCommand(line)
		}
	}
}

func (e *Engine) apply(a Action) {
	switch a {
	case ActionTranslate:
		e.SetGizmoMode(transformedit.Translate)
	case ActionRotate:
		e.SetGizmoMode(transformedit.Rotate)
	case ActionScale:
		e.SetGizmoMode(transformedit.Scale)
	case ActionToggleSnap:
		e.SetSnapping(!e.editor.Snapping())
	case ActionToggleGround:
		e.SetGroundConstraint(!e.editor.GroundConstraint())
	case ActionTogglePlay:
		e.SetPlaying(!e.instances.Playing())
	case ActionDeselect:
		e.Select("")
	case ActionCancelDrag:
		e.editor.CancelDrag()
	}
}

// press grabs a gizmo handle under the pointer, or else selects what the click hits.
func (e *Engine) press(x, y float32) {
	ray := e.picker.Ray(x, y)
	if axis := e.editor.PickAxis(ray); axis != transformedit.AxisNone {
		e.editor.BeginDrag(axis, ray)
		return
	}
	hit := e.picker.Raycast(x, y)
	switch hit.Kind {
	case picking.Instance:
		e.Select(hit.InstanceID)
	case picking.Terrain, picking.Ground:
		e.Select("")
		if e.listener.OnGroundClick != nil {
			e.listener.OnGroundClick(hit)
		}
	default:
		e.Select("")
	}
}

func (e *Engine) deviceLost(err error) {
	if e.state != Running {
		return
	}
	e.sched.Cancel()
	e.editor.CancelDrag()
	e.lostErr = err
	e.log.Logf("gpu device lost: %v", err)
	e.setState(DeviceLost)
}

// Recover rebuilds everything that lived on the lost device: the backend's shared resources,
// the factory's caches, every instancing group, and every instance node. The engine is
// running again afterwards.
func (e *Engine) Recover() error {
	switch e.state {
	case Disposed:
		return ErrDisposed
	case DeviceLost:
	default:
		return nil
	}
	if err := e.backend.ResetDevice(); err != nil {
		return fmt.Errorf("reset device: %w", err)
	}
	for drained := false; !drained; {
		select {
		case <-e.backend.Lost():
		default:
			drained = true
		}
	}
	if r, ok := e.factory.(Resetter); ok {
		r.Reset()
	}
	e.groups.Dispose()
	e.instances.RebuildAll()
	e.picker.Invalidate()
	e.picker.ResetCycle()
	e.lostErr = nil
	e.log.Log("gpu device restored")
	e.setState(Idle)
	e.Start()
	return nil
}

// Dispose releases everything. Safe to call from any state and more than once.
func (e *Engine) Dispose() {
	if e.state == Disposed {
		return
	}
	e.sched.Cancel()
	e.editor.CancelDrag()
	e.editor.Detach()
	e.instances.Dispose()
	e.groups.Dispose()
	e.backend.Close()
	e.setState(Disposed)
}

func (e *Engine) setState(s State) {
	if s == e.state {
		return
	}
	e.state = s
	if e.listener.OnStateChange != nil {
		e.listener.OnStateChange(s)
	}
}

func (e *Engine) onEdit(id string, t world.EditedTransform) {
	if e.listener.OnInstanceEdit != nil {
		e.listener.OnInstanceEdit(id, t)
	}
}

func (e *Engine) onInvalidate() {
	e.picker.ResetCycle()
	if e.listener.OnSelectionInvalidate != nil {
		e.listener.OnSelectionInvalidate()
	}
}

func (e *Engine) onAssetError(name string, err error) {
	if e.listener.OnAssetError != nil {
		e.listener.OnAssetError(name, err)
	}
}

// Select attaches the gizmo to id, or detaches it for "". Returns false for unknown ids.
func (e *Engine) Select(id string) bool {
	if id == "" {
		e.editor.EndDrag()
		e.editor.Detach()
		return true
	}
	n, ok := e.instances.Node(id)
	if !ok {
		return false
	}
	if id != e.editor.AttachedID() {
		e.editor.EndDrag()
	}
	e.editor.Attach(id, n)
	return true
}

// Selected returns the selected instance id, or "".
func (e *Engine) Selected() string {
	return e.editor.AttachedID()
}

// SetGizmoMode switches between translate, rotate, and scale.
func (e *Engine) SetGizmoMode(m transformedit.Mode) {
	e.editor.SetMode(m)
}

// SetSnapping turns grid and angle snapping on or off.
func (e *Engine) SetSnapping(on bool) {
	e.editor.SetSnapping(on)
}

// SetGroundConstraint turns ground lock on or off.
func (e *Engine) SetGroundConstraint(on bool) {
	e.editor.SetGroundConstraint(on)
}

// SetPlaying hands NPCs to an external controller while on.
func (e *Engine) SetPlaying(on bool) {
	e.instances.SetPlaying(on)
}

// Rebuild rebuilds one instance. Returns false for unknown ids.
func (e *Engine) Rebuild(id string) bool {
	return e.instances.Rebuild(id)
}

// RebuildAsset rebuilds every instance of libraryID and returns how many were rebuilt.
func (e *Engine) RebuildAsset(libraryID string) int {
	return e.instances.RebuildAsset(libraryID)
}

// Pick raycasts the scene at a screen position.
func (e *Engine) Pick(x, y float32) picking.Hit {
	return e.picker.Raycast(x, y)
}

// PickPart resolves the selectable part of instance id under a screen position.
func (e *Engine) PickPart(id string, x, y float32) (picking.Part, bool) {
	n, ok := e.instances.Node(id)
	if !ok {
		return picking.Part{}, false
	}
	return e.picker.PickPart(n, x, y)
}

// Resize updates the camera aspect and drops cached viewport bounds.
func (e *Engine) Resize(width, height float32) {
	e.cam.SetViewport(width, height)
	e.picker.Invalidate()
}

// Stats returns the current counters.
func (e *Engine) Stats() Stats {
	s := e.stats
	s.Instances = e.instances.Count()
	s.Pending = e.instances.PendingCount()
	groups := e.groups.Groups()
	s.Groups = len(groups)
	s.Batched = 0
	for _, g := range groups {
		s.Batched += g.Count()
	}
	s.State = e.state
	return s
}

// State returns the lifecycle state.
func (e *Engine) State() State { return e.state }

// Camera returns the scene camera.
func (e *Engine) Camera() *camera.Camera { return e.cam }

// Instances returns the instance lifecycle manager.
func (e *Engine) Instances() *instances.Manager { return e.instances }

// Groups returns the instancing groups manager.
func (e *Engine) Groups() *instancing.Manager { return e.groups }

// Editor returns the transform editor.
func (e *Engine) Editor() *transformedit.Editor { return e.editor }
