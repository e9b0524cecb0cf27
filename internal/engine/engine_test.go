package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	rl "github.com/gen2brain/raylib-go/raylib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"world-builder/internal/camera"
	"world-builder/internal/instancing"
	"world-builder/internal/picking"
	"world-builder/internal/scenegraph"
	"world-builder/internal/transformedit"
	"world-builder/internal/world"
)

type fakeBackend struct {
	inputs    []Input
	renders   int
	renderErr error
	lost      chan error
	resets    int
	closed    int
	released  int
	viewports int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{lost: make(chan error, 1)}
}

func (b *fakeBackend) Viewport() rl.Rectangle {
	b.viewports++
	return rl.NewRectangle(0, 0, 800, 600)
}

func (b *fakeBackend) Poll(_ *camera.Camera, _ float32) Input {
	if len(b.inputs) == 0 {
		return Input{}
	}
	in := b.inputs[0]
	b.inputs = b.inputs[1:]
	return in
}

func (b *fakeBackend) Render(Frame) error {
	b.renders++
	return b.renderErr
}

func (b *fakeBackend) WaitFrame(ctx context.Context) error { return ctx.Err() }
func (b *fakeBackend) Lost() <-chan error                  { return b.lost }
func (b *fakeBackend) ResetDevice() error                  { b.resets++; return nil }
func (b *fakeBackend) Close()                              { b.closed++ }
func (b *fakeBackend) ReleaseGroup(*instancing.Group)      { b.released++ }

type fakeFactory struct {
	gate chan struct{}

	mu     sync.Mutex
	resets int
}

func (f *fakeFactory) BuildSubtree(def world.LibraryAsset, _ map[string]world.PartOverride) (*scenegraph.Node, error) {
	if def.Kind == "broken" {
		return nil, errors.New("broken")
	}
	root := scenegraph.New(def.ID)
	root.Add(scenegraph.NewMesh("body", &scenegraph.Mesh{Geometry: "cube", Bounds: scenegraph.BoxBounds(rl.NewVector3(1, 1, 1))}))
	return root, nil
}

func (f *fakeFactory) BuildSubtreeContext(ctx context.Context, def world.LibraryAsset, o map[string]world.PartOverride) (*scenegraph.Node, error) {
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.BuildSubtree(def, o)
}

func (f *fakeFactory) Placeholder(def world.LibraryAsset) *scenegraph.Node {
	n, _ := f.BuildSubtree(world.LibraryAsset{ID: def.ID}, nil)
	n.Data.Placeholder = true
	return n
}

func (f *fakeFactory) ErrorPlaceholder(def world.LibraryAsset, _ error) *scenegraph.Node {
	n, _ := f.BuildSubtree(world.LibraryAsset{ID: def.ID}, nil)
	n.Data.Failed = true
	return n
}

func (f *fakeFactory) DisposeSubtree(n *scenegraph.Node) { n.ReleaseMeshes() }

func (f *fakeFactory) Reset() {
	f.mu.Lock()
	f.resets++
	f.mu.Unlock()
}

func crates(positions ...[3]float32) world.Snapshot {
	s := world.Snapshot{Library: []world.LibraryAsset{{ID: "crate", Kind: "cube"}}}
	for i, p := range positions {
		s.Instances = append(s.Instances, world.InstanceRecord{InstanceID: fmt.Sprintf("c%d", i), LibraryID: "crate", Position: p})
	}
	return s
}

type harness struct {
	t       *testing.T
	e       *Engine
	backend *fakeBackend
	factory *fakeFactory
	now     time.Time
}

func newHarness(t *testing.T, l Listener) *harness {
	b := newFakeBackend()
	f := &fakeFactory{}
	return &harness{t: t, e: New(b, f, nil, Options{}, l), backend: b, factory: f, now: time.Unix(100, 0)}
}

func (h *harness) step() bool {
	h.now = h.now.Add(16 * time.Millisecond)
	return h.e.Step(h.now)
}

// settle steps until no construction is pending.
func (h *harness) settle() {
	h.t.Helper()
	require.Eventually(h.t, func() bool {
		h.step()
		return h.e.Instances().PendingCount() == 0
	}, 2*time.Second, time.Millisecond)
}

func TestTickSyncsWorldAndRenders(t *testing.T) {
	h := newHarness(t, Listener{})
	require.NoError(t, h.e.SetWorld(crates([3]float32{0, 0, 0}, [3]float32{3, 0, 0}, [3]float32{-3, 0, 0})))
	h.e.Start()
	assert.Equal(t, Running, h.e.State())

	require.True(t, h.step())
	assert.Equal(t, 1, h.backend.renders)
	assert.Equal(t, 3, h.e.Stats().Instances)
	assert.Equal(t, 3, h.e.Stats().Pending)

	h.settle()
	st := h.e.Stats()
	assert.Equal(t, 1, st.Groups)
	assert.Equal(t, 3, st.Batched)
	assert.Greater(t, st.Frames, uint64(1))
}

func TestSetWorldCopiesSnapshot(t *testing.T) {
	h := newHarness(t, Listener{})
	s := crates([3]float32{1, 0, 1})
	require.NoError(t, h.e.SetWorld(s))
	s.Instances[0].Position = [3]float32{9, 9, 9}

	h.e.Start()
	h.step()
	rec, ok := h.e.Instances().Record("c0")
	require.True(t, ok)
	assert.Equal(t, [3]float32{1, 0, 1}, rec.Position)
}

func TestDeviceLossEventStopsTheLoop(t *testing.T) {
	var states []State
	h := newHarness(t, Listener{OnStateChange: func(s State) { states = append(states, s) }})
	h.e.Start()
	h.step()

	h.backend.lost <- errors.New("driver reset")
	h.step()
	assert.Equal(t, DeviceLost, h.e.State())
	assert.False(t, h.e.sched.Pending())
	assert.Equal(t, []State{Running, DeviceLost}, states)

	err := h.e.Run(context.Background())
	assert.ErrorIs(t, err, ErrDeviceLost)
}

func TestRenderDeviceLoss(t *testing.T) {
	h := newHarness(t, Listener{})
	h.backend.renderErr = fmt.Errorf("draw: %w", ErrDeviceLost)

	err := h.e.Run(context.Background())
	require.ErrorIs(t, err, ErrDeviceLost)
	assert.Equal(t, DeviceLost, h.e.State())
}

func TestRenderErrorIsNotFatal(t *testing.T) {
	h := newHarness(t, Listener{})
	h.backend.renderErr = errors.New("shader warning")
	h.e.Start()
	h.step()
	assert.True(t, h.step())
	assert.Equal(t, Running, h.e.State())
}

func TestRecoverRebuildsEverything(t *testing.T) {
	h := newHarness(t, Listener{})
	require.NoError(t, h.e.SetWorld(crates([3]float32{0, 0, 0}, [3]float32{3, 0, 0}, [3]float32{-3, 0, 0})))
	h.e.Start()
	h.settle()
	require.True(t, h.e.Select("c1"))
	before, _ := h.e.Instances().Node("c1")

	h.backend.lost <- errors.New("driver reset")
	h.step()
	require.Equal(t, DeviceLost, h.e.State())

	require.NoError(t, h.e.Recover())
	assert.Equal(t, Running, h.e.State())
	assert.Equal(t, 1, h.backend.resets)
	assert.Equal(t, 1, h.factory.resets)
	assert.GreaterOrEqual(t, h.backend.released, 1)
	assert.Equal(t, 3, h.e.Instances().PendingCount())
	assert.True(t, before.Children()[0].Mesh.Released())
	assert.Equal(t, "c1", h.e.Selected())

	h.settle()
	assert.Equal(t, 1, h.e.Stats().Groups)
	after, _ := h.e.Instances().Node("c1")
	assert.Same(t, after, h.e.Editor().Node())

	assert.NoError(t, h.e.Recover(), "nothing to recover")
}

func TestRunStopsOnCancelAndQuit(t *testing.T) {
	h := newHarness(t, Listener{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, h.e.Run(ctx), context.Canceled)

	h.backend.inputs = []Input{{}, {Quit: true}}
	assert.NoError(t, h.e.Run(context.Background()))
	assert.Equal(t, 1, h.backend.renders)
}

func TestClickSelectsAndGroundClick(t *testing.T) {
	var grounds []picking.Hit
	h := newHarness(t, Listener{OnGroundClick: func(hit picking.Hit) { grounds = append(grounds, hit) }})
	require.NoError(t, h.e.SetWorld(crates([3]float32{0, 0, 0})))
	h.e.Start()
	h.settle()

	h.backend.inputs = []Input{{Pointer: []PointerEvent{{Kind: PointerPress, X: 400, Y: 300}, {Kind: PointerRelease, X: 400, Y: 300}}}}
	h.step()
	assert.Equal(t, "c0", h.e.Selected())

	h.backend.inputs = []Input{{Pointer: []PointerEvent{{Kind: PointerPress, X: 5, Y: 595}}}}
	h.step()
	assert.Equal(t, "", h.e.Selected())
	require.Len(t, grounds, 1)
	assert.Equal(t, picking.Terrain, grounds[0].Kind, "flat default terrain")
	assert.InDelta(t, 0, grounds[0].Point.Y, 1e-6)
}

func TestDragReleaseReportsEdit(t *testing.T) {
	var edits []world.EditedTransform
	h := newHarness(t, Listener{OnInstanceEdit: func(id string, tr world.EditedTransform) {
		assert.Equal(t, "c0", id)
		edits = append(edits, tr)
	}})
	require.NoError(t, h.e.SetWorld(crates([3]float32{0, 0, 0})))
	h.e.Start()
	h.settle()
	require.True(t, h.e.Select("c0"))

	down := func(x float32) rl.Ray {
		return rl.Ray{Position: rl.NewVector3(x, 10, 0), Direction: rl.NewVector3(0, -1, 0)}
	}
	require.True(t, h.e.Editor().BeginDrag(transformedit.AxisX, down(0.2)))
	h.e.Editor().DragRay(down(2.2))

	h.backend.inputs = []Input{{Pointer: []PointerEvent{{Kind: PointerRelease}}}}
	h.step()
	require.Len(t, edits, 1)
	assert.InDelta(t, 2, edits[0].Position[0], 1e-4)
	assert.InDelta(t, 0, edits[0].Position[1], 1e-4)
}

func TestRemovingSelectedInstanceClearsSelection(t *testing.T) {
	invalidated := 0
	h := newHarness(t, Listener{OnSelectionInvalidate: func() { invalidated++ }})
	require.NoError(t, h.e.SetWorld(crates([3]float32{0, 0, 0}, [3]float32{4, 0, 0})))
	h.e.Start()
	h.settle()
	require.True(t, h.e.Select("c1"))
	assert.False(t, h.e.Select("nope"))

	invalidated = 0
	require.NoError(t, h.e.SetWorld(crates([3]float32{0, 0, 0})))
	h.step()
	assert.Equal(t, "", h.e.Selected())
	assert.Equal(t, 1, invalidated)
}

func TestDisposeIsIdempotent(t *testing.T) {
	h := newHarness(t, Listener{})
	h.factory.gate = make(chan struct{})
	require.NoError(t, h.e.SetWorld(crates([3]float32{0, 0, 0})))
	h.e.Start()
	h.step()
	require.Equal(t, 1, h.e.Instances().PendingCount())

	h.e.Dispose()
	h.e.Dispose()
	close(h.factory.gate)
	assert.Equal(t, 1, h.backend.closed)
	assert.Equal(t, Disposed, h.e.State())
	assert.Equal(t, 0, h.e.root.NumChildren())
	assert.ErrorIs(t, h.e.Run(context.Background()), ErrDisposed)
	assert.ErrorIs(t, h.e.SetWorld(world.Snapshot{}), ErrDisposed)
	assert.ErrorIs(t, h.e.Recover(), ErrDisposed)
	assert.False(t, h.step())
}

func TestActionsAndCommands(t *testing.T) {
	var lines []string
	h := newHarness(t, Listener{OnCommand: func(l string) { lines = append(lines, l) }})
	h.e.Start()
	h.backend.inputs = []Input{{
		Actions:  []Action{ActionRotate, ActionToggleSnap, ActionToggleGround, ActionTogglePlay},
		Commands: []string{"cmd stats"},
	}}
	h.step()

	ed := h.e.Editor()
	assert.Equal(t, transformedit.Rotate, ed.Mode())
	assert.True(t, ed.Snapping())
	assert.True(t, ed.GroundConstraint())
	assert.True(t, h.e.Instances().Playing())
	assert.Equal(t, []string{"cmd stats"}, lines)
}

func TestResizeInvalidatesViewport(t *testing.T) {
	h := newHarness(t, Listener{})
	h.e.Start()
	h.e.Pick(1, 1)
	calls := h.backend.viewports

	h.backend.inputs = []Input{{Resized: true, Width: 1024, Height: 512}}
	h.step()
	assert.InDelta(t, 2, h.e.Camera().Aspect, 1e-6)
	h.e.Pick(1, 1)
	assert.Equal(t, calls+1, h.backend.viewports)
}

func TestAssetErrorsReachListener(t *testing.T) {
	var names []string
	h := newHarness(t, Listener{OnAssetError: func(name string, _ error) { names = append(names, name) }})
	s := world.Snapshot{
		Library:   []world.LibraryAsset{{ID: "bad", Kind: "broken"}},
		Instances: []world.InstanceRecord{{InstanceID: "x", LibraryID: "bad"}},
	}
	require.NoError(t, h.e.SetWorld(s))
	h.e.Start()
	h.settle()
	assert.Equal(t, []string{"bad"}, names)
	assert.True(t, h.e.Rebuild("x"))
	assert.Equal(t, 0, h.e.RebuildAsset("none"))
}

func TestPostRunsOnNextTick(t *testing.T) {
	h := newHarness(t, Listener{})
	h.e.Start()

	done := make(chan struct{})
	var order []string
	go func() {
		h.e.Post(func() { order = append(order, "first") })
		h.e.Post(func() {
			order = append(order, "second")
			require.NoError(t, h.e.SetWorld(crates([3]float32{0, 0, 0})))
		})
		close(done)
	}()
	<-done

	h.step()
	assert.Equal(t, []string{"first", "second"}, order)
	assert.Equal(t, 1, h.e.Stats().Instances, "world set from a posted func syncs on the same tick")

	h.step()
	assert.Len(t, order, 2, "posted funcs run once")
}
