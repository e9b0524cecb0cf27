package render

import (
	"context"
	"errors"
	"fmt"

	rl "github.com/gen2brain/raylib-go/raylib"

	"world-builder/internal/camera"
	"world-builder/internal/debug"
	"world-builder/internal/engine"
	"world-builder/internal/engineconfig"
	"world-builder/internal/instancing"
	"world-builder/internal/logger"
	"world-builder/internal/terminal"
	"world-builder/internal/terrain"
)

var errNoWindow = errors.New("render: window not initialized")

var background = rl.NewColor(18, 20, 26, 255)

// Options configures the raylib backend.
type Options struct {
	Window   engineconfig.Window
	Overlays engineconfig.Overlays
	// Terrain is drawn as a heightmapped mesh when set.
	Terrain *terrain.Heightfield
	// GridExtent is the half size of the editor grid in world units.
	GridExtent int
	Console    *terminal.Terminal
	Logger     *logger.Logger
}

// Backend is the raylib implementation of engine.Backend. It owns the window, collects input,
// draws frames, and simulates device loss: raylib's GL context is never lost on its own, so
// LoseDevice stands in for the driver event and ResetDevice recreates every GPU resource.
type Backend struct {
	opts    Options
	log     *logger.Logger
	gpu     *gpuCache
	sky     *skybox
	terrain *terrainMesh
	grid    []gridLine
	debug   *debug.Debug
	console *terminal.Terminal
	pointer pointerTracker

	showGrid bool
	lost     chan error
	isLost   bool
	closed   bool
}

// Open creates the window and returns a backend drawing into it.
func Open(opts Options) (*Backend, error) {
	w := opts.Window
	flags := uint32(rl.FlagWindowResizable | rl.FlagMsaa4xHint)
	if w.Fullscreen {
		flags |= rl.FlagFullscreenMode
	}
	rl.SetConfigFlags(flags)
	width, height := int32(w.Width), int32(w.Height)
	if w.Fullscreen {
		width, height = int32(rl.GetMonitorWidth(0)), int32(rl.GetMonitorHeight(0))
	}
	rl.InitWindow(width, height, w.Title)
	if !rl.IsWindowReady() {
		return nil, errNoWindow
	}
	rl.SetExitKey(rl.KeyNull) // ESC toggles the console; close via window button
	rl.SetTargetFPS(int32(w.TargetFPS))

	if opts.GridExtent <= 0 {
		opts.GridExtent = 50
	}
	d := debug.New()
	d.SetShowFPS(opts.Overlays.ShowFPS)
	d.SetShowMemAlloc(opts.Overlays.ShowMemAlloc)
	d.SetShowStats(opts.Overlays.ShowStats)
	b := &Backend{
		opts:     opts,
		log:      opts.Logger,
		gpu:      newGPUCache(),
		sky:      newSkybox(findSkybox()),
		terrain:  &terrainMesh{field: opts.Terrain},
		grid:     gridLines(opts.GridExtent),
		debug:    d,
		console:  opts.Console,
		showGrid: opts.Overlays.GridVisible,
		lost:     make(chan error, 1),
	}
	return b, nil
}

// Viewport returns the full window.
func (b *Backend) Viewport() rl.Rectangle {
	return rl.NewRectangle(0, 0, float32(rl.GetScreenWidth()), float32(rl.GetScreenHeight()))
}

// Poll gathers this frame's input. The right mouse button (or the wheel) drives the free
// camera; while it is held, or while the console is open, editor keys are ignored.
func (b *Backend) Poll(cam *camera.Camera, dt float32) engine.Input {
	var in engine.Input
	if rl.WindowShouldClose() {
		in.Quit = true
	}
	if rl.IsWindowResized() {
		in.Resized = true
		in.Width, in.Height = float32(rl.GetScreenWidth()), float32(rl.GetScreenHeight())
	}
	if b.console != nil {
		in.Commands = b.console.Update()
		if b.console.IsOpen() {
			return in
		}
	}

	if rl.IsMouseButtonDown(rl.MouseButtonRight) || rl.GetMouseWheelMove() != 0 {
		rl.UpdateCamera(&cam.Camera3D, rl.CameraFree)
	} else {
		in.Actions = actionsFor(func(key int32) bool { return rl.IsKeyPressed(key) })
	}
	in.Pointer = b.pointer.events(rl.GetMousePosition(),
		rl.IsMouseButtonPressed(rl.MouseButtonLeft), rl.IsMouseButtonReleased(rl.MouseButtonLeft))
	return in
}

// Render draws one frame. It fails with engine.ErrDeviceLost while the device is lost.
func (b *Backend) Render(f engine.Frame) error {
	if b.closed {
		return errNoWindow
	}
	if b.isLost {
		return fmt.Errorf("render: %w", engine.ErrDeviceLost)
	}
	b.sky.ensureLoaded()
	b.gpu.setView(f.Camera.Position)

	rl.BeginDrawing()
	rl.ClearBackground(background)
	rl.BeginMode3D(f.Camera.Camera3D)
	b.sky.draw(f.Camera.Position)
	if b.showGrid {
		drawGrid(b.grid)
	}
	b.terrain.draw(b.gpu)
	b.drawScene(f)
	rl.EndMode3D()

	b.debug.Draw(f.Stats)
	if b.console != nil {
		b.console.Draw()
	}
	rl.EndDrawing()
	return nil
}

// WaitFrame returns immediately; EndDrawing already paces frames to the target FPS.
func (b *Backend) WaitFrame(ctx context.Context) error {
	return ctx.Err()
}

// Lost delivers device-loss events raised by LoseDevice.
func (b *Backend) Lost() <-chan error {
	return b.lost
}

// LoseDevice simulates a GPU device loss: rendering fails until ResetDevice.
func (b *Backend) LoseDevice() {
	b.isLost = true
	select {
	case b.lost <- fmt.Errorf("render: simulated: %w", engine.ErrDeviceLost):
	default:
	}
	b.log.Log("gpu: device lost (simulated)")
}

// ResetDevice frees every GPU resource; they are recreated lazily on the next frame.
func (b *Backend) ResetDevice() error {
	if b.closed || !rl.IsWindowReady() {
		return errNoWindow
	}
	b.unload()
	b.isLost = false
	b.log.Log("gpu: device reset")
	return nil
}

// ReleaseGroup frees what the backend holds for a dissolved instancing group.
func (b *Backend) ReleaseGroup(g *instancing.Group) {
	b.gpu.releaseGroup(g.Key)
}

// SetGridVisible shows or hides the editor grid.
func (b *Backend) SetGridVisible(show bool) {
	b.showGrid = show
}

// GridVisible reports whether the editor grid is drawn.
func (b *Backend) GridVisible() bool {
	return b.showGrid
}

// Debug returns the overlay settings.
func (b *Backend) Debug() *debug.Debug {
	return b.debug
}

// Close frees GPU resources and closes the window. Safe to call more than once.
func (b *Backend) Close() {
	if b.closed {
		return
	}
	b.unload()
	rl.CloseWindow()
	b.closed = true
}

func (b *Backend) unload() {
	b.gpu.unload()
	b.sky.unload()
	b.terrain.unload()
}

var _ engine.Backend = (*Backend)(nil)
var _ instancing.Releaser = (*Backend)(nil)
