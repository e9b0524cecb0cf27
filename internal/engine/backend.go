package engine

import (
	"context"

	rl "github.com/gen2brain/raylib-go/raylib"

	"world-builder/internal/camera"
	"world-builder/internal/instancing"
	"world-builder/internal/scenegraph"
	"world-builder/internal/transformedit"
)

// PointerKind is the phase of a pointer event.
type PointerKind int

const (
	PointerPress PointerKind = iota
	PointerMove
	PointerRelease
)

// PointerEvent is a primary-button pointer event in screen pixels.
type PointerEvent struct {
	Kind PointerKind
	X, Y float32
}

// Action is a discrete editor command bound to a key.
type Action int

const (
	ActionTranslate Action = iota
	ActionRotate
	ActionScale
	ActionToggleSnap
	ActionToggleGround
	ActionTogglePlay
	ActionDeselect
	ActionCancelDrag
)

// Input is everything the backend collected since the last frame.
type Input struct {
	Resized       bool
	Width, Height float32
	Pointer       []PointerEvent
	Actions       []Action
	// Commands are console lines entered by the user.
	Commands []string
	Quit     bool
}

// Frame is what the backend draws.
type Frame struct {
	Camera   *camera.Camera
	Root     *scenegraph.Node
	Groups   []*instancing.Group
	Gizmo    transformedit.Gizmo
	Helper   transformedit.GroundHelper
	Selected string
	Stats    Stats
}

// Backend is the GPU and window side of the engine.
type Backend interface {
	// Viewport returns the screen rectangle the scene renders into.
	Viewport() rl.Rectangle
	// Poll gathers input and lets the backend move the camera.
	Poll(cam *camera.Camera, dt float32) Input
	// Render draws f. It returns an error wrapping ErrDeviceLost when the device went away.
	Render(f Frame) error
	// WaitFrame blocks until the next frame may start.
	WaitFrame(ctx context.Context) error
	// Lost delivers unsolicited device-loss events.
	Lost() <-chan error
	// ResetDevice recreates the device and every shared GPU resource.
	ResetDevice() error
	Close()
}
