package render

import (
	rl "github.com/gen2brain/raylib-go/raylib"

	"world-builder/internal/engine"
)

// binding maps a key press to an editor action.
type binding struct {
	key    int32
	action engine.Action
}

var bindings = []binding{
	{rl.KeyW, engine.ActionTranslate},
	{rl.KeyE, engine.ActionRotate},
	{rl.KeyR, engine.ActionScale},
	{rl.KeyN, engine.ActionToggleSnap},
	{rl.KeyG, engine.ActionToggleGround},
	{rl.KeyP, engine.ActionTogglePlay},
	{rl.KeyQ, engine.ActionDeselect},
	{rl.KeyX, engine.ActionCancelDrag},
}

// actionsFor returns the actions whose keys were pressed this frame, in binding order.
func actionsFor(pressed func(key int32) bool) []engine.Action {
	var out []engine.Action
	for _, b := range bindings {
		if pressed(b.key) {
			out = append(out, b.action)
		}
	}
	return out
}

// pointerTracker turns primary-button state into press, move and release events.
// Moves are reported only while the button is held.
type pointerTracker struct {
	down bool
	last rl.Vector2
}

func (p *pointerTracker) events(pos rl.Vector2, pressed, released bool) []engine.PointerEvent {
	var out []engine.PointerEvent
	switch {
	case pressed:
		p.down = true
		out = append(out, engine.PointerEvent{Kind: engine.PointerPress, X: pos.X, Y: pos.Y})
	case p.down && (pos.X != p.last.X || pos.Y != p.last.Y):
		out = append(out, engine.PointerEvent{Kind: engine.PointerMove, X: pos.X, Y: pos.Y})
	}
	if released && p.down {
		p.down = false
		out = append(out, engine.PointerEvent{Kind: engine.PointerRelease, X: pos.X, Y: pos.Y})
	}
	p.last = pos
	return out
}
