package scenegraph

import rl "github.com/gen2brain/raylib-go/raylib"

// Animatable is implemented by assets that move on their own every frame.
// A returned error disables the animation for that node permanently.
type Animatable interface {
	Animate(dt float32) error
}

// UserData is the per-node bag read by the engine subsystems. Nodes refer to instances and
// library assets by id only; the owning registries resolve ids back to objects.
type UserData struct {
	InstanceID string
	LibraryID  string
	// Selectable names a sub-part that can be picked and edited on its own.
	Selectable string

	Animator        Animatable
	AnimateDisabled bool
	NPC             bool

	Placeholder bool
	Failed      bool
	HitProxy    bool
	// Batched is set while the instance is drawn through an instancing group.
	Batched bool

	// CenterOffset moves the node origin so the asset's base center sits on the instance position.
	CenterOffset   rl.Vector3
	BoundsCenter   rl.Vector3
	BoundingRadius float32
}
