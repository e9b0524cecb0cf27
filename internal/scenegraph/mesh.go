package scenegraph

import (
	"sync/atomic"

	rl "github.com/gen2brain/raylib-go/raylib"
)

// Mesh references shared GPU geometry and material by key. The renderer owns the actual
// buffers; a Mesh only records what to draw and the local bounds of that geometry.
// Helper meshes (hit proxies, markers) are never drawn as asset geometry and do not count
// toward instancing eligibility.
type Mesh struct {
	Geometry string
	Material string
	Color    rl.Color
	Bounds   rl.BoundingBox
	Helper   bool

	released atomic.Bool
}

// BoxBounds returns bounds of a box of the given size centered on the origin.
func BoxBounds(size rl.Vector3) rl.BoundingBox {
	half := rl.Vector3Scale(size, 0.5)
	return rl.BoundingBox{Min: rl.Vector3Negate(half), Max: half}
}

// Release marks the mesh's GPU-side references as freed. Safe to call more than once
// and from any goroutine.
func (m *Mesh) Release() {
	m.released.Store(true)
}

// Released reports whether Release has been called.
func (m *Mesh) Released() bool {
	return m.released.Load()
}
