package camera

import (
	"github.com/chewxy/math32"
	rl "github.com/gen2brain/raylib-go/raylib"
)

const (
	defaultFovy = 45
	defaultNear = 0.1
	defaultFar  = 1000
)

// Camera is the perspective viewpoint shared by picking, culling, and rendering.
// Aspect follows the viewport and is updated on resize.
type Camera struct {
	rl.Camera3D
	Near   float32
	Far    float32
	Aspect float32
}

// New returns a camera at (10,10,10) looking at the origin with +Y up and a 45° field of view.
func New() *Camera {
	c := &Camera{Near: defaultNear, Far: defaultFar, Aspect: 16.0 / 9.0}
	c.Position = rl.NewVector3(10, 10, 10)
	c.Target = rl.NewVector3(0, 0, 0)
	c.Up = rl.NewVector3(0, 1, 0)
	c.Fovy = defaultFovy
	c.Projection = rl.CameraPerspective
	return c
}

// SetViewport updates the aspect ratio from a viewport size in pixels.
func (c *Camera) SetViewport(width, height float32) {
	if width > 0 && height > 0 {
		c.Aspect = width / height
	}
}

// View returns the world-to-camera matrix.
func (c *Camera) View() rl.Matrix {
	return rl.MatrixLookAt(c.Position, c.Target, c.Up)
}

// ProjectionMatrix returns the perspective projection for the current aspect.
func (c *Camera) ProjectionMatrix() rl.Matrix {
	return rl.MatrixPerspective(c.Fovy*rl.Deg2rad, c.Aspect, c.Near, c.Far)
}

// ViewProjection returns the combined world-to-clip matrix.
func (c *Camera) ViewProjection() rl.Matrix {
	return rl.MatrixMultiply(c.View(), c.ProjectionMatrix())
}

// Frustum returns the six clip planes of the current view volume.
func (c *Camera) Frustum() Frustum {
	return FrustumFromMatrix(c.ViewProjection())
}

// ScreenRay returns the world-space ray through pixel (x, y) of a viewport of the given size,
// with (0,0) at the top-left corner.
func (c *Camera) ScreenRay(x, y, width, height float32) rl.Ray {
	if width <= 0 || height <= 0 {
		return rl.Ray{Position: c.Position, Direction: rl.Vector3Normalize(rl.Vector3Subtract(c.Target, c.Position))}
	}
	ndcX := 2*x/width - 1
	ndcY := 1 - 2*y/height
	inv := rl.MatrixInvert(c.ViewProjection())
	near := unproject(inv, ndcX, ndcY, -1)
	far := unproject(inv, ndcX, ndcY, 1)
	return rl.Ray{Position: near, Direction: rl.Vector3Normalize(rl.Vector3Subtract(far, near))}
}

// unproject maps a normalized device coordinate back through inv with perspective divide.
func unproject(inv rl.Matrix, x, y, z float32) rl.Vector3 {
	ox := inv.M0*x + inv.M4*y + inv.M8*z + inv.M12
	oy := inv.M1*x + inv.M5*y + inv.M9*z + inv.M13
	oz := inv.M2*x + inv.M6*y + inv.M10*z + inv.M14
	ow := inv.M3*x + inv.M7*y + inv.M11*z + inv.M15
	if math32.Abs(ow) < 1e-9 {
		return rl.NewVector3(ox, oy, oz)
	}
	return rl.NewVector3(ox/ow, oy/ow, oz/ow)
}
