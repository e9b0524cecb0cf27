package camera

import (
	"github.com/chewxy/math32"
	rl "github.com/gen2brain/raylib-go/raylib"
)

// Frustum holds six normalized planes (a, b, c, d) with normals pointing inward:
// a point p is inside a plane when a*p.x + b*p.y + c*p.z + d >= 0.
type Frustum [6]rl.Vector4

// FrustumFromMatrix extracts the planes of a world-to-clip matrix.
func FrustumFromMatrix(m rl.Matrix) Frustum {
	var f Frustum
	f[0] = rl.NewVector4(m.M3-m.M0, m.M7-m.M4, m.M11-m.M8, m.M15-m.M12) // right
	f[1] = rl.NewVector4(m.M3+m.M0, m.M7+m.M4, m.M11+m.M8, m.M15+m.M12) // left
	f[2] = rl.NewVector4(m.M3+m.M1, m.M7+m.M5, m.M11+m.M9, m.M15+m.M13) // bottom
	f[3] = rl.NewVector4(m.M3-m.M1, m.M7-m.M5, m.M11-m.M9, m.M15-m.M13) // top
	f[4] = rl.NewVector4(m.M3-m.M2, m.M7-m.M6, m.M11-m.M10, m.M15-m.M14) // far
	f[5] = rl.NewVector4(m.M3+m.M2, m.M7+m.M6, m.M11+m.M10, m.M15+m.M14) // near
	for i := range f {
		length := math32.Sqrt(f[i].X*f[i].X + f[i].Y*f[i].Y + f[i].Z*f[i].Z)
		if length > 0 {
			f[i].X /= length
			f[i].Y /= length
			f[i].Z /= length
			f[i].W /= length
		}
	}
	return f
}

// ContainsSphere reports whether a sphere intersects or lies inside the view volume.
func (f Frustum) ContainsSphere(center rl.Vector3, radius float32) bool {
	for _, p := range f {
		if p.X*center.X+p.Y*center.Y+p.Z*center.Z+p.W < -radius {
			return false
		}
	}
	return true
}
