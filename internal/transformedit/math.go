package transformedit

import (
	"github.com/chewxy/math32"
	rl "github.com/gen2brain/raylib-go/raylib"

	"world-builder/internal/scenegraph"
)

// ExtractYaw reduces q to its rotation about +Y, dropping any X/Z component. It is the same
// reduction nodes use for Node.Yaw.
func ExtractYaw(q rl.Quaternion) float32 {
	return scenegraph.QuaternionYaw(q)
}

// RecoverUniformScale finds the uniform scale after a single-axis scale drag: of the three
// axes, the two that still agree within eps were untouched and the third carries the new
// value. When all three agree or no pair agrees, the largest axis wins.
func RecoverUniformScale(v rl.Vector3, eps float32) float32 {
	near := func(a, b float32) bool { return math32.Abs(a-b) <= eps }
	largest := math32.Max(v.X, math32.Max(v.Y, v.Z))
	switch {
	case near(v.X, v.Y) && near(v.Y, v.Z):
		return largest
	case near(v.Y, v.Z):
		return v.X
	case near(v.X, v.Z):
		return v.Y
	case near(v.X, v.Y):
		return v.Z
	}
	// Ambiguous input can drift toward the largest axis over many quick edits.
	return largest
}

// GizmoSize scales the gizmo logarithmically with the object's world radius.
func GizmoSize(radius, scale float32) float32 {
	size := 1.5 / (1 + math32.Log10(radius*scale+1)*0.5)
	return clamp(size, 0.5, 1.8)
}

// SnapAngle rounds rad to the nearest multiple of step.
func SnapAngle(rad, step float32) float32 {
	if step <= 0 {
		return rad
	}
	return round(rad/step) * step
}

func snap(v, unit float32) float32 {
	if unit <= 0 {
		return v
	}
	return round(v/unit) * unit
}

func round(v float32) float32 {
	return math32.Floor(v + 0.5)
}

func clamp(v, lo, hi float32) float32 {
	return math32.Max(lo, math32.Min(hi, v))
}

// closestOnAxis returns the parameter u of the point on the line origin+u*dir nearest to ray,
// the ray parameter t of the matching point, and their distance. ok is false when the ray
// runs parallel to the line.
func closestOnAxis(origin, dir rl.Vector3, ray rl.Ray) (u, t, dist float32, ok bool) {
	w := rl.Vector3Subtract(origin, ray.Position)
	b := rl.Vector3DotProduct(dir, ray.Direction)
	d := rl.Vector3DotProduct(dir, w)
	e := rl.Vector3DotProduct(ray.Direction, w)
	denom := 1 - b*b
	if denom < 1e-6 {
		return 0, 0, 0, false
	}
	u = (b*e - d) / denom
	t = (e - b*d) / denom
	p := rl.Vector3Add(origin, rl.Vector3Scale(dir, u))
	q := rl.Vector3Add(ray.Position, rl.Vector3Scale(ray.Direction, t))
	return u, t, rl.Vector3Distance(p, q), true
}

// planeY intersects ray with the horizontal plane at height y.
func planeY(ray rl.Ray, y float32) (rl.Vector3, bool) {
	if math32.Abs(ray.Direction.Y) < 1e-6 {
		return rl.Vector3{}, false
	}
	t := (y - ray.Position.Y) / ray.Direction.Y
	if t < 0 {
		return rl.Vector3{}, false
	}
	return rl.Vector3Add(ray.Position, rl.Vector3Scale(ray.Direction, t)), true
}
