package render

import (
	rl "github.com/gen2brain/raylib-go/raylib"

	"world-builder/internal/engine"
	"world-builder/internal/scenegraph"
	"world-builder/internal/transformedit"
)

const (
	helperDash      = 0.25
	helperCross     = 0.4
	gizmoHeadRadius = 0.08
	gizmoRingSegs   = 48
)

var (
	selectionColor = rl.NewColor(255, 210, 60, 255)
	helperColor    = rl.NewColor(255, 255, 255, 200)
	axisColors     = map[transformedit.Axis]rl.Color{
		transformedit.AxisX: rl.NewColor(230, 70, 70, 255),
		transformedit.AxisY: rl.NewColor(70, 220, 90, 255),
		transformedit.AxisZ: rl.NewColor(70, 110, 240, 255),
	}
)

// drawItem is one direct mesh draw.
type drawItem struct {
	geometry string
	matrix   rl.Matrix
	color    rl.Color
	alpha    bool
}

// collectDraws walks the scene and returns every directly drawn mesh. Invisible subtrees,
// helper meshes, and instances drawn through an instancing group are skipped. Translucent
// items are ordered after opaque ones.
func collectDraws(root *scenegraph.Node) []drawItem {
	var opaque, translucent []drawItem
	var walk func(n *scenegraph.Node, parent rl.Matrix)
	walk = func(n *scenegraph.Node, parent rl.Matrix) {
		if !n.Visible || n.Data.Batched {
			return
		}
		m := rl.MatrixMultiply(n.LocalMatrix(), parent)
		if mesh := n.Mesh; mesh != nil && !mesh.Helper && !mesh.Released() {
			it := drawItem{geometry: mesh.Geometry, matrix: m, color: materialColor(mesh.Material, mesh.Color)}
			it.alpha = it.color.A < 255
			if it.alpha {
				translucent = append(translucent, it)
			} else {
				opaque = append(opaque, it)
			}
		}
		for _, c := range n.Children() {
			walk(c, m)
		}
	}
	if root != nil {
		walk(root, rl.MatrixIdentity())
	}
	return append(opaque, translucent...)
}

// findInstance returns the root node of instance id directly under root.
func findInstance(root *scenegraph.Node, id string) *scenegraph.Node {
	if root == nil || id == "" {
		return nil
	}
	for _, c := range root.Children() {
		if c.Data.InstanceID == id {
			return c
		}
	}
	return nil
}

func (b *Backend) drawScene(f engine.Frame) {
	for _, it := range collectDraws(f.Root) {
		b.gpu.drawMesh(it.geometry, it.matrix, it.color)
	}
	for _, g := range f.Groups {
		b.gpu.drawGroup(g)
	}
	if n := findInstance(f.Root, f.Selected); n != nil {
		if box, ok := n.WorldBounds(); ok {
			rl.DrawBoundingBox(box, selectionColor)
		}
	}
	drawHelper(f.Helper)
	drawGizmo(f.Gizmo)
}

// drawGizmo draws the handles of the visible axes: arrows to translate, a ring around Y to
// rotate, and cube-tipped lines to scale.
func drawGizmo(g transformedit.Gizmo) {
	if !g.Visible {
		return
	}
	if g.Mode == transformedit.Rotate {
		drawRing(g.Position, g.Size, axisColors[transformedit.AxisY])
		return
	}
	for _, a := range g.Axes {
		end := rl.Vector3Add(g.Position, rl.Vector3Scale(a.Dir(), g.Size))
		c := axisColors[a]
		rl.DrawLine3D(g.Position, end, c)
		if g.Mode == transformedit.Scale {
			s := gizmoHeadRadius * 2 * g.Size
			rl.DrawCubeV(end, rl.NewVector3(s, s, s), c)
			continue
		}
		tip := rl.Vector3Add(end, rl.Vector3Scale(a.Dir(), 0.2*g.Size))
		rl.DrawCylinderEx(end, tip, gizmoHeadRadius*g.Size, 0, 12, c)
	}
}

// drawRing draws a circle of radius r on the horizontal plane through center.
func drawRing(center rl.Vector3, r float32, c rl.Color) {
	for _, seg := range ringSegments(center, r, gizmoRingSegs) {
		rl.DrawLine3D(seg[0], seg[1], c)
	}
}

// ringSegments returns n chords approximating a horizontal circle.
func ringSegments(center rl.Vector3, r float32, n int) [][2]rl.Vector3 {
	out := make([][2]rl.Vector3, n)
	prev := rl.NewVector3(center.X+r, center.Y, center.Z)
	for i := 1; i <= n; i++ {
		a := float32(i) / float32(n) * 2 * rl.Pi
		p := rl.Vector3Add(center, rl.Vector3RotateByAxisAngle(rl.NewVector3(r, 0, 0), rl.NewVector3(0, 1, 0), a))
		out[i-1] = [2]rl.Vector3{prev, p}
		prev = p
	}
	return out
}

// drawHelper draws a dashed line from a floating object down to its landing point and a
// cross on the ground.
func drawHelper(h transformedit.GroundHelper) {
	if !h.Visible {
		return
	}
	for _, seg := range dashes(h.Top, h.Ground, helperDash) {
		rl.DrawLine3D(seg[0], seg[1], helperColor)
	}
	g := h.Ground
	rl.DrawLine3D(rl.NewVector3(g.X-helperCross, g.Y, g.Z), rl.NewVector3(g.X+helperCross, g.Y, g.Z), helperColor)
	rl.DrawLine3D(rl.NewVector3(g.X, g.Y, g.Z-helperCross), rl.NewVector3(g.X, g.Y, g.Z+helperCross), helperColor)
}

// dashes splits the segment from a to b into dash-length pieces, keeping every other one.
func dashes(a, b rl.Vector3, dash float32) [][2]rl.Vector3 {
	length := rl.Vector3Distance(a, b)
	if length == 0 || dash <= 0 {
		return nil
	}
	dir := rl.Vector3Scale(rl.Vector3Subtract(b, a), 1/length)
	var out [][2]rl.Vector3
	for t := float32(0); t < length; t += 2 * dash {
		end := min(t+dash, length)
		out = append(out, [2]rl.Vector3{
			rl.Vector3Add(a, rl.Vector3Scale(dir, t)),
			rl.Vector3Add(a, rl.Vector3Scale(dir, end)),
		})
	}
	return out
}
