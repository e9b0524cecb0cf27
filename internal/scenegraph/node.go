package scenegraph

import (
	"github.com/chewxy/math32"
	rl "github.com/gen2brain/raylib-go/raylib"
)

// Node is one element of the retained scene graph: a transform (position, rotation, scale),
// an optional mesh, owned children, and a UserData bag. A node has at most one parent;
// adding it to another parent moves it.
type Node struct {
	Name     string
	Position rl.Vector3
	Rotation rl.Quaternion
	Scale    rl.Vector3
	Visible  bool
	Mesh     *Mesh
	Data     UserData

	parent   *Node
	children []*Node
}

// New returns an empty, visible group node with identity transform.
func New(name string) *Node {
	return &Node{
		Name:     name,
		Rotation: rl.QuaternionIdentity(),
		Scale:    rl.NewVector3(1, 1, 1),
		Visible:  true,
	}
}

// NewMesh returns a visible node that draws mesh.
func NewMesh(name string, mesh *Mesh) *Node {
	n := New(name)
	n.Mesh = mesh
	return n
}

// Parent returns the owning node, or nil for a root or detached node.
func (n *Node) Parent() *Node {
	return n.parent
}

// Children returns a copy of the child list.
func (n *Node) Children() []*Node {
	out := make([]*Node, len(n.children))
	copy(out, n.children)
	return out
}

// NumChildren returns the number of direct children.
func (n *Node) NumChildren() int {
	return len(n.children)
}

// Add appends child, detaching it from any previous parent first.
func (n *Node) Add(child *Node) {
	if child == nil || child == n {
		return
	}
	child.Detach()
	child.parent = n
	n.children = append(n.children, child)
}

// Remove detaches child if n owns it. Returns false when child is not a direct child.
func (n *Node) Remove(child *Node) bool {
	for i, c := range n.children {
		if c == child {
			copy(n.children[i:], n.children[i+1:])
			n.children[len(n.children)-1] = nil
			n.children = n.children[:len(n.children)-1]
			child.parent = nil
			return true
		}
	}
	return false
}

// Detach removes n from its parent. No-op for a detached node.
func (n *Node) Detach() {
	if n.parent != nil {
		n.parent.Remove(n)
	}
}

// Walk visits n and its descendants depth-first. When fn returns false the
// children of that node are skipped.
func (n *Node) Walk(fn func(*Node) bool) {
	if !fn(n) {
		return
	}
	for _, c := range n.children {
		c.Walk(fn)
	}
}

// FindAncestor returns the nearest node, starting at n itself, for which match is true.
func (n *Node) FindAncestor(match func(*Node) bool) *Node {
	for cur := n; cur != nil; cur = cur.parent {
		if match(cur) {
			return cur
		}
	}
	return nil
}

// QuaternionYaw reduces q to its rotation about +Y in radians, dropping any X/Z component.
func QuaternionYaw(q rl.Quaternion) float32 {
	return math32.Atan2(2*(q.W*q.Y+q.X*q.Z), 1-2*(q.Y*q.Y+q.Z*q.Z))
}

// Yaw returns the rotation about +Y in radians, ignoring any X/Z component.
func (n *Node) Yaw() float32 {
	return QuaternionYaw(n.Rotation)
}

// SetYaw replaces the rotation with a pure rotation of rad about +Y.
func (n *Node) SetYaw(rad float32) {
	n.Rotation = rl.QuaternionFromAxisAngle(rl.NewVector3(0, 1, 0), rad)
}

// UniformScale returns the X scale, which equals Y and Z for uniformly scaled nodes.
func (n *Node) UniformScale() float32 {
	return n.Scale.X
}

// SetUniformScale sets all three scale axes to s.
func (n *Node) SetUniformScale(s float32) {
	n.Scale = rl.NewVector3(s, s, s)
}

// LocalMatrix composes scale, then rotation, then translation.
func (n *Node) LocalMatrix() rl.Matrix {
	sm := rl.MatrixScale(n.Scale.X, n.Scale.Y, n.Scale.Z)
	rm := rl.QuaternionToMatrix(n.Rotation)
	tm := rl.MatrixTranslate(n.Position.X, n.Position.Y, n.Position.Z)
	return rl.MatrixMultiply(rl.MatrixMultiply(sm, rm), tm)
}

// WorldMatrix returns the local matrix combined with every ancestor's.
func (n *Node) WorldMatrix() rl.Matrix {
	m := n.LocalMatrix()
	for p := n.parent; p != nil; p = p.parent {
		m = rl.MatrixMultiply(m, p.LocalMatrix())
	}
	return m
}

// WorldPosition returns the node origin in world space.
func (n *Node) WorldPosition() rl.Vector3 {
	m := n.WorldMatrix()
	return rl.NewVector3(m.M12, m.M13, m.M14)
}

// LocalBounds returns the union of all non-helper mesh bounds in the subtree, expressed in
// n's own (unscaled, unrotated) space. ok is false when the subtree has no such mesh.
func (n *Node) LocalBounds() (box rl.BoundingBox, ok bool) {
	return n.subtreeBounds(rl.MatrixIdentity())
}

// WorldBounds is LocalBounds expressed in world space.
func (n *Node) WorldBounds() (box rl.BoundingBox, ok bool) {
	return n.subtreeBounds(n.WorldMatrix())
}

// MeshWorldBounds returns the world-space bounds of n's own mesh, helper or not.
func (n *Node) MeshWorldBounds() (rl.BoundingBox, bool) {
	if n.Mesh == nil {
		return rl.BoundingBox{}, false
	}
	return TransformBounds(n.Mesh.Bounds, n.WorldMatrix()), true
}

func (n *Node) subtreeBounds(m rl.Matrix) (box rl.BoundingBox, ok bool) {
	if n.Mesh != nil && !n.Mesh.Helper {
		box, ok = TransformBounds(n.Mesh.Bounds, m), true
	}
	for _, c := range n.children {
		cb, cok := c.subtreeBounds(rl.MatrixMultiply(c.LocalMatrix(), m))
		if !cok {
			continue
		}
		if !ok {
			box, ok = cb, true
			continue
		}
		box = UnionBounds(box, cb)
	}
	return box, ok
}

// MeshCount counts meshes in the subtree. Helper meshes (hit proxies, markers) are
// only counted when includeHelpers is set.
func (n *Node) MeshCount(includeHelpers bool) int {
	count := 0
	n.Walk(func(c *Node) bool {
		if c.Mesh != nil && (includeHelpers || !c.Mesh.Helper) {
			count++
		}
		return true
	})
	return count
}

// ReleaseMeshes releases every mesh in the subtree.
func (n *Node) ReleaseMeshes() {
	n.Walk(func(c *Node) bool {
		if c.Mesh != nil {
			c.Mesh.Release()
		}
		return true
	})
}

// TransformBounds returns the axis-aligned box enclosing the eight corners of b under m.
func TransformBounds(b rl.BoundingBox, m rl.Matrix) rl.BoundingBox {
	corners := [8]rl.Vector3{
		{X: b.Min.X, Y: b.Min.Y, Z: b.Min.Z},
		{X: b.Max.X, Y: b.Min.Y, Z: b.Min.Z},
		{X: b.Min.X, Y: b.Max.Y, Z: b.Min.Z},
		{X: b.Max.X, Y: b.Max.Y, Z: b.Min.Z},
		{X: b.Min.X, Y: b.Min.Y, Z: b.Max.Z},
		{X: b.Max.X, Y: b.Min.Y, Z: b.Max.Z},
		{X: b.Min.X, Y: b.Max.Y, Z: b.Max.Z},
		{X: b.Max.X, Y: b.Max.Y, Z: b.Max.Z},
	}
	first := rl.Vector3Transform(corners[0], m)
	out := rl.BoundingBox{Min: first, Max: first}
	for _, c := range corners[1:] {
		p := rl.Vector3Transform(c, m)
		out.Min = rl.Vector3Min(out.Min, p)
		out.Max = rl.Vector3Max(out.Max, p)
	}
	return out
}

// UnionBounds returns the smallest box containing a and b.
func UnionBounds(a, b rl.BoundingBox) rl.BoundingBox {
	return rl.BoundingBox{Min: rl.Vector3Min(a.Min, b.Min), Max: rl.Vector3Max(a.Max, b.Max)}
}

// BoxCenter returns the midpoint of b.
func BoxCenter(b rl.BoundingBox) rl.Vector3 {
	return rl.Vector3Scale(rl.Vector3Add(b.Min, b.Max), 0.5)
}

// BoxRadius returns half the diagonal of b, the radius of its bounding sphere.
func BoxRadius(b rl.BoundingBox) float32 {
	return rl.Vector3Length(rl.Vector3Subtract(b.Max, b.Min)) * 0.5
}
