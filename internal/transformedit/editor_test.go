package transformedit

import (
	"math"
	"testing"

	rl "github.com/gen2brain/raylib-go/raylib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"world-builder/internal/scenegraph"
	"world-builder/internal/world"
)

func down(x, z float32) rl.Ray {
	return rl.Ray{Position: rl.NewVector3(x, 10, z), Direction: rl.NewVector3(0, -1, 0)}
}

// crate is a unit box resting on the ground at base, center offset already applied.
func crate(base rl.Vector3) *scenegraph.Node {
	n := scenegraph.New("crate")
	n.Data.CenterOffset = rl.NewVector3(0, 0.5, 0)
	n.Position = rl.Vector3Add(base, n.Data.CenterOffset)
	return n
}

func TestRecoverUniformScale(t *testing.T) {
	cases := []struct {
		in   rl.Vector3
		want float32
	}{
		{rl.NewVector3(5, 2, 2), 5},
		{rl.NewVector3(3, 3, 3), 3},
		{rl.NewVector3(2, 7, 2), 7},
		{rl.NewVector3(2, 2, 0.5), 0.5},
		{rl.NewVector3(1, 2, 3), 3},
		{rl.NewVector3(2, 2.0004, 2), 2.0004},
	}
	for _, c := range cases {
		assert.InDelta(t, c.want, RecoverUniformScale(c.in, 1e-3), 1e-6, "%v", c.in)
	}
}

func TestExtractYaw(t *testing.T) {
	q := rl.QuaternionFromAxisAngle(rl.NewVector3(0, 1, 0), 0.7)
	assert.InDelta(t, 0.7, ExtractYaw(q), 1e-5)
	q = rl.QuaternionFromAxisAngle(rl.NewVector3(0, 1, 0), -2.5)
	assert.InDelta(t, -2.5, ExtractYaw(q), 1e-5)

	// A tilted rotation reduces the same way here and on the node.
	n := scenegraph.New("n")
	n.Rotation = rl.QuaternionMultiply(
		rl.QuaternionFromAxisAngle(rl.NewVector3(0, 1, 0), 1.1),
		rl.QuaternionFromAxisAngle(rl.NewVector3(1, 0, 0), 0.3),
	)
	assert.Equal(t, n.Yaw(), ExtractYaw(n.Rotation))
}

func TestGizmoSize(t *testing.T) {
	assert.InDelta(t, 1.5, GizmoSize(0, 1), 1e-6)
	assert.InDelta(t, 1.0, GizmoSize(9, 1), 1e-5)
	assert.InDelta(t, 1.0, GizmoSize(3, 3), 1e-5)
	assert.InDelta(t, 0.5, GizmoSize(1e6, 1), 1e-6)
}

func TestSnapAngle(t *testing.T) {
	step := float32(15 * math.Pi / 180)
	assert.InDelta(t, step, SnapAngle(0.3, step), 1e-6)
	assert.InDelta(t, 0, SnapAngle(0.1, step), 1e-6)
	assert.InDelta(t, 0.1, SnapAngle(0.1, 0), 1e-6)
}

func TestTranslateDragCommitsOnce(t *testing.T) {
	e := New(world.FlatTerrain(0), DefaultOptions())
	var edits []world.EditedTransform
	e.OnEdit = func(id string, tr world.EditedTransform) {
		assert.Equal(t, "a", id)
		edits = append(edits, tr)
	}
	n := crate(rl.Vector3{})
	e.Attach("a", n)

	require.Equal(t, AxisX, e.PickAxis(down(1, 0)))
	require.True(t, e.BeginDrag(AxisX, down(0.2, 0)))
	require.True(t, e.DragRay(down(2, 0)))
	require.True(t, e.DragRay(down(3.4, 0)))
	assert.InDelta(t, 3.2, n.Position.X, 1e-5)
	assert.Empty(t, edits)

	tr, ok := e.EndDrag()
	require.True(t, ok)
	require.Len(t, edits, 1)
	assert.InDelta(t, 3.2, tr.Position[0], 1e-5)
	assert.InDelta(t, 0, tr.Position[1], 1e-5)
	assert.InDelta(t, 1, tr.Scale, 1e-6)

	_, ok = e.EndDrag()
	assert.False(t, ok)
	assert.Len(t, edits, 1)
}

func TestTranslateSnapping(t *testing.T) {
	e := New(world.FlatTerrain(0), DefaultOptions())
	e.SetSnapping(true)
	n := crate(rl.NewVector3(0, 0.3, 0))
	e.Attach("a", n)

	require.True(t, e.BeginDrag(AxisX, down(0.2, 0)))
	e.DragRay(down(3.4, 0))
	assert.InDelta(t, 3, n.Position.X, 1e-5)
	assert.InDelta(t, 0.5, n.Position.Y, 1e-5, "Y snaps too")
}

func TestTranslateGroundLock(t *testing.T) {
	e := New(world.FlatTerrain(1), DefaultOptions())
	e.SetGroundConstraint(true)
	n := crate(rl.NewVector3(0, 5, 0))
	e.Attach("a", n)

	assert.Equal(t, []Axis{AxisX, AxisZ}, e.Gizmo().Axes)
	assert.False(t, e.BeginDrag(AxisY, down(0, 0)))

	require.True(t, e.BeginDrag(AxisZ, down(0, 0.1)))
	e.DragRay(down(0, 2.1))
	assert.InDelta(t, 2, n.Position.Z, 1e-5)
	assert.InDelta(t, 1.5, n.Position.Y, 1e-5)

	tr, ok := e.EndDrag()
	require.True(t, ok)
	assert.InDelta(t, 0, tr.Position[1], 1e-5, "height is relative to terrain")
}

func TestRotateKeepsYawOnly(t *testing.T) {
	e := New(nil, DefaultOptions())
	e.SetMode(Rotate)
	n := scenegraph.New("lamp")
	e.Attach("a", n)

	g := e.Gizmo()
	assert.Equal(t, []Axis{AxisY}, g.Axes)
	assert.Equal(t, AxisY, e.PickAxis(down(g.Size, 0)))
	assert.Equal(t, AxisNone, e.PickAxis(down(0, 0)))

	require.True(t, e.BeginDrag(AxisY, down(0, 1)))
	e.DragRay(down(1, 0))
	assert.InDelta(t, math.Pi/2, n.Yaw(), 1e-4)

	e.SetSnapping(true)
	e.DragRay(down(0.29552, 0.95534))
	assert.InDelta(t, 15*math.Pi/180, n.Yaw(), 1e-4)

	tr, ok := e.EndDrag()
	require.True(t, ok)
	assert.InDelta(t, 15*math.Pi/180, tr.RotationYaw, 1e-4)
}

func TestConstrainDropsTilt(t *testing.T) {
	e := New(nil, DefaultOptions())
	e.SetMode(Rotate)
	n := scenegraph.New("lamp")
	n.Rotation = rl.QuaternionMultiply(
		rl.QuaternionFromAxisAngle(rl.NewVector3(0, 1, 0), 0.5),
		rl.QuaternionFromAxisAngle(rl.NewVector3(1, 0, 0), 0.05),
	)
	e.Attach("a", n)
	e.Constrain()
	assert.InDelta(t, 0, n.Rotation.X, 1e-6)
	assert.InDelta(t, 0, n.Rotation.Z, 1e-6)
}

func TestScaleRecoversUniformAndKeepsBase(t *testing.T) {
	e := New(nil, DefaultOptions())
	e.SetMode(Scale)
	n := crate(rl.Vector3{})
	e.Attach("a", n)

	require.True(t, e.BeginDrag(AxisX, down(1, 0)))
	e.DragRay(down(3, 0))
	assert.Equal(t, rl.NewVector3(3, 3, 3), n.Scale)
	assert.InDelta(t, 1.5, n.Position.Y, 1e-5)

	e.DragRay(down(1000, 0))
	assert.InDelta(t, 100, n.UniformScale(), 1e-4)

	tr, ok := e.EndDrag()
	require.True(t, ok)
	assert.InDelta(t, 100, tr.Scale, 1e-4)
	assert.InDelta(t, 0, tr.Position[1], 1e-4)
}

func TestGroundHelper(t *testing.T) {
	e := New(world.FlatTerrain(0), DefaultOptions())
	n := crate(rl.NewVector3(2, 5, 1))
	e.Attach("a", n)

	h := e.Helper()
	require.True(t, h.Visible)
	assert.Equal(t, rl.NewVector3(2, 5, 1), h.Top)
	assert.Equal(t, rl.NewVector3(2, 0, 1), h.Ground)

	n.Position.Y = 0.52
	assert.False(t, e.Helper().Visible)

	n.Position.Y = 5
	e.SetMode(Rotate)
	assert.False(t, e.Helper().Visible)
}

func TestModeChangeCommitsDrag(t *testing.T) {
	e := New(nil, DefaultOptions())
	commits := 0
	e.OnEdit = func(string, world.EditedTransform) { commits++ }
	e.Attach("a", crate(rl.Vector3{}))

	require.True(t, e.BeginDrag(AxisX, down(0.5, 0)))
	e.SetMode(Scale)
	assert.Equal(t, 1, commits)
	assert.False(t, e.Dragging())
}

func TestReattachDuringDragKeepsEdit(t *testing.T) {
	e := New(nil, DefaultOptions())
	e.Attach("a", crate(rl.Vector3{}))
	require.True(t, e.BeginDrag(AxisX, down(0.5, 0)))
	e.DragRay(down(2.5, 0))

	rebuilt := crate(rl.Vector3{})
	e.Attach("a", rebuilt)
	assert.True(t, e.Dragging())
	assert.InDelta(t, 2, rebuilt.Position.X, 1e-5)

	e.Attach("b", crate(rl.Vector3{}))
	assert.False(t, e.Dragging())
}

func TestDetach(t *testing.T) {
	e := New(nil, DefaultOptions())
	e.Attach("a", crate(rl.Vector3{}))
	e.Detach()
	assert.Equal(t, "", e.AttachedID())
	assert.False(t, e.Gizmo().Visible)
	assert.Equal(t, AxisNone, e.PickAxis(down(1, 0)))
	assert.False(t, e.BeginDrag(AxisX, down(0, 0)))
}

func TestParseMode(t *testing.T) {
	m, ok := ParseMode("scale")
	assert.True(t, ok)
	assert.Equal(t, Scale, m)
	_, ok = ParseMode("shear")
	assert.False(t, ok)
	assert.Equal(t, "rotate", Rotate.String())
}

func TestCancelDragRestores(t *testing.T) {
	e := New(nil, DefaultOptions())
	commits := 0
	e.OnEdit = func(string, world.EditedTransform) { commits++ }
	n := crate(rl.Vector3{})
	e.Attach("a", n)
	require.True(t, e.BeginDrag(AxisX, down(0.5, 0)))
	e.DragRay(down(4.5, 0))
	e.CancelDrag()
	assert.InDelta(t, 0, n.Position.X, 1e-6)
	assert.False(t, e.Dragging())
	assert.Equal(t, 0, commits)
}
