package transformedit

import (
	"math"

	"github.com/chewxy/math32"
	rl "github.com/gen2brain/raylib-go/raylib"

	"world-builder/internal/scenegraph"
	"world-builder/internal/world"
)

// Mode is the active gizmo mode.
type Mode int

const (
	Translate Mode = iota
	Rotate
	Scale
)

func (m Mode) String() string {
	switch m {
	case Rotate:
		return "rotate"
	case Scale:
		return "scale"
	}
	return "translate"
}

// ParseMode maps a mode name to its Mode.
func ParseMode(s string) (Mode, bool) {
	switch s {
	case "translate", "move":
		return Translate, true
	case "rotate":
		return Rotate, true
	case "scale":
		return Scale, true
	}
	return Translate, false
}

// Axis is one gizmo handle.
type Axis int

const (
	AxisNone Axis = iota
	AxisX
	AxisY
	AxisZ
)

// Dir returns the unit world direction of the handle.
func (a Axis) Dir() rl.Vector3 {
	switch a {
	case AxisX:
		return rl.NewVector3(1, 0, 0)
	case AxisY:
		return rl.NewVector3(0, 1, 0)
	case AxisZ:
		return rl.NewVector3(0, 0, 1)
	}
	return rl.Vector3{}
}

// Options tunes the editor.
type Options struct {
	SnapUnit        float32 // translate grid
	RotationSnap    float32 // radians
	MinScale        float32
	MaxScale        float32
	ScaleEpsilon    float32
	HelperThreshold float32 // minimum height above ground before the ground helper shows
}

// DefaultOptions returns the standard editor settings.
func DefaultOptions() Options {
	return Options{
		SnapUnit:        1,
		RotationSnap:    15 * math.Pi / 180,
		MinScale:        0.05,
		MaxScale:        100,
		ScaleEpsilon:    1e-3,
		HelperThreshold: 0.05,
	}
}

// Gizmo is what the renderer needs to draw the manipulation handles.
type Gizmo struct {
	Visible  bool
	Mode     Mode
	Size     float32
	Axes     []Axis
	Position rl.Vector3
}

// GroundHelper marks where a floating object would land: a cross at Ground and a dashed line
// up to Top.
type GroundHelper struct {
	Visible bool
	Top     rl.Vector3
	Ground  rl.Vector3
}

type dragState struct {
	axis       Axis
	startPos   rl.Vector3
	startRot   rl.Quaternion
	startScale rl.Vector3
	base       rl.Vector3
	grab       float32
	startAngle float32

	// last constrained transform, carried over when the node is rebuilt mid-drag
	pos   rl.Vector3
	rot   rl.Quaternion
	scale rl.Vector3
	moved bool
}

// Editor attaches a gizmo to at most one instance node and turns drags into constrained
// transforms. Edits stay on the node until EndDrag, which reports the result once through
// OnEdit in world-model units.
type Editor struct {
	terrain world.TerrainSampler
	opts    Options

	// OnEdit receives committed edits.
	OnEdit func(id string, t world.EditedTransform)
	// OnChange is called when the node moved during a drag.
	OnChange func(id string)

	mode     Mode
	snapping bool
	ground   bool
	id       string
	node     *scenegraph.Node
	drag     *dragState
}

// New returns an editor in translate mode with no constraints.
func New(terrain world.TerrainSampler, opts Options) *Editor {
	if terrain == nil {
		terrain = world.FlatTerrain(0)
	}
	d := DefaultOptions()
	if opts.MinScale <= 0 {
		opts.MinScale = d.MinScale
	}
	if opts.MaxScale <= opts.MinScale {
		opts.MaxScale = math32.Max(d.MaxScale, opts.MinScale*2)
	}
	if opts.ScaleEpsilon <= 0 {
		opts.ScaleEpsilon = d.ScaleEpsilon
	}
	return &Editor{terrain: terrain, opts: opts}
}

// Mode returns the active mode.
func (e *Editor) Mode() Mode { return e.mode }

// SetMode switches mode, committing a drag in progress.
func (e *Editor) SetMode(m Mode) {
	if m == e.mode {
		return
	}
	e.EndDrag()
	e.mode = m
}

// Snapping reports whether snapping is on.
func (e *Editor) Snapping() bool { return e.snapping }

// SetSnapping turns grid and angle snapping on or off.
func (e *Editor) SetSnapping(on bool) { e.snapping = on }

// GroundConstraint reports whether ground lock is on.
func (e *Editor) GroundConstraint() bool { return e.ground }

// SetGroundConstraint turns ground lock on or off.
func (e *Editor) SetGroundConstraint(on bool) { e.ground = on }

// Attach puts the gizmo on node. Re-attaching the same instance to a rebuilt node keeps a
// drag in progress.
func (e *Editor) Attach(id string, node *scenegraph.Node) {
	if id != e.id {
		e.drag = nil
	}
	e.id = id
	e.node = node
	if d := e.drag; d != nil && node != nil && d.moved {
		node.Position, node.Rotation, node.Scale = d.pos, d.rot, d.scale
		e.apply()
	}
}

// Detach removes the gizmo without committing.
func (e *Editor) Detach() {
	e.id = ""
	e.node = nil
	e.drag = nil
}

// AttachedID returns the instance the gizmo is on, or "".
func (e *Editor) AttachedID() string { return e.id }

// Node returns the attached node.
func (e *Editor) Node() *scenegraph.Node { return e.node }

// Dragging reports whether a drag is in progress.
func (e *Editor) Dragging() bool { return e.drag != nil }

// Axes returns the handles visible in the current mode.
func (e *Editor) Axes() []Axis {
	switch e.mode {
	case Rotate:
		return []Axis{AxisY}
	case Scale:
		return []Axis{AxisX, AxisY, AxisZ}
	}
	if e.ground {
		return []Axis{AxisX, AxisZ}
	}
	return []Axis{AxisX, AxisY, AxisZ}
}

// Gizmo describes the handles to draw.
func (e *Editor) Gizmo() Gizmo {
	if e.node == nil {
		return Gizmo{Mode: e.mode}
	}
	return Gizmo{
		Visible:  true,
		Mode:     e.mode,
		Size:     GizmoSize(e.node.Data.BoundingRadius, e.node.UniformScale()),
		Axes:     e.Axes(),
		Position: e.node.Position,
	}
}

// Helper describes the ground projection marker. It is only shown in translate mode while the
// object floats above the threshold.
func (e *Editor) Helper() GroundHelper {
	if e.node == nil || e.mode != Translate {
		return GroundHelper{}
	}
	base := e.base()
	h := e.terrain.Height(base.X, base.Z)
	return GroundHelper{
		Visible: base.Y-h > e.opts.HelperThreshold,
		Top:     base,
		Ground:  rl.NewVector3(base.X, h, base.Z),
	}
}

// base returns the point the instance record refers to: the node position without the
// scaled center offset.
func (e *Editor) base() rl.Vector3 {
	return rl.Vector3Subtract(e.node.Position, rl.Vector3Scale(e.node.Data.CenterOffset, e.node.UniformScale()))
}

// PickAxis returns the visible handle closest to ray, or AxisNone.
func (e *Editor) PickAxis(ray rl.Ray) Axis {
	if e.node == nil {
		return AxisNone
	}
	g := e.Gizmo()
	if e.mode == Rotate {
		hit, ok := planeY(ray, g.Position.Y)
		if !ok {
			return AxisNone
		}
		r := rl.Vector3Distance(hit, g.Position)
		if math32.Abs(r-g.Size) <= 0.15*g.Size {
			return AxisY
		}
		return AxisNone
	}

	best, bestDist := AxisNone, 0.15*g.Size
	for _, a := range g.Axes {
		u, t, dist, ok := closestOnAxis(g.Position, a.Dir(), ray)
		if !ok || t < 0 || u < 0 || u > g.Size*1.1 {
			continue
		}
		if dist <= bestDist {
			best, bestDist = a, dist
		}
	}
	return best
}

// BeginDrag starts dragging axis with the pointer ray. Returns false when nothing is attached
// or the axis is hidden in this mode.
func (e *Editor) BeginDrag(axis Axis, ray rl.Ray) bool {
	if e.node == nil || !e.visible(axis) {
		return false
	}
	d := &dragState{
		axis:       axis,
		startPos:   e.node.Position,
		startRot:   e.node.Rotation,
		startScale: e.node.Scale,
		base:       e.base(),
	}
	if e.mode == Rotate {
		hit, ok := planeY(ray, d.startPos.Y)
		if !ok {
			return false
		}
		d.startAngle = math32.Atan2(hit.X-d.startPos.X, hit.Z-d.startPos.Z)
	} else {
		u, _, _, ok := closestOnAxis(d.startPos, axis.Dir(), ray)
		if !ok {
			return false
		}
		d.grab = u
	}
	e.drag = d
	return true
}

// DragRay moves the dragged handle to follow ray and applies the mode's constraint.
func (e *Editor) DragRay(ray rl.Ray) bool {
	d := e.drag
	if d == nil || e.node == nil {
		return false
	}
	switch e.mode {
	case Translate:
		u, _, _, ok := closestOnAxis(d.startPos, d.axis.Dir(), ray)
		if !ok {
			return false
		}
		e.node.Position = rl.Vector3Add(d.startPos, rl.Vector3Scale(d.axis.Dir(), u-d.grab))
	case Rotate:
		hit, ok := planeY(ray, d.startPos.Y)
		if !ok {
			return false
		}
		angle := math32.Atan2(hit.X-d.startPos.X, hit.Z-d.startPos.Z)
		turn := rl.QuaternionFromAxisAngle(rl.NewVector3(0, 1, 0), angle-d.startAngle)
		e.node.Rotation = rl.QuaternionMultiply(turn, d.startRot)
	case Scale:
		u, _, _, ok := closestOnAxis(d.startPos, d.axis.Dir(), ray)
		if !ok {
			return false
		}
		grab := d.grab
		if math32.Abs(grab) < 1e-3 {
			grab = 1
		}
		ratio := math32.Max(u/grab, 0.01)
		s := d.startScale
		switch d.axis {
		case AxisX:
			s.X *= ratio
		case AxisY:
			s.Y *= ratio
		case AxisZ:
			s.Z *= ratio
		}
		e.node.Scale = s
	}
	e.apply()
	return true
}

func (e *Editor) apply() {
	e.Constrain()
	if d := e.drag; d != nil {
		d.pos, d.rot, d.scale, d.moved = e.node.Position, e.node.Rotation, e.node.Scale, true
	}
	if e.OnChange != nil {
		e.OnChange(e.id)
	}
}

// Constrain applies the active mode's constraint to the attached node.
func (e *Editor) Constrain() {
	n := e.node
	if n == nil {
		return
	}
	switch e.mode {
	case Translate:
		s := n.UniformScale()
		co := rl.Vector3Scale(n.Data.CenterOffset, s)
		base := rl.Vector3Subtract(n.Position, co)
		if e.snapping {
			base.X = snap(base.X, e.opts.SnapUnit)
			base.Z = snap(base.Z, e.opts.SnapUnit)
			if !e.ground {
				base.Y = snap(base.Y, e.opts.SnapUnit)
			}
		}
		if e.ground {
			base.Y = e.terrain.Height(base.X, base.Z)
		}
		n.Position = rl.Vector3Add(base, co)
	case Rotate:
		yaw := ExtractYaw(n.Rotation)
		if e.snapping {
			yaw = SnapAngle(yaw, e.opts.RotationSnap)
		}
		n.SetYaw(yaw)
	case Scale:
		base := e.base()
		if e.drag != nil {
			base = e.drag.base
		}
		s := clamp(RecoverUniformScale(n.Scale, e.opts.ScaleEpsilon), e.opts.MinScale, e.opts.MaxScale)
		n.SetUniformScale(s)
		n.Position = rl.Vector3Add(base, rl.Vector3Scale(n.Data.CenterOffset, s))
	}
}

// EndDrag finishes a drag and reports the node's transform in world-model units: position
// relative to the terrain surface without the center offset, yaw, uniform scale.
func (e *Editor) EndDrag() (world.EditedTransform, bool) {
	if e.drag == nil || e.node == nil {
		e.drag = nil
		return world.EditedTransform{}, false
	}
	e.Constrain()
	e.drag = nil

	base := e.base()
	t := world.EditedTransform{
		Position:    [3]float32{base.X, base.Y - e.terrain.Height(base.X, base.Z), base.Z},
		RotationYaw: ExtractYaw(e.node.Rotation),
		Scale:       e.node.UniformScale(),
	}
	if e.OnEdit != nil {
		e.OnEdit(e.id, t)
	}
	return t, true
}

// CancelDrag abandons a drag and puts the node back where it started.
func (e *Editor) CancelDrag() {
	d := e.drag
	e.drag = nil
	if d == nil || e.node == nil {
		return
	}
	e.node.Position, e.node.Rotation, e.node.Scale = d.startPos, d.startRot, d.startScale
	if e.OnChange != nil {
		e.OnChange(e.id)
	}
}

func (e *Editor) visible(a Axis) bool {
	for _, v := range e.Axes() {
		if v == a {
			return true
		}
	}
	return false
}
