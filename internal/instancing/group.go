package instancing

import (
	rl "github.com/gen2brain/raylib-go/raylib"
)

// Transform is the placement of one instance inside a group. Position is the instance's
// world position (terrain height included); CenterOffset is the asset's cached offset,
// applied scaled by Scale.
type Transform struct {
	Position     rl.Vector3
	CenterOffset rl.Vector3
	Yaw          float32
	Scale        float32
}

// Matrix composes translate-by-scaled-center-offset, yaw rotation, and uniform scale.
func (t Transform) Matrix() rl.Matrix {
	s := t.Scale
	if s <= 0 {
		s = 1
	}
	pos := rl.Vector3Add(t.Position, rl.Vector3Scale(t.CenterOffset, s))
	sm := rl.MatrixScale(s, s, s)
	rm := rl.MatrixRotateY(t.Yaw)
	tm := rl.MatrixTranslate(pos.X, pos.Y, pos.Z)
	return rl.MatrixMultiply(rl.MatrixMultiply(sm, rm), tm)
}

// Slot is one occupied entry of a group.
type Slot struct {
	InstanceID string
	Matrix     rl.Matrix
	Position   rl.Vector3
	Yaw        float32
	Scale      float32
}

// Group batches every copy of one asset into a single instanced draw. Slots are dense:
// index holds a bijection from instance id onto [0, Count()).
type Group struct {
	Key      string
	Geometry string
	Material string
	Color    rl.Color
	Bounds   rl.BoundingBox

	capacity     int
	local        rl.Matrix
	slots        []Slot
	matrices     []rl.Matrix
	index        map[string]int
	visibleCount int
}

func newGroup(key string, capacity int) *Group {
	return &Group{
		Key:      key,
		capacity: capacity,
		local:    rl.MatrixIdentity(),
		slots:    make([]Slot, 0, capacity),
		matrices: make([]rl.Matrix, 0, capacity),
		index:    make(map[string]int),
	}
}

// Count returns the number of occupied slots.
func (g *Group) Count() int {
	return len(g.slots)
}

// Capacity returns the maximum number of slots.
func (g *Group) Capacity() int {
	return g.capacity
}

// VisibleCount is the instance count the GPU draws; it always equals Count after an update.
func (g *Group) VisibleCount() int {
	return g.visibleCount
}

// IndexOf returns the slot index of an instance.
func (g *Group) IndexOf(id string) (int, bool) {
	i, ok := g.index[id]
	return i, ok
}

// Slot returns the slot at index i.
func (g *Group) Slot(i int) (Slot, bool) {
	if i < 0 || i >= len(g.slots) {
		return Slot{}, false
	}
	return g.slots[i], true
}

// IDs returns the instance ids in slot order.
func (g *Group) IDs() []string {
	out := make([]string, len(g.slots))
	for i, s := range g.slots {
		out[i] = s.InstanceID
	}
	return out
}

// Matrices returns the per-instance transforms in slot order. The slice is owned by the
// group and valid until the next mutation.
func (g *Group) Matrices() []rl.Matrix {
	return g.matrices[:g.visibleCount]
}

func (g *Group) add(id string, t Transform) bool {
	if len(g.slots) >= g.capacity {
		return false
	}
	m := rl.MatrixMultiply(g.local, t.Matrix())
	g.index[id] = len(g.slots)
	g.slots = append(g.slots, Slot{InstanceID: id, Matrix: m, Position: t.Position, Yaw: t.Yaw, Scale: t.Scale})
	g.matrices = append(g.matrices, m)
	g.visibleCount = len(g.slots)
	return true
}

func (g *Group) update(id string, t Transform) bool {
	i, ok := g.index[id]
	if !ok {
		return false
	}
	m := rl.MatrixMultiply(g.local, t.Matrix())
	g.slots[i] = Slot{InstanceID: id, Matrix: m, Position: t.Position, Yaw: t.Yaw, Scale: t.Scale}
	g.matrices[i] = m
	return true
}

// remove swaps the last slot into the removed one so slots stay dense.
func (g *Group) remove(id string) bool {
	i, ok := g.index[id]
	if !ok {
		return false
	}
	last := len(g.slots) - 1
	if i != last {
		moved := g.slots[last]
		g.slots[i] = moved
		g.matrices[i] = g.matrices[last]
		g.index[moved.InstanceID] = i
	}
	g.slots[last] = Slot{}
	g.slots = g.slots[:last]
	g.matrices = g.matrices[:last]
	delete(g.index, id)
	g.visibleCount = len(g.slots)
	return true
}

func (g *Group) clear() {
	g.slots = g.slots[:0]
	g.matrices = g.matrices[:0]
	clear(g.index)
	g.visibleCount = 0
}
