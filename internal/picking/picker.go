package picking

import (
	"sort"
	"time"

	"github.com/chewxy/math32"
	rl "github.com/gen2brain/raylib-go/raylib"

	"world-builder/internal/camera"
	"world-builder/internal/scenegraph"
	"world-builder/internal/world"
)

// Kind says what a raycast hit.
type Kind int

const (
	None Kind = iota
	Instance
	Terrain
	Ground
)

func (k Kind) String() string {
	switch k {
	case Instance:
		return "instance"
	case Terrain:
		return "terrain"
	case Ground:
		return "ground"
	}
	return "none"
}

// Hit is the result of a raycast. For Instance hits InstanceID is the selected candidate and
// Candidates the front-to-back stack being cycled. For Terrain and Ground hits Point is the
// grid-snapped placement target and Tile its grid cell.
type Hit struct {
	Kind       Kind
	InstanceID string
	Candidates []string
	Point      rl.Vector3
	Tile       [2]int
}

// ProxySource supplies the pick volumes of all instances.
type ProxySource interface {
	HitProxies() []*scenegraph.Node
}

// Options tunes picking.
type Options struct {
	CycleRadius float32       // pixels
	CycleWindow time.Duration // between clicks
	GridSize    float32
	HalfExtent  float32 // world bounds are [-HalfExtent, HalfExtent] on X and Z
	TerrainStep float32 // ray march step
	MaxDistance float32
}

// DefaultOptions returns the standard picking settings.
func DefaultOptions() Options {
	return Options{
		CycleRadius: 5,
		CycleWindow: 500 * time.Millisecond,
		GridSize:    1,
		HalfExtent:  50,
		TerrainStep: 0.5,
		MaxDistance: 500,
	}
}

func (o Options) normalized() Options {
	d := DefaultOptions()
	if o.CycleRadius <= 0 {
		o.CycleRadius = d.CycleRadius
	}
	if o.CycleWindow <= 0 {
		o.CycleWindow = d.CycleWindow
	}
	if o.GridSize <= 0 {
		o.GridSize = d.GridSize
	}
	if o.HalfExtent <= 0 {
		o.HalfExtent = d.HalfExtent
	}
	if o.TerrainStep <= 0 {
		o.TerrainStep = d.TerrainStep
	}
	if o.MaxDistance <= 0 {
		o.MaxDistance = d.MaxDistance
	}
	return o
}

type cycleState struct {
	stack    []string
	index    int
	lastX    float32
	lastY    float32
	lastTime time.Time
}

// Picker turns screen positions into instance, terrain, or ground hits. Repeated clicks on
// the same spot step through overlapping instances.
type Picker struct {
	cam      *camera.Camera
	proxies  ProxySource
	terrain  world.TerrainSampler
	viewport func() rl.Rectangle
	opts     Options

	// Now is the clock used for click cycling.
	Now func() time.Time

	bounds      rl.Rectangle
	boundsValid bool
	cycle       cycleState
}

// New returns a picker. viewport reports the screen rectangle the camera renders into; it is
// read again only after Invalidate. terrain may be nil, leaving only the ground plane.
func New(cam *camera.Camera, proxies ProxySource, terrain world.TerrainSampler, viewport func() rl.Rectangle, opts Options) *Picker {
	return &Picker{
		cam:      cam,
		proxies:  proxies,
		terrain:  terrain,
		viewport: viewport,
		opts:     opts.normalized(),
		Now:      time.Now,
	}
}

// Invalidate drops the cached viewport bounds.
func (p *Picker) Invalidate() {
	p.boundsValid = false
}

// ResetCycle forgets the click-cycling stack.
func (p *Picker) ResetCycle() {
	p.cycle = cycleState{}
}

// Ray returns the world ray through screen position (x, y).
func (p *Picker) Ray(x, y float32) rl.Ray {
	if !p.boundsValid {
		p.bounds = p.viewport()
		p.boundsValid = true
	}
	b := p.bounds
	return p.cam.ScreenRay(x-b.X, y-b.Y, b.Width, b.Height)
}

// Raycast resolves a click at (x, y): instances first, then terrain, then the ground plane.
func (p *Picker) Raycast(x, y float32) Hit {
	ray := p.Ray(x, y)
	if ids := p.candidates(ray); len(ids) > 0 {
		id := p.advance(ids, x, y)
		return Hit{Kind: Instance, InstanceID: id, Candidates: append([]string(nil), p.cycle.stack...)}
	}
	p.ResetCycle()

	if p.terrain != nil {
		if pt, ok := p.marchTerrain(ray); ok {
			return p.placement(Terrain, pt)
		}
	}
	if ray.Direction.Y > -1e-6 {
		return Hit{Kind: None}
	}
	t := -ray.Position.Y / ray.Direction.Y
	if t < 0 {
		return Hit{Kind: None}
	}
	return p.placement(Ground, rl.Vector3Add(ray.Position, rl.Vector3Scale(ray.Direction, t)))
}

// candidates returns the ids whose proxies the ray hits, nearest first, without duplicates.
func (p *Picker) candidates(ray rl.Ray) []string {
	type hit struct {
		id   string
		dist float32
	}
	var hits []hit
	for _, proxy := range p.proxies.HitProxies() {
		box, ok := proxy.MeshWorldBounds()
		if !ok {
			continue
		}
		col := rl.GetRayCollisionBox(ray, box)
		if !col.Hit {
			continue
		}
		hits = append(hits, hit{id: proxy.Data.InstanceID, dist: col.Distance})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].dist < hits[j].dist })

	seen := make(map[string]bool, len(hits))
	ids := make([]string, 0, len(hits))
	for _, h := range hits {
		if seen[h.id] {
			continue
		}
		seen[h.id] = true
		ids = append(ids, h.id)
	}
	return ids
}

// advance picks the next candidate when the click repeats the previous one, or starts a new
// stack from ids.
func (p *Picker) advance(ids []string, x, y float32) string {
	now := p.Now()
	c := &p.cycle
	dx, dy := x-c.lastX, y-c.lastY
	repeat := len(c.stack) > 1 &&
		math32.Sqrt(dx*dx+dy*dy) <= p.opts.CycleRadius &&
		now.Sub(c.lastTime) <= p.opts.CycleWindow
	if repeat {
		c.index = (c.index + 1) % len(c.stack)
	} else {
		c.stack = ids
		c.index = 0
	}
	c.lastX, c.lastY, c.lastTime = x, y, now
	return c.stack[c.index]
}

// marchTerrain steps along ray until it passes below the terrain inside world bounds and
// refines the crossing by bisection.
func (p *Picker) marchTerrain(ray rl.Ray) (rl.Vector3, bool) {
	at := func(t float32) rl.Vector3 {
		return rl.Vector3Add(ray.Position, rl.Vector3Scale(ray.Direction, t))
	}
	below := func(v rl.Vector3) bool {
		return v.Y <= p.terrain.Height(v.X, v.Z)
	}
	if below(ray.Position) {
		return rl.Vector3{}, false
	}
	prev := float32(0)
	for t := p.opts.TerrainStep; t <= p.opts.MaxDistance; t += p.opts.TerrainStep {
		if !below(at(t)) {
			prev = t
			continue
		}
		lo, hi := prev, t
		for range 20 {
			mid := (lo + hi) / 2
			if below(at(mid)) {
				hi = mid
			} else {
				lo = mid
			}
		}
		pt := at(hi)
		if math32.Abs(pt.X) > p.opts.HalfExtent || math32.Abs(pt.Z) > p.opts.HalfExtent {
			return rl.Vector3{}, false
		}
		return pt, true
	}
	return rl.Vector3{}, false
}

// placement clamps pt to world bounds and snaps it to the grid.
func (p *Picker) placement(kind Kind, pt rl.Vector3) Hit {
	g := p.opts.GridSize
	half := p.opts.HalfExtent
	tx := int(math32.Floor(clamp(pt.X, -half, half)/g + 0.5))
	tz := int(math32.Floor(clamp(pt.Z, -half, half)/g + 0.5))
	x := clamp(float32(tx)*g, -half, half)
	z := clamp(float32(tz)*g, -half, half)
	y := float32(0)
	if kind == Terrain {
		y = p.terrain.Height(x, z)
	}
	return Hit{Kind: kind, Point: rl.NewVector3(x, y, z), Tile: [2]int{tx, tz}}
}

// Part is a sub-part of one instance.
type Part struct {
	Name string
	Node *scenegraph.Node
}

// PickPart casts a ray at (x, y) against the detailed meshes under root and resolves the
// nearest hit to its selectable part: the mesh itself when it is named, otherwise its nearest
// named ancestor below root.
func (p *Picker) PickPart(root *scenegraph.Node, x, y float32) (Part, bool) {
	if root == nil {
		return Part{}, false
	}
	ray := p.Ray(x, y)
	var nearest *scenegraph.Node
	best := math32.Inf(1)
	root.Walk(func(n *scenegraph.Node) bool {
		if !n.Visible {
			return false
		}
		if n.Mesh == nil || n.Mesh.Helper {
			return true
		}
		box, _ := n.MeshWorldBounds()
		if col := rl.GetRayCollisionBox(ray, box); col.Hit && col.Distance < best {
			best = col.Distance
			nearest = n
		}
		return true
	})
	if nearest == nil {
		return Part{}, false
	}
	owner := nearest.FindAncestor(func(n *scenegraph.Node) bool {
		return n.Data.Selectable != "" || n == root
	})
	if owner == nil || owner.Data.Selectable == "" {
		return Part{}, false
	}
	return Part{Name: owner.Data.Selectable, Node: owner}, true
}

func clamp(v, lo, hi float32) float32 {
	return math32.Max(lo, math32.Min(hi, v))
}
