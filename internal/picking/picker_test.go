package picking

import (
	"testing"
	"time"

	rl "github.com/gen2brain/raylib-go/raylib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"world-builder/internal/camera"
	"world-builder/internal/scenegraph"
	"world-builder/internal/world"
)

type proxyList []*scenegraph.Node

func (p proxyList) HitProxies() []*scenegraph.Node { return p }

func proxyAt(id string, pos rl.Vector3) *scenegraph.Node {
	owner := scenegraph.New(id)
	owner.Position = pos
	proxy := scenegraph.NewMesh("hit-proxy", &scenegraph.Mesh{Bounds: scenegraph.BoxBounds(rl.NewVector3(1, 1, 1)), Helper: true})
	proxy.Visible = false
	proxy.Data.HitProxy = true
	proxy.Data.InstanceID = id
	owner.Add(proxy)
	return proxy
}

func lookAt(pos, target rl.Vector3) *camera.Camera {
	cam := camera.New()
	cam.Position = pos
	cam.Target = target
	cam.SetViewport(800, 600)
	return cam
}

func screen() rl.Rectangle { return rl.NewRectangle(0, 0, 800, 600) }

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }
func (c *clock) step(d time.Duration) { c.t = c.t.Add(d) }

func stacked(t *testing.T) (*Picker, *clock) {
	t.Helper()
	cam := lookAt(rl.NewVector3(0, 0, 20), rl.NewVector3(0, 0, 0))
	proxies := proxyList{
		proxyAt("far", rl.NewVector3(0, 0, -10)),
		proxyAt("near", rl.NewVector3(0, 0, 0)),
		proxyAt("mid", rl.NewVector3(0, 0, -5)),
	}
	p := New(cam, proxies, nil, screen, DefaultOptions())
	c := &clock{t: time.Unix(1000, 0)}
	p.Now = c.now
	return p, c
}

func TestRaycastOrdersCandidatesFrontToBack(t *testing.T) {
	p, _ := stacked(t)
	hit := p.Raycast(400, 300)
	require.Equal(t, Instance, hit.Kind)
	assert.Equal(t, "near", hit.InstanceID)
	assert.Equal(t, []string{"near", "mid", "far"}, hit.Candidates)
}

func TestClickCyclingVisitsEveryCandidateOnce(t *testing.T) {
	p, c := stacked(t)
	var got []string
	for range 4 {
		got = append(got, p.Raycast(400, 300).InstanceID)
		c.step(100 * time.Millisecond)
	}
	assert.Equal(t, []string{"near", "mid", "far", "near"}, got)
}

func TestCyclingResetsOutsideWindow(t *testing.T) {
	p, c := stacked(t)
	assert.Equal(t, "near", p.Raycast(400, 300).InstanceID)
	c.step(100 * time.Millisecond)
	assert.Equal(t, "mid", p.Raycast(402, 301).InstanceID)

	c.step(600 * time.Millisecond)
	assert.Equal(t, "near", p.Raycast(400, 300).InstanceID, "too late")

	c.step(100 * time.Millisecond)
	assert.Equal(t, "near", p.Raycast(410, 300).InstanceID, "too far")

	c.step(100 * time.Millisecond)
	assert.Equal(t, "mid", p.Raycast(410, 300).InstanceID)
	p.ResetCycle()
	assert.Equal(t, "near", p.Raycast(410, 300).InstanceID)
}

func TestSingleCandidateDoesNotCycle(t *testing.T) {
	cam := lookAt(rl.NewVector3(0, 0, 20), rl.NewVector3(0, 0, 0))
	p := New(cam, proxyList{proxyAt("only", rl.Vector3{})}, nil, screen, DefaultOptions())
	assert.Equal(t, "only", p.Raycast(400, 300).InstanceID)
	assert.Equal(t, "only", p.Raycast(400, 300).InstanceID)
}

func TestGroundFallbackSnapsToGrid(t *testing.T) {
	cam := lookAt(rl.NewVector3(0, 10, 10), rl.NewVector3(3.4, 0, 2.6))
	p := New(cam, proxyList{}, nil, screen, DefaultOptions())

	hit := p.Raycast(400, 300)
	require.Equal(t, Ground, hit.Kind)
	assert.InDelta(t, 3, hit.Point.X, 1e-5)
	assert.InDelta(t, 0, hit.Point.Y, 1e-5)
	assert.InDelta(t, 3, hit.Point.Z, 1e-5)
	assert.Equal(t, [2]int{3, 3}, hit.Tile)
}

func TestGroundFallbackClampsToWorld(t *testing.T) {
	cam := lookAt(rl.NewVector3(70, 10, 0), rl.NewVector3(80, 0, 0))
	p := New(cam, proxyList{}, nil, screen, DefaultOptions())

	hit := p.Raycast(400, 300)
	require.Equal(t, Ground, hit.Kind)
	assert.InDelta(t, 50, hit.Point.X, 1e-5)
	assert.Equal(t, 50, hit.Tile[0])
}

func TestRayIntoSkyMissesEverything(t *testing.T) {
	cam := lookAt(rl.NewVector3(0, 1, 0), rl.NewVector3(0, 10, 1))
	p := New(cam, proxyList{}, nil, screen, DefaultOptions())
	assert.Equal(t, None, p.Raycast(400, 300).Kind)
}

func TestTerrainHit(t *testing.T) {
	cam := lookAt(rl.NewVector3(0, 10, 10), rl.NewVector3(3.4, 2, 2.6))
	p := New(cam, proxyList{}, world.FlatTerrain(2), screen, DefaultOptions())

	hit := p.Raycast(400, 300)
	require.Equal(t, Terrain, hit.Kind)
	assert.InDelta(t, 3, hit.Point.X, 1e-5)
	assert.InDelta(t, 2, hit.Point.Y, 1e-5)
	assert.InDelta(t, 3, hit.Point.Z, 1e-5)
}

func TestViewportBoundsAreCached(t *testing.T) {
	calls := 0
	viewport := func() rl.Rectangle { calls++; return screen() }
	cam := lookAt(rl.NewVector3(0, 10, 10), rl.Vector3{})
	p := New(cam, proxyList{}, nil, viewport, DefaultOptions())

	p.Raycast(1, 1)
	p.Raycast(2, 2)
	assert.Equal(t, 1, calls)
	p.Invalidate()
	p.Raycast(3, 3)
	assert.Equal(t, 2, calls)
}

func TestPickPart(t *testing.T) {
	cam := lookAt(rl.NewVector3(0, 0, 20), rl.NewVector3(0, 0, 0))
	p := New(cam, proxyList{}, nil, screen, DefaultOptions())

	root := scenegraph.New("lamp")
	arm := scenegraph.New("arm")
	arm.Data.Selectable = "arm"
	arm.Add(scenegraph.NewMesh("arm-mesh", &scenegraph.Mesh{Bounds: scenegraph.BoxBounds(rl.NewVector3(1, 1, 1))}))
	root.Add(arm)
	head := scenegraph.NewMesh("head", &scenegraph.Mesh{Bounds: scenegraph.BoxBounds(rl.NewVector3(1, 1, 1))})
	head.Data.Selectable = "head"
	head.Position = rl.NewVector3(0, 0, -5)
	root.Add(head)
	root.Add(proxyAt("lamp", rl.NewVector3(0, 0, 10)).Parent())

	part, ok := p.PickPart(root, 400, 300)
	require.True(t, ok)
	assert.Equal(t, "arm", part.Name)
	assert.Same(t, arm, part.Node)

	head.Position = rl.NewVector3(0, 0, 5)
	part, ok = p.PickPart(root, 400, 300)
	require.True(t, ok)
	assert.Equal(t, "head", part.Name)

	_, ok = p.PickPart(root, 0, 0)
	assert.False(t, ok)
}

func TestPickPartWithoutSelectableAncestor(t *testing.T) {
	cam := lookAt(rl.NewVector3(0, 0, 20), rl.NewVector3(0, 0, 0))
	p := New(cam, proxyList{}, nil, screen, DefaultOptions())
	root := scenegraph.New("rock")
	root.Add(scenegraph.NewMesh("body", &scenegraph.Mesh{Bounds: scenegraph.BoxBounds(rl.NewVector3(1, 1, 1))}))

	_, ok := p.PickPart(root, 400, 300)
	assert.False(t, ok)
}
