package assets

import (
	"context"
	"errors"
	"testing"
	"time"

	rl "github.com/gen2brain/raylib-go/raylib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"world-builder/internal/scenegraph"
	"world-builder/internal/world"
)

func TestBuildPrimitive(t *testing.T) {
	f := NewFactory(Options{})
	n, err := f.BuildSubtree(world.LibraryAsset{ID: "crate", Kind: "cube", Size: [3]float32{2, 1, 2}, Color: "#ff0000"}, nil)
	require.NoError(t, err)

	assert.Equal(t, "crate", n.Data.LibraryID)
	assert.Equal(t, 1, n.MeshCount(false))
	body := n.Children()[0]
	assert.Equal(t, rl.NewVector3(2, 1, 2), body.Scale)
	assert.Equal(t, rl.NewColor(255, 0, 0, 255), body.Mesh.Color)

	box, ok := n.LocalBounds()
	require.True(t, ok)
	assert.InDelta(t, -1, box.Min.X, 1e-5)
	assert.InDelta(t, 0.5, box.Max.Y, 1e-5)
}

func TestBuildCompositeWithOverrides(t *testing.T) {
	f := NewFactory(Options{})
	def := world.LibraryAsset{ID: "lamp", Kind: "composite", Parts: []world.PartDef{
		{Name: "pole", Kind: "cylinder", Size: [3]float32{0.2, 3, 0.2}},
		{Name: "shade", Kind: "sphere", Offset: [3]float32{0, 3, 0}, Color: "#ffee00"},
		{Name: "base", Kind: "cube"},
	}}
	n, err := f.BuildSubtree(def, map[string]world.PartOverride{
		"shade": {Color: "#0000ff", Scale: 2},
		"base":  {Hidden: true},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, n.MeshCount(false))
	var shade *scenegraph.Node
	n.Walk(func(c *scenegraph.Node) bool {
		if c.Name == "shade" {
			shade = c
		}
		return true
	})
	require.NotNil(t, shade)
	assert.Equal(t, "shade", shade.Data.Selectable)
	assert.Equal(t, rl.NewColor(0, 0, 255, 255), shade.Mesh.Color)
	assert.Equal(t, rl.NewVector3(2, 2, 2), shade.Scale)
}

func TestBuildCharacterIsAnimatedNPC(t *testing.T) {
	f := NewFactory(Options{})
	n, err := f.BuildSubtree(world.LibraryAsset{ID: "villager", Kind: "character", Animation: "walk"}, nil)
	require.NoError(t, err)
	assert.True(t, n.Data.NPC)
	require.NotNil(t, n.Data.Animator)
	require.NoError(t, n.Data.Animator.Animate(0.1))
	assert.Equal(t, 2, n.MeshCount(false))
}

func TestBuildErrors(t *testing.T) {
	f := NewFactory(Options{})
	_, err := f.BuildSubtree(world.LibraryAsset{ID: "x", Kind: "teapot"}, nil)
	assert.True(t, errors.Is(err, ErrUnknownKind))

	_, err = f.BuildSubtree(world.LibraryAsset{ID: "y", Kind: "composite"}, nil)
	assert.Error(t, err)

	_, err = f.BuildSubtree(world.LibraryAsset{ID: "z", Kind: "cube", Animation: "dance"}, nil)
	assert.Error(t, err)
}

func TestBuildContextHonorsCancellation(t *testing.T) {
	f := NewFactory(Options{Latency: time.Second})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := f.BuildSubtreeContext(ctx, world.LibraryAsset{ID: "a", Kind: "cube"}, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	built, _ := f.Counts()
	assert.Equal(t, 0, built)
}

func TestPlaceholdersAndDispose(t *testing.T) {
	var released []*scenegraph.Node
	f := NewFactory(Options{OnRelease: func(n *scenegraph.Node) { released = append(released, n) }})
	def := world.LibraryAsset{ID: "rock", Kind: "sphere", Size: [3]float32{3, 3, 3}}

	p := f.Placeholder(def)
	assert.True(t, p.Data.Placeholder)
	e := f.ErrorPlaceholder(def, errors.New("boom"))
	assert.True(t, e.Data.Failed)
	assert.Equal(t, MaterialError, e.Children()[0].Mesh.Material)

	f.DisposeSubtree(p)
	assert.True(t, p.Children()[0].Mesh.Released())
	_, disposed := f.Counts()
	assert.Equal(t, 1, disposed)
	assert.Len(t, released, 1)
	f.DisposeSubtree(nil)
}

func TestResetDropsCache(t *testing.T) {
	f := NewFactory(Options{})
	def := world.LibraryAsset{ID: "a", Kind: "cube"}
	_, err := f.BuildSubtree(def, nil)
	require.NoError(t, err)
	assert.Len(t, f.specs, 1)
	f.Reset()
	assert.Empty(t, f.specs)
}

func TestParseColor(t *testing.T) {
	c, ok := parseColor("#11223344")
	require.True(t, ok)
	assert.Equal(t, rl.NewColor(0x11, 0x22, 0x33, 0x44), c)
	_, ok = parseColor("red")
	assert.False(t, ok)
}

func TestSpinAndBob(t *testing.T) {
	pivot := scenegraph.New("pivot")
	s := &Spin{Target: pivot, Speed: 1}
	require.NoError(t, s.Animate(0.5))
	assert.InDelta(t, 0.5, pivot.Yaw(), 1e-4)

	b := &Bob{Target: pivot, Amplitude: 1, Speed: 1}
	require.NoError(t, b.Animate(0.5))
	assert.Greater(t, pivot.Position.Y, float32(0))

	assert.Error(t, (&Spin{}).Animate(1))
}
