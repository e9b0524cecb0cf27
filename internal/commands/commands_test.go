package commands

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"world-builder/internal/engine"
	"world-builder/internal/transformedit"
)

type fakeTarget struct {
	mode      transformedit.Mode
	snap      *bool
	ground    *bool
	playing   *bool
	rebuilt   []string
	assets    []string
	selected  string
	known     map[string]bool
	assetHits int
}

func (f *fakeTarget) SetGizmoMode(m transformedit.Mode) { f.mode = m }
func (f *fakeTarget) SetSnapping(on bool)               { f.snap = &on }
func (f *fakeTarget) SetGroundConstraint(on bool)       { f.ground = &on }
func (f *fakeTarget) SetPlaying(on bool)                { f.playing = &on }

func (f *fakeTarget) Rebuild(id string) bool {
	if !f.known[id] {
		return false
	}
	f.rebuilt = append(f.rebuilt, id)
	return true
}

func (f *fakeTarget) RebuildAsset(lib string) int {
	f.assets = append(f.assets, lib)
	return f.assetHits
}

func (f *fakeTarget) Select(id string) bool {
	if id != "" && !f.known[id] {
		return false
	}
	f.selected = id
	return true
}

func (f *fakeTarget) Stats() engine.Stats {
	return engine.Stats{Frames: 7, Instances: 3, State: engine.Running}
}

func newConsole(t *testing.T) (*Registry, *fakeTarget, *Console, *[]string) {
	t.Helper()
	target := &fakeTarget{known: map[string]bool{"a": true}, assetHits: 2}
	var out []string
	c := &Console{Target: target, Print: func(line string) { out = append(out, line) }}
	r := NewRegistry()
	c.Register(r)
	return r, target, c, &out
}

func TestParse(t *testing.T) {
	args, ok := Parse("cmd snap --on")
	require.True(t, ok)
	assert.Equal(t, []string{"snap", "--on"}, args)

	args, ok = Parse("cmd   ")
	assert.True(t, ok)
	assert.Empty(t, args)

	_, ok = Parse("snap --on")
	assert.False(t, ok)
}

func TestExecuteErrors(t *testing.T) {
	r, _, _, _ := newConsole(t)
	assert.Error(t, r.Execute(nil))
	assert.ErrorContains(t, r.Execute([]string{"nope"}), "unknown command")
	assert.ErrorContains(t, r.Execute([]string{"snap", "--bogus"}), "usage")
	assert.ErrorIs(t, r.Run("hello"), ErrNotCommand)
}

func TestMode(t *testing.T) {
	r, target, _, out := newConsole(t)
	require.NoError(t, r.Run("cmd mode rotate"))
	assert.Equal(t, transformedit.Rotate, target.mode)
	assert.Contains(t, *out, "gizmo mode: rotate")

	require.NoError(t, r.Run("cmd mode move"))
	assert.Equal(t, transformedit.Translate, target.mode)

	assert.Error(t, r.Run("cmd mode spin"))
	assert.Error(t, r.Run("cmd mode"))
}

func TestTogglesResetBetweenRuns(t *testing.T) {
	r, target, _, _ := newConsole(t)
	require.NoError(t, r.Run("cmd snap --on"))
	require.NotNil(t, target.snap)
	assert.True(t, *target.snap)

	require.NoError(t, r.Run("cmd snap --off"))
	assert.False(t, *target.snap)

	assert.Error(t, r.Run("cmd snap"))
	assert.Error(t, r.Run("cmd snap --on --off"))

	require.NoError(t, r.Run("cmd ground --on"))
	assert.True(t, *target.ground)
	require.NoError(t, r.Run("cmd play --on"))
	assert.True(t, *target.playing)
}

func TestOverlayHooks(t *testing.T) {
	r, _, c, _ := newConsole(t)
	assert.ErrorContains(t, r.Run("cmd grid --show"), "not available")

	var grid, fps *bool
	c.SetGrid = func(show bool) { grid = &show }
	c.SetFPS = func(show bool) { fps = &show }
	require.NoError(t, r.Run("cmd grid --hide"))
	require.NoError(t, r.Run("cmd fps --show"))
	assert.False(t, *grid)
	assert.True(t, *fps)
}

func TestRebuild(t *testing.T) {
	r, target, _, out := newConsole(t)
	require.NoError(t, r.Run("cmd rebuild a"))
	assert.Equal(t, []string{"a"}, target.rebuilt)

	assert.ErrorContains(t, r.Run("cmd rebuild zz"), "unknown instance")
	assert.Error(t, r.Run("cmd rebuild"))

	require.NoError(t, r.Run("cmd rebuild --asset tree"))
	assert.Equal(t, []string{"tree"}, target.assets)
	assert.Contains(t, *out, "rebuilt 2 instance(s) of tree")

	require.NoError(t, r.Run("cmd rebuild a"))
	assert.Equal(t, []string{"tree"}, target.assets, "--asset must not stick")
}

func TestSelect(t *testing.T) {
	r, target, _, _ := newConsole(t)
	require.NoError(t, r.Run("cmd select a"))
	assert.Equal(t, "a", target.selected)
	assert.Error(t, r.Run("cmd select b"))
	require.NoError(t, r.Run("cmd select --none"))
	assert.Empty(t, target.selected)
}

func TestGPULose(t *testing.T) {
	r, _, c, _ := newConsole(t)
	assert.Error(t, r.Run("cmd gpu --lose"))

	lost := 0
	c.LoseDevice = func() { lost++ }
	assert.Error(t, r.Run("cmd gpu"))
	require.NoError(t, r.Run("cmd gpu --lose"))
	assert.Equal(t, 1, lost)
}

func TestStatsAndSave(t *testing.T) {
	r, _, c, out := newConsole(t)
	require.NoError(t, r.Run("cmd stats"))
	assert.Contains(t, *out, "state=running frames=7 instances=3 pending=0 groups=0 batched=0 animated=0")

	assert.Error(t, r.Run("cmd save"))
	c.Save = func() error { return errors.New("disk full") }
	assert.ErrorContains(t, r.Run("cmd save"), "disk full")
	c.Save = func() error { return nil }
	require.NoError(t, r.Run("cmd save"))
}

func TestHelpListsCommands(t *testing.T) {
	r, _, _, out := newConsole(t)
	require.NoError(t, r.Run("cmd help"))
	assert.Contains(t, *out, "cmd mode translate|rotate|scale")
	assert.Contains(t, *out, "cmd snap --on | --off")
	assert.Len(t, *out, len(r.Names()))
}
