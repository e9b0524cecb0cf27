package terrain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func testOptions() Options {
	o := DefaultOptions()
	o.Width = 16
	o.Depth = 8
	o.TileSize = 2
	o.Seed = 42
	return o
}

func TestGenerateIsDeterministicForSeed(t *testing.T) {
	a := Generate(testOptions())
	b := Generate(testOptions())
	assert.Equal(t, a.heights, b.heights)

	for _, h := range a.heights {
		assert.GreaterOrEqual(t, h, float32(0))
		assert.LessOrEqual(t, h, testOptions().HeightScale)
	}
}

func TestHeightMatchesVerticesAndInterpolates(t *testing.T) {
	h := Generate(testOptions())
	halfX, halfZ := h.Extent()
	assert.Equal(t, float32(16), halfX)
	assert.Equal(t, float32(8), halfZ)

	// vertex (3, 2) sits at world (-16 + 6, -8 + 4)
	assert.InDelta(t, h.Vertex(3, 2), h.Height(-10, -4), 1e-5)

	mid := h.Height(-9, -4)
	lo := min(h.Vertex(3, 2), h.Vertex(4, 2))
	hi := max(h.Vertex(3, 2), h.Vertex(4, 2))
	assert.GreaterOrEqual(t, mid, lo-1e-5)
	assert.LessOrEqual(t, mid, hi+1e-5)
}

func TestHeightClampsOutsideGrid(t *testing.T) {
	h := Generate(testOptions())
	assert.InDelta(t, h.Vertex(0, 0), h.Height(-1000, -1000), 1e-5)
	assert.InDelta(t, h.Vertex(16, 8), h.Height(1000, 1000), 1e-5)
}

func TestNormalizedFillsDefaults(t *testing.T) {
	o := Options{}.normalized()
	assert.Equal(t, 32, o.Width)
	assert.Equal(t, float32(1), o.TileSize)
	assert.NotZero(t, o.Seed)
}
