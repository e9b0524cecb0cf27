package render

import (
	rl "github.com/gen2brain/raylib-go/raylib"

	"world-builder/internal/terrain"
)

var terrainColor = rl.NewColor(96, 128, 72, 255)

// terrainMesh draws a heightfield as one heightmapped mesh. The mesh is rebuilt from the
// heightfield on first draw and after every device reset.
type terrainMesh struct {
	field  *terrain.Heightfield
	mesh   rl.Mesh
	loaded bool
}

// heightLevels quantizes the heightfield vertices to 8-bit gray levels, one per grid vertex,
// row-major by z. A flat field maps to all zeros.
func heightLevels(h *terrain.Heightfield) (levels []uint8, width, depth int) {
	o := h.Options()
	width, depth = o.Width+1, o.Depth+1
	levels = make([]uint8, width*depth)
	if o.HeightScale <= 0 {
		return levels, width, depth
	}
	for z := 0; z < depth; z++ {
		for x := 0; x < width; x++ {
			v := h.Vertex(x, z) / o.HeightScale
			v = min(max(v, 0), 1)
			levels[z*width+x] = uint8(v*255 + 0.5)
		}
	}
	return levels, width, depth
}

func (t *terrainMesh) ensureLoaded() {
	if t.loaded || t.field == nil {
		return
	}
	levels, w, d := heightLevels(t.field)
	img := rl.GenImageColor(w, d, rl.Black)
	for z := 0; z < d; z++ {
		for x := 0; x < w; x++ {
			v := levels[z*w+x]
			rl.ImageDrawPixel(img, int32(x), int32(z), rl.NewColor(v, v, v, 255))
		}
	}
	o := t.field.Options()
	halfX, halfZ := t.field.Extent()
	t.mesh = rl.GenMeshHeightmap(*img, rl.NewVector3(2*halfX, o.HeightScale, 2*halfZ))
	rl.UnloadImage(img)
	t.loaded = t.mesh.VertexCount > 0
}

// draw renders the terrain with the lit material. The heightmap mesh starts at its corner,
// so it is shifted to center on the origin like the heightfield.
func (t *terrainMesh) draw(c *gpuCache) {
	t.ensureLoaded()
	if !t.loaded {
		return
	}
	halfX, halfZ := t.field.Extent()
	mtl := c.litMaterial()
	setAlbedo(&mtl, terrainColor)
	c.setLitUniforms(mtl.Shader)
	rl.DrawMesh(t.mesh, mtl, rl.MatrixTranslate(-halfX, 0, -halfZ))
}

func (t *terrainMesh) unload() {
	if !t.loaded {
		return
	}
	rl.UnloadMesh(&t.mesh)
	t.loaded = false
}
