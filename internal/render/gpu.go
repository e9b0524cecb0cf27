package render

import (
	rl "github.com/gen2brain/raylib-go/raylib"

	"world-builder/internal/assets"
	"world-builder/internal/instancing"
)

const (
	sphereRings      = 16
	sphereSlices     = 16
	cylinderSlices   = 24
	placeholderAlpha = 120
)

// geometryOffsets shift raylib's generated meshes so every unit geometry is centered on its
// origin, matching the bounds the asset factory records. The cylinder's base sits at Y=0.
var geometryOffsets = map[string]rl.Vector3{
	"cube":     {},
	"sphere":   {},
	"cylinder": {X: 0, Y: -0.5, Z: 0},
	"plane":    {},
}

// KnownGeometry reports whether the renderer can draw the geometry key.
func KnownGeometry(key string) bool {
	_, ok := geometryOffsets[key]
	return ok
}

type geometry struct {
	mesh   rl.Mesh
	offset rl.Matrix
}

// gpuCache owns every device resource shared by draws: unit meshes, the lit material for direct
// draws, and the instanced material for group draws. Everything is created on first use, so
// unload followed by the next frame recreates the whole set after a device reset.
type gpuCache struct {
	meshes map[string]geometry

	lit          rl.Material
	litLoaded    bool
	inst         rl.Material
	instLoaded   bool
	viewPos      rl.Vector3
	lightDir     rl.Vector3
	groupBuffers map[string][]rl.Matrix
}

func newGPUCache() *gpuCache {
	return &gpuCache{
		meshes:       make(map[string]geometry),
		groupBuffers: make(map[string][]rl.Matrix),
		lightDir:     rl.Vector3Normalize(rl.NewVector3(0.4, 1, 0.3)),
	}
}

// geometry returns the mesh for key, generating it on first use.
func (c *gpuCache) geometry(key string) (geometry, bool) {
	if g, ok := c.meshes[key]; ok {
		return g, true
	}
	off, ok := geometryOffsets[key]
	if !ok {
		return geometry{}, false
	}
	var mesh rl.Mesh
	switch key {
	case "cube":
		mesh = rl.GenMeshCube(1, 1, 1)
	case "sphere":
		// Radius 0.5 so diameter = 1, matching cube side length.
		mesh = rl.GenMeshSphere(0.5, sphereRings, sphereSlices)
	case "cylinder":
		mesh = rl.GenMeshCylinder(0.5, 1, cylinderSlices)
	case "plane":
		mesh = rl.GenMeshPlane(1, 1, 1, 1)
	}
	g := geometry{mesh: mesh, offset: rl.MatrixTranslate(off.X, off.Y, off.Z)}
	c.meshes[key] = g
	return g, true
}

func (c *gpuCache) litMaterial() rl.Material {
	if !c.litLoaded {
		c.lit = rl.LoadMaterialDefault()
		if s := rl.LoadShaderFromMemory(litVS, litFS); rl.IsShaderValid(s) {
			c.lit.Shader = s
		}
		c.litLoaded = true
	}
	return c.lit
}

func (c *gpuCache) instancedMaterial() rl.Material {
	if !c.instLoaded {
		c.inst = rl.LoadMaterialDefault()
		if s := rl.LoadShaderFromMemory(instancedVS, litFS); rl.IsShaderValid(s) {
			s.UpdateLocation(rl.ShaderLocMatrixMvp, rl.GetShaderLocation(s, "mvp"))
			s.UpdateLocation(rl.ShaderLocMatrixModel, rl.GetShaderLocationAttrib(s, "instanceTransform"))
			c.inst.Shader = s
		}
		c.instLoaded = true
	}
	return c.inst
}

// setView records the camera position for specular lighting. Call once per frame.
func (c *gpuCache) setView(pos rl.Vector3) {
	c.viewPos = pos
}

// drawMesh draws unit geometry key with world transform m tinted by color.
func (c *gpuCache) drawMesh(key string, m rl.Matrix, color rl.Color) {
	g, ok := c.geometry(key)
	if !ok {
		return
	}
	mtl := c.litMaterial()
	setAlbedo(&mtl, color)
	c.setLitUniforms(mtl.Shader)
	rl.DrawMesh(g.mesh, mtl, rl.MatrixMultiply(g.offset, m))
}

// drawGroup draws every visible slot of g in one instanced call.
func (c *gpuCache) drawGroup(g *instancing.Group) {
	mats := g.Matrices()
	if len(mats) == 0 {
		return
	}
	geo, ok := c.geometry(g.Geometry)
	if !ok {
		return
	}
	buf := offsetMatrices(c.groupBuffers[g.Key], geo.offset, mats)
	c.groupBuffers[g.Key] = buf
	mtl := c.instancedMaterial()
	setAlbedo(&mtl, g.Color)
	c.setLitUniforms(mtl.Shader)
	rl.DrawMeshInstanced(geo.mesh, mtl, buf, len(buf))
}

// releaseGroup drops the transform buffer kept for a group.
func (c *gpuCache) releaseGroup(key string) {
	delete(c.groupBuffers, key)
}

// unload frees every device resource. The cache stays usable and refills lazily.
func (c *gpuCache) unload() {
	for k, g := range c.meshes {
		rl.UnloadMesh(&g.mesh)
		delete(c.meshes, k)
	}
	if c.litLoaded {
		rl.UnloadMaterial(c.lit)
		c.litLoaded = false
	}
	if c.instLoaded {
		rl.UnloadMaterial(c.inst)
		c.instLoaded = false
	}
	clear(c.groupBuffers)
}

// offsetMatrices fills buf with offset applied before each of mats, reusing buf's storage.
func offsetMatrices(buf []rl.Matrix, offset rl.Matrix, mats []rl.Matrix) []rl.Matrix {
	buf = buf[:0]
	for _, m := range mats {
		buf = append(buf, rl.MatrixMultiply(offset, m))
	}
	return buf
}

func setAlbedo(mtl *rl.Material, color rl.Color) {
	if albedo := mtl.GetMap(rl.MapAlbedo); albedo != nil {
		albedo.Color = color
	}
}

// materialColor returns the tint for a mesh material key.
func materialColor(material string, color rl.Color) rl.Color {
	if material == assets.MaterialPlaceholder && color.A > placeholderAlpha {
		color.A = placeholderAlpha
	}
	return color
}

var (
	defaultAmbient          = [4]float32{0.2, 0.22, 0.26, 1.0}
	defaultLightColor       = [3]float32{1.0, 0.98, 0.95}
	defaultLightIntensity   = float32(0.75)
	defaultSpecularPower    = float32(48.0)
	defaultSpecularStrength = float32(0.35)
)

// setLitUniforms sets viewPos, lightDir, ambient, light color/intensity, and specular on shader (cgo-safe: local arrays).
func (c *gpuCache) setLitUniforms(shader rl.Shader) {
	if !rl.IsShaderValid(shader) {
		return
	}
	viewPos := [3]float32{c.viewPos.X, c.viewPos.Y, c.viewPos.Z}
	lightDir := [3]float32{c.lightDir.X, c.lightDir.Y, c.lightDir.Z}
	amb := defaultAmbient
	lightColor := defaultLightColor
	if loc := rl.GetShaderLocation(shader, "viewPos"); loc >= 0 {
		rl.SetShaderValueV(shader, loc, viewPos[:], rl.ShaderUniformVec3, 1)
	}
	if loc := rl.GetShaderLocation(shader, "lightDir"); loc >= 0 {
		rl.SetShaderValueV(shader, loc, lightDir[:], rl.ShaderUniformVec3, 1)
	}
	if loc := rl.GetShaderLocation(shader, "ambient"); loc >= 0 {
		rl.SetShaderValueV(shader, loc, amb[:], rl.ShaderUniformVec4, 1)
	}
	if loc := rl.GetShaderLocation(shader, "lightColor"); loc >= 0 {
		rl.SetShaderValueV(shader, loc, lightColor[:], rl.ShaderUniformVec3, 1)
	}
	if loc := rl.GetShaderLocation(shader, "lightIntensity"); loc >= 0 {
		rl.SetShaderValue(shader, loc, []float32{defaultLightIntensity}, rl.ShaderUniformFloat)
	}
	if loc := rl.GetShaderLocation(shader, "specularPower"); loc >= 0 {
		rl.SetShaderValue(shader, loc, []float32{defaultSpecularPower}, rl.ShaderUniformFloat)
	}
	if loc := rl.GetShaderLocation(shader, "specularStrength"); loc >= 0 {
		rl.SetShaderValue(shader, loc, []float32{defaultSpecularStrength}, rl.ShaderUniformFloat)
	}
}

const (
	litVS = `#version 330
in vec3 vertexPosition;
in vec2 vertexTexCoord;
in vec3 vertexNormal;
uniform mat4 matProjection;
uniform mat4 matView;
uniform mat4 matModel;
out vec3 fragPosition;
out vec3 fragNormal;
void main() {
  vec4 worldPos = matModel * vec4(vertexPosition, 1.0);
  fragPosition = worldPos.xyz;
  fragNormal = mat3(matModel) * vertexNormal;
  gl_Position = matProjection * matView * worldPos;
}
`
	// instancedVS reads the per-instance model matrix from the instanceTransform attribute.
	instancedVS = `#version 330
in vec3 vertexPosition;
in vec2 vertexTexCoord;
in vec3 vertexNormal;
in mat4 instanceTransform;
uniform mat4 mvp;
out vec3 fragPosition;
out vec3 fragNormal;
void main() {
  vec4 worldPos = instanceTransform * vec4(vertexPosition, 1.0);
  fragPosition = worldPos.xyz;
  fragNormal = mat3(instanceTransform) * vertexNormal;
  gl_Position = mvp * worldPos;
}
`
	litFS = `#version 330
in vec3 fragPosition;
in vec3 fragNormal;
uniform vec4 colDiffuse;
uniform vec3 viewPos;
uniform vec3 lightDir;
uniform vec4 ambient;
uniform vec3 lightColor;
uniform float lightIntensity;
uniform float specularPower;
uniform float specularStrength;
out vec4 finalColor;
void main() {
  vec4 tint = colDiffuse;
  vec3 N = normalize(fragNormal);
  vec3 L = normalize(lightDir);
  vec3 V = normalize(viewPos - fragPosition);
  float NdotL = max(dot(N, L), 0.0);
  vec3 diffuse = tint.rgb * NdotL * lightColor * lightIntensity;
  vec3 amb = ambient.rgb * tint.rgb;
  vec3 H = normalize(L + V);
  float NdotH = max(dot(N, H), 0.0);
  float spec = pow(NdotH, specularPower) * specularStrength;
  vec3 specular = lightColor * spec * (NdotL > 0.0 ? 1.0 : 0.0);
  finalColor = vec4(amb + diffuse + specular, tint.a);
}
`
)
