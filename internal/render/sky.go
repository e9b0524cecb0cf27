package render

import (
	"os"
	"path/filepath"

	rl "github.com/gen2brain/raylib-go/raylib"
)

const (
	gridMinorStep  = 1
	gridMajorStep  = 10
	gridMinorAlpha = 50
	gridMajorAlpha = 120
	axisLineAlpha  = 220
	skyboxScale    = 1000

	// Width/height ratio range of an equirectangular panorama (typically 2:1).
	equirectAspectMin = 1.8
	equirectAspectMax = 2.2
)

// skyboxPaths are tried in order so the skybox is found whether run from repo root or cmd/worldbuilder.
var skyboxPaths = []string{
	"assets/skybox/skybox.png",
	"assets/skybox/skybox.jpg",
	"../../assets/skybox/skybox.png",
	"../../assets/skybox/skybox.jpg",
}

// skybox is an optional cubemap or equirectangular panorama drawn behind the scene.
// The file is located up front; GPU loading happens on the first draw after the GL
// context exists and again after every device reset.
type skybox struct {
	path     string
	equirect bool
	loaded   bool
	tex      rl.Texture2D
	mesh     rl.Mesh
	mtl      rl.Material
	camPos   int32
	texLoc   int32
}

func findSkybox() string {
	for _, p := range skyboxPaths {
		cleaned := filepath.Clean(p)
		if _, err := os.Stat(cleaned); err == nil {
			return cleaned
		}
	}
	return ""
}

func newSkybox(path string) *skybox {
	return &skybox{path: path}
}

// ensureLoaded creates the GPU resources on first use. A missing or unreadable file leaves the sky empty.
func (s *skybox) ensureLoaded() {
	if s.loaded || s.path == "" {
		return
	}
	img := rl.LoadImage(s.path)
	if img == nil || img.Width <= 0 || img.Height <= 0 {
		s.path = ""
		return
	}
	aspect := float32(img.Width) / float32(img.Height)
	s.equirect = aspect >= equirectAspectMin && aspect <= equirectAspectMax

	if !s.equirect {
		s.tex = rl.LoadTextureCubemap(img, rl.CubemapLayoutAutoDetect)
		rl.UnloadImage(img)
		if !rl.IsTextureValid(s.tex) {
			s.path = ""
			return
		}
		s.mesh = rl.GenMeshCube(1, 1, 1)
		s.mtl = rl.LoadMaterialDefault()
		rl.SetMaterialTexture(&s.mtl, rl.MapCubemap, s.tex)
		s.loaded = true
		return
	}

	rl.UnloadImage(img)
	s.tex = rl.LoadTexture(s.path)
	if !rl.IsTextureValid(s.tex) {
		s.path = ""
		return
	}
	shader := rl.LoadShaderFromMemory(equirectVS, equirectFS)
	if !rl.IsShaderValid(shader) {
		rl.UnloadTexture(s.tex)
		s.path = ""
		return
	}
	s.mesh = rl.GenMeshCube(1, 1, 1)
	s.mtl = rl.LoadMaterialDefault()
	s.mtl.Shader = shader
	s.camPos = rl.GetShaderLocation(shader, "cameraPosition")
	s.texLoc = rl.GetShaderLocation(shader, "skybox")
	s.loaded = true
}

// draw renders the sky as a large cube centered on the camera. Call inside BeginMode3D.
func (s *skybox) draw(cam rl.Vector3) {
	if !s.loaded {
		return
	}
	rl.DisableDepthMask()
	rl.DisableBackfaceCulling()
	transform := rl.MatrixMultiply(rl.MatrixScale(skyboxScale, skyboxScale, skyboxScale), rl.MatrixTranslate(cam.X, cam.Y, cam.Z))
	if s.equirect {
		if s.camPos >= 0 {
			rl.SetShaderValueV(s.mtl.Shader, s.camPos, []float32{cam.X, cam.Y, cam.Z}, rl.ShaderUniformVec3, 1)
		}
		if s.texLoc >= 0 {
			rl.SetShaderValueTexture(s.mtl.Shader, s.texLoc, s.tex)
		}
	}
	rl.DrawMesh(s.mesh, s.mtl, transform)
	rl.EnableBackfaceCulling()
	rl.EnableDepthMask()
}

// unload frees the GPU resources; the next draw reloads them from path.
func (s *skybox) unload() {
	if !s.loaded {
		return
	}
	rl.UnloadMesh(&s.mesh)
	// UnloadMaterial also frees the cubemap texture bound to it.
	rl.UnloadMaterial(s.mtl)
	if s.equirect {
		rl.UnloadTexture(s.tex)
	}
	s.loaded = false
}

const (
	equirectVS = `#version 330
in vec3 vertexPosition;
uniform mat4 matProjection;
uniform mat4 matView;
uniform mat4 matModel;
out vec3 fragWorldPos;
void main() {
  vec4 worldPos = matModel * vec4(vertexPosition, 1.0);
  fragWorldPos = worldPos.xyz;
  gl_Position = matProjection * matView * worldPos;
}
`
	equirectFS = `#version 330
in vec3 fragWorldPos;
out vec4 finalColor;
uniform sampler2D skybox;
uniform vec3 cameraPosition;
void main() {
  vec3 dir = normalize(fragWorldPos - cameraPosition);
  float lon = atan(dir.z, dir.x);
  float lat = asin(clamp(dir.y, -1.0, 1.0));
  float u = lon / 6.28318530718 + 0.5;
  float v = 0.5 - lat / 3.14159265359;
  finalColor = texture(skybox, vec2(u, v));
}
`
)

// gridLine is one segment of the editor grid.
type gridLine struct {
	start, end rl.Vector3
	color      rl.Color
}

// gridLines returns the XZ editor grid out to extent with major lines every gridMajorStep
// and the three colored axis lines through the origin.
func gridLines(extent int) []gridLine {
	minor := rl.NewColor(128, 128, 128, gridMinorAlpha)
	major := rl.NewColor(160, 160, 160, gridMajorAlpha)
	e := float32(extent)
	lines := make([]gridLine, 0, 4*extent+5)
	for i := -extent; i <= extent; i += gridMinorStep {
		c := major
		if i%gridMajorStep != 0 {
			c = minor
		}
		f := float32(i)
		lines = append(lines,
			gridLine{rl.NewVector3(f, 0, -e), rl.NewVector3(f, 0, e), c},
			gridLine{rl.NewVector3(-e, 0, f), rl.NewVector3(e, 0, f), c},
		)
	}
	lines = append(lines,
		gridLine{rl.NewVector3(-e, 0, 0), rl.NewVector3(e, 0, 0), rl.NewColor(220, 80, 80, axisLineAlpha)},
		gridLine{rl.NewVector3(0, -e, 0), rl.NewVector3(0, e, 0), rl.NewColor(80, 220, 80, axisLineAlpha)},
		gridLine{rl.NewVector3(0, 0, -e), rl.NewVector3(0, 0, e), rl.NewColor(80, 80, 220, axisLineAlpha)},
	)
	return lines
}

func drawGrid(lines []gridLine) {
	for _, l := range lines {
		rl.DrawLine3D(l.start, l.end, l.color)
	}
}
