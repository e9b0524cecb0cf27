package terrain

import (
	"time"

	"github.com/chewxy/math32"
)

// Options controls procedural heightfield generation.
// Width/Depth are in tiles; TileSize is the world size of one tile on X/Z.
// HeightScale is the maximum height of the terrain in world units.
// Seed controls randomness; Seed == 0 uses a time-based seed.
// Octaves, Frequency, Lacunarity, and Gain control the fractal noise shape.
type Options struct {
	Width       int     `yaml:"width" toml:"width"`
	Depth       int     `yaml:"depth" toml:"depth"`
	TileSize    float32 `yaml:"tile_size" toml:"tile_size"`
	HeightScale float32 `yaml:"height_scale" toml:"height_scale"`

	Seed       int64   `yaml:"seed" toml:"seed"`
	Octaves    int     `yaml:"octaves" toml:"octaves"`
	Frequency  float32 `yaml:"frequency" toml:"frequency"`
	Lacunarity float32 `yaml:"lacunarity" toml:"lacunarity"`
	Gain       float32 `yaml:"gain" toml:"gain"`
}

// DefaultOptions returns a sane default configuration.
func DefaultOptions() Options {
	return Options{
		Width:       64,
		Depth:       64,
		TileSize:    1.0,
		HeightScale: 3.0,
		Seed:        0,
		Octaves:     4,
		Frequency:   0.08,
		Lacunarity:  2.0,
		Gain:        0.5,
	}
}

func (o Options) normalized() Options {
	if o.Width <= 1 {
		o.Width = 32
	}
	if o.Depth <= 1 {
		o.Depth = 32
	}
	if o.TileSize <= 0 {
		o.TileSize = 1
	}
	if o.HeightScale < 0 {
		o.HeightScale = 0
	}
	if o.Octaves <= 0 {
		o.Octaves = 1
	}
	if o.Frequency <= 0 {
		o.Frequency = 0.05
	}
	if o.Lacunarity <= 0 {
		o.Lacunarity = 2.0
	}
	if o.Gain <= 0 {
		o.Gain = 0.5
	}
	if o.Seed == 0 {
		o.Seed = time.Now().UnixNano()
	}
	return o
}

// Heightfield is a grid of elevations centered on the world origin. Vertex (x, z) of the
// grid sits at world (-Width*TileSize/2 + x*TileSize, -Depth*TileSize/2 + z*TileSize).
// Heights between vertices are bilinearly interpolated; outside the grid they clamp to the edge.
type Heightfield struct {
	opts    Options
	heights []float32 // (Width+1)*(Depth+1), row-major by z
}

// Generate builds a heightfield from fractal value noise.
func Generate(opts Options) *Heightfield {
	opts = opts.normalized()
	h := &Heightfield{opts: opts, heights: make([]float32, (opts.Width+1)*(opts.Depth+1))}
	for z := 0; z <= opts.Depth; z++ {
		for x := 0; x <= opts.Width; x++ {
			n := fractalValueNoise2D(float32(x)*opts.Frequency, float32(z)*opts.Frequency, opts.Seed, opts.Octaves, opts.Lacunarity, opts.Gain)
			if !isFinite(n) {
				n = 0
			}
			h.heights[z*(opts.Width+1)+x] = clamp01(n) * opts.HeightScale
		}
	}
	return h
}

// Options returns the normalized generation options.
func (h *Heightfield) Options() Options {
	return h.opts
}

// Extent returns the half size of the field on X and Z.
func (h *Heightfield) Extent() (halfX, halfZ float32) {
	return float32(h.opts.Width) * h.opts.TileSize * 0.5, float32(h.opts.Depth) * h.opts.TileSize * 0.5
}

// Vertex returns the stored elevation at grid vertex (x, z), clamped to the grid.
func (h *Heightfield) Vertex(x, z int) float32 {
	x = min(max(x, 0), h.opts.Width)
	z = min(max(z, 0), h.opts.Depth)
	return h.heights[z*(h.opts.Width+1)+x]
}

// Height returns the interpolated elevation at world (x, z).
func (h *Heightfield) Height(x, z float32) float32 {
	halfX, halfZ := h.Extent()
	gx := (x + halfX) / h.opts.TileSize
	gz := (z + halfZ) / h.opts.TileSize
	gx = math32.Max(0, math32.Min(gx, float32(h.opts.Width)))
	gz = math32.Max(0, math32.Min(gz, float32(h.opts.Depth)))

	x0 := int(math32.Floor(gx))
	z0 := int(math32.Floor(gz))
	tx := gx - float32(x0)
	tz := gz - float32(z0)

	h00 := h.Vertex(x0, z0)
	h10 := h.Vertex(x0+1, z0)
	h01 := h.Vertex(x0, z0+1)
	h11 := h.Vertex(x0+1, z0+1)
	return lerp(lerp(h00, h10, tx), lerp(h01, h11, tx), tz)
}

// fractalValueNoise2D is simple fractal value noise: layered smooth value noise with
// configurable octaves, lacunarity, and gain. Output is in [0,1].
func fractalValueNoise2D(x, y float32, seed int64, octaves int, lacunarity, gain float32) float32 {
	var sum float32
	var amplitude float32 = 1
	var maxAmp float32 = 0
	freq := float32(1)

	for i := 0; i < octaves; i++ {
		n := valueNoise2D(x*freq, y*freq, int32(seed)+int32(i))
		sum += n * amplitude
		maxAmp += amplitude
		amplitude *= gain
		freq *= lacunarity
	}
	if maxAmp == 0 {
		return 0
	}
	return sum / maxAmp
}

// valueNoise2D is smooth value noise in [0,1] using a hash-based lattice and cubic easing.
func valueNoise2D(x, y float32, seed int32) float32 {
	x0 := int32(math32.Floor(x))
	y0 := int32(math32.Floor(y))
	tx := x - float32(x0)
	ty := y - float32(y0)

	v00 := hash2D(x0, y0, seed)
	v10 := hash2D(x0+1, y0, seed)
	v01 := hash2D(x0, y0+1, seed)
	v11 := hash2D(x0+1, y0+1, seed)

	sx := smoothStep(tx)
	sy := smoothStep(ty)
	return lerp(lerp(v00, v10, sx), lerp(v01, v11, sx), sy)
}

// hash2D maps integer lattice coordinates to a deterministic pseudo-random float in [0,1].
func hash2D(x, y, seed int32) float32 {
	n := x*374761393 + y*668265263 + seed*362437
	n = (n ^ (n >> 13)) * 1274126177
	n = n ^ (n >> 16)
	const invMaxInt = 1.0 / 2147483647.0
	return float32(n&0x7fffffff) * float32(invMaxInt)
}

func lerp(a, b, t float32) float32 {
	return a + (b-a)*t
}

// smoothStep is Perlin-style cubic easing: 3t^2 - 2t^3.
func smoothStep(t float32) float32 {
	if t <= 0 {
		return 0
	}
	if t >= 1 {
		return 1
	}
	return t * t * (3 - 2*t)
}

func clamp01(v float32) float32 {
	return math32.Max(0, math32.Min(v, 1))
}

func isFinite(f float32) bool {
	return !math32.IsNaN(f) && !math32.IsInf(f, 0)
}
