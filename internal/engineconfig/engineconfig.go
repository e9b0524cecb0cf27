package engineconfig

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"world-builder/internal/instancing"
	"world-builder/internal/picking"
	"world-builder/internal/terrain"
	"world-builder/internal/transformedit"
)

// EngineConfigPath is the path to the engine config file, relative to the process working directory.
const EngineConfigPath = "config/engine.yaml"

// Window holds the viewport settings.
type Window struct {
	Width      int    `yaml:"width" toml:"width"`
	Height     int    `yaml:"height" toml:"height"`
	Fullscreen bool   `yaml:"fullscreen" toml:"fullscreen"`
	Title      string `yaml:"title" toml:"title"`
	TargetFPS  int    `yaml:"target_fps" toml:"target_fps"`
}

// Overlays holds the debug overlay and editor grid toggles. Persisted across runs.
type Overlays struct {
	ShowFPS      bool `yaml:"show_fps" toml:"show_fps"`
	ShowMemAlloc bool `yaml:"show_memalloc" toml:"show_memalloc"`
	ShowStats    bool `yaml:"show_stats" toml:"show_stats"`
	GridVisible  bool `yaml:"grid_visible" toml:"grid_visible"`
}

// Instancing holds the GPU batching limits.
type Instancing struct {
	Capacity int `yaml:"capacity" toml:"capacity"`
	MinBatch int `yaml:"min_batch" toml:"min_batch"`
}

// Build holds asset construction settings.
type Build struct {
	TimeoutMS int `yaml:"timeout_ms" toml:"timeout_ms"`
	// LatencyMS delays every asynchronous build of the demo asset factory.
	LatencyMS int `yaml:"latency_ms" toml:"latency_ms"`
}

// Picking holds click and placement settings.
type Picking struct {
	CycleRadiusPx float32 `yaml:"cycle_radius_px" toml:"cycle_radius_px"`
	CycleWindowMS int     `yaml:"cycle_window_ms" toml:"cycle_window_ms"`
	GridSize      float32 `yaml:"grid_size" toml:"grid_size"`
	HalfExtent    float32 `yaml:"world_half_extent" toml:"world_half_extent"`
	TerrainStep   float32 `yaml:"terrain_step" toml:"terrain_step"`
}

// Edit holds gizmo settings.
type Edit struct {
	SnapUnit        float32 `yaml:"snap_unit" toml:"snap_unit"`
	RotationSnapDeg float32 `yaml:"rotation_snap_deg" toml:"rotation_snap_deg"`
	MinScale        float32 `yaml:"min_scale" toml:"min_scale"`
	MaxScale        float32 `yaml:"max_scale" toml:"max_scale"`
	ScaleEpsilon    float32 `yaml:"scale_epsilon" toml:"scale_epsilon"`
	HelperThreshold float32 `yaml:"ground_helper_threshold" toml:"ground_helper_threshold"`
}

// Config is the engine configuration. In-world data lives in the world file, not here.
type Config struct {
	Window     Window          `yaml:"window" toml:"window"`
	Overlays   Overlays        `yaml:"overlays" toml:"overlays"`
	Instancing Instancing      `yaml:"instancing" toml:"instancing"`
	Build      Build           `yaml:"build" toml:"build"`
	Picking    Picking         `yaml:"picking" toml:"picking"`
	Edit       Edit            `yaml:"edit" toml:"edit"`
	Terrain    terrain.Options `yaml:"terrain" toml:"terrain"`
	WorldFile  string          `yaml:"world_file" toml:"world_file"`
	LogFile    string          `yaml:"log_file" toml:"log_file"`
	// WatchWorld reloads the world file when it changes on disk.
	WatchWorld bool            `yaml:"watch_world" toml:"watch_world"`
}

// Default returns the default configuration (overlays off, grid on).
func Default() Config {
	return Config{
		Window: Window{Width: 1280, Height: 720, Title: "World Builder", TargetFPS: 60},
		Overlays: Overlays{
			GridVisible: true,
		},
		Instancing: Instancing{Capacity: instancing.MaxCapacity, MinBatch: instancing.MinBatch},
		Build:      Build{TimeoutMS: 10000},
		Picking:    Picking{CycleRadiusPx: 5, CycleWindowMS: 500, GridSize: 1, HalfExtent: 50, TerrainStep: 0.5},
		Edit: Edit{
			SnapUnit:        1,
			RotationSnapDeg: 15,
			MinScale:        0.05,
			MaxScale:        100,
			ScaleEpsilon:    1e-3,
			HelperThreshold: 0.05,
		},
		Terrain:    terrain.DefaultOptions(),
		WorldFile:  "worlds/default.yaml",
		LogFile:    "logs/engine.txt",
		WatchWorld: true,
	}
}

// Load reads the configuration at path on top of Default(). Files ending in .toml are
// decoded as TOML, anything else as YAML. A missing file yields the
// defaults without error; an invalid file yields the defaults and the decode error.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, err
	}
	if err := unmarshal(path, data, &cfg); err != nil {
		return Default(), fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.Validate()
	return cfg, nil
}

// Save writes cfg to path, creating the directory if needed.
func Save(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := marshal(path, cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// isTOML reports whether path names a TOML file; everything else is read as YAML.
func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

func unmarshal(path string, data []byte, cfg *Config) error {
	if isTOML(path) {
		return toml.Unmarshal(data, cfg)
	}
	return yaml.Unmarshal(data, cfg)
}

func marshal(path string, cfg Config) ([]byte, error) {
	if isTOML(path) {
		return toml.Marshal(cfg)
	}
	return yaml.Marshal(cfg)
}

// Validate clamps out-of-range values back into range.
func (c *Config) Validate() {
	d := Default()
	if c.Window.Width <= 0 || c.Window.Height <= 0 {
		c.Window.Width, c.Window.Height = d.Window.Width, d.Window.Height
	}
	if c.Window.TargetFPS <= 0 {
		c.Window.TargetFPS = d.Window.TargetFPS
	}
	c.Instancing.Capacity = min(max(c.Instancing.Capacity, 1), instancing.MaxCapacity)
	c.Instancing.MinBatch = max(c.Instancing.MinBatch, 2)
	if c.Build.TimeoutMS <= 0 {
		c.Build.TimeoutMS = d.Build.TimeoutMS
	}
	c.Build.LatencyMS = max(c.Build.LatencyMS, 0)
	if c.Picking.CycleRadiusPx <= 0 {
		c.Picking.CycleRadiusPx = d.Picking.CycleRadiusPx
	}
	if c.Picking.CycleWindowMS <= 0 {
		c.Picking.CycleWindowMS = d.Picking.CycleWindowMS
	}
	if c.Picking.GridSize <= 0 {
		c.Picking.GridSize = d.Picking.GridSize
	}
	if c.Picking.HalfExtent <= 0 {
		c.Picking.HalfExtent = d.Picking.HalfExtent
	}
	if c.Picking.TerrainStep <= 0 {
		c.Picking.TerrainStep = d.Picking.TerrainStep
	}
	if c.Edit.SnapUnit <= 0 {
		c.Edit.SnapUnit = d.Edit.SnapUnit
	}
	if c.Edit.RotationSnapDeg <= 0 {
		c.Edit.RotationSnapDeg = d.Edit.RotationSnapDeg
	}
	if c.Edit.MinScale <= 0 {
		c.Edit.MinScale = d.Edit.MinScale
	}
	if c.Edit.MaxScale <= c.Edit.MinScale {
		c.Edit.MaxScale = max(d.Edit.MaxScale, c.Edit.MinScale*2)
	}
	if c.Edit.ScaleEpsilon <= 0 {
		c.Edit.ScaleEpsilon = d.Edit.ScaleEpsilon
	}
	if c.Edit.HelperThreshold < 0 {
		c.Edit.HelperThreshold = d.Edit.HelperThreshold
	}
}

// BuildTimeout returns the construction timeout.
func (c Config) BuildTimeout() time.Duration {
	return time.Duration(c.Build.TimeoutMS) * time.Millisecond
}

// PickingOptions converts the picking section.
func (c Config) PickingOptions() picking.Options {
	return picking.Options{
		CycleRadius: c.Picking.CycleRadiusPx,
		CycleWindow: time.Duration(c.Picking.CycleWindowMS) * time.Millisecond,
		GridSize:    c.Picking.GridSize,
		HalfExtent:  c.Picking.HalfExtent,
		TerrainStep: c.Picking.TerrainStep,
	}
}

// EditOptions converts the edit section.
func (c Config) EditOptions() transformedit.Options {
	return transformedit.Options{
		SnapUnit:        c.Edit.SnapUnit,
		RotationSnap:    c.Edit.RotationSnapDeg * math.Pi / 180,
		MinScale:        c.Edit.MinScale,
		MaxScale:        c.Edit.MaxScale,
		ScaleEpsilon:    c.Edit.ScaleEpsilon,
		HelperThreshold: c.Edit.HelperThreshold,
	}
}
