package debug

import (
	"fmt"
	"runtime"

	rl "github.com/gen2brain/raylib-go/raylib"

	"world-builder/internal/engine"
)

const (
	fpsFontSize   = 20
	fpsPadding    = 12
	fpsLineHeight = fpsFontSize + 4
	// updateInterval: only refresh overlay text every N frames to reduce allocations.
	updateInterval = 30
)

// Debug holds the runtime overlays. All overlays are off by default.
type Debug struct {
	ShowFPS      bool
	ShowMemAlloc bool
	ShowStats    bool
	frameCount   uint32
	lastFpsText  string
	lastMemText  string
	lastStats    []string
	lastMemStats runtime.MemStats
}

// New returns a Debug system with all overlays hidden.
func New() *Debug {
	return &Debug{}
}

// SetShowFPS sets whether the FPS counter is drawn (top-right, green).
func (d *Debug) SetShowFPS(show bool) {
	d.ShowFPS = show
}

// SetShowMemAlloc sets whether the memory allocation counter is drawn (top-right, under FPS).
func (d *Debug) SetShowMemAlloc(show bool) {
	d.ShowMemAlloc = show
}

// SetShowStats sets whether the engine counters are drawn under the other overlays.
func (d *Debug) SetShowStats(show bool) {
	d.ShowStats = show
}

// Lines returns the overlay text for this frame, recomputing it every updateInterval frames.
func (d *Debug) Lines(fps int32, stats engine.Stats) []string {
	d.frameCount++
	update := (d.frameCount % updateInterval) == 0
	if (d.ShowFPS && d.lastFpsText == "") || (d.ShowMemAlloc && d.lastMemText == "") || (d.ShowStats && d.lastStats == nil) {
		update = true
	}
	if update {
		d.lastFpsText = fmt.Sprintf("FPS: %d", fps)
		if d.ShowMemAlloc {
			runtime.ReadMemStats(&d.lastMemStats)
			mb := float64(d.lastMemStats.Alloc) / (1024 * 1024)
			d.lastMemText = fmt.Sprintf("Mem: %.2f MiB", mb)
		}
		d.lastStats = StatsLines(stats)
	}

	var out []string
	if d.ShowFPS {
		out = append(out, d.lastFpsText)
	}
	if d.ShowMemAlloc {
		out = append(out, d.lastMemText)
	}
	if d.ShowStats {
		out = append(out, d.lastStats...)
	}
	return out
}

// StatsLines formats engine counters for the overlay.
func StatsLines(s engine.Stats) []string {
	return []string{
		fmt.Sprintf("State: %s", s.State),
		fmt.Sprintf("Instances: %d (%d pending)", s.Instances, s.Pending),
		fmt.Sprintf("Groups: %d (%d batched)", s.Groups, s.Batched),
		fmt.Sprintf("Animated: %d", s.Animated),
	}
}

// Draw renders any enabled overlays right-aligned at the top of the screen.
// Call after the scene and terminal in the draw loop.
func (d *Debug) Draw(stats engine.Stats) {
	screenW := int32(rl.GetScreenWidth())
	y := int32(fpsPadding)
	for _, text := range d.Lines(rl.GetFPS(), stats) {
		w := rl.MeasureText(text, fpsFontSize)
		rl.DrawText(text, screenW-w-fpsPadding, y, fpsFontSize, rl.Green)
		y += fpsLineHeight
	}
}
